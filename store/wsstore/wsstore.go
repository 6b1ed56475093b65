// Package wsstore implements the store.Store contract over a WebSocket
// connection to a sync backend. Every frame on the wire is a JSON envelope;
// requests carry a correlation id the server echoes back, and the server
// pushes change batches tagged with the subscription they belong to.
package wsstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/curalink/syncengine/errors"
	"github.com/curalink/syncengine/logging"
	"github.com/curalink/syncengine/store"
)

// Frame types exchanged with the backend.
const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	frameGet         = "get"
	frameCommit      = "commit"
	frameResult      = "result"
	frameChanges     = "changes"
)

// Envelope wraps every message on the wire.
type Envelope struct {
	Type       string              `json:"type"`
	ReqID      string              `json:"reqId,omitempty"`
	SubID      string              `json:"subId,omitempty"`
	Collection string              `json:"collection,omitempty"`
	Query      *store.Query        `json:"query,omitempty"`
	DocumentID string              `json:"documentId,omitempty"`
	Ops        []store.WriteOp     `json:"ops,omitempty"`
	Doc        store.Document      `json:"doc,omitempty"`
	Events     []store.ChangeEvent `json:"events,omitempty"`
	Error      string              `json:"error,omitempty"`
	NotFound   bool                `json:"notFound,omitempty"`
	Timestamp  int64               `json:"timestamp,omitempty"`
}

// Config tunes the adapter.
type Config struct {
	// URL of the sync backend, ws:// or wss://
	URL string

	// RequestTimeout bounds one request/response round trip (default 10s)
	RequestTimeout time.Duration

	// WriteTimeout bounds a single frame write (default 5s)
	WriteTimeout time.Duration

	Logger *logging.Logger
}

func (c *Config) setDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = logging.Default()
	}
}

type subRoute struct {
	onChange func([]store.ChangeEvent)
	onError  func(error)
}

// Client is a store.Store backed by a WebSocket sync server.
type Client struct {
	conn *websocket.Conn
	cfg  Config
	log  *logging.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Envelope
	subs    map[string]*subRoute
	closed  bool

	network atomic.Bool
	seq     atomic.Uint64

	done chan struct{}
}

// Dial connects to the backend and starts the read loop.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	cfg.setDefaults()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, errors.NewTransportError(errors.OpSubscribe, "wsstore", err)
	}

	c := &Client{
		conn:    conn,
		cfg:     cfg,
		log:     cfg.Logger.WithComponent(logging.Component("wsstore")),
		pending: make(map[string]chan Envelope),
		subs:    make(map[string]*subRoute),
		done:    make(chan struct{}),
	}
	c.network.Store(true)

	go c.readLoop()
	return c, nil
}

func (c *Client) nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, c.seq.Add(1))
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.failAll(err)
			return
		}

		switch env.Type {
		case frameResult:
			c.mu.Lock()
			ch, ok := c.pending[env.ReqID]
			if ok {
				delete(c.pending, env.ReqID)
			}
			c.mu.Unlock()
			if ok {
				ch <- env
			}
		case frameChanges:
			c.mu.Lock()
			route := c.subs[env.SubID]
			c.mu.Unlock()
			if route == nil {
				continue
			}
			if env.Error != "" {
				route.onError(errors.NewTransportError(errors.OpLiveQuery, "wsstore", stderrors.New(env.Error)))
				continue
			}
			if len(env.Events) > 0 {
				route.onChange(env.Events)
			}
		default:
			c.log.Warn("unknown frame type", slog.String("type", env.Type))
		}
	}
}

// failAll wakes every in-flight request and live query after the
// connection breaks.
func (c *Client) failAll(cause error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan Envelope)
	routes := make([]*subRoute, 0, len(c.subs))
	for _, r := range c.subs {
		routes = append(routes, r)
	}
	closed := c.closed
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- Envelope{Type: frameResult, Error: cause.Error()}
	}
	if closed {
		return
	}
	err := errors.NewTransportError(errors.OpLiveQuery, "wsstore", cause)
	for _, r := range routes {
		r.onError(err)
	}
}

func (c *Client) send(env Envelope) error {
	env.Timestamp = time.Now().UnixMilli()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteJSON(env)
}

// roundTrip sends a request frame and waits for the correlated result.
func (c *Client) roundTrip(ctx context.Context, op errors.Operation, env Envelope) (Envelope, error) {
	if !c.network.Load() {
		return Envelope{}, errors.NewTransportError(op, "wsstore", stderrors.New("network disabled"))
	}

	env.ReqID = c.nextID("req")
	ch := make(chan Envelope, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Envelope{}, errors.NewTransportError(op, "wsstore", stderrors.New("connection closed"))
	}
	c.pending[env.ReqID] = ch
	c.mu.Unlock()

	if err := c.send(env); err != nil {
		c.mu.Lock()
		delete(c.pending, env.ReqID)
		c.mu.Unlock()
		return Envelope{}, errors.NewTransportError(op, "wsstore", err)
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		if res.Error != "" {
			return Envelope{}, errors.NewTransportError(op, "wsstore", stderrors.New(res.Error))
		}
		return res, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, env.ReqID)
		c.mu.Unlock()
		return Envelope{}, errors.NewTransportError(op, "wsstore", ctx.Err())
	case <-timer.C:
		c.mu.Lock()
		delete(c.pending, env.ReqID)
		c.mu.Unlock()
		return Envelope{}, errors.NewTransportError(op, "wsstore", stderrors.New("request timed out"))
	}
}

type handle struct {
	c     *Client
	subID string
	once  sync.Once
	err   error
}

func (h *handle) Close() error {
	h.once.Do(func() {
		h.c.mu.Lock()
		delete(h.c.subs, h.subID)
		h.c.mu.Unlock()
		h.err = h.c.send(Envelope{Type: frameUnsubscribe, SubID: h.subID})
	})
	return h.err
}

// OpenLiveQuery registers a subscription with the backend. The server acks
// with a result frame, then pushes the initial snapshot and every later
// change as "changes" frames tagged with the subscription id.
func (c *Client) OpenLiveQuery(ctx context.Context, collection string, q store.Query, onChange func([]store.ChangeEvent), onError func(error)) (store.LiveQueryHandle, error) {
	subID := c.nextID("sub")

	c.mu.Lock()
	c.subs[subID] = &subRoute{onChange: onChange, onError: onError}
	c.mu.Unlock()

	_, err := c.roundTrip(ctx, errors.OpLiveQuery, Envelope{
		Type:       frameSubscribe,
		SubID:      subID,
		Collection: collection,
		Query:      &q,
	})
	if err != nil {
		c.mu.Lock()
		delete(c.subs, subID)
		c.mu.Unlock()
		return nil, err
	}
	return &handle{c: c, subID: subID}, nil
}

func (c *Client) GetDocument(ctx context.Context, collection, id string) (store.Document, error) {
	res, err := c.roundTrip(ctx, errors.OpRead, Envelope{
		Type:       frameGet,
		Collection: collection,
		DocumentID: id,
	})
	if err != nil {
		return nil, err
	}
	if res.NotFound {
		return nil, store.ErrNotFound
	}
	return res.Doc, nil
}

// CommitBatch ships the whole batch in one frame; the server applies it
// atomically and acks or rejects it as a unit.
func (c *Client) CommitBatch(ctx context.Context, ops []store.WriteOp) error {
	if len(ops) == 0 {
		return nil
	}
	_, err := c.roundTrip(ctx, errors.OpCommit, Envelope{Type: frameCommit, Ops: ops})
	return err
}

// SetNetworkEnabled gates outgoing requests locally. While disabled every
// round trip fails fast with a retryable transport error; the socket stays
// open so live queries resume without a reconnect.
func (c *Client) SetNetworkEnabled(ctx context.Context, enabled bool) error {
	c.network.Store(enabled)
	return nil
}

// ClearLocalCache is a no-op: this adapter holds no local state, the
// backend is the source of truth.
func (c *Client) ClearLocalCache(ctx context.Context) error {
	return nil
}

// Close tears down the connection. In-flight requests fail.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done
	return err
}

var _ store.Store = (*Client)(nil)
