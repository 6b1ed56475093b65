// Package memstore provides an in-memory implementation of the store
// contract with live-query fan-out. It backs the demo binary and the unit
// tests; failures can be scripted to exercise retry and error paths.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/curalink/syncengine/errors"
	"github.com/curalink/syncengine/store"
)

// Store is an in-memory document store.
type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]store.Document
	watchers    map[int]*watcher
	nextWatcher int

	networkEnabled bool
	cacheClears    int

	commitCalls     [][]store.WriteOp
	failNextCommits int
	commitErr       error
	openErr         error

	clock func() time.Time
}

type watcher struct {
	collection string
	query      store.Query
	onChange   func([]store.ChangeEvent)
	onError    func(error)
	members    map[string]bool
}

type handle struct {
	s  *Store
	id int
}

func (h *handle) Close() error {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	delete(h.s.watchers, h.id)
	return nil
}

// New creates an empty store with networking enabled.
func New() *Store {
	return &Store{
		collections:    make(map[string]map[string]store.Document),
		watchers:       make(map[int]*watcher),
		networkEnabled: true,
		clock:          time.Now,
	}
}

// Seed inserts a document without notifying watchers. Intended for test and
// demo setup before any live query is open.
func (s *Store) Seed(collection, id string, doc store.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureCollection(collection)[id] = doc.Clone()
}

// FailNextCommits scripts the next n CommitBatch calls to fail with err.
func (s *Store) FailNextCommits(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNextCommits = n
	s.commitErr = err
}

// SetOpenError scripts OpenLiveQuery to fail with err until cleared.
func (s *Store) SetOpenError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openErr = err
}

// CommitCalls returns every CommitBatch invocation seen so far, including
// failed ones.
func (s *Store) CommitCalls() [][]store.WriteOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]store.WriteOp, len(s.commitCalls))
	copy(out, s.commitCalls)
	return out
}

// WatcherCount reports how many live queries are currently open.
func (s *Store) WatcherCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

// CacheClears reports how often ClearLocalCache has been called.
func (s *Store) CacheClears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cacheClears
}

func (s *Store) OpenLiveQuery(ctx context.Context, collection string, q store.Query, onChange func([]store.ChangeEvent), onError func(error)) (store.LiveQueryHandle, error) {
	s.mu.Lock()
	if s.openErr != nil {
		err := s.openErr
		s.mu.Unlock()
		return nil, errors.NewTransportError(errors.OpSubscribe, "memstore", err)
	}
	if !s.networkEnabled {
		s.mu.Unlock()
		return nil, errors.NewTransportError(errors.OpSubscribe, "memstore", fmt.Errorf("network disabled"))
	}

	s.nextWatcher++
	id := s.nextWatcher
	w := &watcher{
		collection: collection,
		query:      q,
		onChange:   onChange,
		onError:    onError,
		members:    make(map[string]bool),
	}
	s.watchers[id] = w

	// Initial snapshot: every matching document arrives as one batch of
	// added events, sorted per the query before the limit is applied so a
	// capped feed never picks arbitrary map-order documents.
	var snapshot []store.ChangeEvent
	now := s.clock()
	for docID, doc := range s.ensureCollection(collection) {
		if !q.Matches(doc) {
			continue
		}
		snapshot = append(snapshot, store.ChangeEvent{
			Kind:       store.ChangeAdded,
			EntityID:   docID,
			Doc:        doc.Clone(),
			ObservedAt: now,
			Origin:     store.OriginServer,
		})
	}
	sort.Slice(snapshot, func(i, j int) bool {
		return q.Less(snapshot[i].Doc, snapshot[j].Doc, snapshot[i].EntityID, snapshot[j].EntityID)
	})
	if q.Limit > 0 && len(snapshot) > q.Limit {
		snapshot = snapshot[:q.Limit]
	}
	for _, ev := range snapshot {
		w.members[ev.EntityID] = true
	}
	s.mu.Unlock()

	if len(snapshot) > 0 {
		onChange(snapshot)
	}

	return &handle{s: s, id: id}, nil
}

func (s *Store) GetDocument(ctx context.Context, collection, id string) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.networkEnabled {
		return nil, errors.NewTransportError(errors.OpRead, "memstore", fmt.Errorf("network disabled"))
	}

	doc, ok := s.ensureCollection(collection)[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *Store) CommitBatch(ctx context.Context, ops []store.WriteOp) error {
	s.mu.Lock()

	recorded := make([]store.WriteOp, len(ops))
	copy(recorded, ops)
	s.commitCalls = append(s.commitCalls, recorded)

	if !s.networkEnabled {
		s.mu.Unlock()
		return errors.NewTransportError(errors.OpCommit, "memstore", fmt.Errorf("network disabled"))
	}
	if s.failNextCommits > 0 {
		s.failNextCommits--
		err := s.commitErr
		if err == nil {
			err = fmt.Errorf("scripted commit failure")
		}
		s.mu.Unlock()
		return errors.NewTransportError(errors.OpCommit, "memstore", err)
	}

	// All-or-nothing: apply every op, then notify.
	for _, op := range ops {
		coll := s.ensureCollection(op.Collection)
		switch op.Op {
		case store.OpCreate:
			coll[op.DocumentID] = store.Document(op.Payload).Clone()
		case store.OpUpdate:
			existing, ok := coll[op.DocumentID]
			if !ok {
				existing = store.Document{}
			}
			merged := existing.Clone()
			for k, v := range op.Payload {
				merged[k] = v
			}
			coll[op.DocumentID] = merged
		case store.OpDelete:
			delete(coll, op.DocumentID)
		}
	}

	type delivery struct {
		w      *watcher
		events []store.ChangeEvent
	}
	var deliveries []delivery
	now := s.clock()

	for _, w := range s.watchers {
		var events []store.ChangeEvent
		for _, op := range ops {
			if op.Collection != w.collection {
				continue
			}
			doc, exists := s.ensureCollection(op.Collection)[op.DocumentID]
			inBefore := w.members[op.DocumentID]
			inNow := exists && w.query.Matches(doc)

			var kind store.ChangeKind
			switch {
			case !inBefore && inNow:
				kind = store.ChangeAdded
			case inBefore && inNow:
				kind = store.ChangeModified
			case inBefore && !inNow:
				kind = store.ChangeRemoved
			default:
				continue
			}

			if inNow {
				w.members[op.DocumentID] = true
			} else {
				delete(w.members, op.DocumentID)
			}

			var payload store.Document
			if exists {
				payload = doc.Clone()
			}
			events = append(events, store.ChangeEvent{
				Kind:       kind,
				EntityID:   op.DocumentID,
				Doc:        payload,
				ObservedAt: now,
				Origin:     store.OriginServer,
			})
		}
		if len(events) > 0 {
			deliveries = append(deliveries, delivery{w: w, events: events})
		}
	}
	s.mu.Unlock()

	// One onChange invocation per watcher per commit, outside the lock.
	for _, d := range deliveries {
		d.w.onChange(d.events)
	}

	return nil
}

func (s *Store) SetNetworkEnabled(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.networkEnabled = enabled
	return nil
}

// NetworkEnabled reports the current network flag.
func (s *Store) NetworkEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.networkEnabled
}

func (s *Store) ClearLocalCache(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheClears++
	return nil
}

func (s *Store) ensureCollection(name string) map[string]store.Document {
	coll, ok := s.collections[name]
	if !ok {
		coll = make(map[string]store.Document)
		s.collections[name] = coll
	}
	return coll
}

var _ store.Store = (*Store)(nil)
