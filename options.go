package syncengine

import (
	"time"

	"github.com/google/uuid"

	"github.com/curalink/syncengine/deadletter"
	"github.com/curalink/syncengine/logging"
	"github.com/curalink/syncengine/queue"
)

type engineConfig struct {
	batchSize     int
	maxRetries    int
	drainInterval time.Duration
	drainTimeout  time.Duration
	backoff       queue.BackoffStrategy
	clock         func() time.Time
	idGen         func() string
	log           *logging.Logger
	dead          deadletter.Store
}

func defaultConfig() engineConfig {
	return engineConfig{
		clock: time.Now,
		idGen: uuid.NewString,
		log:   logging.Default(),
		dead:  deadletter.Discard{},
	}
}

// Option customizes an Engine.
type Option func(*engineConfig)

// WithBatchSize caps how many queued mutations one commit carries.
func WithBatchSize(n int) Option {
	return func(c *engineConfig) { c.batchSize = n }
}

// WithMaxRetries sets the per-mutation retry budget before an item is
// dropped to the dead-letter store.
func WithMaxRetries(n int) Option {
	return func(c *engineConfig) { c.maxRetries = n }
}

// WithDrainInterval sets the safety-net drain timer period.
func WithDrainInterval(d time.Duration) Option {
	return func(c *engineConfig) { c.drainInterval = d }
}

// WithDrainTimeout bounds a single drain pass.
func WithDrainTimeout(d time.Duration) Option {
	return func(c *engineConfig) { c.drainTimeout = d }
}

// WithBackoff swaps the retry backoff strategy.
func WithBackoff(b queue.BackoffStrategy) Option {
	return func(c *engineConfig) { c.backoff = b }
}

// WithClock injects a time source. Tests use this to drive backoff windows.
func WithClock(now func() time.Time) Option {
	return func(c *engineConfig) { c.clock = now }
}

// WithIDGenerator replaces the default UUID generator for subscription and
// queue-item ids.
func WithIDGenerator(gen func() string) Option {
	return func(c *engineConfig) { c.idGen = gen }
}

// WithLogger sets the structured logger shared by all components.
func WithLogger(log *logging.Logger) Option {
	return func(c *engineConfig) { c.log = log }
}

// WithDeadLetter persists dropped mutations instead of discarding them.
func WithDeadLetter(d deadletter.Store) Option {
	return func(c *engineConfig) { c.dead = d }
}
