package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/noaa-ingest/internal/domain"
	"github.com/couchcryptid/noaa-ingest/internal/observability"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrUnavailable marks a store that cannot be reached. Stores wrap it
	// around connection failures so the capability can degrade.
	ErrUnavailable = errors.New("store unavailable")
	// ErrDisabled is returned for stores switched off by configuration.
	ErrDisabled = errors.New("store disabled")
)

// Store is one persistence backend.
type Store interface {
	Name() string
	// Connect checks reachability and prepares indexes or buckets.
	Connect(ctx context.Context) error
	// Write upserts one document keyed by its ID.
	Write(ctx context.Context, doc domain.Document) error
}

// State is the availability of a store as last observed.
type State int

const (
	StateUnknown State = iota
	StateAvailable
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateAvailable:
		return "available"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Capability guards a Store with an explicit availability state. The store
// is connected lazily on first use; after a failure it is not contacted
// again until the cooldown has elapsed.
type Capability struct {
	store    Store
	enabled  bool
	cooldown time.Duration
	clock    clockwork.Clock
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	state   State
	retryAt time.Time
}

// NewCapability wraps store. A disabled capability rejects every write.
func NewCapability(store Store, enabled bool, cooldown time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Capability {
	return &Capability{
		store:    store,
		enabled:  enabled,
		cooldown: cooldown,
		clock:    clock,
		metrics:  metrics,
		logger:   logger.With("component", "sink", "store", store.Name()),
	}
}

// Name returns the wrapped store's name.
func (c *Capability) Name() string { return c.store.Name() }

// Enabled reports whether the store is switched on.
func (c *Capability) Enabled() bool { return c.enabled }

// State returns the current availability.
func (c *Capability) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Write stores doc, connecting first if needed. It returns ErrDisabled,
// ErrUnavailable (during cooldown or on connection loss), or the store's
// own error for a rejected document.
func (c *Capability) Write(ctx context.Context, doc domain.Document) error {
	if !c.enabled {
		return ErrDisabled
	}
	if err := c.ensure(ctx); err != nil {
		c.metrics.SinkWrites.WithLabelValues(c.Name(), "unavailable").Inc()
		return err
	}

	err := c.store.Write(ctx, doc)
	switch {
	case err == nil:
		c.metrics.SinkWrites.WithLabelValues(c.Name(), "success").Inc()
		return nil
	case errors.Is(err, ErrUnavailable):
		c.markUnavailable(err)
		c.metrics.SinkWrites.WithLabelValues(c.Name(), "unavailable").Inc()
	default:
		c.metrics.SinkWrites.WithLabelValues(c.Name(), "failure").Inc()
	}
	return fmt.Errorf("%s write %s: %w", c.Name(), doc.ID, err)
}

// Probe attempts a connection now if the store is not known to be
// available, ignoring the cooldown.
func (c *Capability) Probe(ctx context.Context) State {
	if !c.enabled {
		return StateUnavailable
	}
	c.mu.Lock()
	c.retryAt = time.Time{}
	c.mu.Unlock()
	_ = c.ensure(ctx)
	return c.State()
}

func (c *Capability) ensure(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateAvailable:
		return nil
	case StateUnavailable:
		if c.clock.Now().Before(c.retryAt) {
			return fmt.Errorf("%s: %w (retry after %s)", c.store.Name(), ErrUnavailable, c.retryAt.Format(time.RFC3339))
		}
	}

	if err := c.store.Connect(ctx); err != nil {
		c.setUnavailableLocked(err)
		if errors.Is(err, ErrUnavailable) {
			return err
		}
		return fmt.Errorf("%s: %w: %v", c.store.Name(), ErrUnavailable, err)
	}
	if c.state != StateAvailable {
		c.logger.Info("store available")
	}
	c.state = StateAvailable
	c.metrics.SinkAvailable.WithLabelValues(c.store.Name()).Set(1)
	return nil
}

func (c *Capability) markUnavailable(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setUnavailableLocked(err)
}

func (c *Capability) setUnavailableLocked(err error) {
	if c.state != StateUnavailable {
		c.logger.Warn("store unavailable, degrading", "error", err, "cooldown", c.cooldown)
	}
	c.state = StateUnavailable
	c.retryAt = c.clock.Now().Add(c.cooldown)
	c.metrics.SinkAvailable.WithLabelValues(c.store.Name()).Set(0)
}
