package appevent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cuemby/appevent/pkg/bundle"
	"github.com/cuemby/appevent/pkg/config"
	"github.com/cuemby/appevent/pkg/errcode"
	"github.com/cuemby/appevent/pkg/log"
	"github.com/cuemby/appevent/pkg/metrics"
	"github.com/cuemby/appevent/pkg/processor"
	"github.com/cuemby/appevent/pkg/storage"
	"github.com/cuemby/appevent/pkg/types"
	"github.com/cuemby/appevent/pkg/watcher"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LegacyDomain is the domain given to events written through WriteLegacy,
// whose call shape has no domain argument.
const LegacyDomain = "default"

// ErrClosed is the cause of errors returned after Close
var ErrClosed = errors.New("event manager closed")

// Options holds configuration for creating a Manager
type Options struct {
	DataDir     string
	BundlePath  string        // optional overlay for the static bundles
	TimeoutUnit time.Duration // length of one watcher timeout step
	MaxStorage  string        // initial quota in the modern grammar, empty for unlimited
}

// Manager is the process-wide event engine: it validates and stores
// written events, routes them to watchers, and owns the processor registry
// and runtime configuration.
type Manager struct {
	runningID string

	// mu serializes writes against ClearData and Close
	mu       sync.Mutex
	closed   bool
	degraded bool // last store operation failed

	store      storage.Store
	cfg        *config.Manager
	watchers   *watcher.Registry
	processors *processor.Registry
	catalog    *bundle.Catalog

	logger zerolog.Logger
}

// New opens the store under opts.DataDir and creates a Manager with a fresh
// running id.
func New(opts Options) (*Manager, error) {
	if opts.DataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	catalog, err := bundle.Load(opts.BundlePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config bundles: %w", err)
	}

	store, err := storage.NewBoltStore(opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	processors, err := processor.NewRegistry(store, catalog)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load processors: %w", err)
	}

	m := &Manager{
		runningID:  uuid.NewString(),
		store:      store,
		cfg:        config.NewManager(store),
		watchers:   watcher.NewRegistry(opts.TimeoutUnit),
		processors: processors,
		catalog:    catalog,
		logger:     log.WithComponent("appevent"),
	}

	if opts.MaxStorage != "" {
		if err := m.cfg.Configure(config.Options{MaxStorage: &opts.MaxStorage}); err != nil {
			m.Close()
			return nil, fmt.Errorf("failed to apply storage quota: %w", err)
		}
	}

	metrics.RegisterComponent(metrics.ComponentStorage, true, "")
	metrics.RegisterComponent(metrics.ComponentDispatch, true, "")

	m.logger.Info().
		Str("data_dir", opts.DataDir).
		Str("running_id", m.runningID).
		Int("processors", processors.Len()).
		Msg("Event manager started")
	return m, nil
}

// RunningID identifies this Manager instance on events and custom parameters
func (m *Manager) RunningID() string {
	return m.runningID
}

// Config returns the runtime configuration
func (m *Manager) Config() *config.Manager {
	return m.cfg
}

// Catalog returns the static config bundles
func (m *Manager) Catalog() *bundle.Catalog {
	return m.catalog
}

// Close stops watcher delivery and closes the store. Further calls return
// errors wrapping ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	m.watchers.Close()
	metrics.UnregisterComponent(metrics.ComponentDispatch)
	metrics.UnregisterComponent(metrics.ComponentStorage)

	if err := m.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	m.logger.Info().Msg("Event manager stopped")
	return nil
}

// ClearData removes every stored event, user id, user property and custom
// parameter, and resets watcher buffers and package ids. Watcher and
// processor registrations are kept.
func (m *Manager) ClearData() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errcode.Wrap(errcode.Internal, ErrClosed)
	}

	if err := m.store.ClearEvents(); err != nil {
		return m.storeFailure("clear events", err)
	}
	if err := m.cfg.ClearUserInfo(); err != nil {
		return err
	}
	if err := m.store.ClearCustomParams(); err != nil {
		return m.storeFailure("clear custom params", err)
	}
	m.watchers.Clear()
	metrics.StoredEvents.Set(0)

	m.logger.Info().Msg("Event data cleared")
	return nil
}

// storeFailure marks storage unhealthy and wraps err. Must be called with
// m.mu held.
func (m *Manager) storeFailure(op string, err error) error {
	m.degraded = true
	metrics.UpdateComponent(metrics.ComponentStorage, false, err.Error())
	m.logger.Error().Err(err).Str("op", op).Msg("Store operation failed")
	return errcode.Wrap(errcode.Internal, fmt.Errorf("failed to %s: %w", op, err))
}

// storeRecovered clears the unhealthy mark. Must be called with m.mu held.
func (m *Manager) storeRecovered() {
	if m.degraded {
		m.degraded = false
		metrics.UpdateComponent(metrics.ComponentStorage, true, "")
	}
}

// Events returns every stored event in write order
func (m *Manager) Events() ([]*types.Event, error) {
	evs, err := m.store.ListEvents()
	if err != nil {
		return nil, errcode.Wrap(errcode.Internal, err)
	}
	return evs, nil
}

// CountEvents returns the number of stored events
func (m *Manager) CountEvents() (int, error) {
	return m.store.CountEvents()
}

// WatcherCount returns the number of registered watchers
func (m *Manager) WatcherCount() int {
	return m.watchers.Len()
}

// ProcessorCount returns the number of registered processors
func (m *Manager) ProcessorCount() int {
	return m.processors.Len()
}

var _ metrics.Source = (*Manager)(nil)

// checkContext returns ctx's error as is, so callers can tell cancellation
// apart from validation failures.
func checkContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
