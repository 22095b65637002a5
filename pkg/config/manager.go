package config

import (
	"sync"
	"sync/atomic"

	"github.com/cuemby/appevent/pkg/errcode"
	"github.com/cuemby/appevent/pkg/log"
	"github.com/cuemby/appevent/pkg/metrics"
	"github.com/cuemby/appevent/pkg/storage"
	"github.com/cuemby/appevent/pkg/validate"
	"github.com/rs/zerolog"
)

// Manager holds the process-wide switches of the engine: the disable flag,
// the storage quota, per-event configurations and policies, and the user
// ids and properties attached to reports.
type Manager struct {
	store    storage.Store
	disabled atomic.Bool
	quota    atomic.Int64

	mu           sync.RWMutex
	eventConfigs map[string]map[string]string
	policies     map[string]map[string]any

	logger zerolog.Logger
}

// NewManager creates a manager whose quota and user info live in store
func NewManager(store storage.Store) *Manager {
	return &Manager{
		store:        store,
		eventConfigs: make(map[string]map[string]string),
		policies:     make(map[string]map[string]any),
		logger:       log.WithComponent("config"),
	}
}

// Disabled reports whether writes are currently refused
func (m *Manager) Disabled() bool {
	return m.disabled.Load()
}

// Quota returns the storage quota in bytes, 0 meaning unlimited
func (m *Manager) Quota() int64 {
	return m.quota.Load()
}

// Configure applies opts. A malformed quota fails with InvalidMaxStorage and
// changes nothing.
func (m *Manager) Configure(opts Options) error {
	p, err := opts.parse(validate.MaxStorage)
	if err != nil {
		return err
	}
	return m.apply(p)
}

// ConfigureLegacy applies an option bag with the older rules and reports
// success instead of returning an error.
func (m *Manager) ConfigureLegacy(bag map[string]any) bool {
	p, ok := parseLegacyOptions(bag)
	if !ok {
		m.logger.Warn().Msg("Rejected legacy configure options")
		return false
	}
	return m.apply(p) == nil
}

func (m *Manager) apply(p parsedOptions) error {
	if p.quota != nil {
		evicted, err := m.store.SetQuota(*p.quota)
		if err != nil {
			m.logger.Error().Err(err).Int64("quota", *p.quota).Msg("Failed to apply storage quota")
			return errcode.Wrap(errcode.Internal, err)
		}
		m.quota.Store(*p.quota)
		metrics.EventsEvicted.Add(float64(evicted))
		m.logger.Info().Int64("quota", *p.quota).Int("evicted", evicted).Msg("Storage quota set")
	}
	if p.disable != nil {
		m.disabled.Store(*p.disable)
		m.logger.Info().Bool("disable", *p.disable).Msg("Event writing switch changed")
	}
	return nil
}
