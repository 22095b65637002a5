package appevent

import (
	"context"
	"errors"

	"github.com/cuemby/appevent/pkg/config"
	"github.com/cuemby/appevent/pkg/errcode"
	"github.com/cuemby/appevent/pkg/processor"
	"github.com/cuemby/appevent/pkg/storage"
	"github.com/cuemby/appevent/pkg/types"
	"github.com/cuemby/appevent/pkg/validate"
	"github.com/cuemby/appevent/pkg/watcher"
)

// AddWatcher registers spec, replacing any watcher of the same name
func (m *Manager) AddWatcher(spec watcher.Spec) (*watcher.Holder, error) {
	return m.watchers.Add(spec)
}

// AddWatcherOptions registers a watcher described by an option bag
func (m *Manager) AddWatcherOptions(opts map[string]any) (*watcher.Holder, error) {
	spec, err := watcher.ParseSpec(opts)
	if err != nil {
		return nil, err
	}
	return m.watchers.Add(spec)
}

// RemoveWatcher unregisters the named watcher. Unknown names are ignored.
func (m *Manager) RemoveWatcher(name string) {
	m.watchers.Remove(name)
}

// NewPackageHolder returns a holder over the named watcher's buffer
func (m *Manager) NewPackageHolder(name string) *watcher.Holder {
	return m.watchers.Lookup(name)
}

// Watchers returns the registered watcher names
func (m *Manager) Watchers() []string {
	return m.watchers.Names()
}

// Wait blocks until the watcher callbacks queued so far have run. It must
// not be called from a callback.
func (m *Manager) Wait() {
	m.watchers.Wait()
}

func (m *Manager) AddProcessor(p types.Processor) (int64, error) {
	return m.processors.Add(p)
}

// AddProcessorOptions registers a processor described by an option bag
func (m *Manager) AddProcessorOptions(raw any) (int64, error) {
	p, err := processor.ParseProcessor(raw)
	if err != nil {
		return 0, err
	}
	return m.processors.Add(p)
}

func (m *Manager) RemoveProcessor(id int64) error {
	return m.processors.Remove(id)
}

// AddProcessorFromConfig registers a processor built from a static bundle.
// An empty configName selects the default bundle.
func (m *Manager) AddProcessorFromConfig(ctx context.Context, name, configName string) (int64, error) {
	return m.processors.AddFromConfig(ctx, name, configName)
}

// Processors returns the registered processors ordered by id
func (m *Manager) Processors() []types.ProcessorRecord {
	return m.processors.List()
}

func (m *Manager) SetUserID(name, value string) error {
	return m.cfg.SetUserID(name, value)
}

func (m *Manager) GetUserID(name string) (string, error) {
	return m.cfg.GetUserID(name)
}

func (m *Manager) SetUserProperty(name, value string) error {
	return m.cfg.SetUserProperty(name, value)
}

func (m *Manager) GetUserProperty(name string) (string, error) {
	return m.cfg.GetUserProperty(name)
}

// Configure applies typed runtime options
func (m *Manager) Configure(opts config.Options) error {
	return m.cfg.Configure(opts)
}

// ConfigureOptions applies an option bag with camelCase or snake_case keys
func (m *Manager) ConfigureOptions(bag map[string]any) error {
	opts, err := config.ParseOptions(bag)
	if err != nil {
		return err
	}
	return m.cfg.Configure(opts)
}

// ConfigureLegacy applies an option bag with the older rules
func (m *Manager) ConfigureLegacy(bag map[string]any) bool {
	return m.cfg.ConfigureLegacy(bag)
}

// SetEventConfig stores the configuration of a system event kind and
// returns 0 on success.
func (m *Manager) SetEventConfig(ctx context.Context, name string, cfg map[string]any) (int, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	if err := m.cfg.SetEventConfig(name, cfg); err != nil {
		return 0, err
	}
	return 0, nil
}

// ConfigEventPolicy applies every block of policy, or none of them.
func (m *Manager) ConfigEventPolicy(ctx context.Context, policy map[string]any) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	return m.cfg.ConfigEventPolicy(policy)
}

// SetEventParam attaches params to the events of domain written later by
// this Manager. An empty name applies them to every event of the domain;
// parameters set for a name take precedence. A (domain, name) pair holds at
// most validate.MaxCustomParamsPerRecord distinct keys.
func (m *Manager) SetEventParam(ctx context.Context, params map[string]any, domain, name string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if params == nil {
		return errcode.Param("params", "object")
	}
	if err := validate.Domain(domain); err != nil {
		return err
	}
	if name != "" {
		if err := validate.EventName(name); err != nil {
			return err
		}
	}
	values, err := validate.CustomParams(params)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errcode.Wrap(errcode.Internal, ErrClosed)
	}
	err = m.store.UpdateCustomParams(m.runningID, domain, name, values, validate.MaxCustomParamsPerRecord)
	if errors.Is(err, storage.ErrTooManyCustomParams) {
		return errcode.New(errcode.InvalidCustomParamNum)
	}
	if err != nil {
		return m.storeFailure("update custom params", err)
	}
	m.storeRecovered()

	m.logger.Debug().Str("domain", domain).Str("name", name).Int("params", len(values)).Msg("Custom params set")
	return nil
}
