package appevent

import (
	"context"
	"time"

	"github.com/cuemby/appevent/pkg/errcode"
	"github.com/cuemby/appevent/pkg/log"
	"github.com/cuemby/appevent/pkg/metrics"
	"github.com/cuemby/appevent/pkg/types"
	"github.com/cuemby/appevent/pkg/validate"
)

// Write validates ev, stores it and routes it to the matching watchers.
// On any failure nothing is stored or delivered. The caller's event is not
// modified.
func (m *Manager) Write(ctx context.Context, ev *types.Event) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	timer := metrics.NewTimer()
	if err := m.write(ev); err != nil {
		metrics.WriteFailures.WithLabelValues(errcode.CodeOf(err)).Inc()
		return err
	}
	timer.ObserveDuration(metrics.WriteDuration)
	metrics.EventsWritten.WithLabelValues(ev.Domain).Inc()
	return nil
}

// WriteParams writes an event whose parameters are loosely typed. The
// disable flag, domain and name are checked before the parameters so the
// reported error follows the validation order of Write.
func (m *Manager) WriteParams(ctx context.Context, domain, name string, eventType types.EventType, params map[string]any) error {
	if err := m.precheck(domain, name, eventType); err != nil {
		metrics.WriteFailures.WithLabelValues(errcode.CodeOf(err)).Inc()
		return err
	}
	values, err := validate.Params(params)
	if err != nil {
		rejected(domain, name, err)
		metrics.WriteFailures.WithLabelValues(errcode.CodeOf(err)).Inc()
		return err
	}
	return m.Write(ctx, &types.Event{
		Domain: domain,
		Name:   name,
		Type:   eventType,
		Params: values,
	})
}

// WriteLegacy is the older write call shape. It takes the event name, type
// and parameters as untyped arguments, writes to LegacyDomain and reports
// the legacy numeric result: 0 on success, a negative code for argument
// errors and a positive code for payload errors.
func (m *Manager) WriteLegacy(ctx context.Context, name, eventType, params any) int {
	eventName, ok := name.(string)
	if !ok {
		return errcode.LegacyInvalidArgType
	}
	t, ok := legacyEventType(eventType)
	if !ok {
		return errcode.LegacyInvalidArgType
	}
	if params == nil {
		return errcode.LegacyInvalidArgCount
	}
	raw, ok := params.(map[string]any)
	if !ok {
		return errcode.LegacyInvalidArgType
	}
	return errcode.LegacyOf(m.WriteParams(ctx, LegacyDomain, eventName, t, raw))
}

func legacyEventType(raw any) (types.EventType, bool) {
	var t types.EventType
	switch v := raw.(type) {
	case types.EventType:
		t = v
	case int:
		t = types.EventType(v)
	case int64:
		t = types.EventType(v)
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		t = types.EventType(v)
	default:
		return 0, false
	}
	return t, t.Valid()
}

func (m *Manager) precheck(domain, name string, eventType types.EventType) error {
	if m.cfg.Disabled() {
		return errcode.New(errcode.Disabled)
	}
	if err := validate.EventType(eventType); err != nil {
		return err
	}
	if err := validate.Domain(domain); err != nil {
		return err
	}
	return validate.EventName(name)
}

func (m *Manager) write(ev *types.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errcode.Wrap(errcode.Internal, ErrClosed)
	}
	if m.cfg.Disabled() {
		return errcode.New(errcode.Disabled)
	}
	if err := validate.Event(ev); err != nil {
		if ev != nil {
			rejected(ev.Domain, ev.Name, err)
		}
		return err
	}

	params, err := m.customParams(ev.Domain, ev.Name)
	if err != nil {
		return m.storeFailure("read custom params", err)
	}
	for k, v := range ev.Params {
		params[k] = v
	}

	stamped := &types.Event{
		Domain:    ev.Domain,
		Name:      ev.Name,
		Type:      ev.Type,
		Params:    params,
		Time:      ev.Time,
		RunningID: m.runningID,
	}
	if stamped.Time.IsZero() {
		stamped.Time = time.Now()
	}

	id, evicted, err := m.store.AppendEvent(stamped)
	if err != nil {
		return m.storeFailure("append event", err)
	}
	m.storeRecovered()
	stamped.ID = id
	if evicted > 0 {
		metrics.EventsEvicted.Add(float64(evicted))
		m.logger.Debug().Int("evicted", evicted).Msg("Evicted events over quota")
	}

	m.watchers.Dispatch(stamped)
	return nil
}

// customParams merges the domain-wide custom parameters with those set for
// the event name; the latter win.
func (m *Manager) customParams(domain, name string) (map[string]types.Value, error) {
	params, err := m.store.GetCustomParams(m.runningID, domain, "")
	if err != nil {
		return nil, err
	}
	named, err := m.store.GetCustomParams(m.runningID, domain, name)
	if err != nil {
		return nil, err
	}
	for k, v := range named {
		params[k] = v
	}
	return params, nil
}

// rejected logs a write refused by validation
func rejected(domain, name string, err error) {
	logger := log.WithDomain("appevent", domain)
	logger.Debug().Err(err).Str("name", name).Msg("Rejected event")
}
