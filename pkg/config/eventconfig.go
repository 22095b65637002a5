package config

import (
	"math"
	"strconv"

	"github.com/cuemby/appevent/pkg/errcode"
)

// Event kinds accepted by SetEventConfig.
const (
	EventMainThreadJank    = "MAIN_THREAD_JANK"
	EventAppCrash          = "APP_CRASH"
	EventResourceOverlimit = "RESOURCE_OVERLIMIT"
)

// Bounds for the MAIN_THREAD_JANK sampling configuration.
const (
	MinSampleInterval   = 100 // ms
	MaxSampleInterval   = 500
	MaxSampleCount      = 100
	MaxReportTimesInApp = 5

	// MaxCrashLogCutoff bounds APP_CRASH log_file_cutoff_sz_bytes.
	MaxCrashLogCutoff = 5 * 1024 * 1024
)

const jankLogTypeStack = "1"

var jankStackKeys = []string{
	"log_type",
	"ignore_startup_time",
	"sample_interval",
	"sample_count",
	"report_times_per_app",
}

// SetEventConfig validates cfg against the schema of the named event kind
// and stores it in place of any earlier configuration. Any violation
// rejects the whole call with InvalidEventConfig.
func (m *Manager) SetEventConfig(name string, cfg map[string]any) error {
	if cfg == nil {
		return errcode.Param("value", "object")
	}

	var (
		parsed map[string]string
		ok     bool
	)
	switch name {
	case EventMainThreadJank:
		parsed, ok = mainThreadJankConfig(cfg)
	case EventAppCrash:
		parsed, ok = appCrashConfig(cfg)
	case EventResourceOverlimit:
		parsed, ok = resourceOverlimitConfig(cfg)
	}
	if !ok {
		m.logger.Warn().Str("event", name).Int("keys", len(cfg)).Msg("Rejected event config")
		return errcode.New(errcode.InvalidEventConfig)
	}

	m.mu.Lock()
	m.eventConfigs[name] = parsed
	m.mu.Unlock()

	m.logger.Info().Str("event", name).Int("keys", len(parsed)).Msg("Event config set")
	return nil
}

// EventConfig returns a copy of the configuration stored for name
func (m *Manager) EventConfig(name string) (map[string]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg, ok := m.eventConfigs[name]
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	return out, true
}

// mainThreadJankConfig accepts log_type 0 or 2 alone, or log_type 1 with
// exactly the four sampling keys. Every value is a decimal string.
func mainThreadJankConfig(cfg map[string]any) (map[string]string, bool) {
	values, ok := stringValues(cfg)
	if !ok {
		return nil, false
	}

	switch values["log_type"] {
	case "0", "2":
		return values, len(values) == 1
	case jankLogTypeStack:
	default:
		return nil, false
	}

	if len(values) != len(jankStackKeys) {
		return nil, false
	}
	bounds := map[string][2]int64{
		"ignore_startup_time":  {0, 1<<31 - 1},
		"sample_interval":      {MinSampleInterval, MaxSampleInterval},
		"sample_count":         {1, MaxSampleCount},
		"report_times_per_app": {1, MaxReportTimesInApp},
	}
	for _, key := range jankStackKeys[1:] {
		raw, present := values[key]
		if !present {
			return nil, false
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < bounds[key][0] || n > bounds[key][1] {
			return nil, false
		}
	}
	return values, true
}

// appCrashConfig ignores unknown keys but needs at least one known key, and
// every known key must hold a valid value.
func appCrashConfig(cfg map[string]any) (map[string]string, bool) {
	out := make(map[string]string)
	for key, raw := range cfg {
		switch key {
		case "extend_pc_lr_printing", "simplify_vma_printing":
			b, ok := raw.(bool)
			if !ok {
				return nil, false
			}
			out[key] = strconv.FormatBool(b)
		case "log_file_cutoff_sz_bytes":
			n, ok := numberValue(raw)
			if !ok || n < 0 || n > MaxCrashLogCutoff {
				return nil, false
			}
			out[key] = strconv.FormatInt(n, 10)
		}
	}
	return out, len(out) > 0
}

func resourceOverlimitConfig(cfg map[string]any) (map[string]string, bool) {
	values, ok := stringValues(cfg)
	if !ok || len(values) == 0 {
		return nil, false
	}
	for key, v := range values {
		switch key {
		case "js_heap_logtype":
			if v != "event" && v != "event_rawheap" {
				return nil, false
			}
		case "pageSwitchLogEnable":
			if v != "true" && v != "false" {
				return nil, false
			}
		default:
			return nil, false
		}
	}
	return values, true
}

func stringValues(cfg map[string]any) (map[string]string, bool) {
	out := make(map[string]string, len(cfg))
	for k, raw := range cfg {
		s, ok := raw.(string)
		if !ok {
			return nil, false
		}
		out[k] = s
	}
	return out, true
}

// numberValue accepts Go numeric types; fractions are truncated.
func numberValue(raw any) (int64, bool) {
	switch n := raw.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if math.IsNaN(n) || n > 1<<62 || n < -(1<<62) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}
