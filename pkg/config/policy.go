package config

import (
	"math"

	"github.com/cuemby/appevent/pkg/errcode"
)

type fieldKind int

const (
	intField fieldKind = iota
	boolField
)

type fieldRule struct {
	kind     fieldKind
	min, max int64
}

func intRange(min, max int64) fieldRule { return fieldRule{kind: intField, min: min, max: max} }

var flag = fieldRule{kind: boolField}

// policySchemas lists the policy blocks understood by ConfigEventPolicy.
// Fields outside a schema are ignored.
var policySchemas = map[string]map[string]fieldRule{
	"mainThreadJankPolicy": {
		"logType":           intRange(0, 2),
		"ignoreStartupTime": intRange(0, math.MaxInt32),
		"sampleInterval":    intRange(MinSampleInterval, MaxSampleInterval),
		"sampleCount":       intRange(1, MaxSampleCount),
		"reportTimesPerApp": intRange(1, MaxReportTimesInApp),
		"autoStopSampling":  flag,
	},
	"cpuUsageHighPolicy": {
		"foregroundLoadThreshold": intRange(0, 100),
		"backgroundLoadThreshold": intRange(0, 100),
		"threadLoadThreshold":     intRange(0, 100),
		"perfLogCaptureCount":     intRange(-1, 100),
		"threadLoadInterval":      intRange(5, 60),
	},
	"appCrashPolicy": {
		"pageSwitchLogEnable":  flag,
		"extendPcLrPrinting":   flag,
		"simplifyVmaPrinting":  flag,
		"logFileCutoffSzBytes": intRange(0, MaxCrashLogCutoff),
	},
	"appFreezePolicy":         {"pageSwitchLogEnable": flag},
	"addressSanitizerPolicy":  {"pageSwitchLogEnable": flag},
	"resourceOverlimitPolicy": {"pageSwitchLogEnable": flag},
}

// ConfigEventPolicy validates every block of policy before applying any of
// them. Fields are merged into the stored policy of their block; unknown
// blocks are skipped.
func (m *Manager) ConfigEventPolicy(policy map[string]any) error {
	if policy == nil {
		return errcode.Param("policy", "EventPolicy")
	}

	staged := make(map[string]map[string]any)
	for block, raw := range policy {
		schema, known := policySchemas[block]
		if !known {
			m.logger.Debug().Str("policy", block).Msg("Skipping unknown policy block")
			continue
		}
		fields, ok := raw.(map[string]any)
		if !ok {
			return errcode.New(errcode.InvalidEventPolicy)
		}
		values, err := checkBlock(schema, fields)
		if err != nil {
			m.logger.Warn().Str("policy", block).Msg("Rejected event policy")
			return err
		}
		if len(values) > 0 {
			staged[block] = values
		}
	}

	m.mu.Lock()
	for block, values := range staged {
		stored, ok := m.policies[block]
		if !ok {
			stored = make(map[string]any, len(values))
			m.policies[block] = stored
		}
		for k, v := range values {
			stored[k] = v
		}
	}
	m.mu.Unlock()

	if len(staged) > 0 {
		m.logger.Info().Int("blocks", len(staged)).Msg("Event policy applied")
	}
	return nil
}

// Policy returns a copy of the stored fields of one policy block
func (m *Manager) Policy(block string) (map[string]any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.policies[block]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(stored))
	for k, v := range stored {
		out[k] = v
	}
	return out, true
}

func checkBlock(schema map[string]fieldRule, fields map[string]any) (map[string]any, error) {
	values := make(map[string]any, len(fields))
	for key, raw := range fields {
		rule, known := schema[key]
		if !known {
			continue
		}
		switch rule.kind {
		case boolField:
			b, ok := raw.(bool)
			if !ok {
				return nil, errcode.New(errcode.InvalidEventPolicy)
			}
			values[key] = b
		case intField:
			n, ok := integral(raw)
			if !ok || n < rule.min || n > rule.max {
				return nil, errcode.New(errcode.InvalidEventPolicy)
			}
			values[key] = n
		}
	}
	return values, nil
}

// integral accepts Go integers and floats without a fractional part.
func integral(raw any) (int64, bool) {
	if f, ok := raw.(float64); ok && f != math.Trunc(f) {
		return 0, false
	}
	return numberValue(raw)
}
