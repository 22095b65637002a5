package processor

import (
	"encoding/json"
	"math"

	"github.com/cuemby/appevent/pkg/errcode"
	"github.com/cuemby/appevent/pkg/log"
	"github.com/cuemby/appevent/pkg/types"
)

// ParseProcessor builds a Processor from a loosely typed option bag such as a
// decoded JSON document. The bag itself must be a mapping and name, when
// present, must be a string; those are "401" errors. Any other field holding
// a value of the wrong type is dropped with a warning.
func ParseProcessor(raw any) (types.Processor, error) {
	var p types.Processor

	opts, ok := raw.(map[string]any)
	if !ok {
		return p, errcode.Param("config", "Processor")
	}
	if v, present := opts["name"]; present {
		if p.Name, ok = v.(string); !ok {
			return p, errcode.Param("name", "string")
		}
	}

	logger := log.WithComponent("processor").With().Str("processor", p.Name).Logger()
	drop := func(key string) {
		logger.Warn().Str("field", key).Msg("Dropping field of the wrong type")
	}

	texts := []struct {
		key string
		dst *string
	}{
		{"routeInfo", &p.RouteInfo},
		{"appId", &p.AppID},
		{"configName", &p.ConfigName},
	}
	for _, f := range texts {
		if v, present := opts[f.key]; present {
			if s, ok := v.(string); ok {
				*f.dst = s
			} else {
				drop(f.key)
			}
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"debugMode", &p.DebugMode},
		{"onStartReport", &p.OnStartReport},
		{"onBackgroundReport", &p.OnBackgroundReport},
	}
	for _, f := range bools {
		if v, present := opts[f.key]; present {
			if b, ok := v.(bool); ok {
				*f.dst = b
			} else {
				drop(f.key)
			}
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"periodReport", &p.PeriodReport},
		{"batchReport", &p.BatchReport},
		{"configId", &p.ConfigID},
	}
	for _, f := range ints {
		if v, present := opts[f.key]; present {
			if n, ok := number(v); ok {
				*f.dst = n
			} else {
				drop(f.key)
			}
		}
	}

	if v, present := opts["userIds"]; present {
		if p.UserIDs, ok = stringList(v); !ok {
			drop("userIds")
		}
	}
	if v, present := opts["userProperties"]; present {
		if p.UserProperties, ok = stringList(v); !ok {
			drop("userProperties")
		}
	}
	if v, present := opts["eventConfigs"]; present {
		if p.EventConfigs, ok = eventConfigs(v); !ok {
			drop("eventConfigs")
		}
	}
	if v, present := opts["customConfigs"]; present {
		if p.CustomConfigs, ok = stringMap(v); !ok {
			drop("customConfigs")
		}
	}

	return p, nil
}

func number(raw any) (int, bool) {
	switch n := raw.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return number(f)
	}
	return 0, false
}

func stringList(raw any) ([]string, bool) {
	switch list := raw.(type) {
	case []string:
		return append([]string(nil), list...), true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// eventConfigs rejects the whole list when any element is malformed.
func eventConfigs(raw any) ([]types.EventConfig, bool) {
	list, ok := raw.([]any)
	if !ok {
		if typed, ok := raw.([]map[string]any); ok {
			for _, m := range typed {
				list = append(list, m)
			}
		} else {
			return nil, false
		}
	}

	out := make([]types.EventConfig, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		var ec types.EventConfig
		if v, present := m["domain"]; present {
			if ec.Domain, ok = v.(string); !ok {
				return nil, false
			}
		}
		if v, present := m["name"]; present {
			if ec.Name, ok = v.(string); !ok {
				return nil, false
			}
		}
		if v, present := m["isRealTime"]; present {
			if ec.IsRealTime, ok = v.(bool); !ok {
				return nil, false
			}
		}
		out = append(out, ec)
	}
	return out, true
}

// stringMap keeps only string values; other entries are left out.
func stringMap(raw any) (map[string]string, bool) {
	switch m := raw.(type) {
	case map[string]string:
		out := make(map[string]string, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, true
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, v := range m {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
		return out, true
	}
	return nil, false
}
