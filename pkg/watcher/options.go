package watcher

import (
	"encoding/json"
	"math"

	"github.com/cuemby/appevent/pkg/errcode"
	"github.com/cuemby/appevent/pkg/types"
)

// ParseSpec builds a Spec from a loosely typed option bag such as a decoded
// JSON or YAML document. Recognized keys are name, triggerCondition
// {row,size,timeout}, appEventFilters [{domain,eventTypes,names}], onTrigger
// and onReceive; unknown keys are ignored. A present key with a value of the
// wrong type, nil included, is a "401" error naming that key. Value checks
// (name pattern, negative thresholds) are left to Registry.Add.
func ParseSpec(opts map[string]any) (Spec, error) {
	var spec Spec

	raw, ok := opts["name"]
	if !ok {
		return spec, errcode.Mandatory("name")
	}
	if spec.Name, ok = raw.(string); !ok {
		return spec, errcode.Param("name", "string")
	}

	if raw, ok := opts["triggerCondition"]; ok {
		cond, err := parseCondition(raw)
		if err != nil {
			return spec, err
		}
		spec.Condition = cond
	}

	if raw, ok := opts["appEventFilters"]; ok {
		filters, err := parseFilters(raw)
		if err != nil {
			return spec, err
		}
		spec.Filters = filters
	}

	if raw, ok := opts["onTrigger"]; ok {
		switch fn := raw.(type) {
		case TriggerFunc:
			spec.OnTrigger = fn
		case func(int, int, *Holder):
			spec.OnTrigger = fn
		default:
			return spec, errcode.Param("onTrigger", "function")
		}
	}

	if raw, ok := opts["onReceive"]; ok {
		switch fn := raw.(type) {
		case ReceiveFunc:
			spec.OnReceive = fn
		case func(string, []EventGroup):
			spec.OnReceive = fn
		default:
			return spec, errcode.Param("onReceive", "function")
		}
	}

	return spec, nil
}

func parseCondition(raw any) (Condition, error) {
	var cond Condition
	m, ok := raw.(map[string]any)
	if !ok {
		return cond, errcode.Param("triggerCondition", "TriggerCondition")
	}
	fields := []struct {
		key string
		dst *int
	}{
		{"row", &cond.Row},
		{"size", &cond.Size},
		{"timeout", &cond.Timeout},
	}
	for _, f := range fields {
		v, present := m[f.key]
		if !present {
			continue
		}
		n, ok := intValue(v)
		if !ok {
			return cond, errcode.Param(f.key, "number")
		}
		*f.dst = n
	}
	return cond, nil
}

func parseFilters(raw any) ([]Filter, error) {
	invalid := errcode.Param("appEventFilters", "AppEventFilter[]")

	var items []map[string]any
	switch list := raw.(type) {
	case []map[string]any:
		items = list
	case []any:
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, invalid
			}
			items = append(items, m)
		}
	default:
		return nil, invalid
	}

	filters := make([]Filter, 0, len(items))
	for _, m := range items {
		f, err := parseFilter(m)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}

func parseFilter(m map[string]any) (Filter, error) {
	var f Filter

	raw, ok := m["domain"]
	if !ok {
		return f, errcode.Mandatory("domain")
	}
	if f.Domain, ok = raw.(string); !ok {
		return f, errcode.Param("domain", "string")
	}

	if raw, ok := m["eventTypes"]; ok {
		invalid := errcode.Param("eventTypes", "EventType[]")
		list, ok := listOf(raw)
		if !ok {
			return f, invalid
		}
		for _, item := range list {
			n, ok := intValue(item)
			if !ok || !types.EventType(n).Valid() {
				return f, invalid
			}
			f.EventTypes = append(f.EventTypes, types.EventType(n))
		}
	}

	if raw, ok := m["names"]; ok {
		invalid := errcode.Param("names", "string[]")
		list, ok := listOf(raw)
		if !ok {
			return f, invalid
		}
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return f, invalid
			}
			f.Names = append(f.Names, s)
		}
	}

	return f, nil
}

func listOf(raw any) ([]any, bool) {
	switch list := raw.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(list))
		for i, n := range list {
			out[i] = n
		}
		return out, true
	case []types.EventType:
		out := make([]any, len(list))
		for i, t := range list {
			out[i] = int(t)
		}
		return out, true
	}
	return nil, false
}

// intValue accepts any numeric type. Fractions are truncated toward zero.
func intValue(raw any) (int, bool) {
	switch n := raw.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case types.EventType:
		return int(n), true
	case float32:
		return floatInt(float64(n))
	case float64:
		return floatInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatInt(f)
	}
	return 0, false
}

func floatInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}
