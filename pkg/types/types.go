package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventType classifies an event
type EventType int

const (
	EventTypeFault     EventType = 1
	EventTypeStatistic EventType = 2
	EventTypeSecurity  EventType = 3
	EventTypeBehavior  EventType = 4
)

// Valid reports whether t is one of the four known event types.
func (t EventType) Valid() bool {
	return t >= EventTypeFault && t <= EventTypeBehavior
}

func (t EventType) String() string {
	switch t {
	case EventTypeFault:
		return "FAULT"
	case EventTypeStatistic:
		return "STATISTIC"
	case EventTypeSecurity:
		return "SECURITY"
	case EventTypeBehavior:
		return "BEHAVIOR"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// ParseEventType accepts either the upper case name or the numeric value.
func ParseEventType(s string) (EventType, error) {
	switch strings.ToUpper(s) {
	case "FAULT", "1":
		return EventTypeFault, nil
	case "STATISTIC", "2":
		return EventTypeStatistic, nil
	case "SECURITY", "3":
		return EventTypeSecurity, nil
	case "BEHAVIOR", "4":
		return EventTypeBehavior, nil
	}
	return 0, fmt.Errorf("unknown event type: %s", s)
}

// Event is a single validated application event
type Event struct {
	ID        int64 // assigned by the store on append
	Domain    string
	Name      string
	Type      EventType
	Params    map[string]Value
	Time      time.Time
	RunningID string
}

// Reserved row keys. Parameter keys never end in an underscore, so these
// cannot collide with user parameters.
const (
	keyDomain    = "domain_"
	keyName      = "name_"
	keyType      = "type_"
	keyTime      = "time_"
	keyRunningID = "running_id_"
)

// MarshalJSON renders the event as a flat row: metadata keys followed by the
// parameters at the same level.
func (e *Event) MarshalJSON() ([]byte, error) {
	row := make(map[string]any, len(e.Params)+5)
	for k, v := range e.Params {
		row[k] = v
	}
	row[keyDomain] = e.Domain
	row[keyName] = e.Name
	row[keyType] = int(e.Type)
	row[keyTime] = e.Time.UnixMilli()
	if e.RunningID != "" {
		row[keyRunningID] = e.RunningID
	}
	return json.Marshal(row)
}

// UnmarshalJSON parses a row produced by MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var row map[string]json.RawMessage
	if err := json.Unmarshal(data, &row); err != nil {
		return err
	}

	*e = Event{Params: make(map[string]Value)}
	for k, raw := range row {
		var err error
		switch k {
		case keyDomain:
			err = json.Unmarshal(raw, &e.Domain)
		case keyName:
			err = json.Unmarshal(raw, &e.Name)
		case keyType:
			err = json.Unmarshal(raw, &e.Type)
		case keyRunningID:
			err = json.Unmarshal(raw, &e.RunningID)
		case keyTime:
			var ms int64
			if err = json.Unmarshal(raw, &ms); err == nil {
				e.Time = time.UnixMilli(ms)
			}
		default:
			var v Value
			if err = json.Unmarshal(raw, &v); err == nil {
				e.Params[k] = v
			}
		}
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", k, err)
		}
	}
	return nil
}

// Row returns the serialized form buffered by watchers.
func (e *Event) Row() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ValueKind identifies which member of a Value is set
type ValueKind int

const (
	KindBool ValueKind = iota + 1
	KindNumber
	KindString
	KindBoolArray
	KindNumberArray
	KindStringArray
)

// IsArray reports whether the kind holds a list.
func (k ValueKind) IsArray() bool {
	return k >= KindBoolArray
}

// Value is a parameter value: a primitive or a homogeneous array of one.
type Value struct {
	Kind    ValueKind
	Bool    bool
	Number  float64
	String  string
	Bools   []bool
	Numbers []float64
	Strings []string
}

var (
	ErrNullValue   = errors.New("null parameter value")
	ErrNestedValue = errors.New("nested objects are not supported")
	ErrMixedArray  = errors.New("array elements must share one primitive type")
	ErrUnsupported = errors.New("unsupported parameter value type")
)

func BoolValue(b bool) Value         { return Value{Kind: KindBool, Bool: b} }
func NumberValue(n float64) Value    { return Value{Kind: KindNumber, Number: n} }
func StringValue(s string) Value     { return Value{Kind: KindString, String: s} }
func StringsValue(s []string) Value  { return Value{Kind: KindStringArray, Strings: s} }
func NumbersValue(n []float64) Value { return Value{Kind: KindNumberArray, Numbers: n} }
func BoolsValue(b []bool) Value      { return Value{Kind: KindBoolArray, Bools: b} }

// Len returns the element count for arrays and zero for primitives.
func (v Value) Len() int {
	switch v.Kind {
	case KindBoolArray:
		return len(v.Bools)
	case KindNumberArray:
		return len(v.Numbers)
	case KindStringArray:
		return len(v.Strings)
	}
	return 0
}

// ValueOf converts a loosely typed Go value into a Value. It is the entry
// point for option bags decoded from JSON, YAML or CLI flags.
func ValueOf(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Value{}, ErrNullValue
	case Value:
		return x, nil
	case bool:
		return BoolValue(x), nil
	case string:
		return StringValue(x), nil
	case []bool:
		return BoolsValue(x), nil
	case []string:
		return StringsValue(x), nil
	case []float64:
		return NumbersValue(x), nil
	case []int:
		nums := make([]float64, len(x))
		for i, n := range x {
			nums[i] = float64(n)
		}
		return NumbersValue(nums), nil
	case []any:
		return arrayOf(x)
	case map[string]any:
		return Value{}, ErrNestedValue
	}
	if n, ok := toNumber(raw); ok {
		return NumberValue(n), nil
	}
	return Value{}, fmt.Errorf("%w: %T", ErrUnsupported, raw)
}

func arrayOf(items []any) (Value, error) {
	if len(items) == 0 {
		return StringsValue([]string{}), nil
	}

	first, err := ValueOf(items[0])
	if err != nil {
		return Value{}, err
	}
	if first.Kind.IsArray() {
		return Value{}, ErrNestedValue
	}

	out := Value{Kind: first.Kind + (KindBoolArray - KindBool)}
	for _, item := range items {
		v, err := ValueOf(item)
		if err != nil {
			return Value{}, err
		}
		if v.Kind != first.Kind {
			return Value{}, ErrMixedArray
		}
		switch v.Kind {
		case KindBool:
			out.Bools = append(out.Bools, v.Bool)
		case KindNumber:
			out.Numbers = append(out.Numbers, v.Number)
		case KindString:
			out.Strings = append(out.Strings, v.String)
		}
	}
	return out, nil
}

func toNumber(raw any) (float64, bool) {
	switch n := raw.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Interface returns the plain Go representation of the value.
func (v Value) Interface() any {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Number
	case KindString:
		return v.String
	case KindBoolArray:
		return v.Bools
	case KindNumberArray:
		return v.Numbers
	case KindStringArray:
		return v.Strings
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == 0 {
		return nil, ErrNullValue
	}
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
