package validate

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cuemby/appevent/pkg/errcode"
	"github.com/cuemby/appevent/pkg/types"
)

// Limits on event payloads.
const (
	MaxDomainLength      = 32
	MaxEventNameLength   = 48
	MaxParamKeyLength    = 32
	MaxParamCount        = 32
	MaxStringLength      = 8 * 1024
	MaxArrayLength       = 100
	MaxWatcherNameLength = 32

	MaxUserInfoNameLength      = 256
	MaxUserIDValueLength       = 256
	MaxUserPropertyValueLength = 1024

	MaxProcessorNameLength   = 256
	MaxBatchReport           = 1000
	MaxCustomConfigs         = 32
	MaxCustomConfigValueLen  = 1024
	MaxCustomParamsPerRecord = 64
)

var (
	domainPattern   = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)
	propNamePattern = regexp.MustCompile(`^[a-zA-Z_$][a-zA-Z0-9_$]*$`)

	legacyStoragePattern = regexp.MustCompile(`(?i)^(\d+)(M|G)$`)
	storagePattern       = regexp.MustCompile(`^([0-9]+)([kmgt]?)(b?)$`)
)

// identifier checks the shared "letter, then letters digits or underscores,
// not ending in underscore" shape used for domains, names and keys.
func identifier(s string, maxLen int) bool {
	if s == "" || len(s) > maxLen {
		return false
	}
	if strings.HasSuffix(s, "_") {
		return false
	}
	return domainPattern.MatchString(s)
}

// Domain validates an event domain.
func Domain(domain string) error {
	if !identifier(domain, MaxDomainLength) {
		return errcode.New(errcode.InvalidDomain)
	}
	return nil
}

// EventName validates an event name.
func EventName(name string) error {
	if !identifier(name, MaxEventNameLength) {
		return errcode.New(errcode.InvalidEventName)
	}
	return nil
}

// ParamKey validates a parameter key.
func ParamKey(key string) error {
	if !identifier(key, MaxParamKeyLength) {
		return errcode.New(errcode.InvalidParamName)
	}
	return nil
}

// EventType rejects values outside FAULT..BEHAVIOR.
func EventType(t types.EventType) error {
	if !t.Valid() {
		return errcode.Param("eventType", "EventType")
	}
	return nil
}

// Event runs the full check sequence on a typed event. The first failure wins.
func Event(ev *types.Event) error {
	if ev == nil {
		return errcode.Mandatory("info")
	}
	if err := EventType(ev.Type); err != nil {
		return err
	}
	if err := Domain(ev.Domain); err != nil {
		return err
	}
	if err := EventName(ev.Name); err != nil {
		return err
	}
	if len(ev.Params) > MaxParamCount {
		return errcode.New(errcode.InvalidParamNum)
	}
	for _, key := range sortedKeys(ev.Params) {
		if err := ParamKey(key); err != nil {
			return err
		}
		if err := paramValue(ev.Params[key], false); err != nil {
			return err
		}
	}
	return nil
}

// Params converts and validates a loosely typed parameter map. Keys are
// visited in sorted order so the reported error is stable.
func Params(raw map[string]any) (map[string]types.Value, error) {
	if len(raw) > MaxParamCount {
		return nil, errcode.New(errcode.InvalidParamNum)
	}
	return convert(raw, false)
}

// CustomParams validates the parameters of setEventParam. Arrays must hold strings.
func CustomParams(raw map[string]any) (map[string]types.Value, error) {
	if len(raw) > MaxCustomParamsPerRecord {
		return nil, errcode.New(errcode.InvalidCustomParamNum)
	}
	return convert(raw, true)
}

func convert(raw map[string]any, stringArraysOnly bool) (map[string]types.Value, error) {
	out := make(map[string]types.Value, len(raw))
	for _, key := range sortedKeys(raw) {
		if err := ParamKey(key); err != nil {
			return nil, err
		}
		v, err := types.ValueOf(raw[key])
		if err != nil {
			if errors.Is(err, types.ErrMixedArray) {
				return nil, errcode.Wrap(errcode.InvalidArrayType, err)
			}
			return nil, errcode.Wrap(errcode.InvalidParamValueType, err)
		}
		if err := paramValue(v, stringArraysOnly); err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

func paramValue(v types.Value, stringArraysOnly bool) error {
	switch v.Kind {
	case types.KindBool:
	case types.KindNumber:
		if !finite(v.Number) {
			return errcode.New(errcode.InvalidParamValueType)
		}
	case types.KindString:
		if len(v.String) > MaxStringLength {
			return errcode.New(errcode.InvalidStringLength)
		}
	case types.KindBoolArray:
		if stringArraysOnly {
			return errcode.New(errcode.InvalidArrayType)
		}
	case types.KindNumberArray:
		if stringArraysOnly {
			return errcode.New(errcode.InvalidArrayType)
		}
		for _, n := range v.Numbers {
			if !finite(n) {
				return errcode.New(errcode.InvalidParamValueType)
			}
		}
	case types.KindStringArray:
		for _, s := range v.Strings {
			if len(s) > MaxStringLength {
				return errcode.New(errcode.InvalidStringLength)
			}
		}
	default:
		return errcode.New(errcode.InvalidParamValueType)
	}
	if v.Len() > MaxArrayLength {
		return errcode.New(errcode.InvalidArrayLength)
	}
	return nil
}

// finite rejects NaN and infinities, which have no JSON encoding.
func finite(n float64) bool {
	return !math.IsNaN(n) && !math.IsInf(n, 0)
}

// WatcherName validates a watcher registration name.
func WatcherName(name string) error {
	if !identifier(name, MaxWatcherNameLength) {
		return errcode.New(errcode.InvalidWatcherName)
	}
	return nil
}

// FilterDomain validates the domain of one watcher filter.
func FilterDomain(domain string) error {
	if !identifier(domain, MaxDomainLength) {
		return errcode.New(errcode.InvalidFilterDomain)
	}
	return nil
}

func propName(name string, maxLen int) bool {
	return name != "" && len(name) <= maxLen && propNamePattern.MatchString(name)
}

// UserIDName validates the key of a user id.
func UserIDName(name string) error {
	if !propName(name, MaxUserInfoNameLength) {
		return errcode.Invalid("name")
	}
	return nil
}

// UserIDValue validates a user id value. Empty values are allowed and mean delete.
func UserIDValue(value string) error {
	if len(value) > MaxUserIDValueLength {
		return errcode.Invalid("value")
	}
	return nil
}

// UserPropertyName validates the key of a user property.
func UserPropertyName(name string) error {
	return UserIDName(name)
}

// UserPropertyValue validates a user property value.
func UserPropertyValue(value string) error {
	if len(value) > MaxUserPropertyValueLength {
		return errcode.Invalid("value")
	}
	return nil
}

// ProcessorName reports whether name can identify a processor.
func ProcessorName(name string) bool {
	return propName(name, MaxProcessorNameLength)
}

// BatchReport reports whether n is an acceptable batch row count.
func BatchReport(n int) bool {
	return n >= 0 && n <= MaxBatchReport
}

// PeriodReport reports whether n is an acceptable report period in seconds.
func PeriodReport(n int) bool {
	return n >= 0
}

// ReportEventConfig reports whether a processor event selector names at
// least a domain or an event name, each well formed when set.
func ReportEventConfig(ec types.EventConfig) bool {
	if ec.Domain == "" && ec.Name == "" {
		return false
	}
	if ec.Domain != "" && Domain(ec.Domain) != nil {
		return false
	}
	return ec.Name == "" || EventName(ec.Name) == nil
}

// CustomConfigEntry reports whether one processor customConfigs entry is kept.
func CustomConfigEntry(key, value string) bool {
	return ParamKey(key) == nil && len(value) <= MaxCustomConfigValueLen
}

// RouteInfo reports whether a processor routeInfo or appId string is kept.
func RouteInfo(s string) bool {
	return len(s) <= MaxStringLength
}

// LegacyMaxStorage parses the older quota format: digits followed by M or G.
func LegacyMaxStorage(s string) (int64, error) {
	m := legacyStoragePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, errcode.New(errcode.InvalidMaxStorage)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, errcode.Wrap(errcode.InvalidMaxStorage, err)
	}
	return scale(n, strings.ToLower(m[2]))
}

// MaxStorage parses a quota such as "10M", "512kb", "1G" or "2048".
func MaxStorage(s string) (int64, error) {
	m := storagePattern.FindStringSubmatch(strings.ToLower(s))
	if m == nil {
		return 0, errcode.New(errcode.InvalidMaxStorage)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, errcode.Wrap(errcode.InvalidMaxStorage, err)
	}
	return scale(n, m[2])
}

func scale(n int64, unit string) (int64, error) {
	shift := map[string]uint{"": 0, "k": 10, "m": 20, "g": 30, "t": 40}[unit]
	if n > (1<<62)>>shift {
		return 0, errcode.Wrap(errcode.InvalidMaxStorage, fmt.Errorf("quota overflows: %d%s", n, unit))
	}
	return n << shift, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
