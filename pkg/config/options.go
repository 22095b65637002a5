package config

import (
	"strings"
	"unicode"

	"github.com/cuemby/appevent/pkg/errcode"
	"github.com/cuemby/appevent/pkg/validate"
)

// Options are the runtime switches changed by Configure. Nil fields are left
// as they are.
type Options struct {
	Disable    *bool
	MaxStorage *string
}

// parsedOptions is Options after validation, with the quota in bytes.
type parsedOptions struct {
	disable *bool
	quota   *int64
}

// ParseOptions reads an option bag. Keys may be camelCase (maxStorage) or
// snake_case (max_storage); unknown keys are ignored.
func ParseOptions(bag map[string]any) (Options, error) {
	var opts Options
	for key, raw := range bag {
		switch snakeCase(key) {
		case "disable":
			b, ok := raw.(bool)
			if !ok {
				return Options{}, errcode.Param("disable", "boolean")
			}
			opts.Disable = &b
		case "max_storage":
			s, ok := raw.(string)
			if !ok {
				return Options{}, errcode.Param("maxStorage", "string")
			}
			opts.MaxStorage = &s
		}
	}
	return opts, nil
}

func (o Options) parse(parseQuota func(string) (int64, error)) (parsedOptions, error) {
	p := parsedOptions{disable: o.Disable}
	if o.MaxStorage != nil {
		n, err := parseQuota(*o.MaxStorage)
		if err != nil {
			return parsedOptions{}, err
		}
		p.quota = &n
	}
	return p, nil
}

// parseLegacyOptions applies the older rules: values may be given as
// strings ("true", "10M") and the quota grammar is the legacy one.
func parseLegacyOptions(bag map[string]any) (parsedOptions, bool) {
	if bag == nil {
		return parsedOptions{}, false
	}

	var opts Options
	for key, raw := range bag {
		switch snakeCase(key) {
		case "disable":
			var b bool
			switch v := raw.(type) {
			case bool:
				b = v
			case string:
				switch strings.ToLower(v) {
				case "true":
					b = true
				case "false":
				default:
					return parsedOptions{}, false
				}
			default:
				return parsedOptions{}, false
			}
			opts.Disable = &b
		case "max_storage":
			s, ok := raw.(string)
			if !ok {
				return parsedOptions{}, false
			}
			opts.MaxStorage = &s
		}
	}

	p, err := opts.parse(validate.LegacyMaxStorage)
	return p, err == nil
}

// snakeCase turns maxStorage into max_storage and leaves snake_case alone.
func snakeCase(key string) string {
	var b strings.Builder
	for i, r := range key {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
