package bundle

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/cuemby/appevent/pkg/log"
	"github.com/cuemby/appevent/pkg/types"
	"github.com/cuemby/appevent/pkg/validate"
	"gopkg.in/yaml.v3"
)

// DefaultConfigName is used by AddProcessorFromConfig when no name is given.
const DefaultConfigName = "SDK_OCG"

//go:embed bundles.yaml
var defaultBundles []byte

var (
	// ErrUnknownBundle is returned by Lookup for names with no valid bundle
	ErrUnknownBundle = errors.New("unknown config bundle")

	errInvalidBundle = errors.New("invalid config bundle")
)

// Catalog is a read-only set of named processor configurations
type Catalog struct {
	bundles map[string]types.Processor
}

// Default returns the catalog compiled into the binary
func Default() (*Catalog, error) {
	return Parse(defaultBundles)
}

// Load reads the compiled-in bundles and overlays those in path. An empty
// path yields the defaults.
func Load(path string) (*Catalog, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle file: %w", err)
	}
	overlay, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for name, p := range overlay.bundles {
		c.bundles[name] = p
	}
	return c, nil
}

// Parse decodes a YAML document mapping bundle names to processor
// configurations. Entries that fail validation are logged and left out;
// a document that is not a mapping is an error.
func Parse(data []byte) (*Catalog, error) {
	var nodes map[string]yaml.Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("failed to decode bundles: %w", err)
	}

	logger := log.WithComponent("bundle")
	c := &Catalog{bundles: make(map[string]types.Processor, len(nodes))}
	for name, node := range nodes {
		var p types.Processor
		if err := node.Decode(&p); err != nil {
			logger.Warn().Err(err).Str("bundle", name).Msg("Skipping undecodable bundle")
			continue
		}
		if err := check(p); err != nil {
			logger.Warn().Err(err).Str("bundle", name).Msg("Skipping invalid bundle")
			continue
		}
		p.Name = ""
		p.ConfigName = name
		c.bundles[name] = p
	}
	return c, nil
}

// check applies the strict rules for static configuration: a single bad
// field invalidates the bundle.
func check(p types.Processor) error {
	for _, id := range p.UserIDs {
		if validate.UserIDName(id) != nil {
			return fmt.Errorf("%w: userIds entry %q", errInvalidBundle, id)
		}
	}
	for _, prop := range p.UserProperties {
		if validate.UserPropertyName(prop) != nil {
			return fmt.Errorf("%w: userProperties entry %q", errInvalidBundle, prop)
		}
	}
	if !validate.BatchReport(p.BatchReport) {
		return fmt.Errorf("%w: batchReport %d", errInvalidBundle, p.BatchReport)
	}
	if !validate.PeriodReport(p.PeriodReport) {
		return fmt.Errorf("%w: periodReport %d", errInvalidBundle, p.PeriodReport)
	}
	if p.ConfigID < 0 {
		return fmt.Errorf("%w: configId %d", errInvalidBundle, p.ConfigID)
	}
	for _, ec := range p.EventConfigs {
		if !validate.ReportEventConfig(ec) {
			return fmt.Errorf("%w: eventConfigs entry %s/%s", errInvalidBundle, ec.Domain, ec.Name)
		}
	}
	if len(p.CustomConfigs) > validate.MaxCustomConfigs {
		return fmt.Errorf("%w: %d customConfigs", errInvalidBundle, len(p.CustomConfigs))
	}
	for k, v := range p.CustomConfigs {
		if !validate.CustomConfigEntry(k, v) {
			return fmt.Errorf("%w: customConfigs entry %q", errInvalidBundle, k)
		}
	}
	return nil
}

// Lookup returns a copy of the named bundle
func (c *Catalog) Lookup(name string) (types.Processor, error) {
	p, ok := c.bundles[name]
	if !ok {
		return types.Processor{}, fmt.Errorf("%w: %s", ErrUnknownBundle, name)
	}
	return clone(p), nil
}

// Names returns the bundle names in sorted order
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.bundles))
	for name := range c.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func clone(p types.Processor) types.Processor {
	p.UserIDs = append([]string(nil), p.UserIDs...)
	p.UserProperties = append([]string(nil), p.UserProperties...)
	p.EventConfigs = append([]types.EventConfig(nil), p.EventConfigs...)
	if p.CustomConfigs != nil {
		m := make(map[string]string, len(p.CustomConfigs))
		for k, v := range p.CustomConfigs {
			m[k] = v
		}
		p.CustomConfigs = m
	}
	return p
}
