package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/cuemby/appevent/pkg/appevent"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a resource file",
	Long: `Apply processors and user info from a YAML file. The file may hold
several documents separated by ---.

Examples:
  # Register a processor
  appevent apply -f processor.yaml

A processor document:

  kind: Processor
  metadata:
    name: analytics
  spec:
    batchReport: 50
    eventConfigs:
      - domain: button
        name: click

A user info document:

  kind: UserInfo
  spec:
    userIds: {uid: "1001"}
    userProperties: {tier: gold}`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
}

// Resource is one document of an apply file
type Resource struct {
	Kind     string           `yaml:"kind"`
	Metadata ResourceMetadata `yaml:"metadata"`
	Spec     map[string]any   `yaml:"spec"`
}

type ResourceMetadata struct {
	Name string `yaml:"name"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	var resources []Resource
	dec := yaml.NewDecoder(f)
	for {
		var r Resource
		err := dec.Decode(&r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
		resources = append(resources, r)
	}

	return withManager(func(m *appevent.Manager) error {
		for i := range resources {
			r := &resources[i]
			var err error
			switch r.Kind {
			case "Processor":
				err = applyProcessor(m, r)
			case "UserInfo":
				err = applyUserInfo(m, r)
			default:
				err = fmt.Errorf("unsupported resource kind: %q", r.Kind)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func applyProcessor(m *appevent.Manager, r *Resource) error {
	opts := make(map[string]any, len(r.Spec)+1)
	for k, v := range r.Spec {
		opts[k] = v
	}
	opts["name"] = r.Metadata.Name

	id, err := m.AddProcessorOptions(opts)
	if err != nil {
		return fmt.Errorf("failed to add processor %s: %w", r.Metadata.Name, err)
	}
	fmt.Printf("✓ Processor registered: %s (ID: %d)\n", r.Metadata.Name, id)
	return nil
}

func applyUserInfo(m *appevent.Manager, r *Resource) error {
	ids, err := stringValues(r.Spec, "userIds")
	if err != nil {
		return err
	}
	props, err := stringValues(r.Spec, "userProperties")
	if err != nil {
		return err
	}

	for name, v := range ids {
		if err := m.SetUserID(name, v); err != nil {
			return fmt.Errorf("failed to set user id %s: %w", name, err)
		}
	}
	for name, v := range props {
		if err := m.SetUserProperty(name, v); err != nil {
			return fmt.Errorf("failed to set user property %s: %w", name, err)
		}
	}
	fmt.Printf("✓ User info applied: %d ids, %d properties\n", len(ids), len(props))
	return nil
}

// stringValues reads a mapping of scalars, formatting numbers and booleans
func stringValues(spec map[string]any, key string) (map[string]string, error) {
	raw, ok := spec[key]
	if !ok {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a mapping", key)
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
			out[k] = ""
		case map[string]any, []any:
			return nil, fmt.Errorf("%s.%s must be a scalar", key, k)
		default:
			out[k] = fmt.Sprintf("%v", val)
		}
	}
	return out, nil
}

var processorCmd = &cobra.Command{
	Use:   "processor",
	Short: "Manage processors",
}

var processorAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Register a processor from a config bundle",
	Long: `Register a processor whose settings come from a static config bundle.
Without --config-name the default bundle is used. Use apply for processors
with explicit settings.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configName, _ := cmd.Flags().GetString("config-name")
		return withManager(func(m *appevent.Manager) error {
			id, err := m.AddProcessorFromConfig(cmd.Context(), args[0], configName)
			if err != nil {
				return err
			}
			fmt.Printf("✓ Processor registered: %s (ID: %d)\n", args[0], id)
			return nil
		})
	},
}

var processorRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Unregister a processor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid processor id %q", args[0])
		}
		return withManager(func(m *appevent.Manager) error {
			if err := m.RemoveProcessor(id); err != nil {
				return err
			}
			fmt.Printf("✓ Processor removed: %d\n", id)
			return nil
		})
	},
}

var processorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered processors",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *appevent.Manager) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCONFIG ID\tCONFIG NAME\tINERT")
			for _, rec := range m.Processors() {
				p := rec.Processor
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%t\n", rec.ID, p.Name, p.ConfigID, p.ConfigName, rec.Inert)
			}
			return w.Flush()
		})
	},
}

func init() {
	processorAddCmd.Flags().String("config-name", "", "Config bundle to build the processor from")

	processorCmd.AddCommand(processorAddCmd)
	processorCmd.AddCommand(processorRemoveCmd)
	processorCmd.AddCommand(processorListCmd)
	rootCmd.AddCommand(processorCmd)
}
