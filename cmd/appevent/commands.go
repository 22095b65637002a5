package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/cuemby/appevent/pkg/appevent"
	"github.com/cuemby/appevent/pkg/bundle"
	"github.com/cuemby/appevent/pkg/config"
	"github.com/cuemby/appevent/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var writeCmd = &cobra.Command{
	Use:   "write DOMAIN NAME",
	Short: "Write one event",
	Long: `Write one event with parameters given as key=value pairs. Values are
read as YAML scalars or flow sequences, so true, 42, hello and [a, b] give a
boolean, a number, a string and a string array.

Examples:
  appevent write button click --type BEHAVIOR --param x=10 --param tags=[a,b]`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typeName, _ := cmd.Flags().GetString("type")
		pairs, _ := cmd.Flags().GetStringArray("param")

		eventType, err := types.ParseEventType(typeName)
		if err != nil {
			return err
		}
		params, err := parseParams(pairs)
		if err != nil {
			return err
		}

		return withManager(func(m *appevent.Manager) error {
			if err := m.WriteParams(cmd.Context(), args[0], args[1], eventType, params); err != nil {
				return err
			}
			fmt.Printf("✓ Event written: %s/%s\n", args[0], args[1])
			return nil
		})
	},
}

func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid param %q: expected key=value", pair)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("invalid value for param %s: %w", key, err)
		}
		if v == nil {
			v = raw
		}
		params[key] = v
	}
	return params, nil
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect stored events",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print stored events as JSON rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, _ := cmd.Flags().GetString("domain")
		return withManager(func(m *appevent.Manager) error {
			evs, err := m.Events()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			for _, ev := range evs {
				if domain != "" && ev.Domain != domain {
					continue
				}
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete stored events, user ids, user properties and custom params",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *appevent.Manager) error {
			if err := m.ClearData(); err != nil {
				return err
			}
			fmt.Println("✓ Event data cleared")
			return nil
		})
	},
}

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Apply a storage quota, evicting the oldest events above it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		quota, _ := cmd.Flags().GetString("max-storage")
		return withManager(func(m *appevent.Manager) error {
			if err := m.Configure(config.Options{MaxStorage: &quota}); err != nil {
				return err
			}
			fmt.Printf("✓ Storage quota set to %d bytes\n", m.Config().Quota())
			return nil
		})
	},
}

// userInfoCommand builds the set/get pair for user ids or user properties
func userInfoCommand(use, short string, set func(*appevent.Manager, string, string) error, get func(*appevent.Manager, string) (string, error)) *cobra.Command {
	parent := &cobra.Command{Use: use, Short: short}
	parent.AddCommand(&cobra.Command{
		Use:   "set NAME [VALUE]",
		Short: "Set a value; an empty or missing value removes it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := ""
			if len(args) == 2 {
				value = args[1]
			}
			return withManager(func(m *appevent.Manager) error {
				return set(m, args[0], value)
			})
		},
	})
	parent.AddCommand(&cobra.Command{
		Use:   "get NAME",
		Short: "Print a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(m *appevent.Manager) error {
				v, err := get(m, args[0])
				if err != nil {
					return err
				}
				fmt.Println(v)
				return nil
			})
		},
	})
	return parent
}

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Inspect static processor configurations",
}

var bundleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List config bundles usable as configName",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := bundle.Load(settings.BundlePath)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tBATCH\tPERIOD\tEVENTS")
		for _, name := range catalog.Names() {
			p, err := catalog.Lookup(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", name, p.BatchReport, p.PeriodReport, len(p.EventConfigs))
		}
		return w.Flush()
	},
}

func init() {
	writeCmd.Flags().String("type", "BEHAVIOR", "Event type (FAULT, STATISTIC, SECURITY, BEHAVIOR)")
	writeCmd.Flags().StringArrayP("param", "p", nil, "Event parameter as key=value (repeatable)")

	eventsListCmd.Flags().String("domain", "", "Only print events of this domain")
	eventsCmd.AddCommand(eventsListCmd)

	configureCmd.Flags().String("max-storage", "", "Storage quota such as 10M, 512kb or 1G (required)")
	_ = configureCmd.MarkFlagRequired("max-storage")

	bundleCmd.AddCommand(bundleListCmd)

	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(bundleCmd)
	rootCmd.AddCommand(userInfoCommand("user-id", "Manage user ids",
		(*appevent.Manager).SetUserID, (*appevent.Manager).GetUserID))
	rootCmd.AddCommand(userInfoCommand("user-property", "Manage user properties",
		(*appevent.Manager).SetUserProperty, (*appevent.Manager).GetUserProperty))
}
