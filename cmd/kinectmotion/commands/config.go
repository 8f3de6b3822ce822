package commands

import (
	"fmt"
	"maps"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/kinectmotion/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage CLI configuration and contexts.

A context is one capture setup: the stream endpoint, receive timeout,
tick rate, target kind and armature, rig file, take store, joint mapping
overrides and the S3 export bucket.

Configuration is stored in ~/.kinectmotion/kinectmotion/config.yaml`,
}

var configContextCmd = &cobra.Command{
	Use:     "context",
	Aliases: []string{"ctx"},
	Short:   "Manage contexts",
}

var configContextListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all contexts",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()

		if len(cfg.Contexts) == 0 {
			fmt.Println("No contexts configured")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tENDPOINT\tKIND\tARMATURE\tRECORD")
		for _, name := range cfg.ListContexts() {
			ctx := cfg.Contexts[name]
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			endpoint := ctx.Endpoint
			if endpoint == "" {
				endpoint = "(default)"
			}
			kind := ctx.Kind
			if kind == "" {
				kind = "object"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%v\n", current, name, endpoint, kind, ctx.Armature, ctx.AutoRecord)
		}
		return w.Flush()
	},
}

var configContextUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := getConfig().UseContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Switched to context %q", args[0])
		return nil
	},
}

var configContextSetCmd = &cobra.Command{
	Use:   "set <name> <key=value>...",
	Short: "Create or update a context",
	Long: `Set fields of a context, creating it if needed.

Keys:
  endpoint, timeout, tick_rate, auto_record, kind, armature,
  start_frame, rig, take_store,
  mapping.<joint>      target for a joint (empty to skip the joint)
  s3.bucket, s3.prefix, s3.region, s3.endpoint,
  s3.access_key_id, s3.secret_access_key, s3.path_style

Examples:
  kinectmotion config context set studio endpoint=ws://10.0.0.5:8521 timeout=2s
  kinectmotion config context set studio kind=bone armature=Armature mapping.head=Head
  kinectmotion config context set studio s3.bucket=takes s3.endpoint=http://localhost:9000 s3.path_style=true`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		name := args[0]

		ctx := &cli.Context{}
		created := true
		if existing, ok := cfg.Contexts[name]; ok {
			// Edit a copy so a bad pair leaves the context untouched.
			c := *existing
			c.Mapping = maps.Clone(existing.Mapping)
			if existing.S3 != nil {
				s3 := *existing.S3
				c.S3 = &s3
			}
			ctx = &c
			created = false
		}

		for _, kv := range args[1:] {
			key, value, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("invalid pair %q, want key=value", kv)
			}
			if err := ctx.Set(key, value); err != nil {
				return err
			}
		}

		if err := cfg.AddContext(name, ctx); err != nil {
			return err
		}
		if created {
			cli.PrintSuccess("Context %q created", name)
		} else {
			cli.PrintSuccess("Context %q updated", name)
		}
		return nil
	},
}

var configContextDeleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Aliases: []string{"rm"},
	Short:   "Delete a context",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := getConfig().DeleteContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Context %q deleted", args[0])
		return nil
	},
}

var configContextShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show a context (default: the current one)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		name := contextName
		if len(args) == 1 {
			name = args[0]
		}
		if name == "" {
			name = cfg.CurrentContext
		}
		if name == "" {
			return fmt.Errorf("no context specified. Use 'kinectmotion config context use <name>' or pass a name")
		}
		ctx, err := cfg.GetContext(name)
		if err != nil {
			return err
		}
		return outputResult(ctx.Redacted())
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View the configuration file location and contexts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()

		fmt.Printf("Config file: %s\n", cfg.Path())
		fmt.Printf("Current context: %s\n", cfg.CurrentContext)
		fmt.Printf("Contexts: %d\n", len(cfg.Contexts))
		return nil
	},
}

func init() {
	configContextCmd.AddCommand(configContextListCmd)
	configContextCmd.AddCommand(configContextUseCmd)
	configContextCmd.AddCommand(configContextSetCmd)
	configContextCmd.AddCommand(configContextDeleteCmd)
	configContextCmd.AddCommand(configContextShowCmd)

	configCmd.AddCommand(configContextCmd)
	configCmd.AddCommand(configViewCmd)
}
