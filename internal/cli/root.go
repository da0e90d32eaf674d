// Package cli implements the gatekeep control-plane commands.
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/viant/gatekeep"
)

const (
	defaultDriver = "sqlite"
	defaultDSN    = "gatekeep.db"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string
	viper  *viper.Viper
}

// Actor returns the identity recorded on mutating commands.
func (o *RootOptions) Actor() (string, error) {
	actor := strings.TrimSpace(o.viper.GetString("actor"))
	if actor == "" {
		return "", fmt.Errorf("actor is required: use --actor or GATEKEEP_ACTOR")
	}
	return actor, nil
}

// Config resolves the engine configuration: the --config URL (or
// GATEKEEP_CONFIG) is loaded first, then store and log settings from flags
// and GATEKEEP_* variables override it. Without a configuration URL the local
// SQLite file gatekeep.db is used.
func (o *RootOptions) Config(ctx context.Context) (*gatekeep.Config, error) {
	config := gatekeep.DefaultConfig()
	if URL := o.viper.GetString("config"); URL != "" {
		loaded, err := gatekeep.LoadConfig(ctx, URL)
		if err != nil {
			return nil, err
		}
		config = loaded
	} else {
		config.Store.Driver = defaultDriver
		config.Store.DSN = defaultDSN
	}
	if driver := o.viper.GetString("store.driver"); driver != "" {
		config.Store.Driver = driver
	}
	if dsn := o.viper.GetString("store.dsn"); dsn != "" {
		config.Store.DSN = dsn
	}
	if level := o.viper.GetString("log.level"); level != "" {
		config.Log.Level = level
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Open creates the service for a single command.
func (o *RootOptions) Open(ctx context.Context, options ...gatekeep.Option) (*gatekeep.Service, error) {
	config, err := o.Config(ctx)
	if err != nil {
		return nil, err
	}
	return gatekeep.New(ctx, append([]gatekeep.Option{gatekeep.WithConfig(config)}, options...)...)
}

// NewRootCommand creates the root command of the gatekeep CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{viper: viper.New()}
	cmd := &cobra.Command{
		Use:   "gatekeep",
		Short: "gatekeep - approval gate and standing rule engine",
		Long:  "Inspect and decide held actions, manage standing approval rules and audit every decision.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.String("config", "", "configuration URL (file path, mem://, s3:// ...)")
	flags.String("driver", "", "store driver (memory|sqlite|postgres)")
	flags.String("dsn", "", "store data source name")
	flags.String("actor", "", "identity recorded on decisions and rule changes")
	flags.String("log-level", "", "log level (debug|info|warn|error)")

	v := opts.viper
	v.SetEnvPrefix("GATEKEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindPFlag("store.driver", flags.Lookup("driver"))
	_ = v.BindPFlag("store.dsn", flags.Lookup("dsn"))
	_ = v.BindPFlag("actor", flags.Lookup("actor"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))

	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewRuleCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewMetricsCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
