package pgsynth

import (
	"fmt"
	"io"
	"os"

	"github.com/edgeflare/pgsynth/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  = zap.NewNop()
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pgsynth",
		Short: "pgsynth serves a REST API synthesized from a PostgreSQL schema",
		Long: `pgsynth introspects a PostgreSQL catalog, derives typed models and routes for
every table, view, enum and routine, and serves them as a REST API. The API is
regenerated whenever the schema changes.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				fmt.Fprintln(cmd.OutOrStdout(), config.Version)
				return nil
			}
			return cmd.Help()
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/pgsynth.yaml or ./pgsynth.yaml)")
	f.StringP("database.conn_string", "c", "", "PostgreSQL connection string")
	f.String("catalog.file", "", "read the catalog from a YAML snapshot instead of the database")
	f.StringSlice("generator.included_namespaces", nil, "schemas to expose (default all non-system schemas)")
	f.StringSlice("generator.excluded_namespaces", nil, "schemas to hide")
	f.String("generator.naming_strategy", "verbatim", "field naming: verbatim, snake or camel")
	f.String("log.level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().BoolP("version", "v", false, "Print the version number")

	cmd.AddCommand(newServeCmd(), newInspectCmd(), newExportCmd(), newReloadCmd())
	return cmd
}

// loadConfig reads the configuration once the command line is parsed, so
// flags given by their full key override file and environment values.
func loadConfig(cmd *cobra.Command, _ []string) error {
	if cmd == cmd.Root() {
		return nil
	}
	flags := pflag.NewFlagSet("config", pflag.ContinueOnError)
	flags.AddFlagSet(cmd.InheritedFlags())
	flags.AddFlagSet(cmd.LocalFlags())

	var err error
	cfg, err = config.Load(cfgFile, flags)
	if err != nil {
		return err
	}
	logger, err = cfg.Log.Logger()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	if cfg.File != "" {
		logger.Debug("using config file", zap.String("file", cfg.File))
	}
	return nil
}

// Main runs the command line and exits non-zero on failure.
func Main() {
	if err := Execute(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// Execute runs the command line with args, writing to stdout and stderr.
func Execute(args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	defer func() { _ = logger.Sync() }()
	return cmd.Execute()
}
