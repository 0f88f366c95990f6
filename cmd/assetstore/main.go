package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tendant/assetstore/pkg/assetstore/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	project    string
	name       string
	configFile string
	envFile    string
	jsonOutput bool
}

func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "assetstore",
		Short: "Content-addressable asset store",
		Long: `Content-addressable asset store for project files.

Assets are stored once per distinct content under the project directory and
addressed by the hex digest of their bytes.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flags.envFile == "" {
				return nil
			}
			if err := godotenv.Load(flags.envFile); err != nil {
				return fmt.Errorf("failed to load env file %s: %w", flags.envFile, err)
			}
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.project, "project", "p", "", "project directory (default: $ASSETSTORE_PROJECT_DIR or .)")
	pf.StringVar(&flags.name, "name", "", "project display name")
	pf.StringVarP(&flags.configFile, "config", "c", "", "config file (yaml, json or env)")
	pf.StringVar(&flags.envFile, "env-file", "", "load environment variables from a .env file")
	pf.BoolVar(&flags.jsonOutput, "json", false, "print machine-readable JSON")

	rootCmd.AddCommand(NewServeCommand(flags))
	rootCmd.AddCommand(NewPutCommand(flags))
	rootCmd.AddCommand(NewPathCommand(flags))
	rootCmd.AddCommand(NewRemoveCommand(flags))
	rootCmd.AddCommand(NewImportCommand(flags))
	rootCmd.AddCommand(NewCleanupCommand(flags))
	rootCmd.AddCommand(NewStatsCommand(flags))
	rootCmd.AddCommand(NewVerifyCommand(flags))

	return rootCmd
}

// loadConfig layers the config file, then the environment, then flags.
func (f *globalFlags) loadConfig() (*config.ServerConfig, error) {
	opts := []config.Option{
		config.WithFile(f.configFile),
		config.WithEnv(),
	}
	if f.project != "" {
		opts = append(opts, config.WithProject(f.project, f.name))
	}
	return config.Load(opts...)
}

// openRuntime builds the service for a subcommand. Callers must Close it.
func (f *globalFlags) openRuntime(cmd *cobra.Command) (*config.Runtime, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}
	rt, err := cfg.BuildService(cmd.Context())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(rt.Logger)
	return rt, nil
}
