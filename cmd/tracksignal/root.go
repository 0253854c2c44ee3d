package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sydlexius/tracksignal/internal/config"
	"github.com/sydlexius/tracksignal/internal/logging"
)

// rootOptions carries the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "tracksignal",
		Short:         "Now-playing detection and request matching for live DJ sets",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	defaultConfig := os.Getenv("TS_CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "/data/config.yaml"
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfig, "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Dotenv file with TS_* overrides")

	rootCmd.AddCommand(newServeCommand(opts))
	rootCmd.AddCommand(newParseCommand())
	rootCmd.AddCommand(newDiscoverCommand(opts))
	rootCmd.AddCommand(newCheckCommand(opts))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.configPath, o.envFile)
}

// cliLogger builds a logger for one-shot commands. It writes text to stderr
// so command output on stdout stays clean.
func cliLogger(cfg *config.Config) (*logging.Manager, *slog.Logger) {
	lc := cfg.LoggerConfig()
	lc.Format = "text"
	lc.Output = "stderr"
	lc.FilePath = ""
	return logging.NewManager(lc)
}
