package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"livequiz/internal/config"
	"livequiz/internal/logging"
)

var (
	configPath string
	logLevel   string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd(os.Stdin, os.Stdout).Execute()
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:           "livequiz",
		Short:         "Terminal client for live multiplayer quiz rooms",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				loaded.Log.Level = logLevel
			}
			*cfg = loaded
			logging.Setup(cfg.Log.Level, cfg.Pretty(), cmd.ErrOrStderr())
			return nil
		},
	}
	cmd.SetIn(in)
	cmd.SetOut(out)

	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.AddCommand(NewPlayCmd(cfg))
	cmd.AddCommand(NewHostCmd(cfg))
	cmd.AddCommand(NewReplayCmd(cfg))
	cmd.AddCommand(NewMigrateCmd(cfg))
	return cmd
}
