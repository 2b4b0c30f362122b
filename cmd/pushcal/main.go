package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pushcal/internal/config"
	appLog "pushcal/internal/log"
)

var version = "0.1.0-dev"

// rootFlags holds flags shared by every command.
type rootFlags struct {
	configPath string
	envFile    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "pushcal",
		Short:         "Web push relay, Pusher channel auth and calendar feed server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "./pushcal.yaml", "Path to config file")
	root.PersistentFlags().StringVar(&flags.envFile, "env", ".env", "Optional dotenv file loaded before the environment")

	root.AddCommand(
		newServeCmd(flags),
		newTokenCmd(flags),
		newImportCmd(flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), "pushcal", version)
			},
		},
	)
	return root
}

// loadConfig loads the config and applies its log level.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	conf, err := config.Load(flags.configPath, flags.envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", flags.configPath, err)
	}
	level, err := appLog.ParseLevel(conf.LogLevel)
	if err != nil {
		return nil, err
	}
	appLog.SetLevel(level)
	return conf, nil
}
