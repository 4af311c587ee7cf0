package cli

import (
	"fmt"
	"os"

	"skolar/internal/app"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the skolar CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "skolar",
		Short:         "Offline booking queue and sync for the tutoring app",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", defaultConfigPath(), "path to config.yaml")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewBackupCommand(opts))

	return cmd
}

func defaultConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "configs/config.yaml"
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// withApp builds the application for one command run and closes it after.
func withApp(opts *RootOptions, fn func(a *app.App) error) error {
	a, err := app.New(opts.ConfigPath)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(a)
}
