package cli

import (
	"fmt"

	"skolar/internal/app"

	"github.com/spf13/cobra"
)

func NewBackupCommand(opts *RootOptions) *cobra.Command {
	var cleanup bool
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the queue database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app.App) error {
				path, err := a.Backups.PerformBackup(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				if cleanup {
					removed := a.Backups.CleanupOldBackups()
					fmt.Fprintf(cmd.OutOrStdout(), "removed %d old backups\n", removed)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&cleanup, "cleanup", true, "remove backups older than backup.retention_days")
	return cmd
}
