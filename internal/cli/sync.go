package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"skolar/internal/app"
	"skolar/internal/worker"

	"github.com/spf13/cobra"
)

// NewSyncCommand runs one sync pass, the CLI equivalent of "Sync now".
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push queued bookings to the booking service once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app.App) error {
				report, err := a.Bookings.SyncNow(cmd.Context())
				if err != nil {
					return err
				}
				return printSyncReport(cmd.OutOrStdout(), opts.Format, report)
			})
		},
	}
}

func printSyncReport(w io.Writer, format string, report *worker.SyncReport) error {
	if format == "json" {
		type item struct {
			LocalID  int64  `json:"local_id"`
			RemoteID string `json:"remote_id,omitempty"`
			Outcome  string `json:"outcome"`
			Error    string `json:"error,omitempty"`
		}
		out := struct {
			Attempted      int    `json:"attempted"`
			Synced         int    `json:"synced"`
			Failed         int    `json:"failed"`
			DeleteFailures int    `json:"delete_failures"`
			Items          []item `json:"items"`
		}{report.Attempted, report.Synced, report.Failed, report.DeleteFailures, []item{}}
		for _, it := range report.Items {
			ji := item{LocalID: it.LocalID, RemoteID: it.RemoteID, Outcome: string(it.Outcome)}
			if it.Err != nil {
				ji.Error = it.Err.Error()
			}
			out.Items = append(out.Items, ji)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if report.Attempted == 0 {
		_, err := fmt.Fprintln(w, "Nothing to sync")
		return err
	}
	fmt.Fprintf(w, "%d of %d synced\n", report.Synced, report.Attempted)
	for _, it := range report.Items {
		switch it.Outcome {
		case worker.OutcomeFailed:
			fmt.Fprintf(w, "  #%d still pending: %v\n", it.LocalID, it.Err)
		case worker.OutcomeSyncedDeleteFailed:
			fmt.Fprintf(w, "  #%d synced as %s but could not be removed locally: %v\n", it.LocalID, it.RemoteID, it.Err)
		}
	}
	return nil
}
