package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"skolar/internal/app"
	"skolar/internal/export"
	"skolar/internal/models"

	"github.com/spf13/cobra"
)

func NewPendingCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Inspect the offline booking queue",
	}
	cmd.AddCommand(newPendingListCommand(opts))
	cmd.AddCommand(newPendingCountCommand(opts))
	cmd.AddCommand(newPendingExportCommand(opts))
	return cmd
}

func newPendingListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued bookings, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app.App) error {
				pending, err := a.Bookings.ListPending(cmd.Context())
				if err != nil {
					return err
				}
				return printPending(cmd.OutOrStdout(), opts.Format, pending)
			})
		},
	}
}

func newPendingCountCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of queued bookings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app.App) error {
				n, err := a.Bookings.PendingCount(cmd.Context())
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]int{"count": n})
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
				return err
			})
		},
	}
}

func newPendingExportCommand(opts *RootOptions) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the queue to an xlsx file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app.App) error {
				exporter := a.Exporter
				if dir != "" {
					exporter = exportTo(a, dir)
				}
				path, err := exporter.Export(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&dir, "output", "o", "", "output directory (defaults to exports.path)")
	return cmd
}

func printPending(w io.Writer, format string, pending []models.PendingBooking) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(pending)
	}

	if len(pending) == 0 {
		_, err := fmt.Fprintln(w, "No pending bookings")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTUTOR\tUSER\tSUBJECT\tSCHEDULED\tNOTES")
	for _, p := range pending {
		tutor := p.TutorID
		if name := models.Deref(p.TutorName); name != "" {
			tutor = name
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			p.LocalID, tutor, p.UserID, p.Subject,
			p.ScheduledAt.UTC().Format(time.RFC3339), models.Deref(p.Notes))
	}
	return tw.Flush()
}

func exportTo(a *app.App, dir string) *export.PendingExporter {
	return export.NewPendingExporter(a.DB, dir, a.Logger)
}
