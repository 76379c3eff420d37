package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/yogisync/internal/cache"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Pending bool
}

// statusRow is one record in the status command's JSON payload.
type statusRow struct {
	IdentityKey string    `json:"identity_key"`
	Provider    string    `json:"provider"`
	OccursAt    time.Time `json:"occurs_at"`
	TimeUnknown bool      `json:"time_unknown,omitempty"`
	RemoteRef   string    `json:"remote_ref,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List cached events and their calendar records",
		Long: `List every event in the local cache with the calendar record it is
linked to. Events without a record have not been reconciled yet, usually
because their last sync failed.

Example:
  yogisync status
  yogisync status --pending --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Pending, "pending", false, "only list events without a calendar record")

	return cmd
}

func runStatus(cmd *cobra.Command, opts *StatusOptions) error {
	logger := newLogger(opts.Verbose, cmd.ErrOrStderr())
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	st, err := openCache(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer closeCache(st, logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	records, err := st.List(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list cache", err)
	}
	formatter.VerboseLog("%d record(s) in %s", len(records), cfg.SQLitePath)

	rows := make([]statusRow, 0, len(records))
	for _, rec := range records {
		if opts.Pending && rec.RemoteRef != "" {
			continue
		}
		rows = append(rows, toStatusRow(rec))
	}
	return outputStatus(formatter, rows)
}

func toStatusRow(rec cache.Record) statusRow {
	return statusRow{
		IdentityKey: rec.IdentityKey,
		Provider:    string(rec.Provider),
		OccursAt:    rec.OccursAt,
		TimeUnknown: rec.TimeUnknown,
		RemoteRef:   rec.RemoteRef,
		LastUpdated: rec.LastUpdated,
	}
}

func outputStatus(formatter *OutputFormatter, rows []statusRow) error {
	if formatter.Format == "json" {
		return formatter.Success(rows)
	}

	if len(rows) == 0 {
		fmt.Fprintln(formatter.Writer, "No cached events")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tREMOTE\tUPDATED")
	for _, row := range rows {
		remote := row.RemoteRef
		if remote == "" {
			remote = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", row.IdentityKey, remote, row.LastUpdated.Format(time.RFC3339))
	}
	return tw.Flush()
}
