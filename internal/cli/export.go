package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/yogisync/internal/export"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output string
	Name   string
}

// exportResult is the export command's JSON payload when writing a file.
type exportResult struct {
	Path   string `json:"path"`
	Events int    `json:"events"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write cached events as an iCalendar file",
		Long: `Render every event in the local cache as an iCalendar (.ics) file.
UIDs are derived from identity keys, so re-importing an updated export
replaces events instead of duplicating them.

Example:
  yogisync export -o classes.ics
  yogisync export > classes.ics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "-", "output file (- for stdout)")
	cmd.Flags().StringVar(&opts.Name, "name", "yogisync", "calendar name (X-WR-CALNAME)")

	return cmd
}

func runExport(cmd *cobra.Command, opts *ExportOptions) error {
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
	loc, err := cfg.Location()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
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

	exportOpts := export.Options{
		Name:     opts.Name,
		Duration: cfg.EventDuration(),
		Location: loc,
	}

	if opts.Output == "-" {
		if err := export.Write(cmd.OutOrStdout(), records, exportOpts); err != nil {
			return WrapExitError(ExitFailure, "failed to write calendar", err)
		}
		return nil
	}

	f, err := os.Create(opts.Output)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create output file", err)
	}
	if err := export.Write(f, records, exportOpts); err != nil {
		f.Close()
		return WrapExitError(ExitFailure, "failed to write calendar", err)
	}
	if err := f.Close(); err != nil {
		return WrapExitError(ExitFailure, "failed to write calendar", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(exportResult{Path: opts.Output, Events: len(records)})
	}
	fmt.Fprintf(formatter.Writer, "Wrote %d event(s) to %s\n", len(records), opts.Output)
	return nil
}
