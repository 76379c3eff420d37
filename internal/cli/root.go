package cli

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/yogisync/internal/auth"
	"github.com/roach88/yogisync/internal/config"
	"github.com/roach88/yogisync/internal/remote"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	EnvFile    string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the yogisync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "yogisync",
		Short: "yogisync - studio bookings to one calendar",
		Long: `Reads booking confirmation mail from yoga and fitness studios, keeps a
local record of every booked class, and mirrors each one into a single
calendar exactly once, however often it runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return exitErrorf(ExitCommandError, "invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultPath, "path to YAML config (optional)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before the environment is read")

	// Add subcommands
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewDaemonCommand(opts))
	cmd.AddCommand(NewAuthCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// Execute runs the CLI with args and returns the process exit code.
// Failures are reported once here: JSON errors go to stdout next to any
// JSON result, text errors go to stderr.
func Execute(args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}

	format, _ := cmd.PersistentFlags().GetString("format")
	formatter := &OutputFormatter{Format: "text", Writer: stderr}
	if format == "json" {
		formatter = &OutputFormatter{Format: "json", Writer: stdout}
	}
	_ = formatter.Error(errorCode(err), err.Error())
	return GetExitCode(err)
}

// errorCode classifies err for CLIError.Code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, auth.ErrNoToken):
		return ErrCodeAuth
	case errors.Is(err, remote.ErrNoDestination):
		return ErrCodeConfig
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code == ExitCommandError {
		return ErrCodeConfig
	}
	return ErrCodeFailure
}
