package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/yogisync/internal/auth"
)

// AuthOptions holds flags for the auth command.
type AuthOptions struct {
	*RootOptions

	// prompt overrides how the consent URL is shown (for testing).
	prompt func(url string) error
}

// authResult is the auth command's JSON payload.
type authResult struct {
	TokenPath string `json:"token_path"`
	Refresh   bool   `json:"refresh_token"`
}

// NewAuthCommand creates the auth command.
func NewAuthCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuthOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorise access to Gmail and Google Calendar",
		Long: `Run the OAuth consent flow for the client in google_client_secret_path
and store the resulting token at google_token_path.

A one-off listener on 127.0.0.1 receives the browser redirect, so run this on
the machine whose browser completes the consent.

Example:
  yogisync auth
  GOOGLE_TOKEN_PATH=secrets/token.json yogisync auth`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuth(cmd, opts)
		},
	}

	return cmd
}

func runAuth(cmd *cobra.Command, opts *AuthOptions) error {
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
	oauthCfg, err := auth.LoadConfig(cfg.ClientSecretPath, auth.Scopes...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load client secret", err)
	}

	prompt := opts.prompt
	if prompt == nil {
		prompt = func(url string) error {
			_, err := fmt.Fprintf(cmd.ErrOrStderr(), "Open this URL in your browser to authorise yogisync:\n\n  %s\n\n", url)
			return err
		}
	}

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	flow := &auth.Flow{Config: oauthCfg, Prompt: prompt, Logger: logger}
	tok, err := flow.Run(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "authorisation failed", err)
	}
	if err := auth.SaveToken(cfg.TokenPath, tok); err != nil {
		return WrapExitError(ExitFailure, "failed to save token", err)
	}
	if tok.RefreshToken == "" {
		logger.Warn("token has no refresh token, it will stop working when it expires")
	}

	if formatter.Format == "json" {
		return formatter.Success(authResult{TokenPath: cfg.TokenPath, Refresh: tok.RefreshToken != ""})
	}
	fmt.Fprintf(formatter.Writer, "Token saved to %s\n", cfg.TokenPath)
	return nil
}
