package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Flow runs the installed-app consent flow with a loopback redirect.
type Flow struct {
	Config *oauth2.Config
	// Prompt shows the consent URL to the user, typically by printing it.
	Prompt func(url string) error
	Logger *slog.Logger
}

type callback struct {
	code string
	err  error
}

// Run listens on an ephemeral 127.0.0.1 port, prompts with the consent URL
// and exchanges the returned code for a token. It returns when the browser
// hits the redirect or ctx ends.
func (f *Flow) Run(ctx context.Context) (*oauth2.Token, error) {
	log := f.Logger
	if log == nil {
		log = slog.Default()
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("auth flow: listen: %w", err)
	}

	cfg := *f.Config
	cfg.RedirectURL = "http://" + ln.Addr().String() + "/"
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	results := make(chan callback, 1)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res callback
		switch {
		case q.Get("state") != state:
			res.err = errors.New("auth flow: state mismatch")
		case q.Get("error") != "":
			res.err = fmt.Errorf("auth flow: consent denied: %s", q.Get("error"))
		case q.Get("code") == "":
			res.err = errors.New("auth flow: redirect without code")
		default:
			res.code = q.Get("code")
		}
		if res.err != nil {
			http.Error(w, res.err.Error(), http.StatusBadRequest)
		} else {
			fmt.Fprintln(w, "yogisync is authorised. You can close this window.")
		}
		select {
		case results <- res:
		default:
		}
	})}
	go srv.Serve(ln)
	defer srv.Close()

	url := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce, oauth2.S256ChallengeOption(verifier))
	log.Debug("auth flow: waiting for redirect", "redirect_url", cfg.RedirectURL)
	if err := f.Prompt(url); err != nil {
		return nil, fmt.Errorf("auth flow: prompt: %w", err)
	}

	var res callback
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("auth flow: %w", ctx.Err())
	case res = <-results:
	}
	if res.err != nil {
		return nil, res.err
	}

	tok, err := cfg.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("auth flow: exchange: %w", err)
	}
	return tok, nil
}
