// Package auth obtains Google OAuth2 credentials for Gmail and Calendar.
//
// The client secret is the "installed application" JSON downloaded from the
// Google Cloud console. The user's token lives in a separate JSON file;
// refreshed tokens are written back to it so a long-running daemon does
// not lose its session. When no token exists, Flow runs the consent dance
// through a loopback redirect on 127.0.0.1.
package auth
