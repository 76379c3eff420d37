// Package source acquires raw booking notification messages.
//
// A Message is the provider-agnostic shape handed to parsers: headers,
// snippet, and the first text/plain and text/html bodies found in the MIME
// tree. GmailCollector fills Messages from a Gmail search query.
package source
