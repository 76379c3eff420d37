// Package parse turns booking notification mails into events.
//
// Detect picks the provider of a message from its sender, subject and body.
// A Registry maps each provider to the Parser that knows its mail layout.
// Parsers report false when a message carries no usable date; such messages
// are skipped by the caller rather than treated as errors.
//
// All providers write in Japanese. Dates such as "2024年5月1日(水) 19時00分"
// or full-width "２０２４/５/１ １９:００" are normalised before matching,
// and a date without a year takes the year of the registry's clock.
package parse
