package event

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// DomainFingerprint separates fingerprint hashes from any other SHA-256 use.
// The version suffix allows the tuple to change without colliding with
// fingerprints already stored in the cache.
const DomainFingerprint = "yogisync/fingerprint/v1"

// Fingerprint returns the hex SHA-256 of the event's mutable attributes.
//
// The tuple is provider, title, occurs-at (with seconds), location, address,
// instructor, reservation id, source url, confidence to two decimals, and the
// time-unknown flag as "1"/"0", joined by "|".
func (e *Event) Fingerprint() string {
	if e.fingerprint != "" {
		return e.fingerprint
	}
	e.fingerprint = hashWithDomain(DomainFingerprint, []byte(fingerprintPayload(e)))
	return e.fingerprint
}

func fingerprintPayload(e *Event) string {
	unknown := "0"
	if e.TimeUnknown {
		unknown = "1"
	}
	return strings.Join([]string{
		string(e.Provider),
		e.Title,
		e.OccursAt.Format(instantLayout),
		e.LocationName,
		e.Address,
		e.Instructor,
		e.ReservationID,
		e.SourceURL,
		fmt.Sprintf("%.2f", e.Confidence),
		unknown,
	}, "|")
}

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
