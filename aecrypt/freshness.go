package aecrypt

import "time"

// DefaultValidity is the "pull task validity" window: a decrypted
// message's inner timestamp older than this is rejected.
const DefaultValidity = 5 * time.Second

// Fresh reports whether sentAt is within validity of now.
func Fresh(sentAt, now time.Time, validity time.Duration) bool {
	return now.Sub(sentAt) <= validity
}
