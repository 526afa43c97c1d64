package control

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/hahatianx/lumo/lumoerr"
)

// RejectionReason enumerates the wire codes a PULL can be rejected with,
// per spec.md §4.7.4.
type RejectionReason int

const (
	FileOutdated  RejectionReason = 400
	FileInvalid   RejectionReason = 401
	AccessDenied  RejectionReason = 403
	FileNotFound  RejectionReason = 404
	InternalError RejectionReason = 500
)

// Checksum is a PULL request's optional expected checksum: either "Any"
// (HasValue == false) or a specific value.
type Checksum struct {
	HasValue bool
	Value    uint64
}

// Any is the "no expectation" checksum.
var Any = Checksum{}

// Expected builds a specific-value checksum.
func Expected(v uint64) Checksum { return Checksum{HasValue: true, Value: v} }

// PullRequest is the plaintext payload AEAD-encrypted inside a PULL
// message's Data token.
type PullRequest struct {
	FromIP    string
	Path      string
	Checksum  Checksum
	Challenge uint64
	Timestamp time.Time
}

// Fresh reports whether the request's embedded timestamp is still within
// validity, guarding against replay of a stale PULL.
func (r PullRequest) Fresh(now time.Time, validity time.Duration) bool {
	return now.Sub(r.Timestamp) < validity
}

// PullDecision is the server's reply to a PULL: either Accept(challenge,
// nonce) or Reject(challenge, reason).
type PullDecision struct {
	Accepted  bool
	Challenge uint64
	Nonce     uint64
	Reason    RejectionReason
}

// PullResponse is the plaintext payload AEAD-encrypted inside a
// PULL_RESPONSE message's Data token.
type PullResponse struct {
	FromIP    string
	Decision  PullDecision
	Timestamp time.Time
}

func init() {
	gob.Register(PullRequest{})
	gob.Register(PullResponse{})
}

// encodePullRequest gob-encodes r for AEAD sealing.
func encodePullRequest(r PullRequest) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, lumoerr.E(lumoerr.Invalid, "encoding pull request", err)
	}
	return buf.Bytes(), nil
}

func decodePullRequest(b []byte) (PullRequest, error) {
	var r PullRequest
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&r); err != nil {
		return PullRequest{}, lumoerr.E(lumoerr.Invalid, "decoding pull request", err)
	}
	return r, nil
}

func encodePullResponse(r PullResponse) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, lumoerr.E(lumoerr.Invalid, "encoding pull response", err)
	}
	return buf.Bytes(), nil
}

func decodePullResponse(b []byte) (PullResponse, error) {
	var r PullResponse
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&r); err != nil {
		return PullResponse{}, lumoerr.E(lumoerr.Invalid, "decoding pull response", err)
	}
	return r, nil
}
