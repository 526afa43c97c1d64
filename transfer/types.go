// Package transfer implements the TCP data plane (component G) and the
// pending-transfer registries (component H): the sender/receiver state
// machines that move an encrypted file copy after a PULL/PULL_RESPONSE
// handshake has established a nonce, and the nonce/challenge-keyed
// tracking tables each side uses to claim the in-flight job when the
// TCP connection actually arrives.
package transfer

import (
	"time"

	"github.com/hahatianx/lumo/control"
	"github.com/hahatianx/lumo/tasks"
)

// PendingPull is the server-side record of a file prepared to be sent:
// the source has already been checksummed and encrypted whole into a
// temp file by the time this is registered, and Nonce is what an
// inbound FileSync must present over TCP to claim it.
type PendingPull struct {
	Nonce             uint64
	OriginalAbsPath   string
	TempEncryptedPath string
	FileSize          int64
	CreatedAt         time.Time
	Job               *tasks.ClaimableJob
}

// PendingDownload is the client-side record of a file awaiting
// reception, created the moment a PullFile request is accepted locally
// and before the PULL has even been sent.
type PendingDownload struct {
	Challenge     uint64
	TargetAbsPath string
	FromChecksum  control.Checksum
	ToChecksum    control.Checksum
	CreatedAt     time.Time
	Job           *tasks.ClaimableJob

	decisionCh chan control.PullDecision
}
