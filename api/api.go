// Package api defines the request/response types carried across the
// external CLI/RPC boundary's API_REQUEST and API_RESPONSE wire messages.
// The boundary itself (wizard, flags, pretty-printers) is out of scope;
// only these types and the handler contract that consumes them live here.
package api

import (
	"bytes"
	"encoding/gob"

	"github.com/hahatianx/lumo/lumoerr"
)

// RequestKind discriminates the kinds of ApiRequest the daemon accepts.
type RequestKind int

const (
	Info RequestKind = iota
	ListPeers
	LocalPullFile
	PullFile
	ListTasks
	ListLocalFiles
)

// ResponseKind discriminates the kinds of ApiResponse the daemon returns.
type ResponseKind int

const (
	RespError ResponseKind = iota
	RespListPeers
	RespLocalPullFile
	RespListTasks
	RespListLocalFiles
	RespInfo
)

// Request is the tagged-union payload carried inside an API_REQUEST
// message's Data token.
type Request struct {
	Kind RequestKind

	// LocalPullFile / PullFile fields.
	Path             string
	ExpectedChecksum uint64
	HasChecksum      bool
	PeerID           string // PullFile only
}

// Response is the tagged-union payload carried inside an API_RESPONSE
// message's Data token.
type Response struct {
	Kind ResponseKind

	ErrorMessage string

	Peers      []PeerSummary
	Tasks      []TaskSummary
	LocalFiles []string
	PullNonce  uint64
	Info       NodeInfo
}

// PeerSummary is the wire-level view of a peers.Table entry.
type PeerSummary struct {
	ID       string
	Name     string
	IP       string
	IsMain   bool
	IsActive bool
}

// TaskSummary is the wire-level view of a tasks.Table entry.
type TaskSummary struct {
	JobID  uint64
	Name   string
	Status string
}

// NodeInfo answers an Info request. It completes the Info request/response
// gap left open by the distilled spec with a simple identity+liveness
// snapshot, since nothing else has a defined response shape.
type NodeInfo struct {
	Name      string
	IP        string
	MAC       string
	PeerCount int
	Version   string
}

func init() {
	gob.Register(Request{})
	gob.Register(Response{})
}

// EncodeRequest gob-encodes r for transport inside an API_REQUEST's Data
// token.
func EncodeRequest(r Request) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, lumoerr.E(lumoerr.Invalid, "encoding api request", err)
	}
	return buf.Bytes(), nil
}

// DecodeRequest reverses EncodeRequest.
func DecodeRequest(b []byte) (Request, error) {
	var r Request
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&r); err != nil {
		return Request{}, lumoerr.E(lumoerr.Invalid, "decoding api request", err)
	}
	return r, nil
}

// EncodeResponse gob-encodes r for transport inside an API_RESPONSE's
// Data token.
func EncodeResponse(r Response) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, lumoerr.E(lumoerr.Invalid, "encoding api response", err)
	}
	return buf.Bytes(), nil
}

// DecodeResponse reverses EncodeResponse.
func DecodeResponse(b []byte) (Response, error) {
	var r Response
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&r); err != nil {
		return Response{}, lumoerr.E(lumoerr.Invalid, "decoding api response", err)
	}
	return r, nil
}
