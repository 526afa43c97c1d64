package main

import (
	"context"
	"path/filepath"

	"github.com/hahatianx/lumo/api"
	"github.com/hahatianx/lumo/control"
	"github.com/hahatianx/lumo/fsindex"
	"github.com/hahatianx/lumo/lumoenv"
	"github.com/hahatianx/lumo/peers"
	"github.com/hahatianx/lumo/tasks"
	"github.com/hahatianx/lumo/transfer"
)

// apiHandler answers API_REQUEST messages (spec.md §6's external
// boundary): the CLI/RPC surface itself is out of scope, only the
// handler contract these six request kinds drive.
type apiHandler struct {
	env      lumoenv.Env
	peers    *peers.Table
	tasks    *tasks.Table
	idx      *fsindex.Index
	sender   *transfer.Sender
	receiver *transfer.Receiver
}

func (h *apiHandler) handle(ctx context.Context, req api.Request) api.Response {
	switch req.Kind {
	case api.Info:
		return h.info()
	case api.ListPeers:
		return h.listPeers()
	case api.ListTasks:
		return h.listTasks()
	case api.ListLocalFiles:
		return h.listLocalFiles()
	case api.LocalPullFile:
		return h.localPullFile(ctx, req)
	case api.PullFile:
		return h.pullFile(ctx, req)
	default:
		return errResponse("unknown request kind")
	}
}

func (h *apiHandler) info() api.Response {
	return api.Response{
		Kind: api.RespInfo,
		Info: api.NodeInfo{
			Name:      h.env.MachineName,
			IP:        h.env.LocalIP.String(),
			MAC:       h.env.LocalMAC.String(),
			PeerCount: len(h.peers.GetPeers()),
			Version:   daemonVersion,
		},
	}
}

func (h *apiHandler) listPeers() api.Response {
	peerList := h.peers.GetPeers()
	out := make([]api.PeerSummary, 0, len(peerList))
	for _, p := range peerList {
		out = append(out, api.PeerSummary{ID: p.ID, Name: p.Name, IP: p.IP, IsMain: p.IsMain, IsActive: p.IsActive})
	}
	return api.Response{Kind: api.RespListPeers, Peers: out}
}

func (h *apiHandler) listTasks() api.Response {
	jobs := h.tasks.List()
	out := make([]api.TaskSummary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, api.TaskSummary{JobID: j.JobID, Name: j.Name, Status: j.Status.String()})
	}
	return api.Response{Kind: api.RespListTasks, Tasks: out}
}

func (h *apiHandler) listLocalFiles() api.Response {
	return api.Response{Kind: api.RespListLocalFiles, LocalFiles: h.idx.ActivePaths()}
}

// localPullFile prepares a claimable temp copy of a file already on this
// machine, per the "Local pull accept" scenario: the caller and the file
// share a filesystem, so the request carries only a relative path plus
// the checksum it expects the file to still match.
func (h *apiHandler) localPullFile(ctx context.Context, req api.Request) api.Response {
	abs := filepath.Join(h.env.WorkDir, req.Path)
	nonce, reason, err := h.sender.PrepareLocal(ctx, abs, requestedChecksum(req))
	if err != nil {
		return errResponse(err.Error())
	}
	if reason != 0 {
		return errResponse(rejectionMessage(reason))
	}
	return api.Response{Kind: api.RespLocalPullFile, PullNonce: nonce}
}

// pullFile drives a full remote pull to completion and reports only
// success/failure: spec.md's own ApiResponseKind enumeration has no
// distinct PullFile variant, so outcome is carried as Error("") on
// success and Error(reason) otherwise, matching the upstream gap rather
// than inventing a response shape the wire format doesn't have.
func (h *apiHandler) pullFile(ctx context.Context, req api.Request) api.Response {
	peer, ok := h.peers.GetPeer(req.PeerID)
	if !ok {
		return errResponse("unknown or inactive peer: " + req.PeerID)
	}
	abs := filepath.Join(h.env.WorkDir, req.Path)
	if err := h.receiver.PullFile(ctx, peer.IP, req.Path, abs, control.Any, requestedChecksum(req)); err != nil {
		return errResponse(err.Error())
	}
	return api.Response{Kind: api.RespError}
}

func requestedChecksum(req api.Request) control.Checksum {
	if !req.HasChecksum {
		return control.Any
	}
	return control.Expected(req.ExpectedChecksum)
}

func errResponse(msg string) api.Response {
	return api.Response{Kind: api.RespError, ErrorMessage: msg}
}

func rejectionMessage(reason control.RejectionReason) string {
	switch reason {
	case control.FileOutdated:
		return "file outdated"
	case control.FileInvalid:
		return "file invalid"
	case control.AccessDenied:
		return "access denied"
	case control.FileNotFound:
		return "file not found"
	default:
		return "internal error"
	}
}
