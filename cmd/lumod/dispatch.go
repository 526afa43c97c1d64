package main

import (
	"context"
	"time"

	"github.com/hahatianx/lumo/aecrypt"
	"github.com/hahatianx/lumo/control"
	"github.com/hahatianx/lumo/lumoenv"
	"github.com/hahatianx/lumo/lumolog"
	"github.com/hahatianx/lumo/peers"
	"github.com/hahatianx/lumo/transfer"
)

// daemon bundles every long-lived component dispatch needs to react to
// an inbound control-plane message.
type daemon struct {
	env    lumoenv.Env
	cipher *aecrypt.Cipher

	conn     *control.Conn
	peers    *peers.Table
	sender   *transfer.Sender
	receiver *transfer.Receiver
	api      *apiHandler
}

// handleEnvelope decodes one parsed datagram and routes it to whichever
// component owns that message kind, replying over d.conn where the
// protocol calls for a response.
func (d *daemon) handleEnvelope(ctx context.Context, env control.Envelope) {
	msg, err := control.Decode(env.Tokens, d.cipher)
	if err != nil {
		lumolog.Info.Printf("control: dropping undecodable datagram from %s: %v", env.Addr, err)
		return
	}

	// Pull and ApiRequest handling both do real work (disk I/O, a
	// blocking network round trip) — per Handler's contract they must
	// hand off rather than stall Conn's single read loop. HELLO and
	// PULL_RESPONSE are cheap enough to run inline.
	switch m := msg.(type) {
	case control.Hello:
		d.handleHello(ctx, m)
	case control.ApiRequest:
		go d.handleApiRequest(ctx, env, m)
	case control.Pull:
		go d.handlePull(ctx, env, m)
	case control.PullResponseMsg:
		d.receiver.HandlePullResponse(m.Response)
	default:
		lumolog.Error.Printf("control: unhandled message type %T from %s", msg, env.Addr)
	}
}

func (d *daemon) handleHello(ctx context.Context, m control.Hello) {
	d.peers.UpdatePeer(peers.Peer{
		ID:                      m.MACAddr,
		Name:                    m.FromName,
		IP:                      m.FromIP,
		IsMain:                  m.Mode&control.ModeIsLeader != 0,
		IsActive:                true,
		LastSeenLocalMillis:     time.Now().UnixMilli(),
		LastSeenTZOffsetMinutes: localTZOffsetMinutes(),
	})
	if m.Mode&control.ModeRequestReply != 0 {
		reply := control.Hello{
			FromIP:   d.env.LocalIP.String(),
			FromPort: uint64(d.env.UDPPort),
			FromName: d.env.MachineName,
			MACAddr:  d.env.LocalMAC.String(),
			Mode:     0,
		}
		// Send can block for up to a dial timeout plus one retry, so it
		// runs off the read loop like Pull/ApiRequest do.
		go func() {
			if err := d.conn.Send(ctx, m.FromIP, reply.Encode()); err != nil {
				lumolog.Info.Printf("control: replying to HELLO from %s: %v", m.FromIP, err)
			}
		}()
	}
}

func (d *daemon) handlePull(ctx context.Context, env control.Envelope, m control.Pull) {
	decision := d.sender.HandlePull(ctx, env.Addr, m.Request)
	resp := control.PullResponseMsg{
		FromIP: d.env.LocalIP.String(),
		Response: control.PullResponse{
			FromIP:    d.env.LocalIP.String(),
			Decision:  decision,
			Timestamp: time.Now(),
		},
	}
	payload, err := resp.Encode(d.cipher)
	if err != nil {
		lumolog.Error.Printf("control: encoding PULL_RESPONSE: %v", err)
		return
	}
	if err := d.conn.Send(ctx, env.Addr.IP.String(), payload); err != nil {
		lumolog.Info.Printf("control: sending PULL_RESPONSE to %s: %v", env.Addr, err)
	}
}

func (d *daemon) handleApiRequest(ctx context.Context, env control.Envelope, m control.ApiRequest) {
	resp := d.api.handle(ctx, m.Request)
	out := control.ApiResponse{Response: resp}
	payload, err := out.Encode()
	if err != nil {
		lumolog.Error.Printf("control: encoding API_RESPONSE: %v", err)
		return
	}
	if err := d.conn.Send(ctx, env.Addr.IP.String(), payload); err != nil {
		lumolog.Info.Printf("control: sending API_RESPONSE to %s: %v", env.Addr, err)
	}
}

func localTZOffsetMinutes() int {
	_, offsetSeconds := time.Now().Zone()
	return offsetSeconds / 60
}
