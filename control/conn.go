package control

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hahatianx/lumo/aecrypt"
	"github.com/hahatianx/lumo/lumoerr"
	"github.com/hahatianx/lumo/lumolog"
	"github.com/hahatianx/lumo/retry"
	"github.com/hahatianx/lumo/sync/once"
	"github.com/hahatianx/lumo/wire"
)

const (
	// maxDatagram is the largest UDP payload a Conn will read or write.
	maxDatagram = 64 * 1024

	dialTimeout  = 3 * time.Second
	writeTimeout = 3 * time.Second
)

// Envelope is a parsed datagram handed to a Handler, tagged with the
// address it actually arrived from (independent of any from_ip token
// inside the message, which a peer could misreport).
type Envelope struct {
	Tokens []wire.Token
	Addr   *net.UDPAddr
}

// Handler processes one inbound datagram. Handlers run synchronously off
// Conn's read loop; a Handler that blocks stalls further reads, so
// handlers that do real work should hand off to a goroutine or a
// tasks.Queue themselves.
type Handler func(ctx context.Context, env Envelope)

// Conn owns the control plane's UDP listener, a cache of connected
// sockets keyed by destination (avoiding a fresh connect per send), and
// the broadcast path. Grounded on retry.Backoff for the single
// reconnect-and-retry a send gets, same shape as fslock's lock-wait
// backoff.
type Conn struct {
	listener *net.UDPConn
	selfIP   string
	port     int
	cipher   *aecrypt.Cipher

	mu    sync.Mutex
	conns map[string]*net.UDPConn

	closeOnce once.Task
}

// Listen binds the control socket on port, bound to all interfaces.
func Listen(port int, selfIP string, cipher *aecrypt.Cipher) (*Conn, error) {
	addr := &net.UDPAddr{Port: port}
	lc, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, lumoerr.E(lumoerr.Unavailable, "binding control socket", err)
	}
	return &Conn{
		listener: lc,
		selfIP:   selfIP,
		port:     port,
		cipher:   cipher,
		conns:    make(map[string]*net.UDPConn),
	}, nil
}

// Close releases the listener and every cached destination socket.
// Close releases the UDP listener and every dialed peer connection. It is
// safe to call more than once (e.g. once from the serve loop's error path
// and once from shutdown); only the first call does anything.
func (c *Conn) Close() error {
	return c.closeOnce.Do(func() error {
		c.mu.Lock()
		for dest, conn := range c.conns {
			conn.Close()
			delete(c.conns, dest)
		}
		c.mu.Unlock()
		return c.listener.Close()
	})
}

// Serve reads datagrams until ctx is done, tokenizing each with
// wire.ParseAll and dispatching to handle. Malformed datagrams are logged
// and dropped; datagrams from ignored senders (self-echo, loopback) are
// dropped silently, matching spec.md §4.6's ignore rules.
func (c *Conn) Serve(ctx context.Context, handle Handler) error {
	buf := make([]byte, maxDatagram)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		c.listener.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, addr, err := c.listener.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return lumoerr.E(lumoerr.Unavailable, "reading control socket", err)
		}
		tokens, err := wire.ParseAll(buf[:n])
		if err != nil {
			lumolog.Info.Printf("control: dropping malformed datagram from %s: %v", addr, err)
			continue
		}
		if len(tokens) == 0 || tokens[0].Kind != wire.KindSimple {
			continue
		}
		// API_REQUEST inverts the usual self-echo guard: only a request
		// arriving over loopback (the local CLI) is honored, everything
		// else is dropped as a non-local peer.
		if tokens[0].Str == "API_REQUEST" {
			if !addr.IP.IsLoopback() {
				continue
			}
			handle(ctx, Envelope{Tokens: tokens, Addr: addr})
			continue
		}
		if tokens[0].Str == "HELLO" {
			if c.shouldIgnoreHello(addr) {
				continue
			}
		} else if c.shouldIgnore(addr) {
			continue
		}
		handle(ctx, Envelope{Tokens: tokens, Addr: addr})
	}
}

// shouldIgnore drops datagrams from loopback or from our own address,
// the universal self-echo guard applied to every message kind except
// API_REQUEST (see Serve).
func (c *Conn) shouldIgnore(addr *net.UDPAddr) bool {
	return addr.IP.IsLoopback() || addr.IP.String() == c.selfIP
}

// shouldIgnoreHello applies HELLO's additional drop rule (identical to
// shouldIgnore today; kept distinct since spec.md calls it out
// separately and a future HELLO-specific exception would only touch
// this function).
func (c *Conn) shouldIgnoreHello(addr *net.UDPAddr) bool {
	return c.shouldIgnore(addr)
}

// Send writes a pre-encoded message to dest, reusing a cached connected
// socket when one exists. On a write failure the cached socket is
// dropped and a single reconnect-and-retry is attempted.
func (c *Conn) Send(ctx context.Context, dest string, payload []byte) error {
	conn, fresh, err := c.connFor(dest)
	if err != nil {
		return err
	}
	if err := writeWithTimeout(conn, payload); err == nil {
		return nil
	} else if fresh {
		return lumoerr.E(lumoerr.Unavailable, "writing to "+dest, err)
	}

	c.dropConn(dest)
	policy := retry.MaxRetries(retry.Backoff(50*time.Millisecond, 200*time.Millisecond, 2), 1)
	if err := retry.Wait(ctx, policy, 0); err != nil {
		return lumoerr.E(lumoerr.Unavailable, "reconnecting to "+dest, err)
	}
	conn, _, err = c.connFor(dest)
	if err != nil {
		return err
	}
	if err := writeWithTimeout(conn, payload); err != nil {
		c.dropConn(dest)
		return lumoerr.E(lumoerr.Unavailable, "writing to "+dest+" after reconnect", err)
	}
	return nil
}

// Broadcast writes payload to the limited broadcast address
// 255.255.255.255 on the control port. The cached
// broadcast socket is created with SO_BROADCAST semantics implicit in
// dialing 255.255.255.255, which the Go runtime permits without extra
// setsockopt calls on the platforms this daemon targets.
func (c *Conn) Broadcast(ctx context.Context, payload []byte) error {
	dest := "255.255.255.255"
	return c.Send(ctx, dest, payload)
}

func (c *Conn) connFor(dest string) (conn *net.UDPConn, fresh bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.conns[dest]; ok {
		return existing, false, nil
	}
	raddr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(dest, strconv.Itoa(c.port)))
	if err != nil {
		return nil, false, lumoerr.E(lumoerr.Invalid, "resolving "+dest, err)
	}
	nc, err := net.DialTimeout("udp4", raddr.String(), dialTimeout)
	if err != nil {
		return nil, false, lumoerr.E(lumoerr.Unavailable, "dialing "+dest, err)
	}
	udpConn := nc.(*net.UDPConn)
	c.conns[dest] = udpConn
	return udpConn, true, nil
}

func (c *Conn) dropConn(dest string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[dest]; ok {
		conn.Close()
		delete(c.conns, dest)
	}
}

func writeWithTimeout(conn *net.UDPConn, payload []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := conn.Write(payload)
	return err
}
