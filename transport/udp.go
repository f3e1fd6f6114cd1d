// Package transport implements the datagram substrate external to the
// consensus core (spec.md §1, §6): a length-framed (one JSON record per
// UDP datagram) channel between named endpoints. Each replica process
// owns one UDPTransport and both sends and receives through it; the
// process launcher (cmd/replica) is responsible for handing it the port
// named on its command line, exactly as spec.md §6's CLI surface
// describes ("port id others...").
package transport

import (
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/ReshiAdavan/raftkv/raft"
)

// MaxFrameSize is the maximum datagram body, per spec.md §6.
const MaxFrameSize = 65535

// UDPTransport implements raft.Transport over a single UDP socket shared
// for both sending and receiving. It binds the port named on the
// replica's own command line and resolves outbound destinations by
// looking up the message's declared dst identifier in a small address
// book, since spec.md §3 addresses peers by four-character id, not by
// network address.
type UDPTransport struct {
	conn *net.UDPConn
	self string
	book map[string]*net.UDPAddr
	log  *zap.SugaredLogger
	buf  []byte
}

// NewUDP binds a UDP socket on 127.0.0.1:port — the replica's own
// endpoint — and returns a transport with an empty address book. Callers
// populate peer addresses with Register before the event loop starts.
func NewUDP(port int, self string, log *zap.SugaredLogger) (*UDPTransport, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port})
	if err != nil {
		return nil, fmt.Errorf("transport: listen: %w", err)
	}
	return &UDPTransport{
		conn: conn,
		self: self,
		book: make(map[string]*net.UDPAddr),
		log:  log,
		buf:  make([]byte, MaxFrameSize),
	}, nil
}

// Register records the UDP address a peer id can be reached at.
func (t *UDPTransport) Register(id string, port int) {
	t.book[id] = &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port}
}

// Send implements raft.Transport. dst == raft.Broadcast fans out to every
// registered peer (the replica's startup hello is sent this way).
func (t *UDPTransport) Send(m raft.Message) error {
	body, err := raft.Encode(m)
	if err != nil {
		return fmt.Errorf("transport: encode: %w", err)
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("transport: frame too large (%d bytes)", len(body))
	}
	if m.Dst == raft.Broadcast {
		for id, addr := range t.book {
			if id == t.self {
				continue
			}
			if _, err := t.conn.WriteToUDP(body, addr); err != nil {
				t.log.Warnw("broadcast send failed", "dst", id, "err", err)
			}
		}
		return nil
	}
	addr, ok := t.book[m.Dst]
	if !ok {
		return fmt.Errorf("transport: unknown peer %q", m.Dst)
	}
	_, err = t.conn.WriteToUDP(body, addr)
	return err
}

// Recv implements raft.Transport: it blocks for at most timeout and
// reports ok=false both on timeout and on a malformed datagram — spec.md
// §7 treats DecodeError as a silent drop, not a fatal error.
func (t *UDPTransport) Recv(timeout time.Duration) (raft.Message, bool) {
	_ = t.conn.SetReadDeadline(time.Now().Add(timeout))
	n, _, err := t.conn.ReadFromUDP(t.buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return raft.Message{}, false
		}
		// A non-timeout read error on our own socket means the endpoint
		// is gone (closed by Close, or the OS tore it down).
		t.log.Warnw("udp read error", "err", fmt.Errorf("%w: %v", raft.ErrTransportClosed, err))
		return raft.Message{}, false
	}
	m, err := raft.Decode(t.buf[:n])
	if err != nil {
		t.log.Warnw("dropping undecodable message", "err", err)
		return raft.Message{}, false
	}
	return m, true
}

// Close releases the underlying socket.
func (t *UDPTransport) Close() error { return t.conn.Close() }
