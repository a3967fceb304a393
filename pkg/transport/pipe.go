package transport

import (
	"net"
	"sync"
	"time"

	"github.com/coap-ace/acegatt/pkg/coap"
	"github.com/pion/transport/v3/test"
)

// Pipe provides bidirectional in-memory communication between a device
// adapter and a peer, for deterministic tests without real network I/O.
// It wraps pion's test.Bridge; a background ticker shuttles messages.
// The bridge is packet-oriented, which matches characteristic writes:
// one write per message, no stream framing.
type Pipe struct {
	bridge *test.Bridge

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPipe creates a pipe with automatic message delivery.
func NewPipe() *Pipe {
	p := &Pipe{
		bridge: test.NewBridge(),
		stopCh: make(chan struct{}),
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()

	return p
}

// DeviceConn returns the device-side message connection, to be wrapped
// in an Adapter via NewAdapter.
func (p *Pipe) DeviceConn() MessageConn {
	return NewPacketConn(p.bridge.GetConn0(), 0)
}

// PeerConn returns the peer-side message connection.
func (p *Pipe) PeerConn() MessageConn {
	return NewPacketConn(p.bridge.GetConn1(), 0)
}

// Close stops message delivery and closes both ends.
func (p *Pipe) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	p.bridge.GetConn0().Close()
	p.bridge.GetConn1().Close()
}

// Peer drives the peer side of a connection: it writes request messages
// and reads response messages, mirroring a client's view of the
// characteristic (write request, read response).
type Peer struct {
	conn MessageConn
	mu   sync.Mutex
}

// NewPeer wraps the peer side of a connection.
func NewPeer(conn MessageConn) *Peer {
	return &Peer{conn: conn}
}

// DialPeer connects to a Listener and returns the peer wrapper.
func DialPeer(addr string) (*Peer, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewPeer(NewStreamConn(conn, 0)), nil
}

// Exchange sends one request and blocks for its response.
func (p *Peer) Exchange(req *coap.Request) (*coap.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := coap.EncodeRequest(req)
	if err != nil {
		return nil, err
	}
	if err := p.conn.WriteMessage(data); err != nil {
		return nil, err
	}

	msg, err := p.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return coap.DecodeResponse(msg)
}

// SendRaw writes an arbitrary message, for malformed-input tests.
func (p *Peer) SendRaw(msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteMessage(msg)
}

// Close closes the peer side of the connection.
func (p *Peer) Close() error {
	return p.conn.Close()
}
