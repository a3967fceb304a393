package transport

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/coap-ace/acegatt/pkg/coap"
	"github.com/pion/logging"
)

// Adapter bridges one peer connection to the request/response model.
// Inbound messages are decoded into requests; Send writes a response
// message back on the same connection.
//
// The characteristic protocol carries at most one request in flight per
// connection, so the inbound queue has depth one. A peer that pipelines
// requests violates the protocol and loses the connection.
type Adapter struct {
	id     ConnectionID
	conn   MessageConn
	in     chan *coap.Request
	onLost func(ConnectionID, error)
	log    logging.LeveledLogger

	writeMu   sync.Mutex
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// AdapterConfig configures a connection adapter.
type AdapterConfig struct {
	// Conn is the underlying message connection. Required.
	Conn MessageConn

	// OnConnectionLost is called exactly once when the connection ends,
	// with the framing error that killed it (nil for orderly close).
	OnConnectionLost func(ConnectionID, error)

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewAdapter wraps a message connection and starts its read loop.
func NewAdapter(config AdapterConfig) *Adapter {
	a := &Adapter{
		id:     NewConnectionID(),
		conn:   config.Conn,
		in:     make(chan *coap.Request, 1),
		onLost: config.OnConnectionLost,
	}
	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("transport")
	}

	a.wg.Add(1)
	go a.readLoop()

	return a
}

// ID returns the connection handle.
func (a *Adapter) ID() ConnectionID {
	return a.id
}

// Next returns the inbound request channel. It is closed on connection
// loss; a closed channel is the adapter's cancellation signal.
func (a *Adapter) Next() <-chan *coap.Request {
	return a.in
}

// Receive returns the pending request without blocking.
// Returns ErrWouldBlock if none is pending, ErrClosed after loss.
func (a *Adapter) Receive() (*coap.Request, error) {
	select {
	case req, ok := <-a.in:
		if !ok {
			return nil, ErrClosed
		}
		return req, nil
	default:
		return nil, ErrWouldBlock
	}
}

// Send writes a response message to the peer.
func (a *Adapter) Send(resp *coap.Response) error {
	data, err := coap.EncodeResponse(resp)
	if err != nil {
		return err
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.conn.WriteMessage(data)
}

// Close tears the connection down. Safe to call multiple times.
func (a *Adapter) Close() error {
	err := a.conn.Close()
	a.wg.Wait()
	return err
}

// readLoop decodes inbound messages until the connection ends.
func (a *Adapter) readLoop() {
	defer a.wg.Done()

	for {
		msg, err := a.conn.ReadMessage()
		if err != nil {
			a.teardown(lossCause(err))
			return
		}

		req, err := coap.DecodeRequest(msg)
		if err != nil {
			if a.log != nil {
				a.log.Warnf("connection %s: malformed request: %v", a.id, err)
			}
			a.teardown(err)
			return
		}

		select {
		case a.in <- req:
		default:
			a.teardown(ErrPipelined)
			return
		}
	}
}

// teardown closes the connection once and notifies the loss callback.
// cause is nil for an orderly peer close.
func (a *Adapter) teardown(cause error) {
	a.closeOnce.Do(func() {
		a.conn.Close()
		close(a.in)
		if cause != nil && a.log != nil {
			a.log.Infof("connection %s lost: %v", a.id, cause)
		}
		if a.onLost != nil {
			a.onLost(a.id, cause)
		}
	})
}

// lossCause maps orderly stream termination to nil, keeping real
// framing violations as the loss cause.
func lossCause(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
