package transport

import (
	"net"
	"sync"

	"github.com/pion/logging"
)

// DefaultListenAddr is the default simulator listen address.
const DefaultListenAddr = ":5683"

// ConnectionHandler is called once per accepted peer connection.
// The handler owns the adapter from that point on.
type ConnectionHandler func(*Adapter)

// ListenerConfig configures the peripheral listener.
type ListenerConfig struct {
	// Listener is an optional pre-existing listener to use.
	// If nil, a new one is created on ListenAddr.
	Listener net.Listener

	// ListenAddr is the address to listen on (default: DefaultListenAddr).
	// Ignored if Listener is provided.
	ListenAddr string

	// MaxMessageSize bounds frames in both directions
	// (default: DefaultMaxMessageSize).
	MaxMessageSize int

	// ConnectionHandler is called for each accepted connection. Required.
	ConnectionHandler ConnectionHandler

	// OnConnectionLost is passed to every adapter.
	OnConnectionLost func(ConnectionID, error)

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Listener simulates the wireless peripheral: every accepted TCP
// connection stands in for one peer link and gets its own Adapter.
type Listener struct {
	listener       net.Listener
	handler        ConnectionHandler
	onLost         func(ConnectionID, error)
	maxMessageSize int
	loggerFactory  logging.LoggerFactory
	log            logging.LeveledLogger

	closeCh chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewListener creates a peripheral listener.
func NewListener(config ListenerConfig) (*Listener, error) {
	if config.ConnectionHandler == nil {
		return nil, ErrNoHandler
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}

	l := &Listener{
		listener:       config.Listener,
		handler:        config.ConnectionHandler,
		onLost:         config.OnConnectionLost,
		maxMessageSize: config.MaxMessageSize,
		loggerFactory:  config.LoggerFactory,
		closeCh:        make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		l.log = config.LoggerFactory.NewLogger("transport")
	}

	if l.listener == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = DefaultListenAddr
		}
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		l.listener = listener
	}

	return l, nil
}

// Start begins accepting peer connections.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if l.started {
		return nil
	}
	l.started = true

	l.wg.Add(1)
	go l.acceptLoop()

	if l.log != nil {
		l.log.Infof("listening on %s", l.listener.Addr())
	}
	return nil
}

// Addr returns the listen address.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Stop closes the listener. Established adapters are not closed here;
// their owners tear them down individually.
func (l *Listener) Stop() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.closeCh)
	err := l.listener.Close()
	l.mu.Unlock()

	l.wg.Wait()
	return err
}

// acceptLoop hands each accepted connection to the handler.
func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.closeCh:
				return
			default:
			}
			if l.log != nil {
				l.log.Warnf("accept: %v", err)
			}
			return
		}

		adapter := NewAdapter(AdapterConfig{
			Conn:             NewStreamConn(conn, l.maxMessageSize),
			OnConnectionLost: l.onLost,
			LoggerFactory:    l.loggerFactory,
		})
		l.handler(adapter)
	}
}
