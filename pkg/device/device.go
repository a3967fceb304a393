package device

import (
	"crypto/rand"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
	"golang.org/x/crypto/curve25519"

	"github.com/coap-ace/acegatt/pkg/authz"
	"github.com/coap-ace/acegatt/pkg/coap"
	"github.com/coap-ace/acegatt/pkg/discovery"
	"github.com/coap-ace/acegatt/pkg/resource"
	"github.com/coap-ace/acegatt/pkg/securechannel"
	"github.com/coap-ace/acegatt/pkg/securechannel/edhoc"
	"github.com/coap-ace/acegatt/pkg/session"
	"github.com/coap-ace/acegatt/pkg/token"
	"github.com/coap-ace/acegatt/pkg/transport"
)

// expireInterval is how often half-finished handshakes are swept.
const expireInterval = time.Second

// Options carries construction-time dependencies a Device cannot pick
// for itself.
type Options struct {
	// Config is the validated device configuration. Required.
	Config Config

	// Listener optionally provides a pre-bound TCP listener (tests use
	// this to get an ephemeral port).
	Listener net.Listener

	// ServerFactory optionally overrides mDNS registration.
	ServerFactory discovery.MDNSServerFactory

	// LoggerFactory customizes logging (default: pion defaults).
	LoggerFactory logging.LoggerFactory
}

// Device is one running simulated sensor node.
type Device struct {
	config Config
	log    logging.LeveledLogger

	clock       *SystemClock
	thermometer *Thermometer
	leds        *LEDBank

	registry    *session.Registry
	coordinator *securechannel.Coordinator
	processor   *token.Processor
	table       *authz.Table
	dispatcher  *resource.Dispatcher
	listener    *transport.Listener
	advertiser  *discovery.Advertiser

	staticPublic []byte

	mu       sync.Mutex
	conns    map[transport.ConnectionID]*transport.Adapter
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New assembles a device from its configuration. The device is created
// stopped; call Start to bind the listener.
func New(options Options) (*Device, error) {
	config := options.Config
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	loggerFactory := options.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}

	d := &Device{
		config:      config,
		log:         loggerFactory.NewLogger("device"),
		clock:       NewSystemClock(),
		thermometer: NewThermometer(config.Temperature),
		leds:        NewLEDBank(config.LEDCount),
		conns:       make(map[transport.ConnectionID]*transport.Adapter),
		stopCh:      make(chan struct{}),
	}

	d.registry = session.NewRegistry(session.RegistryConfig{
		MaxSessions:   config.MaxSessions,
		LoggerFactory: loggerFactory,
	})

	staticKey, err := d.staticKey()
	if err != nil {
		return nil, err
	}
	d.staticPublic, err = curve25519.X25519(staticKey, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("device: derive handshake public key: %w", err)
	}

	d.coordinator, err = securechannel.NewCoordinator(securechannel.CoordinatorConfig{
		Registry:      d.registry,
		NewEngine:     edhoc.NewEngineFactory(staticKey, rand.Reader),
		Timeout:       config.HandshakeTimeout,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		return nil, err
	}

	tokenKey, err := decodeKey(config.TokenKey)
	if err != nil {
		return nil, err
	}
	verifier, err := token.NewSymmetricVerifier(tokenKey)
	if err != nil {
		return nil, err
	}
	d.processor, err = token.NewProcessor(token.ProcessorConfig{
		Verifier:      verifier,
		Bindings:      d.coordinator,
		Clock:         d.clock,
		Audience:      config.Audience,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		return nil, err
	}

	table, err := authz.NewTable(d.descriptors())
	if err != nil {
		return nil, err
	}
	d.table = table
	checker, err := authz.NewChecker(table, d.clock)
	if err != nil {
		return nil, err
	}
	d.dispatcher, err = resource.NewDispatcher(resource.DispatcherConfig{
		Checker:       checker,
		Handlers:      d.handlers(),
		LoggerFactory: loggerFactory,
		Hints: &resource.Hints{
			AuthorizationServer: config.AuthorizationServer,
			Audience:            config.Audience,
		},
	})
	if err != nil {
		return nil, err
	}

	d.listener, err = transport.NewListener(transport.ListenerConfig{
		Listener:          options.Listener,
		ListenAddr:        config.ListenAddr,
		MaxMessageSize:    config.MaxMessageSize,
		ConnectionHandler: d.handleConnection,
		OnConnectionLost:  d.handleConnectionLost,
		LoggerFactory:     loggerFactory,
	})
	if err != nil {
		return nil, err
	}

	if config.Advertise {
		d.advertiser, err = discovery.NewAdvertiser(discovery.AdvertiserConfig{
			Port:          portOf(config.ListenAddr),
			ServerFactory: options.ServerFactory,
			LoggerFactory: loggerFactory,
		})
		if err != nil {
			return nil, err
		}
	}

	return d, nil
}

// staticKey returns the configured handshake secret, or a fresh one.
func (d *Device) staticKey() ([]byte, error) {
	if d.config.StaticKey != "" {
		return decodeKey(d.config.StaticKey)
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("device: generate handshake key: %w", err)
	}
	return key, nil
}

// StaticPublicKey returns the device's handshake public key. Peers need
// it to authenticate the responder.
func (d *Device) StaticPublicKey() []byte {
	return append([]byte(nil), d.staticPublic...)
}

// Clock returns the device time reference.
func (d *Device) Clock() *SystemClock {
	return d.clock
}

// Thermometer returns the simulated sensor.
func (d *Device) Thermometer() *Thermometer {
	return d.thermometer
}

// LEDs returns the simulated LED bank.
func (d *Device) LEDs() *LEDBank {
	return d.leds
}

// Sessions returns the session registry.
func (d *Device) Sessions() *session.Registry {
	return d.registry
}

// Start binds the listener, begins sweeping stale handshakes, and
// advertises the service when enabled.
func (d *Device) Start() error {
	if err := d.listener.Start(); err != nil {
		return err
	}

	if d.advertiser != nil {
		err := d.advertiser.Start(discovery.TXT{
			DeviceName:          d.config.Name,
			Audience:            d.config.Audience,
			AuthorizationServer: d.config.AuthorizationServer,
		})
		if err != nil {
			d.listener.Stop()
			return err
		}
	}

	d.wg.Add(1)
	go d.sweepLoop()

	d.log.Infof("device %s listening on %s", d.config.Audience, d.listener.Addr())
	return nil
}

// Addr returns the bound listen address.
func (d *Device) Addr() net.Addr {
	return d.listener.Addr()
}

// Stop shuts the device down: no new connections, existing ones closed,
// advertisement withdrawn.
func (d *Device) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		if d.advertiser != nil {
			d.advertiser.Close()
		}
		d.listener.Stop()

		// Closing an adapter drives its loss callback, which takes
		// d.mu to delete the connection entry. Snapshot the adapters
		// and close them outside the lock.
		d.mu.Lock()
		adapters := make([]*transport.Adapter, 0, len(d.conns))
		for _, adapter := range d.conns {
			adapters = append(adapters, adapter)
		}
		d.mu.Unlock()
		for _, adapter := range adapters {
			adapter.Close()
		}

		d.wg.Wait()
	})
}

func (d *Device) sweepLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(expireInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case now := <-ticker.C:
			if n := d.coordinator.ExpireStale(now); n > 0 {
				d.log.Infof("expired %d stale handshakes", n)
			}
		}
	}
}

// handleConnection owns one accepted peer connection.
func (d *Device) handleConnection(adapter *transport.Adapter) {
	sess, err := d.registry.Create(adapter.ID())
	if err != nil {
		// Full table: turn the connection away.
		d.log.Infof("rejecting connection %s: %v", adapter.ID(), err)
		adapter.Send(coap.NewResponse(coap.CodeServiceUnavailable))
		adapter.Close()
		return
	}

	d.mu.Lock()
	d.conns[adapter.ID()] = adapter
	d.mu.Unlock()

	d.wg.Add(1)
	go d.serveLoop(adapter, sess)
}

func (d *Device) serveLoop(adapter *transport.Adapter, sess *session.Session) {
	defer d.wg.Done()

	for req := range adapter.Next() {
		resp := d.handleRequest(sess, req)
		if err := adapter.Send(resp); err != nil {
			d.log.Infof("connection %s: send failed: %v", adapter.ID(), err)
			return
		}
	}
}

// handleConnectionLost drops everything tied to a dead connection: the
// handshake attempt or channel, and the session itself.
func (d *Device) handleConnectionLost(id transport.ConnectionID, cause error) {
	if cause != nil {
		d.log.Infof("connection %s lost: %v", id, cause)
	}

	d.coordinator.CancelConnection(id)
	d.registry.Destroy(id)

	d.mu.Lock()
	delete(d.conns, id)
	d.mu.Unlock()
}

func (d *Device) handleRequest(sess *session.Session, req *coap.Request) *coap.Response {
	return d.dispatcher.Dispatch(sess, req)
}

// portOf extracts the port of a listen address, for advertising.
func portOf(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return discovery.DefaultPort
	}
	port, err := net.LookupPort("tcp", portStr)
	if err != nil {
		return discovery.DefaultPort
	}
	return port
}
