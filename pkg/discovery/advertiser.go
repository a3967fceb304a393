// Package discovery publishes the device's DNS-SD service so peers and
// authorization clients can find it on the local network.
package discovery

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// DefaultPort is the default CoAP port.
const DefaultPort = 5683

// Service is the DNS-SD service type for token-gated CoAP devices.
const Service = "_coap-ace._tcp"

// DefaultDomain is the mDNS domain.
const DefaultDomain = "local."

// MDNSServer is the interface for mDNS service registration.
// This allows for dependency injection in tests.
type MDNSServer interface {
	// Shutdown stops the server.
	Shutdown()
}

// MDNSServerFactory creates MDNSServer instances.
type MDNSServerFactory interface {
	// Register creates a new mDNS server for the given service.
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error)
}

// zeroconfServerFactory is the production implementation using grandcat/zeroconf.
type zeroconfServerFactory struct{}

func (z *zeroconfServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// TXT holds the advertised service metadata.
type TXT struct {
	// DeviceName is a human-readable name (max 32 chars).
	DeviceName string

	// Audience is the device identity tokens must name.
	Audience string

	// AuthorizationServer is the AS URI clients should request tokens
	// from.
	AuthorizationServer string
}

// Validate checks TXT constraints.
func (t *TXT) Validate() error {
	if len(t.DeviceName) > 32 {
		return ErrInvalidDeviceName
	}
	return nil
}

// Encode renders the TXT records.
func (t *TXT) Encode() []string {
	var records []string
	if t.DeviceName != "" {
		records = append(records, "dn="+t.DeviceName)
	}
	if t.Audience != "" {
		records = append(records, "aud="+t.Audience)
	}
	if t.AuthorizationServer != "" {
		records = append(records, "as="+t.AuthorizationServer)
	}
	return records
}

// AdvertiserConfig holds configuration for the Advertiser.
type AdvertiserConfig struct {
	// Port is the CoAP port to advertise (default: 5683).
	Port int

	// Interfaces specifies which network interfaces to advertise on.
	// If nil, all interfaces are used.
	Interfaces []net.Interface

	// ServerFactory is the factory for creating mDNS servers.
	// If nil, the default zeroconf factory is used.
	ServerFactory MDNSServerFactory

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Advertiser publishes the device's DNS-SD service.
type Advertiser struct {
	config  AdvertiserConfig
	factory MDNSServerFactory
	log     logging.LeveledLogger

	mu       sync.Mutex
	server   MDNSServer
	instance string
	closed   bool
}

// NewAdvertiser creates a new Advertiser with the given configuration.
func NewAdvertiser(config AdvertiserConfig) (*Advertiser, error) {
	if config.Port <= 0 || config.Port > 65535 {
		config.Port = DefaultPort
	}

	factory := config.ServerFactory
	if factory == nil {
		factory = &zeroconfServerFactory{}
	}

	a := &Advertiser{
		config:  config,
		factory: factory,
	}

	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("discovery")
	}

	return a, nil
}

// Start begins advertising the device service.
func (a *Advertiser) Start(txt TXT) error {
	if err := txt.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.server != nil {
		return ErrAlreadyStarted
	}

	instance, err := generateRandomInstanceName()
	if err != nil {
		return fmt.Errorf("advertiser: failed to generate instance name: %w", err)
	}

	records := txt.Encode()
	if a.log != nil {
		a.log.Debugf("Registering mDNS service: instance=%s service=%s domain=%s port=%d",
			instance, Service, DefaultDomain, a.config.Port)
		a.log.Tracef("TXT records: %v", records)
	}

	server, err := a.factory.Register(
		instance,
		Service,
		DefaultDomain,
		a.config.Port,
		records,
		a.config.Interfaces,
	)
	if err != nil {
		return fmt.Errorf("advertiser: mDNS registration failed for %s: %w", Service, err)
	}

	if a.log != nil {
		a.log.Infof("mDNS registration successful for %s", Service)
	}

	a.server = server
	a.instance = instance
	return nil
}

// Instance returns the advertised instance name, if started.
func (a *Advertiser) Instance() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.instance
}

// Stop withdraws the advertisement.
func (a *Advertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return ErrNotStarted
	}
	a.server.Shutdown()
	a.server = nil
	a.instance = ""
	return nil
}

// Close stops any advertisement and rejects further starts.
func (a *Advertiser) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		a.instance = ""
	}
	a.closed = true
}

// generateRandomInstanceName returns a random 16-hex-digit instance name.
func generateRandomInstanceName() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
