package device

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coap-ace/acegatt/pkg/securechannel"
	"github.com/coap-ace/acegatt/pkg/session"
	"github.com/coap-ace/acegatt/pkg/transport"
)

// Configuration errors.
var (
	ErrNoTokenKey   = errors.New("device: token_key is required")
	ErrBadKeyLength = errors.New("device: key must be 32 bytes of hex")
	ErrNoAudience   = errors.New("device: audience is required")
)

// Config holds all configuration for a device.
type Config struct {
	// Name is the human-readable device name advertised over DNS-SD.
	Name string `yaml:"name"`

	// Audience is the device identity access tokens must name. Required.
	Audience string `yaml:"audience"`

	// AuthorizationServer is the AS URI returned in request-creation
	// hints and advertised over DNS-SD.
	AuthorizationServer string `yaml:"authorization_server"`

	// ListenAddr is the TCP listen address (default ":5683").
	ListenAddr string `yaml:"listen_addr"`

	// MaxSessions bounds concurrent peer sessions.
	MaxSessions int `yaml:"max_sessions"`

	// MaxMessageSize bounds a single framed message.
	MaxMessageSize int `yaml:"max_message_size"`

	// HandshakeTimeout expires half-finished handshakes.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// TokenKey is the hex-encoded 32-byte key shared with the AS. Required.
	TokenKey string `yaml:"token_key"`

	// StaticKey is the hex-encoded 32-byte handshake static secret.
	// Generated at startup when empty.
	StaticKey string `yaml:"static_key"`

	// Temperature is the simulated sensor reading in degrees Celsius.
	Temperature float64 `yaml:"temperature"`

	// LEDCount is the size of the simulated LED bank.
	LEDCount int `yaml:"led_count"`

	// Advertise enables mDNS advertisement.
	Advertise bool `yaml:"advertise"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("device: read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("device: parse config: %w", err)
	}
	return &config, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Audience == "" {
		return ErrNoAudience
	}
	if c.TokenKey == "" {
		return ErrNoTokenKey
	}
	if _, err := decodeKey(c.TokenKey); err != nil {
		return fmt.Errorf("token_key: %w", err)
	}
	if c.StaticKey != "" {
		if _, err := decodeKey(c.StaticKey); err != nil {
			return fmt.Errorf("static_key: %w", err)
		}
	}
	return nil
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = c.Audience
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":5683"
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = session.DefaultMaxSessions
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = transport.DefaultMaxMessageSize
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = securechannel.DefaultHandshakeTimeout
	}
	if c.LEDCount <= 0 {
		c.LEDCount = DefaultLEDCount
	}
}

func decodeKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKeyLength, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: got %d", ErrBadKeyLength, len(key))
	}
	return key, nil
}
