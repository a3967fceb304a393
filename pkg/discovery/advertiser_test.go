package discovery

import (
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
)

// mockMDNSServer is a mock implementation of MDNSServer for testing.
type mockMDNSServer struct {
	shutdownCalled bool
}

func (m *mockMDNSServer) Shutdown() {
	m.shutdownCalled = true
}

// mockMDNSServerFactory is a mock implementation of MDNSServerFactory for testing.
type mockMDNSServerFactory struct {
	mu       sync.Mutex
	servers  []*mockMDNSServer
	lastArgs struct {
		instance string
		service  string
		domain   string
		port     int
		txt      []string
	}
	shouldFail bool
}

func (f *mockMDNSServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.shouldFail {
		return nil, errors.New("mock registration failure")
	}

	f.lastArgs.instance = instance
	f.lastArgs.service = service
	f.lastArgs.domain = domain
	f.lastArgs.port = port
	f.lastArgs.txt = txt

	server := &mockMDNSServer{}
	f.servers = append(f.servers, server)
	return server, nil
}

func TestNewAdvertiser(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		adv, err := NewAdvertiser(AdvertiserConfig{})
		if err != nil {
			t.Fatalf("NewAdvertiser() error = %v", err)
		}
		if adv.config.Port != DefaultPort {
			t.Errorf("Port = %d, want %d", adv.config.Port, DefaultPort)
		}
	})

	t.Run("out of range port falls back", func(t *testing.T) {
		adv, err := NewAdvertiser(AdvertiserConfig{Port: 70000})
		if err != nil {
			t.Fatal(err)
		}
		if adv.config.Port != DefaultPort {
			t.Errorf("Port = %d, want %d", adv.config.Port, DefaultPort)
		}
	})
}

func TestAdvertiser_Start(t *testing.T) {
	factory := &mockMDNSServerFactory{}
	adv, err := NewAdvertiser(AdvertiserConfig{Port: 5683, ServerFactory: factory})
	if err != nil {
		t.Fatal(err)
	}

	txt := TXT{
		DeviceName:          "hallway sensor",
		Audience:            "d00",
		AuthorizationServer: "https://as.example/token",
	}
	if err := adv.Start(txt); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if factory.lastArgs.service != Service {
		t.Errorf("service = %q, want %q", factory.lastArgs.service, Service)
	}
	if factory.lastArgs.domain != DefaultDomain {
		t.Errorf("domain = %q", factory.lastArgs.domain)
	}
	if factory.lastArgs.port != 5683 {
		t.Errorf("port = %d", factory.lastArgs.port)
	}
	if len(factory.lastArgs.instance) != 16 {
		t.Errorf("instance = %q, want 16 hex chars", factory.lastArgs.instance)
	}
	if adv.Instance() != factory.lastArgs.instance {
		t.Error("Instance() disagrees with registration")
	}

	joined := strings.Join(factory.lastArgs.txt, " ")
	for _, want := range []string{"dn=hallway sensor", "aud=d00", "as=https://as.example/token"} {
		if !strings.Contains(joined, want) {
			t.Errorf("TXT records %v missing %q", factory.lastArgs.txt, want)
		}
	}

	if err := adv.Start(txt); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestAdvertiser_StartValidation(t *testing.T) {
	adv, err := NewAdvertiser(AdvertiserConfig{ServerFactory: &mockMDNSServerFactory{}})
	if err != nil {
		t.Fatal(err)
	}

	txt := TXT{DeviceName: strings.Repeat("x", 33)}
	if err := adv.Start(txt); !errors.Is(err, ErrInvalidDeviceName) {
		t.Errorf("Start() error = %v, want ErrInvalidDeviceName", err)
	}
}

func TestAdvertiser_StartRegistrationFailure(t *testing.T) {
	adv, err := NewAdvertiser(AdvertiserConfig{ServerFactory: &mockMDNSServerFactory{shouldFail: true}})
	if err != nil {
		t.Fatal(err)
	}

	if err := adv.Start(TXT{}); err == nil {
		t.Error("Start() succeeded despite registration failure")
	}
	if adv.Instance() != "" {
		t.Error("failed Start() left an instance name")
	}
}

func TestAdvertiser_StopAndClose(t *testing.T) {
	factory := &mockMDNSServerFactory{}
	adv, err := NewAdvertiser(AdvertiserConfig{ServerFactory: factory})
	if err != nil {
		t.Fatal(err)
	}

	if err := adv.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop() before Start() error = %v, want ErrNotStarted", err)
	}

	if err := adv.Start(TXT{DeviceName: "d00"}); err != nil {
		t.Fatal(err)
	}
	if err := adv.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !factory.servers[0].shutdownCalled {
		t.Error("Stop() did not shut the mDNS server down")
	}

	// Restart after Stop is allowed; Close is final.
	if err := adv.Start(TXT{DeviceName: "d00"}); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	adv.Close()
	if !factory.servers[1].shutdownCalled {
		t.Error("Close() did not shut the mDNS server down")
	}
	if err := adv.Start(TXT{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close() error = %v, want ErrClosed", err)
	}
}
