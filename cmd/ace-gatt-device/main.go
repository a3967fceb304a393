// ace-gatt-device runs a simulated token-gated sensor device.
//
// The device speaks length-prefixed CoAP-style messages over TCP,
// establishes secure channels through an ephemeral-static handshake,
// and only serves its sensor and actuator resources to peers holding a
// valid access token bound to their channel.
//
// Usage:
//
//	ace-gatt-device --config device.yaml [options]
//
// Options override the config file where both are given.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/logging"
	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/coap-ace/acegatt/pkg/device"
)

func main() {
	var (
		configPath = pflag.String("config", "", "path to YAML config file")
		listenAddr = pflag.String("listen", "", "TCP listen address (overrides config)")
		audience   = pflag.String("audience", "", "device identity tokens must name (overrides config)")
		tokenKey   = pflag.String("token-key", "", "hex key shared with the authorization server (overrides config)")
		advertise  = pflag.Bool("advertise", false, "advertise the device over mDNS")
		logLevel   = pflag.String("log-level", "info", "log level: error, warn, info, debug, trace")
		logFile    = pflag.String("log-file", "", "log to this file with rotation instead of stderr")
	)
	pflag.Parse()

	config := &device.Config{}
	if *configPath != "" {
		var err error
		config, err = device.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	if *listenAddr != "" {
		config.ListenAddr = *listenAddr
	}
	if *audience != "" {
		config.Audience = *audience
	}
	if *tokenKey != "" {
		config.TokenKey = *tokenKey
	}
	if *advertise {
		config.Advertise = true
	}
	if err := config.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	loggerFactory, err := newLoggerFactory(*logLevel, *logFile)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}

	dev, err := device.New(device.Options{
		Config:        *config,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		log.Fatalf("create device: %v", err)
	}

	if err := dev.Start(); err != nil {
		log.Fatalf("start device: %v", err)
	}
	fmt.Printf("device %s listening on %s\n", config.Audience, dev.Addr())
	fmt.Printf("handshake public key: %x\n", dev.StaticPublicKey())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	fmt.Printf("received %v, shutting down\n", sig)

	dev.Stop()
}

func newLoggerFactory(level, file string) (*logging.DefaultLoggerFactory, error) {
	factory := logging.NewDefaultLoggerFactory()

	switch level {
	case "error":
		factory.DefaultLogLevel = logging.LogLevelError
	case "warn":
		factory.DefaultLogLevel = logging.LogLevelWarn
	case "info":
		factory.DefaultLogLevel = logging.LogLevelInfo
	case "debug":
		factory.DefaultLogLevel = logging.LogLevelDebug
	case "trace":
		factory.DefaultLogLevel = logging.LogLevelTrace
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	var writer io.Writer = os.Stderr
	if file != "" {
		writer = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}
	factory.Writer = writer

	return factory, nil
}
