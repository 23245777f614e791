package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"i4.energy/across/blelink/frame"
	"i4.energy/across/blelink/gpio"
	"i4.energy/across/blelink/hm10"
)

func main() {
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port the HM-10 module is attached to")
	flag.Int("baud-rate", 9600, "Baud rate for serial communication")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("role", "central", "Module role (central, peripheral)")
	flag.String("peer-address", "", "MAC address of the peer module, 12 hex digits")
	flag.Bool("auto-reconnect", true, "Reconnect automatically after the link is lost (central only)")
	flag.Duration("auto-reconnect-timeout", 30*time.Second, "Interval between reconnect attempts")
	flag.Bool("provision", false, "Write the pairing settings into the module on start")
	flag.String("state-pin", "GPIO17", "GPIO line wired to the module STATE pin")
	flag.String("reset-pin", "GPIO27", "GPIO line wired to the module RESET pin")
	flag.String("connected-pin", "", "GPIO line mirroring the link state (optional)")
	flag.String("activity-pin", "", "GPIO line lit while bytes are flowing (optional)")
	flag.String("toggle-pin", "", "GPIO line of the connect/disconnect button (optional)")
	flag.String("mqtt-broker", "", "MQTT broker URL, empty disables the MQTT bridge")
	flag.String("mqtt-client-id", "blelink", "MQTT client identifier")
	flag.String("mqtt-topic-prefix", "blelink", "Prefix for all MQTT topics")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(config.LogLevel)}))

	role, err := config.ModuleRole()
	if err != nil {
		logger.Error("Invalid role", "error", err)
		os.Exit(1)
	}

	pins, err := openPins(config)
	if err != nil {
		logger.Error("Failed to open GPIO pins", "error", err)
		os.Exit(1)
	}

	var bridge *Bridge
	handlers := frame.Handlers{
		MessageText: func(text string) {
			logger.Info("Message received", "text", text)
		},
		EventText: func(id uint16, text string) {
			logger.Info("Event received", "id", id, "text", text)
		},
	}
	onConnected := func(reconnected bool) { logger.Info("BLE link up", "reconnected", reconnected) }
	onDisconnected := func() { logger.Info("BLE link down") }

	if config.MQTTBroker != "" {
		bridge = &Bridge{
			Logger: logger.With("component", "mqtt"),
			Prefix: config.MQTTTopicPrefix,
		}
		handlers = bridge.FrameHandlers()
		onConnected, onDisconnected = bridge.OnConnected, bridge.OnDisconnected
	}

	builder := hm10.NewConfigBuilder().
		WithDialer(hm10.SerialDialer{
			PortName: config.SerialPort,
			BaudRate: config.BaudRate,
		}).
		WithRole(role).
		WithPeerAddress(config.PeerAddress).
		WithPins(pins).
		WithLogger(logger.With("component", "hm10")).
		WithConnectedHandler(onConnected).
		WithDisconnectedHandler(onDisconnected).
		WithFrameHandlers(handlers)
	if config.AutoReconnect {
		builder = builder.WithAutoReconnect(config.AutoReconnectTimeout)
	}

	deviceConfig, err := builder.Build()
	if err != nil {
		logger.Error("Failed to create device config", "error", err)
		os.Exit(1)
	}

	device, err := hm10.New(context.Background(), deviceConfig)
	if err != nil {
		logger.Error("Failed to create device", "error", err)
		os.Exit(1)
	}

	// The bridge must be complete before the device loop can fire its
	// handlers.
	var client mqtt.Client
	if bridge != nil {
		client = newMQTTClient(config, bridge, logger.With("component", "mqtt"))
		bridge.Client = client
		bridge.Device = device
	}

	if config.Provision {
		baud, err := config.ModuleBaudRate()
		if err != nil {
			logger.Error("Invalid baud rate", "error", err)
			os.Exit(1)
		}
		if err := device.Provision(baud); err != nil {
			logger.Warn("Provisioning incomplete", "error", err)
		}
	}

	if err := device.Begin(config.AutoReconnect); err != nil {
		logger.Error("Failed to initialize module", "error", err)
		device.Close()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := device.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Device loop stopped", "error", err)
		}
	}()

	logger.Info("Starting BLE link gateway", "role", role.String(), "peer", config.PeerAddress)

	if client != nil {
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			logger.Error("MQTT connect failed", "broker", config.MQTTBroker, "error", token.Error())
		}
		defer client.Disconnect(250)
	}

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger: logger.With("component", "server"),
			Device: device,
		},
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
	}

	logger.Info("Closing module connection")
	if err := device.Close(); err != nil {
		logger.Error("Failed to close device", "error", err)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// openPins resolves the configured GPIO lines. Optional pins with an empty
// name stay nil.
func openPins(config *Config) (hm10.Pins, error) {
	var pins hm10.Pins

	if err := gpio.Init(); err != nil {
		return pins, err
	}

	state, err := gpio.OpenInput(config.StatePin, false)
	if err != nil {
		return pins, fmt.Errorf("state pin: %w", err)
	}
	pins.State = state

	reset, err := gpio.OpenOutput(config.ResetPin, true)
	if err != nil {
		return pins, fmt.Errorf("reset pin: %w", err)
	}
	pins.Reset = reset

	if config.ConnectedPin != "" {
		p, err := gpio.OpenOutput(config.ConnectedPin, false)
		if err != nil {
			return pins, fmt.Errorf("connected pin: %w", err)
		}
		pins.Connected = p
	}
	if config.ActivityPin != "" {
		p, err := gpio.OpenOutput(config.ActivityPin, false)
		if err != nil {
			return pins, fmt.Errorf("activity pin: %w", err)
		}
		pins.Activity = p
	}
	if config.TogglePin != "" {
		p, err := gpio.OpenInput(config.TogglePin, true)
		if err != nil {
			return pins, fmt.Errorf("toggle pin: %w", err)
		}
		pins.Toggle = p
	}

	return pins, nil
}
