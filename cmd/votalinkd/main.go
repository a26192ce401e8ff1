package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"votalinkd/internal/config"
	"votalinkd/internal/hidmon"
	"votalinkd/internal/hub"
	"votalinkd/internal/logs"
	"votalinkd/internal/service"
)

const (
	configFile = "votalinkd.ini"
)

var (
	sha1ver   string
	buildTime string
)

func main() {
	log.Printf("votalinkd: Build %s, Time %s", sha1ver, buildTime)

	// Optional .env next to the binary, mainly for dev overrides
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.New(configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize log manager
	lm := logs.NewManager(cfg.LogLimit, cfg.EchoLogs)
	defer lm.Close()

	// Initialize WebSocket hub
	h := hub.New(cfg.WSPort)

	// Initialize responder
	responder := service.New(cfg, configFile, h, lm)

	// Initialize HID monitor
	var paths []string
	if cfg.DevicePath != "" {
		paths = []string{cfg.DevicePath}
	}
	monitor := hidmon.New(paths, responder.HandleReport, lm.Logf)
	monitor.OnDeviceRemoved = func(path string) {
		lm.Logf("WARNING", "Device disconnected: %s", path)
	}
	responder.SetSource(monitor)

	if err := responder.Start(); err != nil {
		log.Fatalf("Failed to start responder: %v", err)
	}
	defer responder.Stop()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
}
