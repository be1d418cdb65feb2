package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/tcprelay/internal/logging"
	"github.com/Tyrowin/tcprelay/internal/server"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	configFile = kingpin.Flag("config.file", "Path to configuration file.").Default("config.yaml").String()
	listenAddr = kingpin.Flag("listen-addr", "TCP address the relay accepts clients on.").String()
	httpAddr   = kingpin.Flag("http-addr", "Address for health, metrics and WebSocket endpoints (\"off\" disables).").String()
	logLevel   = kingpin.Flag("log.level", "Log level: debug, info, warn or error.").String()
)

func main() {
	kingpin.Parse()

	cfg, cfgErr := server.LoadConfig(*configFile)
	if cfgErr != nil {
		if !errors.Is(cfgErr, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", cfgErr)
			os.Exit(1)
		}
		cfg = server.NewConfig()
		cfg.ApplyEnvOverrides()
	}

	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	if cfgErr != nil {
		logger.Warnf("%v, using defaults", cfgErr)
	}

	relay, err := server.New(*cfg, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = relay.Run(ctx)
	stop()
	if err != nil {
		logger.Fatalf("Relay stopped: %v", err)
	}
	logger.Info("Relay stopped")
}
