// Command pathfsm-server serves HTTP responses selected by a compiled
// path transition table.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vitalvas/pathfsm/internal/config"
	"github.com/vitalvas/pathfsm/internal/server"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file")
	matchPath := flag.String("match", "", "print the handler index for a request path and exit")
	flag.Parse()

	if err := run(*configPath, *matchPath); err != nil {
		fmt.Fprintf(os.Stderr, "pathfsm-server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, matchPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if matchPath != "" {
		logger = slog.New(slog.DiscardHandler)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}

	if matchPath != "" {
		fmt.Println(srv.Match(matchPath))
		return nil
	}

	logger.Info("starting pathfsm-server",
		"version", Version,
		"config", configPath,
		"listen", cfg.Listen,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}
