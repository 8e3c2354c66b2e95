package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"git.sr.ht/~ircsuite/ircsuite/server"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to the configuration file")
	flag.Parse()

	cfg, err := server.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration at %q: %s\n", configPath, err)
		os.Exit(1)
	}

	logger := log.New(os.Stderr, "ircd: ", log.LstdFlags)
	srv := server.New(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := srv.Serve(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ircd: %s\n", err)
		os.Exit(1)
	}
}
