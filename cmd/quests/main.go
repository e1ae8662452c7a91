// Package main starts the quests service process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	questscmd "github.com/tandemhq/tandem/internal/cmd/quests"
	"github.com/tandemhq/tandem/internal/platform/config"
)

func main() {
	cfg, err := questscmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[QUESTS] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Healthcheck {
		if err := questscmd.Healthcheck(ctx, cfg); err != nil {
			config.Exitf("healthcheck: %v", err)
		}
		return
	}

	if err := questscmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
