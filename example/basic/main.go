package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	ecgreceiver "github.com/GanQiao1990/ecg-receiver-standalone"
)

func main() {
	cfg, err := ecgreceiver.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	rt, err := ecgreceiver.New(cfg)
	if err != nil {
		log.Fatalf("new runtime: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("receiver exited: %v", err)
	}
}
