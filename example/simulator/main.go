// Runs the receiver against the built-in waveform simulator and prints each
// resolved diagnosis, no hardware required.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	ecgreceiver "github.com/GanQiao1990/ecg-receiver-standalone"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/adapters/simulator"
)

func main() {
	cfg, err := ecgreceiver.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	rt, err := ecgreceiver.New(cfg,
		ecgreceiver.WithCollector(simulator.NewCollector(simulator.Config{
			SampleRateHz: cfg.Buffer.SampleRateHz,
			HeartRateBPM: 68,
		})),
	)
	if err != nil {
		log.Fatalf("new runtime: %v", err)
	}

	reports, cancel := rt.SubscribeDiagnoses(4)
	defer cancel()
	go func() {
		for r := range reports {
			log.Printf("diagnosis %s: %s (%s, confidence %.2f)",
				r.Status, r.Finding, r.Severity, r.Confidence)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Start(); err != nil {
		log.Fatalf("start: %v", err)
	}
	rt.SetAutoMode(true)

	<-ctx.Done()
	shutdownCtx := context.Background()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}
