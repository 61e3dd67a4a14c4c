// Subscribes to the analysis loop and prints one line per tick: heart rate,
// signal quality, and pipeline throughput.
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
		})),
	)
	if err != nil {
		log.Fatalf("new runtime: %v", err)
	}

	updates, cancel := rt.SubscribeMetrics(4)
	defer cancel()
	go func() {
		for u := range updates {
			log.Printf("hr=%.1f bpm (valid=%v) quality=%s samples=%d lines/s=%.0f",
				u.Analysis.HeartRateBPM, u.Analysis.HasHeartRate,
				u.Analysis.Quality, u.Analysis.SampleCount, u.Perf.LinesPerSec)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("receiver exited: %v", err)
	}
}
