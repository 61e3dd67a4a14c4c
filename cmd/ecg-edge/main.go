package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ecgreceiver "github.com/GanQiao1990/ecg-receiver-standalone"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/adapters/serialline"
	"github.com/GanQiao1990/ecg-receiver-standalone/internal/adapters/simulator"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "ports":
		err = portsCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("ecg-edge %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to receiver configuration file")
	sim := fs.Bool("sim", false, "Use the built-in signal simulator instead of a serial port")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := ecgreceiver.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var opts []ecgreceiver.Option
	if *sim {
		opts = append(opts, ecgreceiver.WithCollector(simulator.NewCollector(simulator.Config{
			SampleRateHz: cfg.Buffer.SampleRateHz,
		})))
	}

	rt, err := ecgreceiver.New(cfg, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rt.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := ecgreceiver.LoadConfig(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func portsCommand(args []string) error {
	fs := flag.NewFlagSet("ports", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ports, err := serialline.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	targets := map[string]float64{
		"ecg_samples_decoded_total": 0,
		"ecg_decode_errors_total":   0,
		"ecg_heart_rate_bpm":        0,
		"ecg_buffer_fill_ratio":     0,
		"ecg_process_cpu_percent":   0,
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for key := range targets {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %f", &value); err == nil {
					targets[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] decoded=%.0f errors=%.0f hr=%.1f fill=%.2f cpu=%.1f%%\n",
		time.Now().Format("15:04:05"),
		targets["ecg_samples_decoded_total"],
		targets["ecg_decode_errors_total"],
		targets["ecg_heart_rate_bpm"],
		targets["ecg_buffer_fill_ratio"],
		targets["ecg_process_cpu_percent"])
	return nil
}

func printUsage() {
	fmt.Println(`ecg-edge - serial ECG receiver with remote diagnosis

Usage:
  ecg-edge run      [-config path] [-sim]   Start the receiver
  ecg-edge validate [-config path]          Validate a configuration file
  ecg-edge ports                            List available serial ports
  ecg-edge stats    [-url u] [-interval d]  Stream receiver metrics
  ecg-edge help                             Show this help`)
}
