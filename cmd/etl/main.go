package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"orderlake/internal/config"
	"orderlake/internal/metrics"
	"orderlake/internal/pipeline"
	"orderlake/internal/telemetry"
)

// ErrInvalidSince is returned for a -since value that is not YYYY-MM-DD.
var ErrInvalidSince = errors.New("invalid -since, expected YYYY-MM-DD")

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	var (
		sinceArg string
		resume   bool
	)
	cfg.RegisterFlags(flag.CommandLine)
	flag.StringVar(&sinceArg, "since", "", "incremental run from this date (YYYY-MM-DD, inclusive)")
	flag.BoolVar(&resume, "resume", false, "continue from the catalog watermark when -since is not set")
	flag.Parse()

	since, err := parseSince(sinceArg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, pipeline.Options{Since: since, Resume: resume})
	stop()
	if err != nil {
		log.Printf("etl failed: %v", err)
		os.Exit(1)
	}
}

var setupTelemetry = telemetry.Setup

// run executes one pipeline run. Traces are flushed and sinks closed before
// it returns, whether or not the run failed.
func run(ctx context.Context, cfg config.Config, opts pipeline.Options) error {
	shutdown, err := setupTelemetry(ctx, "orderlake-etl", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	reg := metrics.NewRegistry()
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", reg.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	runner, closeFn, err := pipeline.FromConfig(cfg, reg)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer func() {
		if err := closeFn(); err != nil {
			log.Printf("close sinks: %v", err)
		}
	}()

	rep, err := runner.Run(ctx, opts)
	if err != nil {
		return err
	}
	if rep.Skipped {
		log.Printf("etl: nothing to do")
		return nil
	}
	log.Printf("etl: finished run %s", rep.RunID)
	return nil
}

func parseSince(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSince, s)
	}
	return &t, nil
}
