// Command labcheck builds a compiler lab stage from source and checks it
// against its golden fixtures.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/app/pipeline"
	"github.com/teoivancevic/PPJ-fer-unizg/internal/app/producer"
	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
	"github.com/teoivancevic/PPJ-fer-unizg/internal/infra/browser"
	kafkainfra "github.com/teoivancevic/PPJ-fer-unizg/internal/infra/kafka"
	"github.com/teoivancevic/PPJ-fer-unizg/internal/ports"
	"github.com/teoivancevic/PPJ-fer-unizg/internal/runtime/docker"
	"github.com/teoivancevic/PPJ-fer-unizg/internal/runtime/local"
)

func main() {
	cfg, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg)
	stop()
	os.Exit(code)
}

// run executes every requested stage and returns the process exit status.
func run(ctx context.Context, cfg appConfig) int {
	runtime, err := newRuntime(cfg)
	if err != nil {
		log.Printf("failed to initialize %s runtime: %v", cfg.Runtime, err)
		return 1
	}

	var publisher ports.SummaryPublisher
	if cfg.Listen && cfg.ResultsTopic != "" {
		p, err := kafkainfra.NewPublisher(kafkainfra.PublisherConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.ResultsTopic,
		})
		if err != nil {
			log.Printf("failed to initialize kafka publisher: %v", err)
			return 1
		}
		defer func() {
			if cerr := p.Close(); cerr != nil {
				log.Printf("warning: failed to close kafka publisher: %v", cerr)
			}
		}()
		publisher = p
	}

	service := pipeline.NewService(runtime, pipeline.Config{
		Simulator: func() ports.RemoteExecutionBackend {
			return browser.NewFRISCjs(cfg.browserConfig())
		},
		Reporter:  pipeline.NewLogReporter(nil),
		Publisher: publisher,
	})
	defer func() {
		if cerr := service.Close(); cerr != nil {
			log.Printf("warning: failed to close runtime: %v", cerr)
		}
	}()

	source, closeSource, err := requestSource(cfg)
	if err != nil {
		log.Printf("failed to initialize request source: %v", err)
		return 1
	}
	defer closeSource()

	code := 0
	if err := service.ExecuteFromSource(ctx, source, cfg.runContext(), func(summary harness.RunSummary) {
		if !summary.OK() {
			code = 1
		}
	}); err != nil {
		log.Printf("failed to process run requests: %v", err)
		return 1
	}
	if ctx.Err() != nil {
		log.Printf("interrupted")
		return 1
	}
	return code
}

func newRuntime(cfg appConfig) (ports.Runtime, error) {
	switch cfg.Runtime {
	case "docker":
		return docker.New(cfg.dockerConfig())
	case "local":
		return local.New(local.Config{Compiler: cfg.Compiler}), nil
	default:
		return nil, fmt.Errorf("unknown runtime %q", cfg.Runtime)
	}
}

// requestSource serves the -stages list, or Kafka requests in listen mode.
func requestSource(cfg appConfig) (ports.RunRequestSource, func(), error) {
	if !cfg.Listen {
		return producer.NewService(cfg.Stages), func() {}, nil
	}

	consumer, err := kafkainfra.NewConsumer(kafkainfra.Config{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.RequestTopic,
		GroupID:     cfg.GroupID,
		MaxRequests: cfg.MaxRuns,
	})
	if err != nil {
		return nil, nil, err
	}
	closeConsumer := func() {
		if cerr := consumer.Close(); cerr != nil {
			log.Printf("warning: failed to close kafka consumer: %v", cerr)
		}
	}
	return consumer, closeConsumer, nil
}
