//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	kafkatc "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/app/pipeline"
	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
	kafkainfra "github.com/teoivancevic/PPJ-fer-unizg/internal/infra/kafka"
	"github.com/teoivancevic/PPJ-fer-unizg/internal/runtime/local"
	"github.com/teoivancevic/PPJ-fer-unizg/internal/testhelpers"
)

const adderSource = `#include <iostream>
int main() {
    long a, b;
    std::cin >> a >> b;
    if (b == 0) {
        std::cout << "error: division by zero" << std::endl;
        return 0;
    }
    std::cout << a + b << std::endl;
    return 0;
}
`

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping pipeline integration test in short mode")
	}
	if _, err := exec.LookPath("g++"); err != nil {
		t.Skip("g++ not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	kafkaContainer, err := kafkatc.Run(ctx, "confluentinc/confluent-local:7.7.0")
	if err != nil {
		t.Skipf("kafka container unavailable: %v", err)
	}
	defer kafkaContainer.Terminate(context.Background())

	brokers, err := kafkaContainer.Brokers(ctx)
	if err != nil {
		t.Fatalf("failed to obtain broker addresses: %v", err)
	}
	if len(brokers) == 0 {
		t.Fatal("no brokers returned by kafka container")
	}
	broker := brokers[0]

	const (
		requestsTopic = "integration-requests"
		resultsTopic  = "integration-results"
	)

	if err := testhelpers.WaitForKafkaBroker(ctx, broker); err != nil {
		t.Fatalf("wait for kafka broker: %v", err)
	}
	if err := testhelpers.EnsureKafkaTopic(ctx, broker, requestsTopic); err != nil {
		t.Fatalf("ensure requests topic: %v", err)
	}
	if err := testhelpers.EnsureKafkaTopic(ctx, broker, resultsTopic); err != nil {
		t.Fatalf("ensure results topic: %v", err)
	}

	sourceRoot := t.TempDir()
	writeFile(t, filepath.Join(sourceRoot, "main.cpp"), adderSource)
	fixtures := t.TempDir()
	writeFile(t, filepath.Join(fixtures, "add", "test.in"), "2 3\n")
	writeFile(t, filepath.Join(fixtures, "add", "test.out"), "5\n")
	writeFile(t, filepath.Join(fixtures, "div0", "test.in"), "1 0\n")
	writeFile(t, filepath.Join(fixtures, "div0", "test.out"), "error: division by zero\n")
	writeFile(t, filepath.Join(fixtures, "wrong", "test.in"), "1 1\n")
	writeFile(t, filepath.Join(fixtures, "wrong", "test.out"), "3\n")

	consumer, err := kafkainfra.NewConsumer(kafkainfra.Config{
		Brokers: []string{broker},
		Topic:   requestsTopic,
		GroupID: "pipeline-integration-consumer",
	})
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	defer consumer.Close()

	publisher, err := kafkainfra.NewPublisher(kafkainfra.PublisherConfig{
		Brokers: []string{broker},
		Topic:   resultsTopic,
	})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	defer publisher.Close()

	service := pipeline.NewService(local.New(local.Config{}), pipeline.Config{Publisher: publisher})
	defer service.Close()

	if err := testhelpers.PublishJSON(ctx, broker, requestsTopic,
		map[string]any{
			"type":         "run",
			"id":           "semantic-run",
			"stage":        "semantic",
			"source_root":  sourceRoot,
			"fixture_root": fixtures,
		},
		map[string]any{"type": "done"},
	); err != nil {
		t.Fatalf("publish requests: %v", err)
	}

	base := harness.NewRunContext()
	base.ExecLimits = harness.RunLimits{TimeLimit: 10 * time.Second}
	base.BuildLimits = harness.RunLimits{TimeLimit: time.Minute}

	var summaries []harness.RunSummary
	if err := service.ExecuteFromSource(ctx, consumer, base, func(summary harness.RunSummary) {
		summaries = append(summaries, summary)
	}); err != nil {
		t.Fatalf("execute from source: %v", err)
	}

	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	summary := summaries[0]
	if summary.Fatal != nil {
		t.Fatalf("unexpected fatal error: %v", summary.Fatal)
	}
	if summary.Total != 3 || summary.Passed != 2 {
		t.Fatalf("expected 2/3 passed, got %d/%d", summary.Passed, summary.Total)
	}
	if len(summary.Failed) != 1 || summary.Failed[0] != "wrong" {
		t.Fatalf("unexpected failed cases %v", summary.Failed)
	}

	resultsReader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: []string{broker},
		Topic:   resultsTopic,
		GroupID: "pipeline-integration-results",
	})
	defer resultsReader.Close()

	msgCtx, msgCancel := context.WithTimeout(ctx, time.Minute)
	defer msgCancel()

	msg, err := resultsReader.ReadMessage(msgCtx)
	if err != nil {
		t.Fatalf("read result message: %v", err)
	}

	var envelope struct {
		ID     string   `json:"id"`
		Stage  string   `json:"stage"`
		Total  int      `json:"total"`
		Passed int      `json:"passed"`
		Failed []string `json:"failed"`
		Error  string   `json:"error"`
	}
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		t.Fatalf("decode result message: %v", err)
	}
	if envelope.ID != "semantic-run" || envelope.Stage != "semantic" {
		t.Fatalf("unexpected summary identity %q %q", envelope.ID, envelope.Stage)
	}
	if envelope.Total != 3 || envelope.Passed != 2 || envelope.Error != "" {
		t.Fatalf("unexpected summary tallies %+v", envelope)
	}
}
