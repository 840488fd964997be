package kafka

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
)

const (
	messageTypeRun  = "run"
	messageTypeDone = "done"
)

type requestEnvelope struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Stage       string `json:"stage"`
	SourceRoot  string `json:"source_root,omitempty"`
	FixtureRoot string `json:"fixture_root,omitempty"`
	Offset      int    `json:"offset,omitempty"`
}

type summaryEnvelope struct {
	ID        string    `json:"id"`
	Stage     string    `json:"stage"`
	Total     int       `json:"total"`
	Passed    int       `json:"passed"`
	Failed    []string  `json:"failed,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func decodeRequestMessage(msg kafkago.Message) (harness.RunRequest, error) {
	var envelope requestEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return harness.RunRequest{}, fmt.Errorf("decode message: %w", err)
	}

	msgType := envelope.Type
	if msgType == "" {
		msgType = messageTypeRun
	}

	switch msgType {
	case messageTypeRun:
		return envelope.toRequest(msg)
	case messageTypeDone:
		return harness.RunRequest{}, io.EOF
	default:
		return harness.RunRequest{}, fmt.Errorf("unknown message type %q", msgType)
	}
}

func (e requestEnvelope) toRequest(msg kafkago.Message) (harness.RunRequest, error) {
	if e.Stage == "" {
		return harness.RunRequest{}, fmt.Errorf("run message missing stage")
	}
	stages, err := harness.ParseStages(e.Stage)
	if err != nil {
		return harness.RunRequest{}, fmt.Errorf("run message: %w", err)
	}
	if len(stages) != 1 {
		return harness.RunRequest{}, fmt.Errorf("run message names %d stages, want one", len(stages))
	}
	if e.Offset < 0 {
		return harness.RunRequest{}, fmt.Errorf("run message has negative offset %d", e.Offset)
	}

	requestID := e.ID
	if requestID == "" {
		requestID = string(msg.Key)
	}
	if requestID == "" {
		requestID = fmt.Sprintf("%s:%d", msg.Topic, msg.Offset)
	}

	return harness.RunRequest{
		ID:          requestID,
		Stage:       stages[0],
		SourceRoot:  e.SourceRoot,
		FixtureRoot: e.FixtureRoot,
		Offset:      e.Offset,
	}, nil
}

func encodeSummary(summary harness.RunSummary) ([]byte, error) {
	payload, err := json.Marshal(makeSummaryEnvelope(summary))
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	return payload, nil
}

func makeSummaryEnvelope(summary harness.RunSummary) summaryEnvelope {
	errMsg := ""
	if summary.Fatal != nil {
		errMsg = summary.Fatal.Error()
	}

	return summaryEnvelope{
		ID:        summary.RunID,
		Stage:     string(summary.Stage),
		Total:     summary.Total,
		Passed:    summary.Passed,
		Failed:    summary.Failed,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}
}
