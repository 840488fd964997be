// Package producer serves stage-run requests given on the command line.
package producer

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
	"github.com/teoivancevic/PPJ-fer-unizg/internal/ports"
)

// Service implements ports.RunRequestSource over a fixed list of requests.
type Service struct {
	mu       sync.Mutex
	requests []harness.RunRequest
	index    int
}

var _ ports.RunRequestSource = (*Service)(nil)

// NewService builds a source that yields one request per stage, in order.
func NewService(stages []harness.Stage) *Service {
	s := &Service{}
	for _, stage := range stages {
		s.AddRequest(harness.RunRequest{Stage: stage})
	}
	return s
}

// NextRequest returns the next queued request or io.EOF once all were served.
func (s *Service) NextRequest(ctx context.Context) (harness.RunRequest, error) {
	select {
	case <-ctx.Done():
		return harness.RunRequest{}, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index >= len(s.requests) {
		return harness.RunRequest{}, io.EOF
	}

	req := s.requests[s.index]
	s.index++

	return req, nil
}

// AddRequest queues another request. Requests without an ID get a random one.
func (s *Service) AddRequest(req harness.RunRequest) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
}
