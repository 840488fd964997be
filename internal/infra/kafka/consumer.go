package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
	"github.com/teoivancevic/PPJ-fer-unizg/internal/ports"
)

const defaultGroupID = "labcheck"

// Config describes how to connect to a Kafka cluster for consuming run requests.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
	// MaxRequests ends the stream with io.EOF after that many run requests.
	// Zero means until a done message arrives.
	MaxRequests int
}

var _ ports.RunRequestSource = (*Consumer)(nil)

// Consumer implements ports.RunRequestSource over a consumer group.
//
// A run request is committed only when the next one is asked for, that is
// after its stage run finished. A run cut short by a crash or an interrupt is
// delivered again to the group.
type Consumer struct {
	reader      messageReader
	maxRequests int
	served      int
	pending     *kafkago.Message
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewConsumer builds a new Consumer from the provided configuration.
func NewConsumer(cfg Config) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker must be provided")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic must be provided")
	}
	if cfg.MaxRequests < 0 {
		return nil, fmt.Errorf("max requests must not be negative")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = defaultGroupID
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		StartOffset: kafkago.FirstOffset,
	})
	return newConsumer(reader, cfg.MaxRequests), nil
}

func newConsumer(reader messageReader, maxRequests int) *Consumer {
	return &Consumer{reader: reader, maxRequests: maxRequests}
}

// NextRequest commits the previous request and blocks until the next run
// request is available or the context is cancelled. A done message ends the
// stream with io.EOF. Undecodable messages are committed and reported.
func (c *Consumer) NextRequest(ctx context.Context) (harness.RunRequest, error) {
	if err := c.commitPending(ctx); err != nil {
		return harness.RunRequest{}, err
	}
	if c.maxRequests > 0 && c.served >= c.maxRequests {
		return harness.RunRequest{}, io.EOF
	}

	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return harness.RunRequest{}, err
	}

	req, err := decodeRequestMessage(msg)
	if err != nil {
		if cerr := c.reader.CommitMessages(ctx, msg); cerr != nil {
			return harness.RunRequest{}, errors.Join(err, fmt.Errorf("commit message: %w", cerr))
		}
		return harness.RunRequest{}, err
	}

	c.pending = &msg
	c.served++
	return req, nil
}

func (c *Consumer) commitPending(ctx context.Context) error {
	if c.pending == nil {
		return nil
	}
	if err := c.reader.CommitMessages(ctx, *c.pending); err != nil {
		return fmt.Errorf("commit request at offset %d: %w", c.pending.Offset, err)
	}
	c.pending = nil
	return nil
}

// Close releases the underlying Kafka reader. A request still pending stays
// uncommitted.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
