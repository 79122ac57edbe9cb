package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"badgewatch/internal/aggregator"
	"badgewatch/internal/streams"

	"go.uber.org/zap"
)

// TriggerEvents trigger label of stream-driven refreshes
const TriggerEvents = "events"

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// StreamClient Redis Streams operations used by the consumer
type StreamClient interface {
	EnsureGroup(ctx context.Context, stream, group string) error
	Read(ctx context.Context, stream, group, consumer string, count int64) ([]streams.Message, error)
	ReadPending(ctx context.Context, stream, group, consumer string, count int64) ([]streams.Message, error)
	Ack(ctx context.Context, stream, group string, ids ...string) error
}

// Refresher rebuilds monthly rosters
type Refresher interface {
	RefreshAll(ctx context.Context, trigger string) error
	RefreshMonth(ctx context.Context, trigger, monthKey string) error
}

// RefreshRequest asks for one month (or every month when MonthKey is empty)
// to be rebuilt
type RefreshRequest struct {
	MonthKey  string `json:"month_key,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// RefreshConsumer consumes refresh requests from a Redis stream
type RefreshConsumer struct {
	client       StreamClient
	refresher    Refresher
	logger       *zap.Logger
	stream       string
	groupName    string
	consumerName string
	batchSize    int64

	// drain this consumer's pending entries before reading new ones
	recoverPending bool

	sleep        func(ctx context.Context, d time.Duration) bool
}

// NewRefreshConsumer creates a refresh consumer
func NewRefreshConsumer(
	client StreamClient,
	refresher Refresher,
	logger *zap.Logger,
	stream string,
	groupName string,
	consumerName string,
	batchSize int64,
) *RefreshConsumer {
	return &RefreshConsumer{
		client:       client,
		refresher:    refresher,
		logger:       logger,
		stream:       stream,
		groupName:    groupName,
		consumerName: consumerName,
		batchSize:    batchSize,
		sleep:        sleepContext,
	}
}

// sleepContext waits d; false when ctx ended first
func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Start consumes until ctx is cancelled. Read errors back off
// exponentially from 1s up to 30s.
func (c *RefreshConsumer) Start(ctx context.Context) error {
	if err := c.client.EnsureGroup(ctx, c.stream, c.groupName); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("Refresh consumer started",
		zap.String("stream", c.stream),
		zap.String("consumer_group", c.groupName),
		zap.String("consumer_name", c.consumerName),
	)

	c.recoverPending = true
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := c.consumeBatch(ctx); err != nil {
			c.logger.Error("Failed to consume refresh requests",
				zap.Error(err),
				zap.Duration("backoff", backoff),
			)
			if !c.sleep(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff)
			c.recoverPending = true
			continue
		}
		backoff = initialBackoff
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// consumeBatch reads one batch and processes it. Only successfully handled
// or permanently invalid messages are acked; the rest stay in the pending
// list and are redelivered by the next pending pass. While recovering, the
// pending list is read instead of new entries until it is empty.
func (c *RefreshConsumer) consumeBatch(ctx context.Context) error {
	var messages []streams.Message
	var err error
	if c.recoverPending {
		messages, err = c.client.ReadPending(ctx, c.stream, c.groupName, c.consumerName, c.batchSize)
	} else {
		messages, err = c.client.Read(ctx, c.stream, c.groupName, c.consumerName, c.batchSize)
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}
	if c.recoverPending && len(messages) == 0 {
		c.recoverPending = false
		return nil
	}

	failed := 0
	for _, msg := range messages {
		err := c.processMessage(ctx, msg)
		switch {
		case err == nil:
		case errors.Is(err, errInvalidRequest) || errors.Is(err, aggregator.ErrInvalidMonthKey):
			c.logger.Warn("Dropping invalid refresh request",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		default:
			c.logger.Error("Failed to process refresh request",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			failed++
			continue
		}
		if err := c.client.Ack(ctx, c.stream, c.groupName, msg.ID); err != nil {
			c.logger.Warn("Failed to ack message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d refresh requests failed", failed, len(messages))
	}
	return nil
}

func (c *RefreshConsumer) processMessage(ctx context.Context, msg streams.Message) error {
	req, err := ParseRefreshRequest(msg)
	if err != nil {
		return err
	}

	c.logger.Info("Processing refresh request",
		zap.String("message_id", msg.ID),
		zap.String("request_id", req.RequestID),
		zap.String("month_key", req.MonthKey),
	)

	if req.MonthKey == "" {
		return c.refresher.RefreshAll(ctx, TriggerEvents)
	}
	return c.refresher.RefreshMonth(ctx, TriggerEvents, req.MonthKey)
}

var errInvalidRequest = errors.New("invalid refresh request")

// ParseRefreshRequest reads a request from the JSON "data" field, falling
// back to flat month_key / request_id fields.
func ParseRefreshRequest(msg streams.Message) (*RefreshRequest, error) {
	if dataStr, ok := msg.Values["data"].(string); ok {
		var req RefreshRequest
		if err := json.Unmarshal([]byte(dataStr), &req); err != nil {
			return nil, fmt.Errorf("%w: %v", errInvalidRequest, err)
		}
		return &req, nil
	}

	req := &RefreshRequest{}
	if monthKey, ok := msg.Values["month_key"].(string); ok {
		req.MonthKey = monthKey
	}
	if requestID, ok := msg.Values["request_id"].(string); ok {
		req.RequestID = requestID
	}
	if req.MonthKey == "" && req.RequestID == "" {
		return nil, fmt.Errorf("%w: no data, month_key or request_id field", errInvalidRequest)
	}
	return req, nil
}
