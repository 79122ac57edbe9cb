package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultBlock how long a group read waits for new entries
const DefaultBlock = 5 * time.Second

// Message one Redis Streams entry
type Message struct {
	Stream string
	ID     string
	Values map[string]interface{}
}

// Broker Redis Streams helper bound to one client
type Broker struct {
	client *redis.Client
	block  time.Duration
}

// NewBroker creates a broker that blocks DefaultBlock on reads
func NewBroker(client *redis.Client) *Broker {
	return &Broker{client: client, block: DefaultBlock}
}

// stringify renders a field value the way it is stored in the stream
func stringify(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		jsonBytes, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(jsonBytes), nil
	}
}

// Publish appends an entry; every value is stored as a string.
func (b *Broker) Publish(ctx context.Context, stream string, values map[string]interface{}) (string, error) {
	streamValues := make(map[string]interface{}, len(values))
	for k, v := range values {
		s, err := stringify(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode field %s: %w", k, err)
		}
		streamValues[k] = s
	}

	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: streamValues,
	}).Result()
}

// PublishJSON appends data as JSON under the "data" field plus a unix
// "timestamp" field.
func (b *Broker) PublishJSON(ctx context.Context, stream string, data interface{}) (string, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return b.Publish(ctx, stream, map[string]interface{}{
		"data":      string(jsonBytes),
		"timestamp": time.Now().Unix(),
	})
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// EnsureGroup creates the consumer group, and the stream with it when
// missing. An existing group is not an error.
func (b *Broker) EnsureGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return err
	}
	return nil
}

// Read reads up to count new entries for consumer. An empty poll returns an
// empty slice.
func (b *Broker) Read(ctx context.Context, stream, group, consumer string, count int64) ([]Message, error) {
	return b.readGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    b.block,
	})
}

// ReadPending returns up to count entries already delivered to consumer but
// not yet acked, oldest first. It does not block.
func (b *Broker) ReadPending(ctx context.Context, stream, group, consumer string, count int64) ([]Message, error) {
	return b.readGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, "0"},
		Count:    count,
		Block:    -1,
	})
}

func (b *Broker) readGroup(ctx context.Context, args *redis.XReadGroupArgs) ([]Message, error) {
	result, err := b.client.XReadGroup(ctx, args).Result()
	if err != nil {
		if err == redis.Nil {
			return []Message{}, nil
		}
		return nil, err
	}
	return toMessages(result), nil
}

func toMessages(result []redis.XStream) []Message {
	messages := make([]Message, 0)
	for _, s := range result {
		for _, msg := range s.Messages {
			messages = append(messages, Message{
				Stream: s.Stream,
				ID:     msg.ID,
				Values: msg.Values,
			})
		}
	}
	return messages
}

// Ack acknowledges processed entries.
func (b *Broker) Ack(ctx context.Context, stream, group string, ids ...string) error {
	return b.client.XAck(ctx, stream, group, ids...).Err()
}
