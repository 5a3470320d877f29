package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"roshamble/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisSink appends events to a Redis stream, one entry per event. The
// stream is trimmed to roughly maxLen entries; the oldest events only describe
// queue entries and matches that have long since been evicted or pruned.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisSink connects to the Redis server named by url (redis://host:port/db).
func NewRedisSink(ctx context.Context, url, stream string, maxLen int64) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisSinkWithClient(client, stream, maxLen), nil
}

// NewRedisSinkWithClient wraps an existing client. maxLen <= 0 disables trimming.
func NewRedisSinkWithClient(client *redis.Client, stream string, maxLen int64) *RedisSink {
	return &RedisSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisSink) Append(ctx context.Context, events []models.Event) error {
	pipe := s.client.Pipeline()
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event %d: %w", ev.Seq, err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			MaxLen: s.maxLen,
			Approx: s.maxLen > 0,
			Values: map[string]interface{}{
				"seq":   ev.Seq,
				"type":  string(ev.Type),
				"event": data,
			},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append to stream %s: %w", s.stream, err)
	}
	return nil
}

func (s *RedisSink) Load(ctx context.Context) ([]models.Event, error) {
	msgs, err := s.client.XRange(ctx, s.stream, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stream %s: %w", s.stream, err)
	}

	events := make([]models.Event, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["event"].(string)
		if !ok {
			return nil, fmt.Errorf("stream entry %s has no event payload", msg.ID)
		}
		var ev models.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("failed to decode stream entry %s: %w", msg.ID, err)
		}
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, nil
}

func (s *RedisSink) Close(context.Context) error {
	return s.client.Close()
}
