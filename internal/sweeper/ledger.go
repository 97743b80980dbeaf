package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ledger remembers which drafts were already nudged.
type Ledger interface {
	// MarkNudged records a nudge for the draft started at startedAt and
	// reports whether this is the first one.
	MarkNudged(ctx context.Context, participantID int64, startedAt time.Time, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, participantID int64, startedAt time.Time) error
}

type RedisLedger struct {
	client *redis.Client
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

// NewRedisLedgerFromURL parses a redis:// URL and checks the connection.
func NewRedisLedgerFromURL(ctx context.Context, url string) (*RedisLedger, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisLedger{client: client}, nil
}

func (l *RedisLedger) MarkNudged(ctx context.Context, participantID int64, startedAt time.Time, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, nudgeKey(participantID, startedAt), startedAt.Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark nudged: %w", err)
	}
	return ok, nil
}

func (l *RedisLedger) Forget(ctx context.Context, participantID int64, startedAt time.Time) error {
	if err := l.client.Del(ctx, nudgeKey(participantID, startedAt)).Err(); err != nil {
		return fmt.Errorf("forget nudge: %w", err)
	}
	return nil
}

func (l *RedisLedger) Close() error {
	return l.client.Close()
}

func nudgeKey(participantID int64, startedAt time.Time) string {
	return fmt.Sprintf("contest:nudge:%d:%d", participantID, startedAt.Unix())
}
