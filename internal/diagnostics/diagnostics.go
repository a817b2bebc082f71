// Package diagnostics keeps the last fetched page around for debugging selector drift.
package diagnostics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/amazon-label-extractor/internal/config"
)

// Sink receives the raw body of every page that reached the parser. Writes are
// best-effort; callers log failures and carry on.
type Sink interface {
	Record(ctx context.Context, url string, body []byte) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Record(context.Context, string, []byte) error { return nil }

// FileSink overwrites a single file with the latest body.
type FileSink struct {
	mu   sync.Mutex
	path string
}

func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) Record(_ context.Context, _ string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Write to a temp file in the same directory, then rename
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write diagnostics: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, s.path)
}

// RedisClient is the subset of the redis client used by RedisSink.
type RedisClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisSink stores the latest body as a hash with url, body and fetched_at fields.
type RedisSink struct {
	client RedisClient
	key    string
	ttl    time.Duration
}

func NewRedisSink(client RedisClient, key string, ttl time.Duration) *RedisSink {
	return &RedisSink{client: client, key: key, ttl: ttl}
}

func (s *RedisSink) Record(ctx context.Context, url string, body []byte) error {
	err := s.client.HSet(ctx, s.key,
		"url", url,
		"body", body,
		"fetched_at", time.Now().UTC().Format(time.RFC3339),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to store diagnostics: %w", err)
	}

	if s.ttl > 0 {
		if err := s.client.Expire(ctx, s.key, s.ttl).Err(); err != nil {
			return fmt.Errorf("failed to set diagnostics ttl: %w", err)
		}
	}
	return nil
}

// FromConfig builds the configured sink. The returned close function releases
// any connection the sink holds and is never nil.
func FromConfig(ctx context.Context, dc config.DiagnosticsConfig, rc config.RedisConfig) (Sink, func() error, error) {
	noClose := func() error { return nil }

	switch dc.Sink {
	case "", "none":
		return Nop{}, noClose, nil
	case "file":
		return NewFileSink(dc.FilePath), noClose, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return NewRedisSink(client, dc.RedisKey, dc.TTL), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown diagnostics sink %q", dc.Sink)
	}
}
