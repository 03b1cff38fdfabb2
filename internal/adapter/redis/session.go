package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	servedKeyPrefix = "session:served:"
	defaultTTL      = 24 * time.Hour
)

// SessionStore tracks the questions recently served to each session, so the
// sampler can avoid handing the same question out twice in a row
type SessionStore struct {
	client *redis.Client
}

// NewSessionStore connects to redis at the given URI
func NewSessionStore(uri string) (*SessionStore, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis URI: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &SessionStore{client: client}, nil
}

func (s *SessionStore) Close() error {
	return s.client.Close()
}

// MarkServed records that a question was served to a session
func (s *SessionStore) MarkServed(ctx context.Context, sessionID, questionID string) error {
	key := servedKeyPrefix + sessionID
	if err := s.client.SAdd(ctx, key, questionID).Err(); err != nil {
		return fmt.Errorf("mark served: %w", err)
	}
	return s.client.Expire(ctx, key, defaultTTL).Err()
}

// Served returns the question IDs recently served to a session
func (s *SessionStore) Served(ctx context.Context, sessionID string) ([]string, error) {
	key := servedKeyPrefix + sessionID
	served, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("get served: %w", err)
	}
	return served, nil
}
