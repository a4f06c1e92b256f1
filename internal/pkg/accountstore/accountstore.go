package accountstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nimbusbilling/subrelay/app/models"
	"github.com/nimbusbilling/subrelay/internal/pkg/config"
)

// ErrNotFound is returned when no account record exists for a user id.
var ErrNotFound = errors.New("account record not found")

const keyPrefix = "account:"

// Store keeps one AccountRecord per user id in redis, JSON-encoded.
type Store struct {
	client *redis.Client
}

// New builds a Store from the shared config.
func New(cfg *config.Config) *Store {
	return &Store{client: redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})}
}

// NewWithClient wraps an existing redis client (used by tests and by the
// counter package which shares the connection).
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Client exposes the underlying redis client for sharing.
func (s *Store) Client() *redis.Client {
	return s.client
}

// Ping verifies the redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get loads the account record for a user id.
func (s *Store) Get(ctx context.Context, userID string) (*models.AccountRecord, error) {
	raw, err := s.client.Get(ctx, keyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account store get %q: %w", userID, err)
	}
	var record models.AccountRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("account store decode %q: %w", userID, err)
	}
	return &record, nil
}

// Put writes the full account record for its user id.
func (s *Store) Put(ctx context.Context, record *models.AccountRecord) error {
	if record == nil || record.UserID == "" {
		return errors.New("account record requires a user id")
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, keyPrefix+record.UserID, raw, 0).Err(); err != nil {
		return fmt.Errorf("account store put %q: %w", record.UserID, err)
	}
	return nil
}

// Delete removes the account record for a user id. Deleting a missing
// record is not an error.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, keyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("account store delete %q: %w", userID, err)
	}
	return nil
}
