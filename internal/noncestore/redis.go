// Package noncestore provides an optional durable checkpoint for the
// last-issued nonce per key, so a restarted process can seed its
// issuer above anything a previous run sent to the venue.
package noncestore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// saveScript stores the checkpoint only when it moves forward, so a
// late write from a slow process can never lower the floor.
var saveScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current or tonumber(ARGV[1]) > tonumber(current) then
	redis.call('SET', KEYS[1], ARGV[1])
	return 1
end
return 0
`)

// Store checkpoints nonces in Redis.
type Store struct {
	client *redis.Client
	prefix string
	log    zerolog.Logger
}

// New creates a checkpoint store. The caller owns the lifecycle; Close
// releases the connection pool.
func New(addr, password string, db int, prefix string, log zerolog.Logger) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{
		client: client,
		prefix: prefix,
		log:    log.With().Str("component", "noncestore").Logger(),
	}
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("noncestore ping: %w", err)
	}
	return nil
}

// Load returns the checkpointed nonce for keyID, or zero when none
// exists.
func (s *Store) Load(ctx context.Context, keyID string) (int64, error) {
	value, err := s.client.Get(ctx, s.key(keyID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("noncestore load: %w", err)
	}
	return value, nil
}

// Save records nonce as the checkpoint for keyID. The stored value only
// ever increases.
func (s *Store) Save(ctx context.Context, keyID string, nonce int64) error {
	if err := saveScript.Run(ctx, s.client, []string{s.key(keyID)}, nonce).Err(); err != nil {
		return fmt.Errorf("noncestore save: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(keyID string) string {
	return s.prefix + ":" + keyID
}
