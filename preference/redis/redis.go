// Package redis provides a Redis-backed PreferenceStore for creditsync.
//
// Preferences live in one Redis hash per profile, so a user's choice follows them
// across devices that share the same Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ineyio/creditsync"
)

const (
	suppressField  = "suppress_spend_confirmations"
	updatedAtField = "updated_at"
)

// Store is a Redis-backed PreferenceStore.
type Store struct {
	client    goredis.Cmdable
	keyPrefix string
	profile   string
}

var _ creditsync.PreferenceStore = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "creditsync:prefs:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// WithProfile scopes the preference to one user (default "default").
func WithProfile(profile string) Option {
	return func(s *Store) { s.profile = profile }
}

// New creates a new Redis-backed PreferenceStore.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: "creditsync:prefs:",
		profile:   "default",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to the Redis server named by cfg.Addr and returns a Store for the
// profile cfg.Key. The caller owns the returned client.
func Dial(ctx context.Context, cfg creditsync.PreferenceConfig, opts ...Option) (*Store, *goredis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil, fmt.Errorf("creditsync/redis: addr is required")
	}
	client := goredis.NewClient(&goredis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("creditsync/redis: ping %s: %w", cfg.Addr, err)
	}

	if cfg.Key != "" {
		opts = append([]Option{WithProfile(cfg.Key)}, opts...)
	}
	return New(client, opts...), client, nil
}

func (s *Store) key() string {
	return s.keyPrefix + s.profile
}

func (s *Store) SuppressConfirmations(ctx context.Context) (bool, error) {
	val, err := s.client.HGet(ctx, s.key(), suppressField).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("creditsync/redis: hget: %w", err)
	}

	suppress, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("creditsync/redis: stored value %q: %w", val, err)
	}
	return suppress, nil
}

func (s *Store) SetSuppressConfirmations(ctx context.Context, suppress bool) error {
	err := s.client.HSet(ctx, s.key(),
		suppressField, strconv.FormatBool(suppress),
		updatedAtField, time.Now().UTC().Unix(),
	).Err()
	if err != nil {
		return fmt.Errorf("creditsync/redis: hset: %w", err)
	}
	return nil
}

// Reset deletes the profile's preferences.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key()).Err(); err != nil {
		return fmt.Errorf("creditsync/redis: del: %w", err)
	}
	return nil
}
