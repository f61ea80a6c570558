package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"goa.design/flow/runtime/workflow"
)

const (
	defaultKeyPrefix = "flow:session:"
	storeName        = "session-redis"
)

type (
	// Options configures the Redis session store.
	Options struct {
		// Client is the Redis connection used to persist session records. Required.
		Client *goredis.Client
		// KeyPrefix namespaces session keys. Defaults to "flow:session:".
		KeyPrefix string
		// TTL bounds the lifetime of stored sessions. Zero means no expiry.
		TTL time.Duration
	}

	// Store implements workflow.Store on top of Redis. Records are serialized
	// to JSON and written with SET so upserts are atomic per session.
	Store struct {
		commands commands
		prefix   string
		ttl      time.Duration
	}

	// commands is the subset of Redis operations the store needs. The seam
	// keeps the store testable without a live Redis.
	commands interface {
		Get(ctx context.Context, key string) (string, error)
		Set(ctx context.Context, key, value string, ttl time.Duration) error
		Del(ctx context.Context, key string) error
		Ping(ctx context.Context) error
	}
)

// New returns a Store backed by the provided Redis connection.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	return newStoreWithCommands(redisCommands{rdb: opts.Client}, opts.KeyPrefix, opts.TTL)
}

func newStoreWithCommands(cmds commands, prefix string, ttl time.Duration) (*Store, error) {
	if cmds == nil {
		return nil, errors.New("commands are required")
	}
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Store{commands: cmds, prefix: prefix, ttl: ttl}, nil
}

// Name identifies the store for health reporting.
func (s *Store) Name() string {
	return storeName
}

// Ping reports whether the backing Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.commands.Ping(ctx)
}

// Read loads a session record. Missing sessions return workflow.ErrSessionNotFound.
func (s *Store) Read(ctx context.Context, sessionID string) (*workflow.SessionRecord, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	raw, err := s.commands.Get(ctx, s.key(sessionID))
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, workflow.ErrSessionNotFound
		}
		return nil, err
	}
	var record workflow.SessionRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("decode session %q: %w", sessionID, err)
	}
	return &record, nil
}

// Upsert stores the session record and returns the stored state. The creation
// timestamp of an existing record is preserved.
func (s *Store) Upsert(ctx context.Context, session *workflow.SessionRecord) (*workflow.SessionRecord, error) {
	if session == nil {
		return nil, errors.New("session is required")
	}
	if session.SessionID == "" {
		return nil, errors.New("session id is required")
	}
	now := time.Now().UTC()
	stored := session.Clone()
	stored.UpdatedAt = now
	stored.CreatedAt = now
	if existing, err := s.Read(ctx, session.SessionID); err == nil {
		stored.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, workflow.ErrSessionNotFound) {
		return nil, err
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encode session %q: %w", session.SessionID, err)
	}
	if err := s.commands.Set(ctx, s.key(session.SessionID), string(raw), s.ttl); err != nil {
		return nil, err
	}
	return stored, nil
}

// Delete removes a session record. Deleting an unknown session is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}
	return s.commands.Del(ctx, s.key(sessionID))
}

func (s *Store) key(sessionID string) string {
	return s.prefix + sessionID
}

// redisCommands adapts *redis.Client to the commands seam.
type redisCommands struct {
	rdb *goredis.Client
}

func (c redisCommands) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

func (c redisCommands) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c redisCommands) Del(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

func (c redisCommands) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
