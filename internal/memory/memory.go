// Package memory persists per-session conversation history as a Redis list,
// one JSON-encoded turn per element, with a rolling expiry on the whole
// session.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the retention window refreshed on every append. It applies
// to the whole session list, not to individual turns.
const DefaultTTL = 7 * 24 * time.Hour

// Turn is one user/assistant exchange. Immutable once appended.
type Turn struct {
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
}

// StoreError reports a failure talking to the conversation backend, letting
// callers distinguish "no history" from "store unreachable".
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("conversation store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Config configures the Redis connection and retention.
type Config struct {
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration // zero means DefaultTTL
	KeyPrefix string        // zero means "chat"
}

// Store is a Redis-backed conversation store. Safe for concurrent use;
// sessions are isolated by key.
type Store struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	now    func() time.Time
}

// NewStore connects to Redis with short dial/read timeouts so a dead
// backend degrades a request instead of hanging it.
func NewStore(cfg Config) *Store {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "chat"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
	return &Store{rdb: rdb, ttl: ttl, prefix: prefix, now: time.Now}
}

// newStoreWithClient exists for tests running against miniredis.
func newStoreWithClient(rdb *redis.Client, ttl time.Duration, prefix string) *Store {
	return &Store{rdb: rdb, ttl: ttl, prefix: prefix, now: time.Now}
}

// Ping verifies connectivity; used by health checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return &StoreError{Op: "ping", Err: err}
	}
	return nil
}

// Append records a turn at the end of the session and refreshes the
// session's retention window.
func (s *Store) Append(ctx context.Context, session, user, assistant string) error {
	if session == "" {
		return &StoreError{Op: "append", Err: errors.New("session key is empty")}
	}
	if user == "" || assistant == "" {
		return &StoreError{Op: "append", Err: errors.New("turn messages cannot be empty")}
	}

	turn := Turn{Timestamp: s.now(), User: user, Assistant: assistant}
	data, err := json.Marshal(turn)
	if err != nil {
		return &StoreError{Op: "append", Err: err}
	}

	key := s.key(session)
	if err := s.rdb.RPush(ctx, key, data).Err(); err != nil {
		return &StoreError{Op: "append", Err: err}
	}
	if err := s.rdb.Expire(ctx, key, s.ttl).Err(); err != nil {
		return &StoreError{Op: "append", Err: err}
	}
	return nil
}

// History returns the session's turns oldest-first. A positive limit keeps
// only the most recent limit turns.
func (s *Store) History(ctx context.Context, session string, limit int) ([]Turn, error) {
	raw, err := s.rdb.LRange(ctx, s.key(session), 0, -1).Result()
	if err != nil {
		return nil, &StoreError{Op: "history", Err: err}
	}

	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			// A corrupt element should not hide the rest of the session.
			slog.Warn("skipping undecodable conversation turn", "session", session, "err", err)
			continue
		}
		turns = append(turns, t)
	}

	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

// Last returns the most recent turn, or nil when the session is empty.
func (s *Store) Last(ctx context.Context, session string) (*Turn, error) {
	raw, err := s.rdb.LIndex(ctx, s.key(session), -1).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "last", Err: err}
	}
	var t Turn
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, &StoreError{Op: "last", Err: err}
	}
	return &t, nil
}

// Clear deletes the whole session. Returns whether anything was removed.
func (s *Store) Clear(ctx context.Context, session string) (bool, error) {
	n, err := s.rdb.Del(ctx, s.key(session)).Result()
	if err != nil {
		return false, &StoreError{Op: "clear", Err: err}
	}
	return n > 0, nil
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) key(session string) string {
	return s.prefix + ":" + session
}
