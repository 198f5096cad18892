// Package tipcache stores one generated daily tip per user per local day.
package tipcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"lg/fitquest-api/internal/logger"
)

type Cache interface {
	// Get reports ok=false on a miss.
	Get(ctx context.Context, userID int, day string) (tip string, ok bool, err error)
	Set(ctx context.Context, userID int, day, tip string) error
}

func key(userID int, day string) string {
	return "tip:" + strconv.Itoa(userID) + ":" + day
}

/* ─── Redis ──────────────────────────────────────────────────────────── */

type Redis struct {
	rdb *goredis.Client
	ttl time.Duration
	log *logger.Logger
}

// NewRedis connects to addr and pings it before returning.
func NewRedis(ctx context.Context, addr string, ttl time.Duration, log *logger.Logger) (*Redis, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{rdb: rdb, ttl: ttl, log: log.With("service", "TipCache")}, nil
}

func (r *Redis) Get(ctx context.Context, userID int, day string) (string, bool, error) {
	tip, err := r.rdb.Get(ctx, key(userID, day)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return tip, true, nil
}

func (r *Redis) Set(ctx context.Context, userID int, day, tip string) error {
	if err := r.rdb.Set(ctx, key(userID, day), tip, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	r.log.Debug("cached daily tip", "user_id", userID, "day", day)
	return nil
}

func (r *Redis) Close() error { return r.rdb.Close() }

/* ─── In-process ─────────────────────────────────────────────────────── */

// Memory keeps tips in process. Used when Redis is not configured.
type Memory struct {
	mu   sync.Mutex
	tips map[string]string
}

func NewMemory() *Memory {
	return &Memory{tips: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, userID int, day string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tip, ok := m.tips[key(userID, day)]
	return tip, ok, nil
}

// Set also drops the user's tips for other days.
func (m *Memory) Set(_ context.Context, userID int, day, tip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := "tip:" + strconv.Itoa(userID) + ":"
	for k := range m.tips {
		if strings.HasPrefix(k, prefix) {
			delete(m.tips, k)
		}
	}
	m.tips[key(userID, day)] = tip
	return nil
}
