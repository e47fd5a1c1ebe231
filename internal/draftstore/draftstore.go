package draftstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/courseforge-backend/internal/config"
	"github.com/yungbote/courseforge-backend/internal/generation"
	"github.com/yungbote/courseforge-backend/internal/pkg/logger"
)

const keyPrefix = "outline:draft:"

// RedisDraftStore keeps in-progress outline drafts in redis so a client that
// reconnects (or hits another replica) resumes the same view.
type RedisDraftStore struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func New(cfg config.RedisConfig, log *logger.Logger) (*RedisDraftStore, error) {
	if log == nil {
		return nil, errors.New("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("missing redis addr")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.DraftTTL.Duration
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisDraftStore{
		log: log.With("service", "RedisDraftStore"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

func (s *RedisDraftStore) SaveDraft(ctx context.Context, key string, d generation.Draft) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, keyPrefix+key, payload, s.ttl).Err()
}

func (s *RedisDraftStore) LoadDraft(ctx context.Context, key string) (generation.Draft, bool, error) {
	payload, err := s.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return generation.Draft{}, false, nil
	}
	if err != nil {
		return generation.Draft{}, false, err
	}
	var d generation.Draft
	if err := json.Unmarshal(payload, &d); err != nil {
		// A corrupt draft is treated as absent; the next save overwrites it.
		s.log.Warn("discarding unreadable draft", "key", key, "error", err)
		return generation.Draft{}, false, nil
	}
	return d, true, nil
}

func (s *RedisDraftStore) DeleteDraft(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, keyPrefix+key).Err()
}

func (s *RedisDraftStore) Close() error {
	return s.rdb.Close()
}

var _ generation.DraftStore = (*RedisDraftStore)(nil)
