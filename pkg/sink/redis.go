package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opscribe/opscribe/pkg/txlog"
)

// RedisConfig holds the capped-list sink settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	ListKey  string
	ListMax  int
}

// Redis keeps transactions in a capped list (LPUSH + LTRIM). It doubles as
// the read backend for the txtail CLI.
type Redis struct {
	client  *redis.Client
	listKey string
	logKey  string
	listMax int64
}

func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("sink: redis requires an address")
	}
	if cfg.ListKey == "" {
		cfg.ListKey = "opscribe:transactions"
	}
	if cfg.ListMax <= 0 {
		cfg.ListMax = 10000
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Redis{
		client:  client,
		listKey: cfg.ListKey,
		logKey:  cfg.ListKey + ":app",
		listMax: int64(cfg.ListMax),
	}, nil
}

func (s *Redis) Name() string { return "redis" }

func (s *Redis) LogTransaction(ctx context.Context, rec *txlog.Record) error {
	return s.push(ctx, s.listKey, rec)
}

func (s *Redis) Log(ctx context.Context, level, message string, meta map[string]interface{}) error {
	return s.push(ctx, s.logKey, map[string]interface{}{
		"level":     level,
		"message":   message,
		"meta":      meta,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Redis) push(ctx context.Context, key string, doc interface{}) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, s.listMax-1)
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns up to limit records, newest first.
func (s *Redis) Recent(ctx context.Context, limit int) ([]*txlog.Record, error) {
	if limit <= 0 || int64(limit) > s.listMax {
		limit = 100
	}
	raw, err := s.client.LRange(ctx, s.listKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}
	records := make([]*txlog.Record, 0, len(raw))
	for _, item := range raw {
		var rec txlog.Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

func (s *Redis) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Redis) Close() error { return s.client.Close() }
