package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis list holding the run history.
const DefaultKey = "run_history"

const defaultDialTimeout = 5 * time.Second

// RedisLedger keeps the history in a Redis list: LPUSH for newest first,
// LTRIM for the cap, both inside one MULTI.
type RedisLedger struct {
	client goredis.UniversalClient
	key    string
	max    int
}

func NewRedisLedger(client goredis.UniversalClient, key string, max int) *RedisLedger {
	if key == "" {
		key = DefaultKey
	}
	if max <= 0 {
		max = DefaultMaxHistory
	}
	return &RedisLedger{client: client, key: key, max: max}
}

// Dial connects to redisURL and checks the connection with a PING.
func Dial(ctx context.Context, redisURL string) (*goredis.Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (r *RedisLedger) Append(ctx context.Context, rec RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LPush(ctx, r.key, data)
		pipe.LTrim(ctx, r.key, 0, int64(r.max-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("append run record: %w", err)
	}
	return nil
}

func (r *RedisLedger) ReadAll(ctx context.Context) ([]RunRecord, error) {
	raw, err := r.client.LRange(ctx, r.key, 0, int64(r.max-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read run history: %w", err)
	}
	records := make([]RunRecord, 0, len(raw))
	for _, item := range raw {
		var rec RunRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("decode run record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
