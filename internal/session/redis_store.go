package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStoreConfig 描述 Redis 会话存储的连接参数。
type RedisStoreConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	MaxTurns  int
}

// RedisStore 使用 Redis list 保存会话历史，按用户一个 key。
// 通过 RPUSH + LTRIM 在服务端维持历史上限，多实例部署时共享会话。
type RedisStore struct {
	client   *redis.Client
	prefix   string
	maxTurns int
}

// NewRedisStore 创建 RedisStore 并验证连通性。
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "flowpilot:session"
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisStore{client: client, prefix: prefix, maxTurns: maxTurns}, nil
}

func (r *RedisStore) key(userID string) string {
	return r.prefix + ":" + userID
}

// Append 追加发言并截断到历史上限。
func (r *RedisStore) Append(ctx context.Context, userID string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}
	values := make([]any, 0, len(turns))
	for _, turn := range turns {
		encoded, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("序列化会话发言失败: %w", err)
		}
		values = append(values, encoded)
	}
	key := r.key(userID)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, int64(-r.maxTurns), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("写入 Redis 会话失败: %w", err)
	}
	return nil
}

// List 返回指定用户的会话历史。
func (r *RedisStore) List(ctx context.Context, userID string) ([]Turn, error) {
	raw, err := r.client.LRange(ctx, r.key(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("读取 Redis 会话失败: %w", err)
	}
	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var turn Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			// 跳过损坏的条目，不让单条脏数据拖垮整个会话。
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Clear 删除指定用户的会话历史。
func (r *RedisStore) Clear(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("清除 Redis 会话失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (r *RedisStore) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

var _ Store = (*RedisStore)(nil)
