package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/constants"
	"resume-agent-go/internal/logger"
)

// Redis 键值存储，承担上传文件哈希去重
type Redis struct {
	client *redis.Client
	cfg    *config.RedisConfig
}

// checkAndAddHashScript 原子地检查并登记文件哈希。
// 返回1表示首次出现（已登记），0表示哈希已存在。
var checkAndAddHashScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 1 then
    return 0
end
redis.call('SADD', KEYS[1], ARGV[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return 1
`)

// NewRedisAdapter 创建Redis客户端
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("Redis配置不能为空")
	}

	opts := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeoutSeconds > 0 {
		opts.DialTimeout = time.Duration(cfg.DialTimeoutSeconds) * time.Second
	}
	if cfg.ReadTimeoutSeconds > 0 {
		opts.ReadTimeout = time.Duration(cfg.ReadTimeoutSeconds) * time.Second
	}
	if cfg.WriteTimeoutSeconds > 0 {
		opts.WriteTimeout = time.Duration(cfg.WriteTimeoutSeconds) * time.Second
	}

	client := redis.NewClient(opts)

	// 为所有Redis操作挂OpenTelemetry追踪钩子
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("为Redis挂载追踪钩子失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("连接Redis失败 (%s): %w", cfg.Address, err)
	}

	logger.Info().Str("address", cfg.Address).Msg("成功连接到Redis")
	return &Redis{client: client, cfg: cfg}, nil
}

// Close 关闭连接
func (r *Redis) Close() error {
	return r.client.Close()
}

// Ping 健康检查
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// hashExpireSeconds 去重记录的过期时间(秒)
func (r *Redis) hashExpireSeconds() int {
	days := r.cfg.HashRecordExpireDay
	if days <= 0 {
		days = constants.DefaultHashRecordExpireDay
	}
	return days * 24 * 3600
}

// CheckAndAddFileHash 原子检查并登记文件SHA-256。
// 返回true表示哈希已存在（重复上传）。
func (r *Redis) CheckAndAddFileHash(ctx context.Context, hashHex string) (bool, error) {
	added, err := checkAndAddHashScript.Run(ctx, r.client,
		[]string{constants.RawFileHashSetKey}, hashHex, r.hashExpireSeconds()).Int()
	if err != nil {
		return false, fmt.Errorf("检查文件哈希失败: %w", err)
	}
	return added == 0, nil
}

// RemoveFileHash 从去重集合移除哈希（上传失败回滚时使用）
func (r *Redis) RemoveFileHash(ctx context.Context, hashHex string) error {
	return r.client.SRem(ctx, constants.RawFileHashSetKey, hashHex).Err()
}
