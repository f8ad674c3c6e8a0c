package storage

import (
	"context"
	"fmt"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/logger"
)

// Storage 存储管理器，聚合所有存储相关依赖
type Storage struct {
	// 关系型数据库
	MySQL *MySQL

	// 消息队列
	RabbitMQ *RabbitMQ

	// 键值存储（文件哈希去重）
	Redis *Redis

	// 对象存储（原始文件与解析文本）
	MinIO *MinIO
}

// NewStorage 创建存储管理器。MySQL与RabbitMQ是硬依赖，
// Redis/MinIO初始化失败记录警告后降级运行。
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	s := &Storage{}
	var err error

	s.MySQL, err = NewMySQL(&cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("初始化MySQL失败: %w", err)
	}

	s.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("初始化RabbitMQ失败: %w", err)
	}

	s.Redis, err = NewRedisAdapter(&cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Msg("初始化Redis失败，上传去重降级为仅数据库兜底")
		s.Redis = nil
	}

	s.MinIO, err = NewMinIO(&cfg.MinIO)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("初始化MinIO失败: %w", err)
	}

	return s, nil
}

// Close 依次关闭所有存储连接
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			logger.Warn().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Warn().Err(err).Msg("关闭Redis连接失败")
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			logger.Warn().Err(err).Msg("关闭MySQL连接失败")
		}
	}
}
