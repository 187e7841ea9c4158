package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/TIANLI0/SignKit/config"
	"github.com/TIANLI0/SignKit/model"
	"github.com/TIANLI0/SignKit/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisService(cfg *config.RedisConfig) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisService{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// RecordKey 缓存键 detect:<strategy>:<md5>
func RecordKey(strategy, md5 string) string {
	return "detect:" + strategy + ":" + md5
}

// GetRecord 从缓存获取检测记录，未命中时返回 nil, nil
func (s *RedisService) GetRecord(ctx context.Context, strategy, md5 string) (*model.DetectionRecord, error) {
	data, err := s.client.Get(ctx, RecordKey(strategy, md5)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // 缓存未命中
		}
		return nil, err
	}

	var record model.DetectionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		utils.Named("cache").Error("failed to unmarshal detection record",
			zap.String("strategy", strategy),
			zap.String("md5", md5), zap.Error(err))
		return nil, err
	}

	return &record, nil
}

// SetRecord 写入检测记录
func (s *RedisService) SetRecord(ctx context.Context, strategy, md5 string, record *model.DetectionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, RecordKey(strategy, md5), data, s.ttl).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}
