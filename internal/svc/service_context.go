package svc

import (
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/redis/go-redis/v9"

	"tx-guard-sol/internal/audit"
	"tx-guard-sol/internal/cache"
	"tx-guard-sol/internal/config"
	"tx-guard-sol/internal/logic/guard"
	"tx-guard-sol/internal/logic/risk"
	"tx-guard-sol/internal/mq"
	"tx-guard-sol/pkg/logger"
)

// ServiceContext 持有 guard 服务的全部资源：校验引擎、发现项发布、审计库。
type ServiceContext struct {
	Config     config.GuardConfig
	Engine     *guard.Engine
	Producer   *kafka.Producer // 未启用 kafka_sink 时为 nil
	Sink       *mq.FindingSink // 同上
	AuditStore *audit.Store    // 未配置 audit_db 时为 nil
}

// NewServiceContext 按配置装配服务上下文。配置错误在此同步暴露。
func NewServiceContext(c config.GuardConfig) (*ServiceContext, error) {
	policy, err := c.Policy.ToPolicy()
	if err != nil {
		return nil, err
	}
	policy.Risk = c.Risk.ToRiskConfig()

	// 风险叠加层依赖：HTTP 风险服务 + 可选 Redis 共享缓存
	var provider risk.Provider
	var sharedCache *cache.RedisRiskCache
	if policy.Risk.Enabled {
		provider = risk.NewHTTPProvider(c.Risk.Endpoint, c.Risk.Timeout())
		if c.RedisAddr != "" {
			rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
			sharedCache = cache.NewRedisRiskCache(rdb, policy.Risk.CacheTTL)
		}
	}

	engine, err := guard.NewEngine(policy, provider, sharedCache)
	if err != nil {
		return nil, err
	}

	ctx := &ServiceContext{
		Config: c,
		Engine: engine,
	}

	if c.KafkaSink.Enabled {
		producer, err := mq.NewKafkaProducer(c.KafkaSink.ToProducerOption())
		if err != nil {
			logger.Errorf("Kafka producer 初始化失败: %v", err)
			return nil, err
		}
		ctx.Producer = producer
		ctx.Sink = mq.NewFindingSink(producer, c.KafkaSink.Topic, c.KafkaSink.SendTimeout())
	}

	if c.AuditDB != "" {
		store, err := audit.Open(c.AuditDB)
		if err != nil {
			logger.Errorf("审计库初始化失败: %v", err)
			ctx.Close()
			return nil, err
		}
		ctx.AuditStore = store
	}

	logger.Infof("guard 服务上下文初始化完成")
	return ctx, nil
}

// Close 关闭服务上下文中的资源。
func (ctx *ServiceContext) Close() {
	if ctx.Producer != nil {
		ctx.Producer.Close()
	}
	if ctx.AuditStore != nil {
		ctx.AuditStore.Close()
	}
}
