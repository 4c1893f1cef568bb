package config

import (
	"fmt"
	"time"

	"tx-guard-sol/internal/logic/guard"
	"tx-guard-sol/internal/logic/risk"
	"tx-guard-sol/internal/mq"
	"tx-guard-sol/internal/types"
	"tx-guard-sol/pkg/logger"
)

type LogConfig struct {
	Format   string `yaml:"format"`   // 日志格式，支持 "console" 或 "json"
	LogDir   string `yaml:"log_dir"`  // 日志目录（可为相对路径或绝对路径）
	Level    string `yaml:"level"`    // 日志级别：debug / info / warn / error
	Compress bool   `yaml:"compress"` // 是否压缩旧日志文件
}

func (c *LogConfig) ToLogOption() logger.LogOption {
	return logger.LogOption{
		Format:   c.Format,
		LogDir:   c.LogDir,
		Level:    c.Level,
		Compress: c.Compress,
	}
}

// PolicyConfig 表示校验策略配置。自定义规则是代码级谓词，不走配置文件，
// 由调用方在 ToPolicy 之后追加到 Policy.CustomRules。
type PolicyConfig struct {
	Mode                  string   `yaml:"mode"`                    // block / warn / monitor，默认 block
	RiskTolerance         string   `yaml:"risk_tolerance"`          // strict / moderate / permissive，默认 moderate
	MaxSlippageBps        int      `yaml:"max_slippage_bps"`        // 透传给执行层，guard 不消费
	ValidateTransferHooks *bool    `yaml:"validate_transfer_hooks"` // 是否启用 hook 相关规则，默认 true
	MaxHookAccounts       int      `yaml:"max_hook_accounts"`       // 单次 hook 触达账户上限，默认 20
	MaxHookWritable       int      `yaml:"max_hook_writable"`       // 非白名单 hook 可写账户上限，默认 10
	MaxHookTotalAccounts  int      `yaml:"max_hook_total_accounts"` // 可写超限规则的账户总数阈值，默认 15
	MaxHookInvocations    int      `yaml:"max_hook_invocations"`    // 同一 hook 调用次数上限，默认 6
	AllowedHookPrograms   []string `yaml:"allowed_hook_programs"`   // 可信 hook 程序地址（base58）
	EmergencyStop         bool     `yaml:"emergency_stop"`          // 紧急停机，默认 false
	MaxHistory            int      `yaml:"max_history"`             // 告警历史容量，0 表示不限制
}

// ToPolicy 将配置折算为引擎策略，地址解析失败立即报错。
func (c *PolicyConfig) ToPolicy() (guard.Policy, error) {
	p := guard.DefaultPolicy()

	if c.Mode != "" {
		p.Mode = guard.Mode(c.Mode)
	}
	if c.RiskTolerance != "" {
		p.RiskTolerance = guard.RiskTolerance(c.RiskTolerance)
	}
	p.MaxSlippageBps = c.MaxSlippageBps
	if c.ValidateTransferHooks != nil {
		p.ValidateTransferHooks = *c.ValidateTransferHooks
	}
	if c.MaxHookAccounts > 0 {
		p.MaxHookAccounts = c.MaxHookAccounts
	}
	if c.MaxHookWritable > 0 {
		p.MaxHookWritable = c.MaxHookWritable
	}
	if c.MaxHookTotalAccounts > 0 {
		p.MaxHookTotalAccounts = c.MaxHookTotalAccounts
	}
	if c.MaxHookInvocations > 0 {
		p.MaxHookInvocations = c.MaxHookInvocations
	}
	p.EmergencyStop = c.EmergencyStop
	p.MaxHistory = c.MaxHistory

	programs, err := types.TryPubkeysFromBase58(c.AllowedHookPrograms)
	if err != nil {
		return guard.Policy{}, fmt.Errorf("invalid allowed hook program: %w", err)
	}
	p.AllowedHookPrograms = programs
	return p, nil
}

// RiskConfig 表示风险叠加层配置。
type RiskConfig struct {
	Enabled               bool    `yaml:"enabled"`
	Endpoint              string  `yaml:"endpoint"`                // 风险服务地址，例如 http://risk.service.local
	RiskThreshold         float64 `yaml:"risk_threshold"`          // 风险分阈值（0~1）
	EnableComplianceCheck bool    `yaml:"enable_compliance_check"` // 是否启用合规状态检查
	CacheTTLS             int     `yaml:"cache_ttl_s"`             // 评估结果缓存时间（秒）
	FallbackOnError       bool    `yaml:"fallback_on_error"`       // 外部服务失败时是否按通过处理
	TimeoutMs             int     `yaml:"timeout_ms"`              // 单次外部调用超时（毫秒）
	MaxRetries            int     `yaml:"max_retries"`             // 额外重试次数上限
}

func (c *RiskConfig) ToRiskConfig() risk.Config {
	ttl := time.Duration(c.CacheTTLS) * time.Second
	if c.CacheTTLS == 0 {
		ttl = 5 * time.Minute
	}
	return risk.Config{
		Enabled:               c.Enabled,
		RiskThreshold:         c.RiskThreshold,
		EnableComplianceCheck: c.EnableComplianceCheck,
		FallbackOnError:       c.FallbackOnError,
		MaxRetries:            c.MaxRetries,
		CacheTTL:              ttl,
	}
}

func (c *RiskConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// KafkaSinkConfig 表示发现项发布配置。
type KafkaSinkConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Brokers       string `yaml:"brokers"`         // Kafka broker 地址，多个用英文逗号分隔
	Topic         string `yaml:"topic"`           // 发现项 topic
	Partitions    int    `yaml:"partitions"`      // topic 分区数
	BatchSize     int    `yaml:"batch_size"`      // 批处理大小（单位字节）
	LingerMs      int    `yaml:"linger_ms"`       // 批处理最大延迟（毫秒）
	SendTimeoutMs int    `yaml:"send_timeout_ms"` // 单条消息发送并等待 ack 的超时（毫秒）
}

func (c *KafkaSinkConfig) ToProducerOption() mq.ProducerOption {
	return mq.ProducerOption{
		Brokers:    c.Brokers,
		Topic:      c.Topic,
		Partitions: c.Partitions,
		BatchSize:  c.BatchSize,
		LingerMs:   c.LingerMs,
	}
}

func (c *KafkaSinkConfig) SendTimeout() time.Duration {
	if c.SendTimeoutMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.SendTimeoutMs) * time.Millisecond
}

// GuardConfig 是主配置结构体，用于驱动 guard 服务。
type GuardConfig struct {
	LogConf   LogConfig       `yaml:"logger"`     // 日志配置
	Policy    PolicyConfig    `yaml:"policy"`     // 校验策略
	Risk      RiskConfig      `yaml:"risk"`       // 风险叠加层配置
	KafkaSink KafkaSinkConfig `yaml:"kafka_sink"` // 发现项发布配置（可选）
	RedisAddr string          `yaml:"redis_addr"` // Redis 地址（可选，共享风险缓存）
	AuditDB   string          `yaml:"audit_db"`   // sqlite 审计库路径（可选）
}
