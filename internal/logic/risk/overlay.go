package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"tx-guard-sol/internal/cache"
	"tx-guard-sol/internal/logic/core"
	"tx-guard-sol/internal/types"
	"tx-guard-sol/pkg/logger"
)

// Config 为风险叠加层配置。
type Config struct {
	Enabled               bool
	RiskThreshold         float64 // 风险分超过该值产生发现项
	EnableComplianceCheck bool
	FallbackOnError       bool // 外部服务失败时按"通过"处理，避免服务不可用阻断全部流量
	MaxRetries            int  // 单次查询的额外重试次数上限
	CacheTTL              time.Duration
}

// Validate 校验配置合法性，在策略引擎构造时调用。
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.RiskThreshold < 0 || c.RiskThreshold > 1 {
		return fmt.Errorf("risk threshold must be within [0,1], got %v", c.RiskThreshold)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("risk max retries must be non-negative, got %d", c.MaxRetries)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("risk cache ttl must be non-negative, got %v", c.CacheTTL)
	}
	return nil
}

// Overlay 负责查询交易引用资产的风险指标并折算为发现项。
// 内存缓存 + 可选 Redis 共享层；同一资产的并发查询经 singleflight 合并为一次外部调用。
type Overlay struct {
	cfg      Config
	provider Provider
	mem      *cache.RiskCache
	shared   *cache.RedisRiskCache // 可为 nil
	group    singleflight.Group
}

// NewOverlay 构造风险叠加层。shared 传 nil 表示只用内存缓存。
func NewOverlay(cfg Config, provider Provider, shared *cache.RedisRiskCache) *Overlay {
	return &Overlay{
		cfg:      cfg,
		provider: provider,
		mem:      cache.NewRiskCache(cfg.CacheTTL),
		shared:   shared,
	}
}

// Evaluate 对交易引用的全部资产做风险评估，返回发现项（按资产顺序）。
// severity 由调用方根据执行模式确定。ctx 取消时立即放弃剩余查询，已有结果照常返回。
func (o *Overlay) Evaluate(ctx context.Context, tx *core.Transaction, severity core.Severity, now time.Time) []core.Finding {
	if !o.cfg.Enabled || tx == nil || len(tx.AssetRefs) == 0 {
		return nil
	}

	var findings []core.Finding
	for _, asset := range tx.AssetRefs {
		if ctx.Err() != nil {
			logger.Warnf("[risk] evaluation abandoned: %v, tx=%s", ctx.Err(), tx.ID)
			break
		}

		m, err := o.lookup(ctx, asset)
		if err != nil {
			if o.cfg.FallbackOnError {
				logger.Warnf("[risk] lookup failed, fallback to pass: asset=%s, err=%v", asset, err)
				continue
			}
			findings = append(findings, core.Finding{
				Pattern:   core.PatternRiskCheckFailed,
				Severity:  severity,
				Message:   fmt.Sprintf("risk check for asset %s failed: %v", asset, err),
				Account:   asset,
				TxID:      tx.ID,
				CreatedAt: now,
			})
			continue
		}

		if m.RiskScore > o.cfg.RiskThreshold {
			findings = append(findings, core.Finding{
				Pattern:   core.PatternRiskScoreExceeded,
				Severity:  severity,
				Message:   fmt.Sprintf("asset %s risk score %.2f exceeds threshold %.2f", asset, m.RiskScore, o.cfg.RiskThreshold),
				Account:   asset,
				TxID:      tx.ID,
				CreatedAt: now,
			})
		}
		if o.cfg.EnableComplianceCheck && m.ComplianceStatus == cache.ComplianceNonCompliant {
			findings = append(findings, core.Finding{
				Pattern:   core.PatternComplianceViolation,
				Severity:  severity,
				Message:   fmt.Sprintf("asset %s is flagged non-compliant", asset),
				Account:   asset,
				TxID:      tx.ID,
				CreatedAt: now,
			})
		}
	}
	return findings
}

// lookup 按 内存缓存 → Redis → 外部服务 的顺序查询单个资产。
// 取消的查询不会写入任何缓存层，避免半途结果污染缓存。
func (o *Overlay) lookup(ctx context.Context, asset types.Pubkey) (cache.RiskMetrics, error) {
	if m, ok := o.mem.Get(asset); ok {
		return m, nil
	}

	// 同一资产的并发未命中合并为一次外部调用
	v, err, _ := o.group.Do(asset.String(), func() (interface{}, error) {
		if o.shared != nil {
			if m, ok, err := o.shared.Get(ctx, asset); err == nil && ok {
				o.mem.Put(m)
				return m, nil
			}
		}

		m, err := o.fetchWithRetry(ctx, asset)
		if err != nil {
			return cache.RiskMetrics{}, err
		}

		o.mem.Put(m)
		if o.shared != nil {
			if err := o.shared.Put(ctx, m); err != nil {
				logger.Warnf("[risk] shared cache write failed: asset=%s, err=%v", asset, err)
			}
		}
		return m, nil
	})
	if err != nil {
		return cache.RiskMetrics{}, err
	}
	return v.(cache.RiskMetrics), nil
}

// fetchWithRetry 调用外部服务，失败时做有限次指数退避重试。
func (o *Overlay) fetchWithRetry(ctx context.Context, asset types.Pubkey) (cache.RiskMetrics, error) {
	var result cache.RiskMetrics

	op := func() error {
		m, err := o.provider.GetRiskMetrics(ctx, asset)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err) // 上游已取消，不再重试
			}
			return err
		}
		result = m
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(o.cfg.MaxRetries)),
		ctx,
	)
	if err := backoff.Retry(op, b); err != nil {
		return cache.RiskMetrics{}, err
	}
	return result, nil
}
