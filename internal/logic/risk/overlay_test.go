package risk

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tx-guard-sol/internal/cache"
	"tx-guard-sol/internal/logic/core"
	"tx-guard-sol/internal/types"
)

var (
	assetA = types.PubkeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	assetB = types.PubkeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB")
)

// countingProvider 记录外部调用次数，可注入延迟与错误。
type countingProvider struct {
	calls   int64
	score   float64
	status  string
	err     error
	latency time.Duration
}

func (p *countingProvider) GetRiskMetrics(ctx context.Context, asset types.Pubkey) (cache.RiskMetrics, error) {
	atomic.AddInt64(&p.calls, 1)
	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return cache.RiskMetrics{}, ctx.Err()
		}
	}
	if p.err != nil {
		return cache.RiskMetrics{}, p.err
	}
	status := p.status
	if status == "" {
		status = cache.ComplianceCompliant
	}
	return cache.RiskMetrics{
		Asset:            asset,
		RiskScore:        p.score,
		ComplianceStatus: status,
		FetchedAt:        time.Now(),
	}, nil
}

func testConfig() Config {
	return Config{
		Enabled:               true,
		RiskThreshold:         0.7,
		EnableComplianceCheck: true,
		CacheTTL:              time.Minute,
	}
}

func evalTx(assets ...types.Pubkey) *core.Transaction {
	return &core.Transaction{ID: "tx-risk", AssetRefs: assets}
}

func TestOverlayScoreThreshold(t *testing.T) {
	t.Run("超过阈值产生发现项", func(t *testing.T) {
		o := NewOverlay(testConfig(), &countingProvider{score: 0.9}, nil)
		findings := o.Evaluate(context.Background(), evalTx(assetA), core.SeverityCritical, time.Now())

		require.Len(t, findings, 1)
		assert.Equal(t, core.PatternRiskScoreExceeded, findings[0].Pattern)
		assert.Equal(t, core.SeverityCritical, findings[0].Severity)
		assert.Equal(t, assetA, findings[0].Account)
	})

	t.Run("等于阈值不产生发现项", func(t *testing.T) {
		o := NewOverlay(testConfig(), &countingProvider{score: 0.7}, nil)
		findings := o.Evaluate(context.Background(), evalTx(assetA), core.SeverityCritical, time.Now())
		assert.Empty(t, findings)
	})
}

func TestOverlayCompliance(t *testing.T) {
	t.Run("非合规产生发现项", func(t *testing.T) {
		o := NewOverlay(testConfig(), &countingProvider{score: 0.1, status: cache.ComplianceNonCompliant}, nil)
		findings := o.Evaluate(context.Background(), evalTx(assetA), core.SeverityWarning, time.Now())

		require.Len(t, findings, 1)
		assert.Equal(t, core.PatternComplianceViolation, findings[0].Pattern)
		assert.Equal(t, core.SeverityWarning, findings[0].Severity)
	})

	t.Run("关闭合规检查后忽略", func(t *testing.T) {
		cfg := testConfig()
		cfg.EnableComplianceCheck = false
		o := NewOverlay(cfg, &countingProvider{score: 0.1, status: cache.ComplianceNonCompliant}, nil)
		assert.Empty(t, o.Evaluate(context.Background(), evalTx(assetA), core.SeverityWarning, time.Now()))
	})
}

func TestOverlayFailurePolicy(t *testing.T) {
	t.Run("未配置回退时折算为发现项", func(t *testing.T) {
		o := NewOverlay(testConfig(), &countingProvider{err: errors.New("timeout")}, nil)
		findings := o.Evaluate(context.Background(), evalTx(assetA), core.SeverityCritical, time.Now())

		require.Len(t, findings, 1)
		assert.Equal(t, core.PatternRiskCheckFailed, findings[0].Pattern)
	})

	t.Run("配置回退时按通过处理", func(t *testing.T) {
		cfg := testConfig()
		cfg.FallbackOnError = true
		o := NewOverlay(cfg, &countingProvider{err: errors.New("timeout")}, nil)
		assert.Empty(t, o.Evaluate(context.Background(), evalTx(assetA), core.SeverityCritical, time.Now()))
	})
}

func TestOverlayCacheHit(t *testing.T) {
	provider := &countingProvider{score: 0.9}
	o := NewOverlay(testConfig(), provider, nil)

	o.Evaluate(context.Background(), evalTx(assetA), core.SeverityCritical, time.Now())
	o.Evaluate(context.Background(), evalTx(assetA), core.SeverityCritical, time.Now())

	assert.Equal(t, int64(1), atomic.LoadInt64(&provider.calls), "TTL 内第二次评估必须命中缓存")
}

func TestOverlayPerAssetLookup(t *testing.T) {
	provider := &countingProvider{score: 0.1}
	o := NewOverlay(testConfig(), provider, nil)

	o.Evaluate(context.Background(), evalTx(assetA, assetB), core.SeverityCritical, time.Now())
	assert.Equal(t, int64(2), atomic.LoadInt64(&provider.calls), "不同资产各查一次")
}

// 同一资产的并发未命中必须合并为一次外部调用。
func TestOverlaySingleflight(t *testing.T) {
	provider := &countingProvider{score: 0.1, latency: 50 * time.Millisecond}
	o := NewOverlay(testConfig(), provider, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Evaluate(context.Background(), evalTx(assetA), core.SeverityCritical, time.Now())
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&provider.calls))
}

func TestOverlayCancelledContext(t *testing.T) {
	provider := &countingProvider{score: 0.9}
	o := NewOverlay(testConfig(), provider, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	findings := o.Evaluate(ctx, evalTx(assetA), core.SeverityCritical, time.Now())
	assert.Empty(t, findings, "已取消的评估直接放弃")
	assert.Zero(t, atomic.LoadInt64(&provider.calls))
}

func TestOverlayDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	provider := &countingProvider{score: 0.9}
	o := NewOverlay(cfg, provider, nil)

	assert.Empty(t, o.Evaluate(context.Background(), evalTx(assetA), core.SeverityCritical, time.Now()))
	assert.Zero(t, atomic.LoadInt64(&provider.calls))
}
