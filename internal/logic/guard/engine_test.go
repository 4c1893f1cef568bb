package guard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tx-guard-sol/internal/cache"
	"tx-guard-sol/internal/consts"
	"tx-guard-sol/internal/logic/core"
	"tx-guard-sol/internal/logic/risk"
	"tx-guard-sol/internal/types"
)

var (
	mint  = types.PubkeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	owner = types.PubkeyFromBase58("So11111111111111111111111111111111111111112")
	acct  = types.PubkeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB")
	dst   = types.PubkeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

// stubProvider 是测试用的风险服务替身。
type stubProvider struct {
	metrics cache.RiskMetrics
	err     error
	calls   int
}

func (s *stubProvider) GetRiskMetrics(ctx context.Context, asset types.Pubkey) (cache.RiskMetrics, error) {
	s.calls++
	if s.err != nil {
		return cache.RiskMetrics{}, s.err
	}
	m := s.metrics
	m.Asset = asset
	return m, nil
}

func mintRevokeTx() *core.Transaction {
	return &core.Transaction{
		ID:     "tx-mint-revoke",
		Status: core.TxPending,
		Instructions: []*core.Instruction{{
			ProgramID: consts.TokenProgram,
			Accounts: []core.AccountMeta{
				{Pubkey: mint, IsWritable: true},
				{Pubkey: owner, IsSigner: true},
			},
			Data: []byte{6, 0, 0}, // SetAuthority(mint, None)
		}},
	}
}

func closeTx() *core.Transaction {
	return &core.Transaction{
		ID:     "tx-close",
		Status: core.TxPending,
		Instructions: []*core.Instruction{{
			ProgramID: consts.TokenProgram,
			Accounts: []core.AccountMeta{
				{Pubkey: acct, IsWritable: true},
				{Pubkey: dst, IsWritable: true},
				{Pubkey: owner, IsSigner: true},
			},
			Data: []byte{9},
		}},
		Signers: []types.Pubkey{owner},
	}
}

func newEngine(t *testing.T, policy Policy) *Engine {
	t.Helper()
	e, err := NewEngine(policy, nil, nil)
	require.NoError(t, err)
	return e
}

func TestValidateEmptyTransaction(t *testing.T) {
	e := newEngine(t, DefaultPolicy())

	result := e.Validate(context.Background(), &core.Transaction{ID: "empty"})
	assert.True(t, result.Valid)
	assert.Empty(t, result.Findings)
	assert.Empty(t, result.BlockedBy)

	// nil 交易按空交易处理
	result = e.Validate(context.Background(), nil)
	assert.True(t, result.Valid)
}

func TestValidateEmergencyStop(t *testing.T) {
	policy := DefaultPolicy()
	policy.EmergencyStop = true
	e := newEngine(t, policy)

	result := e.Validate(context.Background(), mintRevokeTx())
	assert.False(t, result.Valid)
	assert.Equal(t, []core.PatternID{core.PatternEmergencyStop}, result.BlockedBy)

	// 空交易同样被拒绝
	result = e.Validate(context.Background(), &core.Transaction{})
	assert.False(t, result.Valid)
}

// 默认策略下 mint 权限移除：invalid + blockedBy + 单条 critical。
func TestValidateMintRevokeDefaultPolicy(t *testing.T) {
	e := newEngine(t, DefaultPolicy())

	result := e.Validate(context.Background(), mintRevokeTx())
	assert.False(t, result.Valid)
	assert.Equal(t, []core.PatternID{core.PatternAuthorityMintRevoke}, result.BlockedBy)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, core.SeverityCritical, result.Findings[0].Severity)
}

// dangerous-close 为 alert 级别：strict 拦截、moderate / permissive 放行。
func TestValidateCloseToleranceMatrix(t *testing.T) {
	cases := []struct {
		tolerance RiskTolerance
		wantValid bool
	}{
		{ToleranceStrict, false},
		{ToleranceModerate, true},
		{TolerancePermissive, true},
	}

	for _, tc := range cases {
		t.Run(string(tc.tolerance), func(t *testing.T) {
			policy := DefaultPolicy()
			policy.RiskTolerance = tc.tolerance
			e := newEngine(t, policy)

			result := e.Validate(context.Background(), closeTx())
			assert.Equal(t, tc.wantValid, result.Valid)
			require.Len(t, result.Findings, 1)
			assert.Equal(t, core.PatternDangerousClose, result.Findings[0].Pattern)
		})
	}
}

// 切换 block → warn 只改变裁决，不改变发现项列表。
func TestValidateModeDoesNotChangeFindings(t *testing.T) {
	blockPolicy := DefaultPolicy()
	warnPolicy := DefaultPolicy()
	warnPolicy.Mode = ModeWarn

	blockResult := newEngine(t, blockPolicy).Validate(context.Background(), mintRevokeTx())
	warnResult := newEngine(t, warnPolicy).Validate(context.Background(), mintRevokeTx())

	require.Equal(t, len(blockResult.Findings), len(warnResult.Findings))
	for i := range blockResult.Findings {
		assert.Equal(t, blockResult.Findings[i].Pattern, warnResult.Findings[i].Pattern)
		assert.Equal(t, blockResult.Findings[i].Severity, warnResult.Findings[i].Severity)
	}

	assert.False(t, blockResult.Valid)
	assert.True(t, warnResult.Valid)
	assert.Empty(t, warnResult.BlockedBy)
}

func TestValidateMonitorMode(t *testing.T) {
	policy := DefaultPolicy()
	policy.Mode = ModeMonitor
	e := newEngine(t, policy)

	result := e.Validate(context.Background(), mintRevokeTx())
	assert.True(t, result.Valid)
	assert.Len(t, result.Findings, 1)
	assert.Len(t, e.History(), 1, "monitor 模式下发现项仍进入历史")
}

func TestCustomRules(t *testing.T) {
	t.Run("违规折算为发现项", func(t *testing.T) {
		policy := DefaultPolicy()
		policy.CustomRules = []CustomRule{{
			Name:     "max-instructions",
			Severity: core.SeverityCritical,
			Check:    func(tx *core.Transaction) bool { return len(tx.Instructions) <= 0 },
		}}
		e := newEngine(t, policy)

		result := e.Validate(context.Background(), closeTx())
		assert.False(t, result.Valid)
		assert.Contains(t, result.BlockedBy, core.PatternCustomRuleViolation)
	})

	t.Run("规则 panic 折算为 detector-failure 并继续", func(t *testing.T) {
		policy := DefaultPolicy()
		policy.CustomRules = []CustomRule{{
			Name:     "broken-rule",
			Severity: core.SeverityWarning,
			Check:    func(tx *core.Transaction) bool { panic("boom") },
		}}
		e := newEngine(t, policy)

		result := e.Validate(context.Background(), mintRevokeTx())
		// mint-revoke 照常检出，panic 降级为 warning 级 detector-failure
		assert.False(t, result.Valid)
		assert.Equal(t, []core.PatternID{core.PatternAuthorityMintRevoke}, result.BlockedBy)

		found := false
		for _, f := range result.Findings {
			if f.Pattern == core.PatternDetectorFailure {
				found = true
				assert.Equal(t, core.SeverityWarning, f.Severity)
			}
		}
		assert.True(t, found)
	})
}

func TestEngineConfigErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Policy)
	}{
		{"未知模式", func(p *Policy) { p.Mode = "reject" }},
		{"未知容忍度", func(p *Policy) { p.RiskTolerance = "loose" }},
		{"负滑点", func(p *Policy) { p.MaxSlippageBps = -1 }},
		{"负阈值", func(p *Policy) { p.MaxHookAccounts = -5 }},
		{"自定义规则缺名字", func(p *Policy) {
			p.CustomRules = []CustomRule{{Check: func(*core.Transaction) bool { return true }, Severity: core.SeverityWarning}}
		}},
		{"自定义规则缺函数", func(p *Policy) {
			p.CustomRules = []CustomRule{{Name: "x", Severity: core.SeverityWarning}}
		}},
		{"风险阈值越界", func(p *Policy) {
			p.Risk = risk.Config{Enabled: true, RiskThreshold: 1.5}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			policy := DefaultPolicy()
			tc.mutate(&policy)
			_, err := NewEngine(policy, nil, nil)
			assert.Error(t, err, "配置错误必须在构造时暴露")
		})
	}
}

func TestWarningHistoryAcrossCalls(t *testing.T) {
	e := newEngine(t, DefaultPolicy())

	e.Validate(context.Background(), mintRevokeTx())
	e.Validate(context.Background(), closeTx())
	assert.Len(t, e.History(), 2)

	e.ClearHistory()
	assert.Empty(t, e.History())
}

func riskPolicy(threshold float64, fallback bool) Policy {
	policy := DefaultPolicy()
	policy.Risk = risk.Config{
		Enabled:               true,
		RiskThreshold:         threshold,
		EnableComplianceCheck: true,
		FallbackOnError:       fallback,
		CacheTTL:              0,
	}
	return policy
}

func assetTx() *core.Transaction {
	return &core.Transaction{
		ID:        "tx-asset",
		AssetRefs: []types.Pubkey{mint},
	}
}

func TestValidateRiskOverlay(t *testing.T) {
	t.Run("风险分超阈值在 block 模式下拦截", func(t *testing.T) {
		provider := &stubProvider{metrics: cache.RiskMetrics{RiskScore: 0.9, ComplianceStatus: cache.ComplianceCompliant}}
		e, err := NewEngine(riskPolicy(0.7, false), provider, nil)
		require.NoError(t, err)

		result := e.Validate(context.Background(), assetTx())
		assert.False(t, result.Valid)
		assert.Equal(t, []core.PatternID{core.PatternRiskScoreExceeded}, result.BlockedBy)
	})

	t.Run("合规违规单独成项", func(t *testing.T) {
		provider := &stubProvider{metrics: cache.RiskMetrics{RiskScore: 0.1, ComplianceStatus: cache.ComplianceNonCompliant}}
		e, err := NewEngine(riskPolicy(0.7, false), provider, nil)
		require.NoError(t, err)

		result := e.Validate(context.Background(), assetTx())
		assert.False(t, result.Valid)
		assert.Equal(t, []core.PatternID{core.PatternComplianceViolation}, result.BlockedBy)
	})

	t.Run("服务失败且未配置回退时产生发现项", func(t *testing.T) {
		provider := &stubProvider{err: errors.New("connection refused")}
		e, err := NewEngine(riskPolicy(0.7, false), provider, nil)
		require.NoError(t, err)

		result := e.Validate(context.Background(), assetTx())
		assert.False(t, result.Valid)
		assert.Equal(t, []core.PatternID{core.PatternRiskCheckFailed}, result.BlockedBy)
	})

	t.Run("服务失败但配置回退时放行", func(t *testing.T) {
		provider := &stubProvider{err: errors.New("connection refused")}
		e, err := NewEngine(riskPolicy(0.7, true), provider, nil)
		require.NoError(t, err)

		result := e.Validate(context.Background(), assetTx())
		assert.True(t, result.Valid)
		assert.Empty(t, result.Findings)
	})

	t.Run("未引用资产时不触发外部调用", func(t *testing.T) {
		provider := &stubProvider{metrics: cache.RiskMetrics{RiskScore: 0.99}}
		e, err := NewEngine(riskPolicy(0.7, false), provider, nil)
		require.NoError(t, err)

		result := e.Validate(context.Background(), closeTx())
		assert.Zero(t, provider.calls)
		assert.True(t, result.Valid) // moderate 容忍度下 alert 不拦截
	})
}
