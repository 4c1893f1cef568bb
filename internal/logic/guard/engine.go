package guard

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"tx-guard-sol/internal/cache"
	"tx-guard-sol/internal/logic/core"
	"tx-guard-sol/internal/logic/decoder"
	"tx-guard-sol/internal/logic/detector"
	"tx-guard-sol/internal/logic/risk"
	"tx-guard-sol/internal/logic/sequence"
	"tx-guard-sol/pkg/logger"
)

// Engine 是校验流程的公共入口：解码 → 序列分析 → 规则检测 → 风险叠加 → 裁决。
// 策略不可变；告警历史与风险缓存是仅有的共享可变状态，各自持锁。
// 同一实例可被多笔交易并发调用。
type Engine struct {
	policy    Policy
	opts      detector.Options
	detectors []detector.Detector
	overlay   *risk.Overlay // 未启用时为 nil
	history   *WarningHistory
}

// NewEngine 构造校验引擎。策略错误（未知模式、负阈值、非法自定义规则等）
// 在此同步返回，校验阶段不再出现配置类错误。
// provider / sharedCache 仅在风险叠加层启用时使用，可为 nil。
func NewEngine(policy Policy, provider risk.Provider, sharedCache *cache.RedisRiskCache) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid guard policy: %w", err)
	}

	e := &Engine{
		policy:    policy,
		opts:      policy.detectorOptions(),
		detectors: detector.Builtin(policy.ValidateTransferHooks),
		history:   NewWarningHistory(policy.MaxHistory),
	}

	if policy.Risk.Enabled {
		if provider == nil {
			return nil, fmt.Errorf("risk overlay enabled but no provider supplied")
		}
		e.overlay = risk.NewOverlay(policy.Risk, provider, sharedCache)
	}
	return e, nil
}

// Policy 返回引擎当前策略的副本。
func (e *Engine) Policy() Policy {
	return e.policy
}

// Validate 对一笔交易做完整校验并给出裁决。只读交易，绝不修改。
// 所有发现项无论执行模式如何都会进入告警历史。
func (e *Engine) Validate(ctx context.Context, tx *core.Transaction) *core.ValidationResult {
	now := time.Now()

	result := &core.ValidationResult{Valid: true, Findings: []core.Finding{}}
	if tx != nil {
		result.TxID = tx.ID
	}

	// 1. 紧急停机短路：不做任何解码与检测
	if e.policy.EmergencyStop {
		f := core.Finding{
			Pattern:   core.PatternEmergencyStop,
			Severity:  core.SeverityCritical,
			Message:   "emergency stop engaged, all transactions rejected",
			TxID:      result.TxID,
			CreatedAt: now,
		}
		e.history.Append(f)
		result.Valid = false
		result.Findings = append(result.Findings, f)
		result.BlockedBy = []core.PatternID{core.PatternEmergencyStop}
		return result
	}

	if tx == nil || len(tx.Instructions) == 0 {
		return result
	}

	// 2. 统一解码 + 序列分析（单次 O(n) 扫描）
	ops := make([]decoder.Operation, len(tx.Instructions))
	for i, ix := range tx.Instructions {
		ops[i] = decoder.Decode(ix)
	}
	summary := sequence.Analyze(tx, ops)

	// 3. 内置规则按检测顺序执行，单条规则故障不影响其余规则
	var findings []core.Finding
	for i, ix := range tx.Instructions {
		dctx := &detector.Context{
			Tx:      tx,
			Index:   i,
			Window:  summary.At(i),
			Summary: summary,
			Opts:    &e.opts,
			Now:     now,
		}
		for _, d := range e.detectors {
			findings = append(findings, e.runDetector(d, ix, &ops[i], dctx)...)
		}
	}

	// 自定义规则作用于整笔交易
	for _, rule := range e.policy.CustomRules {
		findings = append(findings, e.runCustomRule(rule, tx, now)...)
	}

	// 4. 风险叠加层
	if e.overlay != nil {
		findings = append(findings, e.overlay.Evaluate(ctx, tx, e.policy.riskSeverity(), now)...)
	}

	// 5. 按容忍度划分拦截集；6. 按执行模式裁决
	var blockedBy []core.PatternID
	seen := make(map[core.PatternID]struct{})
	for i := range findings {
		if e.policy.blocks(&findings[i]) {
			if _, ok := seen[findings[i].Pattern]; !ok {
				seen[findings[i].Pattern] = struct{}{}
				blockedBy = append(blockedBy, findings[i].Pattern)
			}
		}
	}

	result.Findings = findings
	if e.policy.Mode == ModeBlock && len(blockedBy) > 0 {
		result.Valid = false
		result.BlockedBy = blockedBy
	}

	e.history.Append(findings...)
	return result
}

// History 返回告警历史快照。
func (e *Engine) History() []core.Finding {
	return e.history.Snapshot()
}

// ClearHistory 清空告警历史。
func (e *Engine) ClearHistory() {
	e.history.Clear()
}

// runDetector 执行单条内置规则，panic 折算为 detector-failure 发现项后继续。
// 单条规则被对抗性输入打挂时，既不能让整体校验崩溃，也不能让它静默通过。
func (e *Engine) runDetector(d detector.Detector, ix *core.Instruction, op *decoder.Operation, c *detector.Context) (fs []core.Finding) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[guard] detector %s panic: %+v\nstack: %s", d.Pattern(), r, debug.Stack())
			fs = []core.Finding{{
				Pattern:   core.PatternDetectorFailure,
				Severity:  core.SeverityWarning,
				Message:   fmt.Sprintf("detector %s failed on instruction %d: %v", d.Pattern(), c.Index, r),
				TxID:      c.Tx.ID,
				CreatedAt: c.Now,
			}}
		}
	}()
	return d.Detect(ix, op, c)
}

// runCustomRule 执行单条自定义规则，panic 处理同内置规则。
func (e *Engine) runCustomRule(rule CustomRule, tx *core.Transaction, now time.Time) (fs []core.Finding) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[guard] custom rule %q panic: %+v\nstack: %s", rule.Name, r, debug.Stack())
			fs = []core.Finding{{
				Pattern:   core.PatternDetectorFailure,
				Severity:  core.SeverityWarning,
				Message:   fmt.Sprintf("custom rule %q failed: %v", rule.Name, r),
				TxID:      tx.ID,
				CreatedAt: now,
			}}
		}
	}()

	if rule.Check(tx) {
		return nil
	}
	return []core.Finding{{
		Pattern:   core.PatternCustomRuleViolation,
		Severity:  rule.Severity,
		Message:   fmt.Sprintf("custom rule %q rejected the transaction", rule.Name),
		TxID:      tx.ID,
		CreatedAt: now,
	}}
}
