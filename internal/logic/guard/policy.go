package guard

import (
	"fmt"

	"tx-guard-sol/internal/logic/core"
	"tx-guard-sol/internal/logic/detector"
	"tx-guard-sol/internal/logic/risk"
	"tx-guard-sol/internal/types"
)

// Mode 表示执行模式：block 拦截，warn / monitor 只记录。
type Mode string

const (
	ModeBlock   Mode = "block"
	ModeWarn    Mode = "warn"
	ModeMonitor Mode = "monitor"
)

// RiskTolerance 表示风险容忍度，决定哪些严重级别的发现项可以拦截交易。
type RiskTolerance string

const (
	// ToleranceStrict 拦截 warning 及以上（即全部级别）。
	ToleranceStrict RiskTolerance = "strict"
	// ToleranceModerate 只拦截 critical。
	ToleranceModerate RiskTolerance = "moderate"
	// TolerancePermissive 只拦截标记为不可逆的发现项。
	TolerancePermissive RiskTolerance = "permissive"
)

// CustomRule 是调用方提供的命名规则，直接作用于原始交易（粒度比内置规则粗）。
// Check 返回 false 表示违规，引擎将其折算为指定严重级别的发现项。
type CustomRule struct {
	Name     string
	Severity core.Severity
	Check    func(tx *core.Transaction) bool
}

// Policy 为校验策略，构造引擎后不可变。
// 可变状态（警告历史、风险缓存）由引擎单独持有。
type Policy struct {
	Mode          Mode
	RiskTolerance RiskTolerance

	// MaxSlippageBps 由执行层消费，guard 自身不使用，只做合法性检查后透传。
	MaxSlippageBps int

	ValidateTransferHooks bool
	MaxHookAccounts       int
	MaxHookWritable       int
	MaxHookTotalAccounts  int
	MaxHookInvocations    int
	AllowedHookPrograms   []types.Pubkey

	CustomRules   []CustomRule
	EmergencyStop bool

	Risk risk.Config

	// MaxHistory 为警告历史容量上限，0 表示不限制。
	MaxHistory int
}

// DefaultPolicy 返回默认策略：block 模式、moderate 容忍度、hook 校验开启。
func DefaultPolicy() Policy {
	return Policy{
		Mode:                  ModeBlock,
		RiskTolerance:         ToleranceModerate,
		ValidateTransferHooks: true,
		MaxHookAccounts:       detector.DefaultMaxHookAccounts,
		MaxHookWritable:       detector.DefaultMaxHookWritable,
		MaxHookTotalAccounts:  detector.DefaultMaxHookTotalAccounts,
		MaxHookInvocations:    detector.DefaultMaxHookInvocations,
	}
}

// Validate 校验策略合法性。配置错误在引擎构造时同步暴露，不会拖到校验阶段。
func (p *Policy) Validate() error {
	switch p.Mode {
	case ModeBlock, ModeWarn, ModeMonitor:
	default:
		return fmt.Errorf("unknown enforcement mode %q", p.Mode)
	}
	switch p.RiskTolerance {
	case ToleranceStrict, ToleranceModerate, TolerancePermissive:
	default:
		return fmt.Errorf("unknown risk tolerance %q", p.RiskTolerance)
	}
	if p.MaxSlippageBps < 0 {
		return fmt.Errorf("max slippage must be non-negative, got %d", p.MaxSlippageBps)
	}
	if p.MaxHookAccounts < 0 || p.MaxHookWritable < 0 || p.MaxHookTotalAccounts < 0 || p.MaxHookInvocations < 0 {
		return fmt.Errorf("hook thresholds must be non-negative")
	}
	if p.MaxHistory < 0 {
		return fmt.Errorf("max history must be non-negative, got %d", p.MaxHistory)
	}
	for i, r := range p.CustomRules {
		if r.Name == "" {
			return fmt.Errorf("custom rule #%d has empty name", i)
		}
		if r.Check == nil {
			return fmt.Errorf("custom rule %q has nil check function", r.Name)
		}
		if !r.Severity.Valid() {
			return fmt.Errorf("custom rule %q has unknown severity %q", r.Name, r.Severity)
		}
	}
	return p.Risk.Validate()
}

// detectorOptions 将策略阈值折算为检测规则配置，零值阈值回填默认值。
func (p *Policy) detectorOptions() detector.Options {
	opts := detector.Options{
		AllowedHookPrograms:  make(map[types.Pubkey]struct{}, len(p.AllowedHookPrograms)),
		MaxHookWritable:      p.MaxHookWritable,
		MaxHookTotalAccounts: p.MaxHookTotalAccounts,
		MaxHookInvocations:   p.MaxHookInvocations,
		MaxHookAccounts:      p.MaxHookAccounts,
	}
	for _, prog := range p.AllowedHookPrograms {
		opts.AllowedHookPrograms[prog] = struct{}{}
	}
	if opts.MaxHookWritable == 0 {
		opts.MaxHookWritable = detector.DefaultMaxHookWritable
	}
	if opts.MaxHookTotalAccounts == 0 {
		opts.MaxHookTotalAccounts = detector.DefaultMaxHookTotalAccounts
	}
	if opts.MaxHookInvocations == 0 {
		opts.MaxHookInvocations = detector.DefaultMaxHookInvocations
	}
	if opts.MaxHookAccounts == 0 {
		opts.MaxHookAccounts = detector.DefaultMaxHookAccounts
	}
	return opts
}

// blocks 判断某条发现项在当前容忍度下是否达到拦截门槛。
func (p *Policy) blocks(f *core.Finding) bool {
	switch p.RiskTolerance {
	case ToleranceStrict:
		return f.Severity.Rank() >= core.SeverityWarning.Rank()
	case ToleranceModerate:
		return f.Severity == core.SeverityCritical
	case TolerancePermissive:
		return f.Irreversible
	default:
		return false
	}
}

// riskSeverity 返回风险叠加层发现项的严重级别：block 模式按 critical，其余按 warning。
func (p *Policy) riskSeverity() core.Severity {
	if p.Mode == ModeBlock {
		return core.SeverityCritical
	}
	return core.SeverityWarning
}
