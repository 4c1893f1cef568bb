package detector

import (
	"time"

	"tx-guard-sol/internal/logic/core"
	"tx-guard-sol/internal/logic/decoder"
	"tx-guard-sol/internal/logic/sequence"
	"tx-guard-sol/internal/types"
)

// 内置规则的默认阈值。
const (
	DefaultMaxHookWritable      = 10 // 非白名单 hook 的可写账户上限
	DefaultMaxHookTotalAccounts = 15 // 可写账户超限规则的第二阈值（账户总数）
	DefaultMaxHookInvocations   = 6  // 同一 hook 程序在单笔交易中的调用次数上限
	DefaultMaxHookAccounts      = 20 // 单次 hook 调用触达账户总数上限
)

// Options 为内置规则的阈值与白名单配置，由策略层在构造时填充。
type Options struct {
	AllowedHookPrograms  map[types.Pubkey]struct{} // 可信 hook 程序白名单
	MaxHookWritable      int
	MaxHookTotalAccounts int
	MaxHookInvocations   int
	MaxHookAccounts      int
}

// HookAllowed 判断某 hook 程序是否在可信白名单中。
func (o *Options) HookAllowed(program types.Pubkey) bool {
	_, ok := o.AllowedHookPrograms[program]
	return ok
}

// Context 为单条指令的检测上下文：所属交易、序列统计与局部窗口。
type Context struct {
	Tx      *core.Transaction
	Index   int
	Window  sequence.Window
	Summary *sequence.Summary
	Opts    *Options
	Now     time.Time
}

// Detector 是单条内置规则的统一契约。
// 实现必须无副作用且与执行顺序无关：是否拦截由策略引擎决定，规则只负责产出发现项。
type Detector interface {
	// Pattern 返回该规则对应的目录标识。
	Pattern() core.PatternID

	// Detect 对单条指令及其解码结果做判定，返回零或多条发现项。
	Detect(ix *core.Instruction, op *decoder.Operation, c *Context) []core.Finding
}

// Builtin 返回全部内置规则，按目录声明顺序排列。
// withHooks 为 false 时不包含 hook 相关规则（对应 validateTransferHooks 配置）。
func Builtin(withHooks bool) []Detector {
	ds := []Detector{
		mintRevokeDetector{},
		freezeRevokeDetector{},
		signerMismatchDetector{},
		dangerousCloseDetector{},
	}
	if withHooks {
		ds = append(ds,
			unknownHookExcessWritableDetector{},
			hookWithoutTransferDetector{},
			hookReentrancyDetector{},
			excessiveHookAccountsDetector{},
		)
	}
	return ds
}

// newFinding 构造一条发现项，统一填充时间与交易标识。
func newFinding(c *Context, pattern core.PatternID, severity core.Severity, msg string, account types.Pubkey) core.Finding {
	f := core.Finding{
		Pattern:   pattern,
		Severity:  severity,
		Message:   msg,
		Account:   account,
		CreatedAt: c.Now,
	}
	if c.Tx != nil {
		f.TxID = c.Tx.ID
	}
	return f
}
