package detector

import (
	"fmt"

	"tx-guard-sol/internal/logic/core"
	"tx-guard-sol/internal/logic/decoder"
)

// unknownHookExcessWritableDetector 检测非白名单 hook 程序一次性触达过多可写账户。
// 双阈值同时超限才触发：可写账户数与账户总数都异常时，基本可判定为批量清空类攻击。
type unknownHookExcessWritableDetector struct{}

func (unknownHookExcessWritableDetector) Pattern() core.PatternID {
	return core.PatternUnknownHookExcessWrite
}

func (unknownHookExcessWritableDetector) Detect(ix *core.Instruction, op *decoder.Operation, c *Context) []core.Finding {
	if op.Kind != decoder.OpHookInvocation {
		return nil
	}
	hook := op.Hook
	if c.Opts.HookAllowed(hook.ProgramID) {
		return nil
	}
	if hook.WritableCount <= c.Opts.MaxHookWritable || hook.AccountCount <= c.Opts.MaxHookTotalAccounts {
		return nil
	}
	return []core.Finding{newFinding(c, core.PatternUnknownHookExcessWrite, core.SeverityCritical,
		fmt.Sprintf("untrusted hook %s touches %d accounts (%d writable)",
			hook.ProgramID, hook.AccountCount, hook.WritableCount), hook.ProgramID)}
}

// hookWithoutTransferDetector 检测交易中出现 hook 调用却不存在任何 Token 划转。
// transfer-hook 只应伴随划转被触发，孤立调用多为诱导执行。
// 同一 hook 程序只在首次出现处报一次，避免重复发现项。
type hookWithoutTransferDetector struct{}

func (hookWithoutTransferDetector) Pattern() core.PatternID { return core.PatternHookWithoutTransfer }

func (hookWithoutTransferDetector) Detect(ix *core.Instruction, op *decoder.Operation, c *Context) []core.Finding {
	if op.Kind != decoder.OpHookInvocation {
		return nil
	}
	hook := op.Hook
	if c.Summary.HasTokenTransfer || !c.Summary.IsFirstHookIndex(hook.ProgramID, c.Index) {
		return nil
	}
	return []core.Finding{newFinding(c, core.PatternHookWithoutTransfer, core.SeverityAlert,
		fmt.Sprintf("hook %s invoked but transaction contains no token transfer", hook.ProgramID),
		hook.ProgramID)}
}

// hookReentrancyDetector 检测两类重入模式：
//  1. 三明治：hook 调用紧邻前后均为 Token 划转类指令；
//  2. 次数超限：同一 hook 程序在单笔交易中的调用次数超过上限（次数分支只在首次出现处报一次）。
type hookReentrancyDetector struct{}

func (hookReentrancyDetector) Pattern() core.PatternID { return core.PatternHookReentrancy }

func (hookReentrancyDetector) Detect(ix *core.Instruction, op *decoder.Operation, c *Context) []core.Finding {
	if op.Kind != decoder.OpHookInvocation {
		return nil
	}
	hook := op.Hook

	var findings []core.Finding

	w := c.Window
	if w.PrevOp != nil && w.NextOp != nil &&
		w.PrevOp.Kind == decoder.OpTokenTransfer && w.NextOp.Kind == decoder.OpTokenTransfer {
		findings = append(findings, newFinding(c, core.PatternHookReentrancy, core.SeverityCritical,
			fmt.Sprintf("hook %s is sandwiched between token transfers", hook.ProgramID), hook.ProgramID))
	}

	if calls := c.Summary.ProgramCalls[hook.ProgramID]; calls > c.Opts.MaxHookInvocations &&
		c.Summary.IsFirstHookIndex(hook.ProgramID, c.Index) {
		findings = append(findings, newFinding(c, core.PatternHookReentrancy, core.SeverityCritical,
			fmt.Sprintf("hook %s invoked %d times in one transaction (max %d)",
				hook.ProgramID, calls, c.Opts.MaxHookInvocations), hook.ProgramID))
	}
	return findings
}

// excessiveHookAccountsDetector 检测单次 hook 调用触达账户总数超过 maxHookAccounts。
// 不区分白名单：即便是可信程序，异常的账户规模也值得提示。
type excessiveHookAccountsDetector struct{}

func (excessiveHookAccountsDetector) Pattern() core.PatternID {
	return core.PatternExcessiveHookAccounts
}

func (excessiveHookAccountsDetector) Detect(ix *core.Instruction, op *decoder.Operation, c *Context) []core.Finding {
	if op.Kind != decoder.OpHookInvocation {
		return nil
	}
	hook := op.Hook
	if hook.AccountCount <= c.Opts.MaxHookAccounts {
		return nil
	}
	return []core.Finding{newFinding(c, core.PatternExcessiveHookAccounts, core.SeverityWarning,
		fmt.Sprintf("hook %s references %d accounts (max %d)",
			hook.ProgramID, hook.AccountCount, c.Opts.MaxHookAccounts), hook.ProgramID)}
}
