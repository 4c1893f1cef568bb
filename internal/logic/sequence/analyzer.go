package sequence

import (
	"tx-guard-sol/internal/logic/core"
	"tx-guard-sol/internal/logic/decoder"
	"tx-guard-sol/internal/types"
)

// Summary 为对全部指令单次遍历后得到的序列统计，
// 供依赖跨指令上下文的检测规则（重入、调用次数超限等）使用。
type Summary struct {
	// ProgramCalls 为每个程序在本交易中的调用次数。
	ProgramCalls map[types.Pubkey]int

	// HookAccounts 为每个 hook 程序在本交易中累计触达的账户总数。
	HookAccounts map[types.Pubkey]int

	// HookFirstIndex 为每个 hook 程序首次出现的指令下标，
	// 按程序聚合的规则在首次出现处触发一次，避免重复发现项。
	HookFirstIndex map[types.Pubkey]int

	// HasTokenTransfer 表示交易中是否存在 Token 划转类指令。
	HasTokenTransfer bool

	ops []decoder.Operation
	tx  *core.Transaction
}

// Window 表示某条指令的局部上下文：前后各一条指令及其解码结果。
// 位于边界时对应字段为 nil。
type Window struct {
	Prev   *core.Instruction
	Next   *core.Instruction
	PrevOp *decoder.Operation
	NextOp *decoder.Operation
}

// Analyze 对指令序列做一次 O(n) 扫描，计算各项聚合统计。
// ops 必须与 tx.Instructions 一一对应（由调用方统一解码后传入）。
// 空交易或单指令交易返回可用的空统计，不会出错。
func Analyze(tx *core.Transaction, ops []decoder.Operation) *Summary {
	s := &Summary{
		ProgramCalls:   make(map[types.Pubkey]int),
		HookAccounts:   make(map[types.Pubkey]int),
		HookFirstIndex: make(map[types.Pubkey]int),
		ops:            ops,
		tx:             tx,
	}
	if tx == nil {
		return s
	}

	for i, ix := range tx.Instructions {
		if ix == nil {
			continue
		}
		s.ProgramCalls[ix.ProgramID]++

		if i >= len(ops) {
			continue
		}
		switch ops[i].Kind {
		case decoder.OpTokenTransfer:
			s.HasTokenTransfer = true
		case decoder.OpHookInvocation:
			hook := ops[i].Hook
			s.HookAccounts[hook.ProgramID] += hook.AccountCount
			if _, seen := s.HookFirstIndex[hook.ProgramID]; !seen {
				s.HookFirstIndex[hook.ProgramID] = i
			}
		}
	}
	return s
}

// At 返回第 i 条指令的局部窗口（前后各一条）。下标越界返回空窗口。
func (s *Summary) At(i int) Window {
	var w Window
	if s.tx == nil || i < 0 || i >= len(s.tx.Instructions) {
		return w
	}
	if i > 0 {
		w.Prev = s.tx.Instructions[i-1]
		if i-1 < len(s.ops) {
			w.PrevOp = &s.ops[i-1]
		}
	}
	if i+1 < len(s.tx.Instructions) {
		w.Next = s.tx.Instructions[i+1]
		if i+1 < len(s.ops) {
			w.NextOp = &s.ops[i+1]
		}
	}
	return w
}

// IsFirstHookIndex 判断第 i 条指令是否为该 hook 程序在交易中的首次出现。
func (s *Summary) IsFirstHookIndex(program types.Pubkey, i int) bool {
	first, ok := s.HookFirstIndex[program]
	return ok && first == i
}
