package core

import "tx-guard-sol/internal/types"

// TxStatus 表示交易的生命周期状态。校验器只读不改，
// 是否置为 Failed 由调用方根据校验结果自行决定。
type TxStatus string

const (
	TxPending  TxStatus = "pending"
	TxExecuted TxStatus = "executed"
	TxFailed   TxStatus = "failed"
)

// AccountMeta 表示指令引用的一个账户及其访问标志。
type AccountMeta struct {
	Pubkey     types.Pubkey
	IsSigner   bool
	IsWritable bool
}

// Instruction 表示交易中的一条原始指令，构造后不可变。
// Data 为不透明的指令字节序列，其布局由 ProgramID 决定，不保证可解析。
type Instruction struct {
	ProgramID types.Pubkey  // 所调用的程序地址（例如 TokenProgram）
	Accounts  []AccountMeta // 指令涉及的账户列表，保持原始顺序
	Data      []byte        // 指令原始数据，由 decoder 判断指令类型与解析参数
}

// WritableCount 返回指令中可写账户的数量。
func (ix *Instruction) WritableCount() int {
	n := 0
	for _, acc := range ix.Accounts {
		if acc.IsWritable {
			n++
		}
	}
	return n
}

// TokenBalance 表示调用方提供的某个 Token 账户当前余额快照。
// 校验关闭账户等规则时作为上下文使用；缺失视为"余额未知"。
type TokenBalance struct {
	TokenAccount types.Pubkey
	Token        types.Pubkey
	Owner        types.Pubkey
	Balance      uint64 // 当前余额（最小单位）
	Decimals     uint8
}

// Transaction 表示一笔待校验的未签名交易。
// 校验器只读该结构，不做任何修改。
type Transaction struct {
	ID     string   // 调用方分配的交易标识，用于日志与审计关联
	Status TxStatus // 生命周期状态，校验器不修改

	// Instructions 为交易中的全部指令，保持声明顺序。
	Instructions []*Instruction

	// Signers 为交易声明的签名者集合（可选）。nil 表示调用方未声明。
	Signers []types.Pubkey

	// AssetRefs 为交易引用的资产（mint）列表（可选），供风险评分使用。
	AssetRefs []types.Pubkey

	// Balances 为调用方提供的 TokenAccount → 余额快照（可选）。
	Balances map[types.Pubkey]*TokenBalance
}

// HasSigner 判断某地址是否在声明的签名者集合中。
func (tx *Transaction) HasSigner(p types.Pubkey) bool {
	for _, s := range tx.Signers {
		if s == p {
			return true
		}
	}
	return false
}

// BalanceOf 返回调用方提供的某账户余额快照（若存在）。
func (tx *Transaction) BalanceOf(account types.Pubkey) (*TokenBalance, bool) {
	if tx.Balances == nil {
		return nil, false
	}
	b, ok := tx.Balances[account]
	return b, ok
}
