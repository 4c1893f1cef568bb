package decoder

import (
	"encoding/binary"

	sdktoken "github.com/blocto/solana-go-sdk/program/token"
	"github.com/near/borsh-go"

	"tx-guard-sol/internal/consts"
	"tx-guard-sol/internal/logic/core"
	"tx-guard-sol/internal/types"
)

// OpKind 表示解码后的操作类别。
type OpKind uint8

const (
	OpUnknown OpKind = iota // 未识别的程序或指令布局
	OpAuthoritySet
	OpAccountClose
	OpTokenTransfer
	OpMintTo
	OpBurn
	OpHookInvocation
)

func (k OpKind) String() string {
	switch k {
	case OpAuthoritySet:
		return "authority_set"
	case OpAccountClose:
		return "account_close"
	case OpTokenTransfer:
		return "token_transfer"
	case OpMintTo:
		return "mint_to"
	case OpBurn:
		return "burn"
	case OpHookInvocation:
		return "hook_invocation"
	default:
		return "unknown"
	}
}

// AuthorityKind 表示 SetAuthority 指令作用的权限槽位。
type AuthorityKind uint8

const (
	AuthorityMint         AuthorityKind = iota // mint 权限（增发）
	AuthorityFreeze                            // freeze 权限（冻结）
	AuthorityAccountOwner                      // Token 账户所有权
	AuthorityCloseAccount                      // 账户关闭权限
	AuthorityOther                             // 其余扩展槽位，统一归类
)

func (k AuthorityKind) String() string {
	switch k {
	case AuthorityMint:
		return "mint"
	case AuthorityFreeze:
		return "freeze"
	case AuthorityAccountOwner:
		return "account_owner"
	case AuthorityCloseAccount:
		return "close_account"
	default:
		return "other"
	}
}

// AuthoritySetOp 表示一次权限变更。NewAuthority 为 nil 表示权限被显式移除（不可恢复）。
type AuthoritySetOp struct {
	Target           types.Pubkey  // 被变更的 mint 或 Token 账户
	CurrentAuthority types.Pubkey  // 当前权限持有者
	Kind             AuthorityKind // 权限槽位
	NewAuthority     *types.Pubkey // 新权限地址；nil 表示移除
}

// AccountCloseOp 表示一次账户关闭，租金余额划转到 Destination。
type AccountCloseOp struct {
	Account     types.Pubkey
	Destination types.Pubkey
	Owner       types.Pubkey
}

// TokenTransferOp 表示一次 Token 划转（Transfer / TransferChecked）。
type TokenTransferOp struct {
	Source      types.Pubkey
	Destination types.Pubkey
	Authority   types.Pubkey
	Amount      uint64
	Checked     bool
	Mint        types.Pubkey // 仅 TransferChecked 提供
	Decimals    uint8        // 仅 TransferChecked 提供
}

// MintBurnOp 表示一次增发或销毁。
type MintBurnOp struct {
	Account types.Pubkey // 目标 Token 账户
	Mint    types.Pubkey
	Amount  uint64
}

// HookInvocationOp 表示一次 transfer-hook Execute 调用。
type HookInvocationOp struct {
	ProgramID     types.Pubkey
	AccountCount  int
	WritableCount int
	Amount        uint64 // Execute 携带的划转金额（borsh u64）
	HasAmount     bool
}

// Operation 是解码结果的带标签变体：Kind 指明有效分支，其余指针为 nil。
// 每次校验按需重新计算，不做持久化。
type Operation struct {
	Kind      OpKind
	Authority *AuthoritySetOp
	Close     *AccountCloseOp
	Transfer  *TokenTransferOp
	MintBurn  *MintBurnOp
	Hook      *HookInvocationOp
}

var unknownOp = Operation{Kind: OpUnknown}

// Decode 将一条指令解码为类型化操作。纯函数，相同输入恒返回相同结果。
// 未识别的程序、判别符或截断的数据一律降级为 OpUnknown，绝不报错。
func Decode(ix *core.Instruction) (op Operation) {
	// 指令数据来自外部，可能是对抗性构造；任何解析 panic 统一降级为 Unknown。
	defer func() {
		if r := recover(); r != nil {
			op = unknownOp
		}
	}()

	if ix == nil || len(ix.Data) == 0 {
		return unknownOp
	}

	if consts.IsTokenProgram(ix.ProgramID) {
		return decodeTokenInstruction(ix)
	}
	if hook, ok := decodeHookExecute(ix); ok {
		return Operation{Kind: OpHookInvocation, Hook: hook}
	}
	return unknownOp
}

// decodeTokenInstruction 按首字节判别符解析 SPL Token / Token-2022 指令。
func decodeTokenInstruction(ix *core.Instruction) Operation {
	data := ix.Data
	switch data[0] {
	case byte(sdktoken.InstructionSetAuthority):
		return decodeSetAuthority(ix)

	case byte(sdktoken.InstructionCloseAccount):
		if len(ix.Accounts) < 3 {
			return unknownOp
		}
		return Operation{Kind: OpAccountClose, Close: &AccountCloseOp{
			Account:     ix.Accounts[0].Pubkey,
			Destination: ix.Accounts[1].Pubkey,
			Owner:       ix.Accounts[2].Pubkey,
		}}

	case byte(sdktoken.InstructionTransfer):
		if len(data) < 9 || len(ix.Accounts) < 3 {
			return unknownOp
		}
		return Operation{Kind: OpTokenTransfer, Transfer: &TokenTransferOp{
			Source:      ix.Accounts[0].Pubkey,
			Destination: ix.Accounts[1].Pubkey,
			Authority:   ix.Accounts[2].Pubkey,
			Amount:      binary.LittleEndian.Uint64(data[1:9]),
		}}

	case byte(sdktoken.InstructionTransferChecked):
		if len(data) < 10 || len(ix.Accounts) < 4 {
			return unknownOp
		}
		return Operation{Kind: OpTokenTransfer, Transfer: &TokenTransferOp{
			Source:      ix.Accounts[0].Pubkey,
			Mint:        ix.Accounts[1].Pubkey,
			Destination: ix.Accounts[2].Pubkey,
			Authority:   ix.Accounts[3].Pubkey,
			Amount:      binary.LittleEndian.Uint64(data[1:9]),
			Decimals:    data[9],
			Checked:     true,
		}}

	case byte(sdktoken.InstructionMintTo):
		if len(data) < 9 || len(ix.Accounts) < 2 {
			return unknownOp
		}
		return Operation{Kind: OpMintTo, MintBurn: &MintBurnOp{
			Mint:    ix.Accounts[0].Pubkey,
			Account: ix.Accounts[1].Pubkey,
			Amount:  binary.LittleEndian.Uint64(data[1:9]),
		}}

	case byte(sdktoken.InstructionBurn):
		if len(data) < 9 || len(ix.Accounts) < 2 {
			return unknownOp
		}
		return Operation{Kind: OpBurn, MintBurn: &MintBurnOp{
			Account: ix.Accounts[0].Pubkey,
			Mint:    ix.Accounts[1].Pubkey,
			Amount:  binary.LittleEndian.Uint64(data[1:9]),
		}}

	default:
		// 非关心的 TokenProgram 指令，忽略
		return unknownOp
	}
}

// decodeSetAuthority 解析 SetAuthority 指令布局：
//
//	[0]    判别符 (6)
//	[1]    权限槽位（AuthorityType）
//	[2]    COption 标志：1 表示后随 32 字节新权限地址，0 表示移除权限
//	[3:35] 新权限地址（仅当 [2] == 1）
func decodeSetAuthority(ix *core.Instruction) Operation {
	data := ix.Data
	if len(data) < 3 || len(ix.Accounts) < 2 {
		return unknownOp
	}

	var kind AuthorityKind
	switch sdktoken.AuthorityType(data[1]) {
	case sdktoken.AuthorityTypeMintTokens:
		kind = AuthorityMint
	case sdktoken.AuthorityTypeFreezeAccount:
		kind = AuthorityFreeze
	case sdktoken.AuthorityTypeAccountOwner:
		kind = AuthorityAccountOwner
	case sdktoken.AuthorityTypeCloseAccount:
		kind = AuthorityCloseAccount
	default:
		kind = AuthorityOther
	}

	var newAuthority *types.Pubkey
	switch data[2] {
	case 0:
		// 权限显式移除
	case 1:
		if len(data) < 35 {
			return unknownOp
		}
		var p types.Pubkey
		copy(p[:], data[3:35])
		newAuthority = &p
	default:
		return unknownOp
	}

	return Operation{Kind: OpAuthoritySet, Authority: &AuthoritySetOp{
		Target:           ix.Accounts[0].Pubkey,
		CurrentAuthority: ix.Accounts[1].Pubkey,
		Kind:             kind,
		NewAuthority:     newAuthority,
	}}
}

// hookExecuteParams 为 Execute 指令判别符之后的 borsh 负载。
type hookExecuteParams struct {
	Amount uint64
}

// decodeHookExecute 识别 transfer-hook 接口的 Execute 调用。
// 判定与程序地址无关：任何实现该接口的程序，其 Execute 指令均以固定 8 字节判别符开头。
func decodeHookExecute(ix *core.Instruction) (*HookInvocationOp, bool) {
	data := ix.Data
	if len(data) < 8 {
		return nil, false
	}
	for i := 0; i < 8; i++ {
		if data[i] != consts.TransferHookExecuteDiscriminator[i] {
			return nil, false
		}
	}

	hook := &HookInvocationOp{
		ProgramID:     ix.ProgramID,
		AccountCount:  len(ix.Accounts),
		WritableCount: ix.WritableCount(),
	}

	var params hookExecuteParams
	if len(data) >= 16 {
		if err := borsh.Deserialize(&params, data[8:16]); err == nil {
			hook.Amount = params.Amount
			hook.HasAmount = true
		}
	}
	return hook, true
}
