package core

import (
	"time"

	"tx-guard-sol/internal/types"
)

// PatternID 是安全模式的封闭枚举。blockedBy 与严重级别过滤
// 只接受本文件列出的取值，新增模式必须同步扩展 AllPatterns。
type PatternID string

const (
	PatternAuthorityMintRevoke    PatternID = "authority-mint-revoke"
	PatternAuthorityFreezeRevoke  PatternID = "authority-freeze-revoke"
	PatternSignerMismatch         PatternID = "signer-mismatch"
	PatternDangerousClose         PatternID = "dangerous-close"
	PatternUnknownHookExcessWrite PatternID = "unknown-hook-excess-writable"
	PatternHookWithoutTransfer    PatternID = "hook-without-transfer"
	PatternHookReentrancy         PatternID = "hook-reentrancy"
	PatternExcessiveHookAccounts  PatternID = "excessive-hook-accounts"
	PatternRiskScoreExceeded      PatternID = "risk-score-exceeded"
	PatternComplianceViolation    PatternID = "compliance-violation"
	PatternRiskCheckFailed        PatternID = "risk-check-failed"
	PatternCustomRuleViolation    PatternID = "custom-rule-violation"
	PatternDetectorFailure        PatternID = "detector-failure"
	PatternEmergencyStop          PatternID = "emergency-stop"
)

// AllPatterns 为完整的模式目录，按声明顺序排列。
var AllPatterns = []PatternID{
	PatternAuthorityMintRevoke,
	PatternAuthorityFreezeRevoke,
	PatternSignerMismatch,
	PatternDangerousClose,
	PatternUnknownHookExcessWrite,
	PatternHookWithoutTransfer,
	PatternHookReentrancy,
	PatternExcessiveHookAccounts,
	PatternRiskScoreExceeded,
	PatternComplianceViolation,
	PatternRiskCheckFailed,
	PatternCustomRuleViolation,
	PatternDetectorFailure,
	PatternEmergencyStop,
}

// Severity 表示发现项的严重级别。
// 排序关系：warning < alert < critical，用于风险容忍度过滤。
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityAlert    Severity = "alert"
	SeverityCritical Severity = "critical"
)

// Rank 返回严重级别的序号，未知级别返回 0。
func (s Severity) Rank() int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityAlert:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// Valid 判断是否为已知严重级别。
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// Finding 表示一次检测到的安全风险，为不可变值对象。
type Finding struct {
	Pattern   PatternID    `json:"pattern"`
	Severity  Severity     `json:"severity"`
	Message   string       `json:"message"`
	Account   types.Pubkey `json:"account,omitempty"` // 受影响账户，零值表示无
	TxID      string       `json:"tx_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`

	// Irreversible 标记该风险一旦上链即不可逆（如权限吊销）。
	// permissive 容忍度下仅此类发现项会拦截交易。
	Irreversible bool `json:"irreversible,omitempty"`
}

// HasAccount 判断发现项是否关联了具体账户。
func (f *Finding) HasAccount() bool {
	return !f.Account.IsZero()
}

// ValidationResult 表示一次校验的最终裁决。每次调用新建，产生后不再修改。
type ValidationResult struct {
	Valid bool `json:"valid"`

	// Findings 按检测顺序排列（插入序即检测序）。
	Findings []Finding `json:"findings"`

	// BlockedBy 为导致拦截的模式列表；仅 block 模式且存在达标发现项时非空。
	BlockedBy []PatternID `json:"blocked_by,omitempty"`

	TxID string `json:"tx_id,omitempty"`
}
