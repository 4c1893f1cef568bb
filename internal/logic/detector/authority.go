package detector

import (
	"fmt"

	"tx-guard-sol/internal/logic/core"
	"tx-guard-sol/internal/logic/decoder"
)

// mintRevokeDetector 检测 mint 权限被显式移除的操作。
// 权限一旦移除无法恢复，该资产将永久失去增发能力，属于不可逆风险。
type mintRevokeDetector struct{}

func (mintRevokeDetector) Pattern() core.PatternID { return core.PatternAuthorityMintRevoke }

func (mintRevokeDetector) Detect(ix *core.Instruction, op *decoder.Operation, c *Context) []core.Finding {
	if op.Kind != decoder.OpAuthoritySet {
		return nil
	}
	auth := op.Authority
	if auth.Kind != decoder.AuthorityMint || auth.NewAuthority != nil {
		return nil
	}
	f := newFinding(c, core.PatternAuthorityMintRevoke, core.SeverityCritical,
		fmt.Sprintf("mint authority of %s is being permanently revoked", auth.Target), auth.Target)
	f.Irreversible = true
	return []core.Finding{f}
}

// freezeRevokeDetector 检测 freeze 权限被显式移除的操作。
type freezeRevokeDetector struct{}

func (freezeRevokeDetector) Pattern() core.PatternID { return core.PatternAuthorityFreezeRevoke }

func (freezeRevokeDetector) Detect(ix *core.Instruction, op *decoder.Operation, c *Context) []core.Finding {
	if op.Kind != decoder.OpAuthoritySet {
		return nil
	}
	auth := op.Authority
	if auth.Kind != decoder.AuthorityFreeze || auth.NewAuthority != nil {
		return nil
	}
	f := newFinding(c, core.PatternAuthorityFreezeRevoke, core.SeverityCritical,
		fmt.Sprintf("freeze authority of %s is being permanently revoked", auth.Target), auth.Target)
	f.Irreversible = true
	return []core.Finding{f}
}

// signerMismatchDetector 检测权限移交给声明签名者集合之外的地址。
// 交易未声明签名者集合（nil）时无从比对，规则不触发；
// 声明了空集合则视为任何新权限地址都不在集合内。
type signerMismatchDetector struct{}

func (signerMismatchDetector) Pattern() core.PatternID { return core.PatternSignerMismatch }

func (signerMismatchDetector) Detect(ix *core.Instruction, op *decoder.Operation, c *Context) []core.Finding {
	if op.Kind != decoder.OpAuthoritySet {
		return nil
	}
	auth := op.Authority
	if auth.NewAuthority == nil || c.Tx == nil || c.Tx.Signers == nil {
		return nil
	}
	if c.Tx.HasSigner(*auth.NewAuthority) {
		return nil
	}
	return []core.Finding{newFinding(c, core.PatternSignerMismatch, core.SeverityCritical,
		fmt.Sprintf("new %s authority %s is not in the declared signer set", auth.Kind, auth.NewAuthority),
		*auth.NewAuthority)}
}
