package detector

import (
	"fmt"

	"tx-guard-sol/internal/logic/core"
	"tx-guard-sol/internal/logic/decoder"
)

// dangerousCloseDetector 检测未经余额确认的账户关闭。
// 只有调用方提供的余额快照明确显示账户余额为零时才视为安全；
// 快照缺失按"余额未知"处理，同样触发（fail-safe）。
type dangerousCloseDetector struct{}

func (dangerousCloseDetector) Pattern() core.PatternID { return core.PatternDangerousClose }

func (dangerousCloseDetector) Detect(ix *core.Instruction, op *decoder.Operation, c *Context) []core.Finding {
	if op.Kind != decoder.OpAccountClose {
		return nil
	}
	cl := op.Close

	if c.Tx != nil {
		if bal, ok := c.Tx.BalanceOf(cl.Account); ok && bal.Balance == 0 {
			return nil
		}
	}

	return []core.Finding{newFinding(c, core.PatternDangerousClose, core.SeverityAlert,
		fmt.Sprintf("account %s is being closed without a verified zero balance, rent goes to %s",
			cl.Account, cl.Destination), cl.Account)}
}
