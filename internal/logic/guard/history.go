package guard

import (
	"sync"

	"tx-guard-sol/internal/logic/core"
)

// WarningHistory 是引擎实例独占的告警历史：跨多次校验累积发现项，
// 只追加，仅在调用方显式 Clear 时清空。单把互斥锁足以支撑预期并发
// （每笔交易一次校验，而非每条指令一次）。
type WarningHistory struct {
	mu    sync.Mutex
	max   int // 0 表示不限制
	items []core.Finding
}

func NewWarningHistory(max int) *WarningHistory {
	return &WarningHistory{max: max}
}

// Append 追加一批发现项；超出容量时丢弃最旧的记录。
func (h *WarningHistory) Append(findings ...core.Finding) {
	if len(findings) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items = append(h.items, findings...)
	if h.max > 0 && len(h.items) > h.max {
		overflow := len(h.items) - h.max
		h.items = append(h.items[:0], h.items[overflow:]...)
	}
}

// Snapshot 返回历史记录的副本，调用方可自由持有。
func (h *WarningHistory) Snapshot() []core.Finding {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]core.Finding, len(h.items))
	copy(out, h.items)
	return out
}

// Clear 清空全部历史记录。
func (h *WarningHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = nil
}

// Len 返回当前记录数。
func (h *WarningHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}
