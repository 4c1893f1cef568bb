package cache

import (
	"sync"
	"time"

	"tx-guard-sol/internal/types"
)

// ComplianceStatus 取值见风险服务契约。
const (
	ComplianceCompliant    = "compliant"
	ComplianceNonCompliant = "non_compliant"
	ComplianceUnknown      = "unknown"
)

// RiskMetrics 表示外部风险服务对某资产的评估结果。
type RiskMetrics struct {
	Asset            types.Pubkey `json:"asset"`
	RiskScore        float64      `json:"risk_score"` // 0~1，越高越危险
	ComplianceStatus string       `json:"compliance_status"`
	FetchedAt        time.Time    `json:"fetched_at"`
}

type riskEntry struct {
	metrics   RiskMetrics
	expiresAt time.Time
}

// RiskCache 是按资产地址缓存风险评估结果的内存缓存，带统一 TTL。
// 读多写少，单把读写锁足够。
type RiskCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[types.Pubkey]riskEntry
}

func NewRiskCache(ttl time.Duration) *RiskCache {
	return &RiskCache{
		ttl:   ttl,
		items: make(map[types.Pubkey]riskEntry),
	}
}

// Get 返回未过期的缓存项。过期项在下一次 Put 或 Purge 时清理。
func (c *RiskCache) Get(asset types.Pubkey) (RiskMetrics, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.items[asset]
	if !ok || time.Now().After(entry.expiresAt) {
		return RiskMetrics{}, false
	}
	return entry.metrics, true
}

// Put 写入一条评估结果，过期时间从写入时刻起算。
func (c *RiskCache) Put(m RiskMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[m.Asset] = riskEntry{
		metrics:   m,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Purge 清理全部过期项，返回清理数量。
func (c *RiskCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for asset, entry := range c.items {
		if now.After(entry.expiresAt) {
			delete(c.items, asset)
			removed++
		}
	}
	return removed
}

// Len 返回当前缓存项数量（含尚未清理的过期项）。
func (c *RiskCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
