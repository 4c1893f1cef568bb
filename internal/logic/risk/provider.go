package risk

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/rest/httpc"

	"tx-guard-sol/internal/cache"
	"tx-guard-sol/internal/types"
)

// Provider 是外部风险评分服务的契约：按资产地址返回风险分与合规状态。
// 实现必须尊重 ctx 超时/取消，失败返回 error 交由 Overlay 按回退策略处理。
type Provider interface {
	GetRiskMetrics(ctx context.Context, asset types.Pubkey) (cache.RiskMetrics, error)
}

// riskResponse 为风险服务返回的 JSON 结构。
type riskResponse struct {
	RiskScore        float64 `json:"risk_score"`
	ComplianceStatus string  `json:"compliance_status"`
}

// HTTPProvider 通过 HTTP JSON 访问风险服务：GET {endpoint}/v1/risk/{asset}。
type HTTPProvider struct {
	endpoint string
	timeout  time.Duration
}

func NewHTTPProvider(endpoint string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPProvider{
		endpoint: strings.TrimRight(endpoint, "/"),
		timeout:  timeout,
	}
}

func (p *HTTPProvider) GetRiskMetrics(ctx context.Context, asset types.Pubkey) (cache.RiskMetrics, error) {
	url := fmt.Sprintf("%s/v1/risk/%s", p.endpoint, asset)

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := httpc.Do(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return cache.RiskMetrics{}, fmt.Errorf("risk service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return cache.RiskMetrics{}, fmt.Errorf("risk service returned status %d for asset %s", resp.StatusCode, asset)
	}

	var body riskResponse
	if err := httpc.Parse(resp, &body); err != nil {
		return cache.RiskMetrics{}, fmt.Errorf("risk service response parse failed: %w", err)
	}

	status := body.ComplianceStatus
	switch status {
	case cache.ComplianceCompliant, cache.ComplianceNonCompliant:
	default:
		status = cache.ComplianceUnknown
	}

	return cache.RiskMetrics{
		Asset:            asset,
		RiskScore:        body.RiskScore,
		ComplianceStatus: status,
		FetchedAt:        time.Now(),
	}, nil
}
