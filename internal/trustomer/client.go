package trustomer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// 告警制式取值
const (
	AlertsSystemCounts      = "counts"
	AlertsSystemPercentages = "percentages"
)

// 客户未配置时的缺省值
const (
	defaultAlertsSystem       = AlertsSystemCounts
	defaultSnoozeDurationDays = 2
)

// GDMConfig 客户侧妊娠糖尿病告警配置
type GDMConfig struct {
	AlertsSystem       string `json:"alerts_system"`
	SnoozeDurationDays int    `json:"alerts_snooze_duration_days"`
}

type customerResponse struct {
	GDMConfig *GDMConfig `json:"gdm_config"`
}

// Client trustomer 配置服务客户端
// 配置变化不频繁，按 TTL 缓存在进程内，过期后才重新拉取。
type Client struct {
	httpClient   *resty.Client
	customerCode string
	logger       *zap.Logger

	cacheTTL  time.Duration
	mu        sync.RWMutex
	cached    *GDMConfig
	fetchedAt time.Time
	now       func() time.Time
}

// NewClient 创建 trustomer 客户端
func NewClient(baseURL, customerCode, apiKey string, cacheTTL time.Duration, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("X-Trustomer-API-Key", apiKey)

	return &Client{
		httpClient:   httpClient,
		customerCode: customerCode,
		logger:       logger,
		cacheTTL:     cacheTTL,
		now:          time.Now,
	}
}

// GetConfig 获取 GDM 告警配置（带 TTL 缓存）
func (c *Client) GetConfig(ctx context.Context) (*GDMConfig, error) {
	c.mu.RLock()
	if c.cached != nil && c.now().Sub(c.fetchedAt) < c.cacheTTL {
		cfg := *c.cached
		c.mu.RUnlock()
		return &cfg, nil
	}
	c.mu.RUnlock()

	return c.refresh(ctx)
}

// AlertsSystem 当前客户的告警制式（counts 或 percentages）
func (c *Client) AlertsSystem(ctx context.Context) (string, error) {
	cfg, err := c.GetConfig(ctx)
	if err != nil {
		return "", err
	}
	return cfg.AlertsSystem, nil
}

// SnoozeDurationDays 确认告警后的抑制天数
func (c *Client) SnoozeDurationDays(ctx context.Context) (int, error) {
	cfg, err := c.GetConfig(ctx)
	if err != nil {
		return 0, err
	}
	return cfg.SnoozeDurationDays, nil
}

func (c *Client) refresh(ctx context.Context) (*GDMConfig, error) {
	var response customerResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&response).
		Get(fmt.Sprintf("/dhos/v1/customers/%s", c.customerCode))

	if err != nil {
		c.logger.Error("Trustomer API call failed",
			zap.String("customer_code", c.customerCode),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to call trustomer API: %w", err)
	}
	if resp.IsError() {
		c.logger.Error("Trustomer API returned error",
			zap.String("customer_code", c.customerCode),
			zap.Int("status_code", resp.StatusCode()),
		)
		return nil, fmt.Errorf("trustomer API error: status %d", resp.StatusCode())
	}

	cfg := response.GDMConfig
	if cfg == nil {
		cfg = &GDMConfig{}
	}
	if cfg.AlertsSystem == "" {
		cfg.AlertsSystem = defaultAlertsSystem
	}
	if cfg.SnoozeDurationDays <= 0 {
		cfg.SnoozeDurationDays = defaultSnoozeDurationDays
	}

	c.mu.Lock()
	c.cached = cfg
	c.fetchedAt = c.now()
	c.mu.Unlock()

	c.logger.Info("Refreshed trustomer config",
		zap.String("customer_code", c.customerCode),
		zap.String("alerts_system", cfg.AlertsSystem),
		zap.Int("snooze_duration_days", cfg.SnoozeDurationDays),
	)

	copied := *cfg
	return &copied, nil
}
