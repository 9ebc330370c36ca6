// Package authz 授权协作方 HTTP 客户端。
// 审批权限由外部授权服务裁决，本服务只转述问题并信任答案。
package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/wyfcoding/investmarket/internal/escrow/domain"
)

// Client 基于 resty 的授权服务客户端
type Client struct {
	http *resty.Client
}

// NewClient 创建授权客户端
func NewClient(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(5 * time.Second).
			SetRetryCount(2),
	}
}

var _ domain.Authorizer = (*Client)(nil)

type decisionResponse struct {
	Allowed bool `json:"allowed"`
}

// CanApprove 询问 principal 是否可以审批该交易托管账户的出账。
func (c *Client) CanApprove(ctx context.Context, principalID, dealID string) (bool, error) {
	var out decisionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"principal_id": principalID,
			"deal_id":      dealID,
			"action":       "escrow.approve",
		}).
		SetResult(&out).
		Get("/api/v1/decisions")
	if err != nil {
		return false, fmt.Errorf("authorization request failed: %w", err)
	}
	if resp.IsError() {
		return false, fmt.Errorf("authorization service returned %s", resp.Status())
	}
	return out.Allowed, nil
}

// AllowAll 开发环境使用的放行实现。
type AllowAll struct{}

var _ domain.Authorizer = (*AllowAll)(nil)

func (AllowAll) CanApprove(_ context.Context, _, _ string) (bool, error) {
	return true, nil
}
