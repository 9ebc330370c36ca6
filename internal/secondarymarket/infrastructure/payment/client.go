// Package payment 支付通道客户端
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/investmarket/internal/secondarymarket/domain"
)

// Client 外部支付通道的 HTTP 客户端，负责买方资金的冻结、划扣与解冻。
type Client struct {
	http *resty.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10 * time.Second).
			SetRetryCount(2),
	}
}

var _ domain.PaymentAuthority = (*Client)(nil)

type holdRequest struct {
	BuyerID   string `json:"buyer_id"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
}

type holdResponse struct {
	HoldRef string `json:"hold_ref"`
}

// HoldFunds 冻结买方资金，返回支付通道凭证号。
func (c *Client) HoldFunds(ctx context.Context, buyerID string, amount decimal.Decimal, currency, reference string) (string, error) {
	var result holdResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(holdRequest{
			BuyerID:   buyerID,
			Amount:    amount.String(),
			Currency:  currency,
			Reference: reference,
		}).
		SetResult(&result).
		Post("/api/v1/holds")
	if err != nil {
		return "", fmt.Errorf("payment authority request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("payment authority rejected hold: status %d", resp.StatusCode())
	}
	if result.HoldRef == "" {
		return "", fmt.Errorf("payment authority returned empty hold ref")
	}
	return result.HoldRef, nil
}

// CaptureOrRelease 划扣或解冻已冻结资金。
func (c *Client) CaptureOrRelease(ctx context.Context, externalRef string, capture bool) error {
	action := "release"
	if capture {
		action = "capture"
	}
	resp, err := c.http.R().
		SetContext(ctx).
		Post(fmt.Sprintf("/api/v1/holds/%s/%s", externalRef, action))
	if err != nil {
		return fmt.Errorf("payment authority request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("payment authority rejected %s: status %d", action, resp.StatusCode())
	}
	return nil
}
