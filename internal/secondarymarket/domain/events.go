package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kafka 事件主题
const (
	ListingCreatedEventType   = "market.listing_created"
	ListingCancelledEventType = "market.listing_cancelled"
	TradeInitiatedEventType   = "market.trade_initiated"
	TradeSettledEventType     = "market.trade_settled"
	TradeFailedEventType      = "market.trade_failed"
)

// DomainEvent 领域事件接口
type DomainEvent interface {
	EventName() string
	OccurredAt() time.Time
}

// ListingCreatedEvent 挂单创建事件
type ListingCreatedEvent struct {
	ListingID    string          `json:"listing_id"`
	DealID       string          `json:"deal_id"`
	SellerID     string          `json:"seller_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	Timestamp    time.Time       `json:"timestamp"`
}

func (e *ListingCreatedEvent) EventName() string     { return ListingCreatedEventType }
func (e *ListingCreatedEvent) OccurredAt() time.Time { return e.Timestamp }

// ListingCancelledEvent 挂单撤销事件
type ListingCancelledEvent struct {
	ListingID string    `json:"listing_id"`
	DealID    string    `json:"deal_id"`
	SellerID  string    `json:"seller_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *ListingCancelledEvent) EventName() string     { return ListingCancelledEventType }
func (e *ListingCancelledEvent) OccurredAt() time.Time { return e.Timestamp }

// TradeInitiatedEvent 成交发起事件
type TradeInitiatedEvent struct {
	TradeID     string          `json:"trade_id"`
	ListingID   string          `json:"listing_id"`
	DealID      string          `json:"deal_id"`
	BuyerID     string          `json:"buyer_id"`
	SellerID    string          `json:"seller_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Timestamp   time.Time       `json:"timestamp"`
}

func (e *TradeInitiatedEvent) EventName() string     { return TradeInitiatedEventType }
func (e *TradeInitiatedEvent) OccurredAt() time.Time { return e.Timestamp }

// TradeSettledEvent 成交结算完成事件，持仓投影依赖此事件刷新缓存。
type TradeSettledEvent struct {
	TradeID     string          `json:"trade_id"`
	ListingID   string          `json:"listing_id"`
	DealID      string          `json:"deal_id"`
	BuyerID     string          `json:"buyer_id"`
	SellerID    string          `json:"seller_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Fee         decimal.Decimal `json:"fee"`
	Timestamp   time.Time       `json:"timestamp"`
}

func (e *TradeSettledEvent) EventName() string     { return TradeSettledEventType }
func (e *TradeSettledEvent) OccurredAt() time.Time { return e.Timestamp }

// TradeFailedEvent 成交失败事件
type TradeFailedEvent struct {
	TradeID   string    `json:"trade_id"`
	ListingID string    `json:"listing_id"`
	DealID    string    `json:"deal_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *TradeFailedEvent) EventName() string     { return TradeFailedEventType }
func (e *TradeFailedEvent) OccurredAt() time.Time { return e.Timestamp }
