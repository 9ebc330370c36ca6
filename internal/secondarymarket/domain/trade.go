package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TradeStatus 成交状态，状态机单向：PENDING -> COMPLETED 或 PENDING -> FAILED。
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "PENDING"
	TradeStatusCompleted TradeStatus = "COMPLETED"
	TradeStatusFailed    TradeStatus = "FAILED"
)

var (
	ErrSelfTradeForbidden      = errors.New("buyer and seller must differ")
	ErrTradeNotPending         = errors.New("trade is not pending")
	ErrTradeNotFailed          = errors.New("trade is not failed")
	ErrTradeNotFound           = errors.New("trade not found")
	ErrSellerPositionMismatch  = errors.New("seller position no longer covers trade quantity")
	ErrQuantityAlreadyRestored = errors.New("trade quantity already restored")
)

// Trade 成交：买方对某个挂单的一次购买，含价款与手续费。
type Trade struct {
	gorm.Model
	TradeID          string          `gorm:"column:trade_id;type:varchar(64);uniqueIndex;not null" json:"trade_id"`
	ListingID        string          `gorm:"column:listing_id;type:varchar(64);index;not null" json:"listing_id"`
	DealID           string          `gorm:"column:deal_id;type:varchar(64);index;not null" json:"deal_id"`
	BuyerID          string          `gorm:"column:buyer_id;type:varchar(64);index;not null" json:"buyer_id"`
	SellerID         string          `gorm:"column:seller_id;type:varchar(64);index;not null" json:"seller_id"`
	Quantity         decimal.Decimal `gorm:"column:quantity;type:decimal(32,18);not null" json:"quantity"`
	PricePerUnit     decimal.Decimal `gorm:"column:price_per_unit;type:decimal(32,18);not null" json:"price_per_unit"`
	TotalAmount      decimal.Decimal `gorm:"column:total_amount;type:decimal(32,18);not null" json:"total_amount"`
	Fee              decimal.Decimal `gorm:"column:fee;type:decimal(32,18);not null" json:"fee"`
	Status           TradeStatus     `gorm:"column:status;type:varchar(10);not null;default:'PENDING'" json:"status"`
	PaymentRef       string          `gorm:"column:payment_ref;type:varchar(128)" json:"payment_ref,omitempty"`
	FailReason       string          `gorm:"column:fail_reason;type:varchar(255)" json:"fail_reason,omitempty"`
	QuantityRestored bool            `gorm:"column:quantity_restored;not null;default:false" json:"quantity_restored"`
	ExecutedAt       *time.Time      `gorm:"column:executed_at" json:"executed_at,omitempty"`

	domainEvents []DomainEvent `gorm:"-" json:"-"`
}

// TableName 表名
func (Trade) TableName() string {
	return "market_trades"
}

// NewTrade 创建待结算成交。价款 = 数量 × 单价，手续费 = 价款 × 费率，由买方承担。
func NewTrade(tradeID string, listing *Listing, buyerID string, quantity, feeRate decimal.Decimal) (*Trade, error) {
	if buyerID == listing.SellerID {
		return nil, ErrSelfTradeForbidden
	}

	total := quantity.Mul(listing.PricePerUnit)
	trade := &Trade{
		TradeID:      tradeID,
		ListingID:    listing.ListingID,
		DealID:       listing.DealID,
		BuyerID:      buyerID,
		SellerID:     listing.SellerID,
		Quantity:     quantity,
		PricePerUnit: listing.PricePerUnit,
		TotalAmount:  total,
		Fee:          total.Mul(feeRate),
		Status:       TradeStatusPending,
	}
	trade.addEvent(&TradeInitiatedEvent{
		TradeID:     tradeID,
		ListingID:   listing.ListingID,
		DealID:      listing.DealID,
		BuyerID:     buyerID,
		SellerID:    listing.SellerID,
		Quantity:    quantity,
		TotalAmount: total,
		Timestamp:   time.Now(),
	})
	return trade, nil
}

// IsPending 是否待结算
func (t *Trade) IsPending() bool {
	return t.Status == TradeStatusPending
}

// AttachPaymentRef 记录支付通道的冻结凭证号。
func (t *Trade) AttachPaymentRef(ref string) error {
	if !t.IsPending() {
		return ErrTradeNotPending
	}
	t.PaymentRef = ref
	return nil
}

// Complete 结算完成，份额已转移、价款已划扣。
func (t *Trade) Complete() error {
	if !t.IsPending() {
		return ErrTradeNotPending
	}
	now := time.Now()
	t.Status = TradeStatusCompleted
	t.ExecutedAt = &now
	t.addEvent(&TradeSettledEvent{
		TradeID:     t.TradeID,
		ListingID:   t.ListingID,
		DealID:      t.DealID,
		BuyerID:     t.BuyerID,
		SellerID:    t.SellerID,
		Quantity:    t.Quantity,
		TotalAmount: t.TotalAmount,
		Fee:         t.Fee,
		Timestamp:   now,
	})
	return nil
}

// Fail 结算失败并记录原因。失败不自动退还挂单数量，补偿需显式触发。
func (t *Trade) Fail(reason string) error {
	if !t.IsPending() {
		return ErrTradeNotPending
	}
	t.Status = TradeStatusFailed
	t.FailReason = reason
	t.addEvent(&TradeFailedEvent{
		TradeID:   t.TradeID,
		ListingID: t.ListingID,
		DealID:    t.DealID,
		Reason:    reason,
		Timestamp: time.Now(),
	})
	return nil
}

// MarkRestored 标记此失败成交的挂单数量已退还，保证补偿只执行一次。
func (t *Trade) MarkRestored() error {
	if t.Status != TradeStatusFailed {
		return ErrTradeNotFailed
	}
	if t.QuantityRestored {
		return ErrQuantityAlreadyRestored
	}
	t.QuantityRestored = true
	return nil
}

func (t *Trade) addEvent(event DomainEvent) {
	t.domainEvents = append(t.domainEvents, event)
}

// GetDomainEvents 获取待发布的领域事件
func (t *Trade) GetDomainEvents() []DomainEvent {
	return t.domainEvents
}

// ClearDomainEvents 清空领域事件
func (t *Trade) ClearDomainEvents() {
	t.domainEvents = nil
}
