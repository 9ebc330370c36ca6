// Package domain 二级市场服务领域层。
// 挂单的可售数量只减不增（管理补偿除外），成交结算在单个数据库事务内完成份额转移。
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ListingStatus 挂单状态
type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "ACTIVE"
	ListingStatusSold      ListingStatus = "SOLD"
	ListingStatusCancelled ListingStatus = "CANCELLED"
	ListingStatusExpired   ListingStatus = "EXPIRED"
)

var (
	ErrInvalidPrice           = errors.New("price must be positive")
	ErrInvalidQuantity        = errors.New("quantity must be positive")
	ErrInvalidMinimum         = errors.New("minimum units must be positive and not exceed listed quantity")
	ErrInsufficientPosition   = errors.New("seller position insufficient for listed quantity")
	ErrInsufficientQuantity   = errors.New("listing has insufficient available quantity")
	ErrBelowMinimum           = errors.New("requested quantity below listing minimum")
	ErrListingNotActive       = errors.New("listing is not active")
	ErrListingExpired         = errors.New("listing has expired")
	ErrNotSeller              = errors.New("principal is not the listing seller")
	ErrListingHasReservations = errors.New("listing has outstanding reservations")
	ErrListingNotFound        = errors.New("listing not found")
	ErrNothingToRestore       = errors.New("no reserved quantity to restore")
)

// Listing 挂单：卖方将自己在某个交易中的份额挂出转让。
type Listing struct {
	gorm.Model
	ListingID         string          `gorm:"column:listing_id;type:varchar(64);uniqueIndex;not null" json:"listing_id"`
	DealID            string          `gorm:"column:deal_id;type:varchar(64);index;not null" json:"deal_id"`
	SellerID          string          `gorm:"column:seller_id;type:varchar(64);index;not null" json:"seller_id"`
	QuantityListed    decimal.Decimal `gorm:"column:quantity_listed;type:decimal(32,18);not null" json:"quantity_listed"`
	QuantityAvailable decimal.Decimal `gorm:"column:quantity_available;type:decimal(32,18);not null" json:"quantity_available"`
	UnitsReserved     decimal.Decimal `gorm:"column:units_reserved;type:decimal(32,18);not null;default:0" json:"units_reserved"`
	PricePerUnit      decimal.Decimal `gorm:"column:price_per_unit;type:decimal(32,18);not null" json:"price_per_unit"`
	MinimumUnits      decimal.Decimal `gorm:"column:minimum_units;type:decimal(32,18);not null" json:"minimum_units"`
	Status            ListingStatus   `gorm:"column:status;type:varchar(10);not null;default:'ACTIVE'" json:"status"`
	ExpiresAt         *time.Time      `gorm:"column:expires_at" json:"expires_at,omitempty"`

	domainEvents []DomainEvent `gorm:"-" json:"-"`
}

// TableName 表名
func (Listing) TableName() string {
	return "market_listings"
}

// NewListing 创建挂单。数量与价格必须为正，最小成交单位不能超过挂单总量。
func NewListing(listingID, dealID, sellerID string, quantity, pricePerUnit, minimumUnits decimal.Decimal, expiresAt *time.Time) (*Listing, error) {
	if !quantity.IsPositive() {
		return nil, ErrInvalidQuantity
	}
	if !pricePerUnit.IsPositive() {
		return nil, ErrInvalidPrice
	}
	if !minimumUnits.IsPositive() || minimumUnits.GreaterThan(quantity) {
		return nil, ErrInvalidMinimum
	}

	listing := &Listing{
		ListingID:         listingID,
		DealID:            dealID,
		SellerID:          sellerID,
		QuantityListed:    quantity,
		QuantityAvailable: quantity,
		UnitsReserved:     decimal.Zero,
		PricePerUnit:      pricePerUnit,
		MinimumUnits:      minimumUnits,
		Status:            ListingStatusActive,
		ExpiresAt:         expiresAt,
	}
	listing.addEvent(&ListingCreatedEvent{
		ListingID:    listingID,
		DealID:       dealID,
		SellerID:     sellerID,
		Quantity:     quantity,
		PricePerUnit: pricePerUnit,
		Timestamp:    time.Now(),
	})
	return listing, nil
}

// IsExpired 是否已过有效期
func (l *Listing) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

// Reserve 为一笔成交预留数量。
// 可售数量单调递减，降到零时挂单转为 SOLD。
func (l *Listing) Reserve(quantity decimal.Decimal, now time.Time) error {
	if l.Status != ListingStatusActive {
		return ErrListingNotActive
	}
	if l.IsExpired(now) {
		return ErrListingExpired
	}
	if !quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if quantity.LessThan(l.MinimumUnits) {
		return ErrBelowMinimum
	}
	if quantity.GreaterThan(l.QuantityAvailable) {
		return ErrInsufficientQuantity
	}

	l.QuantityAvailable = l.QuantityAvailable.Sub(quantity)
	l.UnitsReserved = l.UnitsReserved.Add(quantity)
	if l.QuantityAvailable.IsZero() {
		l.Status = ListingStatusSold
	}
	return nil
}

// Settle 一笔预留成交完成，释放对应的预留计数。
func (l *Listing) Settle(quantity decimal.Decimal) error {
	if quantity.GreaterThan(l.UnitsReserved) {
		return ErrNothingToRestore
	}
	l.UnitsReserved = l.UnitsReserved.Sub(quantity)
	return nil
}

// Restore 管理补偿：把一笔失败成交预留的数量退还到可售数量。
func (l *Listing) Restore(quantity decimal.Decimal) error {
	if !quantity.IsPositive() || quantity.GreaterThan(l.UnitsReserved) {
		return ErrNothingToRestore
	}
	l.UnitsReserved = l.UnitsReserved.Sub(quantity)
	l.QuantityAvailable = l.QuantityAvailable.Add(quantity)
	if l.Status == ListingStatusSold && l.QuantityAvailable.IsPositive() {
		l.Status = ListingStatusActive
	}
	return nil
}

// Update 卖方修改价格、最小成交单位或下调可售数量，仅限 ACTIVE 挂单。
// 可售数量只允许下调，降到零时挂单转为 SOLD。
func (l *Listing) Update(pricePerUnit, minimumUnits, quantityAvailable decimal.Decimal) error {
	if l.Status != ListingStatusActive {
		return ErrListingNotActive
	}
	if !pricePerUnit.IsPositive() {
		return ErrInvalidPrice
	}
	if !minimumUnits.IsPositive() || minimumUnits.GreaterThan(l.QuantityListed) {
		return ErrInvalidMinimum
	}
	if quantityAvailable.IsNegative() || quantityAvailable.GreaterThan(l.QuantityAvailable) {
		return ErrInvalidQuantity
	}
	l.PricePerUnit = pricePerUnit
	l.MinimumUnits = minimumUnits
	l.QuantityAvailable = quantityAvailable
	if l.QuantityAvailable.IsZero() {
		l.Status = ListingStatusSold
	}
	return nil
}

// Cancel 卖方撤单。存在未完结预留时不允许撤单。
func (l *Listing) Cancel(sellerID string) error {
	if l.SellerID != sellerID {
		return ErrNotSeller
	}
	if l.Status != ListingStatusActive {
		return ErrListingNotActive
	}
	if !l.UnitsReserved.IsZero() {
		return ErrListingHasReservations
	}
	l.Status = ListingStatusCancelled
	l.addEvent(&ListingCancelledEvent{
		ListingID: l.ListingID,
		DealID:    l.DealID,
		SellerID:  l.SellerID,
		Timestamp: time.Now(),
	})
	return nil
}

// Expire 过期转 EXPIRED，仅对 ACTIVE 挂单生效。
func (l *Listing) Expire(now time.Time) bool {
	if l.Status != ListingStatusActive || !l.IsExpired(now) {
		return false
	}
	l.Status = ListingStatusExpired
	return true
}

func (l *Listing) addEvent(event DomainEvent) {
	l.domainEvents = append(l.domainEvents, event)
}

// GetDomainEvents 获取待发布的领域事件
func (l *Listing) GetDomainEvents() []DomainEvent {
	return l.domainEvents
}

// ClearDomainEvents 清空领域事件
func (l *Listing) ClearDomainEvents() {
	l.domainEvents = nil
}
