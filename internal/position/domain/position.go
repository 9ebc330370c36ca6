// Package domain 持仓服务领域层。
// 每个 (交易, 持有人) 对恰好一行持仓，数量永不为负；持仓只会被清零，从不物理删除。
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PositionStatus 持仓状态
type PositionStatus string

const (
	PositionStatusActive PositionStatus = "ACTIVE"
	PositionStatusClosed PositionStatus = "CLOSED"
)

var (
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrInsufficientQuantity = errors.New("insufficient position quantity")
)

// Position 持仓：持有人在某个交易中当前拥有的份额数量。
type Position struct {
	gorm.Model
	DealID   string          `gorm:"column:deal_id;type:varchar(64);uniqueIndex:idx_deal_holder;not null" json:"deal_id"`
	HolderID string          `gorm:"column:holder_id;type:varchar(64);uniqueIndex:idx_deal_holder;index;not null" json:"holder_id"`
	Quantity decimal.Decimal `gorm:"column:quantity;type:decimal(32,18);not null;default:0" json:"quantity"`
	Status   PositionStatus  `gorm:"column:status;type:varchar(10);not null;default:'ACTIVE'" json:"status"`
}

// TableName 表名
func (Position) TableName() string {
	return "positions"
}

// NewPosition 创建零持仓
func NewPosition(dealID, holderID string) *Position {
	return &Position{
		DealID:   dealID,
		HolderID: holderID,
		Quantity: decimal.Zero,
		Status:   PositionStatusActive,
	}
}

// Credit 增加持仓数量。
func (p *Position) Credit(quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	p.Quantity = p.Quantity.Add(quantity)
	p.Status = PositionStatusActive
	return nil
}

// Debit 扣减持仓数量，不足时拒绝，数量永不为负。
func (p *Position) Debit(quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if quantity.GreaterThan(p.Quantity) {
		return ErrInsufficientQuantity
	}
	p.Quantity = p.Quantity.Sub(quantity)
	return nil
}

// Snapshot 持仓读模型，供 Redis 缓存与查询接口使用。
type Snapshot struct {
	DealID    string          `json:"deal_id"`
	HolderID  string          `json:"holder_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Status    PositionStatus  `json:"status"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ToSnapshot 转为读模型
func (p *Position) ToSnapshot() *Snapshot {
	return &Snapshot{
		DealID:    p.DealID,
		HolderID:  p.HolderID,
		Quantity:  p.Quantity,
		Status:    p.Status,
		UpdatedAt: p.UpdatedAt,
	}
}
