// Package mysql 持仓服务 GORM 仓储实现
package mysql

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/investmarket/internal/position/domain"
	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PositionRepository struct {
	db *gorm.DB
}

func NewPositionRepository(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Transaction 在同一事务上下文中执行回调。
func (r *PositionRepository) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(contextx.WithTx(ctx, tx))
	})
}

func (r *PositionRepository) Save(ctx context.Context, position *domain.Position) error {
	return r.getDB(ctx).WithContext(ctx).Save(position).Error
}

func (r *PositionRepository) GetByDealAndHolder(ctx context.Context, dealID, holderID string) (*domain.Position, error) {
	var position domain.Position
	err := r.getDB(ctx).WithContext(ctx).
		Where("deal_id = ? AND holder_id = ?", dealID, holderID).
		First(&position).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &position, nil
}

// GetForUpdate 悲观锁获取持仓。
// SELECT * FROM positions WHERE deal_id = ? AND holder_id = ? FOR UPDATE
func (r *PositionRepository) GetForUpdate(ctx context.Context, dealID, holderID string) (*domain.Position, error) {
	var position domain.Position
	err := r.getDB(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("deal_id = ? AND holder_id = ?", dealID, holderID).
		First(&position).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &position, nil
}

func (r *PositionRepository) ListByHolder(ctx context.Context, holderID string, limit, offset int) ([]*domain.Position, int64, error) {
	query := r.getDB(ctx).WithContext(ctx).Model(&domain.Position{}).Where("holder_id = ?", holderID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var positions []*domain.Position
	if err := query.Order("deal_id ASC").Limit(limit).Offset(offset).Find(&positions).Error; err != nil {
		return nil, 0, err
	}
	return positions, total, nil
}

// SumByDeal 某个交易全部持有人数量之和。
func (r *PositionRepository) SumByDeal(ctx context.Context, dealID string) (decimal.Decimal, error) {
	var out struct {
		Total decimal.Decimal
	}
	err := r.getDB(ctx).WithContext(ctx).Model(&domain.Position{}).
		Select("COALESCE(SUM(quantity), 0) AS total").
		Where("deal_id = ?", dealID).
		Scan(&out).Error
	if err != nil {
		return decimal.Zero, err
	}
	return out.Total, nil
}

func (r *PositionRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}
