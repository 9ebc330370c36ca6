// Package mysql 二级市场服务 GORM 仓储实现
package mysql

import (
	"context"
	"errors"
	"time"

	"github.com/wyfcoding/investmarket/internal/secondarymarket/domain"
	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ListingRepository struct {
	db *gorm.DB
}

func NewListingRepository(db *gorm.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// Transaction 在同一事务上下文中执行回调。
func (r *ListingRepository) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(contextx.WithTx(ctx, tx))
	})
}

func (r *ListingRepository) Save(ctx context.Context, listing *domain.Listing) error {
	return r.getDB(ctx).WithContext(ctx).Save(listing).Error
}

func (r *ListingRepository) Get(ctx context.Context, listingID string) (*domain.Listing, error) {
	var listing domain.Listing
	err := r.getDB(ctx).WithContext(ctx).
		Where("listing_id = ?", listingID).
		First(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrListingNotFound
		}
		return nil, err
	}
	return &listing, nil
}

// GetForUpdate 悲观锁获取挂单。
func (r *ListingRepository) GetForUpdate(ctx context.Context, listingID string) (*domain.Listing, error) {
	var listing domain.Listing
	err := r.getDB(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("listing_id = ?", listingID).
		First(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrListingNotFound
		}
		return nil, err
	}
	return &listing, nil
}

func (r *ListingRepository) ListByDeal(ctx context.Context, dealID string, status *domain.ListingStatus, limit, offset int) ([]*domain.Listing, int64, error) {
	query := r.getDB(ctx).WithContext(ctx).Model(&domain.Listing{}).Where("deal_id = ?", dealID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var listings []*domain.Listing
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&listings).Error; err != nil {
		return nil, 0, err
	}
	return listings, total, nil
}

func (r *ListingRepository) ListBySeller(ctx context.Context, sellerID string, limit, offset int) ([]*domain.Listing, int64, error) {
	query := r.getDB(ctx).WithContext(ctx).Model(&domain.Listing{}).Where("seller_id = ?", sellerID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var listings []*domain.Listing
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&listings).Error; err != nil {
		return nil, 0, err
	}
	return listings, total, nil
}

func (r *ListingRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Listing, error) {
	var listings []*domain.Listing
	err := r.getDB(ctx).WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", domain.ListingStatusActive, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&listings).Error
	if err != nil {
		return nil, err
	}
	return listings, nil
}

func (r *ListingRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}

type TradeRepository struct {
	db *gorm.DB
}

func NewTradeRepository(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

func (r *TradeRepository) Save(ctx context.Context, trade *domain.Trade) error {
	return r.getDB(ctx).WithContext(ctx).Save(trade).Error
}

func (r *TradeRepository) Get(ctx context.Context, tradeID string) (*domain.Trade, error) {
	var trade domain.Trade
	err := r.getDB(ctx).WithContext(ctx).
		Where("trade_id = ?", tradeID).
		First(&trade).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTradeNotFound
		}
		return nil, err
	}
	return &trade, nil
}

// GetForUpdate 悲观锁获取成交。
func (r *TradeRepository) GetForUpdate(ctx context.Context, tradeID string) (*domain.Trade, error) {
	var trade domain.Trade
	err := r.getDB(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("trade_id = ?", tradeID).
		First(&trade).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTradeNotFound
		}
		return nil, err
	}
	return &trade, nil
}

func (r *TradeRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Trade, int64, error) {
	query := r.getDB(ctx).WithContext(ctx).Model(&domain.Trade{}).
		Where("buyer_id = ? OR seller_id = ?", userID, userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var trades []*domain.Trade
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&trades).Error; err != nil {
		return nil, 0, err
	}
	return trades, total, nil
}

func (r *TradeRepository) ListByListing(ctx context.Context, listingID string, limit, offset int) ([]*domain.Trade, int64, error) {
	query := r.getDB(ctx).WithContext(ctx).Model(&domain.Trade{}).Where("listing_id = ?", listingID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var trades []*domain.Trade
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&trades).Error; err != nil {
		return nil, 0, err
	}
	return trades, total, nil
}

func (r *TradeRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}
