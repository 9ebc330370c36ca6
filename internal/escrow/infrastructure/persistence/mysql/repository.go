// Package mysql 托管结算服务 GORM 仓储实现
package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/investmarket/internal/escrow/domain"
	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AccountRepository GORM 托管账户仓储
type AccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository 创建账户仓储
func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Transaction 在同一事务上下文中执行回调。
func (r *AccountRepository) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(contextx.WithTx(ctx, tx))
	})
}

// Save 保存账户
func (r *AccountRepository) Save(ctx context.Context, account *domain.Account) error {
	return r.getDB(ctx).WithContext(ctx).Save(account).Error
}

// GetByDeal 按交易获取账户，不存在返回 nil。
func (r *AccountRepository) GetByDeal(ctx context.Context, dealID string) (*domain.Account, error) {
	var account domain.Account
	err := r.getDB(ctx).WithContext(ctx).Where("deal_id = ?", dealID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// GetByDealForUpdate 悲观锁获取账户，不存在返回 nil。
// SELECT * FROM escrow_accounts WHERE deal_id = ? FOR UPDATE
func (r *AccountRepository) GetByDealForUpdate(ctx context.Context, dealID string) (*domain.Account, error) {
	var account domain.Account
	err := r.getDB(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("deal_id = ?", dealID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}

// TransactionRepository GORM 托管流水仓储
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository 创建流水仓储
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Save 保存流水
func (r *TransactionRepository) Save(ctx context.Context, tx *domain.Transaction) error {
	return r.getDB(ctx).WithContext(ctx).Save(tx).Error
}

// Get 查询流水
func (r *TransactionRepository) Get(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := r.getDB(ctx).WithContext(ctx).Where("transaction_id = ?", transactionID).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// GetForUpdate 悲观锁查询流水
func (r *TransactionRepository) GetForUpdate(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := r.getDB(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("transaction_id = ?", transactionID).
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// ListByDeal 按交易分页查询流水
func (r *TransactionRepository) ListByDeal(ctx context.Context, dealID string, kind *domain.TransactionKind, limit, offset int) ([]*domain.Transaction, int64, error) {
	query := r.getDB(ctx).WithContext(ctx).Model(&domain.Transaction{}).Where("deal_id = ?", dealID)
	if kind != nil {
		query = query.Where("kind = ?", *kind)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txs []*domain.Transaction
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&txs).Error; err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

func (r *TransactionRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}
