// Package domain 托管结算服务仓储与协作方接口
package domain

import (
	"context"
)

type AccountRepository interface {
	Save(ctx context.Context, account *Account) error
	GetByDeal(ctx context.Context, dealID string) (*Account, error)
	// GetByDealForUpdate 悲观锁获取，找不到返回 nil
	GetByDealForUpdate(ctx context.Context, dealID string) (*Account, error)
	// Transaction 在同一数据库事务中执行回调
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type TransactionRepository interface {
	Save(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, transactionID string) (*Transaction, error)
	// GetForUpdate 悲观锁获取，找不到返回 ErrTransactionNotFound
	GetForUpdate(ctx context.Context, transactionID string) (*Transaction, error)
	ListByDeal(ctx context.Context, dealID string, kind *TransactionKind, limit, offset int) ([]*Transaction, int64, error)
}

// Authorizer 授权协作方：谁可以审批某个交易的出账由外部授权服务决定，
// 本服务只信任其结论，不实现任何角色逻辑。
type Authorizer interface {
	CanApprove(ctx context.Context, principalID, dealID string) (bool, error)
}
