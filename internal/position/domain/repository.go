package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type PositionRepository interface {
	Save(ctx context.Context, position *Position) error
	// GetByDealAndHolder 找不到返回 nil
	GetByDealAndHolder(ctx context.Context, dealID, holderID string) (*Position, error)
	// GetForUpdate 悲观锁获取，找不到返回 nil
	GetForUpdate(ctx context.Context, dealID, holderID string) (*Position, error)
	ListByHolder(ctx context.Context, holderID string, limit, offset int) ([]*Position, int64, error)
	// SumByDeal 某个交易全部持有人数量之和，用于守恒校验
	SumByDeal(ctx context.Context, dealID string) (decimal.Decimal, error)
	// Transaction 在同一数据库事务中执行回调
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// SnapshotRepository 持仓读模型缓存
type SnapshotRepository interface {
	Save(ctx context.Context, snapshot *Snapshot) error
	Get(ctx context.Context, dealID, holderID string) (*Snapshot, error)
}
