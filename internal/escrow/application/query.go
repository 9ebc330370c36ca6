package application

import (
	"context"

	"github.com/wyfcoding/investmarket/internal/escrow/domain"
)

// QueryService 托管查询服务
type QueryService struct {
	accounts domain.AccountRepository
	txs      domain.TransactionRepository
}

// NewQueryService 创建查询服务
func NewQueryService(accounts domain.AccountRepository, txs domain.TransactionRepository) *QueryService {
	return &QueryService{accounts: accounts, txs: txs}
}

// GetAccount 按交易查询托管账户，不存在返回 nil。
func (s *QueryService) GetAccount(ctx context.Context, dealID string) (*domain.Account, error) {
	return s.accounts.GetByDeal(ctx, dealID)
}

// GetTransaction 查询单笔托管流水。
func (s *QueryService) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return s.txs.Get(ctx, transactionID)
}

// ListTransactions 分页查询交易的托管流水，kind 为空时返回全部类型。
func (s *QueryService) ListTransactions(ctx context.Context, dealID string, kind *domain.TransactionKind, limit, offset int) ([]*domain.Transaction, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.txs.ListByDeal(ctx, dealID, kind, limit, offset)
}
