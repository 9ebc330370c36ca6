package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type ListingRepository interface {
	Save(ctx context.Context, listing *Listing) error
	// Get 找不到返回 ErrListingNotFound
	Get(ctx context.Context, listingID string) (*Listing, error)
	// GetForUpdate 悲观锁获取
	GetForUpdate(ctx context.Context, listingID string) (*Listing, error)
	ListByDeal(ctx context.Context, dealID string, status *ListingStatus, limit, offset int) ([]*Listing, int64, error)
	ListBySeller(ctx context.Context, sellerID string, limit, offset int) ([]*Listing, int64, error)
	// ListExpired 过期但仍为 ACTIVE 的挂单
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Listing, error)
	// Transaction 在同一数据库事务中执行回调
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type TradeRepository interface {
	Save(ctx context.Context, trade *Trade) error
	// Get 找不到返回 ErrTradeNotFound
	Get(ctx context.Context, tradeID string) (*Trade, error)
	// GetForUpdate 悲观锁获取
	GetForUpdate(ctx context.Context, tradeID string) (*Trade, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Trade, int64, error)
	ListByListing(ctx context.Context, listingID string, limit, offset int) ([]*Trade, int64, error)
}

// PaymentAuthority 支付通道。先冻结买方资金，结算时划扣或失败时解冻。
// 两个调用都不得在持有数据库行锁时发起。
type PaymentAuthority interface {
	// HoldFunds 冻结买方资金，返回支付通道凭证号
	HoldFunds(ctx context.Context, buyerID string, amount decimal.Decimal, currency, reference string) (string, error)
	// CaptureOrRelease capture 为 true 时划扣已冻结资金，否则解冻退回
	CaptureOrRelease(ctx context.Context, externalRef string, capture bool) error
}

// Authorizer 操作授权校验
type Authorizer interface {
	// CanActFor 校验主体是否可代表持有人执行市场操作
	CanActFor(ctx context.Context, principalID, holderID string) (bool, error)
}
