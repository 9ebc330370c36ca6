package application

import (
	"context"
	"log/slog"
	"time"

	positionapp "github.com/wyfcoding/investmarket/internal/position/application"
	positiondomain "github.com/wyfcoding/investmarket/internal/position/domain"
	"github.com/wyfcoding/investmarket/internal/secondarymarket/domain"
)

// QueryService 二级市场查询服务
type QueryService struct {
	listings  domain.ListingRepository
	trades    domain.TradeRepository
	positions positiondomain.PositionRepository
	projector *positionapp.ProjectionService
	logger    *slog.Logger
}

// NewQueryService 创建查询服务
func NewQueryService(
	listings domain.ListingRepository,
	trades domain.TradeRepository,
	positions positiondomain.PositionRepository,
	projector *positionapp.ProjectionService,
	logger *slog.Logger,
) *QueryService {
	return &QueryService{
		listings:  listings,
		trades:    trades,
		positions: positions,
		projector: projector,
		logger:    logger,
	}
}

// GetListing 查询挂单。已过有效期的 ACTIVE 挂单在读取时惰性转为 EXPIRED。
func (s *QueryService) GetListing(ctx context.Context, listingID string) (*domain.Listing, error) {
	listing, err := s.listings.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if listing.Status != domain.ListingStatusActive || !listing.IsExpired(now) {
		return listing, nil
	}

	err = s.listings.Transaction(ctx, func(txCtx context.Context) error {
		locked, err := s.listings.GetForUpdate(txCtx, listingID)
		if err != nil {
			return err
		}
		if locked.Expire(now) {
			if err := s.listings.Save(txCtx, locked); err != nil {
				return err
			}
		}
		listing = locked
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to lazily expire listing", "listing_id", listingID, "error", err)
		return nil, err
	}
	return listing, nil
}

// ListListings 按交易查询挂单，可选按状态过滤。
func (s *QueryService) ListListings(ctx context.Context, dealID string, status *domain.ListingStatus, limit, offset int) ([]*domain.Listing, int64, error) {
	return s.listings.ListByDeal(ctx, dealID, status, clampLimit(limit), offset)
}

// ListSellerListings 按卖方查询挂单。
func (s *QueryService) ListSellerListings(ctx context.Context, sellerID string, limit, offset int) ([]*domain.Listing, int64, error) {
	return s.listings.ListBySeller(ctx, sellerID, clampLimit(limit), offset)
}

// GetTrade 查询成交
func (s *QueryService) GetTrade(ctx context.Context, tradeID string) (*domain.Trade, error) {
	return s.trades.Get(ctx, tradeID)
}

// ListUserTrades 查询用户作为买方或卖方的全部成交。
func (s *QueryService) ListUserTrades(ctx context.Context, userID string, limit, offset int) ([]*domain.Trade, int64, error) {
	return s.trades.ListByUser(ctx, userID, clampLimit(limit), offset)
}

// ListListingTrades 查询某个挂单的全部成交。
func (s *QueryService) ListListingTrades(ctx context.Context, listingID string, limit, offset int) ([]*domain.Trade, int64, error) {
	return s.trades.ListByListing(ctx, listingID, clampLimit(limit), offset)
}

// GetPosition 查询持仓读模型，缓存优先。
func (s *QueryService) GetPosition(ctx context.Context, dealID, holderID string) (*positiondomain.Snapshot, error) {
	return s.projector.GetSnapshot(ctx, dealID, holderID)
}

// ListHolderPositions 查询持有人的全部持仓。
func (s *QueryService) ListHolderPositions(ctx context.Context, holderID string, limit, offset int) ([]*positiondomain.Position, int64, error) {
	return s.positions.ListByHolder(ctx, holderID, clampLimit(limit), offset)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}
