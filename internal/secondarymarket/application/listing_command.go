// Package application 二级市场服务应用层
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	positiondomain "github.com/wyfcoding/investmarket/internal/position/domain"
	"github.com/wyfcoding/investmarket/internal/secondarymarket/domain"
	"github.com/wyfcoding/pkg/contextx"
	"github.com/wyfcoding/pkg/idgen"
	"github.com/wyfcoding/pkg/messagequeue"
)

// ListingCommandService 挂单命令服务
type ListingCommandService struct {
	listings  domain.ListingRepository
	trades    domain.TradeRepository
	positions positiondomain.PositionRepository
	authz     domain.Authorizer
	publisher messagequeue.EventPublisher
	logger    *slog.Logger
}

// NewListingCommandService 创建挂单命令服务
func NewListingCommandService(
	listings domain.ListingRepository,
	trades domain.TradeRepository,
	positions positiondomain.PositionRepository,
	authz domain.Authorizer,
	publisher messagequeue.EventPublisher,
	logger *slog.Logger,
) *ListingCommandService {
	return &ListingCommandService{
		listings:  listings,
		trades:    trades,
		positions: positions,
		authz:     authz,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateListingCommand 创建挂单命令
type CreateListingCommand struct {
	DealID       string
	SellerID     string
	PrincipalID  string
	Quantity     decimal.Decimal
	PricePerUnit decimal.Decimal
	MinimumUnits decimal.Decimal
	ExpiresAt    *time.Time
}

// CreateListing 创建挂单。校验操作授权，并核对卖方实时持仓覆盖挂单数量。
func (s *ListingCommandService) CreateListing(ctx context.Context, cmd CreateListingCommand) (*domain.Listing, error) {
	allowed, err := s.authz.CanActFor(ctx, cmd.PrincipalID, cmd.SellerID)
	if err != nil {
		return nil, fmt.Errorf("authorization check failed: %w", err)
	}
	if !allowed {
		return nil, domain.ErrNotSeller
	}

	position, err := s.positions.GetByDealAndHolder(ctx, cmd.DealID, cmd.SellerID)
	if err != nil {
		return nil, err
	}
	if position == nil || position.Quantity.LessThan(cmd.Quantity) {
		return nil, domain.ErrInsufficientPosition
	}

	listing, err := domain.NewListing(
		fmt.Sprintf("LST-%d", idgen.GenID()),
		cmd.DealID, cmd.SellerID,
		cmd.Quantity, cmd.PricePerUnit, cmd.MinimumUnits,
		cmd.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	err = s.listings.Transaction(ctx, func(txCtx context.Context) error {
		if err := s.listings.Save(txCtx, listing); err != nil {
			return err
		}
		return s.publishListingEvents(txCtx, listing)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "listing created",
		"listing_id", listing.ListingID, "deal_id", cmd.DealID, "seller_id", cmd.SellerID,
		"quantity", cmd.Quantity.String(), "price_per_unit", cmd.PricePerUnit.String())
	return listing, nil
}

// UpdateListingCommand 修改挂单命令
type UpdateListingCommand struct {
	ListingID         string
	SellerID          string
	PricePerUnit      decimal.Decimal
	MinimumUnits      decimal.Decimal
	QuantityAvailable decimal.Decimal
}

// UpdateListing 卖方修改价格、最小成交单位或下调可售数量。
func (s *ListingCommandService) UpdateListing(ctx context.Context, cmd UpdateListingCommand) (*domain.Listing, error) {
	var listing *domain.Listing
	err := s.listings.Transaction(ctx, func(txCtx context.Context) error {
		var err error
		listing, err = s.listings.GetForUpdate(txCtx, cmd.ListingID)
		if err != nil {
			return err
		}
		if listing.SellerID != cmd.SellerID {
			return domain.ErrNotSeller
		}
		if err := listing.Update(cmd.PricePerUnit, cmd.MinimumUnits, cmd.QuantityAvailable); err != nil {
			return err
		}
		return s.listings.Save(txCtx, listing)
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// CancelListing 卖方撤单。有未完结预留时拒绝。
func (s *ListingCommandService) CancelListing(ctx context.Context, listingID, sellerID string) error {
	err := s.listings.Transaction(ctx, func(txCtx context.Context) error {
		listing, err := s.listings.GetForUpdate(txCtx, listingID)
		if err != nil {
			return err
		}
		if err := listing.Cancel(sellerID); err != nil {
			return err
		}
		if err := s.listings.Save(txCtx, listing); err != nil {
			return err
		}
		return s.publishListingEvents(txCtx, listing)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "listing cancelled", "listing_id", listingID, "seller_id", sellerID)
	return nil
}

// SweepExpired 批量把过期挂单转为 EXPIRED，返回处理条数。
// 读接口也会惰性过期，此处兜底清理没人再查的挂单。
func (s *ListingCommandService) SweepExpired(ctx context.Context, limit int) (int, error) {
	now := time.Now()
	expired, err := s.listings.ListExpired(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, candidate := range expired {
		err := s.listings.Transaction(ctx, func(txCtx context.Context) error {
			listing, err := s.listings.GetForUpdate(txCtx, candidate.ListingID)
			if err != nil {
				return err
			}
			if !listing.Expire(now) {
				return nil
			}
			swept++
			return s.listings.Save(txCtx, listing)
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to expire listing", "listing_id", candidate.ListingID, "error", err)
			return swept, err
		}
	}
	return swept, nil
}

// RestoreQuantity 管理补偿：把一笔失败成交占用的数量退还给挂单。
// 每笔成交只允许补偿一次。
func (s *ListingCommandService) RestoreQuantity(ctx context.Context, listingID, tradeID string) error {
	err := s.listings.Transaction(ctx, func(txCtx context.Context) error {
		trade, err := s.trades.GetForUpdate(txCtx, tradeID)
		if err != nil {
			return err
		}
		if trade.ListingID != listingID {
			return domain.ErrTradeNotFound
		}
		if err := trade.MarkRestored(); err != nil {
			return err
		}

		listing, err := s.listings.GetForUpdate(txCtx, listingID)
		if err != nil {
			return err
		}
		if err := listing.Restore(trade.Quantity); err != nil {
			return err
		}

		if err := s.trades.Save(txCtx, trade); err != nil {
			return err
		}
		return s.listings.Save(txCtx, listing)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "listing quantity restored", "listing_id", listingID, "trade_id", tradeID)
	return nil
}

func (s *ListingCommandService) publishListingEvents(txCtx context.Context, listing *domain.Listing) error {
	if s.publisher == nil {
		listing.ClearDomainEvents()
		return nil
	}
	for _, event := range listing.GetDomainEvents() {
		if err := s.publisher.PublishInTx(txCtx, contextx.GetTx(txCtx), event.EventName(), listing.ListingID, event); err != nil {
			return err
		}
	}
	listing.ClearDomainEvents()
	return nil
}
