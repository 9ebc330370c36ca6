package application

import (
	"context"
	"errors"
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

// TradeCommandService 成交命令服务。
// 资金冻结与划扣走外部支付通道，所有支付调用都在数据库行锁之外发起。
type TradeCommandService struct {
	listings  domain.ListingRepository
	trades    domain.TradeRepository
	positions positiondomain.PositionRepository
	payments  domain.PaymentAuthority
	publisher messagequeue.EventPublisher
	feeRate   decimal.Decimal
	currency  string
	logger    *slog.Logger
}

// NewTradeCommandService 创建成交命令服务
func NewTradeCommandService(
	listings domain.ListingRepository,
	trades domain.TradeRepository,
	positions positiondomain.PositionRepository,
	payments domain.PaymentAuthority,
	publisher messagequeue.EventPublisher,
	feeRate decimal.Decimal,
	currency string,
	logger *slog.Logger,
) *TradeCommandService {
	return &TradeCommandService{
		listings:  listings,
		trades:    trades,
		positions: positions,
		payments:  payments,
		publisher: publisher,
		feeRate:   feeRate,
		currency:  currency,
		logger:    logger,
	}
}

// InitiateTradeCommand 发起成交命令
type InitiateTradeCommand struct {
	ListingID string
	BuyerID   string
	Quantity  decimal.Decimal
}

// InitiateTrade 发起成交：在单个事务内预留挂单数量并创建 PENDING 成交，
// 然后在锁外冻结买方资金。冻结失败时成交转 FAILED，预留数量留待显式补偿。
func (s *TradeCommandService) InitiateTrade(ctx context.Context, cmd InitiateTradeCommand) (*domain.Trade, error) {
	now := time.Now()

	var trade *domain.Trade
	err := s.listings.Transaction(ctx, func(txCtx context.Context) error {
		listing, err := s.listings.GetForUpdate(txCtx, cmd.ListingID)
		if err != nil {
			return err
		}
		if listing.Expire(now) {
			if err := s.listings.Save(txCtx, listing); err != nil {
				return err
			}
			return domain.ErrListingExpired
		}

		trade, err = domain.NewTrade(fmt.Sprintf("MTR-%d", idgen.GenID()), listing, cmd.BuyerID, cmd.Quantity, s.feeRate)
		if err != nil {
			return err
		}
		if err := listing.Reserve(cmd.Quantity, now); err != nil {
			return err
		}

		if err := s.listings.Save(txCtx, listing); err != nil {
			return err
		}
		if err := s.trades.Save(txCtx, trade); err != nil {
			return err
		}
		return s.publishTradeEvents(txCtx, trade)
	})
	if err != nil {
		return nil, err
	}

	// 冻结买方价款加手续费。此处不持有任何行锁。
	chargeTotal := trade.TotalAmount.Add(trade.Fee)
	ref, holdErr := s.payments.HoldFunds(ctx, cmd.BuyerID, chargeTotal, s.currency, trade.TradeID)
	if holdErr != nil {
		s.logger.ErrorContext(ctx, "failed to hold buyer funds",
			"trade_id", trade.TradeID, "buyer_id", cmd.BuyerID, "amount", chargeTotal.String(), "error", holdErr)
		if failErr := s.failTrade(ctx, trade.TradeID, fmt.Sprintf("hold funds: %v", holdErr)); failErr != nil {
			return nil, failErr
		}
		return nil, fmt.Errorf("hold funds: %w", holdErr)
	}

	err = s.listings.Transaction(ctx, func(txCtx context.Context) error {
		locked, err := s.trades.GetForUpdate(txCtx, trade.TradeID)
		if err != nil {
			return err
		}
		if err := locked.AttachPaymentRef(ref); err != nil {
			return err
		}
		trade = locked
		return s.trades.Save(txCtx, locked)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "trade initiated",
		"trade_id", trade.TradeID, "listing_id", cmd.ListingID, "buyer_id", cmd.BuyerID,
		"quantity", cmd.Quantity.String(), "total_amount", trade.TotalAmount.String())
	return trade, nil
}

// SettleTrade 结算成交：锁外划扣已冻结资金，然后在单个事务内
// 扣减卖方持仓、增加买方持仓、完成成交。份额转移全有或全无。
func (s *TradeCommandService) SettleTrade(ctx context.Context, tradeID string) (*domain.Trade, error) {
	peek, err := s.trades.Get(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if !peek.IsPending() {
		return nil, domain.ErrTradeNotPending
	}

	if err := s.payments.CaptureOrRelease(ctx, peek.PaymentRef, true); err != nil {
		return nil, fmt.Errorf("capture funds: %w", err)
	}

	var trade *domain.Trade
	err = s.listings.Transaction(ctx, func(txCtx context.Context) error {
		var err error
		trade, err = s.trades.GetForUpdate(txCtx, tradeID)
		if err != nil {
			return err
		}
		if !trade.IsPending() {
			return domain.ErrTradeNotPending
		}

		listing, err := s.listings.GetForUpdate(txCtx, trade.ListingID)
		if err != nil {
			return err
		}

		// 锁定顺序固定：先卖方持仓，再买方持仓。
		seller, err := s.positions.GetForUpdate(txCtx, trade.DealID, trade.SellerID)
		if err != nil {
			return err
		}
		if seller == nil {
			return domain.ErrSellerPositionMismatch
		}
		if err := seller.Debit(trade.Quantity); err != nil {
			return domain.ErrSellerPositionMismatch
		}

		buyer, err := s.positions.GetForUpdate(txCtx, trade.DealID, trade.BuyerID)
		if err != nil {
			return err
		}
		if buyer == nil {
			buyer = positiondomain.NewPosition(trade.DealID, trade.BuyerID)
		}
		if err := buyer.Credit(trade.Quantity); err != nil {
			return err
		}

		if err := listing.Settle(trade.Quantity); err != nil {
			return err
		}
		if err := trade.Complete(); err != nil {
			return err
		}

		if err := s.positions.Save(txCtx, seller); err != nil {
			return err
		}
		if err := s.positions.Save(txCtx, buyer); err != nil {
			return err
		}
		if err := s.listings.Save(txCtx, listing); err != nil {
			return err
		}
		if err := s.trades.Save(txCtx, trade); err != nil {
			return err
		}
		return s.publishTradeEvents(txCtx, trade)
	})
	if err != nil {
		// 并发结算：另一个调用已在锁内完成该笔，不是结算失败。
		if errors.Is(err, domain.ErrTradeNotPending) {
			return nil, err
		}
		// 资金已划扣但份额转移被拒，标记失败并留痕，资金需人工冲正。
		s.logger.ErrorContext(ctx, "trade settlement rejected after capture, manual fund reversal required",
			"trade_id", tradeID, "payment_ref", peek.PaymentRef, "error", err)
		if failErr := s.failTrade(ctx, tradeID, fmt.Sprintf("settlement: %v", err)); failErr != nil {
			s.logger.ErrorContext(ctx, "failed to mark trade failed", "trade_id", tradeID, "error", failErr)
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "trade settled",
		"trade_id", tradeID, "deal_id", trade.DealID,
		"seller_id", trade.SellerID, "buyer_id", trade.BuyerID, "quantity", trade.Quantity.String())
	return trade, nil
}

// FailTrade 手工判废一笔 PENDING 成交：解冻已冻结资金并记录原因。
func (s *TradeCommandService) FailTrade(ctx context.Context, tradeID, reason string) error {
	peek, err := s.trades.Get(ctx, tradeID)
	if err != nil {
		return err
	}
	if !peek.IsPending() {
		return domain.ErrTradeNotPending
	}

	if peek.PaymentRef != "" {
		if err := s.payments.CaptureOrRelease(ctx, peek.PaymentRef, false); err != nil {
			return fmt.Errorf("release funds: %w", err)
		}
	}
	return s.failTrade(ctx, tradeID, reason)
}

func (s *TradeCommandService) failTrade(ctx context.Context, tradeID, reason string) error {
	return s.listings.Transaction(ctx, func(txCtx context.Context) error {
		trade, err := s.trades.GetForUpdate(txCtx, tradeID)
		if err != nil {
			return err
		}
		if err := trade.Fail(reason); err != nil {
			return err
		}
		if err := s.trades.Save(txCtx, trade); err != nil {
			return err
		}
		return s.publishTradeEvents(txCtx, trade)
	})
}

func (s *TradeCommandService) publishTradeEvents(txCtx context.Context, trade *domain.Trade) error {
	if s.publisher == nil {
		trade.ClearDomainEvents()
		return nil
	}
	for _, event := range trade.GetDomainEvents() {
		if err := s.publisher.PublishInTx(txCtx, contextx.GetTx(txCtx), event.EventName(), trade.TradeID, event); err != nil {
			return err
		}
	}
	trade.ClearDomainEvents()
	return nil
}
