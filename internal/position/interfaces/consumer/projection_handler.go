package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"github.com/wyfcoding/investmarket/internal/position/application"
)

const tradeSettledTopic = "market.trade_settled"

// ProjectionHandler 消费成交结算事件，刷新买卖双方的持仓缓存。
type ProjectionHandler struct {
	projector *application.ProjectionService
	logger    *slog.Logger
}

func NewProjectionHandler(projector *application.ProjectionService, logger *slog.Logger) *ProjectionHandler {
	return &ProjectionHandler{projector: projector, logger: logger}
}

func (h *ProjectionHandler) Handle(ctx context.Context, msg kafka.Message) error {
	if msg.Topic != tradeSettledTopic {
		return nil
	}

	var payload struct {
		TradeID  string `json:"trade_id"`
		DealID   string `json:"deal_id"`
		SellerID string `json:"seller_id"`
		BuyerID  string `json:"buyer_id"`
	}
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		h.logger.ErrorContext(ctx, "failed to unmarshal trade settled event", "error", err)
		return err
	}
	if payload.DealID == "" {
		return nil
	}

	for _, holderID := range []string{payload.SellerID, payload.BuyerID} {
		if holderID == "" {
			continue
		}
		if err := h.projector.Refresh(ctx, payload.DealID, holderID); err != nil {
			h.logger.ErrorContext(ctx, "failed to refresh position projection",
				"trade_id", payload.TradeID, "deal_id", payload.DealID, "holder_id", holderID, "error", err)
			return err
		}
	}
	return nil
}
