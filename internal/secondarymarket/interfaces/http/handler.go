// Package http 二级市场服务 HTTP 处理器
package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/investmarket/internal/secondarymarket/application"
	"github.com/wyfcoding/investmarket/internal/secondarymarket/domain"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/response"
)

// MarketHandler 负责处理二级市场相关的 HTTP 请求
type MarketHandler struct {
	listingCmd *application.ListingCommandService
	tradeCmd   *application.TradeCommandService
	query      *application.QueryService
}

// NewMarketHandler 创建 HTTP 处理器实例
func NewMarketHandler(
	listingCmd *application.ListingCommandService,
	tradeCmd *application.TradeCommandService,
	query *application.QueryService,
) *MarketHandler {
	return &MarketHandler{listingCmd: listingCmd, tradeCmd: tradeCmd, query: query}
}

// RegisterRoutes 注册路由
func (h *MarketHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/v1/market")
	{
		api.POST("/listings", h.CreateListing)
		api.GET("/listings", h.ListListings)
		api.GET("/listings/:id", h.GetListing)
		api.PUT("/listings/:id", h.UpdateListing)
		api.POST("/listings/:id/cancel", h.CancelListing)
		api.GET("/listings/:id/trades", h.ListListingTrades)
		api.POST("/listings/:id/restore", h.RestoreQuantity)
		api.POST("/listings/sweep-expired", h.SweepExpired)

		api.POST("/trades", h.InitiateTrade)
		api.GET("/trades/:id", h.GetTrade)
		api.POST("/trades/:id/settle", h.SettleTrade)
		api.POST("/trades/:id/fail", h.FailTrade)
		api.GET("/users/:userID/trades", h.ListUserTrades)

		api.GET("/positions/:holderID", h.ListHolderPositions)
		api.GET("/positions/:holderID/deals/:dealID", h.GetPosition)
	}
}

// CreateListingRequest 创建挂单请求体
type CreateListingRequest struct {
	DealID       string          `json:"deal_id" binding:"required"`
	SellerID     string          `json:"seller_id" binding:"required"`
	PrincipalID  string          `json:"principal_id" binding:"required"`
	Quantity     decimal.Decimal `json:"quantity" binding:"required"`
	PricePerUnit decimal.Decimal `json:"price_per_unit" binding:"required"`
	MinimumUnits decimal.Decimal `json:"minimum_units" binding:"required"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
}

// CreateListing 创建挂单
func (h *MarketHandler) CreateListing(c *gin.Context) {
	var req CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request data", err.Error())
		return
	}

	listing, err := h.listingCmd.CreateListing(c.Request.Context(), application.CreateListingCommand{
		DealID:       req.DealID,
		SellerID:     req.SellerID,
		PrincipalID:  req.PrincipalID,
		Quantity:     req.Quantity,
		PricePerUnit: req.PricePerUnit,
		MinimumUnits: req.MinimumUnits,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		logging.Error(c.Request.Context(), "create listing failed", "deal_id", req.DealID, "error", err)
		respondError(c, err)
		return
	}

	response.Success(c, listing)
}

// GetListing 查询挂单
func (h *MarketHandler) GetListing(c *gin.Context) {
	listing, err := h.query.GetListing(c.Request.Context(), c.Param("id"))
	if err != nil {
		logging.Error(c.Request.Context(), "failed to get listing", "listing_id", c.Param("id"), "error", err)
		respondError(c, err)
		return
	}

	response.Success(c, listing)
}

// ListListings 按交易分页查询挂单
func (h *MarketHandler) ListListings(c *gin.Context) {
	dealID := c.Query("deal_id")
	sellerID := c.Query("seller_id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	if dealID == "" && sellerID == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "deal_id or seller_id is required", "")
		return
	}

	var (
		listings []*domain.Listing
		total    int64
		err      error
	)
	if dealID != "" {
		var status *domain.ListingStatus
		if st := c.Query("status"); st != "" {
			sv := domain.ListingStatus(st)
			status = &sv
		}
		listings, total, err = h.query.ListListings(c.Request.Context(), dealID, status, limit, offset)
	} else {
		listings, total, err = h.query.ListSellerListings(c.Request.Context(), sellerID, limit, offset)
	}
	if err != nil {
		logging.Error(c.Request.Context(), "failed to list listings", "deal_id", dealID, "error", err)
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"total": total, "listings": listings})
}

// UpdateListingRequest 修改挂单请求体
type UpdateListingRequest struct {
	SellerID          string          `json:"seller_id" binding:"required"`
	PricePerUnit      decimal.Decimal `json:"price_per_unit" binding:"required"`
	MinimumUnits      decimal.Decimal `json:"minimum_units" binding:"required"`
	QuantityAvailable decimal.Decimal `json:"quantity_available" binding:"required"`
}

// UpdateListing 修改挂单价格、最小成交单位或下调可售数量
func (h *MarketHandler) UpdateListing(c *gin.Context) {
	var req UpdateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request data", err.Error())
		return
	}

	listing, err := h.listingCmd.UpdateListing(c.Request.Context(), application.UpdateListingCommand{
		ListingID:         c.Param("id"),
		SellerID:          req.SellerID,
		PricePerUnit:      req.PricePerUnit,
		MinimumUnits:      req.MinimumUnits,
		QuantityAvailable: req.QuantityAvailable,
	})
	if err != nil {
		logging.Error(c.Request.Context(), "update listing failed", "listing_id", c.Param("id"), "error", err)
		respondError(c, err)
		return
	}

	response.Success(c, listing)
}

// CancelListing 卖方撤单
func (h *MarketHandler) CancelListing(c *gin.Context) {
	var req struct {
		SellerID string `json:"seller_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request data", err.Error())
		return
	}

	if err := h.listingCmd.CancelListing(c.Request.Context(), c.Param("id"), req.SellerID); err != nil {
		logging.Error(c.Request.Context(), "cancel listing failed", "listing_id", c.Param("id"), "error", err)
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"status": "cancelled"})
}

// RestoreQuantity 管理补偿：退还失败成交占用的挂单数量
func (h *MarketHandler) RestoreQuantity(c *gin.Context) {
	var req struct {
		TradeID string `json:"trade_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request data", err.Error())
		return
	}

	if err := h.listingCmd.RestoreQuantity(c.Request.Context(), c.Param("id"), req.TradeID); err != nil {
		logging.Error(c.Request.Context(), "restore quantity failed",
			"listing_id", c.Param("id"), "trade_id", req.TradeID, "error", err)
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"status": "restored"})
}

// SweepExpired 批量处理过期挂单
func (h *MarketHandler) SweepExpired(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	swept, err := h.listingCmd.SweepExpired(c.Request.Context(), limit)
	if err != nil {
		logging.Error(c.Request.Context(), "sweep expired failed", "error", err)
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"swept": swept})
}

// InitiateTradeRequest 发起成交请求体
type InitiateTradeRequest struct {
	ListingID string          `json:"listing_id" binding:"required"`
	BuyerID   string          `json:"buyer_id" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity" binding:"required"`
}

// InitiateTrade 发起成交
func (h *MarketHandler) InitiateTrade(c *gin.Context) {
	var req InitiateTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request data", err.Error())
		return
	}

	trade, err := h.tradeCmd.InitiateTrade(c.Request.Context(), application.InitiateTradeCommand{
		ListingID: req.ListingID,
		BuyerID:   req.BuyerID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		logging.Error(c.Request.Context(), "initiate trade failed", "listing_id", req.ListingID, "error", err)
		respondError(c, err)
		return
	}

	response.Success(c, trade)
}

// GetTrade 查询成交
func (h *MarketHandler) GetTrade(c *gin.Context) {
	trade, err := h.query.GetTrade(c.Request.Context(), c.Param("id"))
	if err != nil {
		logging.Error(c.Request.Context(), "failed to get trade", "trade_id", c.Param("id"), "error", err)
		respondError(c, err)
		return
	}

	response.Success(c, trade)
}

// SettleTrade 结算成交
func (h *MarketHandler) SettleTrade(c *gin.Context) {
	trade, err := h.tradeCmd.SettleTrade(c.Request.Context(), c.Param("id"))
	if err != nil {
		logging.Error(c.Request.Context(), "settle trade failed", "trade_id", c.Param("id"), "error", err)
		respondError(c, err)
		return
	}

	response.Success(c, trade)
}

// FailTrade 手工判废成交
func (h *MarketHandler) FailTrade(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request data", err.Error())
		return
	}

	if err := h.tradeCmd.FailTrade(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		logging.Error(c.Request.Context(), "fail trade failed", "trade_id", c.Param("id"), "error", err)
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"status": "failed"})
}

// ListUserTrades 查询用户的成交记录
func (h *MarketHandler) ListUserTrades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	trades, total, err := h.query.ListUserTrades(c.Request.Context(), c.Param("userID"), limit, offset)
	if err != nil {
		logging.Error(c.Request.Context(), "failed to list user trades", "user_id", c.Param("userID"), "error", err)
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"total": total, "trades": trades})
}

// ListListingTrades 查询挂单的成交记录
func (h *MarketHandler) ListListingTrades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	trades, total, err := h.query.ListListingTrades(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		logging.Error(c.Request.Context(), "failed to list listing trades", "listing_id", c.Param("id"), "error", err)
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"total": total, "trades": trades})
}

// GetPosition 查询持仓读模型
func (h *MarketHandler) GetPosition(c *gin.Context) {
	snapshot, err := h.query.GetPosition(c.Request.Context(), c.Param("dealID"), c.Param("holderID"))
	if err != nil {
		logging.Error(c.Request.Context(), "failed to get position",
			"deal_id", c.Param("dealID"), "holder_id", c.Param("holderID"), "error", err)
		respondError(c, err)
		return
	}
	if snapshot == nil {
		response.ErrorWithStatus(c, http.StatusNotFound, "position not found", "")
		return
	}

	response.Success(c, snapshot)
}

// ListHolderPositions 查询持有人的全部持仓
func (h *MarketHandler) ListHolderPositions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	positions, total, err := h.query.ListHolderPositions(c.Request.Context(), c.Param("holderID"), limit, offset)
	if err != nil {
		logging.Error(c.Request.Context(), "failed to list positions", "holder_id", c.Param("holderID"), "error", err)
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"total": total, "positions": positions})
}

// respondError 把领域错误映射为 HTTP 状态码。
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidMinimum):
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, domain.ErrListingNotFound),
		errors.Is(err, domain.ErrTradeNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, domain.ErrNotSeller):
		response.ErrorWithStatus(c, http.StatusForbidden, err.Error(), "")
	case errors.Is(err, domain.ErrInsufficientPosition),
		errors.Is(err, domain.ErrInsufficientQuantity),
		errors.Is(err, domain.ErrBelowMinimum),
		errors.Is(err, domain.ErrListingNotActive),
		errors.Is(err, domain.ErrListingExpired),
		errors.Is(err, domain.ErrListingHasReservations),
		errors.Is(err, domain.ErrSelfTradeForbidden),
		errors.Is(err, domain.ErrTradeNotPending),
		errors.Is(err, domain.ErrTradeNotFailed),
		errors.Is(err, domain.ErrSellerPositionMismatch),
		errors.Is(err, domain.ErrQuantityAlreadyRestored),
		errors.Is(err, domain.ErrNothingToRestore):
		response.ErrorWithStatus(c, http.StatusConflict, err.Error(), "")
	default:
		response.ErrorWithStatus(c, http.StatusInternalServerError, "internal error", "")
	}
}
