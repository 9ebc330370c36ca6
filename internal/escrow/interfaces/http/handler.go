// Package http 托管结算服务 HTTP 处理器
package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/investmarket/internal/escrow/application"
	"github.com/wyfcoding/investmarket/internal/escrow/domain"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/response"
)

// EscrowHandler 负责处理托管相关的 HTTP 请求
type EscrowHandler struct {
	cmd   *application.CommandService
	query *application.QueryService
}

// NewEscrowHandler 创建 HTTP 处理器实例
func NewEscrowHandler(cmd *application.CommandService, query *application.QueryService) *EscrowHandler {
	return &EscrowHandler{cmd: cmd, query: query}
}

// RegisterRoutes 注册路由
func (h *EscrowHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/v1/escrow")
	{
		api.GET("/accounts/:dealID", h.GetAccount)
		api.POST("/accounts/:dealID/deposits", h.Deposit)
		api.POST("/accounts/:dealID/releases", h.RequestRelease)
		api.POST("/accounts/:dealID/refunds", h.RequestRefund)
		api.POST("/accounts/:dealID/close", h.CloseAccount)
		api.GET("/accounts/:dealID/transactions", h.ListTransactions)
		api.POST("/transactions/:id/approve", h.Approve)
	}
}

// AmountRequest 入金/出账申请请求体
type AmountRequest struct {
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	RequesterID string          `json:"requester_id" binding:"required"`
}

// GetAccount 查询（并惰性创建）交易的托管账户。
func (h *EscrowHandler) GetAccount(c *gin.Context) {
	dealID := c.Param("dealID")

	account, err := h.cmd.GetOrCreateAccount(c.Request.Context(), dealID)
	if err != nil {
		logging.Error(c.Request.Context(), "failed to get escrow account", "deal_id", dealID, "error", err)
		respondError(c, err)
		return
	}

	response.Success(c, account)
}

// Deposit 入金
func (h *EscrowHandler) Deposit(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request data", err.Error())
		return
	}

	tx, err := h.cmd.Deposit(c.Request.Context(), application.DepositCommand{
		DealID:      c.Param("dealID"),
		Amount:      req.Amount,
		RequesterID: req.RequesterID,
	})
	if err != nil {
		logging.Error(c.Request.Context(), "deposit failed", "deal_id", c.Param("dealID"), "error", err)
		respondError(c, err)
		return
	}

	response.Success(c, tx)
}

// RequestRelease 申请放款
func (h *EscrowHandler) RequestRelease(c *gin.Context) {
	h.requestOutgoing(c, h.cmd.RequestRelease)
}

// RequestRefund 申请退款
func (h *EscrowHandler) RequestRefund(c *gin.Context) {
	h.requestOutgoing(c, h.cmd.RequestRefund)
}

func (h *EscrowHandler) requestOutgoing(c *gin.Context, do func(ctx context.Context, cmd application.RequestCommand) (*domain.Transaction, error)) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request data", err.Error())
		return
	}

	tx, err := do(c.Request.Context(), application.RequestCommand{
		DealID:      c.Param("dealID"),
		Amount:      req.Amount,
		RequesterID: req.RequesterID,
	})
	if err != nil {
		logging.Error(c.Request.Context(), "outgoing request failed", "deal_id", c.Param("dealID"), "error", err)
		respondError(c, err)
		return
	}

	response.Success(c, tx)
}

// Approve 审批 PENDING 的放款/退款
func (h *EscrowHandler) Approve(c *gin.Context) {
	var req struct {
		ApproverID string `json:"approver_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request data", err.Error())
		return
	}

	tx, err := h.cmd.Approve(c.Request.Context(), c.Param("id"), req.ApproverID)
	if err != nil {
		logging.Error(c.Request.Context(), "approval failed", "transaction_id", c.Param("id"), "error", err)
		respondError(c, err)
		return
	}

	response.Success(c, tx)
}

// CloseAccount 关闭托管账户
func (h *EscrowHandler) CloseAccount(c *gin.Context) {
	if err := h.cmd.CloseAccount(c.Request.Context(), c.Param("dealID")); err != nil {
		logging.Error(c.Request.Context(), "close account failed", "deal_id", c.Param("dealID"), "error", err)
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"status": "closed"})
}

// ListTransactions 分页查询托管流水
func (h *EscrowHandler) ListTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	var kind *domain.TransactionKind
	if k := c.Query("kind"); k != "" {
		kv := domain.TransactionKind(k)
		kind = &kv
	}

	txs, total, err := h.query.ListTransactions(c.Request.Context(), c.Param("dealID"), kind, limit, offset)
	if err != nil {
		logging.Error(c.Request.Context(), "failed to list transactions", "deal_id", c.Param("dealID"), "error", err)
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"total": total, "transactions": txs})
}

// respondError 把领域错误映射为 HTTP 状态码。
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, domain.ErrTransactionNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, domain.ErrApprovalDenied):
		response.ErrorWithStatus(c, http.StatusForbidden, err.Error(), "")
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrNotPending),
		errors.Is(err, domain.ErrTypeMismatch),
		errors.Is(err, domain.ErrAccountClosed),
		errors.Is(err, domain.ErrAccountNotEmpty):
		response.ErrorWithStatus(c, http.StatusConflict, err.Error(), "")
	default:
		response.ErrorWithStatus(c, http.StatusInternalServerError, "internal error", "")
	}
}
