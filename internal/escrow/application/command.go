// Package application 托管结算服务应用层
package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/investmarket/internal/escrow/domain"
	"github.com/wyfcoding/pkg/contextx"
	"github.com/wyfcoding/pkg/idgen"
	"github.com/wyfcoding/pkg/messagequeue"
)

// CommandService 托管命令服务
type CommandService struct {
	accounts  domain.AccountRepository
	txs       domain.TransactionRepository
	authz     domain.Authorizer
	publisher messagequeue.EventPublisher
	logger    *slog.Logger
}

// NewCommandService 创建命令服务
func NewCommandService(
	accounts domain.AccountRepository,
	txs domain.TransactionRepository,
	authz domain.Authorizer,
	publisher messagequeue.EventPublisher,
	logger *slog.Logger,
) *CommandService {
	return &CommandService{
		accounts:  accounts,
		txs:       txs,
		authz:     authz,
		publisher: publisher,
		logger:    logger,
	}
}

// GetOrCreateAccount 获取交易的托管账户，不存在则以零余额创建。
func (s *CommandService) GetOrCreateAccount(ctx context.Context, dealID string) (*domain.Account, error) {
	account, err := s.accounts.GetByDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if account != nil {
		return account, nil
	}

	account = domain.NewAccount(fmt.Sprintf("ESC-%d", idgen.GenID()), dealID)
	if err := s.accounts.Save(ctx, account); err != nil {
		// 并发创建时唯一索引会拒绝第二个插入，重读即可
		if existing, getErr := s.accounts.GetByDeal(ctx, dealID); getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "escrow account created", "deal_id", dealID, "account_id", account.AccountID)
	return account, nil
}

// DepositCommand 入金命令
type DepositCommand struct {
	DealID      string
	Amount      decimal.Decimal
	RequesterID string
}

// Deposit 入金：立即完成并增加余额。
func (s *CommandService) Deposit(ctx context.Context, cmd DepositCommand) (*domain.Transaction, error) {
	if _, err := s.GetOrCreateAccount(ctx, cmd.DealID); err != nil {
		return nil, err
	}

	var tx *domain.Transaction
	err := s.accounts.Transaction(ctx, func(txCtx context.Context) error {
		account, err := s.accounts.GetByDealForUpdate(txCtx, cmd.DealID)
		if err != nil {
			return err
		}

		tx, err = account.Deposit(fmt.Sprintf("ETX-%d", idgen.GenID()), cmd.Amount, cmd.RequesterID)
		if err != nil {
			return err
		}

		if err := s.accounts.Save(txCtx, account); err != nil {
			return err
		}
		if err := s.txs.Save(txCtx, tx); err != nil {
			return err
		}
		return s.publishInTx(txCtx, account)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "escrow deposit completed",
		"deal_id", cmd.DealID, "transaction_id", tx.TransactionID, "amount", cmd.Amount.String())
	return tx, nil
}

// RequestCommand 放款/退款申请命令
type RequestCommand struct {
	DealID      string
	Amount      decimal.Decimal
	RequesterID string
}

// RequestRelease 申请放款：创建 PENDING 流水，余额不变。
func (s *CommandService) RequestRelease(ctx context.Context, cmd RequestCommand) (*domain.Transaction, error) {
	return s.requestOutgoing(ctx, domain.TransactionKindRelease, cmd)
}

// RequestRefund 申请退款：创建 PENDING 流水，余额不变。
func (s *CommandService) RequestRefund(ctx context.Context, cmd RequestCommand) (*domain.Transaction, error) {
	return s.requestOutgoing(ctx, domain.TransactionKindRefund, cmd)
}

func (s *CommandService) requestOutgoing(ctx context.Context, kind domain.TransactionKind, cmd RequestCommand) (*domain.Transaction, error) {
	if _, err := s.GetOrCreateAccount(ctx, cmd.DealID); err != nil {
		return nil, err
	}

	var tx *domain.Transaction
	err := s.accounts.Transaction(ctx, func(txCtx context.Context) error {
		account, err := s.accounts.GetByDealForUpdate(txCtx, cmd.DealID)
		if err != nil {
			return err
		}

		txID := fmt.Sprintf("ETX-%d", idgen.GenID())
		if kind == domain.TransactionKindRefund {
			tx, err = account.RequestRefund(txID, cmd.Amount, cmd.RequesterID)
		} else {
			tx, err = account.RequestRelease(txID, cmd.Amount, cmd.RequesterID)
		}
		if err != nil {
			return err
		}

		if err := s.txs.Save(txCtx, tx); err != nil {
			return err
		}
		return s.publishInTx(txCtx, account)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "escrow outgoing requested",
		"deal_id", cmd.DealID, "kind", kind, "transaction_id", tx.TransactionID)
	return tx, nil
}

// Approve 审批 PENDING 的放款/退款：授权校验 → 锁定流水和账户 → 扣减余额并完成。
// 对已完成流水重复调用安全返回 ErrNotPending，不产生任何副作用。
func (s *CommandService) Approve(ctx context.Context, transactionID, approverID string) (*domain.Transaction, error) {
	peek, err := s.txs.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	allowed, err := s.authz.CanApprove(ctx, approverID, peek.DealID)
	if err != nil {
		return nil, fmt.Errorf("authorization check failed: %w", err)
	}
	if !allowed {
		return nil, domain.ErrApprovalDenied
	}

	var tx *domain.Transaction
	err = s.accounts.Transaction(ctx, func(txCtx context.Context) error {
		tx, err = s.txs.GetForUpdate(txCtx, transactionID)
		if err != nil {
			return err
		}

		account, err := s.accounts.GetByDealForUpdate(txCtx, tx.DealID)
		if err != nil {
			return err
		}

		if err := account.Approve(tx, approverID); err != nil {
			return err
		}

		if err := s.accounts.Save(txCtx, account); err != nil {
			return err
		}
		if err := s.txs.Save(txCtx, tx); err != nil {
			return err
		}
		return s.publishInTx(txCtx, account)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "escrow transaction approved",
		"transaction_id", transactionID, "approved_by", approverID, "amount", tx.Amount.String())
	return tx, nil
}

// CloseAccount 关闭托管账户，仅在余额为零时允许。
func (s *CommandService) CloseAccount(ctx context.Context, dealID string) error {
	return s.accounts.Transaction(ctx, func(txCtx context.Context) error {
		account, err := s.accounts.GetByDealForUpdate(txCtx, dealID)
		if err != nil {
			return err
		}

		if err := account.Close(); err != nil {
			return err
		}
		return s.accounts.Save(txCtx, account)
	})
}

// publishInTx 把聚合根积累的领域事件写入同事务的 outbox。
func (s *CommandService) publishInTx(txCtx context.Context, account *domain.Account) error {
	if s.publisher == nil {
		account.ClearDomainEvents()
		return nil
	}
	for _, event := range account.GetDomainEvents() {
		if err := s.publisher.PublishInTx(txCtx, contextx.GetTx(txCtx), event.EventName(), account.DealID, event); err != nil {
			return err
		}
	}
	account.ClearDomainEvents()
	return nil
}
