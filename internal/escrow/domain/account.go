// Package domain 托管结算服务领域层
// 1) 定义每个交易(Deal)对应的托管账户聚合根
// 2) 定义只追加的托管流水实体
// 3) 实现入金、出金申请、审批的领域逻辑（两步审批，资金不可单方面离开托管）
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AccountStatus 托管账户状态
type AccountStatus string

const (
	AccountStatusOpen   AccountStatus = "OPEN"   // 正常
	AccountStatusClosed AccountStatus = "CLOSED" // 已关闭
)

// TransactionKind 托管流水类型
type TransactionKind string

const (
	TransactionKindDeposit TransactionKind = "DEPOSIT" // 入金
	TransactionKindRelease TransactionKind = "RELEASE" // 放款
	TransactionKindRefund  TransactionKind = "REFUND"  // 退款
)

// TransactionStatus 托管流水状态
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"   // 待审批
	TransactionStatusCompleted TransactionStatus = "COMPLETED" // 已完成
)

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient escrow balance")
	ErrNotPending          = errors.New("transaction is not pending")
	ErrTypeMismatch        = errors.New("transaction kind cannot be approved")
	ErrAccountClosed       = errors.New("escrow account is closed")
	ErrAccountNotEmpty     = errors.New("escrow account balance is not zero")
	ErrApprovalDenied      = errors.New("approval denied by authorization service")
	ErrTransactionNotFound = errors.New("escrow transaction not found")
)

// Account 托管账户聚合根，每个交易(Deal)恰好一个，首次访问时惰性创建。
// 余额只能通过已完成的托管流水变动，永不为负。
type Account struct {
	gorm.Model
	AccountID string          `gorm:"column:account_id;type:varchar(32);uniqueIndex;not null" json:"account_id"`
	DealID    string          `gorm:"column:deal_id;type:varchar(64);uniqueIndex;not null" json:"deal_id"`
	Balance   decimal.Decimal `gorm:"column:balance;type:decimal(32,18);not null;default:0" json:"balance"`
	Status    AccountStatus   `gorm:"column:status;type:varchar(10);not null;default:'OPEN'" json:"status"`

	// 领域事件
	domainEvents []DomainEvent `gorm:"-"`
}

// TableName 表名
func (Account) TableName() string {
	return "escrow_accounts"
}

// Transaction 托管流水，只追加；COMPLETED 之后永不再变更。
// DEPOSIT 创建即完成；RELEASE/REFUND 创建为 PENDING，仅能经审批转为 COMPLETED。
type Transaction struct {
	gorm.Model
	TransactionID string            `gorm:"column:transaction_id;type:varchar(32);uniqueIndex;not null" json:"transaction_id"`
	AccountID     string            `gorm:"column:account_id;type:varchar(32);index;not null" json:"account_id"`
	DealID        string            `gorm:"column:deal_id;type:varchar(64);index;not null" json:"deal_id"`
	Kind          TransactionKind   `gorm:"column:kind;type:varchar(10);not null" json:"kind"`
	Amount        decimal.Decimal   `gorm:"column:amount;type:decimal(32,18);not null" json:"amount"`
	Status        TransactionStatus `gorm:"column:status;type:varchar(10);not null" json:"status"`
	RequestedBy   string            `gorm:"column:requested_by;type:varchar(64);not null" json:"requested_by"`
	ApprovedBy    string            `gorm:"column:approved_by;type:varchar(64)" json:"approved_by"`
	RequestedAt   time.Time         `gorm:"column:requested_at;not null" json:"requested_at"`
	CompletedAt   *time.Time        `gorm:"column:completed_at" json:"completed_at"`
}

// TableName 表名
func (Transaction) TableName() string {
	return "escrow_transactions"
}

// IsPending 是否待审批
func (t *Transaction) IsPending() bool {
	return t.Status == TransactionStatusPending
}

// NewAccount 创建托管账户，余额为零。
func NewAccount(accountID, dealID string) *Account {
	return &Account{
		AccountID: accountID,
		DealID:    dealID,
		Balance:   decimal.Zero,
		Status:    AccountStatusOpen,
	}
}

// Deposit 入金：立即完成，余额增加。
func (a *Account) Deposit(transactionID string, amount decimal.Decimal, requesterID string) (*Transaction, error) {
	if a.Status != AccountStatusOpen {
		return nil, ErrAccountClosed
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	a.Balance = a.Balance.Add(amount)

	now := time.Now()
	tx := &Transaction{
		TransactionID: transactionID,
		AccountID:     a.AccountID,
		DealID:        a.DealID,
		Kind:          TransactionKindDeposit,
		Amount:        amount,
		Status:        TransactionStatusCompleted,
		RequestedBy:   requesterID,
		RequestedAt:   now,
		CompletedAt:   &now,
	}

	a.addEvent(&DepositCompletedEvent{
		DealID:        a.DealID,
		TransactionID: transactionID,
		Amount:        amount,
		Balance:       a.Balance,
		Timestamp:     now,
	})

	return tx, nil
}

// RequestRelease 申请放款：创建 PENDING 流水，余额不变。
func (a *Account) RequestRelease(transactionID string, amount decimal.Decimal, requesterID string) (*Transaction, error) {
	return a.requestOutgoing(transactionID, TransactionKindRelease, amount, requesterID)
}

// RequestRefund 申请退款：创建 PENDING 流水，余额不变。
func (a *Account) RequestRefund(transactionID string, amount decimal.Decimal, requesterID string) (*Transaction, error) {
	return a.requestOutgoing(transactionID, TransactionKindRefund, amount, requesterID)
}

func (a *Account) requestOutgoing(transactionID string, kind TransactionKind, amount decimal.Decimal, requesterID string) (*Transaction, error) {
	if a.Status != AccountStatusOpen {
		return nil, ErrAccountClosed
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if amount.GreaterThan(a.Balance) {
		return nil, ErrInsufficientBalance
	}

	now := time.Now()
	tx := &Transaction{
		TransactionID: transactionID,
		AccountID:     a.AccountID,
		DealID:        a.DealID,
		Kind:          kind,
		Amount:        amount,
		Status:        TransactionStatusPending,
		RequestedBy:   requesterID,
		RequestedAt:   now,
	}

	a.addEvent(&OutgoingRequestedEvent{
		DealID:        a.DealID,
		TransactionID: transactionID,
		Kind:          kind,
		Amount:        amount,
		RequestedBy:   requesterID,
		Timestamp:     now,
	})

	return tx, nil
}

// Approve 审批 PENDING 的放款/退款：扣减余额并将流水置为 COMPLETED。
// 余额在审批时再次校验，申请之后的其他出账可能已经消耗了余额。
func (a *Account) Approve(tx *Transaction, approverID string) error {
	if tx.Status != TransactionStatusPending {
		return ErrNotPending
	}
	if tx.Kind != TransactionKindRelease && tx.Kind != TransactionKindRefund {
		return ErrTypeMismatch
	}
	if tx.Amount.GreaterThan(a.Balance) {
		return ErrInsufficientBalance
	}

	a.Balance = a.Balance.Sub(tx.Amount)

	now := time.Now()
	tx.Status = TransactionStatusCompleted
	tx.ApprovedBy = approverID
	tx.CompletedAt = &now

	a.addEvent(&TransactionApprovedEvent{
		DealID:        a.DealID,
		TransactionID: tx.TransactionID,
		Kind:          tx.Kind,
		Amount:        tx.Amount,
		Balance:       a.Balance,
		ApprovedBy:    approverID,
		Timestamp:     now,
	})

	return nil
}

// Close 关闭账户，仅在余额为零时允许。
func (a *Account) Close() error {
	if a.Status != AccountStatusOpen {
		return ErrAccountClosed
	}
	if !a.Balance.IsZero() {
		return ErrAccountNotEmpty
	}
	a.Status = AccountStatusClosed
	return nil
}

func (a *Account) addEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

// GetDomainEvents 返回待发布的领域事件
func (a *Account) GetDomainEvents() []DomainEvent {
	return a.domainEvents
}

// ClearDomainEvents 清空领域事件
func (a *Account) ClearDomainEvents() {
	a.domainEvents = nil
}
