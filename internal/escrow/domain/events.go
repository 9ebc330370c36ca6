// Package domain 托管结算服务领域事件
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// 事件主题，同时作为 Kafka topic 使用。
const (
	DepositCompletedEventType    = "escrow.deposit_completed"
	OutgoingRequestedEventType   = "escrow.outgoing_requested"
	TransactionApprovedEventType = "escrow.transaction_approved"
)

type DomainEvent interface {
	EventName() string
	OccurredAt() time.Time
}

// DepositCompletedEvent 入金完成事件
type DepositCompletedEvent struct {
	DealID        string          `json:"deal_id"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Balance       decimal.Decimal `json:"balance"`
	Timestamp     time.Time       `json:"timestamp"`
}

func (e *DepositCompletedEvent) EventName() string     { return DepositCompletedEventType }
func (e *DepositCompletedEvent) OccurredAt() time.Time { return e.Timestamp }

// OutgoingRequestedEvent 放款/退款申请事件
type OutgoingRequestedEvent struct {
	DealID        string          `json:"deal_id"`
	TransactionID string          `json:"transaction_id"`
	Kind          TransactionKind `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	RequestedBy   string          `json:"requested_by"`
	Timestamp     time.Time       `json:"timestamp"`
}

func (e *OutgoingRequestedEvent) EventName() string     { return OutgoingRequestedEventType }
func (e *OutgoingRequestedEvent) OccurredAt() time.Time { return e.Timestamp }

// TransactionApprovedEvent 审批通过事件，余额已扣减。
type TransactionApprovedEvent struct {
	DealID        string          `json:"deal_id"`
	TransactionID string          `json:"transaction_id"`
	Kind          TransactionKind `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	Balance       decimal.Decimal `json:"balance"`
	ApprovedBy    string          `json:"approved_by"`
	Timestamp     time.Time       `json:"timestamp"`
}

func (e *TransactionApprovedEvent) EventName() string     { return TransactionApprovedEventType }
func (e *TransactionApprovedEvent) OccurredAt() time.Time { return e.Timestamp }
