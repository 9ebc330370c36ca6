package application

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/investmarket/internal/escrow/domain"
)

// fakeStore 内存仓储，Save 存副本、Get 取副本，事务失败时整体回滚。
type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
	txs      map[string]domain.Transaction
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: make(map[string]domain.Account),
		txs:      make(map[string]domain.Transaction),
	}
}

func (s *fakeStore) snapshot() (map[string]domain.Account, map[string]domain.Transaction) {
	accounts := make(map[string]domain.Account, len(s.accounts))
	for k, v := range s.accounts {
		accounts[k] = v
	}
	txs := make(map[string]domain.Transaction, len(s.txs))
	for k, v := range s.txs {
		txs[k] = v
	}
	return accounts, txs
}

type fakeAccountRepo struct {
	store *fakeStore
}

func (r *fakeAccountRepo) Save(_ context.Context, account *domain.Account) error {
	copied := *account
	copied.ClearDomainEvents()
	r.store.accounts[account.DealID] = copied
	return nil
}

func (r *fakeAccountRepo) GetByDeal(_ context.Context, dealID string) (*domain.Account, error) {
	account, ok := r.store.accounts[dealID]
	if !ok {
		return nil, nil
	}
	copied := account
	return &copied, nil
}

func (r *fakeAccountRepo) GetByDealForUpdate(ctx context.Context, dealID string) (*domain.Account, error) {
	return r.GetByDeal(ctx, dealID)
}

func (r *fakeAccountRepo) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	accounts, txs := r.store.snapshot()
	if err := fn(ctx); err != nil {
		r.store.accounts = accounts
		r.store.txs = txs
		return err
	}
	return nil
}

type fakeTransactionRepo struct {
	store *fakeStore
}

func (r *fakeTransactionRepo) Save(_ context.Context, tx *domain.Transaction) error {
	r.store.txs[tx.TransactionID] = *tx
	return nil
}

func (r *fakeTransactionRepo) Get(_ context.Context, transactionID string) (*domain.Transaction, error) {
	tx, ok := r.store.txs[transactionID]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	copied := tx
	return &copied, nil
}

func (r *fakeTransactionRepo) GetForUpdate(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return r.Get(ctx, transactionID)
}

func (r *fakeTransactionRepo) ListByDeal(_ context.Context, dealID string, kind *domain.TransactionKind, _, _ int) ([]*domain.Transaction, int64, error) {
	var out []*domain.Transaction
	for _, tx := range r.store.txs {
		if tx.DealID != dealID {
			continue
		}
		if kind != nil && tx.Kind != *kind {
			continue
		}
		copied := tx
		out = append(out, &copied)
	}
	return out, int64(len(out)), nil
}

type fakeAuthorizer struct {
	allow bool
}

func (a *fakeAuthorizer) CanApprove(_ context.Context, _, _ string) (bool, error) {
	return a.allow, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *fakePublisher) Publish(_ context.Context, topic, _ string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *fakePublisher) PublishInTx(_ context.Context, _ any, topic, _ string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func newTestService(allow bool) (*CommandService, *fakeStore, *fakePublisher) {
	store := newFakeStore()
	publisher := &fakePublisher{}
	svc := NewCommandService(
		&fakeAccountRepo{store: store},
		&fakeTransactionRepo{store: store},
		&fakeAuthorizer{allow: allow},
		publisher,
		slog.Default(),
	)
	return svc, store, publisher
}

func TestDepositCreatesAccountAndCompletes(t *testing.T) {
	svc, store, publisher := newTestService(true)
	ctx := context.Background()

	tx, err := svc.Deposit(ctx, DepositCommand{DealID: "DEAL-1", Amount: dec("1000"), RequesterID: "investor-1"})
	require.NoError(t, err)

	assert.Equal(t, domain.TransactionStatusCompleted, tx.Status)
	account := store.accounts["DEAL-1"]
	assert.True(t, account.Balance.Equal(dec("1000")))
	assert.Contains(t, publisher.topics, domain.DepositCompletedEventType)
}

func TestApproveMovesBalance(t *testing.T) {
	svc, store, _ := newTestService(true)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, DepositCommand{DealID: "DEAL-1", Amount: dec("1000"), RequesterID: "investor-1"})
	require.NoError(t, err)
	release, err := svc.RequestRelease(ctx, RequestCommand{DealID: "DEAL-1", Amount: dec("400"), RequesterID: "ops-1"})
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, release.TransactionID, "admin-1")
	require.NoError(t, err)

	assert.Equal(t, domain.TransactionStatusCompleted, approved.Status)
	assert.True(t, store.accounts["DEAL-1"].Balance.Equal(dec("600")))
}

func TestApproveDeniedByAuthorizer(t *testing.T) {
	svc, store, _ := newTestService(false)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, DepositCommand{DealID: "DEAL-1", Amount: dec("1000"), RequesterID: "investor-1"})
	require.NoError(t, err)
	release, err := svc.RequestRelease(ctx, RequestCommand{DealID: "DEAL-1", Amount: dec("400"), RequesterID: "ops-1"})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, release.TransactionID, "admin-1")
	assert.ErrorIs(t, err, domain.ErrApprovalDenied)

	assert.True(t, store.accounts["DEAL-1"].Balance.Equal(dec("1000")))
	assert.Equal(t, domain.TransactionStatusPending, store.txs[release.TransactionID].Status)
}

func TestApproveCompletedTransactionHasNoSideEffects(t *testing.T) {
	svc, store, _ := newTestService(true)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, DepositCommand{DealID: "DEAL-1", Amount: dec("1000"), RequesterID: "investor-1"})
	require.NoError(t, err)
	release, err := svc.RequestRelease(ctx, RequestCommand{DealID: "DEAL-1", Amount: dec("400"), RequesterID: "ops-1"})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, release.TransactionID, "admin-1")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, release.TransactionID, "admin-2")
	assert.ErrorIs(t, err, domain.ErrNotPending)
	assert.True(t, store.accounts["DEAL-1"].Balance.Equal(dec("600")))
	assert.Equal(t, "admin-1", store.txs[release.TransactionID].ApprovedBy)
}

func TestApproveExceedingBalanceRollsBack(t *testing.T) {
	svc, store, _ := newTestService(true)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, DepositCommand{DealID: "DEAL-1", Amount: dec("1000"), RequesterID: "investor-1"})
	require.NoError(t, err)

	first, err := svc.RequestRelease(ctx, RequestCommand{DealID: "DEAL-1", Amount: dec("800"), RequesterID: "ops-1"})
	require.NoError(t, err)
	second, err := svc.RequestRelease(ctx, RequestCommand{DealID: "DEAL-1", Amount: dec("800"), RequesterID: "ops-1"})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, first.TransactionID, "admin-1")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, second.TransactionID, "admin-1")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	assert.True(t, store.accounts["DEAL-1"].Balance.Equal(dec("200")))
	assert.Equal(t, domain.TransactionStatusPending, store.txs[second.TransactionID].Status)
}

func TestCloseAccountRejectsNonZeroBalance(t *testing.T) {
	svc, _, _ := newTestService(true)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, DepositCommand{DealID: "DEAL-1", Amount: dec("10"), RequesterID: "investor-1"})
	require.NoError(t, err)

	err = svc.CloseAccount(ctx, "DEAL-1")
	assert.ErrorIs(t, err, domain.ErrAccountNotEmpty)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
