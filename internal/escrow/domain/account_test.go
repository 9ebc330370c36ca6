package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestAccountDeposit(t *testing.T) {
	account := NewAccount("ESC-1", "DEAL-1")

	tx, err := account.Deposit("ETX-1", dec("1000"), "investor-1")
	require.NoError(t, err)

	assert.Equal(t, TransactionStatusCompleted, tx.Status)
	assert.Equal(t, TransactionKindDeposit, tx.Kind)
	assert.NotNil(t, tx.CompletedAt)
	assert.True(t, account.Balance.Equal(dec("1000")))
	assert.Len(t, account.GetDomainEvents(), 1)
}

func TestAccountDepositRejectsNonPositiveAmount(t *testing.T) {
	account := NewAccount("ESC-1", "DEAL-1")

	_, err := account.Deposit("ETX-1", decimal.Zero, "investor-1")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = account.Deposit("ETX-2", dec("-5"), "investor-1")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.True(t, account.Balance.IsZero())
}

func TestRequestReleaseLeavesBalanceUnchanged(t *testing.T) {
	account := NewAccount("ESC-1", "DEAL-1")
	_, err := account.Deposit("ETX-1", dec("1000"), "investor-1")
	require.NoError(t, err)

	tx, err := account.RequestRelease("ETX-2", dec("400"), "ops-1")
	require.NoError(t, err)

	assert.Equal(t, TransactionStatusPending, tx.Status)
	assert.True(t, account.Balance.Equal(dec("1000")))
}

func TestRequestOutgoingRejectsOverBalance(t *testing.T) {
	account := NewAccount("ESC-1", "DEAL-1")
	_, err := account.Deposit("ETX-1", dec("100"), "investor-1")
	require.NoError(t, err)

	_, err = account.RequestRelease("ETX-2", dec("101"), "ops-1")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = account.RequestRefund("ETX-3", dec("500"), "ops-1")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

// 入金 1000，审批放款 400 后余额 600，再申请放款 700 必须失败。
func TestReleaseLifecycle(t *testing.T) {
	account := NewAccount("ESC-1", "DEAL-1")
	_, err := account.Deposit("ETX-1", dec("1000"), "investor-1")
	require.NoError(t, err)

	release, err := account.RequestRelease("ETX-2", dec("400"), "ops-1")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(dec("1000")))

	require.NoError(t, account.Approve(release, "admin-1"))
	assert.Equal(t, TransactionStatusCompleted, release.Status)
	assert.Equal(t, "admin-1", release.ApprovedBy)
	assert.True(t, account.Balance.Equal(dec("600")))

	_, err = account.RequestRelease("ETX-3", dec("700"), "ops-1")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestApproveIsIdempotentOnCompletedTransaction(t *testing.T) {
	account := NewAccount("ESC-1", "DEAL-1")
	_, err := account.Deposit("ETX-1", dec("1000"), "investor-1")
	require.NoError(t, err)

	release, err := account.RequestRelease("ETX-2", dec("400"), "ops-1")
	require.NoError(t, err)
	require.NoError(t, account.Approve(release, "admin-1"))

	err = account.Approve(release, "admin-2")
	assert.ErrorIs(t, err, ErrNotPending)
	assert.Equal(t, "admin-1", release.ApprovedBy)
	assert.True(t, account.Balance.Equal(dec("600")))
}

func TestApproveRejectsDepositKind(t *testing.T) {
	account := NewAccount("ESC-1", "DEAL-1")
	deposit, err := account.Deposit("ETX-1", dec("100"), "investor-1")
	require.NoError(t, err)

	// 入金流水从不处于 PENDING，人为构造以覆盖类型校验
	deposit.Status = TransactionStatusPending
	err = account.Approve(deposit, "admin-1")
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestApproveRechecksBalance(t *testing.T) {
	account := NewAccount("ESC-1", "DEAL-1")
	_, err := account.Deposit("ETX-1", dec("1000"), "investor-1")
	require.NoError(t, err)

	first, err := account.RequestRelease("ETX-2", dec("800"), "ops-1")
	require.NoError(t, err)
	second, err := account.RequestRelease("ETX-3", dec("800"), "ops-1")
	require.NoError(t, err)

	require.NoError(t, account.Approve(first, "admin-1"))
	assert.True(t, account.Balance.Equal(dec("200")))

	// 第二笔申请时余额足够，但审批时已被第一笔消耗
	err = account.Approve(second, "admin-1")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, TransactionStatusPending, second.Status)
	assert.True(t, account.Balance.Equal(dec("200")))
}

func TestCloseRequiresZeroBalance(t *testing.T) {
	account := NewAccount("ESC-1", "DEAL-1")
	_, err := account.Deposit("ETX-1", dec("100"), "investor-1")
	require.NoError(t, err)

	assert.ErrorIs(t, account.Close(), ErrAccountNotEmpty)

	release, err := account.RequestRefund("ETX-2", dec("100"), "ops-1")
	require.NoError(t, err)
	require.NoError(t, account.Approve(release, "admin-1"))

	require.NoError(t, account.Close())
	assert.Equal(t, AccountStatusClosed, account.Status)

	_, err = account.Deposit("ETX-3", dec("1"), "investor-1")
	assert.ErrorIs(t, err, ErrAccountClosed)
}
