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

func TestCreditAndDebit(t *testing.T) {
	position := NewPosition("DEAL-1", "holder-1")
	require.True(t, position.Quantity.IsZero())

	require.NoError(t, position.Credit(dec("100")))
	assert.True(t, position.Quantity.Equal(dec("100")))
	assert.Equal(t, PositionStatusActive, position.Status)

	require.NoError(t, position.Debit(dec("40")))
	assert.True(t, position.Quantity.Equal(dec("60")))
}

func TestDebitNeverGoesNegative(t *testing.T) {
	position := NewPosition("DEAL-1", "holder-1")
	require.NoError(t, position.Credit(dec("10")))

	err := position.Debit(dec("10.000000000000000001"))
	assert.ErrorIs(t, err, ErrInsufficientQuantity)
	assert.True(t, position.Quantity.Equal(dec("10")))

	require.NoError(t, position.Debit(dec("10")))
	assert.True(t, position.Quantity.IsZero())
}

func TestCreditRejectsNonPositive(t *testing.T) {
	position := NewPosition("DEAL-1", "holder-1")

	assert.ErrorIs(t, position.Credit(decimal.Zero), ErrInvalidQuantity)
	assert.ErrorIs(t, position.Credit(dec("-1")), ErrInvalidQuantity)
	assert.ErrorIs(t, position.Debit(decimal.Zero), ErrInvalidQuantity)
}

func TestToSnapshot(t *testing.T) {
	position := NewPosition("DEAL-1", "holder-1")
	require.NoError(t, position.Credit(dec("25")))

	snapshot := position.ToSnapshot()
	assert.Equal(t, "DEAL-1", snapshot.DealID)
	assert.Equal(t, "holder-1", snapshot.HolderID)
	assert.True(t, snapshot.Quantity.Equal(dec("25")))
	assert.Equal(t, PositionStatusActive, snapshot.Status)
}
