package domain

import (
	"testing"
	"time"

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

func newTestListing(t *testing.T) *Listing {
	t.Helper()
	listing, err := NewListing("LST-1", "DEAL-1", "seller-1", dec("100"), dec("10"), dec("5"), nil)
	require.NoError(t, err)
	listing.ClearDomainEvents()
	return listing
}

func TestNewListingValidation(t *testing.T) {
	_, err := NewListing("LST-1", "DEAL-1", "seller-1", decimal.Zero, dec("10"), dec("1"), nil)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = NewListing("LST-1", "DEAL-1", "seller-1", dec("100"), decimal.Zero, dec("1"), nil)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = NewListing("LST-1", "DEAL-1", "seller-1", dec("100"), dec("10"), dec("101"), nil)
	assert.ErrorIs(t, err, ErrInvalidMinimum)

	listing, err := NewListing("LST-1", "DEAL-1", "seller-1", dec("100"), dec("10"), dec("5"), nil)
	require.NoError(t, err)
	assert.Equal(t, ListingStatusActive, listing.Status)
	assert.True(t, listing.QuantityAvailable.Equal(dec("100")))
	assert.Len(t, listing.GetDomainEvents(), 1)
}

func TestReserveDecreasesAvailableMonotonically(t *testing.T) {
	listing := newTestListing(t)
	now := time.Now()

	require.NoError(t, listing.Reserve(dec("30"), now))
	assert.True(t, listing.QuantityAvailable.Equal(dec("70")))
	assert.True(t, listing.UnitsReserved.Equal(dec("30")))

	require.NoError(t, listing.Reserve(dec("70"), now))
	assert.True(t, listing.QuantityAvailable.IsZero())
	assert.Equal(t, ListingStatusSold, listing.Status)

	err := listing.Reserve(dec("1"), now)
	assert.ErrorIs(t, err, ErrListingNotActive)
}

func TestReserveBelowMinimum(t *testing.T) {
	listing := newTestListing(t)
	now := time.Now()

	err := listing.Reserve(dec("4"), now)
	assert.ErrorIs(t, err, ErrBelowMinimum)
}

// 最小成交单位严格生效：即使只剩低于最小单位的尾量，低于最小单位的买入也被拒绝。
func TestReserveRemainderStillBelowMinimum(t *testing.T) {
	listing := newTestListing(t)
	now := time.Now()

	require.NoError(t, listing.Reserve(dec("97"), now))
	assert.True(t, listing.QuantityAvailable.Equal(dec("3")))

	err := listing.Reserve(dec("3"), now)
	assert.ErrorIs(t, err, ErrBelowMinimum)
	assert.True(t, listing.QuantityAvailable.Equal(dec("3")))
	assert.Equal(t, ListingStatusActive, listing.Status)
}

func TestReserveOverAvailable(t *testing.T) {
	listing := newTestListing(t)
	now := time.Now()

	err := listing.Reserve(dec("101"), now)
	assert.ErrorIs(t, err, ErrInsufficientQuantity)
	assert.True(t, listing.QuantityAvailable.Equal(dec("100")))
}

func TestCancelRequiresNoReservations(t *testing.T) {
	listing := newTestListing(t)
	now := time.Now()

	require.NoError(t, listing.Reserve(dec("10"), now))
	assert.ErrorIs(t, listing.Cancel("seller-1"), ErrListingHasReservations)

	require.NoError(t, listing.Settle(dec("10")))
	assert.ErrorIs(t, listing.Cancel("someone-else"), ErrNotSeller)
	require.NoError(t, listing.Cancel("seller-1"))
	assert.Equal(t, ListingStatusCancelled, listing.Status)
}

func TestRestoreReturnsReservedQuantity(t *testing.T) {
	listing := newTestListing(t)
	now := time.Now()

	require.NoError(t, listing.Reserve(dec("100"), now))
	assert.Equal(t, ListingStatusSold, listing.Status)

	require.NoError(t, listing.Restore(dec("100")))
	assert.Equal(t, ListingStatusActive, listing.Status)
	assert.True(t, listing.QuantityAvailable.Equal(dec("100")))
	assert.True(t, listing.UnitsReserved.IsZero())

	assert.ErrorIs(t, listing.Restore(dec("1")), ErrNothingToRestore)
}

func TestExpiry(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	listing, err := NewListing("LST-1", "DEAL-1", "seller-1", dec("100"), dec("10"), dec("5"), &expires)
	require.NoError(t, err)

	assert.False(t, listing.IsExpired(time.Now()))
	require.NoError(t, listing.Reserve(dec("10"), time.Now()))

	later := expires.Add(time.Minute)
	assert.True(t, listing.IsExpired(later))
	assert.ErrorIs(t, listing.Reserve(dec("10"), later), ErrListingExpired)

	assert.True(t, listing.Expire(later))
	assert.Equal(t, ListingStatusExpired, listing.Status)
	assert.False(t, listing.Expire(later))
}

func TestUpdateOnlyWhenActive(t *testing.T) {
	listing := newTestListing(t)

	require.NoError(t, listing.Update(dec("12"), dec("10"), dec("100")))
	assert.True(t, listing.PricePerUnit.Equal(dec("12")))

	assert.ErrorIs(t, listing.Update(decimal.Zero, dec("10"), dec("100")), ErrInvalidPrice)

	require.NoError(t, listing.Cancel("seller-1"))
	assert.ErrorIs(t, listing.Update(dec("15"), dec("10"), dec("100")), ErrListingNotActive)
}

func TestUpdateAdjustsQuantityDownwardOnly(t *testing.T) {
	listing := newTestListing(t)
	now := time.Now()

	require.NoError(t, listing.Update(dec("10"), dec("5"), dec("60")))
	assert.True(t, listing.QuantityAvailable.Equal(dec("60")))
	assert.True(t, listing.QuantityListed.Equal(dec("100")))

	// 只允许下调
	assert.ErrorIs(t, listing.Update(dec("10"), dec("5"), dec("61")), ErrInvalidQuantity)
	assert.ErrorIs(t, listing.Update(dec("10"), dec("5"), dec("-1")), ErrInvalidQuantity)
	assert.True(t, listing.QuantityAvailable.Equal(dec("60")))

	// 已有预留不受影响
	require.NoError(t, listing.Reserve(dec("10"), now))
	assert.True(t, listing.QuantityAvailable.Equal(dec("50")))
	assert.True(t, listing.UnitsReserved.Equal(dec("10")))

	// 降到零转为 SOLD
	require.NoError(t, listing.Update(dec("10"), dec("5"), decimal.Zero))
	assert.Equal(t, ListingStatusSold, listing.Status)
	assert.True(t, listing.UnitsReserved.Equal(dec("10")))
	assert.ErrorIs(t, listing.Reserve(dec("5"), now), ErrListingNotActive)
}
