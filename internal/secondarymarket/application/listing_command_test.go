package application

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	positiondomain "github.com/wyfcoding/investmarket/internal/position/domain"
	"github.com/wyfcoding/investmarket/internal/secondarymarket/domain"
)

type fakeAuthorizer struct {
	allow bool
}

func (a *fakeAuthorizer) CanActFor(_ context.Context, _, _ string) (bool, error) {
	return a.allow, nil
}

type listingFixture struct {
	svc   *ListingCommandService
	trade *TradeCommandService
	store *marketStore
}

func newListingFixture(t *testing.T, allow bool) *listingFixture {
	t.Helper()
	store := newMarketStore()
	pub := &fakePublisher{}
	listingRepo := &fakeListingRepo{store: store}
	tradeRepo := &fakeTradeRepo{store: store}
	positionRepo := &fakePositionRepo{store: store}

	svc := NewListingCommandService(listingRepo, tradeRepo, positionRepo, &fakeAuthorizer{allow: allow}, pub, slog.Default())
	tradeSvc := NewTradeCommandService(listingRepo, tradeRepo, positionRepo, &fakePayments{}, pub, dec("0.01"), "USD", slog.Default())

	seller := positiondomain.NewPosition("DEAL-1", "seller-1")
	require.NoError(t, seller.Credit(dec("100")))
	store.positions[positionKey("DEAL-1", "seller-1")] = *seller

	return &listingFixture{svc: svc, trade: tradeSvc, store: store}
}

func TestCreateListingChecksPosition(t *testing.T) {
	f := newListingFixture(t, true)
	ctx := context.Background()

	listing, err := f.svc.CreateListing(ctx, CreateListingCommand{
		DealID: "DEAL-1", SellerID: "seller-1", PrincipalID: "seller-1",
		Quantity: dec("80"), PricePerUnit: dec("10"), MinimumUnits: dec("5"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusActive, listing.Status)

	_, err = f.svc.CreateListing(ctx, CreateListingCommand{
		DealID: "DEAL-1", SellerID: "seller-1", PrincipalID: "seller-1",
		Quantity: dec("101"), PricePerUnit: dec("10"), MinimumUnits: dec("5"),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientPosition)
}

func TestCreateListingRequiresAuthorization(t *testing.T) {
	f := newListingFixture(t, false)

	_, err := f.svc.CreateListing(context.Background(), CreateListingCommand{
		DealID: "DEAL-1", SellerID: "seller-1", PrincipalID: "intruder",
		Quantity: dec("10"), PricePerUnit: dec("10"), MinimumUnits: dec("1"),
	})
	assert.ErrorIs(t, err, domain.ErrNotSeller)
	assert.Empty(t, f.store.listings)
}

func TestCancelListingWithReservations(t *testing.T) {
	f := newListingFixture(t, true)
	ctx := context.Background()

	listing, err := f.svc.CreateListing(ctx, CreateListingCommand{
		DealID: "DEAL-1", SellerID: "seller-1", PrincipalID: "seller-1",
		Quantity: dec("80"), PricePerUnit: dec("10"), MinimumUnits: dec("5"),
	})
	require.NoError(t, err)

	_, err = f.trade.InitiateTrade(ctx, InitiateTradeCommand{ListingID: listing.ListingID, BuyerID: "buyer-1", Quantity: dec("10")})
	require.NoError(t, err)

	err = f.svc.CancelListing(ctx, listing.ListingID, "seller-1")
	assert.ErrorIs(t, err, domain.ErrListingHasReservations)
}

func TestRestoreQuantityOnlyOnce(t *testing.T) {
	f := newListingFixture(t, true)
	ctx := context.Background()

	listing, err := f.svc.CreateListing(ctx, CreateListingCommand{
		DealID: "DEAL-1", SellerID: "seller-1", PrincipalID: "seller-1",
		Quantity: dec("80"), PricePerUnit: dec("10"), MinimumUnits: dec("5"),
	})
	require.NoError(t, err)

	trade, err := f.trade.InitiateTrade(ctx, InitiateTradeCommand{ListingID: listing.ListingID, BuyerID: "buyer-1", Quantity: dec("10")})
	require.NoError(t, err)
	require.NoError(t, f.trade.FailTrade(ctx, trade.TradeID, "buyer withdrew"))

	require.NoError(t, f.svc.RestoreQuantity(ctx, listing.ListingID, trade.TradeID))

	stored := f.store.listings[listing.ListingID]
	assert.True(t, stored.QuantityAvailable.Equal(dec("80")))
	assert.True(t, stored.UnitsReserved.IsZero())

	err = f.svc.RestoreQuantity(ctx, listing.ListingID, trade.TradeID)
	assert.ErrorIs(t, err, domain.ErrQuantityAlreadyRestored)
	stored = f.store.listings[listing.ListingID]
	assert.True(t, stored.QuantityAvailable.Equal(dec("80")))
}

func TestRestoreQuantityRejectsPendingTrade(t *testing.T) {
	f := newListingFixture(t, true)
	ctx := context.Background()

	listing, err := f.svc.CreateListing(ctx, CreateListingCommand{
		DealID: "DEAL-1", SellerID: "seller-1", PrincipalID: "seller-1",
		Quantity: dec("80"), PricePerUnit: dec("10"), MinimumUnits: dec("5"),
	})
	require.NoError(t, err)

	trade, err := f.trade.InitiateTrade(ctx, InitiateTradeCommand{ListingID: listing.ListingID, BuyerID: "buyer-1", Quantity: dec("10")})
	require.NoError(t, err)

	err = f.svc.RestoreQuantity(ctx, listing.ListingID, trade.TradeID)
	assert.ErrorIs(t, err, domain.ErrTradeNotFailed)
}

func TestSweepExpired(t *testing.T) {
	f := newListingFixture(t, true)
	ctx := context.Background()

	expired := time.Now().Add(-time.Minute)
	listing, err := domain.NewListing("LST-OLD", "DEAL-1", "seller-1", dec("10"), dec("10"), dec("1"), &expired)
	require.NoError(t, err)
	listing.ClearDomainEvents()
	f.store.listings["LST-OLD"] = *listing

	swept, err := f.svc.SweepExpired(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)
	assert.Equal(t, domain.ListingStatusExpired, f.store.listings["LST-OLD"].Status)
}
