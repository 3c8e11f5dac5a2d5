package closure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lojapos/backend/internal/domain"
	"lojapos/backend/internal/store"
	"lojapos/backend/internal/store/memory"
)

var saoPaulo = time.FixedZone("BRT", -3*60*60)

func at(day int, hour int) time.Time {
	return time.Date(2025, 3, day, hour, 0, 0, 0, saoPaulo)
}

func TestAggregateSameDayTotals(t *testing.T) {
	sales := []domain.Sale{
		{ID: "s1", CreatedAt: at(10, 10), TotalCents: 30000, PaymentMethod: domain.PaymentCash},
		{ID: "s2", CreatedAt: at(10, 15), TotalCents: 20000, PaymentMethod: domain.PaymentPix},
		{ID: "s3", CreatedAt: at(9, 15), TotalCents: 99900, PaymentMethod: domain.PaymentCard},
	}
	gifts := []domain.Gift{
		{ID: "g1", CreatedAt: at(10, 11), TotalValueCents: 6000},
		{ID: "g2", CreatedAt: at(11, 11), TotalValueCents: 12000},
	}
	adjustments := []domain.CashAdjustment{
		{ID: "a1", CreatedAt: at(10, 18), Kind: domain.AdjustmentShortage, AmountCents: 1000},
	}
	attendances := []domain.Attendance{
		{ID: "t1", CreatedAt: at(10, 9)},
		{ID: "t2", CreatedAt: at(10, 16), WasSale: true},
	}

	totals := Aggregate("2025-03-10", saoPaulo, sales, gifts, adjustments, attendances)

	assert.Equal(t, int64(50000), totals.SalesTotalCents)
	assert.Equal(t, 2, totals.SalesCount)
	assert.Equal(t, int64(6000), totals.GiftsTotalCents)
	assert.Equal(t, 1, totals.GiftsCount)
	assert.Equal(t, int64(-1000), totals.AdjustmentsNetCents)
	assert.Equal(t, 2, totals.AttendancesCount)
	assert.Equal(t, domain.PaymentBreakdown{
		domain.PaymentCash:        30000,
		domain.PaymentPix:         20000,
		domain.PaymentCard:        0,
		domain.PaymentStoreCredit: 0,
		domain.PaymentOther:       0,
	}, totals.PaymentBreakdown)
	assert.Equal(t, totals.SalesTotalCents, totals.PaymentBreakdown.Total())
}

func TestAggregateUsesStoreTimezone(t *testing.T) {
	// 01:30 UTC on the 11th is still the 10th in Sao Paulo
	late := time.Date(2025, 3, 11, 1, 30, 0, 0, time.UTC)
	sales := []domain.Sale{{ID: "s1", CreatedAt: late, TotalCents: 1000, PaymentMethod: domain.PaymentCash}}

	assert.Equal(t, 1, Aggregate("2025-03-10", saoPaulo, sales, nil, nil, nil).SalesCount)
	assert.Equal(t, 0, Aggregate("2025-03-11", saoPaulo, sales, nil, nil, nil).SalesCount)
	assert.Equal(t, 1, Aggregate("2025-03-11", time.UTC, sales, nil, nil, nil).SalesCount)
}

func TestAggregateSurplusAndShortageNet(t *testing.T) {
	adjustments := []domain.CashAdjustment{
		{CreatedAt: at(10, 9), Kind: domain.AdjustmentSurplus, AmountCents: 2500},
		{CreatedAt: at(10, 10), Kind: domain.AdjustmentShortage, AmountCents: 1000},
		{CreatedAt: at(10, 11), Kind: domain.AdjustmentSurplus, AmountCents: 500},
	}
	totals := Aggregate("2025-03-10", saoPaulo, nil, nil, adjustments, nil)
	assert.Equal(t, int64(2000), totals.AdjustmentsNetCents)
	assert.Equal(t, int64(0), totals.PaymentBreakdown.Total())
}

func seedLedger(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	repo := memory.New(domain.Product{ID: "p1", Name: "Vestido", PriceCents: 10000, Stock: 20})

	for _, sale := range []domain.Sale{
		{CreatedAt: at(10, 10), TotalCents: 30000, PaymentMethod: domain.PaymentCash, Items: []domain.SaleLine{{ProductID: "p1", Quantity: 3, PriceAtSaleCents: 10000}}},
		{CreatedAt: at(10, 14), TotalCents: 20000, PaymentMethod: domain.PaymentPix, Items: []domain.SaleLine{{ProductID: "p1", Quantity: 2, PriceAtSaleCents: 10000}}},
	} {
		sale.CustomerID = domain.UnidentifiedCustomerID
		_, err := repo.CommitSale(ctx, sale)
		require.NoError(t, err)
	}
	_, err := repo.CommitGift(ctx, domain.Gift{
		CreatedAt:       at(10, 12),
		RecipientName:   "Influencer",
		AuthorizedBy:    "Proprietária",
		Items:           []domain.CartLine{{Product: domain.Product{ID: "p1"}, Quantity: 1, UnitPriceCents: 6000, OriginalUnitPriceCents: 6000}},
		TotalValueCents: 6000,
	}, domain.AuditLog{Action: domain.AuditPartnershipRegistered})
	require.NoError(t, err)
	_, err = repo.CreateAdjustment(ctx, domain.CashAdjustment{
		CreatedAt:     at(10, 18),
		Kind:          domain.AdjustmentShortage,
		AmountCents:   1000,
		Justification: "troco errado",
	}, domain.AuditLog{Action: domain.AuditCashAdjustment})
	require.NoError(t, err)
	return repo
}

func TestCloseRegisterSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := seedLedger(t)
	agg := NewAggregator(repo, saoPaulo)
	agg.now = func() time.Time { return at(10, 20).UTC() }

	closure, err := agg.CloseRegister(ctx, "2025-03-10", domain.Actor{Username: "owner", DisplayName: "Proprietária", Role: domain.RoleOwner})
	require.NoError(t, err)
	assert.NotEmpty(t, closure.ID)
	assert.Equal(t, "2025-03-10", closure.Date)
	assert.Equal(t, "Proprietária", closure.ClosedBy)
	assert.Equal(t, int64(50000), closure.SalesTotalCents)
	assert.Equal(t, 2, closure.SalesCount)
	assert.Equal(t, int64(30000), closure.PaymentBreakdown[domain.PaymentCash])
	assert.Equal(t, int64(20000), closure.PaymentBreakdown[domain.PaymentPix])
	assert.Equal(t, int64(0), closure.PaymentBreakdown[domain.PaymentCard])
	assert.Equal(t, int64(6000), closure.GiftsTotalCents)
	assert.Equal(t, int64(-1000), closure.AdjustmentsNetCents)

	sales, err := repo.ListSales(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, sales, 2, "closing never touches source records")
}

// Closing the same day twice keeps both snapshots; there is no
// one-closure-per-day guard.
func TestCloseRegisterTwiceAppendsSecondSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := seedLedger(t)
	agg := NewAggregator(repo, saoPaulo)
	actor := domain.Actor{Username: "owner", Role: domain.RoleOwner}

	first, err := agg.CloseRegister(ctx, "2025-03-10", actor)
	require.NoError(t, err)
	second, err := agg.CloseRegister(ctx, "2025-03-10", actor)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	closures, err := repo.ListClosures(ctx, "2025-03-10")
	require.NoError(t, err)
	assert.Len(t, closures, 2)
}

func TestCloseRegisterRejectsBadDate(t *testing.T) {
	ctx := context.Background()
	agg := NewAggregator(memory.New(), saoPaulo)

	_, err := agg.CloseRegister(ctx, "", domain.Actor{Username: "owner"})
	require.ErrorIs(t, err, store.ErrValidation)
	_, err = agg.CloseRegister(ctx, "10/03/2025", domain.Actor{Username: "owner"})
	require.ErrorIs(t, err, store.ErrValidation)
}

func TestPreviewDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	repo := seedLedger(t)
	agg := NewAggregator(repo, saoPaulo)

	preview, err := agg.Preview(ctx, "2025-03-10")
	require.NoError(t, err)
	assert.Empty(t, preview.ID)
	assert.Equal(t, int64(50000), preview.SalesTotalCents)

	closures, err := repo.ListClosures(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, closures)
}

func TestToday(t *testing.T) {
	agg := NewAggregator(memory.New(), saoPaulo)
	agg.now = func() time.Time { return time.Date(2025, 3, 11, 2, 0, 0, 0, time.UTC) }
	assert.Equal(t, "2025-03-10", agg.Today())
}
