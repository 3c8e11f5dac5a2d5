package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lojapos/backend/internal/domain"
	"lojapos/backend/internal/store"
)

func testProduct() domain.Product {
	return domain.Product{ID: "p1", StyleCode: "ST-1", Name: "Vestido", Category: "vestidos", PriceCents: 10000, Stock: 5, Size: "M", Color: "Preto"}
}

func TestCommitSaleAppendsAndDecrementsStock(t *testing.T) {
	ctx := context.Background()
	s := New(testProduct())

	sale, err := s.CommitSale(ctx, domain.Sale{
		CustomerID:    domain.UnidentifiedCustomerID,
		Items:         []domain.SaleLine{{ProductID: "p1", Quantity: 2, PriceAtSaleCents: 10000}},
		TotalCents:    20000,
		PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sale.ID)

	product, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, product.Stock)

	customer, err := s.GetCustomer(ctx, domain.UnidentifiedCustomerID)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), customer.TotalSpentCents)
	require.NotNil(t, customer.LastPurchaseAt)
}

func TestCommitSaleInsufficientStockCommitsNothing(t *testing.T) {
	ctx := context.Background()
	s := New(testProduct())

	_, err := s.CommitSale(ctx, domain.Sale{
		CustomerID: domain.UnidentifiedCustomerID,
		Items:      []domain.SaleLine{{ProductID: "p1", Quantity: 6, PriceAtSaleCents: 10000}},
		TotalCents: 60000,
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	sales, err := s.ListSales(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, sales)
	product, _ := s.GetProduct(ctx, "p1")
	assert.Equal(t, 5, product.Stock)
}

func TestCommitSaleConsumesCreditOnce(t *testing.T) {
	ctx := context.Background()
	s := New(testProduct())

	first, err := s.CommitSale(ctx, domain.Sale{
		CustomerID: domain.UnidentifiedCustomerID,
		Items:      []domain.SaleLine{{ProductID: "p1", Quantity: 1, PriceAtSaleCents: 10000}},
		TotalCents: 10000,
	})
	require.NoError(t, err)
	credit, err := s.CommitCredit(ctx, domain.ExchangeCredit{
		OriginalSaleID:    first.ID,
		ReturnedItems:     []domain.SaleLine{{ProductID: "p1", Quantity: 1, PriceAtSaleCents: 10000}},
		CreditAmountCents: 10000,
	}, domain.AuditLog{Action: domain.AuditExchangeProcessed})
	require.NoError(t, err)
	assert.Equal(t, domain.CreditAvailable, credit.Status)

	second, err := s.CommitSale(ctx, domain.Sale{
		CustomerID: domain.UnidentifiedCustomerID,
		Items:      []domain.SaleLine{{ProductID: "p1", Quantity: 1, PriceAtSaleCents: 10000}},
		CreditIDs:  []string{credit.ID},
	})
	require.NoError(t, err)

	consumed, err := s.GetCredit(ctx, credit.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CreditConsumed, consumed.Status)
	assert.Equal(t, second.ID, consumed.ConsumedBySaleID)

	_, err = s.CommitSale(ctx, domain.Sale{
		CustomerID: domain.UnidentifiedCustomerID,
		Items:      []domain.SaleLine{{ProductID: "p1", Quantity: 1, PriceAtSaleCents: 10000}},
		CreditIDs:  []string{credit.ID},
	})
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestCommitCreditRejectsOverReturn(t *testing.T) {
	ctx := context.Background()
	s := New(testProduct())

	sale, err := s.CommitSale(ctx, domain.Sale{
		CustomerID: domain.UnidentifiedCustomerID,
		Items:      []domain.SaleLine{{ProductID: "p1", Quantity: 1, PriceAtSaleCents: 10000}},
	})
	require.NoError(t, err)

	line := domain.SaleLine{ProductID: "p1", Quantity: 1, PriceAtSaleCents: 10000}
	_, err = s.CommitCredit(ctx, domain.ExchangeCredit{OriginalSaleID: sale.ID, ReturnedItems: []domain.SaleLine{line}, CreditAmountCents: 10000}, domain.AuditLog{})
	require.NoError(t, err)
	_, err = s.CommitCredit(ctx, domain.ExchangeCredit{OriginalSaleID: sale.ID, ReturnedItems: []domain.SaleLine{line}, CreditAmountCents: 10000}, domain.AuditLog{})
	require.ErrorIs(t, err, store.ErrValidation)

	product, _ := s.GetProduct(ctx, "p1")
	assert.Equal(t, 5, product.Stock)
}

func TestSearchSalesIsCaseSensitiveAndNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New(testProduct())

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, name := range []string{"Jane Doe", "Janet", "jane lower"} {
		_, err := s.CommitSale(ctx, domain.Sale{
			CreatedAt:    base.Add(time.Duration(i) * time.Hour),
			CustomerID:   domain.UnidentifiedCustomerID,
			CustomerName: name,
			Items:        []domain.SaleLine{{ProductID: "p1", Quantity: 1, PriceAtSaleCents: 10000}},
		})
		require.NoError(t, err)
	}

	found, err := s.SearchSales(ctx, "Jane", 0)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "Janet", found[0].CustomerName)
	assert.Equal(t, "Jane Doe", found[1].CustomerName)

	none, err := s.SearchSales(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCustomerCPFUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.CreateCustomer(ctx, domain.Customer{Name: "Ana", CPF: "12345678909"})
	require.NoError(t, err)
	_, err = s.CreateCustomer(ctx, domain.Customer{Name: "Bia", CPF: "12345678909"})
	require.ErrorIs(t, err, store.ErrConflict)
	_, err = s.CreateCustomer(ctx, domain.Customer{Name: "Cris"})
	require.NoError(t, err)
	_, err = s.CreateCustomer(ctx, domain.Customer{Name: "Duda"})
	require.NoError(t, err, "empty CPF never collides")
}

func TestUnidentifiedCustomerCannotBeDeleted(t *testing.T) {
	s := New()
	err := s.DeleteCustomer(context.Background(), domain.UnidentifiedCustomerID, domain.AuditLog{})
	require.ErrorIs(t, err, store.ErrValidation)
}

func TestAuditLogsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateAuditLog(ctx, domain.AuditLog{ID: "a1", Action: "X", CreatedAt: at}))
	require.NoError(t, s.CreateAuditLog(ctx, domain.AuditLog{ID: "a2", Action: "X", CreatedAt: at}))
	require.NoError(t, s.CreateAuditLog(ctx, domain.AuditLog{ID: "a3", Action: "X", CreatedAt: at.Add(-time.Minute)}))

	logs, err := s.ListAuditLogs(ctx, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, []string{"a2", "a1", "a3"}, []string{logs[0].ID, logs[1].ID, logs[2].ID})
}

func TestLoginEventsKeepLatestHundred(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 0; i < domain.LoginEventRetention+20; i++ {
		require.NoError(t, s.RecordLogin(ctx, domain.LoginEvent{Username: fmt.Sprintf("u%d", i), Success: true}))
	}

	events, err := s.ListLoginEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, domain.LoginEventRetention)
	assert.Equal(t, fmt.Sprintf("u%d", domain.LoginEventRetention+19), events[0].Username)
}

func TestClosuresForSameDateAccumulate(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 0; i < 2; i++ {
		_, err := s.CreateClosure(ctx, domain.DailyClosure{Date: "2026-03-01", PaymentBreakdown: domain.NewPaymentBreakdown()}, domain.AuditLog{Action: domain.AuditRegisterClosed})
		require.NoError(t, err)
	}
	closures, err := s.ListClosures(ctx, "2026-03-01")
	require.NoError(t, err)
	assert.Len(t, closures, 2)
}
