package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lojapos/backend/internal/domain"
	"lojapos/backend/internal/store"
)

// Resolver turns returned sale lines into store credit.
type Resolver struct {
	ledger store.Ledger
	now    func() time.Time
}

func NewResolver(ledger store.Ledger) *Resolver {
	return &Resolver{
		ledger: ledger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// FindSale returns the most recent sale whose id equals query or whose
// customer name contains it. Matching is case-sensitive and the haystack is
// not normalized.
func (r *Resolver) FindSale(ctx context.Context, query string) (*domain.Sale, bool, error) {
	if strings.TrimSpace(query) == "" {
		return nil, false, nil
	}
	sales, err := r.ledger.SearchSales(ctx, query, 1)
	if err != nil {
		return nil, false, err
	}
	if len(sales) == 0 {
		return nil, false, nil
	}
	return &sales[0], true, nil
}

func (r *Resolver) SearchSales(ctx context.Context, query string, limit int) ([]domain.Sale, error) {
	if strings.TrimSpace(query) == "" {
		return []domain.Sale{}, nil
	}
	return r.ledger.SearchSales(ctx, query, limit)
}

// ConvertLineToCredit returns quantity units of one sale line as an AVAILABLE
// credit worth the price paid. A zero quantity returns whatever is left of the
// line.
func (r *Resolver) ConvertLineToCredit(ctx context.Context, sale domain.Sale, productID string, quantity int, authorizedBy domain.Actor) (*domain.ExchangeCredit, error) {
	line, ok := sale.Line(productID)
	if !ok {
		return nil, fmt.Errorf("%w: product %s is not part of sale %s", store.ErrValidation, productID, sale.ID)
	}
	if quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", store.ErrValidation)
	}

	returned, err := r.ledger.ReturnedQuantities(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	remaining := line.Quantity - returned[productID]
	if quantity == 0 {
		quantity = remaining
	}
	if quantity < 1 || quantity > remaining {
		return nil, fmt.Errorf("%w: only %d unit(s) of %s left to return", store.ErrValidation, max(remaining, 0), line.Name)
	}

	item := line
	item.Quantity = quantity
	amount := line.PriceAtSaleCents * int64(quantity)
	createdAt := r.now()

	credit := domain.ExchangeCredit{
		CreatedAt:         createdAt,
		OriginalSaleID:    sale.ID,
		CustomerName:      sale.CustomerName,
		ReturnedItems:     []domain.SaleLine{item},
		CreditAmountCents: amount,
		Status:            domain.CreditAvailable,
		AuthorizedBy:      authorizedBy.Name(),
	}
	audit := domain.AuditLog{
		Action:      domain.AuditExchangeProcessed,
		Description: fmt.Sprintf("Returned %dx %s from sale %s, credit %s", quantity, line.Name, sale.ID, domain.FormatCents(amount)),
		PerformedBy: authorizedBy.Name(),
		ActorRole:   authorizedBy.Role,
		EntityType:  "exchange_credit",
		CreatedAt:   createdAt,
	}
	return r.ledger.CommitCredit(ctx, credit, audit)
}

func (r *Resolver) ListAvailableCredits(ctx context.Context) ([]domain.ExchangeCredit, error) {
	return r.ledger.ListCredits(ctx, domain.CreditAvailable)
}
