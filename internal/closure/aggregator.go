package closure

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lojapos/backend/internal/domain"
	"lojapos/backend/internal/store"
)

type Totals struct {
	SalesTotalCents     int64                   `json:"sales_total_cents"`
	SalesCount          int                     `json:"sales_count"`
	GiftsTotalCents     int64                   `json:"gifts_total_cents"`
	GiftsCount          int                     `json:"gifts_count"`
	AdjustmentsNetCents int64                   `json:"adjustments_net_cents"`
	AttendancesCount    int                     `json:"attendances_count"`
	PaymentBreakdown    domain.PaymentBreakdown `json:"payment_breakdown"`
}

// Aggregate totals the records whose local calendar day in loc is day.
// Records from other days are ignored.
func Aggregate(day string, loc *time.Location, sales []domain.Sale, gifts []domain.Gift, adjustments []domain.CashAdjustment, attendances []domain.Attendance) Totals {
	if loc == nil {
		loc = time.UTC
	}
	onDay := func(at time.Time) bool {
		return at.In(loc).Format(domain.DateLayout) == day
	}

	totals := Totals{PaymentBreakdown: domain.NewPaymentBreakdown()}
	for _, sale := range sales {
		if !onDay(sale.CreatedAt) {
			continue
		}
		totals.SalesTotalCents += sale.TotalCents
		totals.SalesCount++
		method := sale.PaymentMethod
		if !method.Valid() {
			method = domain.PaymentOther
		}
		totals.PaymentBreakdown[method] += sale.TotalCents
	}
	for _, gift := range gifts {
		if !onDay(gift.CreatedAt) {
			continue
		}
		totals.GiftsTotalCents += gift.TotalValueCents
		totals.GiftsCount++
	}
	for _, adj := range adjustments {
		if onDay(adj.CreatedAt) {
			totals.AdjustmentsNetCents += adj.SignedCents()
		}
	}
	for _, attendance := range attendances {
		if onDay(attendance.CreatedAt) {
			totals.AttendancesCount++
		}
	}
	return totals
}

// Aggregator reads the ledger for one store-local day and appends closure
// snapshots. Source records are only read.
type Aggregator struct {
	ledger store.Ledger
	loc    *time.Location
	now    func() time.Time
}

func NewAggregator(ledger store.Ledger, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{
		ledger: ledger,
		loc:    loc,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Today is the current calendar day in the store timezone.
func (a *Aggregator) Today() string {
	return a.now().In(a.loc).Format(domain.DateLayout)
}

// DayBounds returns [start, end) of date in the store timezone.
func (a *Aggregator) DayBounds(date string) (time.Time, time.Time, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: closure date is required", store.ErrValidation)
	}
	start, err := time.ParseInLocation(domain.DateLayout, date, a.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid date %q", store.ErrValidation, date)
	}
	return start, start.AddDate(0, 0, 1), nil
}

// Preview aggregates date without persisting anything.
func (a *Aggregator) Preview(ctx context.Context, date string) (domain.DailyClosure, error) {
	date = strings.TrimSpace(date)
	from, to, err := a.DayBounds(date)
	if err != nil {
		return domain.DailyClosure{}, err
	}

	sales, err := a.ledger.ListSales(ctx, from, to)
	if err != nil {
		return domain.DailyClosure{}, err
	}
	gifts, err := a.ledger.ListGifts(ctx, from, to)
	if err != nil {
		return domain.DailyClosure{}, err
	}
	adjustments, err := a.ledger.ListAdjustments(ctx, from, to)
	if err != nil {
		return domain.DailyClosure{}, err
	}
	attendances, err := a.ledger.ListAttendances(ctx, from, to)
	if err != nil {
		return domain.DailyClosure{}, err
	}

	totals := Aggregate(date, a.loc, sales, gifts, adjustments, attendances)
	return domain.DailyClosure{
		Date:                date,
		SalesTotalCents:     totals.SalesTotalCents,
		SalesCount:          totals.SalesCount,
		GiftsTotalCents:     totals.GiftsTotalCents,
		GiftsCount:          totals.GiftsCount,
		AdjustmentsNetCents: totals.AdjustmentsNetCents,
		AttendancesCount:    totals.AttendancesCount,
		PaymentBreakdown:    totals.PaymentBreakdown,
	}, nil
}

// CloseRegister appends a new snapshot for date. Closing the same date again
// appends another snapshot.
func (a *Aggregator) CloseRegister(ctx context.Context, date string, closedBy domain.Actor) (*domain.DailyClosure, error) {
	snapshot, err := a.Preview(ctx, date)
	if err != nil {
		return nil, err
	}
	snapshot.ClosedBy = closedBy.Name()
	snapshot.ClosedAt = a.now()

	audit := domain.AuditLog{
		Action: domain.AuditRegisterClosed,
		Description: fmt.Sprintf("Register closed for %s: sales %s (%d), gifts %s (%d), adjustments %s",
			snapshot.Date, domain.FormatCents(snapshot.SalesTotalCents), snapshot.SalesCount,
			domain.FormatCents(snapshot.GiftsTotalCents), snapshot.GiftsCount, domain.FormatCents(snapshot.AdjustmentsNetCents)),
		PerformedBy: closedBy.Name(),
		ActorRole:   closedBy.Role,
		EntityType:  "daily_closure",
		CreatedAt:   snapshot.ClosedAt,
	}
	return a.ledger.CreateClosure(ctx, snapshot, audit)
}
