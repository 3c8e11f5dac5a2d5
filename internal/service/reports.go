package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"lojapos/backend/internal/domain"
	"lojapos/backend/internal/store"
)

const dashboardDays = 7

// SalesReport lists the sales of a period, newest first. Sellers only see
// their own sales.
func (s *Service) SalesReport(ctx context.Context, period string) (domain.SalesReport, error) {
	actor := actorFrom(ctx)
	period = strings.ToLower(strings.TrimSpace(period))
	if period == "" {
		period = domain.PeriodDay
	}
	from, to, err := s.periodBounds(period)
	if err != nil {
		return domain.SalesReport{}, err
	}

	sales, err := s.repo.ListSales(ctx, from, to)
	if err != nil {
		return domain.SalesReport{}, err
	}
	sales = visibleSales(actor, sales)
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	report := domain.SalesReport{Period: period, From: from, To: to, Sales: sales, Count: len(sales)}
	for _, sale := range sales {
		report.TotalCents += sale.TotalCents
	}
	return report, nil
}

// Dashboard summarizes revenue and flags products with stock below
// domain.LowStockThreshold.
func (s *Service) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	actor := actorFrom(ctx)

	sales, err := s.repo.ListSales(ctx, time.Time{}, time.Time{})
	if err != nil {
		return domain.Dashboard{}, err
	}
	sales = visibleSales(actor, sales)

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.Dashboard{}, err
	}

	today := s.now().In(s.loc)
	todayStart := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, s.loc)
	seriesStart := todayStart.AddDate(0, 0, -(dashboardDays - 1))

	dashboard := domain.Dashboard{
		TotalSales: len(sales),
		Last7Days:  make([]domain.DailyRevenue, dashboardDays),
	}
	for i := range dashboard.Last7Days {
		dashboard.Last7Days[i].Date = seriesStart.AddDate(0, 0, i).Format(domain.DateLayout)
	}
	for _, sale := range sales {
		dashboard.TotalRevenueCents += sale.TotalCents
		created := sale.CreatedAt.In(s.loc)
		if created.Before(seriesStart) {
			continue
		}
		day := time.Date(created.Year(), created.Month(), created.Day(), 0, 0, 0, 0, s.loc)
		index := int(day.Sub(seriesStart).Hours()+12) / 24
		if index < 0 || index >= dashboardDays {
			continue
		}
		dashboard.Last7Days[index].TotalCents += sale.TotalCents
		if index == dashboardDays-1 {
			dashboard.TodayRevenueCents += sale.TotalCents
		}
	}
	for _, product := range products {
		if product.Stock < domain.LowStockThreshold {
			dashboard.LowStockCount++
		}
	}
	return dashboard, nil
}

// periodBounds resolves a report period against the store clock: the current
// day, the trailing seven days, or the current calendar month.
func (s *Service) periodBounds(period string) (time.Time, time.Time, error) {
	now := s.now().In(s.loc)
	switch period {
	case domain.PeriodDay:
		from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
		return from, from.AddDate(0, 0, 1), nil
	case domain.PeriodWeek:
		return now.AddDate(0, 0, -7), now.Add(time.Nanosecond), nil
	case domain.PeriodMonth:
		from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
		return from, from.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown period %q", store.ErrValidation, period)
	}
}

func visibleSales(actor domain.Actor, sales []domain.Sale) []domain.Sale {
	if actor.Role != domain.RoleSeller {
		return sales
	}
	own := sales[:0]
	for _, sale := range sales {
		if sale.SellerID == actor.Username {
			own = append(own, sale)
		}
	}
	return own
}
