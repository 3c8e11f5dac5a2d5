package store

import (
	"context"
	"errors"
	"time"

	"lojapos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("conflict")
)

// Catalog owns products and their stock counts.
type Catalog interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	// AdjustStock moves stock by delta and records audit in the same commit.
	AdjustStock(ctx context.Context, id string, delta int, audit domain.AuditLog) (*domain.Product, error)
}

// Customers is the customer directory. CPF is unique when present.
type Customers interface {
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string, audit domain.AuditLog) error
}

// Ledger is the append-only record of sales, gifts, credits, adjustments,
// attendances, closures and audit entries. Commit* calls are atomic: the
// ledger record is appended before stock moves, both or neither persist.
type Ledger interface {
	CommitSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	CommitGift(ctx context.Context, gift domain.Gift, audit domain.AuditLog) (*domain.Gift, error)
	CommitCredit(ctx context.Context, credit domain.ExchangeCredit, audit domain.AuditLog) (*domain.ExchangeCredit, error)

	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	SearchSales(ctx context.Context, query string, limit int) ([]domain.Sale, error)
	ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
	ListGifts(ctx context.Context, from time.Time, to time.Time) ([]domain.Gift, error)

	GetCredit(ctx context.Context, id string) (*domain.ExchangeCredit, error)
	ListCredits(ctx context.Context, status domain.CreditStatus) ([]domain.ExchangeCredit, error)
	ReturnedQuantities(ctx context.Context, saleID string) (map[string]int, error)

	CreateAdjustment(ctx context.Context, adj domain.CashAdjustment, audit domain.AuditLog) (*domain.CashAdjustment, error)
	ListAdjustments(ctx context.Context, from time.Time, to time.Time) ([]domain.CashAdjustment, error)
	CreateAttendance(ctx context.Context, attendance domain.Attendance) (*domain.Attendance, error)
	ListAttendances(ctx context.Context, from time.Time, to time.Time) ([]domain.Attendance, error)

	CreateClosure(ctx context.Context, closure domain.DailyClosure, audit domain.AuditLog) (*domain.DailyClosure, error)
	ListClosures(ctx context.Context, date string) ([]domain.DailyClosure, error)
	GetClosure(ctx context.Context, id string) (*domain.DailyClosure, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	GetGoal(ctx context.Context, year int, month int) (*domain.StoreGoal, error)
	SetGoal(ctx context.Context, goal domain.StoreGoal) error
}

type Users interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
	DeleteUser(ctx context.Context, username string, audit domain.AuditLog) error
	RecordLogin(ctx context.Context, event domain.LoginEvent) error
	ListLoginEvents(ctx context.Context, limit int) ([]domain.LoginEvent, error)
}

type Repository interface {
	Catalog
	Customers
	Ledger
	Users
}
