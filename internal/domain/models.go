package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-day format used for closures, reports and filters.
const DateLayout = "2006-01-02"

type Product struct {
	ID          string `json:"id"`
	StyleCode   string `json:"style_code"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	PriceCents  int64  `json:"price_cents"`
	CostCents   int64  `json:"cost_cents"`
	Stock       int    `json:"stock"`
	Size        string `json:"size"`
	Color       string `json:"color"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "CASH"
	PaymentPix         PaymentMethod = "PIX"
	PaymentCard        PaymentMethod = "CARD"
	PaymentStoreCredit PaymentMethod = "STORE_CREDIT"
	PaymentOther       PaymentMethod = "OTHER"
)

func AllPaymentMethods() []PaymentMethod {
	return []PaymentMethod{PaymentCash, PaymentPix, PaymentCard, PaymentStoreCredit, PaymentOther}
}

func (m PaymentMethod) Valid() bool {
	for _, known := range AllPaymentMethods() {
		if m == known {
			return true
		}
	}
	return false
}

// DetailRecommended reports whether the method normally carries a reference
// (card authorization, PIX end-to-end id). Missing detail is a soft warning.
func (m PaymentMethod) DetailRecommended() bool {
	return m == PaymentCard || m == PaymentPix
}

// PaymentBreakdown always holds every known method, zero when unused.
type PaymentBreakdown map[PaymentMethod]int64

func NewPaymentBreakdown() PaymentBreakdown {
	breakdown := make(PaymentBreakdown, len(AllPaymentMethods()))
	for _, method := range AllPaymentMethods() {
		breakdown[method] = 0
	}
	return breakdown
}

func (b PaymentBreakdown) Total() int64 {
	total := int64(0)
	for _, cents := range b {
		total += cents
	}
	return total
}

// CartLine is a product snapshot inside an open checkout session.
type CartLine struct {
	Product                Product `json:"product"`
	Quantity               int     `json:"quantity"`
	UnitPriceCents         int64   `json:"unit_price_cents"`
	OriginalUnitPriceCents int64   `json:"original_unit_price_cents"`
	PriceNote              string  `json:"price_note,omitempty"`
}

func (l CartLine) LineID() string {
	return l.Product.ID
}

func (l CartLine) PriceAltered() bool {
	return l.UnitPriceCents != l.OriginalUnitPriceCents
}

func (l CartLine) LineTotalCents() int64 {
	return int64(l.Quantity) * l.UnitPriceCents
}

func (l CartLine) OriginalLineTotalCents() int64 {
	return int64(l.Quantity) * l.OriginalUnitPriceCents
}

// SaleLine projects the cart line into the shape stored on a Sale.
func (l CartLine) SaleLine() SaleLine {
	return SaleLine{
		ProductID:        l.Product.ID,
		Name:             l.Product.Name,
		Quantity:         l.Quantity,
		PriceAtSaleCents: l.UnitPriceCents,
		Size:             l.Product.Size,
		Color:            l.Product.Color,
		PriceAltered:     l.PriceAltered(),
		PriceNote:        strings.TrimSpace(l.PriceNote),
	}
}

type SaleLine struct {
	ProductID        string `json:"product_id"`
	Name             string `json:"name"`
	Quantity         int    `json:"quantity"`
	PriceAtSaleCents int64  `json:"price_at_sale_cents"`
	Size             string `json:"size"`
	Color            string `json:"color"`
	PriceAltered     bool   `json:"price_altered"`
	PriceNote        string `json:"price_note,omitempty"`
}

type Sale struct {
	ID                      string        `json:"id"`
	CreatedAt               time.Time     `json:"created_at"`
	SellerID                string        `json:"seller_id"`
	SellerName              string        `json:"seller_name"`
	CustomerID              string        `json:"customer_id"`
	CustomerName            string        `json:"customer_name"`
	Items                   []SaleLine    `json:"items"`
	SubtotalCents           int64         `json:"subtotal_cents"`
	ExchangeCreditUsedCents int64         `json:"exchange_credit_used_cents"`
	TotalCents              int64         `json:"total_cents"`
	PaymentMethod           PaymentMethod `json:"payment_method"`
	PaymentDetail           string        `json:"payment_detail,omitempty"`
	CreditIDs               []string      `json:"credit_ids,omitempty"`
	IdempotencyKey          string        `json:"-"`
}

func (s Sale) Line(productID string) (SaleLine, bool) {
	for _, line := range s.Items {
		if line.ProductID == productID {
			return line, true
		}
	}
	return SaleLine{}, false
}

type Gift struct {
	ID              string     `json:"id"`
	CreatedAt       time.Time  `json:"created_at"`
	RecipientName   string     `json:"recipient_name"`
	AuthorizedBy    string     `json:"authorized_by"`
	Items           []CartLine `json:"items"`
	TotalValueCents int64      `json:"total_value_cents"`
	IdempotencyKey  string     `json:"-"`
}

type CreditStatus string

const (
	CreditAvailable CreditStatus = "AVAILABLE"
	CreditConsumed  CreditStatus = "CONSUMED"
)

type ExchangeCredit struct {
	ID                string       `json:"id"`
	CreatedAt         time.Time    `json:"created_at"`
	OriginalSaleID    string       `json:"original_sale_id"`
	CustomerName      string       `json:"customer_name"`
	ReturnedItems     []SaleLine   `json:"returned_items"`
	CreditAmountCents int64        `json:"credit_amount_cents"`
	Status            CreditStatus `json:"status"`
	ConsumedBySaleID  string       `json:"consumed_by_sale_id,omitempty"`
	AuthorizedBy      string       `json:"authorized_by"`
}

type AdjustmentKind string

const (
	AdjustmentSurplus  AdjustmentKind = "SURPLUS"
	AdjustmentShortage AdjustmentKind = "SHORTAGE"
)

type CashAdjustment struct {
	ID            string         `json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	Kind          AdjustmentKind `json:"kind"`
	AmountCents   int64          `json:"amount_cents"`
	Justification string         `json:"justification"`
	PerformedBy   string         `json:"performed_by"`
}

// SignedCents is positive for a surplus and negative for a shortage.
func (a CashAdjustment) SignedCents() int64 {
	if a.Kind == AdjustmentShortage {
		return -a.AmountCents
	}
	return a.AmountCents
}

type Attendance struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	SellerName   string    `json:"seller_name"`
	CustomerName string    `json:"customer_name"`
	WasSale      bool      `json:"was_sale"`
	Note         string    `json:"note,omitempty"`
}

type DailyClosure struct {
	ID                  string           `json:"id"`
	Date                string           `json:"date"`
	ClosedBy            string           `json:"closed_by"`
	ClosedAt            time.Time        `json:"closed_at"`
	SalesTotalCents     int64            `json:"sales_total_cents"`
	SalesCount          int              `json:"sales_count"`
	GiftsTotalCents     int64            `json:"gifts_total_cents"`
	GiftsCount          int              `json:"gifts_count"`
	AdjustmentsNetCents int64            `json:"adjustments_net_cents"`
	AttendancesCount    int              `json:"attendances_count"`
	PaymentBreakdown    PaymentBreakdown `json:"payment_breakdown"`
}

// Audit actions.
const (
	AuditPartnershipRegistered = "PARTNERSHIP_REGISTERED"
	AuditExchangeProcessed     = "EXCHANGE_PROCESSED"
	AuditCustomerDeleted       = "CUSTOMER_DELETED"
	AuditUserDeleted           = "USER_DELETED"
	AuditUserCreated           = "USER_CREATED"
	AuditCashAdjustment        = "CASH_ADJUSTMENT"
	AuditRegisterClosed        = "REGISTER_CLOSED"
	AuditGoalUpdated           = "GOAL_UPDATED"
	AuditStockAdjusted         = "STOCK_ADJUSTED"
)

type AuditLog struct {
	ID          string    `json:"id"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	PerformedBy string    `json:"performed_by"`
	ActorRole   string    `json:"actor_role"`
	EntityType  string    `json:"entity_type"`
	EntityID    string    `json:"entity_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// UnidentifiedCustomerID is the reserved record used when a buyer declines identification.
const UnidentifiedCustomerID = "cust-unidentified"

type Customer struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	CPF             string     `json:"cpf,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	Email           string     `json:"email,omitempty"`
	TotalSpentCents int64      `json:"total_spent_cents"`
	LastPurchaseAt  *time.Time `json:"last_purchase_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name"`
	CPF   string `json:"cpf"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type CustomerUpdateRequest struct {
	Name  *string `json:"name,omitempty"`
	CPF   *string `json:"cpf,omitempty"`
	Phone *string `json:"phone,omitempty"`
	Email *string `json:"email,omitempty"`
}

type StoreGoal struct {
	Year        int   `json:"year"`
	Month       int   `json:"month"`
	TargetCents int64 `json:"target_cents"`
}

type GoalProgress struct {
	StoreGoal
	SoldCents int64   `json:"sold_cents"`
	Percent   float64 `json:"percent"`
}

// DefaultGoalTargetCents applies to months without an explicit goal.
const DefaultGoalTargetCents int64 = 5_000_000

// Report periods.
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

type SalesReport struct {
	Period     string    `json:"period"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	Sales      []Sale    `json:"sales"`
	Count      int       `json:"count"`
	TotalCents int64     `json:"total_cents"`
}

// LowStockThreshold marks products the dashboard flags for reorder.
const LowStockThreshold = 5

type DailyRevenue struct {
	Date       string `json:"date"`
	TotalCents int64  `json:"total_cents"`
}

type Dashboard struct {
	TodayRevenueCents int64          `json:"today_revenue_cents"`
	TotalRevenueCents int64          `json:"total_revenue_cents"`
	TotalSales        int            `json:"total_sales"`
	LowStockCount     int            `json:"low_stock_count"`
	Last7Days         []DailyRevenue `json:"last_7_days"`
}

// Roles.
const (
	RoleOwner   = "owner"
	RoleAdmin   = "admin"
	RoleAuditor = "auditor"
	RoleSeller  = "seller"
)

func ValidRole(role string) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleAuditor, RoleSeller:
		return true
	}
	return false
}

type Actor struct {
	Username    string
	DisplayName string
	Role        string
}

// Name is what gets stamped on ledger records.
func (a Actor) Name() string {
	if strings.TrimSpace(a.DisplayName) != "" {
		return a.DisplayName
	}
	return a.Username
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username    string
	DisplayName string
	Password    string
	Role        string
	Active      bool
	CreatedAt   time.Time
}

type User struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type UserCreateRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

type LoginEvent struct {
	Username string    `json:"username"`
	Success  bool      `json:"success"`
	At       time.Time `json:"at"`
}

// LoginEventRetention is how many login events are kept.
const LoginEventRetention = 100

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	ExpiresAt   string `json:"expires_at"`
}

type AdjustmentRequest struct {
	Kind          AdjustmentKind `json:"kind"`
	AmountCents   int64          `json:"amount_cents"`
	Justification string         `json:"justification"`
}

type StockAdjustmentRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

type AttendanceRequest struct {
	CustomerName string `json:"customer_name"`
	WasSale      bool   `json:"was_sale"`
	Note         string `json:"note"`
}

// FormatCents renders cents as a decimal amount, e.g. 15050 -> "150.50".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
