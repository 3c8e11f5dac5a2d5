package checkout

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"lojapos/backend/internal/domain"
	"lojapos/backend/internal/store"
)

type AppliedCredit struct {
	CreditID    string `json:"credit_id"`
	AmountCents int64  `json:"amount_cents"`
}

// Session is one open register cart. Its methods never touch storage.
type Session struct {
	ID         string            `json:"id"`
	OpenedBy   string            `json:"opened_by"`
	CustomerID string            `json:"customer_id,omitempty"`
	Lines      []domain.CartLine `json:"lines"`
	Credits    []AppliedCredit   `json:"credits"`
	Checkouts  int               `json:"checkouts"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func NewSession(id string, openedBy string, now time.Time) *Session {
	return &Session{
		ID:        id,
		OpenedBy:  openedBy,
		Lines:     []domain.CartLine{},
		Credits:   []AppliedCredit{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Session) lineIndex(lineID string) int {
	for i, line := range s.Lines {
		if line.LineID() == lineID {
			return i
		}
	}
	return -1
}

func (s *Session) Line(lineID string) (domain.CartLine, bool) {
	idx := s.lineIndex(lineID)
	if idx < 0 {
		return domain.CartLine{}, false
	}
	return s.Lines[idx], true
}

// AddLine adds one unit of product. It reports false when the product is out
// of stock or the line already holds every unit in stock.
func (s *Session) AddLine(product domain.Product) bool {
	if idx := s.lineIndex(product.ID); idx >= 0 {
		line := &s.Lines[idx]
		if line.Quantity >= product.Stock {
			return false
		}
		line.Quantity++
		line.Product.Stock = product.Stock
		return true
	}
	if product.Stock < 1 {
		return false
	}
	s.Lines = append(s.Lines, domain.CartLine{
		Product:                product,
		Quantity:               1,
		UnitPriceCents:         product.PriceCents,
		OriginalUnitPriceCents: product.PriceCents,
	})
	return true
}

func (s *Session) SetLineQuantity(lineID string, quantity int) bool {
	idx := s.lineIndex(lineID)
	if idx < 0 || quantity <= 0 || quantity > s.Lines[idx].Product.Stock {
		return false
	}
	s.Lines[idx].Quantity = quantity
	return true
}

func (s *Session) RemoveLine(lineID string) bool {
	idx := s.lineIndex(lineID)
	if idx < 0 {
		return false
	}
	s.Lines = append(s.Lines[:idx], s.Lines[idx+1:]...)
	return true
}

// OverridePrice replaces the unit price of a line. Any price other than the
// original requires a justification; restoring the original clears it.
func (s *Session) OverridePrice(lineID string, priceCents int64, justification string) error {
	idx := s.lineIndex(lineID)
	if idx < 0 {
		return fmt.Errorf("%w: cart line %s", store.ErrNotFound, lineID)
	}
	if priceCents < 0 {
		return fmt.Errorf("%w: price cannot be negative", store.ErrValidation)
	}

	line := &s.Lines[idx]
	if priceCents == line.OriginalUnitPriceCents {
		line.UnitPriceCents = priceCents
		line.PriceNote = ""
		return nil
	}

	note := strings.TrimSpace(justification)
	if note == "" {
		return fmt.Errorf("%w: price override requires a justification", store.ErrValidation)
	}
	line.UnitPriceCents = priceCents
	line.PriceNote = note
	return nil
}

func (s *Session) ApplyExchangeCredit(creditID string, amountCents int64) error {
	if strings.TrimSpace(creditID) == "" || amountCents <= 0 {
		return fmt.Errorf("%w: invalid exchange credit", store.ErrValidation)
	}
	for _, applied := range s.Credits {
		if applied.CreditID == creditID {
			return fmt.Errorf("%w: credit %s already applied", store.ErrValidation, creditID)
		}
	}
	s.Credits = append(s.Credits, AppliedCredit{CreditID: creditID, AmountCents: amountCents})
	return nil
}

func (s *Session) RemoveExchangeCredit(creditID string) bool {
	for i, applied := range s.Credits {
		if applied.CreditID == creditID {
			s.Credits = append(s.Credits[:i], s.Credits[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Session) SetCustomer(customerID string) {
	s.CustomerID = strings.TrimSpace(customerID)
}

func (s *Session) Empty() bool {
	return len(s.Lines) == 0
}

func (s *Session) Subtotal() int64 {
	total := int64(0)
	for _, line := range s.Lines {
		total += line.LineTotalCents()
	}
	return total
}

// CreditUsed is the part of the applied credits that actually reduces the
// payable amount. It never exceeds the subtotal.
func (s *Session) CreditUsed() int64 {
	applied := int64(0)
	for _, credit := range s.Credits {
		applied += credit.AmountCents
	}
	return min(applied, s.Subtotal())
}

func (s *Session) Total() int64 {
	return max(s.Subtotal()-s.CreditUsed(), 0)
}

func (s *Session) CreditIDs() []string {
	ids := make([]string, 0, len(s.Credits))
	for _, credit := range s.Credits {
		ids = append(ids, credit.CreditID)
	}
	return ids
}

// IdempotencyKey identifies the disposition the cart currently holds. It
// changes once that disposition is committed and the cart cleared.
func (s *Session) IdempotencyKey() string {
	return s.ID + "#" + strconv.Itoa(s.Checkouts)
}

// Clear empties the cart after a committed disposition.
func (s *Session) Clear() {
	s.Lines = []domain.CartLine{}
	s.Credits = []AppliedCredit{}
	s.CustomerID = ""
	s.Checkouts++
}
