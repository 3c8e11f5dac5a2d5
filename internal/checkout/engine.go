package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"lojapos/backend/internal/domain"
	"lojapos/backend/internal/store"
)

var ErrConfirmationRequired = errors.New("confirmation required")

const WarningMissingPaymentDetail = "MISSING_PAYMENT_DETAIL"

type SaleIntent struct {
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	PaymentDetail string               `json:"payment_detail"`
	CustomerID    string               `json:"customer_id"`
	ConfirmToken  string               `json:"confirm_token,omitempty"`
}

type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Proposal is the validated preview of a sale. Token fingerprints the cart and
// intent; a finalize carrying it accepts the listed warnings.
type Proposal struct {
	SubtotalCents   int64                `json:"subtotal_cents"`
	CreditUsedCents int64                `json:"credit_used_cents"`
	TotalCents      int64                `json:"total_cents"`
	PaymentMethod   domain.PaymentMethod `json:"payment_method"`
	CustomerID      string               `json:"customer_id"`
	CustomerName    string               `json:"customer_name"`
	Warnings        []Warning            `json:"warnings"`
	Token           string               `json:"token"`
}

func (p Proposal) NeedsConfirmation() bool {
	return len(p.Warnings) > 0
}

type ConfirmationRequiredError struct {
	Proposal Proposal
}

func (e *ConfirmationRequiredError) Error() string {
	codes := make([]string, 0, len(e.Proposal.Warnings))
	for _, w := range e.Proposal.Warnings {
		codes = append(codes, w.Code)
	}
	return fmt.Sprintf("%s: %s", ErrConfirmationRequired, strings.Join(codes, ","))
}

func (e *ConfirmationRequiredError) Unwrap() error {
	return ErrConfirmationRequired
}

type Engine struct {
	repo store.Repository
	now  func() time.Time
}

func NewEngine(repo store.Repository) *Engine {
	return &Engine{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) ProposeSale(ctx context.Context, session *Session, intent SaleIntent) (Proposal, error) {
	if session == nil || session.Empty() {
		return Proposal{}, fmt.Errorf("%w: cart is empty", store.ErrValidation)
	}
	customerID := strings.TrimSpace(intent.CustomerID)
	if customerID == "" {
		customerID = session.CustomerID
	}
	if customerID == "" {
		return Proposal{}, fmt.Errorf("%w: a customer must be selected", store.ErrValidation)
	}
	if !intent.PaymentMethod.Valid() {
		return Proposal{}, fmt.Errorf("%w: unknown payment method %q", store.ErrValidation, intent.PaymentMethod)
	}
	for _, line := range session.Lines {
		if line.Quantity < 1 {
			return Proposal{}, fmt.Errorf("%w: line %s has no quantity", store.ErrValidation, line.LineID())
		}
		if line.PriceAltered() && strings.TrimSpace(line.PriceNote) == "" {
			return Proposal{}, fmt.Errorf("%w: price of %s was altered without justification", store.ErrValidation, line.Product.Name)
		}
	}
	if intent.PaymentMethod == domain.PaymentStoreCredit {
		if len(session.Credits) == 0 {
			return Proposal{}, fmt.Errorf("%w: store credit payment needs an applied exchange credit", store.ErrValidation)
		}
		if remaining := session.Total(); remaining > 0 {
			return Proposal{}, fmt.Errorf("%w: %s left after credit must be paid with another method", store.ErrValidation, domain.FormatCents(remaining))
		}
	}
	if err := e.checkCredits(ctx, session.Credits); err != nil {
		return Proposal{}, err
	}

	customer, err := e.repo.GetCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Proposal{}, fmt.Errorf("%w: customer %s not found", store.ErrValidation, customerID)
		}
		return Proposal{}, err
	}

	proposal := Proposal{
		SubtotalCents:   session.Subtotal(),
		CreditUsedCents: session.CreditUsed(),
		TotalCents:      session.Total(),
		PaymentMethod:   intent.PaymentMethod,
		CustomerID:      customer.ID,
		CustomerName:    customer.Name,
		Warnings:        []Warning{},
	}
	if intent.PaymentMethod.DetailRecommended() && strings.TrimSpace(intent.PaymentDetail) == "" {
		proposal.Warnings = append(proposal.Warnings, Warning{
			Code:    WarningMissingPaymentDetail,
			Message: fmt.Sprintf("%s payment without reference detail", intent.PaymentMethod),
		})
	}
	proposal.Token = fingerprint(session, intent.PaymentMethod, intent.PaymentDetail, customer.ID)
	return proposal, nil
}

func (e *Engine) checkCredits(ctx context.Context, applied []AppliedCredit) error {
	for _, a := range applied {
		credit, err := e.repo.GetCredit(ctx, a.CreditID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: exchange credit %s not found", store.ErrValidation, a.CreditID)
			}
			return err
		}
		if credit.Status != domain.CreditAvailable {
			return fmt.Errorf("%w: exchange credit %s is %s", store.ErrValidation, credit.ID, credit.Status)
		}
		if a.AmountCents > credit.CreditAmountCents {
			return fmt.Errorf("%w: exchange credit %s is worth %s", store.ErrValidation, credit.ID, domain.FormatCents(credit.CreditAmountCents))
		}
	}
	return nil
}

// FinalizeAsSale commits the cart as a sale. The session is cleared only when
// the repository commit succeeds.
func (e *Engine) FinalizeAsSale(ctx context.Context, session *Session, intent SaleIntent, seller domain.Actor) (*domain.Sale, error) {
	proposal, err := e.ProposeSale(ctx, session, intent)
	if err != nil {
		return nil, err
	}
	if proposal.NeedsConfirmation() && intent.ConfirmToken != proposal.Token {
		return nil, &ConfirmationRequiredError{Proposal: proposal}
	}

	items := make([]domain.SaleLine, 0, len(session.Lines))
	for _, line := range session.Lines {
		items = append(items, line.SaleLine())
	}
	sale := domain.Sale{
		CreatedAt:               e.now(),
		SellerID:                seller.Username,
		SellerName:              seller.Name(),
		CustomerID:              proposal.CustomerID,
		CustomerName:            proposal.CustomerName,
		Items:                   items,
		SubtotalCents:           proposal.SubtotalCents,
		ExchangeCreditUsedCents: proposal.CreditUsedCents,
		TotalCents:              proposal.TotalCents,
		PaymentMethod:           intent.PaymentMethod,
		PaymentDetail:           strings.TrimSpace(intent.PaymentDetail),
		CreditIDs:               session.CreditIDs(),
		IdempotencyKey:          session.IdempotencyKey(),
	}

	committed, err := e.repo.CommitSale(ctx, sale)
	if err != nil {
		return nil, err
	}
	session.Clear()
	return committed, nil
}

// FinalizeAsGift disposes of the cart as a partnership gift valued at the
// original unit prices.
func (e *Engine) FinalizeAsGift(ctx context.Context, session *Session, recipient string, authorizer string, actor domain.Actor) (*domain.Gift, error) {
	if session == nil || session.Empty() {
		return nil, fmt.Errorf("%w: cart is empty", store.ErrValidation)
	}
	recipient = strings.TrimSpace(recipient)
	authorizer = strings.TrimSpace(authorizer)
	if recipient == "" || authorizer == "" {
		return nil, fmt.Errorf("%w: recipient and authorizer are required", store.ErrValidation)
	}

	items := make([]domain.CartLine, len(session.Lines))
	copy(items, session.Lines)
	value := int64(0)
	for _, line := range items {
		value += line.OriginalLineTotalCents()
	}
	gift := domain.Gift{
		CreatedAt:       e.now(),
		RecipientName:   recipient,
		AuthorizedBy:    authorizer,
		Items:           items,
		TotalValueCents: value,
		IdempotencyKey:  session.IdempotencyKey(),
	}
	audit := domain.AuditLog{
		Action:      domain.AuditPartnershipRegistered,
		Description: fmt.Sprintf("Partnership gift to %s authorized by %s, value %s", recipient, authorizer, domain.FormatCents(value)),
		PerformedBy: actor.Name(),
		ActorRole:   actor.Role,
		EntityType:  "gift",
		CreatedAt:   gift.CreatedAt,
	}

	committed, err := e.repo.CommitGift(ctx, gift, audit)
	if err != nil {
		return nil, err
	}
	session.Clear()
	return committed, nil
}

func fingerprint(session *Session, method domain.PaymentMethod, detail string, customerID string) string {
	h := sha256.New()
	write := func(parts ...string) {
		for _, p := range parts {
			h.Write([]byte(p))
			h.Write([]byte{0})
		}
	}
	write(session.ID, customerID, string(method), strings.TrimSpace(detail))
	for _, line := range session.Lines {
		write(line.LineID(), strconv.Itoa(line.Quantity), strconv.FormatInt(line.UnitPriceCents, 10))
	}
	for _, credit := range session.Credits {
		write(credit.CreditID, strconv.FormatInt(credit.AmountCents, 10))
	}
	return hex.EncodeToString(h.Sum(nil))
}
