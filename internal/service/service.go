package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"lojapos/backend/internal/cache"
	"lojapos/backend/internal/checkout"
	"lojapos/backend/internal/closure"
	"lojapos/backend/internal/domain"
	"lojapos/backend/internal/exchange"
	"lojapos/backend/internal/store"
	"lojapos/backend/internal/xid"
)

var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

var systemActor = domain.Actor{Username: "system", DisplayName: "system", Role: "system"}

type Options struct {
	Location        *time.Location
	Logger          *zap.Logger
	Carts           cache.CartStore
	Closures        cache.ClosureCache
	ClosureCacheTTL time.Duration
}

type Service struct {
	repo         store.Repository
	engine       *checkout.Engine
	resolver     *exchange.Resolver
	aggregator   *closure.Aggregator
	carts        cache.CartStore
	closureCache cache.ClosureCache
	closureTTL   time.Duration
	loc          *time.Location
	logger       *zap.Logger
	now          func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Carts == nil {
		opts.Carts = cache.NewMemoryCartStore(4 * time.Hour)
	}
	if opts.Closures == nil {
		opts.Closures = cache.NoopClosureCache{}
	}
	if opts.ClosureCacheTTL <= 0 {
		opts.ClosureCacheTTL = 10 * time.Minute
	}

	return &Service{
		repo:         repo,
		engine:       checkout.NewEngine(repo),
		resolver:     exchange.NewResolver(repo),
		aggregator:   closure.NewAggregator(repo, opts.Location),
		carts:        opts.Carts,
		closureCache: opts.Closures,
		closureTTL:   opts.ClosureCacheTTL,
		loc:          opts.Location,
		logger:       opts.Logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) Today() string {
	return s.aggregator.Today()
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// AdjustStock corrects a product's stock count (recount, damage, supplier
// delivery). Owner/admin only; the reason lands in the audit log.
func (s *Service) AdjustStock(ctx context.Context, productID string, req domain.StockAdjustmentRequest) (*domain.Product, error) {
	actor, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if req.Delta == 0 {
		return nil, fmt.Errorf("%w: delta must not be zero", store.ErrValidation)
	}
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", store.ErrValidation)
	}
	product, err := s.repo.AdjustStock(ctx, productID, req.Delta, domain.AuditLog{
		ID:          xid.New("audit"),
		Action:      domain.AuditStockAdjusted,
		Description: fmt.Sprintf("Stock of %s adjusted by %+d: %s", productID, req.Delta, reason),
		PerformedBy: actor.Name(),
		ActorRole:   actor.Role,
		EntityType:  "product",
		EntityID:    productID,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("stock adjusted",
		zap.String("product_id", productID),
		zap.Int("delta", req.Delta),
		zap.Int("stock", product.Stock),
	)
	return product, nil
}

// Customers.

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (*domain.Customer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: customer name is required", store.ErrValidation)
	}
	cpf, err := NormalizeCPF(req.CPF)
	if err != nil {
		return nil, err
	}
	return s.repo.CreateCustomer(ctx, domain.Customer{
		ID:        xid.New("cust"),
		Name:      name,
		CPF:       cpf,
		Phone:     strings.TrimSpace(req.Phone),
		Email:     strings.TrimSpace(req.Email),
		CreatedAt: s.now(),
	})
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (*domain.Customer, error) {
	existing, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		existing.Name = strings.TrimSpace(*req.Name)
	}
	if req.CPF != nil {
		cpf, err := NormalizeCPF(*req.CPF)
		if err != nil {
			return nil, err
		}
		existing.CPF = cpf
	}
	if req.Phone != nil {
		existing.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		existing.Email = strings.TrimSpace(*req.Email)
	}
	if existing.Name == "" {
		return nil, fmt.Errorf("%w: customer name is required", store.ErrValidation)
	}
	return s.repo.UpdateCustomer(ctx, *existing)
}

// DeleteCustomer is reserved for owner/admin. The caller is expected to have
// re-checked the owner password.
func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	actor, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin)
	if err != nil {
		return err
	}
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return err
	}
	return s.repo.DeleteCustomer(ctx, id, domain.AuditLog{
		Action:      domain.AuditCustomerDeleted,
		Description: fmt.Sprintf("Customer %s deleted", customer.Name),
		PerformedBy: actor.Name(),
		ActorRole:   actor.Role,
		EntityType:  "customer",
		EntityID:    id,
		CreatedAt:   s.now(),
	})
}

// NormalizeCPF keeps only digits. An empty CPF is allowed; otherwise it must
// have 11 digits.
func NormalizeCPF(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	cpf := b.String()
	if cpf != "" && len(cpf) != 11 {
		return "", fmt.Errorf("%w: cpf must have 11 digits", store.ErrValidation)
	}
	return cpf, nil
}

// Carts.

func (s *Service) OpenCart(ctx context.Context) (*checkout.Session, error) {
	actor := actorFrom(ctx)
	session := checkout.NewSession(xid.New("cart"), actor.Username, s.now())
	if err := s.carts.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// GetCart loads a cart. Sellers only reach carts they opened; owners and
// admins reach every cart.
func (s *Service) GetCart(ctx context.Context, id string) (*checkout.Session, error) {
	session, ok, err := s.carts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: cart %s", store.ErrNotFound, id)
	}
	actor := actorFrom(ctx)
	if session.OpenedBy != actor.Username && actor.Role != domain.RoleOwner && actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("%w: cart %s belongs to %s", ErrForbidden, id, session.OpenedBy)
	}
	return session, nil
}

func (s *Service) DiscardCart(ctx context.Context, id string) error {
	unlock, err := s.carts.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := s.GetCart(ctx, id); err != nil {
		return err
	}
	return s.carts.Delete(ctx, id)
}

func (s *Service) saveCart(ctx context.Context, session *checkout.Session) error {
	session.UpdatedAt = s.now()
	return s.carts.Save(ctx, session)
}

// updateCart holds the cart lock while fn edits the session. The session is
// saved only when fn reports a change.
func (s *Service) updateCart(ctx context.Context, cartID string, fn func(session *checkout.Session) (bool, error)) (*checkout.Session, bool, error) {
	unlock, err := s.carts.Lock(ctx, cartID)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	session, err := s.GetCart(ctx, cartID)
	if err != nil {
		return nil, false, err
	}
	changed, err := fn(session)
	if err != nil {
		return nil, false, err
	}
	if changed {
		if err := s.saveCart(ctx, session); err != nil {
			return nil, false, err
		}
	}
	return session, changed, nil
}

// AddToCart adds one unit using the current catalog stock. added is false when
// no more units are available.
func (s *Service) AddToCart(ctx context.Context, cartID string, productID string) (*checkout.Session, bool, error) {
	return s.updateCart(ctx, cartID, func(session *checkout.Session) (bool, error) {
		product, err := s.repo.GetProduct(ctx, productID)
		if err != nil {
			return false, err
		}
		return session.AddLine(*product), nil
	})
}

func (s *Service) SetCartLineQuantity(ctx context.Context, cartID string, lineID string, quantity int) (*checkout.Session, bool, error) {
	return s.updateCart(ctx, cartID, func(session *checkout.Session) (bool, error) {
		if _, ok := session.Line(lineID); !ok {
			return false, fmt.Errorf("%w: cart line %s", store.ErrNotFound, lineID)
		}
		return session.SetLineQuantity(lineID, quantity), nil
	})
}

func (s *Service) RemoveCartLine(ctx context.Context, cartID string, lineID string) (*checkout.Session, error) {
	session, _, err := s.updateCart(ctx, cartID, func(session *checkout.Session) (bool, error) {
		return session.RemoveLine(lineID), nil
	})
	return session, err
}

func (s *Service) OverrideCartPrice(ctx context.Context, cartID string, lineID string, priceCents int64, justification string) (*checkout.Session, error) {
	session, _, err := s.updateCart(ctx, cartID, func(session *checkout.Session) (bool, error) {
		if err := session.OverridePrice(lineID, priceCents, justification); err != nil {
			return false, err
		}
		return true, nil
	})
	return session, err
}

// ApplyCartCredit applies the full value of an AVAILABLE exchange credit.
func (s *Service) ApplyCartCredit(ctx context.Context, cartID string, creditID string) (*checkout.Session, error) {
	session, _, err := s.updateCart(ctx, cartID, func(session *checkout.Session) (bool, error) {
		credit, err := s.repo.GetCredit(ctx, creditID)
		if err != nil {
			return false, err
		}
		if credit.Status != domain.CreditAvailable {
			return false, fmt.Errorf("%w: exchange credit %s is %s", store.ErrValidation, credit.ID, credit.Status)
		}
		if err := session.ApplyExchangeCredit(credit.ID, credit.CreditAmountCents); err != nil {
			return false, err
		}
		return true, nil
	})
	return session, err
}

func (s *Service) RemoveCartCredit(ctx context.Context, cartID string, creditID string) (*checkout.Session, error) {
	session, _, err := s.updateCart(ctx, cartID, func(session *checkout.Session) (bool, error) {
		return session.RemoveExchangeCredit(creditID), nil
	})
	return session, err
}

func (s *Service) ProposeSale(ctx context.Context, cartID string, intent checkout.SaleIntent) (checkout.Proposal, error) {
	session, err := s.GetCart(ctx, cartID)
	if err != nil {
		return checkout.Proposal{}, err
	}
	return s.engine.ProposeSale(ctx, session, intent)
}

// FinalizeSale commits the cart as a sale while holding the cart lock. A
// retry of the same cart contents is rejected by the ledger with ErrConflict.
func (s *Service) FinalizeSale(ctx context.Context, cartID string, intent checkout.SaleIntent) (*domain.Sale, error) {
	unlock, err := s.carts.Lock(ctx, cartID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	session, err := s.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	sale, err := s.engine.FinalizeAsSale(ctx, session, intent, actorFrom(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.saveCart(ctx, session); err != nil {
		s.logger.Error("sale committed but cart not cleared",
			zap.String("sale_id", sale.ID), zap.String("cart_id", cartID), zap.Error(err))
		return nil, fmt.Errorf("sale %s committed, clearing cart %s: %w", sale.ID, cartID, err)
	}
	s.logger.Info("sale finalized",
		zap.String("sale_id", sale.ID),
		zap.String("payment_method", string(sale.PaymentMethod)),
		zap.Int64("total_cents", sale.TotalCents),
		zap.Int("credits", len(sale.CreditIDs)),
	)
	return sale, nil
}

func (s *Service) FinalizeGift(ctx context.Context, cartID string, recipient string, authorizer string) (*domain.Gift, error) {
	unlock, err := s.carts.Lock(ctx, cartID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	session, err := s.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	gift, err := s.engine.FinalizeAsGift(ctx, session, recipient, authorizer, actorFrom(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.saveCart(ctx, session); err != nil {
		s.logger.Error("gift committed but cart not cleared",
			zap.String("gift_id", gift.ID), zap.String("cart_id", cartID), zap.Error(err))
		return nil, fmt.Errorf("gift %s committed, clearing cart %s: %w", gift.ID, cartID, err)
	}
	s.logger.Info("gift registered",
		zap.String("gift_id", gift.ID),
		zap.Int64("total_value_cents", gift.TotalValueCents),
	)
	return gift, nil
}

// Exchanges.

func (s *Service) SearchSales(ctx context.Context, query string, limit int) ([]domain.Sale, error) {
	return s.resolver.SearchSales(ctx, query, limit)
}

func (s *Service) FindSale(ctx context.Context, query string) (*domain.Sale, bool, error) {
	return s.resolver.FindSale(ctx, query)
}

func (s *Service) ReturnSaleLine(ctx context.Context, saleID string, productID string, quantity int) (*domain.ExchangeCredit, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	credit, err := s.resolver.ConvertLineToCredit(ctx, *sale, productID, quantity, actorFrom(ctx))
	if err != nil {
		return nil, err
	}
	s.logger.Info("exchange credit created",
		zap.String("credit_id", credit.ID),
		zap.String("sale_id", sale.ID),
		zap.Int64("credit_cents", credit.CreditAmountCents),
	)
	return credit, nil
}

// ListCredits defaults to AVAILABLE credits; "ALL" lists every credit.
func (s *Service) ListCredits(ctx context.Context, status string) ([]domain.ExchangeCredit, error) {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "", string(domain.CreditAvailable):
		return s.resolver.ListAvailableCredits(ctx)
	case "ALL":
		return s.repo.ListCredits(ctx, "")
	case string(domain.CreditConsumed):
		return s.repo.ListCredits(ctx, domain.CreditConsumed)
	default:
		return nil, fmt.Errorf("%w: unknown credit status %q", store.ErrValidation, status)
	}
}

// Cash drawer and floor.

func (s *Service) RecordAdjustment(ctx context.Context, req domain.AdjustmentRequest) (*domain.CashAdjustment, error) {
	justification := strings.TrimSpace(req.Justification)
	if req.Kind != domain.AdjustmentSurplus && req.Kind != domain.AdjustmentShortage {
		return nil, fmt.Errorf("%w: kind must be SURPLUS or SHORTAGE", store.ErrValidation)
	}
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", store.ErrValidation)
	}
	if justification == "" {
		return nil, fmt.Errorf("%w: justification is required", store.ErrValidation)
	}

	actor := actorFrom(ctx)
	adj := domain.CashAdjustment{
		ID:            xid.New("adj"),
		CreatedAt:     s.now(),
		Kind:          req.Kind,
		AmountCents:   req.AmountCents,
		Justification: justification,
		PerformedBy:   actor.Name(),
	}
	return s.repo.CreateAdjustment(ctx, adj, domain.AuditLog{
		Action:      domain.AuditCashAdjustment,
		Description: fmt.Sprintf("Cash %s of %s: %s", strings.ToLower(string(req.Kind)), domain.FormatCents(req.AmountCents), justification),
		PerformedBy: actor.Name(),
		ActorRole:   actor.Role,
		EntityType:  "cash_adjustment",
		EntityID:    adj.ID,
		CreatedAt:   adj.CreatedAt,
	})
}

func (s *Service) RecordAttendance(ctx context.Context, req domain.AttendanceRequest) (*domain.Attendance, error) {
	return s.repo.CreateAttendance(ctx, domain.Attendance{
		ID:           xid.New("att"),
		CreatedAt:    s.now(),
		SellerName:   actorFrom(ctx).Name(),
		CustomerName: strings.TrimSpace(req.CustomerName),
		WasSale:      req.WasSale,
		Note:         strings.TrimSpace(req.Note),
	})
}

// Closures.

// PreviewClosure aggregates date (today when blank) without persisting.
func (s *Service) PreviewClosure(ctx context.Context, date string) (domain.DailyClosure, error) {
	if strings.TrimSpace(date) == "" {
		date = s.Today()
	}
	return s.aggregator.Preview(ctx, date)
}

func (s *Service) CloseRegister(ctx context.Context, date string) (*domain.DailyClosure, error) {
	snapshot, err := s.aggregator.CloseRegister(ctx, date, actorFrom(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.closureCache.Invalidate(ctx, snapshot.Date); err != nil {
		s.logger.Warn("failed to invalidate closure cache", zap.String("date", snapshot.Date), zap.Error(err))
	}
	existing, err := s.repo.ListClosures(ctx, snapshot.Date)
	if err == nil && len(existing) > 1 {
		s.logger.Warn("register closed more than once for the same day",
			zap.String("date", snapshot.Date),
			zap.Int("snapshots", len(existing)),
		)
	}
	s.logger.Info("register closed",
		zap.String("closure_id", snapshot.ID),
		zap.String("date", snapshot.Date),
		zap.Int64("sales_total_cents", snapshot.SalesTotalCents),
	)
	return snapshot, nil
}

// ListClosures lists snapshots for date, or every snapshot when date is blank.
// Per-date reads go through the closure cache.
func (s *Service) ListClosures(ctx context.Context, date string) ([]domain.DailyClosure, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return s.repo.ListClosures(ctx, "")
	}
	if _, _, err := s.aggregator.DayBounds(date); err != nil {
		return nil, err
	}

	if cached, ok, err := s.closureCache.Get(ctx, date); err != nil {
		s.logger.Warn("closure cache read failed", zap.String("date", date), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	closures, err := s.repo.ListClosures(ctx, date)
	if err != nil {
		return nil, err
	}
	if err := s.closureCache.Set(ctx, date, closures, s.closureTTL); err != nil {
		s.logger.Warn("closure cache write failed", zap.String("date", date), zap.Error(err))
	}
	return closures, nil
}

func (s *Service) GetClosure(ctx context.Context, id string) (*domain.DailyClosure, error) {
	return s.repo.GetClosure(ctx, id)
}

// Audit, goals and users.

// ListAuditLogs returns entries newest first, restricted to date when given.
func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin, domain.RoleAuditor); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	var from, to time.Time
	if strings.TrimSpace(date) != "" {
		var err error
		from, to, err = s.aggregator.DayBounds(date)
		if err != nil {
			return nil, err
		}
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) GoalProgress(ctx context.Context, year int, month int) (domain.GoalProgress, error) {
	if month < 1 || month > 12 || year < 2000 {
		return domain.GoalProgress{}, fmt.Errorf("%w: invalid goal period", store.ErrValidation)
	}
	goal, err := s.repo.GetGoal(ctx, year, month)
	if errors.Is(err, store.ErrNotFound) {
		goal = &domain.StoreGoal{Year: year, Month: month, TargetCents: domain.DefaultGoalTargetCents}
	} else if err != nil {
		return domain.GoalProgress{}, err
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, s.loc)
	sales, err := s.repo.ListSales(ctx, from, from.AddDate(0, 1, 0))
	if err != nil {
		return domain.GoalProgress{}, err
	}
	sold := int64(0)
	for _, sale := range sales {
		sold += sale.TotalCents
	}

	progress := domain.GoalProgress{StoreGoal: *goal, SoldCents: sold}
	if goal.TargetCents > 0 {
		progress.Percent = math.Round(float64(sold)*1000/float64(goal.TargetCents)) / 10
	}
	return progress, nil
}

func (s *Service) SetGoal(ctx context.Context, year int, month int, targetCents int64) (domain.GoalProgress, error) {
	actor, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin)
	if err != nil {
		return domain.GoalProgress{}, err
	}
	if targetCents <= 0 {
		return domain.GoalProgress{}, fmt.Errorf("%w: target must be positive", store.ErrValidation)
	}
	if err := s.repo.SetGoal(ctx, domain.StoreGoal{Year: year, Month: month, TargetCents: targetCents}); err != nil {
		return domain.GoalProgress{}, err
	}
	s.logAudit(ctx, actor, domain.AuditGoalUpdated, "store_goal", fmt.Sprintf("%04d-%02d", year, month),
		fmt.Sprintf("Goal for %04d-%02d set to %s", year, month, domain.FormatCents(targetCents)))
	return s.GoalProgress(ctx, year, month)
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin); err != nil {
		return nil, err
	}
	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(accounts))
	for _, account := range accounts {
		users = append(users, domain.User{
			Username:    account.Username,
			DisplayName: account.DisplayName,
			Role:        account.Role,
			Active:      account.Active,
			CreatedAt:   account.CreatedAt,
		})
	}
	return users, nil
}

func (s *Service) ListLoginEvents(ctx context.Context, limit int) ([]domain.LoginEvent, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleAdmin, domain.RoleAuditor); err != nil {
		return nil, err
	}
	return s.repo.ListLoginEvents(ctx, limit)
}

func (s *Service) logAudit(ctx context.Context, actor domain.Actor, action string, entityType string, entityID string, description string) {
	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:          xid.New("audit"),
		Action:      action,
		Description: description,
		PerformedBy: actor.Name(),
		ActorRole:   actor.Role,
		EntityType:  entityType,
		EntityID:    entityID,
		CreatedAt:   s.now(),
	}); err != nil {
		s.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
	}
}

func actorFrom(ctx context.Context) domain.Actor {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor
	}
	return systemActor
}

func requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%w: not authenticated", ErrForbidden)
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, fmt.Errorf("%w: role %s not allowed", ErrForbidden, actor.Role)
}
