package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"lojapos/backend/internal/domain"
	"lojapos/backend/internal/store"
	"lojapos/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	productOrder    []string
	customers       map[string]domain.Customer
	sales           []domain.Sale
	gifts           []domain.Gift
	credits         []domain.ExchangeCredit
	adjustments     []domain.CashAdjustment
	attendances     []domain.Attendance
	closures        []domain.DailyClosure
	auditLogs       []domain.AuditLog
	goals           map[int]domain.StoreGoal
	usersByUsername map[string]domain.UserAccount
	loginEvents     []domain.LoginEvent
	dispositionKeys map[string]string
}

var _ store.Repository = (*Store)(nil)

// New builds an empty store holding the given products and the
// unidentified-customer record.
func New(products ...domain.Product) *Store {
	s := &Store{
		products:        make(map[string]domain.Product, len(products)),
		customers:       make(map[string]domain.Customer),
		goals:           make(map[int]domain.StoreGoal),
		usersByUsername: make(map[string]domain.UserAccount),
		dispositionKeys: make(map[string]string),
	}
	for _, p := range products {
		if _, exists := s.products[p.ID]; !exists {
			s.productOrder = append(s.productOrder, p.ID)
		}
		s.products[p.ID] = p
	}
	s.customers[domain.UnidentifiedCustomerID] = domain.Customer{
		ID:        domain.UnidentifiedCustomerID,
		Name:      "Cliente não identificado",
		CreatedAt: time.Now().UTC(),
	}
	return s
}

// NewSeeded holds the demo catalog. Accounts are seeded by the auth layer
// so the same bootstrap works against postgres.
func NewSeeded() *Store {
	return New(SeedProducts()...)
}

// SeedProducts is the demo catalog: styles with size/color variants.
func SeedProducts() []domain.Product {
	return []domain.Product{
		{ID: "prd-vest-floral-p", StyleCode: "VEST-FLORAL", Name: "Vestido Midi Floral", Category: "vestidos", PriceCents: 18990, CostCents: 7900, Stock: 6, Size: "P", Color: "Rosa"},
		{ID: "prd-vest-floral-m", StyleCode: "VEST-FLORAL", Name: "Vestido Midi Floral", Category: "vestidos", PriceCents: 18990, CostCents: 7900, Stock: 8, Size: "M", Color: "Rosa"},
		{ID: "prd-calca-wide-38", StyleCode: "CALCA-WIDE", Name: "Calça Wide Leg Jeans", Category: "calcas", PriceCents: 22900, CostCents: 9800, Stock: 5, Size: "38", Color: "Azul"},
		{ID: "prd-calca-wide-40", StyleCode: "CALCA-WIDE", Name: "Calça Wide Leg Jeans", Category: "calcas", PriceCents: 22900, CostCents: 9800, Stock: 4, Size: "40", Color: "Azul"},
		{ID: "prd-blusa-linho-u", StyleCode: "BLUSA-LINHO", Name: "Blusa de Linho", Category: "blusas", PriceCents: 12990, CostCents: 5200, Stock: 10, Size: "U", Color: "Off-white"},
		{ID: "prd-cropped-tric-p", StyleCode: "CROPPED-TRIC", Name: "Cropped Tricô", Category: "blusas", PriceCents: 8990, CostCents: 3500, Stock: 12, Size: "P", Color: "Preto"},
		{ID: "prd-saia-plis-m", StyleCode: "SAIA-PLISS", Name: "Saia Plissada", Category: "saias", PriceCents: 14990, CostCents: 6100, Stock: 7, Size: "M", Color: "Verde"},
		{ID: "prd-blazer-alf-g", StyleCode: "BLAZER-ALF", Name: "Blazer Alfaiataria", Category: "casacos", PriceCents: 32900, CostCents: 14500, Stock: 3, Size: "G", Color: "Caramelo"},
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productOrder))
	for _, id := range s.productOrder {
		products = append(products, s.products[id])
	}
	slices.SortStableFunc(products, func(a, b domain.Product) int {
		if c := cmpString(a.Category, b.Category); c != 0 {
			return c
		}
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) AdjustStock(_ context.Context, id string, delta int, audit domain.AuditLog) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if product.Stock+delta < 0 {
		return nil, store.ErrInsufficientStock
	}
	product.Stock += delta
	s.products[id] = product
	if audit.Action != "" {
		if audit.EntityID == "" {
			audit.EntityID = id
		}
		s.appendAuditLocked(audit)
	}
	return &product, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, cloneCustomer(c))
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		if c := cmpString(a.Name, b.Name); c != 0 {
			return c
		}
		return cmpString(a.ID, b.ID)
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneCustomer(customer)
	return &dup, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrValidation
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if _, exists := s.customers[customer.ID]; exists {
		return nil, fmt.Errorf("%w: customer %s exists", store.ErrConflict, customer.ID)
	}
	if s.cpfTakenLocked(customer.CPF, customer.ID) {
		return nil, fmt.Errorf("%w: cpf already registered", store.ErrConflict)
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customers[customer.ID] = customer
	dup := cloneCustomer(customer)
	return &dup, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.customers[customer.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrValidation
	}
	if s.cpfTakenLocked(customer.CPF, customer.ID) {
		return nil, fmt.Errorf("%w: cpf already registered", store.ErrConflict)
	}
	existing.Name = customer.Name
	existing.CPF = customer.CPF
	existing.Phone = customer.Phone
	existing.Email = customer.Email
	s.customers[customer.ID] = existing
	dup := cloneCustomer(existing)
	return &dup, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string, audit domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == domain.UnidentifiedCustomerID {
		return fmt.Errorf("%w: the unidentified customer cannot be deleted", store.ErrValidation)
	}
	if _, ok := s.customers[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.customers, id)
	s.appendAuditLocked(audit)
	return nil
}

func (s *Store) cpfTakenLocked(cpf string, ownerID string) bool {
	if cpf == "" {
		return false
	}
	for _, c := range s.customers {
		if c.CPF == cpf && c.ID != ownerID {
			return true
		}
	}
	return false
}

func (s *Store) CommitSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, fmt.Errorf("%w: sale has no items", store.ErrValidation)
	}
	if err := s.checkDispositionKeyLocked(sale.IdempotencyKey); err != nil {
		return nil, err
	}
	customer, ok := s.customers[sale.CustomerID]
	if !ok {
		return nil, fmt.Errorf("%w: customer %s unknown", store.ErrValidation, sale.CustomerID)
	}

	needed := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		if item.Quantity < 1 {
			return nil, store.ErrValidation
		}
		if _, exists := s.products[item.ProductID]; !exists {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
		needed[item.ProductID] += item.Quantity
	}
	for productID, qty := range needed {
		if s.products[productID].Stock < qty {
			return nil, fmt.Errorf("%w: product %s", store.ErrInsufficientStock, productID)
		}
	}

	creditIdx := make([]int, 0, len(sale.CreditIDs))
	for _, creditID := range sale.CreditIDs {
		idx := s.creditIndexLocked(creditID)
		if idx < 0 {
			return nil, fmt.Errorf("%w: credit %s", store.ErrNotFound, creditID)
		}
		if s.credits[idx].Status != domain.CreditAvailable {
			return nil, fmt.Errorf("%w: credit %s already consumed", store.ErrConflict, creditID)
		}
		creditIdx = append(creditIdx, idx)
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	s.sales = append(s.sales, cloneSale(sale))
	if sale.IdempotencyKey != "" {
		s.dispositionKeys[sale.IdempotencyKey] = sale.ID
	}
	for productID, qty := range needed {
		product := s.products[productID]
		product.Stock -= qty
		s.products[productID] = product
	}
	for _, idx := range creditIdx {
		s.credits[idx].Status = domain.CreditConsumed
		s.credits[idx].ConsumedBySaleID = sale.ID
	}
	customer.TotalSpentCents += sale.TotalCents
	purchasedAt := sale.CreatedAt
	customer.LastPurchaseAt = &purchasedAt
	s.customers[customer.ID] = customer

	dup := cloneSale(sale)
	return &dup, nil
}

func (s *Store) CommitGift(_ context.Context, gift domain.Gift, audit domain.AuditLog) (*domain.Gift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(gift.Items) == 0 {
		return nil, fmt.Errorf("%w: gift has no items", store.ErrValidation)
	}
	if err := s.checkDispositionKeyLocked(gift.IdempotencyKey); err != nil {
		return nil, err
	}
	needed := make(map[string]int, len(gift.Items))
	for _, line := range gift.Items {
		if line.Quantity < 1 {
			return nil, store.ErrValidation
		}
		if _, exists := s.products[line.Product.ID]; !exists {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, line.Product.ID)
		}
		needed[line.Product.ID] += line.Quantity
	}
	for productID, qty := range needed {
		if s.products[productID].Stock < qty {
			return nil, fmt.Errorf("%w: product %s", store.ErrInsufficientStock, productID)
		}
	}

	if gift.ID == "" {
		gift.ID = xid.New("gift")
	}
	if gift.CreatedAt.IsZero() {
		gift.CreatedAt = time.Now().UTC()
	}

	s.gifts = append(s.gifts, cloneGift(gift))
	if gift.IdempotencyKey != "" {
		s.dispositionKeys[gift.IdempotencyKey] = gift.ID
	}
	for productID, qty := range needed {
		product := s.products[productID]
		product.Stock -= qty
		s.products[productID] = product
	}
	if audit.EntityID == "" {
		audit.EntityID = gift.ID
	}
	s.appendAuditLocked(audit)

	dup := cloneGift(gift)
	return &dup, nil
}

// checkDispositionKeyLocked rejects a second sale or gift from the same cart
// checkout.
func (s *Store) checkDispositionKeyLocked(key string) error {
	if key == "" {
		return nil
	}
	if existing, ok := s.dispositionKeys[key]; ok {
		return fmt.Errorf("%w: cart checkout already committed as %s", store.ErrConflict, existing)
	}
	return nil
}

func (s *Store) CommitCredit(_ context.Context, credit domain.ExchangeCredit, audit domain.AuditLog) (*domain.ExchangeCredit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(credit.ReturnedItems) == 0 || credit.CreditAmountCents < 0 {
		return nil, store.ErrValidation
	}
	sale, ok := s.saleLocked(credit.OriginalSaleID)
	if !ok {
		return nil, fmt.Errorf("%w: sale %s", store.ErrNotFound, credit.OriginalSaleID)
	}
	returned := s.returnedQuantitiesLocked(sale.ID)
	for _, item := range credit.ReturnedItems {
		line, exists := sale.Line(item.ProductID)
		if !exists {
			return nil, fmt.Errorf("%w: product %s is not part of sale %s", store.ErrValidation, item.ProductID, sale.ID)
		}
		if item.Quantity < 1 || returned[item.ProductID]+item.Quantity > line.Quantity {
			return nil, fmt.Errorf("%w: return quantity exceeds sold quantity", store.ErrValidation)
		}
		if _, exists := s.products[item.ProductID]; !exists {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
	}

	if credit.ID == "" {
		credit.ID = xid.New("credit")
	}
	if credit.CreatedAt.IsZero() {
		credit.CreatedAt = time.Now().UTC()
	}
	if credit.Status == "" {
		credit.Status = domain.CreditAvailable
	}

	s.credits = append(s.credits, cloneCredit(credit))
	for _, item := range credit.ReturnedItems {
		product := s.products[item.ProductID]
		product.Stock += item.Quantity
		s.products[item.ProductID] = product
	}
	if audit.EntityID == "" {
		audit.EntityID = credit.ID
	}
	s.appendAuditLocked(audit)

	dup := cloneCredit(credit)
	return &dup, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.saleLocked(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneSale(sale)
	return &dup, nil
}

func (s *Store) SearchSales(_ context.Context, query string, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 8)
	if query == "" {
		return result, nil
	}
	for i := len(s.sales) - 1; i >= 0; i-- {
		sale := s.sales[i]
		if sale.ID == query || strings.Contains(sale.CustomerName, query) {
			result = append(result, cloneSale(sale))
		}
	}
	sortNewestFirst(result, func(sale domain.Sale) time.Time { return sale.CreatedAt })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if inRange(sale.CreatedAt, from, to) {
			result = append(result, cloneSale(sale))
		}
	}
	return result, nil
}

func (s *Store) ListGifts(_ context.Context, from time.Time, to time.Time) ([]domain.Gift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Gift, 0, len(s.gifts))
	for _, gift := range s.gifts {
		if inRange(gift.CreatedAt, from, to) {
			result = append(result, cloneGift(gift))
		}
	}
	return result, nil
}

func (s *Store) GetCredit(_ context.Context, id string) (*domain.ExchangeCredit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.creditIndexLocked(id)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	dup := cloneCredit(s.credits[idx])
	return &dup, nil
}

func (s *Store) ListCredits(_ context.Context, status domain.CreditStatus) ([]domain.ExchangeCredit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ExchangeCredit, 0, len(s.credits))
	for _, credit := range s.credits {
		if status != "" && credit.Status != status {
			continue
		}
		result = append(result, cloneCredit(credit))
	}
	sortNewestFirst(result, func(c domain.ExchangeCredit) time.Time { return c.CreatedAt })
	return result, nil
}

func (s *Store) ReturnedQuantities(_ context.Context, saleID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.returnedQuantitiesLocked(saleID), nil
}

func (s *Store) returnedQuantitiesLocked(saleID string) map[string]int {
	result := make(map[string]int)
	for _, credit := range s.credits {
		if credit.OriginalSaleID != saleID {
			continue
		}
		for _, item := range credit.ReturnedItems {
			result[item.ProductID] += item.Quantity
		}
	}
	return result
}

func (s *Store) CreateAdjustment(_ context.Context, adj domain.CashAdjustment, audit domain.AuditLog) (*domain.CashAdjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if adj.AmountCents < 1 || strings.TrimSpace(adj.Justification) == "" {
		return nil, store.ErrValidation
	}
	if adj.Kind != domain.AdjustmentSurplus && adj.Kind != domain.AdjustmentShortage {
		return nil, store.ErrValidation
	}
	if adj.ID == "" {
		adj.ID = xid.New("adj")
	}
	if adj.CreatedAt.IsZero() {
		adj.CreatedAt = time.Now().UTC()
	}
	s.adjustments = append(s.adjustments, adj)
	if audit.EntityID == "" {
		audit.EntityID = adj.ID
	}
	s.appendAuditLocked(audit)
	return &adj, nil
}

func (s *Store) ListAdjustments(_ context.Context, from time.Time, to time.Time) ([]domain.CashAdjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CashAdjustment, 0, len(s.adjustments))
	for _, adj := range s.adjustments {
		if inRange(adj.CreatedAt, from, to) {
			result = append(result, adj)
		}
	}
	return result, nil
}

func (s *Store) CreateAttendance(_ context.Context, attendance domain.Attendance) (*domain.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if attendance.ID == "" {
		attendance.ID = xid.New("att")
	}
	if attendance.CreatedAt.IsZero() {
		attendance.CreatedAt = time.Now().UTC()
	}
	s.attendances = append(s.attendances, attendance)
	return &attendance, nil
}

func (s *Store) ListAttendances(_ context.Context, from time.Time, to time.Time) ([]domain.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Attendance, 0, len(s.attendances))
	for _, attendance := range s.attendances {
		if inRange(attendance.CreatedAt, from, to) {
			result = append(result, attendance)
		}
	}
	return result, nil
}

func (s *Store) CreateClosure(_ context.Context, closure domain.DailyClosure, audit domain.AuditLog) (*domain.DailyClosure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if closure.Date == "" {
		return nil, store.ErrValidation
	}
	if closure.ID == "" {
		closure.ID = xid.New("closure")
	}
	if closure.ClosedAt.IsZero() {
		closure.ClosedAt = time.Now().UTC()
	}
	s.closures = append(s.closures, cloneClosure(closure))
	if audit.EntityID == "" {
		audit.EntityID = closure.ID
	}
	s.appendAuditLocked(audit)
	dup := cloneClosure(closure)
	return &dup, nil
}

func (s *Store) ListClosures(_ context.Context, date string) ([]domain.DailyClosure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DailyClosure, 0, 4)
	for _, closure := range s.closures {
		if date != "" && closure.Date != date {
			continue
		}
		result = append(result, cloneClosure(closure))
	}
	return result, nil
}

func (s *Store) GetClosure(_ context.Context, id string) (*domain.DailyClosure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, closure := range s.closures {
		if closure.ID == id {
			dup := cloneClosure(closure)
			return &dup, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendAuditLocked(entry)
	return nil
}

func (s *Store) appendAuditLocked(entry domain.AuditLog) {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	// Walk backwards so equal timestamps keep most-recent-first order.
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if inRange(entry.CreatedAt, from, to) {
			result = append(result, entry)
		}
	}
	sortNewestFirst(result, func(entry domain.AuditLog) time.Time { return entry.CreatedAt })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetGoal(_ context.Context, year int, month int) (*domain.StoreGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	goal, ok := s.goals[goalKey(year, month)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &goal, nil
}

func (s *Store) SetGoal(_ context.Context, goal domain.StoreGoal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if goal.Month < 1 || goal.Month > 12 || goal.Year < 2000 || goal.TargetCents < 1 {
		return store.ErrValidation
	}
	s.goals[goalKey(goal.Year, goal.Month)] = goal
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[username]; exists {
		return fmt.Errorf("%w: username already exists", store.ErrConflict)
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleSeller
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) DeleteUser(_ context.Context, username string, audit domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if _, exists := s.usersByUsername[username]; !exists {
		return store.ErrNotFound
	}
	delete(s.usersByUsername, username)
	if audit.EntityID == "" {
		audit.EntityID = username
	}
	s.appendAuditLocked(audit)
	return nil
}

func (s *Store) RecordLogin(_ context.Context, event domain.LoginEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	s.loginEvents = append(s.loginEvents, event)
	if overflow := len(s.loginEvents) - domain.LoginEventRetention; overflow > 0 {
		s.loginEvents = slices.Clone(s.loginEvents[overflow:])
	}
	return nil
}

func (s *Store) ListLoginEvents(_ context.Context, limit int) ([]domain.LoginEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.LoginEvent, 0, len(s.loginEvents))
	for i := len(s.loginEvents) - 1; i >= 0; i-- {
		result = append(result, s.loginEvents[i])
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) saleLocked(id string) (domain.Sale, bool) {
	for _, sale := range s.sales {
		if sale.ID == id {
			return sale, true
		}
	}
	return domain.Sale{}, false
}

func (s *Store) creditIndexLocked(id string) int {
	for i, credit := range s.credits {
		if credit.ID == id {
			return i
		}
	}
	return -1
}

func goalKey(year int, month int) int {
	return year*100 + month
}

// inRange treats a zero bound as open.
func inRange(at time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && !at.Before(to) {
		return false
	}
	return true
}

// sortNewestFirst is stable so callers can pre-order ties.
func sortNewestFirst[T any](items []T, at func(T) time.Time) {
	slices.SortStableFunc(items, func(a, b T) int {
		return at(b).Compare(at(a))
	})
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneCustomer(src domain.Customer) domain.Customer {
	dup := src
	if src.LastPurchaseAt != nil {
		at := *src.LastPurchaseAt
		dup.LastPurchaseAt = &at
	}
	return dup
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	dup.Items = slices.Clone(src.Items)
	dup.CreditIDs = slices.Clone(src.CreditIDs)
	return dup
}

func cloneGift(src domain.Gift) domain.Gift {
	dup := src
	dup.Items = slices.Clone(src.Items)
	return dup
}

func cloneCredit(src domain.ExchangeCredit) domain.ExchangeCredit {
	dup := src
	dup.ReturnedItems = slices.Clone(src.ReturnedItems)
	return dup
}

func cloneClosure(src domain.DailyClosure) domain.DailyClosure {
	dup := src
	dup.PaymentBreakdown = domain.NewPaymentBreakdown()
	for method, cents := range src.PaymentBreakdown {
		dup.PaymentBreakdown[method] = cents
	}
	return dup
}
