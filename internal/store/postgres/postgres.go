package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"lojapos/backend/internal/domain"
	"lojapos/backend/internal/store"
	"lojapos/backend/internal/xid"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	db         *sql.DB
	retryDelay []time.Duration
}

var _ store.Repository = (*Store)(nil)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:         db,
		retryDelay: []time.Duration{50 * time.Millisecond, 150 * time.Millisecond, 400 * time.Millisecond},
	}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// inTx runs fn in a serializable transaction, retrying serialization
// failures and deadlocks.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isRetryable(err) || attempt >= len(s.retryDelay) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelay[attempt]):
		}
	}
}

func (s *Store) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

const productColumns = `id, style_code, name, category, price_cents, cost_cents, stock, size, color, COALESCE(description, ''), COALESCE(image_url, '')`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.StyleCode, &p.Name, &p.Category, &p.PriceCents, &p.CostCents, &p.Stock, &p.Size, &p.Color, &p.Description, &p.ImageURL)
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY category, name, size`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) AdjustStock(ctx context.Context, id string, delta int, audit domain.AuditLog) (*domain.Product, error) {
	var product domain.Product
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := scanProduct(tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if p.Stock+delta < 0 {
			return store.ErrInsufficientStock
		}
		if _, err := tx.ExecContext(ctx, `UPDATE products SET stock = stock + $2 WHERE id = $1`, id, delta); err != nil {
			return err
		}
		p.Stock += delta
		product = p
		if audit.Action == "" {
			return nil
		}
		if audit.EntityID == "" {
			audit.EntityID = id
		}
		return insertAudit(ctx, tx, audit)
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

const customerColumns = `id, name, COALESCE(cpf, ''), COALESCE(phone, ''), COALESCE(email, ''), total_spent_cents, last_purchase_at, created_at`

func scanCustomer(row interface{ Scan(...any) error }) (domain.Customer, error) {
	var c domain.Customer
	var lastPurchase sql.NullTime
	if err := row.Scan(&c.ID, &c.Name, &c.CPF, &c.Phone, &c.Email, &c.TotalSpentCents, &lastPurchase, &c.CreatedAt); err != nil {
		return c, err
	}
	if lastPurchase.Valid {
		at := lastPurchase.Time.UTC()
		c.LastPurchaseAt = &at
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrValidation
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, cpf, phone, email, total_spent_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,0,$6)
	`, customer.ID, customer.Name, nullIfEmpty(customer.CPF), nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email), customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: cpf already registered", store.ErrConflict)
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrValidation
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers SET name = $2, cpf = $3, phone = $4, email = $5
		WHERE id = $1
	`, customer.ID, customer.Name, nullIfEmpty(customer.CPF), nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: cpf already registered", store.ErrConflict)
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetCustomer(ctx, customer.ID)
}

func (s *Store) DeleteCustomer(ctx context.Context, id string, audit domain.AuditLog) error {
	if id == domain.UnidentifiedCustomerID {
		return fmt.Errorf("%w: the unidentified customer cannot be deleted", store.ErrValidation)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return store.ErrNotFound
		}
		if audit.EntityID == "" {
			audit.EntityID = id
		}
		return insertAudit(ctx, tx, audit)
	})
}

func (s *Store) CommitSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, fmt.Errorf("%w: sale has no items", store.ErrValidation)
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	needed := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		if item.Quantity < 1 {
			return nil, store.ErrValidation
		}
		needed[item.ProductID] += item.Quantity
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var customerExists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, sale.CustomerID).Scan(&customerExists); err != nil {
			return err
		}
		if !customerExists {
			return fmt.Errorf("%w: customer %s unknown", store.ErrValidation, sale.CustomerID)
		}

		if err := claimCheckout(ctx, tx, sale.IdempotencyKey, sale.ID, sale.CreatedAt); err != nil {
			return err
		}
		if err := lockAndCheckStock(ctx, tx, needed); err != nil {
			return err
		}
		if err := lockAvailableCredits(ctx, tx, sale.CreditIDs); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sales (
				id, created_at, seller_id, seller_name, customer_id, customer_name,
				subtotal_cents, exchange_credit_used_cents, total_cents, payment_method, payment_detail
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, sale.ID, sale.CreatedAt, sale.SellerID, sale.SellerName, sale.CustomerID, sale.CustomerName,
			sale.SubtotalCents, sale.ExchangeCreditUsedCents, sale.TotalCents, string(sale.PaymentMethod), nullIfEmpty(sale.PaymentDetail)); err != nil {
			return err
		}
		for i, item := range sale.Items {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO sale_items (sale_id, line_no, product_id, name, quantity, price_at_sale_cents, size, color, price_altered, price_note)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			`, sale.ID, i+1, item.ProductID, item.Name, item.Quantity, item.PriceAtSaleCents, item.Size, item.Color, item.PriceAltered, nullIfEmpty(item.PriceNote)); err != nil {
				return err
			}
		}

		for productID, qty := range needed {
			if _, err := tx.ExecContext(ctx, `UPDATE products SET stock = stock - $2 WHERE id = $1`, productID, qty); err != nil {
				return err
			}
		}
		if len(sale.CreditIDs) > 0 {
			if _, err := tx.ExecContext(ctx, `
				UPDATE exchange_credits SET status = $2, consumed_by_sale_id = $3
				WHERE id = ANY($1)
			`, sale.CreditIDs, string(domain.CreditConsumed), sale.ID); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE customers SET total_spent_cents = total_spent_cents + $2, last_purchase_at = $3
			WHERE id = $1
		`, sale.CustomerID, sale.TotalCents, sale.CreatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// claimCheckout records the cart checkout key so the same cart contents can
// only be committed once.
func claimCheckout(ctx context.Context, tx *sql.Tx, key string, dispositionID string, at time.Time) error {
	if key == "" {
		return nil
	}
	var existing string
	err := tx.QueryRowContext(ctx, `SELECT disposition_id FROM cart_checkouts WHERE idempotency_key = $1`, key).Scan(&existing)
	if err == nil {
		return fmt.Errorf("%w: cart checkout already committed as %s", store.ErrConflict, existing)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cart_checkouts (idempotency_key, disposition_id, created_at) VALUES ($1, $2, $3)
	`, key, dispositionID, at); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: cart checkout already committed", store.ErrConflict)
		}
		return err
	}
	return nil
}

func lockAndCheckStock(ctx context.Context, tx *sql.Tx, needed map[string]int) error {
	ids := make([]string, 0, len(needed))
	for id := range needed {
		ids = append(ids, id)
	}
	rows, err := tx.QueryContext(ctx, `SELECT id, stock FROM products WHERE id = ANY($1) FOR UPDATE`, ids)
	if err != nil {
		return err
	}
	stock := make(map[string]int, len(ids))
	for rows.Next() {
		var id string
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			_ = rows.Close()
			return err
		}
		stock[id] = qty
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for id, qty := range needed {
		available, exists := stock[id]
		if !exists {
			return fmt.Errorf("%w: product %s", store.ErrNotFound, id)
		}
		if available < qty {
			return fmt.Errorf("%w: product %s", store.ErrInsufficientStock, id)
		}
	}
	return nil
}

func lockAvailableCredits(ctx context.Context, tx *sql.Tx, creditIDs []string) error {
	if len(creditIDs) == 0 {
		return nil
	}
	rows, err := tx.QueryContext(ctx, `SELECT id, status FROM exchange_credits WHERE id = ANY($1) FOR UPDATE`, creditIDs)
	if err != nil {
		return err
	}
	status := make(map[string]string, len(creditIDs))
	for rows.Next() {
		var id, st string
		if err := rows.Scan(&id, &st); err != nil {
			_ = rows.Close()
			return err
		}
		status[id] = st
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, id := range creditIDs {
		st, exists := status[id]
		if !exists {
			return fmt.Errorf("%w: credit %s", store.ErrNotFound, id)
		}
		if st != string(domain.CreditAvailable) {
			return fmt.Errorf("%w: credit %s already consumed", store.ErrConflict, id)
		}
	}
	return nil
}

func (s *Store) CommitGift(ctx context.Context, gift domain.Gift, audit domain.AuditLog) (*domain.Gift, error) {
	if len(gift.Items) == 0 {
		return nil, fmt.Errorf("%w: gift has no items", store.ErrValidation)
	}
	if gift.ID == "" {
		gift.ID = xid.New("gift")
	}
	if gift.CreatedAt.IsZero() {
		gift.CreatedAt = time.Now().UTC()
	}
	needed := make(map[string]int, len(gift.Items))
	for _, line := range gift.Items {
		if line.Quantity < 1 {
			return nil, store.ErrValidation
		}
		needed[line.Product.ID] += line.Quantity
	}
	items, err := json.Marshal(gift.Items)
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := claimCheckout(ctx, tx, gift.IdempotencyKey, gift.ID, gift.CreatedAt); err != nil {
			return err
		}
		if err := lockAndCheckStock(ctx, tx, needed); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO gifts (id, created_at, recipient_name, authorized_by, total_value_cents, items)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, gift.ID, gift.CreatedAt, gift.RecipientName, gift.AuthorizedBy, gift.TotalValueCents, string(items)); err != nil {
			return err
		}
		for productID, qty := range needed {
			if _, err := tx.ExecContext(ctx, `UPDATE products SET stock = stock - $2 WHERE id = $1`, productID, qty); err != nil {
				return err
			}
		}
		if audit.EntityID == "" {
			audit.EntityID = gift.ID
		}
		return insertAudit(ctx, tx, audit)
	})
	if err != nil {
		return nil, err
	}
	return &gift, nil
}

func (s *Store) CommitCredit(ctx context.Context, credit domain.ExchangeCredit, audit domain.AuditLog) (*domain.ExchangeCredit, error) {
	if len(credit.ReturnedItems) == 0 || credit.CreditAmountCents < 0 {
		return nil, store.ErrValidation
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
	items, err := json.Marshal(credit.ReturnedItems)
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		sale, err := getSale(ctx, tx, credit.OriginalSaleID, true)
		if err != nil {
			return err
		}
		returned, err := returnedQuantities(ctx, tx, sale.ID)
		if err != nil {
			return err
		}
		for _, item := range credit.ReturnedItems {
			line, exists := sale.Line(item.ProductID)
			if !exists {
				return fmt.Errorf("%w: product %s is not part of sale %s", store.ErrValidation, item.ProductID, sale.ID)
			}
			if item.Quantity < 1 || returned[item.ProductID]+item.Quantity > line.Quantity {
				return fmt.Errorf("%w: return quantity exceeds sold quantity", store.ErrValidation)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO exchange_credits (
				id, created_at, original_sale_id, customer_name, returned_items,
				credit_amount_cents, status, consumed_by_sale_id, authorized_by
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, credit.ID, credit.CreatedAt, credit.OriginalSaleID, credit.CustomerName, string(items),
			credit.CreditAmountCents, string(credit.Status), nullIfEmpty(credit.ConsumedBySaleID), credit.AuthorizedBy); err != nil {
			return err
		}
		for _, item := range credit.ReturnedItems {
			res, err := tx.ExecContext(ctx, `UPDATE products SET stock = stock + $2 WHERE id = $1`, item.ProductID, item.Quantity)
			if err != nil {
				return err
			}
			if affected, err := res.RowsAffected(); err != nil {
				return err
			} else if affected == 0 {
				return fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
			}
		}
		if audit.EntityID == "" {
			audit.EntityID = credit.ID
		}
		return insertAudit(ctx, tx, audit)
	})
	if err != nil {
		return nil, err
	}
	return &credit, nil
}

const saleColumns = `id, created_at, seller_id, seller_name, customer_id, customer_name,
	subtotal_cents, exchange_credit_used_cents, total_cents, payment_method, COALESCE(payment_detail, '')`

func scanSale(row interface{ Scan(...any) error }) (domain.Sale, error) {
	var sale domain.Sale
	var method string
	err := row.Scan(&sale.ID, &sale.CreatedAt, &sale.SellerID, &sale.SellerName, &sale.CustomerID, &sale.CustomerName,
		&sale.SubtotalCents, &sale.ExchangeCreditUsedCents, &sale.TotalCents, &method, &sale.PaymentDetail)
	sale.PaymentMethod = domain.PaymentMethod(method)
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, err
}

func getSale(ctx context.Context, q queryer, id string, forUpdate bool) (*domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	sale, err := scanSale(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sales := []domain.Sale{sale}
	if err := loadSaleDetails(ctx, q, sales); err != nil {
		return nil, err
	}
	return &sales[0], nil
}

// loadSaleDetails fills items and consumed credit ids in place.
func loadSaleDetails(ctx context.Context, q queryer, sales []domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]string, len(sales))
	index := make(map[string]int, len(sales))
	for i, sale := range sales {
		ids[i] = sale.ID
		index[sale.ID] = i
		sales[i].Items = make([]domain.SaleLine, 0, 4)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT sale_id, product_id, name, quantity, price_at_sale_cents, size, color, price_altered, COALESCE(price_note, '')
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, line_no
	`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var saleID string
		var line domain.SaleLine
		if err := rows.Scan(&saleID, &line.ProductID, &line.Name, &line.Quantity, &line.PriceAtSaleCents, &line.Size, &line.Color, &line.PriceAltered, &line.PriceNote); err != nil {
			_ = rows.Close()
			return err
		}
		i := index[saleID]
		sales[i].Items = append(sales[i].Items, line)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	creditRows, err := q.QueryContext(ctx, `
		SELECT consumed_by_sale_id, id FROM exchange_credits
		WHERE consumed_by_sale_id = ANY($1)
		ORDER BY created_at
	`, ids)
	if err != nil {
		return err
	}
	defer creditRows.Close()
	for creditRows.Next() {
		var saleID, creditID string
		if err := creditRows.Scan(&saleID, &creditID); err != nil {
			return err
		}
		i := index[saleID]
		sales[i].CreditIDs = append(sales[i].CreditIDs, creditID)
	}
	return creditRows.Err()
}

func (s *Store) querySales(ctx context.Context, query string, args ...any) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, 0, 16)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if err := loadSaleDetails(ctx, s.db, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return getSale(ctx, s.db, id, false)
}

func (s *Store) SearchSales(ctx context.Context, query string, limit int) ([]domain.Sale, error) {
	if query == "" {
		return []domain.Sale{}, nil
	}
	if limit < 1 {
		limit = 20
	}
	// strpos is case-sensitive, matching the register's lookup behavior.
	return s.querySales(ctx, `
		SELECT `+saleColumns+` FROM sales
		WHERE id = $1 OR strpos(customer_name, $1) > 0
		ORDER BY created_at DESC
		LIMIT $2
	`, query, limit)
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	return s.querySales(ctx, `
		SELECT `+saleColumns+` FROM sales
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at
	`, nullTime(from), nullTime(to))
}

func (s *Store) ListGifts(ctx context.Context, from time.Time, to time.Time) ([]domain.Gift, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, recipient_name, authorized_by, total_value_cents, items
		FROM gifts
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at
	`, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	gifts := make([]domain.Gift, 0, 8)
	for rows.Next() {
		var gift domain.Gift
		var items []byte
		if err := rows.Scan(&gift.ID, &gift.CreatedAt, &gift.RecipientName, &gift.AuthorizedBy, &gift.TotalValueCents, &items); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(items, &gift.Items); err != nil {
			return nil, fmt.Errorf("decode gift %s items: %w", gift.ID, err)
		}
		gift.CreatedAt = gift.CreatedAt.UTC()
		gifts = append(gifts, gift)
	}
	return gifts, rows.Err()
}

const creditColumns = `id, created_at, original_sale_id, customer_name, returned_items, credit_amount_cents, status, COALESCE(consumed_by_sale_id, ''), authorized_by`

func scanCredit(row interface{ Scan(...any) error }) (domain.ExchangeCredit, error) {
	var credit domain.ExchangeCredit
	var items []byte
	var status string
	if err := row.Scan(&credit.ID, &credit.CreatedAt, &credit.OriginalSaleID, &credit.CustomerName, &items,
		&credit.CreditAmountCents, &status, &credit.ConsumedBySaleID, &credit.AuthorizedBy); err != nil {
		return credit, err
	}
	credit.Status = domain.CreditStatus(status)
	credit.CreatedAt = credit.CreatedAt.UTC()
	if err := json.Unmarshal(items, &credit.ReturnedItems); err != nil {
		return credit, fmt.Errorf("decode credit %s items: %w", credit.ID, err)
	}
	return credit, nil
}

func (s *Store) GetCredit(ctx context.Context, id string) (*domain.ExchangeCredit, error) {
	credit, err := scanCredit(s.db.QueryRowContext(ctx, `SELECT `+creditColumns+` FROM exchange_credits WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &credit, nil
}

func (s *Store) ListCredits(ctx context.Context, status domain.CreditStatus) ([]domain.ExchangeCredit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+creditColumns+` FROM exchange_credits
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
	`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	credits := make([]domain.ExchangeCredit, 0, 8)
	for rows.Next() {
		credit, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		credits = append(credits, credit)
	}
	return credits, rows.Err()
}

func (s *Store) ReturnedQuantities(ctx context.Context, saleID string) (map[string]int, error) {
	return returnedQuantities(ctx, s.db, saleID)
}

func returnedQuantities(ctx context.Context, q queryer, saleID string) (map[string]int, error) {
	rows, err := q.QueryContext(ctx, `SELECT returned_items FROM exchange_credits WHERE original_sale_id = $1`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var items []domain.SaleLine
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		for _, item := range items {
			result[item.ProductID] += item.Quantity
		}
	}
	return result, rows.Err()
}

func (s *Store) CreateAdjustment(ctx context.Context, adj domain.CashAdjustment, audit domain.AuditLog) (*domain.CashAdjustment, error) {
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
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cash_adjustments (id, created_at, kind, amount_cents, justification, performed_by)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, adj.ID, adj.CreatedAt, string(adj.Kind), adj.AmountCents, adj.Justification, adj.PerformedBy); err != nil {
			return err
		}
		if audit.EntityID == "" {
			audit.EntityID = adj.ID
		}
		return insertAudit(ctx, tx, audit)
	})
	if err != nil {
		return nil, err
	}
	return &adj, nil
}

func (s *Store) ListAdjustments(ctx context.Context, from time.Time, to time.Time) ([]domain.CashAdjustment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, kind, amount_cents, justification, performed_by
		FROM cash_adjustments
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at
	`, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.CashAdjustment, 0, 8)
	for rows.Next() {
		var adj domain.CashAdjustment
		var kind string
		if err := rows.Scan(&adj.ID, &adj.CreatedAt, &kind, &adj.AmountCents, &adj.Justification, &adj.PerformedBy); err != nil {
			return nil, err
		}
		adj.Kind = domain.AdjustmentKind(kind)
		adj.CreatedAt = adj.CreatedAt.UTC()
		result = append(result, adj)
	}
	return result, rows.Err()
}

func (s *Store) CreateAttendance(ctx context.Context, attendance domain.Attendance) (*domain.Attendance, error) {
	if attendance.ID == "" {
		attendance.ID = xid.New("att")
	}
	if attendance.CreatedAt.IsZero() {
		attendance.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendances (id, created_at, seller_name, customer_name, was_sale, note)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, attendance.ID, attendance.CreatedAt, attendance.SellerName, attendance.CustomerName, attendance.WasSale, nullIfEmpty(attendance.Note))
	if err != nil {
		return nil, err
	}
	return &attendance, nil
}

func (s *Store) ListAttendances(ctx context.Context, from time.Time, to time.Time) ([]domain.Attendance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, seller_name, customer_name, was_sale, COALESCE(note, '')
		FROM attendances
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at
	`, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Attendance, 0, 16)
	for rows.Next() {
		var a domain.Attendance
		if err := rows.Scan(&a.ID, &a.CreatedAt, &a.SellerName, &a.CustomerName, &a.WasSale, &a.Note); err != nil {
			return nil, err
		}
		a.CreatedAt = a.CreatedAt.UTC()
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) CreateClosure(ctx context.Context, closure domain.DailyClosure, audit domain.AuditLog) (*domain.DailyClosure, error) {
	if _, err := time.Parse(domain.DateLayout, closure.Date); err != nil {
		return nil, store.ErrValidation
	}
	if closure.ID == "" {
		closure.ID = xid.New("closure")
	}
	if closure.ClosedAt.IsZero() {
		closure.ClosedAt = time.Now().UTC()
	}
	breakdown, err := json.Marshal(closure.PaymentBreakdown)
	if err != nil {
		return nil, err
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO daily_closures (
				id, date, closed_by, closed_at, sales_total_cents, sales_count, gifts_total_cents,
				gifts_count, adjustments_net_cents, attendances_count, payment_breakdown
			)
			VALUES ($1,$2::date,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, closure.ID, closure.Date, closure.ClosedBy, closure.ClosedAt, closure.SalesTotalCents, closure.SalesCount,
			closure.GiftsTotalCents, closure.GiftsCount, closure.AdjustmentsNetCents, closure.AttendancesCount, string(breakdown)); err != nil {
			return err
		}
		if audit.EntityID == "" {
			audit.EntityID = closure.ID
		}
		return insertAudit(ctx, tx, audit)
	})
	if err != nil {
		return nil, err
	}
	return &closure, nil
}

const closureColumns = `id, to_char(date, 'YYYY-MM-DD'), closed_by, closed_at, sales_total_cents, sales_count,
	gifts_total_cents, gifts_count, adjustments_net_cents, attendances_count, payment_breakdown`

func scanClosure(row interface{ Scan(...any) error }) (domain.DailyClosure, error) {
	var c domain.DailyClosure
	var breakdown []byte
	if err := row.Scan(&c.ID, &c.Date, &c.ClosedBy, &c.ClosedAt, &c.SalesTotalCents, &c.SalesCount,
		&c.GiftsTotalCents, &c.GiftsCount, &c.AdjustmentsNetCents, &c.AttendancesCount, &breakdown); err != nil {
		return c, err
	}
	c.ClosedAt = c.ClosedAt.UTC()
	decoded := map[domain.PaymentMethod]int64{}
	if err := json.Unmarshal(breakdown, &decoded); err != nil {
		return c, fmt.Errorf("decode closure %s breakdown: %w", c.ID, err)
	}
	c.PaymentBreakdown = domain.NewPaymentBreakdown()
	for method, cents := range decoded {
		if method.Valid() {
			c.PaymentBreakdown[method] = cents
		}
	}
	return c, nil
}

func (s *Store) ListClosures(ctx context.Context, date string) ([]domain.DailyClosure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+closureColumns+` FROM daily_closures
		WHERE ($1 = '' OR date = NULLIF($1, '')::date)
		ORDER BY closed_at
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	closures := make([]domain.DailyClosure, 0, 4)
	for rows.Next() {
		c, err := scanClosure(rows)
		if err != nil {
			return nil, err
		}
		closures = append(closures, c)
	}
	return closures, rows.Err()
}

func (s *Store) GetClosure(ctx context.Context, id string) (*domain.DailyClosure, error) {
	c, err := scanClosure(s.db.QueryRowContext(ctx, `SELECT `+closureColumns+` FROM daily_closures WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	return insertAudit(ctx, s.db, entry)
}

func insertAudit(ctx context.Context, q queryer, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO audit_logs (id, action, description, performed_by, actor_role, entity_type, entity_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.Action, entry.Description, entry.PerformedBy, entry.ActorRole, entry.EntityType, entry.EntityID, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, description, performed_by, actor_role, entity_type, entity_id, created_at
		FROM audit_logs
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, seq DESC
		LIMIT $3
	`, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.Description, &entry.PerformedBy, &entry.ActorRole, &entry.EntityType, &entry.EntityID, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) GetGoal(ctx context.Context, year int, month int) (*domain.StoreGoal, error) {
	goal := domain.StoreGoal{Year: year, Month: month}
	err := s.db.QueryRowContext(ctx, `SELECT target_cents FROM store_goals WHERE year = $1 AND month = $2`, year, month).Scan(&goal.TargetCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &goal, nil
}

func (s *Store) SetGoal(ctx context.Context, goal domain.StoreGoal) error {
	if goal.Month < 1 || goal.Month > 12 || goal.Year < 2000 || goal.TargetCents < 1 {
		return store.ErrValidation
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO store_goals (year, month, target_cents) VALUES ($1,$2,$3)
		ON CONFLICT (year, month) DO UPDATE SET target_cents = EXCLUDED.target_cents
	`, goal.Year, goal.Month, goal.TargetCents)
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if user.Role == "" {
		user.Role = domain.RoleSeller
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, display_name, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,true,$5)
	`, username, user.DisplayName, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username already exists", store.ErrConflict)
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, display_name, password_hash, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.DisplayName, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE username = $1`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, username string, audit domain.AuditLog) error {
	username = strings.ToLower(strings.TrimSpace(username))
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE username = $1`, username)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return store.ErrNotFound
		}
		if audit.EntityID == "" {
			audit.EntityID = username
		}
		return insertAudit(ctx, tx, audit)
	})
}

func (s *Store) RecordLogin(ctx context.Context, event domain.LoginEvent) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO login_events (username, success, at) VALUES ($1,$2,$3)`, event.Username, event.Success, event.At); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			DELETE FROM login_events
			WHERE id NOT IN (SELECT id FROM login_events ORDER BY id DESC LIMIT $1)
		`, domain.LoginEventRetention)
		return err
	})
}

func (s *Store) ListLoginEvents(ctx context.Context, limit int) ([]domain.LoginEvent, error) {
	if limit < 1 || limit > domain.LoginEventRetention {
		limit = domain.LoginEventRetention
	}
	rows, err := s.db.QueryContext(ctx, `SELECT username, success, at FROM login_events ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.LoginEvent, 0, limit)
	for rows.Next() {
		var event domain.LoginEvent
		if err := rows.Scan(&event.Username, &event.Success, &event.At); err != nil {
			return nil, err
		}
		event.At = event.At.UTC()
		events = append(events, event)
	}
	return events, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}
