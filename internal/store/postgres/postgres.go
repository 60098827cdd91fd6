// Package postgres implements store.Repository on PostgreSQL via the pgx
// stdlib driver. It is the optional backend for multi-terminal installs
// sharing one database; semantics match the sqlite store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"tezgahpos/internal/domain"
	"tezgahpos/internal/store"
)

type Store struct {
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		profit_method TEXT,
		profit_value NUMERIC(14,4)
	)`,
	`CREATE TABLE IF NOT EXISTS tax_rates (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		percent NUMERIC(7,4) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS customer_groups (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id BIGSERIAL PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		group_id BIGINT REFERENCES customer_groups(id),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		sku TEXT NOT NULL UNIQUE,
		barcode TEXT UNIQUE,
		name TEXT NOT NULL,
		category_id BIGINT REFERENCES categories(id),
		tax_rate_id BIGINT REFERENCES tax_rates(id),
		purchase_currency TEXT NOT NULL DEFAULT 'TL',
		purchase_price NUMERIC(14,4) NOT NULL DEFAULT 0,
		stock_qty INTEGER NOT NULL DEFAULT 0,
		min_stock_level INTEGER NOT NULL DEFAULT 0,
		main_product_sku TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id BIGSERIAL PRIMARY KEY,
		customer_id BIGINT NOT NULL REFERENCES customers(id),
		sold_at TIMESTAMPTZ NOT NULL,
		total NUMERIC(14,2) NOT NULL,
		amount_paid NUMERIC(14,2) NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS sale_lines (
		id BIGSERIAL PRIMARY KEY,
		sale_id BIGINT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
		product_id BIGINT NOT NULL REFERENCES products(id),
		product_name TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit_price NUMERIC(14,2) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id BIGSERIAL PRIMARY KEY,
		customer_id BIGINT NOT NULL REFERENCES customers(id),
		sale_id BIGINT REFERENCES sales(id) ON DELETE SET NULL,
		paid_at TIMESTAMPTZ NOT NULL,
		amount NUMERIC(14,2) NOT NULL,
		note TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS stock_movements (
		id BIGSERIAL PRIMARY KEY,
		product_id BIGINT NOT NULL REFERENCES products(id),
		moved_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		kind TEXT NOT NULL,
		delta INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		resulting_qty INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS suspended_sales (
		id BIGSERIAL PRIMARY KEY,
		customer_id BIGINT NOT NULL REFERENCES customers(id),
		note TEXT NOT NULL DEFAULT '',
		cart_json TEXT NOT NULL,
		suspended_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS roles (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS permissions (
		id BIGSERIAL PRIMARY KEY,
		code TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS role_permissions (
		role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
		PRIMARY KEY (role_id, permission_id)
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		role_id BIGINT NOT NULL REFERENCES roles(id),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sale_lines_sale ON sale_lines(sale_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sale_lines_product ON sale_lines(product_id)`,
	`CREATE INDEX IF NOT EXISTS idx_movements_product ON stock_movements(product_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_sold_at ON sales(sold_at)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_customer ON payments(customer_id)`,
}

var seedStatements = []string{
	`INSERT INTO customers (id, first_name, active)
		VALUES (1, 'Walk-in', TRUE) ON CONFLICT (id) DO NOTHING`,
	`SELECT setval('customers_id_seq', GREATEST((SELECT MAX(id) FROM customers), 1))`,
	`INSERT INTO settings (key, value) VALUES
		('profit_method', 'percentage'),
		('profit_value', '50'),
		('vat_percent', '20'),
		('card_commission_percent', '2.5')
		ON CONFLICT (key) DO NOTHING`,
	`INSERT INTO roles (id, name) VALUES (1, 'admin'), (2, 'cashier') ON CONFLICT (id) DO NOTHING`,
	`SELECT setval('roles_id_seq', GREATEST((SELECT MAX(id) FROM roles), 2))`,
	`INSERT INTO permissions (code) VALUES
		('sales:edit'), ('sales:delete'), ('products:manage'), ('reports:view')
		ON CONFLICT (code) DO NOTHING`,
	`INSERT INTO role_permissions (role_id, permission_id)
		SELECT 1, id FROM permissions ON CONFLICT DO NOTHING`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	for _, stmt := range seedStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullIfEmpty(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

// Products

const productColumns = `id, sku, COALESCE(barcode, ''), name, category_id, tax_rate_id,
	purchase_currency, purchase_price, stock_qty, min_stock_level, main_product_sku, active, created_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Barcode, &p.Name, &p.CategoryID, &p.TaxRateID,
		&p.PurchaseCurrency, &p.PurchasePrice, &p.StockQty, &p.MinStockLevel,
		&p.MainProductSKU, &p.Active, &p.CreatedAt)
	return p, err
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) (int64, error) {
	if strings.TrimSpace(p.PurchaseCurrency) == "" {
		p.PurchaseCurrency = domain.BaseCurrency
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (sku, barcode, name, category_id, tax_rate_id,
			purchase_currency, purchase_price, stock_qty, min_stock_level, main_product_sku)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		p.SKU, nullIfEmpty(p.Barcode), p.Name, p.CategoryID, p.TaxRateID,
		p.PurchaseCurrency, p.PurchasePrice, p.StockQty, p.MinStockLevel, p.MainProductSKU).
		Scan(&id)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("%w: sku or barcode already used", store.ErrConflict)
	}
	if err != nil {
		return 0, fmt.Errorf("create product: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p domain.Product) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET sku = $1, barcode = $2, name = $3, category_id = $4, tax_rate_id = $5,
			purchase_currency = $6, purchase_price = $7, stock_qty = $8, min_stock_level = $9
		WHERE id = $10`,
		p.SKU, nullIfEmpty(p.Barcode), p.Name, p.CategoryID, p.TaxRateID,
		p.PurchaseCurrency, p.PurchasePrice, p.StockQty, p.MinStockLevel, p.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: sku or barcode already used", store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: product %d", store.ErrNotFound, p.ID)
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE LOWER(sku) = LOWER($1) OR barcode = $1`, sku))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, sku)
	}
	if err != nil {
		return nil, fmt.Errorf("get product by sku: %w", err)
	}
	return &p, nil
}

func (s *Store) SearchProducts(ctx context.Context, q domain.ProductQuery) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE TRUE`
	args := []any{}
	if !q.IncludeInactive {
		query += ` AND active`
	}
	if q.CategoryID != 0 {
		args = append(args, q.CategoryID)
		query += fmt.Sprintf(` AND category_id = $%d`, len(args))
	}
	switch q.StockStatus {
	case "low":
		query += ` AND stock_qty <= min_stock_level`
	case "out":
		query += ` AND stock_qty <= 0`
	}
	if needle := strings.TrimSpace(q.Search); needle != "" {
		args = append(args, "%"+needle+"%")
		n := len(args)
		query += fmt.Sprintf(` AND (name ILIKE $%d OR sku ILIKE $%d OR barcode ILIKE $%d)`, n, n, n)
	}
	query += ` ORDER BY name`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) SaveProductWithVariants(ctx context.Context, main domain.Product, variants []domain.Product) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if strings.TrimSpace(main.PurchaseCurrency) == "" {
		main.PurchaseCurrency = domain.BaseCurrency
	}

	mainID, err := upsertProductTx(ctx, tx, main, "")
	if err != nil {
		return 0, err
	}

	keep := make(map[string]bool, len(variants))
	for _, v := range variants {
		keep[strings.ToLower(v.SKU)] = true
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, LOWER(sku) FROM products WHERE main_product_sku = $1`, main.SKU)
	if err != nil {
		return 0, fmt.Errorf("load variants: %w", err)
	}
	type variantRow struct {
		id  int64
		sku string
	}
	var existing []variantRow
	for rows.Next() {
		var vr variantRow
		if err := rows.Scan(&vr.id, &vr.sku); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan variant: %w", err)
		}
		existing = append(existing, vr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, vr := range existing {
		if keep[vr.sku] {
			continue
		}
		var sold int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM sale_lines WHERE product_id = $1`, vr.id).Scan(&sold); err != nil {
			return 0, fmt.Errorf("check variant sales: %w", err)
		}
		if sold > 0 {
			if _, err := tx.ExecContext(ctx, `UPDATE products SET active = FALSE WHERE id = $1`, vr.id); err != nil {
				return 0, fmt.Errorf("archive variant: %w", err)
			}
		} else {
			if _, err := tx.ExecContext(ctx, `DELETE FROM stock_movements WHERE product_id = $1`, vr.id); err != nil {
				return 0, fmt.Errorf("clear variant movements: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, vr.id); err != nil {
				return 0, fmt.Errorf("delete variant: %w", err)
			}
		}
	}

	for _, v := range variants {
		v.CategoryID = main.CategoryID
		v.TaxRateID = main.TaxRateID
		v.PurchaseCurrency = main.PurchaseCurrency
		v.PurchasePrice = main.PurchasePrice
		v.MinStockLevel = main.MinStockLevel
		if _, err := upsertProductTx(ctx, tx, v, main.SKU); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return mainID, nil
}

func upsertProductTx(ctx context.Context, tx *sql.Tx, p domain.Product, mainSKU string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM products WHERE LOWER(sku) = LOWER($1)`, p.SKU).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err := tx.QueryRowContext(ctx, `
			INSERT INTO products (sku, barcode, name, category_id, tax_rate_id,
				purchase_currency, purchase_price, stock_qty, min_stock_level, main_product_sku)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id`,
			p.SKU, nullIfEmpty(p.Barcode), p.Name, p.CategoryID, p.TaxRateID,
			p.PurchaseCurrency, p.PurchasePrice, p.StockQty, p.MinStockLevel, mainSKU).
			Scan(&id)
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: sku or barcode already used", store.ErrConflict)
		}
		if err != nil {
			return 0, fmt.Errorf("insert product %s: %w", p.SKU, err)
		}
		return id, nil
	case err != nil:
		return 0, fmt.Errorf("lookup product %s: %w", p.SKU, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products SET barcode = $1, name = $2, category_id = $3, tax_rate_id = $4,
			purchase_currency = $5, purchase_price = $6, stock_qty = $7, min_stock_level = $8,
			main_product_sku = $9, active = TRUE
		WHERE id = $10`,
		nullIfEmpty(p.Barcode), p.Name, p.CategoryID, p.TaxRateID,
		p.PurchaseCurrency, p.PurchasePrice, p.StockQty, p.MinStockLevel, mainSKU, id)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("%w: barcode already used", store.ErrConflict)
	}
	if err != nil {
		return 0, fmt.Errorf("update product %s: %w", p.SKU, err)
	}
	return id, nil
}

func (s *Store) ListVariants(ctx context.Context, mainSKU string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE main_product_sku = $1 AND active ORDER BY sku`, mainSKU)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var sold int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM sale_lines WHERE product_id = $1`, id).Scan(&sold); err != nil {
		return fmt.Errorf("check sales: %w", err)
	}
	if sold > 0 {
		return fmt.Errorf("%w: product %d has sales", store.ErrInUse, id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stock_movements WHERE product_id = $1`, id); err != nil {
		return fmt.Errorf("delete movements: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: product %d", store.ErrNotFound, id)
	}
	return tx.Commit()
}

func (s *Store) ArchiveProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE products SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("archive product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: product %d", store.ErrNotFound, id)
	}
	return nil
}

func (s *Store) ListLowStock(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE active AND stock_qty <= min_stock_level ORDER BY stock_qty`)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Stock ledger

var validKinds = map[string]bool{
	domain.MovementSale:       true,
	domain.MovementSaleCancel: true,
	domain.MovementReceipt:    true,
	domain.MovementCorrection: true,
}

func (s *Store) AddStockMovement(ctx context.Context, productID int64, kind string, delta int, reason string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	qty, err := addMovementTx(ctx, tx, productID, kind, delta, reason)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return qty, nil
}

func addMovementTx(ctx context.Context, tx *sql.Tx, productID int64, kind string, delta int, reason string) (int, error) {
	if !validKinds[kind] {
		return 0, fmt.Errorf("%w: unknown movement kind %q", store.ErrValidation, kind)
	}
	if delta == 0 {
		var qty int
		err := tx.QueryRowContext(ctx,
			`SELECT stock_qty FROM products WHERE id = $1`, productID).Scan(&qty)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: product %d", store.ErrNotFound, productID)
		}
		return qty, err
	}

	var qty int
	err := tx.QueryRowContext(ctx, `
		UPDATE products SET stock_qty = stock_qty + $1 WHERE id = $2
		RETURNING stock_qty`, delta, productID).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: product %d", store.ErrNotFound, productID)
	}
	if err != nil {
		return 0, fmt.Errorf("apply stock delta: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stock_movements (product_id, moved_at, kind, delta, reason, resulting_qty)
		VALUES ($1, now(), $2, $3, $4, $5)`,
		productID, kind, delta, reason, qty); err != nil {
		return 0, fmt.Errorf("append movement: %w", err)
	}
	return qty, nil
}

func (s *Store) ListStockMovements(ctx context.Context, productID int64, limit int) ([]domain.StockMovement, error) {
	query := `SELECT id, product_id, moved_at, kind, delta, reason, resulting_qty
		FROM stock_movements`
	args := []any{}
	if productID != 0 {
		args = append(args, productID)
		query += ` WHERE product_id = $1`
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()
	out := make([]domain.StockMovement, 0)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.MovedAt, &m.Kind, &m.Delta, &m.Reason, &m.ResultingQty); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Sales

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (int64, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	id, err := createSaleTx(ctx, tx, sale)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

func createSaleTx(ctx context.Context, tx *sql.Tx, sale domain.Sale) (int64, error) {
	if len(sale.Lines) == 0 {
		return 0, fmt.Errorf("%w: sale has no lines", store.ErrValidation)
	}
	if sale.CustomerID == 0 {
		sale.CustomerID = domain.WalkInCustomerID
	}
	if sale.SoldAt.IsZero() {
		sale.SoldAt = time.Now().UTC()
	}

	total := decimal.Zero
	for _, l := range sale.Lines {
		if l.Quantity <= 0 {
			return 0, fmt.Errorf("%w: line quantity must be positive", store.ErrValidation)
		}
		total = total.Add(l.LineTotal())
	}

	var saleID int64
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO sales (customer_id, sold_at, total, amount_paid)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		sale.CustomerID, sale.SoldAt, total, sale.AmountPaid).Scan(&saleID); err != nil {
		return 0, fmt.Errorf("insert sale: %w", err)
	}

	for _, l := range sale.Lines {
		name := l.ProductName
		if name == "" {
			if err := tx.QueryRowContext(ctx,
				`SELECT name FROM products WHERE id = $1`, l.ProductID).Scan(&name); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return 0, fmt.Errorf("%w: product %d", store.ErrNotFound, l.ProductID)
				}
				return 0, fmt.Errorf("resolve product name: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_lines (sale_id, product_id, product_name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)`,
			saleID, l.ProductID, name, l.Quantity, l.UnitPrice); err != nil {
			return 0, fmt.Errorf("insert sale line: %w", err)
		}
		if _, err := addMovementTx(ctx, tx, l.ProductID, domain.MovementSale, -l.Quantity,
			fmt.Sprintf("sale #%d", saleID)); err != nil {
			return 0, err
		}
	}

	if sale.AmountPaid.Sign() > 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO payments (customer_id, sale_id, paid_at, amount, note)
			VALUES ($1, $2, $3, $4, $5)`,
			sale.CustomerID, saleID, sale.SoldAt, sale.AmountPaid,
			fmt.Sprintf("sale #%d", saleID)); err != nil {
			return 0, fmt.Errorf("insert payment: %w", err)
		}
	}
	return saleID, nil
}

func (s *Store) DeleteSale(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := deleteSaleTx(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteSaleTx(ctx context.Context, tx *sql.Tx, id int64) error {
	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sales WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check sale: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: sale %d", store.ErrNotFound, id)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT product_id, quantity FROM sale_lines WHERE sale_id = $1`, id)
	if err != nil {
		return fmt.Errorf("load lines: %w", err)
	}
	type lineRow struct {
		productID int64
		quantity  int
	}
	var lines []lineRow
	for rows.Next() {
		var lr lineRow
		if err := rows.Scan(&lr.productID, &lr.quantity); err != nil {
			rows.Close()
			return fmt.Errorf("scan line: %w", err)
		}
		lines = append(lines, lr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, lr := range lines {
		if _, err := addMovementTx(ctx, tx, lr.productID, domain.MovementSaleCancel, lr.quantity,
			fmt.Sprintf("cancelled sale #%d", id)); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM payments WHERE sale_id = $1`, id); err != nil {
		return fmt.Errorf("delete sale payments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_lines WHERE sale_id = $1`, id); err != nil {
		return fmt.Errorf("delete lines: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete sale: %w", err)
	}
	return nil
}

func (s *Store) ReplaceSale(ctx context.Context, oldID int64, sale domain.Sale) (int64, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := deleteSaleTx(ctx, tx, oldID); err != nil {
		return 0, err
	}
	id, err := createSaleTx(ctx, tx, sale)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.customer_id, TRIM(c.first_name || ' ' || c.last_name), s.sold_at, s.total, s.amount_paid
		FROM sales s JOIN customers c ON c.id = s.customer_id
		WHERE s.id = $1`, id).
		Scan(&sale.ID, &sale.CustomerID, &sale.CustomerName, &sale.SoldAt, &sale.Total, &sale.AmountPaid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: sale %d", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get sale: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, quantity, unit_price
		FROM sale_lines WHERE sale_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("get sale lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l domain.SaleLine
		if err := rows.Scan(&l.ID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan sale line: %w", err)
		}
		sale.Lines = append(sale.Lines, l)
	}
	return &sale, rows.Err()
}

func (s *Store) ListSales(ctx context.Context, q domain.SaleQuery) ([]domain.Sale, error) {
	query := `
		SELECT s.id, s.customer_id, TRIM(c.first_name || ' ' || c.last_name), s.sold_at, s.total, s.amount_paid
		FROM sales s JOIN customers c ON c.id = s.customer_id
		WHERE TRUE`
	args := []any{}
	if !q.From.IsZero() {
		args = append(args, q.From)
		query += fmt.Sprintf(` AND s.sold_at >= $%d`, len(args))
	}
	if !q.To.IsZero() {
		args = append(args, q.To)
		query += fmt.Sprintf(` AND s.sold_at <= $%d`, len(args))
	}
	if q.CustomerID != 0 {
		args = append(args, q.CustomerID)
		query += fmt.Sprintf(` AND s.customer_id = $%d`, len(args))
	}
	query += ` ORDER BY s.sold_at DESC, s.id DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Sale, 0)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.CustomerID, &sale.CustomerName, &sale.SoldAt, &sale.Total, &sale.AmountPaid); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		out = append(out, sale)
	}
	return out, rows.Err()
}

// Customers

func (s *Store) CreateCustomer(ctx context.Context, c domain.Customer) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (first_name, last_name, phone, email, notes, group_id)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		c.FirstName, c.LastName, c.Phone, c.Email, c.Notes, c.GroupID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create customer: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, c domain.Customer) error {
	if c.ID == domain.WalkInCustomerID {
		return fmt.Errorf("%w: walk-in customer is reserved", store.ErrValidation)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers SET first_name = $1, last_name = $2, phone = $3, email = $4, notes = $5, group_id = $6
		WHERE id = $7`,
		c.FirstName, c.LastName, c.Phone, c.Email, c.Notes, c.GroupID, c.ID)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: customer %d", store.ErrNotFound, c.ID)
	}
	return nil
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, phone, email, notes, group_id, active, created_at
		FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.FirstName, &c.LastName, &c.Phone, &c.Email, &c.Notes, &c.GroupID, &c.Active, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: customer %d", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return &c, nil
}

func (s *Store) SearchCustomers(ctx context.Context, search string, includeInactive bool) ([]domain.Customer, error) {
	query := `
		SELECT id, first_name, last_name, phone, email, notes, group_id, active, created_at
		FROM customers WHERE TRUE`
	args := []any{}
	if !includeInactive {
		query += ` AND active`
	}
	if needle := strings.TrimSpace(search); needle != "" {
		args = append(args, "%"+needle+"%")
		n := len(args)
		query += fmt.Sprintf(` AND (first_name ILIKE $%d OR last_name ILIKE $%d OR phone ILIKE $%d)`, n, n, n)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search customers: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Customer, 0)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Phone, &c.Email, &c.Notes, &c.GroupID, &c.Active, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ArchiveCustomer(ctx context.Context, id int64) error {
	if id == domain.WalkInCustomerID {
		return fmt.Errorf("%w: walk-in customer is reserved", store.ErrValidation)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE customers SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("archive customer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: customer %d", store.ErrNotFound, id)
	}
	return nil
}

func (s *Store) AddPayment(ctx context.Context, p domain.Payment) (int64, error) {
	if p.Amount.Sign() <= 0 {
		return 0, fmt.Errorf("%w: payment amount must be positive", store.ErrValidation)
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = time.Now().UTC()
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO payments (customer_id, sale_id, paid_at, amount, note)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		p.CustomerID, p.SaleID, p.PaidAt, p.Amount, p.Note).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("add payment: %w", err)
	}
	return id, nil
}

func (s *Store) CustomerBalance(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	if _, err := s.GetCustomer(ctx, customerID); err != nil {
		return decimal.Zero, err
	}
	var balance decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE((SELECT SUM(total) FROM sales WHERE customer_id = $1), 0)
		     - COALESCE((SELECT SUM(amount) FROM payments WHERE customer_id = $1), 0)`,
		customerID).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("customer balance: %w", err)
	}
	return balance.Round(2), nil
}

func (s *Store) CustomerLedger(ctx context.Context, customerID int64) ([]domain.LedgerEntry, error) {
	if _, err := s.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT sold_at, 'sale', id, 'sale #' || id, total, 0 FROM sales WHERE customer_id = $1
		UNION ALL
		SELECT paid_at, 'payment', id, note, 0, amount FROM payments WHERE customer_id = $1
		ORDER BY 1`, customerID)
	if err != nil {
		return nil, fmt.Errorf("customer ledger: %w", err)
	}
	defer rows.Close()
	out := make([]domain.LedgerEntry, 0)
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.At, &e.Kind, &e.Reference, &e.Description, &e.Debit, &e.Credit); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Suspended sales

func (s *Store) CreateSuspendedSale(ctx context.Context, sus domain.SuspendedSale) (int64, error) {
	if strings.TrimSpace(sus.CartJSON) == "" {
		return 0, fmt.Errorf("%w: empty cart payload", store.ErrValidation)
	}
	if sus.CustomerID == 0 {
		sus.CustomerID = domain.WalkInCustomerID
	}
	if sus.SuspendedAt.IsZero() {
		sus.SuspendedAt = time.Now().UTC()
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO suspended_sales (customer_id, note, cart_json, suspended_at)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		sus.CustomerID, sus.Note, sus.CartJSON, sus.SuspendedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("suspend sale: %w", err)
	}
	return id, nil
}

func (s *Store) ListSuspendedSales(ctx context.Context) ([]domain.SuspendedSale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT h.id, h.customer_id, TRIM(c.first_name || ' ' || c.last_name), h.note, h.cart_json, h.suspended_at
		FROM suspended_sales h JOIN customers c ON c.id = h.customer_id
		ORDER BY h.suspended_at DESC, h.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list suspended: %w", err)
	}
	defer rows.Close()
	out := make([]domain.SuspendedSale, 0)
	for rows.Next() {
		var sus domain.SuspendedSale
		if err := rows.Scan(&sus.ID, &sus.CustomerID, &sus.CustomerName, &sus.Note, &sus.CartJSON, &sus.SuspendedAt); err != nil {
			return nil, fmt.Errorf("scan suspended: %w", err)
		}
		out = append(out, sus)
	}
	return out, rows.Err()
}

func (s *Store) PopSuspendedSale(ctx context.Context, id int64) (*domain.SuspendedSale, error) {
	var sus domain.SuspendedSale
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM suspended_sales WHERE id = $1
		RETURNING id, customer_id, note, cart_json, suspended_at`, id).
		Scan(&sus.ID, &sus.CustomerID, &sus.Note, &sus.CartJSON, &sus.SuspendedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: suspended sale %d", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("pop suspended: %w", err)
	}
	return &sus, nil
}

func (s *Store) DeleteSuspendedSale(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM suspended_sales WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete suspended: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: suspended sale %d", store.ErrNotFound, id)
	}
	return nil
}

// Categories, tax rates, settings

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, profit_method, profit_value FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Category, 0)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.ProfitMethod, &c.ProfitValue); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetCategory(ctx context.Context, id int64) (*domain.Category, error) {
	var c domain.Category
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, profit_method, profit_value FROM categories WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.ProfitMethod, &c.ProfitValue)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: category %d", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

func (s *Store) CreateCategory(ctx context.Context, c domain.Category) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO categories (name, profit_method, profit_value) VALUES ($1, $2, $3) RETURNING id`,
		c.Name, c.ProfitMethod, c.ProfitValue).Scan(&id)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("%w: category %s", store.ErrConflict, c.Name)
	}
	if err != nil {
		return 0, fmt.Errorf("create category: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateCategory(ctx context.Context, c domain.Category) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE categories SET name = $1, profit_method = $2, profit_value = $3 WHERE id = $4`,
		c.Name, c.ProfitMethod, c.ProfitValue, c.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: category %s", store.ErrConflict, c.Name)
	}
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: category %d", store.ErrNotFound, c.ID)
	}
	return nil
}

func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	var used bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE category_id = $1)`, id).Scan(&used); err != nil {
		return fmt.Errorf("check category use: %w", err)
	}
	if used {
		return fmt.Errorf("%w: category %d has products", store.ErrInUse, id)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: category %d", store.ErrNotFound, id)
	}
	return nil
}

func (s *Store) ListTaxRates(ctx context.Context) ([]domain.TaxRate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, percent FROM tax_rates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tax rates: %w", err)
	}
	defer rows.Close()
	out := make([]domain.TaxRate, 0)
	for rows.Next() {
		var t domain.TaxRate
		if err := rows.Scan(&t.ID, &t.Name, &t.Percent); err != nil {
			return nil, fmt.Errorf("scan tax rate: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetTaxRate(ctx context.Context, id int64) (*domain.TaxRate, error) {
	var t domain.TaxRate
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, percent FROM tax_rates WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Percent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: tax rate %d", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get tax rate: %w", err)
	}
	return &t, nil
}

func (s *Store) CreateTaxRate(ctx context.Context, t domain.TaxRate) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO tax_rates (name, percent) VALUES ($1, $2) RETURNING id`,
		t.Name, t.Percent).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create tax rate: %w", err)
	}
	return id, nil
}

func (s *Store) DeleteTaxRate(ctx context.Context, id int64) error {
	var used bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE tax_rate_id = $1)`, id).Scan(&used); err != nil {
		return fmt.Errorf("check tax rate use: %w", err)
	}
	if used {
		return fmt.Errorf("%w: tax rate %d has products", store.ErrInUse, id)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM tax_rates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tax rate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: tax rate %d", store.ErrNotFound, id)
	}
	return nil
}

func (s *Store) GetAllSettings(ctx context.Context) (domain.Settings, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	defer rows.Close()
	out := make(domain.Settings)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *Store) SaveSetting(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: empty setting key", store.ErrValidation)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return fmt.Errorf("save setting: %w", err)
	}
	return nil
}

// Users and access

func (s *Store) CreateUser(ctx context.Context, u domain.UserAccount) (int64, error) {
	username := strings.ToLower(strings.TrimSpace(u.Username))
	if username == "" {
		return 0, fmt.Errorf("%w: empty username", store.ErrValidation)
	}
	if u.RoleName == "" {
		u.RoleName = "cashier"
	}
	var roleID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM roles WHERE name = $1`, u.RoleName).Scan(&roleID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: unknown role %s", store.ErrValidation, u.RoleName)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup role: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash, full_name, role_id)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		username, u.PasswordHash, u.FullName, roleID).Scan(&id)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("%w: username %s", store.ErrConflict, username)
	}
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.password_hash, u.full_name, u.role_id, r.name, u.active, u.created_at
		FROM users u JOIN roles r ON r.id = u.role_id
		ORDER BY u.username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	out := make([]domain.UserAccount, 0)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FullName, &u.RoleID, &u.RoleName, &u.Active, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) GetUserAccess(ctx context.Context, username string) (*domain.UserAccount, []string, error) {
	var u domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.password_hash, u.full_name, u.role_id, r.name, u.active, u.created_at
		FROM users u JOIN roles r ON r.id = u.role_id
		WHERE u.username = $1`, strings.ToLower(strings.TrimSpace(username))).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FullName, &u.RoleID, &u.RoleName, &u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: user %s", store.ErrNotFound, username)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get user: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.code FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1`, u.RoleID)
	if err != nil {
		return nil, nil, fmt.Errorf("load permissions: %w", err)
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, nil, fmt.Errorf("scan permission: %w", err)
		}
		perms = append(perms, code)
	}
	return &u, perms, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $1 WHERE username = $2`,
		passwordHash, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: user %s", store.ErrNotFound, username)
	}
	return nil
}

// Reports

func (s *Store) ProductSalesReport(ctx context.Context, from, to time.Time, categoryID int64) ([]domain.ProductSalesRow, error) {
	query := `
		SELECT p.id, p.sku, p.name,
			COALESCE(SUM(l.quantity), 0),
			COALESCE(SUM(l.quantity * l.unit_price), 0)
		FROM sale_lines l
		JOIN sales s ON s.id = l.sale_id
		JOIN products p ON p.id = l.product_id
		WHERE TRUE`
	args := []any{}
	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(` AND s.sold_at >= $%d`, len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(` AND s.sold_at <= $%d`, len(args))
	}
	if categoryID != 0 {
		args = append(args, categoryID)
		query += fmt.Sprintf(` AND p.category_id = $%d`, len(args))
	}
	query += ` GROUP BY p.id, p.sku, p.name ORDER BY 5 DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("product sales report: %w", err)
	}
	defer rows.Close()
	out := make([]domain.ProductSalesRow, 0)
	for rows.Next() {
		var r domain.ProductSalesRow
		if err := rows.Scan(&r.ProductID, &r.SKU, &r.Name, &r.QuantitySold, &r.Revenue); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		r.Revenue = r.Revenue.Round(2)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) InventoryReport(ctx context.Context, categoryID int64) ([]domain.InventoryRow, error) {
	query := `
		SELECT id, sku, name, stock_qty, purchase_price, stock_qty * purchase_price
		FROM products WHERE active`
	args := []any{}
	if categoryID != 0 {
		args = append(args, categoryID)
		query += fmt.Sprintf(` AND category_id = $%d`, len(args))
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inventory report: %w", err)
	}
	defer rows.Close()
	out := make([]domain.InventoryRow, 0)
	for rows.Next() {
		var r domain.InventoryRow
		if err := rows.Scan(&r.ProductID, &r.SKU, &r.Name, &r.StockQty, &r.PurchasePrice, &r.StockValue); err != nil {
			return nil, fmt.Errorf("scan inventory row: %w", err)
		}
		r.StockValue = r.StockValue.Round(2)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) DailySalesReport(ctx context.Context, from, to time.Time) ([]domain.DailySalesRow, error) {
	query := `
		SELECT TO_CHAR(sold_at, 'YYYY-MM-DD'), COUNT(1), COALESCE(SUM(total), 0)
		FROM sales WHERE TRUE`
	args := []any{}
	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(` AND sold_at >= $%d`, len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(` AND sold_at <= $%d`, len(args))
	}
	query += ` GROUP BY 1 ORDER BY 1`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("daily sales report: %w", err)
	}
	defer rows.Close()
	out := make([]domain.DailySalesRow, 0)
	for rows.Next() {
		var r domain.DailySalesRow
		if err := rows.Scan(&r.Day, &r.SaleCount, &r.Total); err != nil {
			return nil, fmt.Errorf("scan daily row: %w", err)
		}
		r.Total = r.Total.Round(2)
		out = append(out, r)
	}
	return out, rows.Err()
}
