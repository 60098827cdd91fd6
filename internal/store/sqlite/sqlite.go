// Package sqlite implements store.Repository on an embedded SQLite file.
// This is the default backend for single-terminal installs; the schema is
// created on open and the file needs no external server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"tezgahpos/internal/domain"
	"tezgahpos/internal/store"
)

type Store struct {
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_busy_timeout=10000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single writer keeps SQLITE_BUSY out of the picture on a desktop
	// deployment.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=10000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
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
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE COLLATE NOCASE,
		profit_method TEXT,
		profit_value TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS tax_rates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		percent TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS customer_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		group_id INTEGER REFERENCES customer_groups(id),
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sku TEXT NOT NULL UNIQUE COLLATE NOCASE,
		barcode TEXT UNIQUE,
		name TEXT NOT NULL,
		category_id INTEGER REFERENCES categories(id),
		tax_rate_id INTEGER REFERENCES tax_rates(id),
		purchase_currency TEXT NOT NULL DEFAULT 'TL',
		purchase_price TEXT NOT NULL DEFAULT '0',
		stock_qty INTEGER NOT NULL DEFAULT 0,
		min_stock_level INTEGER NOT NULL DEFAULT 0,
		main_product_sku TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL REFERENCES customers(id),
		sold_at TIMESTAMP NOT NULL,
		total TEXT NOT NULL,
		amount_paid TEXT NOT NULL DEFAULT '0'
	)`,
	`CREATE TABLE IF NOT EXISTS sale_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sale_id INTEGER NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
		product_id INTEGER NOT NULL REFERENCES products(id),
		product_name TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit_price TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL REFERENCES customers(id),
		sale_id INTEGER REFERENCES sales(id) ON DELETE SET NULL,
		paid_at TIMESTAMP NOT NULL,
		amount TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS stock_movements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id INTEGER NOT NULL REFERENCES products(id),
		moved_at TIMESTAMP NOT NULL,
		kind TEXT NOT NULL,
		delta INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		resulting_qty INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS suspended_sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL REFERENCES customers(id),
		note TEXT NOT NULL DEFAULT '',
		cart_json TEXT NOT NULL,
		suspended_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS roles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS permissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS role_permissions (
		role_id INTEGER NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		permission_id INTEGER NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
		PRIMARY KEY (role_id, permission_id)
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		role_id INTEGER NOT NULL REFERENCES roles(id),
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sale_lines_sale ON sale_lines(sale_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sale_lines_product ON sale_lines(product_id)`,
	`CREATE INDEX IF NOT EXISTS idx_movements_product ON stock_movements(product_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_sold_at ON sales(sold_at)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_customer ON payments(customer_id)`,
}

var seedStatements = []string{
	`INSERT OR IGNORE INTO customers (id, first_name, last_name, active, created_at)
		VALUES (1, 'Walk-in', '', 1, CURRENT_TIMESTAMP)`,
	`INSERT OR IGNORE INTO settings (key, value) VALUES
		('profit_method', 'percentage'),
		('profit_value', '50'),
		('vat_percent', '20'),
		('card_commission_percent', '2.5')`,
	`INSERT OR IGNORE INTO roles (id, name) VALUES (1, 'admin'), (2, 'cashier')`,
	`INSERT OR IGNORE INTO permissions (code) VALUES
		('sales:edit'), ('sales:delete'), ('products:manage'), ('reports:view')`,
	`INSERT OR IGNORE INTO role_permissions (role_id, permission_id)
		SELECT 1, id FROM permissions`,
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
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
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
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO products (sku, barcode, name, category_id, tax_rate_id,
			purchase_currency, purchase_price, stock_qty, min_stock_level, main_product_sku, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, CURRENT_TIMESTAMP)`,
		p.SKU, nullIfEmpty(p.Barcode), p.Name, p.CategoryID, p.TaxRateID,
		p.PurchaseCurrency, p.PurchasePrice, p.StockQty, p.MinStockLevel, p.MainProductSKU)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("%w: sku or barcode already used", store.ErrConflict)
	}
	if err != nil {
		return 0, fmt.Errorf("create product: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) UpdateProduct(ctx context.Context, p domain.Product) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET sku = ?, barcode = ?, name = ?, category_id = ?, tax_rate_id = ?,
			purchase_currency = ?, purchase_price = ?, stock_qty = ?, min_stock_level = ?
		WHERE id = ?`,
		p.SKU, nullIfEmpty(p.Barcode), p.Name, p.CategoryID, p.TaxRateID,
		p.PurchaseCurrency, p.PurchasePrice, p.StockQty, p.MinStockLevel, p.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: sku or barcode already used", store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: product %d", store.ErrNotFound, p.ID)
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id))
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
		`SELECT `+productColumns+` FROM products WHERE sku = ? OR barcode = ?`, sku, sku))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, sku)
	}
	if err != nil {
		return nil, fmt.Errorf("get product by sku: %w", err)
	}
	return &p, nil
}

func (s *Store) SearchProducts(ctx context.Context, q domain.ProductQuery) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1=1`
	args := []any{}
	if !q.IncludeInactive {
		query += ` AND active = 1`
	}
	if q.CategoryID != 0 {
		query += ` AND category_id = ?`
		args = append(args, q.CategoryID)
	}
	switch q.StockStatus {
	case "low":
		query += ` AND stock_qty <= min_stock_level`
	case "out":
		query += ` AND stock_qty <= 0`
	}
	if needle := strings.TrimSpace(q.Search); needle != "" {
		query += ` AND (name LIKE ? OR sku LIKE ? OR barcode LIKE ?)`
		pattern := "%" + needle + "%"
		args = append(args, pattern, pattern, pattern)
	}
	query += ` ORDER BY name`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
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

	keep := make([]string, 0, len(variants))
	for _, v := range variants {
		keep = append(keep, strings.ToLower(v.SKU))
	}

	// Variants dropped from the group: archive the sold ones, delete the rest.
	rows, err := tx.QueryContext(ctx,
		`SELECT id, LOWER(sku) FROM products WHERE main_product_sku = ?`, main.SKU)
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
		if contains(keep, vr.sku) {
			continue
		}
		var sold int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM sale_lines WHERE product_id = ?`, vr.id).Scan(&sold); err != nil {
			return 0, fmt.Errorf("check variant sales: %w", err)
		}
		if sold > 0 {
			if _, err := tx.ExecContext(ctx, `UPDATE products SET active = 0 WHERE id = ?`, vr.id); err != nil {
				return 0, fmt.Errorf("archive variant: %w", err)
			}
		} else {
			if _, err := tx.ExecContext(ctx, `DELETE FROM stock_movements WHERE product_id = ?`, vr.id); err != nil {
				return 0, fmt.Errorf("clear variant movements: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, vr.id); err != nil {
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
	err := tx.QueryRowContext(ctx, `SELECT id FROM products WHERE sku = ?`, p.SKU).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx, `
			INSERT INTO products (sku, barcode, name, category_id, tax_rate_id,
				purchase_currency, purchase_price, stock_qty, min_stock_level, main_product_sku, active, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, CURRENT_TIMESTAMP)`,
			p.SKU, nullIfEmpty(p.Barcode), p.Name, p.CategoryID, p.TaxRateID,
			p.PurchaseCurrency, p.PurchasePrice, p.StockQty, p.MinStockLevel, mainSKU)
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: sku or barcode already used", store.ErrConflict)
		}
		if err != nil {
			return 0, fmt.Errorf("insert product %s: %w", p.SKU, err)
		}
		return res.LastInsertId()
	case err != nil:
		return 0, fmt.Errorf("lookup product %s: %w", p.SKU, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products SET barcode = ?, name = ?, category_id = ?, tax_rate_id = ?,
			purchase_currency = ?, purchase_price = ?, stock_qty = ?, min_stock_level = ?,
			main_product_sku = ?, active = 1
		WHERE id = ?`,
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

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func (s *Store) ListVariants(ctx context.Context, mainSKU string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE main_product_sku = ? AND active = 1 ORDER BY sku`, mainSKU)
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
		`SELECT COUNT(1) FROM sale_lines WHERE product_id = ?`, id).Scan(&sold); err != nil {
		return fmt.Errorf("check sales: %w", err)
	}
	if sold > 0 {
		return fmt.Errorf("%w: product %d has sales", store.ErrInUse, id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stock_movements WHERE product_id = ?`, id); err != nil {
		return fmt.Errorf("delete movements: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: product %d", store.ErrNotFound, id)
	}
	return tx.Commit()
}

func (s *Store) ArchiveProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE products SET active = 0 WHERE id = ?`, id)
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
		 WHERE active = 1 AND stock_qty <= min_stock_level ORDER BY stock_qty`)
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

// addMovementTx applies the delta and appends the ledger row inside the
// caller's transaction. Zero delta only reads back the current quantity.
func addMovementTx(ctx context.Context, tx *sql.Tx, productID int64, kind string, delta int, reason string) (int, error) {
	if !validKinds[kind] {
		return 0, fmt.Errorf("%w: unknown movement kind %q", store.ErrValidation, kind)
	}
	if delta == 0 {
		var qty int
		err := tx.QueryRowContext(ctx, `SELECT stock_qty FROM products WHERE id = ?`, productID).Scan(&qty)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: product %d", store.ErrNotFound, productID)
		}
		return qty, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE products SET stock_qty = stock_qty + ? WHERE id = ?`, delta, productID)
	if err != nil {
		return 0, fmt.Errorf("apply stock delta: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, fmt.Errorf("%w: product %d", store.ErrNotFound, productID)
	}

	var qty int
	if err := tx.QueryRowContext(ctx,
		`SELECT stock_qty FROM products WHERE id = ?`, productID).Scan(&qty); err != nil {
		return 0, fmt.Errorf("read back stock: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stock_movements (product_id, moved_at, kind, delta, reason, resulting_qty)
		VALUES (?, ?, ?, ?, ?, ?)`,
		productID, time.Now().UTC(), kind, delta, reason, qty); err != nil {
		return 0, fmt.Errorf("append movement: %w", err)
	}
	return qty, nil
}

func (s *Store) ListStockMovements(ctx context.Context, productID int64, limit int) ([]domain.StockMovement, error) {
	query := `SELECT id, product_id, moved_at, kind, delta, reason, resulting_qty
		FROM stock_movements`
	args := []any{}
	if productID != 0 {
		query += ` WHERE product_id = ?`
		args = append(args, productID)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
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
	tx, err := s.db.BeginTx(ctx, nil)
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

	res, err := tx.ExecContext(ctx, `
		INSERT INTO sales (customer_id, sold_at, total, amount_paid)
		VALUES (?, ?, ?, ?)`,
		sale.CustomerID, sale.SoldAt, total, sale.AmountPaid)
	if err != nil {
		return 0, fmt.Errorf("insert sale: %w", err)
	}
	saleID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, l := range sale.Lines {
		name := l.ProductName
		if name == "" {
			if err := tx.QueryRowContext(ctx,
				`SELECT name FROM products WHERE id = ?`, l.ProductID).Scan(&name); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return 0, fmt.Errorf("%w: product %d", store.ErrNotFound, l.ProductID)
				}
				return 0, fmt.Errorf("resolve product name: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_lines (sale_id, product_id, product_name, quantity, unit_price)
			VALUES (?, ?, ?, ?, ?)`,
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
			VALUES (?, ?, ?, ?, ?)`,
			sale.CustomerID, saleID, sale.SoldAt, sale.AmountPaid,
			fmt.Sprintf("sale #%d", saleID)); err != nil {
			return 0, fmt.Errorf("insert payment: %w", err)
		}
	}
	return saleID, nil
}

func (s *Store) DeleteSale(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
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
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM sales WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check sale: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: sale %d", store.ErrNotFound, id)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT product_id, quantity FROM sale_lines WHERE sale_id = ?`, id)
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

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM payments WHERE sale_id = ?`, id); err != nil {
		return fmt.Errorf("delete sale payments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_lines WHERE sale_id = ?`, id); err != nil {
		return fmt.Errorf("delete lines: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete sale: %w", err)
	}
	return nil
}

func (s *Store) ReplaceSale(ctx context.Context, oldID int64, sale domain.Sale) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
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
		WHERE s.id = ?`, id).
		Scan(&sale.ID, &sale.CustomerID, &sale.CustomerName, &sale.SoldAt, &sale.Total, &sale.AmountPaid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: sale %d", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get sale: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, quantity, unit_price
		FROM sale_lines WHERE sale_id = ? ORDER BY id`, id)
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
		WHERE 1=1`
	args := []any{}
	if !q.From.IsZero() {
		query += ` AND s.sold_at >= ?`
		args = append(args, q.From)
	}
	if !q.To.IsZero() {
		query += ` AND s.sold_at <= ?`
		args = append(args, q.To)
	}
	if q.CustomerID != 0 {
		query += ` AND s.customer_id = ?`
		args = append(args, q.CustomerID)
	}
	query += ` ORDER BY s.sold_at DESC, s.id DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
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
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (first_name, last_name, phone, email, notes, group_id, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, CURRENT_TIMESTAMP)`,
		c.FirstName, c.LastName, c.Phone, c.Email, c.Notes, c.GroupID)
	if err != nil {
		return 0, fmt.Errorf("create customer: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) UpdateCustomer(ctx context.Context, c domain.Customer) error {
	if c.ID == domain.WalkInCustomerID {
		return fmt.Errorf("%w: walk-in customer is reserved", store.ErrValidation)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers SET first_name = ?, last_name = ?, phone = ?, email = ?, notes = ?, group_id = ?
		WHERE id = ?`,
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
		FROM customers WHERE id = ?`, id).
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
		FROM customers WHERE 1=1`
	args := []any{}
	if !includeInactive {
		query += ` AND active = 1`
	}
	if needle := strings.TrimSpace(search); needle != "" {
		query += ` AND (first_name LIKE ? OR last_name LIKE ? OR phone LIKE ?)`
		pattern := "%" + needle + "%"
		args = append(args, pattern, pattern, pattern)
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
	res, err := s.db.ExecContext(ctx, `UPDATE customers SET active = 0 WHERE id = ?`, id)
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
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (customer_id, sale_id, paid_at, amount, note)
		VALUES (?, ?, ?, ?, ?)`,
		p.CustomerID, p.SaleID, p.PaidAt, p.Amount, p.Note)
	if err != nil {
		return 0, fmt.Errorf("add payment: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) CustomerBalance(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	if _, err := s.GetCustomer(ctx, customerID); err != nil {
		return decimal.Zero, err
	}
	var sales, payments decimal.Decimal
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CAST(total AS REAL)), 0) FROM sales WHERE customer_id = ?`, customerID).
		Scan(&sales); err != nil {
		return decimal.Zero, fmt.Errorf("sum sales: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CAST(amount AS REAL)), 0) FROM payments WHERE customer_id = ?`, customerID).
		Scan(&payments); err != nil {
		return decimal.Zero, fmt.Errorf("sum payments: %w", err)
	}
	return sales.Sub(payments).Round(2), nil
}

func (s *Store) CustomerLedger(ctx context.Context, customerID int64) ([]domain.LedgerEntry, error) {
	if _, err := s.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT sold_at, 'sale', id, 'sale #' || id, total, '0' FROM sales WHERE customer_id = ?
		UNION ALL
		SELECT paid_at, 'payment', id, note, '0', amount FROM payments WHERE customer_id = ?
		ORDER BY 1`, customerID, customerID)
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
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO suspended_sales (customer_id, note, cart_json, suspended_at)
		VALUES (?, ?, ?, ?)`,
		sus.CustomerID, sus.Note, sus.CartJSON, sus.SuspendedAt)
	if err != nil {
		return 0, fmt.Errorf("suspend sale: %w", err)
	}
	return res.LastInsertId()
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var sus domain.SuspendedSale
	err = tx.QueryRowContext(ctx, `
		SELECT id, customer_id, note, cart_json, suspended_at
		FROM suspended_sales WHERE id = ?`, id).
		Scan(&sus.ID, &sus.CustomerID, &sus.Note, &sus.CartJSON, &sus.SuspendedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: suspended sale %d", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load suspended: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM suspended_sales WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("pop suspended: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &sus, nil
}

func (s *Store) DeleteSuspendedSale(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM suspended_sales WHERE id = ?`, id)
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
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCategory(row interface{ Scan(...any) error }) (domain.Category, error) {
	var c domain.Category
	var method, value *string
	if err := row.Scan(&c.ID, &c.Name, &method, &value); err != nil {
		return c, fmt.Errorf("scan category: %w", err)
	}
	c.ProfitMethod = method
	if value != nil {
		d, err := decimal.NewFromString(*value)
		if err == nil {
			c.ProfitValue = &d
		}
	}
	return c, nil
}

func (s *Store) GetCategory(ctx context.Context, id int64) (*domain.Category, error) {
	c, err := scanCategory(s.db.QueryRowContext(ctx,
		`SELECT id, name, profit_method, profit_value FROM categories WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: category %d", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func categoryProfitValue(c domain.Category) any {
	if c.ProfitValue == nil {
		return nil
	}
	return c.ProfitValue.String()
}

func (s *Store) CreateCategory(ctx context.Context, c domain.Category) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (name, profit_method, profit_value) VALUES (?, ?, ?)`,
		c.Name, c.ProfitMethod, categoryProfitValue(c))
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("%w: category %s", store.ErrConflict, c.Name)
	}
	if err != nil {
		return 0, fmt.Errorf("create category: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) UpdateCategory(ctx context.Context, c domain.Category) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, profit_method = ?, profit_value = ? WHERE id = ?`,
		c.Name, c.ProfitMethod, categoryProfitValue(c), c.ID)
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
	var used int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM products WHERE category_id = ?`, id).Scan(&used); err != nil {
		return fmt.Errorf("check category use: %w", err)
	}
	if used > 0 {
		return fmt.Errorf("%w: category %d has products", store.ErrInUse, id)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
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
		`SELECT id, name, percent FROM tax_rates WHERE id = ?`, id).
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
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tax_rates (name, percent) VALUES (?, ?)`, t.Name, t.Percent)
	if err != nil {
		return 0, fmt.Errorf("create tax rate: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) DeleteTaxRate(ctx context.Context, id int64) error {
	var used int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM products WHERE tax_rate_id = ?`, id).Scan(&used); err != nil {
		return fmt.Errorf("check tax rate use: %w", err)
	}
	if used > 0 {
		return fmt.Errorf("%w: tax rate %d has products", store.ErrInUse, id)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM tax_rates WHERE id = ?`, id)
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
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
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
	err := s.db.QueryRowContext(ctx, `SELECT id FROM roles WHERE name = ?`, u.RoleName).Scan(&roleID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: unknown role %s", store.ErrValidation, u.RoleName)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup role: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, full_name, role_id, active, created_at)
		VALUES (?, ?, ?, ?, 1, CURRENT_TIMESTAMP)`,
		username, u.PasswordHash, u.FullName, roleID)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("%w: username %s", store.ErrConflict, username)
	}
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return res.LastInsertId()
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
		WHERE u.username = ?`, strings.ToLower(strings.TrimSpace(username))).
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
		WHERE rp.role_id = ?`, u.RoleID)
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
		`UPDATE users SET password_hash = ? WHERE username = ?`,
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
			COALESCE(SUM(l.quantity * CAST(l.unit_price AS REAL)), 0)
		FROM sale_lines l
		JOIN sales s ON s.id = l.sale_id
		JOIN products p ON p.id = l.product_id
		WHERE 1=1`
	args := []any{}
	if !from.IsZero() {
		query += ` AND s.sold_at >= ?`
		args = append(args, from)
	}
	if !to.IsZero() {
		query += ` AND s.sold_at <= ?`
		args = append(args, to)
	}
	if categoryID != 0 {
		query += ` AND p.category_id = ?`
		args = append(args, categoryID)
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
		SELECT id, sku, name, stock_qty, purchase_price,
			stock_qty * CAST(purchase_price AS REAL)
		FROM products WHERE active = 1`
	args := []any{}
	if categoryID != 0 {
		query += ` AND category_id = ?`
		args = append(args, categoryID)
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
		SELECT DATE(sold_at), COUNT(1), COALESCE(SUM(CAST(total AS REAL)), 0)
		FROM sales WHERE 1=1`
	args := []any{}
	if !from.IsZero() {
		query += ` AND sold_at >= ?`
		args = append(args, from)
	}
	if !to.IsZero() {
		query += ` AND sold_at <= ?`
		args = append(args, to)
	}
	query += ` GROUP BY DATE(sold_at) ORDER BY 1`

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
