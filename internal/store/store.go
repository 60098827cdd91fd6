package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"tezgahpos/internal/domain"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned for requests the datastore refuses on
	// business grounds (empty sale, bad movement kind, reserved ids).
	ErrValidation = errors.New("validation failed")
	// ErrConflict is returned on unique-key collisions (SKU, barcode,
	// username, category name).
	ErrConflict = errors.New("conflict")
	// ErrInUse is returned when a delete is refused because other rows
	// still reference the target.
	ErrInUse = errors.New("still in use")
)

// Repository is the persistence contract shared by the memory, sqlite and
// postgres implementations. All mutating sale and stock operations are
// atomic within a single call.
type Repository interface {
	// Products
	CreateProduct(ctx context.Context, p domain.Product) (int64, error)
	UpdateProduct(ctx context.Context, p domain.Product) error
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	SearchProducts(ctx context.Context, q domain.ProductQuery) ([]domain.Product, error)
	// SaveProductWithVariants upserts the main product and replaces its
	// variant group in one transaction. Variants inherit the main
	// product's category, tax rate, currency and purchase price.
	SaveProductWithVariants(ctx context.Context, main domain.Product, variants []domain.Product) (int64, error)
	ListVariants(ctx context.Context, mainSKU string) ([]domain.Product, error)
	// DeleteProduct removes a never-sold product; it returns ErrInUse
	// when sale lines reference it, in which case callers archive instead.
	DeleteProduct(ctx context.Context, id int64) error
	ArchiveProduct(ctx context.Context, id int64) error
	ListLowStock(ctx context.Context) ([]domain.Product, error)

	// Stock ledger. AddStockMovement applies the delta to the product
	// quantity and appends an immutable movement row carrying the
	// post-movement snapshot. Zero delta is a success no-op returning the
	// current quantity. Negative resulting stock is allowed.
	AddStockMovement(ctx context.Context, productID int64, kind string, delta int, reason string) (int, error)
	ListStockMovements(ctx context.Context, productID int64, limit int) ([]domain.StockMovement, error)

	// Sales. CreateSale commits the header, lines, one outbound movement
	// per line and, when AmountPaid is positive, a payment row dated to
	// the sale timestamp. DeleteSale reverses every line with a
	// sale-cancellation movement before removing the sale; a header with
	// no lines is removed directly. ReplaceSale runs DeleteSale plus
	// CreateSale in one transaction and returns the new id.
	CreateSale(ctx context.Context, sale domain.Sale) (int64, error)
	DeleteSale(ctx context.Context, id int64) error
	ReplaceSale(ctx context.Context, oldID int64, sale domain.Sale) (int64, error)
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	ListSales(ctx context.Context, q domain.SaleQuery) ([]domain.Sale, error)

	// Customers
	CreateCustomer(ctx context.Context, c domain.Customer) (int64, error)
	UpdateCustomer(ctx context.Context, c domain.Customer) error
	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)
	SearchCustomers(ctx context.Context, search string, includeInactive bool) ([]domain.Customer, error)
	ArchiveCustomer(ctx context.Context, id int64) error
	AddPayment(ctx context.Context, p domain.Payment) (int64, error)
	// CustomerBalance is derived: sum of sale totals minus sum of
	// payments. Nothing stores a running balance.
	CustomerBalance(ctx context.Context, customerID int64) (decimal.Decimal, error)
	CustomerLedger(ctx context.Context, customerID int64) ([]domain.LedgerEntry, error)

	// Suspended sales. PopSuspendedSale returns the record and deletes it
	// in one step; resuming is a destructive read.
	CreateSuspendedSale(ctx context.Context, s domain.SuspendedSale) (int64, error)
	ListSuspendedSales(ctx context.Context) ([]domain.SuspendedSale, error)
	PopSuspendedSale(ctx context.Context, id int64) (*domain.SuspendedSale, error)
	DeleteSuspendedSale(ctx context.Context, id int64) error

	// Categories, tax rates, settings
	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategory(ctx context.Context, id int64) (*domain.Category, error)
	CreateCategory(ctx context.Context, c domain.Category) (int64, error)
	UpdateCategory(ctx context.Context, c domain.Category) error
	DeleteCategory(ctx context.Context, id int64) error
	ListTaxRates(ctx context.Context) ([]domain.TaxRate, error)
	GetTaxRate(ctx context.Context, id int64) (*domain.TaxRate, error)
	CreateTaxRate(ctx context.Context, t domain.TaxRate) (int64, error)
	DeleteTaxRate(ctx context.Context, id int64) error
	GetAllSettings(ctx context.Context) (domain.Settings, error)
	SaveSetting(ctx context.Context, key, value string) error

	// Users and access
	CreateUser(ctx context.Context, u domain.UserAccount) (int64, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	GetUserAccess(ctx context.Context, username string) (*domain.UserAccount, []string, error)
	UpdateUserPassword(ctx context.Context, username, passwordHash string) error

	// Reports
	ProductSalesReport(ctx context.Context, from, to time.Time, categoryID int64) ([]domain.ProductSalesRow, error)
	InventoryReport(ctx context.Context, categoryID int64) ([]domain.InventoryRow, error)
	DailySalesReport(ctx context.Context, from, to time.Time) ([]domain.DailySalesRow, error)
}
