// Package service implements the business operations on top of the
// repository: checkout, sale editing and voiding, stock adjustments,
// customer accounts, suspended sales, catalog and settings management.
// Permission checks happen here, against the actor carried in the request
// context.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"tezgahpos/internal/domain"
	"tezgahpos/internal/pricing"
	"tezgahpos/internal/store"
)

// ErrPermissionDenied is returned when the acting user lacks the permission
// an operation requires.
var ErrPermissionDenied = errors.New("permission denied")

// Notifier receives change events after successful mutations so attached
// UIs can refresh. Implementations must not block.
type Notifier interface {
	Publish(event string)
}

const (
	EventProductsUpdated  = "products_updated"
	EventStockUpdated     = "stock_updated"
	EventSalesUpdated     = "sales_updated"
	EventCustomersUpdated = "customers_updated"
	EventSuspendedUpdated = "suspended_updated"
	EventSettingsUpdated  = "settings_updated"
)

type Service struct {
	repo   store.Repository
	logger *logrus.Logger
	events Notifier
}

func New(repo store.Repository, logger *logrus.Logger, events Notifier) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{repo: repo, logger: logger, events: events}
}

type actorContextKey struct{}

// WithActor attaches the authenticated actor to the context.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the actor attached by WithActor.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

func (s *Service) requirePermission(ctx context.Context, code string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return fmt.Errorf("%w: authentication required", ErrPermissionDenied)
	}
	if !actor.Can(code) {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, code)
	}
	return nil
}

func (s *Service) requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("%w: admin role required", ErrPermissionDenied)
	}
	return nil
}

func (s *Service) publish(event string) {
	if s.events != nil {
		s.events.Publish(event)
	}
}

// Products

func productFromRequest(req domain.ProductRequest) (domain.Product, error) {
	sku := strings.TrimSpace(req.SKU)
	name := strings.TrimSpace(req.Name)
	if sku == "" || name == "" {
		return domain.Product{}, fmt.Errorf("%w: sku and name are required", store.ErrValidation)
	}
	if req.PurchasePrice.Sign() < 0 {
		return domain.Product{}, fmt.Errorf("%w: purchase price cannot be negative", store.ErrValidation)
	}
	if req.MinStockLevel < 0 {
		return domain.Product{}, fmt.Errorf("%w: minimum stock cannot be negative", store.ErrValidation)
	}
	currency := strings.ToUpper(strings.TrimSpace(req.PurchaseCurrency))
	if currency == "" {
		currency = domain.BaseCurrency
	}
	return domain.Product{
		SKU:              sku,
		Barcode:          strings.TrimSpace(req.Barcode),
		Name:             name,
		CategoryID:       req.CategoryID,
		TaxRateID:        req.TaxRateID,
		PurchaseCurrency: currency,
		PurchasePrice:    req.PurchasePrice,
		StockQty:         req.StockQty,
		MinStockLevel:    req.MinStockLevel,
	}, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductRequest) (int64, error) {
	if err := s.requirePermission(ctx, domain.PermProductsManage); err != nil {
		return 0, err
	}
	p, err := productFromRequest(req)
	if err != nil {
		return 0, err
	}
	id, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return 0, err
	}
	s.logger.WithFields(logrus.Fields{"product_id": id, "sku": p.SKU}).Info("product created")
	s.publish(EventProductsUpdated)
	return id, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductRequest) error {
	if err := s.requirePermission(ctx, domain.PermProductsManage); err != nil {
		return err
	}
	p, err := productFromRequest(req)
	if err != nil {
		return err
	}
	p.ID = id
	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return err
	}
	s.publish(EventProductsUpdated)
	return nil
}

// SaveProductWithVariants upserts a main product together with its variant
// rows. Variants inherit the main product's pricing fields; dropped
// variants are archived when already sold, deleted otherwise.
func (s *Service) SaveProductWithVariants(ctx context.Context, req domain.ProductWithVariantsRequest) (int64, error) {
	if err := s.requirePermission(ctx, domain.PermProductsManage); err != nil {
		return 0, err
	}
	main, err := productFromRequest(req.Main)
	if err != nil {
		return 0, err
	}
	variants := make([]domain.Product, 0, len(req.Variants))
	seen := map[string]bool{strings.ToLower(main.SKU): true}
	for _, v := range req.Variants {
		sku := strings.TrimSpace(v.SKU)
		name := strings.TrimSpace(v.Name)
		if sku == "" || name == "" {
			return 0, fmt.Errorf("%w: variant sku and name are required", store.ErrValidation)
		}
		if seen[strings.ToLower(sku)] {
			return 0, fmt.Errorf("%w: duplicate variant sku %s", store.ErrValidation, sku)
		}
		seen[strings.ToLower(sku)] = true
		variants = append(variants, domain.Product{
			SKU:      sku,
			Barcode:  strings.TrimSpace(v.Barcode),
			Name:     name,
			StockQty: v.StockQty,
		})
	}
	id, err := s.repo.SaveProductWithVariants(ctx, main, variants)
	if err != nil {
		return 0, err
	}
	s.logger.WithFields(logrus.Fields{"product_id": id, "variants": len(variants)}).Info("variant group saved")
	s.publish(EventProductsUpdated)
	return id, nil
}

// DeleteProduct removes a product, falling back to archiving when it has
// sales history. The returned flag reports whether it was archived rather
// than deleted.
func (s *Service) DeleteProduct(ctx context.Context, id int64) (bool, error) {
	if err := s.requirePermission(ctx, domain.PermProductsManage); err != nil {
		return false, err
	}
	err := s.repo.DeleteProduct(ctx, id)
	if err == nil {
		s.publish(EventProductsUpdated)
		return false, nil
	}
	if !errors.Is(err, store.ErrInUse) {
		return false, err
	}
	if err := s.repo.ArchiveProduct(ctx, id); err != nil {
		return false, err
	}
	s.logger.WithField("product_id", id).Info("product archived instead of deleted")
	s.publish(EventProductsUpdated)
	return true, nil
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// FindProduct looks a product up by SKU or barcode, for scanner input.
func (s *Service) FindProduct(ctx context.Context, code string) (*domain.Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: empty product code", store.ErrValidation)
	}
	return s.repo.GetProductBySKU(ctx, code)
}

func (s *Service) SearchProducts(ctx context.Context, q domain.ProductQuery) ([]domain.Product, error) {
	return s.repo.SearchProducts(ctx, q)
}

func (s *Service) ListVariants(ctx context.Context, mainSKU string) ([]domain.Product, error) {
	return s.repo.ListVariants(ctx, mainSKU)
}

func (s *Service) ListLowStock(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListLowStock(ctx)
}

// AdjustStock applies a manual receipt or correction movement and returns
// the resulting quantity.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (int, error) {
	if err := s.requirePermission(ctx, domain.PermProductsManage); err != nil {
		return 0, err
	}
	if req.Kind != domain.MovementReceipt && req.Kind != domain.MovementCorrection {
		return 0, fmt.Errorf("%w: manual movements must be receipt or correction", store.ErrValidation)
	}
	qty, err := s.repo.AddStockMovement(ctx, req.ProductID, req.Kind, req.Delta, strings.TrimSpace(req.Reason))
	if err != nil {
		return 0, err
	}
	s.logger.WithFields(logrus.Fields{
		"product_id": req.ProductID,
		"kind":       req.Kind,
		"delta":      req.Delta,
		"resulting":  qty,
	}).Info("stock adjusted")
	s.publish(EventStockUpdated)
	return qty, nil
}

func (s *Service) StockMovements(ctx context.Context, productID int64, limit int) ([]domain.StockMovement, error) {
	return s.repo.ListStockMovements(ctx, productID, limit)
}

// Pricing

// QuotePrices resolves a product's cost-plus, cash and card prices from
// current settings and the product's category and tax-rate references.
func (s *Service) QuotePrices(ctx context.Context, productID int64) (domain.PriceQuote, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	settings, err := s.repo.GetAllSettings(ctx)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	var category *domain.Category
	if product.CategoryID != nil {
		category, err = s.repo.GetCategory(ctx, *product.CategoryID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return domain.PriceQuote{}, err
		}
	}
	var taxRate *domain.TaxRate
	if product.TaxRateID != nil {
		taxRate, err = s.repo.GetTaxRate(ctx, *product.TaxRateID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return domain.PriceQuote{}, err
		}
	}

	prices := pricing.Calculate(*product, settings, category, taxRate)
	if !prices.OK {
		return domain.PriceQuote{}, fmt.Errorf("%w: pricing settings are malformed", store.ErrValidation)
	}
	return domain.PriceQuote{
		ProductID:       productID,
		CostPlus:        prices.CostPlus,
		Cash:            prices.Cash,
		Card:            prices.Card,
		CurrencyDefined: prices.CurrencyDefined,
	}, nil
}

// Sales

func saleFromRequest(req domain.SaleRequest) (domain.Sale, error) {
	if len(req.Lines) == 0 {
		return domain.Sale{}, fmt.Errorf("%w: sale has no lines", store.ErrValidation)
	}
	if req.AmountPaid.Sign() < 0 {
		return domain.Sale{}, fmt.Errorf("%w: amount paid cannot be negative", store.ErrValidation)
	}
	sale := domain.Sale{
		CustomerID: req.CustomerID,
		AmountPaid: req.AmountPaid,
	}
	if sale.CustomerID == 0 {
		sale.CustomerID = domain.WalkInCustomerID
	}
	if req.SoldAt != nil {
		sale.SoldAt = req.SoldAt.UTC()
	}
	for _, l := range req.Lines {
		if l.Quantity <= 0 {
			return domain.Sale{}, fmt.Errorf("%w: line quantity must be positive", store.ErrValidation)
		}
		if l.UnitPrice.Sign() <= 0 {
			return domain.Sale{}, fmt.Errorf("%w: unit price must be positive", store.ErrValidation)
		}
		sale.Lines = append(sale.Lines, domain.SaleLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return sale, nil
}

// CreateSale commits a checkout: sale header, lines, stock movements and
// the optional payment, all in one unit of work.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (int64, error) {
	sale, err := saleFromRequest(req)
	if err != nil {
		return 0, err
	}
	id, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return 0, err
	}
	s.logger.WithFields(logrus.Fields{
		"sale_id":  id,
		"customer": sale.CustomerID,
		"lines":    len(sale.Lines),
	}).Info("sale committed")
	s.publish(EventSalesUpdated)
	s.publish(EventStockUpdated)
	return id, nil
}

// DeleteSale voids a committed sale, returning its stock through
// cancellation movements.
func (s *Service) DeleteSale(ctx context.Context, id int64) error {
	if err := s.requirePermission(ctx, domain.PermSalesDelete); err != nil {
		return err
	}
	if err := s.repo.DeleteSale(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("sale_id", id).Info("sale deleted")
	s.publish(EventSalesUpdated)
	s.publish(EventStockUpdated)
	return nil
}

// EditSale replaces a committed sale with new content. The original is
// cancelled and a fresh sale is committed in the same unit of work, so the
// returned id differs from oldID.
func (s *Service) EditSale(ctx context.Context, oldID int64, req domain.SaleRequest) (int64, error) {
	if err := s.requirePermission(ctx, domain.PermSalesEdit); err != nil {
		return 0, err
	}
	sale, err := saleFromRequest(req)
	if err != nil {
		return 0, err
	}
	newID, err := s.repo.ReplaceSale(ctx, oldID, sale)
	if err != nil {
		return 0, err
	}
	s.logger.WithFields(logrus.Fields{"old_sale_id": oldID, "new_sale_id": newID}).Info("sale edited")
	s.publish(EventSalesUpdated)
	s.publish(EventStockUpdated)
	return newID, nil
}

func (s *Service) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return s.repo.GetSale(ctx, id)
}

func (s *Service) ListSales(ctx context.Context, q domain.SaleQuery) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, q)
}

// Customers

func customerFromRequest(req domain.CustomerRequest) (domain.Customer, error) {
	first := strings.TrimSpace(req.FirstName)
	if first == "" {
		return domain.Customer{}, fmt.Errorf("%w: first name is required", store.ErrValidation)
	}
	return domain.Customer{
		FirstName: first,
		LastName:  strings.TrimSpace(req.LastName),
		Phone:     strings.TrimSpace(req.Phone),
		Email:     strings.TrimSpace(req.Email),
		Notes:     req.Notes,
		GroupID:   req.GroupID,
	}, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerRequest) (int64, error) {
	c, err := customerFromRequest(req)
	if err != nil {
		return 0, err
	}
	id, err := s.repo.CreateCustomer(ctx, c)
	if err != nil {
		return 0, err
	}
	s.publish(EventCustomersUpdated)
	return id, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id int64, req domain.CustomerRequest) error {
	c, err := customerFromRequest(req)
	if err != nil {
		return err
	}
	c.ID = id
	if err := s.repo.UpdateCustomer(ctx, c); err != nil {
		return err
	}
	s.publish(EventCustomersUpdated)
	return nil
}

func (s *Service) ArchiveCustomer(ctx context.Context, id int64) error {
	if err := s.repo.ArchiveCustomer(ctx, id); err != nil {
		return err
	}
	s.publish(EventCustomersUpdated)
	return nil
}

func (s *Service) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

func (s *Service) SearchCustomers(ctx context.Context, search string, includeInactive bool) ([]domain.Customer, error) {
	return s.repo.SearchCustomers(ctx, search, includeInactive)
}

// RecordPayment books a standalone payment against a customer account.
func (s *Service) RecordPayment(ctx context.Context, req domain.PaymentRequest) (int64, error) {
	if req.Amount.Sign() <= 0 {
		return 0, fmt.Errorf("%w: payment amount must be positive", store.ErrValidation)
	}
	p := domain.Payment{
		CustomerID: req.CustomerID,
		Amount:     req.Amount,
		Note:       strings.TrimSpace(req.Note),
	}
	if req.PaidAt != nil {
		p.PaidAt = req.PaidAt.UTC()
	}
	id, err := s.repo.AddPayment(ctx, p)
	if err != nil {
		return 0, err
	}
	s.logger.WithFields(logrus.Fields{"customer_id": req.CustomerID, "amount": req.Amount.String()}).Info("payment recorded")
	s.publish(EventCustomersUpdated)
	return id, nil
}

func (s *Service) CustomerBalance(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	return s.repo.CustomerBalance(ctx, customerID)
}

func (s *Service) CustomerLedger(ctx context.Context, customerID int64) ([]domain.LedgerEntry, error) {
	return s.repo.CustomerLedger(ctx, customerID)
}

// Suspended sales

// SuspendSale parks the serialized cart so the terminal can start a new
// sale. Stock is not touched.
func (s *Service) SuspendSale(ctx context.Context, req domain.SuspendRequest) (int64, error) {
	if strings.TrimSpace(req.CartJSON) == "" {
		return 0, fmt.Errorf("%w: cannot suspend an empty cart", store.ErrValidation)
	}
	id, err := s.repo.CreateSuspendedSale(ctx, domain.SuspendedSale{
		CustomerID: req.CustomerID,
		Note:       strings.TrimSpace(req.Note),
		CartJSON:   req.CartJSON,
	})
	if err != nil {
		return 0, err
	}
	s.publish(EventSuspendedUpdated)
	return id, nil
}

func (s *Service) ListSuspendedSales(ctx context.Context) ([]domain.SuspendedSale, error) {
	return s.repo.ListSuspendedSales(ctx)
}

// ResumeSuspendedSale returns the parked cart and removes it; a resumed
// sale that is abandoned must be suspended again explicitly.
func (s *Service) ResumeSuspendedSale(ctx context.Context, id int64) (*domain.SuspendedSale, error) {
	sus, err := s.repo.PopSuspendedSale(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(EventSuspendedUpdated)
	return sus, nil
}

func (s *Service) DiscardSuspendedSale(ctx context.Context, id int64) error {
	if err := s.repo.DeleteSuspendedSale(ctx, id); err != nil {
		return err
	}
	s.publish(EventSuspendedUpdated)
	return nil
}

// Catalog and settings

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryRequest) (int64, error) {
	if err := s.requirePermission(ctx, domain.PermProductsManage); err != nil {
		return 0, err
	}
	c, err := categoryFromRequest(req)
	if err != nil {
		return 0, err
	}
	id, err := s.repo.CreateCategory(ctx, c)
	if err != nil {
		return 0, err
	}
	s.publish(EventSettingsUpdated)
	return id, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id int64, req domain.CategoryRequest) error {
	if err := s.requirePermission(ctx, domain.PermProductsManage); err != nil {
		return err
	}
	c, err := categoryFromRequest(req)
	if err != nil {
		return err
	}
	c.ID = id
	if err := s.repo.UpdateCategory(ctx, c); err != nil {
		return err
	}
	s.publish(EventSettingsUpdated)
	return nil
}

func categoryFromRequest(req domain.CategoryRequest) (domain.Category, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Category{}, fmt.Errorf("%w: category name is required", store.ErrValidation)
	}
	// A profit override needs both fields; a lone method or value is
	// rejected rather than silently ignored at save time.
	if (req.ProfitMethod == nil) != (req.ProfitValue == nil) {
		return domain.Category{}, fmt.Errorf("%w: profit override needs both method and value", store.ErrValidation)
	}
	if req.ProfitMethod != nil &&
		*req.ProfitMethod != domain.ProfitMethodPercentage &&
		*req.ProfitMethod != domain.ProfitMethodFixed {
		return domain.Category{}, fmt.Errorf("%w: unknown profit method %q", store.ErrValidation, *req.ProfitMethod)
	}
	return domain.Category{Name: name, ProfitMethod: req.ProfitMethod, ProfitValue: req.ProfitValue}, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	if err := s.requirePermission(ctx, domain.PermProductsManage); err != nil {
		return err
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.publish(EventSettingsUpdated)
	return nil
}

func (s *Service) ListTaxRates(ctx context.Context) ([]domain.TaxRate, error) {
	return s.repo.ListTaxRates(ctx)
}

func (s *Service) CreateTaxRate(ctx context.Context, req domain.TaxRateRequest) (int64, error) {
	if err := s.requirePermission(ctx, domain.PermProductsManage); err != nil {
		return 0, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return 0, fmt.Errorf("%w: tax rate name is required", store.ErrValidation)
	}
	if req.Percent.Sign() < 0 {
		return 0, fmt.Errorf("%w: tax percent cannot be negative", store.ErrValidation)
	}
	id, err := s.repo.CreateTaxRate(ctx, domain.TaxRate{Name: name, Percent: req.Percent})
	if err != nil {
		return 0, err
	}
	s.publish(EventSettingsUpdated)
	return id, nil
}

func (s *Service) DeleteTaxRate(ctx context.Context, id int64) error {
	if err := s.requirePermission(ctx, domain.PermProductsManage); err != nil {
		return err
	}
	if err := s.repo.DeleteTaxRate(ctx, id); err != nil {
		return err
	}
	s.publish(EventSettingsUpdated)
	return nil
}

func (s *Service) Settings(ctx context.Context) (domain.Settings, error) {
	return s.repo.GetAllSettings(ctx)
}

func (s *Service) SaveSetting(ctx context.Context, key, value string) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.SaveSetting(ctx, key, value); err != nil {
		return err
	}
	s.logger.WithField("key", key).Info("setting saved")
	s.publish(EventSettingsUpdated)
	return nil
}

// SaveExchangeRate stores a fetched currency rate without requiring an
// actor; it is called by the background rate updater.
func (s *Service) SaveExchangeRate(ctx context.Context, currency string, rate decimal.Decimal) error {
	if rate.Sign() <= 0 {
		return fmt.Errorf("%w: exchange rate must be positive", store.ErrValidation)
	}
	if err := s.repo.SaveSetting(ctx, domain.ExchangeRateKey(currency), rate.String()); err != nil {
		return err
	}
	s.publish(EventSettingsUpdated)
	return nil
}

// Users

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (int64, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return 0, err
	}
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 4 || strings.ContainsAny(username, " \t\r\n") {
		return 0, fmt.Errorf("%w: username must be at least 4 characters without spaces", store.ErrValidation)
	}
	if len(req.Password) < 6 {
		return 0, fmt.Errorf("%w: password must be at least 6 characters", store.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	id, err := s.repo.CreateUser(ctx, domain.UserAccount{
		Username:     username,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(req.FullName),
		RoleName:     req.Role,
	})
	if err != nil {
		return 0, err
	}
	s.logger.WithFields(logrus.Fields{"username": username, "role": req.Role}).Info("user created")
	return id, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

// Reports

func (s *Service) ProductSalesReport(ctx context.Context, q domain.SaleQuery, categoryID int64) ([]domain.ProductSalesRow, error) {
	if err := s.requirePermission(ctx, domain.PermReportsView); err != nil {
		return nil, err
	}
	return s.repo.ProductSalesReport(ctx, q.From, q.To, categoryID)
}

// InventoryReport returns the valuation rows plus the summed stock value.
func (s *Service) InventoryReport(ctx context.Context, categoryID int64) ([]domain.InventoryRow, decimal.Decimal, error) {
	if err := s.requirePermission(ctx, domain.PermReportsView); err != nil {
		return nil, decimal.Zero, err
	}
	rows, err := s.repo.InventoryReport(ctx, categoryID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.StockValue)
	}
	return rows, total, nil
}

func (s *Service) DailySalesReport(ctx context.Context, q domain.SaleQuery) ([]domain.DailySalesRow, error) {
	if err := s.requirePermission(ctx, domain.PermReportsView); err != nil {
		return nil, err
	}
	return s.repo.DailySalesReport(ctx, q.From, q.To)
}
