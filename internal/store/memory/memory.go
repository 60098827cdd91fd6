// Package memory implements store.Repository with in-process maps. It backs
// the test suite and the demo mode; semantics mirror the SQL stores,
// including validate-then-apply ordering so partial writes never survive a
// failed call.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"tezgahpos/internal/domain"
	"tezgahpos/internal/store"
)

type Store struct {
	mu sync.RWMutex

	products   map[int64]domain.Product
	categories map[int64]domain.Category
	taxRates   map[int64]domain.TaxRate
	customers  map[int64]domain.Customer
	sales      map[int64]domain.Sale
	payments   map[int64]domain.Payment
	movements  []domain.StockMovement
	suspended  map[int64]domain.SuspendedSale
	settings   map[string]string
	users      map[string]domain.UserAccount
	rolePerms  map[string][]string

	nextProduct   int64
	nextCategory  int64
	nextTaxRate   int64
	nextCustomer  int64
	nextSale      int64
	nextPayment   int64
	nextMovement  int64
	nextSuspended int64
	nextUser      int64
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	s := &Store{
		products:   make(map[int64]domain.Product),
		categories: make(map[int64]domain.Category),
		taxRates:   make(map[int64]domain.TaxRate),
		customers:  make(map[int64]domain.Customer),
		sales:      make(map[int64]domain.Sale),
		payments:   make(map[int64]domain.Payment),
		suspended:  make(map[int64]domain.SuspendedSale),
		settings:   make(map[string]string),
		users:      make(map[string]domain.UserAccount),
		rolePerms: map[string][]string{
			"admin": {
				domain.PermSalesEdit,
				domain.PermSalesDelete,
				domain.PermProductsManage,
				domain.PermReportsView,
			},
			"cashier": {},
		},
	}
	s.customers[domain.WalkInCustomerID] = domain.Customer{
		ID:        domain.WalkInCustomerID,
		FirstName: "Walk-in",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	s.nextCustomer = domain.WalkInCustomerID
	s.settings[domain.SettingProfitMethod] = domain.ProfitMethodPercentage
	s.settings[domain.SettingProfitValue] = "50"
	s.settings[domain.SettingVATPercent] = "20"
	s.settings[domain.SettingCardCommission] = "2.5"
	return s
}

// NewSeeded returns a store with an active admin account, for demo mode.
func NewSeeded(adminPassword string) *Store {
	s := New()
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err == nil {
		s.nextUser++
		s.users["admin"] = domain.UserAccount{
			ID:           s.nextUser,
			Username:     "admin",
			PasswordHash: string(hash),
			FullName:     "Administrator",
			RoleID:       1,
			RoleName:     "admin",
			Active:       true,
			CreatedAt:    time.Now().UTC(),
		}
	}
	return s
}

// Products

func (s *Store) CreateProduct(_ context.Context, p domain.Product) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkProductKeys(p, 0); err != nil {
		return 0, err
	}
	s.nextProduct++
	p.ID = s.nextProduct
	p.Active = true
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if strings.TrimSpace(p.PurchaseCurrency) == "" {
		p.PurchaseCurrency = domain.BaseCurrency
	}
	s.products[p.ID] = p
	return p.ID, nil
}

func (s *Store) UpdateProduct(_ context.Context, p domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.products[p.ID]
	if !ok {
		return fmt.Errorf("%w: product %d", store.ErrNotFound, p.ID)
	}
	if err := s.checkProductKeys(p, p.ID); err != nil {
		return err
	}
	p.CreatedAt = existing.CreatedAt
	p.Active = existing.Active
	s.products[p.ID] = p
	return nil
}

func (s *Store) checkProductKeys(p domain.Product, selfID int64) error {
	for _, other := range s.products {
		if other.ID == selfID {
			continue
		}
		if strings.EqualFold(other.SKU, p.SKU) {
			return fmt.Errorf("%w: sku %s", store.ErrConflict, p.SKU)
		}
		if p.Barcode != "" && other.Barcode == p.Barcode {
			return fmt.Errorf("%w: barcode %s", store.ErrConflict, p.Barcode)
		}
	}
	return nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, id)
	}
	return &p, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if strings.EqualFold(p.SKU, sku) || (p.Barcode != "" && p.Barcode == sku) {
			out := p
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, sku)
}

func (s *Store) SearchProducts(_ context.Context, q domain.ProductQuery) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]domain.Product, 0)
	for _, p := range s.products {
		if !p.Active && !q.IncludeInactive {
			continue
		}
		if q.CategoryID != 0 && (p.CategoryID == nil || *p.CategoryID != q.CategoryID) {
			continue
		}
		switch q.StockStatus {
		case "low":
			if p.StockQty > p.MinStockLevel {
				continue
			}
		case "out":
			if p.StockQty > 0 {
				continue
			}
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.SKU), needle) &&
			!strings.Contains(strings.ToLower(p.Barcode), needle) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) SaveProductWithVariants(_ context.Context, main domain.Product, variants []domain.Product) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var mainID int64
	for _, p := range s.products {
		if strings.EqualFold(p.SKU, main.SKU) {
			mainID = p.ID
			break
		}
	}
	if mainID == 0 {
		s.nextProduct++
		mainID = s.nextProduct
		main.CreatedAt = time.Now().UTC()
	} else {
		main.CreatedAt = s.products[mainID].CreatedAt
	}
	main.ID = mainID
	main.Active = true
	main.MainProductSKU = ""
	if strings.TrimSpace(main.PurchaseCurrency) == "" {
		main.PurchaseCurrency = domain.BaseCurrency
	}
	s.products[mainID] = main

	keep := make(map[string]bool, len(variants))
	for _, v := range variants {
		keep[strings.ToLower(v.SKU)] = true
	}
	for id, p := range s.products {
		if p.MainProductSKU == main.SKU && !keep[strings.ToLower(p.SKU)] {
			if s.productSold(id) {
				p.Active = false
				s.products[id] = p
			} else {
				delete(s.products, id)
			}
		}
	}

	for _, v := range variants {
		v.MainProductSKU = main.SKU
		v.CategoryID = main.CategoryID
		v.TaxRateID = main.TaxRateID
		v.PurchaseCurrency = main.PurchaseCurrency
		v.PurchasePrice = main.PurchasePrice
		v.MinStockLevel = main.MinStockLevel
		v.Active = true

		var existingID int64
		for _, p := range s.products {
			if strings.EqualFold(p.SKU, v.SKU) {
				existingID = p.ID
				break
			}
		}
		if existingID == 0 {
			s.nextProduct++
			v.ID = s.nextProduct
			v.CreatedAt = time.Now().UTC()
		} else {
			v.ID = existingID
			v.CreatedAt = s.products[existingID].CreatedAt
		}
		s.products[v.ID] = v
	}
	return mainID, nil
}

func (s *Store) ListVariants(_ context.Context, mainSKU string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, 0)
	for _, p := range s.products {
		if p.MainProductSKU == mainSKU && p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (s *Store) productSold(id int64) bool {
	for _, sale := range s.sales {
		for _, l := range sale.Lines {
			if l.ProductID == id {
				return true
			}
		}
	}
	return false
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return fmt.Errorf("%w: product %d", store.ErrNotFound, id)
	}
	if s.productSold(id) {
		return fmt.Errorf("%w: product %d has sales", store.ErrInUse, id)
	}
	delete(s.products, id)
	kept := s.movements[:0]
	for _, m := range s.movements {
		if m.ProductID != id {
			kept = append(kept, m)
		}
	}
	s.movements = kept
	return nil
}

func (s *Store) ArchiveProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return fmt.Errorf("%w: product %d", store.ErrNotFound, id)
	}
	p.Active = false
	s.products[id] = p
	return nil
}

func (s *Store) ListLowStock(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, 0)
	for _, p := range s.products {
		if p.Active && p.StockQty <= p.MinStockLevel {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StockQty < out[j].StockQty })
	return out, nil
}

// Stock ledger

var validKinds = map[string]bool{
	domain.MovementSale:       true,
	domain.MovementSaleCancel: true,
	domain.MovementReceipt:    true,
	domain.MovementCorrection: true,
}

func (s *Store) AddStockMovement(_ context.Context, productID int64, kind string, delta int, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addMovementLocked(productID, kind, delta, reason)
}

func (s *Store) addMovementLocked(productID int64, kind string, delta int, reason string) (int, error) {
	if !validKinds[kind] {
		return 0, fmt.Errorf("%w: unknown movement kind %q", store.ErrValidation, kind)
	}
	p, ok := s.products[productID]
	if !ok {
		return 0, fmt.Errorf("%w: product %d", store.ErrNotFound, productID)
	}
	if delta == 0 {
		return p.StockQty, nil
	}
	p.StockQty += delta
	s.products[productID] = p

	s.nextMovement++
	s.movements = append(s.movements, domain.StockMovement{
		ID:           s.nextMovement,
		ProductID:    productID,
		MovedAt:      time.Now().UTC(),
		Kind:         kind,
		Delta:        delta,
		Reason:       reason,
		ResultingQty: p.StockQty,
	})
	return p.StockQty, nil
}

func (s *Store) ListStockMovements(_ context.Context, productID int64, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.StockMovement, 0)
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if productID != 0 && m.ProductID != productID {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Sales

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createSaleLocked(sale)
}

func (s *Store) createSaleLocked(sale domain.Sale) (int64, error) {
	if len(sale.Lines) == 0 {
		return 0, fmt.Errorf("%w: sale has no lines", store.ErrValidation)
	}
	if sale.CustomerID == 0 {
		sale.CustomerID = domain.WalkInCustomerID
	}
	if _, ok := s.customers[sale.CustomerID]; !ok {
		return 0, fmt.Errorf("%w: customer %d", store.ErrNotFound, sale.CustomerID)
	}
	total := decimal.Zero
	for _, l := range sale.Lines {
		if l.Quantity <= 0 {
			return 0, fmt.Errorf("%w: line quantity must be positive", store.ErrValidation)
		}
		if _, ok := s.products[l.ProductID]; !ok {
			return 0, fmt.Errorf("%w: product %d", store.ErrNotFound, l.ProductID)
		}
		total = total.Add(l.LineTotal())
	}

	if sale.SoldAt.IsZero() {
		sale.SoldAt = time.Now().UTC()
	}
	sale.Total = total
	s.nextSale++
	sale.ID = s.nextSale
	for i := range sale.Lines {
		sale.Lines[i].ID = int64(i + 1)
		if sale.Lines[i].ProductName == "" {
			sale.Lines[i].ProductName = s.products[sale.Lines[i].ProductID].Name
		}
	}
	s.sales[sale.ID] = sale

	for _, l := range sale.Lines {
		if _, err := s.addMovementLocked(l.ProductID, domain.MovementSale, -l.Quantity, fmt.Sprintf("sale #%d", sale.ID)); err != nil {
			delete(s.sales, sale.ID)
			return 0, err
		}
	}

	if sale.AmountPaid.Sign() > 0 {
		s.nextPayment++
		saleID := sale.ID
		s.payments[s.nextPayment] = domain.Payment{
			ID:         s.nextPayment,
			CustomerID: sale.CustomerID,
			SaleID:     &saleID,
			PaidAt:     sale.SoldAt,
			Amount:     sale.AmountPaid,
			Note:       fmt.Sprintf("sale #%d", sale.ID),
		}
	}
	return sale.ID, nil
}

func (s *Store) DeleteSale(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteSaleLocked(id)
}

func (s *Store) deleteSaleLocked(id int64) error {
	sale, ok := s.sales[id]
	if !ok {
		return fmt.Errorf("%w: sale %d", store.ErrNotFound, id)
	}
	for _, l := range sale.Lines {
		if _, exists := s.products[l.ProductID]; !exists {
			continue
		}
		if _, err := s.addMovementLocked(l.ProductID, domain.MovementSaleCancel, l.Quantity, fmt.Sprintf("cancelled sale #%d", id)); err != nil {
			return err
		}
	}
	for pid, p := range s.payments {
		if p.SaleID != nil && *p.SaleID == id {
			delete(s.payments, pid)
		}
	}
	delete(s.sales, id)
	return nil
}

func (s *Store) ReplaceSale(_ context.Context, oldID int64, sale domain.Sale) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sales[oldID]; !ok {
		return 0, fmt.Errorf("%w: sale %d", store.ErrNotFound, oldID)
	}
	if err := s.deleteSaleLocked(oldID); err != nil {
		return 0, err
	}
	return s.createSaleLocked(sale)
}

func (s *Store) GetSale(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.sales[id]
	if !ok {
		return nil, fmt.Errorf("%w: sale %d", store.ErrNotFound, id)
	}
	if c, ok := s.customers[sale.CustomerID]; ok {
		sale.CustomerName = c.FullName()
	}
	lines := make([]domain.SaleLine, len(sale.Lines))
	copy(lines, sale.Lines)
	sale.Lines = lines
	return &sale, nil
}

func (s *Store) ListSales(_ context.Context, q domain.SaleQuery) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Sale, 0)
	for _, sale := range s.sales {
		if !q.From.IsZero() && sale.SoldAt.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && sale.SoldAt.After(q.To) {
			continue
		}
		if q.CustomerID != 0 && sale.CustomerID != q.CustomerID {
			continue
		}
		if c, ok := s.customers[sale.CustomerID]; ok {
			sale.CustomerName = c.FullName()
		}
		sale.Lines = nil
		out = append(out, sale)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SoldAt.Equal(out[j].SoldAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].SoldAt.After(out[j].SoldAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Customers

func (s *Store) CreateCustomer(_ context.Context, c domain.Customer) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCustomer++
	c.ID = s.nextCustomer
	c.Active = true
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.customers[c.ID] = c
	return c.ID, nil
}

func (s *Store) UpdateCustomer(_ context.Context, c domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.customers[c.ID]
	if !ok {
		return fmt.Errorf("%w: customer %d", store.ErrNotFound, c.ID)
	}
	if c.ID == domain.WalkInCustomerID {
		return fmt.Errorf("%w: walk-in customer is reserved", store.ErrValidation)
	}
	c.CreatedAt = existing.CreatedAt
	c.Active = existing.Active
	s.customers[c.ID] = c
	return nil
}

func (s *Store) GetCustomer(_ context.Context, id int64) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return nil, fmt.Errorf("%w: customer %d", store.ErrNotFound, id)
	}
	return &c, nil
}

func (s *Store) SearchCustomers(_ context.Context, search string, includeInactive bool) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(search))
	out := make([]domain.Customer, 0)
	for _, c := range s.customers {
		if !c.Active && !includeInactive {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(c.FullName()), needle) &&
			!strings.Contains(c.Phone, needle) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ArchiveCustomer(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == domain.WalkInCustomerID {
		return fmt.Errorf("%w: walk-in customer is reserved", store.ErrValidation)
	}
	c, ok := s.customers[id]
	if !ok {
		return fmt.Errorf("%w: customer %d", store.ErrNotFound, id)
	}
	c.Active = false
	s.customers[id] = c
	return nil
}

func (s *Store) AddPayment(_ context.Context, p domain.Payment) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[p.CustomerID]; !ok {
		return 0, fmt.Errorf("%w: customer %d", store.ErrNotFound, p.CustomerID)
	}
	if p.Amount.Sign() <= 0 {
		return 0, fmt.Errorf("%w: payment amount must be positive", store.ErrValidation)
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = time.Now().UTC()
	}
	s.nextPayment++
	p.ID = s.nextPayment
	s.payments[p.ID] = p
	return p.ID, nil
}

func (s *Store) CustomerBalance(_ context.Context, customerID int64) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.customers[customerID]; !ok {
		return decimal.Zero, fmt.Errorf("%w: customer %d", store.ErrNotFound, customerID)
	}
	balance := decimal.Zero
	for _, sale := range s.sales {
		if sale.CustomerID == customerID {
			balance = balance.Add(sale.Total)
		}
	}
	for _, p := range s.payments {
		if p.CustomerID == customerID {
			balance = balance.Sub(p.Amount)
		}
	}
	return balance, nil
}

func (s *Store) CustomerLedger(_ context.Context, customerID int64) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.customers[customerID]; !ok {
		return nil, fmt.Errorf("%w: customer %d", store.ErrNotFound, customerID)
	}
	out := make([]domain.LedgerEntry, 0)
	for _, sale := range s.sales {
		if sale.CustomerID != customerID {
			continue
		}
		out = append(out, domain.LedgerEntry{
			At:          sale.SoldAt,
			Kind:        "sale",
			Reference:   sale.ID,
			Description: fmt.Sprintf("sale #%d", sale.ID),
			Debit:       sale.Total,
		})
	}
	for _, p := range s.payments {
		if p.CustomerID != customerID {
			continue
		}
		out = append(out, domain.LedgerEntry{
			At:          p.PaidAt,
			Kind:        "payment",
			Reference:   p.ID,
			Description: p.Note,
			Credit:      p.Amount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// Suspended sales

func (s *Store) CreateSuspendedSale(_ context.Context, sus domain.SuspendedSale) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(sus.CartJSON) == "" {
		return 0, fmt.Errorf("%w: empty cart payload", store.ErrValidation)
	}
	if sus.CustomerID == 0 {
		sus.CustomerID = domain.WalkInCustomerID
	}
	if sus.SuspendedAt.IsZero() {
		sus.SuspendedAt = time.Now().UTC()
	}
	s.nextSuspended++
	sus.ID = s.nextSuspended
	s.suspended[sus.ID] = sus
	return sus.ID, nil
}

func (s *Store) ListSuspendedSales(_ context.Context) ([]domain.SuspendedSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SuspendedSale, 0, len(s.suspended))
	for _, sus := range s.suspended {
		if c, ok := s.customers[sus.CustomerID]; ok {
			sus.CustomerName = c.FullName()
		}
		out = append(out, sus)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SuspendedAt.Equal(out[j].SuspendedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].SuspendedAt.After(out[j].SuspendedAt)
	})
	return out, nil
}

func (s *Store) PopSuspendedSale(_ context.Context, id int64) (*domain.SuspendedSale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sus, ok := s.suspended[id]
	if !ok {
		return nil, fmt.Errorf("%w: suspended sale %d", store.ErrNotFound, id)
	}
	delete(s.suspended, id)
	return &sus, nil
}

func (s *Store) DeleteSuspendedSale(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.suspended[id]; !ok {
		return fmt.Errorf("%w: suspended sale %d", store.ErrNotFound, id)
	}
	delete(s.suspended, id)
	return nil
}

// Categories, tax rates, settings

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, id int64) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, fmt.Errorf("%w: category %d", store.ErrNotFound, id)
	}
	return &c, nil
}

func (s *Store) CreateCategory(_ context.Context, c domain.Category) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.categories {
		if strings.EqualFold(other.Name, c.Name) {
			return 0, fmt.Errorf("%w: category %s", store.ErrConflict, c.Name)
		}
	}
	s.nextCategory++
	c.ID = s.nextCategory
	s.categories[c.ID] = c
	return c.ID, nil
}

func (s *Store) UpdateCategory(_ context.Context, c domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[c.ID]; !ok {
		return fmt.Errorf("%w: category %d", store.ErrNotFound, c.ID)
	}
	for _, other := range s.categories {
		if other.ID != c.ID && strings.EqualFold(other.Name, c.Name) {
			return fmt.Errorf("%w: category %s", store.ErrConflict, c.Name)
		}
	}
	s.categories[c.ID] = c
	return nil
}

func (s *Store) DeleteCategory(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return fmt.Errorf("%w: category %d", store.ErrNotFound, id)
	}
	for _, p := range s.products {
		if p.CategoryID != nil && *p.CategoryID == id {
			return fmt.Errorf("%w: category %d has products", store.ErrInUse, id)
		}
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) ListTaxRates(_ context.Context) ([]domain.TaxRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TaxRate, 0, len(s.taxRates))
	for _, t := range s.taxRates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetTaxRate(_ context.Context, id int64) (*domain.TaxRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.taxRates[id]
	if !ok {
		return nil, fmt.Errorf("%w: tax rate %d", store.ErrNotFound, id)
	}
	return &t, nil
}

func (s *Store) CreateTaxRate(_ context.Context, t domain.TaxRate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTaxRate++
	t.ID = s.nextTaxRate
	s.taxRates[t.ID] = t
	return t.ID, nil
}

func (s *Store) DeleteTaxRate(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.taxRates[id]; !ok {
		return fmt.Errorf("%w: tax rate %d", store.ErrNotFound, id)
	}
	for _, p := range s.products {
		if p.TaxRateID != nil && *p.TaxRateID == id {
			return fmt.Errorf("%w: tax rate %d has products", store.ErrInUse, id)
		}
	}
	delete(s.taxRates, id)
	return nil
}

func (s *Store) GetAllSettings(_ context.Context) (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(domain.Settings, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out, nil
}

func (s *Store) SaveSetting(_ context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: empty setting key", store.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

// Users and access

var roleIDs = map[string]int64{"admin": 1, "cashier": 2}

func (s *Store) CreateUser(_ context.Context, u domain.UserAccount) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	username := strings.ToLower(strings.TrimSpace(u.Username))
	if username == "" {
		return 0, fmt.Errorf("%w: empty username", store.ErrValidation)
	}
	if _, exists := s.users[username]; exists {
		return 0, fmt.Errorf("%w: username %s", store.ErrConflict, username)
	}
	if u.RoleName == "" {
		u.RoleName = "cashier"
	}
	roleID, ok := roleIDs[u.RoleName]
	if !ok {
		return 0, fmt.Errorf("%w: unknown role %s", store.ErrValidation, u.RoleName)
	}
	s.nextUser++
	u.ID = s.nextUser
	u.Username = username
	u.RoleID = roleID
	u.Active = true
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[username] = u
	return u.ID, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) GetUserAccess(_ context.Context, username string) (*domain.UserAccount, []string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, nil, fmt.Errorf("%w: user %s", store.ErrNotFound, username)
	}
	perms := append([]string(nil), s.rolePerms[u.RoleName]...)
	return &u, perms, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return fmt.Errorf("%w: user %s", store.ErrNotFound, username)
	}
	u.PasswordHash = passwordHash
	s.users[u.Username] = u
	return nil
}

// Reports

func (s *Store) ProductSalesReport(_ context.Context, from, to time.Time, categoryID int64) ([]domain.ProductSalesRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byProduct := make(map[int64]*domain.ProductSalesRow)
	for _, sale := range s.sales {
		if !from.IsZero() && sale.SoldAt.Before(from) {
			continue
		}
		if !to.IsZero() && sale.SoldAt.After(to) {
			continue
		}
		for _, l := range sale.Lines {
			p, ok := s.products[l.ProductID]
			if !ok {
				continue
			}
			if categoryID != 0 && (p.CategoryID == nil || *p.CategoryID != categoryID) {
				continue
			}
			row, ok := byProduct[l.ProductID]
			if !ok {
				row = &domain.ProductSalesRow{ProductID: l.ProductID, SKU: p.SKU, Name: p.Name}
				byProduct[l.ProductID] = row
			}
			row.QuantitySold += l.Quantity
			row.Revenue = row.Revenue.Add(l.LineTotal())
		}
	}
	out := make([]domain.ProductSalesRow, 0, len(byProduct))
	for _, row := range byProduct {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revenue.GreaterThan(out[j].Revenue) })
	return out, nil
}

func (s *Store) InventoryReport(_ context.Context, categoryID int64) ([]domain.InventoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.InventoryRow, 0)
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		if categoryID != 0 && (p.CategoryID == nil || *p.CategoryID != categoryID) {
			continue
		}
		out = append(out, domain.InventoryRow{
			ProductID:     p.ID,
			SKU:           p.SKU,
			Name:          p.Name,
			StockQty:      p.StockQty,
			PurchasePrice: p.PurchasePrice,
			StockValue:    p.PurchasePrice.Mul(decimal.NewFromInt(int64(p.StockQty))),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DailySalesReport(_ context.Context, from, to time.Time) ([]domain.DailySalesRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byDay := make(map[string]*domain.DailySalesRow)
	for _, sale := range s.sales {
		if !from.IsZero() && sale.SoldAt.Before(from) {
			continue
		}
		if !to.IsZero() && sale.SoldAt.After(to) {
			continue
		}
		day := sale.SoldAt.Format("2006-01-02")
		row, ok := byDay[day]
		if !ok {
			row = &domain.DailySalesRow{Day: day}
			byDay[day] = row
		}
		row.SaleCount++
		row.Total = row.Total.Add(sale.Total)
	}
	out := make([]domain.DailySalesRow, 0, len(byDay))
	for _, row := range byDay {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}
