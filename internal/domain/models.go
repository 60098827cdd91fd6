package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BaseCurrency is the currency purchase prices are normalized into before
// any profit or tax math runs. Products bought in other currencies need a
// positive exchange rate in settings.
const BaseCurrency = "TL"

// WalkInCustomerID is reserved for anonymous counter sales. The row is
// seeded at migration time and can never be archived or deleted.
const WalkInCustomerID int64 = 1

const (
	ProfitMethodPercentage = "percentage"
	ProfitMethodFixed      = "fixed-amount"
)

const (
	MovementSale       = "sale"
	MovementSaleCancel = "sale-cancellation"
	MovementReceipt    = "receipt"
	MovementCorrection = "correction"
)

const (
	PermSalesEdit      = "sales:edit"
	PermSalesDelete    = "sales:delete"
	PermProductsManage = "products:manage"
	PermReportsView    = "reports:view"
)

const (
	SettingProfitMethod   = "profit_method"
	SettingProfitValue    = "profit_value"
	SettingVATPercent     = "vat_percent"
	SettingCardCommission = "card_commission_percent"
	SettingCompanyName    = "company_name"
	SettingReceiptFooter  = "receipt_footer"
)

type Product struct {
	ID               int64           `json:"id"`
	SKU              string          `json:"sku"`
	Barcode          string          `json:"barcode,omitempty"`
	Name             string          `json:"name"`
	CategoryID       *int64          `json:"category_id,omitempty"`
	TaxRateID        *int64          `json:"tax_rate_id,omitempty"`
	PurchaseCurrency string          `json:"purchase_currency"`
	PurchasePrice    decimal.Decimal `json:"purchase_price"`
	StockQty         int             `json:"stock_qty"`
	MinStockLevel    int             `json:"min_stock_level"`
	MainProductSKU   string          `json:"main_product_sku,omitempty"`
	Active           bool            `json:"active"`
	CreatedAt        time.Time       `json:"created_at"`
}

// IsVariant reports whether the product belongs to a variant group owned by
// another product.
func (p Product) IsVariant() bool {
	return p.MainProductSKU != "" && p.MainProductSKU != p.SKU
}

type Category struct {
	ID           int64            `json:"id"`
	Name         string           `json:"name"`
	ProfitMethod *string          `json:"profit_method,omitempty"`
	ProfitValue  *decimal.Decimal `json:"profit_value,omitempty"`
}

// HasProfitOverride reports whether the category replaces the global profit
// rule. Both fields must be present; a half-configured override is ignored.
func (c Category) HasProfitOverride() bool {
	return c.ProfitMethod != nil && c.ProfitValue != nil
}

type TaxRate struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Percent decimal.Decimal `json:"percent"`
}

type Customer struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	GroupID   *int64    `json:"group_id,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func (c Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

type CustomerGroup struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type SaleLine struct {
	ID          int64           `json:"id,omitempty"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func (l SaleLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Sale struct {
	ID           int64           `json:"id"`
	CustomerID   int64           `json:"customer_id"`
	CustomerName string          `json:"customer_name,omitempty"`
	SoldAt       time.Time       `json:"sold_at"`
	Total        decimal.Decimal `json:"total"`
	AmountPaid   decimal.Decimal `json:"amount_paid"`
	Lines        []SaleLine      `json:"lines,omitempty"`
}

// Payment is a customer account credit. SaleID is set on payments recorded
// automatically at checkout so they can be removed together with the sale.
type Payment struct {
	ID         int64           `json:"id"`
	CustomerID int64           `json:"customer_id"`
	SaleID     *int64          `json:"sale_id,omitempty"`
	PaidAt     time.Time       `json:"paid_at"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note,omitempty"`
}

type StockMovement struct {
	ID           int64     `json:"id"`
	ProductID    int64     `json:"product_id"`
	MovedAt      time.Time `json:"moved_at"`
	Kind         string    `json:"kind"`
	Delta        int       `json:"delta"`
	Reason       string    `json:"reason,omitempty"`
	ResultingQty int       `json:"resulting_qty"`
}

type SuspendedSale struct {
	ID           int64     `json:"id"`
	CustomerID   int64     `json:"customer_id"`
	CustomerName string    `json:"customer_name,omitempty"`
	Note         string    `json:"note,omitempty"`
	CartJSON     string    `json:"cart_json"`
	SuspendedAt  time.Time `json:"suspended_at"`
}

// Settings is the flat key/value configuration table. Numeric values are
// stored as text and may use a comma decimal separator, which DecimalValue
// tolerates.
type Settings map[string]string

// DecimalValue parses the named setting as a decimal. present is false when
// the key is absent or blank; a present but unparseable value returns an
// error.
func (s Settings) DecimalValue(key string) (d decimal.Decimal, present bool, err error) {
	raw := strings.TrimSpace(s[key])
	if raw == "" {
		return decimal.Zero, false, nil
	}
	raw = strings.ReplaceAll(raw, ",", ".")
	d, err = decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, true, err
	}
	return d, true, nil
}

// ExchangeRateKey returns the settings key holding the TL selling rate for a
// purchase currency, e.g. "usd_exchange_rate".
func ExchangeRateKey(currency string) string {
	return strings.ToLower(strings.TrimSpace(currency)) + "_exchange_rate"
}

type UserAccount struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name,omitempty"`
	RoleID       int64     `json:"role_id"`
	RoleName     string    `json:"role_name,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Actor is the authenticated identity attached to a request context. The
// permission set is resolved at login time from the actor's role.
type Actor struct {
	Username    string   `json:"username"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// Can reports whether the actor holds the permission code. Admins hold every
// permission implicitly.
func (a Actor) Can(code string) bool {
	if a.Role == "admin" {
		return true
	}
	for _, p := range a.Permissions {
		if p == code {
			return true
		}
	}
	return false
}

// LedgerEntry is one row of a customer's chronological account history.
// Debit carries sale totals, Credit carries payments.
type LedgerEntry struct {
	At          time.Time       `json:"at"`
	Kind        string          `json:"kind"`
	Reference   int64           `json:"reference"`
	Description string          `json:"description"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

type PriceQuote struct {
	ProductID       int64           `json:"product_id"`
	CostPlus        decimal.Decimal `json:"cost_plus"`
	Cash            decimal.Decimal `json:"cash"`
	Card            decimal.Decimal `json:"card"`
	CurrencyDefined bool            `json:"currency_defined"`
}

type ProductSalesRow struct {
	ProductID    int64           `json:"product_id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	QuantitySold int             `json:"quantity_sold"`
	Revenue      decimal.Decimal `json:"revenue"`
}

type InventoryRow struct {
	ProductID     int64           `json:"product_id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	StockQty      int             `json:"stock_qty"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	StockValue    decimal.Decimal `json:"stock_value"`
}

type DailySalesRow struct {
	Day       string          `json:"day"`
	SaleCount int             `json:"sale_count"`
	Total     decimal.Decimal `json:"total"`
}
