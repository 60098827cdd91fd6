package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Inbound payloads for the HTTP surface. Validation tags cover shape only;
// business rules (stock ceilings, referenced rows, reserved ids) live in the
// service and stores.

type LoginRequest struct {
	Username string `json:"username" validate:"required,min=3"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string   `json:"access_token"`
	Username    string   `json:"username"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	ExpiresAt   string   `json:"expires_at"`
}

type ProductRequest struct {
	SKU              string          `json:"sku" validate:"required"`
	Barcode          string          `json:"barcode"`
	Name             string          `json:"name" validate:"required"`
	CategoryID       *int64          `json:"category_id"`
	TaxRateID        *int64          `json:"tax_rate_id"`
	PurchaseCurrency string          `json:"purchase_currency"`
	PurchasePrice    decimal.Decimal `json:"purchase_price"`
	StockQty         int             `json:"stock_qty"`
	MinStockLevel    int             `json:"min_stock_level" validate:"gte=0"`
}

// VariantRequest describes one size/color row of a variant group. SKU and
// barcode are per-variant; pricing fields are inherited from the main
// product.
type VariantRequest struct {
	SKU      string `json:"sku" validate:"required"`
	Barcode  string `json:"barcode"`
	Name     string `json:"name" validate:"required"`
	StockQty int    `json:"stock_qty"`
}

type ProductWithVariantsRequest struct {
	Main     ProductRequest   `json:"main" validate:"required"`
	Variants []VariantRequest `json:"variants" validate:"dive"`
}

type SaleLineRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int             `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type SaleRequest struct {
	CustomerID int64             `json:"customer_id"`
	SoldAt     *time.Time        `json:"sold_at"`
	AmountPaid decimal.Decimal   `json:"amount_paid"`
	Lines      []SaleLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type CustomerRequest struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Email     string `json:"email" validate:"omitempty,email"`
	Notes     string `json:"notes"`
	GroupID   *int64 `json:"group_id"`
}

type PaymentRequest struct {
	CustomerID int64           `json:"customer_id" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount"`
	PaidAt     *time.Time      `json:"paid_at"`
	Note       string          `json:"note"`
}

type StockAdjustmentRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Kind      string `json:"kind" validate:"required,oneof=receipt correction"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason"`
}

type SuspendRequest struct {
	CustomerID int64  `json:"customer_id"`
	Note       string `json:"note"`
	CartJSON   string `json:"cart_json" validate:"required"`
}

type CategoryRequest struct {
	Name         string           `json:"name" validate:"required"`
	ProfitMethod *string          `json:"profit_method" validate:"omitempty,oneof=percentage fixed-amount"`
	ProfitValue  *decimal.Decimal `json:"profit_value"`
}

type TaxRateRequest struct {
	Name    string          `json:"name" validate:"required"`
	Percent decimal.Decimal `json:"percent"`
}

type SettingRequest struct {
	Key   string `json:"key" validate:"required"`
	Value string `json:"value"`
}

type UserCreateRequest struct {
	Username string `json:"username" validate:"required,min=4"`
	Password string `json:"password" validate:"required,min=6"`
	FullName string `json:"full_name"`
	Role     string `json:"role" validate:"required,oneof=admin cashier"`
}

type ProductQuery struct {
	Search     string `json:"search"`
	CategoryID int64  `json:"category_id"`
	// StockStatus filters by level: "", "low" (at or below minimum) or
	// "out" (zero or negative).
	StockStatus     string `json:"stock_status"`
	IncludeInactive bool   `json:"include_inactive"`
	Limit           int    `json:"limit"`
}

type SaleQuery struct {
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	CustomerID int64     `json:"customer_id"`
	Limit      int       `json:"limit"`
}
