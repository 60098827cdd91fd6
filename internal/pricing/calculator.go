// Package pricing derives selling prices from a product's purchase price,
// the global profit and tax settings, and any category or product level
// overrides. It is pure: no storage, no clock, no I/O.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"tezgahpos/internal/domain"
)

// Defaults applied when the corresponding setting is absent.
var (
	defaultProfitValue    = decimal.NewFromInt(50)
	defaultVATPercent     = decimal.NewFromInt(20)
	defaultCardCommission = decimal.RequireFromString("2.5")
)

var hundred = decimal.NewFromInt(100)

// Prices is the calculator output. OK is false when a required numeric
// setting was present but unparseable; callers treat that as "no prices"
// rather than an error. CurrencyDefined is false when the purchase currency
// differs from the base currency and no positive exchange rate is
// configured; the amounts are then computed from a zero cost.
type Prices struct {
	CostPlus        decimal.Decimal `json:"cost_plus"`
	Cash            decimal.Decimal `json:"cash"`
	Card            decimal.Decimal `json:"card"`
	CurrencyDefined bool            `json:"currency_defined"`
	OK              bool            `json:"ok"`
}

// Calculate resolves the three price points for one product. category and
// taxRate are the product's resolved references and may be nil. Rules:
//
//   - purchase price is converted into the base currency using the
//     "<currency>_exchange_rate" setting; a missing or non-positive rate
//     zeroes the cost and clears CurrencyDefined
//   - a category carrying both profit fields replaces the global profit
//     method and value entirely
//   - a product tax rate replaces the global VAT percent
//   - cash price adds VAT on top of cost plus profit; card price adds the
//     card commission before VAT
//
// All outputs are rounded to two decimal places.
func Calculate(product domain.Product, settings domain.Settings, category *domain.Category, taxRate *domain.TaxRate) Prices {
	cost := product.PurchasePrice
	currencyDefined := true

	currency := strings.ToUpper(strings.TrimSpace(product.PurchaseCurrency))
	if currency == "" {
		currency = domain.BaseCurrency
	}
	if currency != domain.BaseCurrency {
		rate, _, err := settings.DecimalValue(domain.ExchangeRateKey(currency))
		if err != nil {
			return Prices{}
		}
		if rate.Sign() <= 0 {
			cost = decimal.Zero
			currencyDefined = false
		} else {
			cost = cost.Mul(rate)
		}
	}

	profitMethod := strings.TrimSpace(settings[domain.SettingProfitMethod])
	if profitMethod == "" {
		profitMethod = domain.ProfitMethodPercentage
	}
	profitValue, ok := settingOrDefault(settings, domain.SettingProfitValue, defaultProfitValue)
	if !ok {
		return Prices{}
	}
	if category != nil && category.HasProfitOverride() {
		profitMethod = *category.ProfitMethod
		profitValue = *category.ProfitValue
	}

	vat, ok := settingOrDefault(settings, domain.SettingVATPercent, defaultVATPercent)
	if !ok {
		return Prices{}
	}
	if taxRate != nil {
		vat = taxRate.Percent
	}

	commission, ok := settingOrDefault(settings, domain.SettingCardCommission, defaultCardCommission)
	if !ok {
		return Prices{}
	}

	var profit decimal.Decimal
	switch profitMethod {
	case domain.ProfitMethodPercentage:
		profit = cost.Mul(profitValue).Div(hundred)
	case domain.ProfitMethodFixed:
		profit = profitValue
	}

	costPlus := cost.Add(profit).Round(2)
	vatFactor := decimal.NewFromInt(1).Add(vat.Div(hundred))
	commissionFactor := decimal.NewFromInt(1).Add(commission.Div(hundred))

	return Prices{
		CostPlus:        costPlus,
		Cash:            costPlus.Mul(vatFactor).Round(2),
		Card:            costPlus.Mul(commissionFactor).Mul(vatFactor).Round(2),
		CurrencyDefined: currencyDefined,
		OK:              true,
	}
}

func settingOrDefault(settings domain.Settings, key string, fallback decimal.Decimal) (decimal.Decimal, bool) {
	value, present, err := settings.DecimalValue(key)
	if err != nil {
		return decimal.Zero, false
	}
	if !present {
		return fallback, true
	}
	return value, true
}
