package pricing

import (
	"testing"

	"github.com/shopspring/decimal"

	"tezgahpos/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func baseSettings() domain.Settings {
	return domain.Settings{
		domain.SettingProfitMethod:   domain.ProfitMethodPercentage,
		domain.SettingProfitValue:    "50",
		domain.SettingVATPercent:     "20",
		domain.SettingCardCommission: "2.5",
	}
}

func tlProduct(price string) domain.Product {
	return domain.Product{PurchaseCurrency: "TL", PurchasePrice: dec(price)}
}

func TestCalculatePercentageProfit(t *testing.T) {
	got := Calculate(tlProduct("100"), baseSettings(), nil, nil)
	if !got.OK || !got.CurrencyDefined {
		t.Fatalf("expected ok result, got %+v", got)
	}
	if !got.CostPlus.Equal(dec("150")) {
		t.Fatalf("cost plus = %s, want 150", got.CostPlus)
	}
	if !got.Cash.Equal(dec("180")) {
		t.Fatalf("cash = %s, want 180", got.Cash)
	}
	if !got.Card.Equal(dec("184.5")) {
		t.Fatalf("card = %s, want 184.50", got.Card)
	}
}

func TestCalculateFixedProfit(t *testing.T) {
	settings := baseSettings()
	settings[domain.SettingProfitMethod] = domain.ProfitMethodFixed
	settings[domain.SettingProfitValue] = "25"

	got := Calculate(tlProduct("100"), settings, nil, nil)
	if !got.CostPlus.Equal(dec("125")) {
		t.Fatalf("cost plus = %s, want 125", got.CostPlus)
	}
	if !got.Cash.Equal(dec("150")) {
		t.Fatalf("cash = %s, want 150", got.Cash)
	}
}

func TestCalculateCategoryOverrideReplacesGlobalRule(t *testing.T) {
	method := domain.ProfitMethodFixed
	value := dec("10")
	cat := &domain.Category{Name: "Accessories", ProfitMethod: &method, ProfitValue: &value}

	got := Calculate(tlProduct("100"), baseSettings(), cat, nil)
	if !got.CostPlus.Equal(dec("110")) {
		t.Fatalf("cost plus = %s, want 110", got.CostPlus)
	}
}

func TestCalculateHalfConfiguredCategoryIgnored(t *testing.T) {
	method := domain.ProfitMethodFixed
	cat := &domain.Category{Name: "Accessories", ProfitMethod: &method}

	got := Calculate(tlProduct("100"), baseSettings(), cat, nil)
	if !got.CostPlus.Equal(dec("150")) {
		t.Fatalf("cost plus = %s, want global rule result 150", got.CostPlus)
	}
}

func TestCalculateTaxRateOverride(t *testing.T) {
	tax := &domain.TaxRate{Name: "Reduced", Percent: dec("10")}

	got := Calculate(tlProduct("100"), baseSettings(), nil, tax)
	if !got.Cash.Equal(dec("165")) {
		t.Fatalf("cash = %s, want 165", got.Cash)
	}
}

func TestCalculateForeignCurrencyConverts(t *testing.T) {
	settings := baseSettings()
	settings["usd_exchange_rate"] = "40"

	p := domain.Product{PurchaseCurrency: "USD", PurchasePrice: dec("10")}
	got := Calculate(p, settings, nil, nil)
	if !got.CurrencyDefined {
		t.Fatalf("expected currency defined")
	}
	if !got.CostPlus.Equal(dec("600")) {
		t.Fatalf("cost plus = %s, want 600", got.CostPlus)
	}
}

func TestCalculateMissingRateZeroesCost(t *testing.T) {
	p := domain.Product{PurchaseCurrency: "EUR", PurchasePrice: dec("10")}
	got := Calculate(p, baseSettings(), nil, nil)
	if got.CurrencyDefined {
		t.Fatalf("expected currency undefined")
	}
	if !got.OK {
		t.Fatalf("zero-rate result should still be ok")
	}
	if !got.CostPlus.IsZero() || !got.Cash.IsZero() {
		t.Fatalf("expected zero prices, got %+v", got)
	}
}

func TestCalculateCommaDecimalSeparator(t *testing.T) {
	settings := baseSettings()
	settings[domain.SettingCardCommission] = "2,5"

	got := Calculate(tlProduct("100"), settings, nil, nil)
	if !got.Card.Equal(dec("184.5")) {
		t.Fatalf("card = %s, want 184.50", got.Card)
	}
}

func TestCalculateMalformedSettingReturnsEmpty(t *testing.T) {
	settings := baseSettings()
	settings[domain.SettingVATPercent] = "twenty"

	got := Calculate(tlProduct("100"), settings, nil, nil)
	if got.OK {
		t.Fatalf("expected empty result for malformed setting, got %+v", got)
	}
}

func TestCalculateDefaultsWhenSettingsAbsent(t *testing.T) {
	got := Calculate(tlProduct("100"), domain.Settings{}, nil, nil)
	if !got.OK {
		t.Fatalf("expected ok result, got %+v", got)
	}
	if !got.Cash.Equal(dec("180")) {
		t.Fatalf("cash = %s, want default-driven 180", got.Cash)
	}
}
