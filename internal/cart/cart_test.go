package cart

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"tezgahpos/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func product(id int64, name string, stock int) domain.Product {
	return domain.Product{ID: id, SKU: name, Name: name, StockQty: stock}
}

func TestAddItemMergesSameProductSamePrice(t *testing.T) {
	s := NewSession()
	p := product(1, "cola", 10)

	if err := s.AddItem(p, 2, dec("15")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddItem(p, 3, dec("15")); err != nil {
		t.Fatalf("add again: %v", err)
	}

	lines := s.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected merged single line, got %d", len(lines))
	}
	if lines[0].Quantity != 5 {
		t.Fatalf("quantity = %d, want 5", lines[0].Quantity)
	}
}

func TestAddItemDifferentPriceOpensNewLine(t *testing.T) {
	s := NewSession()
	p := product(1, "cola", 10)

	if err := s.AddItem(p, 1, dec("15")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddItem(p, 1, dec("12.5")); err != nil {
		t.Fatalf("add discounted: %v", err)
	}

	if len(s.Lines()) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(s.Lines()))
	}
	if !s.Total().Equal(dec("27.5")) {
		t.Fatalf("total = %s, want 27.5", s.Total())
	}
}

func TestAddItemRejectsNonPositivePrice(t *testing.T) {
	s := NewSession()
	if err := s.AddItem(product(1, "cola", 10), 1, decimal.Zero); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestAddItemRejectsMissingProduct(t *testing.T) {
	s := NewSession()
	if err := s.AddItem(domain.Product{}, 1, dec("5")); !errors.Is(err, ErrNoProduct) {
		t.Fatalf("expected ErrNoProduct, got %v", err)
	}
}

func TestAddItemEnforcesStockCeiling(t *testing.T) {
	s := NewSession()
	p := product(1, "cola", 3)

	if err := s.AddItem(p, 2, dec("15")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddItem(p, 2, dec("15")); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	// ceiling counts across lines at different prices too
	if err := s.AddItem(p, 2, dec("12")); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ceiling across price lines, got %v", err)
	}
}

func TestEditModeSkipsAddCeiling(t *testing.T) {
	s := NewSession()
	s.LoadForEdit(domain.Sale{ID: 7, CustomerID: 2})

	// live stock 0 but the committed sale still holds the reservation
	if err := s.AddItem(product(1, "cola", 0), 5, dec("15")); err != nil {
		t.Fatalf("edit-mode add should skip ceiling: %v", err)
	}
}

func TestSetQuantityCeiling(t *testing.T) {
	s := NewSession()
	p := product(1, "cola", 5)
	if err := s.AddItem(p, 2, dec("15")); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := s.SetQuantity(0, 5, p.StockQty); err != nil {
		t.Fatalf("set within stock: %v", err)
	}
	if err := s.SetQuantity(0, 6, p.StockQty); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestSetQuantityEditModeAddsOriginalReservation(t *testing.T) {
	sale := domain.Sale{
		ID:         9,
		CustomerID: domain.WalkInCustomerID,
		Lines: []domain.SaleLine{
			{ProductID: 1, ProductName: "cola", Quantity: 4, UnitPrice: dec("15")},
		},
	}
	s := NewSession()
	s.LoadForEdit(sale)

	// live stock is 2 because the committed sale already took 4;
	// the editable ceiling is 2+4
	if got := s.QuantityCeiling(1, 2); got != 6 {
		t.Fatalf("ceiling = %d, want 6", got)
	}
	if err := s.SetQuantity(0, 6, 2); err != nil {
		t.Fatalf("set to ceiling: %v", err)
	}
	if err := s.SetQuantity(0, 7, 2); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock above ceiling, got %v", err)
	}
}

func TestSetQuantityZeroRemovesLine(t *testing.T) {
	s := NewSession()
	if err := s.AddItem(product(1, "cola", 5), 2, dec("15")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.SetQuantity(0, 0, 5); err != nil {
		t.Fatalf("set zero: %v", err)
	}
	if !s.Empty() {
		t.Fatalf("expected empty cart")
	}
	// freed quantity is usable again
	if err := s.AddItem(product(1, "cola", 5), 5, dec("15")); err != nil {
		t.Fatalf("re-add after removal: %v", err)
	}
}

func TestClearConfirmationRules(t *testing.T) {
	s := NewSession()
	if s.RequiresClearConfirmation() {
		t.Fatalf("empty cart must not require confirmation")
	}
	if err := s.AddItem(product(1, "cola", 5), 1, dec("15")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !s.RequiresClearConfirmation() {
		t.Fatalf("non-empty cart requires confirmation")
	}

	s.LoadForEdit(domain.Sale{ID: 3, Lines: []domain.SaleLine{{ProductID: 1, ProductName: "cola", Quantity: 1, UnitPrice: dec("15")}}})
	if s.RequiresClearConfirmation() {
		t.Fatalf("edit mode clears without confirmation")
	}

	s.Clear()
	if s.Editing() || !s.Empty() || s.CustomerID() != domain.WalkInCustomerID {
		t.Fatalf("clear must reset to a fresh walk-in session")
	}
}

func TestSuspendResumeRoundTrip(t *testing.T) {
	s := NewSession()
	s.SetCustomer(4)
	if err := s.AddItem(product(1, "cola", 5), 2, dec("15")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddItem(product(2, "chips", 5), 1, dec("22.5")); err != nil {
		t.Fatalf("add: %v", err)
	}

	payload, err := s.SuspendPayload()
	if err != nil {
		t.Fatalf("suspend payload: %v", err)
	}

	resumed := NewSession()
	if err := resumed.Resume(4, payload); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.CustomerID() != 4 {
		t.Fatalf("customer = %d, want 4", resumed.CustomerID())
	}
	if !resumed.Total().Equal(dec("52.5")) {
		t.Fatalf("total = %s, want 52.5", resumed.Total())
	}
}

func TestSuspendEmptyCartRejected(t *testing.T) {
	s := NewSession()
	if _, err := s.SuspendPayload(); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestResumeCorruptPayload(t *testing.T) {
	s := NewSession()
	if err := s.Resume(1, "{not json"); err == nil {
		t.Fatalf("expected error for corrupt payload")
	}
}

func TestBalance(t *testing.T) {
	s := NewSession()
	if err := s.AddItem(product(1, "cola", 5), 2, dec("15")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := s.Balance(dec("10")); !got.Equal(dec("20")) {
		t.Fatalf("balance = %s, want 20", got)
	}
	if got := s.Balance(dec("40")); !got.Equal(dec("-10")) {
		t.Fatalf("change = %s, want -10", got)
	}
}
