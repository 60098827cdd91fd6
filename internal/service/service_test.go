package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"tezgahpos/internal/domain"
	"tezgahpos/internal/store"
	"tezgahpos/internal/store/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestService(t *testing.T) (*Service, store.Repository, context.Context) {
	t.Helper()
	repo := memory.New()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	svc := New(repo, logger, nil)
	ctx := WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
	return svc, repo, ctx
}

func seedProduct(t *testing.T, svc *Service, ctx context.Context, sku string, stock int) int64 {
	t.Helper()
	id, err := svc.CreateProduct(ctx, domain.ProductRequest{
		SKU:           sku,
		Name:          "Product " + sku,
		PurchasePrice: dec("100"),
		StockQty:      stock,
	})
	if err != nil {
		t.Fatalf("seed product %s: %v", sku, err)
	}
	return id
}

func TestCreateSaleWritesLedgerAndPayment(t *testing.T) {
	svc, _, ctx := newTestService(t)
	pid := seedProduct(t, svc, ctx, "COLA", 10)

	saleID, err := svc.CreateSale(ctx, domain.SaleRequest{
		AmountPaid: dec("30"),
		Lines: []domain.SaleLineRequest{
			{ProductID: pid, Quantity: 3, UnitPrice: dec("15")},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	p, err := svc.GetProduct(ctx, pid)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.StockQty != 7 {
		t.Fatalf("stock = %d, want 7", p.StockQty)
	}

	moves, err := svc.StockMovements(ctx, pid, 10)
	if err != nil {
		t.Fatalf("movements: %v", err)
	}
	if len(moves) != 1 {
		t.Fatalf("expected 1 movement, got %d", len(moves))
	}
	if moves[0].Kind != domain.MovementSale || moves[0].Delta != -3 || moves[0].ResultingQty != 7 {
		t.Fatalf("unexpected movement %+v", moves[0])
	}

	sale, err := svc.GetSale(ctx, saleID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if !sale.Total.Equal(dec("45")) {
		t.Fatalf("total = %s, want 45", sale.Total)
	}
	if sale.CustomerID != domain.WalkInCustomerID {
		t.Fatalf("customer = %d, want walk-in", sale.CustomerID)
	}

	// total 45, paid 30: balance owed is 15
	balance, err := svc.CustomerBalance(ctx, domain.WalkInCustomerID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Equal(dec("15")) {
		t.Fatalf("balance = %s, want 15", balance)
	}
}

func TestCreateSaleUnknownProductLeavesNothingBehind(t *testing.T) {
	svc, _, ctx := newTestService(t)
	pid := seedProduct(t, svc, ctx, "COLA", 10)

	_, err := svc.CreateSale(ctx, domain.SaleRequest{
		Lines: []domain.SaleLineRequest{
			{ProductID: pid, Quantity: 1, UnitPrice: dec("15")},
			{ProductID: 9999, Quantity: 1, UnitPrice: dec("15")},
		},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	p, _ := svc.GetProduct(ctx, pid)
	if p.StockQty != 10 {
		t.Fatalf("stock changed on failed sale: %d", p.StockQty)
	}
	sales, err := svc.ListSales(ctx, domain.SaleQuery{})
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("expected no sales, got %d", len(sales))
	}
}

func TestCreateSaleRejectsEmptyAndNonPositive(t *testing.T) {
	svc, _, ctx := newTestService(t)
	pid := seedProduct(t, svc, ctx, "COLA", 10)

	if _, err := svc.CreateSale(ctx, domain.SaleRequest{}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("empty sale: expected ErrValidation, got %v", err)
	}
	_, err := svc.CreateSale(ctx, domain.SaleRequest{
		Lines: []domain.SaleLineRequest{{ProductID: pid, Quantity: 1, UnitPrice: dec("0")}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("zero price: expected ErrValidation, got %v", err)
	}
}

func TestSaleIntoNegativeStockIsAllowed(t *testing.T) {
	svc, _, ctx := newTestService(t)
	pid := seedProduct(t, svc, ctx, "COLA", 2)

	_, err := svc.CreateSale(ctx, domain.SaleRequest{
		Lines: []domain.SaleLineRequest{{ProductID: pid, Quantity: 5, UnitPrice: dec("15")}},
	})
	if err != nil {
		t.Fatalf("oversell should be allowed at the ledger: %v", err)
	}
	p, _ := svc.GetProduct(ctx, pid)
	if p.StockQty != -3 {
		t.Fatalf("stock = %d, want -3", p.StockQty)
	}
}

func TestDeleteSaleReversesStockAndBalance(t *testing.T) {
	svc, _, ctx := newTestService(t)
	pid := seedProduct(t, svc, ctx, "COLA", 10)

	saleID, err := svc.CreateSale(ctx, domain.SaleRequest{
		AmountPaid: dec("45"),
		Lines:      []domain.SaleLineRequest{{ProductID: pid, Quantity: 3, UnitPrice: dec("15")}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if err := svc.DeleteSale(ctx, saleID); err != nil {
		t.Fatalf("delete sale: %v", err)
	}

	p, _ := svc.GetProduct(ctx, pid)
	if p.StockQty != 10 {
		t.Fatalf("stock = %d, want 10 after reversal", p.StockQty)
	}

	moves, _ := svc.StockMovements(ctx, pid, 10)
	if len(moves) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(moves))
	}
	if moves[0].Kind != domain.MovementSaleCancel || moves[0].Delta != 3 {
		t.Fatalf("unexpected reversal movement %+v", moves[0])
	}

	if _, err := svc.GetSale(ctx, saleID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("sale should be gone, got %v", err)
	}

	// checkout payment is removed with the sale
	balance, _ := svc.CustomerBalance(ctx, domain.WalkInCustomerID)
	if !balance.IsZero() {
		t.Fatalf("balance = %s, want 0 after delete", balance)
	}
}

func TestDeleteSaleRequiresPermission(t *testing.T) {
	svc, _, ctx := newTestService(t)
	pid := seedProduct(t, svc, ctx, "COLA", 10)
	saleID, _ := svc.CreateSale(ctx, domain.SaleRequest{
		Lines: []domain.SaleLineRequest{{ProductID: pid, Quantity: 1, UnitPrice: dec("15")}},
	})

	cashierCtx := WithActor(context.Background(), domain.Actor{Username: "ays", Role: "cashier"})
	if err := svc.DeleteSale(cashierCtx, saleID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if _, err := svc.GetSale(ctx, saleID); err != nil {
		t.Fatalf("sale should survive denied delete: %v", err)
	}
}

func TestEditSaleIssuesNewIdentity(t *testing.T) {
	svc, _, ctx := newTestService(t)
	pid := seedProduct(t, svc, ctx, "COLA", 10)

	oldID, err := svc.CreateSale(ctx, domain.SaleRequest{
		Lines: []domain.SaleLineRequest{{ProductID: pid, Quantity: 3, UnitPrice: dec("15")}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	newID, err := svc.EditSale(ctx, oldID, domain.SaleRequest{
		Lines: []domain.SaleLineRequest{{ProductID: pid, Quantity: 1, UnitPrice: dec("15")}},
	})
	if err != nil {
		t.Fatalf("edit sale: %v", err)
	}
	if newID == oldID {
		t.Fatalf("edit must issue a new sale id")
	}
	if _, err := svc.GetSale(ctx, oldID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("old sale should be gone, got %v", err)
	}

	// 10 - 3 (original) + 3 (reversal) - 1 (new) = 9
	p, _ := svc.GetProduct(ctx, pid)
	if p.StockQty != 9 {
		t.Fatalf("stock = %d, want 9", p.StockQty)
	}
}

func TestEditMissingSaleFails(t *testing.T) {
	svc, _, ctx := newTestService(t)
	pid := seedProduct(t, svc, ctx, "COLA", 10)

	_, err := svc.EditSale(ctx, 42, domain.SaleRequest{
		Lines: []domain.SaleLineRequest{{ProductID: pid, Quantity: 1, UnitPrice: dec("15")}},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	p, _ := svc.GetProduct(ctx, pid)
	if p.StockQty != 10 {
		t.Fatalf("stock changed on failed edit: %d", p.StockQty)
	}
}

func TestZeroDeltaAdjustmentIsNoOp(t *testing.T) {
	svc, _, ctx := newTestService(t)
	pid := seedProduct(t, svc, ctx, "COLA", 5)

	qty, err := svc.AdjustStock(ctx, domain.StockAdjustmentRequest{
		ProductID: pid, Kind: domain.MovementCorrection, Delta: 0,
	})
	if err != nil {
		t.Fatalf("zero delta: %v", err)
	}
	if qty != 5 {
		t.Fatalf("qty = %d, want 5", qty)
	}
	moves, _ := svc.StockMovements(ctx, pid, 10)
	if len(moves) != 0 {
		t.Fatalf("zero delta must not append a movement, got %d", len(moves))
	}
}

func TestAdjustStockRejectsSaleKinds(t *testing.T) {
	svc, _, ctx := newTestService(t)
	pid := seedProduct(t, svc, ctx, "COLA", 5)

	_, err := svc.AdjustStock(ctx, domain.StockAdjustmentRequest{
		ProductID: pid, Kind: domain.MovementSale, Delta: -1,
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for sale kind, got %v", err)
	}
}

func TestSuspendAndResumePops(t *testing.T) {
	svc, _, ctx := newTestService(t)

	id, err := svc.SuspendSale(ctx, domain.SuspendRequest{
		CartJSON: `[{"product_id":1,"quantity":2,"unit_price":"15"}]`,
		Note:     "customer stepped out",
	})
	if err != nil {
		t.Fatalf("suspend: %v", err)
	}

	sus, err := svc.ResumeSuspendedSale(ctx, id)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if sus.Note != "customer stepped out" {
		t.Fatalf("note = %q", sus.Note)
	}
	if _, err := svc.ResumeSuspendedSale(ctx, id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("resume must pop, second resume got %v", err)
	}
}

func TestSuspendEmptyPayloadRejected(t *testing.T) {
	svc, _, ctx := newTestService(t)
	if _, err := svc.SuspendSale(ctx, domain.SuspendRequest{}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestDeleteSoldProductArchivesInstead(t *testing.T) {
	svc, _, ctx := newTestService(t)
	pid := seedProduct(t, svc, ctx, "COLA", 10)
	if _, err := svc.CreateSale(ctx, domain.SaleRequest{
		Lines: []domain.SaleLineRequest{{ProductID: pid, Quantity: 1, UnitPrice: dec("15")}},
	}); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	archived, err := svc.DeleteProduct(ctx, pid)
	if err != nil {
		t.Fatalf("delete product: %v", err)
	}
	if !archived {
		t.Fatalf("sold product must be archived, not deleted")
	}
	p, err := svc.GetProduct(ctx, pid)
	if err != nil {
		t.Fatalf("archived product should remain readable: %v", err)
	}
	if p.Active {
		t.Fatalf("product should be inactive")
	}
}

func TestDeleteUnsoldProductRemovesIt(t *testing.T) {
	svc, _, ctx := newTestService(t)
	pid := seedProduct(t, svc, ctx, "COLA", 10)

	archived, err := svc.DeleteProduct(ctx, pid)
	if err != nil {
		t.Fatalf("delete product: %v", err)
	}
	if archived {
		t.Fatalf("unsold product should be hard-deleted")
	}
	if _, err := svc.GetProduct(ctx, pid); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestQuotePrices(t *testing.T) {
	svc, _, ctx := newTestService(t)
	pid := seedProduct(t, svc, ctx, "COLA", 10)

	quote, err := svc.QuotePrices(ctx, pid)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !quote.CostPlus.Equal(dec("150")) || !quote.Cash.Equal(dec("180")) || !quote.Card.Equal(dec("184.5")) {
		t.Fatalf("unexpected quote %+v", quote)
	}
	if !quote.CurrencyDefined {
		t.Fatalf("TL product must have currency defined")
	}
}

func TestQuotePricesUndefinedCurrency(t *testing.T) {
	svc, _, ctx := newTestService(t)
	pid, err := svc.CreateProduct(ctx, domain.ProductRequest{
		SKU: "IMP", Name: "Imported", PurchaseCurrency: "USD", PurchasePrice: dec("10"),
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	quote, err := svc.QuotePrices(ctx, pid)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.CurrencyDefined {
		t.Fatalf("expected undefined currency without a configured rate")
	}
	if !quote.Cash.IsZero() {
		t.Fatalf("cash = %s, want 0", quote.Cash)
	}
}

func TestCustomerLedgerChronology(t *testing.T) {
	svc, _, ctx := newTestService(t)
	pid := seedProduct(t, svc, ctx, "COLA", 10)
	custID, err := svc.CreateCustomer(ctx, domain.CustomerRequest{FirstName: "Deniz"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	if _, err := svc.CreateSale(ctx, domain.SaleRequest{
		CustomerID: custID,
		Lines:      []domain.SaleLineRequest{{ProductID: pid, Quantity: 2, UnitPrice: dec("15")}},
	}); err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if _, err := svc.RecordPayment(ctx, domain.PaymentRequest{CustomerID: custID, Amount: dec("10")}); err != nil {
		t.Fatalf("payment: %v", err)
	}

	entries, err := svc.CustomerLedger(ctx, custID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Kind != "sale" || !entries[0].Debit.Equal(dec("30")) {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Kind != "payment" || !entries[1].Credit.Equal(dec("10")) {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}

	balance, _ := svc.CustomerBalance(ctx, custID)
	if !balance.Equal(dec("20")) {
		t.Fatalf("balance = %s, want 20", balance)
	}
}

func TestWalkInCustomerIsProtected(t *testing.T) {
	svc, _, ctx := newTestService(t)
	if err := svc.ArchiveCustomer(ctx, domain.WalkInCustomerID); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCategoryDeleteRefusedWhileInUse(t *testing.T) {
	svc, _, ctx := newTestService(t)
	catID, err := svc.CreateCategory(ctx, domain.CategoryRequest{Name: "Drinks"})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	if _, err := svc.CreateProduct(ctx, domain.ProductRequest{
		SKU: "COLA", Name: "Cola", CategoryID: &catID, PurchasePrice: dec("100"),
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	if err := svc.DeleteCategory(ctx, catID); !errors.Is(err, store.ErrInUse) {
		t.Fatalf("expected ErrInUse, got %v", err)
	}
}

func TestSettingsRequireAdmin(t *testing.T) {
	svc, _, _ := newTestService(t)
	cashierCtx := WithActor(context.Background(), domain.Actor{Username: "ays", Role: "cashier"})
	if err := svc.SaveSetting(cashierCtx, domain.SettingVATPercent, "18"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}
