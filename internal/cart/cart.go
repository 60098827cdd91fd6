// Package cart holds the in-memory state of one sale being entered: the
// ordered line items, the per-product quantity index used for stock
// ceilings, and the edit-mode bookkeeping when an existing sale is being
// reworked. It is headless and persistence-free; committing or suspending
// the cart is the caller's job.
package cart

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"tezgahpos/internal/domain"
)

var (
	ErrNoProduct         = errors.New("no product selected")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidPrice      = errors.New("unit price must be positive")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrLineNotFound      = errors.New("line not found")
)

type Line struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Session is a single sale-entry session. Not safe for concurrent use; one
// terminal owns one session.
type Session struct {
	lines      []Line
	quantities map[int64]int

	customerID    int64
	editingSaleID int64
	originalQty   map[int64]int
}

func NewSession() *Session {
	return &Session{
		quantities:  make(map[int64]int),
		originalQty: make(map[int64]int),
		customerID:  domain.WalkInCustomerID,
	}
}

func (s *Session) SetCustomer(id int64) {
	if id <= 0 {
		id = domain.WalkInCustomerID
	}
	s.customerID = id
}

func (s *Session) CustomerID() int64 { return s.customerID }

// Editing reports whether the session is reworking a previously committed
// sale.
func (s *Session) Editing() bool { return s.editingSaleID != 0 }

func (s *Session) EditingSaleID() int64 { return s.editingSaleID }

// AddItem appends qty units of the product at unitPrice. Lines with the
// same product and the same unit price merge; a different price opens a new
// line. Outside edit mode the in-cart quantity plus qty may not exceed the
// product's live stock. In edit mode the check is skipped entirely because
// the committed sale still holds the reserved stock.
func (s *Session) AddItem(p domain.Product, qty int, unitPrice decimal.Decimal) error {
	if p.ID == 0 {
		return ErrNoProduct
	}
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if unitPrice.Sign() <= 0 {
		return ErrInvalidPrice
	}
	if !s.Editing() && s.quantities[p.ID]+qty > p.StockQty {
		return fmt.Errorf("%w: %s", ErrInsufficientStock, p.Name)
	}

	for i := range s.lines {
		if s.lines[i].ProductID == p.ID && s.lines[i].UnitPrice.Equal(unitPrice) {
			s.lines[i].Quantity += qty
			s.quantities[p.ID] += qty
			return nil
		}
	}
	s.lines = append(s.lines, Line{
		ProductID:   p.ID,
		ProductName: p.Name,
		Quantity:    qty,
		UnitPrice:   unitPrice,
	})
	s.quantities[p.ID] += qty
	return nil
}

// QuantityCeiling returns the maximum total quantity of a product this
// session may hold given its live stock. In edit mode the quantity the
// original sale already reserved is available again on top of live stock.
func (s *Session) QuantityCeiling(productID int64, liveStock int) int {
	if s.Editing() {
		return liveStock + s.originalQty[productID]
	}
	return liveStock
}

// SetQuantity changes one line's quantity. Zero or negative removes the
// line. liveStock is the product's current stored quantity; the new total
// for the product across all lines must stay within QuantityCeiling.
func (s *Session) SetQuantity(index, qty, liveStock int) error {
	if index < 0 || index >= len(s.lines) {
		return ErrLineNotFound
	}
	line := s.lines[index]
	if qty <= 0 {
		return s.RemoveLine(index)
	}

	otherLines := s.quantities[line.ProductID] - line.Quantity
	if otherLines+qty > s.QuantityCeiling(line.ProductID, liveStock) {
		return fmt.Errorf("%w: %s", ErrInsufficientStock, line.ProductName)
	}

	s.lines[index].Quantity = qty
	s.quantities[line.ProductID] = otherLines + qty
	return nil
}

func (s *Session) RemoveLine(index int) error {
	if index < 0 || index >= len(s.lines) {
		return ErrLineNotFound
	}
	line := s.lines[index]
	s.quantities[line.ProductID] -= line.Quantity
	if s.quantities[line.ProductID] <= 0 {
		delete(s.quantities, line.ProductID)
	}
	s.lines = append(s.lines[:index], s.lines[index+1:]...)
	return nil
}

func (s *Session) Lines() []Line {
	out := make([]Line, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *Session) Empty() bool { return len(s.lines) == 0 }

func (s *Session) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.lines {
		total = total.Add(l.Total())
	}
	return total
}

// Balance returns the amount still owed after a tendered payment. Negative
// means change due.
func (s *Session) Balance(paid decimal.Decimal) decimal.Decimal {
	return s.Total().Sub(paid)
}

// RequiresClearConfirmation reports whether clearing should be confirmed by
// the operator first. Edit mode clears silently on cancel.
func (s *Session) RequiresClearConfirmation() bool {
	return !s.Editing() && len(s.lines) > 0
}

// Clear resets the session to a fresh walk-in sale, dropping any edit
// state.
func (s *Session) Clear() {
	s.lines = nil
	s.quantities = make(map[int64]int)
	s.originalQty = make(map[int64]int)
	s.editingSaleID = 0
	s.customerID = domain.WalkInCustomerID
}

// LoadForEdit replaces the session contents with a committed sale's lines
// and records the originally reserved quantities so ceilings account for
// stock the sale is still holding.
func (s *Session) LoadForEdit(sale domain.Sale) {
	s.Clear()
	s.editingSaleID = sale.ID
	s.SetCustomer(sale.CustomerID)
	for _, l := range sale.Lines {
		s.lines = append(s.lines, Line{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		})
		s.quantities[l.ProductID] += l.Quantity
		s.originalQty[l.ProductID] += l.Quantity
	}
}

// SuspendPayload serializes the line items for a suspended-sale record.
func (s *Session) SuspendPayload() (string, error) {
	if len(s.lines) == 0 {
		return "", ErrEmptyCart
	}
	payload, err := json.Marshal(s.lines)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// Resume replaces the session contents with a suspended sale's payload.
// Stock is not validated here; suspended quantities are honored as saved.
func (s *Session) Resume(customerID int64, cartJSON string) error {
	var lines []Line
	if err := json.Unmarshal([]byte(cartJSON), &lines); err != nil {
		return fmt.Errorf("corrupt suspended cart: %w", err)
	}
	s.Clear()
	s.SetCustomer(customerID)
	for _, l := range lines {
		s.lines = append(s.lines, l)
		s.quantities[l.ProductID] += l.Quantity
	}
	return nil
}

// SaleLines converts the cart into committable sale lines.
func (s *Session) SaleLines() []domain.SaleLine {
	out := make([]domain.SaleLine, 0, len(s.lines))
	for _, l := range s.lines {
		out = append(out, domain.SaleLine{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		})
	}
	return out
}
