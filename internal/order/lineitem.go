package order

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LineItem is one row of the order being edited.
//
// ProductID 0 marks an unselected row. Price is the per-row override; an
// invalid NullDecimal means "use the catalog price", while an explicit zero
// is honored. PrevQuantity is the quantity this row held in the order as last
// persisted on the server.
type LineItem struct {
	ProductID    int64               `json:"product_id"`
	Quantity     int                 `json:"quantity"`
	Price        decimal.NullDecimal `json:"price"`
	PrevQuantity int                 `json:"prev_quantity"`
}

// Selected reports whether the row references a product.
func (li LineItem) Selected() bool {
	return li.ProductID != 0
}

// Collection is the ordered list of rows for one order. Rows may repeat a
// product, e.g. to sell the same product at two prices.
type Collection []LineItem

// NewCollection returns a collection holding one blank row.
func NewCollection(s Session) Collection {
	return Collection{blankRow(s)}
}

func blankRow(s Session) LineItem {
	if s.Editing() {
		return LineItem{}
	}
	return LineItem{Quantity: 1}
}

// Clone returns an independent copy of the collection.
func (c Collection) Clone() Collection {
	out := make(Collection, len(c))
	copy(out, c)
	return out
}

// AddRow appends a blank row.
func (c *Collection) AddRow(s Session) {
	*c = append(*c, blankRow(s))
}

// RemoveRow deletes the row at index.
func (c *Collection) RemoveRow(row int) error {
	if row < 0 || row >= len(*c) {
		return fmt.Errorf("remove row %d: %w", row, ErrInvalidRow)
	}
	*c = append((*c)[:row:row], (*c)[row+1:]...)
	return nil
}

// SetQuantity stores qty on the row, clamped to [MinQuantity, ceiling].
// It returns the stored value and whether qty had to be clamped.
func (c Collection) SetQuantity(row, qty int, cat Catalog, s Session) (int, bool, error) {
	if row < 0 || row >= len(c) {
		return 0, false, fmt.Errorf("set quantity on row %d: %w", row, ErrInvalidRow)
	}
	n := ClampQuantity(qty, s.MinQuantity(), RowCeiling(c, row, cat, s))
	c[row].Quantity = n
	return n, n != qty, nil
}

// SetProduct switches the row to productID. The existing quantity is kept but
// clamped down to the new product's ceiling, and the row price resets to the
// new product's catalog price. PrevQuantity resets to 0 because the server
// side reservation belonged to the previous product.
func (c Collection) SetProduct(row int, productID int64, cat Catalog, s Session) (int, bool, error) {
	if row < 0 || row >= len(c) {
		return 0, false, fmt.Errorf("set product on row %d: %w", row, ErrInvalidRow)
	}
	current := c[row]
	ceiling := ceilingFor(c, row, productID, 0, cat, s)
	qty := ceiling.Clamp(current.Quantity)

	price := decimal.NullDecimal{}
	if p, ok := cat.Lookup(productID); ok {
		price = decimal.NewNullDecimal(p.Price)
	}

	c[row] = LineItem{
		ProductID:    productID,
		Quantity:     qty,
		Price:        price,
		PrevQuantity: 0,
	}
	return qty, qty != current.Quantity, nil
}

// SetPrice stores an explicit per-row price. Negative prices become zero.
func (c Collection) SetPrice(row int, price decimal.Decimal) error {
	if row < 0 || row >= len(c) {
		return fmt.Errorf("set price on row %d: %w", row, ErrInvalidRow)
	}
	if price.IsNegative() {
		price = decimal.Zero
	}
	c[row].Price = decimal.NewNullDecimal(price)
	return nil
}

// ClearPrice drops the row override so the catalog price applies again.
func (c Collection) ClearPrice(row int) error {
	if row < 0 || row >= len(c) {
		return fmt.Errorf("clear price on row %d: %w", row, ErrInvalidRow)
	}
	c[row].Price = decimal.NullDecimal{}
	return nil
}

// Selected returns the rows that will be submitted: a product is chosen and
// the quantity is positive.
func (c Collection) Selected() []LineItem {
	var out []LineItem
	for _, li := range c {
		if li.Selected() && li.Quantity > 0 {
			out = append(out, li)
		}
	}
	return out
}
