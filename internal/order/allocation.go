package order

// Ceiling is the most a row may hold. A zero Ceiling is unbounded, which is
// what unknown or deleted products get.
type Ceiling struct {
	Limit   int
	Bounded bool
}

// Unbounded is the ceiling for products missing from the catalog.
var Unbounded = Ceiling{}

// Bound returns a bounded ceiling at limit (never negative).
func Bound(limit int) Ceiling {
	if limit < 0 {
		limit = 0
	}
	return Ceiling{Limit: limit, Bounded: true}
}

// Clamp lowers q to the ceiling. It never raises q.
func (c Ceiling) Clamp(q int) int {
	if c.Bounded && q > c.Limit {
		return c.Limit
	}
	return q
}

// Allows reports whether q fits under the ceiling.
func (c Ceiling) Allows(q int) bool {
	return !c.Bounded || q <= c.Limit
}

// ClampQuantity raises q to minQty, then lowers it to the ceiling. The
// ceiling wins when it sits below minQty so stock is never oversold.
func ClampQuantity(q, minQty int, c Ceiling) int {
	if q < minQty {
		q = minQty
	}
	return c.Clamp(q)
}

// OthersAllocated sums the quantity of every row holding productID except
// the row at index row.
func OthersAllocated(items Collection, productID int64, row int) int {
	if productID == 0 {
		return 0
	}
	sum := 0
	for i, li := range items {
		if i == row || li.ProductID != productID {
			continue
		}
		if li.Quantity > 0 {
			sum += li.Quantity
		}
	}
	return sum
}

// AllocatedFor sums the quantity held by all rows for productID.
func AllocatedFor(items Collection, productID int64) int {
	return OthersAllocated(items, productID, -1)
}

// FreeStock is the catalog stock not claimed by other rows of this order.
func FreeStock(stock, othersAllocated int) int {
	free := stock - othersAllocated
	if free < 0 {
		return 0
	}
	return free
}

// RowCeiling computes the allocation ceiling for the row at index row using
// the row's own product and PrevQuantity.
func RowCeiling(items Collection, row int, cat Catalog, s Session) Ceiling {
	if row < 0 || row >= len(items) {
		return Unbounded
	}
	li := items[row]
	return ceilingFor(items, row, li.ProductID, li.PrevQuantity, cat, s)
}

// ceilingFor picks between the three allocation regimes:
//
//   - new order: free stock
//   - edit, not yet restored: prev + free stock, since the server still
//     holds this row's previously committed quantity
//   - edit, restored: free stock, since the server released everything
func ceilingFor(items Collection, row int, productID int64, prev int, cat Catalog, s Session) Ceiling {
	if productID == 0 {
		return Unbounded
	}
	p, ok := cat.Lookup(productID)
	if !ok {
		return Unbounded
	}
	free := FreeStock(p.Stock, OthersAllocated(items, productID, row))
	if s.Editing() && !s.Restored {
		if prev < 0 {
			prev = 0
		}
		return Bound(prev + free)
	}
	return Bound(free)
}

// Ceilings returns the ceiling for every row in order.
func Ceilings(items Collection, cat Catalog, s Session) []Ceiling {
	out := make([]Ceiling, len(items))
	for i := range items {
		out[i] = RowCeiling(items, i, cat, s)
	}
	return out
}
