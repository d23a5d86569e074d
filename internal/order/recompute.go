package order

import "github.com/shopspring/decimal"

// RowState is the derived view of one row after recomputation.
type RowState struct {
	Index         int
	Item          LineItem
	Name          string
	Cost          decimal.Decimal
	Price         decimal.Decimal
	LineTotal     decimal.Decimal
	Ceiling       Ceiling
	Available     int // catalog stock minus everything this order holds, for display
	Known         bool
	OutOfStock    bool
	OverAllocated bool
}

// Totals is the order-level pricing state.
type Totals struct {
	Items   decimal.Decimal
	Payment Payment
}

// Result is the output of Recompute.
type Result struct {
	Rows   []RowState
	Totals Totals
}

// Recompute derives ceilings, display stock and totals for the whole
// collection. Every row sharing a product is recomputed together, so callers
// can run it after any mutation without tracking which rows were affected.
func Recompute(items Collection, cat Catalog, s Session, paid decimal.Decimal) Result {
	rows := make([]RowState, len(items))
	for i, li := range items {
		rs := RowState{
			Index:     i,
			Item:      li,
			Price:     EffectivePrice(li, cat),
			LineTotal: LineTotal(li, cat),
			Ceiling:   RowCeiling(items, i, cat, s),
		}
		if p, ok := cat.Lookup(li.ProductID); ok {
			rs.Known = true
			rs.Name = p.Name
			rs.Cost = p.Cost
			rs.Available = FreeStock(p.Stock, AllocatedFor(items, li.ProductID))
			rs.OutOfStock = p.Stock <= 0
		}
		rs.OverAllocated = li.Selected() && !rs.Ceiling.Allows(li.Quantity)
		rows[i] = rs
	}

	total := ItemsTotal(items, cat)
	return Result{
		Rows: rows,
		Totals: Totals{
			Items:   total,
			Payment: Breakdown(total, paid),
		},
	}
}
