package order

import "github.com/shopspring/decimal"

// Payment is the partial-payment breakdown for an order total.
type Payment struct {
	Total  decimal.Decimal
	Paid   decimal.Decimal
	Unpaid decimal.Decimal
}

// EffectivePrice returns the row override when set, else the catalog price,
// else zero.
func EffectivePrice(li LineItem, cat Catalog) decimal.Decimal {
	if li.Price.Valid {
		return li.Price.Decimal
	}
	if p, ok := cat.Lookup(li.ProductID); ok {
		return p.Price
	}
	return decimal.Zero
}

// LineTotal is effective price × quantity. Unselected rows are worth zero.
func LineTotal(li LineItem, cat Catalog) decimal.Decimal {
	if !li.Selected() || li.Quantity <= 0 {
		return decimal.Zero
	}
	return EffectivePrice(li, cat).Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// ItemsTotal is the provisional client-side order total. The server computes
// the authoritative total including tax and discount.
func ItemsTotal(items Collection, cat Catalog) decimal.Decimal {
	total := decimal.Zero
	for _, li := range items {
		total = total.Add(LineTotal(li, cat))
	}
	return total
}

// ClampPaid bounds paid to [0, total].
func ClampPaid(total, paid decimal.Decimal) decimal.Decimal {
	if total.IsNegative() {
		total = decimal.Zero
	}
	if paid.IsNegative() {
		return decimal.Zero
	}
	if paid.GreaterThan(total) {
		return total
	}
	return paid
}

// PaidFromUnpaid back-solves the paid amount from an edited unpaid amount.
func PaidFromUnpaid(total, unpaid decimal.Decimal) decimal.Decimal {
	unpaid = ClampPaid(total, unpaid)
	return ClampPaid(total, total.Sub(unpaid))
}

// Breakdown clamps paid against total and derives the unpaid remainder.
func Breakdown(total, paid decimal.Decimal) Payment {
	if total.IsNegative() {
		total = decimal.Zero
	}
	paid = ClampPaid(total, paid)
	unpaid := total.Sub(paid)
	if unpaid.IsNegative() {
		unpaid = decimal.Zero
	}
	return Payment{Total: total, Paid: paid, Unpaid: unpaid}
}
