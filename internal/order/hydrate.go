package order

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// PersistedItem is one line of an order as stored on the server. Older orders
// only carry the product name, so ProductID may be nil.
type PersistedItem struct {
	Name         string              `json:"name"`
	ExternalName string              `json:"external_name,omitempty"`
	Quantity     int                 `json:"quantity"`
	Price        decimal.NullDecimal `json:"price"`
	ProductID    *int64              `json:"product_id,omitempty"`
}

// UnmarshalJSON accepts quantity and product_id as numbers or numeric
// strings. Blank values decode as zero / nil.
func (it *PersistedItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name         string          `json:"name"`
		ExternalName string          `json:"external_name"`
		Quantity     json.RawMessage `json:"quantity"`
		Price        json.RawMessage `json:"price"`
		ProductID    json.RawMessage `json:"product_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	qty, _, err := looseInt(raw.Quantity)
	if err != nil {
		return fmt.Errorf("quantity: %w", err)
	}
	price, err := looseDecimal(raw.Price)
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}
	*it = PersistedItem{
		Name:         raw.Name,
		ExternalName: raw.ExternalName,
		Quantity:     int(qty),
		Price:        price,
	}

	id, ok, err := looseInt(raw.ProductID)
	if err != nil {
		return fmt.Errorf("product_id: %w", err)
	}
	if ok {
		it.ProductID = &id
	}
	return nil
}

// looseInt reports ok=false for absent, null or blank values.
func looseInt(raw json.RawMessage) (int64, bool, error) {
	s := strings.TrimSpace(strings.Trim(string(bytes.TrimSpace(raw)), `"`))
	if s == "" || s == "null" {
		return 0, false, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("not a number: %q", s)
	}
	return int64(f), true, nil
}

func looseDecimal(raw json.RawMessage) (decimal.NullDecimal, error) {
	s := strings.TrimSpace(strings.Trim(string(bytes.TrimSpace(raw)), `"`))
	if s == "" || s == "null" {
		return decimal.NullDecimal{}, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(v), nil
}

// Hydrate rebuilds edit rows from persisted items. Rows are matched to the
// catalog by id first, then by case-insensitive name. Unmatched rows are kept
// with ProductID 0 so the operator can see and reassign them.
//
// PrevQuantity is set to the persisted quantity, which is what the server
// still holds for the row until it is released.
func Hydrate(items []PersistedItem, cat NameResolver) Collection {
	if len(items) == 0 {
		return Collection{{}}
	}

	out := make(Collection, 0, len(items))
	for _, it := range items {
		var (
			p     Product
			found bool
		)
		if it.ProductID != nil && *it.ProductID != 0 {
			p, found = cat.Lookup(*it.ProductID)
		}
		if !found {
			name := strings.TrimSpace(it.Name)
			if name == "" {
				name = strings.TrimSpace(it.ExternalName)
			}
			if name != "" {
				p, found = cat.FindByName(name)
			}
		}

		qty := it.Quantity
		if qty < 0 {
			qty = 0
		}
		li := LineItem{Quantity: qty, PrevQuantity: qty, Price: it.Price}
		if found {
			li.ProductID = p.ID
			if !li.Price.Valid {
				li.Price = decimal.NewNullDecimal(p.Price)
			}
		}
		out = append(out, li)
	}
	return out
}
