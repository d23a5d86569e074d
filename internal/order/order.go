package order

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Errors returned by the order engine.
var (
	ErrInvalidRow       = errors.New("line item row out of range")
	ErrNoItems          = errors.New("please add at least one product to the order")
	ErrOutOfStock       = errors.New("product is out of stock")
	ErrExceedsStock     = errors.New("quantity exceeds available stock")
	ErrCustomerRequired = errors.New("customer name is required")
	ErrInvalidDetails   = errors.New("invalid order details")
)

// Product is the cached catalog entry as served by GET api/products.
type Product struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Cost  decimal.Decimal `json:"cost"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

// Catalog resolves product ids against a product snapshot.
// Unknown ids report false; callers treat them as unbounded stock.
type Catalog interface {
	Lookup(id int64) (Product, bool)
}

// NameResolver is a Catalog that can also match products by name.
type NameResolver interface {
	Catalog
	FindByName(name string) (Product, bool)
}

// Index is an immutable product snapshot keyed by id. Name matching
// follows the order the products were loaded in.
type Index struct {
	byID     map[int64]Product
	products []Product
}

// NewIndex builds an Index from a product list. Later duplicates of the same
// id replace earlier ones.
func NewIndex(products []Product) *Index {
	idx := &Index{
		byID:     make(map[int64]Product, len(products)),
		products: make([]Product, len(products)),
	}
	copy(idx.products, products)
	for _, p := range products {
		idx.byID[p.ID] = p
	}
	return idx
}

// Lookup returns the product with the given id.
func (idx *Index) Lookup(id int64) (Product, bool) {
	if idx == nil || id == 0 {
		return Product{}, false
	}
	p, ok := idx.byID[id]
	return p, ok
}

// FindByName returns the first product whose name matches case-insensitively.
func (idx *Index) FindByName(name string) (Product, bool) {
	name = strings.TrimSpace(name)
	if idx == nil || name == "" {
		return Product{}, false
	}
	for _, p := range idx.products {
		if strings.EqualFold(strings.TrimSpace(p.Name), name) {
			return p, true
		}
	}
	return Product{}, false
}

// Products returns a copy of the snapshot in load order.
func (idx *Index) Products() []Product {
	if idx == nil {
		return nil
	}
	out := make([]Product, len(idx.products))
	copy(out, idx.products)
	return out
}

// Len reports the number of products in the snapshot.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.products)
}

// Session is the allocation-relevant part of an edit session.
// OrderID is 0 when creating a new order.
type Session struct {
	OrderID  int64
	Restored bool
}

// Editing reports whether the session edits a persisted order.
func (s Session) Editing() bool {
	return s.OrderID != 0
}

// MinQuantity is the lowest quantity a row may hold. Edit mode allows 0 so
// a row can be zeroed out without deleting it.
func (s Session) MinQuantity() int {
	if s.Editing() {
		return 0
	}
	return 1
}
