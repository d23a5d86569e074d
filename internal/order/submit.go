package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kiwari-pos/orderdesk/internal/enum"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// Details holds the non-item fields of the order form. JSON names match the
// payload the remote API accepts.
type Details struct {
	CustomerName  string `json:"customerName" validate:"required"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	Courier       string `json:"courier"`
	TrackingID    string `json:"trackingId"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus" validate:"omitempty,oneof=Paid Unpaid 'Partial Paid'"`
	PaymentMethod string `json:"paymentMethod"`
	Date          string `json:"date"`
	TaxIncluded   bool   `json:"tax_included"`
	TaxRate       string `json:"tax_rate,omitempty" validate:"omitempty,numeric"`
	Channel       string `json:"channel"`
	OrderRef      string `json:"orderId"`
}

// DefaultDetails is the blank order form.
func DefaultDetails() Details {
	return Details{
		Status:        enum.OrderStatusDispatch,
		PaymentStatus: enum.PaymentStatusUnpaid,
		PaymentMethod: enum.PaymentMethodCOD,
	}
}

// PartialPaid reports whether the order is marked as partially paid.
func (d Details) PartialPaid() bool {
	return d.PaymentStatus == enum.PaymentStatusPartial
}

// PayloadItem is one entry of orderItems in the submit payload.
type PayloadItem struct {
	Name      string      `json:"name"`
	Quantity  int         `json:"quantity"`
	Price     json.Number `json:"price"`
	ProductID int64       `json:"product_id"`
}

// Payload is the body of POST api/orders and PUT api/orders/{id}.
type Payload struct {
	Details
	ProductTitle      string        `json:"productTitle,omitempty"`
	OrderItems        []PayloadItem `json:"orderItems,omitempty"`
	RestoredOnEdit    bool          `json:"restoredOnEdit"`
	PartialPaidAmount json.Number   `json:"partialPaidAmount"`
}

// ValidateDetails checks the form fields.
func ValidateDetails(d Details) error {
	d.CustomerName = strings.TrimSpace(d.CustomerName)
	err := validate.Struct(d)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		for _, fe := range verrs {
			if fe.Field() == "CustomerName" {
				return ErrCustomerRequired
			}
		}
		return fmt.Errorf("%w: %s failed %q", ErrInvalidDetails, verrs[0].Field(), verrs[0].Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidDetails, err)
}

// ValidateForSubmit runs every check a submit must pass, details first.
func ValidateForSubmit(d Details, items Collection, cat Catalog, s Session) error {
	if err := ValidateDetails(d); err != nil {
		return err
	}
	return ValidateItems(items, cat, s)
}

// ValidateItems runs the submit-time stock checks. Client allocation is only
// advisory; the backend enforces the real constraint on commit.
//
// The per-product requirement is the sum of each row's delta: the full
// quantity for new orders and restored edits, and the increase over
// PrevQuantity for edits the server has not released yet.
func ValidateItems(items Collection, cat Catalog, s Session) error {
	if !s.Editing() && len(items.Selected()) == 0 {
		return ErrNoItems
	}

	var order []int64
	required := make(map[int64]int)
	for _, li := range items {
		if !li.Selected() {
			continue
		}
		p, ok := cat.Lookup(li.ProductID)
		if !ok {
			continue
		}
		if !s.Editing() && p.Stock <= 0 {
			return fmt.Errorf("%s: %w", productName(li, cat), ErrOutOfStock)
		}

		delta := li.Quantity
		if s.Editing() && !s.Restored {
			delta = li.Quantity - li.PrevQuantity
		}
		if delta < 0 {
			delta = 0
		}
		if _, seen := required[li.ProductID]; !seen {
			order = append(order, li.ProductID)
		}
		required[li.ProductID] += delta
	}

	for _, pid := range order {
		p, _ := cat.Lookup(pid)
		if required[pid] > p.Stock {
			return fmt.Errorf("total quantity for %s: %w (%d available)", p.Name, ErrExceedsStock, p.Stock)
		}
	}
	return nil
}

// BuildPayload serializes the form into the backend order payload. paid is
// only sent for partially paid orders and is clamped to the items total.
func BuildPayload(d Details, items Collection, cat Catalog, s Session, paid decimal.Decimal) Payload {
	d.CustomerName = strings.TrimSpace(d.CustomerName)
	payload := Payload{
		Details:           d,
		RestoredOnEdit:    s.Restored,
		PartialPaidAmount: json.Number("0"),
	}

	selected := items.Selected()
	if len(selected) > 0 {
		titles := make([]string, 0, len(selected))
		payload.OrderItems = make([]PayloadItem, 0, len(selected))
		for _, li := range selected {
			name := productName(li, cat)
			titles = append(titles, fmt.Sprintf("%s x%d", name, li.Quantity))
			payload.OrderItems = append(payload.OrderItems, PayloadItem{
				Name:      name,
				Quantity:  li.Quantity,
				Price:     json.Number(EffectivePrice(li, cat).StringFixed(2)),
				ProductID: li.ProductID,
			})
		}
		payload.ProductTitle = strings.Join(titles, "; ")
	}

	if d.PartialPaid() {
		amount := ClampPaid(ItemsTotal(items, cat), paid)
		payload.PartialPaidAmount = json.Number(amount.StringFixed(2))
	}
	return payload
}

func productName(li LineItem, cat Catalog) string {
	if p, ok := cat.Lookup(li.ProductID); ok && p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("#%d", li.ProductID)
}
