package apiclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kiwari-pos/orderdesk/internal/enum"
	"github.com/kiwari-pos/orderdesk/internal/order"
	"github.com/shopspring/decimal"
)

// Order is a persisted order after normalization.
type Order struct {
	ID            int64                 `json:"id"`
	OrderRef      string                `json:"order_id"`
	CustomerName  string                `json:"customer_name"`
	Phone         string                `json:"phone"`
	Address       string                `json:"address"`
	Courier       string                `json:"courier"`
	TrackingID    string                `json:"tracking_id"`
	Status        string                `json:"status"`
	PaymentStatus string                `json:"payment_status"`
	PaymentMethod string                `json:"payment_method"`
	Channel       string                `json:"channel"`
	TaxIncluded   bool                  `json:"tax_included"`
	ProductTitle  string                `json:"product_title"`
	TotalPrice    decimal.Decimal       `json:"total_price"`
	PartialPaid   decimal.Decimal       `json:"partial_paid_amount"`
	Date          string                `json:"date,omitempty"`
	CreatedAt     string                `json:"created_at,omitempty"`
	UpdatedAt     string                `json:"updated_at,omitempty"`
	Items         []order.PersistedItem `json:"products"`
}

// rawOrder accepts the loose shapes the API has served over time: products
// as a JSON string or an array, numbers as strings, booleans as 0/1, and the
// partial payment under either its snake or camel case name.
type rawOrder struct {
	ID            int64               `json:"id"`
	OrderRef      json.RawMessage     `json:"order_id"`
	CustomerName  string              `json:"customer_name"`
	Phone         string              `json:"phone"`
	Address       string              `json:"address"`
	Courier       string              `json:"courier"`
	TrackingID    string              `json:"tracking_id"`
	Status        string              `json:"status"`
	PaymentStatus string              `json:"payment_status"`
	PaymentMethod string              `json:"payment_method"`
	Channel       string              `json:"channel"`
	TaxIncluded   json.RawMessage     `json:"tax_included"`
	ProductTitle  string              `json:"product_title"`
	TotalPrice    decimal.NullDecimal `json:"total_price"`
	PartialPaid   json.RawMessage     `json:"partial_paid_amount"`
	PartialCamel  json.RawMessage     `json:"partialPaidAmount"`
	Date          *string             `json:"date"`
	CreatedAt     *string             `json:"created_at"`
	UpdatedAt     *string             `json:"updated_at"`
	Products      json.RawMessage     `json:"products"`
}

// normalize never drops an order. Fields that cannot be read are left at
// their zero value and reported in the returned error.
func (r rawOrder) normalize() (Order, error) {
	items, itemsErr := parseItems(r.Products)
	partial, partialErr := partialPaid(r.PartialPaid, r.PartialCamel)

	o := Order{
		ID:            r.ID,
		OrderRef:      rawText(r.OrderRef),
		CustomerName:  r.CustomerName,
		Phone:         r.Phone,
		Address:       r.Address,
		Courier:       r.Courier,
		TrackingID:    r.TrackingID,
		Status:        r.Status,
		PaymentStatus: r.PaymentStatus,
		PaymentMethod: r.PaymentMethod,
		Channel:       r.Channel,
		TaxIncluded:   rawBool(r.TaxIncluded),
		CreatedAt:     deref(r.CreatedAt),
		UpdatedAt:     deref(r.UpdatedAt),
		Items:         items,
		PartialPaid:   partial,
	}

	o.ProductTitle = r.ProductTitle
	if strings.TrimSpace(o.ProductTitle) == "" {
		o.ProductTitle = itemsTitle(o.Items)
	}

	if r.TotalPrice.Valid {
		o.TotalPrice = r.TotalPrice.Decimal
	} else {
		o.TotalPrice = itemsTotal(o.Items)
	}
	o.TotalPrice = o.TotalPrice.Round(2)

	switch {
	case r.Date != nil && *r.Date != "":
		o.Date = *r.Date
	case o.CreatedAt != "":
		o.Date = o.CreatedAt
	default:
		o.Date = o.UpdatedAt
	}
	return o, errors.Join(itemsErr, partialErr)
}

// Details maps the order onto the edit form.
func (o Order) Details() order.Details {
	d := order.DefaultDetails()
	d.CustomerName = o.CustomerName
	d.Phone = o.Phone
	d.Address = o.Address
	d.Courier = o.Courier
	d.TrackingID = o.TrackingID
	d.Channel = o.Channel
	d.Date = o.Date
	d.TaxIncluded = o.TaxIncluded
	if o.Status != "" {
		d.Status = o.Status
	}
	if o.PaymentStatus != "" {
		d.PaymentStatus = o.PaymentStatus
	}
	if o.PaymentMethod != "" {
		d.PaymentMethod = o.PaymentMethod
	}
	d.OrderRef = o.OrderRef
	if d.OrderRef == "" && o.ID != 0 {
		d.OrderRef = strconv.FormatInt(o.ID, 10)
	}
	return d
}

// When parses Date into a timestamp. It accepts RFC 3339, SQL datetimes and
// plain dates.
func (o Order) When() (time.Time, bool) {
	return parseDate(o.Date)
}

// parseItems decodes each item on its own so one bad line only loses that
// line.
func parseItems(raw json.RawMessage) ([]order.PersistedItem, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("products: %w", err)
		}
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		raw = []byte(s)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("products: %w", err)
	}
	items := make([]order.PersistedItem, 0, len(rows))
	var errs []error
	for i, row := range rows {
		var it order.PersistedItem
		if err := json.Unmarshal(row, &it); err != nil {
			errs = append(errs, fmt.Errorf("products[%d]: %w", i, err))
			continue
		}
		items = append(items, it)
	}
	return items, errors.Join(errs...)
}

// partialPaid prefers the snake case field. Blank or null means nothing paid.
func partialPaid(snake, camel json.RawMessage) (decimal.Decimal, error) {
	for _, raw := range []json.RawMessage{snake, camel} {
		s := strings.TrimSpace(strings.Trim(string(bytes.TrimSpace(raw)), `"`))
		if s == "" || s == "null" {
			continue
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("partial_paid_amount: %w", err)
		}
		return v, nil
	}
	return decimal.Zero, nil
}

func itemQuantity(it order.PersistedItem) int {
	if it.Quantity == 0 {
		return 1
	}
	return it.Quantity
}

func itemsTitle(items []order.PersistedItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		name := it.Name
		if name == "" {
			name = it.ExternalName
		}
		if name == "" {
			name = "Item"
		}
		parts = append(parts, fmt.Sprintf("%s x%d", name, itemQuantity(it)))
	}
	return strings.Join(parts, "; ")
}

func itemsTotal(items []order.PersistedItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		if !it.Price.Valid {
			continue
		}
		total = total.Add(it.Price.Decimal.Mul(decimal.NewFromInt(int64(itemQuantity(it)))))
	}
	return total
}

func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func rawBool(raw json.RawMessage) bool {
	switch strings.Trim(strings.TrimSpace(string(raw)), `"`) {
	case "true", "1":
		return true
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// --- Filtering ---

// Filter selects orders for the orders view.
type Filter struct {
	Start string // YYYY-MM-DD, inclusive
	End   string // YYYY-MM-DD, inclusive
	Query string // matches customer name or tracking id
}

// Apply returns the orders matching f. Orders without a parseable date are
// dropped whenever a date bound is set.
func (f Filter) Apply(orders []Order) []Order {
	start, hasStart := parseDate(f.Start)
	end, hasEnd := parseDate(f.End)
	term := strings.ToLower(strings.TrimSpace(f.Query))

	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if hasStart || hasEnd {
			when, ok := o.When()
			if !ok {
				continue
			}
			day := dateOnly(when)
			if hasStart && day.Before(dateOnly(start)) {
				continue
			}
			if hasEnd && day.After(dateOnly(end)) {
				continue
			}
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(o.CustomerName), term) &&
			!strings.Contains(strings.ToLower(o.TrackingID), term) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// UnpaidOlderThan lists orders still "Unpaid" whose date is more than age
// before now.
func UnpaidOlderThan(orders []Order, age time.Duration, now time.Time) []Order {
	var out []Order
	for _, o := range orders {
		if o.PaymentStatus != enum.PaymentStatusUnpaid {
			continue
		}
		when, ok := o.When()
		if !ok {
			continue
		}
		if now.Sub(when) > age {
			out = append(out, o)
		}
	}
	return out
}
