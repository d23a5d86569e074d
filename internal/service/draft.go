package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/orderdesk/internal/apiclient"
	"github.com/kiwari-pos/orderdesk/internal/enum"
	"github.com/kiwari-pos/orderdesk/internal/metrics"
	"github.com/kiwari-pos/orderdesk/internal/notify"
	"github.com/kiwari-pos/orderdesk/internal/order"
	"github.com/kiwari-pos/orderdesk/internal/store"
	"github.com/kiwari-pos/orderdesk/internal/ws"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Errors returned by the draft service.
var (
	ErrDraftNotFound  = errors.New("draft not found")
	ErrStaleStock     = errors.New("stock changed since the order was checked, please review quantities")
	ErrRestoreFailed  = errors.New("could not prepare order for editing")
	ErrEditInProgress = errors.New("order is still being prepared for editing")
	ErrNotPartialPaid = errors.New("paid amount only applies to Partial Paid orders")
)

// DraftStore defines the persistence methods the draft service needs.
// Satisfied by *store.Memory and *store.Postgres.
type DraftStore interface {
	GetDraft(ctx context.Context, id uuid.UUID) (store.Draft, error)
	ListDrafts(ctx context.Context, owner uuid.UUID) ([]store.Draft, error)
	SaveDraft(ctx context.Context, d store.Draft) (store.Draft, error)
	DeleteDraft(ctx context.Context, id uuid.UUID) error
}

// OrderAPI is the slice of the remote API used by drafts.
// Satisfied by *apiclient.Client.
type OrderAPI interface {
	GetOrder(ctx context.Context, id int64) (apiclient.Order, error)
	CreateOrder(ctx context.Context, payload order.Payload) (json.RawMessage, error)
	UpdateOrder(ctx context.Context, id int64, payload order.Payload) (json.RawMessage, error)
	StartEdit(ctx context.Context, id int64) error
}

// Catalog is the product cache. Satisfied by *catalog.Cache.
type Catalog interface {
	Load(ctx context.Context) ([]order.Product, error)
	Snapshot() *order.Index
}

// Broadcaster pushes events to a user's browser sessions.
type Broadcaster interface {
	BroadcastToUser(userID uuid.UUID, event ws.Event)
}

// DraftService owns the order forms users are filling in.
type DraftService struct {
	store     DraftStore
	api       OrderAPI
	catalog   Catalog
	hub       Broadcaster
	publisher notify.Publisher
	locks     *LockManager
	metrics   *metrics.Metrics
	log       logrus.FieldLogger
}

func NewDraftService(s DraftStore, api OrderAPI, cat Catalog, hub Broadcaster, pub notify.Publisher, m *metrics.Metrics, log logrus.FieldLogger) *DraftService {
	if pub == nil {
		pub = notify.Nop{}
	}
	return &DraftService{
		store:     s,
		api:       api,
		catalog:   cat,
		hub:       hub,
		publisher: pub,
		locks:     NewLockManager(),
		metrics:   m,
		log:       log.WithField("component", "drafts"),
	}
}

// --- Views ---

// RowView is one line item as the form renders it.
type RowView struct {
	Index         int             `json:"index"`
	ProductID     int64           `json:"product_id"`
	Name          string          `json:"name,omitempty"`
	Quantity      int             `json:"quantity"`
	PrevQuantity  int             `json:"prev_quantity"`
	Price         decimal.Decimal `json:"price"`
	PriceOverride bool            `json:"price_override"`
	Cost          decimal.Decimal `json:"cost"`
	LineTotal     decimal.Decimal `json:"line_total"`
	MaxQuantity   *int            `json:"max_quantity"`
	Available     int             `json:"available"`
	Known         bool            `json:"known"`
	OutOfStock    bool            `json:"out_of_stock"`
	OverAllocated bool            `json:"over_allocated"`
}

// TotalsView is the payment breakdown of the form.
type TotalsView struct {
	Items  decimal.Decimal `json:"items"`
	Paid   decimal.Decimal `json:"paid"`
	Unpaid decimal.Decimal `json:"unpaid"`
}

// View is the recomputed state of a draft.
type View struct {
	ID        uuid.UUID     `json:"id"`
	State     string        `json:"state"`
	Mode      string        `json:"mode"`
	OrderID   int64         `json:"order_id,omitempty"`
	Restored  bool          `json:"restored"`
	Details   order.Details `json:"details"`
	Items     []RowView     `json:"items"`
	Totals    TotalsView    `json:"totals"`
	Clamped   bool          `json:"clamped,omitempty"`
	Version   int32         `json:"version"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func buildView(d store.Draft, idx *order.Index) View {
	res := order.Recompute(d.Items, idx, d.Session(), d.Paid)

	v := View{
		ID:        d.ID,
		State:     d.State,
		Mode:      "create",
		OrderID:   d.OrderID,
		Restored:  d.Restored,
		Details:   d.Details,
		Items:     make([]RowView, len(res.Rows)),
		Version:   d.Version,
		UpdatedAt: d.UpdatedAt,
		Totals: TotalsView{
			Items:  res.Totals.Items,
			Paid:   res.Totals.Payment.Paid,
			Unpaid: res.Totals.Payment.Unpaid,
		},
	}
	if d.Session().Editing() {
		v.Mode = "edit"
	}
	for i, rs := range res.Rows {
		row := RowView{
			Index:         rs.Index,
			ProductID:     rs.Item.ProductID,
			Name:          rs.Name,
			Quantity:      rs.Item.Quantity,
			PrevQuantity:  rs.Item.PrevQuantity,
			Price:         rs.Price,
			PriceOverride: rs.Item.Price.Valid,
			Cost:          rs.Cost,
			LineTotal:     rs.LineTotal,
			Available:     rs.Available,
			Known:         rs.Known,
			OutOfStock:    rs.OutOfStock,
			OverAllocated: rs.OverAllocated,
		}
		if rs.Ceiling.Bounded {
			limit := rs.Ceiling.Limit
			row.MaxQuantity = &limit
		}
		v.Items[i] = row
	}
	return v
}

// --- Lifecycle ---

// Create starts a blank create-mode draft for owner.
func (s *DraftService) Create(ctx context.Context, owner uuid.UUID) (View, error) {
	saved, err := s.store.SaveDraft(ctx, store.NewDraft(owner))
	if err != nil {
		return View{}, fmt.Errorf("create draft: %w", err)
	}
	return buildView(saved, s.catalog.Snapshot()), nil
}

// Get returns the draft recomputed against the current catalog snapshot.
func (s *DraftService) Get(ctx context.Context, owner, id uuid.UUID) (View, error) {
	d, err := s.load(ctx, owner, id)
	if err != nil {
		return View{}, err
	}
	return buildView(d, s.catalog.Snapshot()), nil
}

// List returns every draft owned by owner, most recently updated first.
func (s *DraftService) List(ctx context.Context, owner uuid.UUID) ([]View, error) {
	drafts, err := s.store.ListDrafts(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	idx := s.catalog.Snapshot()
	views := make([]View, len(drafts))
	for i, d := range drafts {
		views[i] = buildView(d, idx)
	}
	return views, nil
}

// Delete discards a draft.
func (s *DraftService) Delete(ctx context.Context, owner, id uuid.UUID) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if _, err := s.load(ctx, owner, id); err != nil {
		return err
	}
	if err := s.store.DeleteDraft(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrDraftNotFound
		}
		return fmt.Errorf("delete draft: %w", err)
	}
	s.locks.Forget(id)
	return nil
}

// Cancel drops the form contents and returns the draft to a blank new order.
func (s *DraftService) Cancel(ctx context.Context, owner, id uuid.UUID) (View, error) {
	return s.mutate(ctx, owner, id, func(d *store.Draft, _ *order.Index) error {
		reset(d)
		return nil
	})
}

// --- Line items ---

func (s *DraftService) AddRow(ctx context.Context, owner, id uuid.UUID) (View, error) {
	return s.mutate(ctx, owner, id, func(d *store.Draft, _ *order.Index) error {
		d.Items.AddRow(d.Session())
		return nil
	})
}

func (s *DraftService) RemoveRow(ctx context.Context, owner, id uuid.UUID, row int) (View, error) {
	return s.mutate(ctx, owner, id, func(d *store.Draft, _ *order.Index) error {
		return d.Items.RemoveRow(row)
	})
}

// SetProduct switches a row to productID, clamping its quantity down to the
// new product's ceiling. The view reports Clamped when that happened.
func (s *DraftService) SetProduct(ctx context.Context, owner, id uuid.UUID, row int, productID int64) (View, error) {
	var clamped bool
	v, err := s.mutate(ctx, owner, id, func(d *store.Draft, idx *order.Index) error {
		var err error
		_, clamped, err = d.Items.SetProduct(row, productID, idx, d.Session())
		return err
	})
	if err != nil {
		return View{}, err
	}
	if clamped {
		s.metrics.QuantityClamped()
	}
	v.Clamped = clamped
	return v, nil
}

// SetQuantity stores qty on a row, clamped to [min, ceiling].
func (s *DraftService) SetQuantity(ctx context.Context, owner, id uuid.UUID, row, qty int) (View, error) {
	var clamped bool
	v, err := s.mutate(ctx, owner, id, func(d *store.Draft, idx *order.Index) error {
		var err error
		_, clamped, err = d.Items.SetQuantity(row, qty, idx, d.Session())
		return err
	})
	if err != nil {
		return View{}, err
	}
	if clamped {
		s.metrics.QuantityClamped()
	}
	v.Clamped = clamped
	return v, nil
}

// SetPrice overrides a row's unit price. A nil price restores the catalog
// price.
func (s *DraftService) SetPrice(ctx context.Context, owner, id uuid.UUID, row int, price *decimal.Decimal) (View, error) {
	return s.mutate(ctx, owner, id, func(d *store.Draft, _ *order.Index) error {
		if price == nil {
			return d.Items.ClearPrice(row)
		}
		return d.Items.SetPrice(row, *price)
	})
}

// --- Details and payment ---

// DetailsPatch carries the form fields a client changed. Nil fields are left
// as they are.
type DetailsPatch struct {
	CustomerName  *string `json:"customerName"`
	Phone         *string `json:"phone"`
	Address       *string `json:"address"`
	Courier       *string `json:"courier"`
	TrackingID    *string `json:"trackingId"`
	Status        *string `json:"status"`
	PaymentStatus *string `json:"paymentStatus"`
	PaymentMethod *string `json:"paymentMethod"`
	Date          *string `json:"date"`
	TaxIncluded   *bool   `json:"tax_included"`
	TaxRate       *string `json:"tax_rate"`
	Channel       *string `json:"channel"`
	OrderRef      *string `json:"orderId"`
}

func (p DetailsPatch) apply(d *order.Details) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&d.CustomerName, p.CustomerName)
	set(&d.Phone, p.Phone)
	set(&d.Address, p.Address)
	set(&d.Courier, p.Courier)
	set(&d.TrackingID, p.TrackingID)
	set(&d.Status, p.Status)
	set(&d.PaymentStatus, p.PaymentStatus)
	set(&d.PaymentMethod, p.PaymentMethod)
	set(&d.Date, p.Date)
	set(&d.TaxRate, p.TaxRate)
	set(&d.Channel, p.Channel)
	set(&d.OrderRef, p.OrderRef)
	if p.TaxIncluded != nil {
		d.TaxIncluded = *p.TaxIncluded
	}
}

// UpdateDetails applies patch to the form. The customer name is only
// required on submit, so a blank name is accepted here.
func (s *DraftService) UpdateDetails(ctx context.Context, owner, id uuid.UUID, patch DetailsPatch) (View, error) {
	return s.mutate(ctx, owner, id, func(d *store.Draft, _ *order.Index) error {
		return applyDetails(d, patch)
	})
}

func applyDetails(d *store.Draft, patch DetailsPatch) error {
	next := d.Details
	patch.apply(&next)
	check := next
	if strings.TrimSpace(check.CustomerName) == "" {
		check.CustomerName = "-"
	}
	if err := order.ValidateDetails(check); err != nil {
		return err
	}
	if d.Details.PartialPaid() && !next.PartialPaid() {
		d.Paid = decimal.Zero
	}
	d.Details = next
	return nil
}

// PaymentUpdate changes the payment status and the paid amount together.
// Paid and Unpaid are mutually exclusive.
type PaymentUpdate struct {
	Status *string
	Paid   *decimal.Decimal
	Unpaid *decimal.Decimal
}

// UpdatePayment applies the status first, so one update can switch to
// Partial Paid and record the amount. Nothing is saved unless every part
// applies.
func (s *DraftService) UpdatePayment(ctx context.Context, owner, id uuid.UUID, u PaymentUpdate) (View, error) {
	return s.mutate(ctx, owner, id, func(d *store.Draft, idx *order.Index) error {
		if u.Status != nil {
			if err := applyDetails(d, DetailsPatch{PaymentStatus: u.Status}); err != nil {
				return err
			}
		}
		if u.Paid == nil && u.Unpaid == nil {
			return nil
		}
		if !d.Details.PartialPaid() {
			return ErrNotPartialPaid
		}
		total := order.ItemsTotal(d.Items, idx)
		if u.Paid != nil {
			d.Paid = order.ClampPaid(total, *u.Paid)
		} else {
			d.Paid = order.PaidFromUnpaid(total, *u.Unpaid)
		}
		return nil
	})
}

// SetPaymentStatus changes the payment status. Leaving Partial Paid zeroes
// the paid amount.
func (s *DraftService) SetPaymentStatus(ctx context.Context, owner, id uuid.UUID, status string) (View, error) {
	return s.UpdatePayment(ctx, owner, id, PaymentUpdate{Status: &status})
}

// SetPaid records the amount already paid on a Partial Paid order, clamped
// to [0, total].
func (s *DraftService) SetPaid(ctx context.Context, owner, id uuid.UUID, paid decimal.Decimal) (View, error) {
	return s.UpdatePayment(ctx, owner, id, PaymentUpdate{Paid: &paid})
}

// SetUnpaid back-solves the paid amount from the remaining balance.
func (s *DraftService) SetUnpaid(ctx context.Context, owner, id uuid.UUID, unpaid decimal.Decimal) (View, error) {
	return s.UpdatePayment(ctx, owner, id, PaymentUpdate{Unpaid: &unpaid})
}

// --- Submit ---

// SubmitResult is the saved order together with the reset draft.
type SubmitResult struct {
	Order json.RawMessage `json:"order"`
	Draft View            `json:"draft"`
}

// Submit validates the form and creates or updates the order upstream. Any
// failure leaves the form as it was. On success the draft resets to a blank
// new order and the catalog is reloaded because stock moved.
func (s *DraftService) Submit(ctx context.Context, owner, id uuid.UUID) (SubmitResult, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.load(ctx, owner, id)
	if err != nil {
		return SubmitResult{}, err
	}
	if d.State == enum.SessionPreparing {
		return SubmitResult{}, ErrEditInProgress
	}

	sess := d.Session()
	mode := "create"
	if sess.Editing() {
		mode = "edit"
	}

	idx := s.catalog.Snapshot()
	if err := order.ValidateForSubmit(d.Details, d.Items, idx, sess); err != nil {
		s.metrics.Submission(mode, "invalid")
		return SubmitResult{}, err
	}
	payload := order.BuildPayload(d.Details, d.Items, idx, sess, d.Paid)

	var saved json.RawMessage
	if sess.Editing() {
		saved, err = s.api.UpdateOrder(ctx, d.OrderID, payload)
	} else {
		saved, err = s.api.CreateOrder(ctx, payload)
	}
	if err != nil {
		if apiclient.IsConflict(err) {
			s.metrics.Submission(mode, "stale")
			return SubmitResult{}, fmt.Errorf("%w: %w", ErrStaleStock, err)
		}
		s.metrics.Submission(mode, "error")
		return SubmitResult{}, fmt.Errorf("submit order: %w", err)
	}
	s.metrics.Submission(mode, "ok")

	s.log.WithFields(logrus.Fields{
		"draft_id": d.ID,
		"order_id": d.OrderID,
		"mode":     mode,
		"items":    len(payload.OrderItems),
	}).Info("order submitted")

	reset(&d)
	stored, err := s.store.SaveDraft(ctx, d)
	if err != nil {
		// The order exists upstream; only the form could not be cleared.
		s.log.WithError(err).WithField("draft_id", d.ID).Warn("reset draft after submit")
		stored = d
	}

	if _, err := s.catalog.Load(ctx); err != nil {
		s.log.WithError(err).Warn("reload catalog after submit")
	}
	s.publish(ctx, enum.EventProductsChanged)
	s.publish(ctx, enum.EventOrdersChanged)

	view := buildView(stored, s.catalog.Snapshot())
	s.broadcast(stored.OwnerID, view)
	return SubmitResult{Order: saved, Draft: view}, nil
}

// --- Internals ---

// load fetches a draft and hides drafts owned by someone else.
func (s *DraftService) load(ctx context.Context, owner, id uuid.UUID) (store.Draft, error) {
	d, err := s.store.GetDraft(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Draft{}, ErrDraftNotFound
	}
	if err != nil {
		return store.Draft{}, fmt.Errorf("load draft: %w", err)
	}
	if d.OwnerID != owner {
		return store.Draft{}, ErrDraftNotFound
	}
	return d, nil
}

// mutate runs fn on the draft under its lock, re-clamps the paid amount to
// the new total and saves. fn sees one catalog snapshot for the whole change.
func (s *DraftService) mutate(ctx context.Context, owner, id uuid.UUID, fn func(d *store.Draft, idx *order.Index) error) (View, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.load(ctx, owner, id)
	if err != nil {
		return View{}, err
	}
	if d.State == enum.SessionPreparing {
		return View{}, ErrEditInProgress
	}

	idx := s.catalog.Snapshot()
	if err := fn(&d, idx); err != nil {
		return View{}, err
	}
	d.Paid = order.ClampPaid(order.ItemsTotal(d.Items, idx), d.Paid)

	saved, err := s.save(ctx, d)
	if err != nil {
		return View{}, err
	}
	view := buildView(saved, idx)
	s.broadcast(saved.OwnerID, view)
	return view, nil
}

func (s *DraftService) save(ctx context.Context, d store.Draft) (store.Draft, error) {
	saved, err := s.store.SaveDraft(ctx, d)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return store.Draft{}, ErrDraftNotFound
	case err != nil:
		return store.Draft{}, fmt.Errorf("save draft: %w", err)
	}
	return saved, nil
}

func (s *DraftService) broadcast(owner uuid.UUID, view View) {
	if s.hub == nil {
		return
	}
	ev, err := ws.NewEvent(enum.EventDraftUpdated, view)
	if err != nil {
		s.log.WithError(err).Warn("encode draft event")
		return
	}
	s.hub.BroadcastToUser(owner, ev)
}

func (s *DraftService) publish(ctx context.Context, eventType string) {
	if err := s.publisher.Publish(ctx, notify.Event{Type: eventType}); err != nil {
		s.log.WithError(err).WithField("event", eventType).Warn("publish change event")
	}
}

// reset turns d back into a blank create-mode draft, keeping its identity.
func reset(d *store.Draft) {
	blank := store.NewDraft(d.OwnerID)
	d.State = blank.State
	d.OrderID = blank.OrderID
	d.Restored = blank.Restored
	d.Details = blank.Details
	d.Items = blank.Items
	d.Paid = blank.Paid
}
