package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/kiwari-pos/orderdesk/internal/apiclient"
	"github.com/kiwari-pos/orderdesk/internal/enum"
	"github.com/kiwari-pos/orderdesk/internal/notify"
	"github.com/kiwari-pos/orderdesk/internal/order"
	"github.com/kiwari-pos/orderdesk/internal/store"
	"github.com/kiwari-pos/orderdesk/internal/ws"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type mockAPI struct {
	getOrderFn    func(ctx context.Context, id int64) (apiclient.Order, error)
	createOrderFn func(ctx context.Context, payload order.Payload) (json.RawMessage, error)
	updateOrderFn func(ctx context.Context, id int64, payload order.Payload) (json.RawMessage, error)
	startEditFn   func(ctx context.Context, id int64) error
}

func (m *mockAPI) GetOrder(ctx context.Context, id int64) (apiclient.Order, error) {
	return m.getOrderFn(ctx, id)
}
func (m *mockAPI) CreateOrder(ctx context.Context, payload order.Payload) (json.RawMessage, error) {
	return m.createOrderFn(ctx, payload)
}
func (m *mockAPI) UpdateOrder(ctx context.Context, id int64, payload order.Payload) (json.RawMessage, error) {
	return m.updateOrderFn(ctx, id, payload)
}
func (m *mockAPI) StartEdit(ctx context.Context, id int64) error {
	return m.startEditFn(ctx, id)
}

type fakeCatalog struct {
	mu      sync.Mutex
	idx     *order.Index
	next    []order.Product
	loadErr error
	loads   int
}

func newFakeCatalog(products ...order.Product) *fakeCatalog {
	return &fakeCatalog{idx: order.NewIndex(products)}
}

func (c *fakeCatalog) Load(ctx context.Context) ([]order.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loads++
	if c.loadErr != nil {
		return c.idx.Products(), c.loadErr
	}
	if c.next != nil {
		c.idx = order.NewIndex(c.next)
	}
	return c.idx.Products(), nil
}

func (c *fakeCatalog) Snapshot() *order.Index {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idx
}

type recordingHub struct {
	mu     sync.Mutex
	events []ws.Event
}

func (h *recordingHub) BroadcastToUser(_ uuid.UUID, ev ws.Event) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
}

func (h *recordingHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

type recordingPublisher struct {
	types []string
}

func (p *recordingPublisher) Publish(_ context.Context, ev notify.Event) error {
	p.types = append(p.types, ev.Type)
	return nil
}

type fixture struct {
	svc   *DraftService
	api   *mockAPI
	cat   *fakeCatalog
	hub   *recordingHub
	pub   *recordingPublisher
	store *store.Memory
	owner uuid.UUID
}

func newFixture(t *testing.T, products ...order.Product) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	f := &fixture{
		api:   &mockAPI{},
		cat:   newFakeCatalog(products...),
		hub:   &recordingHub{},
		pub:   &recordingPublisher{},
		store: store.NewMemory(),
		owner: uuid.New(),
	}
	f.svc = NewDraftService(f.store, f.api, f.cat, f.hub, f.pub, nil, logger)
	return f
}

func product(id int64, name, price string, stock int) order.Product {
	return order.Product{ID: id, Name: name, Price: decimal.RequireFromString(price), Stock: stock}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *fixture) create(t *testing.T) View {
	t.Helper()
	v, err := f.svc.Create(context.Background(), f.owner)
	require.NoError(t, err)
	return v
}

// =====================
// Create / Get / ownership
// =====================

func TestCreate_BlankDraft(t *testing.T) {
	f := newFixture(t)
	v := f.create(t)

	assert.Equal(t, enum.SessionIdle, v.State)
	assert.Equal(t, "create", v.Mode)
	require.Len(t, v.Items, 1)
	assert.Equal(t, 1, v.Items[0].Quantity)
	assert.Equal(t, enum.PaymentStatusUnpaid, v.Details.PaymentStatus)
	assert.True(t, v.Totals.Items.IsZero())
}

func TestGet_OtherOwnerSeesNotFound(t *testing.T) {
	f := newFixture(t)
	v := f.create(t)

	_, err := f.svc.Get(context.Background(), uuid.New(), v.ID)
	assert.ErrorIs(t, err, ErrDraftNotFound)

	_, err = f.svc.AddRow(context.Background(), uuid.New(), v.ID)
	assert.ErrorIs(t, err, ErrDraftNotFound)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	v := f.create(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Delete(ctx, f.owner, v.ID))
	_, err := f.svc.Get(ctx, f.owner, v.ID)
	assert.ErrorIs(t, err, ErrDraftNotFound)
	assert.Equal(t, 0, f.svc.locks.Len())
	assert.ErrorIs(t, f.svc.Delete(ctx, f.owner, v.ID), ErrDraftNotFound)
}

// =====================
// Line items
// =====================

func TestSetQuantity_ClampsToStock(t *testing.T) {
	f := newFixture(t, product(1, "Mug", "10", 5))
	ctx := context.Background()
	v := f.create(t)

	_, err := f.svc.SetProduct(ctx, f.owner, v.ID, 0, 1)
	require.NoError(t, err)

	v, err = f.svc.SetQuantity(ctx, f.owner, v.ID, 0, 9)
	require.NoError(t, err)
	assert.True(t, v.Clamped)
	assert.Equal(t, 5, v.Items[0].Quantity)
	require.NotNil(t, v.Items[0].MaxQuantity)
	assert.Equal(t, 5, *v.Items[0].MaxQuantity)
	assert.True(t, v.Totals.Items.Equal(dec("50")))
}

func TestSetQuantity_SharedAcrossRows(t *testing.T) {
	f := newFixture(t, product(1, "Mug", "10", 5))
	ctx := context.Background()
	v := f.create(t)

	_, err := f.svc.SetProduct(ctx, f.owner, v.ID, 0, 1)
	require.NoError(t, err)
	_, err = f.svc.SetQuantity(ctx, f.owner, v.ID, 0, 3)
	require.NoError(t, err)
	_, err = f.svc.AddRow(ctx, f.owner, v.ID)
	require.NoError(t, err)
	_, err = f.svc.SetProduct(ctx, f.owner, v.ID, 1, 1)
	require.NoError(t, err)

	v, err = f.svc.SetQuantity(ctx, f.owner, v.ID, 1, 4)
	require.NoError(t, err)
	assert.True(t, v.Clamped)
	assert.Equal(t, 2, v.Items[1].Quantity)
	assert.Equal(t, 0, v.Items[1].Available)
}

func TestSetQuantity_InvalidRow(t *testing.T) {
	f := newFixture(t)
	v := f.create(t)
	_, err := f.svc.SetQuantity(context.Background(), f.owner, v.ID, 7, 1)
	assert.ErrorIs(t, err, order.ErrInvalidRow)
}

func TestSetPrice_OverrideAndClear(t *testing.T) {
	f := newFixture(t, product(1, "Mug", "10", 5))
	ctx := context.Background()
	v := f.create(t)
	_, err := f.svc.SetProduct(ctx, f.owner, v.ID, 0, 1)
	require.NoError(t, err)

	zero := decimal.Zero
	v, err = f.svc.SetPrice(ctx, f.owner, v.ID, 0, &zero)
	require.NoError(t, err)
	assert.True(t, v.Items[0].PriceOverride)
	assert.True(t, v.Totals.Items.IsZero())

	v, err = f.svc.SetPrice(ctx, f.owner, v.ID, 0, nil)
	require.NoError(t, err)
	assert.False(t, v.Items[0].PriceOverride)
	assert.True(t, v.Totals.Items.Equal(dec("10")))
}

func TestMutationBroadcastsDraft(t *testing.T) {
	f := newFixture(t)
	v := f.create(t)
	_, err := f.svc.AddRow(context.Background(), f.owner, v.ID)
	require.NoError(t, err)

	require.Equal(t, 1, f.hub.count())
	assert.Equal(t, enum.EventDraftUpdated, f.hub.events[0].Type)
}

// =====================
// Payment
// =====================

func TestPaid_ReclampedWhenTotalDrops(t *testing.T) {
	f := newFixture(t, product(1, "Mug", "10", 5))
	ctx := context.Background()
	v := f.create(t)

	_, err := f.svc.SetProduct(ctx, f.owner, v.ID, 0, 1)
	require.NoError(t, err)
	_, err = f.svc.SetQuantity(ctx, f.owner, v.ID, 0, 4)
	require.NoError(t, err)
	_, err = f.svc.SetPaymentStatus(ctx, f.owner, v.ID, enum.PaymentStatusPartial)
	require.NoError(t, err)

	v, err = f.svc.SetPaid(ctx, f.owner, v.ID, dec("35"))
	require.NoError(t, err)
	assert.True(t, v.Totals.Paid.Equal(dec("35")))
	assert.True(t, v.Totals.Unpaid.Equal(dec("5")))

	v, err = f.svc.SetQuantity(ctx, f.owner, v.ID, 0, 2)
	require.NoError(t, err)
	assert.True(t, v.Totals.Paid.Equal(dec("20")), "paid %s", v.Totals.Paid)
	assert.True(t, v.Totals.Unpaid.IsZero())

	v, err = f.svc.SetUnpaid(ctx, f.owner, v.ID, dec("-3"))
	require.NoError(t, err)
	assert.True(t, v.Totals.Paid.Equal(dec("20")))
}

func TestPaymentStatus_LeavingPartialZeroesPaid(t *testing.T) {
	f := newFixture(t, product(1, "Mug", "10", 5))
	ctx := context.Background()
	v := f.create(t)
	_, err := f.svc.SetProduct(ctx, f.owner, v.ID, 0, 1)
	require.NoError(t, err)
	_, err = f.svc.SetPaymentStatus(ctx, f.owner, v.ID, enum.PaymentStatusPartial)
	require.NoError(t, err)
	_, err = f.svc.SetPaid(ctx, f.owner, v.ID, dec("4"))
	require.NoError(t, err)

	v, err = f.svc.SetPaymentStatus(ctx, f.owner, v.ID, enum.PaymentStatusPaid)
	require.NoError(t, err)
	assert.True(t, v.Totals.Paid.IsZero())

	_, err = f.svc.SetPaid(ctx, f.owner, v.ID, dec("4"))
	assert.ErrorIs(t, err, ErrNotPartialPaid)
}

func TestUpdatePayment_SavesNothingOnFailure(t *testing.T) {
	f := newFixture(t, product(1, "Mug", "10", 5))
	ctx := context.Background()
	v := f.create(t)
	_, err := f.svc.SetProduct(ctx, f.owner, v.ID, 0, 1)
	require.NoError(t, err)
	_, err = f.svc.SetQuantity(ctx, f.owner, v.ID, 0, 3)
	require.NoError(t, err)

	partial := enum.PaymentStatusPartial
	paid := dec("12")
	v, err = f.svc.UpdatePayment(ctx, f.owner, v.ID, PaymentUpdate{Status: &partial, Paid: &paid})
	require.NoError(t, err)
	assert.Equal(t, enum.PaymentStatusPartial, v.Details.PaymentStatus)
	assert.True(t, v.Totals.Paid.Equal(dec("12")))
	before := v.Version

	// Switching away from Partial Paid while sending an amount must fail as a
	// whole: the status change is not saved either.
	fullyPaid := enum.PaymentStatusPaid
	amount := dec("5")
	_, err = f.svc.UpdatePayment(ctx, f.owner, v.ID, PaymentUpdate{Status: &fullyPaid, Paid: &amount})
	require.ErrorIs(t, err, ErrNotPartialPaid)

	v, err = f.svc.Get(ctx, f.owner, v.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.PaymentStatusPartial, v.Details.PaymentStatus)
	assert.True(t, v.Totals.Paid.Equal(dec("12")), "paid %s", v.Totals.Paid)
	assert.Equal(t, before, v.Version)

	bogus := "Maybe"
	_, err = f.svc.UpdatePayment(ctx, f.owner, v.ID, PaymentUpdate{Status: &bogus, Paid: &amount})
	require.ErrorIs(t, err, order.ErrInvalidDetails)
	v, err = f.svc.Get(ctx, f.owner, v.ID)
	require.NoError(t, err)
	assert.True(t, v.Totals.Paid.Equal(dec("12")))
}

func TestUpdateDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t)

	blank, courier := "", enum.CourierDHL
	v, err := f.svc.UpdateDetails(ctx, f.owner, v.ID, DetailsPatch{CustomerName: &blank, Courier: &courier})
	require.NoError(t, err, "blank customer name is only rejected on submit")
	assert.Equal(t, enum.CourierDHL, v.Details.Courier)

	bad := "Sometimes"
	_, err = f.svc.UpdateDetails(ctx, f.owner, v.ID, DetailsPatch{PaymentStatus: &bad})
	assert.ErrorIs(t, err, order.ErrInvalidDetails)
}

// =====================
// Submit
// =====================

func TestSubmit_CreateSendsPayloadAndResets(t *testing.T) {
	f := newFixture(t, product(1, "Mug", "10", 5))
	ctx := context.Background()
	v := f.create(t)

	var got order.Payload
	f.api.createOrderFn = func(_ context.Context, p order.Payload) (json.RawMessage, error) {
		got = p
		return json.RawMessage(`{"id":42}`), nil
	}
	f.cat.next = []order.Product{product(1, "Mug", "10", 3)}

	name := "Ayesha"
	_, err := f.svc.UpdateDetails(ctx, f.owner, v.ID, DetailsPatch{CustomerName: &name})
	require.NoError(t, err)
	_, err = f.svc.SetProduct(ctx, f.owner, v.ID, 0, 1)
	require.NoError(t, err)
	_, err = f.svc.SetQuantity(ctx, f.owner, v.ID, 0, 2)
	require.NoError(t, err)

	res, err := f.svc.Submit(ctx, f.owner, v.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":42}`, string(res.Order))
	assert.Equal(t, "Mug x2", got.ProductTitle)
	require.Len(t, got.OrderItems, 1)
	assert.Equal(t, json.Number("10.00"), got.OrderItems[0].Price)

	assert.Equal(t, "", res.Draft.Details.CustomerName)
	require.Len(t, res.Draft.Items, 1)
	assert.Equal(t, int64(0), res.Draft.Items[0].ProductID)
	assert.Equal(t, 1, f.cat.loads)
	assert.Equal(t, []string{enum.EventProductsChanged, enum.EventOrdersChanged}, f.pub.types)
}

func TestSubmit_ValidationPreservesForm(t *testing.T) {
	f := newFixture(t, product(1, "Mug", "10", 5))
	ctx := context.Background()
	v := f.create(t)
	_, err := f.svc.SetProduct(ctx, f.owner, v.ID, 0, 1)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, f.owner, v.ID)
	assert.ErrorIs(t, err, order.ErrCustomerRequired)

	v, err = f.svc.Get(ctx, f.owner, v.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Items[0].ProductID)
}

func TestSubmit_ConflictIsStaleStock(t *testing.T) {
	f := newFixture(t, product(1, "Mug", "10", 5))
	ctx := context.Background()
	v := f.create(t)
	f.api.createOrderFn = func(context.Context, order.Payload) (json.RawMessage, error) {
		return nil, &apiclient.Error{Status: http.StatusConflict, Message: "insufficient stock"}
	}

	name := "Bilal"
	_, err := f.svc.UpdateDetails(ctx, f.owner, v.ID, DetailsPatch{CustomerName: &name})
	require.NoError(t, err)
	_, err = f.svc.SetProduct(ctx, f.owner, v.ID, 0, 1)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, f.owner, v.ID)
	assert.ErrorIs(t, err, ErrStaleStock)

	v, err = f.svc.Get(ctx, f.owner, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bilal", v.Details.CustomerName)
	assert.Empty(t, f.pub.types)
}

func TestSubmit_EditUsesUpdate(t *testing.T) {
	f := newFixture(t, product(1, "Mug", "10", 0))
	ctx := context.Background()
	v := f.create(t)
	f.api.getOrderFn = func(_ context.Context, id int64) (apiclient.Order, error) {
		pid := int64(1)
		return apiclient.Order{
			ID:           id,
			CustomerName: "Sana",
			Items:        []order.PersistedItem{{Name: "Mug", Quantity: 2, ProductID: &pid}},
		}, nil
	}
	f.api.startEditFn = func(context.Context, int64) error {
		f.cat.next = []order.Product{product(1, "Mug", "10", 2)}
		return nil
	}
	var updated int64
	var payload order.Payload
	f.api.updateOrderFn = func(_ context.Context, id int64, p order.Payload) (json.RawMessage, error) {
		updated, payload = id, p
		return json.RawMessage(`{}`), nil
	}

	_, err := f.svc.BeginEdit(ctx, f.owner, v.ID, 9)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, f.owner, v.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(9), updated)
	assert.True(t, payload.RestoredOnEdit)
	assert.Equal(t, "Sana", payload.CustomerName)
}

func TestSubmit_TransportErrorPreservesForm(t *testing.T) {
	f := newFixture(t, product(1, "Mug", "10", 5))
	ctx := context.Background()
	v := f.create(t)
	f.api.createOrderFn = func(context.Context, order.Payload) (json.RawMessage, error) {
		return nil, errors.New("connection refused")
	}
	name := "Hina"
	_, err := f.svc.UpdateDetails(ctx, f.owner, v.ID, DetailsPatch{CustomerName: &name})
	require.NoError(t, err)
	_, err = f.svc.SetProduct(ctx, f.owner, v.ID, 0, 1)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, f.owner, v.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStaleStock)

	v, err = f.svc.Get(ctx, f.owner, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hina", v.Details.CustomerName)
}

func TestCancel_ResetsToCreateMode(t *testing.T) {
	f := newFixture(t, product(1, "Mug", "10", 5))
	ctx := context.Background()
	v := f.create(t)
	_, err := f.svc.SetProduct(ctx, f.owner, v.ID, 0, 1)
	require.NoError(t, err)

	v, err = f.svc.Cancel(ctx, f.owner, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "create", v.Mode)
	assert.Equal(t, int64(0), v.Items[0].ProductID)
}
