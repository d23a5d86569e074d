package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/orderdesk/internal/apiclient"
	"github.com/kiwari-pos/orderdesk/internal/enum"
	"github.com/kiwari-pos/orderdesk/internal/notify"
	"github.com/sirupsen/logrus"
)

// OrderSource defines the remote API methods needed by order handlers.
// Satisfied by *apiclient.Client.
type OrderSource interface {
	ListOrders(ctx context.Context) ([]apiclient.Order, error)
	DeleteOrder(ctx context.Context, id int64) (string, error)
}

// OrderHandler serves the persisted order list.
type OrderHandler struct {
	api       OrderSource
	publisher notify.Publisher
	log       logrus.FieldLogger
}

func NewOrderHandler(api OrderSource, pub notify.Publisher, log logrus.FieldLogger) *OrderHandler {
	if pub == nil {
		pub = notify.Nop{}
	}
	return &OrderHandler{api: api, publisher: pub, log: log.WithField("handler", "orders")}
}

// RegisterRoutes registers order endpoints. Expected to be mounted at /orders.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Delete("/{id}", h.Delete)
}

type orderListResponse struct {
	Orders []apiclient.Order `json:"orders"`
	Total  int               `json:"total"`
}

// List handles GET /orders?start_date=&end_date=&q=.
// Dates are YYYY-MM-DD and both bounds are inclusive.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := apiclient.Filter{Start: q.Get("start_date"), End: q.Get("end_date"), Query: q.Get("q")}
	for name, v := range map[string]string{"start_date": f.Start, "end_date": f.End} {
		if v == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+name+" format, use YYYY-MM-DD")
			return
		}
	}

	orders, err := h.api.ListOrders(r.Context())
	if err != nil {
		writeServiceError(w, h.log, "list orders", err)
		return
	}
	orders = f.Apply(orders)
	if orders == nil {
		orders = []apiclient.Order{}
	}
	writeJSON(w, http.StatusOK, orderListResponse{Orders: orders, Total: len(orders)})
}

// Delete handles DELETE /orders/{id}.
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	msg, err := h.api.DeleteOrder(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, "delete order", err)
		return
	}
	if msg == "" {
		msg = "Order deleted"
	}

	// Deleting an order returns its stock.
	for _, t := range []string{enum.EventOrdersChanged, enum.EventProductsChanged} {
		if err := h.publisher.Publish(r.Context(), notify.Event{Type: t}); err != nil {
			h.log.WithError(err).WithField("event", t).Warn("publish change event")
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}
