package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/orderdesk/internal/apiclient"
	"github.com/kiwari-pos/orderdesk/internal/order"
	"github.com/sirupsen/logrus"
)

// ProductCatalog defines the catalog methods needed by product and alert
// handlers. Satisfied by *catalog.Cache.
type ProductCatalog interface {
	Load(ctx context.Context) ([]order.Product, error)
	Snapshot() *order.Index
	LoadedAt() time.Time
	LowStock(threshold int) []order.Product
	Search(query string, limit int) []order.Product
}

// ProductHandler serves the cached product catalog.
type ProductHandler struct {
	catalog ProductCatalog
	log     logrus.FieldLogger
}

func NewProductHandler(cat ProductCatalog, log logrus.FieldLogger) *ProductHandler {
	return &ProductHandler{catalog: cat, log: log.WithField("handler", "products")}
}

// RegisterRoutes registers product endpoints. Expected to be mounted at /products.
func (h *ProductHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/refresh", h.Refresh)
}

type productListResponse struct {
	Products []order.Product `json:"products"`
	LoadedAt *time.Time      `json:"loaded_at"`
}

func (h *ProductHandler) list(products []order.Product) productListResponse {
	resp := productListResponse{Products: products}
	if resp.Products == nil {
		resp.Products = []order.Product{}
	}
	if at := h.catalog.LoadedAt(); !at.IsZero() {
		resp.LoadedAt = &at
	}
	return resp
}

// List handles GET /products. Optional ?q= narrows and ranks the list for the
// product picker; ?limit= caps it.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	writeJSON(w, http.StatusOK, h.list(h.catalog.Search(r.URL.Query().Get("q"), limit)))
}

// Refresh handles POST /products/refresh. A failed refresh keeps serving the
// previous snapshot.
func (h *ProductHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if _, err := h.catalog.Load(r.Context()); err != nil {
		writeServiceError(w, h.log, "refresh catalog", err)
		return
	}
	writeJSON(w, http.StatusOK, h.list(h.catalog.Snapshot().Products()))
}

// AlertHandler reports stock and payment problems.
type AlertHandler struct {
	catalog     ProductCatalog
	orders      OrderSource
	lowStock    int
	unpaidAfter time.Duration
	now         func() time.Time
	log         logrus.FieldLogger
}

func NewAlertHandler(cat ProductCatalog, orders OrderSource, lowStock, unpaidDays int, log logrus.FieldLogger) *AlertHandler {
	return &AlertHandler{
		catalog:     cat,
		orders:      orders,
		lowStock:    lowStock,
		unpaidAfter: time.Duration(unpaidDays) * 24 * time.Hour,
		now:         time.Now,
		log:         log.WithField("handler", "alerts"),
	}
}

type alertsResponse struct {
	LowStock      []order.Product   `json:"low_stock"`
	UnpaidOrders  []apiclient.Order `json:"unpaid_orders"`
	Threshold     int               `json:"low_stock_threshold"`
	OrdersMissing bool              `json:"orders_unavailable,omitempty"`
}

// List handles GET /alerts. Low stock comes from the cache, so the response
// still carries it when the order list cannot be fetched.
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	resp := alertsResponse{
		LowStock:     h.catalog.LowStock(h.lowStock),
		UnpaidOrders: []apiclient.Order{},
		Threshold:    h.lowStock,
	}
	if resp.LowStock == nil {
		resp.LowStock = []order.Product{}
	}

	orders, err := h.orders.ListOrders(r.Context())
	if err != nil {
		h.log.WithError(err).Warn("list orders for alerts")
		resp.OrdersMissing = true
	} else if unpaid := apiclient.UnpaidOlderThan(orders, h.unpaidAfter, h.now()); unpaid != nil {
		resp.UnpaidOrders = unpaid
	}
	writeJSON(w, http.StatusOK, resp)
}
