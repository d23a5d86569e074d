package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kiwari-pos/orderdesk/internal/middleware"
	"github.com/kiwari-pos/orderdesk/internal/service"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var validate = validator.New()

// DraftServicer defines the service methods needed by draft handlers.
// Satisfied by *service.DraftService; narrow interface for testability.
type DraftServicer interface {
	Create(ctx context.Context, owner uuid.UUID) (service.View, error)
	Get(ctx context.Context, owner, id uuid.UUID) (service.View, error)
	List(ctx context.Context, owner uuid.UUID) ([]service.View, error)
	Delete(ctx context.Context, owner, id uuid.UUID) error
	Cancel(ctx context.Context, owner, id uuid.UUID) (service.View, error)
	AddRow(ctx context.Context, owner, id uuid.UUID) (service.View, error)
	RemoveRow(ctx context.Context, owner, id uuid.UUID, row int) (service.View, error)
	SetProduct(ctx context.Context, owner, id uuid.UUID, row int, productID int64) (service.View, error)
	SetQuantity(ctx context.Context, owner, id uuid.UUID, row, qty int) (service.View, error)
	SetPrice(ctx context.Context, owner, id uuid.UUID, row int, price *decimal.Decimal) (service.View, error)
	UpdateDetails(ctx context.Context, owner, id uuid.UUID, patch service.DetailsPatch) (service.View, error)
	UpdatePayment(ctx context.Context, owner, id uuid.UUID, u service.PaymentUpdate) (service.View, error)
	BeginEdit(ctx context.Context, owner, id uuid.UUID, orderID int64) (service.View, error)
	Submit(ctx context.Context, owner, id uuid.UUID) (service.SubmitResult, error)
}

// DraftHandler handles order form endpoints.
type DraftHandler struct {
	svc DraftServicer
	log logrus.FieldLogger
}

func NewDraftHandler(svc DraftServicer, log logrus.FieldLogger) *DraftHandler {
	return &DraftHandler{svc: svc, log: log.WithField("handler", "drafts")}
}

// RegisterRoutes registers draft endpoints. Expected to be mounted at /drafts.
func (h *DraftHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Delete)
		r.Patch("/details", h.UpdateDetails)
		r.Put("/payment", h.UpdatePayment)
		r.Post("/items", h.AddRow)
		r.Delete("/items/{idx}", h.RemoveRow)
		r.Put("/items/{idx}/product", h.SetProduct)
		r.Put("/items/{idx}/quantity", h.SetQuantity)
		r.Put("/items/{idx}/price", h.SetPrice)
		r.Post("/edit", h.BeginEdit)
		r.Post("/submit", h.Submit)
		r.Post("/cancel", h.Cancel)
	})
}

// --- Request types ---

type setProductRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// setPriceRequest clears the override when price is null.
type setPriceRequest struct {
	Price *decimal.Decimal `json:"price"`
}

type paymentRequest struct {
	PaymentStatus *string          `json:"payment_status"`
	Paid          *decimal.Decimal `json:"paid"`
	Unpaid        *decimal.Decimal `json:"unpaid"`
}

type beginEditRequest struct {
	OrderID int64 `json:"order_id" validate:"required,gt=0"`
}

// --- Handlers ---

// Create handles POST /drafts.
func (h *DraftHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Create(r.Context(), owner)
	if err != nil {
		writeServiceError(w, h.log, "create draft", err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// List handles GET /drafts.
func (h *DraftHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	views, err := h.svc.List(r.Context(), owner)
	if err != nil {
		writeServiceError(w, h.log, "list drafts", err)
		return
	}
	if views == nil {
		views = []service.View{}
	}
	writeJSON(w, http.StatusOK, views)
}

// Get handles GET /drafts/{id}.
func (h *DraftHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.target(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Get(r.Context(), owner, id)
	h.respond(w, "get draft", v, err)
}

// Delete handles DELETE /drafts/{id}.
func (h *DraftHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.target(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), owner, id); err != nil {
		writeServiceError(w, h.log, "delete draft", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Cancel handles POST /drafts/{id}/cancel.
func (h *DraftHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.target(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Cancel(r.Context(), owner, id)
	h.respond(w, "cancel draft", v, err)
}

// UpdateDetails handles PATCH /drafts/{id}/details.
func (h *DraftHandler) UpdateDetails(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var patch service.DetailsPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	v, err := h.svc.UpdateDetails(r.Context(), owner, id, patch)
	h.respond(w, "update details", v, err)
}

// UpdatePayment handles PUT /drafts/{id}/payment. The status and amount are
// saved together or not at all.
func (h *DraftHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PaymentStatus == nil && req.Paid == nil && req.Unpaid == nil {
		writeError(w, http.StatusBadRequest, "payment_status, paid or unpaid is required")
		return
	}
	if req.Paid != nil && req.Unpaid != nil {
		writeError(w, http.StatusBadRequest, "send either paid or unpaid, not both")
		return
	}

	v, err := h.svc.UpdatePayment(r.Context(), owner, id, service.PaymentUpdate{
		Status: req.PaymentStatus,
		Paid:   req.Paid,
		Unpaid: req.Unpaid,
	})
	h.respond(w, "update payment", v, err)
}

// AddRow handles POST /drafts/{id}/items.
func (h *DraftHandler) AddRow(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.target(w, r)
	if !ok {
		return
	}
	v, err := h.svc.AddRow(r.Context(), owner, id)
	h.respond(w, "add row", v, err)
}

// RemoveRow handles DELETE /drafts/{id}/items/{idx}.
func (h *DraftHandler) RemoveRow(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.target(w, r)
	if !ok {
		return
	}
	row, ok := rowParam(w, r)
	if !ok {
		return
	}
	v, err := h.svc.RemoveRow(r.Context(), owner, id, row)
	h.respond(w, "remove row", v, err)
}

// SetProduct handles PUT /drafts/{id}/items/{idx}/product.
func (h *DraftHandler) SetProduct(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.target(w, r)
	if !ok {
		return
	}
	row, ok := rowParam(w, r)
	if !ok {
		return
	}
	var req setProductRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	v, err := h.svc.SetProduct(r.Context(), owner, id, row, req.ProductID)
	h.respond(w, "set product", v, err)
}

// SetQuantity handles PUT /drafts/{id}/items/{idx}/quantity.
func (h *DraftHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.target(w, r)
	if !ok {
		return
	}
	row, ok := rowParam(w, r)
	if !ok {
		return
	}
	var req setQuantityRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	v, err := h.svc.SetQuantity(r.Context(), owner, id, row, *req.Quantity)
	h.respond(w, "set quantity", v, err)
}

// SetPrice handles PUT /drafts/{id}/items/{idx}/price.
func (h *DraftHandler) SetPrice(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.target(w, r)
	if !ok {
		return
	}
	row, ok := rowParam(w, r)
	if !ok {
		return
	}
	var req setPriceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	v, err := h.svc.SetPrice(r.Context(), owner, id, row, req.Price)
	h.respond(w, "set price", v, err)
}

// BeginEdit handles POST /drafts/{id}/edit.
func (h *DraftHandler) BeginEdit(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req beginEditRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	v, err := h.svc.BeginEdit(r.Context(), owner, id, req.OrderID)
	h.respond(w, "begin edit", v, err)
}

// Submit handles POST /drafts/{id}/submit.
func (h *DraftHandler) Submit(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.target(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Submit(r.Context(), owner, id)
	if err != nil {
		writeServiceError(w, h.log, "submit draft", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Helpers ---

func (h *DraftHandler) owner(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return uuid.Nil, false
	}
	return claims.UserID, true
}

func (h *DraftHandler) target(w http.ResponseWriter, r *http.Request) (owner, id uuid.UUID, ok bool) {
	owner, ok = h.owner(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid draft ID")
		return uuid.Nil, uuid.Nil, false
	}
	return owner, id, true
}

func (h *DraftHandler) respond(w http.ResponseWriter, op string, v service.View, err error) {
	if err != nil {
		writeServiceError(w, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func rowParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	row, err := strconv.Atoi(chi.URLParam(r, "idx"))
	if err != nil || row < 0 {
		writeError(w, http.StatusBadRequest, "invalid row index")
		return 0, false
	}
	return row, true
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := decodeJSON(r, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}
