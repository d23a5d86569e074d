package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/orderdesk/internal/service"
	"github.com/sirupsen/logrus"
)

// ReferenceServicer is satisfied by *service.ReferenceService.
type ReferenceServicer interface {
	List(ctx context.Context, kind string) ([]service.Label, error)
	Add(ctx context.Context, kind, name string) (service.Label, error)
}

// ReferenceHandler serves the order form dropdown lists.
type ReferenceHandler struct {
	svc ReferenceServicer
	log logrus.FieldLogger
}

func NewReferenceHandler(svc ReferenceServicer, log logrus.FieldLogger) *ReferenceHandler {
	return &ReferenceHandler{svc: svc, log: log.WithField("handler", "reference")}
}

// RegisterRoutes registers reference endpoints. Expected to be mounted at /reference.
func (h *ReferenceHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{kind}", h.List)
	r.Post("/{kind}", h.Add)
}

type addReferenceRequest struct {
	Name string `json:"name" validate:"required"`
}

// List handles GET /reference/{kind}.
func (h *ReferenceHandler) List(w http.ResponseWriter, r *http.Request) {
	values, err := h.svc.List(r.Context(), chi.URLParam(r, "kind"))
	if err != nil {
		writeServiceError(w, h.log, "list reference", err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

// Add handles POST /reference/{kind}.
func (h *ReferenceHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addReferenceRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	v, err := h.svc.Add(r.Context(), chi.URLParam(r, "kind"), req.Name)
	if err != nil {
		writeServiceError(w, h.log, "add reference", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]service.Label{"name": v})
}
