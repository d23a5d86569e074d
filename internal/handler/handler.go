package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kiwari-pos/orderdesk/internal/apiclient"
	"github.com/kiwari-pos/orderdesk/internal/order"
	"github.com/kiwari-pos/orderdesk/internal/service"
	"github.com/kiwari-pos/orderdesk/internal/store"
	"github.com/sirupsen/logrus"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

// writeServiceError maps domain errors to HTTP statuses. Anything unexpected
// is logged and reported as a 500 or, for upstream failures, a 502.
func writeServiceError(w http.ResponseWriter, log logrus.FieldLogger, op string, err error) {
	switch {
	case errors.Is(err, service.ErrDraftNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrExceedsStock), errors.Is(err, order.ErrOutOfStock):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, order.ErrNoItems),
		errors.Is(err, order.ErrCustomerRequired),
		errors.Is(err, order.ErrInvalidDetails),
		errors.Is(err, order.ErrInvalidRow),
		errors.Is(err, service.ErrNotPartialPaid),
		errors.Is(err, service.ErrReferenceEmpty):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrStaleStock):
		writeError(w, http.StatusConflict, service.ErrStaleStock.Error())
	case errors.Is(err, service.ErrEditInProgress),
		errors.Is(err, service.ErrReferenceExists),
		errors.Is(err, store.ErrVersionConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrReferenceUnknown):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrReferenceFixed):
		writeError(w, http.StatusMethodNotAllowed, err.Error())
	case errors.Is(err, service.ErrRestoreFailed):
		log.WithError(err).Warn(op)
		writeError(w, http.StatusBadGateway, service.ErrRestoreFailed.Error())
	case apiclient.StatusOf(err) == http.StatusNotFound:
		writeError(w, http.StatusNotFound, "not found")
	case apiclient.StatusOf(err) != 0:
		log.WithError(err).Warn(op)
		writeError(w, http.StatusBadGateway, "upstream request failed")
	default:
		log.WithError(err).Error(op)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
