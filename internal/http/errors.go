// Package httpapi exposes the HTTP API layer of the service.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/order-checkout-service/internal/model"
	"github.com/fairyhunter13/order-checkout-service/internal/obs"
	"github.com/fairyhunter13/order-checkout-service/internal/store"
)

// jsonError represents a JSON error payload.
type jsonError struct {
	Error      string   `json:"error"`
	Details    string   `json:"details,omitempty"`
	Field      string   `json:"field,omitempty"`
	ProductRef string   `json:"product_ref,omitempty"`
	Missing    []string `json:"missing,omitempty"`
	Requested  *int64   `json:"requested,omitempty"`
	Available  *int64   `json:"available,omitempty"`
}

// WriteJSONError writes a JSON error payload with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, message, details string) {
	writeError(w, status, jsonError{Error: message, Details: details})
}

func writeError(w http.ResponseWriter, status int, body jsonError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeDomainError maps service and store errors to a status and error code.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve  *model.ValidationError
		ipe *model.InvalidProductError
		ise *model.InsufficientStockError
	)
	switch {
	case errors.Is(err, model.ErrEmptyCart):
		WriteJSONError(w, http.StatusBadRequest, "empty_cart", err.Error())
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, jsonError{Error: "validation_error", Details: err.Error(), Field: ve.Field})
	case errors.As(err, &ipe):
		writeError(w, http.StatusUnprocessableEntity, jsonError{
			Error:      "invalid_product",
			Details:    err.Error(),
			ProductRef: ipe.ProductRef,
			Missing:    ipe.Missing,
		})
	case errors.As(err, &ise):
		requested, available := ise.Requested, ise.Available
		writeError(w, http.StatusConflict, jsonError{
			Error:      "insufficient_stock",
			Details:    err.Error(),
			ProductRef: ise.ProductRef,
			Requested:  &requested,
			Available:  &available,
		})
	case errors.Is(err, model.ErrTransactionFailed):
		w.Header().Set("Retry-After", "1")
		WriteJSONError(w, http.StatusServiceUnavailable, "transaction_failed", "the order could not be committed; retry the request")
	case errors.Is(err, model.ErrAccessDenied):
		WriteJSONError(w, http.StatusForbidden, "access_denied", "")
	case errors.Is(err, model.ErrNotFound), errors.Is(err, store.ErrProductNotFound), errors.Is(err, store.ErrOrderNotFound):
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
	case errors.Is(err, store.ErrUnavailable):
		WriteJSONError(w, http.StatusServiceUnavailable, "store_unavailable", "")
	default:
		obs.Logger.Error("request_failed",
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err.Error(),
		)
		WriteJSONError(w, http.StatusInternalServerError, "internal_error", "")
	}
}
