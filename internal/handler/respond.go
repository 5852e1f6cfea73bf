package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/canteenhq/mealpass/internal/domain/order"
	"github.com/canteenhq/mealpass/internal/domain/token"
)

// errorResponse is the error envelope shared by every endpoint.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Code: status, Message: msg})
}

// writeDomainError maps typed domain errors onto HTTP statuses. Unclassified
// errors become a 500 and are logged with the request context.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		umErr *order.UnknownMethodError
		iqErr *order.InvalidQuantityError
		uiErr *order.UnknownItemError
		niErr *order.ItemNotInOrderError
	)

	switch {
	case errors.Is(err, order.ErrEmptyItems), errors.As(err, &umErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &iqErr), errors.As(err, &uiErr), errors.Is(err, order.ErrZeroTotal):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &niErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, token.ErrInvalid):
		writeError(w, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, token.ErrExpired):
		writeError(w, http.StatusGone, "token expired")
	case errors.Is(err, order.ErrAlreadyProcessed),
		errors.Is(err, order.ErrNotCashOrder),
		errors.Is(err, order.ErrNotPrepaidOrder),
		errors.Is(err, order.ErrAlreadyUsed),
		errors.Is(err, order.ErrNotActive),
		errors.Is(err, order.ErrNotRedeemed),
		errors.Is(err, order.ErrAlreadyCompleted),
		errors.Is(err, order.ErrPaymentNotVerified),
		errors.Is(err, order.ErrFullyServed):
		writeError(w, http.StatusConflict, err.Error())
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

const timeFormat = time.RFC3339

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(timeFormat)
}
