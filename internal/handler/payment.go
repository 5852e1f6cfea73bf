package handler

import "net/http"

// paymentCallbackRequest is the settlement report posted by the payment
// collaborator after an online payment attempt.
type paymentCallbackRequest struct {
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	Reference string `json:"reference"`
}

const (
	callbackStatusSuccess  = "SUCCESS"
	callbackStatusRejected = "REJECTED"
)

func (h *Handler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	var req paymentCallbackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	switch req.Status {
	case callbackStatusSuccess:
		o, err := h.engine.ConfirmOnlinePayment(r.Context(), req.OrderID, req.Reference)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toOrderResponse(o))
	case callbackStatusRejected:
		o, err := h.engine.RejectOnlinePayment(r.Context(), req.OrderID, req.Reference)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toOrderResponse(o))
	default:
		writeError(w, http.StatusBadRequest, "status must be SUCCESS or REJECTED")
	}
}
