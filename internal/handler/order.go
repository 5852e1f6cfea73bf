package handler

import (
	"net/http"

	"github.com/canteenhq/mealpass/internal/domain/order"
)

type createOrderRequest struct {
	HolderID string             `json:"holder_id"`
	SiteID   string             `json:"site_id"`
	Method   string             `json:"method"`
	Items    []orderItemRequest `json:"items"`
}

type orderItemRequest struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type orderResponse struct {
	ID          string       `json:"id"`
	HolderID    string       `json:"holder_id"`
	SiteID      string       `json:"site_id"`
	Method      string       `json:"method"`
	Payment     string       `json:"payment_status"`
	Lifecycle   string       `json:"lifecycle"`
	Redemption  string       `json:"redemption"`
	Items       []order.Item `json:"items"`
	Total       string       `json:"total"`
	Token       string       `json:"token,omitempty"`
	ApprovedBy  string       `json:"approved_by,omitempty"`
	RejectedBy  string       `json:"rejected_by,omitempty"`
	PaymentRef  string       `json:"payment_ref,omitempty"`
	RedeemedAt  string       `json:"redeemed_at,omitempty"`
	CompletedAt string       `json:"completed_at,omitempty"`
	CreatedAt   string       `json:"created_at"`
}

func toOrderResponse(o *order.Order) orderResponse {
	resp := orderResponse{
		ID:          o.ID,
		HolderID:    o.HolderID,
		SiteID:      o.SiteID,
		Method:      string(o.Method),
		Payment:     string(o.Payment),
		Lifecycle:   string(o.Lifecycle),
		Redemption:  string(o.Redemption),
		Items:       o.Items,
		Total:       o.Total.StringFixed(2),
		ApprovedBy:  o.ApprovedBy,
		RejectedBy:  o.RejectedBy,
		PaymentRef:  o.PaymentRef,
		RedeemedAt:  formatTime(o.RedeemedAt),
		CompletedAt: formatTime(o.CompletedAt),
		CreatedAt:   o.CreatedAt.UTC().Format(timeFormat),
	}
	if o.Token != nil {
		resp.Token = o.Token.Value
	}
	return resp
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.HolderID == "" || req.SiteID == "" {
		writeError(w, http.StatusBadRequest, "holder_id and site_id are required")
		return
	}

	items := make([]order.ItemRequest, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.ItemRequest{ItemID: it.ItemID, Quantity: it.Quantity}
	}

	o, err := h.engine.CreateOrder(r.Context(), order.CreateRequest{
		HolderID: req.HolderID,
		SiteID:   req.SiteID,
		Method:   order.PaymentMethod(req.Method),
		Items:    items,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type cashResolutionRequest struct {
	Approver string `json:"approver"`
}

func (h *Handler) confirmCashPayment(w http.ResponseWriter, r *http.Request) {
	var req cashResolutionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Approver == "" {
		writeError(w, http.StatusBadRequest, "approver is required")
		return
	}

	o, err := h.engine.ConfirmCashPayment(r.Context(), r.PathValue("id"), req.Approver)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) rejectCashPayment(w http.ResponseWriter, r *http.Request) {
	var req cashResolutionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Approver == "" {
		writeError(w, http.StatusBadRequest, "approver is required")
		return
	}

	o, err := h.engine.RejectCashPayment(r.Context(), r.PathValue("id"), req.Approver)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
