package handler

import "net/http"

type serveRequest struct {
	OrderID  string `json:"order_id"`
	ItemID   string `json:"item_id"`
	ServerID string `json:"server_id"`
}

type serveResponse struct {
	OrderID   string `json:"order_id"`
	ItemID    string `json:"item_id"`
	ServedQty int    `json:"served_qty"`
	Remaining int    `json:"remaining"`
	Completed bool   `json:"completed"`
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	var req serveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OrderID == "" || req.ItemID == "" {
		writeError(w, http.StatusBadRequest, "order_id and item_id are required")
		return
	}

	res, err := h.coordinator.ServeUnit(r.Context(), req.OrderID, req.ItemID, req.ServerID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, serveResponse{
		OrderID:   res.Order.ID,
		ItemID:    res.ItemID,
		ServedQty: res.ServedQty,
		Remaining: res.Remaining,
		Completed: res.Completed,
	})
}
