package handler

import (
	"net/http"

	"github.com/canteenhq/mealpass/internal/domain/readiness"
)

type redeemableOrder struct {
	OrderID   string `json:"order_id"`
	HolderID  string `json:"holder_id"`
	SiteID    string `json:"site_id"`
	Total     string `json:"total"`
	CreatedAt string `json:"created_at"`
}

func (h *Handler) redeemable(w http.ResponseWriter, r *http.Request) {
	orders, err := h.projector.Redeemable(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]redeemableOrder, len(orders))
	for i, o := range orders {
		out[i] = redeemableOrder{
			OrderID:   o.ID,
			HolderID:  o.HolderID,
			SiteID:    o.SiteID,
			Total:     o.Total.StringFixed(2),
			CreatedAt: o.CreatedAt.UTC().Format(timeFormat),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type owedItem struct {
	OrderID   string `json:"order_id"`
	HolderID  string `json:"holder_id"`
	SiteID    string `json:"site_id"`
	ItemID    string `json:"item_id"`
	Name      string `json:"name"`
	Remaining int    `json:"remaining"`
}

func (h *Handler) owed(w http.ResponseWriter, r *http.Request) {
	items, err := h.projector.Owed(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOwedItems(items))
}

func toOwedItems(items []readiness.OwedItem) []owedItem {
	out := make([]owedItem, len(items))
	for i, it := range items {
		out[i] = owedItem{
			OrderID:   it.OrderID,
			HolderID:  it.HolderID,
			SiteID:    it.SiteID,
			ItemID:    it.ItemID,
			Name:      it.Name,
			Remaining: it.Remaining,
		}
	}
	return out
}
