// Package handler exposes the fulfilment engine over JSON HTTP. Handlers
// translate wire requests into engine calls and map typed domain errors onto
// status codes; no business rules live here.
package handler

import (
	"net/http"

	"github.com/canteenhq/mealpass/internal/domain/order"
	"github.com/canteenhq/mealpass/internal/domain/readiness"
	"github.com/canteenhq/mealpass/internal/domain/serving"
)

// Handler wires the HTTP surface to the domain services.
type Handler struct {
	engine      *order.Engine
	coordinator *serving.Coordinator
	projector   *readiness.Projector
	orders      order.Repository
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	engine *order.Engine,
	coordinator *serving.Coordinator,
	projector *readiness.Projector,
	orders order.Repository,
) *Handler {
	return &Handler{
		engine:      engine,
		coordinator: coordinator,
		projector:   projector,
		orders:      orders,
	}
}

// Register attaches all API routes to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/order", h.createOrder)
	mux.HandleFunc("GET /api/order/{id}", h.getOrder)
	mux.HandleFunc("POST /api/order/{id}/confirm", h.confirmCashPayment)
	mux.HandleFunc("POST /api/order/{id}/reject", h.rejectCashPayment)
	mux.HandleFunc("POST /api/payment/callback", h.paymentCallback)
	mux.HandleFunc("POST /api/redeem", h.redeem)
	mux.HandleFunc("POST /api/serve", h.serve)
	mux.HandleFunc("GET /api/readiness/redeemable", h.redeemable)
	mux.HandleFunc("GET /api/readiness/owed", h.owed)
}
