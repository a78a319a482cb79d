package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the checklist routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/collateral-checklist", h.HandleGet)
	r.Post("/collateral-checklist", h.HandleSave)
}
