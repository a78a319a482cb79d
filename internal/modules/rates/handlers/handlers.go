// Package handlers provides HTTP handlers for the rates endpoint.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/loanops/dealbridge/internal/modules/rates"
)

// Handler handles rate snapshot HTTP requests
type Handler struct {
	service *rates.Service
	log     zerolog.Logger
}

// NewHandler creates a new rates handler
func NewHandler(service *rates.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "rates").Logger(),
	}
}

// RegisterRoutes registers the rates routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/rates", h.HandleGetRates)
}

// HandleGetRates returns a live snapshot of the four benchmark series.
// Any upstream failure fails the whole response; there is no partial
// snapshot.
func (h *Handler) HandleGetRates(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Fetch(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Rate fetch failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
