// Package handlers provides the deal property relay endpoint.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/loanops/dealbridge/internal/clients/hubspot"
)

// DealUpdater is the subset of the CRM client the relay needs.
type DealUpdater interface {
	UpdateDealProperties(ctx context.Context, dealID string, props map[string]string) error
}

// Handler forwards arbitrary deal property updates to the CRM verbatim.
type Handler struct {
	client DealUpdater
	log    zerolog.Logger
}

// NewHandler creates a new deals handler
func NewHandler(client DealUpdater, log zerolog.Logger) *Handler {
	return &Handler{
		client: client,
		log:    log.With().Str("handler", "deals").Logger(),
	}
}

// RegisterRoutes registers the deal relay routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/update-deal-rates", h.HandleUpdateDealRates)
}

type updateRequest struct {
	DealID     string            `json:"dealId"`
	Properties map[string]string `json:"properties"`
}

// HandleUpdateDealRates relays the property mapping to the CRM without
// interpreting it. Validation failures never reach upstream.
func (h *Handler) HandleUpdateDealRates(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DealID == "" {
		h.writeError(w, http.StatusBadRequest, "dealId is required")
		return
	}
	if len(req.Properties) == 0 {
		h.writeError(w, http.StatusBadRequest, "properties is required")
		return
	}

	if err := h.client.UpdateDealProperties(r.Context(), req.DealID, req.Properties); err != nil {
		h.log.Error().Err(err).Str("deal_id", req.DealID).Msg("Deal update relay failed")

		var apiErr *hubspot.APIError
		if errors.As(err, &apiErr) {
			h.writeError(w, apiErr.StatusCode, apiErr.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
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
