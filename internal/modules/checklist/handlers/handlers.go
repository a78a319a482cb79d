// Package handlers provides HTTP handlers for the collateral checklist.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/loanops/dealbridge/internal/clients/hubspot"
	"github.com/loanops/dealbridge/internal/modules/checklist"
)

// Handler handles checklist HTTP requests
type Handler struct {
	service *checklist.Service
	log     zerolog.Logger
}

// NewHandler creates a new checklist handler
func NewHandler(service *checklist.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "checklist").Logger(),
	}
}

// HandleGet returns the saved checklist for a deal, or {} when none exists.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	dealID := r.URL.Query().Get("dealId")
	if dealID == "" {
		h.writeError(w, http.StatusBadRequest, "dealId is required")
		return
	}

	result, err := h.service.Load(r.Context(), dealID)
	if err != nil {
		h.log.Error().Err(err).Str("deal_id", dealID).Msg("Checklist load failed")
		h.writeUpstreamError(w, err)
		return
	}

	if result.Empty {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{})
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type saveRequest struct {
	DealID         string            `json:"dealId"`
	CollateralType *string           `json:"collateralType"`
	ItemStatuses   map[string]string `json:"itemStatuses"`
	MarkComplete   bool              `json:"markComplete"`
}

// HandleSave persists checklist state into the deal's properties.
func (h *Handler) HandleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DealID == "" {
		h.writeError(w, http.StatusBadRequest, "dealId is required")
		return
	}

	result, err := h.service.Save(r.Context(), req.DealID, req.CollateralType, req.ItemStatuses, req.MarkComplete)
	if err != nil {
		h.log.Error().Err(err).Str("deal_id", req.DealID).Msg("Checklist save failed")
		h.writeUpstreamError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// writeUpstreamError passes through the CRM's status code when the failure
// was a structured API rejection, and falls back to 500 otherwise.
func (h *Handler) writeUpstreamError(w http.ResponseWriter, err error) {
	var apiErr *hubspot.APIError
	if errors.As(err, &apiErr) {
		h.writeError(w, apiErr.StatusCode, apiErr.Error())
		return
	}
	h.writeError(w, http.StatusInternalServerError, err.Error())
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
