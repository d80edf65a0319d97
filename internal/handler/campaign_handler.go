// internal/handler/campaign_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/unclebandit/newsletter-engine/internal/service"
)

// CampaignHandler serves the read-only detail view used by operators.
type CampaignHandler struct {
	Service *service.CampaignService
}

// GetCampaignHandlerWithStats returns a campaign with its run count and
// delivery outcome histogram.
func (h *CampaignHandler) GetCampaignHandlerWithStats(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	details, err := h.Service.GetCampaignDetailsWithStats(id)
	if err != nil {
		http.Error(w, "failed to fetch campaign: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(details)
}
