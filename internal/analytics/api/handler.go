package api

import (
	"encoding/json"
	"net/http"

	"printmill/internal/analytics"
	"printmill/internal/auth"
	"printmill/internal/utils"
)

// Handler serves order analytics over HTTP
type Handler struct {
	Service *analytics.Service
}

// GetOrderAnalytics returns aggregated order metrics for the caller
func (h *Handler) GetOrderAnalytics(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.GetOrderAnalytics(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(utils.ErrorResponse("could not compute analytics", err.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(utils.SuccessResponse("order analytics", result))
}
