package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"printmill/internal/auth"
	"printmill/internal/design"
	"printmill/internal/render"
	"printmill/internal/sse"
	"printmill/internal/utils"
)

type Handler struct {
	DesignService *design.Service
	Orchestrator  *render.Orchestrator
	Emitter       *sse.DesignEventEmitter
}

type createDesignRequest struct {
	TemplateID     string                 `json:"template_id"`
	Name           string                 `json:"name,omitempty"`
	Params         map[string]interface{} `json:"params"`
	ParentDesignID string                 `json:"parent_design_id,omitempty"`
}

func (h *Handler) CreateDesign(w http.ResponseWriter, r *http.Request) {
	var req createDesignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	d, err := h.DesignService.CreateDesign(r.Context(), auth.UserID(r.Context()),
		req.TemplateID, req.Name, req.Params, req.ParentDesignID)
	if err != nil {
		writeDesignError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(utils.SuccessResponse("design created", d))
}

func (h *Handler) GetDesign(w http.ResponseWriter, r *http.Request) {
	d, err := h.DesignService.GetDesign(r.Context(), chi.URLParam(r, "designId"))
	if err != nil || d.UserID != auth.UserID(r.Context()) {
		http.Error(w, "Design not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(d)
}

func (h *Handler) ListDesigns(w http.ResponseWriter, r *http.Request) {
	designs, err := h.DesignService.ListDesigns(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		http.Error(w, "Could not list designs: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(designs)
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.DesignService.ListTemplates(r.Context())
	if err != nil {
		http.Error(w, "Could not list templates: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(templates)
}

func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.DesignService.GetTemplate(r.Context(), chi.URLParam(r, "templateId"))
	if err != nil {
		http.Error(w, "Template not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tmpl)
}

// SubmitRender queues a render job for the design. Resubmitting the same
// design content returns the existing job instead of a new one.
func (h *Handler) SubmitRender(w http.ResponseWriter, r *http.Request) {
	designID := chi.URLParam(r, "designId")

	d, err := h.DesignService.GetDesign(r.Context(), designID)
	if err != nil || d.UserID != auth.UserID(r.Context()) {
		http.Error(w, "Design not found", http.StatusNotFound)
		return
	}

	job, err := h.Orchestrator.Submit(r.Context(), designID)
	if err != nil {
		switch {
		case errors.Is(err, render.ErrExhaustedRetries):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, render.ErrDesignNotRenderable):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, "Could not submit render: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(utils.SuccessResponse("render submitted", job))
}

// CancelRender cancels a queued or running job. Completion wins the race.
func (h *Handler) CancelRender(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	job, err := h.Orchestrator.Cancel(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, render.ErrJobNotFound) {
			http.Error(w, "Render job not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Could not cancel render: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(utils.SuccessResponse("render job", job))
}

// StreamEvents serves the SSE feed of the caller's design status changes.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	h.Emitter.ServeUserStream(w, r, auth.UserID(r.Context()))
}

func writeDesignError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, design.ErrInvalidParams),
		errors.Is(err, design.ErrInvalidLineage),
		errors.Is(err, design.ErrTemplateInactive):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, design.ErrTemplateNotFound),
		errors.Is(err, design.ErrDesignNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, "Could not process design: "+err.Error(), http.StatusInternalServerError)
	}
}
