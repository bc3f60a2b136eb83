package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-engine/internal/renderer"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// Handlers carries the dependencies of the HTTP surface.
type Handlers struct {
	svc           *campaign.Service
	campaigns     campaign.CampaignRepo
	subscribers   campaign.SubscriberRepo
	subscriptions campaign.SubscriptionRepo
	templates     campaign.TemplateRepo
	events        campaign.TrackingEventRepo
	links         campaign.LinkRepo
	verifier      SignatureVerifier
	rend          *renderer.Renderer
}

// SignatureVerifier checks a tracking URL signature and returns the signed
// payload. Satisfied by renderer.URLSigner.
type SignatureVerifier interface {
	Verify(encoded, signature string) (string, bool)
}

// HandlerDeps bundles the dependencies of the HTTP surface.
type HandlerDeps struct {
	Service       *campaign.Service
	Campaigns     campaign.CampaignRepo
	Subscribers   campaign.SubscriberRepo
	Subscriptions campaign.SubscriptionRepo
	Templates     campaign.TemplateRepo
	Events        campaign.TrackingEventRepo
	Links         campaign.LinkRepo
	Verifier      SignatureVerifier
	Renderer      *renderer.Renderer
}

// NewHandlers wires the HTTP handlers.
func NewHandlers(d HandlerDeps) *Handlers {
	return &Handlers{
		svc:           d.Service,
		campaigns:     d.Campaigns,
		subscribers:   d.Subscribers,
		subscriptions: d.Subscriptions,
		templates:     d.Templates,
		events:        d.Events,
		links:         d.Links,
		verifier:      d.Verifier,
		rend:          d.Renderer,
	}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.List(r.Context(), campaign.ListFilter{
		Status: q.Get("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaigns": items,
		"total":     total,
	})
}

func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var input campaign.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c, err := h.svc.Create(r.Context(), input)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var u campaign.UpdateFields
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.svc.Update(r.Context(), id, u); err != nil {
		respondServiceError(w, err)
		return
	}
	// drop the cached parsed body so the next render picks up the edit
	h.rend.Invalidate(id)
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Delete(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	h.rend.Invalidate(id)
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// CampaignStats returns just the counters, cheap enough for dashboards to
// poll.
func (h *Handlers) CampaignStats(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c.Stats)
}

func (h *Handlers) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SendAt time.Time `json:"send_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SendAt.IsZero() {
		respondError(w, http.StatusBadRequest, "send_at is required")
		return
	}
	if err := h.svc.Schedule(r.Context(), chi.URLParam(r, "id"), body.SendAt); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "scheduled"})
}

func (h *Handlers) StartCampaign(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Start, "running")
}

func (h *Handlers) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Pause, "paused")
}

func (h *Handlers) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Resume, "running")
}

func (h *Handlers) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Cancel, "cancelled")
}

func (h *Handlers) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) error, status string) {
	if err := fn(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (h *Handlers) SetDefaultTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.SetDefaultTemplate(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "default set"})
}

func (h *Handlers) DeleteList(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CleanupList(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, campaign.ErrNotFound),
		errors.Is(err, campaign.ErrTemplateNotFound),
		errors.Is(err, campaign.ErrListNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, campaign.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
