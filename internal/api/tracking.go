package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// 1x1 transparent GIF served for open tracking.
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// HandleTrackOpen records a view event and serves the pixel. The pixel is
// served even when the signature fails so broken URLs never render inside
// a recipient's mail client.
func (h *Handlers) HandleTrackOpen(w http.ResponseWriter, r *http.Request) {
	data, sig := chi.URLParam(r, "data"), chi.URLParam(r, "sig")
	payload, ok := h.verifier.Verify(data, sig)
	if ok {
		parts := strings.Split(payload, "|")
		if len(parts) == 2 {
			h.recordEvent(r, domain.EventView, parts[0], parts[1], nil)
		}
	}
	servePixel(w)
}

// HandleTrackClick records a click event and redirects to the original URL.
func (h *Handlers) HandleTrackClick(w http.ResponseWriter, r *http.Request) {
	data, sig := chi.URLParam(r, "data"), chi.URLParam(r, "sig")
	payload, ok := h.verifier.Verify(data, sig)
	if !ok {
		respondError(w, http.StatusNotFound, "invalid tracking link")
		return
	}
	parts := strings.Split(payload, "|")
	if len(parts) != 3 {
		respondError(w, http.StatusNotFound, "invalid tracking link")
		return
	}
	campaignID, subscriberID, linkID := parts[0], parts[1], parts[2]

	link, err := h.links.Get(r.Context(), linkID)
	if err != nil {
		respondError(w, http.StatusNotFound, "link not found")
		return
	}

	h.recordEvent(r, domain.EventClick, campaignID, subscriberID, &linkID)
	http.Redirect(w, r, link.URL, http.StatusFound)
}

// HandleUnsubscribe records an unsubscribe event and marks the recipient's
// subscriptions to the campaign's target lists as unsubscribed.
func (h *Handlers) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	data, sig := chi.URLParam(r, "data"), chi.URLParam(r, "sig")
	payload, ok := h.verifier.Verify(data, sig)
	if !ok {
		respondError(w, http.StatusNotFound, "invalid unsubscribe link")
		return
	}
	parts := strings.Split(payload, "|")
	if len(parts) != 2 {
		respondError(w, http.StatusNotFound, "invalid unsubscribe link")
		return
	}
	campaignID, subscriberID := parts[0], parts[1]

	c, err := h.campaigns.Get(r.Context(), campaignID)
	if err != nil {
		respondError(w, http.StatusNotFound, "campaign not found")
		return
	}
	for _, listID := range c.TargetListIDs {
		if err := h.subscriptions.UpdateStatus(r.Context(), subscriberID, listID, domain.SubscriptionUnsubscribed); err != nil {
			logger.Warn("unsubscribe update failed", "list_id", listID, "error", err)
		}
	}
	h.recordEvent(r, domain.EventUnsubscribe, campaignID, subscriberID, nil)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><p>You have been unsubscribed.</p></body></html>")
}

// HandleView renders the campaign in the browser for one recipient.
func (h *Handlers) HandleView(w http.ResponseWriter, r *http.Request) {
	data, sig := chi.URLParam(r, "data"), chi.URLParam(r, "sig")
	payload, ok := h.verifier.Verify(data, sig)
	if !ok {
		respondError(w, http.StatusNotFound, "invalid view link")
		return
	}
	parts := strings.Split(payload, "|")
	if len(parts) != 2 {
		respondError(w, http.StatusNotFound, "invalid view link")
		return
	}
	campaignID, subscriberID := parts[0], parts[1]

	c, err := h.campaigns.Get(r.Context(), campaignID)
	if err != nil {
		respondError(w, http.StatusNotFound, "campaign not found")
		return
	}
	sub, err := h.subscribers.GetByID(r.Context(), subscriberID)
	if err != nil {
		respondError(w, http.StatusNotFound, "subscriber not found")
		return
	}
	var tpl *domain.Template
	if c.TemplateID != nil {
		tpl, err = h.templates.Get(r.Context(), *c.TemplateID)
		if err != nil {
			if !errors.Is(err, campaign.ErrTemplateNotFound) {
				respondError(w, http.StatusInternalServerError, "template load failed")
				return
			}
			tpl = nil
		}
	}
	msg, err := h.rend.Render(r.Context(), c, tpl, sub)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "render failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, msg.BodyHTML)
}

func (h *Handlers) recordEvent(r *http.Request, t domain.TrackingEventType, campaignID, subscriberID string, linkID *string) {
	e := &domain.TrackingEvent{
		ID:           uuid.NewString(),
		Type:         t,
		CampaignID:   campaignID,
		SubscriberID: subscriberID,
		LinkID:       linkID,
		UserAgent:    r.UserAgent(),
		IPAddress:    r.RemoteAddr,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.events.Insert(r.Context(), e); err != nil {
		logger.Warn("tracking event insert failed", "type", string(t), "campaign_id", campaignID, "error", err)
	}
}

func servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(trackingPixel)
}
