package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/campaign-engine/internal/domain"
)

// TrackingEventRepo is an in-memory campaign.TrackingEventRepo. Events are
// kept in insertion order; the claims map mirrors the claim column the
// Postgres implementation uses to fence concurrent aggregator runs.
type TrackingEventRepo struct {
	mu     sync.Mutex
	events []*domain.TrackingEvent
	claims map[string]string // event ID -> claim ID
}

// NewTrackingEventRepo creates an empty in-memory event store.
func NewTrackingEventRepo() *TrackingEventRepo {
	return &TrackingEventRepo{claims: make(map[string]string)}
}

func (r *TrackingEventRepo) Insert(_ context.Context, e *domain.TrackingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.events = append(r.events, &cp)
	e.ID = cp.ID
	return nil
}

func (r *TrackingEventRepo) ClaimUnprocessed(_ context.Context, campaignID, claimID string, limit int) ([]domain.TrackingEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TrackingEvent
	for _, e := range r.events {
		if limit > 0 && len(out) >= limit {
			break
		}
		if e.Processed() {
			continue
		}
		if campaignID != "" && e.CampaignID != campaignID {
			continue
		}
		if holder, held := r.claims[e.ID]; held && holder != claimID {
			continue
		}
		r.claims[e.ID] = claimID
		out = append(out, *e)
	}
	return out, nil
}

func (r *TrackingEventRepo) MarkProcessed(_ context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	now := time.Now()
	for _, e := range r.events {
		if _, ok := want[e.ID]; !ok {
			continue
		}
		if e.ProcessedAt == nil {
			t := now
			e.ProcessedAt = &t
		}
		delete(r.claims, e.ID)
	}
	return nil
}

func (r *TrackingEventRepo) ReleaseClaim(_ context.Context, claimID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, holder := range r.claims {
		if holder == claimID {
			delete(r.claims, id)
		}
	}
	return nil
}

// UnprocessedCount reports how many events have not been folded yet.
// Test helper.
func (r *TrackingEventRepo) UnprocessedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if !e.Processed() {
			n++
		}
	}
	return n
}
