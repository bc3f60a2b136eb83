package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

type run struct {
	campaignID string
	active     bool
	attempted  map[string]struct{}
}

// ProgressRepo is an in-memory campaign.ProgressRepo.
type ProgressRepo struct {
	mu   sync.Mutex
	runs map[string]*run
}

// NewProgressRepo creates an empty in-memory progress store.
func NewProgressRepo() *ProgressRepo {
	return &ProgressRepo{runs: make(map[string]*run)}
}

func (r *ProgressRepo) StartRun(_ context.Context, campaignID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New().String()
	r.runs[id] = &run{campaignID: campaignID, active: true, attempted: make(map[string]struct{})}
	return id, nil
}

func (r *ProgressRepo) ActiveRun(_ context.Context, campaignID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rn := range r.runs {
		if rn.campaignID == campaignID && rn.active {
			return id, nil
		}
	}
	return "", nil
}

func (r *ProgressRepo) MarkAttempted(_ context.Context, runID string, subscriberIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rn, ok := r.runs[runID]
	if !ok {
		return campaign.ErrRunNotFound
	}
	for _, id := range subscriberIDs {
		rn.attempted[id] = struct{}{}
	}
	return nil
}

func (r *ProgressRepo) ListAttempted(_ context.Context, runID string) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rn, ok := r.runs[runID]
	if !ok {
		return nil, campaign.ErrRunNotFound
	}
	out := make(map[string]struct{}, len(rn.attempted))
	for id := range rn.attempted {
		out[id] = struct{}{}
	}
	return out, nil
}

func (r *ProgressRepo) FinishRun(_ context.Context, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rn, ok := r.runs[runID]
	if !ok {
		return campaign.ErrRunNotFound
	}
	rn.active = false
	return nil
}
