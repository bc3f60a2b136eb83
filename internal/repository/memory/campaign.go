package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// CampaignRepo is an in-memory campaign.CampaignRepo.
type CampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
}

// NewCampaignRepo creates an empty in-memory campaign repository.
func NewCampaignRepo() *CampaignRepo {
	return &CampaignRepo{campaigns: make(map[string]*domain.Campaign)}
}

func copyCampaign(c *domain.Campaign) *domain.Campaign {
	cp := *c
	cp.TargetListIDs = append([]string(nil), c.TargetListIDs...)
	cp.Tags = append([]string(nil), c.Tags...)
	return &cp
}

func (r *CampaignRepo) Get(_ context.Context, id string) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	return copyCampaign(c), nil
}

func (r *CampaignRepo) List(_ context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Campaign
	for _, c := range r.campaigns {
		if f.Status != "" && string(c.Status) != f.Status {
			continue
		}
		out = append(out, *copyCampaign(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if f.Offset >= len(out) {
		return nil, total, nil
	}
	end := f.Offset + f.Limit
	if f.Limit <= 0 || end > len(out) {
		end = len(out)
	}
	return out[f.Offset:end], total, nil
}

func (r *CampaignRepo) Create(_ context.Context, c *domain.Campaign) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now()
	cp := copyCampaign(c)
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.campaigns[cp.ID] = cp
	return cp.ID, nil
}

func (r *CampaignRepo) Update(_ context.Context, id string, u campaign.UpdateFields) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.Subject != nil {
		c.Subject = *u.Subject
	}
	if u.FromEmail != nil {
		c.FromEmail = *u.FromEmail
	}
	if u.BodyHTML != nil {
		c.BodyHTML = *u.BodyHTML
	}
	if u.BodyPlain != nil {
		c.BodyPlain = *u.BodyPlain
	}
	if u.TemplateID != nil {
		if *u.TemplateID == "" {
			c.TemplateID = nil
		} else {
			tid := *u.TemplateID
			c.TemplateID = &tid
		}
	}
	if u.TargetListIDs != nil {
		c.TargetListIDs = append([]string(nil), (*u.TargetListIDs)...)
	}
	if u.SendAt != nil {
		at := *u.SendAt
		c.SendAt = &at
	}
	c.UpdatedAt = time.Now()
	return nil
}

func (r *CampaignRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignCancelled {
		return campaign.ErrInvalidTransition
	}
	delete(r.campaigns, id)
	return nil
}

func (r *CampaignRepo) UpdateStatus(_ context.Context, id string, to domain.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	if !domain.CanTransition(c.Status, to) {
		return campaign.ErrInvalidTransition
	}
	now := time.Now()
	c.Status = to
	c.UpdatedAt = now
	switch to {
	case domain.CampaignRunning:
		if c.StartedAt == nil {
			c.StartedAt = &now
		}
	case domain.CampaignFinished, domain.CampaignCancelled:
		c.FinishedAt = &now
	}
	return nil
}

func (r *CampaignRepo) IncrementStats(_ context.Context, id string, deltas map[domain.StatsField]int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	applyStats(&c.Stats, deltas, true)
	c.UpdatedAt = time.Now()
	return nil
}

func (r *CampaignRepo) SetStats(_ context.Context, id string, values map[domain.StatsField]int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	applyStats(&c.Stats, values, false)
	c.UpdatedAt = time.Now()
	return nil
}

func applyStats(s *domain.CampaignStats, m map[domain.StatsField]int64, increment bool) {
	for field, v := range m {
		var target *int64
		switch field {
		case domain.StatsToSend:
			target = &s.ToSend
		case domain.StatsSent:
			target = &s.Sent
		case domain.StatsFailed:
			target = &s.Failed
		case domain.StatsViews:
			target = &s.Views
		case domain.StatsClicks:
			target = &s.Clicks
		case domain.StatsBounces:
			target = &s.Bounces
		case domain.StatsUnsubscribes:
			target = &s.Unsubscribes
		default:
			continue
		}
		if increment {
			*target += v
		} else {
			*target = v
		}
	}
}

func (r *CampaignRepo) ListDue(_ context.Context, now time.Time) ([]domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Campaign
	for _, c := range r.campaigns {
		switch {
		case c.Status == domain.CampaignScheduled && c.SendAt != nil && !c.SendAt.After(now):
			out = append(out, *copyCampaign(c))
		case c.Status == domain.CampaignRunning:
			out = append(out, *copyCampaign(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *CampaignRepo) DetachList(_ context.Context, listID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	touched := 0
	for _, c := range r.campaigns {
		if c.IsTerminal() {
			continue
		}
		kept := c.TargetListIDs[:0]
		removed := false
		for _, id := range c.TargetListIDs {
			if id == listID {
				removed = true
				continue
			}
			kept = append(kept, id)
		}
		if removed {
			c.TargetListIDs = kept
			c.UpdatedAt = time.Now()
			touched++
		}
	}
	return touched, nil
}
