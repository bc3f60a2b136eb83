package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// SubscriberRepo is an in-memory campaign.SubscriberRepo. The engine only
// reads subscribers; Put exists so tests and local tooling can seed state.
type SubscriberRepo struct {
	mu      sync.Mutex
	byID    map[string]*domain.Subscriber
	byEmail map[string]string
}

// NewSubscriberRepo creates an empty in-memory subscriber repository.
func NewSubscriberRepo() *SubscriberRepo {
	return &SubscriberRepo{
		byID:    make(map[string]*domain.Subscriber),
		byEmail: make(map[string]string),
	}
}

// Put inserts or replaces a subscriber.
func (r *SubscriberRepo) Put(s *domain.Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.Email = domain.NormalizeEmail(s.Email)
	cp := *s
	r.byID[cp.ID] = &cp
	r.byEmail[cp.Email] = cp.ID
}

func (r *SubscriberRepo) GetByID(_ context.Context, id string) (*domain.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, campaign.ErrSubscriberNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *SubscriberRepo) GetByEmail(_ context.Context, email string) (*domain.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, campaign.ErrSubscriberNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *SubscriberRepo) ListEnabledByIDs(_ context.Context, ids []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, id := range ids {
		if s, ok := r.byID[id]; ok && s.Status == domain.SubscriberEnabled {
			out = append(out, id)
		}
	}
	return out, nil
}

// ListRepo is an in-memory campaign.ListRepo.
type ListRepo struct {
	mu    sync.Mutex
	lists map[string]*domain.MailingList
}

// NewListRepo creates an empty in-memory list repository.
func NewListRepo() *ListRepo {
	return &ListRepo{lists: make(map[string]*domain.MailingList)}
}

func (r *ListRepo) Get(_ context.Context, id string) (*domain.MailingList, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lists[id]
	if !ok {
		return nil, campaign.ErrListNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *ListRepo) Create(_ context.Context, l *domain.MailingList) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	now := time.Now()
	cp := *l
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.lists[cp.ID] = &cp
	return cp.ID, nil
}

func (r *ListRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lists[id]; !ok {
		return campaign.ErrListNotFound
	}
	delete(r.lists, id)
	return nil
}

// SubscriptionRepo is an in-memory campaign.SubscriptionRepo. Subscriptions
// are kept in insertion order per list so pagination is stable.
type SubscriptionRepo struct {
	mu     sync.Mutex
	byList map[string][]*domain.Subscription
}

// NewSubscriptionRepo creates an empty in-memory subscription repository.
func NewSubscriptionRepo() *SubscriptionRepo {
	return &SubscriptionRepo{byList: make(map[string][]*domain.Subscription)}
}

func (r *SubscriptionRepo) ListConfirmedSubscriberIDs(_ context.Context, listID string, page, perPage int) ([]string, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var confirmed []string
	for _, s := range r.byList[listID] {
		if s.Status == domain.SubscriptionConfirmed {
			confirmed = append(confirmed, s.SubscriberID)
		}
	}
	total := len(confirmed)
	if page < 1 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= total {
		return nil, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return append([]string(nil), confirmed[start:end]...), total, nil
}

func (r *SubscriptionRepo) Upsert(_ context.Context, s *domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, existing := range r.byList[s.ListID] {
		if existing.SubscriberID == s.SubscriberID {
			existing.Status = s.Status
			existing.UpdatedAt = now
			return nil
		}
	}
	cp := *s
	cp.SubscribedAt = now
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.byList[s.ListID] = append(r.byList[s.ListID], &cp)
	return nil
}

func (r *SubscriptionRepo) UpdateStatus(_ context.Context, subscriberID, listID string, status domain.SubscriptionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byList[listID] {
		if s.SubscriberID == subscriberID {
			now := time.Now()
			s.Status = status
			s.UpdatedAt = now
			if status == domain.SubscriptionUnsubscribed {
				s.UnsubscribedAt = &now
			}
			return nil
		}
	}
	return campaign.ErrSubscriberNotFound
}

func (r *SubscriptionRepo) DeleteByList(_ context.Context, listID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.byList[listID])
	delete(r.byList, listID)
	return n, nil
}
