package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// TemplateRepo is an in-memory campaign.TemplateRepo. The single mutex makes
// SetDefault naturally atomic, so the at-most-one-default invariant holds
// under concurrent callers without a conflict path.
type TemplateRepo struct {
	mu        sync.Mutex
	templates map[string]*domain.Template
}

// NewTemplateRepo creates an empty in-memory template repository.
func NewTemplateRepo() *TemplateRepo {
	return &TemplateRepo{templates: make(map[string]*domain.Template)}
}

func (r *TemplateRepo) Get(_ context.Context, id string) (*domain.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, campaign.ErrTemplateNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *TemplateRepo) GetDefault(_ context.Context, typ domain.TemplateType) (*domain.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.templates {
		if t.Type == typ && t.IsDefault {
			cp := *t
			return &cp, nil
		}
	}
	return nil, campaign.ErrTemplateNotFound
}

func (r *TemplateRepo) Create(_ context.Context, t *domain.Template) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now()
	cp := *t
	cp.CreatedAt = now
	cp.UpdatedAt = now
	if cp.IsDefault {
		r.unsetDefaultLocked(cp.Type, cp.ID)
	}
	r.templates[cp.ID] = &cp
	return cp.ID, nil
}

func (r *TemplateRepo) Update(_ context.Context, id string, t *domain.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.templates[id]
	if !ok {
		return campaign.ErrTemplateNotFound
	}
	existing.Name = t.Name
	existing.Subject = t.Subject
	existing.BodyHTML = t.BodyHTML
	if t.IsDefault && !existing.IsDefault {
		r.unsetDefaultLocked(existing.Type, id)
		existing.IsDefault = true
	}
	existing.UpdatedAt = time.Now()
	return nil
}

func (r *TemplateRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[id]; !ok {
		return campaign.ErrTemplateNotFound
	}
	delete(r.templates, id)
	return nil
}

func (r *TemplateRepo) SetDefault(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok {
		return campaign.ErrTemplateNotFound
	}
	r.unsetDefaultLocked(t.Type, id)
	t.IsDefault = true
	t.UpdatedAt = time.Now()
	return nil
}

func (r *TemplateRepo) unsetDefaultLocked(typ domain.TemplateType, except string) {
	for _, t := range r.templates {
		if t.Type == typ && t.IsDefault && t.ID != except {
			t.IsDefault = false
			t.UpdatedAt = time.Now()
		}
	}
}

// DefaultCount returns how many templates of a type are marked default.
// Test helper for the invariant.
func (r *TemplateRepo) DefaultCount(typ domain.TemplateType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.templates {
		if t.Type == typ && t.IsDefault {
			n++
		}
	}
	return n
}

// LinkRepo is an in-memory campaign.LinkRepo.
type LinkRepo struct {
	mu    sync.Mutex
	byURL map[string]*domain.Link
	byID  map[string]*domain.Link
}

// NewLinkRepo creates an empty in-memory link repository.
func NewLinkRepo() *LinkRepo {
	return &LinkRepo{
		byURL: make(map[string]*domain.Link),
		byID:  make(map[string]*domain.Link),
	}
}

func (r *LinkRepo) GetOrCreate(_ context.Context, url string) (*domain.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.byURL[url]; ok {
		cp := *l
		return &cp, nil
	}
	l := &domain.Link{ID: uuid.New().String(), URL: url, CreatedAt: time.Now()}
	r.byURL[url] = l
	r.byID[l.ID] = l
	cp := *l
	return &cp, nil
}

func (r *LinkRepo) Get(_ context.Context, id string) (*domain.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.byID[id]
	if !ok {
		return nil, campaign.ErrLinkNotFound
	}
	cp := *l
	return &cp, nil
}

// Count returns the number of distinct links. Test helper.
func (r *LinkRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byURL)
}
