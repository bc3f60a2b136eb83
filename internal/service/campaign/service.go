package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// setDefaultRetries bounds the CAS retry loop for SetDefaultTemplate.
const setDefaultRetries = 3

// Service implements campaign lifecycle business logic. All public methods
// are safe for concurrent use if the underlying repositories are.
type Service struct {
	campaigns     CampaignRepo
	templates     TemplateRepo
	lists         ListRepo
	subscriptions SubscriptionRepo
}

// NewService creates a campaign service backed by the given repositories.
func NewService(campaigns CampaignRepo, templates TemplateRepo, lists ListRepo, subscriptions SubscriptionRepo) *Service {
	return &Service{
		campaigns:     campaigns,
		templates:     templates,
		lists:         lists,
		subscriptions: subscriptions,
	}
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name          string     `json:"name"`
	Subject       string     `json:"subject"`
	FromEmail     string     `json:"from_email"`
	BodyHTML      string     `json:"body_html"`
	BodyPlain     string     `json:"body_plain"`
	ContentType   string     `json:"content_type"`
	TemplateID    string     `json:"template_id"`
	TargetListIDs []string   `json:"target_list_ids"`
	SendAt        *time.Time `json:"send_at"`
	Tags          []string   `json:"tags"`
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.campaigns.Get(ctx, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error) {
	return s.campaigns.List(ctx, f)
}

// Create validates and persists a new campaign in draft status. Template and
// target list references must resolve; a dangling reference at creation is a
// validation error, not a deferred failure.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Campaign, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if input.Subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrValidation)
	}

	contentType := domain.ContentType(input.ContentType)
	if contentType == "" {
		contentType = domain.ContentHTML
	}
	if contentType != domain.ContentHTML && contentType != domain.ContentPlain {
		return nil, fmt.Errorf("%w: unknown content type %q", ErrValidation, input.ContentType)
	}

	c := &domain.Campaign{
		ID:            uuid.New().String(),
		Name:          input.Name,
		Subject:       input.Subject,
		FromEmail:     input.FromEmail,
		BodyHTML:      input.BodyHTML,
		BodyPlain:     input.BodyPlain,
		ContentType:   contentType,
		TargetListIDs: input.TargetListIDs,
		SendAt:        input.SendAt,
		Status:        domain.CampaignDraft,
		Tags:          input.Tags,
	}

	if input.TemplateID != "" {
		if _, err := s.templates.Get(ctx, input.TemplateID); err != nil {
			if errors.Is(err, ErrTemplateNotFound) {
				return nil, fmt.Errorf("%w: template %s does not exist", ErrValidation, input.TemplateID)
			}
			return nil, err
		}
		c.TemplateID = &input.TemplateID
	}

	for _, listID := range input.TargetListIDs {
		if _, err := s.lists.Get(ctx, listID); err != nil {
			if errors.Is(err, ErrListNotFound) {
				return nil, fmt.Errorf("%w: list %s does not exist", ErrValidation, listID)
			}
			return nil, err
		}
	}

	id, err := s.campaigns.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ID = id
	return c, nil
}

// Update modifies mutable campaign fields.
func (s *Service) Update(ctx context.Context, id string, u UpdateFields) error {
	if u.TemplateID != nil && *u.TemplateID != "" {
		if _, err := s.templates.Get(ctx, *u.TemplateID); err != nil {
			if errors.Is(err, ErrTemplateNotFound) {
				return fmt.Errorf("%w: template %s does not exist", ErrValidation, *u.TemplateID)
			}
			return err
		}
	}
	return s.campaigns.Update(ctx, id, u)
}

// Delete removes a campaign (only draft/cancelled).
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.campaigns.Delete(ctx, id)
}

// Schedule moves a draft campaign to scheduled with a send time.
func (s *Service) Schedule(ctx context.Context, id string, at time.Time) error {
	sendAt := at
	if err := s.campaigns.Update(ctx, id, UpdateFields{SendAt: &sendAt}); err != nil {
		return err
	}
	return s.campaigns.UpdateStatus(ctx, id, domain.CampaignScheduled)
}

// Start transitions a campaign to running. This is the send trigger; the
// orchestrator picks the campaign up from there.
func (s *Service) Start(ctx context.Context, id string) error {
	return s.campaigns.UpdateStatus(ctx, id, domain.CampaignRunning)
}

// Pause halts dispatch of a running campaign. Batches already in flight
// complete; no new batches start.
func (s *Service) Pause(ctx context.Context, id string) error {
	return s.campaigns.UpdateStatus(ctx, id, domain.CampaignPaused)
}

// Resume returns a paused campaign to running.
func (s *Service) Resume(ctx context.Context, id string) error {
	return s.campaigns.UpdateStatus(ctx, id, domain.CampaignRunning)
}

// Cancel terminates a running or paused campaign.
func (s *Service) Cancel(ctx context.Context, id string) error {
	return s.campaigns.UpdateStatus(ctx, id, domain.CampaignCancelled)
}

// SetDefaultTemplate marks a template as the default for its type, retrying
// the compare-and-set a bounded number of times if concurrent callers race.
func (s *Service) SetDefaultTemplate(ctx context.Context, id string) error {
	var err error
	for attempt := 0; attempt < setDefaultRetries; attempt++ {
		err = s.templates.SetDefault(ctx, id)
		if !errors.Is(err, ErrConflict) {
			return err
		}
		logger.Warn("set default template conflict, retrying",
			"template_id", id, "attempt", attempt+1)
	}
	return err
}

// CleanupList is invoked synchronously by the list-deletion collaborator:
// it removes the list's subscriptions, detaches the list from non-terminal
// campaign target sets, and deletes the list itself. Leaving orphaned
// references behind is not acceptable, so failures abort the deletion.
func (s *Service) CleanupList(ctx context.Context, listID string) error {
	if _, err := s.lists.Get(ctx, listID); err != nil {
		return err
	}

	removed, err := s.subscriptions.DeleteByList(ctx, listID)
	if err != nil {
		return fmt.Errorf("delete subscriptions for list %s: %w", listID, err)
	}

	detached, err := s.campaigns.DetachList(ctx, listID)
	if err != nil {
		return fmt.Errorf("detach list %s from campaigns: %w", listID, err)
	}

	if err := s.lists.Delete(ctx, listID); err != nil {
		return fmt.Errorf("delete list %s: %w", listID, err)
	}

	logger.Info("list cleaned up",
		"list_id", listID, "subscriptions_removed", removed, "campaigns_detached", detached)
	return nil
}
