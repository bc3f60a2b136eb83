package campaign

import (
	"context"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
)

// Repository contracts for the entities the delivery engine touches.
// Implementations must be safe for concurrent use. Counter mutation goes
// through IncrementStats/SetStats only; application code never reads a
// counter to write it back.

// CampaignRepo defines the data access contract for campaigns.
type CampaignRepo interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns matching the given filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign and returns its ID.
	Create(ctx context.Context, c *domain.Campaign) (string, error)

	// Update modifies a campaign. Only non-nil fields in the update are applied.
	Update(ctx context.Context, id string, u UpdateFields) error

	// Delete removes a campaign. Only draft/cancelled campaigns can be deleted.
	Delete(ctx context.Context, id string) error

	// UpdateStatus transitions a campaign's status. The transition is guarded
	// against the domain transition table at the storage layer; returns
	// ErrInvalidTransition if the campaign is not in an allowed source state.
	UpdateStatus(ctx context.Context, id string, to domain.CampaignStatus) error

	// IncrementStats atomically adds the given deltas to the campaign's
	// counters in a single update.
	IncrementStats(ctx context.Context, id string, deltas map[domain.StatsField]int64) error

	// SetStats atomically sets the given counters to absolute values.
	SetStats(ctx context.Context, id string, values map[domain.StatsField]int64) error

	// ListDue returns campaigns the scheduler should act on: scheduled
	// campaigns whose send time has arrived, and running campaigns left over
	// from an interrupted attempt.
	ListDue(ctx context.Context, now time.Time) ([]domain.Campaign, error)

	// DetachList removes a list reference from the target set of every
	// non-terminal campaign. Returns the number of campaigns touched.
	DetachList(ctx context.Context, listID string) (int, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

// UpdateFields holds the mutable fields for a campaign update.
// Nil fields are not applied.
type UpdateFields struct {
	Name          *string    `json:"name"`
	Subject       *string    `json:"subject"`
	FromEmail     *string    `json:"from_email"`
	BodyHTML      *string    `json:"body_html"`
	BodyPlain     *string    `json:"body_plain"`
	TemplateID    *string    `json:"template_id"`
	TargetListIDs *[]string  `json:"target_list_ids"`
	SendAt        *time.Time `json:"send_at"`
}

// SubscriberRepo reads subscriber state. The engine never mutates
// subscribers; that belongs to the subscriber-management collaborator.
type SubscriberRepo interface {
	// GetByID returns a subscriber or ErrSubscriberNotFound.
	GetByID(ctx context.Context, id string) (*domain.Subscriber, error)

	// GetByEmail looks up by normalized address.
	GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error)

	// ListEnabledByIDs filters the given IDs down to those whose global
	// status is enabled. Order of the result is unspecified.
	ListEnabledByIDs(ctx context.Context, ids []string) ([]string, error)
}

// SubscriptionRepo manages the subscriber/list join.
type SubscriptionRepo interface {
	// ListConfirmedSubscriberIDs returns one page of subscriber IDs with a
	// confirmed subscription on the list, plus the total count. Pages are
	// 1-based. Lists may be arbitrarily large; callers must paginate.
	ListConfirmedSubscriberIDs(ctx context.Context, listID string, page, perPage int) ([]string, int, error)

	// Upsert creates the subscription or updates its status if it exists.
	Upsert(ctx context.Context, s *domain.Subscription) error

	// UpdateStatus changes one subscription's status.
	UpdateStatus(ctx context.Context, subscriberID, listID string, status domain.SubscriptionStatus) error

	// DeleteByList removes all subscriptions for a list. Returns the count.
	DeleteByList(ctx context.Context, listID string) (int, error)
}

// ListRepo manages mailing lists.
type ListRepo interface {
	// Get returns a list or ErrListNotFound.
	Get(ctx context.Context, id string) (*domain.MailingList, error)
	Create(ctx context.Context, l *domain.MailingList) (string, error)
	Delete(ctx context.Context, id string) error
}

// TemplateRepo manages reusable templates and the one-default-per-type
// invariant.
type TemplateRepo interface {
	// Get returns a template or ErrTemplateNotFound.
	Get(ctx context.Context, id string) (*domain.Template, error)

	// GetDefault returns the default template for a type, or
	// ErrTemplateNotFound if none is set.
	GetDefault(ctx context.Context, t domain.TemplateType) (*domain.Template, error)

	Create(ctx context.Context, t *domain.Template) (string, error)
	Update(ctx context.Context, id string, t *domain.Template) error
	Delete(ctx context.Context, id string) error

	// SetDefault marks the template as the default for its type and unsets
	// the previous default in the same transaction. Returns ErrConflict if a
	// concurrent SetDefault races; callers retry with a bounded count.
	SetDefault(ctx context.Context, id string) error
}

// TrackingEventRepo stores raw engagement events. Events are append-only and
// processed exactly once by the aggregator; the claim column keeps concurrent
// aggregator runs from folding the same batch twice.
type TrackingEventRepo interface {
	// Insert appends an event. The boundary layer calls this; the engine
	// only consumes.
	Insert(ctx context.Context, e *domain.TrackingEvent) error

	// ClaimUnprocessed atomically claims up to limit unprocessed events for
	// the given claim ID and returns them. campaignID scopes the claim to one
	// campaign when non-empty. Events claimed by a live claimant are skipped.
	ClaimUnprocessed(ctx context.Context, campaignID, claimID string, limit int) ([]domain.TrackingEvent, error)

	// MarkProcessed sets the processed marker on exactly the given events.
	MarkProcessed(ctx context.Context, ids []string) error

	// ReleaseClaim clears the claim on any still-unprocessed events held by
	// claimID so a later run can pick them up.
	ReleaseClaim(ctx context.Context, claimID string) error
}

// LinkRepo manages canonical tracked URLs.
type LinkRepo interface {
	// GetOrCreate returns the link for a URL, creating it atomically on first
	// reference. Concurrent calls for the same URL observe one identity.
	GetOrCreate(ctx context.Context, url string) (*domain.Link, error)

	// Get returns a link by ID, or ErrLinkNotFound. The click redirect uses
	// this to recover the destination.
	Get(ctx context.Context, id string) (*domain.Link, error)
}

// ProgressRepo persists per-run send progress so an interrupted campaign can
// resume without re-sending to subscribers already attempted. A campaign has
// at most one active run.
type ProgressRepo interface {
	// StartRun opens a new active run for the campaign and returns its ID.
	StartRun(ctx context.Context, campaignID string) (string, error)

	// ActiveRun returns the campaign's active run ID, or "" if none.
	ActiveRun(ctx context.Context, campaignID string) (string, error)

	// MarkAttempted durably records subscriber IDs as attempted for the run.
	// Called before dispatch: delivery is at-least-once, resume must not
	// duplicate.
	MarkAttempted(ctx context.Context, runID string, subscriberIDs []string) error

	// ListAttempted returns the set of subscriber IDs already attempted.
	ListAttempted(ctx context.Context, runID string) (map[string]struct{}, error)

	// FinishRun closes the run.
	FinishRun(ctx context.Context, runID string) error
}
