package domain

import "time"

// TrackingEventType enumerates the engagement events the aggregator folds
// into campaign stats.
type TrackingEventType string

const (
	EventView        TrackingEventType = "view"
	EventClick       TrackingEventType = "click"
	EventBounce      TrackingEventType = "bounce"
	EventUnsubscribe TrackingEventType = "unsubscribe"
)

// StatsFieldFor maps an event type to the campaign counter it increments.
// Unknown types map to an empty field and are skipped by the aggregator.
func StatsFieldFor(t TrackingEventType) StatsField {
	switch t {
	case EventView:
		return StatsViews
	case EventClick:
		return StatsClicks
	case EventBounce:
		return StatsBounces
	case EventUnsubscribe:
		return StatsUnsubscribes
	}
	return ""
}

// TrackingEvent is an immutable record of recipient interaction, written by
// the tracking boundary and folded into campaign stats exactly once. The
// processed marker, not recomputation, is what makes aggregation idempotent.
type TrackingEvent struct {
	ID           string            `json:"id" db:"id"`
	Type         TrackingEventType `json:"type" db:"event_type"`
	CampaignID   string            `json:"campaign_id" db:"campaign_id"`
	SubscriberID string            `json:"subscriber_id" db:"subscriber_id"`
	LinkID       *string           `json:"link_id" db:"link_id"`
	UserAgent    string            `json:"user_agent" db:"user_agent"`
	IPAddress    string            `json:"ip_address" db:"ip_address"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	ProcessedAt  *time.Time        `json:"processed_at" db:"processed_at"`
}

// Processed reports whether the event has already been folded into stats.
func (e *TrackingEvent) Processed() bool { return e.ProcessedAt != nil }

// Link is a canonical tracked URL with a stable identity. Links are created
// lazily on first reference during rendering and immutable thereafter.
type Link struct {
	ID        string    `json:"id" db:"id"`
	URL       string    `json:"url" db:"url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
