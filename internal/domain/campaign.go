package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCancelled CampaignStatus = "cancelled"
	CampaignFinished  CampaignStatus = "finished"
)

// ContentType identifies the body format of a campaign.
type ContentType string

const (
	ContentHTML  ContentType = "html"
	ContentPlain ContentType = "plain"
)

// campaignTransitions is the allowed status transition table. A send attempt
// is triggered by the transition into running.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignDraft:     {CampaignScheduled, CampaignRunning},
	CampaignScheduled: {CampaignDraft, CampaignRunning},
	CampaignRunning:   {CampaignPaused, CampaignCancelled, CampaignFinished},
	CampaignPaused:    {CampaignRunning, CampaignCancelled},
}

// CanTransition reports whether a campaign in status from may move to status to.
func CanTransition(from, to CampaignStatus) bool {
	for _, t := range campaignTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// TransitionSources returns the statuses from which a campaign may enter to.
// Repositories use this to guard status updates at the storage layer.
func TransitionSources(to CampaignStatus) []CampaignStatus {
	var sources []CampaignStatus
	for from, targets := range campaignTransitions {
		for _, t := range targets {
			if t == to {
				sources = append(sources, from)
			}
		}
	}
	return sources
}

// StatsField names a single counter in a campaign's stats aggregate.
// Repositories accept these in typed increment/set maps so application code
// never does a read-modify-write on counters.
type StatsField string

const (
	StatsToSend       StatsField = "to_send"
	StatsSent         StatsField = "sent"
	StatsFailed       StatsField = "failed"
	StatsViews        StatsField = "views"
	StatsClicks       StatsField = "clicks"
	StatsBounces      StatsField = "bounces"
	StatsUnsubscribes StatsField = "unsubscribes"
)

// CampaignStats holds the delivery and engagement counters for a campaign.
// All fields except ToSend are monotonically non-decreasing; ToSend is set
// once per send attempt. The stats row is the only shared state mutated by
// concurrent batch workers, always via atomic increments.
type CampaignStats struct {
	ToSend       int64 `json:"to_send" db:"to_send"`
	Sent         int64 `json:"sent" db:"sent"`
	Failed       int64 `json:"failed" db:"failed"`
	Views        int64 `json:"views" db:"views"`
	Clicks       int64 `json:"clicks" db:"clicks"`
	Bounces      int64 `json:"bounces" db:"bounces"`
	Unsubscribes int64 `json:"unsubscribes" db:"unsubscribes"`
}

// Campaign represents a single email send job with content, audience,
// schedule, and lifecycle status.
type Campaign struct {
	ID            string         `json:"id" db:"id"`
	Name          string         `json:"name" db:"name"`
	Subject       string         `json:"subject" db:"subject"`
	FromEmail     string         `json:"from_email" db:"from_email"`
	BodyHTML      string         `json:"body_html" db:"body_html"`
	BodyPlain     string         `json:"body_plain" db:"body_plain"`
	ContentType   ContentType    `json:"content_type" db:"content_type"`
	TemplateID    *string        `json:"template_id" db:"template_id"`
	TargetListIDs []string       `json:"target_list_ids" db:"target_list_ids"`
	SendAt        *time.Time     `json:"send_at" db:"send_at"`
	Status        CampaignStatus `json:"status" db:"status"`
	Tags          []string       `json:"tags" db:"tags"`

	Stats CampaignStats `json:"stats"`

	StartedAt  *time.Time `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at" db:"finished_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignFinished || c.Status == CampaignCancelled
}
