// Package memory provides mutex-guarded in-memory implementations of the
// repository contracts in service/campaign. They back the engine's unit
// tests and local development; production uses repository/postgres.
package memory

import (
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// Repos bundles one of each in-memory repository.
type Repos struct {
	Campaigns     *CampaignRepo
	Subscribers   *SubscriberRepo
	Subscriptions *SubscriptionRepo
	Lists         *ListRepo
	Templates     *TemplateRepo
	Events        *TrackingEventRepo
	Links         *LinkRepo
	Progress      *ProgressRepo
}

// NewRepos creates a full set of empty in-memory repositories.
func NewRepos() *Repos {
	return &Repos{
		Campaigns:     NewCampaignRepo(),
		Subscribers:   NewSubscriberRepo(),
		Subscriptions: NewSubscriptionRepo(),
		Lists:         NewListRepo(),
		Templates:     NewTemplateRepo(),
		Events:        NewTrackingEventRepo(),
		Links:         NewLinkRepo(),
		Progress:      NewProgressRepo(),
	}
}

var _ campaign.CampaignRepo = (*CampaignRepo)(nil)
var _ campaign.SubscriberRepo = (*SubscriberRepo)(nil)
var _ campaign.SubscriptionRepo = (*SubscriptionRepo)(nil)
var _ campaign.ListRepo = (*ListRepo)(nil)
var _ campaign.TemplateRepo = (*TemplateRepo)(nil)
var _ campaign.TrackingEventRepo = (*TrackingEventRepo)(nil)
var _ campaign.LinkRepo = (*LinkRepo)(nil)
var _ campaign.ProgressRepo = (*ProgressRepo)(nil)
