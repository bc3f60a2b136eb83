package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/distlock"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

const (
	// DefaultAggregateBatch is how many events one aggregation pass claims.
	DefaultAggregateBatch = 5000

	aggregateLockKey = "stats-aggregate"
	aggregateLockTTL = 5 * time.Minute
)

// Aggregator folds unprocessed tracking events into campaign counters.
// Each pass claims a batch under a unique claim ID, applies one increment
// per campaign, and marks the batch processed. Events are never folded
// twice: the processed marker is authoritative, the claim fences
// concurrent passes, and a failed increment releases the claim so the next
// pass retries the batch.
type Aggregator struct {
	campaigns campaign.CampaignRepo
	events    campaign.TrackingEventRepo
	locks     distlock.Factory

	batchSize int
}

// NewAggregator wires an Aggregator with the default batch size.
func NewAggregator(campaigns campaign.CampaignRepo, events campaign.TrackingEventRepo, locks distlock.Factory) *Aggregator {
	return &Aggregator{
		campaigns: campaigns,
		events:    events,
		locks:     locks,
		batchSize: DefaultAggregateBatch,
	}
}

// SetBatchSize overrides the per-pass claim size. Values below 1 are ignored.
func (a *Aggregator) SetBatchSize(n int) {
	if n >= 1 {
		a.batchSize = n
	}
}

// RunOnce performs one aggregation pass over all campaigns. Returns the
// number of events folded. A pass that loses the lock is a no-op.
func (a *Aggregator) RunOnce(ctx context.Context) (int, error) {
	return a.run(ctx, "")
}

// RunForCampaign folds only one campaign's pending events, used on demand
// when fresh stats are needed for a single campaign.
func (a *Aggregator) RunForCampaign(ctx context.Context, campaignID string) (int, error) {
	return a.run(ctx, campaignID)
}

func (a *Aggregator) run(ctx context.Context, campaignID string) (int, error) {
	key := aggregateLockKey
	if campaignID != "" {
		key += ":" + campaignID
	}
	lock := a.locks(key, aggregateLockTTL)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire aggregate lock: %w", err)
	}
	if !ok {
		return 0, nil
	}
	defer func() {
		if relErr := lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			logger.Warn("release aggregate lock failed", "error", relErr.Error())
		}
	}()

	total := 0
	for {
		n, err := a.processBatch(ctx, campaignID)
		if err != nil {
			return total, err
		}
		total += n
		if n < a.batchSize {
			break
		}
	}
	if total > 0 {
		logger.Info("tracking events aggregated", "events", total, "campaign_id", campaignID)
	}
	return total, nil
}

func (a *Aggregator) processBatch(ctx context.Context, campaignID string) (int, error) {
	claimID := uuid.New().String()
	events, err := a.events.ClaimUnprocessed(ctx, campaignID, claimID, a.batchSize)
	if err != nil {
		return 0, fmt.Errorf("claim tracking events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	// one increment per campaign, not per event
	type perCampaign struct {
		deltas map[domain.StatsField]int64
		ids    []string
	}
	grouped := make(map[string]*perCampaign)
	var skipped []string
	for _, e := range events {
		field := domain.StatsFieldFor(e.Type)
		if field == "" {
			logger.Warn("skipping event of unknown type", "event_id", e.ID, "type", string(e.Type))
			skipped = append(skipped, e.ID)
			continue
		}
		g := grouped[e.CampaignID]
		if g == nil {
			g = &perCampaign{deltas: make(map[domain.StatsField]int64)}
			grouped[e.CampaignID] = g
		}
		g.deltas[field]++
		g.ids = append(g.ids, e.ID)
	}

	// Increment and mark campaign by campaign so a failure leaves only the
	// untouched remainder claimed; ReleaseClaim hands those back for retry
	// without double-counting the campaigns already folded.
	for cid, g := range grouped {
		if err := a.campaigns.IncrementStats(ctx, cid, g.deltas); err != nil {
			if relErr := a.events.ReleaseClaim(ctx, claimID); relErr != nil {
				logger.Error("release claim after failed increment",
					"claim_id", claimID, "error", relErr.Error())
			}
			return 0, fmt.Errorf("fold stats into campaign %s: %w", cid, err)
		}
		if err := a.events.MarkProcessed(ctx, g.ids); err != nil {
			return 0, fmt.Errorf("mark events processed for campaign %s: %w", cid, err)
		}
	}
	if len(skipped) > 0 {
		if err := a.events.MarkProcessed(ctx, skipped); err != nil {
			return 0, fmt.Errorf("mark skipped events processed: %w", err)
		}
	}
	return len(events), nil
}
