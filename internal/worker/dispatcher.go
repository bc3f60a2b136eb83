// Package worker drives campaign delivery: the orchestrator slices a
// resolved audience into batches, the dispatcher sends one batch, the
// aggregator folds tracking events into stats, and the scheduler ticks
// scheduled campaigns into running.
package worker

import (
	"context"
	"fmt"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/renderer"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/service/sending"
)

// Dispatcher sends one batch of a campaign run. Progress is recorded before
// any delivery is attempted so a crash mid-batch resumes past the whole
// batch instead of double-sending part of it.
type Dispatcher struct {
	campaigns   campaign.CampaignRepo
	subscribers campaign.SubscriberRepo
	progress    campaign.ProgressRepo
	renderer    *renderer.Renderer
	mailer      sending.Mailer
}

// NewDispatcher wires a Dispatcher.
func NewDispatcher(
	campaigns campaign.CampaignRepo,
	subscribers campaign.SubscriberRepo,
	progress campaign.ProgressRepo,
	r *renderer.Renderer,
	mailer sending.Mailer,
) *Dispatcher {
	return &Dispatcher{
		campaigns:   campaigns,
		subscribers: subscribers,
		progress:    progress,
		renderer:    r,
		mailer:      mailer,
	}
}

// BatchResult reports a completed batch.
type BatchResult struct {
	Sent   int64
	Failed int64
}

// SendBatch delivers the campaign to each subscriber ID in the batch.
// Per-recipient errors count as failures and never abort the batch. The
// campaign's sent/failed counters get exactly one increment for the batch.
func (d *Dispatcher) SendBatch(ctx context.Context, c *domain.Campaign, tpl *domain.Template, runID string, subscriberIDs []string) (*BatchResult, error) {
	if err := d.progress.MarkAttempted(ctx, runID, subscriberIDs); err != nil {
		return nil, fmt.Errorf("mark batch attempted for run %s: %w", runID, err)
	}

	res := &BatchResult{}
	for i, id := range subscriberIDs {
		if ctx.Err() != nil {
			// The whole batch is already marked attempted, so a resumed
			// run will not revisit these recipients. Count the undelivered
			// remainder as failed to keep sent+failed reconciled with
			// to_send.
			res.Failed += int64(len(subscriberIDs) - i)
			break
		}
		if d.sendOne(ctx, c, tpl, id) {
			res.Sent++
		} else {
			res.Failed++
		}
	}

	deltas := map[domain.StatsField]int64{}
	if res.Sent > 0 {
		deltas[domain.StatsSent] = res.Sent
	}
	if res.Failed > 0 {
		deltas[domain.StatsFailed] = res.Failed
	}
	if len(deltas) > 0 {
		// the increment must land even when the batch was cut short by a
		// cancelled context
		if err := d.campaigns.IncrementStats(context.WithoutCancel(ctx), c.ID, deltas); err != nil {
			return nil, fmt.Errorf("record batch stats for campaign %s: %w", c.ID, err)
		}
	}

	logger.Debug("batch dispatched",
		"campaign_id", c.ID, "run_id", runID,
		"size", len(subscriberIDs), "sent", res.Sent, "failed", res.Failed)
	return res, nil
}

// sendOne renders and delivers to a single subscriber. The subscriber is
// re-checked at send time: anyone disabled or removed since resolution is
// counted as failed rather than emailed.
func (d *Dispatcher) sendOne(ctx context.Context, c *domain.Campaign, tpl *domain.Template, subscriberID string) bool {
	sub, err := d.subscribers.GetByID(ctx, subscriberID)
	if err != nil {
		logger.Warn("send skipped: subscriber gone",
			"campaign_id", c.ID, "subscriber_id", subscriberID)
		return false
	}
	if sub.Status != domain.SubscriberEnabled {
		logger.Warn("send skipped: subscriber not enabled",
			"campaign_id", c.ID, "subscriber_id", subscriberID, "status", string(sub.Status))
		return false
	}

	msg, err := d.renderer.Render(ctx, c, tpl, sub)
	if err != nil {
		logger.Error("render failed",
			"campaign_id", c.ID, "subscriber_id", subscriberID, "error", err.Error())
		return false
	}

	if err := d.mailer.Send(ctx, c.FromEmail, sub.Email, msg.Subject, msg.BodyHTML, msg.BodyPlain); err != nil {
		logger.Error("delivery failed",
			"campaign_id", c.ID, "recipient", sub.Email, "error", err.Error())
		return false
	}
	return true
}
