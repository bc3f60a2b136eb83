package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// Scheduler ticks the delivery pipeline: due scheduled campaigns are moved
// to running and handed to the orchestrator, interrupted running campaigns
// are resumed, and the aggregator folds pending tracking events. Multiple
// scheduler instances are safe; the orchestrator and aggregator locks
// resolve the races.
type Scheduler struct {
	campaigns  campaign.CampaignRepo
	orch       *Orchestrator
	agg        *Aggregator
	cron       *cron.Cron
	tickEvery  time.Duration
	aggEvery   time.Duration
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewScheduler creates a Scheduler. tickEvery controls the campaign sweep
// interval, aggEvery the stats aggregation interval.
func NewScheduler(campaigns campaign.CampaignRepo, orch *Orchestrator, agg *Aggregator, tickEvery, aggEvery time.Duration) *Scheduler {
	return &Scheduler{
		campaigns: campaigns,
		orch:      orch,
		agg:       agg,
		cron:      cron.New(),
		tickEvery: tickEvery,
		aggEvery:  aggEvery,
	}
}

// Start registers the cron entries and begins ticking.
func (s *Scheduler) Start() error {
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.tickEvery), func() {
		if err := s.Tick(s.baseCtx); err != nil {
			logger.Error("campaign sweep failed", "error", err.Error())
		}
	}); err != nil {
		return fmt.Errorf("register campaign sweep: %w", err)
	}

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.aggEvery), func() {
		if _, err := s.agg.RunOnce(s.baseCtx); err != nil {
			logger.Error("stats aggregation failed", "error", err.Error())
		}
	}); err != nil {
		return fmt.Errorf("register stats aggregation: %w", err)
	}

	s.cron.Start()
	logger.Info("scheduler started",
		"campaign_sweep", s.tickEvery.String(), "stats_aggregation", s.aggEvery.String())
	return nil
}

// Stop halts the cron loop and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	if s.cancelBase != nil {
		s.cancelBase()
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("scheduler stopped")
}

// Tick performs one campaign sweep: due scheduled campaigns start, running
// campaigns left by an interrupted worker resume. Exposed for tests and the
// ops endpoint.
func (s *Scheduler) Tick(ctx context.Context) error {
	due, err := s.campaigns.ListDue(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("list due campaigns: %w", err)
	}

	for i := range due {
		c := &due[i]
		switch c.Status {
		case domain.CampaignScheduled:
			if err := s.campaigns.UpdateStatus(ctx, c.ID, domain.CampaignRunning); err != nil {
				// another scheduler instance won the transition
				logger.Debug("scheduled campaign already claimed", "campaign_id", c.ID)
				continue
			}
			logger.Info("scheduled campaign starting", "campaign_id", c.ID, "name", c.Name)
		case domain.CampaignRunning:
			logger.Debug("sweeping running campaign", "campaign_id", c.ID)
		default:
			continue
		}

		if err := s.orch.Run(ctx, c.ID); err != nil {
			logger.Error("campaign run failed", "campaign_id", c.ID, "error", err.Error())
		}
	}
	return nil
}
