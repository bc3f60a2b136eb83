package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/distlock"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/resolver"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

const (
	// DefaultBatchSize is how many recipients one dispatch batch carries.
	DefaultBatchSize = 500
	// DefaultConcurrency is how many batches are in flight at once.
	DefaultConcurrency = 4

	runLockTTL = 10 * time.Minute
)

// Orchestrator executes one campaign send attempt end to end: resolve the
// audience, slice it into batches, dispatch them concurrently, and settle
// the final status. A distributed lock keyed on the campaign keeps two
// workers off the same run.
type Orchestrator struct {
	campaigns campaign.CampaignRepo
	templates campaign.TemplateRepo
	progress  campaign.ProgressRepo
	resolver  *resolver.Resolver
	disp      *Dispatcher
	locks     distlock.Factory

	batchSize   int
	concurrency int
}

// NewOrchestrator wires an Orchestrator with default batch sizing.
func NewOrchestrator(
	campaigns campaign.CampaignRepo,
	templates campaign.TemplateRepo,
	progress campaign.ProgressRepo,
	res *resolver.Resolver,
	disp *Dispatcher,
	locks distlock.Factory,
) *Orchestrator {
	return &Orchestrator{
		campaigns:   campaigns,
		templates:   templates,
		progress:    progress,
		resolver:    res,
		disp:        disp,
		locks:       locks,
		batchSize:   DefaultBatchSize,
		concurrency: DefaultConcurrency,
	}
}

// SetBatchSize overrides the batch size. Values below 1 are ignored.
func (o *Orchestrator) SetBatchSize(n int) {
	if n >= 1 {
		o.batchSize = n
	}
}

// SetConcurrency overrides how many batches run in parallel.
func (o *Orchestrator) SetConcurrency(n int) {
	if n >= 1 {
		o.concurrency = n
	}
}

// Run performs one send attempt for the campaign. It is safe to call for a
// campaign that is already finished or being run elsewhere; those cases
// return nil after a no-op. A missing campaign is an error.
func (o *Orchestrator) Run(ctx context.Context, campaignID string) error {
	lock := o.locks("campaign-run:"+campaignID, runLockTTL)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire run lock for campaign %s: %w", campaignID, err)
	}
	if !ok {
		logger.Debug("campaign run already locked elsewhere", "campaign_id", campaignID)
		return nil
	}
	defer func() {
		if relErr := lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			logger.Warn("release run lock failed", "campaign_id", campaignID, "error", relErr.Error())
		}
	}()

	c, err := o.campaigns.Get(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("load campaign %s: %w", campaignID, err)
	}
	if c.Status != domain.CampaignRunning {
		logger.Debug("campaign not running, nothing to do",
			"campaign_id", c.ID, "status", string(c.Status))
		return nil
	}

	var tpl *domain.Template
	if c.TemplateID != nil {
		tpl, err = o.templates.Get(ctx, *c.TemplateID)
		if err != nil {
			return fmt.Errorf("load template for campaign %s: %w", c.ID, err)
		}
	}

	audience, err := o.resolver.Resolve(ctx, c)
	if err != nil {
		return fmt.Errorf("resolve audience for campaign %s: %w", c.ID, err)
	}

	// The run is opened only once the attempt's prerequisites hold, so a
	// fatal error above never leaves an empty run behind to poison the
	// next invocation's counters.
	runID, resuming, err := o.openRun(ctx, c.ID)
	if err != nil {
		return err
	}

	fresh := !resuming
	if resuming {
		attempted, err := o.progress.ListAttempted(ctx, runID)
		if err != nil {
			return fmt.Errorf("load attempted set for run %s: %w", runID, err)
		}
		if len(attempted) == 0 {
			// run opened but no batch dispatched before the interruption;
			// the attempt's counters were never set
			fresh = true
		} else {
			remaining := audience[:0]
			for _, id := range audience {
				if _, done := attempted[id]; !done {
					remaining = append(remaining, id)
				}
			}
			audience = remaining
			logger.Info("resuming interrupted campaign run",
				"campaign_id", c.ID, "run_id", runID,
				"already_attempted", len(attempted), "remaining", len(audience))
		}
	}
	if fresh {
		if err := o.campaigns.SetStats(ctx, c.ID, map[domain.StatsField]int64{
			domain.StatsToSend: int64(len(audience)),
			domain.StatsSent:   0,
			domain.StatsFailed: 0,
		}); err != nil {
			return fmt.Errorf("set to_send for campaign %s: %w", c.ID, err)
		}
	}

	if len(audience) == 0 {
		return o.finishRun(ctx, c.ID, runID)
	}

	logger.Info("campaign send started",
		"campaign_id", c.ID, "run_id", runID,
		"audience", len(audience), "batch_size", o.batchSize, "resumed", resuming)

	interrupted, err := o.dispatchAll(ctx, c, tpl, runID, audience)
	if err != nil {
		return err
	}
	if interrupted {
		// paused or cancelled mid-run; the run stays open for resume
		return nil
	}
	return o.finishRun(ctx, c.ID, runID)
}

// openRun returns the campaign's active run, creating one when this is a
// fresh attempt. The second return is true when resuming.
func (o *Orchestrator) openRun(ctx context.Context, campaignID string) (string, bool, error) {
	runID, err := o.progress.ActiveRun(ctx, campaignID)
	if err != nil {
		return "", false, fmt.Errorf("look up active run for campaign %s: %w", campaignID, err)
	}
	if runID != "" {
		return runID, true, nil
	}
	runID, err = o.progress.StartRun(ctx, campaignID)
	if err != nil {
		return "", false, fmt.Errorf("start run for campaign %s: %w", campaignID, err)
	}
	return runID, false, nil
}

// dispatchAll pushes the audience through the dispatcher in concurrent
// batches. Returns interrupted=true when the campaign left the running
// state mid-send (pause or cancel) and the rest of the audience was
// deliberately not dispatched.
func (o *Orchestrator) dispatchAll(ctx context.Context, c *domain.Campaign, tpl *domain.Template, runID string, audience []string) (bool, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	var stopped atomic.Bool
	for start := 0; start < len(audience); start += o.batchSize {
		if stopped.Load() {
			break
		}
		end := start + o.batchSize
		if end > len(audience) {
			end = len(audience)
		}
		batch := audience[start:end]

		g.Go(func() error {
			if stopped.Load() {
				return nil
			}
			// Status check before each batch so pause and cancel take
			// effect at batch granularity.
			current, err := o.campaigns.Get(gctx, c.ID)
			if err != nil {
				return fmt.Errorf("recheck campaign %s: %w", c.ID, err)
			}
			if current.Status != domain.CampaignRunning {
				logger.Info("campaign left running state, stopping dispatch",
					"campaign_id", c.ID, "status", string(current.Status))
				stopped.Store(true)
				return nil
			}
			_, err = o.disp.SendBatch(gctx, c, tpl, runID, batch)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return false, fmt.Errorf("dispatch campaign %s: %w", c.ID, err)
	}
	interrupted := stopped.Load()
	if interrupted {
		// cancelled campaigns keep no open run
		current, err := o.campaigns.Get(ctx, c.ID)
		if err == nil && current.Status == domain.CampaignCancelled {
			if err := o.progress.FinishRun(ctx, runID); err != nil {
				return true, fmt.Errorf("close run %s after cancel: %w", runID, err)
			}
		}
	}
	return interrupted, nil
}

// finishRun closes the run and moves the campaign to finished. Losing the
// running -> finished race to a concurrent cancel is not an error.
func (o *Orchestrator) finishRun(ctx context.Context, campaignID, runID string) error {
	if err := o.progress.FinishRun(ctx, runID); err != nil {
		return fmt.Errorf("close run %s: %w", runID, err)
	}
	if err := o.campaigns.UpdateStatus(ctx, campaignID, domain.CampaignFinished); err != nil {
		if errors.Is(err, campaign.ErrInvalidTransition) {
			logger.Warn("campaign changed state before finish", "campaign_id", campaignID)
			return nil
		}
		return fmt.Errorf("finish campaign %s: %w", campaignID, err)
	}
	logger.Info("campaign send finished", "campaign_id", campaignID, "run_id", runID)
	return nil
}
