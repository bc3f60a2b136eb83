// Package resolver turns a campaign's target lists into the deduplicated
// set of send-eligible subscriber IDs. Resolution is two-phase: collect
// confirmed subscriptions per list, then filter the union down to globally
// enabled subscribers.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

const (
	// defaultPageSize bounds how many subscription rows one query pulls.
	defaultPageSize = 1000
	// defaultFilterChunk bounds the IN clause of the enabled-status filter.
	defaultFilterChunk = 1000
)

// Resolver computes campaign audiences from the subscription tables.
type Resolver struct {
	subscribers   campaign.SubscriberRepo
	subscriptions campaign.SubscriptionRepo
	lists         campaign.ListRepo

	pageSize    int
	filterChunk int
}

// New creates a Resolver with default page sizes.
func New(subscribers campaign.SubscriberRepo, subscriptions campaign.SubscriptionRepo, lists campaign.ListRepo) *Resolver {
	return &Resolver{
		subscribers:   subscribers,
		subscriptions: subscriptions,
		lists:         lists,
		pageSize:      defaultPageSize,
		filterChunk:   defaultFilterChunk,
	}
}

// Resolve returns the deduplicated, send-eligible subscriber IDs for a
// campaign, sorted for deterministic batch slicing. Target lists that no
// longer exist are skipped with a warning rather than failing the run.
func (r *Resolver) Resolve(ctx context.Context, c *domain.Campaign) ([]string, error) {
	seen := make(map[string]struct{})
	var ordered []string

	for _, listID := range c.TargetListIDs {
		if _, err := r.lists.Get(ctx, listID); err != nil {
			if errors.Is(err, campaign.ErrListNotFound) {
				logger.Warn("resolve: target list missing, skipping",
					"campaign_id", c.ID, "list_id", listID)
				continue
			}
			return nil, fmt.Errorf("resolve list %s: %w", listID, err)
		}

		for page := 1; ; page++ {
			ids, _, err := r.subscriptions.ListConfirmedSubscriberIDs(ctx, listID, page, r.pageSize)
			if err != nil {
				return nil, fmt.Errorf("resolve list %s page %d: %w", listID, page, err)
			}
			for _, id := range ids {
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				ordered = append(ordered, id)
			}
			if len(ids) < r.pageSize {
				break
			}
		}
	}

	eligible, err := r.filterEnabled(ctx, ordered)
	if err != nil {
		return nil, err
	}

	sort.Strings(eligible)
	logger.Debug("resolve: audience computed",
		"campaign_id", c.ID, "candidates", len(ordered), "eligible", len(eligible))
	return eligible, nil
}

func (r *Resolver) filterEnabled(ctx context.Context, ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	for start := 0; start < len(ids); start += r.filterChunk {
		end := start + r.filterChunk
		if end > len(ids) {
			end = len(ids)
		}
		enabled, err := r.subscribers.ListEnabledByIDs(ctx, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("filter enabled subscribers: %w", err)
		}
		out = append(out, enabled...)
	}
	return out, nil
}
