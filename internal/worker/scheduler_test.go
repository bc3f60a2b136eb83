package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/domain"
)

func TestTickStartsDueScheduledCampaign(t *testing.T) {
	f := newFixture(t)
	listID, _ := f.seedAudience(t, "due", 3)
	ctx := context.Background()

	sendAt := time.Now().Add(-time.Minute)
	id, err := f.repos.Campaigns.Create(ctx, &domain.Campaign{
		Name: "due", Subject: "s", FromEmail: "a@b.c", BodyHTML: "x",
		TargetListIDs: []string{listID},
		Status:        domain.CampaignScheduled,
		SendAt:        &sendAt,
	})
	require.NoError(t, err)

	agg := NewAggregator(f.repos.Campaigns, f.repos.Events, stubLocks(false))
	sched := NewScheduler(f.repos.Campaigns, f.orch, agg, time.Minute, time.Minute)

	require.NoError(t, sched.Tick(ctx))

	c := f.campaign(t, id)
	assert.Equal(t, domain.CampaignFinished, c.Status)
	assert.Len(t, f.mailer.recipients(), 3)
}

func TestTickIgnoresFutureScheduledCampaign(t *testing.T) {
	f := newFixture(t)
	listID, _ := f.seedAudience(t, "future", 3)
	ctx := context.Background()

	sendAt := time.Now().Add(time.Hour)
	id, err := f.repos.Campaigns.Create(ctx, &domain.Campaign{
		Name: "future", Subject: "s", FromEmail: "a@b.c", BodyHTML: "x",
		TargetListIDs: []string{listID},
		Status:        domain.CampaignScheduled,
		SendAt:        &sendAt,
	})
	require.NoError(t, err)

	agg := NewAggregator(f.repos.Campaigns, f.repos.Events, stubLocks(false))
	sched := NewScheduler(f.repos.Campaigns, f.orch, agg, time.Minute, time.Minute)

	require.NoError(t, sched.Tick(ctx))

	assert.Equal(t, domain.CampaignScheduled, f.campaign(t, id).Status)
	assert.Empty(t, f.mailer.recipients())
}

func TestTickResumesInterruptedRunningCampaign(t *testing.T) {
	f := newFixture(t)
	listID, _ := f.seedAudience(t, "sweep", 4)
	id := f.seedCampaign(t, listID)
	ctx := context.Background()

	agg := NewAggregator(f.repos.Campaigns, f.repos.Events, stubLocks(false))
	sched := NewScheduler(f.repos.Campaigns, f.orch, agg, time.Minute, time.Minute)

	require.NoError(t, sched.Tick(ctx))

	c := f.campaign(t, id)
	assert.Equal(t, domain.CampaignFinished, c.Status)
	assert.Equal(t, int64(4), c.Stats.Sent)
}
