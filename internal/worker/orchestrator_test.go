package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/distlock"
	"github.com/ignite/campaign-engine/internal/renderer"
	"github.com/ignite/campaign-engine/internal/repository/memory"
	"github.com/ignite/campaign-engine/internal/resolver"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/service/sending"
)

// stubLock always acquires; stubLockFactory with held=true never does.
type stubLock struct{ held bool }

func (l *stubLock) Acquire(context.Context) (bool, error) { return !l.held, nil }
func (l *stubLock) Release(context.Context) error         { return nil }

func stubLocks(held bool) distlock.Factory {
	return func(string, time.Duration) distlock.Lock { return &stubLock{held: held} }
}

// recordingMailer captures every delivery, optionally failing some.
type recordingMailer struct {
	mu     sync.Mutex
	sent   []string
	failTo map[string]bool
	onSend func(n int)
}

func (m *recordingMailer) Send(_ context.Context, _, to, _, _, _ string) error {
	m.mu.Lock()
	n := len(m.sent)
	m.sent = append(m.sent, to)
	fail := m.failTo[to]
	m.mu.Unlock()
	if m.onSend != nil {
		m.onSend(n)
	}
	if fail {
		return fmt.Errorf("smtp: mailbox unavailable")
	}
	return nil
}

func (m *recordingMailer) recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

type fixture struct {
	repos  *memory.Repos
	mailer *recordingMailer
	orch   *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := memory.NewRepos()
	mailer := &recordingMailer{failTo: map[string]bool{}}
	signer := renderer.NewURLSigner("test-key", "https://track.example.com")
	rend := renderer.New(repos.Links, signer, false)
	res := resolver.New(repos.Subscribers, repos.Subscriptions, repos.Lists)
	disp := NewDispatcher(repos.Campaigns, repos.Subscribers, repos.Progress, rend, mailer)
	orch := NewOrchestrator(repos.Campaigns, repos.Templates, repos.Progress, res, disp, stubLocks(false))
	return &fixture{repos: repos, mailer: mailer, orch: orch}
}

func (f *fixture) seedAudience(t *testing.T, listName string, n int) (listID string, subscriberIDs []string) {
	t.Helper()
	ctx := context.Background()
	listID, err := f.repos.Lists.Create(ctx, &domain.MailingList{Name: listName})
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		s := &domain.Subscriber{
			Email:  fmt.Sprintf("%s-%04d@example.com", listName, i),
			Status: domain.SubscriberEnabled,
		}
		f.repos.Subscribers.Put(s)
		require.NoError(t, f.repos.Subscriptions.Upsert(ctx, &domain.Subscription{
			SubscriberID: s.ID, ListID: listID, Status: domain.SubscriptionConfirmed,
		}))
		subscriberIDs = append(subscriberIDs, s.ID)
	}
	return listID, subscriberIDs
}

func (f *fixture) seedCampaign(t *testing.T, listIDs ...string) string {
	t.Helper()
	id, err := f.repos.Campaigns.Create(context.Background(), &domain.Campaign{
		Name:          "launch",
		Subject:       "Hello {{ subscriber.name }}",
		FromEmail:     "news@example.com",
		BodyHTML:      "<p>hi</p>",
		ContentType:   domain.ContentHTML,
		TargetListIDs: listIDs,
		Status:        domain.CampaignRunning,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) campaign(t *testing.T, id string) *domain.Campaign {
	t.Helper()
	c, err := f.repos.Campaigns.Get(context.Background(), id)
	require.NoError(t, err)
	return c
}

func TestRunEmptyAudienceFinishes(t *testing.T) {
	f := newFixture(t)
	listID, _ := f.seedAudience(t, "empty", 0)
	id := f.seedCampaign(t, listID)

	require.NoError(t, f.orch.Run(context.Background(), id))

	c := f.campaign(t, id)
	assert.Equal(t, domain.CampaignFinished, c.Status)
	assert.Equal(t, int64(0), c.Stats.ToSend)
	assert.Empty(t, f.mailer.recipients())
}

func TestRunDeliversWholeAudienceInBatches(t *testing.T) {
	f := newFixture(t)
	listID, _ := f.seedAudience(t, "big", 1200)
	id := f.seedCampaign(t, listID)
	f.orch.SetBatchSize(500)
	f.orch.SetConcurrency(2)

	require.NoError(t, f.orch.Run(context.Background(), id))

	c := f.campaign(t, id)
	assert.Equal(t, domain.CampaignFinished, c.Status)
	assert.Equal(t, int64(1200), c.Stats.ToSend)
	assert.Equal(t, int64(1200), c.Stats.Sent)
	assert.Equal(t, int64(0), c.Stats.Failed)
	assert.Len(t, f.mailer.recipients(), 1200)
}

func TestRunCountsDeliveryFailures(t *testing.T) {
	f := newFixture(t)
	listID, _ := f.seedAudience(t, "mixed", 20)
	f.mailer.failTo["mixed-0003@example.com"] = true
	f.mailer.failTo["mixed-0011@example.com"] = true
	id := f.seedCampaign(t, listID)

	require.NoError(t, f.orch.Run(context.Background(), id))

	c := f.campaign(t, id)
	assert.Equal(t, domain.CampaignFinished, c.Status)
	assert.Equal(t, int64(18), c.Stats.Sent)
	assert.Equal(t, int64(2), c.Stats.Failed)
	assert.Equal(t, c.Stats.ToSend, c.Stats.Sent+c.Stats.Failed)
}

func TestRunDedupesAcrossLists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listA, idsA := f.seedAudience(t, "overlap-a", 5)
	listB, err := f.repos.Lists.Create(ctx, &domain.MailingList{Name: "overlap-b"})
	require.NoError(t, err)
	// second list shares two subscribers with the first
	for _, sid := range idsA[:2] {
		require.NoError(t, f.repos.Subscriptions.Upsert(ctx, &domain.Subscription{
			SubscriberID: sid, ListID: listB, Status: domain.SubscriptionConfirmed,
		}))
	}
	id := f.seedCampaign(t, listA, listB)

	require.NoError(t, f.orch.Run(ctx, id))

	c := f.campaign(t, id)
	assert.Equal(t, int64(5), c.Stats.ToSend)
	assert.Len(t, f.mailer.recipients(), 5)
}

func TestRunLockedElsewhereIsNoop(t *testing.T) {
	f := newFixture(t)
	listID, _ := f.seedAudience(t, "locked", 5)
	id := f.seedCampaign(t, listID)
	f.orch.locks = stubLocks(true)

	require.NoError(t, f.orch.Run(context.Background(), id))
	assert.Empty(t, f.mailer.recipients())
	assert.Equal(t, domain.CampaignRunning, f.campaign(t, id).Status)
}

func TestRunMissingCampaignFails(t *testing.T) {
	f := newFixture(t)
	err := f.orch.Run(context.Background(), "no-such-campaign")
	assert.Error(t, err)
}

func TestRunNonRunningCampaignIsNoop(t *testing.T) {
	f := newFixture(t)
	listID, _ := f.seedAudience(t, "drafted", 5)
	id, err := f.repos.Campaigns.Create(context.Background(), &domain.Campaign{
		Name: "draft", Subject: "s", FromEmail: "a@b.c", BodyHTML: "x",
		TargetListIDs: []string{listID}, Status: domain.CampaignDraft,
	})
	require.NoError(t, err)

	require.NoError(t, f.orch.Run(context.Background(), id))
	assert.Empty(t, f.mailer.recipients())
}

func TestRunPausesBetweenBatches(t *testing.T) {
	f := newFixture(t)
	listID, _ := f.seedAudience(t, "paused", 30)
	id := f.seedCampaign(t, listID)
	f.orch.SetBatchSize(10)
	f.orch.SetConcurrency(1)

	// pause the campaign as soon as the first delivery goes out
	var once sync.Once
	f.mailer.onSend = func(int) {
		once.Do(func() {
			_ = f.repos.Campaigns.UpdateStatus(context.Background(), id, domain.CampaignPaused)
		})
	}

	require.NoError(t, f.orch.Run(context.Background(), id))

	c := f.campaign(t, id)
	assert.Equal(t, domain.CampaignPaused, c.Status)
	assert.Less(t, len(f.mailer.recipients()), 30)

	// the run stays open so a resume can pick it up
	runID, err := f.repos.Progress.ActiveRun(context.Background(), id)
	require.NoError(t, err)
	assert.NotEmpty(t, runID)
}

func TestRunResumeSkipsAttempted(t *testing.T) {
	f := newFixture(t)
	listID, subscriberIDs := f.seedAudience(t, "resume", 25)
	id := f.seedCampaign(t, listID)
	f.orch.SetBatchSize(10)
	f.orch.SetConcurrency(1)
	ctx := context.Background()

	// simulate an interrupted earlier attempt that got through 10 recipients
	require.NoError(t, f.repos.Campaigns.SetStats(ctx, id, map[domain.StatsField]int64{
		domain.StatsToSend: 25,
	}))
	require.NoError(t, f.repos.Campaigns.IncrementStats(ctx, id, map[domain.StatsField]int64{
		domain.StatsSent: 10,
	}))
	runID, err := f.repos.Progress.StartRun(ctx, id)
	require.NoError(t, err)
	require.NoError(t, f.repos.Progress.MarkAttempted(ctx, runID, subscriberIDs[:10]))

	require.NoError(t, f.orch.Run(ctx, id))

	c := f.campaign(t, id)
	assert.Equal(t, domain.CampaignFinished, c.Status)
	// to_send keeps the original attempt's value
	assert.Equal(t, int64(25), c.Stats.ToSend)
	assert.Equal(t, int64(25), c.Stats.Sent)
	// only the 15 never-attempted subscribers got mail this time
	assert.Len(t, f.mailer.recipients(), 15)
	for _, to := range f.mailer.recipients() {
		for i := 0; i < 10; i++ {
			assert.NotEqual(t, fmt.Sprintf("resume-%04d@example.com", i), to)
		}
	}
}

func TestRunCancelClosesRun(t *testing.T) {
	f := newFixture(t)
	listID, _ := f.seedAudience(t, "cancel", 30)
	id := f.seedCampaign(t, listID)
	f.orch.SetBatchSize(10)
	f.orch.SetConcurrency(1)

	var once sync.Once
	f.mailer.onSend = func(int) {
		once.Do(func() {
			_ = f.repos.Campaigns.UpdateStatus(context.Background(), id, domain.CampaignCancelled)
		})
	}

	require.NoError(t, f.orch.Run(context.Background(), id))

	assert.Equal(t, domain.CampaignCancelled, f.campaign(t, id).Status)
	runID, err := f.repos.Progress.ActiveRun(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, runID)
}

func TestRunMissingTemplateLeavesNoRunBehind(t *testing.T) {
	f := newFixture(t)
	listID, _ := f.seedAudience(t, "tpl", 3)
	ghost := "ghost-template"
	ctx := context.Background()
	id, err := f.repos.Campaigns.Create(ctx, &domain.Campaign{
		Name:          "launch",
		Subject:       "Hello",
		FromEmail:     "news@example.com",
		BodyHTML:      "<p>hi</p>",
		ContentType:   domain.ContentHTML,
		TemplateID:    &ghost,
		TargetListIDs: []string{listID},
		Status:        domain.CampaignRunning,
	})
	require.NoError(t, err)

	// the dangling template is fatal for this invocation
	require.Error(t, f.orch.Run(ctx, id))
	assert.Empty(t, f.mailer.recipients())

	// and must not open a run: the failed attempt never dispatched anything
	runID, err := f.repos.Progress.ActiveRun(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, runID)

	// once the template exists the next attempt gets full counters
	tplID, err := f.repos.Templates.Create(ctx, &domain.Template{
		Name: "base", Type: domain.TemplateCampaign,
		BodyHTML: "<html>{{ content }}</html>",
	})
	require.NoError(t, err)
	require.NoError(t, f.repos.Campaigns.Update(ctx, id, campaign.UpdateFields{TemplateID: &tplID}))

	require.NoError(t, f.orch.Run(ctx, id))

	c := f.campaign(t, id)
	assert.Equal(t, domain.CampaignFinished, c.Status)
	assert.Equal(t, int64(3), c.Stats.ToSend)
	assert.Equal(t, int64(3), c.Stats.Sent)
	assert.Equal(t, c.Stats.ToSend, c.Stats.Sent+c.Stats.Failed)
}

func TestRunResumeWithEmptyAttemptedSetSetsCounters(t *testing.T) {
	f := newFixture(t)
	listID, _ := f.seedAudience(t, "stale", 4)
	id := f.seedCampaign(t, listID)
	ctx := context.Background()

	// a run opened by a worker that died before dispatching any batch
	_, err := f.repos.Progress.StartRun(ctx, id)
	require.NoError(t, err)

	require.NoError(t, f.orch.Run(ctx, id))

	c := f.campaign(t, id)
	assert.Equal(t, int64(4), c.Stats.ToSend)
	assert.Equal(t, int64(4), c.Stats.Sent)
	assert.Equal(t, domain.CampaignFinished, c.Status)
}

var _ sending.Mailer = (*recordingMailer)(nil)
