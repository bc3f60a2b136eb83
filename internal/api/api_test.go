package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/api"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/renderer"
	"github.com/ignite/campaign-engine/internal/repository/memory"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

type fixture struct {
	repos  *memory.Repos
	svc    *campaign.Service
	signer *renderer.URLSigner
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := memory.NewRepos()
	svc := campaign.NewService(repos.Campaigns, repos.Templates, repos.Lists, repos.Subscriptions)
	signer := renderer.NewURLSigner("test-signing-key", "http://track.local")
	rend := renderer.New(repos.Links, signer, true)

	h := api.NewHandlers(api.HandlerDeps{
		Service:       svc,
		Campaigns:     repos.Campaigns,
		Subscribers:   repos.Subscribers,
		Subscriptions: repos.Subscriptions,
		Templates:     repos.Templates,
		Events:        repos.Events,
		Links:         repos.Links,
		Verifier:      signer,
		Renderer:      rend,
	})
	return &fixture{
		repos:  repos,
		svc:    svc,
		signer: signer,
		router: api.SetupRoutes(h),
	}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) seedList(t *testing.T) string {
	t.Helper()
	id, err := f.repos.Lists.Create(context.Background(), &domain.MailingList{Name: "news"})
	require.NoError(t, err)
	return id
}

func (f *fixture) seedCampaign(t *testing.T, listIDs ...string) *domain.Campaign {
	t.Helper()
	c, err := f.svc.Create(context.Background(), campaign.CreateInput{
		Name:          "launch",
		Subject:       "hello",
		FromEmail:     "news@example.com",
		BodyHTML:      "<p>hi {{ subscriber.name }}</p>",
		TargetListIDs: listIDs,
	})
	require.NoError(t, err)
	return c
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateAndGetCampaign(t *testing.T) {
	f := newFixture(t)
	listID := f.seedList(t)

	w := f.do(t, http.MethodPost, "/api/campaigns", map[string]interface{}{
		"name":            "launch",
		"subject":         "hello",
		"from_email":      "news@example.com",
		"target_list_ids": []string{listID},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created domain.Campaign
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.Equal(t, domain.CampaignDraft, created.Status)

	w = f.do(t, http.MethodGet, "/api/campaigns/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got domain.Campaign
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "launch", got.Name)
	assert.Equal(t, []string{listID}, got.TargetListIDs)
}

func TestCreateCampaignValidation(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/campaigns", map[string]interface{}{"subject": "no name"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/campaigns", map[string]interface{}{
		"name": "n", "subject": "s", "target_list_ids": []string{"ghost"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetCampaignNotFound(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/campaigns/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLifecycleEndpoints(t *testing.T) {
	f := newFixture(t)
	c := f.seedCampaign(t)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/start", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/pause", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/resume", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/cancel", nil).Code)

	// cancelled is terminal
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/start", nil).Code)
}

func TestScheduleEndpoint(t *testing.T) {
	f := newFixture(t)
	c := f.seedCampaign(t)

	w := f.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/schedule", map[string]interface{}{
		"send_at": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusOK, w.Code)

	got, err := f.repos.Campaigns.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignScheduled, got.Status)
	require.NotNil(t, got.SendAt)

	// missing send_at rejected
	w = f.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/schedule", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCampaignStatsEndpoint(t *testing.T) {
	f := newFixture(t)
	c := f.seedCampaign(t)

	require.NoError(t, f.repos.Campaigns.IncrementStats(context.Background(), c.ID, map[domain.StatsField]int64{
		domain.StatsSent:  40,
		domain.StatsViews: 7,
	}))

	w := f.do(t, http.MethodGet, "/api/campaigns/"+c.ID+"/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats domain.CampaignStats
	require.NoError(t, json.NewDecoder(w.Body).Decode(&stats))
	assert.Equal(t, int64(40), stats.Sent)
	assert.Equal(t, int64(7), stats.Views)
}

func TestUpdateCampaign(t *testing.T) {
	f := newFixture(t)
	c := f.seedCampaign(t)

	w := f.do(t, http.MethodPut, "/api/campaigns/"+c.ID, map[string]interface{}{
		"subject": "updated subject",
	})
	require.Equal(t, http.StatusOK, w.Code)

	got, err := f.repos.Campaigns.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated subject", got.Subject)
}

func TestUpdateCampaignRefreshesRenderedBody(t *testing.T) {
	f := newFixture(t)
	c := f.seedCampaign(t)
	f.repos.Subscribers.Put(&domain.Subscriber{ID: "sub-1", Email: "a@b.c", Name: "Ada", Status: domain.SubscriberEnabled})
	url := f.signer.ViewURL(c.ID, "sub-1")

	w := f.do(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hi Ada")

	w = f.do(t, http.MethodPut, "/api/campaigns/"+c.ID, map[string]interface{}{
		"body_html": "<p>welcome back {{ subscriber.name }}</p>",
	})
	require.Equal(t, http.StatusOK, w.Code)

	// the edit must not keep rendering through the stale parsed body
	w = f.do(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "welcome back Ada")
	assert.NotContains(t, w.Body.String(), "hi Ada")
}

func TestDeleteCampaignGuard(t *testing.T) {
	f := newFixture(t)
	c := f.seedCampaign(t)
	require.NoError(t, f.svc.Start(context.Background(), c.ID))

	w := f.do(t, http.MethodDelete, "/api/campaigns/"+c.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDeleteListDetaches(t *testing.T) {
	f := newFixture(t)
	listID := f.seedList(t)
	c := f.seedCampaign(t, listID)

	w := f.do(t, http.MethodDelete, "/api/lists/"+listID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	got, err := f.repos.Campaigns.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Empty(t, got.TargetListIDs)
}

func TestTrackOpenRecordsViewAndServesPixel(t *testing.T) {
	f := newFixture(t)
	c := f.seedCampaign(t)
	url := f.signer.PixelURL(c.ID, "sub-1")

	w := f.do(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/gif", w.Header().Get("Content-Type"))

	events, err := f.repos.Events.ClaimUnprocessed(context.Background(), c.ID, "probe", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventView, events[0].Type)
	assert.Equal(t, "sub-1", events[0].SubscriberID)
}

func TestTrackOpenBadSignatureStillServesPixel(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/track/open/Zm9yZ2Vk/deadbeefdeadbeef", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/gif", w.Header().Get("Content-Type"))
	assert.Equal(t, 0, f.repos.Events.UnprocessedCount())
}

func TestTrackClickRedirectsAndRecords(t *testing.T) {
	f := newFixture(t)
	c := f.seedCampaign(t)
	link, err := f.repos.Links.GetOrCreate(context.Background(), "https://example.com/offer")
	require.NoError(t, err)

	url := f.signer.ClickURL(c.ID, "sub-1", link.ID)
	w := f.do(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com/offer", w.Header().Get("Location"))

	events, err := f.repos.Events.ClaimUnprocessed(context.Background(), c.ID, "probe", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventClick, events[0].Type)
	require.NotNil(t, events[0].LinkID)
	assert.Equal(t, link.ID, *events[0].LinkID)
}

func TestTrackClickBadSignature(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/track/click/Zm9yZ2Vk/deadbeefdeadbeef", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 0, f.repos.Events.UnprocessedCount())
}

func TestTrackClickUnknownLink(t *testing.T) {
	f := newFixture(t)
	c := f.seedCampaign(t)

	url := f.signer.ClickURL(c.ID, "sub-1", "ghost-link")
	w := f.do(t, http.MethodGet, url, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnsubscribe(t *testing.T) {
	f := newFixture(t)
	listID := f.seedList(t)
	c := f.seedCampaign(t, listID)

	f.repos.Subscribers.Put(&domain.Subscriber{ID: "sub-1", Email: "a@b.c", Status: domain.SubscriberEnabled})
	require.NoError(t, f.repos.Subscriptions.Upsert(context.Background(), &domain.Subscription{
		SubscriberID: "sub-1", ListID: listID, Status: domain.SubscriptionConfirmed,
	}))

	url := f.signer.UnsubscribeURL(c.ID, "sub-1")
	w := f.do(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "unsubscribed")

	ids, total, err := f.repos.Subscriptions.ListConfirmedSubscriberIDs(context.Background(), listID, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, 0, total)

	events, err := f.repos.Events.ClaimUnprocessed(context.Background(), c.ID, "probe", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventUnsubscribe, events[0].Type)
}

func TestViewInBrowser(t *testing.T) {
	f := newFixture(t)
	c := f.seedCampaign(t)
	f.repos.Subscribers.Put(&domain.Subscriber{ID: "sub-1", Email: "a@b.c", Name: "Ada", Status: domain.SubscriberEnabled})

	url := f.signer.ViewURL(c.ID, "sub-1")
	w := f.do(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hi Ada")
}
