package resolver

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/repository/memory"
)

func seedSubscriber(t *testing.T, repos *memory.Repos, email string, status domain.SubscriberStatus) string {
	t.Helper()
	s := &domain.Subscriber{Email: email, Name: email, Status: status}
	repos.Subscribers.Put(s)
	return s.ID
}

func seedList(t *testing.T, repos *memory.Repos, name string) string {
	t.Helper()
	id, err := repos.Lists.Create(context.Background(), &domain.MailingList{
		Name: name, Visibility: domain.ListPrivate, OptIn: domain.OptInDouble,
	})
	require.NoError(t, err)
	return id
}

func subscribe(t *testing.T, repos *memory.Repos, subscriberID, listID string, status domain.SubscriptionStatus) {
	t.Helper()
	err := repos.Subscriptions.Upsert(context.Background(), &domain.Subscription{
		SubscriberID: subscriberID, ListID: listID, Status: status,
	})
	require.NoError(t, err)
}

func TestResolveDeduplicatesAcrossLists(t *testing.T) {
	repos := memory.NewRepos()
	r := New(repos.Subscribers, repos.Subscriptions, repos.Lists)

	listA := seedList(t, repos, "newsletter")
	listB := seedList(t, repos, "announcements")

	shared := seedSubscriber(t, repos, "both@example.com", domain.SubscriberEnabled)
	onlyA := seedSubscriber(t, repos, "a@example.com", domain.SubscriberEnabled)
	onlyB := seedSubscriber(t, repos, "b@example.com", domain.SubscriberEnabled)

	subscribe(t, repos, shared, listA, domain.SubscriptionConfirmed)
	subscribe(t, repos, shared, listB, domain.SubscriptionConfirmed)
	subscribe(t, repos, onlyA, listA, domain.SubscriptionConfirmed)
	subscribe(t, repos, onlyB, listB, domain.SubscriptionConfirmed)

	ids, err := r.Resolve(context.Background(), &domain.Campaign{
		ID: "c1", TargetListIDs: []string{listA, listB},
	})
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.ElementsMatch(t, []string{shared, onlyA, onlyB}, ids)
}

func TestResolveSkipsUnconfirmedAndDisabled(t *testing.T) {
	repos := memory.NewRepos()
	r := New(repos.Subscribers, repos.Subscriptions, repos.Lists)

	list := seedList(t, repos, "newsletter")

	enabled := seedSubscriber(t, repos, "ok@example.com", domain.SubscriberEnabled)
	disabled := seedSubscriber(t, repos, "off@example.com", domain.SubscriberDisabled)
	blocked := seedSubscriber(t, repos, "blocked@example.com", domain.SubscriberBlocklisted)
	pending := seedSubscriber(t, repos, "pending@example.com", domain.SubscriberEnabled)
	gone := seedSubscriber(t, repos, "gone@example.com", domain.SubscriberEnabled)

	subscribe(t, repos, enabled, list, domain.SubscriptionConfirmed)
	subscribe(t, repos, disabled, list, domain.SubscriptionConfirmed)
	subscribe(t, repos, blocked, list, domain.SubscriptionConfirmed)
	subscribe(t, repos, pending, list, domain.SubscriptionUnconfirmed)
	subscribe(t, repos, gone, list, domain.SubscriptionUnsubscribed)

	ids, err := r.Resolve(context.Background(), &domain.Campaign{
		ID: "c1", TargetListIDs: []string{list},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{enabled}, ids)
}

func TestResolveSkipsMissingList(t *testing.T) {
	repos := memory.NewRepos()
	r := New(repos.Subscribers, repos.Subscriptions, repos.Lists)

	list := seedList(t, repos, "newsletter")
	sub := seedSubscriber(t, repos, "ok@example.com", domain.SubscriberEnabled)
	subscribe(t, repos, sub, list, domain.SubscriptionConfirmed)

	ids, err := r.Resolve(context.Background(), &domain.Campaign{
		ID: "c1", TargetListIDs: []string{"deleted-list", list},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{sub}, ids)
}

func TestResolveEmptyTargets(t *testing.T) {
	repos := memory.NewRepos()
	r := New(repos.Subscribers, repos.Subscriptions, repos.Lists)

	ids, err := r.Resolve(context.Background(), &domain.Campaign{ID: "c1"})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestResolvePaginatesLargeLists(t *testing.T) {
	repos := memory.NewRepos()
	r := New(repos.Subscribers, repos.Subscriptions, repos.Lists)
	r.pageSize = 10
	r.filterChunk = 7

	list := seedList(t, repos, "big")
	want := 0
	for i := 0; i < 35; i++ {
		id := seedSubscriber(t, repos, fmt.Sprintf("s%03d@example.com", i), domain.SubscriberEnabled)
		subscribe(t, repos, id, list, domain.SubscriptionConfirmed)
		want++
	}

	ids, err := r.Resolve(context.Background(), &domain.Campaign{
		ID: "c1", TargetListIDs: []string{list},
	})
	require.NoError(t, err)
	assert.Len(t, ids, want)
}
