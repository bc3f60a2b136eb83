package renderer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/repository/memory"
)

func newTestRenderer(track bool) (*Renderer, *memory.LinkRepo) {
	links := memory.NewLinkRepo()
	signer := NewURLSigner("test-signing-key", "https://track.example.com")
	return New(links, signer, track), links
}

func testSubscriber() *domain.Subscriber {
	return &domain.Subscriber{
		ID:    "sub-1",
		Email: "jamie@example.com",
		Name:  "Jamie",
		Attribs: map[string]any{
			"city": "Austin",
		},
	}
}

func TestRenderPersonalizes(t *testing.T) {
	r, _ := newTestRenderer(false)

	c := &domain.Campaign{
		ID:       "camp-1",
		Name:     "Welcome",
		Subject:  "Hi {{ subscriber.name }}",
		BodyHTML: "<p>Hello {{ subscriber.name }} from {{ subscriber.city }}</p>",
	}
	msg, err := r.Render(context.Background(), c, nil, testSubscriber())
	require.NoError(t, err)
	assert.Equal(t, "Hi Jamie", msg.Subject)
	assert.Contains(t, msg.BodyHTML, "Hello Jamie from Austin")
}

func TestRenderWrapsTemplateAtContentSlot(t *testing.T) {
	r, _ := newTestRenderer(false)

	c := &domain.Campaign{
		ID:       "camp-1",
		Subject:  "s",
		BodyHTML: "<p>body for {{ subscriber.name }}</p>",
	}
	tpl := &domain.Template{
		ID:       "tpl-1",
		BodyHTML: "<header>{{ campaign.name }}</header>{{ content }}<footer>bye</footer>",
	}
	c.Name = "Spring Sale"

	msg, err := r.Render(context.Background(), c, tpl, testSubscriber())
	require.NoError(t, err)
	assert.Contains(t, msg.BodyHTML, "<header>Spring Sale</header>")
	assert.Contains(t, msg.BodyHTML, "<p>body for Jamie</p>")
	assert.True(t, strings.HasSuffix(msg.BodyHTML, "<footer>bye</footer>"))
}

func TestRenderRewritesLinksAndAppendsPixel(t *testing.T) {
	r, links := newTestRenderer(true)

	c := &domain.Campaign{
		ID:      "camp-1",
		Subject: "s",
		BodyHTML: `<a href="https://example.com/sale">Sale</a>` +
			`<a href="https://example.com/sale">Again</a>` +
			`<a href="https://other.example.com/x">Other</a>`,
	}
	msg, err := r.Render(context.Background(), c, nil, testSubscriber())
	require.NoError(t, err)

	assert.NotContains(t, msg.BodyHTML, `href="https://example.com/sale"`)
	assert.Contains(t, msg.BodyHTML, "/track/click/")
	assert.Contains(t, msg.BodyHTML, "/track/open/")
	// same URL twice resolves to one canonical link
	assert.Equal(t, 2, links.Count())
}

func TestRenderUnsubscribeBinding(t *testing.T) {
	r, _ := newTestRenderer(false)

	c := &domain.Campaign{
		ID:       "camp-1",
		Subject:  "s",
		BodyHTML: `<a href="{{ unsubscribe_url }}">unsubscribe</a>`,
	}
	msg, err := r.Render(context.Background(), c, nil, testSubscriber())
	require.NoError(t, err)
	assert.Contains(t, msg.BodyHTML, "/track/unsubscribe/")
}

func TestRenderDefaultFilter(t *testing.T) {
	r, _ := newTestRenderer(false)

	c := &domain.Campaign{
		ID:       "camp-1",
		Subject:  "s",
		BodyHTML: `Hi {{ subscriber.nickname | default: "friend" }}`,
	}
	msg, err := r.Render(context.Background(), c, nil, testSubscriber())
	require.NoError(t, err)
	assert.Contains(t, msg.BodyHTML, "Hi friend")
}

func TestInvalidatePicksUpBodyChange(t *testing.T) {
	r, _ := newTestRenderer(false)

	c := &domain.Campaign{ID: "camp-1", Subject: "s", BodyHTML: "v1"}
	msg, err := r.Render(context.Background(), c, nil, testSubscriber())
	require.NoError(t, err)
	assert.Equal(t, "v1", msg.BodyHTML)

	c.BodyHTML = "v2"
	// cached parse still serves v1 until invalidated
	msg, err = r.Render(context.Background(), c, nil, testSubscriber())
	require.NoError(t, err)
	assert.Equal(t, "v1", msg.BodyHTML)

	r.Invalidate(c.ID)
	msg, err = r.Render(context.Background(), c, nil, testSubscriber())
	require.NoError(t, err)
	assert.Equal(t, "v2", msg.BodyHTML)
}

func TestURLSignerVerify(t *testing.T) {
	s := NewURLSigner("key", "https://t.example.com")

	u := s.ClickURL("camp-1", "sub-1", "link-1")
	parts := strings.Split(strings.TrimPrefix(u, "https://t.example.com/track/click/"), "/")
	require.Len(t, parts, 2)

	data, ok := s.Verify(parts[0], parts[1])
	assert.True(t, ok)
	assert.Equal(t, "camp-1|sub-1|link-1", data)

	_, ok = s.Verify(parts[0], "deadbeefdeadbeef")
	assert.False(t, ok)

	other := NewURLSigner("other-key", "https://t.example.com")
	_, ok = other.Verify(parts[0], parts[1])
	assert.False(t, ok)
}
