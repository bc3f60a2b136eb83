// Package renderer assembles the final message body for one recipient:
// Liquid personalization, template wrapping at the content slot, link
// rewriting for click tracking, and the open pixel.
package renderer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// ContentSlot is the marker a wrapping template uses for the campaign body.
const ContentSlot = "{{ content }}"

var hrefRegex = regexp.MustCompile(`href="(https?://[^"]+)"`)

// Renderer renders campaign messages. Parsed Liquid templates are cached per
// campaign; Invalidate drops the cache entry when a campaign body changes.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // campaign ID -> *liquid.Template
	links  campaign.LinkRepo
	signer *URLSigner
	track  bool
}

// New creates a Renderer. When trackLinks is false, bodies are personalized
// but links are left untouched and no pixel is appended.
func New(links campaign.LinkRepo, signer *URLSigner, trackLinks bool) *Renderer {
	r := &Renderer{
		engine: liquid.NewEngine(),
		links:  links,
		signer: signer,
		track:  trackLinks,
	}
	r.registerFilters()
	return r
}

func (r *Renderer) registerFilters() {
	r.engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		s := fmt.Sprintf("%v", value)
		if s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})
	r.engine.RegisterFilter("capitalize", func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	})
}

// Message is a fully rendered email for one recipient.
type Message struct {
	Subject   string
	BodyHTML  string
	BodyPlain string
}

// Render produces the message for one subscriber. The wrapping template is
// applied first, then Liquid substitution runs over the merged document so
// template chrome can use the same variables as the body.
func (r *Renderer) Render(ctx context.Context, c *domain.Campaign, tpl *domain.Template, sub *domain.Subscriber) (*Message, error) {
	merged := c.BodyHTML
	if tpl != nil && tpl.BodyHTML != "" {
		if strings.Contains(tpl.BodyHTML, ContentSlot) {
			merged = strings.Replace(tpl.BodyHTML, ContentSlot, c.BodyHTML, 1)
		} else {
			merged = tpl.BodyHTML + c.BodyHTML
		}
	}

	bindings := r.bindings(c, sub)

	html, err := r.renderCached(c.ID, merged, bindings)
	if err != nil {
		return nil, fmt.Errorf("render campaign %s: %w", c.ID, err)
	}

	subject, err := r.engine.ParseAndRenderString(c.Subject, bindings)
	if err != nil {
		return nil, fmt.Errorf("render subject for campaign %s: %w", c.ID, err)
	}

	var plain string
	if c.BodyPlain != "" {
		plain, err = r.engine.ParseAndRenderString(c.BodyPlain, bindings)
		if err != nil {
			return nil, fmt.Errorf("render plain body for campaign %s: %w", c.ID, err)
		}
	}

	if r.track {
		html, err = r.rewriteLinks(ctx, html, c.ID, sub.ID)
		if err != nil {
			return nil, err
		}
		html += fmt.Sprintf(`<img src="%s" alt="" width="1" height="1" />`, r.signer.PixelURL(c.ID, sub.ID))
	}

	return &Message{Subject: subject, BodyHTML: html, BodyPlain: plain}, nil
}

func (r *Renderer) bindings(c *domain.Campaign, sub *domain.Subscriber) map[string]interface{} {
	subscriber := map[string]interface{}{
		"id":    sub.ID,
		"email": sub.Email,
		"name":  sub.Name,
	}
	for k, v := range sub.Attribs {
		subscriber[k] = v
	}
	return map[string]interface{}{
		"subscriber": subscriber,
		"campaign": map[string]interface{}{
			"id":   c.ID,
			"name": c.Name,
		},
		"unsubscribe_url": r.signer.UnsubscribeURL(c.ID, sub.ID),
		"view_url":        r.signer.ViewURL(c.ID, sub.ID),
	}
}

// renderCached parses once per campaign and reuses the parsed template for
// every recipient of the run.
func (r *Renderer) renderCached(campaignID, body string, bindings map[string]interface{}) (string, error) {
	if cached, ok := r.cache.Load(campaignID); ok {
		return cached.(*liquid.Template).RenderString(bindings)
	}
	tpl, err := r.engine.ParseString(body)
	if err != nil {
		return "", err
	}
	r.cache.Store(campaignID, tpl)
	return tpl.RenderString(bindings)
}

// Invalidate drops the cached parse for a campaign.
func (r *Renderer) Invalidate(campaignID string) {
	r.cache.Delete(campaignID)
}

// rewriteLinks replaces every absolute href with a signed redirect through
// the click tracker. Link identities are canonical per URL; the per-call
// cache avoids hitting the repo twice for a repeated URL in one body.
func (r *Renderer) rewriteLinks(ctx context.Context, html, campaignID, subscriberID string) (string, error) {
	seen := make(map[string]string)
	var rewriteErr error
	out := hrefRegex.ReplaceAllStringFunc(html, func(match string) string {
		if rewriteErr != nil {
			return match
		}
		orig := hrefRegex.FindStringSubmatch(match)[1]
		if strings.Contains(orig, "/track/") {
			return match
		}
		linkID, ok := seen[orig]
		if !ok {
			link, err := r.links.GetOrCreate(ctx, orig)
			if err != nil {
				rewriteErr = fmt.Errorf("register link %q: %w", orig, err)
				return match
			}
			linkID = link.ID
			seen[orig] = linkID
		}
		return fmt.Sprintf(`href="%s"`, r.signer.ClickURL(campaignID, subscriberID, linkID))
	})
	if rewriteErr != nil {
		logger.Error("link rewrite failed", "campaign_id", campaignID, "error", rewriteErr.Error())
		return "", rewriteErr
	}
	return out, nil
}
