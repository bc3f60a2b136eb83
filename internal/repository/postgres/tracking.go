package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// TrackingEventRepo implements campaign.TrackingEventRepo against
// PostgreSQL. Claims are a column on the event row; FOR UPDATE SKIP LOCKED
// keeps concurrent claimants from blocking each other, and claims older
// than staleClaimAge are treated as abandoned.
type TrackingEventRepo struct{ db *sql.DB }

// NewTrackingEventRepo creates a Postgres-backed tracking event repository.
func NewTrackingEventRepo(db *sql.DB) *TrackingEventRepo { return &TrackingEventRepo{db: db} }

const staleClaimAge = "5 minutes"

func (r *TrackingEventRepo) Insert(ctx context.Context, e *domain.TrackingEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tracking_events
			(id, event_type, campaign_id, subscriber_id, link_id, user_agent, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`, e.ID, e.Type, e.CampaignID, e.SubscriberID, e.LinkID, e.UserAgent, e.IPAddress)
	if err != nil {
		return fmt.Errorf("insert tracking event: %w", err)
	}
	return nil
}

func (r *TrackingEventRepo) ClaimUnprocessed(ctx context.Context, campaignID, claimID string, limit int) ([]domain.TrackingEvent, error) {
	args := []interface{}{claimID, limit}
	scope := ""
	if campaignID != "" {
		scope = " AND campaign_id = $3"
		args = append(args, campaignID)
	}

	rows, err := r.db.QueryContext(ctx, `
		UPDATE tracking_events
		SET claim_id = $1, claimed_at = NOW()
		WHERE id IN (
			SELECT id FROM tracking_events
			WHERE processed_at IS NULL
			  AND (claim_id IS NULL OR claimed_at < NOW() - INTERVAL '`+staleClaimAge+`')`+scope+`
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, event_type, campaign_id, subscriber_id, link_id,
		          COALESCE(user_agent,''), COALESCE(ip_address,''), created_at, processed_at
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("claim tracking events: %w", err)
	}
	defer rows.Close()

	var out []domain.TrackingEvent
	for rows.Next() {
		var e domain.TrackingEvent
		if err := rows.Scan(&e.ID, &e.Type, &e.CampaignID, &e.SubscriberID, &e.LinkID,
			&e.UserAgent, &e.IPAddress, &e.CreatedAt, &e.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan tracking event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *TrackingEventRepo) MarkProcessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE tracking_events
		SET processed_at = NOW(), claim_id = NULL, claimed_at = NULL
		WHERE id = ANY($1) AND processed_at IS NULL
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark tracking events processed: %w", err)
	}
	return nil
}

func (r *TrackingEventRepo) ReleaseClaim(ctx context.Context, claimID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tracking_events
		SET claim_id = NULL, claimed_at = NULL
		WHERE claim_id = $1 AND processed_at IS NULL
	`, claimID)
	if err != nil {
		return fmt.Errorf("release tracking event claim: %w", err)
	}
	return nil
}

// LinkRepo implements campaign.LinkRepo against PostgreSQL. The unique
// index on url plus the on-conflict insert gives one identity per URL under
// concurrent renders.
type LinkRepo struct{ db *sql.DB }

// NewLinkRepo creates a Postgres-backed link repository.
func NewLinkRepo(db *sql.DB) *LinkRepo { return &LinkRepo{db: db} }

func (r *LinkRepo) GetOrCreate(ctx context.Context, url string) (*domain.Link, error) {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO links (id, url, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (url) DO NOTHING
	`, uuid.New().String(), url); err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}

	l := &domain.Link{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, url, created_at FROM links WHERE url = $1
	`, url).Scan(&l.ID, &l.URL, &l.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	return l, nil
}

func (r *LinkRepo) Get(ctx context.Context, id string) (*domain.Link, error) {
	l := &domain.Link{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, url, created_at FROM links WHERE id = $1
	`, id).Scan(&l.ID, &l.URL, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	return l, nil
}
