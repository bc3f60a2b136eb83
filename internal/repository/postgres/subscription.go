package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// SubscriptionRepo implements campaign.SubscriptionRepo against PostgreSQL.
type SubscriptionRepo struct{ db *sql.DB }

// NewSubscriptionRepo creates a Postgres-backed subscription repository.
func NewSubscriptionRepo(db *sql.DB) *SubscriptionRepo { return &SubscriptionRepo{db: db} }

// ListConfirmedSubscriberIDs pages in subscriber-ID order. Pages are
// separate queries, so a status change between them can shift rows across
// page boundaries; the dispatcher's eligibility recheck and the per-run
// attempted set absorb any resulting skip or repeat.
func (r *SubscriptionRepo) ListConfirmedSubscriberIDs(ctx context.Context, listID string, page, perPage int) ([]string, int, error) {
	if page < 1 {
		page = 1
	}
	var total int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM subscriptions
		WHERE list_id = $1 AND status = 'confirmed'
	`, listID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count confirmed subscriptions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT subscriber_id FROM subscriptions
		WHERE list_id = $1 AND status = 'confirmed'
		ORDER BY subscriber_id
		LIMIT $2 OFFSET $3
	`, listID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list confirmed subscriptions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, 0, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, id)
	}
	return out, total, rows.Err()
}

func (r *SubscriptionRepo) Upsert(ctx context.Context, s *domain.Subscription) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscriptions
			(subscriber_id, list_id, status, subscribed_at, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW(), NOW())
		ON CONFLICT (subscriber_id, list_id)
		DO UPDATE SET status = EXCLUDED.status, updated_at = NOW()
	`, s.SubscriberID, s.ListID, s.Status)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepo) UpdateStatus(ctx context.Context, subscriberID, listID string, status domain.SubscriptionStatus) error {
	extra := ""
	if status == domain.SubscriptionUnsubscribed {
		extra = ", unsubscribed_at = NOW()"
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = $1, updated_at = NOW()`+extra+`
		WHERE subscriber_id = $2 AND list_id = $3
	`, status, subscriberID, listID)
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	return requireRow(res, campaign.ErrSubscriberNotFound)
}

func (r *SubscriptionRepo) DeleteByList(ctx context.Context, listID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE list_id = $1`, listID)
	if err != nil {
		return 0, fmt.Errorf("delete subscriptions for list: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ListRepo implements campaign.ListRepo against PostgreSQL.
type ListRepo struct{ db *sql.DB }

// NewListRepo creates a Postgres-backed mailing list repository.
func NewListRepo(db *sql.DB) *ListRepo { return &ListRepo{db: db} }

func (r *ListRepo) Get(ctx context.Context, id string) (*domain.MailingList, error) {
	l := &domain.MailingList{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, visibility, opt_in, created_at, updated_at
		FROM lists
		WHERE id = $1
	`, id).Scan(&l.ID, &l.Name, &l.Visibility, &l.OptIn, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrListNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get list: %w", err)
	}
	return l, nil
}

func (r *ListRepo) Create(ctx context.Context, l *domain.MailingList) (string, error) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.Visibility == "" {
		l.Visibility = domain.ListPrivate
	}
	if l.OptIn == "" {
		l.OptIn = domain.OptInSingle
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lists (id, name, visibility, opt_in, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
	`, l.ID, l.Name, l.Visibility, l.OptIn)
	if err != nil {
		return "", fmt.Errorf("create list: %w", err)
	}
	return l.ID, nil
}

func (r *ListRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM lists WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	return requireRow(res, campaign.ErrListNotFound)
}
