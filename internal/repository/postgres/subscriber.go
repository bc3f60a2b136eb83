package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// SubscriberRepo implements campaign.SubscriberRepo against PostgreSQL.
// Attributes are stored as JSONB.
type SubscriberRepo struct{ db *sql.DB }

// NewSubscriberRepo creates a Postgres-backed subscriber repository.
func NewSubscriberRepo(db *sql.DB) *SubscriberRepo { return &SubscriberRepo{db: db} }

func (r *SubscriberRepo) GetByID(ctx context.Context, id string) (*domain.Subscriber, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

func (r *SubscriberRepo) GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	return r.get(ctx, `WHERE email = $1`, domain.NormalizeEmail(email))
}

func (r *SubscriberRepo) get(ctx context.Context, where string, arg interface{}) (*domain.Subscriber, error) {
	s := &domain.Subscriber{}
	var attribs []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, COALESCE(name,''), COALESCE(attribs,'{}'), status, created_at, updated_at
		FROM subscribers `+where,
		arg,
	).Scan(&s.ID, &s.Email, &s.Name, &attribs, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	if len(attribs) > 0 {
		if err := json.Unmarshal(attribs, &s.Attribs); err != nil {
			return nil, fmt.Errorf("decode subscriber attribs: %w", err)
		}
	}
	return s, nil
}

func (r *SubscriberRepo) ListEnabledByIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM subscribers
		WHERE id = ANY($1) AND status = 'enabled'
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("filter enabled subscribers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subscriber id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
