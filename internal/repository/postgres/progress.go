package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// ProgressRepo implements campaign.ProgressRepo against PostgreSQL. Runs
// live in campaign_runs; the attempted set is one row per subscriber in
// campaign_run_attempts, inserted before dispatch.
type ProgressRepo struct{ db *sql.DB }

// NewProgressRepo creates a Postgres-backed progress repository.
func NewProgressRepo(db *sql.DB) *ProgressRepo { return &ProgressRepo{db: db} }

func (r *ProgressRepo) StartRun(ctx context.Context, campaignID string) (string, error) {
	id := uuid.New().String()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_runs (id, campaign_id, active, started_at)
		VALUES ($1, $2, true, NOW())
	`, id, campaignID)
	if err != nil {
		return "", fmt.Errorf("start campaign run: %w", err)
	}
	return id, nil
}

func (r *ProgressRepo) ActiveRun(ctx context.Context, campaignID string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM campaign_runs
		WHERE campaign_id = $1 AND active
		ORDER BY started_at DESC
		LIMIT 1
	`, campaignID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find active campaign run: %w", err)
	}
	return id, nil
}

func (r *ProgressRepo) MarkAttempted(ctx context.Context, runID string, subscriberIDs []string) error {
	if len(subscriberIDs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_run_attempts (run_id, subscriber_id, attempted_at)
		SELECT $1, unnest($2::text[]), NOW()
		ON CONFLICT (run_id, subscriber_id) DO NOTHING
	`, runID, pq.Array(subscriberIDs))
	if err != nil {
		return fmt.Errorf("mark subscribers attempted: %w", err)
	}
	return nil
}

func (r *ProgressRepo) ListAttempted(ctx context.Context, runID string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT subscriber_id FROM campaign_run_attempts WHERE run_id = $1
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list attempted subscribers: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan attempted subscriber: %w", err)
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

func (r *ProgressRepo) FinishRun(ctx context.Context, runID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_runs
		SET active = false, finished_at = NOW()
		WHERE id = $1
	`, runID)
	if err != nil {
		return fmt.Errorf("finish campaign run: %w", err)
	}
	return requireRow(res, campaign.ErrRunNotFound)
}
