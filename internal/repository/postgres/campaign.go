// Package postgres implements the repository contracts in service/campaign
// against PostgreSQL with raw SQL through database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// statsColumns maps stat fields to their columns. Increment and set queries
// are built from this map only, never from caller input.
var statsColumns = map[domain.StatsField]string{
	domain.StatsToSend:       "to_send",
	domain.StatsSent:         "sent",
	domain.StatsFailed:       "failed",
	domain.StatsViews:        "views",
	domain.StatsClicks:       "clicks",
	domain.StatsBounces:      "bounces",
	domain.StatsUnsubscribes: "unsubscribes",
}

// CampaignRepo implements campaign.CampaignRepo against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `
	id, name, subject, from_email,
	COALESCE(body_html,''), COALESCE(body_plain,''), content_type,
	template_id, target_list_ids, send_at, status, tags,
	to_send, sent, failed, views, clicks, bounces, unsubscribes,
	started_at, finished_at, created_at, updated_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var listIDs, tags pq.StringArray
	err := row.Scan(
		&c.ID, &c.Name, &c.Subject, &c.FromEmail,
		&c.BodyHTML, &c.BodyPlain, &c.ContentType,
		&c.TemplateID, &listIDs, &c.SendAt, &c.Status, &tags,
		&c.Stats.ToSend, &c.Stats.Sent, &c.Stats.Failed, &c.Stats.Views,
		&c.Stats.Clicks, &c.Stats.Bounces, &c.Stats.Unsubscribes,
		&c.StartedAt, &c.FinishedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.TargetListIDs = []string(listIDs)
	c.Tags = []string(tags)
	return c, nil
}

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE id = $1
	`, id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	countQ := `SELECT COUNT(*) FROM campaigns`
	countArgs := []interface{}{}
	if f.Status != "" {
		countQ += ` WHERE status = $1`
		countArgs = append(countArgs, f.Status)
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countQ, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := `SELECT ` + campaignColumns + ` FROM campaigns`
	args := []interface{}{}
	idx := 1
	if f.Status != "" {
		q += fmt.Sprintf(" WHERE status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) (string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = domain.CampaignDraft
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, name, subject, from_email, body_html, body_plain, content_type,
			 template_id, target_list_ids, send_at, status, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
	`, c.ID, c.Name, c.Subject, c.FromEmail, c.BodyHTML, c.BodyPlain, c.ContentType,
		c.TemplateID, pq.Array(c.TargetListIDs), c.SendAt, c.Status, pq.Array(c.Tags))
	if err != nil {
		return "", fmt.Errorf("create campaign: %w", err)
	}
	return c.ID, nil
}

func (r *CampaignRepo) Update(ctx context.Context, id string, u campaign.UpdateFields) error {
	sets := []string{}
	args := []interface{}{}
	idx := 1
	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Subject != nil {
		add("subject", *u.Subject)
	}
	if u.FromEmail != nil {
		add("from_email", *u.FromEmail)
	}
	if u.BodyHTML != nil {
		add("body_html", *u.BodyHTML)
	}
	if u.BodyPlain != nil {
		add("body_plain", *u.BodyPlain)
	}
	if u.TemplateID != nil {
		if *u.TemplateID == "" {
			add("template_id", nil)
		} else {
			add("template_id", *u.TemplateID)
		}
	}
	if u.TargetListIDs != nil {
		add("target_list_ids", pq.Array(*u.TargetListIDs))
	}
	if u.SendAt != nil {
		add("send_at", *u.SendAt)
	}

	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = NOW()")

	args = append(args, id)
	q := fmt.Sprintf("UPDATE campaigns SET %s WHERE id = $%d", strings.Join(sets, ", "), idx)
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	return requireRow(res, campaign.ErrNotFound)
}

func (r *CampaignRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM campaigns
		WHERE id = $1 AND status IN ('draft', 'cancelled')
	`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// distinguish missing from undeletable
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("delete campaign: %w", err)
		}
		if exists {
			return campaign.ErrInvalidTransition
		}
		return campaign.ErrNotFound
	}
	return nil
}

// UpdateStatus guards the transition in the WHERE clause so a lost race
// shows up as zero rows instead of an illegal state.
func (r *CampaignRepo) UpdateStatus(ctx context.Context, id string, to domain.CampaignStatus) error {
	sources := domain.TransitionSources(to)
	if len(sources) == 0 {
		return campaign.ErrInvalidTransition
	}
	srcs := make([]string, len(sources))
	for i, s := range sources {
		srcs[i] = string(s)
	}

	extra := ""
	switch to {
	case domain.CampaignRunning:
		extra = ", started_at = COALESCE(started_at, NOW())"
	case domain.CampaignFinished, domain.CampaignCancelled:
		extra = ", finished_at = NOW()"
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $1, updated_at = NOW()`+extra+`
		WHERE id = $2 AND status = ANY($3)
	`, to, id, pq.Array(srcs))
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("update campaign status: %w", err)
		}
		if exists {
			return campaign.ErrInvalidTransition
		}
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) IncrementStats(ctx context.Context, id string, deltas map[domain.StatsField]int64) error {
	return r.applyStats(ctx, id, deltas, true)
}

func (r *CampaignRepo) SetStats(ctx context.Context, id string, values map[domain.StatsField]int64) error {
	return r.applyStats(ctx, id, values, false)
}

func (r *CampaignRepo) applyStats(ctx context.Context, id string, m map[domain.StatsField]int64, increment bool) error {
	if len(m) == 0 {
		return nil
	}
	sets := make([]string, 0, len(m)+1)
	args := []interface{}{}
	idx := 1
	for field, v := range m {
		col, ok := statsColumns[field]
		if !ok {
			return fmt.Errorf("unknown stats field %q", field)
		}
		if increment {
			sets = append(sets, fmt.Sprintf("%s = %s + $%d", col, col, idx))
		} else {
			sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		}
		args = append(args, v)
		idx++
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	q := fmt.Sprintf("UPDATE campaigns SET %s WHERE id = $%d", strings.Join(sets, ", "), idx)
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update campaign stats: %w", err)
	}
	return requireRow(res, campaign.ErrNotFound)
}

func (r *CampaignRepo) ListDue(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE (status = 'scheduled' AND send_at IS NOT NULL AND send_at <= $1)
		   OR status = 'running'
		ORDER BY id
	`, now)
	if err != nil {
		return nil, fmt.Errorf("list due campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) DetachList(ctx context.Context, listID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET target_list_ids = array_remove(target_list_ids, $1), updated_at = NOW()
		WHERE $1 = ANY(target_list_ids)
		  AND status NOT IN ('finished', 'cancelled')
	`, listID)
	if err != nil {
		return 0, fmt.Errorf("detach list from campaigns: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// requireRow converts a zero-row update into the given sentinel.
func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
