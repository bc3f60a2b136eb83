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

// TemplateRepo implements campaign.TemplateRepo against PostgreSQL.
type TemplateRepo struct{ db *sql.DB }

// NewTemplateRepo creates a Postgres-backed template repository.
func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

const templateColumns = `id, name, template_type, COALESCE(subject,''), body_html, is_default, created_at, updated_at`

func scanTemplate(row interface{ Scan(...interface{}) error }) (*domain.Template, error) {
	t := &domain.Template{}
	err := row.Scan(&t.ID, &t.Name, &t.Type, &t.Subject, &t.BodyHTML, &t.IsDefault, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *TemplateRepo) Get(ctx context.Context, id string) (*domain.Template, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+templateColumns+` FROM templates WHERE id = $1
	`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (r *TemplateRepo) GetDefault(ctx context.Context, typ domain.TemplateType) (*domain.Template, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+templateColumns+` FROM templates
		WHERE template_type = $1 AND is_default
	`, typ)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default template: %w", err)
	}
	return t, nil
}

func (r *TemplateRepo) Create(ctx context.Context, t *domain.Template) (string, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO templates (id, name, template_type, subject, body_html, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, false, NOW(), NOW())
	`, t.ID, t.Name, t.Type, t.Subject, t.BodyHTML)
	if err != nil {
		return "", fmt.Errorf("create template: %w", err)
	}
	if t.IsDefault {
		if err := r.SetDefault(ctx, t.ID); err != nil {
			return "", err
		}
	}
	return t.ID, nil
}

func (r *TemplateRepo) Update(ctx context.Context, id string, t *domain.Template) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE templates
		SET name = $1, subject = $2, body_html = $3, updated_at = NOW()
		WHERE id = $4
	`, t.Name, t.Subject, t.BodyHTML, id)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	return requireRow(res, campaign.ErrTemplateNotFound)
}

func (r *TemplateRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM templates WHERE id = $1 AND NOT is_default`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM templates WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("delete template: %w", err)
		}
		if exists {
			return campaign.ErrConflict
		}
		return campaign.ErrTemplateNotFound
	}
	return nil
}

// SetDefault swaps the default flag in one serializable transaction. A
// concurrent SetDefault surfaces as ErrConflict; the service retries.
func (r *TemplateRepo) SetDefault(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin set default: %w", err)
	}
	defer tx.Rollback()

	var typ domain.TemplateType
	err = tx.QueryRowContext(ctx, `SELECT template_type FROM templates WHERE id = $1`, id).Scan(&typ)
	if err == sql.ErrNoRows {
		return campaign.ErrTemplateNotFound
	}
	if err != nil {
		return fmt.Errorf("set default template: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE templates SET is_default = false, updated_at = NOW()
		WHERE template_type = $1 AND is_default AND id <> $2
	`, typ, id); err != nil {
		return serializationErr("unset previous default", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE templates SET is_default = true, updated_at = NOW()
		WHERE id = $1
	`, id); err != nil {
		return serializationErr("set default template", err)
	}
	if err := tx.Commit(); err != nil {
		return serializationErr("commit set default", err)
	}
	return nil
}

// serializationErr maps Postgres serialization failures to ErrConflict.
func serializationErr(op string, err error) error {
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "40001" {
		return campaign.ErrConflict
	}
	return fmt.Errorf("%s: %w", op, err)
}
