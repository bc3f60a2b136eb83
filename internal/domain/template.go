package domain

import "time"

// TemplateType categorizes reusable templates. At most one template per type
// may be the default; maintaining that invariant is a repository concern and
// must be transactional.
type TemplateType string

const (
	TemplateCampaign TemplateType = "campaign"
	TemplateOptIn    TemplateType = "optin"
)

// Template is a named reusable content body. Campaign templates wrap the
// campaign body at the content slot during rendering.
type Template struct {
	ID        string       `json:"id" db:"id"`
	Name      string       `json:"name" db:"name"`
	Type      TemplateType `json:"type" db:"template_type"`
	Subject   string       `json:"subject" db:"subject"`
	BodyHTML  string       `json:"body_html" db:"body_html"`
	IsDefault bool         `json:"is_default" db:"is_default"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}
