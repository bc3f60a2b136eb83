package mailing

import (
	"fmt"

	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/service/sending"
)

// NewMailer builds the configured transport.
func NewMailer(cfg config.MailerConfig) (sending.Mailer, error) {
	switch cfg.Provider {
	case "smtp", "":
		return NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password), nil
	case "sparkpost":
		if cfg.SparkPost.APIKey == "" {
			return nil, fmt.Errorf("sparkpost provider requires an API key")
		}
		return NewSparkPostMailer(cfg.SparkPost.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown mailer provider %q", cfg.Provider)
	}
}
