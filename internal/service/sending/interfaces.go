// Package sending defines the outbound delivery contract for the engine.
//
// Actual transport (SMTP, SparkPost, or any other ESP) lives behind the
// Mailer interface; implementations are in internal/mailing. The dispatcher
// treats a Mailer error as a per-recipient failure, never as a batch abort.
package sending

import "context"

// Mailer delivers a single rendered message. Implementations must be safe
// for concurrent use; delivery is at-least-once from the engine's point of
// view, with dedupe handled downstream at the stats layer.
type Mailer interface {
	Send(ctx context.Context, from, to, subject, htmlBody, plainBody string) error
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, from, to, subject, htmlBody, plainBody string) error

// Send calls f.
func (f MailerFunc) Send(ctx context.Context, from, to, subject, htmlBody, plainBody string) error {
	return f(ctx, from, to, subject, htmlBody, plainBody)
}
