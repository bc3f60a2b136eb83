// Package mailing provides the outbound transports behind the
// sending.Mailer contract: plain SMTP and the SparkPost HTTP API.
package mailing

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTPMailer delivers through a plain SMTP relay.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
}

// NewSMTPMailer creates an SMTP-backed mailer.
func NewSMTPMailer(host string, port int, username, password string) *SMTPMailer {
	return &SMTPMailer{host: host, port: port, username: username, password: password}
}

// Send delivers one message. Each call dials a fresh connection; batch
// sizing upstream keeps the connection churn acceptable for a relay.
func (m *SMTPMailer) Send(_ context.Context, from, to, subject, htmlBody, plainBody string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	if plainBody != "" {
		msg.SetBody("text/plain", plainBody)
		msg.AddAlternative("text/html", htmlBody)
	} else {
		msg.SetBody("text/html", htmlBody)
	}

	d := gomail.NewDialer(m.host, m.port, m.username, m.password)
	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}
