package mailing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const sparkpostBaseURL = "https://api.sparkpost.com/api/v1"

// SparkPostMailer delivers through the SparkPost transmissions API. ESP-side
// open and click tracking is disabled; the engine does its own.
type SparkPostMailer struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewSparkPostMailer creates a SparkPost-backed mailer.
func NewSparkPostMailer(apiKey string) *SparkPostMailer {
	return &SparkPostMailer{
		apiKey:  apiKey,
		baseURL: sparkpostBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// SetBaseURL points the mailer at a different API host, mainly for tests.
func (m *SparkPostMailer) SetBaseURL(u string) { m.baseURL = u }

func (m *SparkPostMailer) Send(ctx context.Context, from, to, subject, htmlBody, plainBody string) error {
	transmission := map[string]interface{}{
		"recipients": []map[string]interface{}{
			{"address": map[string]string{"email": to}},
		},
		"content": map[string]interface{}{
			"from":    map[string]string{"email": from},
			"subject": subject,
			"html":    htmlBody,
			"text":    plainBody,
		},
		"options": map[string]interface{}{
			"open_tracking":  false,
			"click_tracking": false,
		},
	}

	body, err := json.Marshal(transmission)
	if err != nil {
		return fmt.Errorf("encode transmission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/transmissions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("sparkpost request: %w", err)
	}
	defer resp.Body.Close()

	var spResp struct {
		Results struct {
			TotalAcceptedRecipients int    `json:"total_accepted_recipients"`
			ID                      string `json:"id"`
		} `json:"results"`
		Errors []struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"errors"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&spResp)

	if resp.StatusCode != http.StatusOK || len(spResp.Errors) > 0 {
		msg := "sparkpost error"
		if len(spResp.Errors) > 0 {
			msg = spResp.Errors[0].Message
		}
		return fmt.Errorf("sparkpost send to %s: %s (status %d)", to, msg, resp.StatusCode)
	}
	if spResp.Results.TotalAcceptedRecipients == 0 {
		return fmt.Errorf("sparkpost send to %s: no recipients accepted", to)
	}
	return nil
}
