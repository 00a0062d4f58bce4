package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// EmailSender delivers a rendered message.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// HTTPMailer posts messages as JSON to a transactional mail API.
type HTTPMailer struct {
	client *resty.Client
	from   string
}

type mailRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

type mailResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func NewHTTPMailer(baseURL, apiKey, from string) *HTTPMailer {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(3*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &HTTPMailer{client: client, from: from}
}

// Client exposes the underlying resty client so tests can intercept it.
func (m *HTTPMailer) Client() *resty.Client {
	return m.client
}

func (m *HTTPMailer) SendEmail(ctx context.Context, to, subject, body string) error {
	var out mailResponse
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(mailRequest{From: m.from, To: to, Subject: subject, Text: body}).
		SetResult(&out).
		SetError(&out).
		Post("/messages")
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("send mail: status %d: %s", resp.StatusCode(), out.Message)
	}
	return nil
}

// LogMailer only logs messages. It is used when no mail API is configured.
type LogMailer struct {
	Logger zerolog.Logger
}

func (m LogMailer) SendEmail(_ context.Context, to, subject, _ string) error {
	m.Logger.Info().Str("to", to).Str("subject", subject).Msg("mail delivery disabled, message dropped")
	return nil
}
