// Package email delivers templated transactional emails through the
// Sendinblue (Brevo) API.
package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/application/port"
)

// DefaultAPIURL is the transactional email endpoint
const DefaultAPIURL = "https://api.brevo.com/v3/smtp/email"

// Config holds the email provider configuration
type Config struct {
	APIURL string
	APIKey string
	// DryRun logs messages instead of sending them
	DryRun  bool
	Timeout time.Duration
}

// Sender implements port.Notifier
type Sender struct {
	apiURL     string
	apiKey     string
	dryRun     bool
	httpClient *http.Client
	logger     *zap.Logger
}

// NewSender creates a new email sender
func NewSender(cfg Config, logger *zap.Logger) *Sender {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Sender{
		apiURL:     apiURL,
		apiKey:     cfg.APIKey,
		dryRun:     cfg.DryRun,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type attachment struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type transactionalEmail struct {
	To         []recipient            `json:"to"`
	CC         []recipient            `json:"cc,omitempty"`
	TemplateID int64                  `json:"templateId"`
	Params     map[string]interface{} `json:"params,omitempty"`
	Attachment []attachment           `json:"attachment,omitempty"`
}

// Send posts a templated email
func (s *Sender) Send(ctx context.Context, msg port.EmailMessage) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("email has no recipient")
	}
	if msg.TemplateID <= 0 {
		return fmt.Errorf("email has no template id")
	}

	payload := buildPayload(msg)

	if s.dryRun {
		s.logger.Info("Email dry run",
			zap.Int64("template_id", msg.TemplateID),
			zap.String("to", msg.To[0].Email),
			zap.Int("cc", len(msg.CC)),
			zap.Int("attachments", len(msg.Attachments)))
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal email: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("api-key", s.apiKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		s.logger.Error("Failed to send email",
			zap.Int64("template_id", msg.TemplateID),
			zap.Error(err))
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		s.logger.Error("Email provider returned error",
			zap.Int64("template_id", msg.TemplateID),
			zap.Int("status", resp.StatusCode),
			zap.String("response", string(respBody)))
		return fmt.Errorf("email provider returned status %d: %s", resp.StatusCode, string(respBody))
	}

	s.logger.Info("Email sent",
		zap.Int64("template_id", msg.TemplateID),
		zap.String("to", msg.To[0].Email),
		zap.String("response", string(respBody)))
	return nil
}

func buildPayload(msg port.EmailMessage) transactionalEmail {
	payload := transactionalEmail{
		To:         recipients(msg.To),
		CC:         recipients(msg.CC),
		TemplateID: msg.TemplateID,
		Params:     msg.Params,
	}
	for _, a := range msg.Attachments {
		payload.Attachment = append(payload.Attachment, attachment{
			Name:    a.Name,
			Content: base64.StdEncoding.EncodeToString(a.Content),
		})
	}
	return payload
}

func recipients(in []port.EmailRecipient) []recipient {
	if len(in) == 0 {
		return nil
	}
	out := make([]recipient, 0, len(in))
	for _, r := range in {
		out = append(out, recipient{Email: r.Email, Name: r.Name})
	}
	return out
}

// Verify interface compliance
var _ port.Notifier = (*Sender)(nil)
