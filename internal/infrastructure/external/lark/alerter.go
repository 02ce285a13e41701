package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/application/port"
)

// MessageSender is the part of the Lark message API the alerter needs
type MessageSender interface {
	SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error)
}

// Alerter implements port.OperatorAlerter by posting text messages to an operator chat
type Alerter struct {
	sender MessageSender
	chatID string
	logger *zap.Logger
}

// NewAlerter creates a new Lark alerter posting to chatID
func NewAlerter(sender MessageSender, chatID string, logger *zap.Logger) *Alerter {
	return &Alerter{
		sender: sender,
		chatID: chatID,
		logger: logger,
	}
}

// Alert posts title followed by one bullet per line
func (a *Alerter) Alert(ctx context.Context, title string, lines []string) error {
	if a.chatID == "" {
		return fmt.Errorf("alert chat id cannot be empty")
	}
	if title == "" {
		return fmt.Errorf("alert title cannot be empty")
	}

	content, err := textContent(formatAlert(title, lines))
	if err != nil {
		return err
	}

	messageID, err := a.sender.SendMessage(ctx, ReceiveIDTypeChat, a.chatID, "text", content)
	if err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}

	a.logger.Info("Operator alert sent",
		zap.String("title", title),
		zap.Int("lines", len(lines)),
		zap.String("message_id", messageID))
	return nil
}

func formatAlert(title string, lines []string) string {
	var b strings.Builder
	b.WriteString(title)
	for _, line := range lines {
		b.WriteString("\n- ")
		b.WriteString(line)
	}
	return b.String()
}

// textContent builds the JSON body of a Lark text message
func textContent(text string) (string, error) {
	raw, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("failed to marshal message content: %w", err)
	}
	return string(raw), nil
}

// Verify interface compliance
var (
	_ port.OperatorAlerter = (*Alerter)(nil)
	_ MessageSender        = (*SDKClient)(nil)
)
