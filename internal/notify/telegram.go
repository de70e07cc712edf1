package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramSender delivers alerts via the Telegram Bot API.
type TelegramSender struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:   token,
		chatID:  chatID,
		apiBase: telegramAPIBase,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// Send posts the alert with sendMessage, title in bold.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(t.apiBase, "/"), t.token)
	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n%s", title, message),
		"parse_mode": "Markdown",
	}
	if err := postJSON(ctx, t.client, url, payload); err != nil {
		// The URL embeds the bot token; keep it out of the error.
		return fmt.Errorf("telegram: %w", redactToken(err, t.token))
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redactToken(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "<redacted>"), err: err}
}
