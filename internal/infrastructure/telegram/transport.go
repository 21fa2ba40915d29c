package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"DisclosureMonitor/internal/domain"
	"DisclosureMonitor/internal/ports"
)

// ErrSend wraps every delivery failure.
var ErrSend = errors.New("telegram send")

const (
	defaultAPIBase = "https://api.telegram.org"
	// Telegram rejects messages longer than this many characters.
	maxMessageLen = 4096
)

// Transport delivers alerts to a Telegram chat via the bot API.
type Transport struct {
	apiBase  string
	botToken string
	chatID   string
	client   *http.Client
}

var _ ports.Transport = (*Transport)(nil)

// Options configures the transport. APIBase defaults to the public bot API.
type Options struct {
	APIBase  string
	BotToken string
	ChatID   string
	Timeout  time.Duration
}

// NewTransport registers bot token and chat identifier.
func NewTransport(opts Options) *Transport {
	base := strings.TrimRight(opts.APIBase, "/")
	if base == "" {
		base = defaultAPIBase
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Transport{
		apiBase:  base,
		botToken: opts.BotToken,
		chatID:   opts.ChatID,
		client:   &http.Client{Timeout: timeout},
	}
}

// Send posts the plain-text rendering of msg. Attachments are not sent.
func (t *Transport) Send(ctx context.Context, msg domain.Message) error {
	if t.botToken == "" || t.chatID == "" {
		return fmt.Errorf("%w: transport misconfigured", ErrSend)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", messageText(msg))
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: new request: %v", ErrSend, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: do request: %v", ErrSend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s: %s", ErrSend, resp.Status, strings.TrimSpace(string(body)))
	}

	return nil
}

func messageText(msg domain.Message) string {
	text := msg.Subject + "\n\n" + msg.TextBody
	if r := []rune(text); len(r) > maxMessageLen {
		text = string(r[:maxMessageLen-1]) + "…"
	}
	return text
}
