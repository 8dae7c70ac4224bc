package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ReelRelay/internal/ports"
)

const defaultAPIURL = "https://api.telegram.org"

// Notifier sends run summaries to a Telegram chat via bot API.
type Notifier struct {
	apiURL   string
	botToken string
	chatID   string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		apiURL:   defaultAPIURL,
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// WithAPIURL points the notifier at another Bot API host.
func (n *Notifier) WithAPIURL(apiURL string) *Notifier {
	n.apiURL = strings.TrimRight(apiURL, "/")
	return n
}

// PublishSummary posts a plain-text message to the chat.
func (n *Notifier) PublishSummary(ctx context.Context, summary string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", summary)
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.method("sendMessage"), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return n.do(req, nil)
}

// BotInfo describes the bot and target chat as seen by the Bot API.
type BotInfo struct {
	Username  string
	ChatTitle string
}

// Validate checks the token with getMe and the chat access with getChat.
func (n *Notifier) Validate(ctx context.Context) (BotInfo, error) {
	var me struct {
		Username string `json:"username"`
	}
	if err := n.get(ctx, "getMe", nil, &me); err != nil {
		return BotInfo{}, fmt.Errorf("telegram getMe: %w", err)
	}

	var chat struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	}
	if err := n.get(ctx, "getChat", url.Values{"chat_id": {n.chatID}}, &chat); err != nil {
		return BotInfo{}, fmt.Errorf("telegram getChat %s: %w", n.chatID, err)
	}

	title := chat.Title
	if title == "" {
		title = fmt.Sprint(chat.ID)
	}
	return BotInfo{Username: me.Username, ChatTitle: title}, nil
}

func (n *Notifier) get(ctx context.Context, method string, params url.Values, result any) error {
	target := n.method(method)
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	return n.do(req, result)
}

func (n *Notifier) method(name string) string {
	return fmt.Sprintf("%s/bot%s/%s", n.apiURL, n.botToken, name)
}

func (n *Notifier) do(req *http.Request, result any) error {
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(raw, &envelope); err != nil || resp.StatusCode != http.StatusOK || !envelope.OK {
		if envelope.Description != "" {
			return fmt.Errorf("telegram error %s: %s", resp.Status, envelope.Description)
		}
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}
