package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// TelegramNotifier sends alerts through the Telegram Bot API as MarkdownV2.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

// NewTelegramNotifier creates a notifier posting to chatID with botToken.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  "https://api.telegram.org",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	msg := map[string]string{
		"chat_id":    t.chatID,
		"text":       telegramText(alert),
		"parse_mode": "MarkdownV2",
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	if err := postJSON(ctx, t.client, "telegram", url, msg); err != nil {
		return err
	}
	log.Printf("[telegram] %s delivered", summary(alert))
	return nil
}

// telegramText lays an alert out as a bold summary, the message, and the
// simulated time in italics.
func telegramText(a Alert) string {
	var b strings.Builder
	b.WriteString(levelIcon(a.Level))
	b.WriteString(" *")
	b.WriteString(escapeMarkdown(summary(a)))
	b.WriteString("*\n\n")
	if a.Message != "" {
		b.WriteString(escapeMarkdown(a.Message))
		b.WriteString("\n")
	}
	b.WriteString("_")
	b.WriteString(escapeMarkdown("sim " + a.SimTime.Format("Mon 2006-01-02 15:04")))
	b.WriteString("_")
	return b.String()
}

const markdownSpecials = "_*[]()~`>#+-=|{}.!"

// escapeMarkdown backslash-escapes MarkdownV2 control characters.
func escapeMarkdown(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(markdownSpecials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
