package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier sends alerts via Telegram Bot API as MarkdownV2 text
// rendered from the alert's signal or trade record.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

// NewTelegramNotifier creates a notifier for chatID using a @BotFather token.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  telegramAPI,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// SetBaseURL points the notifier at another Bot API host.
func (t *TelegramNotifier) SetBaseURL(u string) {
	t.baseURL = strings.TrimRight(u, "/")
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       telegramText(alert),
		"parse_mode": "MarkdownV2",
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}

	log.Printf("[telegram] sent %s for %s", alert.Event, alert.Symbol)
	return nil
}

// telegramText renders a headline and one "key: value" line per field.
func telegramText(a Alert) string {
	var m message
	switch {
	case a.Trade != nil:
		r := a.Trade
		m.head(outcomeEmoji(r.Outcome), r.Symbol, strings.ToUpper(r.Type)+" "+strings.ReplaceAll(r.Outcome, "_", " "))
		m.line("pattern", r.Pattern)
		m.line("entry", num(r.OpenPrice))
		if r.ExitPrice != nil {
			m.line("exit", num(*r.ExitPrice))
		} else {
			m.line("stop", num(r.CurrentStop))
			m.line("take", num(r.TakePrice))
			m.line("risk", num(r.RiskAmount))
		}
		m.line("R:R", r.riskRewardText())
		m.line("level", num(r.LevelPrice)+" from "+r.LevelFrom)
	case a.Signal != nil:
		r := a.Signal
		m.head("📍", r.Symbol, strings.ToUpper(r.Type)+" "+r.Pattern)
		m.line("candle", r.CandleAt+" close "+num(r.Candle.Close))
		m.line("level", r.LevelKind+" "+num(r.LevelPrice)+" from "+r.LevelFrom)
	default:
		emoji := "ℹ️"
		switch a.Level {
		case AlertWarning:
			emoji = "⚠️"
		case AlertCritical:
			emoji = "🚨"
		}
		m.head(emoji, a.Title, "")
		if a.Message != "" {
			m.b.WriteString("\n" + escapeMarkdown(a.Message))
		}
	}
	return m.b.String()
}

type message struct{ b strings.Builder }

func (m *message) head(emoji, bold, rest string) {
	m.b.WriteString(emoji + " *" + escapeMarkdown(bold) + "*")
	if rest != "" {
		m.b.WriteString(" " + escapeMarkdown(rest))
	}
	m.b.WriteString("\n")
}

func (m *message) line(k, v string) {
	m.b.WriteString("\n" + escapeMarkdown(k) + ": `" + escapeCode(v) + "`")
}

func outcomeEmoji(outcome string) string {
	switch outcome {
	case OutcomeTakeProfit:
		return "✅"
	case OutcomeStopLoss:
		return "🛑"
	case OutcomeBreakEven:
		return "⚖️"
	default:
		return "🟢"
	}
}

func num(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		if strings.IndexByte("_*[]()~`>#+-=|{}.!\\", s[i]) >= 0 {
			buf.WriteByte('\\')
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}

// escapeCode escapes the two characters special inside a code span.
func escapeCode(s string) string {
	return strings.NewReplacer("\\", "\\\\", "`", "\\`").Replace(s)
}
