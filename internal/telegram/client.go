// Package telegram provides a client for sending run notifications via Telegram Bot API.
// It formats an event-study run into a short MarkdownV2 summary and can upload
// the rendered chart, with retry logic for transient delivery failures.
package telegram

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/eventstudy/internal/models"
)

// sender is the part of the bot API the client uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications
type Client struct {
	bot            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newClient(bot, chatID, maxRetries, retryDelayBase)
}

func newClient(bot sender, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// SendSummary sends the run header and the post-treatment effects.
func (c *Client) SendSummary(run *models.Run, effects []models.EventEffect) error {
	msg := tgbotapi.NewMessage(c.chatID, formatSummary(run, effects))
	msg.ParseMode = "MarkdownV2"
	return c.send(msg)
}

// SendChart uploads the chart image at path with a plain-text caption.
func (c *Client) SendChart(path, caption string) error {
	photo := tgbotapi.NewPhoto(c.chatID, tgbotapi.FilePath(path))
	photo.Caption = caption
	return c.send(photo)
}

func (c *Client) send(msg tgbotapi.Chattable) error {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// formatSummary formats a run into a Telegram message
func formatSummary(run *models.Run, effects []models.EventEffect) string {
	var b strings.Builder

	b.WriteString("📊 *Event study finished*\n\n")
	if run != nil {
		fmt.Fprintf(&b, "📁 Dataset: %s\n", escapeMarkdownV2(run.Dataset))
		fmt.Fprintf(&b, "📅 Run: %s\n", escapeMarkdownV2(run.StartedAt.Format("2006-01-02 15:04:05")))
		fmt.Fprintf(&b, "⏱ Took: %s\n", escapeMarkdownV2(formatDuration(run.FinishedAt.Sub(run.StartedAt))))
		fmt.Fprintf(&b, "🔢 N \\= %d, clusters \\= %d, regressors \\= %d\n\n", run.N, run.Clusters, run.Regressors)
	}

	for _, e := range effects {
		if e.EventTime < 0 {
			continue
		}
		marker := ""
		if !math.IsNaN(e.PValue) && e.PValue < 0.05 {
			marker = " \\*"
		}
		line := fmt.Sprintf("t=%+d: %.3f [%.3f, %.3f]", e.EventTime, e.Coef, e.CILower, e.CIUpper)
		fmt.Fprintf(&b, "`%s`%s\n", escapeCode(line), marker)
	}

	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	// Characters that need escaping in MarkdownV2:
	// _ * [ ] ( ) ~ ` > # + - = | { } . !
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// escapeCode escapes text placed inside a code span, where only ` and \ are special.
func escapeCode(text string) string {
	r := strings.NewReplacer("\\", "\\\\", "`", "\\`")
	return r.Replace(text)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d >= time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
