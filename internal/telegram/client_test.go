package telegram

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/eventstudy/internal/models"
)

type fakeBot struct {
	failures int
	calls    int
	sent     []tgbotapi.Chattable
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.calls++
	if f.calls <= f.failures {
		return tgbotapi.Message{}, errors.New("temporary failure")
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{1 * time.Hour, "1h"},
		{2 * time.Hour, "2h"},
		{30 * time.Minute, "30m"},
		{1 * time.Minute, "1m"},
		{1500 * time.Millisecond, "1s"},
	}

	for _, tt := range tests {
		result := formatDuration(tt.duration)
		if result != tt.expected {
			t.Errorf("formatDuration(%v) = %s, expected %s", tt.duration, result, tt.expected)
		}
	}
}

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"inc_rate_ES.dta", "inc\\_rate\\_ES\\.dta"},
		{"2024-03-01", "2024\\-03\\-01"},
		{"plain", "plain"},
		{"a\\b", "a\\\\b"},
	}
	for _, tt := range tests {
		if got := escapeMarkdownV2(tt.in); got != tt.want {
			t.Errorf("escapeMarkdownV2(%q) = %q, expected %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatSummary(t *testing.T) {
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	run := &models.Run{
		Dataset:    "inc_rate_ES.dta",
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		N:          900,
		Clusters:   50,
		Regressors: 120,
	}
	effects := []models.EventEffect{
		{Estimate: models.Estimate{Var: "exp_Mpre_5", Coef: 0.1, PValue: 0.5}, EventTime: -2},
		{Estimate: models.ReferenceEstimate("exp_Mpre_6", 900), EventTime: -1},
		{Estimate: models.Estimate{Var: "exp_Mpre_7", Coef: -0.25, CILower: -0.4, CIUpper: -0.1, PValue: 0.01}, EventTime: 0},
		{Estimate: models.Estimate{Var: "exp_Mpre_8", Coef: -0.05, CILower: -0.3, CIUpper: 0.2, PValue: math.NaN()}, EventTime: 1},
	}

	msg := formatSummary(run, effects)

	if !strings.Contains(msg, "inc\\_rate\\_ES\\.dta") {
		t.Errorf("dataset not escaped in %q", msg)
	}
	if !strings.Contains(msg, "N \\= 900, clusters \\= 50") {
		t.Errorf("counts missing in %q", msg)
	}
	if strings.Contains(msg, "t=-2") || strings.Contains(msg, "t=-1") {
		t.Errorf("pre-period effects should be omitted: %q", msg)
	}
	if !strings.Contains(msg, "`t=+0: -0.250 [-0.400, -0.100]` \\*") {
		t.Errorf("significant effect not marked: %q", msg)
	}
	if !strings.Contains(msg, "`t=+1: -0.050 [-0.300, 0.200]`\n") {
		t.Errorf("insignificant effect should not be marked: %q", msg)
	}
}

func TestSendRetries(t *testing.T) {
	bot := &fakeBot{failures: 2}
	c, err := newClient(bot, "12345", 3, time.Millisecond)
	if err != nil {
		t.Fatalf("newClient failed: %v", err)
	}

	if err := c.SendChart("Figure3.png", "caption"); err != nil {
		t.Fatalf("SendChart failed: %v", err)
	}
	if bot.calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", bot.calls)
	}
	photo, ok := bot.sent[0].(tgbotapi.PhotoConfig)
	if !ok {
		t.Fatalf("Expected PhotoConfig, got %T", bot.sent[0])
	}
	if photo.ChatID != 12345 || photo.Caption != "caption" {
		t.Errorf("Unexpected photo config: %+v", photo)
	}
}

func TestSendGivesUp(t *testing.T) {
	bot := &fakeBot{failures: 10}
	c, err := newClient(bot, "1", 2, time.Millisecond)
	if err != nil {
		t.Fatalf("newClient failed: %v", err)
	}

	err = c.SendSummary(&models.Run{Dataset: "x"}, nil)
	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if bot.calls != 2 {
		t.Errorf("Expected 2 attempts, got %d", bot.calls)
	}
}

func TestNewClientInvalidChatID(t *testing.T) {
	if _, err := newClient(&fakeBot{}, "not-a-number", 3, time.Second); err == nil {
		t.Error("Expected error for invalid chat ID")
	}
}
