// Package telegram provides a client for sending trend alerts via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/quantrail/trendscan/internal/logger"
	"github.com/quantrail/trendscan/internal/markethours"
	"github.com/quantrail/trendscan/internal/models"
	"github.com/quantrail/trendscan/internal/storage"
)

// Client handles Telegram notifications and bot commands.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	store          storage.Store
}

// NewClient creates a new Telegram client. store may be nil; it is only used
// to answer /status commands.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration, store storage.Store) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

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
		store:          store,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "ping":
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Pong")
		c.bot.Send(reply) //nolint:errcheck
	case "status":
		reply := tgbotapi.NewMessage(msg.Chat.ID, c.statusText(time.Now()))
		c.bot.Send(reply) //nolint:errcheck
	}
}

// statusAlertCount is how many history rows a /status reply includes.
const statusAlertCount = 5

// statusText summarizes the market session, every live trend record, and the
// latest alerts.
func (c *Client) statusText(now time.Time) string {
	var b strings.Builder
	b.WriteString(markethours.Status(now))
	b.WriteString("\n")

	if c.store == nil {
		return b.String()
	}
	records, err := c.store.All()
	if err != nil {
		logger.Error("status command failed to read trend state: %v", err)
		b.WriteString("trend state unavailable")
		return b.String()
	}
	if len(records) == 0 {
		b.WriteString("No active trends\n")
	} else {
		keys := make([]models.TrendKey, 0, len(records))
		for k := range records {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

		b.WriteString(fmt.Sprintf("Active trends: %d\n", len(keys)))
		for _, k := range keys {
			rec := records[k]
			b.WriteString(fmt.Sprintf("• %s %s at %s (strength %d)\n",
				k.Instrument, k.Direction, rec.MaxTimeframe, rec.TrendStrength))
		}
	}

	alerts, err := c.store.RecentAlerts(statusAlertCount)
	if err != nil {
		logger.Error("status command failed to read alert history: %v", err)
		return b.String()
	}
	if len(alerts) > 0 {
		b.WriteString("Recent alerts:\n")
		for _, a := range alerts {
			b.WriteString(fmt.Sprintf("• %s %s\n", a.Timestamp.Format("Jan 02 15:04"), a.Message))
		}
	}
	return b.String()
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// Send delivers one alert message. It satisfies the alerter Notifier contract.
func (c *Client) Send(_ context.Context, text string) error {
	return c.sendMarkdownV2(escapeMarkdownV2(text))
}

// SendStartup announces that the scanner has come online.
func (c *Client) SendStartup(instruments []models.Instrument, timeframes []models.Timeframe) error {
	names := make([]string, len(instruments))
	for i, inst := range instruments {
		names[i] = inst.DisplayName()
	}
	tfs := make([]string, len(timeframes))
	for i, tf := range timeframes {
		tfs[i] = string(tf)
	}
	text := fmt.Sprintf("🔍 *Trend scanner started*\nInstruments: %s\nTimeframes: %s",
		escapeMarkdownV2(strings.Join(names, ", ")),
		escapeMarkdownV2(strings.Join(tfs, " → ")))
	return c.sendMarkdownV2(text)
}

// SendError sends a scan error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Scan error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Scanning recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
