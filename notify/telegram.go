package notify

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"engine-deals/models"

	"github.com/mymmrac/telego"
)

// Telegram sends HTML-formatted messages to one chat through the Bot API.
type Telegram struct {
	bot  *telego.Bot
	chat telego.ChatID
}

// NewTelegram returns a Telegram channel. chatID is either a numeric chat id
// or an @channel username.
func NewTelegram(token, chatID string, opts ...telego.BotOption) (*Telegram, error) {
	if token == "" || chatID == "" {
		return nil, ErrNotConfigured
	}
	bot, err := telego.NewBot(token, append([]telego.BotOption{telego.WithDiscardLogger()}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Telegram{bot: bot, chat: parseChatID(chatID)}, nil
}

func parseChatID(raw string) telego.ChatID {
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return telego.ChatID{ID: id}
	}
	return telego.ChatID{Username: raw}
}

// Name implements Notifier.
func (t *Telegram) Name() string { return "telegram" }

// SendHotDealAlert implements Notifier.
func (t *Telegram) SendHotDealAlert(ctx context.Context, listing *models.Listing) error {
	return t.send(ctx, telegramDealText(listing))
}

// SendDailySummary implements Notifier.
func (t *Telegram) SendDailySummary(ctx context.Context, hotDeals []*models.Listing, totalNew int) error {
	return t.send(ctx, telegramSummaryText(hotDeals, totalNew))
}

// TestChannel implements Notifier.
func (t *Telegram) TestChannel(ctx context.Context) error {
	if _, err := t.bot.GetMe(ctx); err != nil {
		return fmt.Errorf("telegram: get me: %w", err)
	}
	return t.send(ctx, "🤖 Engine Deals - Test notification successful!")
}

func (t *Telegram) send(ctx context.Context, text string) error {
	_, err := t.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:    t.chat,
		Text:      text,
		ParseMode: telego.ModeHTML,
	})
	if err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

func telegramDealText(l *models.Listing) string {
	var b strings.Builder
	b.WriteString("🔥 <b>HOT ENGINE DEAL ALERT!</b> 🔥\n\n")
	fmt.Fprintf(&b, "<a href=\"%s\">%s</a>\n", html.EscapeString(l.URL), html.EscapeString(truncate(orDefault(l.Title, "Unknown Listing"), 256)))
	fmt.Fprintf(&b, "💰 Price: %s\n", formatPrice(l.Price))
	fmt.Fprintf(&b, "🏪 Platform: %s\n", html.EscapeString(titleCase(l.Platform)))
	fmt.Fprintf(&b, "📍 Location: %s\n", html.EscapeString(truncate(orDefault(l.Location, "Not specified"), 100)))
	fmt.Fprintf(&b, "⭐ Deal Score: %s/1.00\n", formatScore(l.DealScore))
	fmt.Fprintf(&b, "👤 Seller: %s\n", html.EscapeString(truncate(orDefault(l.SellerName, "Unknown"), 100)))
	if len(l.ConditionKeywords) > 0 {
		fmt.Fprintf(&b, "🔧 Condition: %s\n", html.EscapeString(keywordsText(l.ConditionKeywords)))
	}
	if l.Description != "" {
		fmt.Fprintf(&b, "\n%s", html.EscapeString(describe(l.Description)))
	}
	return b.String()
}

func telegramSummaryText(hotDeals []*models.Listing, totalNew int) string {
	var b strings.Builder
	b.WriteString("📊 <b>Daily Engine Deals Summary</b>\n\n")
	fmt.Fprintf(&b, "New Listings Today: %d\n", totalNew)
	fmt.Fprintf(&b, "Hot Deals Found: %d\n", len(hotDeals))
	if lines := summaryLines(hotDeals); len(lines) > 0 {
		b.WriteString("\n🏆 <b>Top Hot Deals</b>\n")
		for _, line := range lines {
			b.WriteString(html.EscapeString(line))
			b.WriteByte('\n')
		}
	}
	return b.String()
}
