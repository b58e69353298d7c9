package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"engine-deals/config"
	"engine-deals/models"
	"engine-deals/utils"

	"github.com/shopspring/decimal"
)

// ErrNotConfigured is returned by a channel constructor when the channel has
// no credentials in the configuration.
var ErrNotConfigured = errors.New("notify: channel not configured")

// Notifier is one alert channel.
type Notifier interface {
	Name() string
	SendHotDealAlert(ctx context.Context, listing *models.Listing) error
	SendDailySummary(ctx context.Context, hotDeals []*models.Listing, totalNew int) error
	TestChannel(ctx context.Context) error
}

// NotificationLog records the outcome of every hot deal alert.
type NotificationLog interface {
	LogNotification(ctx context.Context, listingID int64, channel string, success bool) error
}

const (
	summaryTopDeals   = 5
	descriptionLimit  = 500
	keywordLimit      = 10
	summaryTitleLimit = 50
	sendTimeout       = 10 * time.Second
)

// Dispatcher fans alerts out to every configured channel. Channels are
// independent: a failing channel never blocks the others.
type Dispatcher struct {
	channels []Notifier
	log      NotificationLog
	retry    *utils.RetryConfig
	logger   *utils.Logger
}

// NewDispatcher returns a dispatcher over channels. log may be nil.
func NewDispatcher(log NotificationLog, retry *utils.RetryConfig, logger *utils.Logger, channels ...Notifier) *Dispatcher {
	if retry == nil {
		retry = &utils.RetryConfig{MaxAttempts: 1}
	}
	return &Dispatcher{channels: channels, log: log, retry: retry, logger: logger}
}

// FromConfig builds every channel that has credentials configured. Channels
// whose configuration is invalid are logged and skipped.
func FromConfig(cfg *config.Config, log NotificationLog, logger *utils.Logger) *Dispatcher {
	var channels []Notifier
	add := func(n Notifier, err error) {
		switch {
		case errors.Is(err, ErrNotConfigured):
		case err != nil:
			logger.Warn("[notify] Skipping channel: %v", err)
		default:
			channels = append(channels, n)
		}
	}

	add(NewDiscord(cfg.DiscordWebhookURL))
	add(NewSlack(cfg.SlackWebhookURL))
	add(NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID))
	add(NewEmail(EmailConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		To:       cfg.NotificationEmail,
	}))

	retry := &utils.RetryConfig{MaxAttempts: max(cfg.MaxRetries, 1), BaseDelay: time.Second, Logger: logger}
	return NewDispatcher(log, retry, logger, channels...)
}

// Channels returns the names of the configured channels.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, n := range d.channels {
		names = append(names, n.Name())
	}
	return names
}

// HotDeal sends the alert on every channel, records each outcome in the
// notification log and returns the number of channels that succeeded.
func (d *Dispatcher) HotDeal(ctx context.Context, listing *models.Listing) int {
	sent := 0
	for _, n := range d.channels {
		err := d.send(ctx, n, "hot-deal", func(ctx context.Context) error {
			return n.SendHotDealAlert(ctx, listing)
		})
		if err == nil {
			sent++
			d.logger.Info("[notify] %s alert sent for %q", n.Name(), listing.Title)
		} else {
			d.logger.Error("[notify] %s alert failed for %q: %v", n.Name(), listing.Title, err)
		}
		if d.log != nil {
			if lerr := d.log.LogNotification(ctx, listing.ID, n.Name(), err == nil); lerr != nil {
				d.logger.Error("[notify] Could not log %s notification for listing %d: %v", n.Name(), listing.ID, lerr)
			}
		}
	}
	return sent
}

// DailySummary sends the summary on every channel and reports the outcome
// per channel.
func (d *Dispatcher) DailySummary(ctx context.Context, hotDeals []*models.Listing, totalNew int) map[string]bool {
	results := make(map[string]bool, len(d.channels))
	for _, n := range d.channels {
		err := d.send(ctx, n, "daily-summary", func(ctx context.Context) error {
			return n.SendDailySummary(ctx, hotDeals, totalNew)
		})
		if err != nil {
			d.logger.Error("[notify] %s daily summary failed: %v", n.Name(), err)
		}
		results[n.Name()] = err == nil
	}
	return results
}

// TestAll sends a test message on every channel. No retries.
func (d *Dispatcher) TestAll(ctx context.Context) map[string]bool {
	results := make(map[string]bool, len(d.channels))
	for _, n := range d.channels {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := n.TestChannel(sendCtx)
		cancel()
		if err != nil {
			d.logger.Error("[notify] %s test failed: %v", n.Name(), err)
		} else {
			d.logger.Info("[notify] %s test successful", n.Name())
		}
		results[n.Name()] = err == nil
	}
	return results
}

func (d *Dispatcher) send(ctx context.Context, n Notifier, kind string, fn func(context.Context) error) error {
	return d.retry.Do(ctx, n.Name()+"-"+kind, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		return fn(sendCtx)
	})
}

// formatPrice renders a price as "$1,234.00", or "Price not listed".
func formatPrice(price *float64) string {
	if price == nil || *price <= 0 {
		return "Price not listed"
	}
	fixed := decimal.NewFromFloat(*price).StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return "$" + b.String() + "." + frac
}

func formatScore(score *float64) string {
	if score == nil {
		return "0.00"
	}
	return decimal.NewFromFloat(*score).StringFixed(2)
}

// truncate cuts s to n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func describe(s string) string {
	if len([]rune(s)) > descriptionLimit {
		return truncate(s, descriptionLimit) + "..."
	}
	return s
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func titleCase(s string) string {
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func keywordsText(keywords []string) string {
	if len(keywords) > keywordLimit {
		keywords = keywords[:keywordLimit]
	}
	return strings.Join(keywords, ", ")
}

// summaryLines lists the top hot deals, one per line.
func summaryLines(hotDeals []*models.Listing) []string {
	if len(hotDeals) > summaryTopDeals {
		hotDeals = hotDeals[:summaryTopDeals]
	}
	lines := make([]string, 0, len(hotDeals))
	for i, deal := range hotDeals {
		price := "Price N/A"
		if deal.HasPrice() {
			price = formatPrice(deal.Price)
		}
		lines = append(lines, fmt.Sprintf("%d. %s - %s (Score: %s)",
			i+1, truncate(orDefault(deal.Title, "Unknown"), summaryTitleLimit), price, formatScore(deal.DealScore)))
	}
	return lines
}
