package notify

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"engine-deals/models"

	"github.com/bwmarrin/discordgo"
)

const (
	discordHotDealColor = 0xff6b35
	discordSummaryColor = 0x00ff00
	discordFieldLimit   = 1024
)

// Discord posts embeds through a channel webhook.
type Discord struct {
	session   *discordgo.Session
	webhookID string
	token     string
	now       func() time.Time
}

// NewDiscord parses a webhook URL of the form
// https://discord.com/api/webhooks/<id>/<token>.
func NewDiscord(webhookURL string) (*Discord, error) {
	if webhookURL == "" {
		return nil, ErrNotConfigured
	}
	id, token, err := parseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	// Webhook execution needs no bot token.
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("discord: session: %w", err)
	}
	session.Client.Timeout = sendTimeout
	return &Discord{session: session, webhookID: id, token: token, now: time.Now}, nil
}

func parseWebhookURL(raw string) (id, token string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("discord: webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "webhooks" && i+2 < len(parts) {
			id, token = parts[i+1], parts[i+2]
			break
		}
	}
	if id == "" || token == "" {
		return "", "", fmt.Errorf("discord: webhook url %q has no id/token", raw)
	}
	return id, token, nil
}

// Name implements Notifier.
func (d *Discord) Name() string { return "discord" }

// SendHotDealAlert implements Notifier.
func (d *Discord) SendHotDealAlert(ctx context.Context, listing *models.Listing) error {
	return d.execute(ctx, &discordgo.WebhookParams{
		Content: "🔥 **HOT ENGINE DEAL ALERT!** 🔥",
		Embeds:  []*discordgo.MessageEmbed{d.dealEmbed(listing)},
	})
}

// SendDailySummary implements Notifier.
func (d *Discord) SendDailySummary(ctx context.Context, hotDeals []*models.Listing, totalNew int) error {
	return d.execute(ctx, &discordgo.WebhookParams{
		Content: "📈 Your daily engine deals report is ready!",
		Embeds:  []*discordgo.MessageEmbed{d.summaryEmbed(hotDeals, totalNew)},
	})
}

// TestChannel implements Notifier.
func (d *Discord) TestChannel(ctx context.Context) error {
	return d.execute(ctx, &discordgo.WebhookParams{
		Content: "🤖 Engine Deals - Test notification successful!",
	})
}

func (d *Discord) execute(ctx context.Context, params *discordgo.WebhookParams) error {
	if _, err := d.session.WebhookExecute(d.webhookID, d.token, false, params, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: webhook execute: %w", err)
	}
	return nil
}

func (d *Discord) dealEmbed(l *models.Listing) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:     truncate(orDefault(l.Title, "Unknown Listing"), 256),
		URL:       l.URL,
		Color:     discordHotDealColor,
		Timestamp: d.now().UTC().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "💰 Price", Value: formatPrice(l.Price), Inline: true},
			{Name: "🏪 Platform", Value: titleCase(l.Platform), Inline: true},
			{Name: "📍 Location", Value: truncate(orDefault(l.Location, "Not specified"), 100), Inline: true},
			{Name: "⭐ Deal Score", Value: formatScore(l.DealScore) + "/1.00", Inline: true},
			{Name: "👤 Seller", Value: truncate(orDefault(l.SellerName, "Unknown"), 100), Inline: true},
		},
	}
	if l.Description != "" {
		embed.Description = describe(l.Description)
	}
	if len(l.ImageURLs) > 0 {
		embed.Image = &discordgo.MessageEmbedImage{URL: l.ImageURLs[0]}
	}
	if len(l.ConditionKeywords) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "🔧 Condition Keywords",
			Value: truncate(keywordsText(l.ConditionKeywords), discordFieldLimit),
		})
	}
	return embed
}

func (d *Discord) summaryEmbed(hotDeals []*models.Listing, totalNew int) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:     "📊 Daily Engine Deals Summary",
		Color:     discordSummaryColor,
		Timestamp: d.now().UTC().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "New Listings Today", Value: strconv.Itoa(totalNew), Inline: true},
			{Name: "Hot Deals Found", Value: strconv.Itoa(len(hotDeals)), Inline: true},
		},
	}
	if lines := summaryLines(hotDeals); len(lines) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "🏆 Top Hot Deals",
			Value: truncate(strings.Join(lines, "\n"), discordFieldLimit),
		})
	}
	return embed
}
