package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"engine-deals/models"

	"github.com/slack-go/slack"
)

const slackHotDealColor = "#ff6b35"

// Slack posts to an incoming webhook.
type Slack struct {
	webhookURL string
	client     *http.Client
}

// NewSlack returns a Slack channel for the webhook URL.
func NewSlack(webhookURL string) (*Slack, error) {
	if webhookURL == "" {
		return nil, ErrNotConfigured
	}
	return &Slack{webhookURL: webhookURL, client: &http.Client{Timeout: sendTimeout}}, nil
}

// Name implements Notifier.
func (s *Slack) Name() string { return "slack" }

// SendHotDealAlert implements Notifier.
func (s *Slack) SendHotDealAlert(ctx context.Context, listing *models.Listing) error {
	return s.post(ctx, &slack.WebhookMessage{
		Text:        ":fire: *HOT ENGINE DEAL ALERT!* :fire:",
		Attachments: []slack.Attachment{dealAttachment(listing)},
	})
}

// SendDailySummary implements Notifier.
func (s *Slack) SendDailySummary(ctx context.Context, hotDeals []*models.Listing, totalNew int) error {
	att := slack.Attachment{
		Color: "good",
		Title: "Daily Engine Deals Summary",
		Fields: []slack.AttachmentField{
			{Title: "New Listings Today", Value: strconv.Itoa(totalNew), Short: true},
			{Title: "Hot Deals Found", Value: strconv.Itoa(len(hotDeals)), Short: true},
		},
	}
	if lines := summaryLines(hotDeals); len(lines) > 0 {
		att.Text = strings.Join(lines, "\n")
	}
	return s.post(ctx, &slack.WebhookMessage{
		Text:        ":chart_with_upwards_trend: Your daily engine deals report is ready!",
		Attachments: []slack.Attachment{att},
	})
}

// TestChannel implements Notifier.
func (s *Slack) TestChannel(ctx context.Context) error {
	return s.post(ctx, &slack.WebhookMessage{Text: ":robot_face: Engine Deals - Test notification successful!"})
}

func (s *Slack) post(ctx context.Context, msg *slack.WebhookMessage) error {
	if err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.client, msg); err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	return nil
}

func dealAttachment(l *models.Listing) slack.Attachment {
	att := slack.Attachment{
		Color:     slackHotDealColor,
		Fallback:  orDefault(l.Title, "Unknown Listing"),
		Title:     truncate(orDefault(l.Title, "Unknown Listing"), 256),
		TitleLink: l.URL,
		Text:      describe(l.Description),
		Fields: []slack.AttachmentField{
			{Title: "Price", Value: formatPrice(l.Price), Short: true},
			{Title: "Platform", Value: titleCase(l.Platform), Short: true},
			{Title: "Location", Value: truncate(orDefault(l.Location, "Not specified"), 100), Short: true},
			{Title: "Deal Score", Value: formatScore(l.DealScore) + "/1.00", Short: true},
			{Title: "Seller", Value: truncate(orDefault(l.SellerName, "Unknown"), 100), Short: true},
		},
	}
	if len(l.ImageURLs) > 0 {
		att.ThumbURL = l.ImageURLs[0]
	}
	if len(l.ConditionKeywords) > 0 {
		att.Fields = append(att.Fields, slack.AttachmentField{
			Title: "Condition Keywords",
			Value: keywordsText(l.ConditionKeywords),
		})
	}
	return att
}
