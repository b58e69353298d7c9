package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"strings"

	"engine-deals/models"
)

// EmailConfig holds SMTP settings. From defaults to Username.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

type sendMailFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email sends plain-text mail through an SMTP relay.
type Email struct {
	cfg      EmailConfig
	sendMail sendMailFunc
}

// NewEmail returns an email channel.
func NewEmail(cfg EmailConfig) (*Email, error) {
	if cfg.Username == "" || cfg.Password == "" || cfg.To == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, fmt.Errorf("email: invalid smtp address %q:%d", cfg.Host, cfg.Port)
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &Email{cfg: cfg, sendMail: sendMail}, nil
}

// Name implements Notifier.
func (e *Email) Name() string { return "email" }

// SendHotDealAlert implements Notifier.
func (e *Email) SendHotDealAlert(ctx context.Context, listing *models.Listing) error {
	subject := "Hot Engine Deal: " + truncate(orDefault(listing.Title, "Unknown Listing"), 80)
	return e.send(ctx, subject, emailDealBody(listing))
}

// SendDailySummary implements Notifier.
func (e *Email) SendDailySummary(ctx context.Context, hotDeals []*models.Listing, totalNew int) error {
	return e.send(ctx, "Daily Engine Deals Summary", emailSummaryBody(hotDeals, totalNew))
}

// TestChannel implements Notifier.
func (e *Email) TestChannel(ctx context.Context) error {
	return e.send(ctx, "Engine Deals test", "Engine Deals - Test notification successful!\n")
}

func (e *Email) send(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := buildMessage(e.cfg.From, e.cfg.To, subject, body)
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	if err := e.sendMail(ctx, addr, auth, e.cfg.From, []string{e.cfg.To}, msg); err != nil {
		return fmt.Errorf("email: send to %s: %w", e.cfg.To, err)
	}
	return nil
}

// sendMail is smtp.SendMail bounded by ctx: the connection is dialed with
// ctx, carries its deadline and is closed when ctx is done.
func sendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) (err error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer func() {
		switch {
		case err == nil:
		case ctx.Err() != nil:
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		case errors.Is(err, os.ErrDeadlineExceeded):
			// The connection deadline is the context deadline.
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
	}()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

func emailDealBody(l *models.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n\n", orDefault(l.Title, "Unknown Listing"), l.URL)
	fmt.Fprintf(&b, "Price: %s\n", formatPrice(l.Price))
	fmt.Fprintf(&b, "Platform: %s\n", titleCase(l.Platform))
	fmt.Fprintf(&b, "Location: %s\n", orDefault(l.Location, "Not specified"))
	fmt.Fprintf(&b, "Deal Score: %s/1.00\n", formatScore(l.DealScore))
	fmt.Fprintf(&b, "Seller: %s\n", orDefault(l.SellerName, "Unknown"))
	if len(l.ConditionKeywords) > 0 {
		fmt.Fprintf(&b, "Condition Keywords: %s\n", keywordsText(l.ConditionKeywords))
	}
	if l.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", describe(l.Description))
	}
	return b.String()
}

func emailSummaryBody(hotDeals []*models.Listing, totalNew int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New Listings Today: %d\n", totalNew)
	fmt.Fprintf(&b, "Hot Deals Found: %d\n", len(hotDeals))
	if lines := summaryLines(hotDeals); len(lines) > 0 {
		b.WriteString("\nTop Hot Deals:\n")
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteByte('\n')
	}
	return b.String()
}
