package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"engine-deals/config"
	"engine-deals/models"
	"engine-deals/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/slack-go/slack"
)

type fakeChannel struct {
	name    string
	failFor int
	panics  bool
	calls   int
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) SendHotDealAlert(context.Context, *models.Listing) error { return f.call() }

func (f *fakeChannel) SendDailySummary(context.Context, []*models.Listing, int) error {
	return f.call()
}

func (f *fakeChannel) TestChannel(context.Context) error { return f.call() }

func (f *fakeChannel) call() error {
	f.calls++
	if f.panics {
		panic("boom")
	}
	if f.calls <= f.failFor {
		return errors.New("unavailable")
	}
	return nil
}

type logEntry struct {
	listingID int64
	channel   string
	success   bool
}

type fakeLog struct {
	mu      sync.Mutex
	entries []logEntry
}

func (f *fakeLog) LogNotification(_ context.Context, id int64, channel string, success bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, logEntry{id, channel, success})
	return nil
}

func hotListing() *models.Listing {
	return &models.Listing{
		ID:                7,
		Platform:          models.PlatformEbay,
		Title:             "LQ4 6.0 long block",
		Description:       "Pulled from a 2005 truck",
		Price:             models.Float(1250),
		Location:          "Houston, TX",
		SellerName:        "parts-guy",
		URL:               "https://www.ebay.com/itm/123",
		ImageURLs:         []string{"https://img.example/1.jpg", "https://img.example/2.jpg"},
		ConditionKeywords: []string{"good_rebuilt", "good_low miles"},
		DealScore:         models.Float(0.873),
		IsHotDeal:         true,
	}
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		price *float64
		want  string
	}{
		{models.Float(1234.5), "$1,234.50"},
		{models.Float(500), "$500.00"},
		{models.Float(1234567), "$1,234,567.00"},
		{models.Float(0), "Price not listed"},
		{nil, "Price not listed"},
	}
	for _, tt := range tests {
		if got := formatPrice(tt.price); got != tt.want {
			t.Errorf("formatPrice(%v) = %q; want %q", tt.price, got, tt.want)
		}
	}
}

func TestSummaryLinesKeepsTopFive(t *testing.T) {
	var deals []*models.Listing
	for i := 0; i < 7; i++ {
		deals = append(deals, &models.Listing{Title: strings.Repeat("x", 80), DealScore: models.Float(0.9)})
	}
	lines := summaryLines(deals)
	if len(lines) != summaryTopDeals {
		t.Fatalf("summaryLines returned %d lines; want %d", len(lines), summaryTopDeals)
	}
	if !strings.HasPrefix(lines[0], "1. "+strings.Repeat("x", summaryTitleLimit)+" - Price N/A") {
		t.Errorf("lines[0] = %q", lines[0])
	}
	if !strings.HasSuffix(lines[4], "(Score: 0.90)") {
		t.Errorf("lines[4] = %q; want score suffix", lines[4])
	}
}

func TestDispatcherIsolatesChannels(t *testing.T) {
	ok := &fakeChannel{name: "ok"}
	broken := &fakeChannel{name: "broken", failFor: 100}
	panicky := &fakeChannel{name: "panicky", panics: true}
	log := &fakeLog{}

	d := NewDispatcher(log, &utils.RetryConfig{MaxAttempts: 1}, utils.NewNopLogger(), broken, panicky, ok)
	if sent := d.HotDeal(context.Background(), hotListing()); sent != 1 {
		t.Errorf("HotDeal sent = %d; want 1", sent)
	}

	want := []logEntry{{7, "broken", false}, {7, "panicky", false}, {7, "ok", true}}
	if len(log.entries) != len(want) {
		t.Fatalf("logged %d entries; want %d", len(log.entries), len(want))
	}
	for i, e := range want {
		if log.entries[i] != e {
			t.Errorf("entry %d = %+v; want %+v", i, log.entries[i], e)
		}
	}
}

func TestDispatcherRetriesFlakyChannel(t *testing.T) {
	flaky := &fakeChannel{name: "flaky", failFor: 1}
	d := NewDispatcher(nil, &utils.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}, utils.NewNopLogger(), flaky)

	if sent := d.HotDeal(context.Background(), hotListing()); sent != 1 {
		t.Errorf("HotDeal sent = %d; want 1", sent)
	}
	if flaky.calls != 2 {
		t.Errorf("flaky called %d times; want 2", flaky.calls)
	}
}

func TestDailySummaryReportsPerChannel(t *testing.T) {
	d := NewDispatcher(nil, nil, utils.NewNopLogger(),
		&fakeChannel{name: "a"}, &fakeChannel{name: "b", failFor: 1})

	got := d.DailySummary(context.Background(), []*models.Listing{hotListing()}, 12)
	if !got["a"] || got["b"] {
		t.Errorf("DailySummary = %v; want a=true b=false", got)
	}
}

func TestFromConfigBuildsConfiguredChannels(t *testing.T) {
	cfg := &config.Config{SMTPHost: "smtp.example.com", SMTPPort: 587}
	if got := FromConfig(cfg, nil, utils.NewNopLogger()).Channels(); len(got) != 0 {
		t.Errorf("Channels() with nothing configured = %v; want none", got)
	}

	cfg.DiscordWebhookURL = "https://discord.com/api/webhooks/123/abc"
	cfg.SlackWebhookURL = "https://hooks.slack.com/services/T/B/X"
	cfg.SMTPUsername = "bot@example.com"
	cfg.SMTPPassword = "secret"
	cfg.NotificationEmail = "me@example.com"

	got := FromConfig(cfg, nil, utils.NewNopLogger()).Channels()
	want := []string{"discord", "slack", "email"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Channels() = %v; want %v", got, want)
	}
}

func TestParseWebhookURL(t *testing.T) {
	tests := []struct {
		raw       string
		id, token string
		wantErr   bool
	}{
		{"https://discord.com/api/webhooks/123/abc-DEF", "123", "abc-DEF", false},
		{"https://discordapp.com/api/webhooks/9/tok/", "9", "tok", false},
		{"https://discord.com/api/webhooks/123", "", "", true},
		{"https://example.com/hook", "", "", true},
	}
	for _, tt := range tests {
		id, token, err := parseWebhookURL(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseWebhookURL(%q) error = %v; wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if id != tt.id || token != tt.token {
			t.Errorf("parseWebhookURL(%q) = %q, %q; want %q, %q", tt.raw, id, token, tt.id, tt.token)
		}
	}
}

func TestDiscordDealEmbed(t *testing.T) {
	d, err := NewDiscord("https://discord.com/api/webhooks/1/t")
	if err != nil {
		t.Fatal(err)
	}
	d.now = func() time.Time { return time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC) }

	l := hotListing()
	l.Description = strings.Repeat("d", 600)
	embed := d.dealEmbed(l)

	if embed.Color != discordHotDealColor {
		t.Errorf("Color = %#x; want %#x", embed.Color, discordHotDealColor)
	}
	if embed.Description != strings.Repeat("d", 500)+"..." {
		t.Errorf("Description has %d chars; want 503", len(embed.Description))
	}
	if embed.Image == nil || embed.Image.URL != l.ImageURLs[0] {
		t.Errorf("Image = %+v; want first image", embed.Image)
	}
	if embed.Timestamp != "2024-03-02T10:00:00Z" {
		t.Errorf("Timestamp = %q", embed.Timestamp)
	}
	if len(embed.Fields) != 6 {
		t.Fatalf("len(Fields) = %d; want 6", len(embed.Fields))
	}
	if embed.Fields[0].Value != "$1,250.00" || embed.Fields[3].Value != "0.87/1.00" {
		t.Errorf("price/score fields = %q, %q", embed.Fields[0].Value, embed.Fields[3].Value)
	}
	if embed.Fields[5].Value != "good_rebuilt, good_low miles" {
		t.Errorf("keywords field = %q", embed.Fields[5].Value)
	}
}

func TestDiscordWebhookExecute(t *testing.T) {
	var got discordgo.WebhookParams
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	orig := discordgo.EndpointWebhooks
	discordgo.EndpointWebhooks = srv.URL + "/webhooks/"
	t.Cleanup(func() { discordgo.EndpointWebhooks = orig })

	d, err := NewDiscord("https://discord.com/api/webhooks/42/secret")
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SendDailySummary(context.Background(), []*models.Listing{hotListing()}, 9); err != nil {
		t.Fatalf("SendDailySummary: %v", err)
	}
	if path != "/webhooks/42/secret" {
		t.Errorf("path = %q; want /webhooks/42/secret", path)
	}
	if len(got.Embeds) != 1 {
		t.Fatalf("got %d embeds; want 1", len(got.Embeds))
	}
	fields := got.Embeds[0].Fields
	if len(fields) != 3 || fields[0].Value != "9" || fields[1].Value != "1" {
		t.Errorf("summary fields = %+v", fields)
	}
}

func TestSlackPostsAttachment(t *testing.T) {
	var got slack.WebhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	s, err := NewSlack(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SendHotDealAlert(context.Background(), hotListing()); err != nil {
		t.Fatalf("SendHotDealAlert: %v", err)
	}
	if len(got.Attachments) != 1 {
		t.Fatalf("got %d attachments; want 1", len(got.Attachments))
	}
	att := got.Attachments[0]
	if att.Color != slackHotDealColor || att.TitleLink != "https://www.ebay.com/itm/123" {
		t.Errorf("attachment = %+v", att)
	}
	if att.ThumbURL != "https://img.example/1.jpg" {
		t.Errorf("ThumbURL = %q", att.ThumbURL)
	}
}

func TestSlackReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer srv.Close()

	s, _ := NewSlack(srv.URL)
	if err := s.TestChannel(context.Background()); err == nil {
		t.Error("TestChannel against a 403 endpoint returned nil error")
	}
}

func TestEmailSend(t *testing.T) {
	e, err := NewEmail(EmailConfig{Host: "smtp.example.com", Port: 587, Username: "bot@example.com", Password: "pw", To: "me@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	var addr, from string
	var msg []byte
	e.sendMail = func(_ context.Context, a string, _ smtp.Auth, f string, to []string, m []byte) error {
		addr, from, msg = a, f, m
		return nil
	}

	if err := e.SendHotDealAlert(context.Background(), hotListing()); err != nil {
		t.Fatalf("SendHotDealAlert: %v", err)
	}
	if addr != "smtp.example.com:587" || from != "bot@example.com" {
		t.Errorf("addr, from = %q, %q", addr, from)
	}
	body := string(msg)
	for _, want := range []string{"Subject: Hot Engine Deal: LQ4 6.0 long block\r\n", "Price: $1,250.00\r\n", "Platform: Ebay\r\n"} {
		if !strings.Contains(body, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

// listenSMTP serves each accepted connection with handle until the test ends.
func listenSMTP(t *testing.T, handle func(net.Conn)) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handle(conn)
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func TestEmailStalledRelayHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	host, port := listenSMTP(t, func(conn net.Conn) {
		defer conn.Close()
		<-release
	})
	e, err := NewEmail(EmailConfig{Host: host, Port: port, Username: "bot@example.com", Password: "pw", To: "me@example.com"})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = e.SendHotDealAlert(ctx, hotListing())
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("SendHotDealAlert returned after %v; want it bounded by the 200ms deadline", elapsed)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("SendHotDealAlert error = %v; want context.DeadlineExceeded", err)
	}
}

func TestEmailSMTPConversation(t *testing.T) {
	got := make(chan []string, 1)
	host, port := listenSMTP(t, func(conn net.Conn) {
		defer conn.Close()
		tp := textproto.NewConn(conn)
		var cmds []string
		tp.PrintfLine("220 test ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
			cmds = append(cmds, verb)
			switch verb {
			case "EHLO":
				tp.PrintfLine("250-test")
				tp.PrintfLine("250 AUTH PLAIN")
			case "AUTH":
				tp.PrintfLine("235 ok")
			case "DATA":
				tp.PrintfLine("354 go ahead")
				body, err := tp.ReadDotLines()
				if err != nil {
					return
				}
				cmds = append(cmds, strings.Join(body, "\n"))
				tp.PrintfLine("250 queued")
			case "QUIT":
				tp.PrintfLine("221 bye")
				got <- cmds
				return
			default:
				tp.PrintfLine("250 ok")
			}
		}
	})
	e, err := NewEmail(EmailConfig{Host: host, Port: port, Username: "bot@example.com", Password: "pw", To: "me@example.com"})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.TestChannel(ctx); err != nil {
		t.Fatalf("TestChannel: %v", err)
	}

	var cmds []string
	select {
	case cmds = <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw QUIT")
	}
	want := []string{"EHLO", "AUTH", "MAIL", "RCPT", "DATA"}
	if len(cmds) < len(want)+2 {
		t.Fatalf("commands = %q; want %q then message and QUIT", cmds, want)
	}
	for i, w := range want {
		if cmds[i] != w {
			t.Errorf("command %d = %q; want %q", i, cmds[i], w)
		}
	}
	if !strings.Contains(cmds[len(want)], "Subject: Engine Deals test") {
		t.Errorf("message = %q; want the test subject", cmds[len(want)])
	}
}

func TestChannelsNotConfigured(t *testing.T) {
	if _, err := NewDiscord(""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("NewDiscord(\"\") error = %v; want ErrNotConfigured", err)
	}
	if _, err := NewSlack(""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("NewSlack(\"\") error = %v; want ErrNotConfigured", err)
	}
	if _, err := NewTelegram("", "123"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("NewTelegram without token error = %v; want ErrNotConfigured", err)
	}
	if _, err := NewEmail(EmailConfig{Host: "h", Port: 25}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("NewEmail without credentials error = %v; want ErrNotConfigured", err)
	}
}

func TestTelegramTextEscapesHTML(t *testing.T) {
	l := hotListing()
	l.Title = "Heads <LS> & intake"
	text := telegramDealText(l)
	if !strings.Contains(text, "Heads &lt;LS&gt; &amp; intake") {
		t.Errorf("telegramDealText did not escape title: %q", text)
	}
	if strings.Contains(text, "<LS>") {
		t.Errorf("telegramDealText leaked raw markup: %q", text)
	}
}

func TestParseChatID(t *testing.T) {
	if got := parseChatID("-100123"); got.ID != -100123 {
		t.Errorf("parseChatID(%q).ID = %d; want -100123", "-100123", got.ID)
	}
	if got := parseChatID("@engine_deals"); got.Username != "@engine_deals" {
		t.Errorf("parseChatID(%q).Username = %q", "@engine_deals", got.Username)
	}
}
