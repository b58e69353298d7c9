package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const maxBodyBytes = 8 << 20

// Pacer spaces out requests by a random gap drawn from [min, max].
type Pacer struct {
	min, max time.Duration

	mu   sync.Mutex
	rnd  *rand.Rand
	last time.Time
}

// NewPacer returns a Pacer. The first Wait never sleeps.
func NewPacer(min, max time.Duration) *Pacer {
	if max < min {
		max = min
	}
	return &Pacer{
		min: min,
		max: max,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Wait blocks until a randomized gap has passed since the previous request.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.last.IsZero() {
		gap := p.min
		if span := p.max - p.min; span > 0 {
			gap += time.Duration(p.rnd.Int63n(int64(span) + 1))
		}
		if remaining := gap - time.Since(p.last); remaining > 0 {
			timer := time.NewTimer(remaining)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	p.last = time.Now()
	return nil
}

// Session is one adapter's HTTP client. Adapters never share a Session, so
// each platform is paced on its own.
type Session struct {
	client       *http.Client
	pacer        *Pacer
	userAgent    string
	blockMarkers []string
}

// NewSession creates a Session. Bodies containing any of blockMarkers
// (case-insensitive) are treated as anti-bot pages.
func NewSession(opts Options, blockMarkers []string) *Session {
	opts = opts.WithDefaults()
	markers := make([]string, 0, len(blockMarkers))
	for _, m := range blockMarkers {
		markers = append(markers, strings.ToLower(m))
	}
	return &Session{
		client:       &http.Client{Timeout: opts.Timeout},
		pacer:        NewPacer(opts.DelayMin, opts.DelayMax),
		userAgent:    opts.UserAgent,
		blockMarkers: markers,
	}
}

// Document fetches rawURL with params and parses it as HTML.
func (s *Session) Document(ctx context.Context, rawURL string, params url.Values) (*goquery.Document, error) {
	if err := s.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	target := rawURL
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		target = rawURL + sep + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("scraper: build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scraper: get %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: status %d for %s", ErrBlocked, resp.StatusCode, target)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, URL: target}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("scraper: read %s: %w", target, err)
	}
	if len(s.blockMarkers) > 0 {
		lower := strings.ToLower(string(body))
		for _, m := range s.blockMarkers {
			if strings.Contains(lower, m) {
				return nil, fmt.Errorf("%w: marker %q on %s", ErrBlocked, m, target)
			}
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("scraper: parse %s: %w", target, err)
	}
	return doc, nil
}
