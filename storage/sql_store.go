package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"engine-deals/config"
	"engine-deals/models"
	"engine-deals/utils"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS listings (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	platform           TEXT     NOT NULL,
	title              TEXT     NOT NULL,
	description        TEXT     NOT NULL DEFAULT '',
	price              REAL,
	location           TEXT     NOT NULL DEFAULT '',
	seller_name        TEXT     NOT NULL DEFAULT '',
	url                TEXT     NOT NULL UNIQUE,
	image_urls         TEXT     NOT NULL DEFAULT '[]',
	condition_keywords TEXT     NOT NULL DEFAULT '[]',
	scraped_at         DATETIME NOT NULL,
	is_active          BOOLEAN  NOT NULL DEFAULT 1,
	deal_score         REAL,
	is_hot_deal        BOOLEAN  NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS training_data (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	listing_id   INTEGER  NOT NULL REFERENCES listings(id),
	is_good_deal BOOLEAN,
	user_rating  INTEGER CHECK (user_rating BETWEEN 1 AND 5),
	notes        TEXT     NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	listing_id        INTEGER  NOT NULL REFERENCES listings(id),
	notification_type TEXT     NOT NULL,
	sent_at           DATETIME NOT NULL,
	success           BOOLEAN  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_listings_scraped_at ON listings(scraped_at);
CREATE INDEX IF NOT EXISTS idx_listings_hot        ON listings(is_hot_deal, deal_score);
CREATE INDEX IF NOT EXISTS idx_training_listing    ON training_data(listing_id);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS listings (
	id                 BIGSERIAL PRIMARY KEY,
	platform           VARCHAR(50)      NOT NULL,
	title              TEXT             NOT NULL,
	description        TEXT             NOT NULL DEFAULT '',
	price              DOUBLE PRECISION,
	location           TEXT             NOT NULL DEFAULT '',
	seller_name        TEXT             NOT NULL DEFAULT '',
	url                TEXT             NOT NULL UNIQUE,
	image_urls         TEXT             NOT NULL DEFAULT '[]',
	condition_keywords TEXT             NOT NULL DEFAULT '[]',
	scraped_at         TIMESTAMPTZ      NOT NULL,
	is_active          BOOLEAN          NOT NULL DEFAULT TRUE,
	deal_score         DOUBLE PRECISION,
	is_hot_deal        BOOLEAN          NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS training_data (
	id           BIGSERIAL PRIMARY KEY,
	listing_id   BIGINT      NOT NULL REFERENCES listings(id),
	is_good_deal BOOLEAN,
	user_rating  INTEGER CHECK (user_rating BETWEEN 1 AND 5),
	notes        TEXT        NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id                BIGSERIAL PRIMARY KEY,
	listing_id        BIGINT      NOT NULL REFERENCES listings(id),
	notification_type VARCHAR(50) NOT NULL,
	sent_at           TIMESTAMPTZ NOT NULL,
	success           BOOLEAN     NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_listings_scraped_at ON listings(scraped_at);
CREATE INDEX IF NOT EXISTS idx_listings_hot        ON listings(is_hot_deal, deal_score);
CREATE INDEX IF NOT EXISTS idx_training_listing    ON training_data(listing_id);
`

const listingColumns = `id, platform, title, description, price, location, seller_name, url,
	image_urls, condition_keywords, scraped_at, is_active, deal_score, is_hot_deal`

// SQLStore is the Gateway over SQLite or PostgreSQL.
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open connects to the database named by cfg, retrying the first ping, and
// creates the schema.
func Open(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*SQLStore, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch cfg.DatabaseDriver {
	case "sqlite":
		if dir := filepath.Dir(cfg.DatabasePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("storage: create db dir: %w", err)
			}
		}
		db, err = sqlx.Open("sqlite", cfg.DatabasePath+"?_pragma=busy_timeout(5000)&_time_format=sqlite")
	case "postgres":
		db, err = sqlx.Open("postgres", cfg.DSN())
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.DatabaseDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}

	retry := &utils.RetryConfig{MaxAttempts: cfg.MaxRetries, BaseDelay: 2 * time.Second, Logger: logger}
	if err := retry.Do(ctx, "db-ping", func() error { return db.PingContext(ctx) }); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}

	s, err := NewSQLStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open connection and creates the schema. SQLite
// connections are limited to one so writes are serialized.
func NewSQLStore(db *sqlx.DB) (*SQLStore, error) {
	schema := postgresSchema
	if db.DriverName() == "sqlite" {
		db.SetMaxOpenConns(1)
		schema = sqliteSchema
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return &SQLStore{db: db, now: time.Now}, nil
}

// WithClock replaces the clock used for scrape and log timestamps.
func (s *SQLStore) WithClock(now func() time.Time) *SQLStore {
	s.now = now
	return s
}

// timestamp is the store's notion of now: UTC, whole seconds.
func (s *SQLStore) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func (s *SQLStore) Insert(ctx context.Context, l *models.Listing) (int64, bool, error) {
	images, err := encodeList(l.ImageURLs)
	if err != nil {
		return 0, false, err
	}
	keywords, err := encodeList(l.ConditionKeywords)
	if err != nil {
		return 0, false, err
	}
	scrapedAt := s.timestamp()

	query := s.db.Rebind(`
		INSERT INTO listings (platform, title, description, price, location, seller_name, url,
			image_urls, condition_keywords, scraped_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO NOTHING
		RETURNING id`)

	var id int64
	err = s.db.QueryRowxContext(ctx, query,
		l.Platform, l.Title, l.Description, l.Price, l.Location, l.SellerName, l.URL,
		images, keywords, scrapedAt, true,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("storage: insert %s: %w", l.URL, err)
	}

	l.ID = id
	l.ScrapedAt = scrapedAt
	l.IsActive = true
	return id, true, nil
}

func (s *SQLStore) UpdateScore(ctx context.Context, id int64, score float64, isHotDeal bool) error {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE listings SET deal_score = ?, is_hot_deal = ? WHERE id = ?`),
		score, isHotDeal, id)
	if err != nil {
		return fmt.Errorf("storage: update score %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

type trainingRow struct {
	listingRow
	IsGoodDeal sql.NullBool  `db:"is_good_deal"`
	UserRating sql.NullInt64 `db:"user_rating"`
}

func (s *SQLStore) GetForTraining(ctx context.Context) ([]*models.TrainingRow, error) {
	var rows []trainingRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT l.id, l.platform, l.title, l.description, l.price, l.location, l.seller_name, l.url,
			l.image_urls, l.condition_keywords, l.scraped_at, l.is_active, l.deal_score, l.is_hot_deal,
			t.is_good_deal, t.user_rating
		FROM listings l
		LEFT JOIN training_data t
			ON t.id = (SELECT MAX(id) FROM training_data WHERE listing_id = l.id)
		WHERE l.price > 0
		ORDER BY l.id`)
	if err != nil {
		return nil, fmt.Errorf("storage: get for training: %w", err)
	}

	out := make([]*models.TrainingRow, 0, len(rows))
	for _, r := range rows {
		l, err := r.listingRow.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, &models.TrainingRow{Listing: l, Label: labelFrom(r.IsGoodDeal, r.UserRating)})
	}
	return out, nil
}

// labelFrom maps a human label to [0,1]. A 1-5 rating wins over the
// good/bad flag.
func labelFrom(good sql.NullBool, rating sql.NullInt64) *float64 {
	switch {
	case rating.Valid:
		return models.Float(float64(rating.Int64-1) / 4)
	case good.Valid && good.Bool:
		return models.Float(1)
	case good.Valid:
		return models.Float(0)
	}
	return nil
}

func (s *SQLStore) GetRecent(ctx context.Context, hours int) ([]*models.Listing, error) {
	cutoff := s.timestamp().Add(-time.Duration(hours) * time.Hour)
	return s.selectListings(ctx, `
		SELECT `+listingColumns+`
		FROM listings
		WHERE scraped_at >= ? AND is_active = ?
		ORDER BY scraped_at DESC, id DESC`, cutoff, true)
}

func (s *SQLStore) GetHotDeals(ctx context.Context, limit int) ([]*models.Listing, error) {
	return s.selectListings(ctx, `
		SELECT `+listingColumns+`
		FROM listings
		WHERE is_hot_deal = ? AND is_active = ?
		ORDER BY deal_score DESC, scraped_at DESC, id DESC
		LIMIT ?`, true, true, limit)
}

func (s *SQLStore) selectListings(ctx context.Context, query string, args ...any) ([]*models.Listing, error) {
	var rows []listingRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("storage: select listings: %w", err)
	}
	out := make([]*models.Listing, 0, len(rows))
	for _, r := range rows {
		l, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *SQLStore) LogNotification(ctx context.Context, listingID int64, channel string, success bool) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO notifications (listing_id, notification_type, sent_at, success)
		VALUES (?, ?, ?, ?)`), listingID, channel, s.timestamp(), success)
	if err != nil {
		return fmt.Errorf("storage: log notification: %w", err)
	}
	return nil
}

func (s *SQLStore) Notifications(ctx context.Context, listingID int64) ([]models.Notification, error) {
	var out []models.Notification
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
		SELECT id, listing_id, notification_type AS channel, success, sent_at
		FROM notifications
		WHERE listing_id = ?
		ORDER BY id`), listingID)
	if err != nil {
		return nil, fmt.Errorf("storage: notifications: %w", err)
	}
	return out, nil
}

func (s *SQLStore) AddTrainingLabel(ctx context.Context, listingID int64, isGoodDeal bool, userRating *int, notes string) error {
	var rating sql.NullInt64
	if userRating != nil {
		if *userRating < 1 || *userRating > 5 {
			return fmt.Errorf("storage: rating %d outside 1-5", *userRating)
		}
		rating = sql.NullInt64{Int64: int64(*userRating), Valid: true}
	}

	var exists int
	err := s.db.GetContext(ctx, &exists, s.db.Rebind(`SELECT COUNT(*) FROM listings WHERE id = ?`), listingID)
	if err != nil {
		return fmt.Errorf("storage: add label: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, listingID)
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO training_data (listing_id, is_good_deal, user_rating, notes, created_at)
		VALUES (?, ?, ?, ?, ?)`), listingID, isGoodDeal, rating, notes, s.timestamp())
	if err != nil {
		return fmt.Errorf("storage: add label: %w", err)
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type listingRow struct {
	ID                int64           `db:"id"`
	Platform          string          `db:"platform"`
	Title             string          `db:"title"`
	Description       string          `db:"description"`
	Price             sql.NullFloat64 `db:"price"`
	Location          string          `db:"location"`
	SellerName        string          `db:"seller_name"`
	URL               string          `db:"url"`
	ImageURLs         string          `db:"image_urls"`
	ConditionKeywords string          `db:"condition_keywords"`
	ScrapedAt         time.Time       `db:"scraped_at"`
	IsActive          bool            `db:"is_active"`
	DealScore         sql.NullFloat64 `db:"deal_score"`
	IsHotDeal         bool            `db:"is_hot_deal"`
}

func (r listingRow) toModel() (*models.Listing, error) {
	l := &models.Listing{
		ID:          r.ID,
		Platform:    r.Platform,
		Title:       r.Title,
		Description: r.Description,
		Location:    r.Location,
		SellerName:  r.SellerName,
		URL:         r.URL,
		ScrapedAt:   r.ScrapedAt.UTC(),
		IsActive:    r.IsActive,
		IsHotDeal:   r.IsHotDeal,
	}
	if r.Price.Valid {
		l.Price = models.Float(r.Price.Float64)
	}
	if r.DealScore.Valid {
		l.DealScore = models.Float(r.DealScore.Float64)
	}
	if err := json.Unmarshal([]byte(r.ImageURLs), &l.ImageURLs); err != nil {
		return nil, fmt.Errorf("storage: decode image_urls of %d: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.ConditionKeywords), &l.ConditionKeywords); err != nil {
		return nil, fmt.Errorf("storage: decode condition_keywords of %d: %w", r.ID, err)
	}
	return l, nil
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("storage: encode list: %w", err)
	}
	return string(b), nil
}
