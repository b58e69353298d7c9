package storage

import (
	"context"
	"errors"

	"engine-deals/models"
)

// ErrNotFound is returned when an update targets a listing that does not exist.
var ErrNotFound = errors.New("storage: listing not found")

// Gateway is the persistence contract of the pipeline. Every call is atomic
// on its own; URL is the dedup key for listings.
type Gateway interface {
	// Insert stores l and returns its new id. A listing whose URL is already
	// stored is not an error: Insert returns inserted=false and id 0.
	Insert(ctx context.Context, l *models.Listing) (id int64, inserted bool, err error)
	UpdateScore(ctx context.Context, id int64, score float64, isHotDeal bool) error
	// GetForTraining returns every priced listing with its latest human label.
	GetForTraining(ctx context.Context) ([]*models.TrainingRow, error)
	GetRecent(ctx context.Context, hours int) ([]*models.Listing, error)
	GetHotDeals(ctx context.Context, limit int) ([]*models.Listing, error)
	LogNotification(ctx context.Context, listingID int64, channel string, success bool) error
	Notifications(ctx context.Context, listingID int64) ([]models.Notification, error)
	AddTrainingLabel(ctx context.Context, listingID int64, isGoodDeal bool, userRating *int, notes string) error
	Ping(ctx context.Context) error
	Close() error
}

// ListingExporter writes a scraped batch to a flat file.
type ListingExporter interface {
	WriteListings(listings []*models.Listing) error
	Close() error
}
