// Package events describes marketplace state changes and fans them out to
// downstream consumers.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/xtrntr/landmarket/internal/models"
)

type Type string

const (
	ListingCreated      Type = "listing.created"
	ListingPriceUpdated Type = "listing.price_updated"
	ListingCancelled    Type = "listing.cancelled"
	PurchaseReserved    Type = "purchase.reserved"
	PurchaseCompleted   Type = "purchase.completed"
	PurchaseFailed      Type = "purchase.failed"
)

// Event is one marketplace state change. Listing and Transaction hold the
// records as they were right after the change.
type Event struct {
	ID          string              `json:"id"`
	Type        Type                `json:"type"`
	ListingID   uint64              `json:"listing_id"`
	Listing     *models.Listing     `json:"listing,omitempty"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
	OccurredAt  time.Time           `json:"occurred_at"`
}

// New builds an event with a fresh id.
func New(t Type, listingID uint64, listing *models.Listing, tx *models.Transaction, at time.Time) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        t,
		ListingID:   listingID,
		Listing:     listing,
		Transaction: tx,
		OccurredAt:  at,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Fanout delivers every event to all of its publishers, even when some fail.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
