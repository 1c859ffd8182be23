// Package marketplace implements listings and the purchase saga that hands an
// asset from seller to buyer through the external registry.
package marketplace

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/xtrntr/landmarket/internal/clock"
	"github.com/xtrntr/landmarket/internal/events"
	"github.com/xtrntr/landmarket/internal/models"
)

// Service owns the stores and the registry client. All shared state lives in
// the stores; the service itself keeps none between calls.
type Service struct {
	listings ListingStore
	ledger   TransactionLedger
	ids      IDGenerator
	config   ConfigStore
	registry Registry

	clock     clock.Clock
	logger    *slog.Logger
	publisher Publisher
	observer  PurchaseObserver
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithObserver(o PurchaseObserver) Option {
	return func(s *Service) { s.observer = o }
}

// NewService creates a marketplace over store, calling reg for ownership transfers.
func NewService(store Store, reg Registry, opts ...Option) *Service {
	s := &Service{
		listings:  store,
		ledger:    store,
		ids:       store,
		config:    store,
		registry:  reg,
		clock:     clock.NewSystem(),
		logger:    slog.Default(),
		publisher: events.Discard{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListingInput carries the seller-supplied fields of a new listing.
type ListingInput struct {
	AssetID     uint64   `json:"asset_id"`
	Price       uint64   `json:"price"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
}

// validatePrice rejects prices the BIGINT price column cannot hold.
func validatePrice(price uint64) error {
	if price > math.MaxInt64 {
		return fmt.Errorf("%w: price too large", ErrInvalidInput)
	}
	return nil
}

// CreateListing stores a new active listing owned by seller.
func (s *Service) CreateListing(ctx context.Context, seller models.Identity, in ListingInput) (*models.Listing, error) {
	if seller.IsAnonymous() {
		return nil, fmt.Errorf("%w: anonymous users cannot create listings", ErrUnauthenticated)
	}
	if err := validatePrice(in.Price); err != nil {
		return nil, err
	}

	id, err := s.ids.NextID(ctx, KindListing)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate listing id: %w", err)
	}

	now := s.clock.Now()
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	listing := &models.Listing{
		ID:          id,
		AssetID:     in.AssetID,
		Seller:      seller,
		Price:       in.Price,
		CreatedAt:   now,
		UpdatedAt:   now,
		IsActive:    true,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Tags:        tags,
	}
	if err := s.listings.InsertListing(ctx, listing); err != nil {
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}

	s.logger.Info("listing created", "listing_id", id, "asset_id", in.AssetID, "seller", seller, "price", in.Price)
	s.publish(ctx, events.New(events.ListingCreated, id, listing, nil, now))
	return listing, nil
}

// GetListing returns the listing or ErrNotFound.
func (s *Service) GetListing(ctx context.Context, id uint64) (*models.Listing, error) {
	return s.listings.GetListing(ctx, id)
}

// ListActiveListings returns every listing that can currently be bought, by id.
func (s *Service) ListActiveListings(ctx context.Context) ([]models.Listing, error) {
	return s.filterListings(ctx, func(l *models.Listing) bool { return l.IsActive })
}

// ListSellerListings returns every listing of seller regardless of state.
func (s *Service) ListSellerListings(ctx context.Context, seller models.Identity) ([]models.Listing, error) {
	return s.filterListings(ctx, func(l *models.Listing) bool { return l.Seller == seller })
}

func (s *Service) filterListings(ctx context.Context, keep func(*models.Listing) bool) ([]models.Listing, error) {
	all, err := s.listings.ListListings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	out := make([]models.Listing, 0, len(all))
	for i := range all {
		if keep(&all[i]) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// UpdatePrice changes the price of an active listing. Only the seller may do so.
func (s *Service) UpdatePrice(ctx context.Context, id, price uint64, caller models.Identity) (*models.Listing, error) {
	now := s.clock.Now()
	listing, err := s.listings.UpdateListing(ctx, id, func(l *models.Listing) error {
		if l.Seller != caller {
			return fmt.Errorf("%w: only the seller can update the listing price", ErrForbidden)
		}
		if !l.IsActive {
			return fmt.Errorf("%w: cannot update price of inactive listing %d", ErrStateConflict, id)
		}
		if err := validatePrice(price); err != nil {
			return err
		}
		l.Price = price
		l.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("listing price updated", "listing_id", id, "price", price)
	s.publish(ctx, events.New(events.ListingPriceUpdated, id, listing, nil, now))
	return listing, nil
}

// CancelListing withdraws a listing. It also drops any purchase reservation, so
// a purchase that is still waiting on the registry will not reactivate it.
func (s *Service) CancelListing(ctx context.Context, id uint64, caller models.Identity) (*models.Listing, error) {
	now := s.clock.Now()
	listing, err := s.listings.UpdateListing(ctx, id, func(l *models.Listing) error {
		if l.Seller != caller {
			return fmt.Errorf("%w: only the seller can cancel the listing", ErrForbidden)
		}
		l.IsActive = false
		l.ReservedBy = 0
		l.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("listing cancelled", "listing_id", id)
	s.publish(ctx, events.New(events.ListingCancelled, id, listing, nil, now))
	return listing, nil
}

// GetTransaction returns one purchase attempt or ErrNotFound.
func (s *Service) GetTransaction(ctx context.Context, id uint64) (*models.Transaction, error) {
	return s.ledger.GetTransaction(ctx, id)
}

// GetTransactionsByUser returns every transaction where user is buyer or seller.
func (s *Service) GetTransactionsByUser(ctx context.Context, user models.Identity) ([]models.Transaction, error) {
	return s.filterTransactions(ctx, func(t *models.Transaction) bool { return t.Buyer == user || t.Seller == user })
}

func (s *Service) GetPurchases(ctx context.Context, buyer models.Identity) ([]models.Transaction, error) {
	return s.filterTransactions(ctx, func(t *models.Transaction) bool { return t.Buyer == buyer })
}

func (s *Service) GetSales(ctx context.Context, seller models.Identity) ([]models.Transaction, error) {
	return s.filterTransactions(ctx, func(t *models.Transaction) bool { return t.Seller == seller })
}

func (s *Service) filterTransactions(ctx context.Context, keep func(*models.Transaction) bool) ([]models.Transaction, error) {
	all, err := s.ledger.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	out := make([]models.Transaction, 0, len(all))
	for i := range all {
		if keep(&all[i]) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// Stats summarises the marketplace. Volume only counts completed sales.
func (s *Service) Stats(ctx context.Context) (*models.MarketplaceStats, error) {
	listings, err := s.listings.ListListings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	txs, err := s.ledger.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	stats := &models.MarketplaceStats{
		TotalListings:     uint64(len(listings)),
		TotalTransactions: uint64(len(txs)),
	}
	for _, l := range listings {
		if l.IsActive {
			stats.ActiveListings++
		}
	}
	for _, t := range txs {
		if t.Status == models.TransactionCompleted {
			stats.TotalVolume += t.Price
		}
	}
	return stats, nil
}

// SetRegistryAddress records where the registry service lives.
func (s *Service) SetRegistryAddress(ctx context.Context, caller models.Identity, address string) (string, error) {
	if caller.IsAnonymous() {
		return "", fmt.Errorf("%w: anonymous users cannot set the registry address", ErrUnauthenticated)
	}
	address = strings.TrimSpace(address)
	u, err := url.Parse(address)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: registry address must be an absolute http(s) URL", ErrInvalidInput)
	}
	if err := s.config.SetConfig(ctx, ConfigRegistryAddress, address); err != nil {
		return "", fmt.Errorf("failed to store registry address: %w", err)
	}
	s.logger.Info("registry address set", "address", address, "by", caller)
	return address, nil
}

// RegistryAddress returns the configured address or ErrConfigurationMissing.
func (s *Service) RegistryAddress(ctx context.Context) (string, error) {
	address, ok, err := s.config.GetConfig(ctx, ConfigRegistryAddress)
	if err != nil {
		return "", fmt.Errorf("failed to read registry address: %w", err)
	}
	if !ok || address == "" {
		return "", ErrConfigurationMissing
	}
	return address, nil
}

// publish never fails the calling operation; delivery problems are only logged.
func (s *Service) publish(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Warn("failed to publish event", "event_id", ev.ID, "type", ev.Type, "error", err)
	}
}

func (s *Service) observe(outcome string, started time.Time) {
	if s.observer != nil {
		s.observer.ObservePurchase(outcome, s.clock.Now().Sub(started))
	}
}
