package marketplace

import (
	"context"
	"time"

	"github.com/xtrntr/landmarket/internal/events"
	"github.com/xtrntr/landmarket/internal/models"
)

// Counter kinds and configuration keys shared by every store implementation.
const (
	KindListing     = "listing"
	KindTransaction = "transaction"

	ConfigRegistryAddress = "registry_address"
)

// ListingStore persists listings. UpdateListing is an atomic read-modify-write:
// fn receives the current record and the store commits whatever fn leaves in it,
// unless fn returns an error, which the store returns unchanged (wrapped with %w).
type ListingStore interface {
	InsertListing(ctx context.Context, listing *models.Listing) error
	GetListing(ctx context.Context, id uint64) (*models.Listing, error)
	ListListings(ctx context.Context) ([]models.Listing, error)
	UpdateListing(ctx context.Context, id uint64, fn func(*models.Listing) error) (*models.Listing, error)
}

// TransactionLedger persists purchase attempts with the same update contract.
type TransactionLedger interface {
	InsertTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, id uint64) (*models.Transaction, error)
	ListTransactions(ctx context.Context) ([]models.Transaction, error)
	UpdateTransaction(ctx context.Context, id uint64, fn func(*models.Transaction) error) (*models.Transaction, error)
}

// IDGenerator hands out ids per entity kind. Ids are never reused.
type IDGenerator interface {
	NextID(ctx context.Context, kind string) (uint64, error)
}

type ConfigStore interface {
	GetConfig(ctx context.Context, key string) (string, bool, error)
	SetConfig(ctx context.Context, key, value string) error
}

// Store is the full persistence surface the service needs. Each table commits
// independently; there is no cross-table transaction.
type Store interface {
	ListingStore
	TransactionLedger
	IDGenerator
	ConfigStore
}

// Registry is the external service owning the assets.
type Registry interface {
	TransferOwnership(ctx context.Context, address string, assetID uint64, from, to models.Identity) (*models.Asset, error)
	GetAsset(ctx context.Context, address string, assetID uint64) (*models.Asset, error)
}

type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// PurchaseObserver receives the outcome of every resolved purchase.
type PurchaseObserver interface {
	ObservePurchase(outcome string, elapsed time.Duration)
}
