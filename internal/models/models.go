package models

import "time"

// Identity is the caller identity established by the transport layer.
type Identity string

// Anonymous is the identity of an unauthenticated caller.
const Anonymous Identity = ""

// IsAnonymous reports whether the identity carries no authenticated principal.
func (i Identity) IsAnonymous() bool {
	return i == Anonymous
}

// User represents a registered user
type User struct {
	ID           int
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Listing is an offer to sell one registry asset
type Listing struct {
	ID          uint64    `json:"id"`
	AssetID     uint64    `json:"asset_id"`
	Seller      Identity  `json:"seller"`
	Price       uint64    `json:"price"` // currency subunits
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	IsActive    bool      `json:"is_active"`
	ReservedBy  uint64    `json:"reserved_by,omitempty"` // transaction holding the reservation, 0 if none
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Tags        []string  `json:"tags"`
}

// TransactionStatus is the lifecycle state of a purchase attempt
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	// TransactionCancelled is part of the status domain but no operation produces it.
	TransactionCancelled TransactionStatus = "cancelled"
)

// IsTerminal reports whether a transaction in this status may no longer change.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionCompleted || s == TransactionFailed || s == TransactionCancelled
}

// FailureKind distinguishes a registry rejection from a call that never completed
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureRejected  FailureKind = "rejected"
	FailureTransport FailureKind = "transport"
)

// Transaction records one purchase attempt and its outcome
type Transaction struct {
	ID            uint64            `json:"id"`
	AssetID       uint64            `json:"asset_id"`
	ListingID     uint64            `json:"listing_id"`
	Seller        Identity          `json:"seller"`
	Buyer         Identity          `json:"buyer"`
	Price         uint64            `json:"price"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	Status        TransactionStatus `json:"status"`
	FailureKind   FailureKind       `json:"failure_kind,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
}

// Asset is the registry's view of an asset after a transfer
type Asset struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Owner     Identity  `json:"owner"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MarketplaceStats summarises the listing and transaction tables
type MarketplaceStats struct {
	TotalListings     uint64 `json:"total_listings"`
	ActiveListings    uint64 `json:"active_listings"`
	TotalTransactions uint64 `json:"total_transactions"`
	TotalVolume       uint64 `json:"total_volume"`
}
