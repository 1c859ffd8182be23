package marketplace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xtrntr/landmarket/internal/events"
	"github.com/xtrntr/landmarket/internal/models"
	"github.com/xtrntr/landmarket/internal/registry"
)

// Purchase outcomes as reported to the observer.
const (
	OutcomeCompleted = "completed"
	OutcomeRejected  = "rejected"
	OutcomeTransport = "transport"
)

// Purchase is a reserved purchase waiting for the registry. It is returned by
// Prepare and consumed by Resolve; between the two, other operations run freely
// against the same stores and may change the listing.
type Purchase struct {
	Listing         models.Listing     // as reserved, not re-read
	Transaction     models.Transaction // the pending record
	RegistryAddress string

	started time.Time
}

// Buy runs a whole purchase: reserve, transfer ownership at the registry, then
// settle the transaction. On a rejected or failed transfer the returned
// transaction is Failed and the error wraps ErrTransferRejected or
// ErrTransportError. Nothing is retried.
func (s *Service) Buy(ctx context.Context, listingID uint64, buyer models.Identity) (*models.Transaction, error) {
	p, err := s.Prepare(ctx, listingID, buyer)
	if err != nil {
		return nil, err
	}

	// Once the transfer is issued the saga must reach a terminal state, even if
	// the caller goes away.
	ctx = context.WithoutCancel(ctx)

	_, transferErr := s.registry.TransferOwnership(ctx, p.RegistryAddress, p.Listing.AssetID, p.Listing.Seller, p.Transaction.Buyer)
	return s.Resolve(ctx, p, transferErr)
}

// Prepare validates the purchase and reserves the listing: it is deactivated and
// tagged with a freshly allocated transaction id, then a Pending transaction is
// recorded. Validation failures leave no trace in the stores.
func (s *Service) Prepare(ctx context.Context, listingID uint64, buyer models.Identity) (*Purchase, error) {
	if buyer.IsAnonymous() {
		return nil, fmt.Errorf("%w: anonymous users cannot buy assets", ErrUnauthenticated)
	}

	listing, err := s.listings.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if err := checkPurchasable(listing, buyer); err != nil {
		return nil, err
	}

	address, err := s.RegistryAddress(ctx)
	if err != nil {
		return nil, err
	}

	txID, err := s.ids.NextID(ctx, KindTransaction)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate transaction id: %w", err)
	}

	now := s.clock.Now()
	// The checks run again inside the atomic update: another purchase may have
	// reserved the listing since it was read above.
	reserved, err := s.listings.UpdateListing(ctx, listingID, func(l *models.Listing) error {
		if err := checkPurchasable(l, buyer); err != nil {
			return err
		}
		l.IsActive = false
		l.ReservedBy = txID
		l.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	tx := models.Transaction{
		ID:        txID,
		AssetID:   reserved.AssetID,
		ListingID: listingID,
		Seller:    reserved.Seller,
		Buyer:     buyer,
		Price:     reserved.Price,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    models.TransactionPending,
	}
	if err := s.ledger.InsertTransaction(ctx, &tx); err != nil {
		p := &Purchase{Listing: *reserved, Transaction: tx}
		if relErr := s.releaseReservation(context.WithoutCancel(ctx), p); relErr != nil {
			err = errors.Join(err, relErr)
		}
		return nil, fmt.Errorf("failed to record pending transaction: %w", err)
	}

	s.logger.Info("listing reserved", "listing_id", listingID, "transaction_id", txID, "buyer", buyer, "price", tx.Price)
	s.publish(ctx, events.New(events.PurchaseReserved, listingID, reserved, &tx, now))

	return &Purchase{
		Listing:         *reserved,
		Transaction:     tx,
		RegistryAddress: address,
		started:         s.clock.Now(),
	}, nil
}

// Resolve settles a prepared purchase with the result of the registry transfer.
// A nil transferErr completes it; a *registry.RejectionError or any other error
// fails it and releases the reservation. Resolving the same purchase twice
// fails with ErrStateConflict.
func (s *Service) Resolve(ctx context.Context, p *Purchase, transferErr error) (*models.Transaction, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil purchase", ErrInvalidInput)
	}

	status, kind, reason := classifyTransfer(transferErr)
	now := s.clock.Now()

	tx, err := s.ledger.UpdateTransaction(ctx, p.Transaction.ID, func(t *models.Transaction) error {
		if t.Status != models.TransactionPending {
			return fmt.Errorf("%w: transaction %d is already %s", ErrStateConflict, t.ID, t.Status)
		}
		t.Status = status
		t.FailureKind = kind
		t.FailureReason = reason
		t.UpdatedAt = now
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrStateConflict) {
			// Nothing sweeps these; the listing keeps its reservation until an operator settles it.
			s.logger.Error("purchase left pending, listing still reserved",
				"listing_id", p.Listing.ID, "transaction_id", p.Transaction.ID, "intended_status", status, "error", err)
		}
		return nil, fmt.Errorf("failed to settle transaction %d: %w", p.Transaction.ID, err)
	}

	if status == models.TransactionCompleted {
		// The listing stays inactive and keeps the reservation as the record of the sale.
		s.logger.Info("purchase completed", "listing_id", p.Listing.ID, "transaction_id", tx.ID, "buyer", tx.Buyer)
		s.observe(OutcomeCompleted, p.started)
		s.publish(ctx, events.New(events.PurchaseCompleted, p.Listing.ID, nil, tx, now))
		return tx, nil
	}

	var failure error
	if kind == models.FailureRejected {
		s.observe(OutcomeRejected, p.started)
		failure = fmt.Errorf("%w: %s", ErrTransferRejected, reason)
	} else {
		// The registry may still have moved the asset; Reconcile reports such cases.
		s.observe(OutcomeTransport, p.started)
		failure = fmt.Errorf("%w: %s", ErrTransportError, reason)
	}
	s.logger.Warn("purchase failed", "listing_id", p.Listing.ID, "transaction_id", tx.ID, "failure_kind", kind, "reason", reason)

	if err := s.releaseReservation(ctx, p); err != nil {
		s.logger.Error("failed to reactivate listing", "listing_id", p.Listing.ID, "transaction_id", tx.ID, "error", err)
		failure = errors.Join(failure, err)
	}
	s.publish(ctx, events.New(events.PurchaseFailed, p.Listing.ID, nil, tx, now))
	return tx, failure
}

// releaseReservation reactivates the listing, but only if its current record
// still carries this purchase's reservation. A listing cancelled or otherwise
// changed during the transfer is left alone.
func (s *Service) releaseReservation(ctx context.Context, p *Purchase) error {
	now := s.clock.Now()
	_, err := s.listings.UpdateListing(ctx, p.Listing.ID, func(l *models.Listing) error {
		if l.IsActive || l.ReservedBy != p.Transaction.ID {
			return errReservationGone
		}
		l.IsActive = true
		l.ReservedBy = 0
		l.UpdatedAt = now
		return nil
	})
	if errors.Is(err, errReservationGone) {
		s.logger.Info("listing changed during transfer, not reactivated", "listing_id", p.Listing.ID, "transaction_id", p.Transaction.ID)
		return nil
	}
	return err
}

func checkPurchasable(l *models.Listing, buyer models.Identity) error {
	if !l.IsActive {
		return fmt.Errorf("%w: listing %d is not active", ErrStateConflict, l.ID)
	}
	if l.Seller == buyer {
		return fmt.Errorf("%w: cannot buy your own listing", ErrForbidden)
	}
	return nil
}

func classifyTransfer(err error) (models.TransactionStatus, models.FailureKind, string) {
	if err == nil {
		return models.TransactionCompleted, models.FailureNone, ""
	}
	var rejection *registry.RejectionError
	if errors.As(err, &rejection) {
		return models.TransactionFailed, models.FailureRejected, rejection.Reason
	}
	return models.TransactionFailed, models.FailureTransport, err.Error()
}
