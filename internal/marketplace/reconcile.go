package marketplace

import (
	"context"
	"fmt"

	"github.com/xtrntr/landmarket/internal/models"
)

type ReconcileStatus string

// Reconciliation verdicts. Diverged means the ledger says Failed while the
// buyer owns the asset; Unknown means the registry could not be asked.
const (
	ReconcileDiverged   ReconcileStatus = "diverged"
	ReconcileConsistent ReconcileStatus = "consistent"
	ReconcileUnknown    ReconcileStatus = "unknown"
)

type Finding struct {
	Transaction models.Transaction `json:"transaction"`
	Owner       models.Identity    `json:"owner,omitempty"`
	Status      ReconcileStatus    `json:"status"`
	Error       string             `json:"error,omitempty"`
}

// Reconcile checks every transaction that failed because the registry call did
// not complete. Such a call may have succeeded remotely, so the registry is asked
// who owns the asset now. Nothing is changed; divergences are only reported.
func (s *Service) Reconcile(ctx context.Context, caller models.Identity) ([]Finding, error) {
	if caller.IsAnonymous() {
		return nil, fmt.Errorf("%w: anonymous users cannot run reconciliation", ErrUnauthenticated)
	}
	address, err := s.RegistryAddress(ctx)
	if err != nil {
		return nil, err
	}

	txs, err := s.filterTransactions(ctx, func(t *models.Transaction) bool {
		return t.Status == models.TransactionFailed && t.FailureKind == models.FailureTransport
	})
	if err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(txs))
	for _, tx := range txs {
		f := Finding{Transaction: tx}
		asset, err := s.registry.GetAsset(ctx, address, tx.AssetID)
		switch {
		case err != nil:
			f.Status = ReconcileUnknown
			f.Error = err.Error()
		case asset.Owner == tx.Buyer:
			f.Status = ReconcileDiverged
			f.Owner = asset.Owner
			s.logger.Warn("asset transferred despite failed transaction",
				"transaction_id", tx.ID, "listing_id", tx.ListingID, "asset_id", tx.AssetID, "buyer", tx.Buyer)
		default:
			f.Status = ReconcileConsistent
			f.Owner = asset.Owner
		}
		findings = append(findings, f)
	}
	return findings, nil
}
