package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/xtrntr/landmarket/internal/marketplace"
	"github.com/xtrntr/landmarket/internal/models"

	"github.com/jackc/pgx/v5"
)

const transactionColumns = "id, asset_id, listing_id, seller, buyer, price, created_at, updated_at, status, failure_kind, failure_reason"

func scanTransaction(row scanner) (*models.Transaction, error) {
	var (
		t                             models.Transaction
		id, assetID, listingID, price int64
		seller, buyer, status, kind   string
	)
	err := row.Scan(&id, &assetID, &listingID, &seller, &buyer, &price, &t.CreatedAt, &t.UpdatedAt,
		&status, &kind, &t.FailureReason)
	if err != nil {
		return nil, err
	}
	t.ID = uint64(id)
	t.AssetID = uint64(assetID)
	t.ListingID = uint64(listingID)
	t.Seller = models.Identity(seller)
	t.Buyer = models.Identity(buyer)
	t.Price = uint64(price)
	t.Status = models.TransactionStatus(status)
	t.FailureKind = models.FailureKind(kind)
	return &t, nil
}

// InsertTransaction records a purchase attempt
func (db *DB) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	_, err := db.Pool.Exec(ctx,
		"INSERT INTO transactions ("+transactionColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)",
		int64(t.ID), int64(t.AssetID), int64(t.ListingID), string(t.Seller), string(t.Buyer), int64(t.Price),
		t.CreatedAt, t.UpdatedAt, string(t.Status), string(t.FailureKind), t.FailureReason)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: listing %d already has a pending transaction", marketplace.ErrStateConflict, t.ListingID)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// GetTransaction retrieves a transaction by id
func (db *DB) GetTransaction(ctx context.Context, id uint64) (*models.Transaction, error) {
	row := db.Pool.QueryRow(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = $1", int64(id))
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: transaction %d", marketplace.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

// ListTransactions retrieves every transaction ordered by id
func (db *DB) ListTransactions(ctx context.Context) ([]models.Transaction, error) {
	rows, err := db.Pool.Query(ctx, "SELECT "+transactionColumns+" FROM transactions ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	txs := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

// UpdateTransaction locks the row, lets fn modify it and writes it back
func (db *DB) UpdateTransaction(ctx context.Context, id uint64, fn func(*models.Transaction) error) (*models.Transaction, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	t, err := scanTransaction(tx.QueryRow(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = $1 FOR UPDATE", int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: transaction %d", marketplace.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	if err := fn(t); err != nil {
		return nil, err
	}
	t.ID = id

	_, err = tx.Exec(ctx,
		"UPDATE transactions SET status = $2, failure_kind = $3, failure_reason = $4, updated_at = $5 WHERE id = $1",
		int64(id), string(t.Status), string(t.FailureKind), t.FailureReason, t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return t, nil
}
