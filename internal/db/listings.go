package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/xtrntr/landmarket/internal/marketplace"
	"github.com/xtrntr/landmarket/internal/models"

	"github.com/jackc/pgx/v5"
)

const listingColumns = "id, asset_id, seller, price, created_at, updated_at, is_active, reserved_by, title, description, category, tags"

func scanListing(row scanner) (*models.Listing, error) {
	var (
		l                          models.Listing
		id, assetID, price, holder int64
		seller                     string
	)
	err := row.Scan(&id, &assetID, &seller, &price, &l.CreatedAt, &l.UpdatedAt, &l.IsActive, &holder,
		&l.Title, &l.Description, &l.Category, &l.Tags)
	if err != nil {
		return nil, err
	}
	l.ID = uint64(id)
	l.AssetID = uint64(assetID)
	l.Seller = models.Identity(seller)
	l.Price = uint64(price)
	l.ReservedBy = uint64(holder)
	if l.Tags == nil {
		l.Tags = []string{}
	}
	return &l, nil
}

// InsertListing stores a new listing
func (db *DB) InsertListing(ctx context.Context, l *models.Listing) error {
	tags := l.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := db.Pool.Exec(ctx,
		"INSERT INTO listings ("+listingColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)",
		int64(l.ID), int64(l.AssetID), string(l.Seller), int64(l.Price), l.CreatedAt, l.UpdatedAt, l.IsActive,
		int64(l.ReservedBy), l.Title, l.Description, l.Category, tags)
	if err != nil {
		return fmt.Errorf("failed to insert listing: %w", err)
	}
	return nil
}

// GetListing retrieves a listing by id
func (db *DB) GetListing(ctx context.Context, id uint64) (*models.Listing, error) {
	row := db.Pool.QueryRow(ctx, "SELECT "+listingColumns+" FROM listings WHERE id = $1", int64(id))
	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: listing %d", marketplace.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return l, nil
}

// ListListings retrieves every listing ordered by id
func (db *DB) ListListings(ctx context.Context) ([]models.Listing, error) {
	rows, err := db.Pool.Query(ctx, "SELECT "+listingColumns+" FROM listings ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	listings := []models.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return listings, nil
}

// UpdateListing locks the row, lets fn modify it and writes it back
func (db *DB) UpdateListing(ctx context.Context, id uint64, fn func(*models.Listing) error) (*models.Listing, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the row for update to prevent concurrent modifications
	l, err := scanListing(tx.QueryRow(ctx, "SELECT "+listingColumns+" FROM listings WHERE id = $1 FOR UPDATE", int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: listing %d", marketplace.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	if err := fn(l); err != nil {
		return nil, err
	}
	l.ID = id

	_, err = tx.Exec(ctx, `
		UPDATE listings SET asset_id = $2, seller = $3, price = $4, updated_at = $5, is_active = $6,
			reserved_by = $7, title = $8, description = $9, category = $10, tags = $11
		WHERE id = $1`,
		int64(id), int64(l.AssetID), string(l.Seller), int64(l.Price), l.UpdatedAt, l.IsActive,
		int64(l.ReservedBy), l.Title, l.Description, l.Category, l.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to update listing: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return l, nil
}
