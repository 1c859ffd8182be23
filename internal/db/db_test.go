package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/xtrntr/landmarket/internal/auth"
	"github.com/xtrntr/landmarket/internal/marketplace"
	"github.com/xtrntr/landmarket/internal/models"
	"github.com/xtrntr/landmarket/migrations"
)

var testDB *DB

func TestMain(m *testing.M) {
	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		fmt.Fprintln(os.Stderr, "TEST_DATABASE_URL not set, skipping Postgres tests")
		os.Exit(0)
	}

	ctx := context.Background()
	var err error
	testDB, err = NewDB(ctx, connString)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}

	if err := migrations.Apply(ctx, testDB.Pool); err != nil {
		fmt.Fprintf(os.Stderr, "Unable to apply migrations: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	testDB.Close(ctx)
	os.Exit(code)
}

func cleanup(t *testing.T) {
	t.Helper()
	_, err := testDB.Pool.Exec(context.Background(), "TRUNCATE TABLE users, listings, transactions, id_counters, config RESTART IDENTITY")
	if err != nil {
		t.Fatalf("Failed to clean up database: %v", err)
	}
}

func testListing(id uint64, seller models.Identity) *models.Listing {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Listing{
		ID:        id,
		AssetID:   100 + id,
		Seller:    seller,
		Price:     100,
		CreatedAt: now,
		UpdatedAt: now,
		IsActive:  true,
		Title:     fmt.Sprintf("Parcel %d", id),
		Category:  "land",
		Tags:      []string{"coastal", "zoned"},
	}
}

func TestDB_NextID(t *testing.T) {
	cleanup(t)
	ctx := context.Background()

	for want := uint64(1); want <= 3; want++ {
		got, err := testDB.NextID(ctx, marketplace.KindListing)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("expected listing id %d, got %d", want, got)
		}
	}

	got, err := testDB.NextID(ctx, marketplace.KindTransaction)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1 {
		t.Errorf("expected independent transaction counter to start at 1, got %d", got)
	}

	// Clearing the data tables must not rewind the counters
	if _, err := testDB.Pool.Exec(ctx, "TRUNCATE TABLE listings, transactions"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	got, err = testDB.NextID(ctx, marketplace.KindListing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 4 {
		t.Errorf("expected listing id 4 after truncate, got %d", got)
	}
}

func TestDB_Listings(t *testing.T) {
	cleanup(t)
	ctx := context.Background()

	if err := testDB.InsertListing(ctx, testListing(1, "alice")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := testDB.InsertListing(ctx, testListing(2, "bob")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := testDB.GetListing(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Seller != "alice" || !got.IsActive || len(got.Tags) != 2 {
		t.Errorf("unexpected listing: %+v", got)
	}

	if _, err := testDB.GetListing(ctx, 999); !errors.Is(err, marketplace.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	all, err := testDB.ListListings(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != 1 || all[1].ID != 2 {
		t.Errorf("expected listings 1 and 2 in order, got %+v", all)
	}
}

func TestDB_UpdateListing(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	if err := testDB.InsertListing(ctx, testListing(1, "alice")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	errAbort := errors.New("abort")

	tests := []struct {
		name        string
		listingID   uint64
		fn          func(*models.Listing) error
		expectError error
		expectPrice uint64
	}{
		{
			name:      "Success",
			listingID: 1,
			fn: func(l *models.Listing) error {
				l.Price = 250
				return nil
			},
			expectPrice: 250,
		},
		{
			name:      "CallbackAborts",
			listingID: 1,
			fn: func(l *models.Listing) error {
				l.Price = 999
				return errAbort
			},
			expectError: errAbort,
			expectPrice: 250,
		},
		{
			name:        "NonExistentListing",
			listingID:   999,
			fn:          func(l *models.Listing) error { return nil },
			expectError: marketplace.ErrNotFound,
			expectPrice: 250,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testDB.UpdateListing(ctx, tt.listingID, tt.fn)
			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("expected %v, got %v", tt.expectError, err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			stored, err := testDB.GetListing(ctx, 1)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if stored.Price != tt.expectPrice {
				t.Errorf("expected price %d, got %d", tt.expectPrice, stored.Price)
			}
		})
	}
}

func TestDB_UpdateListing_ConcurrentReservation(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	if err := testDB.InsertListing(ctx, testListing(1, "alice")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var wg sync.WaitGroup
	n := 10
	wg.Add(n)
	successCount := 0
	mu := sync.Mutex{}

	for i := 0; i < n; i++ {
		go func(txID uint64) {
			defer wg.Done()
			_, err := testDB.UpdateListing(ctx, 1, func(l *models.Listing) error {
				if !l.IsActive {
					return marketplace.ErrStateConflict
				}
				l.IsActive = false
				l.ReservedBy = txID
				return nil
			})
			if err == nil {
				mu.Lock()
				successCount++
				mu.Unlock()
			}
		}(uint64(i + 1))
	}
	wg.Wait()

	if successCount != 1 {
		t.Errorf("expected exactly 1 successful reservation, got %d", successCount)
	}

	stored, err := testDB.GetListing(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.IsActive || stored.ReservedBy == 0 {
		t.Errorf("expected reserved listing, got active=%v reserved_by=%d", stored.IsActive, stored.ReservedBy)
	}
}

func TestDB_Transactions(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	pending := &models.Transaction{
		ID: 1, AssetID: 101, ListingID: 1, Seller: "alice", Buyer: "bob", Price: 100,
		CreatedAt: now, UpdatedAt: now, Status: models.TransactionPending,
	}
	if err := testDB.InsertTransaction(ctx, pending); err != nil {
		t.Fatalf("insert: %v", err)
	}

	second := *pending
	second.ID = 2
	if err := testDB.InsertTransaction(ctx, &second); !errors.Is(err, marketplace.ErrStateConflict) {
		t.Errorf("expected ErrStateConflict for a second pending transaction, got %v", err)
	}

	updated, err := testDB.UpdateTransaction(ctx, 1, func(tx *models.Transaction) error {
		tx.Status = models.TransactionFailed
		tx.FailureKind = models.FailureRejected
		tx.FailureReason = "not current owner"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != models.TransactionFailed {
		t.Errorf("expected failed, got %s", updated.Status)
	}

	// Once the first attempt is terminal a new pending attempt is allowed
	if err := testDB.InsertTransaction(ctx, &second); err != nil {
		t.Errorf("unexpected error inserting new pending transaction: %v", err)
	}

	txs, err := testDB.ListTransactions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	if txs[0].FailureReason != "not current owner" || txs[0].FailureKind != models.FailureRejected {
		t.Errorf("failure detail not stored: %+v", txs[0])
	}

	if _, err := testDB.GetTransaction(ctx, 42); !errors.Is(err, marketplace.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDB_Config(t *testing.T) {
	cleanup(t)
	ctx := context.Background()

	if _, ok, err := testDB.GetConfig(ctx, marketplace.ConfigRegistryAddress); err != nil || ok {
		t.Fatalf("expected unset config, got ok=%v err=%v", ok, err)
	}
	for _, addr := range []string{"http://registry-a:9000", "http://registry-b:9000"} {
		if err := testDB.SetConfig(ctx, marketplace.ConfigRegistryAddress, addr); err != nil {
			t.Fatalf("set: %v", err)
		}
		got, ok, err := testDB.GetConfig(ctx, marketplace.ConfigRegistryAddress)
		if err != nil || !ok || got != addr {
			t.Errorf("expected %q, got %q ok=%v err=%v", addr, got, ok, err)
		}
	}
}

func TestDB_Users(t *testing.T) {
	cleanup(t)
	ctx := context.Background()

	if _, err := testDB.CreateUser(ctx, "alice", "hash"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := testDB.CreateUser(ctx, "alice", "hash"); !errors.Is(err, auth.ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}
	if _, err := testDB.GetUserByUsername(ctx, "bob"); !errors.Is(err, auth.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}
