package marketplace_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xtrntr/landmarket/internal/clock"
	"github.com/xtrntr/landmarket/internal/events"
	"github.com/xtrntr/landmarket/internal/marketplace"
	"github.com/xtrntr/landmarket/internal/memstore"
	"github.com/xtrntr/landmarket/internal/models"
	"github.com/xtrntr/landmarket/internal/registry"
)

const registryAddr = "http://registry.test"

var errUnreachable = errors.New("dial tcp: connection refused")

// fakeRegistry answers transfers with a preset result. When hold is set,
// TransferOwnership signals on entered and then waits for hold to close.
type fakeRegistry struct {
	mu          sync.Mutex
	transferErr error
	assetErr    error
	owners      map[uint64]models.Identity
	transfers   int

	entered chan struct{}
	hold    chan struct{}
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{owners: map[uint64]models.Identity{}}
}

func (f *fakeRegistry) TransferOwnership(ctx context.Context, address string, assetID uint64, from, to models.Identity) (*models.Asset, error) {
	f.mu.Lock()
	f.transfers++
	entered, hold := f.entered, f.hold
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if hold != nil {
		<-hold
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transferErr != nil {
		return nil, f.transferErr
	}
	f.owners[assetID] = to
	return &models.Asset{ID: assetID, Owner: to}, nil
}

func (f *fakeRegistry) GetAsset(ctx context.Context, address string, assetID uint64) (*models.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assetErr != nil {
		return nil, f.assetErr
	}
	return &models.Asset{ID: assetID, Owner: f.owners[assetID]}, nil
}

func (f *fakeRegistry) transferCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transfers
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
	elapsed  []time.Duration
}

func (o *recordingObserver) ObservePurchase(outcome string, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
	o.elapsed = append(o.elapsed, elapsed)
}

type fixture struct {
	svc       *marketplace.Service
	store     *memstore.Store
	registry  *fakeRegistry
	clock     *clock.Manual
	publisher *recordingPublisher
	observer  *recordingObserver

	assets uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     memstore.New(),
		registry:  newFakeRegistry(),
		clock:     clock.NewManual(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
		publisher: &recordingPublisher{},
		observer:  &recordingObserver{},
	}
	f.svc = marketplace.NewService(f.store, f.registry,
		marketplace.WithClock(f.clock),
		marketplace.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		marketplace.WithPublisher(f.publisher),
		marketplace.WithObserver(f.observer),
	)
	require.NoError(t, f.store.SetConfig(context.Background(), marketplace.ConfigRegistryAddress, registryAddr))
	return f
}

func (f *fixture) listing(t *testing.T, seller models.Identity, price uint64) *models.Listing {
	t.Helper()
	f.assets++
	l, err := f.svc.CreateListing(context.Background(), seller, marketplace.ListingInput{
		AssetID:     1000 + f.assets,
		Price:       price,
		Title:       "Parcel by the river",
		Description: "Two hectares",
		Category:    "land",
		Tags:        []string{"river", "farmland"},
	})
	require.NoError(t, err)
	return l
}

func (f *fixture) pendingCount(t *testing.T, listingID uint64) int {
	t.Helper()
	txs, err := f.store.ListTransactions(context.Background())
	require.NoError(t, err)
	n := 0
	for _, tx := range txs {
		if tx.ListingID == listingID && tx.Status == models.TransactionPending {
			n++
		}
	}
	return n
}

func rejection(reason string) error {
	return &registry.RejectionError{StatusCode: 409, Reason: reason}
}
