// Package memstore keeps marketplace state in process memory. Every method is
// atomic with respect to the others; nothing survives a restart.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xtrntr/landmarket/internal/auth"
	"github.com/xtrntr/landmarket/internal/marketplace"
	"github.com/xtrntr/landmarket/internal/models"
)

type Store struct {
	mu           sync.RWMutex
	listings     map[uint64]models.Listing
	transactions map[uint64]models.Transaction
	counters     map[string]uint64
	config       map[string]string
	users        map[string]models.User
	lastUserID   int
}

func New() *Store {
	return &Store{
		listings:     make(map[uint64]models.Listing),
		transactions: make(map[uint64]models.Transaction),
		counters:     make(map[string]uint64),
		config:       make(map[string]string),
		users:        make(map[string]models.User),
	}
}

func cloneListing(l models.Listing) models.Listing {
	l.Tags = append([]string{}, l.Tags...)
	return l
}

func (s *Store) InsertListing(ctx context.Context, listing *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[listing.ID]; ok {
		return fmt.Errorf("listing %d already exists", listing.ID)
	}
	s.listings[listing.ID] = cloneListing(*listing)
	return nil
}

func (s *Store) GetListing(ctx context.Context, id uint64) (*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, fmt.Errorf("%w: listing %d", marketplace.ErrNotFound, id)
	}
	out := cloneListing(l)
	return &out, nil
}

func (s *Store) ListListings(ctx context.Context) ([]models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Listing, 0, len(s.listings))
	for _, l := range s.listings {
		out = append(out, cloneListing(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateListing(ctx context.Context, id uint64, fn func(*models.Listing) error) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, fmt.Errorf("%w: listing %d", marketplace.ErrNotFound, id)
	}
	work := cloneListing(l)
	if err := fn(&work); err != nil {
		return nil, err
	}
	work.ID = id
	s.listings[id] = cloneListing(work)
	return &work, nil
}

func (s *Store) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[tx.ID]; ok {
		return fmt.Errorf("transaction %d already exists", tx.ID)
	}
	s.transactions[tx.ID] = *tx
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id uint64) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %d", marketplace.ErrNotFound, id)
	}
	return &t, nil
}

func (s *Store) ListTransactions(ctx context.Context) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Transaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, id uint64, fn func(*models.Transaction) error) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %d", marketplace.ErrNotFound, id)
	}
	if err := fn(&t); err != nil {
		return nil, err
	}
	t.ID = id
	s.transactions[id] = t
	return &t, nil
}

// NextID increments the counter for kind. Counters are kept apart from the
// data maps and are not touched by Reset.
func (s *Store) NextID(ctx context.Context, kind string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[kind]++
	return s.counters[kind], nil
}

func (s *Store) GetConfig(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.config[key]
	return v, ok, nil
}

func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config[key] = value
	return nil
}

// Reset drops all listings and transactions but keeps the id counters, so ids
// issued afterwards never collide with earlier ones.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings = make(map[uint64]models.Listing)
	s.transactions = make(map[uint64]models.Transaction)
}

func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return nil, fmt.Errorf("%w: %s", auth.ErrUsernameTaken, username)
	}
	s.lastUserID++
	user := models.User{
		ID:           s.lastUserID,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	s.users[username] = user
	return &user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[username]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", auth.ErrUserNotFound, username)
	}
	return &user, nil
}
