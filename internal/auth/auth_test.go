package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/xtrntr/landmarket/internal/models"
)

const testSecret = "test-secret"

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]models.User{}}
}

func (f *fakeUsers) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[username]; ok {
		return nil, fmt.Errorf("%w: %s", ErrUsernameTaken, username)
	}
	u := models.User{ID: len(f.users) + 1, Username: username, PasswordHash: passwordHash, CreatedAt: time.Now()}
	f.users[username] = u
	return &u, nil
}

func (f *fakeUsers) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func TestAuthService_Register(t *testing.T) {
	tests := []struct {
		name        string
		username    string
		password    string
		expectError bool
	}{
		{
			name:        "Success",
			username:    "alice",
			password:    "password123",
			expectError: false,
		},
		{
			name:        "EmptyUsername",
			username:    "",
			password:    "password123",
			expectError: true,
		},
		{
			name:        "EmptyPassword",
			username:    "bob",
			password:    "",
			expectError: true,
		},
		{
			name:        "DuplicateUsername",
			username:    "alice",
			password:    "newpass",
			expectError: true,
		},
		{
			name:        "LongUsername",
			username:    strings.Repeat("a", 1000),
			password:    "password123",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			users := newFakeUsers()
			s := NewAuthService(users, testSecret, time.Hour)

			// For duplicate test, ensure the user exists first
			if tt.name == "DuplicateUsername" {
				if _, err := s.Register(ctx, "alice", "password123"); err != nil {
					t.Fatalf("Failed to create user for duplicate test: %v", err)
				}
			}

			user, err := s.Register(ctx, tt.username, tt.password)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if user.Username != tt.username {
				t.Errorf("expected username %q, got %q", tt.username, user.Username)
			}
			stored := users.users[tt.username]
			if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(tt.password)); err != nil {
				t.Errorf("password hash mismatch")
			}
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	s := NewAuthService(newFakeUsers(), testSecret, time.Hour)
	if _, err := s.Register(context.Background(), "alice", "password123"); err != nil {
		t.Fatalf("register: %v", err)
	}

	tests := []struct {
		name        string
		username    string
		password    string
		expectError bool
	}{
		{
			name:        "Success",
			username:    "alice",
			password:    "password123",
			expectError: false,
		},
		{
			name:        "WrongPassword",
			username:    "alice",
			password:    "wrongpass",
			expectError: true,
		},
		{
			name:        "NonExistentUser",
			username:    "bob",
			password:    "password123",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := s.Login(context.Background(), tt.username, tt.password)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			claims := &jwt.RegisteredClaims{}
			_, err = jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
				return []byte(testSecret), nil
			})
			if err != nil {
				t.Errorf("invalid token: %v", err)
			}
			if claims.Subject != "alice" {
				t.Errorf("expected subject alice, got %q", claims.Subject)
			}
		})
	}
}

func TestAuthService_IdentityFromToken(t *testing.T) {
	s := NewAuthService(newFakeUsers(), testSecret, time.Hour)
	s.Register(context.Background(), "alice", "password123")
	token, _ := s.Login(context.Background(), "alice", "password123")

	expiredToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	expiredTokenStr, _ := expiredToken.SignedString([]byte(testSecret))
	invalidToken, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "alice",
	}).SignedString([]byte("wrong-key"))
	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))

	tests := []struct {
		name           string
		token          string
		expectIdentity models.Identity
		expectError    bool
	}{
		{
			name:           "Success",
			token:          token,
			expectIdentity: "alice",
			expectError:    false,
		},
		{
			name:        "ExpiredToken",
			token:       expiredTokenStr,
			expectError: true,
		},
		{
			name:        "InvalidSignature",
			token:       invalidToken,
			expectError: true,
		},
		{
			name:        "MissingSubject",
			token:       noSubject,
			expectError: true,
		},
		{
			name:        "EmptyToken",
			token:       "",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := s.IdentityFromToken(tt.token)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if identity != tt.expectIdentity {
				t.Errorf("expected identity %q, got %q", tt.expectIdentity, identity)
			}
		})
	}
}
