package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xtrntr/landmarket/internal/auth"
	"github.com/xtrntr/landmarket/internal/marketplace"
	"github.com/xtrntr/landmarket/internal/models"
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Market *marketplace.Service
	Auth   *auth.AuthService
	Logger *slog.Logger
}

// NewHandler creates a new handler
func NewHandler(market *marketplace.Service, authService *auth.AuthService, logger *slog.Logger) *Handler {
	return &Handler{Market: market, Auth: authService, Logger: logger}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "Invalid request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidID, "Invalid id")
		return 0, false
	}
	return id, true
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, codeInvalidInput, "Username and password required")
		return
	}

	user, err := h.Auth.Register(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrUsernameTaken):
		writeError(w, http.StatusConflict, codeUsernameTaken, "Username already taken")
		return
	case errors.Is(err, auth.ErrInvalidUser):
		writeError(w, http.StatusBadRequest, codeInvalidInput, err.Error())
		return
	case err != nil:
		h.writeServiceError(w, r, err, nil)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       user.ID,
		"username": user.Username,
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}

	token, err := h.Auth.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, codeInvalidCredentials, "Invalid credentials")
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// CreateListing lists an asset for sale by the caller
func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req marketplace.ListingInput
	if !decode(w, r, &req) {
		return
	}
	listing, err := h.Market.CreateListing(r.Context(), IdentityFromContext(r.Context()), req)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, listing)
}

// ListListings returns the active listings
func (h *Handler) ListListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.Market.ListActiveListings(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

// GetListing returns one listing in any state
func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	listing, err := h.Market.GetListing(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// UpdatePrice changes the price of the caller's active listing
func (h *Handler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Price uint64 `json:"price"`
	}
	if !decode(w, r, &req) {
		return
	}
	listing, err := h.Market.UpdatePrice(r.Context(), id, req.Price, IdentityFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// CancelListing withdraws the caller's listing
func (h *Handler) CancelListing(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	listing, err := h.Market.CancelListing(r.Context(), id, IdentityFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// Buy purchases a listing. A failed transfer answers with the failed
// transaction alongside the error.
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tx, err := h.Market.Buy(r.Context(), id, IdentityFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err, tx)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// GetTransaction returns one purchase attempt
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tx, err := h.Market.GetTransaction(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func userIdentity(r *http.Request) models.Identity {
	return models.Identity(chi.URLParam(r, "identity"))
}

// GetUserListings returns every listing of a seller
func (h *Handler) GetUserListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.Market.ListSellerListings(r.Context(), userIdentity(r))
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

// GetUserTransactions returns the transactions where the user is either party
func (h *Handler) GetUserTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Market.GetTransactionsByUser(r.Context(), userIdentity(r))
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *Handler) GetUserPurchases(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Market.GetPurchases(r.Context(), userIdentity(r))
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *Handler) GetUserSales(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Market.GetSales(r.Context(), userIdentity(r))
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// GetStats returns marketplace totals
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Market.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type registryAddress struct {
	Address string `json:"address"`
}

func (h *Handler) GetRegistryAddress(w http.ResponseWriter, r *http.Request) {
	address, err := h.Market.RegistryAddress(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, registryAddress{Address: address})
}

func (h *Handler) SetRegistryAddress(w http.ResponseWriter, r *http.Request) {
	var req registryAddress
	if !decode(w, r, &req) {
		return
	}
	address, err := h.Market.SetRegistryAddress(r.Context(), IdentityFromContext(r.Context()), req.Address)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, registryAddress{Address: address})
}

// Reconcile reports failed purchases whose asset may have moved anyway
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	findings, err := h.Market.Reconcile(r.Context(), IdentityFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, findings)
}
