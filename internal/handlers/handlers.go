package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lib/pq"

	"splitledger/internal/db"
	"splitledger/internal/services"
	"splitledger/internal/settlement"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps ledger-service failures onto HTTP statuses.
// Validation and settlement rejections carry their reason; everything else is
// kept generic.
func respondServiceError(w http.ResponseWriter, err error) {
	var validationErr *settlement.ValidationError
	switch {
	case errors.As(err, &validationErr):
		respondError(w, http.StatusBadRequest, validationErr.Reason)
	case errors.Is(err, services.ErrInvalidSettlement):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrSameUser):
		respondError(w, http.StatusBadRequest, "the two users must be distinct")
	case errors.Is(err, services.ErrUnsettledBalance):
		respondError(w, http.StatusConflict, "balance must be settled first")
	case errors.Is(err, db.ErrConcurrencyConflict):
		respondError(w, http.StatusConflict, "concurrent_update_retry")
	case errors.Is(err, db.ErrStorageUnavailable):
		respondError(w, http.StatusServiceUnavailable, "storage_unavailable")
	default:
		if pgErr, ok := pgError(err); ok && pgErr.Code == "23505" {
			respondError(w, http.StatusConflict, "duplicate_request")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error")
	}
}

func pgError(err error) (*pq.Error, bool) {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
