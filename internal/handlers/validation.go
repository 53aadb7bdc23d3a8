package handlers

import (
	"errors"
	"time"

	"splitledger/internal/models"
	"splitledger/internal/money"
)

var errBadShare = errors.New("each share needs a user_id and a positive amount")

type shareRequest struct {
	UserID string `json:"user_id"`
	Amount string `json:"amount"`
}

func parseShares(shares []shareRequest) ([]models.Share, error) {
	parsed := make([]models.Share, 0, len(shares))
	for _, share := range shares {
		if share.UserID == "" {
			return nil, errBadShare
		}
		amount, err := money.ParseMinor(share.Amount)
		if err != nil {
			return nil, err
		}
		if amount <= 0 {
			return nil, errBadShare
		}
		parsed = append(parsed, models.Share{UserID: share.UserID, Amount: amount})
	}
	return parsed, nil
}

func participantIDs(payers, payees []models.Share) []string {
	seen := make(map[string]bool, len(payers)+len(payees))
	var ids []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, share := range payers {
		add(share.UserID)
	}
	for _, share := range payees {
		add(share.UserID)
	}
	return ids
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if date, err := time.Parse(time.RFC3339, raw); err == nil {
		return date, nil
	}
	return time.Parse("2006-01-02", raw)
}
