package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"splitledger/internal/middleware"
	"splitledger/internal/models"
	"splitledger/internal/money"
	"splitledger/internal/services"
)

type expenseRequest struct {
	Payers      []shareRequest `json:"payers"`
	Payees      []shareRequest `json:"payees"`
	SplitAmong  []string       `json:"split_among"`
	TotalAmount string         `json:"total_amount"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Date        string         `json:"date"`
}

func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	total, err := money.ParseMinor(req.TotalAmount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid total_amount")
		return
	}
	payers, err := parseShares(req.Payers)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	payees, err := parseShares(req.Payees)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Convenience: split the total equally when the caller lists only who
	// shares the expense instead of explicit payee amounts.
	if len(payees) == 0 && len(req.SplitAmong) > 0 {
		shares := money.SplitEven(total, len(req.SplitAmong))
		for i, memberID := range req.SplitAmong {
			payees = append(payees, models.Share{UserID: memberID, Amount: shares[i]})
		}
	}
	date, err := parseDate(req.Date)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date")
		return
	}
	// Reject unknown ids here rather than letting them surface as a foreign
	// key violation deep in the unit of work.
	ids := participantIDs(payers, payees)
	known, err := h.users.UsernamesByID(r.Context(), ids)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify participants")
		return
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			respondError(w, http.StatusBadRequest, "unknown user: "+id)
			return
		}
	}

	entry, err := h.service.RecordGroupExpense(r.Context(), services.ExpenseRequest{
		ActorID:     userID,
		Payers:      payers,
		Payees:      payees,
		TotalAmount: total,
		Description: req.Description,
		Category:    req.Category,
		Date:        date,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, entryResponse(entry))
}

type settleUpRequest struct {
	CounterpartyID string `json:"counterparty_id"`
	Amount         string `json:"amount"`
}

func (h *Handler) SettleUp(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req settleUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.CounterpartyID == "" {
		respondError(w, http.StatusBadRequest, "counterparty_id is required")
		return
	}
	amount, err := money.ParseMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	result, err := h.service.SettleUp(r.Context(), services.SettleUpRequest{
		PayerID:        userID,
		CounterpartyID: req.CounterpartyID,
		Amount:         amount,
		IdempotencyKey: r.Header.Get("X-Idempotency-Key"),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	respondJSON(w, status, map[string]any{
		"entry":    entryResponse(result.Entry),
		"replayed": result.Replayed,
	})
}

func entryResponse(entry models.LedgerEntry) map[string]any {
	payers := make([]map[string]string, 0, len(entry.Payers))
	for _, share := range entry.Payers {
		payers = append(payers, map[string]string{
			"user_id": share.UserID,
			"amount":  money.FormatMinor(share.Amount),
		})
	}
	payees := make([]map[string]string, 0, len(entry.Payees))
	for _, share := range entry.Payees {
		payees = append(payees, map[string]string{
			"user_id": share.UserID,
			"amount":  money.FormatMinor(share.Amount),
		})
	}
	transfers := make([]map[string]string, 0, len(entry.Transfers))
	for _, transfer := range entry.Transfers {
		transfers = append(transfers, map[string]string{
			"from":   transfer.From,
			"to":     transfer.To,
			"amount": money.FormatMinor(transfer.Amount),
		})
	}
	return map[string]any{
		"id":                entry.ID,
		"reference":         entry.Reference,
		"kind":              entry.Kind,
		"total_amount":      money.FormatMinor(entry.TotalAmount),
		"description":       entry.Description,
		"category":          entry.Category,
		"date":              entry.Date.Format(time.RFC3339),
		"non_transactional": entry.NonTransactional,
		"payers":            payers,
		"payees":            payees,
		"transfers":         transfers,
	}
}
