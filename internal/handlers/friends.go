package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"splitledger/internal/middleware"
	"splitledger/internal/models"
	"splitledger/internal/money"
	"splitledger/internal/services"
)

// friendlyName falls back to a generic label when the counterparty's account
// is gone; balance math never depends on the name.
func friendlyName(names map[string]string, userID string) string {
	if name, ok := names[userID]; ok {
		return name
	}
	return "Friend"
}

func balanceMessage(view services.BalanceView, counterpartyName string) string {
	amount := money.FormatMinor(money.Abs(view.Net))
	switch view.Direction {
	case services.DirectionOwesYou:
		return fmt.Sprintf("%s owes you %s", counterpartyName, amount)
	case services.DirectionYouOwe:
		return fmt.Sprintf("You owe %s %s", counterpartyName, amount)
	default:
		return fmt.Sprintf("Everything is settled with %s", counterpartyName)
	}
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	friendID := chi.URLParam(r, "friendID")

	view, err := h.service.GetPairBalance(r.Context(), userID, friendID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	names, err := h.users.UsernamesByID(r.Context(), []string{friendID})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "balance check failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"balance_message": balanceMessage(view, friendlyName(names, friendID)),
		"balance_value":   money.FormatMinor(money.Abs(view.Net)),
		"direction":       view.Direction,
		"payer_is_user":   view.Direction == services.DirectionYouOwe,
	})
}

func (h *Handler) ListFriends(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	views, err := h.service.ListBalances(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	ids := make([]string, 0, len(views))
	for _, view := range views {
		ids = append(ids, view.CounterpartyID)
	}
	names, err := h.users.UsernamesByID(r.Context(), ids)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load friends")
		return
	}
	friends := make([]map[string]any, 0, len(views))
	for _, view := range views {
		name := friendlyName(names, view.CounterpartyID)
		friends = append(friends, map[string]any{
			"friend_id":       view.CounterpartyID,
			"friend_name":     name,
			"balance_value":   money.FormatMinor(money.Abs(view.Net)),
			"direction":       view.Direction,
			"balance_message": balanceMessage(view, name),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"friends": friends})
}

func (h *Handler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	friendID := chi.URLParam(r, "friendID")
	if err := h.service.RemoveFriend(r.Context(), userID, friendID); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	friendID := chi.URLParam(r, "friendID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := h.service.GetPairHistory(r.Context(), userID, friendID, limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	names, err := h.users.UsernamesByID(r.Context(), []string{friendID})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	friendName := friendlyName(names, friendID)

	transactions := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		transfer, ok := entry.TransferForPair(userID, friendID)
		if !ok {
			continue
		}
		view := entryResponse(entry)
		if entry.Kind == models.EntryKindSettlement {
			if transfer.From == userID {
				view["description"] = fmt.Sprintf("You settled with %s", friendName)
				view["balance_message"] = "Paid"
			} else {
				view["description"] = fmt.Sprintf("%s settled with you", friendName)
				view["balance_message"] = "Received"
			}
		} else {
			if transfer.To == userID {
				view["balance_message"] = "You lent"
			} else {
				view["balance_message"] = "You borrowed"
			}
		}
		view["amount"] = money.FormatMinor(transfer.Amount)
		transactions = append(transactions, view)
	}
	respondJSON(w, http.StatusOK, map[string]any{"transactions": transactions})
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.service.Reconcile(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"consistent": len(drifts) == 0,
		"drifts":     drifts,
	})
}
