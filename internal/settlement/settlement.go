// Package settlement reduces a multi-party expense to pairwise transfers.
package settlement

import (
	"fmt"
	"sort"
	"strings"

	"splitledger/internal/models"
	"splitledger/internal/money"
)

// ValidationError reports a malformed or arithmetically inconsistent expense.
// It is returned before any state is touched.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Expense is the input to Plan: who paid what and who owes what, in minor
// units. Payer and payee sums must both equal TotalAmount within
// money.Epsilon.
type Expense struct {
	Payers      []models.Share
	Payees      []models.Share
	TotalAmount int64
	Description string
}

// Validate checks the expense input contract without computing anything.
func (e Expense) Validate() error {
	if len(e.Payers) == 0 {
		return validationErrorf("payers must be a non-empty list")
	}
	if len(e.Payees) == 0 {
		return validationErrorf("payees must be a non-empty list")
	}
	if e.TotalAmount <= 0 {
		return validationErrorf("total amount must be positive")
	}
	if strings.TrimSpace(e.Description) == "" {
		return validationErrorf("description is required")
	}
	var paid, owed int64
	for _, p := range e.Payers {
		if p.UserID == "" {
			return validationErrorf("payer user id is required")
		}
		if p.Amount <= 0 {
			return validationErrorf("payer amount must be positive")
		}
		paid += p.Amount
	}
	for _, p := range e.Payees {
		if p.UserID == "" {
			return validationErrorf("payee user id is required")
		}
		if p.Amount <= 0 {
			return validationErrorf("payee amount must be positive")
		}
		owed += p.Amount
	}
	if !money.WithinEpsilon(paid, e.TotalAmount) {
		return validationErrorf("total paid (%s) must equal total amount (%s)",
			money.FormatMinor(paid), money.FormatMinor(e.TotalAmount))
	}
	if !money.WithinEpsilon(owed, e.TotalAmount) {
		return validationErrorf("total owed (%s) must equal total amount (%s)",
			money.FormatMinor(owed), money.FormatMinor(e.TotalAmount))
	}
	return nil
}

type position struct {
	userID string
	net    int64
}

// Plan validates the expense and computes the greedy minimum-cash-flow
// transfer list. Users whose paid and owed amounts cancel are dropped. The
// output is deterministic: creditors are taken largest-first and debtors
// most-negative-first, ties broken by user id.
//
// The greedy result is not guaranteed to minimize the transfer count (that
// problem is NP-hard); history display depends on this exact transfer set, so
// the ordering here must not change.
func Plan(e Expense) ([]models.Transfer, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	net := make(map[string]int64)
	for _, p := range e.Payers {
		net[p.UserID] += p.Amount
	}
	for _, p := range e.Payees {
		net[p.UserID] -= p.Amount
	}

	var creditors, debtors []position
	for userID, amount := range net {
		switch {
		case amount > 0:
			creditors = append(creditors, position{userID: userID, net: amount})
		case amount < 0:
			debtors = append(debtors, position{userID: userID, net: amount})
		}
	}
	sort.Slice(creditors, func(i, j int) bool {
		if creditors[i].net != creditors[j].net {
			return creditors[i].net > creditors[j].net
		}
		return creditors[i].userID < creditors[j].userID
	})
	sort.Slice(debtors, func(i, j int) bool {
		if debtors[i].net != debtors[j].net {
			return debtors[i].net < debtors[j].net
		}
		return debtors[i].userID < debtors[j].userID
	})

	var transfers []models.Transfer
	for len(creditors) > 0 && len(debtors) > 0 {
		creditor := &creditors[0]
		debtor := &debtors[0]
		amount := creditor.net
		if owed := -debtor.net; owed < amount {
			amount = owed
		}
		transfers = append(transfers, models.Transfer{
			From:   debtor.userID,
			To:     creditor.userID,
			Amount: amount,
		})
		creditor.net -= amount
		debtor.net += amount
		if creditor.net == 0 {
			creditors = creditors[1:]
		}
		if debtor.net == 0 {
			debtors = debtors[1:]
		}
	}
	// Total credits equal total debits by construction, so both lists drain
	// together.
	return transfers, nil
}
