package models

import "time"

type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Pair statuses. A pair is never hard-deleted: a zero balance is a valid
// steady state, and a "deleted" pair reactivates on the next transaction.
const (
	PairStatusActive  = "active"
	PairStatusDeleted = "deleted"
)

// PairBalance is the net financial relationship between two users, stored
// once per unordered pair under the canonical ordering LowUser < HighUser.
//
// Sign invariant: NetAmount > 0 means HighUser owes LowUser; NetAmount < 0
// means LowUser owes HighUser; 0 means settled.
type PairBalance struct {
	LowUser   string    `db:"low_user" json:"low_user"`
	HighUser  string    `db:"high_user" json:"high_user"`
	NetAmount int64     `db:"net_amount" json:"net_amount"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PairKey canonicalizes two user ids. Every component that addresses a pair
// (store rows, cache keys, idempotency intents) goes through this.
func PairKey(userA, userB string) (low, high string) {
	if userA <= userB {
		return userA, userB
	}
	return userB, userA
}

// OwedBy reports the debtor's id and the magnitude owed, or ("", 0) when the
// pair is settled.
func (p PairBalance) OwedBy() (string, int64) {
	switch {
	case p.NetAmount > 0:
		return p.HighUser, p.NetAmount
	case p.NetAmount < 0:
		return p.LowUser, -p.NetAmount
	default:
		return "", 0
	}
}

// NetFor returns the balance from userID's viewpoint: positive means the
// counterparty owes userID.
func (p PairBalance) NetFor(userID string) int64 {
	if userID == p.LowUser {
		return p.NetAmount
	}
	return -p.NetAmount
}

// Counterparty returns the other user of the pair.
func (p PairBalance) Counterparty(userID string) string {
	if userID == p.LowUser {
		return p.HighUser
	}
	return p.LowUser
}

// Ledger entry kinds and statuses.
const (
	EntryKindExpense    = "expense"
	EntryKindSettlement = "settlement"

	EntryStatusActive  = "active"
	EntryStatusDeleted = "deleted"
)

// Share is one (user, amount) leg of an expense: how much the user paid, or
// how much the user owes, depending on which list it appears in.
type Share struct {
	UserID string `db:"user_id" json:"user_id"`
	Amount int64  `db:"amount" json:"amount"`
}

// Transfer is a resolved pairwise IOU: From owes To Amount.
type Transfer struct {
	From   string `db:"from_user" json:"from"`
	To     string `db:"to_user" json:"to"`
	Amount int64  `db:"amount" json:"amount"`
}

// LedgerEntry is an immutable record of one expense or settlement event.
// Corrections happen by appending a compensating entry, never by editing.
type LedgerEntry struct {
	ID               string     `db:"id" json:"id"`
	Reference        string     `db:"reference" json:"reference"`
	Kind             string     `db:"kind" json:"kind"`
	TotalAmount      int64      `db:"total_amount" json:"total_amount"`
	Description      string     `db:"description" json:"description"`
	Category         string     `db:"category" json:"category"`
	Date             time.Time  `db:"date" json:"date"`
	Status           string     `db:"status" json:"status"`
	NonTransactional bool       `db:"non_transactional" json:"non_transactional"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	Payers           []Share    `json:"payers"`
	Payees           []Share    `json:"payees"`
	Transfers        []Transfer `json:"transfers"`
}

// TransferForPair returns the entry's transfer between the two users, if any.
func (e LedgerEntry) TransferForPair(userA, userB string) (Transfer, bool) {
	for _, t := range e.Transfers {
		if (t.From == userA && t.To == userB) || (t.From == userB && t.To == userA) {
			return t, true
		}
	}
	return Transfer{}, false
}
