package models

import "time"

// Document is the storage-level record shared by every collection.
// Data holds the JSON encoding of the domain value; SortKey carries the
// transaction date so backends can order without decoding Data.
type Document struct {
	UserID     string    `json:"user_id"`
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Data       string    `json:"data"`
	SortKey    string    `json:"sort_key,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// LedgerSnapshot is a consistent view of one user's ledger.
type LedgerSnapshot struct {
	UserID       string        `json:"user_id"`
	Accounts     []Account     `json:"accounts"`
	Transactions []Transaction `json:"transactions"`
	Holdings     []Holding     `json:"holdings"`
	Ready        bool          `json:"ready"`
}

// FindAccount returns the account with id.
func (s LedgerSnapshot) FindAccount(id string) (Account, bool) {
	for _, a := range s.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}
