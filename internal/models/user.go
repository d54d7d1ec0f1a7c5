package models

import (
	"strings"
	"time"
)

// User is a signed-up identity. It owns one accounts, transactions and
// holdings collection, all scoped by ID.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// DefaultDisplayName derives a display name from an email's local part.
func DefaultDisplayName(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	if local == "" {
		return "User"
	}
	return local
}
