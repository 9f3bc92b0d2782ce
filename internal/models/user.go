package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTrainer Role = "trainer"
	RoleClient  Role = "client"
)

// ParseRole maps stored role names onto the three roles the ledger knows.
// "user" is the legacy name for client; anything unrecognised is treated as
// a client so that it receives the narrowest scope.
func ParseRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "admin":
		return RoleAdmin
	case "trainer":
		return RoleTrainer
	default:
		return RoleClient
	}
}

type User struct {
	ID                int64     `json:"id"`
	Email             string    `json:"email"`
	PasswordHash      string    `json:"-"`
	Role              Role      `json:"role"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	AvailableSessions int       `json:"available_sessions"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
