package models

import "time"

// User represents a registered listener.
type User struct {
	ID        int64
	Username  string
	Email     *string // Use pointer for nullable fields
	CreatedAt time.Time
	UpdatedAt time.Time
}
