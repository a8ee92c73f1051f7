package models

import "time"

// Timestamps defines the common audit fields shared by all models.
// Record identity is domain-owned (string IDs generated by the application),
// so there is no auto-increment base here.
type Timestamps struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
