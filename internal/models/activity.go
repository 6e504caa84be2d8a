package models

import "time"

// ActivityEntry represents one row of a user's activity trail.
type ActivityEntry struct {
	ID           int       `json:"id"`
	UserID       int       `json:"user_id"`
	Action       string    `json:"action"`        // create, update, delete, import
	ResourceType string    `json:"resource_type"` // expense
	ResourceID   int       `json:"resource_id"`
	Details      string    `json:"details,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
