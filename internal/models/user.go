package models

import "time"

// User is the subset of the users table the chat core reads
type User struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Avatar    *string   `json:"avatar,omitempty" db:"avatar"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
