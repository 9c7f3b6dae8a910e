package models

import "time"

// User is an account in the in-memory user store. Password holds the
// bcrypt hash and is never serialized.
type User struct {
	ID        uint      `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
