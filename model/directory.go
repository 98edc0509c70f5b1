package model

import "time"

// User is a directory entry backing assignment resolution and permissions.
type User struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Department string    `json:"department,omitempty"`
	Roles      []string  `json:"roles,omitempty"`
	ManagerID  string    `json:"manager_id,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Department groups users for roster-based assignment and permission scoping.
type Department struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	HeadID    string    `json:"head_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
