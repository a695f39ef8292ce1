package models

import "time"

// Tenant is created the first time a tenant name is seen.
type Tenant struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
}
