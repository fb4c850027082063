package domain

import "time"

type User struct {
	ID         int64      `json:"id" db:"id"`
	TenantID   string     `json:"tenantId" db:"tenant_id"`
	Username   string     `json:"username" db:"username"`
	ApiKeyHash string     `json:"-" db:"api_key_hash"`
	Manager    *string    `json:"manager,omitempty" db:"manager"`
	Enabled    bool       `json:"enabled" db:"enabled"`
	Created    time.Time  `json:"created" db:"created"`
	Roles      []string   `json:"roles" db:"-"`
	LastSeen   *time.Time `json:"lastSeen,omitempty" db:"last_seen"`
}

type Executor struct {
	ID         int64     `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Started    time.Time `json:"started" db:"started"`
	LastActive time.Time `json:"lastActive" db:"last_active"`
}
