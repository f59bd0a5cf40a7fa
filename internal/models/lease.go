package models

import (
	"time"
)

// Lease is an exclusive, time-bounded claim on one instance. A lease is
// valid only while ExpiresAt is in the future; expired leases are treated
// as absent.
type Lease struct {
	InstanceID string    `json:"instance_id"`
	Owner      string    `json:"owner"`
	ExpiresAt  time.Time `json:"expires_at"`
}
