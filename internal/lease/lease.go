// Package lease grants exclusive, time-bounded ownership of instances so
// concurrent callers do not collide on the same device. Leasing is
// deliberately decoupled from operation scheduling: the scheduler never
// consults leases when picking an instance.
package lease

import (
	"errors"
	"log"
	"sync"
	"time"

	"phonefleet/orchestrator/internal/models"
)

// MinTTL is the shortest lease a caller may request.
const MinTTL = 10 * time.Second

var (
	// ErrInvalidTTL is returned when the requested ttl is below MinTTL.
	ErrInvalidTTL = errors.New("lease ttl below minimum")
	// ErrConflict is returned when a valid lease already exists for the
	// instance, regardless of owner.
	ErrConflict = errors.New("instance already leased")
)

// Manager tracks at most one active lease per instance. Expired leases are
// treated as absent and evicted lazily on the next check, under the same
// lock that guards acquisition.
type Manager struct {
	mu     sync.Mutex
	leases map[string]models.Lease
	now    func() time.Time
}

// NewManager creates an empty lease manager.
func NewManager() *Manager {
	return &Manager{
		leases: make(map[string]models.Lease),
		now:    time.Now,
	}
}

// Acquire claims instanceID for owner until now+ttl. It fails when a valid
// lease already exists; an expired lease is evicted and replaced.
func (m *Manager) Acquire(instanceID, owner string, ttl time.Duration) (models.Lease, error) {
	if ttl < MinTTL {
		return models.Lease{}, ErrInvalidTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if existing, ok := m.leases[instanceID]; ok {
		if existing.ExpiresAt.After(now) {
			return models.Lease{}, ErrConflict
		}
		delete(m.leases, instanceID)
	}

	l := models.Lease{
		InstanceID: instanceID,
		Owner:      owner,
		ExpiresAt:  now.Add(ttl),
	}
	m.leases[instanceID] = l
	log.Printf("Lease acquired instance=%s owner=%s ttl=%s", instanceID, owner, ttl)
	return l, nil
}

// IsValid reports whether instanceID holds a non-expired lease; with a
// non-empty owner it additionally requires the lease to belong to that
// owner. Expired leases are removed as a side effect.
func (m *Manager) IsValid(instanceID, owner string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.leases[instanceID]
	if !ok {
		return false
	}
	if !l.ExpiresAt.After(m.now()) {
		delete(m.leases, instanceID)
		return false
	}
	if owner != "" && l.Owner != owner {
		return false
	}
	return true
}

// Release removes any lease on instanceID. It is idempotent.
func (m *Manager) Release(instanceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.leases, instanceID)
}
