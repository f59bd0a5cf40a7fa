package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"phonefleet/orchestrator/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrCapacityExceeded is returned when registering would exceed the
	// configured maximum instance count.
	ErrCapacityExceeded = errors.New("instance limit reached")
	// ErrNotFound is returned when an instance id is unknown.
	ErrNotFound = errors.New("instance not found")
	// ErrMissingReference is returned when terminating a cloud instance
	// that has no external reference to act on.
	ErrMissingReference = errors.New("external reference required to terminate instance")
)

// Candidate is a freshly provisioned but not yet registered instance.
type Candidate struct {
	Name        string
	Endpoint    string
	Mode        models.DeployMode
	ExternalRef string
}

// Backend provisions and terminates the resources behind instances.
type Backend interface {
	Provision(ctx context.Context) (Candidate, error)
	Terminate(ctx context.Context, externalRef string) error
}

// Registry owns the set of known instances. All mutations are serialized
// under a single mutex; capacity check-then-insert happens atomically so
// concurrent provision calls cannot overshoot the bound.
type Registry struct {
	mu        sync.Mutex
	instances map[string]*models.Instance
	backend   Backend
	max       int
	now       func() time.Time
}

// New creates a registry bounded at maxInstances, provisioning through
// backend when it needs a new instance.
func New(backend Backend, maxInstances int) *Registry {
	return &Registry{
		instances: make(map[string]*models.Instance),
		backend:   backend,
		max:       maxInstances,
		now:       time.Now,
	}
}

// Register creates and stores a new instance under a fresh id.
func (r *Registry) Register(endpoint, name string, mode models.DeployMode, externalRef string) (models.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.instances) >= r.max {
		return models.Instance{}, fmt.Errorf("%w (max=%d)", ErrCapacityExceeded, r.max)
	}

	now := r.now()
	inst := &models.Instance{
		ID:          uuid.New().String(),
		Name:        name,
		Endpoint:    endpoint,
		Mode:        mode,
		ExternalRef: externalRef,
		CreatedAt:   now,
		LastUsedAt:  now,
	}
	r.instances[inst.ID] = inst

	log.Printf("Instance registered id=%s name=%s endpoint=%s mode=%s", inst.ID, name, endpoint, mode)
	return *inst, nil
}

// Provision creates a new instance through the backend and registers it.
func (r *Registry) Provision(ctx context.Context) (models.Instance, error) {
	r.mu.Lock()
	full := len(r.instances) >= r.max
	r.mu.Unlock()
	if full {
		return models.Instance{}, fmt.Errorf("%w (max=%d)", ErrCapacityExceeded, r.max)
	}

	cand, err := r.backend.Provision(ctx)
	if err != nil {
		return models.Instance{}, err
	}
	return r.Register(cand.Endpoint, cand.Name, cand.Mode, cand.ExternalRef)
}

// GetOrCreate returns the instance for instanceID when known, otherwise an
// arbitrary existing instance, otherwise a newly provisioned one. The
// "any instance" fallback deliberately shares one device between callers
// with no preference; it is a simplification, not load balancing. The
// returned instance's last-used timestamp is refreshed.
func (r *Registry) GetOrCreate(ctx context.Context, instanceID string) (models.Instance, error) {
	r.mu.Lock()
	if instanceID != "" {
		if inst, ok := r.instances[instanceID]; ok {
			inst.LastUsedAt = r.now()
			cp := *inst
			r.mu.Unlock()
			log.Printf("Using existing instance id=%s name=%s", cp.ID, cp.Name)
			return cp, nil
		}
	}
	for _, inst := range r.instances {
		inst.LastUsedAt = r.now()
		cp := *inst
		r.mu.Unlock()
		log.Printf("Using any available instance id=%s name=%s", cp.ID, cp.Name)
		return cp, nil
	}
	r.mu.Unlock()

	log.Printf("No instances available; provisioning new instance")
	return r.Provision(ctx)
}

// Get returns the instance for id.
func (r *Registry) Get(id string) (models.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return models.Instance{}, ErrNotFound
	}
	return *inst, nil
}

// Terminate removes an instance. Mock instances are simply dropped; cloud
// instances must have their backing resource terminated first, which
// requires an external reference.
func (r *Registry) Terminate(ctx context.Context, id string) error {
	r.mu.Lock()
	inst, ok := r.instances[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	cp := *inst
	r.mu.Unlock()

	if cp.Mode == models.ModeCloud {
		if cp.ExternalRef == "" {
			return ErrMissingReference
		}
		if err := r.backend.Terminate(ctx, cp.ExternalRef); err != nil {
			return err
		}
	}

	r.mu.Lock()
	delete(r.instances, id)
	r.mu.Unlock()
	log.Printf("Instance removed id=%s name=%s mode=%s", cp.ID, cp.Name, cp.Mode)
	return nil
}

// List returns a snapshot of all instances.
func (r *Registry) List() []models.Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, *inst)
	}
	return out
}

// Len returns the current instance count.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}

// Max returns the configured instance capacity.
func (r *Registry) Max() int {
	return r.max
}
