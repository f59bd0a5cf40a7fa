// Package ops accepts operation requests and executes them asynchronously
// against device instances, exposing status via polling.
package ops

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"phonefleet/orchestrator/internal/models"
	"phonefleet/orchestrator/internal/registry"
	"phonefleet/orchestrator/internal/steps"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// ErrNotFound is returned when an operation id is unknown.
var ErrNotFound = errors.New("operation not found")

// DeviceClient is the control-client surface an operation worker needs.
type DeviceClient interface {
	Health(ctx context.Context) (map[string]interface{}, error)
	steps.Device
}

// ClientFactory builds a control client for an instance endpoint.
type ClientFactory func(endpoint string) DeviceClient

// Scheduler owns the operation map and runs each submitted operation on
// its own worker goroutine. Workers draw from a semaphore-bounded pool, so
// the lack of backpressure is an explicit, tunable limit: submissions past
// the bound are accepted and stay queued until a slot frees. Each record
// is mutated only by its own worker after creation; reads copy under the
// lock.
type Scheduler struct {
	mu      sync.Mutex
	ops     map[string]*models.Operation
	reg     *registry.Registry
	clients ClientFactory
	workers *semaphore.Weighted
	now     func() time.Time
}

// NewScheduler creates a scheduler executing at most maxWorkers operations
// concurrently.
func NewScheduler(reg *registry.Registry, clients ClientFactory, maxWorkers int64) *Scheduler {
	return &Scheduler{
		ops:     make(map[string]*models.Operation),
		reg:     reg,
		clients: clients,
		workers: semaphore.NewWeighted(maxWorkers),
		now:     time.Now,
	}
}

func validateRequest(req models.OperationRequest) error {
	if req.Operation != "login" && len(req.Steps) == 0 {
		return &steps.ValidationError{Reason: "operation=login or steps required"}
	}
	if req.Operation == "login" && req.AppPackage == "" {
		return &steps.ValidationError{Reason: "app_package required for login operation"}
	}
	return nil
}

// Submit validates the request, records a queued operation and schedules
// its execution. It returns immediately; callers learn the outcome by
// polling Get.
func (s *Scheduler) Submit(req models.OperationRequest) (models.Operation, error) {
	if err := validateRequest(req); err != nil {
		return models.Operation{}, err
	}

	now := s.now()
	op := &models.Operation{
		ID:        uuid.New().String(),
		Status:    models.OperationQueued,
		CreatedAt: now,
		UpdatedAt: now,
		Payload:   req,
	}

	s.mu.Lock()
	s.ops[op.ID] = op
	cp := *op
	s.mu.Unlock()

	log.Printf("Queued operation id=%s", op.ID)
	go s.run(op.ID, req)

	return cp, nil
}

// Get returns a snapshot of the operation with the given id.
func (s *Scheduler) Get(id string) (models.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.ops[id]
	if !ok {
		return models.Operation{}, ErrNotFound
	}
	return *op, nil
}

func (s *Scheduler) run(id string, req models.OperationRequest) {
	ctx := context.Background()
	if err := s.workers.Acquire(ctx, 1); err != nil {
		s.fail(id, err)
		return
	}
	defer s.workers.Release(1)

	s.setRunning(id)
	log.Printf("Operation started id=%s", id)

	// Instance selection deliberately ignores leases; a leased instance
	// can still be picked here. See the lease package doc.
	inst, err := s.reg.GetOrCreate(ctx, req.InstanceID)
	if err != nil {
		s.fail(id, err)
		return
	}

	dev := s.clients(inst.Endpoint)
	if _, err := dev.Health(ctx); err != nil {
		s.fail(id, err)
		return
	}

	var plan []models.Step
	if len(req.Steps) > 0 {
		plan, err = steps.Normalize(req.Steps)
		if err != nil {
			s.fail(id, err)
			return
		}
	} else {
		plan = steps.BuildLogin(req)
	}

	results, err := steps.Run(ctx, dev, plan)
	if err != nil {
		s.fail(id, err)
		return
	}

	s.complete(id, &models.OperationResult{
		Steps:    plan,
		Results:  results,
		Instance: inst,
	})
	log.Printf("Operation complete id=%s status=done", id)
}

func (s *Scheduler) setRunning(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if op, ok := s.ops[id]; ok {
		op.Status = models.OperationRunning
		op.UpdatedAt = s.now()
	}
}

func (s *Scheduler) complete(id string, result *models.OperationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if op, ok := s.ops[id]; ok {
		op.Status = models.OperationDone
		op.Result = result
		op.UpdatedAt = s.now()
	}
}

func (s *Scheduler) fail(id string, err error) {
	log.Printf("Operation failed id=%s err=%v", id, err)
	s.mu.Lock()
	defer s.mu.Unlock()
	if op, ok := s.ops[id]; ok {
		op.Status = models.OperationFailed
		op.Error = err.Error()
		op.UpdatedAt = s.now()
	}
}
