package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"phonefleet/orchestrator/internal/control"
	"phonefleet/orchestrator/internal/lease"
	"phonefleet/orchestrator/internal/models"
	"phonefleet/orchestrator/internal/ops"
	"phonefleet/orchestrator/internal/registry"
	"phonefleet/orchestrator/internal/steps"

	"github.com/gin-gonic/gin"
)

// Handler contains API handlers
type Handler struct {
	registry  *registry.Registry
	leases    *lease.Manager
	scheduler *ops.Scheduler
	clients   func(endpoint string) *control.Client
}

// NewHandler creates a new API handler
func NewHandler(reg *registry.Registry, leases *lease.Manager, scheduler *ops.Scheduler, clients func(endpoint string) *control.Client) *Handler {
	return &Handler{
		registry:  reg,
		leases:    leases,
		scheduler: scheduler,
		clients:   clients,
	}
}

// Health returns orchestrator liveness and instance counts
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"instances":     h.registry.Len(),
		"max_instances": h.registry.Max(),
	})
}

// CreateOperation submits an operation for asynchronous execution
func (h *Handler) CreateOperation(c *gin.Context) {
	var req models.OperationRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	op, err := h.scheduler.Submit(req)
	if err != nil {
		var verr *steps.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"operation_id": op.ID,
		"status":       op.Status,
	})
}

// GetOperation returns the current state of an operation
func (h *Handler) GetOperation(c *gin.Context) {
	op, err := h.scheduler.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "operation not found"})
		return
	}
	c.JSON(http.StatusOK, op)
}

// ListInstances returns all registered instances
func (h *Handler) ListInstances(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.List())
}

// CreateInstance force-provisions a new instance
func (h *Handler) CreateInstance(c *gin.Context) {
	inst, err := h.registry.Provision(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, inst)
}

// DeleteInstance removes an instance, terminating its backing resource
// for cloud instances
func (h *Handler) DeleteInstance(c *gin.Context) {
	instanceID := c.Param("id")

	inst, err := h.registry.Get(instanceID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "instance not found"})
		return
	}

	if err := h.registry.Terminate(c.Request.Context(), instanceID); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "instance not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	message := "instance removed"
	if inst.Mode == models.ModeCloud {
		message = "instance terminated"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
}

// LeaseRequest represents a lease acquisition request. TTLSeconds is a
// pointer so an omitted field gets the default while an explicit zero is
// rejected as too short.
type LeaseRequest struct {
	Owner      string `json:"owner"`
	TTLSeconds *int   `json:"ttl_seconds"`
}

// AcquireLease claims exclusive ownership of an instance
func (h *Handler) AcquireLease(c *gin.Context) {
	instanceID := c.Param("id")

	// An empty body is fine, defaults apply.
	var req LeaseRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Owner == "" {
		req.Owner = "default"
	}
	ttlSeconds := 300
	if req.TTLSeconds != nil {
		ttlSeconds = *req.TTLSeconds
	}

	_, err := h.leases.Acquire(instanceID, req.Owner, time.Duration(ttlSeconds)*time.Second)
	if err != nil {
		if errors.Is(err, lease.ErrInvalidTTL) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ttl_seconds must be >= 10"})
			return
		}
		if errors.Is(err, lease.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "instance already leased"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"instance_id": instanceID,
		"owner":       req.Owner,
		"ttl_seconds": ttlSeconds,
	})
}

// ReleaseLease drops any lease on an instance
func (h *Handler) ReleaseLease(c *gin.Context) {
	instanceID := c.Param("id")
	h.leases.Release(instanceID)
	c.JSON(http.StatusOK, gin.H{"success": true, "instance_id": instanceID})
}

// Passthrough endpoints relaying to one instance's control API

func (h *Handler) phoneClient(c *gin.Context) (*control.Client, bool) {
	inst, err := h.registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "instance not found"})
		return nil, false
	}
	return h.clients(inst.Endpoint), true
}

func (h *Handler) relay(c *gin.Context, status int, data map[string]interface{}, err error) {
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(status, data)
}

// PhoneStatus relays the instance's device status
func (h *Handler) PhoneStatus(c *gin.Context) {
	client, ok := h.phoneClient(c)
	if !ok {
		return
	}
	data, err := client.Status(c.Request.Context())
	h.relay(c, http.StatusOK, data, err)
}

// PhoneHealth relays the instance's health check
func (h *Handler) PhoneHealth(c *gin.Context) {
	client, ok := h.phoneClient(c)
	if !ok {
		return
	}
	data, err := client.Health(c.Request.Context())
	h.relay(c, http.StatusOK, data, err)
}

// PhoneInput relays a device input event; the type defaults to tap
func (h *Handler) PhoneInput(c *gin.Context) {
	client, ok := h.phoneClient(c)
	if !ok {
		return
	}

	payload := map[string]interface{}{}
	if err := c.ShouldBindJSON(&payload); err != nil && err != io.EOF {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := payload["type"]; !ok {
		payload["type"] = "tap"
	}

	data, err := client.SendInput(c.Request.Context(), payload)
	h.relay(c, http.StatusOK, data, err)
}

// PhoneScreenshot relays a base64 screenshot
func (h *Handler) PhoneScreenshot(c *gin.Context) {
	client, ok := h.phoneClient(c)
	if !ok {
		return
	}
	data, err := client.Screenshot(c.Request.Context())
	h.relay(c, http.StatusOK, data, err)
}

// PhoneSubmitJob relays a job submission
func (h *Handler) PhoneSubmitJob(c *gin.Context) {
	client, ok := h.phoneClient(c)
	if !ok {
		return
	}

	payload := map[string]interface{}{}
	if err := c.ShouldBindJSON(&payload); err != nil && err != io.EOF {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := client.SubmitJob(c.Request.Context(), payload)
	h.relay(c, http.StatusAccepted, data, err)
}

// PhonePollJob relays a job status poll
func (h *Handler) PhonePollJob(c *gin.Context) {
	client, ok := h.phoneClient(c)
	if !ok {
		return
	}
	data, err := client.GetJob(c.Request.Context(), c.Param("job_id"))
	h.relay(c, http.StatusOK, data, err)
}
