package models

import (
	"time"
)

// OperationStatus is the lifecycle state of an operation.
type OperationStatus string

const (
	OperationQueued  OperationStatus = "queued"
	OperationRunning OperationStatus = "running"
	OperationDone    OperationStatus = "done"
	OperationFailed  OperationStatus = "failed"
)

// Terminal reports whether the status is final.
func (s OperationStatus) Terminal() bool {
	return s == OperationDone || s == OperationFailed
}

// Point is a screen coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// LoginSpec carries the credentials and optional tap coordinates for a
// login operation.
type LoginSpec struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	PasswordTap *Point `json:"password_tap,omitempty"`
	SubmitTap   *Point `json:"submit_tap,omitempty"`
}

// OperationRequest is the caller-submitted payload: either a named
// high-level operation (currently "login") or an explicit step list.
type OperationRequest struct {
	Operation  string     `json:"operation,omitempty"`
	AppPackage string     `json:"app_package,omitempty"`
	Login      *LoginSpec `json:"login,omitempty"`
	Steps      []Step     `json:"steps,omitempty"`
	InstanceID string     `json:"instance_id,omitempty"`
}

// OperationResult is stored on a done operation.
type OperationResult struct {
	Steps    []Step       `json:"steps"`
	Results  []StepResult `json:"results"`
	Instance Instance     `json:"instance"`
}

// Operation is one asynchronous unit of automation work. Records are
// created queued, mutated only by their own worker, and kept for the
// process lifetime.
type Operation struct {
	ID        string           `json:"id"`
	Status    OperationStatus  `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Payload   OperationRequest `json:"payload"`
	Result    *OperationResult `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
}
