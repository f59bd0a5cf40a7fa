package models

import (
	"time"
)

// DeployMode describes how an instance was provisioned.
type DeployMode string

const (
	ModeMock  DeployMode = "mock"
	ModeCloud DeployMode = "cloud"
)

// Instance represents a registered cloud phone and the base URL of its
// control API.
type Instance struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Endpoint string     `json:"endpoint"`
	Mode     DeployMode `json:"mode"`
	// ExternalRef is the backend handle (e.g. the cloud VM OCID) needed to
	// terminate a cloud instance. Empty for mock instances.
	ExternalRef string    `json:"external_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
}
