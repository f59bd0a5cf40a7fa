// Package provision implements the external-command boundary that creates
// and destroys the resources behind instances. The orchestrator core only
// sees the registry.Backend interface; the specifics of the deployment
// tooling stay here.
package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"phonefleet/orchestrator/internal/models"
	"phonefleet/orchestrator/internal/registry"
)

// ProvisioningError reports a failed provisioning attempt: a missing
// template reference, a failed deploy procedure, or unusable output.
type ProvisioningError struct {
	Reason string
}

func (e *ProvisioningError) Error() string {
	return "provisioning failed: " + e.Reason
}

// MockBackend registers a pre-existing control endpoint instead of
// deploying anything. Used for local development and tests.
type MockBackend struct {
	Endpoint   string
	NamePrefix string
}

// Provision returns a candidate pointing at the fixed mock endpoint.
func (b *MockBackend) Provision(ctx context.Context) (registry.Candidate, error) {
	log.Printf("Mock provisioning instance -> %s", b.Endpoint)
	return registry.Candidate{
		Name:     b.NamePrefix + "-mock",
		Endpoint: b.Endpoint,
		Mode:     models.ModeMock,
	}, nil
}

// Terminate is a no-op; mock instances have no backing resource.
func (b *MockBackend) Terminate(ctx context.Context, externalRef string) error {
	return nil
}

// CloudBackend deploys real cloud phone VMs by invoking an external deploy
// script and tears them down through the cloud CLI. The deploy script is
// expected to write <InfoDir>/instance-<name>.json describing the VM it
// created.
type CloudBackend struct {
	Script        string
	GoldenImageID string
	NamePrefix    string
	InfoDir       string

	CLI        string
	Profile    string
	ConfigFile string
	Auth       string

	now func() time.Time
}

// NewCloudBackend returns a backend using the real clock.
func NewCloudBackend() *CloudBackend {
	return &CloudBackend{now: time.Now}
}

type instanceInfo struct {
	PublicIP     string `json:"public_ip"`
	InstanceOCID string `json:"instance_ocid"`
}

// Provision runs the deploy script synchronously and reads back the
// resulting network address and external reference from its info file.
func (b *CloudBackend) Provision(ctx context.Context) (registry.Candidate, error) {
	if b.GoldenImageID == "" {
		return registry.Candidate{}, &ProvisioningError{Reason: "golden image id not configured"}
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	name := fmt.Sprintf("%s-%s", b.NamePrefix, now().Format("20060102-150405"))

	cmd := exec.CommandContext(ctx, b.Script, "--image-id", b.GoldenImageID, "--name", name, "--wait-check")
	log.Printf("Provisioning instance via cloud: %s", strings.Join(cmd.Args, " "))
	if out, err := cmd.CombinedOutput(); err != nil {
		return registry.Candidate{}, &ProvisioningError{
			Reason: fmt.Sprintf("deploy script failed: %v: %s", err, bytes.TrimSpace(out)),
		}
	}

	infoPath := filepath.Join(b.InfoDir, "instance-"+name+".json")
	data, err := os.ReadFile(infoPath)
	if err != nil {
		return registry.Candidate{}, &ProvisioningError{Reason: "instance info not found: " + infoPath}
	}
	var info instanceInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return registry.Candidate{}, &ProvisioningError{Reason: "instance info unreadable: " + err.Error()}
	}
	if info.PublicIP == "" {
		return registry.Candidate{}, &ProvisioningError{Reason: "public ip missing in instance info"}
	}

	endpoint := fmt.Sprintf("http://%s:8080", info.PublicIP)
	log.Printf("Cloud instance ready name=%s public_ip=%s endpoint=%s ref=%s", name, info.PublicIP, endpoint, info.InstanceOCID)
	return registry.Candidate{
		Name:        name,
		Endpoint:    endpoint,
		Mode:        models.ModeCloud,
		ExternalRef: info.InstanceOCID,
	}, nil
}

// Terminate tears down the backing VM through the cloud CLI.
func (b *CloudBackend) Terminate(ctx context.Context, externalRef string) error {
	cmd := exec.CommandContext(ctx, b.CLI,
		"compute", "instance", "terminate",
		"--instance-id", externalRef,
		"--force",
		"--profile", b.Profile,
		"--config-file", b.ConfigFile,
		"--auth", b.Auth,
	)
	log.Printf("Terminating cloud instance: %s", strings.Join(cmd.Args, " "))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("terminate command failed: %w: %s", err, bytes.TrimSpace(out))
	}
	return nil
}
