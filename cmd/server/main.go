package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"phonefleet/orchestrator/internal/api"
	"phonefleet/orchestrator/internal/config"
	"phonefleet/orchestrator/internal/control"
	"phonefleet/orchestrator/internal/lease"
	"phonefleet/orchestrator/internal/ops"
	"phonefleet/orchestrator/internal/provision"
	"phonefleet/orchestrator/internal/registry"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load(os.Getenv("ORCH_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var backend registry.Backend
	switch cfg.Deploy.Mode {
	case "mock":
		backend = &provision.MockBackend{
			Endpoint:   cfg.Deploy.MockAPIURL,
			NamePrefix: cfg.Instances.NamePrefix,
		}
	case "cloud":
		cloud := provision.NewCloudBackend()
		cloud.Script = cfg.Deploy.Script
		cloud.GoldenImageID = cfg.Deploy.GoldenImageID
		cloud.NamePrefix = cfg.Instances.NamePrefix
		cloud.InfoDir = cfg.Deploy.InfoDir
		cloud.CLI = cfg.Cloud.CLI
		cloud.Profile = cfg.Cloud.Profile
		cloud.ConfigFile = cfg.Cloud.ConfigFile
		cloud.Auth = cfg.Cloud.Auth
		backend = cloud
	default:
		log.Fatalf("Unsupported deploy mode: %s", cfg.Deploy.Mode)
	}

	reg := registry.New(backend, cfg.Instances.Max)
	leases := lease.NewManager()

	timeout := time.Duration(cfg.API.TimeoutSeconds) * time.Second
	clients := func(endpoint string) *control.Client {
		return control.NewClient(endpoint, cfg.API.Token, timeout)
	}

	scheduler := ops.NewScheduler(reg, func(endpoint string) ops.DeviceClient {
		return clients(endpoint)
	}, cfg.Operations.MaxWorkers)

	apiServer := api.NewServer(reg, leases, scheduler, clients, cfg.API.Token)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Starting orchestrator on %s (mode=%s max_instances=%d)", addr, cfg.Deploy.Mode, cfg.Instances.Max)
	log.Printf("REST API endpoint: http://%s", addr)

	if err := http.ListenAndServe(addr, apiServer.GetRouter()); err != nil {
		log.Fatalf("HTTP server failed: %v", err)
	}
}
