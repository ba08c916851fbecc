package config

import (
	"testing"
	"time"
)

func TestLoadRegistryConfig_Defaults(t *testing.T) {
	cfg, err := LoadRegistryConfig(nil)
	if err != nil {
		t.Fatalf("LoadRegistryConfig() error = %v", err)
	}
	if cfg.Port != 8081 {
		t.Errorf("Port = %d, want 8081", cfg.Port)
	}
	if cfg.HealthInterval != 30*time.Second {
		t.Errorf("HealthInterval = %v, want 30s", cfg.HealthInterval)
	}
	if cfg.HealthTimeout != 5*time.Second {
		t.Errorf("HealthTimeout = %v, want 5s", cfg.HealthTimeout)
	}
	if cfg.CleanupInterval != 60*time.Second {
		t.Errorf("CleanupInterval = %v, want 60s", cfg.CleanupInterval)
	}
	if cfg.StalenessTTL != 300*time.Second {
		t.Errorf("StalenessTTL = %v, want 300s", cfg.StalenessTTL)
	}
}

func TestLoadRegistryConfig_Overrides(t *testing.T) {
	cfg, err := LoadRegistryConfig([]string{"--port", "9001", "--health-interval", "10s"})
	if err != nil {
		t.Fatalf("LoadRegistryConfig() error = %v", err)
	}
	if cfg.Port != 9001 {
		t.Errorf("Port = %d, want 9001", cfg.Port)
	}
	if cfg.HealthInterval != 10*time.Second {
		t.Errorf("HealthInterval = %v, want 10s", cfg.HealthInterval)
	}
}

func TestLoadRouterConfig_Defaults(t *testing.T) {
	cfg, err := LoadRouterConfig(nil)
	if err != nil {
		t.Fatalf("LoadRouterConfig() error = %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.RegistryURL != "http://localhost:8081" {
		t.Errorf("RegistryURL = %q", cfg.RegistryURL)
	}
	if cfg.RegistrySyncInterval != 60*time.Second {
		t.Errorf("RegistrySyncInterval = %v, want 60s", cfg.RegistrySyncInterval)
	}
	if cfg.ProxyTimeout != 300*time.Second {
		t.Errorf("ProxyTimeout = %v, want 300s", cfg.ProxyTimeout)
	}
}

func TestLoadSupervisorConfig_RequiresPortAndName(t *testing.T) {
	if _, err := LoadSupervisorConfig(nil); err == nil {
		t.Fatal("expected error when --port and --name are missing")
	}

	if _, err := LoadSupervisorConfig([]string{"--port", "5002"}); err == nil {
		t.Fatal("expected error when --name is missing")
	}
}

func TestLoadSupervisorConfig_Valid(t *testing.T) {
	cfg, err := LoadSupervisorConfig([]string{"--port", "5002", "--name", "x"})
	if err != nil {
		t.Fatalf("LoadSupervisorConfig() error = %v", err)
	}
	if cfg.Port != 5002 {
		t.Errorf("Port = %d, want 5002", cfg.Port)
	}
	if cfg.ManagementPort() != 5003 {
		t.Errorf("ManagementPort() = %d, want 5003", cfg.ManagementPort())
	}
	if cfg.MaxRestarts != 10 {
		t.Errorf("MaxRestarts = %d, want 10", cfg.MaxRestarts)
	}
}

func TestSupervisorConfig_Validate_BadServiceType(t *testing.T) {
	_, err := LoadSupervisorConfig([]string{"--port", "5002", "--name", "x", "--service-type", "bogus"})
	if err == nil {
		t.Fatal("expected error for invalid --service-type")
	}
}
