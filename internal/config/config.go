// Package config provides per-component configuration management using
// pflag-backed command-line flags layered with Viper for environment
// variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// RegistryConfig holds configuration for the Registry binary.
type RegistryConfig struct {
	Port            int
	HealthInterval  time.Duration
	HealthTimeout   time.Duration
	CleanupInterval time.Duration
	StalenessTTL    time.Duration
}

// RouterConfig holds configuration for the Router binary.
type RouterConfig struct {
	Port                 int
	RegistryURL          string
	StaticServicesPath   string
	HealthInterval       time.Duration
	HealthTimeout        time.Duration
	MaxErrors            int
	RegistrySyncInterval time.Duration
	RegistrySyncTimeout  time.Duration
	ProxyTimeout         time.Duration
}

// SupervisorConfig holds configuration for the Supervisor binary.
type SupervisorConfig struct {
	Host              string
	Port              int
	Name              string
	RegistryURL       string
	RouterURL         string
	MaxRestarts       int
	RestartDelay      time.Duration
	HeartbeatInterval time.Duration
	ServiceType       string // "worker" or "worker-native"
	Path              string // config path passed to the worker

	// Worker-specific flags, passed through verbatim to the spawned process.
	Device         string
	DeviceCount    int
	BatchSize      int
	MaxTokens      int
	Quantize       bool
	RequestTimeout time.Duration

	ReadyTimeout time.Duration
}

// LoadRegistryConfig parses flags for the Registry binary. args should
// normally be os.Args[1:].
func LoadRegistryConfig(args []string) (*RegistryConfig, error) {
	fs := pflag.NewFlagSet("registry", pflag.ContinueOnError)

	fs.Int("port", 8081, "HTTP port to listen on")
	fs.Duration("health-interval", 30*time.Second, "interval between health-poll sweeps")
	fs.Duration("health-timeout", 5*time.Second, "per-probe health check timeout")
	fs.Duration("cleanup-interval", 60*time.Second, "interval between staleness-eviction sweeps")
	fs.Duration("staleness-ttl", 300*time.Second, "time since last heartbeat before a service is evicted")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse registry flags: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("REGISTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("config: bind registry flags: %w", err)
	}

	return &RegistryConfig{
		Port:            v.GetInt("port"),
		HealthInterval:  v.GetDuration("health-interval"),
		HealthTimeout:   v.GetDuration("health-timeout"),
		CleanupInterval: v.GetDuration("cleanup-interval"),
		StalenessTTL:    v.GetDuration("staleness-ttl"),
	}, nil
}

// LoadRouterConfig parses flags for the Router binary.
func LoadRouterConfig(args []string) (*RouterConfig, error) {
	fs := pflag.NewFlagSet("router", pflag.ContinueOnError)

	fs.Int("router-port", 8080, "HTTP port to listen on")
	fs.String("registry-url", "http://localhost:8081", "base URL of the Registry")
	fs.String("static-services", "", "path to a static services JSON config file")
	fs.Duration("health-interval", 30*time.Second, "interval between the Router's own backend health probes")
	fs.Duration("health-timeout", 5*time.Second, "per-probe health check timeout")
	fs.Int("max-errors", 0, "reserved: maximum consecutive backend errors before eviction (0 = unbounded)")
	fs.Duration("registry-sync-interval", 60*time.Second, "interval between registry-sync pulls")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse router flags: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("ROUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("config: bind router flags: %w", err)
	}

	return &RouterConfig{
		Port:                 v.GetInt("router-port"),
		RegistryURL:          v.GetString("registry-url"),
		StaticServicesPath:   v.GetString("static-services"),
		HealthInterval:       v.GetDuration("health-interval"),
		HealthTimeout:        v.GetDuration("health-timeout"),
		MaxErrors:            v.GetInt("max-errors"),
		RegistrySyncInterval: v.GetDuration("registry-sync-interval"),
		RegistrySyncTimeout:  10 * time.Second,
		ProxyTimeout:         300 * time.Second,
	}, nil
}

// LoadSupervisorConfig parses flags for the Supervisor binary.
func LoadSupervisorConfig(args []string) (*SupervisorConfig, error) {
	fs := pflag.NewFlagSet("supervisor", pflag.ContinueOnError)

	fs.String("host", "127.0.0.1", "host the worker will bind to")
	fs.Int("port", 0, "worker port; the Supervisor's management port is port+1")
	fs.String("name", "", "service name registered with the Registry")
	fs.String("registry", "http://localhost:8081", "base URL of the Registry")
	fs.String("router", "", "base URL of the Router (informational, not called directly)")
	fs.Int("max-restarts", 10, "maximum number of child restarts before giving up")
	fs.Duration("restart-delay", 5*time.Second, "delay between restart attempts")
	fs.Duration("heartbeat-interval", 30*time.Second, "interval between heartbeats")
	fs.String("service-type", "worker", "worker kind: worker|worker-native")
	fs.String("path", "", "config path passed to the worker process")

	fs.String("device", "", "worker device flag, e.g. cuda:0")
	fs.Int("device-count", 1, "number of devices the worker should use")
	fs.Int("batch-size", 0, "worker max batch size (0 = worker default)")
	fs.Int("max-tokens", 0, "worker max tokens (0 = worker default)")
	fs.Bool("quantize", false, "enable worker quantization")
	fs.Duration("request-timeout", 0, "worker request timeout (0 = worker default)")
	fs.Duration("ready-timeout", 120*time.Second, "total budget for readiness polling")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse supervisor flags: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("SUPERVISOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("config: bind supervisor flags: %w", err)
	}

	cfg := &SupervisorConfig{
		Host:              v.GetString("host"),
		Port:              v.GetInt("port"),
		Name:              v.GetString("name"),
		RegistryURL:       v.GetString("registry"),
		RouterURL:         v.GetString("router"),
		MaxRestarts:       v.GetInt("max-restarts"),
		RestartDelay:      v.GetDuration("restart-delay"),
		HeartbeatInterval: v.GetDuration("heartbeat-interval"),
		ServiceType:       v.GetString("service-type"),
		Path:              v.GetString("path"),
		Device:            v.GetString("device"),
		DeviceCount:       v.GetInt("device-count"),
		BatchSize:         v.GetInt("batch-size"),
		MaxTokens:         v.GetInt("max-tokens"),
		Quantize:          v.GetBool("quantize"),
		RequestTimeout:    v.GetDuration("request-timeout"),
		ReadyTimeout:      v.GetDuration("ready-timeout"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ManagementPort returns the Supervisor's management HTTP port, which is
// always the worker port plus one.
func (c *SupervisorConfig) ManagementPort() int {
	return c.Port + 1
}

// Validate checks that required Supervisor fields are present.
func (c *SupervisorConfig) Validate() error {
	if c.Port <= 0 {
		return fmt.Errorf("config: --port is required and must be positive")
	}
	if c.Name == "" {
		return fmt.Errorf("config: --name is required")
	}
	if c.ServiceType != "worker" && c.ServiceType != "worker-native" {
		return fmt.Errorf("config: --service-type must be worker or worker-native, got %q", c.ServiceType)
	}
	return nil
}
