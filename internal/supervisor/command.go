package supervisor

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jkindrix/inferfleet/internal/config"
)

// workerBinary maps a service-type tag to the executable the Supervisor
// spawns. Both are external collaborators (the inference worker itself
// is out of scope) reached only by name on PATH.
var workerBinary = map[string]string{
	"worker":        "inferfleet-worker",
	"worker-native": "inferfleet-worker-native",
}

// buildCommand derives the worker's executable name and argument list
// from the service-type tag, config path, and per-kind flags. This is
// the one place metadata.type's "worker vs worker-native" branch feeds
// a concrete decision, per the closed tagged-variant design.
func buildCommand(cfg *config.SupervisorConfig) (string, []string, error) {
	name, ok := workerBinary[cfg.ServiceType]
	if !ok {
		return "", nil, fmt.Errorf("supervisor: unknown service type %q", cfg.ServiceType)
	}

	args := []string{
		"--host", cfg.Host,
		"--port", strconv.Itoa(cfg.Port),
	}
	if cfg.Path != "" {
		args = append(args, "--config", cfg.Path)
	}
	if cfg.Device != "" {
		args = append(args, "--device", cfg.Device)
	}
	if cfg.DeviceCount > 0 {
		args = append(args, "--device-count", strconv.Itoa(cfg.DeviceCount))
	}
	if cfg.BatchSize > 0 {
		args = append(args, "--batch-size", strconv.Itoa(cfg.BatchSize))
	}
	if cfg.MaxTokens > 0 {
		args = append(args, "--max-tokens", strconv.Itoa(cfg.MaxTokens))
	}
	if cfg.Quantize {
		args = append(args, "--quantize")
	}
	if cfg.RequestTimeout > 0 {
		args = append(args, "--request-timeout", formatSeconds(cfg.RequestTimeout))
	}

	return name, args, nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
