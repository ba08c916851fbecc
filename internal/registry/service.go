// Package registry implements the authoritative, in-memory directory of
// known services: registration, heartbeats, health polling, staleness
// eviction, and the query surface consumed by Routers and operators.
package registry

import (
	"time"

	"github.com/jkindrix/inferfleet/internal/clock"
)

// HealthStatus is the value of a Service's health_status field, set
// exclusively by the Registry's poller.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// RunningStatus is the lifecycle token a registrant reports. Any string
// is accepted; "running" is the only value is_healthy treats as alive.
const RunningStatus = "running"

// livenessWindow bounds how long a record is considered alive since its
// last heartbeat or successful poll, independent of staleness eviction.
const livenessWindow = 120 * time.Second

// Service is the central Registry entity: one record per registered
// service, keyed by Name.
type Service struct {
	Name          string                 `json:"name"`
	Host          string                 `json:"host"`
	Port          int                    `json:"port"`
	URL           string                 `json:"url"`
	Hostname      string                 `json:"hostname"`
	Status        string                 `json:"status"`
	Timestamp     time.Time              `json:"timestamp"`
	LastHeartbeat time.Time              `json:"last_heartbeat"`
	HealthStatus  HealthStatus           `json:"health_status"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// IsHealthy implements the is_healthy predicate: status == "running"
// and the record has heartbeated or been successfully polled within
// the last 120 seconds.
func (s *Service) IsHealthy(c clock.Clock) bool {
	return s.Status == RunningStatus && c.Since(s.LastHeartbeat) < livenessWindow
}

// MetadataType returns metadata["type"] as a string, or "" if absent
// or not a string. This is the tagged variant that drives the
// Registry's probe-URL derivation.
func (s *Service) MetadataType() string {
	if s.Metadata == nil {
		return ""
	}
	t, _ := s.Metadata["type"].(string)
	return t
}

// IsStatic reports whether metadata.static is truthy.
func (s *Service) IsStatic() bool {
	if s.Metadata == nil {
		return false
	}
	static, _ := s.Metadata["static"].(bool)
	return static
}

// Clone returns a deep-enough copy of s suitable for returning from the
// store without letting callers mutate internal state through aliasing.
func (s *Service) Clone() *Service {
	cp := *s
	if s.Metadata != nil {
		cp.Metadata = make(map[string]interface{}, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// Record is the wire representation of a Service: the stored fields
// plus the derived is_healthy flag, as returned by every Registry
// endpoint that surfaces a full record.
type Record struct {
	Service
	IsHealthy bool `json:"is_healthy"`
}

func toRecord(s *Service, c clock.Clock) Record {
	return Record{Service: *s, IsHealthy: s.IsHealthy(c)}
}
