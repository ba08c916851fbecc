package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/jkindrix/inferfleet/internal/clock"
	apperrors "github.com/jkindrix/inferfleet/internal/errors"
)

// Store is the Registry's process-local container: a mapping from
// service name to record. All mutation is serialized through a single
// mutex so that observers never see a partially-updated record; the
// order between updates to different records is unconstrained.
type Store struct {
	mu       sync.RWMutex
	services map[string]*Service
	clock    clock.Clock
}

// New creates an empty Store. c supplies the notion of "now" used for
// timestamps and liveness so tests can drive time deterministically.
func New(c clock.Clock) *Store {
	return &Store{
		services: make(map[string]*Service),
		clock:    c,
	}
}

// Register creates or replaces the record for svc.Name. Timestamp
// defaults to now if unset; LastHeartbeat is always reset to now so a
// freshly registered service starts healthy.
func (s *Store) Register(svc *Service) *Service {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := svc.Clone()
	if stored.Timestamp.IsZero() {
		stored.Timestamp = s.clock.NowUTC()
	}
	stored.LastHeartbeat = s.clock.NowUTC()
	if stored.HealthStatus == "" {
		stored.HealthStatus = HealthUnknown
	}
	s.services[stored.Name] = stored
	return stored.Clone()
}

// Get returns the named record, or nil and false if absent.
func (s *Store) Get(name string) (*Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, ok := s.services[name]
	if !ok {
		return nil, false
	}
	return svc.Clone(), true
}

// Filter selects which records List returns.
type Filter struct {
	Status  string
	Healthy *bool
}

// List returns records matching filter, ordered by name for a stable,
// reproducible listing.
func (s *Store) List(filter Filter) []*Service {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Service, 0, len(s.services))
	for _, svc := range s.services {
		if filter.Status != "" && svc.Status != filter.Status {
			continue
		}
		if filter.Healthy != nil && svc.IsHealthy(s.clock) != *filter.Healthy {
			continue
		}
		out = append(out, svc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Patch is a partial update applied by PUT /services/{name}. Nil
// fields are left unchanged.
type Patch struct {
	Host     *string
	Port     *int
	Hostname *string
	URL      *string
	Status   *string
	Metadata map[string]interface{}
}

// Update applies patch to the named record and refreshes its
// last_heartbeat, returning apperrors.ErrNotFound if absent.
func (s *Store) Update(name string, patch Patch) (*Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[name]
	if !ok {
		return nil, apperrors.NotFound(name)
	}

	if patch.Host != nil {
		svc.Host = *patch.Host
	}
	if patch.Port != nil {
		svc.Port = *patch.Port
	}
	if patch.Hostname != nil {
		svc.Hostname = *patch.Hostname
	}
	if patch.URL != nil {
		svc.URL = *patch.URL
	}
	if patch.Status != nil {
		svc.Status = *patch.Status
	}
	if patch.Metadata != nil {
		svc.Metadata = patch.Metadata
	}
	svc.LastHeartbeat = s.clock.NowUTC()

	return svc.Clone(), nil
}

// Heartbeat refreshes last_heartbeat for name, optionally updating
// status. Any string status is accepted; the is_healthy predicate,
// not validation, decides whether it means alive.
func (s *Store) Heartbeat(name string, status *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[name]
	if !ok {
		return apperrors.NotFound(name)
	}
	if status != nil {
		svc.Status = *status
	}
	svc.LastHeartbeat = s.clock.NowUTC()
	return nil
}

// Delete removes the named record, returning apperrors.ErrNotFound if
// it was already absent.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.services[name]; !ok {
		return apperrors.NotFound(name)
	}
	delete(s.services, name)
	return nil
}

// RecordHealth applies the outcome of a health probe: success refreshes
// last_heartbeat as well as health_status, matching the source's
// treatment of a good poll as equivalent to a heartbeat; failure only
// flips health_status, leaving last_heartbeat untouched so staleness
// eviction still reflects the last time the service was truly seen.
func (s *Store) RecordHealth(name string, healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[name]
	if !ok {
		return
	}
	if healthy {
		svc.HealthStatus = HealthHealthy
		svc.LastHeartbeat = s.clock.NowUTC()
	} else {
		svc.HealthStatus = HealthUnhealthy
	}
}

// Snapshot returns a clone of every stored record, for the poller to
// iterate over without holding the store lock during network I/O.
func (s *Store) Snapshot() []*Service {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Service, 0, len(s.services))
	for _, svc := range s.services {
		out = append(out, svc.Clone())
	}
	return out
}

// EvictStale removes every record whose last_heartbeat is older than
// ttl, returning the number of records removed.
func (s *Store) EvictStale(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for name, svc := range s.services {
		if s.clock.Since(svc.LastHeartbeat) > ttl {
			delete(s.services, name)
			evicted++
		}
	}
	return evicted
}

// Stats summarizes the registry for GET /stats.
type Stats struct {
	Total        int
	Healthy      int
	StatusCounts map[string]int
	HostCounts   map[string]int
}

// ComputeStats builds a Stats snapshot under a read lock.
func (s *Store) ComputeStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		StatusCounts: make(map[string]int),
		HostCounts:   make(map[string]int),
	}
	for _, svc := range s.services {
		stats.Total++
		if svc.IsHealthy(s.clock) {
			stats.Healthy++
		}
		stats.StatusCounts[svc.Status]++
		stats.HostCounts[svc.Host]++
	}
	return stats
}
