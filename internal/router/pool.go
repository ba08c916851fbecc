// Package router implements the reverse-proxy control plane: a pool of
// backend services kept in sync with the Registry (or a static config),
// weighted round-robin selection over the currently healthy subset, and
// a streaming-safe proxy handler.
package router

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNoHealthyBackends is returned by Select when the pool has no
// healthy member to route to.
var ErrNoHealthyBackends = errors.New("no healthy services available")

// Member is the Router's per-service projection, owned exclusively by
// the Router. The only external mutator is the registry-sync task (for
// host/port/url/metadata) and the independent health-check loop (for
// healthy/response_time/last_check, plus error_count on a failed probe);
// request_count is incremented on every selection, and the proxy handler
// increments error_count on a transport error (502) only.
type Member struct {
	Name string

	mu       sync.RWMutex
	host     string
	port     int
	url      string
	healthy  bool
	weight   int
	metadata map[string]interface{}
	static   bool

	lastCheck    int64 // unix nanoseconds, accessed atomically
	responseTime int64 // nanoseconds, accessed atomically

	requestCount atomic.Uint64
	errorCount   atomic.Uint64
}

// Snapshot is an immutable, point-in-time view of a Member for
// serialization and test assertions.
type Snapshot struct {
	Name         string                 `json:"name"`
	Host         string                 `json:"host"`
	Port         int                    `json:"port"`
	URL          string                 `json:"url"`
	Healthy      bool                   `json:"healthy"`
	Weight       int                    `json:"weight"`
	RequestCount uint64                 `json:"request_count"`
	ErrorCount   uint64                 `json:"error_count"`
	ResponseTime time.Duration          `json:"response_time"`
	LastCheck    time.Time              `json:"last_check"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Static       bool                   `json:"-"`
}

func (m *Member) snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	meta := make(map[string]interface{}, len(m.metadata))
	for k, v := range m.metadata {
		meta[k] = v
	}

	var lastCheck time.Time
	if ns := atomic.LoadInt64(&m.lastCheck); ns != 0 {
		lastCheck = time.Unix(0, ns).UTC()
	}

	return Snapshot{
		Name:         m.Name,
		Host:         m.host,
		Port:         m.port,
		URL:          m.url,
		Healthy:      m.healthy,
		Weight:       m.weight,
		RequestCount: m.requestCount.Load(),
		ErrorCount:   m.errorCount.Load(),
		ResponseTime: time.Duration(atomic.LoadInt64(&m.responseTime)),
		LastCheck:    lastCheck,
		Metadata:     meta,
		Static:       m.static,
	}
}

func (m *Member) isHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy
}

func (m *Member) isStatic() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.static
}

func (m *Member) weightValue() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.weight
}

func (m *Member) urlValue() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.url
}

// SetHealthy updates the member's liveness as observed by the Router's
// own health-check loop.
func (m *Member) SetHealthy(healthy bool) {
	m.mu.Lock()
	m.healthy = healthy
	m.mu.Unlock()
}

// RecordCheck records the outcome of one independent health probe.
func (m *Member) RecordCheck(healthy bool, duration time.Duration, at time.Time) {
	m.mu.Lock()
	m.healthy = healthy
	m.mu.Unlock()
	atomic.StoreInt64(&m.responseTime, int64(duration))
	atomic.StoreInt64(&m.lastCheck, at.UnixNano())
}

// IncRequestCount atomically increments the member's request counter.
func (m *Member) IncRequestCount() {
	m.requestCount.Add(1)
}

// IncErrorCount atomically increments the member's error counter.
func (m *Member) IncErrorCount() {
	m.errorCount.Add(1)
}

func (m *Member) refresh(host string, port int, url string, healthy bool, metadata map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.host = host
	m.port = port
	m.url = url
	m.healthy = healthy
	m.metadata = metadata
}

// MemberSpec describes a backend to add or refresh in the pool.
type MemberSpec struct {
	Name     string
	Host     string
	Port     int
	URL      string
	Weight   int
	Healthy  bool
	Static   bool
	Metadata map[string]interface{}
}

// Pool is the Router's process-local backend directory. Membership
// order is preserved for WRR's insertion-order tie-break.
type Pool struct {
	mu      sync.Mutex
	members map[string]*Member
	order   []string
	cursor  uint64
}

// NewPool returns an empty Pool.
func NewPool() *Pool {
	return &Pool{members: make(map[string]*Member)}
}

// Upsert adds spec as a new member (appended to insertion order) or
// refreshes an existing one in place, preserving its position.
func (p *Pool) Upsert(spec MemberSpec) {
	weight := spec.Weight
	if weight < 1 {
		weight = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if m, ok := p.members[spec.Name]; ok {
		m.refresh(spec.Host, spec.Port, spec.URL, spec.Healthy, spec.Metadata)
		return
	}

	m := &Member{
		Name:     spec.Name,
		host:     spec.Host,
		port:     spec.Port,
		url:      spec.URL,
		healthy:  spec.Healthy,
		weight:   weight,
		metadata: spec.Metadata,
		static:   spec.Static,
	}
	p.members[spec.Name] = m
	p.order = append(p.order, spec.Name)
}

// Remove deletes name from the pool, preserving the insertion order of
// the remaining members.
func (p *Pool) Remove(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.members[name]; !ok {
		return
	}
	delete(p.members, name)
	for i, n := range p.order {
		if n == name {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Get returns the named member, or nil if absent.
func (p *Pool) Get(name string) *Member {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.members[name]
}

// Names returns every member name, sync-eligibility among them decided
// by the caller (the registry-sync task uses this to find eviction
// candidates).
func (p *Pool) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Snapshot returns every member in insertion order.
func (p *Pool) Snapshot() []Snapshot {
	p.mu.Lock()
	members := make([]*Member, len(p.order))
	for i, name := range p.order {
		members[i] = p.members[name]
	}
	p.mu.Unlock()

	out := make([]Snapshot, len(members))
	for i, m := range members {
		out[i] = m.snapshot()
	}
	return out
}

// Size returns the number of members currently in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// HealthyCount returns the number of members currently marked healthy.
func (p *Pool) HealthyCount() int {
	p.mu.Lock()
	members := make([]*Member, len(p.order))
	for i, name := range p.order {
		members[i] = p.members[name]
	}
	p.mu.Unlock()

	count := 0
	for _, m := range members {
		if m.isHealthy() {
			count++
		}
	}
	return count
}

// Select implements weighted round-robin over the currently healthy
// members, per §4.2: a monotonic cursor modulo the healthy weight sum,
// insertion-order tie-break, and a degenerate plain-round-robin
// fallback when every healthy weight is zero (which Upsert prevents by
// clamping weight ≥ 1, but a caller-constructed Member could still hit
// it, so the branch is kept per the source's own defensiveness).
func (p *Pool) Select() (*Member, error) {
	p.mu.Lock()
	healthy := make([]*Member, 0, len(p.order))
	for _, name := range p.order {
		m := p.members[name]
		if m.isHealthy() {
			healthy = append(healthy, m)
		}
	}
	p.mu.Unlock()

	if len(healthy) == 0 {
		return nil, ErrNoHealthyBackends
	}

	weightSum := 0
	for _, m := range healthy {
		weightSum += m.weightValue()
	}

	c := atomic.AddUint64(&p.cursor, 1) - 1

	if weightSum == 0 {
		chosen := healthy[c%uint64(len(healthy))]
		chosen.IncRequestCount()
		return chosen, nil
	}

	target := c % uint64(weightSum)
	var running uint64
	for _, m := range healthy {
		running += uint64(m.weightValue())
		if running > target {
			m.IncRequestCount()
			return m, nil
		}
	}

	// Unreachable given weightSum > 0, but fall back to the last
	// candidate rather than panic if float/overflow edge cases arise.
	chosen := healthy[len(healthy)-1]
	chosen.IncRequestCount()
	return chosen, nil
}
