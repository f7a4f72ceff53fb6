package observability

import "sync"

type observe struct {
	Kind    string  `json:"kind"`
	Source  string  `json:"source,omitempty"`
	Method  string  `json:"method,omitempty"`
	Route   string  `json:"route,omitempty"`
	Status  int     `json:"status,omitempty"`
	CacheMs float64 `json:"cache_ms,omitempty"`
	DBMs    float64 `json:"db_ms,omitempty"`
	Dur     float64 `json:"dur_ms,omitempty"`
	Created int     `json:"created,omitempty"`
	Failed  int     `json:"failed,omitempty"`
	OK      bool    `json:"ok,omitempty"`
}

// Inmem keeps the last max observations and cache counters in memory.
type Inmem struct {
	mu     sync.Mutex
	last   []*observe
	max    int
	totals struct {
		cacheHits, cacheMiss int
	}
}

func NewInmem(max int) *Inmem {
	return &Inmem{
		max: max,
	}
}

func (m *Inmem) push(v *observe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = append(m.last, v)
	if len(m.last) > m.max {
		m.last = m.last[1:]
	}
}

func (m *Inmem) ObserveExport(source string, cacheMs, dbMs float64) {
	m.push(&observe{Kind: "export", Source: source, CacheMs: cacheMs, DBMs: dbMs})
}

func (m *Inmem) ObserveImport(kind string, created, failed int, durMs float64) {
	m.push(&observe{Kind: "import", Source: kind, Created: created, Failed: failed, Dur: durMs})
}

func (m *Inmem) ObserveHTTP(method, route string, status int, durMs float64) {
	m.push(&observe{Kind: "http", Method: method, Route: route, Status: status, Dur: durMs})
}

func (m *Inmem) ObserveEvent(processMs float64, ok bool) {
	m.push(&observe{Kind: "event", Dur: processMs, OK: ok})
}

func (m *Inmem) IncCacheHit() {
	m.mu.Lock()
	m.totals.cacheHits++
	m.mu.Unlock()
}

func (m *Inmem) IncCacheMiss() {
	m.mu.Lock()
	m.totals.cacheMiss++
	m.mu.Unlock()
}

type Snapshot struct {
	CacheHits   int        `json:"cache_hits"`
	CacheMisses int        `json:"cache_misses"`
	Last        []*observe `json:"last"`
}

// Snapshot copies the current counters and observations.
func (m *Inmem) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	last := make([]*observe, len(m.last))
	copy(last, m.last)
	return Snapshot{
		CacheHits:   m.totals.cacheHits,
		CacheMisses: m.totals.cacheMiss,
		Last:        last,
	}
}
