package observability

type Metrics interface {
	ObserveExport(source string, cacheMs, dbMs float64)
	ObserveImport(kind string, created, failed int, durMs float64)
	ObserveHTTP(method, route string, status int, durMs float64)
	ObserveEvent(processMs float64, ok bool)
	IncCacheHit()
	IncCacheMiss()
}

type Noop struct{}

func NewNoop() Noop { return Noop{} }

func (Noop) ObserveExport(string, float64, float64)   {}
func (Noop) ObserveImport(string, int, int, float64)  {}
func (Noop) ObserveHTTP(string, string, int, float64) {}
func (Noop) ObserveEvent(float64, bool)               {}
func (Noop) IncCacheHit()                             {}
func (Noop) IncCacheMiss()                            {}
