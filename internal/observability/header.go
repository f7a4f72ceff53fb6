package observability

import (
	"fmt"
	"net/http"
)

func AppendServerTiming(w http.ResponseWriter, name string, durMs float64, desc string) {
	switch {
	case durMs > 0 && desc != "":
		w.Header().Add("Server-Timing", fmt.Sprintf("%s;dur=%.2f;desc=%q", name, durMs, desc))
	case durMs > 0:
		w.Header().Add("Server-Timing", fmt.Sprintf("%s;dur=%.2f", name, durMs))
	case desc != "":
		w.Header().Add("Server-Timing", fmt.Sprintf("%s;desc=%q", name, desc))
	}
}

func SetIfPos(w http.ResponseWriter, key string, ms float64) {
	if ms > 0 {
		w.Header().Set(key, fmt.Sprintf("%.2f", ms))
	}
}

// WriteLookupTiming reports where an export came from and how long the
// cache and database steps took.
func WriteLookupTiming(w http.ResponseWriter, source string, cacheMs, dbMs float64) {
	w.Header().Set("X-Export-Source", source)
	AppendServerTiming(w, "cache", cacheMs, "export cache")
	AppendServerTiming(w, "db", dbMs, "orders query")
	SetIfPos(w, "X-Cache-Time", cacheMs)
	SetIfPos(w, "X-DB-Time", dbMs)
}
