package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/TemirB/shop/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxUploadBytes = 32 << 20

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// writeError maps domain errors to HTTP statuses. Anything unknown is a
// 500 and gets logged; its message is not sent to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Fields: verr.Fields})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, domain.ErrPermissionDenied):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "permission denied"})
	case errors.Is(err, domain.ErrUnauthenticated):
		w.Header().Set("WWW-Authenticate", `Basic realm="shop"`)
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
	case errors.Is(err, context.Canceled):
		s.logger.Debug("request canceled", zap.String("path", r.URL.Path))
	default:
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// decodeJSON reads a JSON body into v, rejecting unknown fields. It writes
// the error response itself and reports whether decoding succeeded.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSON(w, http.StatusUnsupportedMediaType, errorBody{Error: "Content-Type must be application/json"})
		return false
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.logger.Debug("Error while decoding JSON", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad json"})
		return false
	}
	return true
}

// pathID parses a positive integer URL parameter; anything else is a 404.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, r, domain.ErrNotFound)
		return 0, false
	}
	return id, true
}

// queryParser collects malformed query parameters into one ValidationError.
type queryParser struct {
	r    *http.Request
	verr domain.ValidationError
}

func (q *queryParser) str(name string) string {
	return strings.TrimSpace(q.r.URL.Query().Get(name))
}

func (q *queryParser) intParam(name string) int {
	v := q.str(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		q.verr.Add(name, "must be a non-negative integer")
		return 0
	}
	return n
}

func (q *queryParser) idParam(name string) int64 {
	v := q.str(name)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		q.verr.Add(name, "must be a positive integer")
		return 0
	}
	return n
}

func (q *queryParser) boolParam(name string) *bool {
	v := q.str(name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		q.verr.Add(name, "must be true or false")
		return nil
	}
	return &b
}

func (q *queryParser) page() domain.Page {
	return domain.Page{Limit: q.intParam("limit"), Offset: q.intParam("offset")}
}

func (q *queryParser) err() error {
	return q.verr.OrNil()
}
