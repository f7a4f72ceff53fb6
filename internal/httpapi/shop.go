package httpapi

import (
	"io"
	"net/http"
	"strconv"

	"github.com/TemirB/shop/internal/domain"
	"github.com/TemirB/shop/internal/observability"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Server) productFilter(r *http.Request) (domain.ProductFilter, error) {
	q := &queryParser{r: r}
	f := domain.ProductFilter{
		Search:   q.str("search"),
		Ordering: domain.Ordering(q.str("ordering")),
		Archived: q.boolParam("archived"),
		Page:     q.page(),
	}
	return f, q.err()
}

func (s *Server) shopProducts(w http.ResponseWriter, r *http.Request) {
	f, err := s.productFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	products, err := s.catalog.ListActive(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) latestProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.catalog.Latest(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

type productSummary struct {
	ID       int64           `json:"pk"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Archived bool            `json:"archived"`
}

// productsExport dumps the whole catalog ordered by id.
func (s *Server) productsExport(w http.ResponseWriter, r *http.Request) {
	products, err := s.catalog.All(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]productSummary, 0, len(products))
	for _, p := range products {
		out = append(out, productSummary{ID: p.ID, Name: p.Name, Price: p.Price, Archived: p.Archived})
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": out})
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := s.catalog.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) userOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathID(w, r, "userID")
	if !ok {
		return
	}
	list, err := s.orders.ListForUser(r.Context(), actorFrom(r.Context()), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderViews(list))
}

// exportOrders streams the user's orders as a JSON attachment.
func (s *Server) exportOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathID(w, r, "userID")
	if !ok {
		return
	}

	att, st, err := s.exporter.Export(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer att.Body.Close()

	observability.WriteLookupTiming(w, string(st.Source), st.CacheMs, st.DBMs)
	w.Header().Set("Content-Type", att.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+att.Filename)
	w.Header().Set("Content-Length", strconv.FormatInt(att.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, att.Body); err != nil {
		s.logger.Warn("orders export write failed",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}
}
