package httpapi

import (
	"net/http"

	"github.com/TemirB/shop/internal/application/orders"
	"github.com/TemirB/shop/internal/domain"
)

// orderView is the REST shape of an order: products as ids in
// association order.
type orderView struct {
	*domain.Order
	Products []int64 `json:"products"`
}

func newOrderView(o *domain.Order) orderView {
	return orderView{Order: o, Products: o.ProductIDs()}
}

func orderViews(list []domain.Order) []orderView {
	out := make([]orderView, 0, len(list))
	for i := range list {
		out = append(out, newOrderView(&list[i]))
	}
	return out
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	q := &queryParser{r: r}
	f := domain.OrderFilter{
		UserID:          q.idParam("user"),
		DeliveryAddress: q.str("delivery_address"),
		Promocode:       q.str("promocode"),
		Ordering:        domain.Ordering(q.str("ordering")),
		Page:            q.page(),
	}
	if err := q.err(); err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.orders.List(r.Context(), actorFrom(r.Context()), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderViews(list))
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	o, err := s.orders.Get(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(o))
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var in orders.OrderInput
	if !s.decodeJSON(w, r, &in) {
		return
	}
	o, err := s.orders.Create(r.Context(), actorFrom(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrderView(o))
}

func (s *Server) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var in orders.OrderInput
	if !s.decodeJSON(w, r, &in) {
		return
	}
	o, err := s.orders.Update(r.Context(), actorFrom(r.Context()), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(o))
}

func (s *Server) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.orders.Delete(r.Context(), actorFrom(r.Context()), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rowFailure struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type importReport struct {
	Created []orderView  `json:"created"`
	Failed  []rowFailure `json:"failed"`
}

func (s *Server) uploadOrdersCSV(w http.ResponseWriter, r *http.Request) {
	file, charset, ok := s.formFile(w, r, "file")
	if !ok {
		return
	}
	defer file.Close()

	rep, err := s.orders.ImportCSV(r.Context(), actorFrom(r.Context()), file, charset)
	if err != nil && rep == nil {
		s.writeError(w, r, err)
		return
	}

	out := importReport{Created: orderViews(rep.Created), Failed: make([]rowFailure, 0, len(rep.Failed))}
	for _, f := range rep.Failed {
		out.Failed = append(out.Failed, rowFailure{Row: f.Row, Error: f.Err.Error()})
	}
	status := http.StatusOK
	if len(out.Failed) == 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, out)
}
