package httpapi

import (
	"net/http"

	"github.com/TemirB/shop/internal/application/accounts"
	"github.com/TemirB/shop/internal/domain"
)

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var in accounts.RegisterInput
	if !s.decodeJSON(w, r, &in) {
		return
	}
	u, err := s.accounts.Register(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	q := &queryParser{r: r}
	page := q.page()
	if err := q.err(); err != nil {
		s.writeError(w, r, err)
		return
	}
	users, err := s.accounts.List(r.Context(), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	u, err := s.accounts.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if actor == nil {
		s.writeError(w, r, domain.ErrUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, actor)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var in accounts.ProfileInput
	if !s.decodeJSON(w, r, &in) {
		return
	}
	u, err := s.accounts.UpdateProfile(r.Context(), actorFrom(r.Context()), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, r, domain.NewValidationError("avatar", "expected a multipart form"))
		return
	}
	file, fh, err := r.FormFile("avatar")
	if err != nil {
		s.writeError(w, r, domain.NewValidationError("avatar", "no file uploaded"))
		return
	}
	defer file.Close()

	u, err := s.accounts.SetAvatar(r.Context(), actorFrom(r.Context()), id, domain.Upload{Filename: fh.Filename, Body: file})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
