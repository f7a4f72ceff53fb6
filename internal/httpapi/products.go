package httpapi

import (
	"bytes"
	"mime/multipart"
	"net/http"

	"github.com/TemirB/shop/internal/application/catalog"
	"github.com/TemirB/shop/internal/domain"
	"go.uber.org/zap"
)

const productsCSVName = "products-export.csv"

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	f, err := s.productFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	products, err := s.catalog.List(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProductInput
	if !s.decodeJSON(w, r, &in) {
		return
	}
	p, err := s.catalog.Create(r.Context(), actorFrom(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var in catalog.ProductInput
	if !s.decodeJSON(w, r, &in) {
		return
	}
	p, err := s.catalog.Update(r.Context(), actorFrom(r.Context()), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// archiveProduct is the REST delete: the row stays, archived.
func (s *Server) archiveProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.catalog.Archive(r.Context(), actorFrom(r.Context()), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) uploadProductImages(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, r, domain.NewValidationError("images", "expected a multipart form"))
		return
	}
	headers := r.MultipartForm.File["images"]
	if len(headers) == 0 {
		s.writeError(w, r, domain.NewValidationError("images", "no files uploaded"))
		return
	}

	uploads := make([]domain.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll(uploads)
			s.writeError(w, r, err)
			return
		}
		uploads = append(uploads, domain.Upload{Filename: fh.Filename, Body: f})
	}
	defer closeAll(uploads)

	images, err := s.catalog.AddImages(r.Context(), actorFrom(r.Context()), id, uploads)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, images)
}

func (s *Server) downloadProductsCSV(w http.ResponseWriter, r *http.Request) {
	f, err := s.productFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := s.catalog.ExportCSV(r.Context(), &buf, f); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+productsCSVName)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Warn("products CSV write failed", zap.Error(err))
	}
}

func (s *Server) uploadProductsCSV(w http.ResponseWriter, r *http.Request) {
	file, charset, ok := s.formFile(w, r, "file")
	if !ok {
		return
	}
	defer file.Close()

	products, err := s.catalog.ImportCSV(r.Context(), actorFrom(r.Context()), file, charset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, products)
}

// formFile returns the named multipart file and the optional charset
// form value.
func (s *Server) formFile(w http.ResponseWriter, r *http.Request, field string) (multipart.File, string, bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, r, domain.NewValidationError(field, "expected a multipart form"))
		return nil, "", false
	}
	file, _, err := r.FormFile(field)
	if err != nil {
		s.writeError(w, r, domain.NewValidationError(field, "no file uploaded"))
		return nil, "", false
	}
	return file, r.FormValue("charset"), true
}

func closeAll(uploads []domain.Upload) {
	for _, u := range uploads {
		if c, ok := u.Body.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
}
