package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/pdfchat/internal/library"
	"github.com/dgallion1/pdfchat/internal/parser"
	"github.com/dgallion1/pdfchat/internal/vectorstore"
)

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if s.deps.Documents == nil {
		jsonError(w, "no document library", http.StatusServiceUnavailable)
		return
	}
	resp := map[string]any{"documents": s.deps.Documents.List()}
	if s.deps.Index != nil {
		sources, err := s.deps.Index.Sources(r.Context())
		if err != nil {
			s.log.Error("list indexed sources", "error", err)
			jsonError(w, "index unavailable", http.StatusServiceUnavailable)
			return
		}
		if sources == nil {
			sources = []vectorstore.SourceInfo{}
		}
		resp["indexed"] = sources
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRawDocument serves the PDF for the embedded viewer.
func (s *Server) handleRawDocument(w http.ResponseWriter, r *http.Request) {
	if s.deps.Documents == nil {
		jsonError(w, "no document library", http.StatusServiceUnavailable)
		return
	}
	f, doc, err := s.deps.Documents.Open(chi.URLParam(r, "name"))
	if err != nil {
		s.documentError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline")
	http.ServeContent(w, r, doc.Name, doc.ModTime, f)
}

// handlePageText returns the extracted text of a 1-based page.
func (s *Server) handlePageText(w http.ResponseWriter, r *http.Request) {
	if s.deps.Documents == nil {
		jsonError(w, "no document library", http.StatusServiceUnavailable)
		return
	}
	name := chi.URLParam(r, "name")
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil {
		jsonError(w, "invalid page", http.StatusBadRequest)
		return
	}
	text, err := s.deps.Documents.PageText(name, page)
	if err != nil {
		s.documentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name": name,
		"page": page,
		"text": text,
	})
}

func (s *Server) documentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, library.ErrInvalidName):
		jsonError(w, "invalid document name", http.StatusBadRequest)
	case errors.Is(err, library.ErrNotFound):
		jsonError(w, "document not found", http.StatusNotFound)
	case errors.Is(err, parser.ErrPageNotFound):
		jsonError(w, "page not found", http.StatusNotFound)
	default:
		s.log.Error("document request", "error", err)
		jsonError(w, "could not read document", http.StatusInternalServerError)
	}
}
