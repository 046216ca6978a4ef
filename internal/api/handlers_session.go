package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dgallion1/pdfchat/internal/library"
	"github.com/dgallion1/pdfchat/internal/session"
)

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionFrom(r).State())
}

func (s *Server) handleSelectDocument(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
	}
	form, err := decodeInput(r, &in)
	if err != nil {
		jsonError(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if form != nil {
		in.Name = form.Get("name")
	}
	if _, ok := s.lookupDocument(w, in.Name); !ok {
		return
	}
	sess := sessionFrom(r)
	sess.SelectDocument(in.Name)
	s.sessionUpdated(w, r, sess)
}

func (s *Server) handleSelectPage(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Page int `json:"page"`
	}
	form, err := decodeInput(r, &in)
	if err == nil && form != nil {
		in.Page, err = strconv.Atoi(strings.TrimSpace(form.Get("page")))
	}
	if err != nil {
		jsonError(w, "invalid page", http.StatusBadRequest)
		return
	}
	sess := sessionFrom(r)
	pageCount := 0
	if name := sess.State().Document; name != "" && s.deps.Documents != nil {
		if doc, err := s.deps.Documents.Get(name); err == nil {
			pageCount = doc.Pages
		}
	}
	sess.SelectPage(in.Page, pageCount)
	s.sessionUpdated(w, r, sess)
}

// handleSelectSource is a click on a source button. Page is 0-based, as
// returned with the answer.
func (s *Server) handleSelectSource(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
		Page int    `json:"page"`
	}
	form, err := decodeInput(r, &in)
	if err == nil && form != nil {
		in.Name = form.Get("name")
		in.Page, err = strconv.Atoi(strings.TrimSpace(form.Get("page")))
	}
	if err != nil {
		jsonError(w, "invalid source", http.StatusBadRequest)
		return
	}
	doc, ok := s.lookupDocument(w, in.Name)
	if !ok {
		return
	}
	sess := sessionFrom(r)
	sess.SelectSource(doc.Name, in.Page, doc.Pages)
	s.sessionUpdated(w, r, sess)
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	sess.Reset(s.deps.Sessions.DefaultDocument())
	s.sessionUpdated(w, r, sess)
}

func (s *Server) lookupDocument(w http.ResponseWriter, name string) (library.Document, bool) {
	if s.deps.Documents == nil {
		jsonError(w, "no document library", http.StatusServiceUnavailable)
		return library.Document{}, false
	}
	doc, err := s.deps.Documents.Get(name)
	switch {
	case errors.Is(err, library.ErrInvalidName):
		jsonError(w, "invalid document name", http.StatusBadRequest)
		return library.Document{}, false
	case errors.Is(err, library.ErrNotFound):
		jsonError(w, "document not found", http.StatusNotFound)
		return library.Document{}, false
	case err != nil:
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return library.Document{}, false
	}
	return doc, true
}

// sessionUpdated answers a session change: JSON callers get the new state,
// browser forms are sent back to the chat page.
func (s *Server) sessionUpdated(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, sess.State())
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func isJSONBody(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func wantsJSON(r *http.Request) bool {
	return isJSONBody(r) || strings.Contains(r.Header.Get("Accept"), "application/json")
}

// decodeInput decodes a JSON body into dst and returns nil values, or parses
// a form body and returns its values for the caller to read.
func decodeInput(r *http.Request, dst any) (url.Values, error) {
	if isJSONBody(r) {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return r.PostForm, nil
}
