package api

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"net/url"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/dgallion1/pdfchat/internal/library"
	"github.com/dgallion1/pdfchat/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

	pageTemplate = template.Must(template.New("index.html").Funcs(template.FuncMap{
		"markdown":   renderMarkdown,
		"add":        func(a, b int) int { return a + b },
		"pathEscape": url.PathEscape,
	}).ParseFS(templateFS, "templates/index.html"))
)

// renderMarkdown converts an answer to HTML. Raw HTML in the source is
// dropped by goldmark's default renderer.
func renderMarkdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

type exchange struct {
	Question string
	Answer   string
	Sources  []session.Source
}

type pageView struct {
	SessionID string
	Documents []library.Document
	Document  string
	Page      int
	Pages     int
	PageText  string
	PageError string

	// Exchanges are newest first.
	Exchanges []exchange
	Messages  int
	Chunks    int

	Error    string
	Question string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderIndex(w, r, http.StatusOK, "", "")
}

func (s *Server) renderIndex(w http.ResponseWriter, r *http.Request, status int, errMsg, question string) {
	view := s.buildView(r, sessionFrom(r))
	view.Error = errMsg
	view.Question = question

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, view); err != nil {
		s.log.Error("render page", "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) buildView(r *http.Request, sess *session.Session) pageView {
	state := sess.State()
	view := pageView{
		SessionID: state.ID,
		Document:  state.Document,
		Page:      state.Page,
		Messages:  len(state.History),
		Exchanges: exchanges(state.History),
	}

	if s.deps.Documents != nil {
		view.Documents = s.deps.Documents.List()
		if state.Document != "" {
			if doc, err := s.deps.Documents.Get(state.Document); err == nil {
				view.Pages = doc.Pages
				text, err := s.deps.Documents.PageText(state.Document, state.Page)
				if err != nil {
					s.log.Warn("page text", "document", state.Document, "page", state.Page, "error", err)
					view.PageError = "Could not extract text from this page."
				}
				view.PageText = text
			}
		}
	}
	if s.deps.Index != nil {
		if n, err := s.deps.Index.Count(r.Context()); err == nil {
			view.Chunks = n
		}
	}
	return view
}

// exchanges pairs user and assistant messages, newest first.
func exchanges(history []session.Message) []exchange {
	var out []exchange
	for i := 0; i+1 < len(history); i += 2 {
		q, a := history[i], history[i+1]
		if q.Role != session.RoleUser || a.Role != session.RoleAssistant {
			continue
		}
		out = append(out, exchange{Question: q.Content, Answer: a.Content, Sources: a.Sources})
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
