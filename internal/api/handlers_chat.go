package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/dgallion1/pdfchat/internal/rag"
	"github.com/dgallion1/pdfchat/internal/session"
)

type chatResponse struct {
	SessionID string       `json:"session_id"`
	Answer    string       `json:"answer"`
	Question  string       `json:"question"`
	Sources   []rag.Source `json:"sources"`
	History   int          `json:"history"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Question string `json:"question"`
	}
	form, err := decodeInput(r, &in)
	if err != nil {
		jsonError(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if form != nil {
		in.Question = form.Get("question")
	}

	sess := sessionFrom(r)
	ans, err := s.ask(r.Context(), sess, in.Question)
	if err != nil {
		jsonError(w, chatErrorMessage(err), chatErrorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		SessionID: sess.ID(),
		Answer:    ans.Text,
		Question:  ans.Question,
		Sources:   ans.Sources,
		History:   len(sess.History()),
	})
}

// handleChatForm is the chat box on the page. Failures are shown in place.
func (s *Server) handleChatForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderIndex(w, r, http.StatusBadRequest, "Invalid form.", "")
		return
	}
	question := r.PostForm.Get("question")
	if _, err := s.ask(r.Context(), sessionFrom(r), question); err != nil {
		s.renderIndex(w, r, chatErrorStatus(err), chatErrorMessage(err), question)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ask runs the chain over the session's completed turns and records the new
// turn only when an answer came back.
func (s *Server) ask(ctx context.Context, sess *session.Session, question string) (rag.Answer, error) {
	if s.deps.Chain == nil {
		return rag.Answer{}, errors.New("chat is not configured")
	}
	turns := sess.Turns()
	history := make([]rag.Turn, len(turns))
	for i, t := range turns {
		history[i] = rag.Turn{User: t.User, Assistant: t.Assistant}
	}

	ans, err := s.deps.Chain.Ask(ctx, question, history)
	if err != nil {
		if !errors.Is(err, rag.ErrEmptyQuestion) {
			s.log.Error("chat failed", "session_id", sess.ID(), "error", err)
		}
		return rag.Answer{}, err
	}

	sources := make([]session.Source, len(ans.Sources))
	for i, src := range ans.Sources {
		sources[i] = session.Source{Name: src.Name, Page: src.Page, Text: src.Text}
	}
	sess.AppendTurn(question, ans.Text, sources)
	return ans, nil
}

func chatErrorStatus(err error) int {
	if errors.Is(err, rag.ErrEmptyQuestion) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func chatErrorMessage(err error) string {
	if errors.Is(err, rag.ErrEmptyQuestion) {
		return "Please enter a question."
	}
	return "The assistant could not answer: " + err.Error()
}
