package api

import (
	"net/http"

	"github.com/dgallion1/pdfchat/internal/llm"
)

type modelStats struct {
	Model string            `json:"model"`
	Stats llm.StatsSnapshot `json:"stats"`
}

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.ChatStats == nil && s.deps.EmbedStats == nil {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}

	resp := map[string]modelStats{}
	if s.deps.ChatStats != nil {
		resp["chat"] = modelStats{Model: s.deps.ChatModel, Stats: s.deps.ChatStats.Snapshot()}
	}
	if s.deps.EmbedStats != nil {
		resp["embedding"] = modelStats{Model: s.deps.EmbeddingModel, Stats: s.deps.EmbedStats.Snapshot()}
	}
	writeJSON(w, http.StatusOK, resp)
}
