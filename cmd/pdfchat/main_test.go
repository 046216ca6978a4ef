package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOpenAI serves embeddings as letter histograms and a fixed chat reply.
type fakeOpenAI struct {
	mu          sync.Mutex
	embedCalls  int
	lastMessage string
}

func (f *fakeOpenAI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/embeddings":
			var req struct {
				Input []string `json:"input"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode embeddings request: %v", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.mu.Lock()
			f.embedCalls++
			f.mu.Unlock()
			data := make([]map[string]any, len(req.Input))
			for i, text := range req.Input {
				data[i] = map[string]any{"object": "embedding", "index": i, "embedding": histogram(text)}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "model": "test", "data": data})
		case "/v1/chat/completions":
			var req struct {
				Messages []struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"messages"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode chat request: %v", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.mu.Lock()
			if len(req.Messages) > 0 {
				f.lastMessage = req.Messages[0].Content
			}
			f.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":     "chatcmpl-test",
				"object": "chat.completion",
				"model":  "test",
				"choices": []map[string]any{{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": "The vault holds the launch code."},
					"finish_reason": "stop",
				}},
			})
		default:
			http.NotFound(w, r)
		}
	})
}

func (f *fakeOpenAI) embeddings() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embedCalls
}

func (f *fakeOpenAI) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastMessage
}

func histogram(text string) []float32 {
	v := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	v[0]++ // never all zero
	return v
}

type cliEnv struct {
	docs    string
	persist string
	api     *fakeOpenAI
}

func setupCLI(t *testing.T) *cliEnv {
	t.Helper()
	root := t.TempDir()
	t.Chdir(root)

	api := &fakeOpenAI{}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	env := &cliEnv{
		docs:    filepath.Join(root, "documents"),
		persist: filepath.Join(root, "chroma_db"),
		api:     api,
	}
	t.Setenv("PDFCHAT_CONFIG", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", srv.URL+"/v1")
	t.Setenv("DOCUMENTS_DIR", env.docs)
	t.Setenv("PERSIST_DIR", env.persist)
	t.Setenv("EMBED_RATE_PER_SEC", "1000")
	t.Setenv("CHUNK_SIZE", "")
	t.Setenv("CHUNK_OVERLAP", "")
	t.Setenv("LOG_LEVEL", "error")
	return env
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		askJSON = false
	}()
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	names := make([]string, 0)
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "ingest")
	assert.Contains(t, names, "ask")
	assert.Contains(t, names, "serve")
}

func TestIngest_NoDocuments(t *testing.T) {
	env := setupCLI(t)

	out, err := run(t, "ingest")

	require.NoError(t, err)
	assert.Contains(t, out, "No documents found in "+env.docs)
}

func TestIngest_MissingAPIKey(t *testing.T) {
	setupCLI(t)
	t.Setenv("OPENAI_API_KEY", "")

	_, err := run(t, "ingest")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestIngestThenAsk(t *testing.T) {
	env := setupCLI(t)
	require.NoError(t, os.MkdirAll(env.docs, 0o755))
	text := "The launch code is kept in the vault.\n\nBananas are yellow and sweet."
	require.NoError(t, os.WriteFile(filepath.Join(env.docs, "notes.txt"), []byte(text), 0o644))

	out, err := run(t, "ingest")
	require.NoError(t, err)
	assert.Contains(t, out, "Ingested 1 document(s)")
	assert.FileExists(t, filepath.Join(env.persist, "index.db"))

	calls := env.api.embeddings()
	out, err = run(t, "ingest")
	require.NoError(t, err)
	assert.Contains(t, out, "Ingested 0 document(s) into 0 chunk(s), 1 unchanged.")
	assert.Equal(t, calls, env.api.embeddings(), "unchanged documents are not re-embedded")

	out, err = run(t, "ask", "where", "is", "the", "launch", "code?")
	require.NoError(t, err)
	assert.Contains(t, out, "The vault holds the launch code.")
	assert.Contains(t, out, "- notes.txt (page 1)")
	assert.Contains(t, env.api.lastPrompt(), "launch code is kept in the vault")

	out, err = run(t, "ask", "--json", "where is the launch code?")
	require.NoError(t, err)
	var ans struct {
		Answer  string `json:"answer"`
		Sources []struct {
			Name string `json:"name"`
		} `json:"sources"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &ans))
	assert.Equal(t, "The vault holds the launch code.", ans.Answer)
	require.NotEmpty(t, ans.Sources)
	assert.Equal(t, "notes.txt", ans.Sources[0].Name)
}

func TestAsk_EmptyIndex(t *testing.T) {
	setupCLI(t)

	_, err := run(t, "ask", "anything")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "run `pdfchat ingest` first")
}
