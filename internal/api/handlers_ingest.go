package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/pdfchat/internal/parser"
	"github.com/dgallion1/pdfchat/internal/pipeline"
)

var errTooLarge = errors.New("file exceeds max size")

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		jsonError(w, "ingestion is not running", http.StatusServiceUnavailable)
		return
	}
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if !s.parseUpload(w, r, 32 << 20) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	file.Close()

	job, code, err := s.acceptUpload(header)
	if err != nil {
		jsonError(w, err.Error(), code)
		return
	}
	writeJSON(w, http.StatusAccepted, jobAccepted(job))
}

func (s *Server) handleBatchIngest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		jsonError(w, "ingestion is not running", http.StatusServiceUnavailable)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*10+10*1024*1024)

	if !s.parseUpload(w, r, 64 << 20) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	results := make([]map[string]any, 0, len(files))
	for _, fh := range files {
		job, _, err := s.acceptUpload(fh)
		if err != nil {
			results = append(results, map[string]any{
				"filename": sanitizeFilename(fh.Filename),
				"error":    err.Error(),
			})
			continue
		}
		results = append(results, jobAccepted(job))
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"jobs": results})
}

// parseUpload parses a multipart body read through http.MaxBytesReader and
// writes the error response when it fails.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request, maxMemory int64) bool {
	err := r.ParseMultipartForm(maxMemory)
	if err == nil {
		return true
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		jsonError(w, fmt.Sprintf("request exceeds max size (%d bytes)", maxErr.Limit), http.StatusRequestEntityTooLarge)
		return false
	}
	jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
	return false
}

// acceptUpload saves an uploaded file into the documents directory and
// queues it. The returned status code applies when err is non-nil.
func (s *Server) acceptUpload(fh *multipart.FileHeader) (*pipeline.Job, int, error) {
	filename := sanitizeFilename(fh.Filename)
	if !parser.IsSupportedExtension(filename) {
		return nil, http.StatusBadRequest, fmt.Errorf("unsupported file type: %s", filepath.Ext(filename))
	}

	f, err := fh.Open()
	if err != nil {
		return nil, http.StatusBadRequest, errors.New("failed to open file")
	}
	path, err := s.saveUpload(filename, f)
	f.Close()
	if errors.Is(err, errTooLarge) {
		return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes)
	}
	if err != nil {
		s.log.Error("save upload", "filename", filename, "error", err)
		return nil, http.StatusInternalServerError, errors.New("failed to save file")
	}

	job, err := s.deps.Jobs.SubmitPath(path, pipeline.TriggerUpload)
	if err != nil {
		return nil, http.StatusServiceUnavailable, err
	}
	return job, 0, nil
}

// saveUpload writes src into the documents directory under filename. The
// file appears under its final name only once complete.
func (s *Server) saveUpload(filename string, src io.Reader) (string, error) {
	dir := s.cfg.DocumentsDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create documents dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(src, s.cfg.MaxUploadBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	if n > s.cfg.MaxUploadBytes {
		return "", errTooLarge
	}

	path := filepath.Join(dir, filename)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("move upload: %w", err)
	}
	return path, nil
}

// handleRescan queues every supported file in the documents directory.
// Unchanged files finish as duplicate_skipped.
func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		jsonError(w, "ingestion is not running", http.StatusServiceUnavailable)
		return
	}
	if s.deps.Documents != nil {
		if err := s.deps.Documents.Refresh(); err != nil {
			s.log.Warn("refresh library", "error", err)
		}
	}

	names, err := parser.ListDir(s.cfg.DocumentsDir)
	if err == nil && len(names) == 0 {
		err = parser.ErrNoDocuments
	}
	if errors.Is(err, parser.ErrNoDocuments) {
		jsonError(w, "no documents found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	results := make([]map[string]any, 0, len(names))
	for _, name := range names {
		job, err := s.deps.Jobs.SubmitPath(filepath.Join(s.cfg.DocumentsDir, name), pipeline.TriggerRescan)
		if err != nil {
			results = append(results, map[string]any{
				"filename": name,
				"error":    err.Error(),
			})
			continue
		}
		results = append(results, jobAccepted(job))
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"jobs": results})
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if s.deps.Jobs == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	job := s.deps.Jobs.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeJSON(w, http.StatusOK, map[string]any{"jobs": []pipeline.JobSnapshot{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":        s.deps.Jobs.Jobs(),
		"queue_depth": s.deps.Jobs.QueueDepth(),
	})
}

func jobAccepted(job *pipeline.Job) map[string]any {
	snap := job.Snapshot()
	return map[string]any{
		"job_id":   snap.ID,
		"filename": snap.Filename,
		"status":   snap.Status,
		"poll_url": fmt.Sprintf("/api/ingest/%s/status", snap.ID),
	}
}

func sanitizeFilename(name string) string {
	// Browsers may send Windows paths.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "/" {
		name = "unnamed"
	}
	return name
}
