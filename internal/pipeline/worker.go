package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dgallion1/pdfchat/internal/rag"
)

// FileIngester ingests one file on disk.
type FileIngester interface {
	IngestPath(ctx context.Context, path string, hooks rag.Hooks) (rag.FileResult, error)
}

// Worker processes a single ingestion job.
type Worker struct {
	ingester FileIngester
	log      *slog.Logger
}

func NewWorker(ingester FileIngester, log *slog.Logger) *Worker {
	return &Worker{ingester: ingester, log: log}
}

var stageStatus = map[rag.Stage]JobStatus{
	rag.StageParsing:   StatusParsing,
	rag.StageChunking:  StatusChunking,
	rag.StageEmbedding: StatusEmbedding,
	rag.StageStoring:   StatusStoring,
}

// Process runs the ingest pipeline for a job and leaves it in a terminal state.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename, "trigger", job.Trigger)

	current := StatusQueued
	hooks := rag.Hooks{
		Stage: func(s rag.Stage) {
			current = stageStatus[s]
			job.SetStatus(current, string(s))
		},
		Chunks:   job.SetTotalChunks,
		Embedded: job.AddEmbedded,
		Stored:   job.AddStored,
	}

	res, err := w.ingester.IngestPath(ctx, job.Path, hooks)
	if err != nil {
		var pe *rag.ParseError
		if errors.As(err, &pe) {
			log.Error("parse failed", "error", pe.Err)
		} else {
			log.Error("ingest failed", "phase", current, "error", err)
		}
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, string(current))
		return
	}
	job.SetResult(res.ContentHash, res.Replaced)

	switch res.Status {
	case rag.FileUnchanged:
		log.Info("duplicate content, skipping")
		job.SetStatus(StatusDupSkipped, "dedup")
	case rag.FileEmpty:
		log.Warn("no chunks produced")
		job.AddError("no extractable content")
		job.SetStatus(StatusFailed, "chunking")
	default:
		log.Info("job complete", "chunks", res.Chunks, "replaced", res.Replaced)
		job.SetStatus(StatusCompleted, "done")
	}
}
