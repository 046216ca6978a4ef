package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/pdfchat/internal/rag"
)

type fakeIngester struct {
	result rag.FileResult
	err    error
	block  chan struct{}
}

func (f *fakeIngester) IngestPath(ctx context.Context, path string, hooks rag.Hooks) (rag.FileResult, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return rag.FileResult{}, ctx.Err()
		}
	}
	hooks.Stage(rag.StageParsing)
	if f.err != nil {
		return rag.FileResult{}, f.err
	}
	hooks.Stage(rag.StageChunking)
	hooks.Chunks(f.result.Chunks)
	hooks.Stage(rag.StageEmbedding)
	hooks.Embedded(f.result.Chunks)
	hooks.Stage(rag.StageStoring)
	hooks.Stored(f.result.Chunks)
	return f.result, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runJob(t *testing.T, ing *fakeIngester) JobSnapshot {
	t.Helper()
	done := make(chan JobSnapshot, 1)
	o := NewOrchestrator(Options{Workers: 1, QueueSize: 1, OnDone: func(s JobSnapshot) { done <- s }}, ing, quietLogger())
	o.Start(context.Background())
	defer o.Stop()

	job, err := o.SubmitPath("/docs/a.pdf", TriggerRescan)
	if err != nil {
		t.Fatalf("SubmitPath: %v", err)
	}
	select {
	case snap := <-done:
		if snap.ID != job.ID {
			t.Fatalf("unexpected job %s", snap.ID)
		}
		if o.GetJob(job.ID) == nil {
			t.Error("job should stay retrievable")
		}
		return snap
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
	}
	return JobSnapshot{}
}

func TestWorker_Completed(t *testing.T) {
	snap := runJob(t, &fakeIngester{result: rag.FileResult{Name: "a.pdf", Status: rag.FileIngested, Chunks: 7, ContentHash: "h"}})
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%v)", snap.Status, snap.Progress.Errors)
	}
	if snap.Filename != "a.pdf" || snap.Trigger != TriggerRescan {
		t.Errorf("unexpected job identity %+v", snap)
	}
	p := snap.Progress
	if p.TotalChunks != 7 || p.ChunksEmbedded != 7 || p.ChunksStored != 7 {
		t.Errorf("unexpected progress %+v", p)
	}
	if snap.ContentHash != "h" {
		t.Errorf("expected content hash, got %q", snap.ContentHash)
	}
}

func TestWorker_DuplicateSkipped(t *testing.T) {
	snap := runJob(t, &fakeIngester{result: rag.FileResult{Status: rag.FileUnchanged}})
	if snap.Status != StatusDupSkipped {
		t.Fatalf("expected duplicate_skipped, got %s", snap.Status)
	}
}

func TestWorker_EmptyFails(t *testing.T) {
	snap := runJob(t, &fakeIngester{result: rag.FileResult{Status: rag.FileEmpty}})
	if snap.Status != StatusFailed || len(snap.Progress.Errors) != 1 {
		t.Fatalf("expected failure with one error, got %+v", snap)
	}
}

func TestWorker_ParseErrorFails(t *testing.T) {
	snap := runJob(t, &fakeIngester{err: &rag.ParseError{Name: "a.pdf", Err: errors.New("bad xref")}})
	if snap.Status != StatusFailed || snap.Phase != string(StatusParsing) {
		t.Fatalf("expected failure in parsing, got %s/%s", snap.Status, snap.Phase)
	}
}

func TestOrchestrator_QueueFull(t *testing.T) {
	block := make(chan struct{})
	o := NewOrchestrator(Options{Workers: 1, QueueSize: 1}, &fakeIngester{block: block}, quietLogger())
	o.Start(context.Background())
	defer func() {
		close(block)
		o.Stop()
	}()

	// The worker may or may not have taken the first job yet, so submit
	// until the queue rejects one.
	var rejected *Job
	for i := 0; i < 3 && rejected == nil; i++ {
		job, err := o.SubmitPath("/docs/a.pdf", TriggerUpload)
		if err != nil {
			rejected = job
		}
	}
	if rejected == nil {
		t.Fatal("expected a submission to be rejected")
	}
	if snap := rejected.Snapshot(); snap.Status != StatusFailed || snap.Phase != "queue_full" {
		t.Errorf("rejected job should be failed/queue_full, got %s/%s", snap.Status, snap.Phase)
	}
}

func TestOrchestrator_SubmitAfterStop(t *testing.T) {
	o := NewOrchestrator(Options{}, &fakeIngester{}, quietLogger())
	o.Start(context.Background())
	o.Stop()
	o.Stop()

	if err := o.Submit(NewJob("a.pdf", "/docs/a.pdf", TriggerWatch)); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestOrchestrator_JobsListed(t *testing.T) {
	var mu sync.Mutex
	var seen int
	finished := make(chan struct{}, 2)
	o := NewOrchestrator(Options{Workers: 2, QueueSize: 4, OnDone: func(JobSnapshot) {
		mu.Lock()
		seen++
		mu.Unlock()
		finished <- struct{}{}
	}}, &fakeIngester{result: rag.FileResult{Status: rag.FileIngested, Chunks: 1}}, quietLogger())
	o.Start(context.Background())
	defer o.Stop()

	for _, p := range []string{"/docs/a.pdf", "/docs/b.pdf"} {
		if _, err := o.SubmitPath(p, TriggerRescan); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 2; i++ {
		select {
		case <-finished:
		case <-time.After(5 * time.Second):
			t.Fatal("jobs did not finish")
		}
	}
	if jobs := o.Jobs(); len(jobs) != 2 {
		t.Errorf("expected 2 jobs listed, got %d", len(jobs))
	}
}
