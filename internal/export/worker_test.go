package export

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"metaflux/internal/blob"
	"metaflux/internal/codec/core"
	"metaflux/internal/store"
	"metaflux/pkg/model"
)

func fixtureModel() *model.Model {
	return &model.Model{
		ID:           "core_test",
		Compartments: map[string]string{"c": "cytosol"},
		Metabolites:  []model.Metabolite{{ID: "glc_D[c]", Compartment: "c"}},
		Reactions: []model.Reaction{{
			ID:            "EX_glc",
			Stoichiometry: map[string]float64{"glc_D[c]": -1},
			LowerBound:    -10,
			UpperBound:    1000,
		}},
	}
}

func newWorker(t *testing.T) (*Worker, store.Store, *blob.Memory, *MemoryAuditLog) {
	t.Helper()
	models := store.NewMemory()
	artifacts := blob.NewMemory()
	audit := &MemoryAuditLog{}
	w := NewWorker(models, artifacts, audit)
	w.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = w.Stop(ctx)
	})
	return w, models, artifacts, audit
}

func waitForJob(t *testing.T, w *Worker, id string) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := w.GetJob(id)
		if !ok {
			t.Fatalf("job %s vanished", id)
		}
		if job.Status == StatusSucceeded || job.Status == StatusFailed {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return Job{}
}

func TestExportProducesArtifacts(t *testing.T) {
	ctx := context.Background()
	w, models, artifacts, audit := newWorker(t)
	if _, err := models.Save(ctx, store.Record{ID: "core", Model: fixtureModel()}); err != nil {
		t.Fatalf("save model: %v", err)
	}

	job, err := w.Enqueue(ctx, Request{
		ModelID:     "core",
		Formats:     []core.Format{core.FormatMATLAB, core.FormatText, core.FormatMATLAB},
		RequestedBy: "curator",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if job.Status != StatusQueued {
		t.Fatalf("status = %s", job.Status)
	}
	if len(job.Formats) != 2 {
		t.Fatalf("duplicate format not collapsed: %v", job.Formats)
	}

	done := waitForJob(t, w, job.ID)
	if done.Status != StatusSucceeded {
		t.Fatalf("job failed: %s", done.Error)
	}
	if done.CompletedAt == nil {
		t.Fatalf("completed job missing completion time")
	}
	if len(done.Artifacts) != 2 {
		t.Fatalf("artifacts = %+v", done.Artifacts)
	}
	for _, artifact := range done.Artifacts {
		if !strings.HasPrefix(artifact.Key, "exports/"+job.ID+"/") {
			t.Fatalf("artifact key %q outside job prefix", artifact.Key)
		}
		if artifact.SizeBytes == 0 || artifact.ETag == "" {
			t.Fatalf("artifact metadata incomplete: %+v", artifact)
		}
		if _, err := artifacts.Head(ctx, artifact.Key); err != nil {
			t.Fatalf("artifact not stored: %v", err)
		}
	}

	infos, err := artifacts.List(ctx, "exports/"+job.ID+"/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("stored %d artifacts, want 2", len(infos))
	}

	// The final audit entry lands just after the status flip.
	deadline := time.Now().Add(time.Second)
	for len(audit.Entries()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	var statuses []Status
	for _, entry := range audit.Entries() {
		if entry.ModelID != "core" || entry.Action != "model_export" {
			t.Fatalf("unexpected audit entry: %+v", entry)
		}
		statuses = append(statuses, entry.Status)
	}
	want := []Status{StatusQueued, StatusRunning, StatusSucceeded}
	if len(statuses) != len(want) {
		t.Fatalf("audit statuses = %v", statuses)
	}
	for i, status := range want {
		if statuses[i] != status {
			t.Fatalf("audit statuses = %v, want %v", statuses, want)
		}
	}
}

func TestEnqueueUnknownModel(t *testing.T) {
	w, _, _, _ := newWorker(t)
	if _, err := w.Enqueue(context.Background(), Request{ModelID: "missing"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEnqueueRejectsDecodeOnlyFormat(t *testing.T) {
	ctx := context.Background()
	w, models, _, _ := newWorker(t)
	if _, err := models.Save(ctx, store.Record{ID: "core", Model: fixtureModel()}); err != nil {
		t.Fatalf("save model: %v", err)
	}
	_, err := w.Enqueue(ctx, Request{ModelID: "core", Formats: []core.Format{core.FormatSimPheny}})
	if !errors.Is(err, core.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestInvalidModelFailsJob(t *testing.T) {
	ctx := context.Background()
	w, models, artifacts, _ := newWorker(t)

	m := fixtureModel()
	m.Reactions[0].Stoichiometry["phantom"] = 1
	if _, err := models.Save(ctx, store.Record{ID: "broken", Model: m}); err != nil {
		t.Fatalf("save model: %v", err)
	}

	job, err := w.Enqueue(ctx, Request{ModelID: "broken", Formats: []core.Format{core.FormatSBML}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	done := waitForJob(t, w, job.ID)
	if done.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", done.Status)
	}
	if done.Error == "" {
		t.Fatalf("failed job missing error")
	}
	infos, err := artifacts.List(ctx, "exports/"+job.ID+"/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("failed job stored artifacts: %+v", infos)
	}
}

func TestQueueFullEnqueueLeavesNoRecord(t *testing.T) {
	ctx := context.Background()
	models := store.NewMemory()
	// Not started, so the queue fills up and the next enqueue is rejected.
	w := NewWorker(models, blob.NewMemory(), nil)
	if _, err := models.Save(ctx, store.Record{ID: "core", Model: fixtureModel()}); err != nil {
		t.Fatalf("save model: %v", err)
	}

	var rejected bool
	for i := 0; i <= cap(w.queue); i++ {
		_, err := w.Enqueue(ctx, Request{ModelID: "core", Formats: []core.Format{core.FormatText}})
		if err != nil {
			if i < cap(w.queue) {
				t.Fatalf("enqueue %d rejected early: %v", i, err)
			}
			rejected = true
		}
	}
	if !rejected {
		t.Fatalf("queue never filled")
	}

	w.mu.RLock()
	pending := len(w.jobs)
	w.mu.RUnlock()
	if pending != cap(w.queue) {
		t.Fatalf("tracked jobs = %d, want %d (rejected enqueue left a record)", pending, cap(w.queue))
	}
	for _, job := range listJobs(w) {
		if job.Status != StatusQueued {
			t.Fatalf("unexpected status %s", job.Status)
		}
	}
}

func listJobs(w *Worker) []Job {
	w.mu.RLock()
	defer w.mu.RUnlock()
	jobs := make([]Job, 0, len(w.jobs))
	for _, job := range w.jobs {
		jobs = append(jobs, job.copy())
	}
	return jobs
}
