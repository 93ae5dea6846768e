// Package export runs asynchronous model export jobs: a stored model is
// encoded into one or more file formats and the resulting artifacts are
// persisted through the blob store.
package export

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"metaflux/internal/blob"
	"metaflux/internal/codec/core"
	"metaflux/internal/codec/excel"
	"metaflux/internal/codec/matlab"
	"metaflux/internal/codec/sbml"
	"metaflux/internal/codec/textexport"
	"metaflux/internal/store"
)

// Status describes the lifecycle stage of an export job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Artifact captures one stored export output.
type Artifact struct {
	Key         string      `json:"key"`
	Format      core.Format `json:"format"`
	ContentType string      `json:"content_type"`
	SizeBytes   int64       `json:"size_bytes"`
	ETag        string      `json:"etag,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Job tracks an export request and its resulting artifacts.
type Job struct {
	ID          string        `json:"id"`
	ModelID     string        `json:"model_id"`
	Formats     []core.Format `json:"formats"`
	Status      Status        `json:"status"`
	Error       string        `json:"error,omitempty"`
	Artifacts   []Artifact    `json:"artifacts,omitempty"`
	RequestedBy string        `json:"requested_by"`
	Reason      string        `json:"reason,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Request represents an enqueue call.
type Request struct {
	ModelID     string
	Formats     []core.Format
	RequestedBy string
	Reason      string
}

// AuditLogger records export audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for export jobs.
type AuditEntry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Actor      string         `json:"actor"`
	ModelID    string         `json:"model_id"`
	Status     Status         `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Worker executes model exports asynchronously.
type Worker struct {
	models    store.Store
	artifacts blob.Store
	audit     AuditLogger
	encoders  map[core.Format]core.Encoder

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id string
}

// NewWorker constructs an export worker over the model catalog and artifact
// store. audit may be nil.
func NewWorker(models store.Store, artifacts blob.Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	encoders := make(map[core.Format]core.Encoder)
	for _, enc := range []core.Encoder{matlab.New(), sbml.New(), excel.New(), textexport.New()} {
		encoders[enc.Format()] = enc
	}
	return &Worker{
		models:    models,
		artifacts: artifacts,
		audit:     audit,
		encoders:  encoders,
		queue:     make(chan task, 32),
		jobs:      make(map[string]*Job),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing export jobs.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

// Enqueue schedules an export job and returns the queued snapshot. The
// model must exist and every requested format must have an encoder.
func (w *Worker) Enqueue(ctx context.Context, req Request) (Job, error) {
	if strings.TrimSpace(req.ModelID) == "" {
		return Job{}, fmt.Errorf("model id required")
	}
	if _, err := w.models.Get(ctx, req.ModelID); err != nil {
		return Job{}, fmt.Errorf("model %s: %w", req.ModelID, err)
	}

	formats := req.Formats
	if len(formats) == 0 {
		formats = []core.Format{core.FormatMATLAB, core.FormatSBML}
	}
	uniq := make([]core.Format, 0, len(formats))
	seen := make(map[core.Format]struct{})
	for _, format := range formats {
		if _, dup := seen[format]; dup {
			continue
		}
		if _, ok := w.encoders[format]; !ok {
			return Job{}, fmt.Errorf("%w: no encoder for %s", core.ErrUnsupportedFormat, format)
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	id := newID()
	now := time.Now().UTC()
	job := Job{
		ID:          id,
		ModelID:     req.ModelID,
		Formats:     uniq,
		Status:      StatusQueued,
		RequestedBy: req.RequestedBy,
		Reason:      req.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &job
	queued := job.copy()
	w.mu.Unlock()

	w.record(ctx, AuditEntry{
		ID:         newID(),
		Action:     "model_export",
		Actor:      req.RequestedBy,
		ModelID:    req.ModelID,
		Status:     StatusQueued,
		Reason:     req.Reason,
		OccurredAt: now,
	})

	select {
	case w.queue <- task{id: id}:
	default:
		// The record must not outlive a rejected enqueue.
		w.mu.Lock()
		delete(w.jobs, id)
		w.mu.Unlock()
		return Job{}, fmt.Errorf("export queue full")
	}
	return queued, nil
}

// GetJob returns a snapshot of the job record.
func (w *Worker) GetJob(id string) (Job, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	job, ok := w.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.copy(), true
}

func (w *Worker) process(t task) {
	w.mu.RLock()
	job, ok := w.jobs[t.id]
	var modelID string
	var formats []core.Format
	if ok {
		modelID = job.ModelID
		formats = append([]core.Format(nil), job.Formats...)
	}
	w.mu.RUnlock()
	if !ok {
		return
	}

	w.updateStatus(t.id, StatusRunning, "")

	rec, err := w.models.Get(w.ctx, modelID)
	if err != nil {
		w.fail(t.id, fmt.Sprintf("load model: %v", err))
		return
	}
	if err := rec.Model.Validate(); err != nil {
		w.fail(t.id, fmt.Sprintf("model invalid: %v", err))
		return
	}

	artifacts := make([]Artifact, 0, len(formats))
	for _, format := range formats {
		artifact, err := w.materialize(t.id, format, rec)
		if err != nil {
			w.fail(t.id, err.Error())
			return
		}
		artifacts = append(artifacts, artifact)
	}
	w.complete(t.id, artifacts)
}

// materialize encodes one format to a scratch file and moves the bytes into
// the artifact store under exports/<job>/<model>.<ext>.
func (w *Worker) materialize(jobID string, format core.Format, rec store.Record) (Artifact, error) {
	enc, ok := w.encoders[format]
	if !ok {
		return Artifact{}, fmt.Errorf("%w: no encoder for %s", core.ErrUnsupportedFormat, format)
	}
	dir, err := os.MkdirTemp("", "metaflux-export-")
	if err != nil {
		return Artifact{}, err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	name := rec.ID + extensionFor(format)
	path := filepath.Join(dir, name)
	if err := enc.Encode(w.ctx, rec.Model, path); err != nil {
		return Artifact{}, fmt.Errorf("encode %s: %w", format, err)
	}
	file, err := os.Open(path)
	if err != nil {
		return Artifact{}, err
	}
	defer func() { _ = file.Close() }()

	key := fmt.Sprintf("exports/%s/%s", jobID, name)
	info, err := w.artifacts.Put(w.ctx, key, file, blob.PutOptions{
		ContentType: contentTypeFor(format),
		Metadata:    map[string]string{"model_id": rec.ID, "format": string(format)},
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("store artifact: %w", err)
	}
	return Artifact{
		Key:         info.Key,
		Format:      format,
		ContentType: info.ContentType,
		SizeBytes:   info.Size,
		ETag:        info.ETag,
		CreatedAt:   info.LastModified,
	}, nil
}

func (w *Worker) updateStatus(id string, status Status, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	var actor, modelID string
	if job, ok := w.jobs[id]; ok {
		job.Status = status
		job.Error = message
		job.UpdatedAt = now
		actor, modelID = job.RequestedBy, job.ModelID
	}
	w.mu.Unlock()
	w.record(w.ctx, AuditEntry{
		ID:         newID(),
		Action:     "model_export",
		Actor:      actor,
		ModelID:    modelID,
		Status:     status,
		OccurredAt: now,
	})
}

func (w *Worker) complete(id string, artifacts []Artifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	var actor, modelID string
	if job, ok := w.jobs[id]; ok {
		job.Status = StatusSucceeded
		job.Error = ""
		job.Artifacts = artifacts
		job.UpdatedAt = now
		job.CompletedAt = &now
		actor, modelID = job.RequestedBy, job.ModelID
	}
	w.mu.Unlock()
	w.record(w.ctx, AuditEntry{
		ID:         newID(),
		Action:     "model_export",
		Actor:      actor,
		ModelID:    modelID,
		Status:     StatusSucceeded,
		Metadata:   map[string]any{"artifacts": len(artifacts)},
		OccurredAt: now,
	})
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	var actor, modelID string
	if job, ok := w.jobs[id]; ok {
		job.Status = StatusFailed
		job.Error = reason
		job.UpdatedAt = now
		job.CompletedAt = &now
		actor, modelID = job.RequestedBy, job.ModelID
	}
	w.mu.Unlock()
	w.record(w.ctx, AuditEntry{
		ID:         newID(),
		Action:     "model_export",
		Actor:      actor,
		ModelID:    modelID,
		Status:     StatusFailed,
		Metadata:   map[string]any{"error": reason},
		OccurredAt: now,
	})
}

func (w *Worker) record(ctx context.Context, entry AuditEntry) {
	if w.audit == nil {
		return
	}
	w.audit.Record(ctx, entry)
}

func (j *Job) copy() Job {
	dup := *j
	dup.Formats = append([]core.Format(nil), j.Formats...)
	if len(j.Artifacts) > 0 {
		dup.Artifacts = append([]Artifact(nil), j.Artifacts...)
	}
	return dup
}

func extensionFor(format core.Format) string {
	switch format {
	case core.FormatMATLAB:
		return ".mat"
	case core.FormatSBML:
		return ".xml"
	case core.FormatExcel:
		return ".xlsx"
	case core.FormatText:
		return ".txt"
	}
	return ""
}

func contentTypeFor(format core.Format) string {
	switch format {
	case core.FormatMATLAB:
		return "application/octet-stream"
	case core.FormatSBML:
		return "application/sbml+xml"
	case core.FormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case core.FormatText:
		return "text/tab-separated-values"
	}
	return "application/octet-stream"
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", b[:])
}

// MemoryAuditLog collects audit entries in memory for tests.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record appends an entry.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Entries returns a snapshot of recorded entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AuditEntry(nil), l.entries...)
}

var _ AuditLogger = (*MemoryAuditLog)(nil)
