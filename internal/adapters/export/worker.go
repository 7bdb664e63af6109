// Package export renders consumption history into downloadable JSON and CSV
// artifacts. Requests are queued and processed by a single background worker;
// artifacts are written through a blob store under exports/<record>/ and every
// lifecycle transition is recorded on an audit trail.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"bottlecore/internal/blob"
	"bottlecore/pkg/domain"
)

// Format identifies an artifact encoding. The string value doubles as the
// file extension of the stored artifact.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ExportStatus describes the lifecycle stage of an export request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// ExportArtifact captures one stored history artifact.
type ExportArtifact struct {
	ID          string            `json:"id"`
	Format      Format            `json:"format"`
	Key         string            `json:"key,omitempty"`
	ContentType string            `json:"content_type"`
	SizeBytes   int64             `json:"size_bytes"`
	URL         string            `json:"url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ExportRecord tracks an export request and resulting artifacts.
type ExportRecord struct {
	ID          string           `json:"id"`
	ProductID   string           `json:"product_id,omitempty"`
	Formats     []Format         `json:"formats"`
	Status      ExportStatus     `json:"status"`
	Error       string           `json:"error,omitempty"`
	Artifacts   []ExportArtifact `json:"artifacts,omitempty"`
	RequestedBy string           `json:"requested_by"`
	Reason      string           `json:"reason,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// ExportInput represents an enqueue request for the worker. An empty
// ProductID exports the history of every product.
type ExportInput struct {
	ProductID   string
	Formats     []Format
	RequestedBy string
	Reason      string
}

// ExportScheduler queues history export requests and exposes status.
type ExportScheduler interface {
	EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error)
	GetExport(id string) (ExportRecord, bool)
}

// HistorySource supplies the ledgers and consumption history being exported.
// The core service satisfies this.
type HistorySource interface {
	Ledger(productID string) (domain.ProductLedger, bool)
	Ledgers() []domain.ProductLedger
	ConsumptionHistory(ctx context.Context, productID string, limit int) ([]domain.ConsumptionEntry, error)
}

// AuditLogger records export audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for exports.
type AuditEntry struct {
	ID         string            `json:"id"`
	Action     string            `json:"action"`
	Actor      string            `json:"actor"`
	ProductID  string            `json:"product_id,omitempty"`
	Status     ExportStatus      `json:"status"`
	Reason     string            `json:"reason,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Worker executes history exports asynchronously.
type Worker struct {
	source HistorySource
	store  blob.Store
	audit  AuditLogger

	queue chan exportTask
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id    string
	input ExportInput
}

type renderedArtifact struct {
	Artifact ExportArtifact
	Payload  []byte
}

// historyDocument is the payload shape of a JSON artifact.
type historyDocument struct {
	GeneratedAt time.Time                 `json:"generated_at"`
	ProductID   string                    `json:"product_id,omitempty"`
	EntryCount  int                       `json:"entry_count"`
	Entries     []domain.ConsumptionEntry `json:"entries"`
}

var csvHeader = []string{
	"id", "product_id", "sequence", "amount", "containers_opened",
	"before_sealed", "before_open", "after_sealed", "after_open",
	"sale_id", "service_id", "actor_id", "occurred_at",
}

// NewWorker constructs an export worker. A nil store keeps artifacts
// in-memory on the record only; a nil audit logger disables the trail.
func NewWorker(source HistorySource, store blob.Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		source: source,
		store:  store,
		audit:  audit,
		queue:  make(chan exportTask, 32),
		jobs:   make(map[string]*ExportRecord),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing export requests.
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
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueExport schedules an export job and returns the queued record.
func (w *Worker) EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error) {
	if w.source == nil {
		return ExportRecord{}, fmt.Errorf("history source not configured")
	}
	if input.ProductID != "" {
		if _, ok := w.source.Ledger(input.ProductID); !ok {
			return ExportRecord{}, fmt.Errorf("product %s not found", input.ProductID)
		}
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatCSV}
	}
	uniqFormats := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{})
	for _, format := range formats {
		if _, duplicate := seen[format]; duplicate {
			continue
		}
		switch format {
		case FormatJSON, FormatCSV:
		default:
			return ExportRecord{}, fmt.Errorf("unsupported export format %s", format)
		}
		uniqFormats = append(uniqFormats, format)
		seen[format] = struct{}{}
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	record := ExportRecord{
		ID:          id,
		ProductID:   input.ProductID,
		Formats:     uniqFormats,
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		Reason:      input.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queuedSnapshot := record.copy()
	w.mu.Unlock()

	if w.audit != nil {
		w.audit.Record(ctx, AuditEntry{
			ID:         uuid.NewString(),
			Action:     "history_export",
			Actor:      input.RequestedBy,
			ProductID:  input.ProductID,
			Status:     ExportStatusQueued,
			Reason:     input.Reason,
			OccurredAt: now,
		})
	}

	select {
	case w.queue <- exportTask{id: id, input: input}:
	default:
		// a job that never reaches the queue must not linger as queued
		w.mu.Lock()
		delete(w.jobs, id)
		w.mu.Unlock()
		return ExportRecord{}, fmt.Errorf("export queue full")
	}

	return queuedSnapshot, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	record, ok := w.jobs[id]
	if !ok {
		w.mu.RUnlock()
		return ExportRecord{}, false
	}
	snapshot := record.copy()
	w.mu.RUnlock()
	return snapshot, true
}

func (w *Worker) process(task exportTask) {
	record := w.snapshot(task.id)
	if record == nil {
		return
	}

	if task.input.ProductID != "" {
		if _, ok := w.source.Ledger(task.input.ProductID); !ok {
			w.fail(task.id, fmt.Sprintf("product %s missing", task.input.ProductID))
			return
		}
	}

	w.updateStatus(task.id, ExportStatusRunning, "")

	entries, err := w.collect(task.input.ProductID)
	if err != nil {
		w.fail(task.id, fmt.Sprintf("load history: %v", err))
		return
	}

	artifacts := make([]ExportArtifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		rendered, err := w.materialize(format, task.input.ProductID, entries)
		if err != nil {
			w.fail(task.id, err.Error())
			return
		}
		artifact := rendered.Artifact
		if w.store != nil {
			key := fmt.Sprintf("exports/%s/%s.%s", task.id, artifact.ID, format)
			info, err := w.store.Put(w.ctx, key, bytes.NewReader(rendered.Payload), blob.PutOptions{
				ContentType: artifact.ContentType,
				Metadata:    artifact.Metadata,
			})
			if err != nil {
				w.fail(task.id, fmt.Sprintf("store artifact failed: %v", err))
				return
			}
			artifact.Key = info.Key
			artifact.SizeBytes = info.Size
			artifact.URL = info.URL
			// presigned URLs are best effort; the stored key remains authoritative
			if url, err := w.store.PresignURL(w.ctx, key, blob.SignedURLOptions{}); err == nil && url != "" {
				artifact.URL = url
			}
		}
		artifacts = append(artifacts, artifact)
	}

	w.complete(task.id, artifacts)
}

// collect loads the history to export. With no product filter, products are
// visited in ledger order so repeated exports of the same state render
// identical payloads.
func (w *Worker) collect(productID string) ([]domain.ConsumptionEntry, error) {
	if productID != "" {
		return w.source.ConsumptionHistory(w.ctx, productID, 0)
	}
	var entries []domain.ConsumptionEntry
	for _, ledger := range w.source.Ledgers() {
		history, err := w.source.ConsumptionHistory(w.ctx, ledger.ProductID, 0)
		if err != nil {
			return nil, err
		}
		entries = append(entries, history...)
	}
	return entries, nil
}

func (w *Worker) snapshot(id string) *ExportRecord {
	w.mu.RLock()
	record, ok := w.jobs[id]
	w.mu.RUnlock()
	if !ok {
		return nil
	}
	return record
}

func (w *Worker) updateStatus(id string, status ExportStatus, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
	}
	w.mu.Unlock()
	if w.audit != nil {
		actor, productID := w.auditContext(id)
		entry := AuditEntry{
			ID:         uuid.NewString(),
			Action:     "history_export",
			Actor:      actor,
			ProductID:  productID,
			Status:     status,
			OccurredAt: now,
		}
		if message != "" {
			entry.Metadata = map[string]string{"note": message}
		}
		w.audit.Record(w.ctx, entry)
	}
}

func (w *Worker) complete(id string, artifacts []ExportArtifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	if w.audit != nil {
		actor, productID := w.auditContext(id)
		w.audit.Record(w.ctx, AuditEntry{
			ID:         uuid.NewString(),
			Action:     "history_export",
			Actor:      actor,
			ProductID:  productID,
			Status:     ExportStatusSucceeded,
			Metadata:   map[string]string{"artifacts": strconv.Itoa(len(artifacts))},
			OccurredAt: now,
		})
	}
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	if w.audit != nil {
		actor, productID := w.auditContext(id)
		w.audit.Record(w.ctx, AuditEntry{
			ID:         uuid.NewString(),
			Action:     "history_export",
			Actor:      actor,
			ProductID:  productID,
			Status:     ExportStatusFailed,
			Metadata:   map[string]string{"error": reason},
			OccurredAt: now,
		})
	}
}

func (w *Worker) auditContext(id string) (actor, productID string) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if record, ok := w.jobs[id]; ok {
		return record.RequestedBy, record.ProductID
	}
	return "", ""
}

func (w *Worker) materialize(format Format, productID string, entries []domain.ConsumptionEntry) (renderedArtifact, error) {
	now := time.Now().UTC()
	metadata := map[string]string{"entries": strconv.Itoa(len(entries))}
	if productID != "" {
		metadata["product_id"] = productID
	}
	switch format {
	case FormatJSON:
		payload, err := json.Marshal(historyDocument{
			GeneratedAt: now,
			ProductID:   productID,
			EntryCount:  len(entries),
			Entries:     entries,
		})
		if err != nil {
			return renderedArtifact{}, fmt.Errorf("marshal json: %w", err)
		}
		return renderedArtifact{
			Artifact: ExportArtifact{
				ID:          uuid.NewString(),
				Format:      FormatJSON,
				ContentType: "application/json",
				SizeBytes:   int64(len(payload)),
				Metadata:    metadata,
				CreatedAt:   now,
			},
			Payload: payload,
		}, nil
	case FormatCSV:
		buf := &bytes.Buffer{}
		writer := csv.NewWriter(buf)
		if err := writer.Write(csvHeader); err != nil {
			return renderedArtifact{}, err
		}
		for _, entry := range entries {
			if err := writer.Write(csvRow(entry)); err != nil {
				return renderedArtifact{}, err
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return renderedArtifact{}, err
		}
		payload := buf.Bytes()
		return renderedArtifact{
			Artifact: ExportArtifact{
				ID:          uuid.NewString(),
				Format:      FormatCSV,
				ContentType: "text/csv",
				SizeBytes:   int64(len(payload)),
				Metadata:    metadata,
				CreatedAt:   now,
			},
			Payload: payload,
		}, nil
	default:
		return renderedArtifact{}, fmt.Errorf("unsupported export format %s", format)
	}
}

func csvRow(entry domain.ConsumptionEntry) []string {
	return []string{
		entry.ID,
		entry.ProductID,
		strconv.FormatUint(entry.Sequence, 10),
		strconv.FormatInt(int64(entry.Amount), 10),
		strconv.Itoa(int(entry.ContainersOpened)),
		strconv.Itoa(int(entry.BeforeSealed)),
		strconv.FormatInt(int64(entry.BeforeOpen), 10),
		strconv.Itoa(int(entry.AfterSealed)),
		strconv.FormatInt(int64(entry.AfterOpen), 10),
		entry.Correlation.SaleID,
		entry.Correlation.ServiceID,
		entry.Correlation.ActorID,
		entry.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}

func (r ExportRecord) copy() ExportRecord {
	dup := r
	dup.Formats = append([]Format(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]ExportArtifact(nil), r.Artifacts...)
	}
	return dup
}

// MemoryAuditLog captures audit entries in-memory for assertions.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record stores an audit entry.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a copy of the recorded audit entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
