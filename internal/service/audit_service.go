package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/GoPolymarket/neogate/internal/model"
	"github.com/GoPolymarket/neogate/internal/pkg/logger"
	"github.com/GoPolymarket/neogate/internal/pkg/metrics"
)

// AuditService persists gateway audit entries off the request path: a daily
// JSONL file always, the repo when configured, and a ring buffer for reads
// when the repo is absent or failing.
type AuditService struct {
	queue  chan *model.AuditLog
	file   *dailyFile
	buffer *auditBuffer
	repo   AuditRepo
	done   chan struct{}

	insertTimeout time.Duration
}

type AuditRepo interface {
	Insert(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, error)
}

const (
	auditQueueSize     = 1000
	auditMemorySize    = 1000
	auditInsertTimeout = 5 * time.Second
)

func NewAuditService(logDir string, repo AuditRepo) (*AuditService, error) {
	file, err := openDailyFile(logDir, time.Now)
	if err != nil {
		return nil, err
	}

	svc := &AuditService{
		queue:         make(chan *model.AuditLog, auditQueueSize),
		file:          file,
		buffer:        newAuditBuffer(auditMemorySize),
		repo:          repo,
		done:          make(chan struct{}),
		insertTimeout: auditInsertTimeout,
	}

	// 启动消费者 goroutine
	go svc.drain()

	return svc, nil
}

// Log never blocks the request; a full queue drops the entry.
func (s *AuditService) Log(entry *model.AuditLog) {
	s.buffer.Add(entry)
	select {
	case s.queue <- entry:
	default:
		metrics.AuditDropped.Inc()
		logger.Warn("audit queue full, dropping entry", "id", entry.ID, "path", entry.Path)
	}
}

// List prefers the repo and falls back to the in-memory ring.
func (s *AuditService) List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, error) {
	if s.repo != nil {
		records, err := s.repo.List(ctx, filter)
		if err == nil {
			return records, nil
		}
		logger.Warn("audit repo list failed, serving from memory", "error", err)
	}
	return s.buffer.List(filter), nil
}

func (s *AuditService) drain() {
	defer close(s.done)
	for entry := range s.queue {
		if s.repo != nil {
			ctx, cancel := context.WithTimeout(context.Background(), s.insertTimeout)
			if err := s.repo.Insert(ctx, entry); err != nil {
				logger.Error("failed to write audit log to db", "id", entry.ID, "error", err)
			}
			cancel()
		}
		if err := s.file.Write(entry); err != nil {
			logger.Error("failed to write audit log", "id", entry.ID, "error", err)
		}
	}
}

// Close drains pending entries and closes the file.
func (s *AuditService) Close() {
	close(s.queue)
	<-s.done
	s.file.Close()
}

// dailyFile appends JSON lines to audit-YYYY-MM-DD.jsonl and rolls over when
// the date changes. Only the drain goroutine writes to it.
type dailyFile struct {
	dir string
	now func() time.Time
	day string
	f   *os.File
	enc *json.Encoder
}

func openDailyFile(dir string, now func() time.Time) (*dailyFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	d := &dailyFile{dir: dir, now: now}
	if err := d.rotate(now().Format("2006-01-02")); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *dailyFile) rotate(day string) error {
	f, err := os.OpenFile(filepath.Join(d.dir, "audit-"+day+".jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if d.f != nil {
		_ = d.f.Close()
	}
	d.f, d.enc, d.day = f, json.NewEncoder(f), day
	return nil
}

func (d *dailyFile) Write(entry *model.AuditLog) error {
	if day := d.now().Format("2006-01-02"); day != d.day {
		if err := d.rotate(day); err != nil {
			return err
		}
	}
	return d.enc.Encode(entry)
}

func (d *dailyFile) Close() {
	if d.f != nil {
		_ = d.f.Close()
	}
}

type auditBuffer struct {
	mu        sync.Mutex
	maxSize   int
	records   []*model.AuditLog
	nextIndex int
}

func newAuditBuffer(maxSize int) *auditBuffer {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &auditBuffer{
		maxSize: maxSize,
		records: make([]*model.AuditLog, 0, maxSize),
	}
}

func (b *auditBuffer) Add(entry *model.AuditLog) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, entry)
		return
	}
	b.records[b.nextIndex] = entry
	b.nextIndex = (b.nextIndex + 1) % b.maxSize
}

// List returns newest first.
func (b *auditBuffer) List(filter model.AuditFilter) []*model.AuditLog {
	b.mu.Lock()
	defer b.mu.Unlock()
	limit := filter.Limit
	if limit <= 0 || limit > b.maxSize {
		limit = b.maxSize
	}
	results := make([]*model.AuditLog, 0, limit)
	total := len(b.records)
	for i := 0; i < total; i++ {
		idx := (b.nextIndex + total - 1 - i) % total
		entry := b.records[idx]
		if entry == nil || !filter.Match(entry) {
			continue
		}
		results = append(results, entry)
		if len(results) >= limit {
			break
		}
	}
	return results
}
