package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

var (
	// ErrDispatcherClosed is returned once Close has been called.
	ErrDispatcherClosed = errors.New("audit dispatcher closed")
	// ErrDispatcherFull is returned when the buffer has no room left.
	ErrDispatcherFull = errors.New("audit dispatcher buffer full")
)

// AuditSink persists audit entries.
type AuditSink interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuditDispatcherConfig configures worker pool behaviour.
type AuditDispatcherConfig struct {
	Workers      int
	BufferSize   int
	MaxRetries   int
	RetryDelay   time.Duration
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

type auditJob struct {
	entry   models.AuditLog
	attempt int
}

// AuditDispatcher writes audit entries on background workers so grade writes
// never wait on the audit table.
type AuditDispatcher struct {
	sink AuditSink
	cfg  AuditDispatcherConfig

	jobs    chan auditJob
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
	closed  bool
}

// NewAuditDispatcher builds a dispatcher around sink.
func NewAuditDispatcher(sink AuditSink, cfg AuditDispatcherConfig) *AuditDispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 64
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &AuditDispatcher{
		sink: sink,
		cfg:  cfg,
		jobs: make(chan auditJob, cfg.BufferSize),
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (d *AuditDispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.started = true
	d.cfg.Logger.Info("audit dispatcher started", zap.Int("workers", d.cfg.Workers))
}

// CreateAuditLog queues a copy of entry. It never blocks the caller.
func (d *AuditDispatcher) CreateAuditLog(_ context.Context, entry *models.AuditLog) error {
	if entry == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.jobs <- auditJob{entry: *entry}:
		return nil
	default:
		return ErrDispatcherFull
	}
}

// Close stops accepting entries and waits for queued ones to be written or ctx to expire.
func (d *AuditDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	started := d.started
	d.mu.Unlock()

	if !started {
		return nil
	}
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cfg.Logger.Info("audit dispatcher drained")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *AuditDispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		d.write(job)
	}
}

func (d *AuditDispatcher) write(job auditJob) {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.WriteTimeout)
		err := d.sink.CreateAuditLog(ctx, &job.entry)
		cancel()
		if err == nil {
			return
		}
		job.attempt++
		if job.attempt > d.cfg.MaxRetries {
			d.cfg.Logger.Error("audit entry dropped",
				zap.String("action", job.entry.Action),
				zap.Int("attempts", job.attempt),
				zap.Error(err))
			return
		}
		d.cfg.Logger.Warn("audit write failed, retrying",
			zap.String("action", job.entry.Action),
			zap.Int("attempt", job.attempt),
			zap.Error(err))
		time.Sleep(d.cfg.RetryDelay)
	}
}
