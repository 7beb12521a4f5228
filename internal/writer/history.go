package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/salon-queue/internal/queue"
)

// BatchSender is the subset of pgxpool.Pool used for inserts.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// WriterConfig holds writer configuration.
type WriterConfig struct {
	InstanceID    string
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     50,
		FlushInterval: 30 * time.Second,
	}
}

// WriterMetrics counts writer activity.
type WriterMetrics struct {
	Recorded int64 // Rows queued
	Inserts  int64
	Flushes  int64
	Errors   int64
	Dropped  int64 // Rows lost to failed flushes
}

type historyRow struct {
	RecordedAt   time.Time
	TotalWaiting int
	AverageWait  float64
	LongestWait  *int
	QueueLength  int
	Source       string
}

// flushTimeout bounds a loop flush. It is detached from the writer's
// lifetime so Stop does not abort a batch already on the wire.
const flushTimeout = 10 * time.Second

const insertHistory = `
	INSERT INTO queue_stats_history (recorded_at, instance_id, total_waiting, average_wait, longest_wait, queue_length, source)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// HistoryWriter observes queue views and writes stats changes in batches.
type HistoryWriter struct {
	cfg    WriterConfig
	db     BatchSender
	logger *slog.Logger

	// Batching
	batch   []historyRow
	last    *historyRow
	batchMu sync.Mutex
	flushCh chan struct{}

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics WriterMetrics
}

// NewHistoryWriter creates a HistoryWriter.
func NewHistoryWriter(cfg WriterConfig, db BatchSender, logger *slog.Logger) *HistoryWriter {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultWriterConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	return &HistoryWriter{
		cfg:     cfg,
		db:      db,
		logger:  logger.With("component", "history"),
		batch:   make([]historyRow, 0, cfg.BatchSize),
		flushCh: make(chan struct{}, 1),
	}
}

// Start begins the flush loop.
func (w *HistoryWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("history writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop ends the flush loop and writes whatever is still batched.
func (w *HistoryWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping history writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("history writer stop timed out")
		return ctx.Err()
	}

	w.flush(ctx)
	w.logger.Info("history writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *HistoryWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// ViewUpdated implements queue.Observer.
func (w *HistoryWriter) ViewUpdated(v queue.View) {
	row, ok := transform(v)
	if !ok {
		return
	}

	w.batchMu.Lock()
	if w.last != nil && sameReading(*w.last, row) {
		w.batchMu.Unlock()
		return
	}
	w.last = &row
	w.batch = append(w.batch, row)
	w.metrics.Recorded++
	full := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if full {
		select {
		case w.flushCh <- struct{}{}:
		default:
		}
	}
}

// transform turns a view into a row. Views without stats, or not yet
// confirmed by the backend, are not recorded.
func transform(v queue.View) (historyRow, bool) {
	if v.Stats == nil {
		return historyRow{}, false
	}
	switch v.Source {
	case queue.OriginPush, queue.OriginPull:
	default:
		return historyRow{}, false
	}

	row := historyRow{
		RecordedAt:   v.UpdatedAt,
		TotalWaiting: v.Stats.TotalWaiting,
		AverageWait:  v.Stats.AverageWait,
		QueueLength:  len(v.Entries),
		Source:       string(v.Source),
	}
	if row.RecordedAt.IsZero() {
		row.RecordedAt = time.Now()
	}
	if v.Stats.LongestWait != nil {
		lw := *v.Stats.LongestWait
		row.LongestWait = &lw
	}
	return row, true
}

func sameReading(a, b historyRow) bool {
	if a.TotalWaiting != b.TotalWaiting || a.AverageWait != b.AverageWait || a.QueueLength != b.QueueLength {
		return false
	}
	switch {
	case a.LongestWait == nil && b.LongestWait == nil:
		return true
	case a.LongestWait == nil || b.LongestWait == nil:
		return false
	}
	return *a.LongestWait == *b.LongestWait
}

// flushLoop flushes on the interval and whenever a batch fills up.
func (w *HistoryWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flushDetached()
		case <-w.flushCh:
			w.flushDetached()
		}
	}
}

func (w *HistoryWriter) flushDetached() {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(w.ctx), flushTimeout)
	defer cancel()
	w.flush(ctx)
}

// flush writes the current batch. A failed batch is dropped.
func (w *HistoryWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]historyRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	if err := w.batchInsert(ctx, batch); err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.metrics.Dropped += int64(len(batch))
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch))
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed stats history",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

func (w *HistoryWriter) batchInsert(ctx context.Context, rows []historyRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertHistory,
			r.RecordedAt, w.cfg.InstanceID, r.TotalWaiting, r.AverageWait, r.LongestWait, r.QueueLength, r.Source)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
