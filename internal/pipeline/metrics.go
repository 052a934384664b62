package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/shelfline/catalog-pipeline/internal/observability"
)

// Metrics holds live counters updated by all workers and read by the
// periodic reporter. All fields are atomic so workers never contend on a
// lock; pass one instance per run, never share across runs.
type Metrics struct {
	FoldersProcessed atomic.Int64
	FoldersSkipped   atomic.Int64
	ImagesProcessed  atomic.Int64 // successful uploads
	ImagesFailed     atomic.Int64 // terminal upload failures
	UploadMillis     atomic.Int64 // accumulated upload wall time, for the average

	started time.Time
}

// NewMetrics returns zeroed counters with the clock started.
func NewMetrics() *Metrics {
	return &Metrics{started: time.Now()}
}

// RecordUpload accounts one finished upload attempt chain.
func (m *Metrics) RecordUpload(ok bool, elapsed time.Duration) {
	if ok {
		m.ImagesProcessed.Add(1)
	} else {
		m.ImagesFailed.Add(1)
	}
	m.UploadMillis.Add(elapsed.Milliseconds())
}

// Snapshot is a point-in-time view of the counters with derived rates and
// host utilization.
type Snapshot struct {
	Elapsed          time.Duration
	FoldersProcessed int64
	FoldersSkipped   int64
	ImagesProcessed  int64
	ImagesFailed     int64
	ImagesPerSecond  float64
	AvgUploadTime    time.Duration
	CPUPercent       float64
	MemoryPercent    float64
}

// Snapshot reads the counters and samples host CPU/memory utilization.
// Host sampling is best effort; zero values mean the probe failed.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		Elapsed:          time.Since(m.started),
		FoldersProcessed: m.FoldersProcessed.Load(),
		FoldersSkipped:   m.FoldersSkipped.Load(),
		ImagesProcessed:  m.ImagesProcessed.Load(),
		ImagesFailed:     m.ImagesFailed.Load(),
	}

	if secs := s.Elapsed.Seconds(); secs > 0 {
		s.ImagesPerSecond = float64(s.ImagesProcessed) / secs
	}

	if finished := s.ImagesProcessed + s.ImagesFailed; finished > 0 {
		s.AvgUploadTime = time.Duration(m.UploadMillis.Load()/finished) * time.Millisecond
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		s.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemoryPercent = vm.UsedPercent
	}

	return s
}

// Reporter logs a metrics snapshot on a fixed interval until its context is
// cancelled. Run it in its own goroutine alongside the worker pools.
type Reporter struct {
	metrics  *Metrics
	interval time.Duration
	logger   *observability.Logger
}

// NewReporter creates a reporter for the given counters.
func NewReporter(metrics *Metrics, interval time.Duration, logger *observability.Logger) *Reporter {
	return &Reporter{
		metrics:  metrics,
		interval: interval,
		logger:   logger,
	}
}

// Run emits snapshots until ctx is cancelled. Blocks; call in a goroutine.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.log(r.metrics.Snapshot())
		}
	}
}

func (r *Reporter) log(s Snapshot) {
	r.logger.Info().
		Dur("elapsed", s.Elapsed).
		Int64("folders_processed", s.FoldersProcessed).
		Int64("folders_skipped", s.FoldersSkipped).
		Int64("images_processed", s.ImagesProcessed).
		Int64("images_failed", s.ImagesFailed).
		Float64("images_per_sec", s.ImagesPerSecond).
		Dur("avg_upload_time", s.AvgUploadTime).
		Float64("cpu_percent", s.CPUPercent).
		Float64("memory_percent", s.MemoryPercent).
		Msg("pipeline progress")
}
