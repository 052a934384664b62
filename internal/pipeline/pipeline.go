// Package pipeline implements the parallel upload-and-populate run: folder
// enumeration, two-level bounded worker pools, metrics, and the final
// catalog merge.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/shelfline/catalog-pipeline/internal/catalog"
	"github.com/shelfline/catalog-pipeline/internal/observability"
)

const (
	defaultFolderWorkers = 10
	defaultImageWorkers  = 5
	defaultSkipTrailing  = 2
	defaultMaxMedia      = 8
	defaultStatsInterval = 30 * time.Second
	eventBuffer          = 256
)

// Config holds coordinator settings for one run.
type Config struct {
	RunID         string
	SourceDir     string
	UploadFolder  string
	FolderWorkers int
	ImageWorkers  int
	SkipTrailing  int
	MaxMedia      int
	SkipExisting  bool
	StatsInterval time.Duration
	ParserCache   int
}

// Summary is what a finished run reports, regardless of how many individual
// uploads failed along the way.
type Summary struct {
	FoldersFound     int
	FoldersProcessed int64
	FoldersSkipped   int64
	RecordsWritten   int
	ImagesUploaded   int64
	ImagesFailed     int64
	Elapsed          time.Duration
}

// PersistenceError surfaces a failed final catalog write. The run's results
// are reported and written to a recovery file when possible, so completed
// uploads are never silently lost.
type PersistenceError struct {
	Path         string
	RecoveryPath string // best-effort copy, empty when that failed too
	Err          error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist catalog to %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Coordinator drives one pipeline run. Create one per run.
type Coordinator struct {
	cfg      Config
	uploader Uploader
	cat      *catalog.Catalog
	parser   *Parser
	metrics  *Metrics
	logger   *observability.Logger
	events   chan Event
}

// NewCoordinator creates a coordinator over a loaded catalog. Zero config
// values fall back to defaults.
func NewCoordinator(cfg Config, uploader Uploader, cat *catalog.Catalog, logger *observability.Logger) *Coordinator {
	if cfg.FolderWorkers <= 0 {
		cfg.FolderWorkers = defaultFolderWorkers
	}
	if cfg.ImageWorkers <= 0 {
		cfg.ImageWorkers = defaultImageWorkers
	}
	if cfg.SkipTrailing < 0 {
		cfg.SkipTrailing = defaultSkipTrailing
	}
	if cfg.MaxMedia <= 0 {
		cfg.MaxMedia = defaultMaxMedia
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = defaultStatsInterval
	}

	return &Coordinator{
		cfg:      cfg,
		uploader: uploader,
		cat:      cat,
		parser:   NewParser(cfg.ParserCache),
		metrics:  NewMetrics(),
		logger:   logger,
		events:   make(chan Event, eventBuffer),
	}
}

// Events returns the progress event stream. Closed when Run finishes.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// Metrics exposes the live counters for reporters and tests.
func (c *Coordinator) Metrics() *Metrics {
	return c.metrics
}

// Run executes the pipeline end to end: enumerate folders, fan out across
// the worker pools, merge results, save the catalog. Individual folder and
// image failures never fail the run; the returned error is either a startup
// failure (unreadable source directory) or a *PersistenceError from the
// final write. The summary is valid in both cases. Run is single-use.
func (c *Coordinator) Run(ctx context.Context) (Summary, error) {
	defer close(c.events)

	tasks, err := c.enumerate()
	if err != nil {
		return Summary{}, err
	}

	c.logger.Info().
		Int("folders", len(tasks)).
		Int("folder_workers", c.cfg.FolderWorkers).
		Int("image_workers", c.cfg.ImageWorkers).
		Bool("skip_existing", c.cfg.SkipExisting).
		Msg("pipeline starting")
	c.emit(Event{Type: EventRunStart, Total: len(tasks)})

	reporterCtx, stopReporter := context.WithCancel(ctx)
	defer stopReporter()
	go NewReporter(c.metrics, c.cfg.StatsInterval, c.logger).Run(reporterCtx)

	results := c.processAll(ctx, tasks)
	stopReporter()

	summary := c.merge(results)

	if err := c.cat.Save(); err != nil {
		perr := &PersistenceError{Path: c.cat.Path(), Err: err}
		if recovery := c.recoveryPath(); recovery != "" {
			if rerr := c.cat.SaveTo(recovery); rerr == nil {
				perr.RecoveryPath = recovery
			} else {
				c.logger.Error().Err(rerr).Str("path", recovery).Msg("recovery write failed too")
			}
		}
		c.reportUnsaved(results, perr)
		return summary, perr
	}

	c.logger.Info().
		Str("path", c.cat.Path()).
		Int("records", summary.RecordsWritten).
		Int("catalog_rows", c.cat.Len()).
		Msg("catalog saved")
	c.emit(Event{Type: EventRunComplete})
	return summary, nil
}

// enumerate lists the immediate subdirectories of the source directory as
// folder tasks. With skip-existing set, folders whose derived product name
// already has a catalog row are excluded before any work is scheduled.
func (c *Coordinator) enumerate() ([]FolderTask, error) {
	entries, err := os.ReadDir(c.cfg.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("read source directory: %w", err)
	}

	var tasks []FolderTask
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()

		if c.cfg.SkipExisting {
			identity := c.parser.Parse(name)
			if c.cat.HasProduct(identity.ProductName) {
				c.logger.Info().
					Str("folder", name).
					Str("product", identity.ProductName).
					Msg("product already in catalog, skipping folder")
				continue
			}
		}

		tasks = append(tasks, FolderTask{
			Path:    filepath.Join(c.cfg.SourceDir, name),
			RawName: name,
		})
	}

	return tasks, nil
}

// processAll fans the folder tasks out across the folder worker pool.
// Results are indexed by enumeration position so the catalog merge is
// deterministic regardless of completion order. The semaphore caps total
// in-flight uploads at folder_workers x image_workers even if a processor
// misbehaves.
func (c *Coordinator) processAll(ctx context.Context, tasks []FolderTask) []FolderResult {
	if len(tasks) == 0 {
		return nil
	}

	sem := semaphore.NewWeighted(int64(c.cfg.FolderWorkers) * int64(c.cfg.ImageWorkers))
	processor := &FolderProcessor{
		uploader:     c.uploader,
		parser:       c.parser,
		metrics:      c.metrics,
		logger:       c.logger,
		notify:       c.emit,
		sem:          sem,
		uploadFolder: c.cfg.UploadFolder,
		imageWorkers: c.cfg.ImageWorkers,
		skipTrailing: c.cfg.SkipTrailing,
		maxMedia:     c.cfg.MaxMedia,
	}

	type workItem struct {
		index int
		task  FolderTask
	}

	workChan := make(chan workItem, len(tasks))
	results := make([]FolderResult, len(tasks))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, task := range tasks {
		workChan <- workItem{index: i, task: task}
	}
	close(workChan)

	workers := c.cfg.FolderWorkers
	if workers > len(tasks) {
		workers = len(tasks)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workChan {
				result := processor.Process(ctx, item.task)

				c.metrics.FoldersProcessed.Add(1)
				if result.Skipped() {
					c.metrics.FoldersSkipped.Add(1)
					c.emit(Event{Type: EventFolderSkipped, Folder: item.task.RawName})
				} else {
					c.emit(Event{Type: EventFolderComplete, Folder: item.task.RawName})
				}

				mu.Lock()
				results[item.index] = result
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return results
}

// merge folds the folder results into the catalog, single-threaded, after
// all workers have joined.
func (c *Coordinator) merge(results []FolderResult) Summary {
	records := 0
	for _, result := range results {
		if result.Record == nil {
			continue
		}
		c.cat.Upsert(*result.Record)
		records++
	}

	snap := c.metrics.Snapshot()
	return Summary{
		FoldersFound:     len(results),
		FoldersProcessed: snap.FoldersProcessed,
		FoldersSkipped:   snap.FoldersSkipped,
		RecordsWritten:   records,
		ImagesUploaded:   snap.ImagesProcessed,
		ImagesFailed:     snap.ImagesFailed,
		Elapsed:          snap.Elapsed,
	}
}

// reportUnsaved dumps every record that could not be persisted, so the
// uploads behind them can be recovered from the log.
func (c *Coordinator) reportUnsaved(results []FolderResult, perr *PersistenceError) {
	evt := c.logger.Error().
		Err(perr.Err).
		Str("path", perr.Path)
	if perr.RecoveryPath != "" {
		evt = evt.Str("recovery_path", perr.RecoveryPath)
	}
	evt.Msg("catalog write failed, unsaved records follow")

	for _, result := range results {
		if result.Record == nil {
			continue
		}
		c.logger.Error().
			Str("product", result.Record.Name).
			Str("cost_price", result.Record.CostPrice).
			Strs("media", result.Record.Media).
			Msg("unsaved record")
	}
}

func (c *Coordinator) recoveryPath() string {
	if c.cfg.RunID == "" {
		return c.cat.Path() + ".recovery"
	}
	return fmt.Sprintf("%s.recovery-%s", c.cat.Path(), c.cfg.RunID)
}
