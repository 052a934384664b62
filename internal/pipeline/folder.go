package pipeline

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/shelfline/catalog-pipeline/internal/catalog"
	"github.com/shelfline/catalog-pipeline/internal/cdn"
	"github.com/shelfline/catalog-pipeline/internal/observability"
)

// Uploader sends one image to the CDN. Satisfied by *cdn.Client.
type Uploader interface {
	Upload(ctx context.Context, localPath, publicID string) cdn.UploadResult
}

// FolderTask is one enumerated product folder. Immutable after enumeration.
type FolderTask struct {
	Path    string
	RawName string
}

// FolderResult is the outcome of processing one folder. Record is nil when
// the folder was skipped; SkipReason says why.
type FolderResult struct {
	Task       FolderTask
	Identity   ParsedIdentity
	Record     *catalog.ProductRecord
	SkipReason string
	Uploads    []cdn.UploadResult // one per submitted image, submission order
	Elapsed    time.Duration
}

// Skipped reports whether the folder contributed no record.
func (r FolderResult) Skipped() bool {
	return r.Record == nil
}

// FolderProcessor turns one product folder into a catalog record: it selects
// eligible images, fans their uploads out across a bounded worker pool, and
// assembles the result in submission order. One instance is shared by all
// folder workers; every field is safe for concurrent use.
type FolderProcessor struct {
	uploader     Uploader
	parser       *Parser
	metrics      *Metrics
	logger       *observability.Logger
	notify       func(Event)
	sem          *semaphore.Weighted // global upload ceiling, shared across folders
	uploadFolder string
	imageWorkers int
	skipTrailing int
	maxMedia     int
}

// Process handles a single folder. Individual upload failures never abort
// the folder; the record carries whatever succeeded. Returns a skip result
// when no eligible image exists or no upload succeeded.
func (fp *FolderProcessor) Process(ctx context.Context, task FolderTask) FolderResult {
	start := time.Now()
	log := fp.logger.WithFolder(task.RawName)
	result := FolderResult{Task: task}

	images, err := listImages(task.Path)
	if err != nil {
		log.Warn().Err(err).Msg("cannot list folder, skipping")
		result.SkipReason = "unreadable folder"
		result.Elapsed = time.Since(start)
		return result
	}

	eligible := eligibleImages(images, fp.skipTrailing, fp.maxMedia)
	if len(eligible) == 0 {
		log.Warn().
			Int("images_found", len(images)).
			Int("skip_trailing", fp.skipTrailing).
			Msg("no eligible images, skipping folder")
		result.SkipReason = "no eligible images"
		result.Elapsed = time.Since(start)
		return result
	}

	identity := fp.parser.Parse(task.RawName)
	result.Identity = identity
	if identity.CostPrice == "" {
		log.Warn().Str("product", identity.ProductName).Msg("folder name carries no price tag, using it verbatim")
	}

	log.Info().
		Str("product", identity.ProductName).
		Int("eligible_images", len(eligible)).
		Msg("processing folder")
	fp.emit(Event{Type: EventFolderStart, Folder: task.RawName, Total: len(eligible)})

	result.Uploads = fp.uploadAll(ctx, log, eligible, task.RawName, identity.ProductName)

	var media []string
	for _, upload := range result.Uploads {
		if upload.Err == nil {
			media = append(media, upload.URL)
		}
	}

	result.Elapsed = time.Since(start)

	if len(media) == 0 {
		log.Warn().
			Int("attempted", len(result.Uploads)).
			Msg("no upload succeeded, folder contributes no record")
		result.SkipReason = "no successful uploads"
		return result
	}

	record := catalog.NewProductRecord(identity.ProductName)
	record.CostPrice = identity.CostPrice
	record.Media = media
	result.Record = &record

	log.Info().
		Str("product", identity.ProductName).
		Int("uploaded", len(media)).
		Int("failed", len(result.Uploads)-len(media)).
		Dur("took", result.Elapsed).
		Msg("folder complete")
	return result
}

// uploadAll fans the eligible images out across the image worker pool and
// collects results indexed by submission position, so media slots map to
// sorted filename order no matter which upload finishes first.
func (fp *FolderProcessor) uploadAll(ctx context.Context, log *observability.Logger, images []string, rawName, productName string) []cdn.UploadResult {
	type workItem struct {
		index int
		path  string
	}

	workChan := make(chan workItem, len(images))
	results := make([]cdn.UploadResult, len(images))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, img := range images {
		workChan <- workItem{index: i, path: img}
	}
	close(workChan)

	workers := fp.imageWorkers
	if workers > len(images) {
		workers = len(images)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workChan {
				result := fp.uploadOne(ctx, log, item.path, rawName, productName)

				mu.Lock()
				results[item.index] = result
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return results
}

// uploadOne uploads a single image under the global concurrency ceiling and
// accounts the outcome.
func (fp *FolderProcessor) uploadOne(ctx context.Context, log *observability.Logger, localPath, rawName, productName string) cdn.UploadResult {
	if err := fp.sem.Acquire(ctx, 1); err != nil {
		return cdn.UploadResult{SourcePath: localPath, Err: err}
	}
	defer fp.sem.Release(1)

	image := filepath.Base(localPath)
	publicID := path.Join(fp.uploadFolder, productName, stem(image))

	start := time.Now()
	result := fp.uploader.Upload(ctx, localPath, publicID)
	fp.metrics.RecordUpload(result.Err == nil, time.Since(start))

	if result.Err != nil {
		log.Error().
			Str("image", image).
			Int("attempts", result.Attempts).
			Err(result.Err).
			Msg("image upload failed")
		fp.emit(Event{Type: EventImageFailed, Folder: rawName, Image: image})
		return result
	}

	log.Info().
		Str("image", image).
		Str("url", result.URL).
		Int("attempts", result.Attempts).
		Dur("took", time.Since(start)).
		Msg("image uploaded")
	fp.emit(Event{Type: EventImageUploaded, Folder: rawName, Image: image})
	return result
}

func (fp *FolderProcessor) emit(evt Event) {
	if fp.notify != nil {
		fp.notify(evt)
	}
}

// listImages returns the folder's image files sorted by filename ascending.
// Non-recursive; only png and jpg files count.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	// os.ReadDir already sorts by filename.
	var images []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".png" || ext == ".jpg" || ext == ".jpeg" {
			images = append(images, filepath.Join(dir, entry.Name()))
		}
	}
	return images, nil
}

// eligibleImages drops the trailing skipTrailing entries of the sorted list
// (cover/back pages) and caps the remainder at maxMedia.
func eligibleImages(sorted []string, skipTrailing, maxMedia int) []string {
	if len(sorted) <= skipTrailing {
		return nil
	}
	eligible := sorted[:len(sorted)-skipTrailing]
	if len(eligible) > maxMedia {
		eligible = eligible[:maxMedia]
	}
	return eligible
}

func stem(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}
