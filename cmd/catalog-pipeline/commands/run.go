package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shelfline/catalog-pipeline/cmd/catalog-pipeline/ui"
	"github.com/shelfline/catalog-pipeline/internal/catalog"
	"github.com/shelfline/catalog-pipeline/internal/cdn"
	"github.com/shelfline/catalog-pipeline/internal/config"
	"github.com/shelfline/catalog-pipeline/internal/observability"
	"github.com/shelfline/catalog-pipeline/internal/pdf"
	"github.com/shelfline/catalog-pipeline/internal/pipeline"
)

var (
	runOutputDir     string
	runCSVPath       string
	runSourceDir     string
	runFolderWorkers int
	runImageWorkers  int
	runSequential    bool
	runSkipExisting  bool
	runStatsInterval time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Upload product folders and build the catalog CSV",
	Long: `Processes every product folder under --output: uploads the eligible
images to the CDN in parallel, derives product name and cost price from
each folder name, and writes one CSV row per product. With --source set,
catalog PDFs are rendered into --output first.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runOutputDir, "output", "o", "", "directory of product image folders (required)")
	runCmd.Flags().StringVarP(&runCSVPath, "csv", "c", "product_catalog.csv", "destination CSV path")
	runCmd.Flags().StringVarP(&runSourceDir, "source", "s", "", "optional directory of PDFs to render into --output first")
	runCmd.Flags().IntVar(&runFolderWorkers, "max-folder-workers", config.DefaultFolderWorkers, "concurrent folder workers (1-50)")
	runCmd.Flags().IntVar(&runImageWorkers, "max-image-workers", config.DefaultImageWorkers, "concurrent image uploads per folder (1-20)")
	runCmd.Flags().BoolVar(&runSequential, "sequential", false, "process one folder and one image at a time")
	runCmd.Flags().BoolVar(&runSkipExisting, "skip-existing", false, "skip folders whose product already has a CSV row")
	runCmd.Flags().DurationVar(&runStatsInterval, "stats-interval", 30*time.Second, "interval between progress log lines")
	runCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Flags beat config only when the user actually set them.
	if cmd.Flags().Changed("max-folder-workers") {
		cfg.Pipeline.FolderWorkers = runFolderWorkers
	}
	if cmd.Flags().Changed("max-image-workers") {
		cfg.Pipeline.ImageWorkers = runImageWorkers
	}
	if cmd.Flags().Changed("stats-interval") {
		cfg.Pipeline.StatsInterval = runStatsInterval
	}
	if runSequential {
		cfg.Pipeline.FolderWorkers = 1
		cfg.Pipeline.ImageWorkers = 1
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.ValidateCredentials(); err != nil {
		return err
	}

	logger := buildLogger(cfg)
	runID := uuid.NewString()
	log := logger.WithRun(runID)

	u := ui.NewUI(noColor)
	defer u.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if runSourceDir != "" {
		if err := convertSource(ctx, cfg, log, u); err != nil {
			return err
		}
	}

	info, err := os.Stat(runOutputDir)
	if err != nil {
		return fmt.Errorf("output directory %s is not accessible: %w", runOutputDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output path %s is not a directory", runOutputDir)
	}
	if err := catalog.CheckWritable(runCSVPath); err != nil {
		return fmt.Errorf("csv target is not writable: %w", err)
	}

	cat, err := catalog.Load(runCSVPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	u.Section("Catalog Run")
	u.KeyValue("Run ID", runID)
	u.KeyValue("Product folders", runOutputDir)
	u.KeyValue("CSV", runCSVPath)
	u.KeyValue("Workers", fmt.Sprintf("%d folders x %d uploads", cfg.Pipeline.FolderWorkers, cfg.Pipeline.ImageWorkers))
	if cat.Existed() {
		u.KeyValue("Existing products", cat.Len())
	}
	u.Newline()

	client := cdn.NewClient(cdn.Config{
		CloudName: cfg.Cloudinary.CloudName,
		APIKey:    cfg.Cloudinary.APIKey,
		APISecret: cfg.Cloudinary.APISecret,
		BaseURL:   cfg.Cloudinary.BaseURL,
		Timeout:   cfg.Cloudinary.Timeout,
		Retry: cdn.RetryConfig{
			MaxAttempts:    cfg.Cloudinary.MaxAttempts,
			InitialBackoff: cfg.Cloudinary.Backoff,
			MaxBackoff:     cfg.Cloudinary.MaxBackoff,
		},
	}, log)

	coord := pipeline.NewCoordinator(pipeline.Config{
		RunID:         runID,
		SourceDir:     runOutputDir,
		UploadFolder:  cfg.Cloudinary.UploadFolder,
		FolderWorkers: cfg.Pipeline.FolderWorkers,
		ImageWorkers:  cfg.Pipeline.ImageWorkers,
		SkipTrailing:  cfg.Pipeline.SkipTrailing,
		MaxMedia:      cfg.Pipeline.MaxMedia,
		SkipExisting:  runSkipExisting,
		StatsInterval: cfg.Pipeline.StatsInterval,
		ParserCache:   cfg.Pipeline.ParserCache,
	}, client, cat, log)

	view := ui.NewPipelineView(u)
	go view.Watch(coord.Events())

	summary, runErr := coord.Run(ctx)
	view.Wait()

	renderSummary(u, summary)

	if runErr != nil {
		var perr *pipeline.PersistenceError
		if errors.As(runErr, &perr) {
			u.Error("Catalog could not be written to %s", perr.Path)
			if perr.RecoveryPath != "" {
				u.Warning("Results were saved to %s instead", perr.RecoveryPath)
			}
		}
		return runErr
	}

	if summary.ImagesFailed > 0 {
		u.Warning("%d images failed to upload, see the log for details", summary.ImagesFailed)
	}
	u.Success("Catalog written to %s", cat.Path())
	return nil
}

// convertSource renders the PDFs under --source into --output before the
// upload pipeline starts.
func convertSource(ctx context.Context, cfg *config.Config, log *observability.Logger, u *ui.UI) error {
	u.Section("PDF Conversion")
	u.KeyValue("PDF source", runSourceDir)
	u.KeyValue("Destination", runOutputDir)
	u.Newline()

	if err := os.MkdirAll(runOutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	converter := pdf.NewConverter(pdf.Options{
		Format:      cfg.Convert.Format,
		DPI:         cfg.Convert.DPI,
		JPEGQuality: cfg.Convert.JPEGQuality,
	}, log)

	spin := ui.NewSpinner("converting PDFs...")
	spin.Start()
	result, err := converter.ConvertAll(ctx, runSourceDir, runOutputDir, runSkipExisting, func(r pdf.PDFResult) {
		spin.UpdateMessage(fmt.Sprintf("converted %s", filepath.Base(r.Path)))
	})
	spin.Stop()
	if err != nil {
		return fmt.Errorf("convert PDFs: %w", err)
	}

	u.Info("Converted %d of %d PDFs (%d pages, %d skipped, %d failed)",
		result.Converted, result.Found, result.Pages, result.Skipped, result.Failed)
	return nil
}

func renderSummary(u *ui.UI, s pipeline.Summary) {
	u.Section("Run Summary")
	u.Table([]string{"Metric", "Value"}, [][]string{
		{"Folders found", fmt.Sprintf("%d", s.FoldersFound)},
		{"Folders processed", fmt.Sprintf("%d", s.FoldersProcessed)},
		{"Folders skipped", fmt.Sprintf("%d", s.FoldersSkipped)},
		{"Images uploaded", fmt.Sprintf("%d", s.ImagesUploaded)},
		{"Images failed", fmt.Sprintf("%d", s.ImagesFailed)},
		{"Records written", fmt.Sprintf("%d", s.RecordsWritten)},
		{"Elapsed", ui.FormatDuration(s.Elapsed)},
	})
	u.Newline()
}
