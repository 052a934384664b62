// Package pdf renders catalog PDFs into per-product image folders using
// go-fitz, one folder per PDF, one numbered image per page.
package pdf

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/shelfline/catalog-pipeline/internal/observability"
)

const (
	FormatPNG = "png"
	FormatJPG = "jpg"

	defaultDPI         = 200
	defaultJPEGQuality = 90
)

// pageFilePattern matches files previously produced by this converter.
var pageFilePattern = regexp.MustCompile(`^page_\d{4}\.(png|jpg)$`)

// Options are the render settings for a conversion run.
type Options struct {
	Format      string
	DPI         int
	JPEGQuality int
}

// PageFile describes one rendered page on disk.
type PageFile struct {
	PageNumber int
	Path       string
	Width      int
	Height     int
}

// PDFResult is the outcome for a single PDF within a batch.
type PDFResult struct {
	Path    string
	Dest    string
	Pages   int
	Skipped bool
	Err     error
}

// BatchResult summarizes a batch conversion.
type BatchResult struct {
	Found     int
	Converted int
	Skipped   int
	Failed    int
	Pages     int
}

// Converter renders PDFs to images.
type Converter struct {
	opts      Options
	validator *Validator
	logger    *observability.Logger
}

// NewConverter creates a converter. Zero option fields fall back to
// defaults (png, 200 dpi, jpeg quality 90).
func NewConverter(opts Options, logger *observability.Logger) *Converter {
	if opts.Format == "" {
		opts.Format = FormatPNG
	}
	if opts.DPI <= 0 {
		opts.DPI = defaultDPI
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = defaultJPEGQuality
	}

	return &Converter{
		opts:      opts,
		validator: NewValidator(),
		logger:    logger,
	}
}

// Convert renders every page of one PDF into destDir as
// page_0001.<ext>, page_0002.<ext>, and so on. When conversion fails
// partway and destDir did not exist beforehand, the partial output is
// removed so a later skip-existing pass does not mistake it for a
// finished folder.
func (c *Converter) Convert(ctx context.Context, pdfPath, destDir string) ([]PageFile, error) {
	if err := c.validator.ValidatePDFPath(pdfPath); err != nil {
		return nil, err
	}
	if err := c.validator.ValidateOptions(c.opts); err != nil {
		return nil, err
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, conversionError("failed to open PDF", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, validationError("PDF has no pages", nil)
	}

	existedBefore := dirExists(destDir)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, ioError("failed to create output directory", err)
	}

	pages := make([]PageFile, 0, pageCount)
	for pageNum := 0; pageNum < pageCount; pageNum++ {
		select {
		case <-ctx.Done():
			c.discardPartial(destDir, existedBefore)
			return nil, ctx.Err()
		default:
		}

		img, err := doc.ImageDPI(pageNum, float64(c.opts.DPI))
		if err != nil {
			c.discardPartial(destDir, existedBefore)
			return nil, conversionError(fmt.Sprintf("failed to render page %d", pageNum+1), err)
		}

		outputPath := filepath.Join(destDir, fmt.Sprintf("page_%04d.%s", pageNum+1, c.opts.Format))
		if err := c.encode(img, outputPath); err != nil {
			c.discardPartial(destDir, existedBefore)
			return nil, err
		}

		bounds := img.Bounds()
		pages = append(pages, PageFile{
			PageNumber: pageNum + 1,
			Path:       outputPath,
			Width:      bounds.Dx(),
			Height:     bounds.Dy(),
		})
	}

	return pages, nil
}

// ConvertAll converts every PDF under sourceDir into its own folder under
// destRoot. Per-PDF failures are logged and counted, never fatal; only
// context cancellation stops the batch early. notify, when set, is called
// once per PDF after its outcome is known.
func (c *Converter) ConvertAll(ctx context.Context, sourceDir, destRoot string, skipExisting bool, notify func(PDFResult)) (BatchResult, error) {
	pdfs, err := DiscoverPDFs(sourceDir)
	if err != nil {
		return BatchResult{}, err
	}

	result := BatchResult{Found: len(pdfs)}
	if len(pdfs) == 0 {
		c.logger.Warn().Str("dir", sourceDir).Msg("no PDF files found")
		return result, nil
	}

	for _, pdfPath := range pdfs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		dest := OutputDirFor(destRoot, pdfPath)
		log := c.logger.With().Str("pdf", filepath.Base(pdfPath)).Logger()

		if skipExisting && HasOutput(dest) {
			log.Info().Str("dest", dest).Msg("output folder already populated, skipping")
			result.Skipped++
			c.send(notify, PDFResult{Path: pdfPath, Dest: dest, Skipped: true})
			continue
		}

		pages, err := c.Convert(ctx, pdfPath, dest)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			log.Error().Err(err).Msg("conversion failed")
			result.Failed++
			c.send(notify, PDFResult{Path: pdfPath, Dest: dest, Err: err})
			continue
		}

		log.Info().Int("pages", len(pages)).Str("dest", dest).Msg("converted")
		result.Converted++
		result.Pages += len(pages)
		c.send(notify, PDFResult{Path: pdfPath, Dest: dest, Pages: len(pages)})
	}

	return result, nil
}

func (c *Converter) send(notify func(PDFResult), r PDFResult) {
	if notify != nil {
		notify(r)
	}
}

func (c *Converter) encode(img image.Image, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return ioError(fmt.Sprintf("failed to create %s", filepath.Base(path)), err)
	}

	switch c.opts.Format {
	case FormatJPG:
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: c.opts.JPEGQuality})
	default:
		err = png.Encode(out, img)
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return conversionError(fmt.Sprintf("failed to encode %s", filepath.Base(path)), err)
	}
	return nil
}

// discardPartial removes a half-written output folder, but never one the
// converter did not create itself.
func (c *Converter) discardPartial(destDir string, existedBefore bool) {
	if existedBefore {
		return
	}
	if err := os.RemoveAll(destDir); err != nil {
		c.logger.Warn().Err(err).Str("dir", destDir).Msg("could not remove partial output")
	}
}

// DiscoverPDFs lists the PDF files directly under dir, sorted by name.
// The extension check is case-insensitive.
func DiscoverPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ioError(fmt.Sprintf("failed to read %s", dir), err)
	}

	var pdfs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) != ".pdf" {
			continue
		}
		pdfs = append(pdfs, filepath.Join(dir, entry.Name()))
	}

	return pdfs, nil
}

// OutputDirFor returns the image folder for a PDF: a directory under
// destRoot named after the PDF without its extension.
func OutputDirFor(destRoot, pdfPath string) string {
	base := filepath.Base(pdfPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(destRoot, stem)
}

// HasOutput reports whether dir already holds at least one rendered page.
func HasOutput(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if !entry.IsDir() && pageFilePattern.MatchString(entry.Name()) {
			return true
		}
	}
	return false
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
