package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shelfline/catalog-pipeline/cmd/catalog-pipeline/ui"
	"github.com/shelfline/catalog-pipeline/internal/pdf"
)

var (
	convertSourceDir    string
	convertDestDir      string
	convertFormat       string
	convertDPI          int
	convertSkipExisting bool
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Render catalog PDFs into per-product image folders",
	Long: `Renders every page of every PDF in --source into its own folder under
--dest, named after the PDF, as page_0001, page_0002 and so on. Those
folders are what the run command uploads.`,
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVarP(&convertSourceDir, "source", "s", "", "directory containing PDF files (required)")
	convertCmd.Flags().StringVarP(&convertDestDir, "dest", "d", "", "destination root for image folders (required)")
	convertCmd.Flags().StringVarP(&convertFormat, "format", "f", "png", "output image format: png or jpg")
	convertCmd.Flags().IntVar(&convertDPI, "dpi", 200, "render resolution (72-600)")
	convertCmd.Flags().BoolVar(&convertSkipExisting, "skip-existing", false, "skip PDFs whose output folder already has pages")
	convertCmd.MarkFlagRequired("source")
	convertCmd.MarkFlagRequired("dest")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("format") {
		cfg.Convert.Format = convertFormat
	}
	if cmd.Flags().Changed("dpi") {
		cfg.Convert.DPI = convertDPI
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := buildLogger(cfg)
	u := ui.NewUI(noColor)
	defer u.Close()

	ctx, cancel := signalContext()
	defer cancel()

	u.Section("PDF Conversion")
	u.KeyValue("PDF source", convertSourceDir)
	u.KeyValue("Destination", convertDestDir)
	u.KeyValue("Format", fmt.Sprintf("%s at %d dpi", cfg.Convert.Format, cfg.Convert.DPI))
	u.Newline()

	pdfs, err := pdf.DiscoverPDFs(convertSourceDir)
	if err != nil {
		return err
	}
	if len(pdfs) == 0 {
		return fmt.Errorf("no PDF files found in %s", convertSourceDir)
	}
	if err := os.MkdirAll(convertDestDir, 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	converter := pdf.NewConverter(pdf.Options{
		Format:      cfg.Convert.Format,
		DPI:         cfg.Convert.DPI,
		JPEGQuality: cfg.Convert.JPEGQuality,
	}, logger)

	bar := ui.NewBar(int64(len(pdfs)), "converting")
	result, err := converter.ConvertAll(ctx, convertSourceDir, convertDestDir, convertSkipExisting, func(r pdf.PDFResult) {
		bar.Add(1)
	})
	bar.Finish()
	if err != nil {
		return err
	}

	u.Newline()
	u.Table([]string{"Metric", "Value"}, [][]string{
		{"PDFs found", fmt.Sprintf("%d", result.Found)},
		{"Converted", fmt.Sprintf("%d", result.Converted)},
		{"Pages rendered", fmt.Sprintf("%d", result.Pages)},
		{"Skipped", fmt.Sprintf("%d", result.Skipped)},
		{"Failed", fmt.Sprintf("%d", result.Failed)},
	})
	u.Newline()

	if result.Failed > 0 {
		u.Warning("%d PDFs failed to convert, see the log for details", result.Failed)
	}
	u.Success("Images written under %s", convertDestDir)
	return nil
}
