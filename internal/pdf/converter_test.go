package pdf

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shelfline/catalog-pipeline/internal/observability"
)

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestNewConverter_Defaults(t *testing.T) {
	c := NewConverter(Options{}, observability.Nop())

	if c.opts.Format != FormatPNG {
		t.Errorf("Expected default format %q, got %q", FormatPNG, c.opts.Format)
	}
	if c.opts.DPI != 200 {
		t.Errorf("Expected default DPI 200, got %d", c.opts.DPI)
	}
	if c.opts.JPEGQuality != 90 {
		t.Errorf("Expected default JPEG quality 90, got %d", c.opts.JPEGQuality)
	}
}

func TestValidatePDFPath(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "catalog.pdf")
	writeFile(t, pdfPath, []byte("%PDF-1.4"))

	v := NewValidator()

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "valid pdf", path: pdfPath, wantErr: false},
		{name: "empty path", path: "  ", wantErr: true},
		{name: "missing file", path: filepath.Join(dir, "nope.pdf"), wantErr: true},
		{name: "directory", path: dir, wantErr: true},
		{name: "wrong extension", path: pdfPath + ".txt", wantErr: true},
	}

	writeFile(t, pdfPath+".txt", []byte("text"))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidatePDFPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePDFPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidateOptions(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "png", opts: Options{Format: FormatPNG, DPI: 200, JPEGQuality: 90}, wantErr: false},
		{name: "jpg", opts: Options{Format: FormatJPG, DPI: 300, JPEGQuality: 85}, wantErr: false},
		{name: "bad format", opts: Options{Format: "webp", DPI: 200, JPEGQuality: 90}, wantErr: true},
		{name: "dpi too low", opts: Options{Format: FormatPNG, DPI: 50, JPEGQuality: 90}, wantErr: true},
		{name: "dpi too high", opts: Options{Format: FormatPNG, DPI: 700, JPEGQuality: 90}, wantErr: true},
		{name: "bad jpeg quality", opts: Options{Format: FormatJPG, DPI: 200, JPEGQuality: 0}, wantErr: true},
		{name: "quality ignored for png", opts: Options{Format: FormatPNG, DPI: 200, JPEGQuality: 0}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateOptions(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOptions(%+v) error = %v, wantErr %v", tt.opts, err, tt.wantErr)
			}
		})
	}
}

func TestDiscoverPDFs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.pdf"), []byte("%PDF"))
	writeFile(t, filepath.Join(dir, "A.PDF"), []byte("%PDF"))
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("text"))
	if err := os.Mkdir(filepath.Join(dir, "nested.pdf"), 0o755); err != nil {
		t.Fatal(err)
	}

	pdfs, err := DiscoverPDFs(dir)
	if err != nil {
		t.Fatalf("DiscoverPDFs: %v", err)
	}

	want := []string{filepath.Join(dir, "A.PDF"), filepath.Join(dir, "b.pdf")}
	if len(pdfs) != len(want) {
		t.Fatalf("Expected %d PDFs, got %d: %v", len(want), len(pdfs), pdfs)
	}
	for i := range want {
		if pdfs[i] != want[i] {
			t.Errorf("pdfs[%d] = %q, want %q", i, pdfs[i], want[i])
		}
	}
}

func TestDiscoverPDFs_MissingDir(t *testing.T) {
	_, err := DiscoverPDFs(filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Fatal("Expected error for missing directory")
	}

	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if perr.Type != ErrorTypeIO {
		t.Errorf("Expected error type %q, got %q", ErrorTypeIO, perr.Type)
	}
}

func TestOutputDirFor(t *testing.T) {
	got := OutputDirFor("/out", "/in/RS=100 - WidgetA.pdf")
	want := filepath.Join("/out", "RS=100 - WidgetA")
	if got != want {
		t.Errorf("OutputDirFor = %q, want %q", got, want)
	}
}

func TestHasOutput(t *testing.T) {
	root := t.TempDir()

	if HasOutput(filepath.Join(root, "missing")) {
		t.Error("Expected false for missing directory")
	}

	empty := filepath.Join(root, "empty")
	if err := os.Mkdir(empty, 0o755); err != nil {
		t.Fatal(err)
	}
	if HasOutput(empty) {
		t.Error("Expected false for empty directory")
	}

	stray := filepath.Join(root, "stray")
	if err := os.Mkdir(stray, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(stray, "notes.txt"), []byte("text"))
	if HasOutput(stray) {
		t.Error("Expected false for directory without page files")
	}

	done := filepath.Join(root, "done")
	if err := os.Mkdir(done, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(done, "page_0001.png"), []byte("img"))
	if !HasOutput(done) {
		t.Error("Expected true for directory with a rendered page")
	}
}

func TestConvertAll_EmptySource(t *testing.T) {
	c := NewConverter(Options{}, observability.Nop())

	result, err := c.ConvertAll(context.Background(), t.TempDir(), t.TempDir(), false, nil)
	if err != nil {
		t.Fatalf("ConvertAll: %v", err)
	}
	if result.Found != 0 || result.Converted != 0 {
		t.Errorf("Expected empty result, got %+v", result)
	}
}

func TestConvertAll_SkipExisting(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()

	// The skip decision fires before the file is ever opened, so a
	// placeholder that is not a real PDF proves the short-circuit.
	writeFile(t, filepath.Join(src, "catalog.pdf"), []byte("not a pdf"))
	outDir := filepath.Join(dest, "catalog")
	if err := os.Mkdir(outDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(outDir, "page_0001.png"), []byte("img"))

	c := NewConverter(Options{}, observability.Nop())

	var results []PDFResult
	result, err := c.ConvertAll(context.Background(), src, dest, true, func(r PDFResult) {
		results = append(results, r)
	})
	if err != nil {
		t.Fatalf("ConvertAll: %v", err)
	}

	if result.Skipped != 1 || result.Converted != 0 || result.Failed != 0 {
		t.Errorf("Expected 1 skip, got %+v", result)
	}
	if len(results) != 1 || !results[0].Skipped {
		t.Errorf("Expected one skipped notification, got %+v", results)
	}
}

func TestConvertAll_BadPDFIsNonFatal(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	writeFile(t, filepath.Join(src, "broken.pdf"), []byte("not a pdf at all"))

	c := NewConverter(Options{}, observability.Nop())

	result, err := c.ConvertAll(context.Background(), src, dest, false, nil)
	if err != nil {
		t.Fatalf("ConvertAll: %v", err)
	}
	if result.Failed != 1 {
		t.Errorf("Expected 1 failure, got %+v", result)
	}

	// Nothing half-written is left behind.
	if _, err := os.Stat(filepath.Join(dest, "broken")); !os.IsNotExist(err) {
		t.Errorf("Expected no output directory for failed conversion")
	}
}

func TestConvertAll_CancelledContext(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "catalog.pdf"), []byte("%PDF"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewConverter(Options{}, observability.Nop())
	_, err := c.ConvertAll(ctx, src, t.TempDir(), false, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
