package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Validator provides input validation for PDF conversion.
type Validator struct{}

// NewValidator creates a new validator instance.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidatePDFPath validates that a file path is valid and points to a PDF.
func (v *Validator) ValidatePDFPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return validationError("file path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return validationError(fmt.Sprintf("file does not exist: %s", path), err)
		}
		return validationError(fmt.Sprintf("cannot access file: %s", path), err)
	}

	if info.IsDir() {
		return validationError(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".pdf" {
		return validationError(fmt.Sprintf("file is not a PDF (has extension %s)", ext), nil)
	}

	file, err := os.Open(path)
	if err != nil {
		return validationError(fmt.Sprintf("cannot open file: %s", path), err)
	}
	file.Close()

	return nil
}

// ValidateOptions validates render settings.
func (v *Validator) ValidateOptions(opts Options) error {
	if opts.Format != FormatPNG && opts.Format != FormatJPG {
		return validationError(fmt.Sprintf("format must be %q or %q, got %q", FormatPNG, FormatJPG, opts.Format), nil)
	}
	if opts.DPI < 72 || opts.DPI > 600 {
		return validationError(fmt.Sprintf("dpi must be between 72 and 600, got %d", opts.DPI), nil)
	}
	if opts.Format == FormatJPG && (opts.JPEGQuality < 1 || opts.JPEGQuality > 100) {
		return validationError(fmt.Sprintf("jpeg quality must be between 1 and 100, got %d", opts.JPEGQuality), nil)
	}
	return nil
}
