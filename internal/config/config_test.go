package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "product_images", cfg.Cloudinary.UploadFolder)
	assert.Equal(t, "https://api.cloudinary.com", cfg.Cloudinary.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Cloudinary.Timeout)
	assert.Equal(t, 3, cfg.Cloudinary.MaxAttempts)
	assert.Equal(t, 10, cfg.Pipeline.FolderWorkers)
	assert.Equal(t, 5, cfg.Pipeline.ImageWorkers)
	assert.Equal(t, 2, cfg.Pipeline.SkipTrailing)
	assert.Equal(t, 8, cfg.Pipeline.MaxMedia)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.StatsInterval)
	assert.Equal(t, "png", cfg.Convert.Format)
	assert.Equal(t, 200, cfg.Convert.DPI)

	require.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
pipeline:
  folder_workers: 4
  image_workers: 2
  stats_interval: 10s
convert:
  format: jpg
  dpi: 150
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Pipeline.FolderWorkers)
	assert.Equal(t, 2, cfg.Pipeline.ImageWorkers)
	assert.Equal(t, 10*time.Second, cfg.Pipeline.StatsInterval)
	assert.Equal(t, "jpg", cfg.Convert.Format)
	assert.Equal(t, 150, cfg.Convert.DPI)
	// Untouched sections keep defaults.
	assert.Equal(t, 2, cfg.Pipeline.SkipTrailing)
	assert.Equal(t, "product_images", cfg.Cloudinary.UploadFolder)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
cloudinary:
  upload_folder: from_file
pipeline:
  folder_workers: 4
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	t.Setenv("CLOUDINARY_UPLOAD_FOLDER", "from_env")
	t.Setenv("PIPELINE_FOLDER_WORKERS", "7")
	t.Setenv("CLOUDINARY_CLOUD_NAME", "demo")
	t.Setenv("CLOUDINARY_API_KEY", "key")
	t.Setenv("CLOUDINARY_API_SECRET", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from_env", cfg.Cloudinary.UploadFolder)
	assert.Equal(t, 7, cfg.Pipeline.FolderWorkers)
	assert.Equal(t, "demo", cfg.Cloudinary.CloudName)
	require.NoError(t, cfg.ValidateCredentials())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestValidate_WorkerBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipeline.FolderWorkers = 51
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "folder_workers")

	cfg = DefaultConfig()
	cfg.Pipeline.FolderWorkers = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Pipeline.ImageWorkers = 21
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image_workers")

	cfg = DefaultConfig()
	cfg.Pipeline.ImageWorkers = 0
	require.Error(t, cfg.Validate())
}

func TestValidate_MaxMediaBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipeline.MaxMedia = 0
	require.Error(t, cfg.Validate())

	// More media than the CSV has columns for would silently drop URLs.
	cfg = DefaultConfig()
	cfg.Pipeline.MaxMedia = 9
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_media")
}

func TestValidate_ConvertSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Convert.Format = "gif"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid convert format")

	cfg = DefaultConfig()
	cfg.Convert.DPI = 20
	require.Error(t, cfg.Validate())
}

func TestValidateCredentials_ReportsAllMissing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cloudinary.APIKey = "key-only"

	err := cfg.ValidateCredentials()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLOUDINARY_CLOUD_NAME")
	assert.Contains(t, err.Error(), "CLOUDINARY_API_SECRET")
	assert.NotContains(t, err.Error(), "CLOUDINARY_API_KEY")
}
