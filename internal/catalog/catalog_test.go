package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsEmptyCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.csv")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Existed())
	assert.False(t, c.HasProduct("anything"))
}

func TestLoad_EmptyFileYieldsEmptyCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
	assert.True(t, c.Existed())
}

func TestLoad_SchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,price\nWidget,10\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.csv")

	c, err := Load(path)
	require.NoError(t, err)

	rec := NewProductRecord("Steel Bowl")
	rec.CostPrice = "120.50"
	rec.Media = []string{"https://cdn/a.png", "https://cdn/b.png"}
	c.Upsert(rec)

	require.NoError(t, c.Save())

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Len())

	got, ok := loaded.Get("Steel Bowl")
	require.True(t, ok)
	assert.Equal(t, "Product from Steel Bowl", got.Description)
	assert.Equal(t, "pcs", got.UOM)
	assert.Equal(t, "120.50", got.CostPrice)
	assert.Equal(t, []string{"https://cdn/a.png", "https://cdn/b.png"}, got.Media)
	assert.Empty(t, got.MRP)
	assert.Empty(t, got.AvailableQuantity)
}

func TestSave_HeaderAndBlankMediaSlots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.csv")

	c, err := Load(path)
	require.NoError(t, err)

	rec := NewProductRecord("Single Image")
	rec.Media = []string{"https://cdn/only.png"}
	c.Upsert(rec)
	require.NoError(t, c.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	assert.Equal(t, strings.Join(Columns, ","), lines[0])
	fields := strings.Split(lines[1], ",")
	require.Len(t, fields, len(Columns))
	assert.Equal(t, "https://cdn/only.png", fields[3])
	// media_2..media_8 stay blank, never padded.
	for i := 4; i <= 10; i++ {
		assert.Empty(t, fields[i])
	}
}

func TestUpsert_UpdatesInPlacePreservingOrder(t *testing.T) {
	c := &Catalog{index: make(map[string]int)}
	c.Upsert(NewProductRecord("First"))
	c.Upsert(NewProductRecord("Second"))
	c.Upsert(NewProductRecord("Third"))

	updated := NewProductRecord("Second")
	updated.CostPrice = "99"
	updated.Media = []string{"https://cdn/new.png"}
	c.Upsert(updated)

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"First", "Second", "Third"}, c.Names())

	got, ok := c.Get("Second")
	require.True(t, ok)
	assert.Equal(t, "99", got.CostPrice)
}

func TestUpsert_AppendsNewNames(t *testing.T) {
	c := &Catalog{index: make(map[string]int)}
	c.Upsert(NewProductRecord("Existing"))
	c.Upsert(NewProductRecord("Fresh"))

	assert.Equal(t, []string{"Existing", "Fresh"}, c.Names())
	assert.True(t, c.HasProduct("Fresh"))
	assert.False(t, c.HasProduct("Missing"))
}

func TestLoad_TrimsTrailingEmptyMediaSlots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.csv")

	c, err := Load(path)
	require.NoError(t, err)
	rec := NewProductRecord("Gap Product")
	rec.Media = []string{"https://cdn/1.png", "", "https://cdn/3.png"}
	c.Upsert(rec)
	require.NoError(t, c.Save())

	loaded, err := Load(path)
	require.NoError(t, err)
	got, ok := loaded.Get("Gap Product")
	require.True(t, ok)
	// Interior gap survives, trailing blanks do not.
	assert.Equal(t, []string{"https://cdn/1.png", "", "https://cdn/3.png"}, got.Media)
}

func TestCheckWritable(t *testing.T) {
	dir := t.TempDir()

	// Probe file must not linger.
	path := filepath.Join(dir, "new.csv")
	require.NoError(t, CheckWritable(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Existing catalog survives the probe.
	existing := filepath.Join(dir, "existing.csv")
	require.NoError(t, os.WriteFile(existing, []byte("content"), 0o644))
	require.NoError(t, CheckWritable(existing))
	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	// Missing parent directory fails.
	err = CheckWritable(filepath.Join(dir, "missing", "out.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not writable")
}
