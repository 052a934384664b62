// Package catalog manages the product catalog CSV. The file uses a fixed
// column schema; products are keyed by name, updated in place when a name
// already exists and appended otherwise.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// MediaSlots is the number of media columns in the catalog schema.
const MediaSlots = 8

// Columns is the catalog header, in order. Media columns sit between
// bulk_price and preferred_supplier.
var Columns = []string{
	"name", "description", "bulk_price",
	"media_1", "media_2", "media_3", "media_4",
	"media_5", "media_6", "media_7", "media_8",
	"preferred_supplier", "cost_price", "mrp",
	"uom", "set_size", "moq", "available_quantity",
}

// ErrSchemaMismatch marks an existing CSV whose header is not the catalog schema.
var ErrSchemaMismatch = errors.New("csv header does not match catalog schema")

// ProductRecord is one catalog row. All values are stored as written to the
// CSV; absent values stay empty strings, never zero-padded.
type ProductRecord struct {
	Name              string
	Description       string
	BulkPrice         string
	Media             []string // media URLs in slot order, at most MediaSlots
	PreferredSupplier string
	CostPrice         string
	MRP               string
	UOM               string
	SetSize           string
	MOQ               string
	AvailableQuantity string
}

// NewProductRecord returns a record with the standard defaults filled in.
func NewProductRecord(name string) ProductRecord {
	return ProductRecord{
		Name:        name,
		Description: fmt.Sprintf("Product from %s", name),
		UOM:         "pcs",
	}
}

// row converts the record to a CSV row in schema order.
func (r ProductRecord) row() []string {
	row := make([]string, len(Columns))
	row[0] = r.Name
	row[1] = r.Description
	row[2] = r.BulkPrice
	for i := 0; i < MediaSlots && i < len(r.Media); i++ {
		row[3+i] = r.Media[i]
	}
	row[11] = r.PreferredSupplier
	row[12] = r.CostPrice
	row[13] = r.MRP
	row[14] = r.UOM
	row[15] = r.SetSize
	row[16] = r.MOQ
	row[17] = r.AvailableQuantity
	return row
}

// recordFromRow builds a ProductRecord from a CSV row in schema order.
func recordFromRow(row []string) ProductRecord {
	rec := ProductRecord{
		Name:              row[0],
		Description:       row[1],
		BulkPrice:         row[2],
		PreferredSupplier: row[11],
		CostPrice:         row[12],
		MRP:               row[13],
		UOM:               row[14],
		SetSize:           row[15],
		MOQ:               row[16],
		AvailableQuantity: row[17],
	}
	media := row[3 : 3+MediaSlots]
	// Trim trailing empty slots so len(Media) is the filled count.
	last := -1
	for i, m := range media {
		if m != "" {
			last = i
		}
	}
	if last >= 0 {
		rec.Media = append(rec.Media, media[:last+1]...)
	}
	return rec
}

// Catalog is the in-memory catalog, loaded once per run and saved once after
// all folders complete. Not safe for concurrent use; the pipeline touches it
// only from single-threaded phases.
type Catalog struct {
	path    string
	records []ProductRecord
	index   map[string]int // name -> position in records
	existed bool
}

// Load reads the catalog at path. A missing file yields an empty catalog;
// an existing file must carry the exact schema header.
func Load(path string) (*Catalog, error) {
	c := &Catalog{
		path:  path,
		index: make(map[string]int),
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	c.existed = true

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		// Empty file, treat like a fresh catalog.
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog header: %w", err)
	}
	if !headerMatches(header) {
		return nil, fmt.Errorf("%w: %q", ErrSchemaMismatch, path)
	}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read catalog row %d: %w", len(c.records)+2, err)
		}
		rec := recordFromRow(row)
		c.index[rec.Name] = len(c.records)
		c.records = append(c.records, rec)
	}

	return c, nil
}

func headerMatches(header []string) bool {
	if len(header) != len(Columns) {
		return false
	}
	for i, col := range Columns {
		if header[i] != col {
			return false
		}
	}
	return true
}

// Path returns the catalog file path.
func (c *Catalog) Path() string {
	return c.path
}

// Existed reports whether the catalog file was present at load time.
func (c *Catalog) Existed() bool {
	return c.existed
}

// Len returns the number of products in the catalog.
func (c *Catalog) Len() int {
	return len(c.records)
}

// HasProduct reports whether a product with the given name exists.
func (c *Catalog) HasProduct(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Names returns all product names in row order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.records))
	for i, rec := range c.records {
		names[i] = rec.Name
	}
	return names
}

// Get returns the record for name, if present.
func (c *Catalog) Get(name string) (ProductRecord, bool) {
	i, ok := c.index[name]
	if !ok {
		return ProductRecord{}, false
	}
	return c.records[i], true
}

// Upsert replaces the row with the record's name in place, preserving row
// order, or appends a new row when the name is not present.
func (c *Catalog) Upsert(rec ProductRecord) {
	if i, ok := c.index[rec.Name]; ok {
		c.records[i] = rec
		return
	}
	c.index[rec.Name] = len(c.records)
	c.records = append(c.records, rec)
}

// Save writes the catalog to its path.
func (c *Catalog) Save() error {
	return c.SaveTo(c.path)
}

// SaveTo writes the catalog to an arbitrary path. Used for recovery copies
// when the primary destination fails.
func (c *Catalog) SaveTo(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create catalog: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(Columns); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range c.records {
		if err := writer.Write(rec.row()); err != nil {
			f.Close()
			return fmt.Errorf("write row for %q: %w", rec.Name, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush catalog: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close catalog: %w", err)
	}
	return nil
}

// CheckWritable verifies the path can be written before any work is
// scheduled. A probe file created here is removed again; an existing catalog
// is left untouched.
func CheckWritable(path string) error {
	_, statErr := os.Stat(path)
	existed := statErr == nil

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("catalog destination not writable: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("catalog destination not writable: %w", err)
	}
	if !existed {
		os.Remove(path)
	}
	return nil
}
