package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zlib"

	"github.com/couchcryptid/prism-etl/internal/domain"
)

// zlibLevel matches the default compression the scientific Python stack
// applies when consolidating to zarr.
const zlibLevel = 5

// Dataset is a consolidated time series over a single spatial grid, one grid
// of values per day.
type Dataset struct {
	Name    string
	Time    []time.Time
	Lon     []float64
	Lat     []float64
	Values  [][]float32 // one flat row-major [lat][lon] grid per time step
	NoData  float32
	Sources []string // archive locations, aligned with Time
}

// Combine merges per-day frames into one dataset ordered by time. Every frame
// must carry the same variable name and an identical coordinate grid.
func Combine(frames []domain.NormalizedFrame) (*Dataset, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames to combine")
	}

	sorted := make([]domain.NormalizedFrame, len(frames))
	copy(sorted, frames)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	first := sorted[0]
	ds := &Dataset{
		Name:   first.Name,
		Lon:    first.Lon,
		Lat:    first.Lat,
		NoData: first.NoData,
	}
	for _, f := range sorted {
		if f.Name != first.Name {
			return nil, fmt.Errorf("cannot combine variables %q and %q", first.Name, f.Name)
		}
		if !equalAxis(f.Lon, first.Lon) || !equalAxis(f.Lat, first.Lat) {
			return nil, fmt.Errorf("frame %s has a different coordinate grid", f.Time.Format("2006-01-02"))
		}
		if len(ds.Time) > 0 && f.Time.Equal(ds.Time[len(ds.Time)-1]) {
			return nil, fmt.Errorf("duplicate time step %s", f.Time.Format("2006-01-02"))
		}
		ds.Time = append(ds.Time, f.Time)
		ds.Values = append(ds.Values, f.Values)
		ds.Sources = append(ds.Sources, f.SourceLocation)
	}
	return ds, nil
}

func equalAxis(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}

// zarray is the zarr v2 array metadata document.
type zarray struct {
	Shape      []int           `json:"shape"`
	Chunks     []int           `json:"chunks"`
	DType      string          `json:"dtype"`
	Compressor json.RawMessage `json:"compressor"`
	FillValue  *float64        `json:"fill_value"`
	Order      string          `json:"order"`
	Filters    json.RawMessage `json:"filters"`
	ZarrFormat int             `json:"zarr_format"`
}

var zlibCompressor = json.RawMessage(fmt.Sprintf(`{"id":"zlib","level":%d}`, zlibLevel))

// WriteZarr lays the dataset out as a zarr v2 group under dir. Each array
// carries the _ARRAY_DIMENSIONS attribute xarray uses to recover named
// dimensions, and a consolidated .zmetadata is written last so readers can
// open the store with a single metadata fetch.
func WriteZarr(dir string, ds *Dataset) error {
	if len(ds.Time) != len(ds.Values) {
		return fmt.Errorf("dataset has %d time steps but %d value grids", len(ds.Time), len(ds.Values))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create zarr store: %w", err)
	}

	consolidated := map[string]json.RawMessage{}
	addDoc := func(relPath string, doc any) error {
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode %s: %w", relPath, err)
		}
		full := filepath.Join(dir, filepath.FromSlash(relPath))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("create array dir for %s: %w", relPath, err)
		}
		if err := os.WriteFile(full, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", relPath, err)
		}
		consolidated[relPath] = data
		return nil
	}

	if err := addDoc(".zgroup", map[string]int{"zarr_format": 2}); err != nil {
		return err
	}
	if err := addDoc(".zattrs", map[string]string{"source": "prism-etl"}); err != nil {
		return err
	}

	nT, nLat, nLon := len(ds.Time), len(ds.Lat), len(ds.Lon)

	// Coordinate arrays, each a single uncompressed-shape chunk.
	seconds := make([]int64, nT)
	for i, ts := range ds.Time {
		seconds[i] = ts.Unix()
	}
	if err := writeArray(dir, addDoc, timeVar, zarray{
		Shape: []int{nT}, Chunks: []int{nT}, DType: "<i8",
		Compressor: zlibCompressor, Order: "C", Filters: json.RawMessage("null"), ZarrFormat: 2,
	}, map[string]any{
		"_ARRAY_DIMENSIONS": []string{timeVar},
		"units":             "seconds since 1970-01-01T00:00:00",
		"calendar":          "proleptic_gregorian",
	}, map[string][]byte{"0": encodeInt64(seconds)}); err != nil {
		return err
	}
	if err := writeArray(dir, addDoc, latVar, zarray{
		Shape: []int{nLat}, Chunks: []int{nLat}, DType: "<f8",
		Compressor: zlibCompressor, Order: "C", Filters: json.RawMessage("null"), ZarrFormat: 2,
	}, map[string]any{
		"_ARRAY_DIMENSIONS": []string{latVar},
		"units":             "degrees_north",
	}, map[string][]byte{"0": encodeFloat64(ds.Lat)}); err != nil {
		return err
	}
	if err := writeArray(dir, addDoc, lonVar, zarray{
		Shape: []int{nLon}, Chunks: []int{nLon}, DType: "<f8",
		Compressor: zlibCompressor, Order: "C", Filters: json.RawMessage("null"), ZarrFormat: 2,
	}, map[string]any{
		"_ARRAY_DIMENSIONS": []string{lonVar},
		"units":             "degrees_east",
	}, map[string][]byte{"0": encodeFloat64(ds.Lon)}); err != nil {
		return err
	}

	// The data array is chunked one time step per chunk, mirroring how the
	// per-day intermediates arrive.
	chunks := make(map[string][]byte, nT)
	for i, grid := range ds.Values {
		if len(grid) != nLat*nLon {
			return fmt.Errorf("time step %d has %d values for a %dx%d grid", i, len(grid), nLat, nLon)
		}
		chunks[fmt.Sprintf("%d.0.0", i)] = encodeFloat32(grid)
	}
	nodata := float64(ds.NoData)
	if err := writeArray(dir, addDoc, ds.Name, zarray{
		Shape: []int{nT, nLat, nLon}, Chunks: []int{1, nLat, nLon}, DType: "<f4",
		Compressor: zlibCompressor, FillValue: &nodata,
		Order: "C", Filters: json.RawMessage("null"), ZarrFormat: 2,
	}, map[string]any{
		"_ARRAY_DIMENSIONS": []string{timeVar, latVar, lonVar},
		"source_locations":  ds.Sources,
	}, chunks); err != nil {
		return err
	}

	meta := map[string]any{
		"zarr_consolidated_format": 1,
		"metadata":                 consolidated,
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode consolidated metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".zmetadata"), data, 0o644); err != nil {
		return fmt.Errorf("write consolidated metadata: %w", err)
	}
	return nil
}

func writeArray(dir string, addDoc func(string, any) error, name string, meta zarray, attrs map[string]any, chunks map[string][]byte) error {
	if err := addDoc(name+"/.zarray", meta); err != nil {
		return err
	}
	if err := addDoc(name+"/.zattrs", attrs); err != nil {
		return err
	}
	for key, raw := range chunks {
		compressed, err := deflate(raw)
		if err != nil {
			return fmt.Errorf("compress chunk %s/%s: %w", name, key, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name, key), compressed, 0o644); err != nil {
			return fmt.Errorf("write chunk %s/%s: %w", name, key, err)
		}
	}
	return nil
}

func deflate(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlibLevel)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeFloat32(values []float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func encodeFloat64(values []float64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func encodeInt64(values []int64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], uint64(v))
	}
	return buf
}
