package domain

import "time"

// Bounds is an inclusive geographic clip box in decimal degrees.
type Bounds struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// RasterFrame is one decoded daily grid in its source coordinate system.
// Values are stored row-major with rows running north to south, matching the
// BIL file layout, so X ascends and Y descends.
type RasterFrame struct {
	Name   string
	X      []float64 // column centers in source CRS units
	Y      []float64 // row centers in source CRS units
	Values []float32 // len(Y)*len(X), row-major
	NoData float32
	CRS    string // "EPSG:4269" etc.; empty when the .prj was absent or unrecognized

	// SourceLocation is the remote archive path this frame was decoded from.
	// It carries provenance and the embedded acquisition date.
	SourceLocation string
}

// At returns the value at the given row (Y index) and column (X index).
func (f RasterFrame) At(row, col int) float32 {
	return f.Values[row*len(f.X)+col]
}

// NormalizedFrame is a RasterFrame after normalization: reprojected, clipped,
// axes renamed to lon/lat, and stamped with a single time value. It carries
// no CRS; downstream consumers treat the coordinates as plain lon/lat.
type NormalizedFrame struct {
	Name           string
	Time           time.Time
	Lon            []float64 // ascending
	Lat            []float64 // descending, north to south
	Values         []float32 // len(Lat)*len(Lon), row-major
	NoData         float32
	SourceLocation string
}

// At returns the value at the given row (Lat index) and column (Lon index).
func (f NormalizedFrame) At(row, col int) float32 {
	return f.Values[row*len(f.Lon)+col]
}
