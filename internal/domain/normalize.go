package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wroge/wgs84"
)

// Normalize converts a decoded raster into canonical form: optional
// reprojection to targetCRS, inclusive clip to bounds, spatial axes renamed to
// lon/lat, CRS metadata dropped, and a length-1 time coordinate parsed from
// the source filename. Pure function over its inputs; no I/O.
//
// Pass an empty targetCRS to skip reprojection. Skipping is the right call
// when the source and target systems are close enough that transformation
// error exceeds any practical benefit, e.g. NAD83 versus WGS84.
func Normalize(frame RasterFrame, bounds Bounds, targetCRS string) (NormalizedFrame, error) {
	t, err := TimeFromFilename(frame.SourceLocation)
	if err != nil {
		return NormalizedFrame{}, err
	}

	x, y := frame.X, frame.Y
	if targetCRS != "" && !sameCRS(frame.CRS, targetCRS) {
		x, y, err = reprojectAxes(x, y, frame.CRS, targetCRS)
		if err != nil {
			return NormalizedFrame{}, err
		}
	}

	colLo, colHi, okX := indexRange(x, bounds.MinLon, bounds.MaxLon)
	rowLo, rowHi, okY := indexRange(y, bounds.MinLat, bounds.MaxLat)
	if !okX || !okY {
		return NormalizedFrame{}, fmt.Errorf("clip box [%g,%g]x[%g,%g] does not intersect grid",
			bounds.MinLon, bounds.MaxLon, bounds.MinLat, bounds.MaxLat)
	}

	nCols := colHi - colLo + 1
	nRows := rowHi - rowLo + 1
	lon := append([]float64(nil), x[colLo:colHi+1]...)
	lat := append([]float64(nil), y[rowLo:rowHi+1]...)
	values := make([]float32, 0, nRows*nCols)
	for row := rowLo; row <= rowHi; row++ {
		offset := row * len(frame.X)
		values = append(values, frame.Values[offset+colLo:offset+colHi+1]...)
	}

	return NormalizedFrame{
		Name:           frame.Name,
		Time:           t,
		Lon:            lon,
		Lat:            lat,
		Values:         values,
		NoData:         frame.NoData,
		SourceLocation: frame.SourceLocation,
	}, nil
}

// indexRange returns the inclusive index span of vs whose values fall within
// [lo, hi]. Works for ascending and descending axes since the in-range indices
// of a monotonic axis are contiguous.
func indexRange(vs []float64, lo, hi float64) (first, last int, ok bool) {
	first, last = -1, -1
	for i, v := range vs {
		if v < lo || v > hi {
			continue
		}
		if first == -1 {
			first = i
		}
		last = i
	}
	return first, last, first != -1
}

// EPSGCode parses a CRS identifier of the form "EPSG:4326" or a bare numeric
// code into its integer EPSG code.
func EPSGCode(crs string) (int, error) {
	s := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(crs)), "EPSG:")
	code, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid CRS identifier %q: %w", crs, err)
	}
	return code, nil
}

func sameCRS(a, b string) bool {
	ca, errA := EPSGCode(a)
	cb, errB := EPSGCode(b)
	return errA == nil && errB == nil && ca == cb
}

// reprojectAxes transforms the coordinate axes from one EPSG system to
// another. Each axis is transformed independently, holding the other axis at
// its midpoint. That separable treatment is exact only when the transform
// does not rotate or shear the grid, which holds for the
// geographic-to-geographic datum shifts (NAD83 to WGS84) this pipeline
// performs; grid values are not resampled.
func reprojectAxes(x, y []float64, fromCRS, toCRS string) ([]float64, []float64, error) {
	fromCode, err := EPSGCode(fromCRS)
	if err != nil {
		return nil, nil, fmt.Errorf("source CRS: %w", err)
	}
	toCode, err := EPSGCode(toCRS)
	if err != nil {
		return nil, nil, fmt.Errorf("target CRS: %w", err)
	}

	epsg := wgs84.EPSG()
	from := epsg.Code(fromCode)
	if from == nil {
		return nil, nil, fmt.Errorf("unsupported source CRS EPSG:%d", fromCode)
	}
	to := epsg.Code(toCode)
	if to == nil {
		return nil, nil, fmt.Errorf("unsupported target CRS EPSG:%d", toCode)
	}

	transform := wgs84.Transform(from, to)
	midX := x[len(x)/2]
	midY := y[len(y)/2]

	outX := make([]float64, len(x))
	for i, v := range x {
		outX[i], _, _ = transform(v, midY, 0)
	}
	outY := make([]float64, len(y))
	for j, v := range y {
		_, outY[j], _ = transform(midX, v, 0)
	}
	return outX, outY, nil
}
