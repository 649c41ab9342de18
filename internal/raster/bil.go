// Package raster reads and writes ESRI BIL (band-interleaved-by-line)
// rasters, the format PRISM distributes its daily grids in. A BIL raster is
// three sibling files: the binary grid body (.bil), a text header describing
// its layout (.hdr), and a projection description (.prj).
package raster

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/prism-etl/internal/domain"
)

// header holds the .hdr fields this decoder understands. PRISM grids are
// single-band 32-bit float with -9999 as the missing value.
type header struct {
	nRows     int
	nCols     int
	nBands    int
	nBits     int
	pixelType string // FLOAT or SIGNEDINT
	byteOrder binary.ByteOrder
	ulxMap    float64 // x of the center of the upper-left cell
	ulyMap    float64 // y of the center of the upper-left cell
	xDim      float64
	yDim      float64
	noData    float64
}

// Decode reads the raster at path into a frame with populated coordinate
// axes and CRS. The sibling .hdr must exist; a missing or unrecognized .prj
// leaves the CRS empty.
func Decode(path string) (domain.RasterFrame, error) {
	hdr, err := readHeader(sidecarPath(path, ".hdr"))
	if err != nil {
		return domain.RasterFrame{}, err
	}

	values, err := readBody(path, hdr)
	if err != nil {
		return domain.RasterFrame{}, err
	}

	x := make([]float64, hdr.nCols)
	for i := range x {
		x[i] = hdr.ulxMap + float64(i)*hdr.xDim
	}
	y := make([]float64, hdr.nRows)
	for j := range y {
		y[j] = hdr.ulyMap - float64(j)*hdr.yDim
	}

	crs, err := readCRS(sidecarPath(path, ".prj"))
	if err != nil {
		return domain.RasterFrame{}, err
	}

	return domain.RasterFrame{
		X:      x,
		Y:      y,
		Values: values,
		NoData: float32(hdr.noData),
		CRS:    crs,
	}, nil
}

func sidecarPath(rasterPath, ext string) string {
	return strings.TrimSuffix(rasterPath, filepath.Ext(rasterPath)) + ext
}

func readHeader(path string) (header, error) {
	f, err := os.Open(path)
	if err != nil {
		return header{}, fmt.Errorf("open raster header: %w", err)
	}
	defer f.Close()

	fields := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}
		fields[strings.ToUpper(parts[0])] = parts[1]
	}
	if err := scanner.Err(); err != nil {
		return header{}, fmt.Errorf("read raster header: %w", err)
	}

	hdr := header{
		nBands:    1,
		nBits:     8,
		pixelType: "UNSIGNEDINT",
		byteOrder: binary.LittleEndian,
		yDim:      math.NaN(),
		noData:    math.NaN(),
	}

	var parseErr error
	intField := func(key string, dst *int) {
		if v, ok := fields[key]; ok && parseErr == nil {
			*dst, parseErr = strconv.Atoi(v)
		}
	}
	floatField := func(key string, dst *float64) {
		if v, ok := fields[key]; ok && parseErr == nil {
			*dst, parseErr = strconv.ParseFloat(v, 64)
		}
	}

	intField("NROWS", &hdr.nRows)
	intField("NCOLS", &hdr.nCols)
	intField("NBANDS", &hdr.nBands)
	intField("NBITS", &hdr.nBits)
	floatField("ULXMAP", &hdr.ulxMap)
	floatField("ULYMAP", &hdr.ulyMap)
	floatField("XDIM", &hdr.xDim)
	floatField("YDIM", &hdr.yDim)
	floatField("NODATA", &hdr.noData)
	if parseErr != nil {
		return header{}, fmt.Errorf("parse raster header %s: %w", filepath.Base(path), parseErr)
	}

	if v, ok := fields["PIXELTYPE"]; ok {
		hdr.pixelType = strings.ToUpper(v)
	}
	if v, ok := fields["BYTEORDER"]; ok && strings.EqualFold(v, "M") {
		hdr.byteOrder = binary.BigEndian
	}
	if v, ok := fields["LAYOUT"]; ok && !strings.EqualFold(v, "BIL") {
		return header{}, fmt.Errorf("unsupported raster layout %q", v)
	}

	if hdr.nRows <= 0 || hdr.nCols <= 0 {
		return header{}, fmt.Errorf("raster header %s: missing or invalid NROWS/NCOLS", filepath.Base(path))
	}
	if math.IsNaN(hdr.yDim) {
		hdr.yDim = hdr.xDim
	}
	if math.IsNaN(hdr.noData) {
		hdr.noData = -9999
	}
	return hdr, nil
}

func readBody(path string, hdr header) ([]float32, error) {
	if hdr.nBands != 1 {
		return nil, fmt.Errorf("raster %s has %d bands, expected a single band", filepath.Base(path), hdr.nBands)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raster body: %w", err)
	}
	defer f.Close()

	n := hdr.nRows * hdr.nCols
	r := bufio.NewReader(f)

	switch {
	case hdr.nBits == 32 && hdr.pixelType == "FLOAT":
		values := make([]float32, n)
		if err := binary.Read(r, hdr.byteOrder, values); err != nil {
			return nil, fmt.Errorf("read raster body %s: %w", filepath.Base(path), err)
		}
		return values, nil
	case hdr.nBits == 16 && hdr.pixelType == "SIGNEDINT":
		raw := make([]int16, n)
		if err := binary.Read(r, hdr.byteOrder, raw); err != nil {
			return nil, fmt.Errorf("read raster body %s: %w", filepath.Base(path), err)
		}
		values := make([]float32, n)
		for i, v := range raw {
			values[i] = float32(v)
		}
		return values, nil
	default:
		return nil, fmt.Errorf("unsupported raster encoding: %d-bit %s", hdr.nBits, hdr.pixelType)
	}
}

// readCRS sniffs the datum out of the .prj well-known text. PRISM ships
// geographic NAD83; WGS84 is recognized for completeness. An absent or
// unfamiliar projection file yields an empty CRS rather than an error.
func readCRS(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read projection file: %w", err)
	}

	wkt := strings.ToUpper(string(data))
	switch {
	case strings.Contains(wkt, "NORTH_AMERICAN_1983") || strings.Contains(wkt, "NAD83") || strings.Contains(wkt, "NAD_1983"):
		return "EPSG:4269", nil
	case strings.Contains(wkt, "WGS_1984") || strings.Contains(wkt, "WGS84"):
		return "EPSG:4326", nil
	default:
		return "", nil
	}
}
