package raster

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/prism-etl/internal/domain"
)

// Projection well-known text for the CRSs Write can emit.
var wktByCRS = map[string]string{
	"EPSG:4269": `GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`,
	"EPSG:4326": `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`,
}

// Write emits frame as a 32-bit float BIL raster: <stem>.bil, <stem>.hdr,
// and, when the frame's CRS is known, <stem>.prj in dir. The axes must be
// regular grids since BIL encodes only the origin and cell size. Used by the
// fixture generator and the test suites.
func Write(dir, stem string, frame domain.RasterFrame) error {
	if len(frame.X) < 2 || len(frame.Y) < 2 {
		return fmt.Errorf("raster grid too small: %dx%d", len(frame.Y), len(frame.X))
	}
	if len(frame.Values) != len(frame.X)*len(frame.Y) {
		return fmt.Errorf("raster has %d values for a %dx%d grid", len(frame.Values), len(frame.Y), len(frame.X))
	}

	bodyPath := filepath.Join(dir, stem+".bil")
	body, err := os.Create(bodyPath)
	if err != nil {
		return fmt.Errorf("create raster body: %w", err)
	}
	w := bufio.NewWriter(body)
	if err := binary.Write(w, binary.LittleEndian, frame.Values); err != nil {
		body.Close() //nolint:errcheck // already failing
		return fmt.Errorf("write raster body: %w", err)
	}
	if err := w.Flush(); err != nil {
		body.Close() //nolint:errcheck // already failing
		return fmt.Errorf("flush raster body: %w", err)
	}
	if err := body.Close(); err != nil {
		return fmt.Errorf("close raster body: %w", err)
	}

	hdr := fmt.Sprintf(`BYTEORDER      I
LAYOUT         BIL
NROWS          %d
NCOLS          %d
NBANDS         1
NBITS          32
PIXELTYPE      FLOAT
ULXMAP         %.10f
ULYMAP         %.10f
XDIM           %.10f
YDIM           %.10f
NODATA         %g
`,
		len(frame.Y), len(frame.X),
		frame.X[0], frame.Y[0],
		frame.X[1]-frame.X[0], frame.Y[0]-frame.Y[1],
		frame.NoData,
	)
	if err := os.WriteFile(filepath.Join(dir, stem+".hdr"), []byte(hdr), 0o644); err != nil {
		return fmt.Errorf("write raster header: %w", err)
	}

	if wkt, ok := wktByCRS[frame.CRS]; ok {
		if err := os.WriteFile(filepath.Join(dir, stem+".prj"), []byte(wkt), 0o644); err != nil {
			return fmt.Errorf("write projection file: %w", err)
		}
	}
	return nil
}
