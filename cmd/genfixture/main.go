// Command genfixture generates a local tree of synthetic daily PRISM archives
// laid out the way the PRISM FTP server lays them out. The tree can be served
// to the pipeline with --protocol file --root <dir>, keeping development runs
// and demos off the real PRISM server.
//
// Usage:
//
//	go run ./cmd/genfixture \
//	  -out /tmp/prism-fixture \
//	  -variable tmean \
//	  -year 2005 \
//	  -days 31
package main

import (
	"archive/zip"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/prism-etl/internal/domain"
	"github.com/couchcryptid/prism-etl/internal/raster"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "root directory for the fixture tree")
	variable := flag.String("variable", "tmean", "PRISM variable")
	year := flag.Int("year", 2005, "year of daily archives to generate")
	days := flag.Int("days", 31, "number of days, starting January 1")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	archiveDir := filepath.Join(*out, "daily", *variable, fmt.Sprint(*year))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return err
	}

	day := time.Date(*year, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < *days; i++ {
		stem := fmt.Sprintf("PRISM_%s_stable_4kmD2_%s_bil", *variable, day.Format("20060102"))
		if err := writeArchive(archiveDir, stem, day); err != nil {
			return fmt.Errorf("day %s: %w", day.Format("2006-01-02"), err)
		}
		day = day.AddDate(0, 0, 1)
	}

	log.Printf("wrote %d daily archives under %s", *days, archiveDir)
	return nil
}

// writeArchive builds one zipped BIL raster. The grid covers the western US
// at a coarse half-degree step with a smooth synthetic field, seasonal along
// time and sinusoidal in space, so consolidated output is easy to eyeball.
func writeArchive(dir, stem string, day time.Time) error {
	const (
		nCols = 28 // -126 to -112.5 at 0.5 degrees
		nRows = 26 // 44.5 down to 32 at 0.5 degrees
	)

	x := make([]float64, nCols)
	for i := range x {
		x[i] = -126 + 0.5*float64(i)
	}
	y := make([]float64, nRows)
	for j := range y {
		y[j] = 44.5 - 0.5*float64(j)
	}

	seasonal := 10 * math.Sin(2*math.Pi*float64(day.YearDay())/365)
	values := make([]float32, nRows*nCols)
	for j := 0; j < nRows; j++ {
		for i := 0; i < nCols; i++ {
			values[j*nCols+i] = float32(15 + seasonal + 5*math.Sin(x[i]/3)*math.Cos(y[j]/3))
		}
	}

	scratch, err := os.MkdirTemp("", "genfixture-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch) //nolint:errcheck // scratch dir

	frame := domain.RasterFrame{
		X:      x,
		Y:      y,
		Values: values,
		NoData: -9999,
		CRS:    "EPSG:4269",
	}
	if err := raster.Write(scratch, stem, frame); err != nil {
		return err
	}
	return zipDir(filepath.Join(dir, stem+".zip"), scratch)
}

func zipDir(zipPath, srcDir string) error {
	f, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(f)

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		w, err := zw.Create(entry.Name())
		if err != nil {
			return err
		}
		src, err := os.Open(filepath.Join(srcDir, entry.Name()))
		if err != nil {
			return err
		}
		_, err = io.Copy(w, src)
		src.Close() //nolint:errcheck // read side
		if err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}
