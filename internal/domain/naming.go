package domain

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// ArchiveGlob returns the remote glob pattern matching every daily archive for
// one variable and year, following the PRISM directory layout and naming
// convention. The date portion is wildcarded after the year prefix.
func ArchiveGlob(variable string, year int, stability, scale, version string) string {
	return fmt.Sprintf("/daily/%s/%d/PRISM_%s_%s_%s%s_%d*_bil.zip",
		variable, year, variable, stability, scale, version, year)
}

// TimeFromFilename extracts the acquisition date embedded in a PRISM filename:
// the second-to-last underscore-delimited token of the stem, parsed as
// YYYYMMDD in UTC. Works on both archive and raster names, e.g.
// PRISM_tmean_stable_4kmD2_20050615_bil.zip and
// PRISM_tmean_stable_4kmD2_20050615_bil.bil.
func TimeFromFilename(name string) (time.Time, error) {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	stem := strings.TrimSuffix(base, path.Ext(base))
	parts := strings.Split(stem, "_")
	if len(parts) < 2 {
		return time.Time{}, &DateParseError{Filename: base, Err: errors.New("too few underscore-delimited tokens")}
	}
	token := parts[len(parts)-2]
	t, err := time.ParseInLocation("20060102", token, time.UTC)
	if err != nil {
		return time.Time{}, &DateParseError{Filename: base, Err: err}
	}
	return t, nil
}
