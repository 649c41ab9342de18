// Package domain models daily PRISM climate raster data.
//
// # Data Source
//
// PRISM (Parameter-elevation Regressions on Independent Slopes Model) daily
// grids are published by the PRISM Climate Group at Oregon State University
// and distributed as one Zip archive per variable per day, organized into
// annual directories:
//
//	/daily/<variable>/<year>/PRISM_<variable>_<stability>_<scale><version>_<YYYYMMDD>_bil.zip
//
// e.g. /daily/tmean/2005/PRISM_tmean_stable_4kmD2_20050615_bil.zip.
// The stability tag is "stable", "provisional", or "early"; the scale and
// version tags combine into a dataset identifier like "4kmD2".
//
// # Archive Contents
//
// Each archive bundles exactly one ESRI BIL raster (.bil) together with the
// sidecar files the format requires to be readable: a text header (.hdr), a
// projection description (.prj), and assorted statistics/metadata files. The
// sidecars must sit in the same directory as the .bil body, which is why the
// unpacker extracts every member rather than just the raster.
//
// # Filename Date Convention
//
// The acquisition date is embedded in the filename as the second-to-last
// underscore-delimited token of the stem, an 8-digit YYYYMMDD value:
//
//	PRISM_tmean_stable_4kmD2_20050615_bil.zip  →  2005-06-15
//
// See [TimeFromFilename].
//
// # Normalization
//
// PRISM grids arrive in geographic NAD83 (EPSG:4269) coordinates. [Normalize]
// optionally reprojects to a target CRS, clips to a bounding box, renames the
// spatial axes to the canonical lon/lat pair, and attaches a length-1 time
// coordinate parsed from the source filename. NAD83 and WGS84 differ by at
// most a couple of meters over the continental US, so callers may pass an
// empty target CRS to skip reprojection entirely.
//
// The default clip box is a generous rectangle over California. Clipping too
// close to a region of interest has caused problems downstream when applying
// population segment weights during census-tract aggregation, so the defaults
// err on the loose side.
package domain
