// Package store persists pipeline output: per-day intermediate NetCDF files
// in the run's scratch directory, and the final consolidated Zarr store.
package store

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"

	"github.com/couchcryptid/prism-etl/internal/domain"
)

// Coordinate variable names in intermediate files and the consolidated store.
const (
	timeVar = "time"
	latVar  = "lat"
	lonVar  = "lon"
)

// Attribute names on the data variable.
const (
	noDataAttr = "nodata"
	sourceAttr = "source_location"
)

// WriteIntermediate persists one normalized frame as a self-describing NetCDF
// file. Time is stored as Unix seconds so the combine step can sort frames
// without re-parsing filenames; the missing-value sentinel and the source
// archive ride along as attributes on the data variable.
func WriteIntermediate(path string, frame domain.NormalizedFrame) error {
	cw, err := cdf.OpenWriter(path)
	if err != nil {
		return fmt.Errorf("create intermediate file %s: %w", filepath.Base(path), err)
	}

	dataAttrs, err := util.NewOrderedMap(
		[]string{noDataAttr, sourceAttr},
		map[string]interface{}{
			noDataAttr: frame.NoData,
			sourceAttr: frame.SourceLocation,
		})
	if err != nil {
		cw.Close() //nolint:errcheck // already failing
		return fmt.Errorf("build data attributes: %w", err)
	}

	vars := []struct {
		name string
		v    api.Variable
	}{
		{timeVar, api.Variable{
			Values:     []float64{float64(frame.Time.Unix())},
			Dimensions: []string{timeVar},
		}},
		{latVar, api.Variable{
			Values:     frame.Lat,
			Dimensions: []string{latVar},
		}},
		{lonVar, api.Variable{
			Values:     frame.Lon,
			Dimensions: []string{lonVar},
		}},
		{frame.Name, api.Variable{
			Values:     reshape(frame),
			Dimensions: []string{timeVar, latVar, lonVar},
			Attributes: dataAttrs,
		}},
	}
	for _, v := range vars {
		if err := cw.AddVar(v.name, v.v); err != nil {
			cw.Close() //nolint:errcheck // already failing
			return fmt.Errorf("write variable %s: %w", v.name, err)
		}
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("close intermediate file %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ReadIntermediate loads a frame previously written by WriteIntermediate.
// The data variable is whichever variable is not a coordinate; its name was
// the PRISM variable at write time.
func ReadIntermediate(path string) (domain.NormalizedFrame, error) {
	g, err := netcdf.Open(path)
	if err != nil {
		return domain.NormalizedFrame{}, fmt.Errorf("open intermediate file %s: %w", filepath.Base(path), err)
	}
	defer g.Close()

	dataName := ""
	for _, name := range g.ListVariables() {
		if name != timeVar && name != latVar && name != lonVar {
			dataName = name
			break
		}
	}
	if dataName == "" {
		return domain.NormalizedFrame{}, fmt.Errorf("intermediate file %s has no data variable", filepath.Base(path))
	}

	times, err := float64Values(g, timeVar)
	if err != nil {
		return domain.NormalizedFrame{}, err
	}
	if len(times) != 1 {
		return domain.NormalizedFrame{}, fmt.Errorf("intermediate file %s has %d time values, expected 1", filepath.Base(path), len(times))
	}
	lat, err := float64Values(g, latVar)
	if err != nil {
		return domain.NormalizedFrame{}, err
	}
	lon, err := float64Values(g, lonVar)
	if err != nil {
		return domain.NormalizedFrame{}, err
	}

	v, err := g.GetVariable(dataName)
	if err != nil {
		return domain.NormalizedFrame{}, fmt.Errorf("read variable %s: %w", dataName, err)
	}
	grid, ok := v.Values.([][][]float32)
	if !ok || len(grid) != 1 {
		return domain.NormalizedFrame{}, fmt.Errorf("variable %s is not a single-time float grid", dataName)
	}

	values := make([]float32, 0, len(lat)*len(lon))
	for _, row := range grid[0] {
		values = append(values, row...)
	}

	frame := domain.NormalizedFrame{
		Name:   dataName,
		Time:   time.Unix(int64(times[0]), 0).UTC(),
		Lat:    lat,
		Lon:    lon,
		Values: values,
	}
	if v.Attributes != nil {
		if raw, ok := v.Attributes.Get(noDataAttr); ok {
			if noData, ok := raw.(float32); ok {
				frame.NoData = noData
			}
		}
		if raw, ok := v.Attributes.Get(sourceAttr); ok {
			if source, ok := raw.(string); ok {
				frame.SourceLocation = source
			}
		}
	}
	return frame, nil
}

func float64Values(g api.Group, name string) ([]float64, error) {
	v, err := g.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("read variable %s: %w", name, err)
	}
	values, ok := v.Values.([]float64)
	if !ok {
		return nil, fmt.Errorf("variable %s is not a float64 vector", name)
	}
	return values, nil
}

// reshape converts the frame's flat row-major values into the nested
// [time][lat][lon] form the CDF writer derives dimension lengths from.
func reshape(frame domain.NormalizedFrame) [][][]float32 {
	nLon := len(frame.Lon)
	rows := make([][]float32, len(frame.Lat))
	for j := range rows {
		rows[j] = frame.Values[j*nLon : (j+1)*nLon]
	}
	return [][][]float32{rows}
}
