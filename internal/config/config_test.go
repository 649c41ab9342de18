package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/prism-etl/internal/domain"
)

func baseArgs() []string {
	return []string{
		"--first-year", "2005",
		"--last-year", "2006",
		"--variable", "tmean",
		"--out", "/data/tmean.zarr",
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(baseArgs())
	require.NoError(t, err)

	assert.Equal(t, "D2", cfg.Version)
	assert.Equal(t, "4km", cfg.Scale)
	assert.Equal(t, "stable", cfg.Stability)
	assert.Equal(t, "ftp", cfg.Protocol)
	assert.Equal(t, "ftp.prism.oregonstate.edu", cfg.Host)
	assert.Equal(t, "EPSG:4326", cfg.TargetCRS)
	assert.Equal(t, 30*time.Second, cfg.RemoteTimeout)
	assert.Equal(t, domain.Bounds{MinLon: -125, MinLat: 32, MaxLon: -114, MaxLat: 43}, cfg.ClipBox)
	assert.False(t, cfg.SkipFailedDays)
	assert.Equal(t, 4, cfg.CombineWorkers)
	assert.Equal(t, "prism-ingest-events", cfg.KafkaTopic)
	assert.False(t, cfg.EventsEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	args := append(baseArgs(),
		"--clipbox", "minlon=-100,minlat=30,maxlon=-90,maxlat=40",
		"--crs", "none",
		"--skip-failed-days",
		"--stability", "provisional",
	)
	cfg, err := Load(args)
	require.NoError(t, err)

	assert.Equal(t, domain.Bounds{MinLon: -100, MinLat: 30, MaxLon: -90, MaxLat: 40}, cfg.ClipBox)
	assert.Empty(t, cfg.TargetCRS, "crs none disables reprojection")
	assert.True(t, cfg.SkipFailedDays)
	assert.Equal(t, "provisional", cfg.Stability)
}

func TestLoad_Years(t *testing.T) {
	cfg, err := Load(baseArgs())
	require.NoError(t, err)
	assert.Equal(t, []int{2005, 2006}, cfg.Years())
}

func TestLoad_KafkaFromEnvironment(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	t.Setenv("KAFKA_TOPIC", "climate-events")

	cfg, err := Load(baseArgs())
	require.NoError(t, err)

	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "climate-events", cfg.KafkaTopic)
	assert.True(t, cfg.EventsEnabled)
}

func TestLoad_EventsDisabledExplicitly(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker-1:9092")
	t.Setenv("EVENTS_ENABLED", "false")

	cfg, err := Load(baseArgs())
	require.NoError(t, err)
	assert.False(t, cfg.EventsEnabled)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing years",
			args:    []string{"--variable", "tmean", "--out", "/data"},
			wantErr: "--first-year",
		},
		{
			name: "inverted years",
			args: []string{"--first-year", "2010", "--last-year", "2005", "--variable", "tmean", "--out", "/data"},

			wantErr: "precedes",
		},
		{
			name:    "missing variable",
			args:    []string{"--first-year", "2005", "--last-year", "2005", "--out", "/data"},
			wantErr: "--variable",
		},
		{
			name:    "missing output",
			args:    []string{"--first-year", "2005", "--last-year", "2005", "--variable", "tmean"},
			wantErr: "--out",
		},
		{
			name:    "unknown protocol",
			args:    append(baseArgs(), "--protocol", "gopher"),
			wantErr: "unknown protocol",
		},
		{
			name:    "s3 without bucket",
			args:    append(baseArgs(), "--protocol", "s3"),
			wantErr: "S3_BUCKET",
		},
		{
			name:    "file without root",
			args:    append(baseArgs(), "--protocol", "file"),
			wantErr: "--root",
		},
		{
			name:    "clipbox missing key",
			args:    append(baseArgs(), "--clipbox", "minlon=-125,minlat=32,maxlon=-114"),
			wantErr: "missing maxlat",
		},
		{
			name:    "clipbox inverted",
			args:    append(baseArgs(), "--clipbox", "minlon=-114,minlat=32,maxlon=-125,maxlat=43"),
			wantErr: "empty",
		},
		{
			name:    "events enabled without brokers",
			args:    baseArgs(),
			env:     map[string]string{"EVENTS_ENABLED": "true"},
			wantErr: "KAFKA_BROKERS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
