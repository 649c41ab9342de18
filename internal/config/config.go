// Package config collects pipeline settings from command-line flags, with
// environment variables for the deployment-level knobs that rarely change
// between runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/couchcryptid/prism-etl/internal/domain"
	"github.com/couchcryptid/prism-etl/internal/remote"
)

// Defaults mirror the PRISM daily archive naming scheme and the project's
// standard California clip box.
const (
	defaultHost    = "ftp.prism.oregonstate.edu"
	defaultClipBox = "minlon=-125.0,minlat=32.0,maxlon=-114.0,maxlat=43.0"
)

// Config holds everything one pipeline run needs.
type Config struct {
	FirstYear int
	LastYear  int
	Variable  string
	Output    string

	Version   string
	Scale     string
	Stability string

	ClipBox   domain.Bounds
	TargetCRS string // empty disables reprojection

	Protocol      string
	Host          string
	Root          string
	RemoteTimeout time.Duration
	S3Bucket      string
	S3Region      string
	S3Endpoint    string

	MetricsAddr     string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	SkipFailedDays bool
	CombineWorkers int

	KafkaBrokers  []string
	KafkaTopic    string
	EventsEnabled bool
}

// Load parses args (excluding the program name) and reads the deployment
// environment, applying defaults where unset.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("prismetl", pflag.ContinueOnError)

	cfg := &Config{}
	fs.IntVar(&cfg.FirstYear, "first-year", 0, "first year of daily data to ingest")
	fs.IntVar(&cfg.LastYear, "last-year", 0, "last year of daily data to ingest, inclusive")
	fs.StringVar(&cfg.Variable, "variable", "", "PRISM variable, e.g. tmean, ppt, tmax")
	fs.StringVar(&cfg.Output, "out", "", "directory for the consolidated zarr store")

	fs.StringVar(&cfg.Version, "version", "D2", "PRISM dataset version token")
	fs.StringVar(&cfg.Scale, "scale", "4km", "PRISM grid scale token")
	fs.StringVar(&cfg.Stability, "stability", "stable", "PRISM stability token")

	clipBox := fs.String("clipbox", defaultClipBox, "inclusive clip box as minlon=..,minlat=..,maxlon=..,maxlat=..")
	crs := fs.String("crs", "EPSG:4326", "target CRS for reprojection, \"none\" to keep the source grid")

	fs.StringVar(&cfg.Protocol, "protocol", remote.ProtocolFTP, "remote store protocol: ftp, s3, or file")
	fs.StringVar(&cfg.Host, "host", defaultHost, "FTP host serving the daily archives")
	fs.StringVar(&cfg.Root, "root", "", "local directory serving as the archive root (file protocol)")
	fs.DurationVar(&cfg.RemoteTimeout, "remote-timeout", 30*time.Second, "dial timeout for the remote store")

	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "listen address for health and metrics endpoints, empty disables")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", "text", "log format: text or json")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for draining the metrics server")

	fs.BoolVar(&cfg.SkipFailedDays, "skip-failed-days", false, "log and skip days that fail instead of aborting the run")
	fs.IntVar(&cfg.CombineWorkers, "combine-workers", 4, "parallel decoders in the combine step")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	bounds, err := parseClipBox(*clipBox)
	if err != nil {
		return nil, err
	}
	cfg.ClipBox = bounds

	cfg.TargetCRS = strings.TrimSpace(*crs)
	if strings.EqualFold(cfg.TargetCRS, "none") {
		cfg.TargetCRS = ""
	}

	cfg.S3Bucket = os.Getenv("S3_BUCKET")
	cfg.S3Region = envOrDefault("S3_REGION", "us-east-1")
	cfg.S3Endpoint = os.Getenv("S3_ENDPOINT")

	cfg.KafkaBrokers = splitBrokers(os.Getenv("KAFKA_BROKERS"))
	cfg.KafkaTopic = envOrDefault("KAFKA_TOPIC", "prism-ingest-events")
	cfg.EventsEnabled = len(cfg.KafkaBrokers) > 0
	if v := os.Getenv("EVENTS_ENABLED"); v != "" {
		cfg.EventsEnabled = v == "true"
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.FirstYear == 0 || c.LastYear == 0 {
		return errors.New("--first-year and --last-year are required")
	}
	if c.LastYear < c.FirstYear {
		return fmt.Errorf("--last-year %d precedes --first-year %d", c.LastYear, c.FirstYear)
	}
	if c.Variable == "" {
		return errors.New("--variable is required")
	}
	if c.Output == "" {
		return errors.New("--out is required")
	}
	switch c.Protocol {
	case remote.ProtocolFTP:
		if c.Host == "" {
			return errors.New("--host is required for the ftp protocol")
		}
	case remote.ProtocolS3:
		if c.S3Bucket == "" {
			return errors.New("S3_BUCKET is required for the s3 protocol")
		}
	case remote.ProtocolLocal:
		if c.Root == "" {
			return errors.New("--root is required for the file protocol")
		}
	default:
		return fmt.Errorf("unknown protocol %q", c.Protocol)
	}
	if c.EventsEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("EVENTS_ENABLED is true but KAFKA_BROKERS is not set")
	}
	return nil
}

// Years expands the inclusive year range.
func (c *Config) Years() []int {
	years := make([]int, 0, c.LastYear-c.FirstYear+1)
	for y := c.FirstYear; y <= c.LastYear; y++ {
		years = append(years, y)
	}
	return years
}

// RemoteConfig maps the resolved settings onto the remote store factory.
func (c *Config) RemoteConfig() remote.Config {
	return remote.Config{
		Protocol: c.Protocol,
		Host:     c.Host,
		Timeout:  c.RemoteTimeout,
		Bucket:   c.S3Bucket,
		Region:   c.S3Region,
		Endpoint: c.S3Endpoint,
		Root:     c.Root,
	}
}

// parseClipBox parses "minlon=..,minlat=..,maxlon=..,maxlat=..". All four
// keys are required.
func parseClipBox(s string) (domain.Bounds, error) {
	fields := map[string]*float64{}
	var b domain.Bounds
	fields["minlon"] = &b.MinLon
	fields["minlat"] = &b.MinLat
	fields["maxlon"] = &b.MaxLon
	fields["maxlat"] = &b.MaxLat

	seen := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return domain.Bounds{}, fmt.Errorf("bad clipbox component %q", part)
		}
		dst, known := fields[strings.ToLower(key)]
		if !known {
			return domain.Bounds{}, fmt.Errorf("unknown clipbox key %q", key)
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return domain.Bounds{}, fmt.Errorf("bad clipbox value %q: %w", part, err)
		}
		*dst = f
		seen[strings.ToLower(key)] = true
	}
	for key := range fields {
		if !seen[key] {
			return domain.Bounds{}, fmt.Errorf("clipbox is missing %s", key)
		}
	}
	if b.MaxLon <= b.MinLon || b.MaxLat <= b.MinLat {
		return domain.Bounds{}, fmt.Errorf("clipbox is empty: %s", s)
	}
	return b, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
