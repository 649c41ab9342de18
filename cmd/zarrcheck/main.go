// Command zarrcheck verifies the integrity of a consolidated store produced
// by prismetl: metadata documents parse, every chunk decompresses to the size
// its array metadata promises, and the time axis ascends strictly.
//
// Usage:
//
//	go run ./cmd/zarrcheck -store /data/tmean.zarr
package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zlib"
)

type zarray struct {
	Shape      []int  `json:"shape"`
	Chunks     []int  `json:"chunks"`
	DType      string `json:"dtype"`
	Compressor *struct {
		ID string `json:"id"`
	} `json:"compressor"`
}

func main() {
	store := flag.String("store", "", "path to the zarr store directory")
	flag.Parse()

	if *store == "" {
		flag.Usage()
		os.Exit(1)
	}
	if err := run(*store); err != nil {
		fmt.Fprintln(os.Stderr, "zarrcheck:", err)
		os.Exit(1)
	}
	fmt.Println("store OK")
}

func run(dir string) error {
	var group struct {
		ZarrFormat int `json:"zarr_format"`
	}
	if err := readJSON(filepath.Join(dir, ".zgroup"), &group); err != nil {
		return err
	}
	if group.ZarrFormat != 2 {
		return fmt.Errorf("unsupported zarr format %d", group.ZarrFormat)
	}
	if _, err := os.Stat(filepath.Join(dir, ".zmetadata")); err != nil {
		return fmt.Errorf("consolidated metadata: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	arrays := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := checkArray(dir, entry.Name()); err != nil {
			return fmt.Errorf("array %s: %w", entry.Name(), err)
		}
		arrays++
	}
	if arrays == 0 {
		return fmt.Errorf("store holds no arrays")
	}

	if err := checkTimeAxis(dir); err != nil {
		return err
	}
	fmt.Printf("checked %d arrays\n", arrays)
	return nil
}

// checkArray validates the array metadata and decompresses every chunk,
// comparing its decoded size against the chunk shape.
func checkArray(dir, name string) error {
	var meta zarray
	if err := readJSON(filepath.Join(dir, name, ".zarray"), &meta); err != nil {
		return err
	}
	if len(meta.Shape) != len(meta.Chunks) {
		return fmt.Errorf("shape rank %d does not match chunk rank %d", len(meta.Shape), len(meta.Chunks))
	}
	if meta.Compressor == nil || meta.Compressor.ID != "zlib" {
		return fmt.Errorf("unexpected compressor")
	}

	itemSize, err := dtypeSize(meta.DType)
	if err != nil {
		return err
	}
	chunkItems := 1
	for _, c := range meta.Chunks {
		chunkItems *= c
	}

	entries, err := os.ReadDir(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	chunkFiles := 0
	for _, entry := range entries {
		if entry.Name() == ".zarray" || entry.Name() == ".zattrs" {
			continue
		}
		raw, err := inflate(filepath.Join(dir, name, entry.Name()))
		if err != nil {
			return fmt.Errorf("chunk %s: %w", entry.Name(), err)
		}
		if len(raw) != chunkItems*itemSize {
			return fmt.Errorf("chunk %s decodes to %d bytes, want %d", entry.Name(), len(raw), chunkItems*itemSize)
		}
		chunkFiles++
	}
	if chunkFiles == 0 {
		return fmt.Errorf("no chunks")
	}
	return nil
}

// checkTimeAxis decodes the time coordinate and requires strictly ascending
// values.
func checkTimeAxis(dir string) error {
	raw, err := inflate(filepath.Join(dir, "time", "0"))
	if err != nil {
		return fmt.Errorf("time axis: %w", err)
	}
	if len(raw)%8 != 0 {
		return fmt.Errorf("time axis holds %d bytes, not 8-byte aligned", len(raw))
	}

	var prev int64
	for i := 0; i < len(raw); i += 8 {
		v := int64(binary.LittleEndian.Uint64(raw[i:]))
		if i > 0 && v <= prev {
			return fmt.Errorf("time axis not strictly ascending at step %d", i/8)
		}
		prev = v
	}
	fmt.Printf("time axis: %d steps, %s to %s\n",
		len(raw)/8,
		time.Unix(int64(binary.LittleEndian.Uint64(raw)), 0).UTC().Format("2006-01-02"),
		time.Unix(prev, 0).UTC().Format("2006-01-02"),
	)
	return nil
}

func dtypeSize(dtype string) (int, error) {
	switch dtype {
	case "<f4":
		return 4, nil
	case "<f8", "<i8":
		return 8, nil
	default:
		return 0, fmt.Errorf("unsupported dtype %q", dtype)
	}
}

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func inflate(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
