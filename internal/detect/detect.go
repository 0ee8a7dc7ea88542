// Package detect identifies the vendor layout of an output directory and
// dispatches to the matching reader.
package detect

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spatialdata-io/server/internal/readers/merscope"
	"github.com/spatialdata-io/server/internal/readers/visium"
	"github.com/spatialdata-io/server/internal/spatialdata"
)

// ErrUnknownLayout is returned when no reader recognises a directory.
var ErrUnknownLayout = errors.New("unknown dataset layout")

// Kind names a reader.
type Kind string

const (
	Auto     Kind = "auto"
	MERSCOPE Kind = "merscope"
	Visium   Kind = "visium"
)

// ParseKind accepts "merscope", "visium", "auto" and the empty string (auto).
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", Auto:
		return Auto, nil
	case MERSCOPE, Visium:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown reader %q", s)
}

// Options carries the options of every reader; only the selected reader's
// fields are used.
type Options struct {
	MERSCOPE merscope.Options
	Visium   visium.Options
}

// DefaultOptions returns the reader defaults.
func DefaultOptions() Options {
	return Options{MERSCOPE: merscope.DefaultOptions()}
}

// Detect inspects path and returns the reader that can open it.
func Detect(path string) (Kind, error) {
	if isDir(path) && isFile(filepath.Join(path, merscope.TranscriptsFile)) && isDir(filepath.Join(path, merscope.ImagesDir)) {
		return MERSCOPE, nil
	}
	if isFile(filepath.Join(path, visium.SpatialDir, visium.ScaleFactorsFile)) {
		matches, _ := filepath.Glob(filepath.Join(path, "*.h5"))
		if len(matches) > 0 {
			return Visium, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownLayout, path)
}

// Open reads path with the reader for kind, detecting it first for Auto.
func Open(kind Kind, path string, opts Options) (*spatialdata.Dataset, Kind, error) {
	if kind == Auto || kind == "" {
		k, err := Detect(path)
		if err != nil {
			return nil, "", err
		}
		kind = k
	}

	switch kind {
	case MERSCOPE:
		ds, err := merscope.Read(path, opts.MERSCOPE)
		return ds, kind, err
	case Visium:
		ds, err := visium.Read(path, opts.Visium)
		return ds, kind, err
	}
	return nil, "", fmt.Errorf("%w: reader %q", ErrUnknownLayout, kind)
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
