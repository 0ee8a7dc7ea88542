package merscope

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrConfig marks an invalid reader configuration.
var ErrConfig = errors.New("configuration error")

// ConfigError describes an invalid VPT configuration.
type ConfigError struct {
	Msg string
	// Candidates lists the files that were tried, if any.
	Candidates []string
}

func (e *ConfigError) Error() string {
	if len(e.Candidates) == 0 {
		return e.Msg
	}
	return e.Msg + ": " + strings.Join(e.Candidates, ", ")
}

// Unwrap lets errors.Is match ErrConfig.
func (e *ConfigError) Unwrap() error { return ErrConfig }

// Files are the three inputs that VPT can override.
type Files struct {
	Counts       string
	CellMetadata string
	Boundaries   string
}

type vptKind int

const (
	vptDefault vptKind = iota
	vptDirectory
	vptFiles
)

// VPTOutputs selects where counts, metadata and boundaries are read from.
// The zero value is the default layout.
type VPTOutputs struct {
	kind  vptKind
	dir   string
	files Files
}

// DefaultLayout reads the three files from the MERSCOPE root.
func DefaultLayout() VPTOutputs { return VPTOutputs{kind: vptDefault} }

// VPTDirectory reads the three files from a VPT output directory.
func VPTDirectory(dir string) VPTOutputs { return VPTOutputs{kind: vptDirectory, dir: dir} }

// VPTFiles uses the given paths verbatim.
func VPTFiles(files Files) VPTOutputs { return VPTOutputs{kind: vptFiles, files: files} }

func (v VPTOutputs) String() string {
	switch v.kind {
	case vptDirectory:
		return "directory " + v.dir
	case vptFiles:
		return fmt.Sprintf("files %+v", v.files)
	default:
		return "default layout"
	}
}

// ParseVPTOutputs converts a loosely typed value (YAML or JSON) into VPTOutputs:
// nil is the default layout, a string is a directory and a mapping must hold
// the three VPT keys.
func ParseVPTOutputs(v interface{}) (VPTOutputs, error) {
	switch t := v.(type) {
	case nil:
		return DefaultLayout(), nil
	case string:
		if t == "" {
			return DefaultLayout(), nil
		}
		return VPTDirectory(t), nil
	case map[string]string:
		return vptFromMapping(func(k string) (interface{}, bool) {
			s, ok := t[k]
			return s, ok
		})
	case map[string]interface{}:
		return vptFromMapping(func(k string) (interface{}, bool) {
			s, ok := t[k]
			return s, ok
		})
	default:
		return VPTOutputs{}, &ConfigError{
			Msg: fmt.Sprintf("vpt_outputs has to be either empty, a directory path or a mapping; found type %T", v),
		}
	}
}

func vptFromMapping(get func(string) (interface{}, bool)) (VPTOutputs, error) {
	var out [3]string
	for i, key := range []string{VPTNameCounts, VPTNameObs, VPTNameBoundaries} {
		raw, ok := get(key)
		if !ok {
			return VPTOutputs{}, &ConfigError{Msg: fmt.Sprintf("vpt_outputs mapping is missing key %q", key)}
		}
		s, ok := raw.(string)
		if !ok {
			return VPTOutputs{}, &ConfigError{Msg: fmt.Sprintf("vpt_outputs[%q] must be a path, found type %T", key, raw)}
		}
		out[i] = s
	}
	return VPTFiles(Files{Counts: out[0], CellMetadata: out[1], Boundaries: out[2]}), nil
}

// ResolvePaths returns the counts, metadata and boundary paths. Only the
// directory form checks existence, trying the cellpose then the watershed
// boundary file.
func ResolvePaths(root string, vpt VPTOutputs) (Files, error) {
	switch vpt.kind {
	case vptDirectory:
		candidates := []string{
			filepath.Join(vpt.dir, CellposeBoundaries),
			filepath.Join(vpt.dir, WatershedBoundaries),
		}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				return Files{
					Counts:       filepath.Join(vpt.dir, CountsFile),
					CellMetadata: filepath.Join(vpt.dir, CellMetadataFile),
					Boundaries:   c,
				}, nil
			}
		}
		return Files{}, &ConfigError{
			Msg:        "boundary file not found, expected one of",
			Candidates: candidates,
		}
	case vptFiles:
		return vpt.files, nil
	default:
		return Files{
			Counts:       filepath.Join(root, CountsFile),
			CellMetadata: filepath.Join(root, CellMetadataFile),
			Boundaries:   filepath.Join(root, BoundariesFile),
		}, nil
	}
}
