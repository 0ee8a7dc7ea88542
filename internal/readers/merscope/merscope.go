// Package merscope reads a Vizgen MERSCOPE output directory into a spatial dataset.
package merscope

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/spatialdata-io/server/internal/cache"
	"github.com/spatialdata-io/server/internal/chunk"
	"github.com/spatialdata-io/server/internal/spatialdata"
)

// Options configures Read.
type Options struct {
	VPTOutputs VPTOutputs
	// ReadTIF stacks the mosaic TIFFs into one image layer per z-level.
	ReadTIF bool
	// SpillDir holds compressed transcript chunks on disk; empty keeps them in memory.
	SpillDir string
	// ChunkRows is the number of transcripts per chunk.
	ChunkRows int
	// Planes caches decoded mosaic planes. May be nil.
	Planes *cache.PlaneCache
}

// DefaultOptions reads the default layout including images.
func DefaultOptions() Options {
	return Options{ReadTIF: true, ChunkRows: DefaultChunkRows}
}

// Region returns the region name used for a MERSCOPE root: its final path
// segment without extension.
func Region(path string) string {
	base := filepath.Base(filepath.Clean(path))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Read assembles images, transcripts, boundaries and the expression table.
// Any missing required file aborts the call.
func Read(path string, opts Options) (*spatialdata.Dataset, error) {
	files, err := ResolvePaths(path, opts.VPTOutputs)
	if err != nil {
		return nil, err
	}
	imagesDir := filepath.Join(path, ImagesDir)
	region := Region(path)

	micronsToPixels, err := ReadMicronToPixel(filepath.Join(imagesDir, TransformationFile))
	if err != nil {
		return nil, err
	}

	store, err := chunk.NewStore(chunk.Options{Dir: opts.SpillDir})
	if err != nil {
		return nil, err
	}
	b := spatialdata.NewBuilder().OnClose(store)
	ds, err := assemble(b, path, imagesDir, region, files, micronsToPixels, store, opts)
	if err != nil {
		b.Abort()
		return nil, err
	}
	return ds, nil
}

func assemble(
	b *spatialdata.Builder,
	path, imagesDir, region string,
	files Files,
	micronsToPixels *spatialdata.Affine,
	store *chunk.Store,
	opts Options,
) (*spatialdata.Dataset, error) {
	if opts.ReadTIF {
		stains, zLevels, err := ScanImages(imagesDir)
		if err != nil {
			return nil, err
		}
		for _, z := range zLevels {
			im, err := stackMosaics(imagesDir, stains, z, opts.Planes)
			if err != nil {
				return nil, err
			}
			log.Printf("[merscope] image %s: %d channels %dx%d", im.Name, len(stains), im.Size("x"), im.Size("y"))
			b.AddImage(im)
		}
	}

	layers, err := partitionTranscripts(filepath.Join(path, TranscriptsFile), store, opts.ChunkRows)
	if err != nil {
		return nil, err
	}
	for _, p := range layers {
		log.Printf("[merscope] points %s: %d transcripts", p.Name, p.Len())
		b.AddPoints(p)
	}

	shapes, err := readBoundaries(files.Boundaries)
	if err != nil {
		return nil, err
	}
	shapes.Region = region
	shapes.Transforms = map[string]spatialdata.Transform{PixelSpace: micronsToPixels}
	log.Printf("[merscope] shapes %s: %d polygons", shapes.Name, shapes.Len())
	b.AddShapes(shapes)

	table, err := readTable(files, region)
	if err != nil {
		return nil, err
	}
	nBlank := 0
	if blank, ok := table.Obsm["blank"]; ok {
		nBlank = len(blank.Columns)
	}
	log.Printf("[merscope] table: %d cells x %d genes, %d blanks", table.NumObs(), table.NumVars(), nBlank)
	b.SetTable(table)

	ds, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build dataset: %w", err)
	}
	return ds, nil
}
