package merscope

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/spatialdata-io/server/internal/chunk"
	"github.com/spatialdata-io/server/internal/spatialdata"
)

// DefaultChunkRows is the number of transcripts per stored chunk.
const DefaultChunkRows = 1 << 16

// zBuffer accumulates rows of one z-level until a chunk is full.
type zBuffer struct {
	x, y   []float64
	gene   []int32
	extra  [][]string
	chunks int
	rows   int
}

// transcriptSource streams one z-level layer back out of the chunk store.
type transcriptSource struct {
	store  *chunk.Store
	prefix string
	rows   int
	chunks int
	extra  []string
	// remap turns first-seen gene codes into sorted category codes.
	remap []int32
}

func (s *transcriptSource) Len() int       { return s.rows }
func (s *transcriptSource) NumChunks() int { return s.chunks }

func (s *transcriptSource) Chunk(i int) (*spatialdata.PointChunk, error) {
	if i < 0 || i >= s.chunks {
		return nil, fmt.Errorf("chunk %d out of range [0, %d)", i, s.chunks)
	}
	x, err := s.store.Float64s(chunk.Key(s.prefix, i, "x"))
	if err != nil {
		return nil, err
	}
	y, err := s.store.Float64s(chunk.Key(s.prefix, i, "y"))
	if err != nil {
		return nil, err
	}
	codes, err := s.store.Int32s(chunk.Key(s.prefix, i, Gene))
	if err != nil {
		return nil, err
	}
	for j, c := range codes {
		codes[j] = s.remap[c]
	}
	c := &spatialdata.PointChunk{X: x, Y: y, Feature: codes, Extra: make(map[string][]string, len(s.extra))}
	for _, name := range s.extra {
		vals, err := s.store.Strings(chunk.Key(s.prefix, i, name))
		if err != nil {
			return nil, err
		}
		c.Extra[name] = vals
	}
	return c, nil
}

// partitionTranscripts makes a single pass over the transcript CSV, splitting
// rows by integer z-level into compressed chunks. Returned layers are sorted
// by ascending z-level.
func partitionTranscripts(path string, store *chunk.Store, chunkRows int) ([]*spatialdata.Points, error) {
	if chunkRows <= 0 {
		chunkRows = DefaultChunkRows
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcripts: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read transcripts header: %w", err)
	}
	header = append([]string(nil), header...)

	pos := map[string]int{}
	for i, h := range header {
		pos[h] = i
	}
	var xi, yi, zi, gi int
	for _, req := range []struct {
		name string
		dst  *int
	}{{GlobalX, &xi}, {GlobalY, &yi}, {GlobalZ, &zi}, {Gene, &gi}} {
		i, ok := pos[req.name]
		if !ok {
			return nil, fmt.Errorf("transcripts are missing column %q", req.name)
		}
		*req.dst = i
	}

	// Remaining columns are carried as strings. Names clashing with the
	// coordinate columns are dropped.
	var extraNames []string
	var extraPos []int
	for i, h := range header {
		switch h {
		case GlobalX, GlobalY, GlobalZ, Gene, "x", "y", "z":
			continue
		}
		name := h
		if name == "" {
			name = "Unnamed: 0"
		}
		extraNames = append(extraNames, name)
		extraPos = append(extraPos, i)
	}

	geneCodes := map[string]int32{}
	var geneNames []string
	buffers := map[int]*zBuffer{}

	flush := func(z int, b *zBuffer) error {
		if len(b.x) == 0 {
			return nil
		}
		prefix := layerName(z)
		if err := store.PutFloat64s(chunk.Key(prefix, b.chunks, "x"), b.x); err != nil {
			return err
		}
		if err := store.PutFloat64s(chunk.Key(prefix, b.chunks, "y"), b.y); err != nil {
			return err
		}
		if err := store.PutInt32s(chunk.Key(prefix, b.chunks, Gene), b.gene); err != nil {
			return err
		}
		for k, name := range extraNames {
			if err := store.PutStrings(chunk.Key(prefix, b.chunks, name), b.extra[k]); err != nil {
				return err
			}
		}
		b.chunks++
		b.x, b.y, b.gene = b.x[:0], b.y[:0], b.gene[:0]
		for k := range b.extra {
			b.extra[k] = b.extra[k][:0]
		}
		return nil
	}

	line := 1
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read transcripts row %d: %w", line, err)
		}
		line++

		x, err := strconv.ParseFloat(rec[xi], 64)
		if err != nil {
			return nil, fmt.Errorf("transcripts row %d: invalid %s %q", line, GlobalX, rec[xi])
		}
		y, err := strconv.ParseFloat(rec[yi], 64)
		if err != nil {
			return nil, fmt.Errorf("transcripts row %d: invalid %s %q", line, GlobalY, rec[yi])
		}
		zf, err := strconv.ParseFloat(rec[zi], 64)
		if err != nil || math.IsNaN(zf) || math.IsInf(zf, 0) {
			return nil, fmt.Errorf("transcripts row %d: invalid %s %q", line, GlobalZ, rec[zi])
		}
		z := int(math.Trunc(zf))

		code, ok := geneCodes[rec[gi]]
		if !ok {
			code = int32(len(geneNames))
			geneNames = append(geneNames, rec[gi])
			geneCodes[rec[gi]] = code
		}

		b, ok := buffers[z]
		if !ok {
			b = &zBuffer{extra: make([][]string, len(extraNames))}
			buffers[z] = b
		}
		b.x = append(b.x, x)
		b.y = append(b.y, y)
		b.gene = append(b.gene, code)
		for k, p := range extraPos {
			b.extra[k] = append(b.extra[k], rec[p])
		}
		b.rows++
		if len(b.x) >= chunkRows {
			if err := flush(z, b); err != nil {
				return nil, err
			}
		}
	}

	zs := make([]int, 0, len(buffers))
	for z, b := range buffers {
		if err := flush(z, b); err != nil {
			return nil, err
		}
		zs = append(zs, z)
	}
	sort.Ints(zs)

	categories := append([]string(nil), geneNames...)
	sort.Strings(categories)
	sortedPos := make(map[string]int32, len(categories))
	for i, g := range categories {
		sortedPos[g] = int32(i)
	}
	remap := make([]int32, len(geneNames))
	for i, g := range geneNames {
		remap[i] = sortedPos[g]
	}

	layers := make([]*spatialdata.Points, 0, len(zs))
	for _, z := range zs {
		b := buffers[z]
		name := layerName(z)
		layers = append(layers, &spatialdata.Points{
			Name:         name,
			FeatureKey:   Gene,
			Features:     categories,
			ExtraColumns: extraNames,
			Transforms:   map[string]spatialdata.Transform{PixelSpace: spatialdata.Identity{}},
			Source: &transcriptSource{
				store:  store,
				prefix: name,
				rows:   b.rows,
				chunks: b.chunks,
				extra:  extraNames,
				remap:  remap,
			},
		})
	}
	return layers, nil
}

func layerName(z int) string {
	return "transcripts_z" + strconv.Itoa(z)
}
