package merscope

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spatialdata-io/server/internal/spatialdata"
)

func TestScanImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"mosaic_DAPI_z0.tif", "mosaic_DAPI_z1.tif", "mosaic_PolyT_z0.tif", "notes.txt"} {
		writeFile(t, filepath.Join(dir, name), "")
	}

	stains, zLevels, err := ScanImages(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"DAPI", "PolyT"}, stains)
	assert.Equal(t, []string{"0", "1"}, zLevels)
}

func TestScanImages_Edges(t *testing.T) {
	t.Run("numericOrder", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{"mosaic_Cellbound1_z10.tif", "mosaic_Cellbound1_z2.tif", "mosaic_Cellbound1_z0.tif"} {
			writeFile(t, filepath.Join(dir, name), "")
		}
		stains, zLevels, err := ScanImages(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{"Cellbound1"}, stains)
		assert.Equal(t, []string{"0", "2", "10"}, zLevels)
	})

	t.Run("noMatches", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "readme.md"), "")
		stains, zLevels, err := ScanImages(dir)
		require.NoError(t, err)
		assert.Empty(t, stains)
		assert.Empty(t, zLevels)
	})

	t.Run("missingDir", func(t *testing.T) {
		_, _, err := ScanImages(filepath.Join(t.TempDir(), "nope"))
		assert.True(t, errors.Is(err, fs.ErrNotExist), "got %v", err)
	})
}

func TestResolvePaths(t *testing.T) {
	root := "/data/region_0"

	t.Run("default", func(t *testing.T) {
		files, err := ResolvePaths(root, DefaultLayout())
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, CountsFile), files.Counts)
		assert.Equal(t, filepath.Join(root, CellMetadataFile), files.CellMetadata)
		assert.Equal(t, filepath.Join(root, BoundariesFile), files.Boundaries)

		zero, err := ResolvePaths(root, VPTOutputs{})
		require.NoError(t, err)
		assert.Equal(t, files, zero)
	})

	t.Run("directoryPrefersCellpose", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, WatershedBoundaries), "")
		writeFile(t, filepath.Join(dir, CellposeBoundaries), "")
		files, err := ResolvePaths(root, VPTDirectory(dir))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, CellposeBoundaries), files.Boundaries)
		assert.Equal(t, filepath.Join(dir, CountsFile), files.Counts)
		assert.Equal(t, filepath.Join(dir, CellMetadataFile), files.CellMetadata)
	})

	t.Run("directoryWatershedFallback", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, WatershedBoundaries), "")
		files, err := ResolvePaths(root, VPTDirectory(dir))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, WatershedBoundaries), files.Boundaries)
	})

	t.Run("directoryWithoutBoundaries", func(t *testing.T) {
		dir := t.TempDir()
		_, err := ResolvePaths(root, VPTDirectory(dir))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConfig))
		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Len(t, cfgErr.Candidates, 2)
		assert.Contains(t, err.Error(), CellposeBoundaries)
		assert.Contains(t, err.Error(), WatershedBoundaries)
	})

	t.Run("mappingVerbatim", func(t *testing.T) {
		want := Files{
			Counts:       "/a/counts.csv",
			CellMetadata: "/b/elsewhere/meta.csv",
			Boundaries:   "/c/bounds.parquet",
		}
		files, err := ResolvePaths(root, VPTFiles(want))
		require.NoError(t, err)
		assert.Equal(t, want, files)
	})
}

func TestParseVPTOutputs(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		v, err := ParseVPTOutputs(nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultLayout(), v)
	})

	t.Run("directory", func(t *testing.T) {
		v, err := ParseVPTOutputs("/vpt")
		require.NoError(t, err)
		assert.Equal(t, VPTDirectory("/vpt"), v)
	})

	t.Run("mapping", func(t *testing.T) {
		v, err := ParseVPTOutputs(map[string]interface{}{
			VPTNameCounts:     "/x/c.csv",
			VPTNameObs:        "/y/o.csv",
			VPTNameBoundaries: "/z/b.parquet",
		})
		require.NoError(t, err)
		files, err := ResolvePaths("/root", v)
		require.NoError(t, err)
		assert.Equal(t, Files{Counts: "/x/c.csv", CellMetadata: "/y/o.csv", Boundaries: "/z/b.parquet"}, files)
	})

	t.Run("missingKey", func(t *testing.T) {
		_, err := ParseVPTOutputs(map[string]string{VPTNameCounts: "/x"})
		assert.True(t, errors.Is(err, ErrConfig))
		assert.Contains(t, err.Error(), VPTNameObs)
	})

	t.Run("unsupportedType", func(t *testing.T) {
		_, err := ParseVPTOutputs(42)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConfig))
		assert.Contains(t, err.Error(), "int")
	})
}

func TestSplitBlankColumns(t *testing.T) {
	cols := []string{"ABCD1", "Blank-3", "Gad1", "BLANK-7", "notblanked", "Snap25"}
	genes, blanks := SplitBlankColumns(cols)

	assert.Equal(t, []string{"ABCD1", "Gad1", "Snap25"}, genes)
	assert.Equal(t, []string{"Blank-3", "BLANK-7", "notblanked"}, blanks)
	assert.Equal(t, len(cols), len(genes)+len(blanks))

	seen := map[string]int{}
	for _, c := range append(append([]string{}, genes...), blanks...) {
		seen[c]++
	}
	for _, c := range cols {
		assert.Equal(t, 1, seen[c], "column %s", c)
	}
}

func TestReadMicronToPixel(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid", func(t *testing.T) {
		p := filepath.Join(dir, "ok.csv")
		writeFile(t, p, "2 0 10\n0 2 20\n0 0 1\n")
		a, err := ReadMicronToPixel(p)
		require.NoError(t, err)
		x, y := a.Apply(1, 1)
		assert.Equal(t, 12.0, x)
		assert.Equal(t, 22.0, y)
	})

	t.Run("notNumeric", func(t *testing.T) {
		p := filepath.Join(dir, "bad.csv")
		writeFile(t, p, "a b c\n0 2 20\n0 0 1\n")
		_, err := ReadMicronToPixel(p)
		assert.Error(t, err)
	})

	t.Run("wrongShape", func(t *testing.T) {
		p := filepath.Join(dir, "short.csv")
		writeFile(t, p, "1 0\n0 1\n")
		_, err := ReadMicronToPixel(p)
		assert.Error(t, err)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := ReadMicronToPixel(filepath.Join(dir, "none.csv"))
		assert.True(t, errors.Is(err, fs.ErrNotExist))
	})
}

func TestRead(t *testing.T) {
	root := writeExperiment(t)
	opts := DefaultOptions()
	opts.ChunkRows = 1

	ds, err := Read(root, opts)
	require.NoError(t, err)
	defer ds.Close()

	t.Run("images", func(t *testing.T) {
		assert.Equal(t, []string{"z0", "z1"}, ds.ImageNames())
		im := ds.Images["z0"]
		assert.Equal(t, []string{"c", "z", "y", "x"}, im.Dims)
		assert.Equal(t, []int{2, 1, 6, 8}, im.Shape)
		assert.Equal(t, []string{"DAPI", "PolyT"}, im.Channels)
		assert.Equal(t, spatialdata.Uint16, im.DType)
		assert.IsType(t, spatialdata.Identity{}, im.Transforms[PixelSpace])

		plane, err := im.Plane(1, 0)
		require.NoError(t, err)
		assert.Equal(t, 8, plane.Width)
		assert.Equal(t, float32(1000), plane.At(3, 2))
	})

	t.Run("points", func(t *testing.T) {
		assert.Equal(t, []string{"transcripts_z0", "transcripts_z1", "transcripts_z3"}, ds.PointNames())
		total := 0
		for _, name := range ds.PointNames() {
			p := ds.Points[name]
			assert.NotContains(t, p.Columns(), "z")
			assert.NotContains(t, p.Columns(), GlobalZ)
			assert.Equal(t, []string{"Aqp4", "Gad1", "Snap25"}, p.Features)
			total += p.Len()
		}
		assert.Equal(t, 5, total)

		z1 := ds.Points["transcripts_z1"]
		require.Equal(t, 2, z1.Len())
		assert.Equal(t, 2, z1.Source.NumChunks())
		var genes, cells []string
		var xs []float64
		require.NoError(t, z1.Each(func(c *spatialdata.PointChunk) error {
			for i, code := range c.Feature {
				genes = append(genes, z1.Feature(code))
				xs = append(xs, c.X[i])
			}
			cells = append(cells, c.Extra["cell_id"]...)
			return nil
		}))
		assert.Equal(t, []string{"Gad1", "Snap25"}, genes)
		assert.Equal(t, []float64{11.5, 14.5}, xs)
		assert.Equal(t, []string{"100", "-1"}, cells)
	})

	t.Run("shapes", func(t *testing.T) {
		s := ds.Shapes[ShapesLayer]
		require.NotNil(t, s)
		assert.Equal(t, []string{"100", "101", "102"}, s.Index)
		assert.Equal(t, 3, s.Len())
		assert.Equal(t, "region_0", s.Region)
		assert.False(t, s.Attributes.Has("Geometry"))
		assert.True(t, s.Attributes.Has("Type"))

		aff, ok := s.Transforms[PixelSpace].(*spatialdata.Affine)
		require.True(t, ok)
		x, y := aff.Apply(1, 1)
		assert.InDelta(t, 109.7, x, 1e-9)
		assert.InDelta(t, -10.8, y, 1e-9)

		// Only z-index 0 rows survive: their y offset is 0.
		assert.Equal(t, 0.0, s.Geometry[0].Bound().Min.Y())
	})

	t.Run("table", func(t *testing.T) {
		tbl := ds.Table
		require.NotNil(t, tbl)
		assert.Equal(t, []string{"100", "101", "102"}, tbl.Obs.Index)
		assert.Equal(t, []string{"Aqp4", "Gad1", "Snap25"}, tbl.Var.Index)
		assert.Equal(t, RegionKey, tbl.RegionKey)
		assert.Equal(t, InstanceKey, tbl.InstanceKey)
		assert.Equal(t, []string{"region_0"}, tbl.Regions)

		r, c := tbl.X.Dims()
		assert.Equal(t, 3, r)
		assert.Equal(t, 3, c)
		// Counts rows were reordered to match the metadata index.
		assert.Equal(t, 5.0, tbl.X.At(0, 2))
		assert.Equal(t, 3.0, tbl.X.At(2, 0))

		blank := tbl.Obsm["blank"]
		require.NotNil(t, blank)
		assert.Equal(t, []string{"Blank-1", "blank-2"}, blank.Columns)
		assert.Equal(t, 1.0, blank.Values.At(1, 1))

		spatial := tbl.Obsm["spatial"]
		assert.Equal(t, 35.0, spatial.Values.At(1, 0))
		assert.Equal(t, 25.0, spatial.Values.At(1, 1))

		ids, err := tbl.Obs.Strings(InstanceKey)
		require.NoError(t, err)
		assert.Equal(t, tbl.Obs.Index, ids)
	})

	assert.Equal(t, []string{PixelSpace}, ds.CoordinateSystems())
}

func TestRead_Options(t *testing.T) {
	t.Run("noTIF", func(t *testing.T) {
		root := writeExperiment(t)
		// Broken mosaics must not be touched.
		writeFile(t, filepath.Join(root, ImagesDir, MosaicName("DAPI", "0")), "not a tiff")
		opts := DefaultOptions()
		opts.ReadTIF = false
		ds, err := Read(root, opts)
		require.NoError(t, err)
		defer ds.Close()
		assert.Empty(t, ds.Images)
		assert.Len(t, ds.Points, 3)
	})

	t.Run("spillDir", func(t *testing.T) {
		root := writeExperiment(t)
		spill := t.TempDir()
		opts := DefaultOptions()
		opts.SpillDir = spill
		ds, err := Read(root, opts)
		require.NoError(t, err)

		entries, err := os.ReadDir(spill)
		require.NoError(t, err)
		assert.Len(t, entries, 1)

		require.NoError(t, ds.Close())
		entries, err = os.ReadDir(spill)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("vptDirectory", func(t *testing.T) {
		root := writeExperiment(t)
		vpt := t.TempDir()
		require.NoError(t, os.Rename(filepath.Join(root, BoundariesFile), filepath.Join(vpt, WatershedBoundaries)))
		require.NoError(t, os.Rename(filepath.Join(root, CountsFile), filepath.Join(vpt, CountsFile)))
		require.NoError(t, os.Rename(filepath.Join(root, CellMetadataFile), filepath.Join(vpt, CellMetadataFile)))

		opts := DefaultOptions()
		opts.ReadTIF = false
		opts.VPTOutputs = VPTDirectory(vpt)
		ds, err := Read(root, opts)
		require.NoError(t, err)
		defer ds.Close()
		assert.Equal(t, 3, ds.Shapes[ShapesLayer].Len())
	})
}

func TestRead_EmptyTable(t *testing.T) {
	opts := DefaultOptions()
	opts.ReadTIF = false

	t.Run("headerOnly", func(t *testing.T) {
		root := writeExperiment(t)
		writeFile(t, filepath.Join(root, CountsFile), "cell,Aqp4,Gad1,Blank-1\n")
		writeFile(t, filepath.Join(root, CellMetadataFile), "EntityID,fov,volume,center_x,center_y\n")

		ds, err := Read(root, opts)
		require.NoError(t, err)
		defer ds.Close()

		tbl := ds.Table
		r, c := tbl.X.Dims()
		assert.Equal(t, 0, r)
		assert.Equal(t, 2, c)
		assert.Equal(t, []string{"Aqp4", "Gad1"}, tbl.Var.Index)
		rows, cols := tbl.Obsm["spatial"].Values.Dims()
		assert.Equal(t, 0, rows)
		assert.Equal(t, 2, cols)
		assert.Empty(t, tbl.Regions)
	})

	t.Run("onlyBlanks", func(t *testing.T) {
		root := writeExperiment(t)
		writeFile(t, filepath.Join(root, CountsFile), strings.Join([]string{
			"cell,Blank-1,blank-2",
			"102,1,0",
			"100,0,0",
			"101,0,1",
		}, "\n")+"\n")

		ds, err := Read(root, opts)
		require.NoError(t, err)
		defer ds.Close()

		tbl := ds.Table
		r, c := tbl.X.Dims()
		assert.Equal(t, 3, r)
		assert.Equal(t, 0, c)
		assert.Equal(t, 0, tbl.NumVars())
		require.Contains(t, tbl.Obsm, "blank")
		// rows follow the metadata order 100, 101, 102
		assert.Equal(t, 1.0, tbl.Obsm["blank"].Values.At(1, 1))
		assert.Equal(t, 1.0, tbl.Obsm["blank"].Values.At(2, 0))
		assert.Equal(t, []string{"region_0"}, tbl.Regions)
	})

	t.Run("noBlanks", func(t *testing.T) {
		root := writeExperiment(t)
		writeFile(t, filepath.Join(root, CountsFile), strings.Join([]string{
			"cell,Aqp4",
			"102,3",
			"100,0",
			"101,0",
		}, "\n")+"\n")

		ds, err := Read(root, opts)
		require.NoError(t, err)
		defer ds.Close()
		assert.NotContains(t, ds.Table.Obsm, "blank")
	})
}

func TestRead_Failures(t *testing.T) {
	cases := []struct {
		name   string
		remove string
	}{
		{name: "transcripts", remove: TranscriptsFile},
		{name: "boundaries", remove: BoundariesFile},
		{name: "counts", remove: CountsFile},
		{name: "metadata", remove: CellMetadataFile},
		{name: "transformation", remove: filepath.Join(ImagesDir, TransformationFile)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root := writeExperiment(t)
			require.NoError(t, os.Remove(filepath.Join(root, tc.remove)))
			ds, err := Read(root, DefaultOptions())
			require.Error(t, err)
			assert.Nil(t, ds)
			assert.True(t, errors.Is(err, fs.ErrNotExist), "got %v", err)
		})
	}

	t.Run("vptDirectoryWithoutBoundaries", func(t *testing.T) {
		root := writeExperiment(t)
		opts := DefaultOptions()
		opts.VPTOutputs = VPTDirectory(t.TempDir())
		_, err := Read(root, opts)
		assert.True(t, errors.Is(err, ErrConfig), "got %v", err)
	})
}

func TestRead_InvalidGlobalZ(t *testing.T) {
	for _, z := range []string{"abc", "nan", "NaN", "inf", "-Inf"} {
		t.Run(z, func(t *testing.T) {
			root := writeExperiment(t)
			writeFile(t, filepath.Join(root, TranscriptsFile), strings.Join([]string{
				",barcode_id,global_x,global_y,global_z,x,y,fov,gene,transcript_id,cell_id",
				"0,1,10.5,20.5,0.0,1,2,0,Snap25,t0,100",
				"1,2,11.5,21.5," + z + ",1,2,0,Gad1,t1,100",
			}, "\n")+"\n")

			opts := DefaultOptions()
			opts.ReadTIF = false
			ds, err := Read(root, opts)
			require.Error(t, err)
			assert.Nil(t, ds)
			assert.ErrorContains(t, err, "transcripts row 3: invalid "+GlobalZ)
		})
	}
}

func TestRegion(t *testing.T) {
	assert.Equal(t, "region_0", Region("/data/exp/region_0"))
	assert.Equal(t, "region_0", Region("/data/exp/region_0/"))
	assert.Equal(t, "sample", Region("/data/sample.merscope"))
}
