package merscope

import (
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"
)

type boundaryRow struct {
	ID       int64  `parquet:"ID"`
	EntityID int64  `parquet:"EntityID"`
	ZIndex   int64  `parquet:"ZIndex"`
	Geometry []byte `parquet:"Geometry"`
	Type     string `parquet:"Type"`
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeMosaic(t *testing.T, path string, w, h int, value uint16) {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 2 {
		img.Pix[i] = byte(value >> 8)
		img.Pix[i+1] = byte(value)
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, tiff.Encode(f, img, nil))
}

func cellSquare(t *testing.T, x, y float64) []byte {
	t.Helper()
	poly := orb.Polygon{orb.Ring{{x, y}, {x + 10, y}, {x + 10, y + 10}, {x, y + 10}, {x, y}}}
	b, err := wkb.Marshal(poly)
	require.NoError(t, err)
	return b
}

func writeBoundaries(t *testing.T, path string, ids []int64, zLevels int) {
	t.Helper()
	var rows []boundaryRow
	n := int64(0)
	for z := 0; z < zLevels; z++ {
		for i, id := range ids {
			rows = append(rows, boundaryRow{
				ID:       n,
				EntityID: id,
				ZIndex:   int64(z),
				Geometry: cellSquare(t, float64(i*20), float64(z)),
				Type:     "cell",
			})
			n++
		}
	}

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := parquet.NewGenericWriter[boundaryRow](f,
		parquet.KeyValueMetadata("geo", `{"primary_column":"Geometry","columns":{"Geometry":{"encoding":"WKB"}}}`))
	_, err = w.Write(rows)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

// writeExperiment lays out a small MERSCOPE directory named region_0 with
// three cells, two stains at two z-levels and transcripts on z-levels 0, 1 and 3.
func writeExperiment(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "region_0")
	images := filepath.Join(root, ImagesDir)

	writeFile(t, filepath.Join(images, TransformationFile),
		"9.2 0 100.5\n0 9.2 -20\n0 0 1\n")
	for _, stain := range []string{"DAPI", "PolyT"} {
		for _, z := range []string{"0", "1"} {
			writeMosaic(t, filepath.Join(images, MosaicName(stain, z)), 8, 6, 1000)
		}
	}
	writeFile(t, filepath.Join(images, "manifest.json"), "{}")

	writeFile(t, filepath.Join(root, TranscriptsFile), strings.Join([]string{
		",barcode_id,global_x,global_y,global_z,x,y,fov,gene,transcript_id,cell_id",
		"0,1,10.5,20.5,0.0,1,2,0,Snap25,t0,100",
		"1,2,11.5,21.5,1.0,1,2,0,Gad1,t1,100",
		"2,3,12.5,22.5,0.0,1,2,0,Gad1,t2,101",
		"3,4,13.5,23.5,3.0,1,2,1,Aqp4,t3,102",
		"4,5,14.5,24.5,1.0,1,2,1,Snap25,t4,-1",
	}, "\n")+"\n")

	writeBoundaries(t, filepath.Join(root, BoundariesFile), []int64{100, 101, 102}, 3)

	writeFile(t, filepath.Join(root, CountsFile), strings.Join([]string{
		"cell,Aqp4,Gad1,Blank-1,Snap25,blank-2",
		"102,3,0,1,0,0",
		"100,0,1,0,5,0",
		"101,0,2,0,0,1",
	}, "\n")+"\n")

	writeFile(t, filepath.Join(root, CellMetadataFile), strings.Join([]string{
		"EntityID,fov,volume,center_x,center_y",
		"100,0,120.5,15.0,25.0",
		"101,0,99.0,35.0,25.0",
		"102,1,80.25,55.0,25.0",
	}, "\n")+"\n")

	return root
}
