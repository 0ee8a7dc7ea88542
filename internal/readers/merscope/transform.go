package merscope

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/spatialdata-io/server/internal/spatialdata"
)

// ReadMicronToPixel parses the whitespace separated 3x3 micron to mosaic pixel matrix.
func ReadMicronToPixel(path string) (*spatialdata.Affine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transformation file: %w", err)
	}
	defer f.Close()

	var values []float64
	rows := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if rows > 0 && len(fields)*rows != len(values) {
			return nil, fmt.Errorf("transformation file row %d has %d values, expected %d", rows+1, len(fields), len(values)/rows)
		}
		for _, s := range fields {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse transformation value %q: %w", s, err)
			}
			values = append(values, v)
		}
		rows++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transformation file: %w", err)
	}
	if rows != 3 || len(values) != 9 {
		return nil, fmt.Errorf("transformation matrix must be 3x3, got %d values in %d rows", len(values), rows)
	}

	return spatialdata.NewAffine(mat.NewDense(3, 3, values), []string{"x", "y"}, []string{"x", "y"})
}
