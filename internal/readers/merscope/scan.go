package merscope

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
)

var mosaicPattern = regexp.MustCompile(`mosaic_(?P<stain>[\w|-]+[0-9]?)_z(?P<z>[0-9]+).tif`)

// ScanImages lists the distinct stains and z-levels encoded in mosaic file
// names under dir. Stains are sorted lexicographically and z-levels
// numerically. Non-matching files are ignored.
func ScanImages(dir string) (stains []string, zLevels []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list images: %w", err)
	}

	stainSet := map[string]struct{}{}
	zSet := map[string]struct{}{}
	stainIdx := mosaicPattern.SubexpIndex("stain")
	zIdx := mosaicPattern.SubexpIndex("z")
	for _, e := range entries {
		m := mosaicPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		stainSet[m[stainIdx]] = struct{}{}
		zSet[m[zIdx]] = struct{}{}
	}

	stains = make([]string, 0, len(stainSet))
	for s := range stainSet {
		stains = append(stains, s)
	}
	sort.Strings(stains)

	zLevels = make([]string, 0, len(zSet))
	for z := range zSet {
		zLevels = append(zLevels, z)
	}
	sort.Slice(zLevels, func(i, j int) bool {
		a, _ := strconv.Atoi(zLevels[i])
		b, _ := strconv.Atoi(zLevels[j])
		if a != b {
			return a < b
		}
		return zLevels[i] < zLevels[j]
	})
	return stains, zLevels, nil
}

// MosaicName returns the file name of one stain at one z-level.
func MosaicName(stain, z string) string {
	return "mosaic_" + stain + "_z" + z + ".tif"
}
