// Command spatialconv reads a MERSCOPE or Visium output directory and prints
// a summary of the assembled dataset.
//
//	spatialconv merscope [-vpt dir] [-vpt-counts f -vpt-obs f -vpt-boundaries f] [-no-tif] [-spill dir] PATH
//	spatialconv visium [-csn name] PATH
//	spatialconv auto PATH
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spatialdata-io/server/internal/detect"
	"github.com/spatialdata-io/server/internal/readers/merscope"
)

var errUsage = errors.New("usage")

const usage = `usage:
  spatialconv merscope [-vpt dir] [-vpt-counts f -vpt-obs f -vpt-boundaries f] [-no-tif] [-spill dir] PATH
  spatialconv visium [-csn name] PATH
  spatialconv auto PATH`

func main() {
	log.SetFlags(0)
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage)
		return errUsage
	}

	kind, err := detect.ParseKind(args[0])
	if err != nil || args[0] == "" {
		fmt.Fprintln(stderr, usage)
		return errUsage
	}

	opts := detect.DefaultOptions()
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		vptDir, vptCounts, vptObs, vptBoundaries string
		noTIF                                    bool
	)
	switch kind {
	case detect.MERSCOPE:
		fs.StringVar(&vptDir, "vpt", "", "directory holding VPT outputs")
		fs.StringVar(&vptCounts, "vpt-counts", "", "VPT cell_by_gene file")
		fs.StringVar(&vptObs, "vpt-obs", "", "VPT cell_metadata file")
		fs.StringVar(&vptBoundaries, "vpt-boundaries", "", "VPT cell_boundaries file")
		fs.BoolVar(&noTIF, "no-tif", false, "skip the mosaic images")
		fs.StringVar(&opts.MERSCOPE.SpillDir, "spill", "", "spill transcript chunks to this directory")
	case detect.Visium:
		fs.StringVar(&opts.Visium.CoordinateSystem, "csn", "", "coordinate system name (default: library id)")
	}
	if err := fs.Parse(args[1:]); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, usage)
		return errUsage
	}
	path := fs.Arg(0)

	if kind == detect.MERSCOPE {
		vpt, err := vptOutputs(vptDir, vptCounts, vptObs, vptBoundaries)
		if err != nil {
			return err
		}
		opts.MERSCOPE.VPTOutputs = vpt
		opts.MERSCOPE.ReadTIF = !noTIF
	}

	ds, kind, err := detect.Open(kind, path, opts)
	if err != nil {
		return err
	}
	defer ds.Close()

	fmt.Fprintf(stdout, "%s: %s\n", kind, path)
	fmt.Fprint(stdout, ds.Summary())
	return nil
}

// vptOutputs combines the VPT flags. The directory and file forms exclude
// each other and the file form needs all three files.
func vptOutputs(dir, counts, obs, boundaries string) (merscope.VPTOutputs, error) {
	files := map[string]string{}
	for k, v := range map[string]string{
		merscope.VPTNameCounts:     counts,
		merscope.VPTNameObs:        obs,
		merscope.VPTNameBoundaries: boundaries,
	} {
		if v != "" {
			files[k] = v
		}
	}
	switch {
	case dir != "" && len(files) > 0:
		return merscope.VPTOutputs{}, fmt.Errorf("-vpt cannot be combined with -vpt-counts, -vpt-obs or -vpt-boundaries")
	case dir != "":
		return merscope.ParseVPTOutputs(dir)
	case len(files) > 0:
		return merscope.ParseVPTOutputs(files)
	}
	return merscope.DefaultLayout(), nil
}
