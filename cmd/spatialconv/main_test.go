package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spatialdata-io/server/internal/detect"
	"github.com/spatialdata-io/server/internal/readers/merscope"
)

func TestRun_Usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no args", nil},
		{"unknown reader", []string{"xenium", "/data"}},
		{"missing path", []string{"visium"}},
		{"two paths", []string{"auto", "/a", "/b"}},
		{"unknown flag", []string{"visium", "-vpt", "x", "/data"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(tt.args, &stdout, &stderr)
			if !errors.Is(err, errUsage) {
				t.Fatalf("expected usage error, got %v", err)
			}
			if stdout.Len() != 0 {
				t.Errorf("unexpected output %q", stdout.String())
			}
		})
	}
}

func TestRun_UnknownLayout(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{"auto", t.TempDir()}, &stdout, &stderr)
	if !errors.Is(err, detect.ErrUnknownLayout) {
		t.Fatalf("expected ErrUnknownLayout, got %v", err)
	}
}

func TestVPTOutputs(t *testing.T) {
	v, err := vptOutputs("", "", "", "")
	if err != nil || v.String() != merscope.DefaultLayout().String() {
		t.Errorf("expected default layout, got %v (%v)", v, err)
	}

	v, err = vptOutputs("/vpt", "", "", "")
	if err != nil || v.String() != "directory /vpt" {
		t.Errorf("expected directory form, got %v (%v)", v, err)
	}

	v, err = vptOutputs("", "c.csv", "o.csv", "b.parquet")
	if err != nil || !strings.Contains(v.String(), "b.parquet") {
		t.Errorf("expected files form, got %v (%v)", v, err)
	}

	if _, err := vptOutputs("", "c.csv", "", ""); !errors.Is(err, merscope.ErrConfig) {
		t.Errorf("expected ErrConfig for partial files, got %v", err)
	}
	if _, err := vptOutputs("/vpt", "c.csv", "", ""); err == nil {
		t.Error("expected error when mixing -vpt with file flags")
	}
}
