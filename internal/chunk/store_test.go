package chunk

import (
	"errors"
	"os"
	"testing"
)

func TestStore_MemoryAndDir(t *testing.T) {
	cases := []struct {
		name string
		opts Options
	}{
		{name: "memory", opts: Options{}},
		{name: "spill", opts: Options{Dir: t.TempDir()}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := NewStore(tc.opts)
			if err != nil {
				t.Fatalf("NewStore: %v", err)
			}

			key := Key("transcripts", 3, "x")
			if key != "transcripts/3/x" {
				t.Fatalf("unexpected key %q", key)
			}
			want := []float64{1.5, -2, 1e9, 0}
			if err := s.PutFloat64s(key, want); err != nil {
				t.Fatalf("PutFloat64s: %v", err)
			}
			if !s.Has(key) {
				t.Fatalf("expected chunk %q to exist", key)
			}
			got, err := s.Float64s(key)
			if err != nil {
				t.Fatalf("Float64s: %v", err)
			}
			if len(got) != len(want) {
				t.Fatalf("got %d values, want %d", len(got), len(want))
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("value %d: got %v want %v", i, got[i], want[i])
				}
			}

			if _, err := s.Get("missing/0/x"); !errors.Is(err, os.ErrNotExist) {
				t.Fatalf("expected not-exist error, got %v", err)
			}

			dir := s.Dir()
			if err := s.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if dir != "" {
				if _, err := os.Stat(dir); !os.IsNotExist(err) {
					t.Fatalf("expected spill dir %s to be removed, stat err=%v", dir, err)
				}
			}
			if _, err := s.Get(key); err == nil {
				t.Fatalf("expected error after Close")
			}
		})
	}
}

func TestCodecs(t *testing.T) {
	t.Run("int32", func(t *testing.T) {
		in := []int32{0, -1, 42, 1 << 30}
		out, err := DecodeInt32s(EncodeInt32s(in))
		if err != nil {
			t.Fatalf("DecodeInt32s: %v", err)
		}
		for i := range in {
			if in[i] != out[i] {
				t.Fatalf("index %d: got %d want %d", i, out[i], in[i])
			}
		}
	})

	t.Run("strings", func(t *testing.T) {
		in := []string{"", "Gad1", "cell 17", "ünïcode"}
		out, err := DecodeStrings(EncodeStrings(in))
		if err != nil {
			t.Fatalf("DecodeStrings: %v", err)
		}
		if len(out) != len(in) {
			t.Fatalf("got %d strings, want %d", len(out), len(in))
		}
		for i := range in {
			if in[i] != out[i] {
				t.Fatalf("index %d: got %q want %q", i, out[i], in[i])
			}
		}
	})

	t.Run("truncated", func(t *testing.T) {
		if _, err := DecodeFloat64s([]byte{1, 2, 3}); err == nil {
			t.Fatalf("expected error for short float chunk")
		}
		data := EncodeStrings([]string{"abc"})
		if _, err := DecodeStrings(data[:len(data)-1]); err == nil {
			t.Fatalf("expected error for truncated string chunk")
		}
	})
}
