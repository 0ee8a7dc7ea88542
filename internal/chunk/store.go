// Package chunk provides a zstd-compressed chunk store used to keep large
// columnar inputs (transcript tables) out of the Go heap between reads.
package chunk

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Store holds compressed chunks keyed by "<prefix>/<index>/<column>".
// Chunks live in memory when no spill directory is configured.
type Store struct {
	mu      sync.RWMutex
	dir     string
	ownsDir bool
	mem     map[string][]byte
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	closed  bool
}

// Options configures a Store.
type Options struct {
	// Dir is the parent of the spill directory. Empty keeps chunks in memory.
	Dir string
}

// NewStore creates a chunk store. With a spill dir, a private temporary
// subdirectory is created and removed again by Close.
func NewStore(opts Options) (*Store, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	s := &Store{
		encoder: encoder,
		decoder: decoder,
	}
	if opts.Dir == "" {
		s.mem = make(map[string][]byte)
		return s, nil
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		s.closeCodecs()
		return nil, fmt.Errorf("failed to create spill dir: %w", err)
	}
	dir, err := os.MkdirTemp(opts.Dir, "chunks-")
	if err != nil {
		s.closeCodecs()
		return nil, fmt.Errorf("failed to create spill dir: %w", err)
	}
	s.dir = dir
	s.ownsDir = true
	return s, nil
}

// Key builds a chunk key. Zarr-style "/" separators map to directories on disk.
func Key(prefix string, index int, column string) string {
	return strings.Join([]string{prefix, strconv.Itoa(index), column}, "/")
}

// Put compresses and stores one chunk.
func (s *Store) Put(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("chunk store is closed")
	}

	compressed := s.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	if s.mem != nil {
		s.mem[key] = compressed
		return nil
	}

	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create chunk dir: %w", err)
	}
	if err := os.WriteFile(p, compressed, 0o644); err != nil {
		return fmt.Errorf("failed to write chunk %s: %w", key, err)
	}
	return nil
}

// Get reads and decompresses one chunk. A missing chunk returns an error
// wrapping os.ErrNotExist.
func (s *Store) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("chunk store is closed")
	}

	var compressed []byte
	if s.mem != nil {
		c, ok := s.mem[key]
		if !ok {
			return nil, fmt.Errorf("chunk %s: %w", key, os.ErrNotExist)
		}
		compressed = c
	} else {
		c, err := os.ReadFile(s.path(key))
		if err != nil {
			return nil, fmt.Errorf("failed to read chunk %s: %w", key, err)
		}
		compressed = c
	}

	data, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress failed: %w", err)
	}
	return data, nil
}

// Has reports whether a chunk exists.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mem != nil {
		_, ok := s.mem[key]
		return ok
	}
	_, err := os.Stat(s.path(key))
	return err == nil
}

// Dir returns the spill directory, or "" for in-memory stores.
func (s *Store) Dir() string { return s.dir }

// Close releases codecs and removes the spill directory.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.closeCodecs()
	s.mem = nil
	if s.ownsDir && s.dir != "" {
		if err := os.RemoveAll(s.dir); err != nil {
			return fmt.Errorf("failed to remove spill dir: %w", err)
		}
	}
	return nil
}

func (s *Store) closeCodecs() {
	s.encoder.Close()
	s.decoder.Close()
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, "c", filepath.FromSlash(key))
}
