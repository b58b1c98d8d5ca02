// Package source lists the capture identifiers fed to the pipeline.
package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"traffic-anomaly-detector/internal/pipeline"
)

// DefaultExtensions is the capture file filter used when none is configured
var DefaultExtensions = []string{".pcap"}

// DirSource lists regular files in Dir whose extension matches, sorted by name
type DirSource struct {
	Dir        string
	Extensions []string
}

// NewDirSource creates a directory source; extensions default to DefaultExtensions
func NewDirSource(dir string, extensions ...string) *DirSource {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	return &DirSource{Dir: dir, Extensions: extensions}
}

// Identifiers returns matching file names. A missing directory or an empty result is a
// configuration error.
func (s *DirSource) Identifiers(ctx context.Context) ([]string, error) {
	info, err := os.Stat(s.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: input directory not found: %s", pipeline.ErrConfiguration, s.Dir)
		}
		return nil, fmt.Errorf("failed to stat input directory %s: %w", s.Dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: input path is not a directory: %s", pipeline.ErrConfiguration, s.Dir)
	}

	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory %s: %w", s.Dir, err)
	}

	var ids []string
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.Type().IsRegular() || !s.matches(entry.Name()) {
			continue
		}
		ids = append(ids, entry.Name())
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no %s files found in: %s",
			pipeline.ErrConfiguration, strings.Join(s.Extensions, "/"), s.Dir)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *DirSource) matches(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range s.Extensions {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}

// Describe implements pipeline.Source
func (s *DirSource) Describe() string {
	return "dir:" + s.Dir
}

// StaticSource serves a fixed list of identifiers in the given order
type StaticSource struct {
	IDs  []string
	Name string
}

// Identifiers implements pipeline.Source. An empty list is a configuration error.
func (s *StaticSource) Identifiers(ctx context.Context) ([]string, error) {
	if len(s.IDs) == 0 {
		return nil, fmt.Errorf("%w: identifier list is empty", pipeline.ErrConfiguration)
	}
	out := make([]string, len(s.IDs))
	copy(out, s.IDs)
	return out, nil
}

// Describe implements pipeline.Source
func (s *StaticSource) Describe() string {
	if s.Name != "" {
		return s.Name
	}
	return "static"
}
