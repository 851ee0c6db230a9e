// Package fs declares the narrow filesystem collaborator port that the
// config, registry, and project packages depend on. Persistence of pipeline
// source and config files is explicitly delegated to this collaborator
// rather than implemented as a full filesystem abstraction (out of scope
// per the pipeline runner's charter) — this interface exists only so that
// tests can substitute an in-memory double.
package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FileInfo is the subset of os.FileInfo the registry's list_pipelines needs.
type FileInfo struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// FileSystem is implemented by OS and in the tests by an in-memory double.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm os.FileMode) error
	Remove(path string) error
	MkdirAll(path string, perm os.FileMode) error
	Exists(path string) bool
	Stat(path string) (FileInfo, error)
	ListDir(dir string, suffix string) ([]FileInfo, error)
}

// OS is the default, real-filesystem-backed implementation.
type OS struct{}

var _ FileSystem = OS{}

func (OS) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

func (OS) WriteFile(path string, data []byte, perm os.FileMode) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("op=fs.WriteFile: %w", err)
		}
	}
	return os.WriteFile(path, data, perm)
}

func (OS) Remove(path string) error { return os.Remove(path) }

func (OS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

func (OS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OS) Stat(path string) (FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{Name: info.Name(), Path: path, Size: info.Size(), ModTime: info.ModTime(), IsDir: info.IsDir()}, nil
}

func (OS) ListDir(dir string, suffix string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if suffix != "" && filepath.Ext(e.Name()) != suffix {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		out = append(out, FileInfo{
			Name:    e.Name(),
			Path:    filepath.Join(dir, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
