package fs

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process FileSystem double used by config/registry/project
// tests so they never touch the real filesystem.
type Memory struct {
	mu    sync.Mutex
	files map[string][]byte
	times map[string]time.Time
}

var _ FileSystem = (*Memory)(nil)

// NewMemory returns an empty in-memory filesystem.
func NewMemory() *Memory {
	return &Memory{files: map[string][]byte{}, times: map[string]time.Time{}}
}

func (m *Memory) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, &os.PathError{Op: "read", Path: path, Err: os.ErrNotExist}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) WriteFile(path string, data []byte, _ os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.files[path] = cp
	m.times[path] = time.Now()
	return nil
}

func (m *Memory) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; !ok {
		return &os.PathError{Op: "remove", Path: path, Err: os.ErrNotExist}
	}
	delete(m.files, path)
	delete(m.times, path)
	return nil
}

func (m *Memory) MkdirAll(string, os.FileMode) error { return nil }

func (m *Memory) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok
}

func (m *Memory) Stat(path string) (FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return FileInfo{}, &os.PathError{Op: "stat", Path: path, Err: os.ErrNotExist}
	}
	return FileInfo{Name: filepath.Base(path), Path: path, Size: int64(len(data)), ModTime: m.times[path]}, nil
}

func (m *Memory) ListDir(dir string, suffix string) ([]FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir = strings.TrimSuffix(dir, "/")
	var out []FileInfo
	for path, data := range m.files {
		d, name := filepath.Split(path)
		d = strings.TrimSuffix(d, "/")
		if d != dir {
			continue
		}
		if suffix != "" && filepath.Ext(name) != suffix {
			continue
		}
		out = append(out, FileInfo{Name: name, Path: path, Size: int64(len(data)), ModTime: m.times[path]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
