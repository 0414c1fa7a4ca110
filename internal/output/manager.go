package output

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const timestampLayout = "20060102_150405"

var (
	// ErrInvalidName is returned for file names that are not a plain base name.
	ErrInvalidName = errors.New("invalid output file name")
	// ErrNotFound is returned when an output file does not exist.
	ErrNotFound = errors.New("output file not found")
)

// FileInfo describes one saved output file.
type FileInfo struct {
	Kind     string    `json:"kind"`
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Manager owns the output directory tree.
type Manager struct {
	BaseDir string
	Now     func() time.Time // Optional (tests)
}

func NewManager(baseDir string) *Manager {
	return &Manager{BaseDir: baseDir}
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Path returns the directory for kind.
func (m *Manager) Path(kind Kind) string {
	return filepath.Join(m.BaseDir, kind.Dir())
}

// EnsureDirs creates the directory of every kind.
func (m *Manager) EnsureDirs() error {
	for _, k := range Kinds {
		if err := os.MkdirAll(m.Path(k), 0o755); err != nil {
			return fmt.Errorf("create %s dir: %w", k, err)
		}
	}
	return nil
}

// Save writes data as <prefix>_<YYYYMMDD_HHMMSS><ext> in the kind's directory
// and returns the path. An existing file is never overwritten; a numeric
// suffix is added instead.
func (m *Manager) Save(kind Kind, prefix string, data []byte) (string, error) {
	dir := m.Path(kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s dir: %w", kind, err)
	}

	stem := fmt.Sprintf("%s_%s", sanitizePrefix(prefix), m.now().Format(timestampLayout))
	for n := 1; n < 1000; n++ {
		name := stem + kind.Ext()
		if n > 1 {
			name = fmt.Sprintf("%s_%d%s", stem, n, kind.Ext())
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("save %s: %w", kind, err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("save %s: %w", kind, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("save %s: %w", kind, err)
		}
		return path, nil
	}
	return "", fmt.Errorf("save %s: too many files named %s", kind, stem)
}

// List returns the files of one kind, sorted by name.
func (m *Manager) List(kind Kind) ([]string, error) {
	entries, err := os.ReadDir(m.Path(kind))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, filepath.Join(m.Path(kind), e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Stat lists the files of one kind with size and modification time.
func (m *Manager) Stat(kind Kind) ([]FileInfo, error) {
	files, err := m.List(kind)
	if err != nil {
		return nil, err
	}
	infos := make([]FileInfo, 0, len(files))
	for _, path := range files {
		st, err := os.Stat(path)
		if err != nil {
			continue
		}
		infos = append(infos, FileInfo{
			Kind:     kind.Dir(),
			Name:     filepath.Base(path),
			Path:     path,
			Size:     st.Size(),
			Modified: st.ModTime(),
		})
	}
	return infos, nil
}

// Resolve returns the path of an existing file of kind by its base name.
func (m *Manager) Resolve(kind Kind, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return "", ErrInvalidName
	}
	path := filepath.Join(m.Path(kind), name)
	st, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", name, err)
	}
	if !st.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return path, nil
}

// Remove deletes one file of kind by its base name.
func (m *Manager) Remove(kind Kind, name string) error {
	path, err := m.Resolve(kind, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// CleanOlderThan deletes files of every kind last modified more than age ago.
func (m *Manager) CleanOlderThan(age time.Duration) (int, error) {
	cutoff := m.now().Add(-age)
	removed := 0
	for _, k := range Kinds {
		files, err := m.List(k)
		if err != nil {
			return removed, err
		}
		for _, path := range files {
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(path); err != nil {
					return removed, fmt.Errorf("remove %s: %w", path, err)
				}
				removed++
			}
		}
	}
	return removed, nil
}

// sanitizePrefix keeps file names portable.
func sanitizePrefix(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "report"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
