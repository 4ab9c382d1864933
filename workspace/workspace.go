// Package workspace provides file storage scoped beneath a single root.
//
// Every path is interpreted relative to the root. Paths that would resolve
// outside of it are rejected with [ErrPathEscape] rather than clamped.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// ResultsDir is the directory that holds oversized capability results.
const ResultsDir = "mcp-results"

// DefaultResultMaxAge is how long overflow results are kept by CleanupResults
// when no age is given.
const DefaultResultMaxAge = time.Hour

// ErrPathEscape is returned for paths that resolve outside the workspace root.
var ErrPathEscape = errors.New("path escapes workspace root")

// Info describes a workspace entry.
type Info struct {
	Size        int64     `json:"size"`
	IsFile      bool      `json:"isFile"`
	IsDirectory bool      `json:"isDirectory"`
	Modified    time.Time `json:"modified"`
}

// Workspace is a scoped file store.
//
// Contract:
// - Concurrency: safe for concurrent use to the extent the underlying afero.Fs is.
// - Errors: escaping paths return ErrPathEscape; filesystem errors are wrapped with the path.
type Workspace struct {
	fs   afero.Fs
	root string
	now  func() time.Time
}

// New creates a workspace rooted at dir on the host filesystem, creating the
// directory if needed.
func New(dir string) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("workspace root %q: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root %q: %w", abs, err)
	}
	w := NewWithFs(afero.NewBasePathFs(afero.NewOsFs(), abs))
	w.root = abs
	return w, nil
}

// NewWithFs wraps an already-scoped filesystem.
func NewWithFs(fs afero.Fs) *Workspace {
	return &Workspace{fs: fs, root: "/", now: time.Now}
}

// Root returns the host directory backing the workspace, or "/" for
// workspaces created with NewWithFs.
func (w *Workspace) Root() string {
	return w.root
}

// Resolve cleans p and verifies it stays beneath the root.
func (w *Workspace) Resolve(p string) (string, error) {
	p = filepath.ToSlash(strings.TrimSpace(p))
	if p == "" {
		return ".", nil
	}
	if path.IsAbs(p) || filepath.IsAbs(p) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, p)
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, p)
	}
	return clean, nil
}

// Read returns the file content as text.
func (w *Workspace) Read(p string) (string, error) {
	name, err := w.Resolve(p)
	if err != nil {
		return "", err
	}
	data, err := afero.ReadFile(w.fs, name)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", p, err)
	}
	return string(data), nil
}

// Write replaces the file content, creating parent directories.
func (w *Workspace) Write(p, content string) error {
	name, err := w.Resolve(p)
	if err != nil {
		return err
	}
	if err := w.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	if err := afero.WriteFile(w.fs, name, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	return nil
}

// Append adds content to the end of the file, creating it if needed.
func (w *Workspace) Append(p, content string) error {
	name, err := w.Resolve(p)
	if err != nil {
		return err
	}
	if err := w.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return fmt.Errorf("append %s: %w", p, err)
	}
	f, err := w.fs.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("append %s: %w", p, err)
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return fmt.Errorf("append %s: %w", p, err)
	}
	return f.Close()
}

// Delete removes a file or an empty directory.
func (w *Workspace) Delete(p string) error {
	name, err := w.Resolve(p)
	if err != nil {
		return err
	}
	if name == "." {
		return fmt.Errorf("%w: refusing to delete root", ErrPathEscape)
	}
	if err := w.fs.Remove(name); err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	return nil
}

// ReadJSON parses the file as JSON.
func (w *Workspace) ReadJSON(p string) (any, error) {
	text, err := w.Read(p)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("parse %s: %w", p, err)
	}
	return v, nil
}

// WriteJSON stores v as indented JSON.
func (w *Workspace) WriteJSON(p string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", p, err)
	}
	return w.Write(p, string(data))
}

// List returns the sorted entry names of a directory.
func (w *Workspace) List(p string) ([]string, error) {
	name, err := w.Resolve(p)
	if err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(w.fs, name)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p, err)
	}
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.Name())
	}
	sort.Strings(out)
	return out, nil
}

// Glob returns paths matching pattern using filepath.Match syntax.
func (w *Workspace) Glob(pattern string) ([]string, error) {
	name, err := w.Resolve(pattern)
	if err != nil {
		return nil, err
	}
	matches, err := afero.Glob(w.fs, name)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	for i, m := range matches {
		matches[i] = filepath.ToSlash(m)
	}
	sort.Strings(matches)
	return matches, nil
}

// Mkdir creates a directory and any missing parents.
func (w *Workspace) Mkdir(p string) error {
	name, err := w.Resolve(p)
	if err != nil {
		return err
	}
	if err := w.fs.MkdirAll(name, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", p, err)
	}
	return nil
}

// Exists reports whether p exists.
func (w *Workspace) Exists(p string) (bool, error) {
	name, err := w.Resolve(p)
	if err != nil {
		return false, err
	}
	return afero.Exists(w.fs, name)
}

// Stat describes p.
func (w *Workspace) Stat(p string) (Info, error) {
	name, err := w.Resolve(p)
	if err != nil {
		return Info{}, err
	}
	fi, err := w.fs.Stat(name)
	if err != nil {
		return Info{}, fmt.Errorf("stat %s: %w", p, err)
	}
	return Info{
		Size:        fi.Size(),
		IsFile:      fi.Mode().IsRegular(),
		IsDirectory: fi.IsDir(),
		Modified:    fi.ModTime(),
	}, nil
}

// CleanupResults removes overflow results older than maxAge and returns how
// many files were deleted. A missing results directory is not an error.
func (w *Workspace) CleanupResults(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultResultMaxAge
	}
	infos, err := afero.ReadDir(w.fs, ResultsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("cleanup %s: %w", ResultsDir, err)
	}
	cutoff := w.now().Add(-maxAge)
	removed := 0
	for _, info := range infos {
		if info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := w.fs.Remove(path.Join(ResultsDir, info.Name())); err != nil {
			return removed, fmt.Errorf("cleanup %s: %w", info.Name(), err)
		}
		removed++
	}
	return removed, nil
}
