package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"
)

// Candidate is one recording found by Scan.
type Candidate struct {
	Key     string
	Path    string
	Size    int64
	ModTime time.Time
}

type observation struct {
	size    int64
	modTime time.Time
	since   time.Time
}

// Scanner walks the source directory and tracks file stability between
// scans. It is not safe for concurrent use.
type Scanner struct {
	root      string
	exts      []string
	stability time.Duration
	minAge    time.Duration
	observed  map[string]observation
}

// New builds a Scanner for root. exts are lower-case with a leading dot.
func New(root string, exts []string, stability, minAge time.Duration) *Scanner {
	return &Scanner{
		root:      root,
		exts:      slices.Clone(exts),
		stability: stability,
		minAge:    minAge,
		observed:  make(map[string]observation),
	}
}

// Root returns the source directory.
func (s *Scanner) Root() string {
	return s.root
}

// Scan lists recordings under the root, oldest modification time first.
// Hidden files and directories are skipped.
func (s *Scanner) Scan() ([]Candidate, error) {
	var out []Candidate
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root {
				return err
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path != s.root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if !slices.Contains(s.exts, strings.ToLower(filepath.Ext(path))) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		key, err := s.KeyFor(path)
		if err != nil {
			return err
		}
		out = append(out, Candidate{Key: key, Path: path, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.root, err)
	}
	slices.SortFunc(out, func(a, b Candidate) int {
		if c := a.ModTime.Compare(b.ModTime); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})
	s.prune(out)
	return out, nil
}

// Stable records an observation of c and reports whether it has been
// unchanged for the stability window and is old enough.
func (s *Scanner) Stable(c Candidate, now time.Time) bool {
	prev, seen := s.observed[c.Key]
	if !seen || prev.size != c.Size || !prev.modTime.Equal(c.ModTime) {
		prev = observation{size: c.Size, modTime: c.ModTime, since: now}
		s.observed[c.Key] = prev
	}
	if now.Sub(c.ModTime) < s.minAge {
		return false
	}
	return now.Sub(prev.since) >= s.stability
}

// Forget drops the stability history of key.
func (s *Scanner) Forget(key string) {
	delete(s.observed, key)
}

func (s *Scanner) prune(current []Candidate) {
	if len(s.observed) == 0 {
		return
	}
	present := make(map[string]struct{}, len(current))
	for _, c := range current {
		present[c.Key] = struct{}{}
	}
	for key := range s.observed {
		if _, ok := present[key]; !ok {
			delete(s.observed, key)
		}
	}
}

// KeyFor returns the identity key of path.
func (s *Scanner) KeyFor(path string) (string, error) {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return "", fmt.Errorf("relative path for %s: %w", path, err)
	}
	return filepath.ToSlash(rel), nil
}

// PathFor maps an identity key back to a file path under the root.
func (s *Scanner) PathFor(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

var datePattern = regexp.MustCompile(`(\d{4})[-_.](\d{2})[-_.](\d{2})`)

// RecordingDate extracts a YYYY-MM-DD date from the file name, falling back
// to the modification time in loc.
func RecordingDate(key string, modTime time.Time, loc *time.Location) string {
	if m := datePattern.FindStringSubmatch(filepath.Base(key)); m != nil {
		candidate := m[1] + "-" + m[2] + "-" + m[3]
		if _, err := time.Parse(time.DateOnly, candidate); err == nil {
			return candidate
		}
	}
	if loc == nil {
		loc = time.Local
	}
	return modTime.In(loc).Format(time.DateOnly)
}
