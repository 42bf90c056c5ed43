// Package cache stores fetched source documents on disk under stable,
// human-readable names keyed by ticker and variant.
package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/earnings-cli/internal/model"
)

// ErrNotFound is returned by Read when no document is cached for the key.
var ErrNotFound = eris.New("cache: document not found")

var unsafeRe = regexp.MustCompile(`[^A-Z0-9]+`)

// Store is a friendly-named HTML cache rooted at a directory.
type Store struct {
	dir string
	now func() time.Time
}

// New creates the cache directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "cache: create dir %s", dir)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Dir returns the cache root.
func (s *Store) Dir() string { return s.dir }

// SafeSubject upper-cases a ticker and collapses anything that is not a
// letter or digit into a single underscore.
func SafeSubject(subject string) string {
	return strings.Trim(unsafeRe.ReplaceAllString(strings.ToUpper(strings.TrimSpace(subject)), "_"), "_")
}

// Path returns the file location for a subject and variant.
func (s *Store) Path(subject string, variant model.Variant) string {
	return filepath.Join(s.dir, SafeSubject(subject)+"_"+string(variant)+".html")
}

// Exists reports whether a document is cached.
func (s *Store) Exists(subject string, variant model.Variant) bool {
	info, err := os.Stat(s.Path(subject, variant))
	return err == nil && info.Mode().IsRegular()
}

// Write stores content and returns its location. The file is replaced
// atomically; concurrent writers for the same key are not serialized and
// the last rename wins.
func (s *Store) Write(subject string, variant model.Variant, content string) (string, error) {
	path := s.Path(subject, variant)

	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", eris.Wrapf(err, "cache: create temp for %s", path)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", eris.Wrapf(err, "cache: write %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", eris.Wrapf(err, "cache: close %s", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", eris.Wrapf(err, "cache: rename into %s", path)
	}
	return path, nil
}

// Read returns cached content or ErrNotFound.
func (s *Store) Read(subject string, variant model.Variant) (string, error) {
	path := s.Path(subject, variant)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", eris.Wrapf(ErrNotFound, "cache: %s", path)
		}
		return "", eris.Wrapf(err, "cache: read %s", path)
	}
	return string(b), nil
}

// Delete removes cached documents for the given variants. Missing entries
// are ignored.
func (s *Store) Delete(subject string, variants ...model.Variant) error {
	for _, v := range variants {
		path := s.Path(subject, v)
		if err := os.Remove(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return eris.Wrapf(err, "cache: delete %s", path)
		}
		zap.L().Info("cache: deleted document", zap.String("path", path))
	}
	return nil
}

// Purge deletes cached documents older than maxAge.
func (s *Store) Purge(maxAge time.Duration) (int, error) {
	return purgeDir(s.dir, []string{"*.html"}, maxAge, s.now())
}

// PurgeDir deletes files in dir matching any pattern whose modification time
// is older than maxAge. A missing dir deletes nothing.
func PurgeDir(dir string, patterns []string, maxAge time.Duration) (int, error) {
	return purgeDir(dir, patterns, maxAge, time.Now())
}

func purgeDir(dir string, patterns []string, maxAge time.Duration, now time.Time) (int, error) {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}

	count := 0
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return count, eris.Wrapf(err, "cache: glob %s", pattern)
		}
		for _, path := range matches {
			info, err := os.Stat(path)
			if err != nil {
				// Removed by another process between glob and stat.
				continue
			}
			age := now.Sub(info.ModTime())
			if age <= maxAge {
				continue
			}
			if err := os.Remove(path); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				zap.L().Warn("cache: failed to delete stale file", zap.String("path", path), zap.Error(err))
				continue
			}
			count++
			zap.L().Info("cache: deleted stale file",
				zap.String("path", path),
				zap.Float64("age_hours", age.Hours()),
			)
		}
	}
	return count, nil
}
