// Package upload stores user supplied files on local disk and turns stored
// paths into absolute URLs.
package upload

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/example/ec-storefront/internal/apperror"
)

// URLPrefix is where stored files are served from.
const URLPrefix = "/uploads/"

// Areas group files by owner type.
const (
	AreaProducts   = "product-images"
	AreaCategories = "category-images"
	AreaTickets    = "tickets"
)

var (
	ErrUnsupportedType = apperror.BadRequest("Invalid file type")
	ErrTooLarge        = apperror.BadRequest("File too large")
	ErrEmptyFile       = apperror.BadRequest("Empty file")
)

var absoluteURL = regexp.MustCompile(`^https?://`)

// File is an upload read into memory.
type File struct {
	Name string
	Data []byte
}

// Saved describes a stored file.
type Saved struct {
	Path string `json:"url"`
	Kind Kind   `json:"type"`
}

// Storage writes under Dir and builds URLs against BaseURL. Both are injected
// from configuration.
type Storage struct {
	dir     string
	baseURL string
	maxSize int64
}

func New(dir, baseURL string, maxSize int64) *Storage {
	return &Storage{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/"), maxSize: maxSize}
}

// MaxSize is the per-file limit in bytes; zero means unlimited.
func (s *Storage) MaxSize() int64 { return s.maxSize }

// Check validates size and content of f against the allowed kinds without
// touching disk.
func (s *Storage) Check(f File, allowed ...Kind) (Kind, string, error) {
	if len(f.Data) == 0 {
		return "", "", ErrEmptyFile
	}
	if s.maxSize > 0 && int64(len(f.Data)) > s.maxSize {
		return "", "", ErrTooLarge.Withf("File %q exceeds %d bytes", f.Name, s.maxSize)
	}
	kind, ext, ok := Sniff(f.Data)
	if !ok || (len(allowed) > 0 && !slices.Contains(allowed, kind)) {
		return "", "", ErrUnsupportedType.Withf("Invalid file type: %s", f.Name)
	}
	return kind, ext, nil
}

// CheckAll validates every file before any is written.
func (s *Storage) CheckAll(files []File, allowed ...Kind) error {
	for _, f := range files {
		if _, _, err := s.Check(f, allowed...); err != nil {
			return err
		}
	}
	return nil
}

// Save validates f and writes it under area with a random name.
func (s *Storage) Save(area string, f File, allowed ...Kind) (Saved, error) {
	kind, ext, err := s.Check(f, allowed...)
	if err != nil {
		return Saved{}, err
	}
	dir := filepath.Join(s.dir, area)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Saved{}, errors.Wrap(err, "create upload dir")
	}
	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(dir, name), f.Data, 0o644); err != nil {
		return Saved{}, errors.Wrap(err, "write upload")
	}
	return Saved{Path: URLPrefix + area + "/" + name, Kind: kind}, nil
}

// SaveAll saves files in order. On failure the files already written are
// removed.
func (s *Storage) SaveAll(area string, files []File, allowed ...Kind) ([]Saved, error) {
	if err := s.CheckAll(files, allowed...); err != nil {
		return nil, err
	}
	out := make([]Saved, 0, len(files))
	for _, f := range files {
		saved, err := s.Save(area, f, allowed...)
		if err != nil {
			s.DeleteAll(out)
			return nil, err
		}
		out = append(out, saved)
	}
	return out, nil
}

// Delete removes a file previously returned by Save. Paths outside the
// upload tree and already missing files are ignored.
func (s *Storage) Delete(stored string) error {
	p, ok := s.localPath(stored)
	if !ok {
		return nil
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "remove upload")
	}
	return nil
}

// DeleteAll removes saved files, ignoring errors.
func (s *Storage) DeleteAll(saved []Saved) {
	for _, f := range saved {
		_ = s.Delete(f.Path)
	}
}

func (s *Storage) localPath(stored string) (string, bool) {
	if absoluteURL.MatchString(stored) {
		base := s.baseURL
		if base == "" || !strings.HasPrefix(stored, base) {
			return "", false
		}
		stored = strings.TrimPrefix(stored, base)
	}
	clean := path.Clean(stored)
	if !strings.HasPrefix(clean, URLPrefix) {
		return "", false
	}
	rel := strings.TrimPrefix(clean, URLPrefix)
	return filepath.Join(s.dir, filepath.FromSlash(rel)), true
}

// URL makes a stored path absolute. Empty and already absolute values pass
// through.
func (s *Storage) URL(stored string) string {
	if stored == "" || absoluteURL.MatchString(stored) {
		return stored
	}
	return s.baseURL + stored
}

// URLs maps URL over paths.
func (s *Storage) URLs(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = s.URL(p)
	}
	return out
}

// Handler serves stored files; mount it at URLPrefix.
func (s *Storage) Handler() http.Handler {
	fs := http.FileServer(http.Dir(s.dir))
	return http.StripPrefix(strings.TrimSuffix(URLPrefix, "/"), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		fs.ServeHTTP(w, r)
	}))
}
