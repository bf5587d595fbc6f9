// Package blob stores uploaded files and hands back the URL they are served
// from. The service layer never looks inside an upload; posts only keep the
// returned URL.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// URLPrefix is where the router serves LocalStore files from.
const URLPrefix = "/uploads/"

// ErrEmptyName is returned by Put when the upload carries no usable file name.
var ErrEmptyName = errors.New("blob: empty file name")

// Store persists an upload and returns its public URL.
type Store interface {
	Put(ctx context.Context, originalName string, r io.Reader) (string, error)
}

// LocalStore writes uploads to a directory on disk.
type LocalStore struct {
	dir string
	now func() time.Time
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: creating upload dir %s: %w", dir, err)
	}
	return &LocalStore{dir: dir, now: time.Now}, nil
}

// FileSystem exposes the stored files for http.FileServer. Directories,
// the upload root included, do not exist as far as it is concerned, so a
// request for one is a 404 rather than a listing.
func (s *LocalStore) FileSystem() http.FileSystem {
	return filesOnly{http.Dir(s.dir)}
}

type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}

// Put writes r to <dir>/<unixnano>-<sanitized name>. The timestamp prefix
// keeps two uploads of "paper.pdf" from overwriting each other; O_EXCL makes
// a same-nanosecond collision an error instead of a silent overwrite.
func (s *LocalStore) Put(ctx context.Context, originalName string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := sanitize(originalName)
	if name == "" {
		return "", ErrEmptyName
	}
	name = strconv.FormatInt(s.now().UnixNano(), 10) + "-" + name
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("blob: creating %s: %w", name, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("blob: writing %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("blob: closing %s: %w", name, err)
	}

	return URLPrefix + name, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitize reduces a client-supplied name to a safe base name: no directory
// components, no leading dots, and only [A-Za-z0-9._-].
func sanitize(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "_" {
		return ""
	}
	return name
}
