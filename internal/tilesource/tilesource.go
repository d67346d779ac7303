// Package tilesource picks and validates the base imagery backend: a packaged
// MBTiles archive or a remote XYZ service with an on-disk cache.
package tilesource

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"globeview/internal/tileserver"
)

// ErrResourceMissing is returned when the chosen tile source cannot be built.
var ErrResourceMissing = errors.New("tile source resource missing")

const (
	// DefaultBaseURL is Stamen Terrain. Tiles by Stamen Design under CC BY 3.0,
	// data by OpenStreetMap under ODbL.
	DefaultBaseURL     = "http://tile.stamen.com/terrain/"
	DefaultExt         = "png"
	DefaultArchiveName = "geography-class_medres"

	MinZoom = 0
	MaxZoom = 18

	archiveExt = ".mbtiles"
)

// Descriptor is either Local or Remote.
type Descriptor interface {
	Kind() string
	isDescriptor()
}

// Local is a packaged MBTiles archive.
type Local struct {
	ArchiveName string
	Path        string
}

func (Local) Kind() string  { return "local" }
func (Local) isDescriptor() {}

// Remote is an XYZ tile service: {BaseURL}{z}/{x}/{y}.{Ext}.
type Remote struct {
	BaseURL  string
	Ext      string
	MinZoom  int
	MaxZoom  int
	CacheDir string
}

func (Remote) Kind() string  { return "remote" }
func (Remote) isDescriptor() {}

type Options struct {
	ArchiveName string
	// SearchDirs are tried in order for <ArchiveName>.mbtiles.
	SearchDirs []string
	BaseURL    string
	// CacheRoot defaults to os.UserCacheDir.
	CacheRoot string
	AppName   string
}

func DefaultOptions() Options {
	return Options{
		ArchiveName: DefaultArchiveName,
		SearchDirs:  []string{"."},
		BaseURL:     DefaultBaseURL,
		AppName:     "globeview",
	}
}

// Select builds the descriptor for the requested backend. Failures wrap
// ErrResourceMissing and are not retried.
func Select(useLocalTiles bool, opts Options) (Descriptor, error) {
	if useLocalTiles {
		return selectLocal(opts)
	}
	return selectRemote(opts)
}

func selectLocal(opts Options) (Descriptor, error) {
	name := strings.TrimSuffix(opts.ArchiveName, archiveExt)
	if name == "" {
		return nil, fmt.Errorf("no archive name: %w", ErrResourceMissing)
	}

	var lastErr error
	for _, dir := range opts.SearchDirs {
		path := filepath.Join(dir, name+archiveExt)
		a, err := tileserver.OpenArchive(path, nil)
		if err != nil {
			lastErr = err
			continue
		}
		a.Close()
		return Local{ArchiveName: name, Path: path}, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no search directories")
	}
	return nil, fmt.Errorf("can't load %q mbtiles: %w: %v", name, ErrResourceMissing, lastErr)
}

func selectRemote(opts Options) (Descriptor, error) {
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("remote tile source %q: %w: %v", base, ErrResourceMissing, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("remote tile source %q: %w: not an absolute http(s) url", base, ErrResourceMissing)
	}

	cacheDir, err := CacheDir(opts.CacheRoot, opts.AppName)
	if err != nil {
		return nil, fmt.Errorf("remote tile cache: %w: %v", ErrResourceMissing, err)
	}

	return Remote{
		BaseURL:  base,
		Ext:      DefaultExt,
		MinZoom:  MinZoom,
		MaxZoom:  MaxZoom,
		CacheDir: cacheDir,
	}, nil
}

// CacheDir returns <root>/<app>/tiles/, creating it private to the user.
func CacheDir(root, app string) (string, error) {
	if root == "" {
		var err error
		root, err = os.UserCacheDir()
		if err != nil {
			return "", err
		}
	}
	dir := filepath.Join(root, app, "tiles")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir + string(filepath.Separator), nil
}
