package tilesource

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"globeview/internal/testutil/testlog"
)

func writeArchive(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name+".mbtiles")
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	defer db.Close()
	db.MustExec(`CREATE TABLE metadata (name TEXT, value TEXT)`)
	db.MustExec(`CREATE TABLE tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB)`)
	return path
}

func TestSelectRemote(t *testing.T) {
	testlog.Start(t)
	opts := DefaultOptions()
	opts.CacheRoot = t.TempDir()

	d, err := Select(false, opts)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	r, ok := d.(Remote)
	if !ok {
		t.Fatalf("expected Remote, got %T", d)
	}
	if r.MinZoom != 0 || r.MaxZoom != 18 || r.Ext != "png" || r.BaseURL != DefaultBaseURL {
		t.Fatalf("unexpected descriptor %+v", r)
	}
	if !strings.HasSuffix(r.CacheDir, "/tiles/") {
		t.Fatalf("cache dir %q must end in /tiles/", r.CacheDir)
	}
	info, err := os.Stat(r.CacheDir)
	if err != nil || !info.IsDir() {
		t.Fatalf("cache dir not created: %v", err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		t.Fatalf("cache dir must be private, mode %v", info.Mode().Perm())
	}
}

func TestSelectRemoteUsesUserCacheDir(t *testing.T) {
	testlog.Start(t)
	root := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", root)
	t.Setenv("HOME", root)

	d, err := Select(false, DefaultOptions())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	r := d.(Remote)
	if r.CacheDir == "" || !strings.HasSuffix(r.CacheDir, "/tiles/") {
		t.Fatalf("cache dir %q", r.CacheDir)
	}
}

func TestSelectRemoteMalformedTemplate(t *testing.T) {
	testlog.Start(t)
	for _, base := range []string{"://nope", "tile.stamen.com/terrain/", "ftp://tiles.example/", "http:///terrain"} {
		opts := DefaultOptions()
		opts.CacheRoot = t.TempDir()
		opts.BaseURL = base
		if _, err := Select(false, opts); !errors.Is(err, ErrResourceMissing) {
			t.Fatalf("base %q: expected ErrResourceMissing, got %v", base, err)
		}
	}
}

func TestSelectLocal(t *testing.T) {
	testlog.Start(t)
	empty := t.TempDir()
	dir := t.TempDir()
	path := writeArchive(t, dir, DefaultArchiveName)

	opts := DefaultOptions()
	opts.SearchDirs = []string{empty, dir}

	d, err := Select(true, opts)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	l, ok := d.(Local)
	if !ok || l.Path != path || l.ArchiveName != DefaultArchiveName || l.Kind() != "local" {
		t.Fatalf("unexpected descriptor %#v", d)
	}
}

func TestSelectLocalMissingArchive(t *testing.T) {
	testlog.Start(t)
	opts := DefaultOptions()
	opts.SearchDirs = []string{t.TempDir()}
	opts.ArchiveName = "no-such-archive"

	if _, err := Select(true, opts); !errors.Is(err, ErrResourceMissing) {
		t.Fatalf("expected ErrResourceMissing, got %v", err)
	}

	opts.ArchiveName = ""
	if _, err := Select(true, opts); !errors.Is(err, ErrResourceMissing) {
		t.Fatalf("expected ErrResourceMissing for empty name, got %v", err)
	}
}
