package ingest

import (
	"io/fs"
	"os"
	"path"
	"strings"
)

// Source enumerates and reads geometry resource files.
type Source interface {
	// List returns file names in no guaranteed order.
	List() ([]string, error)
	Read(name string) ([]byte, error)
}

// DirSource lists files with one extension in the top level of a filesystem.
type DirSource struct {
	FS  fs.FS
	Ext string
}

// NewDirSource serves *.ext files from dir on disk.
func NewDirSource(dir, ext string) DirSource {
	return DirSource{FS: os.DirFS(dir), Ext: ext}
}

func (d DirSource) List() ([]string, error) {
	entries, err := fs.ReadDir(d.FS, ".")
	if err != nil {
		return nil, err
	}
	suffix := "." + strings.TrimPrefix(d.Ext, ".")
	var names []string
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != suffix {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (d DirSource) Read(name string) ([]byte, error) {
	return fs.ReadFile(d.FS, name)
}
