package tileserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"globeview/internal/metrics"
	"globeview/pkg/tiles"
)

// Archive reads tiles from an MBTiles file.
type Archive struct {
	db      *sqlx.DB
	path    string
	meta    map[string]string
	metrics *metrics.Metrics
}

type metadataRow struct {
	Name  string `db:"name"`
	Value string `db:"value"`
}

// OpenArchive opens an MBTiles file read-only and loads its metadata.
func OpenArchive(path string, m *metrics.Metrics) (*Archive, error) {
	// sqlite would happily create a missing file, so check first.
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	v := url.Values{}
	v.Add("mode", "ro")
	db, err := sqlx.Connect("sqlite3", fmt.Sprintf("file:%s?%s", path, v.Encode()))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name = 'tiles'`); err != nil || n == 0 {
		db.Close()
		if err == nil {
			err = errors.New("no tiles table")
		}
		return nil, fmt.Errorf("%s is not an mbtiles archive: %w", path, err)
	}

	var rows []metadataRow
	if err := db.Select(&rows, `SELECT name, value FROM metadata`); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s metadata: %w", path, err)
	}
	meta := make(map[string]string, len(rows))
	for _, r := range rows {
		meta[r.Name] = r.Value
	}

	return &Archive{db: db, path: path, meta: meta, metrics: m}, nil
}

func (a *Archive) Path() string { return a.path }

// Metadata returns a copy of the archive's metadata table.
func (a *Archive) Metadata() map[string]string {
	out := make(map[string]string, len(a.meta))
	for k, v := range a.meta {
		out[k] = v
	}
	return out
}

func (a *Archive) Format() string {
	if f := a.meta["format"]; f != "" {
		return f
	}
	return "png"
}

func (a *Archive) ContentType() string {
	if t := mime.TypeByExtension("." + a.Format()); t != "" {
		return t
	}
	if a.Format() == "pbf" {
		return "application/x-protobuf"
	}
	return "application/octet-stream"
}

// Tile reads one tile. MBTiles rows are stored in the TMS scheme.
func (a *Archive) Tile(ctx context.Context, coord tiles.TileCoord) ([]byte, error) {
	if !coord.Valid() {
		return nil, fmt.Errorf("tile %s: %w", coord, ErrTileNotFound)
	}
	var data []byte
	err := a.db.GetContext(ctx, &data,
		`SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?`,
		coord.Zoom, coord.X, coord.FlipY())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tile %s: %w", coord, ErrTileNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("tile %s: %w", coord, err)
	}
	if a.metrics != nil {
		a.metrics.TileFetches.WithLabelValues("archive").Inc()
	}
	return data, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}
