package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"globeview/internal/display"
	"globeview/internal/display/headless"
	"globeview/internal/ingest"
	"globeview/internal/logging"
	"globeview/internal/vectortile"
	"globeview/pkg/tiles"
)

func main() {
	dir := flag.String("dir", "resources", "directory holding region geometry files")
	ext := flag.String("ext", "geojson", "geometry file extension")
	names := flag.String("names", "", "comma-separated region names that must appear in the overlay tile")
	flag.Parse()

	logging.ConfigureRuntime()

	c := headless.NewEngine(headless.Options{}).NewController(display.Flat).(*headless.MapController)
	if err := c.AttachView(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	fmt.Printf("Ingesting *.%s from %s...\n", *ext, *dir)
	pipeline := ingest.New(ingest.NewDirSource(*dir, *ext), c)

	var ok, skipped, labels int
	for r := range pipeline.Results(context.Background()) {
		if r.Skipped() {
			skipped++
			fmt.Printf("  SKIP %s: %v\n", r.Path, r.Err)
			continue
		}
		ok++
		if r.Region.Label != nil {
			labels++
			fmt.Printf("  %s -> %q at (%.4f, %.4f)\n", r.Path, r.Region.Name,
				r.Region.Label.Loc.Lon(), r.Region.Label.Loc.Lat())
		} else {
			fmt.Printf("  %s -> (no label)\n", r.Path)
		}
	}

	fmt.Printf("\n=== Outlines: %d  Labels: %d  Skipped: %d ===\n", ok, labels, skipped)

	// Round-trip the whole world through one overlay tile.
	world := tiles.TileCoord{}.Maptile()
	data, err := vectortile.Encode(c.Overlays(), world)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding overlay tile: %v\n", err)
		os.Exit(1)
	}
	decoded, err := vectortile.Decode(data, world)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding overlay tile: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Overlay tile 0/0/0: %d bytes, %d regions, %d labels\n", len(data), len(decoded.Regions), len(decoded.Labels))

	missing := 0
	if *names != "" {
		want := strings.Split(*names, ",")
		for i := range want {
			want[i] = strings.TrimSpace(want[i])
		}
		found := map[string]bool{}
		for _, r := range vectortile.FilterRegionsByName(decoded.Regions, want...) {
			found[r.Name] = true
		}
		for _, n := range want {
			if found[n] {
				fmt.Printf("  found %s\n", n)
			} else {
				fmt.Printf("  MISSING %s\n", n)
				missing++
			}
		}
	}

	if skipped > 0 || missing > 0 {
		os.Exit(2)
	}
}
