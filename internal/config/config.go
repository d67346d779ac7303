package config

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

const (
	EnvGlobe      = "GLOBEVIEW_GLOBE"
	EnvLocalTiles = "GLOBEVIEW_LOCAL_TILES"
	EnvResources  = "GLOBEVIEW_RESOURCES"
	EnvServerAddr = "GLOBEVIEW_SERVER_ADDR"
)

// Config holds application configuration
type Config struct {
	AppName   string    `toml:"app_name"`
	Display   Display   `toml:"display"`
	Tiles     Tiles     `toml:"tiles"`
	Resources Resources `toml:"resources"`
	Camera    Camera    `toml:"camera"`
	Server    Server    `toml:"server"`
}

// Display selects the projection
type Display struct {
	// Globe renders a 3-D globe instead of a flat map
	Globe bool `toml:"globe"`
}

// Tiles configures the base imagery layer
type Tiles struct {
	// UseLocal reads tiles from a packaged MBTiles archive instead of the network
	UseLocal bool `toml:"use_local"`

	Archive    string   `toml:"archive"`
	SearchDirs []string `toml:"search_dirs"`
	BaseURL    string   `toml:"base_url"`

	// CacheRoot overrides the platform cache directory
	CacheRoot string `toml:"cache_root"`

	PrefetchWorkers int `toml:"prefetch_workers"`
}

// Resources locates the region geometry files
type Resources struct {
	Dir string `toml:"dir"`
	Ext string `toml:"ext"`
}

// Camera is the startup fly-to target
type Camera struct {
	Lon             float64 `toml:"lon"`
	Lat             float64 `toml:"lat"`
	DurationSeconds float64 `toml:"duration_seconds"`
}

// Server configures the optional preview server
type Server struct {
	// Addr is empty to disable the server
	Addr string `toml:"addr"`
}

var (
	instance *Config
	once     sync.Once
	mu       sync.RWMutex
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		AppName: "globeview",
		Display: Display{
			Globe: false,
		},
		Tiles: Tiles{
			UseLocal:        false,
			Archive:         "geography-class_medres",
			SearchDirs:      []string{"."},
			BaseURL:         "http://tile.stamen.com/terrain/",
			PrefetchWorkers: 4,
		},
		Resources: Resources{
			Dir: "resources",
			Ext: "geojson",
		},
		// Madrid
		Camera: Camera{
			Lon:             -3.6704803,
			Lat:             40.5023056,
			DurationSeconds: 1.0,
		},
	}
}

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if instance == nil {
			instance = DefaultConfig()
		}
	})
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// Parse decodes TOML over the defaults
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("config parse failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load loads configuration from a file and makes it the global instance
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	Set(cfg)
	return cfg, nil
}

// Set replaces the global instance
func Set(cfg *Config) {
	once.Do(func() {})
	mu.Lock()
	defer mu.Unlock()
	instance = cfg
}

// Save writes the global configuration to a file
func Save(path string) error {
	cfg := Get()

	mu.RLock()
	defer mu.RUnlock()

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Validate checks values that would otherwise fail much later
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AppName) == "" {
		return fmt.Errorf("app_name is required")
	}
	if c.Tiles.UseLocal && strings.TrimSpace(c.Tiles.Archive) == "" {
		return fmt.Errorf("tiles.archive is required when tiles.use_local is set")
	}
	if c.Tiles.PrefetchWorkers < 0 {
		return fmt.Errorf("tiles.prefetch_workers must not be negative")
	}
	if !inRange(c.Camera.Lon, -180, 180) {
		return fmt.Errorf("camera.lon %v out of range", c.Camera.Lon)
	}
	if !inRange(c.Camera.Lat, -90, 90) {
		return fmt.Errorf("camera.lat %v out of range", c.Camera.Lat)
	}
	if !inRange(c.Camera.DurationSeconds, 0, math.MaxFloat64) {
		return fmt.Errorf("camera.duration_seconds %v must be a finite non-negative number", c.Camera.DurationSeconds)
	}
	return nil
}

// ApplyEnv overrides fields from the environment
func (c *Config) ApplyEnv() {
	if v, ok := parseBool(os.Getenv(EnvGlobe)); ok {
		c.Display.Globe = v
	}
	if v, ok := parseBool(os.Getenv(EnvLocalTiles)); ok {
		c.Tiles.UseLocal = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvResources)); v != "" {
		c.Resources.Dir = v
	}
	if v, ok := os.LookupEnv(EnvServerAddr); ok {
		c.Server.Addr = strings.TrimSpace(v)
	}
}

// inRange is false for NaN.
func inRange(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
