package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"tacgrid/server/models"
)

// Config holds all server configuration
type Config struct {
	ServerAddr     string
	DBType         string // "json" or "postgres"
	DatabaseURL    string
	DBFile         string
	MapName        string
	MapConfigPath  string
	DEMPath        string
	BathymetryPath string
	RasterFormat   string
	LogLevel       slog.Level
}

// Load reads the configuration from the environment
func Load() *Config {
	return &Config{
		ServerAddr:     getenv("SERVER_ADDR", ":8080"),
		DBType:         strings.ToLower(getenv("DB_TYPE", "json")),
		DatabaseURL:    getenv("DATABASE_URL", "host=localhost user=tacgrid password=tacgrid dbname=tacgrid sslmode=disable"),
		DBFile:         getenv("DB_FILE", "db.json"),
		MapName:        getenv("MAP_NAME", "default"),
		MapConfigPath:  os.Getenv("MAP_CONFIG"),
		DEMPath:        os.Getenv("DEM_FILE"),
		BathymetryPath: os.Getenv("BATHYMETRY_FILE"),
		RasterFormat:   getenv("RASTER_FORMAT", "f32"),
		LogLevel:       parseLevel(os.Getenv("LOG_LEVEL")),
	}
}

// LoadMapConfig reads a JSON map configuration file
func LoadMapConfig(path string) (*models.MapConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load map config %s: %w", path, err)
	}

	var cfg models.MapConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse map config %s: %w", path, err)
	}

	return &cfg, nil
}

// DefaultMapConfig is used when no map configuration is supplied: a
// 256x256 grid of 100 m cells with a small temperate terrain catalog.
func DefaultMapConfig() models.MapConfig {
	return models.MapConfig{
		GridSizeX:        256,
		GridSizeY:        256,
		CellSize:         100,
		InitialZoom:      4,
		InitialCenterLat: 50.0,
		InitialCenterLon: 8.0,
		MinZoom:          models.DefaultMinZoom,
		MaxZoom:          models.DefaultMaxZoom,
		TerrainTypes: []models.TerrainType{
			{ID: 0, Name: "Open", MovementCost: 1, Visual: "open"},
			{ID: 1, Name: "Road", MovementCost: 0.5, Visual: "road"},
			{ID: 2, Name: "Forest", MovementCost: 2, Visual: "forest"},
			{ID: 3, Name: "Urban", MovementCost: 1.5, Visual: "urban"},
			{ID: 4, Name: "Marsh", MovementCost: 3, Visual: "marsh"},
			{ID: 5, Name: "Water", MovementCost: models.ImpassableCost, Visual: "water"},
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
