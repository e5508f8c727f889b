package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"tacgrid/server/models"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"SERVER_ADDR", "DB_TYPE", "DB_FILE", "MAP_NAME", "MAP_CONFIG", "RASTER_FORMAT", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	if cfg.ServerAddr != ":8080" || cfg.DBType != "json" || cfg.DBFile != "db.json" || cfg.MapName != "default" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.MapConfigPath != "" || cfg.RasterFormat != "f32" || cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SERVER_ADDR", "127.0.0.1:9000")
	t.Setenv("DB_TYPE", "Postgres")
	t.Setenv("MAP_NAME", "normandy")
	t.Setenv("DEM_FILE", "/data/dem.f32")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()
	if cfg.ServerAddr != "127.0.0.1:9000" || cfg.DBType != "postgres" || cfg.MapName != "normandy" {
		t.Fatalf("config = %+v", cfg)
	}
	if cfg.DEMPath != "/data/dem.f32" || cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("config = %+v", cfg)
	}

	t.Setenv("LOG_LEVEL", "loud")
	if Load().LogLevel != slog.LevelInfo {
		t.Fatal("unknown log level should fall back to info")
	}
}

func TestLoadMapConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "map.json")
	body := `{
		"grid_size_x": 64,
		"grid_size_y": 32,
		"cell_size": 50,
		"initial_zoom": 3,
		"initial_center_lat": 49.4,
		"initial_center_lon": -0.8,
		"terrain_types": [
			{"id": 0, "name": "Bocage", "movement_cost": 2},
			{"id": 1, "name": "Sea", "movement_cost": -1}
		],
		"obstacle_rule": "Height > 200"
	}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadMapConfig(path)
	if err != nil {
		t.Fatalf("LoadMapConfig: %v", err)
	}
	if cfg.GridSizeX != 64 || cfg.CellSize != 50 || cfg.InitialCenterLon != -0.8 || cfg.ObstacleRule != "Height > 200" {
		t.Fatalf("config = %+v", cfg)
	}
	if len(cfg.TerrainTypes) != 2 || cfg.TerrainTypes[1].Passable() {
		t.Fatalf("terrain types = %+v", cfg.TerrainTypes)
	}

	if _, err := LoadMapConfig(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("LoadMapConfig of a missing file succeeded")
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("[1,2"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadMapConfig(bad); err == nil {
		t.Fatal("LoadMapConfig accepted malformed JSON")
	}
}

func TestDefaultMapConfig(t *testing.T) {
	cfg := DefaultMapConfig()
	if cfg.GridSizeX <= 0 || cfg.GridSizeY <= 0 || cfg.CellSize <= 0 {
		t.Fatalf("default geometry = %+v", cfg)
	}
	if len(cfg.TerrainTypes) == 0 || !cfg.TerrainTypes[0].Passable() {
		t.Fatal("default terrain must be passable")
	}
	var impassable int
	for _, tt := range cfg.TerrainTypes {
		if tt.MovementCost == models.ImpassableCost {
			impassable++
		}
	}
	if impassable != 1 {
		t.Fatalf("expected exactly one impassable terrain, got %d", impassable)
	}
}
