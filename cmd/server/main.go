package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tacgrid/server/config"
	"tacgrid/server/handlers"
	"tacgrid/server/models"
	"tacgrid/server/persistence"
	"tacgrid/server/services"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	if err := run(cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	mapCfg, err := resolveMapConfig(cfg, db)
	if err != nil {
		return err
	}

	format, err := persistence.ParseSampleFormat(cfg.RasterFormat)
	if err != nil {
		return err
	}

	// Initialize services
	grid := services.NewGridService()
	if err := grid.Initialize(mapCfg); err != nil {
		return err
	}
	clientManager := handlers.NewClientManager()
	api := handlers.NewAPI(grid, db, cfg.MapName, clientManager, format)

	if err := loadLocations(grid, db, cfg.MapName); err != nil {
		return err
	}

	startRasterFile(ctx, cfg.DEMPath, mapCfg, format, grid.StartDEM)
	startRasterFile(ctx, cfg.BathymetryPath, mapCfg, format, grid.StartBathymetry)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: api.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStorage(cfg *config.Config) (persistence.Storage, error) {
	if cfg.DBType == "postgres" {
		db, err := persistence.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		slog.Info("using PostgreSQL persistence")
		return db, nil
	}

	// Default to JSON store
	db, err := persistence.NewJSONStore(cfg.DBFile)
	if err != nil {
		return nil, err
	}
	slog.Info("using JSON persistence", "file", cfg.DBFile)
	return db, nil
}

// resolveMapConfig prefers an explicit config file, then the stored config
// for the map, then the built-in default. The chosen config is stored.
func resolveMapConfig(cfg *config.Config, db persistence.Storage) (models.MapConfig, error) {
	if cfg.MapConfigPath != "" {
		mc, err := config.LoadMapConfig(cfg.MapConfigPath)
		if err != nil {
			return models.MapConfig{}, err
		}
		if err := db.SaveMapConfig(cfg.MapName, mc); err != nil {
			return models.MapConfig{}, err
		}
		return *mc, nil
	}

	mc, err := db.LoadMapConfig(cfg.MapName)
	if err == nil {
		return *mc, nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return models.MapConfig{}, err
	}

	def := config.DefaultMapConfig()
	slog.Info("no stored map config, using default", "map", cfg.MapName)
	if err := db.SaveMapConfig(cfg.MapName, &def); err != nil {
		return models.MapConfig{}, err
	}
	return def, nil
}

func loadLocations(grid *services.GridService, db persistence.Storage, mapName string) error {
	locs, err := db.LoadLocations(mapName)
	if err != nil {
		return err
	}
	for _, loc := range locs {
		if _, err := grid.AddLocation(loc.Name, loc.X, loc.Y); err != nil {
			slog.Warn("skipping stored location", "name", loc.Name, "error", err)
		}
	}
	slog.Info("gazetteer loaded", "map", mapName, "locations", len(locs))
	return nil
}

// startRasterFile ingests the raster at path in the background, if set
func startRasterFile(ctx context.Context, path string, mc models.MapConfig, format persistence.SampleFormat,
	start func(context.Context, models.Raster) (*services.IngestTask, error)) {
	if path == "" {
		return
	}
	raster, err := persistence.ReadRasterFile(path, mc.GridSizeX, mc.GridSizeY, format)
	if err != nil {
		slog.Error("failed to read raster", "path", path, "error", err)
		return
	}
	task, err := start(ctx, raster)
	if err != nil {
		slog.Error("failed to start raster ingestion", "path", path, "error", err)
		return
	}
	go func() {
		if gen, err := task.Wait(); err != nil {
			slog.Error("raster ingestion failed", "path", path, "error", err)
		} else {
			slog.Info("raster ingested", "path", path, "generation", gen)
		}
	}()
}
