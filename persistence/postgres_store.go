package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tacgrid/server/models"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresStore handles database operations using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL storage manager
func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}

	// Initialize the database schema
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema initializes the database schema
func (dm *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS map_configs (
		name TEXT PRIMARY KEY,
		config JSONB NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS locations (
		id SERIAL PRIMARY KEY,
		map_name TEXT NOT NULL,
		name TEXT NOT NULL,
		name_key TEXT NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		lat DOUBLE PRECISION NOT NULL,
		lon DOUBLE PRECISION NOT NULL,
		geohash TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		UNIQUE(map_name, name_key)
	);
	`

	_, err := dm.db.Exec(schema)
	return err
}

// SaveMapConfig saves a map configuration under name
func (dm *PostgresStore) SaveMapConfig(name string, cfg *models.MapConfig) error {
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal map config: %w", err)
	}

	query := `
	INSERT INTO map_configs (name, config)
	VALUES ($1, $2)
	ON CONFLICT (name)
	DO UPDATE SET config = $2, updated_at = NOW()
	`

	if _, err := dm.db.Exec(query, name, string(configJSON)); err != nil {
		return fmt.Errorf("failed to save map config: %w", err)
	}

	return nil
}

// LoadMapConfig loads a map configuration by name
func (dm *PostgresStore) LoadMapConfig(name string) (*models.MapConfig, error) {
	var configJSON string
	err := dm.db.QueryRow(`SELECT config FROM map_configs WHERE name = $1`, name).Scan(&configJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("map config %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load map config: %w", err)
	}

	var cfg models.MapConfig
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal map config: %w", err)
	}

	return &cfg, nil
}

// SaveLocation adds or replaces a gazetteer entry. Names match case-insensitively.
func (dm *PostgresStore) SaveLocation(mapName string, loc models.Location) error {
	query := `
	INSERT INTO locations (map_name, name, name_key, x, y, lat, lon, geohash)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (map_name, name_key)
	DO UPDATE SET
		name = $2, x = $4, y = $5, lat = $6, lon = $7, geohash = $8,
		updated_at = NOW()
	`

	_, err := dm.db.Exec(query,
		mapName, loc.Name, strings.ToLower(strings.TrimSpace(loc.Name)),
		loc.X, loc.Y, loc.Lat, loc.Lon, loc.Geohash)
	if err != nil {
		return fmt.Errorf("failed to save location: %w", err)
	}

	return nil
}

// LoadLocations returns the gazetteer of a map in insertion order
func (dm *PostgresStore) LoadLocations(mapName string) ([]models.Location, error) {
	rows, err := dm.db.Query(
		`SELECT name, x, y, lat, lon, geohash FROM locations WHERE map_name = $1 ORDER BY id`,
		mapName)
	if err != nil {
		return nil, fmt.Errorf("failed to load locations: %w", err)
	}
	defer rows.Close()

	var locs []models.Location
	for rows.Next() {
		var loc models.Location
		if err := rows.Scan(&loc.Name, &loc.X, &loc.Y, &loc.Lat, &loc.Lon, &loc.Geohash); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locs = append(locs, loc)
	}

	return locs, rows.Err()
}

// Close closes the database connection
func (dm *PostgresStore) Close() error {
	slog.Info("closing database connection")
	return dm.db.Close()
}
