package persistence

import (
	"errors"

	"tacgrid/server/models"
)

// ErrNotFound is returned when a map config does not exist in the store
var ErrNotFound = errors.New("not found")

// Storage keeps the data the engine is seeded from: map configurations and
// the gazetteer. Grid state itself is never persisted.
type Storage interface {
	SaveMapConfig(name string, cfg *models.MapConfig) error
	LoadMapConfig(name string) (*models.MapConfig, error)
	SaveLocation(mapName string, loc models.Location) error
	LoadLocations(mapName string) ([]models.Location, error)
	Close() error
}
