package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"tacgrid/server/models"
)

// JSONStore handles data persistence using a local JSON file
type JSONStore struct {
	filePath string
	mutex    sync.RWMutex
	writeMu  sync.Mutex // orders snapshots and file writes
	data     *JSONData
}

// JSONData represents the structure of the JSON database
type JSONData struct {
	Maps      map[string]*models.MapConfig `json:"maps"`
	Locations map[string][]models.Location `json:"locations"` // keyed by map name
}

// NewJSONStore creates a new JSON storage manager
func NewJSONStore(filePath string) (*JSONStore, error) {
	store := &JSONStore{
		filePath: filePath,
		data: &JSONData{
			Maps:      make(map[string]*models.MapConfig),
			Locations: make(map[string][]models.Location),
		},
	}

	// Load existing data if file exists
	if _, err := os.Stat(filePath); err == nil {
		if err := store.loadFromFile(); err != nil {
			return nil, fmt.Errorf("failed to load JSON store: %w", err)
		}
	} else {
		// Create file if it doesn't exist
		if err := store.saveToFile(); err != nil {
			return nil, fmt.Errorf("failed to create JSON store file: %w", err)
		}
	}

	return store, nil
}

// loadFromFile loads data from the JSON file
func (js *JSONStore) loadFromFile() error {
	js.mutex.Lock()
	defer js.mutex.Unlock()

	file, err := os.ReadFile(js.filePath)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(file, js.data); err != nil {
		return err
	}
	if js.data.Maps == nil {
		js.data.Maps = make(map[string]*models.MapConfig)
	}
	if js.data.Locations == nil {
		js.data.Locations = make(map[string][]models.Location)
	}
	return nil
}

// saveToFile saves data to the JSON file. The latest snapshot always lands
// last on disk.
func (js *JSONStore) saveToFile() error {
	js.writeMu.Lock()
	defer js.writeMu.Unlock()

	js.mutex.RLock()
	data, err := json.MarshalIndent(js.data, "", "  ")
	js.mutex.RUnlock()
	if err != nil {
		return err
	}

	return os.WriteFile(js.filePath, data, 0644)
}

// SaveMapConfig saves a map configuration under name
func (js *JSONStore) SaveMapConfig(name string, cfg *models.MapConfig) error {
	clone := cfg.Clone()

	js.mutex.Lock()
	js.data.Maps[name] = &clone
	js.mutex.Unlock()

	return js.saveToFile()
}

// LoadMapConfig loads a map configuration by name
func (js *JSONStore) LoadMapConfig(name string) (*models.MapConfig, error) {
	js.mutex.RLock()
	defer js.mutex.RUnlock()

	cfg, exists := js.data.Maps[name]
	if !exists {
		return nil, fmt.Errorf("map config %s: %w", name, ErrNotFound)
	}

	clone := cfg.Clone()
	return &clone, nil
}

// SaveLocation adds or replaces a gazetteer entry. Names match case-insensitively.
func (js *JSONStore) SaveLocation(mapName string, loc models.Location) error {
	js.mutex.Lock()
	locs := js.data.Locations[mapName]
	replaced := false
	for i := range locs {
		if strings.EqualFold(locs[i].Name, loc.Name) {
			locs[i] = loc
			replaced = true
			break
		}
	}
	if !replaced {
		locs = append(locs, loc)
	}
	js.data.Locations[mapName] = locs
	js.mutex.Unlock()

	return js.saveToFile()
}

// LoadLocations returns the gazetteer of a map in insertion order
func (js *JSONStore) LoadLocations(mapName string) ([]models.Location, error) {
	js.mutex.RLock()
	defer js.mutex.RUnlock()

	return append([]models.Location(nil), js.data.Locations[mapName]...), nil
}

// Close closes the store (no-op for JSON store)
func (js *JSONStore) Close() error {
	return nil
}
