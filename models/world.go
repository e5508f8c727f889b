package models

// ImpassableCost marks a terrain type that can never be entered
const ImpassableCost = -1.0

// Zoom limits applied when a MapConfig leaves them unset
const (
	DefaultMinZoom = 1
	DefaultMaxZoom = 19
)

// MapConfig describes the tactical grid. It is fixed once the engine is initialized.
type MapConfig struct {
	GridSizeX        int           `json:"grid_size_x"`
	GridSizeY        int           `json:"grid_size_y"`
	CellSize         float64       `json:"cell_size"` // metres per cell
	InitialZoom      float64       `json:"initial_zoom"`
	InitialCenterLat float64       `json:"initial_center_lat"`
	InitialCenterLon float64       `json:"initial_center_lon"`
	MinZoom          float64       `json:"min_zoom,omitempty"`
	MaxZoom          float64       `json:"max_zoom,omitempty"`
	TerrainTypes     []TerrainType `json:"terrain_types"` // first entry is the default terrain
	ObstacleRule     string        `json:"obstacle_rule,omitempty"`
}

// Clone returns a deep copy of the config
func (c MapConfig) Clone() MapConfig {
	out := c
	out.TerrainTypes = append([]TerrainType(nil), c.TerrainTypes...)
	return out
}

// TerrainType is one entry of the terrain catalog
type TerrainType struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	MovementCost float64 `json:"movement_cost"` // ImpassableCost blocks movement
	Visual       string  `json:"visual,omitempty"`
}

// Passable reports whether units may enter terrain of this type
func (t TerrainType) Passable() bool {
	return t.MovementCost != ImpassableCost
}

// Raster is a row-major buffer of elevation samples, one per grid cell
type Raster struct {
	Width   int       `json:"width"`
	Height  int       `json:"height"`
	Samples []float64 `json:"samples"`
}

// Location is a named gazetteer entry
type Location struct {
	Name    string  `json:"name"`
	X       int     `json:"x"`
	Y       int     `json:"y"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Geohash string  `json:"geohash,omitempty"`
}
