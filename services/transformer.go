package services

import (
	"math"

	"tacgrid/server/models"
)

// MetersPerDegreeLat is the length of one degree of latitude used by the linear transform
const MetersPerDegreeLat = 111320.0

// CoordinateTransformer maps between geographic coordinates and grid cells with
// an equirectangular approximation centred on the configured origin. Grid y grows
// southward, like screen rows.
type CoordinateTransformer struct {
	sizeX, sizeY  int
	cellSize      float64
	originLat     float64
	originLon     float64
	degLatPerCell float64
	degLonPerCell float64
}

// NewCoordinateTransformer validates the geometry of cfg and builds a transformer
func NewCoordinateTransformer(cfg models.MapConfig) (*CoordinateTransformer, error) {
	if cfg.GridSizeX <= 0 || cfg.GridSizeY <= 0 {
		return nil, configValidation("grid size must be positive")
	}
	if !isFinite(cfg.CellSize) || cfg.CellSize <= 0 {
		return nil, configValidation("cell size must be a positive finite number")
	}
	if !validLatLon(cfg.InitialCenterLat, cfg.InitialCenterLon) {
		return nil, configValidation("initial center is not a valid latitude/longitude")
	}

	cosLat := math.Cos(cfg.InitialCenterLat * math.Pi / 180.0)
	if cosLat < 1e-9 {
		return nil, configValidation("initial center latitude too close to a pole")
	}

	ct := &CoordinateTransformer{
		sizeX:         cfg.GridSizeX,
		sizeY:         cfg.GridSizeY,
		cellSize:      cfg.CellSize,
		originLat:     cfg.InitialCenterLat,
		originLon:     cfg.InitialCenterLon,
		degLatPerCell: cfg.CellSize / MetersPerDegreeLat,
	}
	ct.degLonPerCell = ct.degLatPerCell / cosLat

	// The whole grid must be representable, corners included.
	north, west := ct.GridToLatLonF(0, 0)
	south, east := ct.GridToLatLonF(float64(cfg.GridSizeX), float64(cfg.GridSizeY))
	if !validLatLon(north, west) || !validLatLon(south, east) {
		return nil, configValidation("grid extent leaves the valid geographic range")
	}

	return ct, nil
}

// InBounds reports whether (x, y) addresses a cell of the grid
func (ct *CoordinateTransformer) InBounds(x, y int) bool {
	return x >= 0 && x < ct.sizeX && y >= 0 && y < ct.sizeY
}

// GridToLatLon returns the geographic position of the centre of cell (x, y)
func (ct *CoordinateTransformer) GridToLatLon(x, y int) (models.GeoCoord, error) {
	if !ct.InBounds(x, y) {
		return models.GeoCoord{}, cellOutOfBounds("grid_to_latlon", x, y)
	}
	lat, lon := ct.GridToLatLonF(float64(x)+0.5, float64(y)+0.5)
	return models.GeoCoord{Lat: lat, Lon: lon}, nil
}

// LatLonToGrid returns the cell containing (lat, lon)
func (ct *CoordinateTransformer) LatLonToGrid(lat, lon float64) (models.GridCoord, error) {
	if !validLatLon(lat, lon) {
		return models.GridCoord{}, geoOutOfBounds("latlon_to_grid", lat, lon)
	}
	fx, fy := ct.LatLonToGridF(lat, lon)
	x, y := int(math.Floor(fx)), int(math.Floor(fy))
	if fx < 0 || fy < 0 || !ct.InBounds(x, y) {
		return models.GridCoord{}, geoOutOfBounds("latlon_to_grid", lat, lon)
	}
	return models.GridCoord{X: x, Y: y}, nil
}

// GridToLatLonF is the continuous forward transform. It performs no bounds checks.
func (ct *CoordinateTransformer) GridToLatLonF(fx, fy float64) (lat, lon float64) {
	lon = ct.originLon + (fx-float64(ct.sizeX)/2)*ct.degLonPerCell
	lat = ct.originLat - (fy-float64(ct.sizeY)/2)*ct.degLatPerCell
	return lat, lon
}

// LatLonToGridF is the exact inverse of GridToLatLonF
func (ct *CoordinateTransformer) LatLonToGridF(lat, lon float64) (fx, fy float64) {
	fx = (lon-ct.originLon)/ct.degLonPerCell + float64(ct.sizeX)/2
	fy = (ct.originLat-lat)/ct.degLatPerCell + float64(ct.sizeY)/2
	return fx, fy
}

// RoundTripTolerance is the agreement guaranteed between the continuous
// transforms, in degrees: 1e-6 or a thousandth of a cell, whichever is looser.
func (ct *CoordinateTransformer) RoundTripTolerance() float64 {
	return math.Max(1e-6, ct.degLatPerCell/1000)
}

func validLatLon(lat, lon float64) bool {
	return isFinite(lat) && isFinite(lon) &&
		lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
