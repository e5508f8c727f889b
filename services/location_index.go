package services

import (
	"math"
	"strconv"
	"strings"
	"sync"

	geohash "github.com/TomiHiltunen/geohash-golang"

	"tacgrid/server/models"
)

// LocationIndex resolves free-text queries to coordinates. It understands
// literal "lat,lon" pairs and exact (case-insensitive) gazetteer names.
type LocationIndex struct {
	transformer *CoordinateTransformer

	mu      sync.RWMutex
	entries []models.Location
	byName  map[string]int // normalized name -> index into entries
}

// NewLocationIndex creates an empty gazetteer over the given grid
func NewLocationIndex(ct *CoordinateTransformer) *LocationIndex {
	return &LocationIndex{
		transformer: ct,
		byName:      make(map[string]int),
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Add registers a named location at grid cell (x, y). Re-adding a name replaces it.
func (li *LocationIndex) Add(name string, x, y int) (models.Location, error) {
	if normalizeName(name) == "" {
		return models.Location{}, &GridError{Kind: KindValidation, Op: "add_location", Reason: "location name is empty"}
	}
	geo, err := li.transformer.GridToLatLon(x, y)
	if err != nil {
		return models.Location{}, cellValidation("add_location", x, y, "location outside grid", err)
	}

	loc := models.Location{
		Name:    strings.TrimSpace(name),
		X:       x,
		Y:       y,
		Lat:     geo.Lat,
		Lon:     geo.Lon,
		Geohash: geohash.Encode(geo.Lat, geo.Lon),
	}
	li.put(loc)
	return loc, nil
}

// AddGeo registers a named location at the cell containing (lat, lon)
func (li *LocationIndex) AddGeo(name string, lat, lon float64) (models.Location, error) {
	gc, err := li.transformer.LatLonToGrid(lat, lon)
	if err != nil {
		return models.Location{}, &GridError{
			Kind: KindValidation, Op: "add_location", Lat: lat, Lon: lon, HasGeo: true,
			Reason: "location outside grid", Err: err,
		}
	}
	return li.Add(name, gc.X, gc.Y)
}

func (li *LocationIndex) put(loc models.Location) {
	li.mu.Lock()
	defer li.mu.Unlock()

	key := normalizeName(loc.Name)
	if i, ok := li.byName[key]; ok {
		li.entries[i] = loc
		return
	}
	li.byName[key] = len(li.entries)
	li.entries = append(li.entries, loc)
}

// Locations returns the gazetteer in insertion order
func (li *LocationIndex) Locations() []models.Location {
	li.mu.RLock()
	defer li.mu.RUnlock()
	return append([]models.Location(nil), li.entries...)
}

// Search resolves query. A "lat,lon" pair inside the valid geographic range is
// returned as-is; otherwise the gazetteer is consulted by exact name.
func (li *LocationIndex) Search(query string) (models.SearchResult, error) {
	if lat, lon, ok := parseLatLon(query); ok {
		return models.SearchResult{Kind: models.SearchKindGeo, Lat: lat, Lon: lon}, nil
	}

	li.mu.RLock()
	i, ok := li.byName[normalizeName(query)]
	var loc models.Location
	if ok {
		loc = li.entries[i]
	}
	li.mu.RUnlock()

	if !ok {
		return models.SearchResult{}, &GridError{Kind: KindNotFound, Op: "search_location", Query: query}
	}
	return models.SearchResult{Kind: models.SearchKindGrid, Name: loc.Name, X: loc.X, Y: loc.Y}, nil
}

// Nearest returns the gazetteer entry closest to (lat, lon). Candidates are
// ranked by shared geohash prefix, then by planar distance.
func (li *LocationIndex) Nearest(lat, lon float64) (models.Location, error) {
	if !validLatLon(lat, lon) {
		return models.Location{}, geoOutOfBounds("nearest_location", lat, lon)
	}
	gh := geohash.Encode(lat, lon)
	cosLat := math.Cos(lat * math.Pi / 180.0)

	li.mu.RLock()
	defer li.mu.RUnlock()

	best := -1
	bestPrefix, bestDist := -1, math.Inf(1)
	for i, loc := range li.entries {
		p := sharedPrefix(gh, loc.Geohash)
		dLat, dLon := loc.Lat-lat, (loc.Lon-lon)*cosLat
		d := dLat*dLat + dLon*dLon
		if p > bestPrefix || (p == bestPrefix && d < bestDist) {
			best, bestPrefix, bestDist = i, p, d
		}
	}
	if best < 0 {
		return models.Location{}, &GridError{
			Kind: KindNotFound, Op: "nearest_location", Lat: lat, Lon: lon, HasGeo: true,
			Reason: "gazetteer is empty",
		}
	}
	return li.entries[best], nil
}

func parseLatLon(q string) (float64, float64, bool) {
	parts := strings.Split(q, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	if !validLatLon(lat, lon) {
		return 0, 0, false
	}
	return lat, lon, true
}

func sharedPrefix(a, b string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
