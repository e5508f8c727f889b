package models

import "bytes"

// ExtraData is an opaque payload carried on a cell. The engine never inspects it.
type ExtraData struct {
	Tag  string `json:"tag,omitempty"`
	Blob []byte `json:"blob,omitempty"`
}

// IsZero reports whether the payload is empty
func (e ExtraData) IsZero() bool {
	return e.Tag == "" && len(e.Blob) == 0
}

// Clone returns a copy that shares no memory with e
func (e ExtraData) Clone() ExtraData {
	if e.Blob == nil {
		return ExtraData{Tag: e.Tag}
	}
	return ExtraData{Tag: e.Tag, Blob: bytes.Clone(e.Blob)}
}

// Equal compares two payloads by value
func (e ExtraData) Equal(o ExtraData) bool {
	return e.Tag == o.Tag && bytes.Equal(e.Blob, o.Blob)
}

// GridCell is the data held for one addressable cell
type GridCell struct {
	X           int       `json:"x"`
	Y           int       `json:"y"`
	TerrainType int       `json:"terrain_type"`
	Obstacle    bool      `json:"obstacle"`
	Height      float64   `json:"height"` // metres, negative below sea level
	ExtraData   ExtraData `json:"extra_data"`
}

// GridCoord addresses a cell
type GridCoord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// GeoCoord is a latitude/longitude pair in degrees
type GeoCoord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Rect is a half-open cell rectangle [X0,X1) x [Y0,Y1)
type Rect struct {
	X0 int `json:"x0"`
	Y0 int `json:"y0"`
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
}

// Width returns the number of columns covered
func (r Rect) Width() int { return r.X1 - r.X0 }

// Height returns the number of rows covered
func (r Rect) Height() int { return r.Y1 - r.Y0 }

// Contains reports whether (x, y) lies inside the rectangle
func (r Rect) Contains(x, y int) bool {
	return x >= r.X0 && x < r.X1 && y >= r.Y0 && y < r.Y1
}

// PathResult is a route from start to end inclusive
type PathResult struct {
	Path       []GridCoord `json:"path"`
	Costs      []float64   `json:"costs"` // cumulative cost at each step
	TotalCost  float64     `json:"total_cost"`
	Generation uint64      `json:"generation"`
}

// VisibleCells is what the viewport currently shows
type VisibleCells struct {
	Rect       Rect       `json:"rect"`
	Generation uint64     `json:"generation"`
	Cells      []GridCell `json:"cells"`
}

// Search result kinds
const (
	SearchKindGrid = "grid"
	SearchKindGeo  = "geo"
)

// SearchResult is either a grid or a geographic coordinate. Kind says which
// pair is meaningful; both pairs are always encoded since zero is a valid
// coordinate.
type SearchResult struct {
	Kind string  `json:"kind"`
	Name string  `json:"name,omitempty"`
	X    int     `json:"x"`
	Y    int     `json:"y"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}
