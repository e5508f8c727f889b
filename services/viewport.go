package services

import (
	"math"
	"sync"

	"tacgrid/server/models"
)

// ViewportController owns pan/zoom state and the current cell selection.
// The visible rectangle always lies inside the grid.
type ViewportController struct {
	transformer *CoordinateTransformer
	store       *GridStore

	sizeX, sizeY     int
	minZoom, maxZoom float64

	mu           sync.Mutex
	zoom         float64
	cx, cy       float64 // centre in continuous grid coordinates
	selected     models.GridCoord
	hasSelection bool
}

// zoomRange resolves the configured zoom limits
func zoomRange(cfg models.MapConfig) (float64, float64, error) {
	lo, hi := cfg.MinZoom, cfg.MaxZoom
	if lo <= 0 {
		lo = models.DefaultMinZoom
	}
	if hi <= 0 || hi > models.DefaultMaxZoom {
		hi = models.DefaultMaxZoom
	}
	if !isFinite(lo) || lo > hi {
		return 0, 0, configValidation("min zoom exceeds max zoom")
	}
	return lo, hi, nil
}

// NewViewportController creates a viewport centred on the configured origin at the initial zoom
func NewViewportController(cfg models.MapConfig, ct *CoordinateTransformer, store *GridStore) *ViewportController {
	lo, hi, err := zoomRange(cfg)
	if err != nil {
		lo, hi = models.DefaultMinZoom, models.DefaultMaxZoom
	}

	vc := &ViewportController{
		transformer: ct,
		store:       store,
		sizeX:       cfg.GridSizeX,
		sizeY:       cfg.GridSizeY,
		minZoom:     lo,
		maxZoom:     hi,
		zoom:        lo,
	}
	vc.setZoom(cfg.InitialZoom)
	vc.cx, vc.cy = ct.LatLonToGridF(cfg.InitialCenterLat, cfg.InitialCenterLon)
	vc.clampCenter()
	return vc
}

// Pan moves the centre by (dx, dy) cells, clamped at the grid edges
func (vc *ViewportController) Pan(dx, dy float64) {
	if !isFinite(dx) || !isFinite(dy) {
		return
	}
	vc.mu.Lock()
	defer vc.mu.Unlock()

	vc.cx += dx
	vc.cy += dy
	vc.clampCenter()
}

// Zoom sets the zoom level, clamped to the configured range
func (vc *ViewportController) Zoom(level float64) {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	vc.setZoom(level)
	vc.clampCenter()
}

// ZoomLevel returns the current zoom level
func (vc *ViewportController) ZoomLevel() float64 {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.zoom
}

// Center returns the viewport centre in continuous grid coordinates
func (vc *ViewportController) Center() (float64, float64) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.cx, vc.cy
}

// CenterOn moves the viewport to the cell containing (lat, lon)
func (vc *ViewportController) CenterOn(lat, lon float64) error {
	gc, err := vc.transformer.LatLonToGrid(lat, lon)
	if err != nil {
		return err
	}
	vc.mu.Lock()
	defer vc.mu.Unlock()

	vc.cx, vc.cy = float64(gc.X)+0.5, float64(gc.Y)+0.5
	vc.clampCenter()
	return nil
}

// Rect returns the visible cell rectangle
func (vc *ViewportController) Rect() models.Rect {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.rect()
}

// VisibleCells returns every cell inside the visible rectangle, row-major,
// read from a single snapshot.
func (vc *ViewportController) VisibleCells() models.VisibleCells {
	r := vc.Rect()
	snap := vc.store.Snapshot()
	return models.VisibleCells{
		Rect:       r,
		Generation: snap.Generation(),
		Cells:      snap.Cells(r),
	}
}

// Select records (x, y) as the selected cell. Selecting the same cell again is a no-op.
func (vc *ViewportController) Select(x, y int) error {
	if !vc.transformer.InBounds(x, y) {
		return cellOutOfBounds("select_cell", x, y)
	}
	vc.mu.Lock()
	defer vc.mu.Unlock()

	vc.selected = models.GridCoord{X: x, Y: y}
	vc.hasSelection = true
	return nil
}

// Selection returns the selected cell, if any
func (vc *ViewportController) Selection() (models.GridCoord, bool) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.selected, vc.hasSelection
}

func (vc *ViewportController) setZoom(level float64) {
	if !isFinite(level) {
		return
	}
	vc.zoom = math.Min(math.Max(level, vc.minZoom), vc.maxZoom)
}

// visibleSize is inversely proportional to zoom; the whole grid is visible at min zoom
func (vc *ViewportController) visibleSize() (int, int) {
	scale := vc.minZoom / vc.zoom
	w := int(math.Ceil(float64(vc.sizeX) * scale))
	h := int(math.Ceil(float64(vc.sizeY) * scale))
	return min(max(w, 1), vc.sizeX), min(max(h, 1), vc.sizeY)
}

func (vc *ViewportController) clampCenter() {
	w, h := vc.visibleSize()
	vc.cx = clampFloat(vc.cx, float64(w)/2, float64(vc.sizeX)-float64(w)/2)
	vc.cy = clampFloat(vc.cy, float64(h)/2, float64(vc.sizeY)-float64(h)/2)
}

func (vc *ViewportController) rect() models.Rect {
	w, h := vc.visibleSize()
	x0 := int(math.Floor(vc.cx - float64(w)/2))
	y0 := int(math.Floor(vc.cy - float64(h)/2))
	x0 = min(max(x0, 0), vc.sizeX-w)
	y0 = min(max(y0, 0), vc.sizeY-h)
	return models.Rect{X0: x0, Y0: y0, X1: x0 + w, Y1: y0 + h}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
