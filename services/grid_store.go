package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"tacgrid/server/models"
)

// Snapshot is an immutable, versioned view of every cell in the grid
type Snapshot struct {
	generation uint64
	layout     bandLayout
	bands      []*band
	catalog    *TerrainCatalog
}

// Generation identifies the published version this snapshot belongs to
func (s *Snapshot) Generation() uint64 { return s.generation }

// Width is the number of grid columns
func (s *Snapshot) Width() int { return s.layout.width }

// Height is the number of grid rows
func (s *Snapshot) Height() int { return s.layout.height }

// InBounds reports whether (x, y) addresses a cell
func (s *Snapshot) InBounds(x, y int) bool {
	return x >= 0 && x < s.layout.width && y >= 0 && y < s.layout.height
}

func (s *Snapshot) at(x, y int) cell {
	b, off := s.layout.locate(x, y)
	return s.bands[b].cells[off]
}

// Cell returns the cell at (x, y)
func (s *Snapshot) Cell(x, y int) (models.GridCell, bool) {
	if !s.InBounds(x, y) {
		return models.GridCell{}, false
	}
	return toGridCell(x, y, s.at(x, y)), true
}

// Cells returns every cell inside r in row-major order. r is clipped to the grid.
func (s *Snapshot) Cells(r models.Rect) []models.GridCell {
	x0, x1 := max(r.X0, 0), min(r.X1, s.layout.width)
	if x0 >= x1 {
		return nil
	}
	var out []models.GridCell
	for _, i := range s.layout.bandsCovering(r.Y0, r.Y1) {
		b := s.bands[i]
		for y := max(b.y0, r.Y0); y < min(b.y1, r.Y1); y++ {
			row := (y - b.y0) * s.layout.width
			for x := x0; x < x1; x++ {
				out = append(out, toGridCell(x, y, b.cells[row+x]))
			}
		}
	}
	return out
}

// moveCost returns the cost of entering (x, y), or false when the cell is impassable
func (s *Snapshot) moveCost(x, y int) (float64, bool) {
	c := s.at(x, y)
	if c.obstacle {
		return 0, false
	}
	t, ok := s.catalog.Lookup(c.terrain)
	if !ok || !t.Passable() {
		return 0, false
	}
	return t.MovementCost, true
}

func toGridCell(x, y int, c cell) models.GridCell {
	gc := models.GridCell{
		X:           x,
		Y:           y,
		TerrainType: c.terrain,
		Obstacle:    c.obstacle,
		Height:      c.height,
	}
	if c.extra != nil {
		gc.ExtraData = c.extra.Clone()
	}
	return gc
}

// GridStore owns the cell data. Readers load the current snapshot without
// locking; writers are serialized and publish whole new snapshots.
type GridStore struct {
	catalog *TerrainCatalog
	layout  bandLayout
	current atomic.Pointer[Snapshot]
	writeMu sync.Mutex
}

// NewGridStore creates a grid where every cell has the catalog's default
// terrain, no obstacle and zero height.
func NewGridStore(width, height int, catalog *TerrainCatalog) *GridStore {
	gs := &GridStore{
		catalog: catalog,
		layout:  newBandLayout(width, height),
	}

	fill := cell{terrain: catalog.Default().ID}
	bands := make([]*band, gs.layout.count)
	for i := range bands {
		bands[i] = gs.layout.newBand(i, fill)
	}

	gs.current.Store(&Snapshot{layout: gs.layout, bands: bands, catalog: catalog})
	return gs
}

// Snapshot returns the currently published grid
func (gs *GridStore) Snapshot() *Snapshot {
	return gs.current.Load()
}

// Generation returns the generation of the currently published grid
func (gs *GridStore) Generation() uint64 {
	return gs.current.Load().generation
}

// Catalog returns the terrain catalog cells are validated against
func (gs *GridStore) Catalog() *TerrainCatalog {
	return gs.catalog
}

// Get returns the cell at (x, y)
func (gs *GridStore) Get(x, y int) (models.GridCell, error) {
	c, ok := gs.Snapshot().Cell(x, y)
	if !ok {
		return models.GridCell{}, &GridError{
			Kind: KindNotFound, Op: "get_cell", X: x, Y: y, HasCell: true,
			Err: cellOutOfBounds("get_cell", x, y),
		}
	}
	return c, nil
}

// TerrainAt returns the terrain type of the cell at (x, y)
func (gs *GridStore) TerrainAt(x, y int) (models.TerrainType, error) {
	c, ok := gs.Snapshot().Cell(x, y)
	if !ok {
		return models.TerrainType{}, &GridError{
			Kind: KindNotFound, Op: "get_terrain", X: x, Y: y, HasCell: true,
			Err: cellOutOfBounds("get_terrain", x, y),
		}
	}
	t, ok := gs.catalog.Lookup(c.TerrainType)
	if !ok {
		return models.TerrainType{}, &GridError{
			Kind: KindNotFound, Op: "get_terrain", X: x, Y: y, HasCell: true, TerrainID: c.TerrainType,
			Reason: fmt.Sprintf("terrain id %d not in catalog", c.TerrainType),
		}
	}
	return t, nil
}

// Set replaces the data of the cell at (x, y). The coordinates in data are
// ignored. Invalid input is rejected before anything is written.
func (gs *GridStore) Set(x, y int, data models.GridCell) error {
	if x < 0 || x >= gs.layout.width || y < 0 || y >= gs.layout.height {
		return cellValidation("set_cell", x, y, "coordinates outside grid", cellOutOfBounds("set_cell", x, y))
	}
	if _, ok := gs.catalog.Lookup(data.TerrainType); !ok {
		e := cellValidation("set_cell", x, y, fmt.Sprintf("unknown terrain id %d", data.TerrainType), nil)
		e.TerrainID = data.TerrainType
		return e
	}
	if !isFinite(data.Height) {
		return cellValidation("set_cell", x, y, "height is not finite", nil)
	}

	next := cell{terrain: data.TerrainType, obstacle: data.Obstacle, height: data.Height}
	if !data.ExtraData.IsZero() {
		extra := data.ExtraData.Clone()
		next.extra = &extra
	}

	gs.writeMu.Lock()
	defer gs.writeMu.Unlock()

	base := gs.current.Load()
	prev := base.at(x, y)
	structural := prev.terrain != next.terrain || prev.obstacle != next.obstacle || prev.height != next.height
	if !structural && extraEqual(prev.extra, next.extra) {
		return nil
	}

	bi, off := gs.layout.locate(x, y)
	bands := append([]*band(nil), base.bands...)
	nb := bands[bi].clone()
	nb.cells[off] = next
	bands[bi] = nb

	gen := base.generation
	if structural {
		gen++
	}
	gs.current.Store(&Snapshot{generation: gen, layout: gs.layout, bands: bands, catalog: gs.catalog})
	return nil
}

// replace holds the write lock while build derives a full set of bands from
// the current snapshot, then publishes them as generation+1. Nothing is
// published when build fails or ctx is done before publication.
func (gs *GridStore) replace(ctx context.Context, op string, build func(base *Snapshot) ([]*band, error)) (uint64, error) {
	gs.writeMu.Lock()
	defer gs.writeMu.Unlock()

	base := gs.current.Load()
	bands, err := build(base)
	if err != nil {
		return base.generation, err
	}
	if err := ctx.Err(); err != nil {
		return base.generation, canceled(op, err)
	}

	next := &Snapshot{generation: base.generation + 1, layout: gs.layout, bands: bands, catalog: gs.catalog}
	gs.current.Store(next)
	return next.generation, nil
}

func extraEqual(a, b *models.ExtraData) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
