package services

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"tacgrid/server/models"
)

// engineState is everything built by Initialize
type engineState struct {
	config      models.MapConfig
	transformer *CoordinateTransformer
	catalog     *TerrainCatalog
	store       *GridStore
	ingester    *ElevationIngester
	pathFinder  *PathFinder
	viewport    *ViewportController
	locations   *LocationIndex
}

// GridService is the tactical grid engine. Every operation returns either a
// value or a *GridError; none panic on caller input.
type GridService struct {
	initMu sync.Mutex
	state  atomic.Pointer[engineState]
	used   atomic.Bool

	listenerMu sync.RWMutex
	listeners  []func(generation uint64)
}

// NewGridService creates an engine that must be initialized before use
func NewGridService() *GridService {
	return &GridService{}
}

// Initialize builds the coordinate transformer, terrain catalog and an empty
// grid from cfg. It may be repeated until the first operation is served.
func (gs *GridService) Initialize(cfg models.MapConfig) error {
	gs.initMu.Lock()
	defer gs.initMu.Unlock()

	if gs.used.Load() {
		return &GridError{Kind: KindAlreadyInitialized, Op: "initialize"}
	}

	cfg = cfg.Clone()
	ct, err := NewCoordinateTransformer(cfg)
	if err != nil {
		return err
	}
	catalog, err := NewTerrainCatalog(cfg.TerrainTypes)
	if err != nil {
		return err
	}
	if _, _, err := zoomRange(cfg); err != nil {
		return err
	}
	rule, err := CompileObstacleRule(cfg.ObstacleRule)
	if err != nil {
		return err
	}

	store := NewGridStore(cfg.GridSizeX, cfg.GridSizeY, catalog)
	gs.state.Store(&engineState{
		config:      cfg,
		transformer: ct,
		catalog:     catalog,
		store:       store,
		ingester:    NewElevationIngester(store, rule),
		pathFinder:  NewPathFinder(store),
		viewport:    NewViewportController(cfg, ct, store),
		locations:   NewLocationIndex(ct),
	})

	slog.Info("grid initialized",
		"width", cfg.GridSizeX,
		"height", cfg.GridSizeY,
		"cellSize", cfg.CellSize,
		"terrainTypes", len(cfg.TerrainTypes),
		"obstacleRule", cfg.ObstacleRule,
	)
	return nil
}

// engine returns the initialized state and marks the engine as in use
func (gs *GridService) engine(op string) (*engineState, error) {
	st := gs.state.Load()
	if st == nil {
		return nil, &GridError{Kind: KindNotInitialized, Op: op}
	}
	gs.used.Store(true)
	return st, nil
}

// OnGridUpdated registers fn to be called with the new generation after every
// published change to terrain, obstacles or heights.
func (gs *GridService) OnGridUpdated(fn func(generation uint64)) {
	gs.listenerMu.Lock()
	defer gs.listenerMu.Unlock()
	gs.listeners = append(gs.listeners, fn)
}

func (gs *GridService) notify(generation uint64) {
	gs.listenerMu.RLock()
	defer gs.listenerMu.RUnlock()
	for _, fn := range gs.listeners {
		fn(generation)
	}
}

// GetMapConfig returns a copy of the active configuration
func (gs *GridService) GetMapConfig() (models.MapConfig, error) {
	st, err := gs.engine("get_map_config")
	if err != nil {
		return models.MapConfig{}, err
	}
	return st.config.Clone(), nil
}

// Generation returns the generation of the published grid
func (gs *GridService) Generation() (uint64, error) {
	st, err := gs.engine("generation")
	if err != nil {
		return 0, err
	}
	return st.store.Generation(), nil
}

// GridToLatLon returns the geographic centre of cell (x, y)
func (gs *GridService) GridToLatLon(x, y int) (models.GeoCoord, error) {
	st, err := gs.engine("grid_to_latlon")
	if err != nil {
		return models.GeoCoord{}, err
	}
	return st.transformer.GridToLatLon(x, y)
}

// LatLonToGrid returns the cell containing (lat, lon)
func (gs *GridService) LatLonToGrid(lat, lon float64) (models.GridCoord, error) {
	st, err := gs.engine("latlon_to_grid")
	if err != nil {
		return models.GridCoord{}, err
	}
	return st.transformer.LatLonToGrid(lat, lon)
}

// GetGridCellData returns the cell at (x, y)
func (gs *GridService) GetGridCellData(x, y int) (models.GridCell, error) {
	st, err := gs.engine("get_cell")
	if err != nil {
		return models.GridCell{}, err
	}
	return st.store.Get(x, y)
}

// SetGridCellData replaces the cell at (x, y)
func (gs *GridService) SetGridCellData(x, y int, data models.GridCell) error {
	st, err := gs.engine("set_cell")
	if err != nil {
		return err
	}
	before := st.store.Generation()
	if err := st.store.Set(x, y, data); err != nil {
		return err
	}
	if after := st.store.Generation(); after != before {
		gs.notify(after)
	}
	return nil
}

// GetTerrainType returns the terrain of the cell at (x, y)
func (gs *GridService) GetTerrainType(x, y int) (models.TerrainType, error) {
	st, err := gs.engine("get_terrain")
	if err != nil {
		return models.TerrainType{}, err
	}
	return st.store.TerrainAt(x, y)
}

// StartDEM validates r and starts a cancellable DEM ingestion
func (gs *GridService) StartDEM(ctx context.Context, r models.Raster) (*IngestTask, error) {
	st, err := gs.engine("load_dem")
	if err != nil {
		return nil, err
	}
	t, err := st.ingester.StartDEM(ctx, r)
	if err != nil {
		return nil, err
	}
	gs.watch(t)
	return t, nil
}

// StartBathymetry validates r and starts a cancellable bathymetry ingestion
func (gs *GridService) StartBathymetry(ctx context.Context, r models.Raster) (*IngestTask, error) {
	st, err := gs.engine("set_bathymetry")
	if err != nil {
		return nil, err
	}
	t, err := st.ingester.StartBathymetry(ctx, r)
	if err != nil {
		return nil, err
	}
	gs.watch(t)
	return t, nil
}

// LoadDEM ingests a DEM raster and waits until it is published
func (gs *GridService) LoadDEM(ctx context.Context, r models.Raster) error {
	t, err := gs.StartDEM(ctx, r)
	if err != nil {
		return err
	}
	_, err = t.Wait()
	return err
}

// SetBathymetryData ingests a bathymetry raster and waits until it is published
func (gs *GridService) SetBathymetryData(ctx context.Context, r models.Raster) error {
	t, err := gs.StartBathymetry(ctx, r)
	if err != nil {
		return err
	}
	_, err = t.Wait()
	return err
}

func (gs *GridService) watch(t *IngestTask) {
	go func() {
		if gen, err := t.Wait(); err == nil {
			gs.notify(gen)
		}
	}()
}

// FindPath computes the cheapest route between two cells
func (gs *GridService) FindPath(ctx context.Context, sx, sy, ex, ey int) (models.PathResult, error) {
	st, err := gs.engine("find_path")
	if err != nil {
		return models.PathResult{}, err
	}
	return st.pathFinder.FindPath(ctx, sx, sy, ex, ey)
}

// NewViewport creates an independent viewport, e.g. one per client session
func (gs *GridService) NewViewport() (*ViewportController, error) {
	st, err := gs.engine("new_viewport")
	if err != nil {
		return nil, err
	}
	return NewViewportController(st.config, st.transformer, st.store), nil
}

// Viewport returns the engine's default viewport
func (gs *GridService) Viewport() (*ViewportController, error) {
	st, err := gs.engine("viewport")
	if err != nil {
		return nil, err
	}
	return st.viewport, nil
}

// PanMap moves the default viewport
func (gs *GridService) PanMap(dx, dy float64) error {
	st, err := gs.engine("pan")
	if err != nil {
		return err
	}
	st.viewport.Pan(dx, dy)
	return nil
}

// ZoomMap sets the default viewport zoom level
func (gs *GridService) ZoomMap(level float64) error {
	st, err := gs.engine("zoom")
	if err != nil {
		return err
	}
	st.viewport.Zoom(level)
	return nil
}

// SelectGridCell records the selected cell of the default viewport
func (gs *GridService) SelectGridCell(x, y int) error {
	st, err := gs.engine("select_cell")
	if err != nil {
		return err
	}
	return st.viewport.Select(x, y)
}

// GetVisibleGridCells returns the cells shown by the default viewport
func (gs *GridService) GetVisibleGridCells() (models.VisibleCells, error) {
	st, err := gs.engine("visible_cells")
	if err != nil {
		return models.VisibleCells{}, err
	}
	return st.viewport.VisibleCells(), nil
}

// SearchLocation resolves a free-text query
func (gs *GridService) SearchLocation(query string) (models.SearchResult, error) {
	st, err := gs.engine("search_location")
	if err != nil {
		return models.SearchResult{}, err
	}
	return st.locations.Search(query)
}

// AddLocation adds a gazetteer entry at grid cell (x, y)
func (gs *GridService) AddLocation(name string, x, y int) (models.Location, error) {
	st, err := gs.engine("add_location")
	if err != nil {
		return models.Location{}, err
	}
	return st.locations.Add(name, x, y)
}

// AddLocationGeo adds a gazetteer entry at the cell containing (lat, lon)
func (gs *GridService) AddLocationGeo(name string, lat, lon float64) (models.Location, error) {
	st, err := gs.engine("add_location")
	if err != nil {
		return models.Location{}, err
	}
	return st.locations.AddGeo(name, lat, lon)
}

// NearestLocation returns the gazetteer entry closest to (lat, lon)
func (gs *GridService) NearestLocation(lat, lon float64) (models.Location, error) {
	st, err := gs.engine("nearest_location")
	if err != nil {
		return models.Location{}, err
	}
	return st.locations.Nearest(lat, lon)
}

// Locations lists the gazetteer
func (gs *GridService) Locations() ([]models.Location, error) {
	st, err := gs.engine("locations")
	if err != nil {
		return nil, err
	}
	return st.locations.Locations(), nil
}
