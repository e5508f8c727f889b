package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tacgrid/server/models"
)

func TestGridService_NotInitialized(t *testing.T) {
	gs := NewGridService()

	_, err := gs.GetGridCellData(0, 0)
	wantKind(t, err, KindNotInitialized)
	_, err = gs.FindPath(context.Background(), 0, 0, 1, 1)
	wantKind(t, err, KindNotInitialized)
	wantKind(t, gs.PanMap(1, 1), KindNotInitialized)
	_, err = gs.SearchLocation("Home")
	wantKind(t, err, KindNotInitialized)
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("error does not match ErrNotInitialized: %v", err)
	}
}

func TestGridService_InitializeTwice(t *testing.T) {
	gs := NewGridService()
	if err := gs.Initialize(testConfig(4, 4)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	// Re-initializing before any operation replaces the configuration.
	if err := gs.Initialize(testConfig(6, 6)); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	cfg, err := gs.GetMapConfig()
	if err != nil || cfg.GridSizeX != 6 {
		t.Fatalf("GetMapConfig = %+v, %v", cfg, err)
	}
	wantKind(t, gs.Initialize(testConfig(8, 8)), KindAlreadyInitialized)
}

func TestGridService_InitializeRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		edit func(*models.MapConfig)
	}{
		{"no terrain", func(c *models.MapConfig) { c.TerrainTypes = nil }},
		{"bad geometry", func(c *models.MapConfig) { c.GridSizeX = 0 }},
		{"bad zoom", func(c *models.MapConfig) { c.MinZoom, c.MaxZoom = 9, 3 }},
		{"bad rule", func(c *models.MapConfig) { c.ObstacleRule = "Height >" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(4, 4)
			tt.edit(&cfg)
			gs := NewGridService()
			wantKind(t, gs.Initialize(cfg), KindValidation)
			_, err := gs.Generation()
			wantKind(t, err, KindNotInitialized)
		})
	}
}

func TestGridService_ConfigIsCopied(t *testing.T) {
	cfg := testConfig(4, 4)
	gs := newTestService(t, cfg)
	cfg.TerrainTypes[0].Name = "changed"

	got, _ := gs.GetMapConfig()
	if got.TerrainTypes[0].Name != "Open" {
		t.Fatal("engine shares the caller's terrain slice")
	}
	got.TerrainTypes[0].Name = "changed again"
	again, _ := gs.GetMapConfig()
	if again.TerrainTypes[0].Name != "Open" {
		t.Fatal("GetMapConfig exposes internal state")
	}
}

func TestGridService_CellRoundTrip(t *testing.T) {
	gs := newTestService(t, testConfig(10, 10))

	if err := gs.SetGridCellData(4, 7, models.GridCell{TerrainType: 2, Height: -3}); err != nil {
		t.Fatalf("SetGridCellData: %v", err)
	}
	c, err := gs.GetGridCellData(4, 7)
	if err != nil {
		t.Fatalf("GetGridCellData: %v", err)
	}
	if c.X != 4 || c.Y != 7 || c.TerrainType != 2 || c.Height != -3 {
		t.Fatalf("cell = %+v", c)
	}
	tt, err := gs.GetTerrainType(4, 7)
	if err != nil || tt.Name != "Forest" {
		t.Fatalf("GetTerrainType = %+v, %v", tt, err)
	}

	geo, err := gs.GridToLatLon(4, 7)
	if err != nil {
		t.Fatalf("GridToLatLon: %v", err)
	}
	gc, err := gs.LatLonToGrid(geo.Lat, geo.Lon)
	if err != nil || gc != (models.GridCoord{X: 4, Y: 7}) {
		t.Fatalf("LatLonToGrid = %+v, %v", gc, err)
	}
}

func TestGridService_ListenersSeeEveryPublish(t *testing.T) {
	gs := newTestService(t, testConfig(8, 8))

	var mu sync.Mutex
	var seen []uint64
	got := make(chan struct{}, 8)
	gs.OnGridUpdated(func(gen uint64) {
		mu.Lock()
		seen = append(seen, gen)
		mu.Unlock()
		got <- struct{}{}
	})

	if err := gs.SetGridCellData(1, 1, models.GridCell{Obstacle: true}); err != nil {
		t.Fatalf("SetGridCellData: %v", err)
	}
	// Extra data alone does not change the generation and is not announced.
	if err := gs.SetGridCellData(1, 1, models.GridCell{Obstacle: true, ExtraData: models.ExtraData{Tag: "x"}}); err != nil {
		t.Fatalf("SetGridCellData: %v", err)
	}
	if err := gs.LoadDEM(context.Background(), flatRaster(8, 8, 12)); err != nil {
		t.Fatalf("LoadDEM: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatalf("listener called %d times, want 2", i)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("listener saw generations %v, want [1 2]", seen)
	}
}

func TestGridService_ViewportOperations(t *testing.T) {
	cfg := testConfig(40, 40)
	cfg.InitialZoom = 4
	gs := newTestService(t, cfg)

	if err := gs.ZoomMap(2); err != nil {
		t.Fatalf("ZoomMap: %v", err)
	}
	if err := gs.PanMap(-100, -100); err != nil {
		t.Fatalf("PanMap: %v", err)
	}
	wantKind(t, gs.SelectGridCell(40, 0), KindOutOfBounds)
	if err := gs.SelectGridCell(2, 3); err != nil {
		t.Fatalf("SelectGridCell: %v", err)
	}

	vis, err := gs.GetVisibleGridCells()
	if err != nil {
		t.Fatalf("GetVisibleGridCells: %v", err)
	}
	if vis.Rect != (models.Rect{X0: 0, Y0: 0, X1: 20, Y1: 20}) || len(vis.Cells) != 400 {
		t.Fatalf("visible rect %+v with %d cells", vis.Rect, len(vis.Cells))
	}

	// Session viewports are independent of the default one.
	session, err := gs.NewViewport()
	if err != nil {
		t.Fatalf("NewViewport: %v", err)
	}
	if session.ZoomLevel() != 4 {
		t.Fatalf("session viewport zoom = %f, want initial 4", session.ZoomLevel())
	}
	if _, ok := session.Selection(); ok {
		t.Fatal("session viewport inherited the default selection")
	}
}

func TestGridService_Gazetteer(t *testing.T) {
	gs := newTestService(t, testConfig(20, 20))
	if _, err := gs.AddLocation("Depot", 3, 4); err != nil {
		t.Fatalf("AddLocation: %v", err)
	}
	geo, _ := gs.GridToLatLon(15, 15)
	if _, err := gs.AddLocationGeo("Bridge", geo.Lat, geo.Lon); err != nil {
		t.Fatalf("AddLocationGeo: %v", err)
	}

	res, err := gs.SearchLocation("depot")
	if err != nil || res.X != 3 || res.Y != 4 {
		t.Fatalf("SearchLocation = %+v, %v", res, err)
	}
	near, err := gs.NearestLocation(geo.Lat, geo.Lon)
	if err != nil || near.Name != "Bridge" {
		t.Fatalf("NearestLocation = %+v, %v", near, err)
	}
	locs, _ := gs.Locations()
	if len(locs) != 2 {
		t.Fatalf("%d locations, want 2", len(locs))
	}
}

func TestGridService_ConcurrentPathsDuringWrites(t *testing.T) {
	gs := newTestService(t, testConfig(30, 30))
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if err := gs.SetGridCellData(15, i%30, models.GridCell{TerrainType: 2, Height: float64(i)}); err != nil {
				t.Errorf("SetGridCellData: %v", err)
				return
			}
		}
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				res, err := gs.FindPath(context.Background(), 0, 0, 29, 29)
				if err != nil {
					t.Errorf("FindPath: %v", err)
					return
				}
				if len(res.Path) < 30 {
					t.Errorf("path of %d cells is shorter than the Chebyshev distance", len(res.Path))
					return
				}
			}
		}()
	}
	wg.Wait()
}
