package services

import (
	"errors"
	"math"
	"testing"

	"tacgrid/server/models"
)

const floatTol = 1e-9

// testConfig is a small grid with a cheap default terrain, a road, forest and water
func testConfig(w, h int) models.MapConfig {
	return models.MapConfig{
		GridSizeX:        w,
		GridSizeY:        h,
		CellSize:         1000,
		InitialZoom:      1,
		InitialCenterLat: 45,
		InitialCenterLon: 10,
		TerrainTypes: []models.TerrainType{
			{ID: 0, Name: "Open", MovementCost: 1},
			{ID: 1, Name: "Road", MovementCost: 0.5},
			{ID: 2, Name: "Forest", MovementCost: 3},
			{ID: 9, Name: "Water", MovementCost: models.ImpassableCost},
		},
	}
}

func newTestStore(t *testing.T, w, h int) *GridStore {
	t.Helper()
	cat, err := NewTerrainCatalog(testConfig(w, h).TerrainTypes)
	if err != nil {
		t.Fatalf("NewTerrainCatalog: %v", err)
	}
	return NewGridStore(w, h, cat)
}

func newTestService(t *testing.T, cfg models.MapConfig) *GridService {
	t.Helper()
	gs := NewGridService()
	if err := gs.Initialize(cfg); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return gs
}

func flatRaster(w, h int, v float64) models.Raster {
	s := make([]float64, w*h)
	for i := range s {
		s[i] = v
	}
	return models.Raster{Width: w, Height: h, Samples: s}
}

func wantKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("expected %v error, got %v (%v)", kind, got, err)
	}
	var ge *GridError
	if !errors.As(err, &ge) {
		t.Fatalf("error %v is not a *GridError", err)
	}
}

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
