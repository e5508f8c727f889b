package services

import (
	"context"
	"math"
	"testing"

	"tacgrid/server/models"
)

func checkPath(t *testing.T, store *GridStore, res models.PathResult, sx, sy, ex, ey int) {
	t.Helper()
	if len(res.Path) == 0 {
		t.Fatal("empty path")
	}
	first, last := res.Path[0], res.Path[len(res.Path)-1]
	if first != (models.GridCoord{X: sx, Y: sy}) || last != (models.GridCoord{X: ex, Y: ey}) {
		t.Fatalf("path runs %+v -> %+v, want (%d,%d) -> (%d,%d)", first, last, sx, sy, ex, ey)
	}
	if len(res.Costs) != len(res.Path) || res.Costs[0] != 0 {
		t.Fatalf("costs %v do not match path of length %d", res.Costs, len(res.Path))
	}

	snap := store.Snapshot()
	sum := 0.0
	for i := 1; i < len(res.Path); i++ {
		p, q := res.Path[i-1], res.Path[i]
		dx, dy := q.X-p.X, q.Y-p.Y
		if dx < -1 || dx > 1 || dy < -1 || dy > 1 || (dx == 0 && dy == 0) {
			t.Fatalf("step %d from %+v to %+v is not a neighbour move", i, p, q)
		}
		cost, ok := snap.moveCost(q.X, q.Y)
		if !ok {
			t.Fatalf("path enters impassable cell %+v", q)
		}
		if dx != 0 && dy != 0 {
			cost *= math.Sqrt2
		}
		sum += cost
		if res.Costs[i] < res.Costs[i-1] {
			t.Fatalf("cumulative cost decreases at step %d: %v", i, res.Costs)
		}
		if !approx(res.Costs[i], sum, 1e-9) {
			t.Fatalf("cumulative cost at step %d = %f, want %f", i, res.Costs[i], sum)
		}
	}
	if !approx(res.TotalCost, sum, 1e-9) {
		t.Fatalf("total cost %f, sum of steps %f", res.TotalCost, sum)
	}
}

func TestFindPath_OpenGridIsDiagonal(t *testing.T) {
	store := newTestStore(t, 10, 10)
	pf := NewPathFinder(store)

	res, err := pf.FindPath(context.Background(), 0, 0, 9, 9)
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	checkPath(t, store, res, 0, 0, 9, 9)
	if len(res.Path) != 10 {
		t.Fatalf("path has %d cells, want 10", len(res.Path))
	}
	if !approx(res.TotalCost, 9*math.Sqrt2, 1e-9) {
		t.Fatalf("total cost %f, want 9*sqrt2", res.TotalCost)
	}
}

func TestFindPath_AvoidsObstacle(t *testing.T) {
	cfg := testConfig(10, 10)
	cfg.TerrainTypes = []models.TerrainType{{ID: 0, Name: "Plain", MovementCost: 1}}
	cat, err := NewTerrainCatalog(cfg.TerrainTypes)
	if err != nil {
		t.Fatalf("NewTerrainCatalog: %v", err)
	}
	store := NewGridStore(10, 10, cat)
	if err := store.Set(5, 5, models.GridCell{Obstacle: true}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	res, err := NewPathFinder(store).FindPath(context.Background(), 0, 0, 9, 9)
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	checkPath(t, store, res, 0, 0, 9, 9)
	for _, p := range res.Path {
		if p.X == 5 && p.Y == 5 {
			t.Fatal("path crosses the obstacle at (5,5)")
		}
	}
	// Every 9-move route passes (5,5), so the best detour is 8 diagonals and 2 straight steps.
	if want := 8*math.Sqrt2 + 2; !approx(res.TotalCost, want, 1e-9) {
		t.Fatalf("total cost %f, want %f", res.TotalCost, want)
	}
	if res.Generation != 1 {
		t.Fatalf("path generation = %d, want 1", res.Generation)
	}
}

func TestFindPath_PrefersRoad(t *testing.T) {
	store := newTestStore(t, 7, 3)
	// Forest across the middle row, a road along the bottom.
	for x := 0; x < 7; x++ {
		if err := store.Set(x, 1, models.GridCell{TerrainType: 2}); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := store.Set(x, 2, models.GridCell{TerrainType: 1}); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	res, err := NewPathFinder(store).FindPath(context.Background(), 0, 2, 6, 2)
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	checkPath(t, store, res, 0, 2, 6, 2)
	if !approx(res.TotalCost, 3, 1e-9) {
		t.Fatalf("road route cost %f, want 3", res.TotalCost)
	}
}

func TestFindPath_WallIsPathNotFound(t *testing.T) {
	store := newTestStore(t, 6, 6)
	for y := 0; y < 6; y++ {
		if err := store.Set(3, y, models.GridCell{TerrainType: 9}); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	_, err := NewPathFinder(store).FindPath(context.Background(), 0, 0, 5, 5)
	wantKind(t, err, KindPathNotFound)
}

func TestFindPath_BlockedTarget(t *testing.T) {
	store := newTestStore(t, 4, 4)
	if err := store.Set(3, 3, models.GridCell{Obstacle: true}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_, err := NewPathFinder(store).FindPath(context.Background(), 0, 0, 3, 3)
	wantKind(t, err, KindPathNotFound)
}

func TestFindPath_SameCell(t *testing.T) {
	store := newTestStore(t, 4, 4)
	res, err := NewPathFinder(store).FindPath(context.Background(), 2, 1, 2, 1)
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	if len(res.Path) != 1 || res.TotalCost != 0 {
		t.Fatalf("same-cell path = %+v", res)
	}
}

func TestFindPath_OutOfBounds(t *testing.T) {
	pf := NewPathFinder(newTestStore(t, 4, 4))
	_, err := pf.FindPath(context.Background(), -1, 0, 2, 2)
	wantKind(t, err, KindOutOfBounds)
	_, err = pf.FindPath(context.Background(), 0, 0, 2, 4)
	wantKind(t, err, KindOutOfBounds)
}

func TestFindPath_Deterministic(t *testing.T) {
	store := newTestStore(t, 20, 20)
	for y := 3; y < 17; y++ {
		if err := store.Set(10, y, models.GridCell{Obstacle: true}); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	pf := NewPathFinder(store)
	first, err := pf.FindPath(context.Background(), 2, 10, 18, 10)
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := pf.FindPath(context.Background(), 2, 10, 18, 10)
		if err != nil {
			t.Fatalf("FindPath: %v", err)
		}
		if len(again.Path) != len(first.Path) {
			t.Fatalf("run %d path length %d, first %d", i, len(again.Path), len(first.Path))
		}
		for j := range again.Path {
			if again.Path[j] != first.Path[j] {
				t.Fatalf("run %d differs at step %d: %+v vs %+v", i, j, again.Path[j], first.Path[j])
			}
		}
	}
}

func TestFindPath_Canceled(t *testing.T) {
	store := newTestStore(t, 300, 300)
	// A wall with no gap keeps the search expanding until it is cancelled or exhausts the grid.
	for y := 0; y < 300; y++ {
		if err := store.Set(150, y, models.GridCell{TerrainType: 9}); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPathFinder(store).FindPath(ctx, 0, 0, 299, 299)
	wantKind(t, err, KindCanceled)
}
