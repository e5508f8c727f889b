package services

import (
	"fmt"
	"math"

	"tacgrid/server/models"
)

// TerrainCatalog is the fixed set of terrain types loaded at initialization
type TerrainCatalog struct {
	types   []models.TerrainType
	byID    map[int]int // terrain id -> index into types
	minCost float64
}

// NewTerrainCatalog validates the ordered terrain list and indexes it by id
func NewTerrainCatalog(types []models.TerrainType) (*TerrainCatalog, error) {
	if len(types) == 0 {
		return nil, configValidation("terrain catalog is empty")
	}

	tc := &TerrainCatalog{
		types:   append([]models.TerrainType(nil), types...),
		byID:    make(map[int]int, len(types)),
		minCost: math.Inf(1),
	}

	for i, t := range tc.types {
		if _, dup := tc.byID[t.ID]; dup {
			return nil, configValidation(fmt.Sprintf("duplicate terrain id %d", t.ID))
		}
		if !isFinite(t.MovementCost) || (t.MovementCost < 0 && t.MovementCost != models.ImpassableCost) {
			return nil, configValidation(fmt.Sprintf("terrain %d has invalid movement cost %g", t.ID, t.MovementCost))
		}
		tc.byID[t.ID] = i
		if t.Passable() && t.MovementCost < tc.minCost {
			tc.minCost = t.MovementCost
		}
	}

	if math.IsInf(tc.minCost, 1) {
		tc.minCost = 0
	}

	return tc, nil
}

// Lookup returns the terrain type with the given id
func (tc *TerrainCatalog) Lookup(id int) (models.TerrainType, bool) {
	i, ok := tc.byID[id]
	if !ok {
		return models.TerrainType{}, false
	}
	return tc.types[i], true
}

// Default is the terrain assigned to cells at initialization
func (tc *TerrainCatalog) Default() models.TerrainType {
	return tc.types[0]
}

// MinPassableCost is the cheapest movement cost of any enterable terrain,
// or 0 when every terrain is impassable.
func (tc *TerrainCatalog) MinPassableCost() float64 {
	return tc.minCost
}

// Types returns the catalog in configured order
func (tc *TerrainCatalog) Types() []models.TerrainType {
	return append([]models.TerrainType(nil), tc.types...)
}
