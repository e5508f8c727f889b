package services

import (
	"container/heap"
	"context"
	"math"

	"github.com/zyedidia/generic/mapset"

	"tacgrid/server/models"
)

// cancelCheckInterval is how many node expansions pass between context checks
const cancelCheckInterval = 1024

// PathFinder computes cost-optimal routes over published grid snapshots
type PathFinder struct {
	store *GridStore
}

// NewPathFinder creates a path finder reading from store
func NewPathFinder(store *GridStore) *PathFinder {
	return &PathFinder{store: store}
}

// --- A* pathfinding ---

type pathNode struct {
	x, y   int
	g, h   float64
	seq    uint64 // insertion order, breaks f ties
	parent *pathNode
	index  int // heap index
}

type openList []*pathNode

func (ol openList) Len() int { return len(ol) }
func (ol openList) Less(i, j int) bool {
	fi, fj := ol[i].g+ol[i].h, ol[j].g+ol[j].h
	if fi != fj {
		return fi < fj
	}
	return ol[i].seq < ol[j].seq
}
func (ol openList) Swap(i, j int)       { ol[i], ol[j] = ol[j], ol[i]; ol[i].index = i; ol[j].index = j }
func (ol *openList) Push(x interface{}) { n := x.(*pathNode); n.index = len(*ol); *ol = append(*ol, n) }
func (ol *openList) Pop() interface{} {
	old := *ol
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*ol = old[:len(old)-1]
	return n
}

var dirs = [8][2]int{
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
	{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
}

// FindPath returns the cheapest 8-connected route from (sx, sy) to (ex, ey).
// Entering a cell costs its terrain movement cost, times sqrt2 for diagonal
// steps. Obstacles and impassable terrain are never entered. The search runs
// on the snapshot current at call time.
func (pf *PathFinder) FindPath(ctx context.Context, sx, sy, ex, ey int) (models.PathResult, error) {
	snap := pf.store.Snapshot()
	if !snap.InBounds(sx, sy) {
		return models.PathResult{}, cellOutOfBounds("find_path", sx, sy)
	}
	if !snap.InBounds(ex, ey) {
		return models.PathResult{}, cellOutOfBounds("find_path", ex, ey)
	}

	if sx == ex && sy == ey {
		return models.PathResult{
			Path:       []models.GridCoord{{X: sx, Y: sy}},
			Costs:      []float64{0},
			Generation: snap.Generation(),
		}, nil
	}

	notFound := &GridError{Kind: KindPathNotFound, Op: "find_path", X: ex, Y: ey, HasCell: true}
	if _, ok := snap.moveCost(ex, ey); !ok {
		return models.PathResult{}, notFound
	}

	width := snap.Width()
	key := func(x, y int) int { return y*width + x }
	minCost := snap.catalog.MinPassableCost()
	heuristic := func(x, y int) float64 {
		return math.Hypot(float64(x-ex), float64(y-ey)) * minCost
	}

	var seq uint64
	start := &pathNode{x: sx, y: sy, h: heuristic(sx, sy)}
	ol := &openList{start}
	heap.Init(ol)

	closed := mapset.New[int]()
	best := map[int]*pathNode{key(sx, sy): start}

	expanded := 0
	for ol.Len() > 0 {
		cur := heap.Pop(ol).(*pathNode)
		k := key(cur.x, cur.y)
		if closed.Has(k) {
			continue
		}
		if cur.x == ex && cur.y == ey {
			return buildPath(cur, snap.Generation()), nil
		}
		closed.Put(k)

		expanded++
		if expanded%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return models.PathResult{}, canceled("find_path", err)
			}
		}

		for _, d := range dirs {
			nx, ny := cur.x+d[0], cur.y+d[1]
			if !snap.InBounds(nx, ny) {
				continue
			}
			nk := key(nx, ny)
			if closed.Has(nk) {
				continue
			}
			cost, ok := snap.moveCost(nx, ny)
			if !ok {
				continue
			}
			if d[0] != 0 && d[1] != 0 {
				cost *= math.Sqrt2
			}
			g := cur.g + cost
			if prev, ok := best[nk]; ok && g >= prev.g {
				continue
			}
			seq++
			node := &pathNode{x: nx, y: ny, g: g, h: heuristic(nx, ny), seq: seq, parent: cur}
			best[nk] = node
			heap.Push(ol, node)
		}
	}

	return models.PathResult{}, notFound
}

func buildPath(end *pathNode, generation uint64) models.PathResult {
	var nodes []*pathNode
	for n := end; n != nil; n = n.parent {
		nodes = append(nodes, n)
	}
	// Reverse
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}

	res := models.PathResult{
		Path:       make([]models.GridCoord, len(nodes)),
		Costs:      make([]float64, len(nodes)),
		TotalCost:  end.g,
		Generation: generation,
	}
	for i, n := range nodes {
		res.Path[i] = models.GridCoord{X: n.x, Y: n.y}
		res.Costs[i] = n.g
	}
	return res
}
