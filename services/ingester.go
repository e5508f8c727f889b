package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"tacgrid/server/models"
)

// IngestTask is a running raster ingestion. Cancelling it before publication
// leaves the published grid untouched.
type IngestTask struct {
	op         string
	cancel     context.CancelFunc
	done       chan struct{}
	generation uint64
	err        error
}

// Op names the ingestion ("load_dem" or "set_bathymetry")
func (t *IngestTask) Op() string { return t.op }

// Cancel asks the task to stop. It has no effect once the grid is published.
func (t *IngestTask) Cancel() { t.cancel() }

// Done is closed when the task has finished
func (t *IngestTask) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes and returns the published generation
func (t *IngestTask) Wait() (uint64, error) {
	<-t.done
	return t.generation, t.err
}

// ElevationIngester bulk-loads elevation and bathymetry rasters into a GridStore
type ElevationIngester struct {
	store   *GridStore
	rule    *ObstacleRule
	workers int
}

// NewElevationIngester creates an ingester writing into store. rule may be nil.
func NewElevationIngester(store *GridStore, rule *ObstacleRule) *ElevationIngester {
	return &ElevationIngester{
		store:   store,
		rule:    rule,
		workers: runtime.GOMAXPROCS(0),
	}
}

// applyFunc writes one raster sample into a cell copy
type applyFunc func(c *cell, sample float64)

func applyDEM(c *cell, sample float64) {
	c.height = sample
}

// applyBathymetry only deepens cells that are not above sea level
func applyBathymetry(c *cell, sample float64) {
	if sample < 0 && c.height <= 0 {
		c.height = sample
	}
}

// StartDEM validates r and starts overwriting every cell height with it
func (ei *ElevationIngester) StartDEM(ctx context.Context, r models.Raster) (*IngestTask, error) {
	return ei.start(ctx, "load_dem", r, applyDEM)
}

// StartBathymetry validates r and starts overlaying its below-sea-level samples
func (ei *ElevationIngester) StartBathymetry(ctx context.Context, r models.Raster) (*IngestTask, error) {
	return ei.start(ctx, "set_bathymetry", r, applyBathymetry)
}

// LoadDEM ingests a DEM raster and waits for publication
func (ei *ElevationIngester) LoadDEM(ctx context.Context, r models.Raster) error {
	t, err := ei.StartDEM(ctx, r)
	if err != nil {
		return err
	}
	_, err = t.Wait()
	return err
}

// SetBathymetryData ingests a bathymetry raster and waits for publication
func (ei *ElevationIngester) SetBathymetryData(ctx context.Context, r models.Raster) error {
	t, err := ei.StartBathymetry(ctx, r)
	if err != nil {
		return err
	}
	_, err = t.Wait()
	return err
}

func (ei *ElevationIngester) validate(op string, r models.Raster) error {
	w, h := ei.store.layout.width, ei.store.layout.height
	if r.Width != w || r.Height != h {
		return dataFormat(op, w*h, r.Width*r.Height, "raster dimensions do not match grid")
	}
	if len(r.Samples) != w*h {
		return dataFormat(op, w*h, len(r.Samples), "sample count does not match grid")
	}
	return nil
}

func (ei *ElevationIngester) start(ctx context.Context, op string, r models.Raster, apply applyFunc) (*IngestTask, error) {
	if err := ei.validate(op, r); err != nil {
		return nil, err
	}
	samples := append([]float64(nil), r.Samples...)

	tctx, cancel := context.WithCancel(ctx)
	t := &IngestTask{op: op, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		defer cancel()

		started := time.Now()
		t.generation, t.err = ei.store.replace(tctx, op, func(base *Snapshot) ([]*band, error) {
			return ei.build(tctx, op, base, samples, apply)
		})
		if t.err != nil {
			slog.Warn("raster ingestion failed", "op", op, "error", t.err)
			return
		}
		slog.Info("raster ingested", "op", op, "generation", t.generation, "elapsed", time.Since(started))
	}()

	return t, nil
}

// build derives a full replacement band set from base. Bands are processed in
// parallel and cancellation is checked before each band.
func (ei *ElevationIngester) build(ctx context.Context, op string, base *Snapshot, samples []float64, apply applyFunc) ([]*band, error) {
	width := base.layout.width
	bands := make([]*band, len(base.bands))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ei.workers)

	for i, src := range base.bands {
		i, src := i, src
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return canceled(op, err)
			}
			nb := src.clone()
			offset := src.y0 * width
			for j := range nb.cells {
				x, y := j%width, src.y0+j/width
				s := samples[offset+j]
				if !isFinite(s) {
					return &GridError{Kind: KindDataFormat, Op: op, X: x, Y: y, HasCell: true, Reason: "non-finite sample"}
				}
				apply(&nb.cells[j], s)
				// Explicitly placed obstacles stay; rule obstacles are re-evaluated.
				c := &nb.cells[j]
				if ei.rule != nil && (!c.obstacle || c.ruled) {
					c.obstacle, c.ruled = false, false
					blocked, err := ei.rule.blocks(x, y, *c)
					if err != nil {
						return &GridError{Kind: KindDataFormat, Op: op, X: x, Y: y, HasCell: true, Err: err}
					}
					c.obstacle, c.ruled = blocked, blocked
				}
			}
			bands[i] = nb
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bands, nil
}
