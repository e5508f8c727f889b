package services

import "tacgrid/server/models"

// DefaultBandCells is the approximate number of cells held by one band
const DefaultBandCells = 4096

// cell is the stored form of a grid cell; its coordinates are implied by position
type cell struct {
	terrain  int
	obstacle bool
	ruled    bool // obstacle was set by the obstacle rule
	height   float64
	extra    *models.ExtraData
}

// band is a run of whole grid rows. Once published in a snapshot it is never
// written again; mutations clone it.
type band struct {
	y0, y1 int
	cells  []cell // row-major, (y1-y0)*width entries
}

// bandLayout splits the row-major cell array into bands of whole rows.
// Concatenating the bands in order yields the array indexed by y*width+x.
type bandLayout struct {
	width    int
	height   int
	bandRows int
	count    int
}

func newBandLayout(width, height int) bandLayout {
	rows := DefaultBandCells / width
	if rows < 1 {
		rows = 1
	}
	if rows > height {
		rows = height
	}
	return bandLayout{
		width:    width,
		height:   height,
		bandRows: rows,
		count:    (height + rows - 1) / rows,
	}
}

// locate returns the band holding (x, y) and the cell's offset inside it
func (bl bandLayout) locate(x, y int) (int, int) {
	i := y / bl.bandRows
	return i, (y-i*bl.bandRows)*bl.width + x
}

// rows returns the half-open row range covered by band i
func (bl bandLayout) rows(i int) (int, int) {
	y0 := i * bl.bandRows
	y1 := y0 + bl.bandRows
	if y1 > bl.height {
		y1 = bl.height
	}
	return y0, y1
}

// newBand creates band i with every cell set to fill
func (bl bandLayout) newBand(i int, fill cell) *band {
	y0, y1 := bl.rows(i)
	cells := make([]cell, (y1-y0)*bl.width)
	for j := range cells {
		cells[j] = fill
	}
	return &band{y0: y0, y1: y1, cells: cells}
}

// bandsCovering returns the indices of the bands intersecting rows [y0, y1)
func (bl bandLayout) bandsCovering(y0, y1 int) []int {
	if y0 < 0 {
		y0 = 0
	}
	if y1 > bl.height {
		y1 = bl.height
	}
	if y0 >= y1 {
		return nil
	}
	var out []int
	for i := y0 / bl.bandRows; i <= (y1-1)/bl.bandRows; i++ {
		out = append(out, i)
	}
	return out
}

// clone returns a copy of b whose cells can be written
func (b *band) clone() *band {
	return &band{y0: b.y0, y1: b.y1, cells: append([]cell(nil), b.cells...)}
}
