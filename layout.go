package mediagrid

import "math"

// DefaultTileAspectRatio is the aspect ratio tiles are fit to when none is
// configured.
const DefaultTileAspectRatio = 16.0 / 9.0

// TileRect is the pixel rectangle of one tile on the canvas.
type TileRect struct {
	X, Y          int
	Width, Height int
}

// Empty reports whether the rectangle has no area.
func (r TileRect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// GridParams is the geometry of a grid holding a fixed number of tiles.
// X is the left offset of full rows, XLast the left offset of the last row,
// which may hold fewer tiles and is centered on its own.
type GridParams struct {
	Rows, Cols    int
	Width, Height int
	X, Y          int
	XLast         int
}

// ComputeGrid finds the rows x cols partition of count tiles that maximizes
// tile area on a w x h canvas with gap pixels between tiles. Tiles are fit,
// never stretched, to aspectRatio.
//
// Candidates start at a single row and move to the next row count that can
// drop a column, stopping once an extra row no longer helps. Ties keep the
// partition with fewer rows. count must be at least 1.
func ComputeGrid(w, h, gap, count int, aspectRatio float64) GridParams {
	if count < 1 {
		count = 1
	}
	if aspectRatio <= 0 {
		aspectRatio = DefaultTileAspectRatio
	}

	rows, cols := 1, count
	optimalArea := 0
	optimal := GridParams{Rows: rows, Cols: cols}

	for (rows-1)*cols <= count {
		width := floorDiv(w-(cols-1)*gap, cols)
		height := floorDiv(h-(rows-1)*gap, rows)
		if float64(height)*aspectRatio >= float64(width) {
			height = int(math.Floor(float64(width) / aspectRatio))
		} else {
			width = int(math.Floor(float64(height) * aspectRatio))
		}

		if area := width * height; area > optimalArea {
			optimalArea = area
			optimal = GridParams{Rows: rows, Cols: cols, Width: width, Height: height}
		}

		if cols == 1 {
			break
		}
		rows = ceilDiv(count, cols-1)
		cols = ceilDiv(count, rows)
	}

	lastRowSize := count % optimal.Cols
	if lastRowSize == 0 {
		lastRowSize = optimal.Cols
	}

	optimal.X = floorDiv(w-(optimal.Cols*(optimal.Width+gap)-gap), 2)
	optimal.XLast = floorDiv(w-(lastRowSize*(optimal.Width+gap)-gap), 2)
	optimal.Y = floorDiv(h-(optimal.Rows*(optimal.Height+gap)-gap), 2)
	return optimal
}

// TilesLayout caches grid geometry per tile count for a fixed canvas.
// It is not safe for concurrent use; the Compositor serializes access.
type TilesLayout struct {
	width, height int
	gap           int
	aspectRatio   float64
	count         int
	cache         map[int]GridParams
}

// NewTilesLayout creates a layout for a width x height area. A non-positive
// aspectRatio selects DefaultTileAspectRatio.
func NewTilesLayout(width, height, gap int, aspectRatio float64) *TilesLayout {
	if aspectRatio <= 0 {
		aspectRatio = DefaultTileAspectRatio
	}
	return &TilesLayout{
		width:       width,
		height:      height,
		gap:         gap,
		aspectRatio: aspectRatio,
		count:       1,
		cache:       make(map[int]GridParams),
	}
}

// SetTilesCount selects the tile count used by TileCoords, computing its
// geometry on first use.
func (l *TilesLayout) SetTilesCount(count int) {
	if count < 1 {
		count = 1
	}
	l.count = count
	if _, ok := l.cache[count]; !ok {
		l.cache[count] = ComputeGrid(l.width, l.height, l.gap, count, l.aspectRatio)
	}
}

// Params returns the geometry for the current tile count.
func (l *TilesLayout) Params() GridParams {
	if _, ok := l.cache[l.count]; !ok {
		l.SetTilesCount(l.count)
	}
	return l.cache[l.count]
}

// TileCoords returns the rectangle of the n-th tile in row-major order.
func (l *TilesLayout) TileCoords(n int) TileRect {
	p := l.Params()
	row := n / p.Cols
	col := n - row*p.Cols

	x := p.X
	if row == p.Rows-1 {
		x = p.XLast
	}
	return TileRect{
		X:      x + col*(p.Width+l.gap),
		Y:      p.Y + row*(p.Height+l.gap),
		Width:  p.Width,
		Height: p.Height,
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func ceilDiv(a, b int) int {
	return -floorDiv(-a, b)
}
