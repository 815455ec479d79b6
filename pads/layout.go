package pads

// Cell is a position on the 6x6 pad grid. Row 1 is the top row.
type Cell struct {
	Row, Col int
}

const GridSize = 6

// Bass triangle (top right) and drum triangle (bottom left); sounds take
// the 16 cells left over, scanned row by row.
var (
	bassCells = [NumBasses]Cell{
		{1, 3}, {1, 4}, {1, 5}, {1, 6}, {2, 4}, {2, 5}, {2, 6}, {3, 5}, {3, 6}, {4, 6},
	}
	drumCells = [NumDrums]Cell{
		{3, 1}, {4, 1}, {4, 2}, {5, 1}, {5, 2}, {5, 3}, {6, 1}, {6, 2}, {6, 3}, {6, 4},
	}
)

// Layout maps keys to grid cells and back
type Layout struct {
	cells map[Key]Cell
	keys  map[Cell]Key
}

// NewLayout builds the standard triangle layout
func NewLayout() *Layout {
	l := &Layout{
		cells: make(map[Key]Cell, NumPads),
		keys:  make(map[Cell]Key, NumPads),
	}
	for i, c := range bassCells {
		l.put(Key{Category: Bass, Index: i + 1}, c)
	}
	for i, c := range drumCells {
		l.put(Key{Category: Drum, Index: i + 1}, c)
	}

	idx := 1
	for row := 1; row <= GridSize; row++ {
		for col := 1; col <= GridSize; col++ {
			c := Cell{row, col}
			if _, used := l.keys[c]; used {
				continue
			}
			l.put(Key{Category: Sound, Index: idx}, c)
			idx++
		}
	}
	return l
}

func (l *Layout) put(k Key, c Cell) {
	l.cells[k] = c
	l.keys[c] = k
}

// CellOf returns the grid cell for a key
func (l *Layout) CellOf(k Key) (Cell, bool) {
	c, ok := l.cells[k]
	return c, ok
}

// KeyAt returns the key at a grid cell
func (l *Layout) KeyAt(c Cell) (Key, bool) {
	k, ok := l.keys[c]
	return k, ok
}

// Launchpad grid mapping: the 6x6 block sits at columns 0-5, rows 1-6, with
// grid row 1 at the top (Launchpad row 6).

// PadToCell converts a Launchpad row/col (row 0 = bottom) to a grid cell
func PadToCell(row, col int) (Cell, bool) {
	c := Cell{Row: 7 - row, Col: col + 1}
	if c.Row < 1 || c.Row > GridSize || c.Col < 1 || c.Col > GridSize {
		return Cell{}, false
	}
	return c, true
}

// CellToPad converts a grid cell to a Launchpad row/col
func CellToPad(c Cell) (row, col int) {
	return 7 - c.Row, c.Col - 1
}
