package hexmath

import "testing"

func TestOffsetPixelRoundTrip(t *testing.T) {
	size := 1.0
	for row := 0; row < 12; row++ {
		for col := 0; col < 12; col++ {
			x, y := OffsetToPixel(col, row, size)
			gotCol, gotRow := PixelToOffset(x, y, size)
			if gotCol != col || gotRow != row {
				t.Errorf("round trip (%d,%d) -> pixel(%.3f,%.3f) -> (%d,%d)", col, row, x, y, gotCol, gotRow)
			}
		}
	}
}

func TestNeighborsCount(t *testing.T) {
	n := Neighbors(5, 5)
	seen := make(map[Offset]bool)
	for _, o := range n {
		if seen[o] {
			t.Fatalf("duplicate neighbor %v", o)
		}
		seen[o] = true
	}
	if len(seen) != 6 {
		t.Fatalf("expected 6 distinct neighbors, got %d", len(seen))
	}
}

func TestNeighborsAreAdjacent(t *testing.T) {
	a := Offset{Col: 3, Row: 4}.ToAxial()
	for _, o := range Neighbors(3, 4) {
		b := o.ToAxial()
		if cubeDistance(a, b) != 1 {
			t.Errorf("neighbor %v not at distance 1 from (3,4)", o)
		}
	}
}

func TestHexLineEndpoints(t *testing.T) {
	line := HexLine(0, 0, 5, 3)
	if len(line) == 0 {
		t.Fatal("expected non-empty line")
	}
	if line[0] != (Offset{Col: 0, Row: 0}) {
		t.Errorf("line should start at origin, got %v", line[0])
	}
	last := line[len(line)-1]
	if last != (Offset{Col: 5, Row: 3}) {
		t.Errorf("line should end at (5,3), got %v", last)
	}
}

func TestHexLineNoDuplicates(t *testing.T) {
	line := HexLine(-2, -2, 6, 7)
	seen := make(map[Offset]bool, len(line))
	for _, o := range line {
		if seen[o] {
			t.Fatalf("duplicate cell %v in hex line", o)
		}
		seen[o] = true
	}
}

func TestHexLineSingleCell(t *testing.T) {
	line := HexLine(2, 2, 2, 2)
	if len(line) != 1 || line[0] != (Offset{Col: 2, Row: 2}) {
		t.Fatalf("single-cell line should be [{2 2}], got %v", line)
	}
}

func TestHexLineConsecutiveCellsAreAdjacentOrSame(t *testing.T) {
	line := HexLine(0, 0, 10, 0)
	for i := 1; i < len(line); i++ {
		a := line[i-1].ToAxial()
		b := line[i].ToAxial()
		d := cubeDistance(a, b)
		if d != 1 {
			t.Errorf("step %d->%d has distance %d, want 1", i-1, i, d)
		}
	}
}
