package domain

import "fmt"

// Grid is a dense, rectangular grid of cell values indexed [row][col].
type Grid [][]string

// Rows returns the number of rows.
func (g Grid) Rows() int { return len(g) }

// Cols returns the number of columns.
func (g Grid) Cols() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

// ConfidenceGrid holds per-cell certainty scores aligned with a Grid.
type ConfidenceGrid struct {
	Scores [][]float64
}

// Rows returns the number of rows.
func (c *ConfidenceGrid) Rows() int { return len(c.Scores) }

// Cols returns the number of columns.
func (c *ConfidenceGrid) Cols() int {
	if len(c.Scores) == 0 {
		return 0
	}
	return len(c.Scores[0])
}

// MinMax returns the lowest and highest score, ignoring zeros which the
// extraction service uses for cells it did not score.
func (c *ConfidenceGrid) MinMax() (min, max float64, ok bool) {
	for _, row := range c.Scores {
		for _, v := range row {
			if v == 0 {
				continue
			}
			if !ok || v < min {
				min = v
			}
			if !ok || v > max {
				max = v
			}
			ok = true
		}
	}
	return min, max, ok
}

// Table is a confidence-aligned table: a value grid plus an optional
// confidence grid of the same shape. A nil Confidence means the backend
// reported no confidence at all, which is different from an all-zero grid.
type Table struct {
	Cells      Grid
	Confidence *ConfidenceGrid
}

// NewTable builds a table and checks the shape invariant.
func NewTable(cells Grid, confidence *ConfidenceGrid) (Table, error) {
	t := Table{Cells: cells, Confidence: confidence}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// HasConfidence reports whether the table carries a confidence grid.
func (t Table) HasConfidence() bool {
	return t.Confidence != nil
}

// Validate checks that the grids are rectangular and, when confidence is
// present, that both grids have the same shape.
func (t Table) Validate() error {
	cols := t.Cells.Cols()
	for i, row := range t.Cells {
		if len(row) != cols {
			return MalformedPayloadError(fmt.Sprintf("value grid row %d has %d columns, expected %d", i, len(row), cols), nil)
		}
	}
	if t.Confidence == nil {
		return nil
	}
	if t.Confidence.Rows() != t.Cells.Rows() || t.Confidence.Cols() != cols {
		return MalformedPayloadError(fmt.Sprintf("confidence grid is %dx%d but value grid is %dx%d",
			t.Confidence.Rows(), t.Confidence.Cols(), t.Cells.Rows(), cols), nil)
	}
	for i, row := range t.Confidence.Scores {
		if len(row) != cols {
			return MalformedPayloadError(fmt.Sprintf("confidence grid row %d has %d columns, expected %d", i, len(row), cols), nil)
		}
	}
	return nil
}
