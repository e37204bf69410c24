package domain

import (
	"fmt"
	"sort"
	"strconv"
)

// SparseGrid is the row -> column -> value map delivered by extraction
// services. Keys are decimal strings and must be ordered numerically.
type SparseGrid[T any] map[string]map[string]T

const (
	// MaxDenseCells caps the size of a reconstructed grid.
	MaxDenseCells = 1 << 20
	// maxGapRatio bounds dense cells per cell actually present.
	maxGapRatio = 64
)

// Densified is the result of reconstructing a SparseGrid.
type Densified[T any] struct {
	Rows [][]T
	// FilledGaps is set when some row or column index was missing and had to
	// be filled with the zero value.
	FilledGaps bool
}

// Densify reconstructs a dense grid from a sparse one. Rows and columns are
// placed by the integer value of their keys, so "10" sorts after "2". Missing
// indices are filled with zero. A map without any cell yields an empty grid.
// Keys implying a grid larger than MaxDenseCells, or more than 64 dense cells
// per present cell, are rejected as malformed.
func Densify[T any](sparse SparseGrid[T], zero T) (Densified[T], error) {
	type rowEntry struct {
		index int
		cols  map[int]T
	}

	rows := make([]rowEntry, 0, len(sparse))
	maxCol := -1
	cells := 0
	for rk, cols := range sparse {
		ri, err := parseIndex(rk)
		if err != nil {
			return Densified[T]{}, MalformedPayloadError(fmt.Sprintf("invalid row key %q", rk), err)
		}
		parsed := make(map[int]T, len(cols))
		for ck, v := range cols {
			ci, err := parseIndex(ck)
			if err != nil {
				return Densified[T]{}, MalformedPayloadError(fmt.Sprintf("invalid column key %q in row %q", ck, rk), err)
			}
			parsed[ci] = v
			if ci > maxCol {
				maxCol = ci
			}
			cells++
		}
		rows = append(rows, rowEntry{index: ri, cols: parsed})
	}

	if cells == 0 {
		return Densified[T]{}, nil
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].index < rows[j].index })

	maxRow := rows[len(rows)-1].index
	if maxRow >= MaxDenseCells || maxCol >= MaxDenseCells {
		return Densified[T]{}, MalformedPayloadError(fmt.Sprintf("grid index out of range (row %d, column %d)", maxRow, maxCol), nil)
	}
	nrows := maxRow + 1
	ncols := maxCol + 1
	if dense := nrows * ncols; dense > MaxDenseCells || dense > cells*maxGapRatio {
		return Densified[T]{}, MalformedPayloadError(fmt.Sprintf("grid of %dx%d is too sparse for %d cells", nrows, ncols, cells), nil)
	}
	out := Densified[T]{
		Rows:       make([][]T, nrows),
		FilledGaps: len(rows) != nrows,
	}
	for i := range out.Rows {
		row := make([]T, ncols)
		for j := range row {
			row[j] = zero
		}
		out.Rows[i] = row
	}
	for _, r := range rows {
		if len(r.cols) != ncols {
			out.FilledGaps = true
		}
		for ci, v := range r.cols {
			out.Rows[r.index][ci] = v
		}
	}
	return out, nil
}

func parseIndex(key string) (int, error) {
	n, err := strconv.Atoi(key)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative index %d", n)
	}
	return n, nil
}
