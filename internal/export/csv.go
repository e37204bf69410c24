// Package export renders extracted tables in end-user formats.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
)

// Separator is the CSV field separator.
const Separator = ';'

// WriteCSV writes rows as ;-separated UTF-8 text with a byte order mark.
func WriteCSV(w io.Writer, rows [][]string) error {
	tw := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	cw := csv.NewWriter(tw)
	cw.Comma = Separator

	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	// An empty grid still gets its BOM.
	if len(rows) == 0 {
		if _, err := tw.Write(nil); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// TableCSV writes the value grid of t.
func TableCSV(w io.Writer, t domain.Table) error {
	return WriteCSV(w, t.Cells)
}

// ConfidenceCSV writes the confidence grid of t. It fails when t has none.
func ConfidenceCSV(w io.Writer, t domain.Table) error {
	if !t.HasConfidence() {
		return domain.NotFoundError("table has no confidence grid", nil)
	}
	return WriteCSV(w, ConfidenceRows(t.Confidence))
}

// ConfidenceRows formats scores with the shortest exact representation.
func ConfidenceRows(c *domain.ConfidenceGrid) [][]string {
	rows := make([][]string, len(c.Scores))
	for i, row := range c.Scores {
		rows[i] = make([]string, len(row))
		for j, v := range row {
			rows[i][j] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return rows
}
