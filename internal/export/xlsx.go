package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
)

const (
	valuesSheet     = "Table"
	confidenceSheet = "Confidence"

	// DefaultLowConfidence is the score under which cells are highlighted.
	DefaultLowConfidence = 0.8
)

// XLSXOptions controls workbook rendering.
type XLSXOptions struct {
	// LowConfidence highlights value cells scored below it. Zero uses
	// DefaultLowConfidence. Cells scored exactly 0 are gap fillers and stay plain.
	LowConfidence float64
}

// WriteXLSX writes t as a workbook. Tables with confidence get a second
// sheet holding the scores.
func WriteXLSX(w io.Writer, t domain.Table, opts XLSXOptions) error {
	threshold := opts.LowConfidence
	if threshold <= 0 {
		threshold = DefaultLowConfidence
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", valuesSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	lowStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#F8CBAD"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	for r, row := range t.Cells {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			if err := f.SetCellValue(valuesSheet, cell, v); err != nil {
				return fmt.Errorf("set cell %s: %w", cell, err)
			}
			if t.HasConfidence() {
				score := t.Confidence.Scores[r][c]
				if score > 0 && score < threshold {
					_ = f.SetCellStyle(valuesSheet, cell, cell, lowStyle)
				}
			}
		}
	}

	if t.HasConfidence() {
		if _, err := f.NewSheet(confidenceSheet); err != nil {
			return fmt.Errorf("create confidence sheet: %w", err)
		}
		for r, row := range t.Confidence.Scores {
			for c, v := range row {
				cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
				if err := f.SetCellValue(confidenceSheet, cell, v); err != nil {
					return fmt.Errorf("set cell %s: %w", cell, err)
				}
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}
