package remotejob

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
)

type submitResponse struct {
	JobID     string `json:"JobId"`
	JobStatus string `json:"JobStatus"`
	Message   string `json:"Message,omitempty"`
}

type resultResponse struct {
	JobStatus string     `json:"JobStatus"`
	Message   string     `json:"Message,omitempty"`
	Tables    []rawTable `json:"Tables"`
}

type rawTable struct {
	TableJSON       domain.SparseGrid[cellValue] `json:"TableJson"`
	TableConfidence domain.SparseGrid[score]     `json:"TableConfidence"`
}

// cellValue accepts strings, numbers and null.
type cellValue string

func (c *cellValue) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*c = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*c = cellValue(v)
		return nil
	}
	*c = cellValue(s)
	return nil
}

// score accepts JSON numbers, numeric strings and null.
type score float64

func (s *score) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*s = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	if raw == "" {
		*s = 0
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("confidence %q is not numeric: %w", raw, err)
	}
	*s = score(f)
	return nil
}

// convertTables turns raw service tables into confidence-aligned tables.
// A table without a TableConfidence key has no confidence grid.
func convertTables(raw []rawTable, onGaps func(index int, what string)) ([]domain.Table, error) {
	tables := make([]domain.Table, 0, len(raw))
	for i, rt := range raw {
		cells, err := domain.Densify(rt.TableJSON, cellValue(""))
		if err != nil {
			return nil, fmt.Errorf("table %d values: %w", i, err)
		}
		if cells.FilledGaps && onGaps != nil {
			onGaps(i, "values")
		}

		grid := make(domain.Grid, len(cells.Rows))
		for r, row := range cells.Rows {
			grid[r] = make([]string, len(row))
			for c, v := range row {
				grid[r][c] = string(v)
			}
		}

		var conf *domain.ConfidenceGrid
		if rt.TableConfidence != nil {
			scores, err := domain.Densify(rt.TableConfidence, score(0))
			if err != nil {
				return nil, fmt.Errorf("table %d confidence: %w", i, err)
			}
			if scores.FilledGaps && onGaps != nil {
				onGaps(i, "confidence")
			}
			conf = &domain.ConfidenceGrid{Scores: make([][]float64, len(scores.Rows))}
			for r, row := range scores.Rows {
				conf.Scores[r] = make([]float64, len(row))
				for c, v := range row {
					conf.Scores[r][c] = float64(v)
				}
			}
		}

		table, err := domain.NewTable(grid, conf)
		if err != nil {
			return nil, fmt.Errorf("table %d: %w", i, err)
		}
		tables = append(tables, table)
	}
	return tables, nil
}

type usageResponse struct {
	Usage   *usageCounts `json:"usage"`
	Credits *int         `json:"credits"`
	Used    *int         `json:"used"`
}

type usageCounts struct {
	Credits int `json:"credits"`
	Used    int `json:"used"`
}

func (u usageResponse) remaining() (int, bool) {
	if u.Usage != nil {
		return u.Usage.Credits - u.Usage.Used, true
	}
	if u.Credits != nil {
		used := 0
		if u.Used != nil {
			used = *u.Used
		}
		return *u.Credits - used, true
	}
	return 0, false
}
