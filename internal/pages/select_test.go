package pages

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		name          string
		anchor, total int
		want          domain.PageWindow
	}{
		{name: "three pages fit", anchor: 5, total: 8, want: domain.PageWindow{Start: 5, Count: 3}},
		{name: "two pages fit", anchor: 6, total: 8, want: domain.PageWindow{Start: 6, Count: 2}},
		{name: "last page", anchor: 7, total: 8, want: domain.PageWindow{Start: 7, Count: 1}},
		{name: "first page", anchor: 0, total: 8, want: domain.PageWindow{Start: 0, Count: 3}},
		{name: "single page document", anchor: 0, total: 1, want: domain.PageWindow{Start: 0, Count: 1}},
		{name: "anchor past end", anchor: 12, total: 8, want: domain.PageWindow{Start: 7, Count: 1}},
		{name: "negative anchor", anchor: -1, total: 8, want: domain.PageWindow{Start: 0, Count: 3}},
		{name: "empty document", anchor: 0, total: 0, want: domain.PageWindow{Start: 0, Count: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Select(tt.anchor, tt.total))
		})
	}
}

func TestSelect_WindowAlwaysInBounds(t *testing.T) {
	for total := 1; total <= 12; total++ {
		for anchor := 0; anchor < total; anchor++ {
			w := Select(anchor, total)
			assert.Equal(t, anchor, w.Start)
			assert.GreaterOrEqual(t, w.Count, 1)
			assert.LessOrEqual(t, w.Count, MaxWindow)
			assert.Less(t, w.End(), total, "anchor=%d total=%d", anchor, total)
			if anchor+2 < total {
				assert.Equal(t, 3, w.Count)
			}
		}
	}
}

func TestPDF_RejectsEmptyDocument(t *testing.T) {
	p := NewPDF()

	_, err := p.Count(nil)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))

	_, err = p.Trim([]byte{}, domain.PageWindow{Start: 0, Count: 1})
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}
