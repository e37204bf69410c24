// Package pages derives page windows for table continuation and restricts
// PDF documents to them.
package pages

import "github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"

// MaxWindow is the largest number of pages a window can cover.
const MaxWindow = 3

// Select returns the window starting at anchor, preferring three pages, then
// two, then one, clipped to a document of total pages.
//
// An out-of-range anchor is clamped into [0,total). A document with no pages
// yields a one-page window at 0, which fails later when the document is trimmed.
func Select(anchor, total int) domain.PageWindow {
	if total <= 0 {
		return domain.PageWindow{Start: 0, Count: 1}
	}
	if anchor < 0 {
		anchor = 0
	}
	if anchor >= total {
		anchor = total - 1
	}

	count := MaxWindow
	for count > 1 && anchor+count-1 >= total {
		count--
	}
	return domain.PageWindow{Start: anchor, Count: count}
}
