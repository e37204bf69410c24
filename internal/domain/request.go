package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Backend identifies one of the two extraction strategies.
type Backend string

const (
	// BackendLocalPipeline runs the detection and cell-extraction models.
	BackendLocalPipeline Backend = "local_pipeline"
	// BackendRemoteJob submits the document to the third-party job API.
	BackendRemoteJob Backend = "remote_job"
)

// Backends lists every supported backend.
var Backends = []Backend{BackendLocalPipeline, BackendRemoteJob}

// ParseBackend converts user input to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local_pipeline", "local", "table_transformer":
		return BackendLocalPipeline, nil
	case "remote_job", "remote", "extracttable":
		return BackendRemoteJob, nil
	default:
		return "", ValidationError(fmt.Sprintf("unknown backend %q", s), nil)
	}
}

var sirenPattern = regexp.MustCompile(`^[0-9]{9}$`)

// RequestKey identifies one extraction request.
type RequestKey struct {
	CompanyID string
	Year      int
	Backend   Backend
}

// String renders the key as company/year/backend.
func (k RequestKey) String() string {
	return fmt.Sprintf("%s/%d/%s", k.CompanyID, k.Year, k.Backend)
}

// Validate checks the company id (SIREN), year and backend.
func (k RequestKey) Validate() error {
	if err := ValidateCompanyID(k.CompanyID); err != nil {
		return err
	}
	if k.Year < 1000 || k.Year > 9999 {
		return ValidationError(fmt.Sprintf("invalid year %d", k.Year), nil)
	}
	if _, err := ParseBackend(string(k.Backend)); err != nil {
		return err
	}
	return nil
}

// ValidateCompanyID checks that id is a nine-digit SIREN number.
func ValidateCompanyID(id string) error {
	if !sirenPattern.MatchString(id) {
		return ValidationError(fmt.Sprintf("company id %q must contain exactly 9 digits", id), nil)
	}
	return nil
}

// PageWindow is the contiguous, zero-based page range submitted to a backend.
type PageWindow struct {
	Start int
	Count int
}

// Pages returns the zero-based page indices covered by the window.
func (w PageWindow) Pages() []int {
	pages := make([]int, w.Count)
	for i := range pages {
		pages[i] = w.Start + i
	}
	return pages
}

// End returns the last page index of the window.
func (w PageWindow) End() int {
	return w.Start + w.Count - 1
}

func (w PageWindow) String() string {
	return fmt.Sprintf("[%d..%d]", w.Start, w.End())
}
