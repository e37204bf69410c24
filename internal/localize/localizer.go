// Package localize finds the page holding the subsidiaries table.
package localize

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/cache"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/observability"
)

// Localizer returns the zero-based index of the page most likely to contain
// the target table.
type Localizer interface {
	Locate(ctx context.Context, document []byte) (int, error)
}

// HTTPLocalizer calls the page selection service.
type HTTPLocalizer struct {
	url        string
	httpClient *http.Client
}

// NewHTTPLocalizer creates a localizer for the service at url.
func NewHTTPLocalizer(url string, timeout time.Duration) *HTTPLocalizer {
	return &HTTPLocalizer{url: url, httpClient: &http.Client{Timeout: timeout}}
}

type locateResponse struct {
	PageNumber *int `json:"page_number"`
}

// Locate uploads the document and returns the selected page.
func (l *HTTPLocalizer) Locate(ctx context.Context, document []byte) (int, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("pdf_file", "document.pdf")
	if err != nil {
		return 0, domain.IOError("build localizer form", err)
	}
	if _, err := part.Write(document); err != nil {
		return 0, domain.IOError("build localizer form", err)
	}
	if err := mw.Close(); err != nil {
		return 0, domain.IOError("build localizer form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, &body)
	if err != nil {
		return 0, domain.ConfigError("build localizer request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return 0, domain.BackendUnavailableError("page localizer request", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, domain.BackendUnavailableError("read page localizer response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, domain.BackendUnavailableError(
			fmt.Sprintf("page localizer returned status %d: %s", resp.StatusCode, bytes.TrimSpace(data)), nil)
	}

	var out locateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, domain.MalformedPayloadError("decode page localizer response", err)
	}
	if out.PageNumber == nil || *out.PageNumber < 0 {
		return 0, domain.MalformedPayloadError("page localizer response has no valid page_number", nil)
	}
	return *out.PageNumber, nil
}

// Cached remembers results by document content.
type Cached struct {
	next   Localizer
	cache  cache.Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewCached wraps next with a content-addressed cache.
func NewCached(next Localizer, c cache.Client, ttl time.Duration, logger *observability.Logger) *Cached {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Cached{next: next, cache: c, ttl: ttl, logger: logger.WithComponent("localize")}
}

// Locate returns the cached page for document or asks next.
// Cache failures are logged and never fail the call.
func (c *Cached) Locate(ctx context.Context, document []byte) (int, error) {
	key := DocumentKey(document)
	log := c.logger.WithContext(ctx)

	raw, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		if page, perr := strconv.Atoi(string(raw)); perr == nil {
			log.Debug().Str("key", key).Int("page", page).Msg("page localization cache hit")
			return page, nil
		}
		log.Warn().Str("key", key).Msg("ignoring unreadable cached page")
	case !errors.Is(err, cache.ErrCacheMiss):
		log.Warn().Err(err).Msg("page localization cache read failed")
	}

	page, err := c.next.Locate(ctx, document)
	if err != nil {
		return 0, err
	}

	if err := c.cache.Set(ctx, key, []byte(strconv.Itoa(page)), c.ttl); err != nil {
		log.Warn().Err(err).Msg("page localization cache write failed")
	}
	log.Info().Int("page", page).Msg("anchor page located")
	return page, nil
}

// DocumentKey is the cache key for a document's localization result.
func DocumentKey(document []byte) string {
	sum := sha256.Sum256(document)
	return cache.Key("localize", hex.EncodeToString(sum[:]))
}
