package localpipeline

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
)

// HTTPCellExtractor posts crops to the cell extraction service.
type HTTPCellExtractor struct {
	url        string
	httpClient *http.Client
}

// NewHTTPCellExtractor creates an extractor posting crops to url.
func NewHTTPCellExtractor(url string, httpClient *http.Client) *HTTPCellExtractor {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPCellExtractor{url: url, httpClient: httpClient}
}

type extractResponse struct {
	Table      domain.SparseGrid[string]  `json:"table"`
	Confidence domain.SparseGrid[float64] `json:"confidence"`
}

// Extract returns the crop's cell grid and the service's confidence, if any.
func (e *HTTPCellExtractor) Extract(ctx context.Context, crop Crop) (domain.Grid, *domain.ConfidenceGrid, error) {
	data, err := postImage(ctx, e.httpClient, e.url, "image", "crop.png", crop.PNG)
	if err != nil {
		return nil, nil, err
	}

	var resp extractResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, nil, domain.MalformedPayloadError("decode extraction response", err)
	}

	cells, err := domain.Densify(resp.Table, "")
	if err != nil {
		return nil, nil, err
	}

	var conf *domain.ConfidenceGrid
	if resp.Confidence != nil {
		scores, err := domain.Densify(resp.Confidence, 0)
		if err != nil {
			return nil, nil, err
		}
		conf = &domain.ConfidenceGrid{Scores: scores.Rows}
	}
	return domain.Grid(cells.Rows), conf, nil
}
