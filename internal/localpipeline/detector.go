package localpipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"sort"

	"github.com/gen2brain/go-fitz"

	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
)

const (
	defaultRenderDPI = 200
	defaultPadding   = 1.02
)

// FitzDetector renders each page with go-fitz and asks the detection service
// for table boxes on the rendered image.
type FitzDetector struct {
	url        string
	dpi        float64
	padding    float64
	httpClient *http.Client
}

// NewFitzDetector creates a detector posting page images to url.
func NewFitzDetector(url string, dpi, padding float64, httpClient *http.Client) *FitzDetector {
	if dpi <= 0 {
		dpi = defaultRenderDPI
	}
	if padding < 1 {
		padding = defaultPadding
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &FitzDetector{url: url, dpi: dpi, padding: padding, httpClient: httpClient}
}

type detectResponse struct {
	Boxes []Box `json:"boxes"`
}

// Detect returns crops page by page, top to bottom within a page.
func (d *FitzDetector) Detect(ctx context.Context, document []byte) ([]Crop, error) {
	doc, err := fitz.NewFromMemory(document)
	if err != nil {
		return nil, domain.ValidationError("open pdf for rendering", err)
	}
	defer doc.Close()

	var crops []Crop
	for page := 0; page < doc.NumPage(); page++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := doc.ImageDPI(page, d.dpi)
		if err != nil {
			return nil, domain.IOError(fmt.Sprintf("render page %d", page), err)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, domain.IOError(fmt.Sprintf("encode page %d", page), err)
		}

		boxes, err := d.boxes(ctx, buf.Bytes())
		if err != nil {
			return nil, err
		}
		sort.SliceStable(boxes, func(i, j int) bool { return boxes[i].Y0 < boxes[j].Y0 })

		pageCrops, err := cropPage(page, img, boxes, d.padding)
		if err != nil {
			return nil, domain.IOError("crop detections", err)
		}
		crops = append(crops, pageCrops...)
	}
	return crops, nil
}

func (d *FitzDetector) boxes(ctx context.Context, pagePNG []byte) ([]Box, error) {
	data, err := postImage(ctx, d.httpClient, d.url, "image", "page.png", pagePNG)
	if err != nil {
		return nil, err
	}
	var resp detectResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, domain.MalformedPayloadError("decode detection response", err)
	}
	return resp.Boxes, nil
}

// postImage uploads one file as multipart form data and returns the 2xx body.
func postImage(ctx context.Context, hc *http.Client, url, field, filename string, content []byte) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return nil, domain.IOError("build upload form", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, domain.IOError("build upload form", err)
	}
	if err := mw.Close(); err != nil {
		return nil, domain.IOError("build upload form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, domain.ConfigError("build upload request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := hc.Do(req)
	if err != nil {
		return nil, domain.BackendUnavailableError("POST "+url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.BackendUnavailableError("read response from "+url, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.BackendUnavailableError(
			fmt.Sprintf("%s returned status %d: %s", url, resp.StatusCode, bytes.TrimSpace(data)), nil)
	}
	return data, nil
}
