package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/orchestrator"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/storage"
)

type stubRunner struct {
	got orchestrator.Request
	out *orchestrator.Outcome
	err error
}

func (s *stubRunner) Run(_ context.Context, req orchestrator.Request) (*orchestrator.Outcome, error) {
	s.got = req
	return s.out, s.err
}

type stubExtractions struct {
	records []storage.Record
	table   domain.Table
	err     error
}

func (s *stubExtractions) List(_ context.Context, companyID string) ([]storage.Record, error) {
	if err := domain.ValidateCompanyID(companyID); err != nil {
		return nil, err
	}
	return s.records, s.err
}

func (s *stubExtractions) LoadTable(_ context.Context, key domain.RequestKey, index int) (domain.Table, error) {
	if s.err != nil {
		return domain.Table{}, s.err
	}
	if index != 0 {
		return domain.Table{}, domain.NotFoundError("no such table", nil)
	}
	return s.table, nil
}

func (s *stubExtractions) Bundle(_ context.Context, companyID string, w io.Writer) error {
	zw := zip.NewWriter(w)
	f, err := zw.Create("2021/remote_job/table_0.csv")
	if err != nil {
		return err
	}
	f.Write([]byte("a;b\n"))
	return zw.Close()
}

type stubCredits struct {
	remaining int
	err       error
}

func (s stubCredits) Remaining(context.Context) (int, error) { return s.remaining, s.err }

func newServer(t *testing.T, runner Runner, ex Extractions, credits CreditReporter) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(nil, runner, ex, credits, Config{}))
	t.Cleanup(srv.Close)
	return srv
}

func extractionForm(t *testing.T, fields map[string]string, document []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if document != nil {
		part, err := mw.CreateFormFile("document", "report.pdf")
		require.NoError(t, err)
		_, _ = part.Write(document)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestExtract(t *testing.T) {
	window := domain.PageWindow{Start: 5, Count: 3}
	runner := &stubRunner{out: &orchestrator.Outcome{
		Status: orchestrator.StatusExtracted, CompanyID: "123456789", Year: 2021,
		Backend: domain.BackendRemoteJob, TableCount: 2, Anchor: 5, Window: &window,
	}}
	srv := newServer(t, runner, &stubExtractions{}, nil)

	body, ct := extractionForm(t, map[string]string{
		"company_id": "123456789", "year": "2021", "backend": "extracttable",
	}, []byte("%PDF"))
	resp, err := http.Post(srv.URL+"/api/v1/extractions", ct, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, domain.RequestKey{CompanyID: "123456789", Year: 2021, Backend: domain.BackendRemoteJob}, runner.got.Key)
	assert.Equal(t, []byte("%PDF"), runner.got.Document)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "extracted", out["status"])
	assert.Equal(t, float64(2), out["table_count"])
}

func TestExtract_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: domain.InsufficientCreditsError("none", nil), want: http.StatusPaymentRequired},
		{err: domain.BackendUnavailableError("down", nil), want: http.StatusBadGateway},
		{err: domain.MalformedPayloadError("bad", nil), want: http.StatusBadGateway},
		{err: domain.ValidationError("bad", nil), want: http.StatusBadRequest},
		{err: domain.ConflictError("busy", nil), want: http.StatusConflict},
		{err: domain.IOError("disk", nil), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(domain.TypeOf(tt.err)), func(t *testing.T) {
			srv := newServer(t, &stubRunner{err: tt.err}, &stubExtractions{}, nil)
			body, ct := extractionForm(t, map[string]string{
				"company_id": "123456789", "year": "2021", "backend": "remote_job",
			}, []byte("%PDF"))

			resp, err := http.Post(srv.URL+"/api/v1/extractions", ct, body)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestExtract_BadInput(t *testing.T) {
	srv := newServer(t, &stubRunner{}, &stubExtractions{}, nil)

	body, ct := extractionForm(t, map[string]string{"company_id": "123456789", "year": "x", "backend": "local"}, []byte("%PDF"))
	resp, err := http.Post(srv.URL+"/api/v1/extractions", ct, body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, ct = extractionForm(t, map[string]string{"company_id": "123456789", "year": "2021", "backend": "ocr"}, []byte("%PDF"))
	resp, err = http.Post(srv.URL+"/api/v1/extractions", ct, body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, ct = extractionForm(t, map[string]string{"company_id": "123456789", "year": "2021", "backend": "local"}, nil)
	resp, err = http.Post(srv.URL+"/api/v1/extractions", ct, body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListExtractions(t *testing.T) {
	ex := &stubExtractions{records: []storage.Record{{CompanyID: "123456789", Year: 2021, Backend: domain.BackendRemoteJob, TableCount: 2}}}
	srv := newServer(t, &stubRunner{}, ex, nil)

	resp, err := http.Get(srv.URL + "/api/v1/companies/123456789/extractions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var dto ExtractionListDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&dto))
	require.Len(t, dto.Extractions, 1)
	assert.Equal(t, 2, dto.Extractions[0].TableCount)

	bad, err := http.Get(srv.URL + "/api/v1/companies/abc/extractions")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestBundle(t *testing.T) {
	srv := newServer(t, &stubRunner{}, &stubExtractions{}, nil)

	resp, err := http.Get(srv.URL + "/api/v1/companies/123456789/bundle")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "2021/remote_job/table_0.csv", zr.File[0].Name)
}

func TestExportTable(t *testing.T) {
	ex := &stubExtractions{table: domain.Table{
		Cells:      domain.Grid{{"a", "b"}},
		Confidence: &domain.ConfidenceGrid{Scores: [][]float64{{0.9, 0.5}}},
	}}
	srv := newServer(t, &stubRunner{}, ex, nil)
	base := srv.URL + "/api/v1/companies/123456789/extractions/2021/remote_job/tables/"

	resp, err := http.Get(base + "0")
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "\ufeffa;b\n", string(data))

	resp, err = http.Get(base + "0?format=confidence.csv")
	require.NoError(t, err)
	data, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "\ufeff0.9;0.5\n", string(data))

	resp, err = http.Get(base + "0?format=xlsx")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")

	resp, err = http.Get(base + "3")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(base + "0?format=pdf")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCredits(t *testing.T) {
	srv := newServer(t, &stubRunner{}, &stubExtractions{}, stubCredits{remaining: 41})

	resp, err := http.Get(srv.URL + "/api/v1/credits")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 41, out["remaining"])

	none := newServer(t, &stubRunner{}, &stubExtractions{}, nil)
	resp2, err := http.Get(none.URL + "/api/v1/credits")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestHealth(t *testing.T) {
	srv := newServer(t, &stubRunner{}, &stubExtractions{}, nil)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
