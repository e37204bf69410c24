package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/export"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/observability"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/orchestrator"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/storage"
)

// Handler serves the extraction API.
type Handler struct {
	logger      *observability.Logger
	runner      Runner
	extractions Extractions
	credits     CreditReporter
	maxUpload   int64
}

// ExtractionListDTO is the response of the list endpoint.
type ExtractionListDTO struct {
	CompanyID   string           `json:"company_id"`
	Extractions []storage.Record `json:"extractions"`
}

// Extract handles POST /api/v1/extractions.
func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}

	year, err := strconv.Atoi(r.FormValue("year"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid year", err.Error())
		return
	}
	backend, err := domain.ParseBackend(r.FormValue("backend"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	file, _, err := r.FormFile("document")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "missing document", err.Error())
		return
	}
	defer file.Close()
	document, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "read document", err.Error())
		return
	}

	key := domain.RequestKey{CompanyID: r.FormValue("company_id"), Year: year, Backend: backend}
	out, err := h.runner.Run(r.Context(), orchestrator.Request{Key: key, Document: document})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if out.Status == orchestrator.StatusAlreadyExtracted {
		status = http.StatusOK
	}
	h.writeJSON(w, status, out)
}

// ListExtractions handles GET /api/v1/companies/{companyId}/extractions.
func (h *Handler) ListExtractions(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyId")
	records, err := h.extractions.List(r.Context(), companyID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if records == nil {
		records = []storage.Record{}
	}
	h.writeJSON(w, http.StatusOK, ExtractionListDTO{CompanyID: companyID, Extractions: records})
}

// Bundle handles GET /api/v1/companies/{companyId}/bundle.
func (h *Handler) Bundle(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyId")

	var buf bytes.Buffer
	if err := h.extractions.Bundle(r.Context(), companyID, &buf); err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.zip"`, companyID))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

// ExportTable handles
// GET /api/v1/companies/{companyId}/extractions/{year}/{backend}/tables/{index}.
// The format query parameter selects csv (default), confidence.csv or xlsx.
func (h *Handler) ExportTable(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid year", err.Error())
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid table index", err.Error())
		return
	}
	backend, err := domain.ParseBackend(chi.URLParam(r, "backend"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	key := domain.RequestKey{CompanyID: chi.URLParam(r, "companyId"), Year: year, Backend: backend}
	if err := key.Validate(); err != nil {
		h.writeDomainError(w, err)
		return
	}

	table, err := h.extractions.LoadTable(r.Context(), key, index)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	var (
		buf         bytes.Buffer
		contentType string
		ext         string
	)
	switch format := r.URL.Query().Get("format"); format {
	case "", "csv":
		err = export.TableCSV(&buf, table)
		contentType, ext = "text/csv; charset=utf-8", "csv"
	case "confidence.csv":
		err = export.ConfidenceCSV(&buf, table)
		contentType, ext = "text/csv; charset=utf-8", "confidence.csv"
	case "xlsx":
		err = export.WriteXLSX(&buf, table, export.XLSXOptions{})
		contentType, ext = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx"
	default:
		h.writeError(w, http.StatusBadRequest, "unsupported format", format)
		return
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s_%d_%s_table_%d.%s"`, key.CompanyID, key.Year, key.Backend, index, ext))
	w.Write(buf.Bytes())
}

// Credits handles GET /api/v1/credits.
func (h *Handler) Credits(w http.ResponseWriter, r *http.Request) {
	if h.credits == nil {
		h.writeError(w, http.StatusNotFound, "remote backend not configured", "")
		return
	}
	remaining, err := h.credits.Remaining(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"remaining": remaining})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Int("status", status).Msg("request failed")
	}
	h.writeError(w, status, string(domain.TypeOf(err)), err.Error())
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, detail string) {
	if message == "" {
		message = http.StatusText(status)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	json.NewEncoder(w).Encode(resp)
}

// StatusFor maps an error to an HTTP status code.
func StatusFor(err error) int {
	switch domain.TypeOf(err) {
	case domain.ErrorTypeInsufficientCredits:
		return http.StatusPaymentRequired
	case domain.ErrorTypeBackendUnavailable, domain.ErrorTypeMalformedPayload:
		return http.StatusBadGateway
	case domain.ErrorTypeValidation:
		return http.StatusBadRequest
	case domain.ErrorTypeConflict:
		return http.StatusConflict
	case domain.ErrorTypeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
