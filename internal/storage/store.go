package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strconv"

	"github.com/klauspost/compress/zip"

	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/export"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/observability"
)

// Store is the only writer of extraction artifacts. A key is visible once
// its catalog row is committed, and the row is written after every artifact.
type Store struct {
	catalog *Catalog
	blobs   *FSBlobs
	logger  *observability.Logger
}

// NewStore creates a store over a catalog and a blob directory.
func NewStore(catalog *Catalog, blobs *FSBlobs, logger *observability.Logger) *Store {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Store{catalog: catalog, blobs: blobs, logger: logger.WithComponent("storage")}
}

// Exists reports whether key has a committed extraction.
func (s *Store) Exists(ctx context.Context, key domain.RequestKey) (bool, error) {
	return s.catalog.Exists(ctx, key)
}

// Persist writes every table of one request, then commits the key. On any
// failure the key stays absent.
func (s *Store) Persist(ctx context.Context, key domain.RequestKey, tables []domain.Table) error {
	if err := key.Validate(); err != nil {
		return err
	}

	exists, err := s.catalog.Exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		return domain.ConflictError(fmt.Sprintf("extraction %s already committed", key), nil)
	}

	files := make(map[string][]byte, 2*len(tables))
	for i, t := range tables {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("table %d: %w", i, err)
		}
		data, err := json.Marshal(t.Cells)
		if err != nil {
			return domain.IOError(fmt.Sprintf("encode table %d", i), err)
		}
		files[ValueName(i)] = data

		if t.HasConfidence() {
			data, err := json.Marshal(t.Confidence.Scores)
			if err != nil {
				return domain.IOError(fmt.Sprintf("encode table %d confidence", i), err)
			}
			files[ConfidenceName(i)] = data
		}
	}

	return s.commit(ctx, key, len(tables), files)
}

// commit publishes files as a new artifact set and inserts the catalog row
// naming it. A writer that loses the insert removes only its own set, so
// the committed extraction is never disturbed.
func (s *Store) commit(ctx context.Context, key domain.RequestKey, tableCount int, files map[string][]byte) error {
	staging, artifactID, err := s.blobs.Stage(key, files)
	if err != nil {
		return err
	}
	if err := s.blobs.Publish(key, staging, artifactID); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}

	rec := Record{
		CompanyID:  key.CompanyID,
		Year:       key.Year,
		Backend:    key.Backend,
		TableCount: tableCount,
		RunID:      observability.RunIDFromContext(ctx),
		ArtifactID: artifactID,
	}
	created, err := s.catalog.Commit(ctx, rec)
	if err != nil {
		_ = s.blobs.Remove(key, artifactID)
		return err
	}
	if !created {
		_ = s.blobs.Remove(key, artifactID)
		return domain.ConflictError(fmt.Sprintf("extraction %s was committed concurrently", key), nil)
	}

	log := s.logger.WithContext(ctx)
	if err := s.blobs.Prune(key, artifactID); err != nil {
		log.Warn().Err(err).Str("key", key.String()).Msg("prune stale artifacts")
	}

	log.Info().
		Str("key", key.String()).
		Str("artifact_id", artifactID).
		Int("tables", tableCount).
		Int("artifacts", len(files)).
		Msg("extraction persisted")
	return nil
}

// Load reads back a committed extraction.
func (s *Store) Load(ctx context.Context, key domain.RequestKey) ([]domain.Table, error) {
	rec, err := s.catalog.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	tables := make([]domain.Table, 0, rec.TableCount)
	for i := 0; i < rec.TableCount; i++ {
		t, err := s.loadTable(key, rec.ArtifactID, i)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// LoadTable reads one table of a committed extraction.
func (s *Store) LoadTable(ctx context.Context, key domain.RequestKey, index int) (domain.Table, error) {
	rec, err := s.catalog.Get(ctx, key)
	if err != nil {
		return domain.Table{}, err
	}
	if index < 0 || index >= rec.TableCount {
		return domain.Table{}, domain.NotFoundError(
			fmt.Sprintf("extraction %s has no table %d", key, index), nil)
	}
	return s.loadTable(key, rec.ArtifactID, index)
}

// ArtifactDir returns the directory holding the committed artifacts of key.
func (s *Store) ArtifactDir(ctx context.Context, key domain.RequestKey) (string, error) {
	rec, err := s.catalog.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return s.blobs.Dir(key, rec.ArtifactID), nil
}

func (s *Store) loadTable(key domain.RequestKey, artifactID string, index int) (domain.Table, error) {
	data, err := s.blobs.Read(key, artifactID, ValueName(index))
	if err != nil {
		return domain.Table{}, domain.IOError(fmt.Sprintf("read %s of %s", ValueName(index), key), err)
	}
	var cells domain.Grid
	if err := json.Unmarshal(data, &cells); err != nil {
		return domain.Table{}, domain.IOError(fmt.Sprintf("decode %s of %s", ValueName(index), key), err)
	}
	if cells == nil {
		cells = domain.Grid{}
	}

	var conf *domain.ConfidenceGrid
	data, err = s.blobs.Read(key, artifactID, ConfidenceName(index))
	switch {
	case err == nil:
		conf = &domain.ConfidenceGrid{}
		if err := json.Unmarshal(data, &conf.Scores); err != nil {
			return domain.Table{}, domain.IOError(fmt.Sprintf("decode %s of %s", ConfidenceName(index), key), err)
		}
		if conf.Scores == nil {
			conf.Scores = [][]float64{}
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return domain.Table{}, domain.IOError(fmt.Sprintf("read %s of %s", ConfidenceName(index), key), err)
	}

	return domain.NewTable(cells, conf)
}

// List returns the committed extractions of a company.
func (s *Store) List(ctx context.Context, companyID string) ([]Record, error) {
	if err := domain.ValidateCompanyID(companyID); err != nil {
		return nil, err
	}
	return s.catalog.List(ctx, companyID)
}

// Bundle writes a zip of the CSV rendition of every committed artifact of a
// company. Entries are named <year>/<backend>/table_<i>[_confidence].csv.
func (s *Store) Bundle(ctx context.Context, companyID string, w io.Writer) error {
	records, err := s.List(ctx, companyID)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	entries := 0
	for _, rec := range records {
		key := rec.Key()
		tables, err := s.Load(ctx, key)
		if err != nil {
			return err
		}
		dir := path.Join(strconv.Itoa(rec.Year), string(rec.Backend))
		for i, t := range tables {
			if err := addCSV(zw, path.Join(dir, fmt.Sprintf("table_%d.csv", i)), func(w io.Writer) error {
				return export.TableCSV(w, t)
			}); err != nil {
				return err
			}
			entries++
			if !t.HasConfidence() {
				continue
			}
			if err := addCSV(zw, path.Join(dir, fmt.Sprintf("table_%d_confidence.csv", i)), func(w io.Writer) error {
				return export.ConfidenceCSV(w, t)
			}); err != nil {
				return err
			}
			entries++
		}
	}
	if err := zw.Close(); err != nil {
		return domain.IOError("finish bundle", err)
	}

	s.logger.WithContext(ctx).Info().
		Str("company_id", companyID).
		Int("extractions", len(records)).
		Int("entries", entries).
		Msg("bundle written")
	return nil
}

func addCSV(zw *zip.Writer, name string, render func(io.Writer) error) error {
	fw, err := zw.Create(name)
	if err != nil {
		return domain.IOError(fmt.Sprintf("add %s to bundle", name), err)
	}
	if err := render(fw); err != nil {
		return domain.IOError(fmt.Sprintf("render %s", name), err)
	}
	return nil
}
