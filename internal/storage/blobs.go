package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
)

// FSBlobs lays artifacts out under a root directory, one directory per
// write: <root>/<company>/<year>/<backend>/<artifact_id>/table_<i>.json.
// Only the directory named by the committed catalog row is live.
type FSBlobs struct {
	root string
}

// NewFSBlobs creates the root directory if needed.
func NewFSBlobs(root string) (*FSBlobs, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, domain.IOError("create storage root", err)
	}
	return &FSBlobs{root: root}, nil
}

// KeyDir returns the directory holding every artifact set written for key.
func (b *FSBlobs) KeyDir(key domain.RequestKey) string {
	return filepath.Join(b.root, key.CompanyID, strconv.Itoa(key.Year), string(key.Backend))
}

// Dir returns the directory of one artifact set of key.
func (b *FSBlobs) Dir(key domain.RequestKey, artifactID string) string {
	return filepath.Join(b.KeyDir(key), artifactID)
}

// ValueName is the artifact name of a value grid.
func ValueName(index int) string {
	return fmt.Sprintf("table_%d.json", index)
}

// ConfidenceName is the artifact name of a confidence grid.
func ConfidenceName(index int) string {
	return fmt.Sprintf("table_%d_confidence.json", index)
}

// Stage writes files into a fresh hidden directory under the key directory.
// It returns the staging path and the artifact id the set will publish as.
func (b *FSBlobs) Stage(key domain.RequestKey, files map[string][]byte) (string, string, error) {
	parent := b.KeyDir(key)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", "", domain.IOError("create artifact directory", err)
	}
	artifactID := uuid.NewString()
	staging := filepath.Join(parent, ".staging-"+artifactID)
	if err := os.Mkdir(staging, 0o755); err != nil {
		return "", "", domain.IOError("create staging directory", err)
	}

	for name, data := range files {
		if err := writeFileSync(filepath.Join(staging, name), data); err != nil {
			_ = os.RemoveAll(staging)
			return "", "", domain.IOError(fmt.Sprintf("write artifact %s", name), err)
		}
	}
	return staging, artifactID, nil
}

// Publish moves a staged set to its own artifact directory. It never
// touches another set.
func (b *FSBlobs) Publish(key domain.RequestKey, staging, artifactID string) error {
	if err := os.Rename(staging, b.Dir(key, artifactID)); err != nil {
		return domain.IOError("publish artifacts", err)
	}
	return nil
}

// Remove deletes one artifact set of key.
func (b *FSBlobs) Remove(key domain.RequestKey, artifactID string) error {
	if err := os.RemoveAll(b.Dir(key, artifactID)); err != nil {
		return domain.IOError("remove artifacts", err)
	}
	return nil
}

// Prune deletes the published sets of key other than keep. Staging
// directories belong to writers still in progress and are left alone.
func (b *FSBlobs) Prune(key domain.RequestKey, keep string) error {
	entries, err := os.ReadDir(b.KeyDir(key))
	if err != nil {
		return domain.IOError("list artifact sets", err)
	}
	var errs []error
	for _, e := range entries {
		if !e.IsDir() || e.Name() == keep || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		errs = append(errs, os.RemoveAll(filepath.Join(b.KeyDir(key), e.Name())))
	}
	if err := errors.Join(errs...); err != nil {
		return domain.IOError("prune artifact sets", err)
	}
	return nil
}

// Read returns one artifact of a set. A missing artifact is os.ErrNotExist.
func (b *FSBlobs) Read(key domain.RequestKey, artifactID, name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(b.Dir(key, artifactID), name))
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
