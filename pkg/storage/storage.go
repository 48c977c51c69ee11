// Package storage persists metadata documents as JSON files laid out
// as {base}/{database}/{schema}/{table}.json. Writes are atomic via a
// temp file and rename.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/tablesage/tablesage/pkg/apperrors"
	"github.com/tablesage/tablesage/pkg/models"
)

// DocumentStore reads and writes metadata documents under a base
// directory.
type DocumentStore struct {
	base   string
	logger *zap.Logger
}

// NewDocumentStore creates a store rooted at base, creating it if
// needed.
func NewDocumentStore(base string, logger *zap.Logger) (*DocumentStore, error) {
	if base == "" {
		return nil, fmt.Errorf("storage base directory is required")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &DocumentStore{base: base, logger: logger.Named("storage")}, nil
}

// pathUnsafe are the characters replaced in path components.
const pathUnsafe = `/\:<>|*?"`

// SanitizeComponent makes a database, schema, or table name safe to use
// as a single path element.
func SanitizeComponent(name string) string {
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(pathUnsafe, r) || r < 0x20 {
			b.WriteRune('_')
		} else {
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), " .")
	if out == "" {
		out = "_"
	}
	return out
}

// Path returns the on-disk location for a document identity.
func (s *DocumentStore) Path(database, schema, table string) string {
	return filepath.Join(s.base,
		SanitizeComponent(database),
		SanitizeComponent(schema),
		SanitizeComponent(table)+".json")
}

// Write persists a document atomically, overwriting any prior version.
func (s *DocumentStore) Write(doc *models.MetadataDocument) error {
	path := s.Path(doc.Database, doc.Schema, doc.Table)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create document directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace document: %w", err)
	}

	s.logger.Debug("document written",
		zap.String("database", doc.Database),
		zap.String("schema", doc.Schema),
		zap.String("table", doc.Table))
	return nil
}

// Read loads a stored document, or NotFound.
func (s *DocumentStore) Read(database, schema, table string) (*models.MetadataDocument, error) {
	path := s.Path(database, schema, table)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.New(apperrors.KindNotFound,
				fmt.Sprintf("no metadata for %s.%s.%s", database, schema, table))
		}
		return nil, fmt.Errorf("read document: %w", err)
	}

	var doc models.MetadataDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", path, err)
	}
	return &doc, nil
}

// Delete removes a stored document. Deleting a missing document is
// NotFound.
func (s *DocumentStore) Delete(database, schema, table string) error {
	path := s.Path(database, schema, table)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return apperrors.New(apperrors.KindNotFound,
				fmt.Sprintf("no metadata for %s.%s.%s", database, schema, table))
		}
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// DocumentRef identifies one stored document.
type DocumentRef struct {
	Database string `json:"database"`
	Schema   string `json:"schema"`
	Table    string `json:"table"`
}

// List walks the store and returns every document identity, in
// filesystem order.
func (s *DocumentStore) List(database string) ([]DocumentRef, error) {
	root := s.base
	if database != "" {
		root = filepath.Join(s.base, SanitizeComponent(database))
	}

	var refs []DocumentRef
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.base, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) != 3 {
			return nil
		}
		refs = append(refs, DocumentRef{
			Database: parts[0],
			Schema:   parts[1],
			Table:    strings.TrimSuffix(parts[2], ".json"),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return refs, nil
}
