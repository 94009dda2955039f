package index

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spigell/shl-recommender/internal/catalog"
)

var (
	// ErrNotFound means at least one artifact is missing and the index must be rebuilt.
	ErrNotFound = errors.New("index artifacts not found")
	// ErrCorrupt means the artifacts exist but cannot be served together.
	ErrCorrupt = errors.New("index artifacts are corrupt")
)

// Store keeps the binary index and its metadata list side by side in one directory.
type Store struct {
	dir          string
	indexFile    string
	metadataFile string
}

func NewStore(dir, indexFile, metadataFile string) *Store {
	if dir == "" {
		dir = "."
	}
	return &Store{dir: dir, indexFile: indexFile, metadataFile: metadataFile}
}

func (s *Store) IndexPath() string {
	return filepath.Join(s.dir, s.indexFile)
}

func (s *Store) MetadataPath() string {
	return filepath.Join(s.dir, s.metadataFile)
}

// Persist writes metadata first and the index second. The previous index is removed
// before anything else, so an interrupted persist leaves no index and Load reports ErrNotFound.
func (s *Store) Persist(flat *Flat, records []catalog.Record) error {
	if err := Check(flat, records); err != nil {
		return fmt.Errorf("refusing to persist: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	if err := os.Remove(s.IndexPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale index: %w", err)
	}

	metadata, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := writeFileAtomic(s.MetadataPath(), metadata); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	var buf bytes.Buffer
	if _, err := flat.WriteTo(&buf); err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := writeFileAtomic(s.IndexPath(), buf.Bytes()); err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	return nil
}

// Load reads both artifacts and verifies they describe the same rows in the same order.
func (s *Store) Load() (*Flat, []catalog.Record, error) {
	metadata, err := os.ReadFile(s.MetadataPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, s.MetadataPath())
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read metadata: %w", err)
	}

	f, err := os.Open(s.IndexPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, s.IndexPath())
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open index: %w", err)
	}
	defer f.Close()

	var records []catalog.Record
	if err := json.Unmarshal(metadata, &records); err != nil {
		return nil, nil, fmt.Errorf("%w: decode metadata: %v", ErrCorrupt, err)
	}

	flat, err := ReadFlat(f)
	if err != nil {
		return nil, nil, err
	}

	if err := Check(flat, records); err != nil {
		return nil, nil, err
	}

	return flat, records, nil
}

// Remove deletes both artifacts.
func (s *Store) Remove() error {
	for _, path := range []string{s.IndexPath(), s.MetadataPath()} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}

// ModTime returns the modification time of the index artifact, zero when absent.
func (s *Store) ModTime() time.Time {
	info, err := os.Stat(s.IndexPath())
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// Check verifies that the index rows and records are aligned one to one.
func Check(flat *Flat, records []catalog.Record) error {
	if flat == nil {
		return fmt.Errorf("%w: index is nil", ErrCorrupt)
	}

	if flat.Len() != len(records) {
		return fmt.Errorf("%w: index has %d rows, metadata has %d records", ErrCorrupt, flat.Len(), len(records))
	}

	for i, id := range flat.IDs() {
		if id != records[i].ID {
			return fmt.Errorf("%w: row %d id %q does not match record id %q", ErrCorrupt, i, id, records[i].ID)
		}
	}

	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
