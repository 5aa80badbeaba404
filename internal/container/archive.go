package container

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// Archive is an open container being read.
type Archive struct {
	zr *zip.ReadCloser
}

// Open opens the container at path for reading.
func Open(path string) (*Archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open container %s: %w", path, err)
	}
	return &Archive{zr: zr}, nil
}

// Close releases the underlying file.
func (a *Archive) Close() error {
	return a.zr.Close()
}

func (a *Archive) entry(name string) *zip.File {
	for _, f := range a.zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// ExtractDatabase copies the collection into workDir and opens it.
// The caller owns the returned handle.
func (a *Archive) ExtractDatabase(workDir string) (*sqlx.DB, error) {
	f := a.entry(DatabaseEntry)
	if f == nil {
		return nil, ErrMissingDatabase
	}
	dst := filepath.Join(workDir, DatabaseEntry)
	if err := extractFile(f, dst); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", dst)
	if err != nil {
		return nil, fmt.Errorf("failed to open extracted database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to extracted database: %w", err)
	}
	return db, nil
}

// ExtractMedia copies every numeric entry into workDir and returns the
// entry name to extracted path mapping. Other entries are ignored.
func (a *Archive) ExtractMedia(workDir string) (map[string]string, error) {
	files := make(map[string]string)
	for _, f := range a.zr.File {
		if f.FileInfo().IsDir() || !IsMediaEntry(f.Name) {
			continue
		}
		dst := filepath.Join(workDir, f.Name)
		if err := extractFile(f, dst); err != nil {
			return nil, err
		}
		files[f.Name] = dst
	}
	return files, nil
}

// ReadMediaMap decodes the media entry. A container without one has no media.
func (a *Archive) ReadMediaMap() (map[string]string, error) {
	mediaMap := make(map[string]string)
	f := a.entry(MediaMapEntry)
	if f == nil {
		return mediaMap, nil
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open media map: %w", err)
	}
	defer rc.Close()

	if err := json.NewDecoder(rc).Decode(&mediaMap); err != nil {
		return nil, fmt.Errorf("failed to decode media map: %w", err)
	}
	return mediaMap, nil
}

func extractFile(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract entry %s: %w", f.Name, err)
	}
	return out.Close()
}
