// Package container reads and writes the .apkg ZIP container: a SQLite
// collection, an empty legacy placeholder, a JSON media map and one entry per
// media payload named by its numeric id.
package container

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	DatabaseEntry       = "collection.anki21"
	LegacyDatabaseEntry = "collection.anki2"
	MediaMapEntry       = "media"
)

// ErrMissingDatabase is returned when a container has no collection.anki21 entry.
var ErrMissingDatabase = errors.New("database entry missing")

var mediaEntryPattern = regexp.MustCompile(`^[0-9]+$`)

// IsMediaEntry reports whether name is a plain numeric media entry name.
func IsMediaEntry(name string) bool {
	return mediaEntryPattern.MatchString(name) && !hasSeparator(name)
}

func hasSeparator(name string) bool {
	return strings.ContainsAny(name, `/\`)
}

// Build writes a container to out. media maps numeric entry names to the
// paths of the payloads to embed; mediaJSON is written verbatim as the media map.
// The output file is removed if any step fails.
func Build(out, dbPath string, media map[string]string, mediaJSON string) (err error) {
	ids := make([]string, 0, len(media))
	for id := range media {
		if !IsMediaEntry(id) {
			return fmt.Errorf("invalid media entry name %q", id)
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.Atoi(ids[i])
		b, _ := strconv.Atoi(ids[j])
		return a < b
	})

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create container %s: %w", out, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close container %s: %w", out, cerr)
		}
		if err != nil {
			os.Remove(out)
		}
	}()

	zw := zip.NewWriter(f)
	if err := writeFileEntry(zw, DatabaseEntry, dbPath); err != nil {
		return err
	}
	if _, err := zw.Create(LegacyDatabaseEntry); err != nil {
		return fmt.Errorf("failed to write %s: %w", LegacyDatabaseEntry, err)
	}
	w, err := zw.Create(MediaMapEntry)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", MediaMapEntry, err)
	}
	if _, err := io.WriteString(w, mediaJSON); err != nil {
		return fmt.Errorf("failed to write %s: %w", MediaMapEntry, err)
	}
	for _, id := range ids {
		if err := writeFileEntry(zw, id, media[id]); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish container %s: %w", out, err)
	}
	return nil
}

func writeFileEntry(zw *zip.Writer, name, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s for entry %s: %w", path, name, err)
	}
	defer src.Close()

	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to write entry %s: %w", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("failed to write entry %s: %w", name, err)
	}
	return nil
}
