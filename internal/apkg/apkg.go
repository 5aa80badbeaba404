// Package apkg converts native decks to .apkg containers and back.
//
// Export and import are synchronous, single-threaded units of work meant to be
// run off the caller's main goroutine. Each call works in its own temporary
// directory, removed before the call returns.
package apkg

import (
	"io"
	"log/slog"

	"github.com/conorfennell/apkgbridge/internal/domain"
)

// CardSource loads the native cards of the decks being exported, grouped by
// deck in the given order and sorted by ordinal.
type CardSource interface {
	CardsByDeckIDs(deckIDs []int64) ([]domain.Card, error)
}

// DeckNamer lists the names of native decks that already exist.
type DeckNamer interface {
	DeckNames() ([]string, error)
}

// MediaSource resolves a card's media file name to a readable path.
type MediaSource interface {
	Get(role domain.MediaRole, name string) (string, error)
}

// MediaStore receives media relocated out of an imported container.
type MediaStore interface {
	Create(role domain.MediaRole, name string, r io.Reader) error
	Delete(role domain.MediaRole, name string) error
	GenerateThumbnail(role domain.MediaRole, name string) error
}

// Options holds the directories export and import work in.
type Options struct {
	// WorkDir is the parent of per-call temporary directories.
	// Empty means os.TempDir.
	WorkDir string
	// OutputDir receives exported containers.
	OutputDir string
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
