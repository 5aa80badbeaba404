// Package library reconciles deck sources with the native store: folders of
// markdown decks, and a git repository of shared .apkg containers.
package library

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/apkgbridge/internal/apkg"
	"github.com/conorfennell/apkgbridge/internal/domain"
	"github.com/conorfennell/apkgbridge/internal/filestore"
	"github.com/conorfennell/apkgbridge/internal/fingerprint"
	"github.com/conorfennell/apkgbridge/internal/gitsource"
	"github.com/conorfennell/apkgbridge/internal/parser"
	"github.com/conorfennell/apkgbridge/internal/storage"
)

// Library ties the store, the media store and the container codec together.
type Library struct {
	db       *storage.DB
	media    *filestore.Store
	importer *apkg.Importer
	exporter *apkg.Exporter
	logger   *slog.Logger
}

// New creates a Library. A nil logger uses slog.Default.
func New(db *storage.DB, media *filestore.Store, opts apkg.Options, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{
		db:       db,
		media:    media,
		importer: apkg.NewImporter(db, media, opts, logger),
		exporter: apkg.NewExporter(db, media, opts, logger),
		logger:   logger,
	}
}

// Report summarises one reconciliation run.
type Report struct {
	Decks   int
	Cards   int
	Skipped int
	Errors  []error
}

// LoadMarkdown walks dir for markdown decks. New decks are created; cards
// missing from an existing deck of the same name are appended after its last
// card. Cards already present, by content, are skipped.
func (l *Library) LoadMarkdown(dir string) (Report, error) {
	var report Report

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		models, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			report.Errors = append(report.Errors, fmt.Errorf("parsing %s: %w", path, parseErr))
			return nil
		}
		for _, m := range models {
			if err := l.reconcileDeck(filepath.Dir(path), m, &report); err != nil {
				report.Errors = append(report.Errors, fmt.Errorf("deck %s in %s: %w", m.Deck.Name, path, err))
			}
		}
		return nil
	})
	if walkErr != nil {
		return report, fmt.Errorf("error walking directory %s: %w", dir, walkErr)
	}

	l.logger.Info("markdown reconciliation complete",
		"path", dir,
		"decks", report.Decks,
		"new_cards", report.Cards,
		"skipped_cards", report.Skipped,
		"errors", len(report.Errors),
	)
	return report, nil
}

func (l *Library) reconcileDeck(baseDir string, m domain.DeckModel, report *Report) error {
	existing, err := l.db.FindDeckByName(m.Deck.Name)
	if err != nil {
		return err
	}
	if existing == nil {
		l.storeMedia(baseDir, m.Cards)
		saved, err := l.db.InsertDeckModels([]domain.DeckModel{m})
		if err != nil {
			return err
		}
		report.Decks++
		report.Cards += len(saved[0].Cards)
		return nil
	}

	stored, err := l.db.CardsByDeckIDs([]int64{existing.ID})
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(stored))
	next := 0
	for _, c := range stored {
		known[fingerprint.Card(c)] = true
		if c.Ordinal >= next {
			next = c.Ordinal + 1
		}
	}

	var added int
	for _, card := range m.Cards {
		hash := fingerprint.Card(card)
		if known[hash] {
			report.Skipped++
			continue
		}
		known[hash] = true
		withMedia := []domain.Card{card}
		l.storeMedia(baseDir, withMedia)
		card = withMedia[0]
		card.DeckID = existing.ID
		card.Ordinal = next
		if _, err := l.db.InsertCard(card); err != nil {
			return err
		}
		next++
		added++
	}

	if added > 0 {
		l.logger.Info("New cards appended", "deck", existing.Name, "count", added)
		report.Cards += added
		if err := l.db.TouchDeck(existing.ID); err != nil {
			l.logger.Warn("Failed to update deck timestamp", "deck", existing.Name, "error", err)
		}
	}
	return nil
}

// storeMedia copies media named by markdown cards, relative to baseDir, into
// the media store under fresh names. Missing files are dropped from the card.
func (l *Library) storeMedia(baseDir string, cards []domain.Card) {
	for i := range cards {
		card := &cards[i]
		for _, role := range domain.MediaRoles {
			name := card.Media(role)
			if name == "" {
				continue
			}
			stored := apkg.StoredName(name, role)
			if err := l.copyIntoStore(role, filepath.Join(baseDir, name), stored); err != nil {
				l.logger.Warn("Dropping card media", "role", role.String(), "file", name, "error", err)
				card.SetMedia(role, "")
				continue
			}
			card.SetMedia(role, stored)
			if role.IsImage() {
				if err := l.media.GenerateThumbnail(role, stored); err != nil {
					l.logger.Warn("Thumbnail generation failed", "file", name, "error", err)
				}
			}
		}
	}
}

func (l *Library) copyIntoStore(role domain.MediaRole, src, name string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	return l.media.Create(role, name, f)
}

// ImportFile imports one container as new decks. A container whose bytes
// were imported before is skipped and reported with skipped set.
func (l *Library) ImportFile(path string) (models []domain.DeckModel, skipped bool, err error) {
	hash, err := fingerprint.File(path)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", domain.ErrParseFile, err)
	}
	seen, err := l.db.HasImport(hash)
	if err != nil {
		return nil, false, err
	}
	if seen {
		l.logger.Info("Container already imported, skipping", "path", path)
		return nil, true, nil
	}

	models, err = l.importer.Import(path)
	if err != nil {
		return nil, false, err
	}
	saved, err := l.db.ImportDeckModels(hash, path, models)
	if err != nil {
		l.discardMedia(models)
		return nil, false, err
	}
	return saved, false, nil
}

// discardMedia removes media relocated for models that never reached the
// store.
func (l *Library) discardMedia(models []domain.DeckModel) {
	for _, m := range models {
		for _, c := range m.Cards {
			for _, role := range domain.MediaRoles {
				name := c.Media(role)
				if name == "" {
					continue
				}
				if err := l.media.Delete(role, name); err != nil {
					l.logger.Warn("Failed to discard media", "file", name, "error", err)
				}
			}
		}
	}
}

// DeleteDeck removes a deck, its cards and the media files they reference.
// Media that cannot be removed is logged and left behind.
func (l *Library) DeleteDeck(deck domain.Deck) error {
	cards, err := l.db.CardsByDeckIDs([]int64{deck.ID})
	if err != nil {
		return err
	}
	if err := l.db.DeleteDeck(deck.ID); err != nil {
		return err
	}
	l.discardMedia([]domain.DeckModel{{Deck: deck, Cards: cards}})
	l.logger.Info("Deck deleted", "deck", deck.Name, "cards", len(cards))
	return nil
}

// Sync pulls the shared library at dir (cloning repoURL first when set) and
// imports every container not imported before.
func (l *Library) Sync(repoURL, dir string) (Report, error) {
	var report Report
	l.logger.Info("Starting library sync", "path", dir)

	if repoURL != "" {
		if err := gitsource.Sync(repoURL, dir); err != nil {
			return report, err
		}
	}

	paths, err := gitsource.FindContainers(dir)
	if err != nil {
		return report, err
	}
	for _, path := range paths {
		models, skipped, err := l.ImportFile(path)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("importing %s: %w", path, err))
			continue
		}
		if skipped {
			report.Skipped++
			continue
		}
		report.Decks += len(models)
		for _, m := range models {
			report.Cards += len(m.Cards)
		}
	}

	l.logger.Info("library sync complete",
		"path", dir,
		"containers", len(paths),
		"decks", report.Decks,
		"cards", report.Cards,
		"skipped", report.Skipped,
		"errors", len(report.Errors),
	)
	return report, nil
}

// Publish exports decks and commits the container to the library at dir,
// pulling from repoURL first when set. It returns the exported file's path.
func (l *Library) Publish(decks []domain.Deck, repoURL, dir string) (string, error) {
	if repoURL != "" {
		if err := gitsource.Sync(repoURL, dir); err != nil {
			return "", err
		}
	}
	path, err := l.Export(decks)
	if err != nil {
		return "", err
	}
	names := make([]string, len(decks))
	for i, d := range decks {
		names[i] = d.Name
	}
	if _, err := gitsource.Commit(dir, path, "Export "+strings.Join(names, ", ")); err != nil {
		return path, err
	}
	return path, nil
}

// Export writes decks to a new container in the output directory.
func (l *Library) Export(decks []domain.Deck) (string, error) {
	return l.exporter.Export(decks)
}

// LocalPath maps a git URL to a directory under baseDir, for example
// https://github.com/me/decks.git to baseDir/github.com/me/decks.
func LocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		if strings.Contains(repoURL, "@") {
			parts := strings.Split(repoURL, ":")
			if len(parts) == 2 {
				hostAndUser := strings.Split(parts[0], "@")
				if len(hostAndUser) == 2 {
					host := hostAndUser[1]
					repoPath := strings.TrimSuffix(parts[1], ".git")
					return filepath.Join(baseDir, host, repoPath), nil
				}
			}
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	sanitizedPath := strings.TrimSuffix(parsedURL.Path, ".git")
	return filepath.Join(baseDir, parsedURL.Host, sanitizedPath), nil
}
