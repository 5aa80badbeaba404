package apkg

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Registers the sqlite driver

	"github.com/conorfennell/apkgbridge/internal/collection"
	"github.com/conorfennell/apkgbridge/internal/container"
	"github.com/conorfennell/apkgbridge/internal/domain"
)

// Exporter writes native decks into .apkg containers.
type Exporter struct {
	cards  CardSource
	media  MediaSource
	opts   Options
	logger *slog.Logger
}

// NewExporter creates an exporter reading cards from cards and media files from media.
func NewExporter(cards CardSource, media MediaSource, opts Options, logger *slog.Logger) *Exporter {
	return &Exporter{
		cards:  cards,
		media:  media,
		opts:   opts,
		logger: loggerOrDefault(logger),
	}
}

// Export writes decks and all of their cards to a new container in the output
// directory and returns its path. No file is left behind on failure.
func (e *Exporter) Export(decks []domain.Deck) (string, error) {
	if len(decks) == 0 {
		return "", domain.ErrNoDeckSelected
	}
	deckIDs := make([]int64, len(decks))
	for i, d := range decks {
		deckIDs[i] = d.ID
	}
	cards, err := e.cards.CardsByDeckIDs(deckIDs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrCreateFile, err)
	}
	if len(cards) == 0 {
		return "", domain.ErrNoCardsInDecks
	}

	workDir, err := os.MkdirTemp(e.opts.WorkDir, "apkg-export-*")
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrCreateFile, err)
	}
	defer os.RemoveAll(workDir)

	out, err := e.export(workDir, decks, cards)
	if err != nil {
		e.logger.Error("Export failed", "decks", len(decks), "error", err)
		return "", fmt.Errorf("%w: %w", domain.ErrCreateFile, err)
	}
	return out, nil
}

func (e *Exporter) export(workDir string, decks []domain.Deck, cards []domain.Card) (string, error) {
	now := time.Now()
	ids := newIDSequence(now)
	mediaMap, refs := e.buildMediaMap(cards)

	dbPath := filepath.Join(workDir, container.DatabaseEntry)
	if err := e.writeCollection(dbPath, decks, cards, ids, now); err != nil {
		return "", err
	}

	files := e.resolveMedia(mediaMap, refs, cards)
	mediaJSON, err := json.Marshal(mediaMap)
	if err != nil {
		return "", fmt.Errorf("failed to encode media map: %w", err)
	}

	name := "decks"
	if len(decks) == 1 {
		name = fileBase(decks[0].Name)
	}
	out := filepath.Join(e.opts.OutputDir, name+"-"+strconv.FormatInt(now.UnixMilli(), 10)+".apkg")
	if err := container.Build(out, dbPath, files, string(mediaJSON)); err != nil {
		return "", err
	}

	e.logger.Info("Export complete",
		"path", out,
		"decks", len(decks),
		"cards", len(cards),
		"media", len(files),
	)
	return out, nil
}

// buildMediaMap numbers every distinct media name in card order and records
// the first card and role each name was found under.
func (e *Exporter) buildMediaMap(cards []domain.Card) (*MediaMap, map[string]mediaRef) {
	mediaMap := NewMediaMap()
	refs := make(map[string]mediaRef)
	for i := range cards {
		for _, role := range domain.MediaRoles {
			name := cards[i].Media(role)
			if name == "" {
				continue
			}
			if _, added := mediaMap.Add(name); added {
				refs[name] = mediaRef{card: i, role: role}
				continue
			}
			// The payload is taken from wherever the name was seen first.
			if first := refs[name]; first.role != role {
				e.logger.Warn("Media file shared across roles, using first occurrence",
					"file", name,
					"first_role", first.role.String(),
					"role", role.String(),
					"card_id", cards[i].ID,
				)
			}
		}
	}
	return mediaMap, refs
}

func (e *Exporter) writeCollection(dbPath string, decks []domain.Deck, cards []domain.Card, ids *idSequence, now time.Time) error {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open collection: %w", err)
	}
	col, err := collection.Create(db, now)
	if err != nil {
		db.Close()
		return err
	}
	defer col.Close()

	records := make([]collection.DeckRecord, 0, len(decks))
	deckIDs := make(map[int64]int64, len(decks))
	for _, d := range decks {
		id := ids.Next()
		deckIDs[d.ID] = id
		records = append(records, collection.DeckRecord{
			ID:    id,
			Name:  d.Name,
			Mtime: now.Unix(),
			Usn:   -1,
		})
	}
	fallbackDeck := records[0].ID

	notetype := collection.BasicNotetype(ids.Next(), fallbackDeck, now.Unix())
	if err := col.SaveNotetypes([]collection.Notetype{notetype}); err != nil {
		return err
	}
	if err := col.SaveDecks(records); err != nil {
		return err
	}

	tx, err := col.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, card := range cards {
		did, ok := deckIDs[card.DeckID]
		if !ok {
			e.logger.Warn("Card belongs to no exported deck, placing it in the first deck",
				"card_id", card.ID,
				"deck_id", card.DeckID,
				"fallback_deck", records[0].Name,
			)
			did = fallbackDeck
		}

		nid := ids.Next()
		flds := EncodeField(card.Question, card.QuestionImage, card.QuestionVoice) +
			collection.FieldSeparator +
			EncodeField(card.Answer, card.AnswerImage, card.AnswerVoice)
		if err := tx.InsertNote(collection.Note{
			ID:   nid,
			GUID: uuid.NewString(),
			Mid:  int64(notetype.ID),
			Mod:  now.Unix(),
			Usn:  -1,
			Flds: flds,
		}); err != nil {
			return err
		}
		if err := tx.InsertCard(collection.CardRecord{
			ID:  ids.Next(),
			Nid: nid,
			Did: did,
			Ord: card.Ordinal,
			Mod: now.Unix(),
			Usn: -1,
			Due: int64(i + 1),
		}); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// resolveMedia maps each container entry id to the file holding its payload.
// Names whose file cannot be found are left out of the container.
func (e *Exporter) resolveMedia(mediaMap *MediaMap, refs map[string]mediaRef, cards []domain.Card) map[string]string {
	files := make(map[string]string, mediaMap.Len())
	for _, name := range mediaMap.Names() {
		ref := refs[name]
		path, err := e.media.Get(ref.role, name)
		if err != nil {
			e.logger.Warn("Media file missing, leaving it out of the export",
				"file", name,
				"role", ref.role.String(),
				"card_id", cards[ref.card].ID,
				"error", err,
			)
			continue
		}
		id, _ := mediaMap.ID(name)
		files[id] = path
	}
	return files
}
