package apkg

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/conorfennell/apkgbridge/internal/collection"
	"github.com/conorfennell/apkgbridge/internal/container"
	"github.com/conorfennell/apkgbridge/internal/domain"
)

const fallbackDeckName = "Imported"

// Importer reads .apkg containers into native deck models. It does not
// persist decks or cards; relocated media are written to the media store.
type Importer struct {
	decks  DeckNamer
	media  MediaStore
	opts   Options
	logger *slog.Logger
}

// NewImporter creates an importer that checks names against decks and copies
// media into media.
func NewImporter(decks DeckNamer, media MediaStore, opts Options, logger *slog.Logger) *Importer {
	return &Importer{
		decks:  decks,
		media:  media,
		opts:   opts,
		logger: loggerOrDefault(logger),
	}
}

// relocated is a media file copied into the store during one import.
type relocated struct {
	role domain.MediaRole
	name string
}

// Import reads the container at path and returns one deck model per deck
// that holds supported cards. Media copied before a failure are removed again.
func (im *Importer) Import(path string) ([]domain.DeckModel, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".apkg") {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidApkg, filepath.Base(path))
	}

	workDir, err := os.MkdirTemp(im.opts.WorkDir, "apkg-import-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrParseFile, err)
	}
	defer os.RemoveAll(workDir)

	var copied []relocated
	models, err := im.importContainer(path, workDir, &copied)
	if err != nil {
		im.discard(copied)
		if errors.Is(err, domain.ErrNoSupportedCards) {
			return nil, err
		}
		im.logger.Error("Import failed", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrParseFile, err)
	}
	return models, nil
}

func (im *Importer) importContainer(path, workDir string, copied *[]relocated) ([]domain.DeckModel, error) {
	archive, err := container.Open(path)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	db, err := archive.ExtractDatabase(workDir)
	if err != nil {
		return nil, err
	}
	col := collection.New(db)
	defer col.Close()

	files, err := archive.ExtractMedia(workDir)
	if err != nil {
		return nil, err
	}
	mediaMap, err := archive.ReadMediaMap()
	if err != nil {
		return nil, err
	}

	notetypes, err := col.Notetypes()
	if err != nil {
		return nil, err
	}
	deckRecords, err := col.Decks()
	if err != nil {
		return nil, err
	}

	var notes []collection.Note
	for _, nt := range notetypes {
		if !nt.IsBasic() {
			im.logger.Debug("Skipping unsupported notetype",
				"notetype_id", int64(nt.ID),
				"name", nt.Name,
				"fields", len(nt.Flds),
			)
			continue
		}
		ntNotes, err := col.NotesByNotetype(int64(nt.ID))
		if err != nil {
			return nil, err
		}
		notes = append(notes, ntNotes...)
	}
	if len(notes) == 0 {
		return nil, domain.ErrNoSupportedCards
	}

	nids := make([]int64, len(notes))
	for i, n := range notes {
		nids[i] = n.ID
	}
	cardRecords, err := col.CardsByNotes(nids)
	if err != nil {
		return nil, err
	}
	byNote := make(map[int64][]collection.CardRecord)
	for _, cr := range cardRecords {
		byNote[cr.Nid] = append(byNote[cr.Nid], cr)
	}

	existing, err := im.decks.DeckNames()
	if err != nil {
		return nil, err
	}
	resolver := newNameResolver(existing)
	deckNames := make(map[int64]string, len(deckRecords))
	for _, d := range deckRecords {
		deckNames[d.ID] = resolver.Resolve(FlattenDeckName(d.Name))
	}

	now := time.Now()
	media := newMediaLookup(mediaMap, files)
	models := make(map[int64]*domain.DeckModel)
	var order []int64

	for _, note := range notes {
		front, back := note.Fields()
		q := DecodeField(front)
		a := DecodeField(back)

		for _, cr := range byNote[note.ID] {
			model, ok := models[cr.Did]
			if !ok {
				name, known := deckNames[cr.Did]
				if !known {
					name = resolver.Resolve(fallbackDeckName)
					deckNames[cr.Did] = name
					im.logger.Warn("Card references an unknown deck", "deck_id", cr.Did, "name", name)
				}
				model = &domain.DeckModel{
					Deck: domain.Deck{Name: name, CreatedAt: now, UpdatedAt: now},
				}
				models[cr.Did] = model
				order = append(order, cr.Did)
			}

			card := domain.Card{
				Ordinal:       cr.Ord,
				Question:      q.Text,
				Answer:        a.Text,
				QuestionImage: q.Image,
				AnswerImage:   a.Image,
				QuestionVoice: q.Voice,
				AnswerVoice:   a.Voice,
			}
			if err := im.relocate(&card, media, copied); err != nil {
				return nil, err
			}
			model.Cards = append(model.Cards, card)
		}
	}

	result := make([]domain.DeckModel, 0, len(order))
	var cardCount int
	for _, did := range order {
		model := models[did]
		for i := range model.Cards {
			im.thumbnail(&model.Cards[i])
		}
		sort.SliceStable(model.Cards, func(i, j int) bool {
			return model.Cards[i].Ordinal < model.Cards[j].Ordinal
		})
		cardCount += len(model.Cards)
		result = append(result, *model)
	}

	im.logger.Info("Import complete",
		"path", path,
		"decks", len(result),
		"cards", cardCount,
		"media", len(*copied),
	)
	return result, nil
}

// relocate copies each media file the card references into the media store
// under a fresh name. References that cannot be resolved are cleared.
func (im *Importer) relocate(card *domain.Card, media *mediaLookup, copied *[]relocated) error {
	for _, role := range domain.MediaRoles {
		name := card.Media(role)
		if name == "" {
			continue
		}
		src, ok := media.path(name)
		if !ok {
			im.logger.Warn("Media file missing from container", "file", name, "role", role.String())
			card.SetMedia(role, "")
			continue
		}

		newName := StoredName(name, role)
		if err := im.copyMedia(role, newName, src); err != nil {
			return err
		}
		*copied = append(*copied, relocated{role: role, name: newName})
		card.SetMedia(role, newName)
	}
	return nil
}

func (im *Importer) copyMedia(role domain.MediaRole, name, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open extracted media %s: %w", src, err)
	}
	defer f.Close()

	if err := im.media.Create(role, name, f); err != nil {
		return fmt.Errorf("failed to store media %s: %w", name, err)
	}
	return nil
}

func (im *Importer) thumbnail(card *domain.Card) {
	for _, role := range []domain.MediaRole{domain.QuestionImage, domain.AnswerImage} {
		name := card.Media(role)
		if name == "" {
			continue
		}
		if err := im.media.GenerateThumbnail(role, name); err != nil {
			im.logger.Warn("Failed to generate thumbnail", "file", name, "role", role.String(), "error", err)
		}
	}
}

func (im *Importer) discard(copied []relocated) {
	for _, r := range copied {
		if err := im.media.Delete(r.role, r.name); err != nil {
			im.logger.Warn("Failed to remove media from aborted import", "file", r.name, "error", err)
		}
	}
}
