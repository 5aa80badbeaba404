// Package collection reads and writes the SQLite database embedded in an
// .apkg container.
package collection

import (
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
)

const schemaVersion = 11

// Collection wraps an open collection database.
type Collection struct {
	db *sqlx.DB
}

// New wraps an already open database handle.
func New(db *sqlx.DB) *Collection {
	return &Collection{db: db}
}

// Create applies the schema to an empty database and writes the col row.
func Create(db *sqlx.DB, now time.Time) (*Collection, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	_, err := db.Exec(`
		INSERT INTO col (id, crt, mod, scm, ver, dty, usn, ls, conf, models, decks, dconf, tags)
		VALUES (1, ?, ?, ?, ?, 0, 0, 0, ?, '{}', '{}', ?, '{}')
	`,
		now.Unix(),
		now.UnixMilli(),
		now.UnixMilli(),
		schemaVersion,
		defaultConf,
		defaultDconf,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert collection row: %w", err)
	}
	return &Collection{db: db}, nil
}

// Close closes the database connection.
func (c *Collection) Close() error {
	return c.db.Close()
}

// SaveNotetypes replaces the models blob with the given notetypes.
func (c *Collection) SaveNotetypes(notetypes []Notetype) error {
	models := make(map[string]Notetype, len(notetypes))
	for _, nt := range notetypes {
		models[strconv.FormatInt(int64(nt.ID), 10)] = nt
	}
	blob, err := json.Marshal(models)
	if err != nil {
		return fmt.Errorf("failed to encode notetypes: %w", err)
	}
	if _, err := c.db.Exec(`UPDATE col SET models = ?`, string(blob)); err != nil {
		return fmt.Errorf("failed to save notetypes: %w", err)
	}
	return nil
}

// SaveDecks writes one row per deck and replaces the decks blob.
func (c *Collection) SaveDecks(decks []DeckRecord) error {
	tx, err := c.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin deck transaction: %w", err)
	}
	defer tx.Rollback()

	blobs := make(map[string]deckJSON, len(decks))
	for _, d := range decks {
		if _, err := tx.Exec(`
			INSERT INTO decks (id, name, mtime_secs, usn, common, kind)
			VALUES (?, ?, ?, ?, ?, ?)
		`, d.ID, d.Name, d.Mtime, d.Usn, d.Common, d.Kind); err != nil {
			return fmt.Errorf("failed to insert deck %q: %w", d.Name, err)
		}

		conf := json.RawMessage("1")
		if d.Conf != "" {
			conf = json.RawMessage(d.Conf)
		}
		blobs[strconv.FormatInt(d.ID, 10)] = deckJSON{
			ID:        ID(d.ID),
			Name:      d.Name,
			Mod:       d.Mtime,
			Usn:       d.Usn,
			Conf:      conf,
			NewToday:  []int{0, 0},
			RevToday:  []int{0, 0},
			LrnToday:  []int{0, 0},
			TimeToday: []int{0, 0},
		}
	}

	blob, err := json.Marshal(blobs)
	if err != nil {
		return fmt.Errorf("failed to encode decks: %w", err)
	}
	if _, err := tx.Exec(`UPDATE col SET decks = ?`, string(blob)); err != nil {
		return fmt.Errorf("failed to save decks: %w", err)
	}
	return tx.Commit()
}

// Notetypes decodes every notetype in the models blob, ordered by id.
func (c *Collection) Notetypes() ([]Notetype, error) {
	var blob string
	if err := c.db.Get(&blob, `SELECT models FROM col LIMIT 1`); err != nil {
		return nil, fmt.Errorf("failed to read notetypes: %w", err)
	}
	var models map[string]Notetype
	if err := json.Unmarshal([]byte(blob), &models); err != nil {
		return nil, fmt.Errorf("failed to decode notetypes: %w", err)
	}

	notetypes := make([]Notetype, 0, len(models))
	for key, nt := range models {
		if nt.ID == 0 {
			id, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid notetype id %q: %w", key, err)
			}
			nt.ID = ID(id)
		}
		notetypes = append(notetypes, nt)
	}
	sort.Slice(notetypes, func(i, j int) bool { return notetypes[i].ID < notetypes[j].ID })
	return notetypes, nil
}

// Decks returns every deck, ordered by id. Decks come from the col.decks blob;
// rows of the decks table are merged in and win when both describe an id.
func (c *Collection) Decks() ([]DeckRecord, error) {
	var blob string
	if err := c.db.Get(&blob, `SELECT decks FROM col LIMIT 1`); err != nil {
		return nil, fmt.Errorf("failed to read decks: %w", err)
	}
	var blobs map[string]deckJSON
	if err := json.Unmarshal([]byte(blob), &blobs); err != nil {
		return nil, fmt.Errorf("failed to decode decks: %w", err)
	}

	byID := make(map[int64]DeckRecord, len(blobs))
	for key, d := range blobs {
		id := int64(d.ID)
		if id == 0 {
			parsed, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid deck id %q: %w", key, err)
			}
			id = parsed
		}
		byID[id] = DeckRecord{ID: id, Name: d.Name, Mtime: d.Mod, Usn: d.Usn, Conf: string(d.Conf)}
	}

	hasTable, err := c.hasTable("decks")
	if err != nil {
		return nil, err
	}
	if hasTable {
		var rows []DeckRecord
		if err := c.db.Select(&rows, `SELECT id, name, mtime_secs, usn, common, kind FROM decks`); err != nil {
			return nil, fmt.Errorf("failed to read deck rows: %w", err)
		}
		for _, row := range rows {
			row.Conf = byID[row.ID].Conf
			byID[row.ID] = row
		}
	}

	decks := make([]DeckRecord, 0, len(byID))
	for _, d := range byID {
		decks = append(decks, d)
	}
	sort.Slice(decks, func(i, j int) bool { return decks[i].ID < decks[j].ID })
	return decks, nil
}

func (c *Collection) hasTable(name string) (bool, error) {
	var n int
	err := c.db.Get(&n, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("failed to inspect schema: %w", err)
	}
	return n > 0, nil
}

// NotesByNotetype returns every note of the given notetype, ordered by id.
func (c *Collection) NotesByNotetype(mid int64) ([]Note, error) {
	notes := []Note{}
	err := c.db.Select(&notes, `
		SELECT id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data
		FROM notes WHERE mid = ? ORDER BY id
	`, mid)
	if err != nil {
		return nil, fmt.Errorf("failed to read notes for notetype %d: %w", mid, err)
	}
	return notes, nil
}

// CardsByNotes returns the cards of the given notes in a single query.
// An empty id list returns no cards without touching the database.
func (c *Collection) CardsByNotes(nids []int64) ([]CardRecord, error) {
	cards := []CardRecord{}
	if len(nids) == 0 {
		return cards, nil
	}
	query, args, err := sqlx.In(`
		SELECT id, nid, did, ord, mod, usn, type, queue, due, ivl, factor, reps, lapses, "left", odue, odid, flags, data
		FROM cards WHERE nid IN (?) ORDER BY id
	`, nids)
	if err != nil {
		return nil, fmt.Errorf("failed to build card query: %w", err)
	}
	if err := c.db.Select(&cards, c.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to read cards: %w", err)
	}
	return cards, nil
}

// Begin starts the transaction notes and cards are written in.
func (c *Collection) Begin() (*Tx, error) {
	tx, err := c.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Tx groups note and card inserts so they become visible together.
type Tx struct {
	tx *sqlx.Tx
}

// InsertNote inserts n, filling in sfld and csum from its first field.
func (t *Tx) InsertNote(n Note) error {
	front, _ := n.Fields()
	n.Sfld = front
	n.Csum = Checksum(front)
	_, err := t.tx.NamedExec(`
		INSERT INTO notes (id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data)
		VALUES (:id, :guid, :mid, :mod, :usn, :tags, :flds, :sfld, :csum, :flags, :data)
	`, n)
	if err != nil {
		return fmt.Errorf("failed to insert note %d: %w", n.ID, err)
	}
	return nil
}

// InsertCard inserts one card record.
func (t *Tx) InsertCard(cr CardRecord) error {
	_, err := t.tx.NamedExec(`
		INSERT INTO cards (id, nid, did, ord, mod, usn, type, queue, due, ivl, factor, reps, lapses, "left", odue, odid, flags, data)
		VALUES (:id, :nid, :did, :ord, :mod, :usn, :type, :queue, :due, :ivl, :factor, :reps, :lapses, :left, :odue, :odid, :flags, :data)
	`, cr)
	if err != nil {
		return fmt.Errorf("failed to insert card %d: %w", cr.ID, err)
	}
	return nil
}

// Commit makes all inserts visible.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Rollback discards the transaction. It is a no-op after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// Checksum is the integer form of the first eight hex digits of the SHA-1 of
// a note's sort field, used for duplicate detection by other tools.
func Checksum(field string) int64 {
	sum := sha1.Sum([]byte(field))
	n, _ := strconv.ParseInt(hex.EncodeToString(sum[:4]), 16, 64)
	return n
}
