package collection

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newCollection(t *testing.T) *Collection {
	t.Helper()
	db, err := sqlx.Open("sqlite", filepath.Join(t.TempDir(), "collection.anki21"))
	require.NoError(t, err)
	c, err := Create(db, time.Unix(1700000000, 0))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCreateTables(t *testing.T) {
	c := newCollection(t)

	var tables []string
	err := c.db.Select(&tables, `SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	require.NoError(t, err)
	assert.Equal(t, []string{"cards", "col", "decks", "notes", "revlog"}, tables)

	var rows int
	require.NoError(t, c.db.Get(&rows, `SELECT COUNT(*) FROM col`))
	assert.Equal(t, 1, rows)
}

func TestNotetypesRoundTrip(t *testing.T) {
	c := newCollection(t)
	basic := BasicNotetype(42, 7, 1700000000)
	require.NoError(t, c.SaveNotetypes([]Notetype{basic}))

	notetypes, err := c.Notetypes()
	require.NoError(t, err)
	require.Len(t, notetypes, 1)

	nt := notetypes[0]
	assert.Equal(t, ID(42), nt.ID)
	assert.Equal(t, "Basic", nt.Name)
	assert.True(t, nt.IsBasic())
	require.Len(t, nt.Flds, 2)
	assert.Equal(t, "Front", nt.Flds[0].Name)
	assert.Equal(t, 0, nt.Flds[0].Ord)
	assert.Equal(t, "Back", nt.Flds[1].Name)
	assert.Equal(t, 1, nt.Flds[1].Ord)
	require.Len(t, nt.Tmpls, 2)
	assert.Equal(t, "{{Front}}", nt.Tmpls[0].Qfmt)
	assert.Equal(t, "{{Back}}", nt.Tmpls[1].Qfmt)
}

func TestNotetypesAcceptQuotedIDs(t *testing.T) {
	c := newCollection(t)
	_, err := c.db.Exec(`UPDATE col SET models = ?`,
		`{"1342697561419":{"id":"1342697561419","name":"basic","flds":[{"name":"A"},{"name":"B"}],"tmpls":[]},
		  "99":{"name":"Cloze","flds":[{"name":"Text"}],"tmpls":[]}}`)
	require.NoError(t, err)

	notetypes, err := c.Notetypes()
	require.NoError(t, err)
	require.Len(t, notetypes, 2)
	assert.Equal(t, ID(99), notetypes[0].ID)
	assert.False(t, notetypes[0].IsBasic())
	assert.Equal(t, ID(1342697561419), notetypes[1].ID)
	assert.True(t, notetypes[1].IsBasic())
}

func TestNotetypesMalformedJSON(t *testing.T) {
	c := newCollection(t)
	_, err := c.db.Exec(`UPDATE col SET models = '{not json'`)
	require.NoError(t, err)

	_, err = c.Notetypes()
	assert.Error(t, err)
}

func TestIsBasic(t *testing.T) {
	two := []Field{{Name: "Front"}, {Name: "Back"}}
	testCases := []struct {
		name     string
		notetype Notetype
		expected bool
	}{
		{"exact", Notetype{Name: "Basic", Flds: two}, true},
		{"case insensitive", Notetype{Name: "BASIC", Flds: two}, true},
		{"three fields", Notetype{Name: "Basic", Flds: append(two, Field{Name: "Extra"})}, false},
		{"other name", Notetype{Name: "Basic (and reversed card)", Flds: two}, false},
		{"cloze", Notetype{Name: "Cloze", Flds: two[:1]}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.notetype.IsBasic())
		})
	}
}

func TestDecks(t *testing.T) {
	c := newCollection(t)
	require.NoError(t, c.SaveDecks([]DeckRecord{
		{ID: 20, Name: "Japanese::Kanji", Mtime: 5},
		{ID: 10, Name: "Spanish", Mtime: 6},
	}))

	decks, err := c.Decks()
	require.NoError(t, err)
	require.Len(t, decks, 2)
	assert.Equal(t, int64(10), decks[0].ID)
	assert.Equal(t, "Spanish", decks[0].Name)
	assert.Equal(t, "Japanese::Kanji", decks[1].Name)
	assert.Equal(t, "1", decks[1].Conf)

	var blob string
	require.NoError(t, c.db.Get(&blob, `SELECT decks FROM col`))
	var parsed map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(blob), &parsed))
	assert.Equal(t, "Spanish", parsed["10"]["name"])
}

func TestDecksWithoutDecksTable(t *testing.T) {
	c := newCollection(t)
	_, err := c.db.Exec(`DROP TABLE decks`)
	require.NoError(t, err)
	_, err = c.db.Exec(`UPDATE col SET decks = '{"1":{"id":1,"name":"Default"},"5":{"name":"Other"}}'`)
	require.NoError(t, err)

	decks, err := c.Decks()
	require.NoError(t, err)
	require.Len(t, decks, 2)
	assert.Equal(t, "Default", decks[0].Name)
	assert.Equal(t, int64(5), decks[1].ID)
}

func TestNotesAndCards(t *testing.T) {
	c := newCollection(t)
	tx, err := c.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.InsertNote(Note{ID: 1, GUID: "g1", Mid: 42, Flds: "front" + FieldSeparator + "back"}))
	require.NoError(t, tx.InsertNote(Note{ID: 2, GUID: "g2", Mid: 43, Flds: "other"}))
	require.NoError(t, tx.InsertCard(CardRecord{ID: 11, Nid: 1, Did: 7, Ord: 3}))
	require.NoError(t, tx.InsertCard(CardRecord{ID: 12, Nid: 2, Did: 7, Ord: 0}))
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Rollback())

	notes, err := c.NotesByNotetype(42)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "g1", notes[0].GUID)
	assert.Equal(t, "front", notes[0].Sfld)
	assert.Equal(t, Checksum("front"), notes[0].Csum)

	cards, err := c.CardsByNotes([]int64{1, 2})
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, 3, cards[0].Ord)
	assert.Equal(t, int64(2), cards[1].Nid)
}

func TestRollbackDiscardsInserts(t *testing.T) {
	c := newCollection(t)
	tx, err := c.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.InsertNote(Note{ID: 1, GUID: "g1", Mid: 42, Flds: "a"}))
	require.NoError(t, tx.Rollback())

	notes, err := c.NotesByNotetype(42)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestCardsByNotesEmpty(t *testing.T) {
	c := newCollection(t)
	// A closed handle proves no query is issued.
	require.NoError(t, c.Close())

	cards, err := c.CardsByNotes(nil)
	require.NoError(t, err)
	assert.Empty(t, cards)
}

func TestNoteFields(t *testing.T) {
	testCases := []struct {
		flds  string
		front string
		back  string
	}{
		{"a" + FieldSeparator + "b", "a", "b"},
		{"only front", "only front", ""},
		{"", "", ""},
		{"a" + FieldSeparator + "b" + FieldSeparator + "c", "a", "b"},
	}
	for _, tc := range testCases {
		n := Note{Flds: tc.flds}
		front, back := n.Fields()
		assert.Equal(t, tc.front, front)
		assert.Equal(t, tc.back, back)
	}
}
