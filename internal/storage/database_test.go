package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/apkgbridge/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenUnreachablePath(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "missing", "test.db"))
	assert.Error(t, err)
	assert.Nil(t, db)
}

func TestInsertAndFindDeck(t *testing.T) {
	db := openTestDB(t)

	deck, err := db.InsertDeck("Spanish")
	require.NoError(t, err)
	assert.NotZero(t, deck.ID)

	found, err := db.FindDeckByName("Spanish")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, deck.ID, found.ID)

	missing, err := db.FindDeckByName("French")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInsertDeckValidation(t *testing.T) {
	db := openTestDB(t)

	_, err := db.InsertDeck("")
	assert.Error(t, err)

	_, err = db.InsertDeck("Dup")
	require.NoError(t, err)
	_, err = db.InsertDeck("Dup")
	assert.Error(t, err, "deck names are unique")
}

func TestGetAllDecksAndNames(t *testing.T) {
	db := openTestDB(t)
	for _, name := range []string{"b", "a", "c"} {
		_, err := db.InsertDeck(name)
		require.NoError(t, err)
	}

	decks, err := db.GetAllDecks()
	require.NoError(t, err)
	require.Len(t, decks, 3)
	assert.Equal(t, "a", decks[0].Name)
	assert.Equal(t, "c", decks[2].Name)

	names, err := db.DeckNames()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, names)
}

func TestGetDecksByIDsKeepsOrder(t *testing.T) {
	db := openTestDB(t)
	a, err := db.InsertDeck("a")
	require.NoError(t, err)
	b, err := db.InsertDeck("b")
	require.NoError(t, err)

	decks, err := db.GetDecksByIDs([]int64{b.ID, 9999, a.ID})
	require.NoError(t, err)
	require.Len(t, decks, 2)
	assert.Equal(t, "b", decks[0].Name)
	assert.Equal(t, "a", decks[1].Name)

	none, err := db.GetDecksByIDs(nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCardsByDeckIDs(t *testing.T) {
	db := openTestDB(t)
	first, err := db.InsertDeck("first")
	require.NoError(t, err)
	second, err := db.InsertDeck("second")
	require.NoError(t, err)

	cards := []domain.Card{
		{DeckID: first.ID, Ordinal: 2, Question: "f2", Answer: "a"},
		{DeckID: second.ID, Ordinal: 0, Question: "s0", Answer: "a", QuestionImage: "img.png"},
		{DeckID: first.ID, Ordinal: 1, Question: "f1", Answer: "a", AnswerVoice: "v.mp3", Reversible: true},
	}
	for _, c := range cards {
		_, err := db.InsertCard(c)
		require.NoError(t, err)
	}

	got, err := db.CardsByDeckIDs([]int64{second.ID, first.ID})
	require.NoError(t, err)
	require.Len(t, got, 3)

	var questions []string
	for _, c := range got {
		questions = append(questions, c.Question)
	}
	assert.Equal(t, []string{"s0", "f1", "f2"}, questions)
	assert.Equal(t, "img.png", got[0].QuestionImage)
	assert.Equal(t, "v.mp3", got[1].AnswerVoice)
	assert.True(t, got[1].Reversible)
}

func TestInsertCardValidation(t *testing.T) {
	db := openTestDB(t)
	deck, err := db.InsertDeck("d")
	require.NoError(t, err)

	_, err = db.InsertCard(domain.Card{DeckID: deck.ID, Ordinal: -1, Question: "q"})
	assert.Error(t, err)
}

func TestInsertDeckModels(t *testing.T) {
	db := openTestDB(t)

	models := []domain.DeckModel{
		{
			Deck: domain.Deck{Name: "Imported"},
			Cards: []domain.Card{
				{Ordinal: 0, Question: "q0", Answer: "a0"},
				{Ordinal: 1, Question: "q1", Answer: "a1"},
			},
		},
		{Deck: domain.Deck{Name: "Empty"}},
	}

	saved, err := db.InsertDeckModels(models)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.NotZero(t, saved[0].Deck.ID)
	assert.False(t, saved[0].Deck.CreatedAt.IsZero())
	for _, c := range saved[0].Cards {
		assert.NotZero(t, c.ID)
		assert.Equal(t, saved[0].Deck.ID, c.DeckID)
	}

	cards, err := db.CardsByDeckIDs([]int64{saved[0].Deck.ID})
	require.NoError(t, err)
	assert.Len(t, cards, 2)
}

func TestInsertDeckModelsIsAtomic(t *testing.T) {
	db := openTestDB(t)
	_, err := db.InsertDeck("Taken")
	require.NoError(t, err)

	_, err = db.InsertDeckModels([]domain.DeckModel{
		{Deck: domain.Deck{Name: "Fresh"}},
		{Deck: domain.Deck{Name: "Taken"}},
	})
	require.Error(t, err)

	fresh, err := db.FindDeckByName("Fresh")
	require.NoError(t, err)
	assert.Nil(t, fresh, "failed import must not leave partial decks")
}

func TestInsertDeckModelsValidation(t *testing.T) {
	db := openTestDB(t)

	_, err := db.InsertDeckModels([]domain.DeckModel{{Deck: domain.Deck{Name: ""}}})
	assert.Error(t, err)
}

func TestDeleteDeck(t *testing.T) {
	db := openTestDB(t)
	deck, err := db.InsertDeck("gone")
	require.NoError(t, err)
	_, err = db.InsertCard(domain.Card{DeckID: deck.ID, Question: "q", Answer: "a"})
	require.NoError(t, err)

	require.NoError(t, db.DeleteDeck(deck.ID))

	found, err := db.FindDeckByName("gone")
	require.NoError(t, err)
	assert.Nil(t, found)
	cards, err := db.CardsByDeckIDs([]int64{deck.ID})
	require.NoError(t, err)
	assert.Empty(t, cards)
}

func TestImportDeckModelsRecordsFingerprint(t *testing.T) {
	db := openTestDB(t)

	has, err := db.HasImport("abc")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = db.ImportDeckModels("abc", "/lib/a.apkg", []domain.DeckModel{
		{Deck: domain.Deck{Name: "A"}, Cards: []domain.Card{{Question: "q", Answer: "a"}}},
	})
	require.NoError(t, err)

	has, err = db.HasImport("abc")
	require.NoError(t, err)
	assert.True(t, has)

	_, err = db.ImportDeckModels("abc", "/lib/a.apkg", []domain.DeckModel{{Deck: domain.Deck{Name: "B"}}})
	require.Error(t, err, "a fingerprint is recorded once")
	b, err := db.FindDeckByName("B")
	require.NoError(t, err)
	assert.Nil(t, b, "a rejected import leaves no decks behind")
}

func TestTouchDeck(t *testing.T) {
	db := openTestDB(t)
	deck, err := db.InsertDeck("d")
	require.NoError(t, err)

	require.NoError(t, db.TouchDeck(deck.ID))

	found, err := db.FindDeckByName("d")
	require.NoError(t, err)
	assert.False(t, found.UpdatedAt.Before(deck.UpdatedAt))
}
