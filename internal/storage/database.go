package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/apkgbridge/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn     *sql.DB
	validate *validator.Validate
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db, validate: validator.New(validator.WithRequiredStructEnabled())}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// InsertDeck inserts a new deck and returns it with its assigned ID.
func (db *DB) InsertDeck(name string) (*domain.Deck, error) {
	now := time.Now()
	deck := domain.Deck{Name: name, CreatedAt: now, UpdatedAt: now}
	if err := db.validate.Struct(deck); err != nil {
		return nil, fmt.Errorf("invalid deck: %w", err)
	}
	id, err := insertDeck(db.conn, deck)
	if err != nil {
		return nil, err
	}
	deck.ID = id
	return &deck, nil
}

func insertDeck(ex execer, deck domain.Deck) (int64, error) {
	res, err := ex.Exec(`
		INSERT INTO decks (name, created_at, updated_at)
		VALUES (?, ?, ?)
	`, deck.Name, deck.CreatedAt, deck.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert deck %s: %w", deck.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for deck %s: %w", deck.Name, err)
	}
	return id, nil
}

// InsertCard inserts a card into its deck and returns its ID.
func (db *DB) InsertCard(card domain.Card) (int64, error) {
	if err := db.validate.Struct(card); err != nil {
		return 0, fmt.Errorf("invalid card: %w", err)
	}
	return insertCard(db.conn, card)
}

func insertCard(ex execer, card domain.Card) (int64, error) {
	res, err := ex.Exec(`
		INSERT INTO cards (deck_id, ordinal, question, answer,
			question_image, answer_image, question_voice, answer_voice, reversible, reversed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		card.DeckID,
		card.Ordinal,
		card.Question,
		card.Answer,
		card.QuestionImage,
		card.AnswerImage,
		card.QuestionVoice,
		card.AnswerVoice,
		card.Reversible,
		card.Reversed,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert card for deck %d: %w", card.DeckID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for card: %w", err)
	}
	return id, nil
}

// InsertDeckModels persists imported decks and their cards in one
// transaction, assigning IDs. The returned models carry the new IDs.
func (db *DB) InsertDeckModels(models []domain.DeckModel) ([]domain.DeckModel, error) {
	return db.insertDeckModels(models, nil)
}

// ImportDeckModels is InsertDeckModels that also records, in the same
// transaction, the fingerprint of the container the models came from.
func (db *DB) ImportDeckModels(fingerprint, path string, models []domain.DeckModel) ([]domain.DeckModel, error) {
	return db.insertDeckModels(models, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO imports (fingerprint, path, imported_at)
			VALUES (?, ?, ?)
		`, fingerprint, path, time.Now())
		if err != nil {
			return fmt.Errorf("failed to record import of %s: %w", path, err)
		}
		return nil
	})
}

func (db *DB) insertDeckModels(models []domain.DeckModel, extra func(tx *sql.Tx) error) ([]domain.DeckModel, error) {
	for i := range models {
		if err := db.validate.Struct(models[i]); err != nil {
			return nil, fmt.Errorf("invalid deck %q: %w", models[i].Deck.Name, err)
		}
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	saved := make([]domain.DeckModel, len(models))
	for i, m := range models {
		if m.Deck.CreatedAt.IsZero() {
			m.Deck.CreatedAt = now
		}
		if m.Deck.UpdatedAt.IsZero() {
			m.Deck.UpdatedAt = now
		}
		deckID, err := insertDeck(tx, m.Deck)
		if err != nil {
			return nil, err
		}
		m.Deck.ID = deckID
		cards := make([]domain.Card, len(m.Cards))
		for j, card := range m.Cards {
			card.DeckID = deckID
			id, err := insertCard(tx, card)
			if err != nil {
				return nil, err
			}
			card.ID = id
			cards[j] = card
		}
		m.Cards = cards
		saved[i] = m
	}

	if extra != nil {
		if err := extra(tx); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit imported decks: %w", err)
	}
	return saved, nil
}

// HasImport reports whether a container with the given fingerprint was
// already imported.
func (db *DB) HasImport(fingerprint string) (bool, error) {
	var n int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM imports WHERE fingerprint = ?`, fingerprint).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check import %s: %w", fingerprint, err)
	}
	return n > 0, nil
}

// TouchDeck bumps a deck's updated_at.
func (db *DB) TouchDeck(id int64) error {
	_, err := db.conn.Exec(`UPDATE decks SET updated_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update deck %d: %w", id, err)
	}
	return nil
}

// FindDeckByName retrieves a deck by its name.
func (db *DB) FindDeckByName(name string) (*domain.Deck, error) {
	var d domain.Deck
	row := db.conn.QueryRow(`
		SELECT id, name, created_at, updated_at
		FROM decks WHERE name = ?
	`, name)

	err := row.Scan(&d.ID, &d.Name, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Deck not found
		}
		return nil, fmt.Errorf("failed to find deck by name %s: %w", name, err)
	}
	return &d, nil
}

// GetAllDecks retrieves all stored decks ordered by name.
func (db *DB) GetAllDecks() ([]domain.Deck, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, created_at, updated_at
		FROM decks ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all decks: %w", err)
	}
	return scanDecks(rows)
}

// GetDecksByIDs retrieves the decks with the given IDs, in the order given.
// Unknown IDs are skipped.
func (db *DB) GetDecksByIDs(ids []int64) ([]domain.Deck, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := db.conn.Query(`
		SELECT id, name, created_at, updated_at
		FROM decks WHERE id IN (`+placeholders(len(ids))+`)
	`, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to get decks by IDs: %w", err)
	}
	found, err := scanDecks(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]domain.Deck, len(found))
	for _, d := range found {
		byID[d.ID] = d
	}
	decks := make([]domain.Deck, 0, len(found))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			decks = append(decks, d)
		}
	}
	return decks, nil
}

// DeckNames returns the names of all stored decks.
func (db *DB) DeckNames() ([]string, error) {
	rows, err := db.conn.Query(`SELECT name FROM decks`)
	if err != nil {
		return nil, fmt.Errorf("failed to get deck names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan deck name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CardsByDeckIDs retrieves the cards of the given decks, grouped by deck in
// the order given and sorted by ordinal within each deck.
func (db *DB) CardsByDeckIDs(deckIDs []int64) ([]domain.Card, error) {
	if len(deckIDs) == 0 {
		return nil, nil
	}
	rows, err := db.conn.Query(`
		SELECT id, deck_id, ordinal, question, answer,
			question_image, answer_image, question_voice, answer_voice, reversible, reversed
		FROM cards WHERE deck_id IN (`+placeholders(len(deckIDs))+`)
		ORDER BY ordinal, id
	`, int64Args(deckIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for decks: %w", err)
	}
	defer rows.Close()

	byDeck := make(map[int64][]domain.Card)
	for rows.Next() {
		var c domain.Card
		if err := rows.Scan(
			&c.ID,
			&c.DeckID,
			&c.Ordinal,
			&c.Question,
			&c.Answer,
			&c.QuestionImage,
			&c.AnswerImage,
			&c.QuestionVoice,
			&c.AnswerVoice,
			&c.Reversible,
			&c.Reversed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		byDeck[c.DeckID] = append(byDeck[c.DeckID], c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read card rows: %w", err)
	}

	var cards []domain.Card
	seen := make(map[int64]bool, len(deckIDs))
	for _, id := range deckIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		cards = append(cards, byDeck[id]...)
	}
	return cards, nil
}

// DeleteDeck removes a deck and its cards.
func (db *DB) DeleteDeck(id int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM cards WHERE deck_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete cards of deck %d: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM decks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete deck %d: %w", id, err)
	}
	return tx.Commit()
}

func scanDecks(rows *sql.Rows) ([]domain.Deck, error) {
	defer rows.Close()

	var decks []domain.Deck
	for rows.Next() {
		var d domain.Deck
		if err := rows.Scan(&d.ID, &d.Name, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		decks = append(decks, d)
	}
	return decks, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
