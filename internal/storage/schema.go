package storage

const schema = `
-- The 'decks' table stores native decks; names are unique per store.
CREATE TABLE IF NOT EXISTS decks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

-- The 'cards' table stores question/answer cards. Media columns hold file
-- names inside the media store, or '' when absent.
CREATE TABLE IF NOT EXISTS cards (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    deck_id INTEGER NOT NULL,
    ordinal INTEGER NOT NULL DEFAULT 0,
    question TEXT NOT NULL,
    answer TEXT NOT NULL,
    question_image TEXT NOT NULL DEFAULT '',
    answer_image TEXT NOT NULL DEFAULT '',
    question_voice TEXT NOT NULL DEFAULT '',
    answer_voice TEXT NOT NULL DEFAULT '',
    reversible INTEGER NOT NULL DEFAULT 0,
    reversed INTEGER NOT NULL DEFAULT 0,

    FOREIGN KEY(deck_id) REFERENCES decks(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_cards_deck ON cards(deck_id, ordinal);

-- The 'imports' table records the containers already imported, keyed by
-- the fingerprint of their bytes.
CREATE TABLE IF NOT EXISTS imports (
    fingerprint TEXT PRIMARY KEY,
    path TEXT NOT NULL,
    imported_at DATETIME NOT NULL
);
`
