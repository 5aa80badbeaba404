package domain

import "errors"

// Errors returned by the export and import entry points. Callers match them
// with errors.Is; the wrapped cause carries the underlying detail.
var (
	ErrNoDeckSelected   = errors.New("no deck selected")
	ErrNoCardsInDecks   = errors.New("no cards in selected decks")
	ErrInvalidApkg      = errors.New("invalid apkg")
	ErrNoSupportedCards = errors.New("no supported cards found")
	ErrCreateFile       = errors.New("failed to create file")
	ErrParseFile        = errors.New("failed to parse file")
)
