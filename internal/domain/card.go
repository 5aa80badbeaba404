package domain

import "time"

// Deck is a native, single-level collection of cards.
// An ID of zero means the deck has not been persisted yet.
type Deck struct {
	ID        int64
	Name      string `validate:"required"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Card represents a single question/answer entry inside a deck.
// Media attributes hold bare file names resolved through the media store;
// an empty string means the card has no media for that role.
type Card struct {
	ID            int64
	DeckID        int64
	Ordinal       int `validate:"gte=0"`
	Question      string
	Answer        string
	QuestionImage string
	AnswerImage   string
	QuestionVoice string
	AnswerVoice   string
	Reversible    bool
	Reversed      bool
}

// Media returns the card's file name for the given role.
func (c *Card) Media(role MediaRole) string {
	switch role {
	case QuestionImage:
		return c.QuestionImage
	case AnswerImage:
		return c.AnswerImage
	case QuestionVoice:
		return c.QuestionVoice
	case AnswerVoice:
		return c.AnswerVoice
	}
	return ""
}

// SetMedia replaces the card's file name for the given role.
func (c *Card) SetMedia(role MediaRole, name string) {
	switch role {
	case QuestionImage:
		c.QuestionImage = name
	case AnswerImage:
		c.AnswerImage = name
	case QuestionVoice:
		c.QuestionVoice = name
	case AnswerVoice:
		c.AnswerVoice = name
	}
}

// DeckModel owns one deck and its cards, ordered by ordinal.
type DeckModel struct {
	Deck  Deck
	Cards []Card `validate:"dive"`
}
