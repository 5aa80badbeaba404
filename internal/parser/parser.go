// Package parser reads decks written as markdown.
//
// A "# Title" line starts a deck. Within a deck, "Q:" and "A:" open the
// question and answer blocks of a card and may span several lines.
// "QI:", "AI:", "QV:" and "AV:" attach a question or answer image or voice
// file by name. A "---" line ends the current card.
package parser

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/apkgbridge/internal/domain"
)

const (
	titlePrefix         = "# "
	questionPrefix      = "Q:"
	answerPrefix        = "A:"
	questionImagePrefix = "QI:"
	answerImagePrefix   = "AI:"
	questionVoicePrefix = "QV:"
	answerVoicePrefix   = "AV:"
	separator           = "---"
)

var mediaPrefixes = []struct {
	prefix string
	role   domain.MediaRole
}{
	{questionImagePrefix, domain.QuestionImage},
	{answerImagePrefix, domain.AnswerImage},
	{questionVoicePrefix, domain.QuestionVoice},
	{answerVoicePrefix, domain.AnswerVoice},
}

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
)

// ParseFile reads a file from the given path and extracts its decks. Cards
// that appear before any title go to a deck named after the file.
func ParseFile(path string) ([]domain.DeckModel, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Parse(file, name)
}

// Parse reads from an io.Reader and extracts all decks. defaultDeck names the
// deck that collects cards written before the first title. Decks without
// cards are dropped.
func Parse(r io.Reader, defaultDeck string) ([]domain.DeckModel, error) {
	scanner := bufio.NewScanner(r)
	var decks []domain.DeckModel
	current := domain.DeckModel{Deck: domain.Deck{Name: defaultDeck}}
	var currentCard domain.Card
	var currentBlock []string
	currentState := seeking

	flushBlock := func() {
		if len(currentBlock) == 0 {
			return
		}
		content := strings.TrimRight(strings.Join(currentBlock, "\n"), "\n")
		switch currentState {
		case readingQuestion:
			currentCard.Question = content
		case readingAnswer:
			currentCard.Answer = content
		}
		currentBlock = nil
	}

	finishCard := func() {
		flushBlock()
		if currentCard.Question != "" {
			currentCard.Ordinal = len(current.Cards)
			current.Cards = append(current.Cards, currentCard)
		}
		currentCard = domain.Card{}
		currentState = seeking
	}

	finishDeck := func() {
		finishCard()
		if len(current.Cards) > 0 {
			decks = append(decks, current)
		}
	}

	for scanner.Scan() {
		line := scanner.Text()

		if line == separator {
			finishCard()
			continue
		}

		if strings.HasPrefix(line, titlePrefix) {
			finishDeck()
			current = domain.DeckModel{Deck: domain.Deck{Name: strings.TrimSpace(line[len(titlePrefix):])}}
			continue
		}

		if role, name, ok := mediaLine(line); ok {
			flushBlock()
			currentCard.SetMedia(role, name)
			currentState = seeking
			continue
		}

		isQ := strings.HasPrefix(line, questionPrefix)
		isA := strings.HasPrefix(line, answerPrefix)

		if isQ || isA {
			flushBlock()
			if isQ {
				if currentCard.Question != "" { // A new question always starts a new card
					finishCard()
				}
				currentState = readingQuestion
				currentBlock = append(currentBlock, trimPrefix(line, questionPrefix))
			} else {
				currentState = readingAnswer
				currentBlock = append(currentBlock, trimPrefix(line, answerPrefix))
			}
		} else if currentState != seeking {
			currentBlock = append(currentBlock, line)
		}
	}

	finishDeck() // Finish the very last deck in the file

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return decks, nil
}

func mediaLine(line string) (domain.MediaRole, string, bool) {
	for _, m := range mediaPrefixes {
		if strings.HasPrefix(line, m.prefix) {
			return m.role, strings.TrimSpace(line[len(m.prefix):]), true
		}
	}
	return 0, "", false
}

func trimPrefix(line, prefix string) string {
	content := line[len(prefix):]
	if strings.HasPrefix(content, " ") {
		content = content[1:]
	}
	return content
}
