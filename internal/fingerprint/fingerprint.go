// Package fingerprint derives stable content hashes for cards and files.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/apkgbridge/internal/domain"
)

// Normalize concatenates the card's question and answer after cleaning
// each part. Media names are not part of a card's identity.
func Normalize(card domain.Card) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	// Joined with a newline so "question" and "answer" stay apart.
	return normalizePart(card.Question) + "\n" + normalizePart(card.Answer)
}

// Card returns the SHA-256 hex digest of the normalized card.
func Card(card domain.Card) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(Normalize(card))))
}

// File returns the SHA-256 hex digest of a file's bytes.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
