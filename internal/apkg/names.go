package apkg

import (
	"fmt"
	"regexp"
	"strings"
)

// FlattenDeckName turns a "::" nested deck name into a single-level name.
func FlattenDeckName(name string) string {
	return strings.ReplaceAll(name, "::", " - ")
}

// nameResolver hands out deck names that collide with neither existing
// native decks nor names already handed out.
type nameResolver struct {
	taken map[string]bool
}

func newNameResolver(existing []string) *nameResolver {
	taken := make(map[string]bool, len(existing))
	for _, name := range existing {
		taken[name] = true
	}
	return &nameResolver{taken: taken}
}

// Resolve returns name, or name with the first free " (n)" suffix from 2 up.
func (r *nameResolver) Resolve(name string) string {
	candidate := name
	for n := 2; r.taken[candidate]; n++ {
		candidate = fmt.Sprintf("%s (%d)", name, n)
	}
	r.taken[candidate] = true
	return candidate
}

var unsafeFileChars = regexp.MustCompile(`[^\p{L}\p{N}_\- ]+`)

// fileBase turns a deck name into something safe to use in a file name.
func fileBase(name string) string {
	base := strings.Trim(unsafeFileChars.ReplaceAllString(name, "_"), " _")
	if base == "" {
		return "deck"
	}
	return base
}
