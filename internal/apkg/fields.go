package apkg

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"

	"github.com/conorfennell/apkgbridge/internal/collection"
)

var (
	breakPattern = regexp.MustCompile(`(?i)<br\s*/?>`)
	imagePattern = regexp.MustCompile(`(?i)<img[^>]*?\ssrc="([^"]*)"`)
	soundPattern = regexp.MustCompile(`\[sound:([^\]]*)\]`)

	// textPolicy strips every tag and keeps only text content.
	textPolicy = bluemonday.StrictPolicy()
)

const objectReplacement = "\ufffc"

// EncodeField renders one note field: the NFC-normalized text, then an image
// tag, then a sound tag, with nothing between the segments. Field separators
// in text become spaces so the note keeps exactly two fields.
func EncodeField(text, image, voice string) string {
	var b strings.Builder
	b.WriteString(norm.NFC.String(strings.ReplaceAll(text, collection.FieldSeparator, " ")))
	if image != "" {
		b.WriteString(`<img src="`)
		b.WriteString(image)
		b.WriteString(`">`)
	}
	if voice != "" {
		b.WriteString("[sound:")
		b.WriteString(voice)
		b.WriteString("]")
	}
	return b.String()
}

// Field is a decoded note field.
type Field struct {
	Text  string
	Image string
	Voice string
}

// DecodeField reverses EncodeField for fields written by any producer: line
// breaks become newlines, markup and sound tokens are dropped from the text,
// and the first image and sound references are extracted separately.
func DecodeField(raw string) Field {
	var f Field
	if m := imagePattern.FindStringSubmatch(raw); m != nil {
		f.Image = html.UnescapeString(m[1])
	}
	if m := soundPattern.FindStringSubmatch(raw); m != nil {
		f.Voice = m[1]
	}

	text := breakPattern.ReplaceAllString(raw, "\n")
	text = soundPattern.ReplaceAllString(text, "")
	text = html.UnescapeString(textPolicy.Sanitize(text))
	text = strings.ReplaceAll(text, objectReplacement, "")
	f.Text = norm.NFC.String(text)
	return f
}
