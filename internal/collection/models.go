package collection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FieldSeparator joins the fields stored in a note's flds column.
const FieldSeparator = "\x1f"

// ID is an integer id that decodes from either a JSON number or a quoted
// number. Older collections store notetype and deck ids as strings.
type ID int64

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s: %w", b, err)
	}
	*id = ID(n)
	return nil
}

// Field describes one field of a notetype.
type Field struct {
	Name   string   `json:"name"`
	Ord    int      `json:"ord"`
	Sticky bool     `json:"sticky"`
	RTL    bool     `json:"rtl"`
	Font   string   `json:"font"`
	Size   int      `json:"size"`
	Media  []string `json:"media"`
}

// Template describes how one card of a notetype is rendered.
type Template struct {
	Name  string `json:"name"`
	Qfmt  string `json:"qfmt"`
	Afmt  string `json:"afmt"`
	Ord   int    `json:"ord"`
	Bqfmt string `json:"bqfmt"`
	Bafmt string `json:"bafmt"`
	Did   *ID    `json:"did"`
}

// Notetype is the field and template schema shared by notes.
type Notetype struct {
	ID        ID         `json:"id"`
	Name      string     `json:"name"`
	Type      int        `json:"type"`
	CSS       string     `json:"css"`
	LatexPre  string     `json:"latexPre"`
	LatexPost string     `json:"latexPost"`
	Flds      []Field    `json:"flds"`
	Tmpls     []Template `json:"tmpls"`
	Sortf     int        `json:"sortf"`
	Did       ID         `json:"did"`
	Mod       int64      `json:"mod"`
	Usn       int        `json:"usn"`
	Tags      []string   `json:"tags"`
	Vers      []any      `json:"vers"`
	Req       [][]any    `json:"req,omitempty"`
}

// IsBasic reports whether notes of this type can be turned into native cards:
// exactly two fields on a notetype named "Basic".
func (n *Notetype) IsBasic() bool {
	return len(n.Flds) == 2 && strings.EqualFold(n.Name, "basic")
}

const basicCSS = `.card {
  font-family: arial;
  font-size: 20px;
  text-align: center;
  color: black;
  background-color: white;
}
`

const defaultLatexPre = "\\documentclass[12pt]{article}\n\\special{papersize=3in,5in}\n\\usepackage[utf8]{inputenc}\n\\usepackage{amssymb,amsmath}\n\\pagestyle{empty}\n\\setlength{\\parindent}{0in}\n\\begin{document}\n"

const defaultLatexPost = "\\end{document}"

// BasicNotetype returns the two-field, two-template notetype written on export.
func BasicNotetype(id, deckID, mod int64) Notetype {
	field := func(name string, ord int) Field {
		return Field{Name: name, Ord: ord, Font: "Arial", Size: 20, Media: []string{}}
	}
	return Notetype{
		ID:        ID(id),
		Name:      "Basic",
		Type:      0,
		CSS:       basicCSS,
		LatexPre:  defaultLatexPre,
		LatexPost: defaultLatexPost,
		Flds:      []Field{field("Front", 0), field("Back", 1)},
		Tmpls: []Template{
			{Name: "Card 1", Qfmt: "{{Front}}", Afmt: "{{FrontSide}}\n\n<hr id=answer>\n\n{{Back}}", Ord: 0},
			{Name: "Card 2", Qfmt: "{{Back}}", Afmt: "{{FrontSide}}\n\n<hr id=answer>\n\n{{Front}}", Ord: 1},
		},
		Sortf: 0,
		Did:   ID(deckID),
		Mod:   mod,
		Usn:   -1,
		Tags:  []string{},
		Vers:  []any{},
		Req:   [][]any{{0, "any", []int{0}}, {1, "any", []int{1}}},
	}
}

// DeckRecord is a deck stored in the collection. Name may use "::" to nest.
// Conf, Common and Kind are carried as raw JSON and never interpreted.
type DeckRecord struct {
	ID     int64  `db:"id"`
	Name   string `db:"name"`
	Mtime  int64  `db:"mtime_secs"`
	Usn    int    `db:"usn"`
	Conf   string `db:"-"`
	Common string `db:"common"`
	Kind   string `db:"kind"`
}

// deckJSON is the shape of one entry in the col.decks object.
type deckJSON struct {
	ID               ID              `json:"id"`
	Name             string          `json:"name"`
	Mod              int64           `json:"mod"`
	Usn              int             `json:"usn"`
	Desc             string          `json:"desc"`
	Dyn              int             `json:"dyn"`
	Conf             json.RawMessage `json:"conf,omitempty"`
	Collapsed        bool            `json:"collapsed"`
	BrowserCollapsed bool            `json:"browserCollapsed"`
	ExtendNew        int             `json:"extendNew"`
	ExtendRev        int             `json:"extendRev"`
	NewToday         []int           `json:"newToday"`
	RevToday         []int           `json:"revToday"`
	LrnToday         []int           `json:"lrnToday"`
	TimeToday        []int           `json:"timeToday"`
}

// Note is one row of the notes table.
type Note struct {
	ID    int64  `db:"id"`
	GUID  string `db:"guid"`
	Mid   int64  `db:"mid"`
	Mod   int64  `db:"mod"`
	Usn   int    `db:"usn"`
	Tags  string `db:"tags"`
	Flds  string `db:"flds"`
	Sfld  string `db:"sfld"`
	Csum  int64  `db:"csum"`
	Flags int    `db:"flags"`
	Data  string `db:"data"`
}

// Fields splits flds into the front and back fields. A missing back field is
// returned as an empty string.
func (n *Note) Fields() (front, back string) {
	parts := strings.SplitN(n.Flds, FieldSeparator, 2)
	front = parts[0]
	if len(parts) > 1 {
		back = parts[1]
		if i := strings.Index(back, FieldSeparator); i >= 0 {
			back = back[:i]
		}
	}
	return front, back
}

// CardRecord is one row of the cards table. The scheduling columns are
// stored with new-card defaults and never interpreted.
type CardRecord struct {
	ID     int64  `db:"id"`
	Nid    int64  `db:"nid"`
	Did    int64  `db:"did"`
	Ord    int    `db:"ord"`
	Mod    int64  `db:"mod"`
	Usn    int    `db:"usn"`
	Type   int    `db:"type"`
	Queue  int    `db:"queue"`
	Due    int64  `db:"due"`
	Ivl    int    `db:"ivl"`
	Factor int    `db:"factor"`
	Reps   int    `db:"reps"`
	Lapses int    `db:"lapses"`
	Left   int    `db:"left"`
	Odue   int64  `db:"odue"`
	Odid   int64  `db:"odid"`
	Flags  int    `db:"flags"`
	Data   string `db:"data"`
}
