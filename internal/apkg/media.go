package apkg

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/conorfennell/apkgbridge/internal/domain"
)

// MediaMap assigns container entry ids to media file names. Ids are
// consecutive integers starting at 0 in the order names are first added.
type MediaMap struct {
	names []string
	ids   map[string]string
}

func NewMediaMap() *MediaMap {
	return &MediaMap{ids: make(map[string]string)}
}

// Add assigns the next id to name unless it already has one.
func (m *MediaMap) Add(name string) (id string, added bool) {
	if id, ok := m.ids[name]; ok {
		return id, false
	}
	id = strconv.Itoa(len(m.names))
	m.names = append(m.names, name)
	m.ids[name] = id
	return id, true
}

// ID returns the id assigned to name.
func (m *MediaMap) ID(name string) (string, bool) {
	id, ok := m.ids[name]
	return id, ok
}

// Names returns the file names in id order.
func (m *MediaMap) Names() []string {
	return m.names
}

func (m *MediaMap) Len() int {
	return len(m.names)
}

// MarshalJSON writes the map as a flat object of id to name, in id order.
func (m *MediaMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range m.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(strconv.Itoa(i))
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// mediaRef records where a media name was first seen during export.
type mediaRef struct {
	card int
	role domain.MediaRole
}

// mediaLookup resolves names referenced by imported fields to extracted files.
type mediaLookup struct {
	ids   map[string]string
	files map[string]string
}

// newMediaLookup inverts the container's id to name map once. When several ids
// name the same file, the lowest id wins.
func newMediaLookup(mediaMap, files map[string]string) *mediaLookup {
	keys := make([]string, 0, len(mediaMap))
	for id := range mediaMap {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, aerr := strconv.Atoi(keys[i])
		b, berr := strconv.Atoi(keys[j])
		if aerr != nil || berr != nil {
			return keys[i] < keys[j]
		}
		return a < b
	})

	ids := make(map[string]string, len(keys))
	for _, id := range keys {
		name := mediaMap[id]
		if _, ok := ids[name]; !ok {
			ids[name] = id
		}
	}
	return &mediaLookup{ids: ids, files: files}
}

// path returns the extracted file holding name.
func (l *mediaLookup) path(name string) (string, bool) {
	id, ok := l.ids[name]
	if !ok {
		return "", false
	}
	p, ok := l.files[id]
	return p, ok
}

// StoredName returns a fresh media store name for a file originally called
// name, keeping its extension.
func StoredName(name string, role domain.MediaRole) string {
	return uuid.NewString() + mediaExt(name, role)
}

// mediaExt picks the extension for a relocated file. Images without one are
// assumed to be JPEGs; recordings keep no extension.
func mediaExt(name string, role domain.MediaRole) string {
	ext := filepath.Ext(name)
	if ext == "" && role.IsImage() {
		return ".jpg"
	}
	return ext
}
