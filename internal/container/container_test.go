package container

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// writeZip builds an arbitrary archive for exercising the read path.
func writeZip(t *testing.T, entries map[string][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.apkg")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, data := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func readEntries(t *testing.T, path string) (names []string, contents map[string][]byte) {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	contents = make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		names = append(names, f.Name)
		contents[f.Name] = data
	}
	return names, contents
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	dbPath := writeFile(t, dir, "db", []byte("sqlite bytes"))
	payload := []byte{0x00, 0xff, 0x10, 0x89, 'P', 'N', 'G'}
	media := map[string]string{
		"10": writeFile(t, dir, "ten.png", payload),
		"2":  writeFile(t, dir, "two.mp3", []byte("voice")),
	}
	out := filepath.Join(dir, "out.apkg")

	err := Build(out, dbPath, media, `{"2":"two.mp3","10":"ten.png"}`)
	require.NoError(t, err)

	names, contents := readEntries(t, out)
	assert.Equal(t, []string{DatabaseEntry, LegacyDatabaseEntry, MediaMapEntry, "2", "10"}, names)
	assert.Equal(t, []byte("sqlite bytes"), contents[DatabaseEntry])
	assert.Empty(t, contents[LegacyDatabaseEntry])
	assert.Equal(t, `{"2":"two.mp3","10":"ten.png"}`, string(contents[MediaMapEntry]))
	assert.Equal(t, payload, contents["10"])
	assert.Equal(t, []byte("voice"), contents["2"])
}

func TestBuildRejectsUnsafeNames(t *testing.T) {
	dir := t.TempDir()
	dbPath := writeFile(t, dir, "db", []byte("x"))
	src := writeFile(t, dir, "a.png", []byte("a"))
	out := filepath.Join(dir, "out.apkg")

	for _, name := range []string{"../0", `0\1`, "a.png", ""} {
		err := Build(out, dbPath, map[string]string{name: src}, "{}")
		assert.Error(t, err, name)
		assert.NoFileExists(t, out)
	}
}

func TestBuildRemovesPartialOutput(t *testing.T) {
	dir := t.TempDir()
	dbPath := writeFile(t, dir, "db", []byte("x"))
	out := filepath.Join(dir, "out.apkg")

	err := Build(out, dbPath, map[string]string{"0": filepath.Join(dir, "missing.png")}, "{}")
	require.Error(t, err)
	assert.NoFileExists(t, out)
}

func TestExtractMedia(t *testing.T) {
	path := writeZip(t, map[string][]byte{
		"0":             []byte("zero"),
		"1":             []byte("one"),
		"some_file.txt": []byte("ignored"),
		MediaMapEntry:   []byte(`{"0":"a.png","1":"b.mp3"}`),
		DatabaseEntry:   []byte("db"),
		"dir/":          nil,
		"sub/2":         []byte("nested"),
	})
	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	workDir := t.TempDir()
	files, err := a.ExtractMedia(workDir)
	require.NoError(t, err)

	require.Len(t, files, 2)
	assert.Equal(t, filepath.Join(workDir, "0"), files["0"])
	assert.Equal(t, filepath.Join(workDir, "1"), files["1"])

	data, err := os.ReadFile(files["1"])
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
}

func TestExtractDatabaseMissing(t *testing.T) {
	path := writeZip(t, map[string][]byte{LegacyDatabaseEntry: nil})
	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	db, err := a.ExtractDatabase(t.TempDir())
	assert.Nil(t, db)
	assert.ErrorIs(t, err, ErrMissingDatabase)
}

func TestReadMediaMap(t *testing.T) {
	t.Run("absent entry is empty", func(t *testing.T) {
		a, err := Open(writeZip(t, map[string][]byte{DatabaseEntry: nil}))
		require.NoError(t, err)
		defer a.Close()

		m, err := a.ReadMediaMap()
		require.NoError(t, err)
		assert.Empty(t, m)
	})

	t.Run("entry is decoded verbatim", func(t *testing.T) {
		a, err := Open(writeZip(t, map[string][]byte{
			MediaMapEntry: []byte(`{"0":"Kanji 漢.png","7":"x.ogg"}`),
		}))
		require.NoError(t, err)
		defer a.Close()

		m, err := a.ReadMediaMap()
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"0": "Kanji 漢.png", "7": "x.ogg"}, m)
	})

	t.Run("malformed entry fails", func(t *testing.T) {
		a, err := Open(writeZip(t, map[string][]byte{MediaMapEntry: []byte(`[1,2]`)}))
		require.NoError(t, err)
		defer a.Close()

		_, err = a.ReadMediaMap()
		assert.Error(t, err)
	})
}
