package gitsource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitInitialisesAndCommits(t *testing.T) {
	repoPath := t.TempDir()
	src := filepath.Join(t.TempDir(), "deck.apkg")
	require.NoError(t, os.WriteFile(src, []byte("zip bytes"), 0o644))

	hash, err := Commit(repoPath, src, "Add deck")
	require.NoError(t, err)

	repo, err := git.PlainOpen(repoPath)
	require.NoError(t, err)
	commit, err := repo.CommitObject(hash)
	require.NoError(t, err)
	assert.Equal(t, "Add deck", commit.Message)
	assert.Equal(t, Author.Name, commit.Author.Name)

	f, err := commit.File("deck.apkg")
	require.NoError(t, err)
	contents, err := f.Contents()
	require.NoError(t, err)
	assert.Equal(t, "zip bytes", contents)
}

func TestCommitTwice(t *testing.T) {
	repoPath := t.TempDir()
	src := filepath.Join(t.TempDir(), "deck.apkg")
	require.NoError(t, os.WriteFile(src, []byte("v1"), 0o644))
	first, err := Commit(repoPath, src, "v1")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(src, []byte("v2"), 0o644))
	second, err := Commit(repoPath, src, "v2")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	repo, err := git.PlainOpen(repoPath)
	require.NoError(t, err)
	commit, err := repo.CommitObject(second)
	require.NoError(t, err)
	require.Equal(t, 1, commit.NumParents())
	parent, err := commit.Parent(0)
	require.NoError(t, err)
	assert.Equal(t, first, parent.Hash)
}

func TestCommitMissingFile(t *testing.T) {
	_, err := Commit(t.TempDir(), filepath.Join(t.TempDir(), "missing.apkg"), "msg")
	assert.Error(t, err)
}

func TestFindContainers(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{
		"b.apkg",
		"a.APKG",
		"notes.md",
		"sub/c.apkg",
		".git/objects/x.apkg",
	} {
		full := filepath.Join(dir, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, nil, 0o644))
	}

	paths, err := FindContainers(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.APKG"),
		filepath.Join(dir, "b.apkg"),
		filepath.Join(dir, "sub", "c.apkg"),
	}, paths)
}

func TestFindContainersMissingDir(t *testing.T) {
	_, err := FindContainers(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
