// Package gitsource shares .apkg containers through a git repository.
package gitsource

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Author signs the commits made by Commit.
var Author = object.Signature{Name: "apkgbridge", Email: "apkgbridge@localhost"}

// Sync clones a git repository if it doesn't exist at the given path,
// or pulls the latest changes if it does.
func Sync(url, localPath string) error {
	_, err := os.Stat(localPath)
	if os.IsNotExist(err) {
		// Path does not exist, clone the repository
		slog.Info("Cloning deck library", "url", url, "path", localPath)
		_, err := git.PlainClone(localPath, false, &git.CloneOptions{
			URL: url,
		})
		if err != nil {
			return fmt.Errorf("failed to clone repo %s: %w", url, err)
		}
		slog.Info("Clone successful", "path", localPath)
	} else if err == nil {
		// Path exists, pull the latest changes
		slog.Info("Pulling deck library", "path", localPath)
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
		}

		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
		}

		err = worktree.Pull(&git.PullOptions{
			RemoteName: "origin",
		})
		if err != nil && err != git.NoErrAlreadyUpToDate {
			return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
		}
		slog.Info("Pull successful (or already up-to-date)", "path", localPath)
	} else {
		// Some other error occurred
		return fmt.Errorf("error checking path %s: %w", localPath, err)
	}

	return nil
}

// Commit copies the container at file into the work tree of the repository
// at repoPath, stages it and commits it. An empty repository directory is
// initialised first. It returns the new commit hash.
func Commit(repoPath, file, msg string) (plumbing.Hash, error) {
	repo, err := git.PlainOpen(repoPath)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(repoPath, false)
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to open repo at %s: %w", repoPath, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to get worktree for repo at %s: %w", repoPath, err)
	}

	name := filepath.Base(file)
	if err := copyFile(file, filepath.Join(repoPath, name)); err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := worktree.Add(name); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to stage %s: %w", name, err)
	}

	sig := Author
	sig.When = time.Now()
	hash, err := worktree.Commit(msg, &git.CommitOptions{Author: &sig})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to commit %s: %w", name, err)
	}
	slog.Info("Committed container", "file", name, "commit", hash.String())
	return hash, nil
}

// FindContainers lists the .apkg files under dir, skipping the .git
// directory. Paths are sorted.
func FindContainers(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err // Propagate errors from WalkDir
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), ".apkg") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking directory %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
