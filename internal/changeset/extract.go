package changeset

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/repopal/repopal/internal/sandbox"
)

// binarySniffLength mirrors git's own heuristic for classifying a blob as
// binary: look for a NUL byte in the first 8000 bytes.
const binarySniffLength = 8000

// Extract inspects sess's working copy after a command has run and
// produces a ChangeSet. It never modifies the working tree. If sess is
// nil (C4 failed before a working copy existed), the result is empty.
func Extract(sess *sandbox.Session) (ChangeSet, error) {
	if sess == nil {
		return ChangeSet{}, nil
	}

	repo := sess.Repo()
	wt, err := repo.Handle().Worktree()
	if err != nil {
		return ChangeSet{}, fmt.Errorf("changeset: open worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return ChangeSet{}, fmt.Errorf("changeset: compute status: %w", err)
	}

	ignore, err := loadIgnoreMatcher(repo.Dir())
	if err != nil {
		return ChangeSet{}, fmt.Errorf("changeset: load ignore rules: %w", err)
	}

	head, err := repo.Handle().Head()
	if err != nil {
		return ChangeSet{}, fmt.Errorf("changeset: resolve HEAD: %w", err)
	}
	headCommit, err := repo.Handle().CommitObject(head.Hash())
	if err != nil {
		return ChangeSet{}, fmt.Errorf("changeset: load HEAD commit: %w", err)
	}
	headTree, err := headCommit.Tree()
	if err != nil {
		return ChangeSet{}, fmt.Errorf("changeset: load HEAD tree: %w", err)
	}

	var cs ChangeSet
	for path, st := range status {
		if ignore.MatchesPath(path) {
			continue
		}

		switch st.Worktree {
		case git.Untracked:
			entry, err := readUntracked(repo.Dir(), path)
			if err != nil {
				return ChangeSet{}, err
			}
			cs.Untracked = append(cs.Untracked, entry)

		case git.Modified, git.Added, git.Deleted:
			before := ""
			if f, err := headTree.File(path); err == nil {
				before, _ = f.Contents()
			}
			after := ""
			if data, err := os.ReadFile(filepath.Join(repo.Dir(), path)); err == nil {
				after = string(data)
			}
			cs.Tracked = append(cs.Tracked, TrackedChange{
				Path:        path,
				UnifiedDiff: unifiedDiff(path, before, after),
			})
		}
	}

	sort.Slice(cs.Tracked, func(i, j int) bool { return cs.Tracked[i].Path < cs.Tracked[j].Path })
	sort.Slice(cs.Untracked, func(i, j int) bool { return cs.Untracked[i].Path < cs.Untracked[j].Path })

	return cs, nil
}

func readUntracked(repoDir, relPath string) (UntrackedFile, error) {
	data, err := os.ReadFile(filepath.Join(repoDir, relPath))
	if err != nil {
		return UntrackedFile{}, fmt.Errorf("changeset: read %s: %w", relPath, err)
	}

	sniff := data
	if len(sniff) > binarySniffLength {
		sniff = sniff[:binarySniffLength]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return UntrackedFile{Path: relPath, Content: base64.StdEncoding.EncodeToString(data), Binary: true}, nil
	}
	return UntrackedFile{Path: relPath, Content: string(data)}, nil
}

// loadIgnoreMatcher reads every .gitignore under root and compiles them
// into a single matcher using real gitignore pattern semantics, not a
// hardcoded list. Nested .gitignore patterns are rooted at their own
// directory, matching git's own precedence.
func loadIgnoreMatcher(root string) (*gitignore.GitIgnore, error) {
	var lines []string

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && info.Name() == ".git" {
			return filepath.SkipDir
		}
		if info.IsDir() || info.Name() != ".gitignore" {
			return nil
		}

		rel, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimRight(line, "\r")
			if line == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
				continue
			}
			if rel != "." {
				line = filepath.ToSlash(filepath.Join(rel, line))
			}
			lines = append(lines, line)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	lines = append(lines, ".git", ".git/**")
	return gitignore.CompileIgnoreLines(lines...), nil
}
