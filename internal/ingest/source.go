// Package ingest acquires raw play texts for corpus building, either from
// the local filesystem or from a git repository of texts.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/go-git/go-git/v6/storage/memory"
)

// Source is one acquired play text.
type Source struct {
	// Name is the file base name without extension; used as the default
	// play title.
	Name string
	Text string
}

// Load reads play texts from a local file, a local directory of .txt files,
// or a remote git URL (cloned to memory, .txt files collected from HEAD).
func Load(location string) ([]Source, error) {
	if isGitURL(location) {
		return loadFromGit(location)
	}

	info, err := os.Stat(location)
	if err != nil {
		return nil, fmt.Errorf("failed to read source %q: %w", location, err)
	}

	if info.IsDir() {
		return loadFromDir(location)
	}
	return loadFromFile(location)
}

func isGitURL(location string) bool {
	return strings.HasPrefix(location, "https://") ||
		strings.HasPrefix(location, "http://") ||
		strings.HasPrefix(location, "git@")
}

func loadFromFile(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}
	return []Source{{Name: baseName(path), Text: string(data)}}, nil
}

func loadFromDir(dir string) ([]Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %q: %w", dir, err)
	}

	var sources []Source
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %q: %w", e.Name(), err)
		}
		sources = append(sources, Source{Name: baseName(e.Name()), Text: string(data)})
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("no .txt files found in %q", dir)
	}
	return sources, nil
}

// loadFromGit clones the repository into memory and collects .txt files from
// the HEAD commit's tree; no worktree is materialized on disk.
func loadFromGit(url string) ([]Source, error) {
	repo, err := git.Clone(memory.NewStorage(), nil, &git.CloneOptions{
		URL:   url,
		Depth: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to clone %q: %w", url, err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}

	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to read HEAD commit: %w", err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read tree: %w", err)
	}

	var sources []Source
	err = tree.Files().ForEach(func(f *object.File) error {
		if !strings.HasSuffix(f.Name, ".txt") {
			return nil
		}
		if binary, _ := f.IsBinary(); binary {
			return nil
		}
		contents, err := f.Contents()
		if err != nil {
			return fmt.Errorf("failed to read %q: %w", f.Name, err)
		}
		sources = append(sources, Source{Name: baseName(f.Name), Text: contents})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("no .txt files found in %q", url)
	}
	return sources, nil
}

func baseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
