// Package test carries the shared helpers for building fixture repositories
// without touching the network or the local disk.
package test

import (
	"sort"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
)

// CommitFixture describes one commit of an in-memory fixture repository.
type CommitFixture struct {
	// Message is the commit message.
	Message string
	// When is the author and committer timestamp.
	When time.Time
	// Files maps paths to contents. Every listed file is written before the
	// commit; files from previous commits stay unless overwritten.
	Files map[string]string
	// Remove lists paths deleted before the commit.
	Remove []string
}

// NewRepository builds an in-memory repository with the given commit sequence
// and returns it together with the created hashes, in the same order.
func NewRepository(fixtures ...CommitFixture) (*git.Repository, []plumbing.Hash) {
	fs := memfs.New()
	repo, err := git.Init(memory.NewStorage(), fs)
	if err != nil {
		panic(err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		panic(err)
	}
	hashes := make([]plumbing.Hash, 0, len(fixtures))
	for _, fixture := range fixtures {
		paths := make([]string, 0, len(fixture.Files))
		for path := range fixture.Files {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			if err := util.WriteFile(fs, path, []byte(fixture.Files[path]), 0666); err != nil {
				panic(err)
			}
			if _, err := worktree.Add(path); err != nil {
				panic(err)
			}
		}
		for _, path := range fixture.Remove {
			if _, err := worktree.Remove(path); err != nil {
				panic(err)
			}
		}
		signature := &object.Signature{
			Name:  "tester",
			Email: "tester@example.com",
			When:  fixture.When,
		}
		hash, err := worktree.Commit(fixture.Message, &git.CommitOptions{
			Author:    signature,
			Committer: signature,
		})
		if err != nil {
			panic(err)
		}
		hashes = append(hashes, hash)
	}
	return repo, hashes
}

// Commit resolves a hash in the repository to the commit object.
func Commit(repo *git.Repository, hash plumbing.Hash) *object.Commit {
	commit, err := repo.CommitObject(hash)
	if err != nil {
		panic(err)
	}
	return commit
}
