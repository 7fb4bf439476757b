package source

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/repoindex/internal/config"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
	"go.uber.org/zap"
)

// Git clones a repository into memory and reads the tree of its head commit.
type Git struct {
	URL string

	// Ref is a branch name. Empty uses the remote HEAD.
	Ref string

	// Depth limits history; 1 is a shallow clone, 0 fetches everything.
	Depth int

	// Token authenticates HTTPS clones, e.g. a GitHub token.
	Token config.Secret

	MaxFileBytes int64
	Logger       *zap.Logger
}

// Name implements Source.
func (g *Git) Name() string {
	if g.Ref != "" {
		return "git:" + g.URL + "@" + g.Ref
	}
	return "git:" + g.URL
}

// Files clones the repository and lists every text blob at HEAD.
func (g *Git) Files(ctx context.Context) (*Listing, error) {
	logger := g.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBytes := g.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}

	opts := &git.CloneOptions{
		URL:          g.URL,
		Depth:        g.Depth,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if g.Ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(g.Ref)
	}
	if g.Token.IsSet() {
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: g.Token.Value()}
	}

	repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, opts)
	if err != nil {
		return nil, fmt.Errorf("cloning %s: %w", g.URL, err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to get commit object: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}

	listing := &Listing{}
	name := g.Name()

	err = tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !f.Mode.IsFile() {
			return nil
		}
		if f.Size > maxBytes {
			listing.skip(name, f.Name, ErrTooLarge)
			return nil
		}
		binary, err := f.IsBinary()
		if err != nil {
			listing.skip(name, f.Name, err)
			return nil
		}
		if binary {
			listing.skip(name, f.Name, ErrBinary)
			return nil
		}
		content, err := f.Contents()
		if err != nil {
			listing.skip(name, f.Name, err)
			logger.Warn("skipping unreadable blob", zap.String("path", f.Name), zap.Error(err))
			return nil
		}
		if !isText([]byte(content)) {
			listing.skip(name, f.Name, ErrBinary)
			return nil
		}
		listing.Files = append(listing.Files, File{Path: f.Name, Content: content})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading tree: %w", err)
	}

	logger.Debug("git source read",
		zap.String("url", g.URL),
		zap.String("commit", commit.Hash.String()),
		zap.Int("files", len(listing.Files)),
		zap.Int("skipped", len(listing.Skipped)),
	)
	return listing, nil
}
