package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/repoindex/internal/config"
	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"
)

// fetchConcurrency bounds parallel content requests against the API.
const fetchConcurrency = 8

var errNotFile = errors.New("path is not a file")

// NewGitHubClient creates a GitHub client. An unset token gives an
// unauthenticated client, which only works for public repositories.
func NewGitHubClient(ctx context.Context, token config.Secret) *github.Client {
	if !token.IsSet() {
		return github.NewClient(nil)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.Value()})
	return github.NewClient(oauth2.NewClient(ctx, ts))
}

// GitHub reads a repository tree through the REST API.
type GitHub struct {
	Client *github.Client
	Owner  string
	Repo   string

	// Ref is a branch, tag or commit. Empty uses the default branch.
	Ref string

	// Include, when set, limits which paths have their content fetched.
	Include func(path string) bool

	Logger *zap.Logger
}

// Name implements Source.
func (g *GitHub) Name() string {
	return fmt.Sprintf("github:%s/%s@%s", g.Owner, g.Repo, g.Ref)
}

// Files lists the recursive tree at Ref and fetches every blob.
func (g *GitHub) Files(ctx context.Context) (*Listing, error) {
	ref := g.Ref
	if ref == "" {
		repo, _, err := g.Client.Repositories.Get(ctx, g.Owner, g.Repo)
		if err != nil {
			return nil, fmt.Errorf("resolving default branch of %s/%s: %w", g.Owner, g.Repo, err)
		}
		ref = repo.GetDefaultBranch()
	}

	tree, _, err := g.Client.Git.GetTree(ctx, g.Owner, g.Repo, ref, true)
	if err != nil {
		return nil, fmt.Errorf("listing tree of %s/%s@%s: %w", g.Owner, g.Repo, ref, err)
	}

	var paths []string
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		if g.Include != nil && !g.Include(entry.GetPath()) {
			continue
		}
		paths = append(paths, entry.GetPath())
	}
	if tree.GetTruncated() {
		g.logger().Warn("github tree truncated, some files are missing",
			zap.String("repo", g.Owner+"/"+g.Repo), zap.String("ref", ref))
	}

	return fetchContents(ctx, g.Client, g.Name(), g.Owner, g.Repo, ref, paths, g.logger())
}

func (g *GitHub) logger() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}

// PullRequest reads the files a pull request adds or modifies, at the
// pull request's head commit.
type PullRequest struct {
	Client  *github.Client
	Owner   string
	Repo    string
	Number  int
	Include func(path string) bool
	Logger  *zap.Logger
}

// Name implements Source.
func (p *PullRequest) Name() string {
	return fmt.Sprintf("github:%s/%s#%d", p.Owner, p.Repo, p.Number)
}

// Files lists the changed files and fetches the head version of each one
// that was not removed.
func (p *PullRequest) Files(ctx context.Context) (*Listing, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pr, _, err := p.Client.PullRequests.Get(ctx, p.Owner, p.Repo, p.Number)
	if err != nil {
		return nil, fmt.Errorf("fetching pull request %s: %w", p.Name(), err)
	}
	head := pr.GetHead()
	owner, repo := p.Owner, p.Repo
	if r := head.GetRepo(); r != nil {
		owner, repo = r.GetOwner().GetLogin(), r.GetName()
	}

	var paths []string
	opts := &github.ListOptions{PerPage: 100}
	for {
		files, resp, err := p.Client.PullRequests.ListFiles(ctx, p.Owner, p.Repo, p.Number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing files of %s: %w", p.Name(), err)
		}
		for _, f := range files {
			if f.GetStatus() == "removed" {
				continue
			}
			if p.Include != nil && !p.Include(f.GetFilename()) {
				continue
			}
			paths = append(paths, f.GetFilename())
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return fetchContents(ctx, p.Client, p.Name(), owner, repo, head.GetSHA(), paths, logger)
}

// fetchContents downloads paths at ref concurrently, keeping input order.
func fetchContents(ctx context.Context, client *github.Client, name, owner, repo, ref string, paths []string, logger *zap.Logger) (*Listing, error) {
	contents := make([]string, len(paths))
	failures := make([]error, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, path := range paths {
		g.Go(func() error {
			fc, _, _, err := client.Repositories.GetContents(gctx, owner, repo, path,
				&github.RepositoryContentGetOptions{Ref: ref})
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				failures[i] = err
				return nil
			}
			if fc == nil {
				failures[i] = errNotFile
				return nil
			}
			content, err := fc.GetContent()
			if err != nil {
				failures[i] = err
				return nil
			}
			contents[i] = content
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	listing := &Listing{}
	for i, path := range paths {
		switch {
		case failures[i] != nil:
			listing.skip(name, path, failures[i])
			logger.Warn("skipping file", zap.String("path", path), zap.Error(failures[i]))
		case !isText([]byte(contents[i])):
			listing.skip(name, path, ErrBinary)
		default:
			listing.Files = append(listing.Files, File{Path: path, Content: contents[i]})
		}
	}
	return listing, nil
}
