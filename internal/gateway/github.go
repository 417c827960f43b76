package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/rowan/commitdeck/internal/domain"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// ErrTokenRequired is returned when the gateway is constructed without credentials.
var ErrTokenRequired = errors.New("github token is required")

// Client wraps the GitHub API for commit listing and detail retrieval.
// Every remote call waits on a shared rate limiter so a batch run stays
// under the API's secondary rate limits.
type Client struct {
	gh      *github.Client
	limiter *rate.Limiter
	perPage int
}

// ClientConfig holds configuration for the gateway client.
type ClientConfig struct {
	Token           string
	PerPage         int
	RequestInterval time.Duration // minimum spacing between API calls
}

// NewClient creates a new GitHub gateway client.
// Parameters:
//   - cfg: token, page size, and request pacing.
// Returns:
//   - *Client: initialized client.
//   - error: ErrTokenRequired when no token is configured.
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, ErrTokenRequired
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	tc := oauth2.NewClient(context.Background(), ts)

	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	interval := cfg.RequestInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}

	return &Client{
		gh:      github.NewClient(tc),
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		perPage: perPage,
	}, nil
}

// ListOptions narrows a commit listing call.
type ListOptions struct {
	Since           time.Time
	AuthorAllowList []string // author display names; empty allows all
	EmailAllowList  []string // author emails; empty allows all
	MaxPages        int      // 0 means all pages
}

// ListCommits lists commit references for a repository, newest first, with
// author/email allow-list filtering applied at this boundary.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - repo: repository identifier ("owner/name").
//   - opts: listing filters; nil means no filtering.
// Returns:
//   - []domain.CommitRef: filtered references in API order.
//   - error: non-nil if any page fetch fails.
func (c *Client) ListCommits(ctx context.Context, repo string, opts *ListOptions) ([]domain.CommitRef, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &ListOptions{}
	}

	listOpts := &github.CommitsListOptions{
		ListOptions: github.ListOptions{PerPage: c.perPage},
	}
	if !opts.Since.IsZero() {
		listOpts.Since = opts.Since
	}

	var refs []domain.CommitRef
	pages := 0
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		commits, resp, err := c.gh.Repositories.ListCommits(ctx, owner, name, listOpts)
		if err != nil {
			return nil, fmt.Errorf("failed to list commits for %s: %w", repo, err)
		}

		for _, rc := range commits {
			ref := toCommitRef(repo, rc)
			if !matchAllowList(ref.AuthorName, opts.AuthorAllowList) {
				continue
			}
			if !matchAllowList(ref.AuthorEmail, opts.EmailAllowList) {
				continue
			}
			refs = append(refs, ref)
		}

		pages++
		if resp.NextPage == 0 || (opts.MaxPages > 0 && pages >= opts.MaxPages) {
			break
		}
		listOpts.Page = resp.NextPage
	}

	return refs, nil
}

// GetCommitDetail fetches the full commit including per-file diffs and stats.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - repo: repository identifier ("owner/name").
//   - sha: full commit hash.
// Returns:
//   - *domain.CommitDetail: detail with aggregate stats and file rows.
//   - error: non-nil if the fetch fails.
func (c *Client) GetCommitDetail(ctx context.Context, repo, sha string) (*domain.CommitDetail, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	rc, _, err := c.gh.Repositories.GetCommit(ctx, owner, name, sha, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit %s of %s: %w", shortSHA(sha), repo, err)
	}

	detail := &domain.CommitDetail{
		CommitRef: toCommitRef(repo, rc),
	}
	if stats := rc.GetStats(); stats != nil {
		detail.Additions = stats.GetAdditions()
		detail.Deletions = stats.GetDeletions()
		detail.Total = stats.GetTotal()
	}
	for _, f := range rc.Files {
		detail.Files = append(detail.Files, domain.CommitFile{
			CommitSHA: detail.SHA,
			Filename:  f.GetFilename(),
			Status:    domain.FileStatus(f.GetStatus()),
			Additions: f.GetAdditions(),
			Deletions: f.GetDeletions(),
			Changes:   f.GetChanges(),
			Patch:     f.GetPatch(),
		})
	}

	return detail, nil
}

func toCommitRef(repo string, rc *github.RepositoryCommit) domain.CommitRef {
	ref := domain.CommitRef{
		Repository: repo,
		SHA:        rc.GetSHA(),
		ShortSHA:   shortSHA(rc.GetSHA()),
	}
	if commit := rc.GetCommit(); commit != nil {
		ref.Message = commit.GetMessage()
		if author := commit.GetAuthor(); author != nil {
			ref.AuthorName = author.GetName()
			ref.AuthorEmail = author.GetEmail()
			ref.AuthoredAt = author.GetDate().Time
		}
	}
	return ref
}

// matchAllowList reports whether value passes the allow-list filter.
// An empty list allows everything; matching is exact.
func matchAllowList(value string, allow []string) bool {
	if len(allow) == 0 {
		return true
	}
	for _, a := range allow {
		if value == a {
			return true
		}
	}
	return false
}

func splitRepo(repo string) (string, string, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("invalid repository %q, expected owner/name", repo)
	}
	return owner, name, nil
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
