package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	ghttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gh "github.com/google/go-github/v69/github"
	"golang.org/x/oauth2"

	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/errs"
)

var (
	ErrAuthFailed     = errors.New("source: authentication failed")
	ErrBranchNotFound = errors.New("source: branch not found")
	ErrLookupFailed   = errors.New("source: branch lookup failed")
	ErrCloneFailed    = errors.New("source: clone failed")
	ErrHeadFailed     = errors.New("source: head resolution failed")
)

// shortLen matches the abbreviated commit form used in image tags.
const shortLen = 7

// GitHubSource produces a fresh working copy of one branch head and can
// report the commit it checked out.
type GitHubSource struct {
	org    string
	repo   string
	branch string
	token  string
	retry  bool

	api *gh.Client
}

func NewGitHubSource(org, repo, branch, token string, retry bool) *GitHubSource {
	if branch == "" {
		branch = "main"
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &GitHubSource{
		org:    org,
		repo:   repo,
		branch: branch,
		token:  token,
		retry:  retry,
		api:    gh.NewClient(oauth2.NewClient(context.Background(), ts)),
	}
}

// Validate resolves the branch head through the GitHub API before any
// clone traffic, so a bad credential or missing branch surfaces as a
// typed error instead of a generic transport failure.
func (s *GitHubSource) Validate(ctx context.Context) (string, error) {
	branch, resp, err := s.api.Repositories.GetBranch(ctx, s.org, s.repo, s.branch, 3)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				return "", errs.Wrap(ErrAuthFailed, err)
			case http.StatusNotFound:
				return "", errs.WrapMsg(ErrBranchNotFound, s.org+"/"+s.repo+"@"+s.branch, err)
			}
		}
		return "", errs.Wrap(ErrLookupFailed, err)
	}
	return branch.GetCommit().GetSHA(), nil
}

// Fetch wipes any prior checkout at dest and clones the branch head.
// A shallow single-branch clone is enough: the pipeline only ever builds
// the tip commit.
func (s *GitHubSource) Fetch(ctx context.Context, dest string) error {
	if err := os.RemoveAll(dest); err != nil {
		return errs.WrapMsg(ErrCloneFailed, "cleanup of previous checkout", err)
	}

	auth := &ghttp.BasicAuth{Username: "git", Password: s.token}
	opts := &git.CloneOptions{
		URL:           "https://github.com/" + s.org + "/" + s.repo + ".git",
		Auth:          auth,
		ReferenceName: plumbing.NewBranchReferenceName(s.branch),
		SingleBranch:  true,
		Depth:         1,
		Progress:      io.Discard,
	}

	clone := func() error {
		slog.Info("cloning repository", "org", s.org, "repo", s.repo, "branch", s.branch)
		if _, err := git.PlainCloneContext(ctx, dest, false, opts); err != nil {
			_ = os.RemoveAll(dest)
			return err
		}
		return nil
	}

	if err := s.run(ctx, clone); err != nil {
		return errs.Wrap(ErrCloneFailed, err)
	}
	return nil
}

// Head reads the commit id of the checkout at dest. The pipeline calls it
// once after the clone and once more at signal time; both reads must agree
// since nothing mutates the checkout in between.
func (s *GitHubSource) Head(dest string) (string, error) {
	repo, err := git.PlainOpen(dest)
	if err != nil {
		return "", errs.Wrap(ErrHeadFailed, err)
	}
	ref, err := repo.Head()
	if err != nil {
		return "", errs.Wrap(ErrHeadFailed, err)
	}
	return ref.Hash().String(), nil
}

// run executes op directly, or under a bounded exponential backoff when
// retry is enabled for transient network steps.
func (s *GitHubSource) run(ctx context.Context, op func() error) error {
	if !s.retry {
		return op()
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, 3), ctx))
}

// Short abbreviates a full commit id for use in image tags.
func Short(hash string) string {
	if len(hash) <= shortLen {
		return hash
	}
	return hash[:shortLen]
}
