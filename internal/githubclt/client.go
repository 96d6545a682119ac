// Package githubclt provides a github API client.
package githubclt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v59/github"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/simplesurance/update-branch/internal/logfields"
)

const DefaultHTTPClientTimeout = time.Minute

const loggerName = "github_client"

// ErrMergeConflict is returned when a branch can not be updated with its
// base branch because of a merge conflict.
var ErrMergeConflict = errors.New("merge conflict")

// New returns a new github api client.
func New(oauthAPItoken string) *Client {
	httpClient := newHTTPClient(oauthAPItoken)
	return &Client{
		restClt:    github.NewClient(httpClient),
		graphQLClt: githubv4.NewClient(httpClient),
		logger:     zap.L().Named(loggerName),
	}
}

func newHTTPClient(apiToken string) *http.Client {
	if apiToken == "" {
		return &http.Client{
			Timeout: DefaultHTTPClientTimeout,
		}
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: apiToken},
	)

	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = DefaultHTTPClientTimeout

	return tc
}

// Client is an github API client.
// Calls are never retried, errors are returned to the caller as they are.
type Client struct {
	restClt    *github.Client
	graphQLClt *githubv4.Client
	logger     *zap.Logger
}

// ViewerLogin returns the login of the user that owns the API token.
func (clt *Client) ViewerLogin(ctx context.Context) (string, error) {
	var q struct {
		Viewer struct {
			Login string
		}
	}

	if err := clt.graphQLClt.Query(ctx, &q, nil); err != nil {
		return "", fmt.Errorf("querying viewer failed: %w", err)
	}

	if q.Viewer.Login == "" {
		return "", errors.New("github returned an empty viewer login")
	}

	return q.Viewer.Login, nil
}

// ListAvailablePullRequests returns all open pull requests that are not
// drafts, ordered by their creation time, oldest first.
func (clt *Client) ListAvailablePullRequests(ctx context.Context, owner, repo string) ([]*PullRequestInfo, error) {
	type graphQLQueryPullRequests struct {
		Repository struct {
			PullRequests struct {
				Nodes    []*queryPullRequest
				PageInfo struct {
					EndCursor   string
					HasNextPage bool
				}
			} `graphql:"pullRequests(states: OPEN, first: 50, after: $after, orderBy: {field: CREATED_AT, direction: ASC})"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	vars := map[string]any{
		"owner": githubv4.String(owner),
		"name":  githubv4.String(repo),
		"after": (*githubv4.String)(nil),
	}

	var result []*PullRequestInfo
	for {
		var q graphQLQueryPullRequests

		if err := clt.graphQLClt.Query(ctx, &q, vars); err != nil {
			return nil, fmt.Errorf("querying open pull requests failed: %w", err)
		}

		for _, pr := range q.Repository.PullRequests.Nodes {
			if pr.IsDraft {
				continue
			}

			result = append(result, pr.toPullRequestInfo())
		}

		pageInfo := q.Repository.PullRequests.PageInfo
		if !pageInfo.HasNextPage {
			return result, nil
		}

		if pageInfo.EndCursor == "" {
			return nil, errors.New("retrieving all pull requests failed, HasNextPage is true, expected non-empty EndCursor")
		}

		cursor := githubv4.String(pageInfo.EndCursor)
		vars["after"] = &cursor
	}
}

// PullRequest returns a snapshot of the pull request with the given number.
func (clt *Client) PullRequest(ctx context.Context, owner, repo string, number int) (*PullRequestInfo, error) {
	var q struct {
		Repository struct {
			PullRequest queryPullRequest `graphql:"pullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	vars := map[string]any{
		"owner":  githubv4.String(owner),
		"name":   githubv4.String(repo),
		"number": githubv4.Int(number),
	}

	if err := clt.graphQLClt.Query(ctx, &q, vars); err != nil {
		return nil, fmt.Errorf("querying pull request #%d failed: %w", number, err)
	}

	return q.Repository.PullRequest.toPullRequestInfo(), nil
}

// MergePullRequest merges the pull request with the given node id.
func (clt *Client) MergePullRequest(ctx context.Context, pullRequestID string, method MergeMethod) error {
	var m struct {
		MergePullRequest struct {
			ClientMutationID string
		} `graphql:"mergePullRequest(input: $input)"`
	}

	mergeMethod := method.toGraphQL()
	input := githubv4.MergePullRequestInput{
		PullRequestID: githubv4.ID(pullRequestID),
		MergeMethod:   &mergeMethod,
	}

	if err := clt.graphQLClt.Mutate(ctx, &m, input, nil); err != nil {
		return fmt.Errorf("merging pull request failed: %w", err)
	}

	return nil
}

// EnablePullRequestAutoMerge enables auto-merge for the pull request with the
// given node id. GitHub merges the pull request with method as soon as all
// requirements are met.
func (clt *Client) EnablePullRequestAutoMerge(ctx context.Context, pullRequestID string, method MergeMethod) error {
	var m struct {
		EnablePullRequestAutoMerge struct {
			ClientMutationID string
		} `graphql:"enablePullRequestAutoMerge(input: $input)"`
	}

	mergeMethod := method.toGraphQL()
	input := githubv4.EnablePullRequestAutoMergeInput{
		PullRequestID: githubv4.ID(pullRequestID),
		MergeMethod:   &mergeMethod,
	}

	if err := clt.graphQLClt.Mutate(ctx, &m, input, nil); err != nil {
		return fmt.Errorf("enabling auto-merge failed: %w", err)
	}

	return nil
}

// UpdateBranch schedules merging the base-branch into a pull request branch.
// If the branch can not be updated automatically because of a merge conflict,
// an error wrapping ErrMergeConflict is returned.
func (clt *Client) UpdateBranch(ctx context.Context, owner, repo string, pullRequestNumber int) error {
	logger := clt.logger.With(
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.PullRequest(pullRequestNumber),
	)

	_, _, err := clt.restClt.PullRequests.UpdateBranch(ctx, owner, repo, pullRequestNumber, nil)
	if err != nil {
		var acceptedErr *github.AcceptedError
		if errors.As(err, &acceptedErr) {
			logger.Debug("updating branch with base branch scheduled",
				logfields.Event("github_branch_update_with_base_scheduled"))
			return nil
		}

		var respErr *github.ErrorResponse
		if errors.As(err, &respErr) &&
			respErr.Response != nil &&
			respErr.Response.StatusCode == http.StatusUnprocessableEntity &&
			strings.Contains(respErr.Message, "merge conflict") {
			return fmt.Errorf("%w: %s", ErrMergeConflict, respErr.Message)
		}

		return clt.wrapErr(err)
	}

	logger.Debug("branch was updated with base branch",
		logfields.Event("github_branch_update_with_base_triggered"))

	return nil
}

// FindCreatedIssueWithBodyPrefix returns the oldest open issue created by
// author whose body starts with prefix. Leading whitespace of the body is
// ignored.
// If no such issue exists, nil is returned.
func (clt *Client) FindCreatedIssueWithBodyPrefix(ctx context.Context, owner, repo, author, prefix string) (*IssueInfo, error) {
	opts := github.IssueListByRepoOptions{
		Creator:   author,
		State:     "open",
		Sort:      "created",
		Direction: "asc",
		ListOptions: github.ListOptions{
			Page:    1,
			PerPage: 100,
		},
	}

	for {
		issues, resp, err := clt.restClt.Issues.ListByRepo(ctx, owner, repo, &opts)
		if err != nil {
			return nil, clt.wrapErr(err)
		}

		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}

			if strings.HasPrefix(strings.TrimSpace(issue.GetBody()), prefix) {
				return toIssueInfo(issue), nil
			}
		}

		if resp.NextPage == 0 || len(issues) == 0 {
			return nil, nil
		}

		opts.Page = resp.NextPage
	}
}

// CreateIssue creates an issue with an empty body.
func (clt *Client) CreateIssue(ctx context.Context, owner, repo, title string) (*IssueInfo, error) {
	issue, _, err := clt.restClt.Issues.Create(ctx, owner, repo, &github.IssueRequest{Title: &title})
	if err != nil {
		return nil, clt.wrapErr(err)
	}

	return toIssueInfo(issue), nil
}

// UpdateIssueBody replaces the body of an issue.
func (clt *Client) UpdateIssueBody(ctx context.Context, owner, repo string, issueNumber int, body string) error {
	_, _, err := clt.restClt.Issues.Edit(ctx, owner, repo, issueNumber, &github.IssueRequest{Body: &body})
	return clt.wrapErr(err)
}

func toIssueInfo(issue *github.Issue) *IssueInfo {
	return &IssueInfo{
		Number: issue.GetNumber(),
		Title:  issue.GetTitle(),
		Body:   issue.GetBody(),
	}
}

func (clt *Client) wrapErr(err error) error {
	if err == nil {
		return nil
	}

	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		clt.logger.Info(
			"rate limit exceeded",
			logfields.Event("github_api_rate_limit_exceeded"),
			zap.Int("github_api_rate_limit", rateLimitErr.Rate.Limit),
			zap.Time("github_api_rate_limit_reset_time", rateLimitErr.Rate.Reset.Time),
		)

		return fmt.Errorf("github api rate limit exceeded, resets at %s: %w", rateLimitErr.Rate.Reset.Time, err)
	}

	return err
}
