package merger

import (
	"context"

	"go.uber.org/zap"

	"github.com/simplesurance/update-branch/internal/githubclt"
	"github.com/simplesurance/update-branch/internal/logfields"
)

// DryGithubClient is a github-client that does not do any changes on pull
// requests.
// All operations that could cause a change are simulated and always succeed.
// All other operations are forwarded to a wrapped GithubClient.
type DryGithubClient struct {
	clt    GithubClient
	logger *zap.Logger
}

func NewDryGithubClient(clt GithubClient, logger *zap.Logger) *DryGithubClient {
	return &DryGithubClient{
		clt:    clt,
		logger: logger.Named("dry_github_client"),
	}
}

func (c *DryGithubClient) ListAvailablePullRequests(ctx context.Context, owner, repo string) ([]*githubclt.PullRequestInfo, error) {
	return c.clt.ListAvailablePullRequests(ctx, owner, repo)
}

func (c *DryGithubClient) PullRequest(ctx context.Context, owner, repo string, number int) (*githubclt.PullRequestInfo, error) {
	return c.clt.PullRequest(ctx, owner, repo, number)
}

func (c *DryGithubClient) MergePullRequest(_ context.Context, pullRequestID string, method githubclt.MergeMethod) error {
	c.logger.Info("simulated merging of pull request, pull request not merged",
		zap.String("github.pull_request_id", pullRequestID),
		logfields.MergeMethod(string(method)),
	)
	return nil
}

func (c *DryGithubClient) EnablePullRequestAutoMerge(_ context.Context, pullRequestID string, method githubclt.MergeMethod) error {
	c.logger.Info("simulated enabling auto-merge, auto-merge not enabled",
		zap.String("github.pull_request_id", pullRequestID),
		logfields.MergeMethod(string(method)),
	)
	return nil
}

func (c *DryGithubClient) UpdateBranch(_ context.Context, _, _ string, pullRequestNumber int) error {
	c.logger.Info("simulated updating of github branch, branch not updated",
		logfields.PullRequest(pullRequestNumber),
	)
	return nil
}
