// Package merger decides which pull request is updated or merged next.
//
// One invocation of Coordinator.Run executes at most one transition:
//
// If the record contains a pending pull request that still fulfills the
// condition, it is waited for while its merge state is BLOCKED or UNKNOWN
// and its branch is updated again when it is BEHIND.
// Otherwise the first pull request that fulfills the condition and is CLEAN
// or UNSTABLE is merged. If there is none, the branch of the first one that
// is BEHIND is updated, auto-merge is enabled for it and it becomes the
// pending pull request.
//
// The next state is always computed from scratch, a pending pull request is
// only carried over when it is still waited for.
package merger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/update-branch/internal/condition"
	"github.com/simplesurance/update-branch/internal/githubclt"
	"github.com/simplesurance/update-branch/internal/logfields"
	"github.com/simplesurance/update-branch/internal/record"
)

const loggerName = "merger"

//go:generate mockgen -destination=mocks/github.go -package=mocks . GithubClient

// GithubClient is the subset of githubclt.Client methods used by the
// Coordinator.
type GithubClient interface {
	ListAvailablePullRequests(ctx context.Context, owner, repo string) ([]*githubclt.PullRequestInfo, error)
	PullRequest(ctx context.Context, owner, repo string, number int) (*githubclt.PullRequestInfo, error)
	MergePullRequest(ctx context.Context, pullRequestID string, method githubclt.MergeMethod) error
	EnablePullRequestAutoMerge(ctx context.Context, pullRequestID string, method githubclt.MergeMethod) error
	UpdateBranch(ctx context.Context, owner, repo string, pullRequestNumber int) error
}

var _ GithubClient = &githubclt.Client{}

// Coordinator selects and progresses at most one pull request per run.
type Coordinator struct {
	clt         GithubClient
	owner       string
	repo        string
	cond        *condition.Condition
	mergeMethod githubclt.MergeMethod
	logger      *zap.Logger
}

func NewCoordinator(
	clt GithubClient,
	owner, repo string,
	cond *condition.Condition,
	mergeMethod githubclt.MergeMethod,
) *Coordinator {
	return &Coordinator{
		clt:         clt,
		owner:       owner,
		repo:        repo,
		cond:        cond,
		mergeMethod: mergeMethod,
		logger: zap.L().Named(loggerName).With(
			logfields.RepositoryOwner(owner),
			logfields.Repository(repo),
		),
	}
}

// Run executes one transition for the state current and returns the next
// state. The returned state has Editing set to false.
func (c *Coordinator) Run(ctx context.Context, current record.Body) (record.Body, error) {
	// Listing the pull requests first causes GitHub to compute the merge
	// state of all of them, including the pending one.
	availablePRs, err := c.clt.ListAvailablePullRequests(ctx, c.owner, c.repo)
	if err != nil {
		return record.Body{}, fmt.Errorf("listing pull requests failed: %w", err)
	}

	c.logger.Debug(
		"retrieved open pull requests",
		logfields.Event("pull_requests_retrieved"),
		zap.Int("count", len(availablePRs)),
	)

	if current.HasPending() {
		next, done, err := c.resumePending(ctx, *current.PendingMergePullRequestNumber)
		if err != nil {
			return record.Body{}, err
		}

		if done {
			return next, nil
		}
	}

	return c.selectFresh(ctx, availablePRs)
}

// resumePending progresses the pending pull request. When done is false the
// pending pull request does not need to be waited for anymore.
func (c *Coordinator) resumePending(ctx context.Context, prNumber int) (next record.Body, done bool, err error) {
	logger := c.logger.With(logfields.PullRequest(prNumber))

	pr, err := c.clt.PullRequest(ctx, c.owner, c.repo, prNumber)
	if err != nil {
		return record.Body{}, false, fmt.Errorf("retrieving pending pull request #%d failed: %w", prNumber, err)
	}

	logger = logger.With(logfields.MergeStateStatus(string(pr.MergeStateStatus)))

	reason := logfields.Reason("condition_not_fulfilled")
	if c.cond.IsPendingMerge(pr) {
		reason = logfields.Reason("merge_state_resolved")

		switch pr.MergeStateStatus {
		case githubclt.MergeStateStatusBlocked, githubclt.MergeStateStatusUnknown:
			logger.Info(
				fmt.Sprintf("wait PR #%d to be merged", prNumber),
				logfields.Event("pending_pull_request_waiting"),
			)
			metrics.ActionInc(actionWait)

			return record.Body{PendingMergePullRequestNumber: record.PendingPR(prNumber)}, true, nil

		case githubclt.MergeStateStatusBehind:
			if err := c.clt.EnablePullRequestAutoMerge(ctx, pr.ID, c.mergeMethod); err != nil {
				return record.Body{}, false, fmt.Errorf("enabling auto-merge for pull request #%d failed: %w", prNumber, err)
			}

			if err := c.clt.UpdateBranch(ctx, c.owner, c.repo, prNumber); err != nil {
				return record.Body{}, false, fmt.Errorf("updating branch of pull request #%d failed: %w", prNumber, err)
			}

			logger.Info(
				fmt.Sprintf("update branch and wait PR #%d to be merged", prNumber),
				logfields.Event("pending_pull_request_branch_updated"),
			)
			metrics.ActionInc(actionUpdateBranch)

			return record.Body{PendingMergePullRequestNumber: record.PendingPR(prNumber)}, true, nil
		}
	}

	logger.Info(
		fmt.Sprintf("pending merge PR #%d can not be merged, trying to find other PR that needs update branch", prNumber),
		logfields.Event("pending_pull_request_dropped"),
		reason,
	)

	return record.Body{}, false, nil
}

func (c *Coordinator) selectFresh(ctx context.Context, availablePRs []*githubclt.PullRequestInfo) (record.Body, error) {
	passPRs := make([]*githubclt.PullRequestInfo, 0, len(availablePRs))
	for _, pr := range availablePRs {
		if c.cond.IsStatusCheckPass(pr) {
			passPRs = append(passPRs, pr)
		}
	}

	c.logger.Debug(
		"evaluated condition for open pull requests",
		logfields.Event("condition_evaluated"),
		zap.Int("open_count", len(availablePRs)),
		zap.Int("passed_count", len(passPRs)),
	)

	// UNSTABLE is accepted because the required checks were already
	// evaluated by the condition, failed checks are not required ones.
	if pr := findByStatus(passPRs, githubclt.MergeStateStatusClean, githubclt.MergeStateStatusUnstable); pr != nil {
		c.logger.Info(
			fmt.Sprintf("merge PR #%d", pr.Number),
			logfields.Event("pull_request_merging"),
			logfields.PullRequest(pr.Number),
			logfields.MergeStateStatus(string(pr.MergeStateStatus)),
			logfields.MergeMethod(string(c.mergeMethod)),
		)

		if err := c.clt.MergePullRequest(ctx, pr.ID, c.mergeMethod); err != nil {
			return record.Body{}, fmt.Errorf("merging pull request #%d failed: %w", pr.Number, err)
		}

		metrics.ActionInc(actionMerge)

		return record.Body{}, nil
	}

	if pr := findByStatus(passPRs, githubclt.MergeStateStatusBehind); pr != nil {
		c.logger.Info(
			fmt.Sprintf("found PR #%d that can be merged, updating branch and enabling auto-merge", pr.Number),
			logfields.Event("pull_request_branch_updating"),
			logfields.PullRequest(pr.Number),
		)

		if err := c.clt.UpdateBranch(ctx, c.owner, c.repo, pr.Number); err != nil {
			return record.Body{}, fmt.Errorf("updating branch of pull request #%d failed: %w", pr.Number, err)
		}

		if err := c.clt.EnablePullRequestAutoMerge(ctx, pr.ID, c.mergeMethod); err != nil {
			return record.Body{}, fmt.Errorf("enabling auto-merge for pull request #%d failed: %w", pr.Number, err)
		}

		metrics.ActionInc(actionUpdateBranch)

		return record.Body{PendingMergePullRequestNumber: record.PendingPR(pr.Number)}, nil
	}

	c.logger.Info("found no PR that needs update branch", logfields.Event("no_pull_request_found"))
	metrics.ActionInc(actionNone)

	return record.Body{}, nil
}

func findByStatus(prs []*githubclt.PullRequestInfo, status ...githubclt.MergeStateStatus) *githubclt.PullRequestInfo {
	for _, pr := range prs {
		for _, s := range status {
			if pr.MergeStateStatus == s {
				return pr
			}
		}
	}

	return nil
}
