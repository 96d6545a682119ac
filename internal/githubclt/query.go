package githubclt

import (
	"github.com/shurcooL/githubv4"
)

type queryCheckStatus struct {
	Name       string
	Conclusion githubv4.CheckConclusionState
	Status     githubv4.CheckStatusState
}

type queryStatusContext struct {
	State   githubv4.StatusState
	Context string
}

type queryPullRequest struct {
	Number           int
	ID               string
	IsDraft          bool
	MergeStateStatus MergeStateStatus

	LatestOpinionatedReviews struct {
		Nodes []struct {
			State githubv4.PullRequestReviewState
		}
	} `graphql:"latestOpinionatedReviews(first: 100, writersOnly: true)"`

	Labels struct {
		Nodes []struct {
			Name string
		}
	} `graphql:"labels(first: 100)"`

	Commits struct {
		Nodes []struct {
			Commit struct {
				StatusCheckRollup struct {
					Contexts struct {
						Nodes []struct {
							CheckRun      queryCheckStatus   `graphql:"... on CheckRun"`
							StatusContext queryStatusContext `graphql:"... on StatusContext"`
						}
					} `graphql:"contexts(first: 100)"`
				}
			}
		}
	} `graphql:"commits(last: 1)"`
}

func (q *queryPullRequest) toPullRequestInfo() *PullRequestInfo {
	result := PullRequestInfo{
		Number:                 q.Number,
		ID:                     q.ID,
		MergeStateStatus:       q.MergeStateStatus,
		PassedStatusCheckNames: []string{},
		LabelNames:             make([]string, 0, len(q.Labels.Nodes)),
	}

	for _, review := range q.LatestOpinionatedReviews.Nodes {
		if review.State == githubv4.PullRequestReviewStateApproved {
			result.ApprovalCount++
		}
	}

	for _, label := range q.Labels.Nodes {
		result.LabelNames = append(result.LabelNames, label.Name)
	}

	var checkRuns []*queryCheckStatus
	var statusContexts []*queryStatusContext
	for _, commit := range q.Commits.Nodes {
		for _, node := range commit.Commit.StatusCheckRollup.Contexts.Nodes {
			node := node
			if node.CheckRun.Name != "" {
				checkRuns = append(checkRuns, &node.CheckRun)
				continue
			}

			if node.StatusContext.Context != "" {
				statusContexts = append(statusContexts, &node.StatusContext)
			}
		}
	}

	result.PassedStatusCheckNames = passedStatusCheckNames(checkRuns, statusContexts)

	return &result
}
