package githubclt

import (
	"github.com/shurcooL/githubv4"
)

// CIStatus abstracts the multiple result values of GitHub check runs and
// Commit statuses into a single value.
type CIStatus string

const (
	CIStatusSuccess CIStatus = "SUCCESS"
	CIStatusPending CIStatus = "PENDING"
	CIStatusFailure CIStatus = "FAILURE"
)

// passedStatusCheckNames returns the names of all check runs and the
// contexts of all commit statuses that succeeded.
// Unknown states are treated as not passed.
func passedStatusCheckNames(checkRuns []*queryCheckStatus, commitStatuses []*queryStatusContext) []string {
	result := make([]string, 0, len(checkRuns)+len(commitStatuses))

	for _, run := range checkRuns {
		if checkRunResultToCiStatus(run.Status, run.Conclusion) == CIStatusSuccess {
			result = append(result, run.Name)
		}
	}

	for _, commitStatus := range commitStatuses {
		if contextStatusStateToCIStatus(commitStatus.State) == CIStatusSuccess {
			result = append(result, commitStatus.Context)
		}
	}

	return result
}

func checkRunResultToCiStatus(status githubv4.CheckStatusState, conclusion githubv4.CheckConclusionState) CIStatus {
	if status == githubv4.CheckStatusStateCompleted {
		return checkConclusiontoCIStatus(conclusion)
	}

	return CIStatusPending
}

func checkConclusiontoCIStatus(conclusion githubv4.CheckConclusionState) CIStatus {
	switch conclusion {
	case githubv4.CheckConclusionStateNeutral,
		githubv4.CheckConclusionStateSkipped,
		githubv4.CheckConclusionStateSuccess:
		return CIStatusSuccess

	case githubv4.CheckConclusionStateActionRequired:
		return CIStatusPending

	default:
		return CIStatusFailure
	}
}

func contextStatusStateToCIStatus(state githubv4.StatusState) CIStatus {
	switch state {
	case githubv4.StatusStateSuccess:
		return CIStatusSuccess

	case githubv4.StatusStateExpected,
		githubv4.StatusStatePending:
		return CIStatusPending

	default:
		return CIStatusFailure
	}
}
