package githubclt

// MergeStateStatus is the mergeability classification GitHub reports for a
// pull request.
//
// [merge state status]: https://docs.github.com/en/graphql/reference/enums#mergestatestatus
type MergeStateStatus string

const (
	MergeStateStatusBehind   MergeStateStatus = "BEHIND"
	MergeStateStatusBlocked  MergeStateStatus = "BLOCKED"
	MergeStateStatusClean    MergeStateStatus = "CLEAN"
	MergeStateStatusUnknown  MergeStateStatus = "UNKNOWN"
	MergeStateStatusUnstable MergeStateStatus = "UNSTABLE"
)

// PullRequestInfo is a snapshot of a pull request at query time.
type PullRequestInfo struct {
	Number int `json:"number"`
	// ID is the GraphQL node id, it is used for mutations.
	ID                     string           `json:"id"`
	MergeStateStatus       MergeStateStatus `json:"mergeStateStatus"`
	ApprovalCount          int              `json:"approvalCount"`
	PassedStatusCheckNames []string         `json:"passedStatusCheckNames"`
	LabelNames             []string         `json:"labelNames"`
}

// IssueInfo is an issue as far as it is needed to maintain the record
// document.
type IssueInfo struct {
	Number int
	Title  string
	Body   string
}
