package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/update-branch/internal/githubclt"
)

func newPR() *githubclt.PullRequestInfo {
	return &githubclt.PullRequestInfo{
		Number:                 1,
		ID:                     "PR_1",
		MergeStateStatus:       githubclt.MergeStateStatusClean,
		ApprovalCount:          2,
		PassedStatusCheckNames: []string{"build", "test"},
		LabelNames:             []string{"automerge", "backend"},
	}
}

func TestEmptyConditionAlwaysPasses(t *testing.T) {
	c, err := New(0, nil, nil, "")
	require.NoError(t, err)

	assert.True(t, c.IsStatusCheckPass(newPR()))
	assert.True(t, c.IsStatusCheckPass(&githubclt.PullRequestInfo{Number: 2}))
}

func TestIsStatusCheckPass(t *testing.T) {
	testcases := []struct {
		name      string
		approvals int
		checks    []string
		labels    []string
		expected  bool
	}{
		{name: "all_fulfilled", approvals: 2, checks: []string{"build", "test"}, labels: []string{"automerge"}, expected: true},
		{name: "approvals_below_threshold", approvals: 3, expected: false},
		{name: "approvals_equal_threshold", approvals: 2, expected: true},
		{name: "missing_status_check", checks: []string{"build", "deploy"}, expected: false},
		{name: "missing_label", labels: []string{"automerge", "frontend"}, expected: false},
		{name: "subset_of_labels", labels: []string{"backend"}, expected: true},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := New(tc.approvals, tc.checks, tc.labels, "")
			require.NoError(t, err)

			assert.Equal(t, tc.expected, c.IsStatusCheckPass(newPR()))
			assert.Equal(t, tc.expected, c.IsPendingMerge(newPR()))
		})
	}
}

func TestNilPullRequestDoesNotPass(t *testing.T) {
	c, err := New(0, nil, nil, "")
	require.NoError(t, err)

	assert.False(t, c.IsStatusCheckPass(nil))
}

func TestNegativeApprovalsAreRejected(t *testing.T) {
	_, err := New(-1, nil, nil, "")
	require.Error(t, err)
}

func TestFilterQuery(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	c, err := New(0, nil, nil, `any(.labelNames[]; . == "backend")`)
	require.NoError(t, err)
	assert.True(t, c.IsStatusCheckPass(newPR()))

	c, err = New(0, nil, nil, `.number > 1`)
	require.NoError(t, err)
	assert.False(t, c.IsStatusCheckPass(newPR()))
}

func TestFilterQueryNonBooleanResultDoesNotPass(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	c, err := New(0, nil, nil, `.number`)
	require.NoError(t, err)
	assert.False(t, c.IsStatusCheckPass(newPR()))
}

func TestInvalidFilterQuery(t *testing.T) {
	_, err := New(0, nil, nil, `.number >`)
	require.Error(t, err)
}
