package record

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/update-branch/internal/record/recordtest"
)

const (
	repoOwner = "testman"
	repo      = "repo"
	author    = "update-bot"
)

func newStore(t *testing.T, issues *recordtest.IssueService) *Store {
	t.Helper()
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	return NewStore(issues, repoOwner, repo, author)
}

func TestLoadCreatesIssue(t *testing.T) {
	issues := &recordtest.IssueService{Author: author}
	store := newStore(t, issues)

	issue, body, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, issue)

	assert.Equal(t, IssueTitle, issue.Title)
	assert.Equal(t, Body{}, body)
	assert.Equal(t, 1, issues.Len())
}

func TestLoadIgnoresIssuesOfOtherAuthorsAndWithoutMarker(t *testing.T) {
	issues := &recordtest.IssueService{Author: author}
	issues.AddIssue("someone", "fake", Encode(Body{Editing: true}))
	issues.AddIssue(author, "unrelated", "just an issue")
	nr := issues.AddIssue(author, IssueTitle, Encode(Body{PendingMergePullRequestNumber: PendingPR(9)}))

	store := newStore(t, issues)

	issue, body, err := store.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, nr, issue.Number)
	assert.Equal(t, Body{PendingMergePullRequestNumber: PendingPR(9)}, body)
	assert.Equal(t, 3, issues.Len())
}

func TestTryAcquireAndRelease(t *testing.T) {
	issues := &recordtest.IssueService{Author: author}
	nr := issues.AddIssue(author, IssueTitle, Encode(Body{PendingMergePullRequestNumber: PendingPR(5)}))
	store := newStore(t, issues)

	body, acquired, err := store.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, acquired)
	assert.Equal(t, Body{PendingMergePullRequestNumber: PendingPR(5)}, body)

	assert.Equal(t,
		Body{Editing: true, PendingMergePullRequestNumber: PendingPR(5)},
		Decode(issues.Issue(nr).Body),
	)

	// a second run must not get the lock
	other := NewStore(issues, repoOwner, repo, author)
	_, acquired, err = other.TryAcquire(context.Background())
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.Len(t, issues.Updates, 1)

	require.NoError(t, store.Release(context.Background(), Body{Editing: true}))
	assert.Equal(t, Body{}, Decode(issues.Issue(nr).Body))

	require.Error(t, store.Release(context.Background(), Body{}))
}

func TestTryAcquireWithUnparsableRecord(t *testing.T) {
	issues := &recordtest.IssueService{Author: author}
	nr := issues.AddIssue(author, IssueTitle, IssueBodyPrefix+"\n```json\n{garbage\n```")
	store := newStore(t, issues)

	body, acquired, err := store.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, acquired)
	assert.Equal(t, Body{}, body)
	assert.Equal(t, Body{Editing: true}, Decode(issues.Issue(nr).Body))
}

func TestTryAcquireWriteFailure(t *testing.T) {
	issues := &recordtest.IssueService{Author: author, FailUpdates: 1}
	store := newStore(t, issues)

	_, acquired, err := store.TryAcquire(context.Background())
	require.Error(t, err)
	assert.False(t, acquired)
}
