package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/simplesurance/update-branch/internal/logfields"
	"github.com/simplesurance/update-branch/internal/record"
	"github.com/simplesurance/update-branch/internal/record/recordtest"
)

const (
	repoOwner = "testman"
	repo      = "repo"
	author    = "update-bot"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type staticIdentity struct {
	login string
	err   error
}

func (s *staticIdentity) ViewerLogin(context.Context) (string, error) {
	return s.login, s.err
}

type coordinatorFunc func(context.Context, record.Body) (record.Body, error)

func (f coordinatorFunc) Run(ctx context.Context, current record.Body) (record.Body, error) {
	return f(ctx, current)
}

func newRunner(t *testing.T, issues *recordtest.IssueService, coordinator Coordinator) *Runner {
	t.Helper()
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	return New(
		&staticIdentity{login: author},
		func(author string) record.Lock {
			return record.NewStore(issues, repoOwner, repo, author)
		},
		coordinator,
	)
}

func TestLockedRecordIsNotTouched(t *testing.T) {
	issues := &recordtest.IssueService{Author: author}
	nr := issues.AddIssue(author, record.IssueTitle, record.Encode(record.Body{Editing: true, PendingMergePullRequestNumber: record.PendingPR(3)}))
	before := issues.Issue(nr).Body

	r := newRunner(t, issues, coordinatorFunc(func(context.Context, record.Body) (record.Body, error) {
		t.Error("coordinator was called while record is locked")
		return record.Body{}, nil
	}))

	require.NoError(t, r.Run(context.Background()))
	assert.Empty(t, issues.Updates)
	assert.Equal(t, before, issues.Issue(nr).Body)
}

func TestNextStateIsStoredAndLockReleased(t *testing.T) {
	issues := &recordtest.IssueService{Author: author}
	nr := issues.AddIssue(author, record.IssueTitle, record.Encode(record.Body{PendingMergePullRequestNumber: record.PendingPR(3)}))

	var received record.Body
	r := newRunner(t, issues, coordinatorFunc(func(_ context.Context, current record.Body) (record.Body, error) {
		received = current

		// the lock must be held while the coordinator runs
		assert.True(t, record.Decode(issues.Issue(nr).Body).Editing)

		return record.Body{PendingMergePullRequestNumber: record.PendingPR(4)}, nil
	}))

	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, record.Body{PendingMergePullRequestNumber: record.PendingPR(3)}, received)
	assert.Equal(t, record.Body{PendingMergePullRequestNumber: record.PendingPR(4)}, record.Decode(issues.Issue(nr).Body))
	assert.Len(t, issues.Updates, 2)
}

func TestRecordIsCreatedOnFirstRun(t *testing.T) {
	issues := &recordtest.IssueService{Author: author}

	r := newRunner(t, issues, coordinatorFunc(func(_ context.Context, current record.Body) (record.Body, error) {
		assert.Equal(t, record.Body{}, current)
		return record.Body{}, nil
	}))

	require.NoError(t, r.Run(context.Background()))
	require.Equal(t, 1, issues.Len())

	issue := issues.Issue(1)
	assert.Equal(t, record.IssueTitle, issue.Title)
	assert.Equal(t, record.Body{}, record.Decode(issue.Body))
}

func TestUnparsableRecordIsTreatedAsFreshStart(t *testing.T) {
	issues := &recordtest.IssueService{Author: author}
	nr := issues.AddIssue(author, record.IssueTitle, record.IssueBodyPrefix+"\n```json\nnot json\n```")

	called := false
	r := newRunner(t, issues, coordinatorFunc(func(_ context.Context, current record.Body) (record.Body, error) {
		called = true
		assert.Equal(t, record.Body{}, current)
		return record.Body{}, nil
	}))

	require.NoError(t, r.Run(context.Background()))
	assert.True(t, called)
	assert.Equal(t, record.Body{}, record.Decode(issues.Issue(nr).Body))
}

func TestLockIsReleasedWhenCoordinatorFails(t *testing.T) {
	issues := &recordtest.IssueService{Author: author}
	nr := issues.AddIssue(author, record.IssueTitle, record.Encode(record.Body{PendingMergePullRequestNumber: record.PendingPR(3)}))

	coordinatorErr := errors.New("error mocked by TestLockIsReleasedWhenCoordinatorFails")
	r := newRunner(t, issues, coordinatorFunc(func(context.Context, record.Body) (record.Body, error) {
		return record.Body{PendingMergePullRequestNumber: record.PendingPR(4)}, coordinatorErr
	}))

	err := r.Run(context.Background())
	require.ErrorIs(t, err, coordinatorErr)

	assert.Equal(t, record.Body{}, record.Decode(issues.Issue(nr).Body))
}

func TestReleaseFailureIsReported(t *testing.T) {
	issues := &recordtest.IssueService{Author: author}
	nr := issues.AddIssue(author, record.IssueTitle, record.Encode(record.Body{}))

	coordinatorErr := errors.New("error mocked by TestReleaseFailureIsReported")
	r := newRunner(t, issues, coordinatorFunc(func(context.Context, record.Body) (record.Body, error) {
		issues.FailUpdates = 1
		return record.Body{}, coordinatorErr
	}))

	err := r.Run(context.Background())
	require.ErrorIs(t, err, coordinatorErr)
	assert.Contains(t, err.Error(), "releasing lock failed")

	assert.True(t, record.Decode(issues.Issue(nr).Body).Editing)
}

func TestIdentityFailureIsReturned(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	issues := &recordtest.IssueService{Author: author}
	identityErr := errors.New("error mocked by TestIdentityFailureIsReturned")

	r := New(
		&staticIdentity{err: identityErr},
		func(author string) record.Lock {
			return record.NewStore(issues, repoOwner, repo, author)
		},
		coordinatorFunc(func(context.Context, record.Body) (record.Body, error) {
			t.Error("coordinator was called")
			return record.Body{}, nil
		}),
	)

	require.ErrorIs(t, r.Run(context.Background()), identityErr)
	assert.Equal(t, 0, issues.Len())
}

func TestPanickingCoordinatorReleasesLockAndCountsFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	t.Cleanup(zap.ReplaceGlobals(zap.New(core)))

	issues := &recordtest.IssueService{Author: author}
	nr := issues.AddIssue(author, record.IssueTitle, record.Encode(record.Body{PendingMergePullRequestNumber: record.PendingPR(3)}))

	r := New(
		&staticIdentity{login: author},
		func(author string) record.Lock {
			return record.NewStore(issues, repoOwner, repo, author)
		},
		coordinatorFunc(func(context.Context, record.Body) (record.Body, error) {
			panic("coordinator failed")
		}),
	)

	failuresBefore := testutil.ToFloat64(metrics.runs.WithLabelValues(string(resultFailure)))
	successesBefore := testutil.ToFloat64(metrics.runs.WithLabelValues(string(resultSuccess)))

	assert.Panics(t, func() { _ = r.Run(context.Background()) })

	assert.Equal(t, record.Body{}, record.Decode(issues.Issue(nr).Body))
	assert.Equal(t, failuresBefore+1, testutil.ToFloat64(metrics.runs.WithLabelValues(string(resultFailure))))
	assert.Equal(t, successesBefore, testutil.ToFloat64(metrics.runs.WithLabelValues(string(resultSuccess))))

	assert.Zero(t, logs.FilterField(logfields.Event("run_finished")).Len())
	assert.Equal(t, 1, logs.FilterField(logfields.Event("run_aborted")).Len())
}
