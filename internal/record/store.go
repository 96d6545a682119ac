// Package record persists the coordination state in a GitHub issue.
//
// The issue is used as a cooperative lock and as memory for the pull request
// whose branch update and auto-merge is in progress. The lock has no lease, a
// run that terminates without releasing it leaves the record locked until the
// issue is edited manually.
package record

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/update-branch/internal/githubclt"
	"github.com/simplesurance/update-branch/internal/logfields"
)

const loggerName = "record_store"

// IssueService provides access to GitHub issues.
type IssueService interface {
	FindCreatedIssueWithBodyPrefix(ctx context.Context, owner, repo, author, prefix string) (*githubclt.IssueInfo, error)
	CreateIssue(ctx context.Context, owner, repo, title string) (*githubclt.IssueInfo, error)
	UpdateIssueBody(ctx context.Context, owner, repo string, issueNumber int, body string) error
}

// Lock is a single-slot mutex for the coordination state.
type Lock interface {
	// TryAcquire returns the current state and if the lock was acquired.
	// When the lock is held by someone else, false and a nil error is
	// returned.
	TryAcquire(ctx context.Context) (Body, bool, error)
	// Release stores next and releases the lock.
	Release(ctx context.Context, next Body) error
}

// Store maintains the record issue of a repository. The issue is searched
// between the issues created by author.
type Store struct {
	clt    IssueService
	owner  string
	repo   string
	author string
	logger *zap.Logger

	issue *githubclt.IssueInfo
}

var (
	_ Lock         = &Store{}
	_ IssueService = &githubclt.Client{}
)

func NewStore(clt IssueService, owner, repo, author string) *Store {
	return &Store{
		clt:    clt,
		owner:  owner,
		repo:   repo,
		author: author,
		logger: zap.L().Named(loggerName).With(
			logfields.RepositoryOwner(owner),
			logfields.Repository(repo),
			logfields.Login(author),
		),
	}
}

// Find returns the record issue.
// If it does not exist, nil is returned.
func (s *Store) Find(ctx context.Context) (*githubclt.IssueInfo, error) {
	issue, err := s.clt.FindCreatedIssueWithBodyPrefix(ctx, s.owner, s.repo, s.author, IssueBodyPrefix)
	if err != nil {
		return nil, fmt.Errorf("searching record issue failed: %w", err)
	}

	return issue, nil
}

// Create creates a new record issue with an empty body.
func (s *Store) Create(ctx context.Context) (*githubclt.IssueInfo, error) {
	issue, err := s.clt.CreateIssue(ctx, s.owner, s.repo, IssueTitle)
	if err != nil {
		return nil, fmt.Errorf("creating record issue failed: %w", err)
	}

	s.logger.Info(
		"record issue created",
		logfields.Event("record_issue_created"),
		logfields.Issue(issue.Number),
	)

	return issue, nil
}

// Write replaces the body of issue with the rendered body.
func (s *Store) Write(ctx context.Context, issue *githubclt.IssueInfo, body Body) error {
	rendered := Encode(body)

	if err := s.clt.UpdateIssueBody(ctx, s.owner, s.repo, issue.Number, rendered); err != nil {
		return fmt.Errorf("updating record issue #%d failed: %w", issue.Number, err)
	}

	issue.Body = rendered

	s.logger.Debug(
		"record issue updated",
		logfields.Event("record_issue_updated"),
		logfields.Issue(issue.Number),
		zap.Stringer("record", &body),
	)

	return nil
}

// Load returns the record issue and the decoded state. The issue is created if
// it does not exist.
func (s *Store) Load(ctx context.Context) (*githubclt.IssueInfo, Body, error) {
	issue, err := s.Find(ctx)
	if err != nil {
		return nil, Body{}, err
	}

	if issue == nil {
		issue, err = s.Create(ctx)
		if err != nil {
			return nil, Body{}, err
		}
	}

	return issue, Decode(issue.Body), nil
}

// TryAcquire loads the record, if it is not locked, it is stored with
// Editing set to true.
func (s *Store) TryAcquire(ctx context.Context) (Body, bool, error) {
	issue, body, err := s.Load(ctx)
	if err != nil {
		return Body{}, false, err
	}

	logger := s.logger.With(logfields.Issue(issue.Number), zap.Stringer("record", &body))

	if body.Editing {
		logger.Info(
			"other run is editing the record",
			logfields.Event("record_locked"),
		)

		return body, false, nil
	}

	locked := body
	locked.Editing = true
	if err := s.Write(ctx, issue, locked); err != nil {
		return Body{}, false, fmt.Errorf("acquiring lock failed: %w", err)
	}

	s.issue = issue

	logger.Debug("record lock acquired", logfields.Event("record_lock_acquired"))

	return body, true, nil
}

// Release stores next with Editing set to false.
func (s *Store) Release(ctx context.Context, next Body) error {
	if s.issue == nil {
		return errors.New("lock is not held")
	}

	next.Editing = false
	if err := s.Write(ctx, s.issue, next); err != nil {
		return fmt.Errorf("releasing lock failed: %w", err)
	}

	s.issue = nil

	s.logger.Debug("record lock released", logfields.Event("record_lock_released"))

	return nil
}
