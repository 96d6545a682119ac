// Package recordtest provides an in-memory record.IssueService for tests.
package recordtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/simplesurance/update-branch/internal/githubclt"
)

type issue struct {
	githubclt.IssueInfo
	author string
}

// IssueService is an in-memory GitHub issue tracker of a single repository.
type IssueService struct {
	// Author is used as creator for issues created via CreateIssue.
	Author string
	// FailUpdates makes UpdateIssueBody fail, when it is greater 0 and
	// decrements it.
	FailUpdates int

	lock   sync.Mutex
	issues []*issue
	// Updates contains the bodies passed to UpdateIssueBody in call order.
	Updates []string
}

// AddIssue stores an issue and returns its number.
func (s *IssueService) AddIssue(author, title, body string) int {
	s.lock.Lock()
	defer s.lock.Unlock()

	nr := len(s.issues) + 1
	s.issues = append(s.issues, &issue{
		IssueInfo: githubclt.IssueInfo{Number: nr, Title: title, Body: body},
		author:    author,
	})

	return nr
}

// Issue returns the issue with the given number or nil.
func (s *IssueService) Issue(nr int) *githubclt.IssueInfo {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, is := range s.issues {
		if is.Number == nr {
			info := is.IssueInfo
			return &info
		}
	}

	return nil
}

// Len returns the number of stored issues.
func (s *IssueService) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return len(s.issues)
}

func (s *IssueService) FindCreatedIssueWithBodyPrefix(_ context.Context, _, _, author, prefix string) (*githubclt.IssueInfo, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, is := range s.issues {
		if is.author == author && strings.HasPrefix(strings.TrimSpace(is.Body), prefix) {
			info := is.IssueInfo
			return &info, nil
		}
	}

	return nil, nil
}

func (s *IssueService) CreateIssue(_ context.Context, _, _, title string) (*githubclt.IssueInfo, error) {
	nr := s.AddIssue(s.Author, title, "")

	return &githubclt.IssueInfo{Number: nr, Title: title}, nil
}

func (s *IssueService) UpdateIssueBody(_ context.Context, _, _ string, issueNumber int, body string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.FailUpdates > 0 {
		s.FailUpdates--
		return fmt.Errorf("updating issue #%d failed: simulated error", issueNumber)
	}

	for _, is := range s.issues {
		if is.Number == issueNumber {
			is.Body = body
			s.Updates = append(s.Updates, body)
			return nil
		}
	}

	return fmt.Errorf("issue #%d does not exist", issueNumber)
}
