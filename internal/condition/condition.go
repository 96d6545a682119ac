// Package condition evaluates if pull requests are ready to be merged.
package condition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
	"go.uber.org/zap"

	"github.com/simplesurance/update-branch/internal/githubclt"
	"github.com/simplesurance/update-branch/internal/logfields"
)

const loggerName = "condition"

// Condition defines the requirements a pull request must fulfill to be
// merged. It is immutable after creation.
type Condition struct {
	RequiredApprovals    int      `json:"requiredApprovals"`
	RequiredStatusChecks []string `json:"requiredStatusChecks"`
	RequiredLabels       []string `json:"requiredLabels"`

	filterQuery *gojq.Query
	logger      *zap.Logger
}

// New creates a Condition.
// filterQuery is an optional jq expression. When it is not empty it is
// evaluated for the JSON representation of a githubclt.PullRequestInfo and
// must return exactly one boolean.
func New(requiredApprovals int, requiredStatusChecks, requiredLabels []string, filterQuery string) (*Condition, error) {
	if requiredApprovals < 0 {
		return nil, fmt.Errorf("required approvals is %d, must be >=0", requiredApprovals)
	}

	c := Condition{
		RequiredApprovals:    requiredApprovals,
		RequiredStatusChecks: requiredStatusChecks,
		RequiredLabels:       requiredLabels,
		logger:               zap.L().Named(loggerName),
	}

	if filterQuery != "" {
		q, err := gojq.Parse(filterQuery)
		if err != nil {
			return nil, fmt.Errorf("parsing filter query failed: %w", err)
		}

		c.filterQuery = q
	}

	return &c, nil
}

// IsStatusCheckPass returns true if pr has at least RequiredApprovals
// approvals, all RequiredStatusChecks passed, all RequiredLabels are applied
// and the filter query, if one is defined, evaluates to true.
// Empty requirements are always fulfilled.
func (c *Condition) IsStatusCheckPass(pr *githubclt.PullRequestInfo) bool {
	if pr == nil {
		return false
	}

	if pr.ApprovalCount < c.RequiredApprovals {
		return false
	}

	if !containsAll(pr.PassedStatusCheckNames, c.RequiredStatusChecks) {
		return false
	}

	if !containsAll(pr.LabelNames, c.RequiredLabels) {
		return false
	}

	if c.filterQuery == nil {
		return true
	}

	match, err := c.evalFilter(pr)
	if err != nil {
		c.logger.Warn(
			"evaluating filter query failed, pull request does not match",
			logfields.Event("filter_query_evaluation_failed"),
			logfields.PullRequest(pr.Number),
			zap.String("filter_query", c.filterQuery.String()),
			zap.Error(err),
		)

		return false
	}

	return match
}

// IsPendingMerge returns true if a pull request that was chosen for merging
// in a previous run still fulfills the condition.
func (c *Condition) IsPendingMerge(pr *githubclt.PullRequestInfo) bool {
	return c.IsStatusCheckPass(pr)
}

func containsAll(have, required []string) bool {
	if len(required) == 0 {
		return true
	}

	set := make(map[string]struct{}, len(have))
	for _, s := range have {
		set[s] = struct{}{}
	}

	for _, s := range required {
		if _, exists := set[s]; !exists {
			return false
		}
	}

	return true
}

func (c *Condition) evalFilter(pr *githubclt.PullRequestInfo) (bool, error) {
	data, err := json.Marshal(pr)
	if err != nil {
		return false, fmt.Errorf("marshaling pull request failed: %w", err)
	}

	var prUn any
	if err := json.Unmarshal(data, &prUn); err != nil {
		return false, fmt.Errorf("unmarshaling json failed: %w", err)
	}

	iter := c.filterQuery.RunWithContext(context.Background(), prUn)

	var results []any
	for {
		res, ok := iter.Next()
		if !ok {
			break
		}

		if err, isErr := res.(error); isErr {
			return false, err
		}

		results = append(results, res)
	}

	if len(results) != 1 {
		return false, fmt.Errorf("query returned %d results, expected 1", len(results))
	}

	b, ok := results[0].(bool)
	if !ok {
		return false, errors.New("query returned a non-boolean result")
	}

	return b, nil
}

func (c *Condition) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "required approvals: %d, required status checks: [%s], required labels: [%s]",
		c.RequiredApprovals,
		strings.Join(c.RequiredStatusChecks, ", "),
		strings.Join(c.RequiredLabels, ", "),
	)

	if c.filterQuery != nil {
		fmt.Fprintf(&sb, ", filter query: %q", c.filterQuery.String())
	}

	return sb.String()
}
