package githubclt

import (
	"fmt"
	"strings"

	"github.com/shurcooL/githubv4"
)

// MergeMethod is the method used to merge a pull request.
type MergeMethod string

const (
	MergeMethodMerge  = MergeMethod(githubv4.PullRequestMergeMethodMerge)
	MergeMethodSquash = MergeMethod(githubv4.PullRequestMergeMethodSquash)
	MergeMethodRebase = MergeMethod(githubv4.PullRequestMergeMethodRebase)
)

// ParseMergeMethod converts a case-insensitive merge method name to a
// MergeMethod.
func ParseMergeMethod(s string) (MergeMethod, error) {
	switch m := MergeMethod(strings.ToUpper(strings.TrimSpace(s))); m {
	case MergeMethodMerge, MergeMethodSquash, MergeMethodRebase:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported merge method: %q, supported are: %s, %s, %s",
			s, MergeMethodMerge, MergeMethodSquash, MergeMethodRebase)
	}
}

func (m MergeMethod) toGraphQL() githubv4.PullRequestMergeMethod {
	return githubv4.PullRequestMergeMethod(m)
}
