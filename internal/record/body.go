package record

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// IssueTitle is the title of a newly created record issue.
	IssueTitle = "Update Branch Dashboard"
	// IssueBodyPrefix is the marker that identifies the record issue.
	IssueBodyPrefix = "<!-- lcdsmao/update-branch -->"

	fenceStart = "```json"
	fenceEnd   = "```"
)

// Body is the coordination state that is persisted between runs.
type Body struct {
	Editing                       bool `json:"editing"`
	PendingMergePullRequestNumber *int `json:"pendingMergePullRequestNumber,omitempty"`
}

// HasPending returns true if a pull request is waiting to be merged.
func (b *Body) HasPending() bool {
	return b.PendingMergePullRequestNumber != nil
}

func (b *Body) String() string {
	if b.PendingMergePullRequestNumber == nil {
		return fmt.Sprintf("editing: %t, pending merge pull request: none", b.Editing)
	}

	return fmt.Sprintf("editing: %t, pending merge pull request: #%d", b.Editing, *b.PendingMergePullRequestNumber)
}

// PendingPR returns a pointer to a copy of prNumber, it is a convenience
// function to set Body.PendingMergePullRequestNumber.
func PendingPR(prNumber int) *int {
	return &prNumber
}

// Encode renders body into the record issue body.
func Encode(body Body) string {
	data, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		// Body only consists of a bool and an int pointer
		panic(fmt.Sprintf("marshaling record body failed: %s", err))
	}

	return fmt.Sprintf(`
%s
This issue provides [lcdsmao/update-branch](https://github.com/lcdsmao/update-branch) status.

Status:

%s
%s
%s
`, IssueBodyPrefix, fenceStart, data, fenceEnd)
}

// Decode parses the status from the last json code block in raw.
// If raw does not contain a json code block or it can not be parsed, an empty
// Body is returned.
func Decode(raw string) Body {
	idx := strings.LastIndex(raw, fenceStart)
	if idx == -1 {
		return Body{}
	}

	content := raw[idx+len(fenceStart):]
	if end := strings.Index(content, fenceEnd); end != -1 {
		content = content[:end]
	}

	var result Body
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return Body{}
	}

	return result
}
