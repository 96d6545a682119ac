package record

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	bodies := []Body{
		{},
		{Editing: true},
		{Editing: false, PendingMergePullRequestNumber: PendingPR(42)},
		{Editing: true, PendingMergePullRequestNumber: PendingPR(1)},
	}

	for _, b := range bodies {
		t.Run(b.String(), func(t *testing.T) {
			assert.Equal(t, b, Decode(Encode(b)))
		})
	}
}

func TestEncodeContainsMarkerAndOneCodeBlock(t *testing.T) {
	rendered := Encode(Body{PendingMergePullRequestNumber: PendingPR(3)})

	assert.True(t, strings.HasPrefix(strings.TrimSpace(rendered), IssueBodyPrefix))
	assert.Equal(t, 1, strings.Count(rendered, fenceStart))
	assert.Contains(t, rendered, `"pendingMergePullRequestNumber": 3`)
}

func TestEncodeOmitsUnsetPendingPR(t *testing.T) {
	rendered := Encode(Body{})
	assert.NotContains(t, rendered, "pendingMergePullRequestNumber")
	assert.Contains(t, rendered, `"editing": false`)
}

func TestDecodeInvalidInputReturnsEmptyBody(t *testing.T) {
	inputs := map[string]string{
		"empty":           "",
		"garbage":         "lorem ipsum dolor",
		"json_no_fence":   `{"editing": true}`,
		"malformed_json":  "```json\n{\"editing\": tru\n```",
		"wrong_type":      "```json\n{\"editing\": \"yes\"}\n```",
		"other_lang_only": "```yaml\nediting: true\n```",
	}

	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, Body{}, Decode(in))
		})
	}
}

func TestDecodeUsesLastCodeBlock(t *testing.T) {
	raw := "```json\n{\"editing\": true}\n```\ntext\n```json\n{\"editing\": false, \"pendingMergePullRequestNumber\": 7}\n```\n"

	b := Decode(raw)
	assert.False(t, b.Editing)
	require.True(t, b.HasPending())
	assert.Equal(t, 7, *b.PendingMergePullRequestNumber)
}
