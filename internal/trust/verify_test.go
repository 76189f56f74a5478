package trust

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_AllMatched(t *testing.T) {
	names := []string{"nose", "requests"}
	expected := map[string]string{"nose": "aaa", "requests": "bbb"}
	computed := map[string]string{"nose": "aaa", "requests": "bbb"}

	results := Evaluate(names, expected, computed)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, Matched, r.Verdict)
	}
}

func TestEvaluate_Mismatch(t *testing.T) {
	names := []string{"nose"}
	results := Evaluate(names,
		map[string]string{"nose": "expected-digest"},
		map[string]string{"nose": "other-digest"},
	)

	require.Len(t, results, 1)
	assert.Equal(t, Mismatched, results[0].Verdict)
	assert.Equal(t, "nose", results[0].Name)
	assert.Equal(t, "expected-digest", results[0].Expected)
	assert.Equal(t, "other-digest", results[0].Got)
}

func TestEvaluate_Unexpected(t *testing.T) {
	// No annotation at all: classified unexpected no matter what was fetched.
	results := Evaluate([]string{"nose"},
		map[string]string{},
		map[string]string{"nose": "whatever"},
	)

	require.Len(t, results, 1)
	assert.Equal(t, Unexpected, results[0].Verdict)
	assert.Empty(t, results[0].Expected)
	assert.Equal(t, "whatever", results[0].Got)
}

func TestEvaluate_OrderPreserved(t *testing.T) {
	names := []string{"zeta", "alpha", "mid"}
	expected := map[string]string{"zeta": "1", "alpha": "x", "mid": "3"}
	computed := map[string]string{"zeta": "1", "alpha": "y", "mid": "3"}

	results := Evaluate(names, expected, computed)
	require.Len(t, results, 3)
	assert.Equal(t, "zeta", results[0].Name)
	assert.Equal(t, "alpha", results[1].Name)
	assert.Equal(t, "mid", results[2].Name)
	assert.Equal(t, Mismatched, results[1].Verdict)
}

func TestEvaluate_ExactStringComparison(t *testing.T) {
	// Case differences are mismatches; nothing is normalized.
	results := Evaluate([]string{"pkg"},
		map[string]string{"pkg": "AbC"},
		map[string]string{"pkg": "abc"},
	)
	require.Len(t, results, 1)
	assert.Equal(t, Mismatched, results[0].Verdict)
}

func TestVerdict_String(t *testing.T) {
	assert.Equal(t, "matched", Matched.String())
	assert.Equal(t, "mismatched", Mismatched.String())
	assert.Equal(t, "unexpected", Unexpected.String())
}
