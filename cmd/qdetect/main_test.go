package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--defaults"}, args...))
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestClassify_Args(t *testing.T) {
	out := run(t, "", "classify", "What", "is", "the", "capital", "of", "France?")
	assert.True(t, strings.HasPrefix(out, "QUESTION  factual"), out)
	assert.Contains(t, out, "0.97")
}

func TestClassify_StdinJSON(t *testing.T) {
	out := run(t, "How do I reset my password?\n\nThe sky is blue.\n", "classify", "--json")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	var first, second classifyLine
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))

	assert.True(t, first.Question)
	assert.Equal(t, "procedural", string(first.Analysis.QuestionType))
	assert.False(t, second.Question)
	assert.Nil(t, second.Analysis)
}

func TestClassify_QuestionsOnly(t *testing.T) {
	out := run(t, "Why is the sky blue?\nThe sky is blue.\n", "classify", "-q")
	assert.Contains(t, out, "Why is the sky blue?")
	assert.NotContains(t, out, "The sky is blue.")
}

func TestClassify_Split(t *testing.T) {
	out := run(t, "Why is the sky blue? The sky is blue.\n", "classify", "--split", "--json")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
}

func TestEval_DatasetFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.json")
	data := `[{"text":"What is the capital of France?","is_question":true,"type":"factual"},{"text":"The sky is blue.","is_question":false}]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	out := run(t, "", "eval", "--json", path)

	var report struct {
		Total    int     `json:"total"`
		Accuracy float64 `json:"accuracy"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1.0, report.Accuracy)
}
