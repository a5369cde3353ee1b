//go:build integration

package providers

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func integrationContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	t.Cleanup(cancel)
	return ctx
}

func integrationClient(t *testing.T) *OpenAI {
	t.Helper()
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		t.Skip("skipping: OPENAI_API_KEY not set")
	}
	o, err := NewOpenAI(OpenAIConfig{APIKey: key, BaseURL: os.Getenv("OPENAI_BASE_URL")})
	require.NoError(t, err)
	return o
}

// TestIntegration_IndexAndChain uploads a tiny diff into a scratch vector
// store, then asks two chained questions about it.
func TestIntegration_IndexAndChain(t *testing.T) {
	o := integrationClient(t)
	ctx := integrationContext(t)

	name := "diffchat-integration"
	cols, err := o.ListCollections(ctx, name, 100)
	require.NoError(t, err)
	var colID string
	if len(cols) > 0 {
		colID = cols[0].ID
	} else {
		c, err := o.CreateCollection(ctx, name)
		require.NoError(t, err)
		colID = c.ID
	}

	diff := "diff --git a/calc.go b/calc.go\n+func Add(a, b int) int { return a - b }\n"
	fileID, err := o.UploadFile(ctx, "integration.diff", []byte(diff))
	require.NoError(t, err)
	require.NoError(t, o.IndexFile(ctx, colID, fileID))

	model := os.Getenv("DIFFCHAT_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	first, err := o.CreateTurn(ctx, TurnRequest{
		Model:         model,
		Instructions:  "You review diffs. Answer in one sentence.",
		Input:         "What does Add do wrong?",
		CollectionIDs: []string{colID},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.NotEmpty(t, strings.TrimSpace(first.OutputText))

	second, err := o.CreateTurn(ctx, TurnRequest{
		Model:          model,
		Input:          "Repeat the function name you just discussed.",
		PreviousTurnID: first.ID,
	})
	require.NoError(t, err)
	assert.Contains(t, second.OutputText, "Add")
}
