package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadglass/internal/model"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadLeadsFile_JSONArray(t *testing.T) {
	path := writeTempFile(t, "leads.json", `[
		{"id": "lead-1", "company_name": "Acme Corp", "source": "referral"},
		{"company_name": "Globex", "source": "inbound"}
	]`)

	leads, err := readLeadsFile(path)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "lead-1", leads[0].ID)
	assert.Equal(t, "Acme Corp", leads[0].CompanyName)
	// Missing ids get generated.
	assert.NotEmpty(t, leads[1].ID)
}

func TestReadLeadsFile_JSONL(t *testing.T) {
	path := writeTempFile(t, "leads.jsonl",
		`{"company_name": "Acme Corp", "source": "event"}

{"company_name": "Initech", "source": "content", "timeline": "immediate"}
`)

	leads, err := readLeadsFile(path)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "Acme Corp", leads[0].CompanyName)
	assert.Equal(t, "immediate", leads[1].Timeline)
}

func TestReadLeadsFile_BadLine(t *testing.T) {
	path := writeTempFile(t, "leads.jsonl",
		`{"company_name": "Acme Corp"}
{broken json
`)

	_, err := readLeadsFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadLeadsFile_Missing(t *testing.T) {
	_, err := readLeadsFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestSortByPriority(t *testing.T) {
	results := []*model.Qualification{
		{LeadID: "c", Priority: 0.3},
		{LeadID: "a", Priority: 1.0},
		{LeadID: "b1", Priority: 0.6},
		{LeadID: "b2", Priority: 0.6},
	}

	sortByPriority(results)

	got := make([]string, len(results))
	for i, r := range results {
		got[i] = r.LeadID
	}
	// Ties keep their input order.
	assert.Equal(t, []string{"a", "b1", "b2", "c"}, got)
}

func TestParseWeights(t *testing.T) {
	weights, err := parseWeights("psi_intent=0.3, rho_authority=0.4")
	require.NoError(t, err)
	assert.InDelta(t, 0.3, weights["psi_intent"], 1e-9)
	assert.InDelta(t, 0.4, weights["rho_authority"], 1e-9)

	weights, err = parseWeights("")
	require.NoError(t, err)
	assert.Nil(t, weights)

	_, err = parseWeights("psi_intent")
	require.Error(t, err)

	_, err = parseWeights("psi_intent=abc")
	require.Error(t, err)
}
