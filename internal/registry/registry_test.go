// ABOUTME: Tests for environment-based agent discovery and route key derivation
// ABOUTME: Covers grouping, ordering, skipped entries, and flatten determinism

package registry

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover_GroupsAndSorts(t *testing.T) {
	b := NewBuilder(nil)

	grouped := b.Discover(map[string]string{
		"AZURE_AI_AGENT_GPT4O_2":    "backend-B",
		"AZURE_AI_AGENT_GPT4O_1":    "backend-A",
		"AZURE_AI_AGENT_GPT4_30":    "backend-C",
		"IRRELEVANT_VAR":            "x",
		"AZURE_AI_PROJECT_ENDPOINT": "https://example.services.ai.azure.com/api/projects/p",
	})

	require.Len(t, grouped, 2)

	gpt4o := grouped["gpt-4o"]
	require.Len(t, gpt4o, 2)
	assert.Equal(t, "backend-A", gpt4o[0].AgentID)
	assert.Equal(t, 1, gpt4o[0].Index)
	assert.Equal(t, "backend-B", gpt4o[1].AgentID)
	assert.Equal(t, 2, gpt4o[1].Index)
	assert.Equal(t, "AZURE_AI_AGENT_GPT4O_1", gpt4o[0].SourceKey)

	gpt4 := grouped["gpt-4"]
	require.Len(t, gpt4, 1)
	assert.Equal(t, "backend-C", gpt4[0].AgentID)
	assert.Equal(t, 30, gpt4[0].Index)
}

func TestDiscover_SkipsEmptyValues(t *testing.T) {
	b := NewBuilder(nil)

	grouped := b.Discover(map[string]string{
		"AZURE_AI_AGENT_GPT4O_1": "backend-A",
		"AZURE_AI_AGENT_GPT4O_3": "",
	})

	require.Len(t, grouped["gpt-4o"], 1)
	assert.Equal(t, 1, grouped["gpt-4o"][0].Index)
}

func TestDiscover_IgnoresMalformedKeys(t *testing.T) {
	b := NewBuilder(nil)

	grouped := b.Discover(map[string]string{
		"AZURE_AI_AGENT_GPT4O":         "no index",
		"AZURE_AI_AGENT_gpt4o_1":       "lowercase token",
		"AZURE_AI_AGENT_GPT4O_1_EXTRA": "trailing text",
		"AZURE_AI_AGENT_GPT4O_1X":      "index not all digits",
		"XAZURE_AI_AGENT_GPT4O_1":      "prefix not anchored",
		"AZURE_AI_AGENT_":              "empty remainder",
	})

	assert.Empty(t, grouped)
}

func TestDiscover_GreedyModelToken(t *testing.T) {
	b := NewBuilder(nil)

	grouped := b.Discover(map[string]string{
		"AZURE_AI_AGENT_GPT4_TURBO_2": "backend-T",
	})

	require.Len(t, grouped["gpt-4-turbo"], 1)
	assert.Equal(t, 2, grouped["gpt-4-turbo"][0].Index)
}

func TestDiscover_UnknownTokenFallback(t *testing.T) {
	b := NewBuilder(nil)

	grouped := b.Discover(map[string]string{
		"AZURE_AI_AGENT_LLAMA3_70B_1": "backend-L",
	})

	require.Len(t, grouped["llama3-70b"], 1)
	assert.Equal(t, "backend-L", grouped["llama3-70b"][0].AgentID)
}

func TestDiscover_LeadingZeroIndex(t *testing.T) {
	b := NewBuilder(nil)

	grouped := b.Discover(map[string]string{
		"AZURE_AI_AGENT_GPT4O_007": "backend-A",
		"AZURE_AI_AGENT_GPT4O_2":   "backend-B",
	})

	group := grouped["gpt-4o"]
	require.Len(t, group, 2)
	assert.Equal(t, 2, group[0].Index)
	assert.Equal(t, 7, group[1].Index)
}

func TestDiscover_NonEmptyAgentIDs(t *testing.T) {
	b := NewBuilder(nil)

	grouped := b.Discover(map[string]string{
		"AZURE_AI_AGENT_GPT4O_1":      "backend-A",
		"AZURE_AI_AGENT_GPT4_TURBO_1": "backend-B",
		"AZURE_AI_AGENT_MISTRAL_1":    "",
	})

	for _, group := range grouped {
		for _, d := range group {
			assert.NotEmpty(t, d.AgentID)
		}
	}
}

func TestFlatten_RouteKeys(t *testing.T) {
	b := NewBuilder(nil)

	grouped := b.Discover(map[string]string{
		"AZURE_AI_AGENT_GPT4O_1": "backend-A",
		"AZURE_AI_AGENT_GPT4O_2": "backend-B",
		"AZURE_AI_AGENT_GPT4_30": "backend-C",
	})

	entries := Flatten(grouped)
	require.Len(t, entries, 3)

	routes := make([]string, len(entries))
	for i, e := range entries {
		routes[i] = e.Route
	}
	sort.Strings(routes)
	assert.Equal(t, []string{"gpt4_30", "gpt4o_1", "gpt4o_2"}, routes)
}

func TestFlatten_LengthMatchesGroups(t *testing.T) {
	b := NewBuilder(nil)

	grouped := b.Discover(map[string]string{
		"AZURE_AI_AGENT_GPT4O_1":       "a",
		"AZURE_AI_AGENT_GPT4O_2":       "b",
		"AZURE_AI_AGENT_GPT4_TURBO_1":  "c",
		"AZURE_AI_AGENT_GPT35_TURBO_1": "d",
	})

	total := 0
	for _, group := range grouped {
		total += len(group)
	}
	assert.Len(t, Flatten(grouped), total)
}

func TestFlatten_Deterministic(t *testing.T) {
	b := NewBuilder(nil)

	grouped := b.Discover(map[string]string{
		"AZURE_AI_AGENT_GPT4O_1":      "a",
		"AZURE_AI_AGENT_GPT4_TURBO_2": "b",
	})

	first := Flatten(grouped)
	second := Flatten(grouped)

	firstRoutes := map[string]string{}
	for _, e := range first {
		firstRoutes[e.Route] = e.AgentID
	}
	secondRoutes := map[string]string{}
	for _, e := range second {
		secondRoutes[e.Route] = e.AgentID
	}
	assert.Equal(t, firstRoutes, secondRoutes)
}

func TestRouteKey_StripsHyphensAndDots(t *testing.T) {
	assert.Equal(t, "gpt41mini_2", RouteKey("gpt-4.1-mini", 2))
	assert.Equal(t, "gpt4o_1", RouteKey("gpt-4o", 1))
	assert.Equal(t, "gpt35turbo_1", RouteKey("gpt-35-turbo", 1))
}

func TestSnapshot_ContainsProcessEnv(t *testing.T) {
	t.Setenv("AZURE_AI_AGENT_GPT4O_1", "asst_snapshot_test")

	snapshot := Snapshot()
	assert.Equal(t, "asst_snapshot_test", snapshot["AZURE_AI_AGENT_GPT4O_1"])
}
