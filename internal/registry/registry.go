// ABOUTME: Discovers pre-provisioned agent instances from environment variables
// ABOUTME: Groups them by model and derives a stable route key per instance

package registry

import (
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// EnvPrefix is the environment variable prefix that marks an agent binding.
// The full contract is AZURE_AI_AGENT_<MODEL_TOKEN>_<INDEX> where the model
// token is uppercase letters, digits and underscores, and the index is a
// decimal instance number scoped to the model.
const EnvPrefix = "AZURE_AI_AGENT_"

// keyPattern matches the complete naming convention, anchored at both ends.
// The model token group is greedy, so the trailing digits always become the
// index even when the token itself contains digits (GPT4_TURBO_2 parses as
// token GPT4_TURBO, index 2).
var keyPattern = regexp.MustCompile(`^AZURE_AI_AGENT_([A-Z0-9_]+)_([0-9]+)$`)

// Descriptor identifies one provisioned agent instance.
type Descriptor struct {
	// AgentID is the opaque backend identifier (e.g. "asst_abc123").
	AgentID string

	// Model is the canonical model name the instance was provisioned with.
	Model string

	// Index is the per-model instance ordinal. Uniqueness is scoped to the
	// model: gpt-4o and gpt-4 may each have an instance 1.
	Index int

	// SourceKey is the environment variable the descriptor came from,
	// kept for diagnostics only.
	SourceKey string
}

// RouteEntry is a flattened descriptor addressable by its route key.
type RouteEntry struct {
	AgentID string
	Model   string
	Index   int
	Route   string
}

// Builder converts raw environment key/value pairs into a grouped registry
// of agent descriptors. It holds the model canonicalization table; the
// discovery itself is pure and keeps no reference to its input.
type Builder struct {
	models *ModelMap
}

// NewBuilder creates a Builder using the given model map. A nil map falls
// back to the built-in table.
func NewBuilder(models *ModelMap) *Builder {
	if models == nil {
		models = DefaultModelMap()
	}
	return &Builder{models: models}
}

// Discover scans the environment snapshot for agent bindings and returns
// descriptors grouped by canonical model name, each group sorted ascending
// by instance index.
//
// Discovery never fails: keys that do not match the naming convention are
// ignored, and matching keys with empty values are silently skipped so that
// placeholder bindings do not produce dead registry entries.
func (b *Builder) Discover(environ map[string]string) map[string][]Descriptor {
	grouped := make(map[string][]Descriptor)

	for key, value := range environ {
		m := keyPattern.FindStringSubmatch(key)
		if m == nil || value == "" {
			continue
		}

		// The index digits always parse: the pattern guarantees [0-9]+
		// and leading zeros are accepted ("007" orders as 7).
		index, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}

		model := b.models.Resolve(m[1])
		grouped[model] = append(grouped[model], Descriptor{
			AgentID:   value,
			Model:     model,
			Index:     index,
			SourceKey: key,
		})
	}

	for model := range grouped {
		group := grouped[model]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Index < group[j].Index
		})
	}

	return grouped
}

// Flatten turns a grouped registry into a flat list of route entries.
// Within each model the stored (sorted) order is preserved; the order of
// models themselves is unspecified, so callers that need a deterministic
// listing must sort the result.
func Flatten(grouped map[string][]Descriptor) []RouteEntry {
	total := 0
	for _, group := range grouped {
		total += len(group)
	}

	entries := make([]RouteEntry, 0, total)
	for model, group := range grouped {
		for _, d := range group {
			entries = append(entries, RouteEntry{
				AgentID: d.AgentID,
				Model:   model,
				Index:   d.Index,
				Route:   RouteKey(model, d.Index),
			})
		}
	}
	return entries
}

// RouteKey derives the route key for one instance: the model name with
// hyphens and periods stripped, an underscore, then the index.
// "gpt-4.1-mini" with index 2 yields "gpt41mini_2".
func RouteKey(model string, index int) string {
	stripped := strings.NewReplacer("-", "", ".", "").Replace(model)
	return stripped + "_" + strconv.Itoa(index)
}

// Snapshot captures the current process environment as a key/value map,
// the input form Discover expects.
func Snapshot() map[string]string {
	environ := os.Environ()
	snapshot := make(map[string]string, len(environ))
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		snapshot[key] = value
	}
	return snapshot
}
