// ABOUTME: Model token canonicalization table with a generic fallback
// ABOUTME: Supports optional TOML overrides for new model families

package registry

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

// tokenPattern is the allowed form for model tokens in override files,
// the same character class the env key pattern accepts.
var tokenPattern = regexp.MustCompile(`^[A-Z0-9_]+$`)

// ModelMap resolves environment model tokens to canonical model names.
type ModelMap struct {
	entries map[string]string
}

// DefaultModelMap returns the built-in token table. Tokens not present in
// the table resolve through the generic fallback in Resolve, so new model
// families work without a table update.
func DefaultModelMap() *ModelMap {
	return &ModelMap{entries: map[string]string{
		"GPT4O":       "gpt-4o",
		"GPT4O_MINI":  "gpt-4o-mini",
		"GPT4_TURBO":  "gpt-4-turbo",
		"GPT4":        "gpt-4",
		"GPT41":       "gpt-4.1",
		"GPT41_MINI":  "gpt-4.1-mini",
		"GPT35_TURBO": "gpt-35-turbo",
	}}
}

// modelMapFile is the on-disk override format:
//
//	[models]
//	GPT5_NANO = "gpt-5-nano"
type modelMapFile struct {
	Models map[string]string `toml:"models"`
}

// LoadModelMap reads a TOML override file and merges it over the built-in
// table. File entries win over built-in entries for the same token.
func LoadModelMap(path string) (*ModelMap, error) {
	var file modelMapFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("reading model map file: %w", err)
	}

	mm := DefaultModelMap()
	for token, name := range file.Models {
		if !tokenPattern.MatchString(token) {
			return nil, fmt.Errorf("invalid model token %q: must match [A-Z0-9_]+", token)
		}
		if name == "" {
			return nil, fmt.Errorf("model token %q has an empty name", token)
		}
		mm.entries[token] = name
	}
	return mm, nil
}

// Resolve maps a model token to its canonical model name. Unknown tokens
// fall back to lowercasing and hyphenating, so resolution never fails on a
// well-formed token.
func (m *ModelMap) Resolve(token string) string {
	if name, ok := m.entries[token]; ok {
		return name
	}
	return strings.ReplaceAll(strings.ToLower(token), "_", "-")
}
