// Package registry builds the agent registry from environment variables.
//
// # Overview
//
// Deployment provisions one Azure AI Foundry agent per model instance and
// records its ID in an environment variable following the convention:
//
//	AZURE_AI_AGENT_<MODEL_TOKEN>_<INDEX> = <agent id>
//
// For example:
//
//	AZURE_AI_AGENT_GPT4O_1      = asst_abc
//	AZURE_AI_AGENT_GPT4O_2      = asst_def
//	AZURE_AI_AGENT_GPT4_TURBO_1 = asst_ghi
//
// The registry package parses that convention into a grouped, queryable
// structure without ever failing on malformed or unrelated variables.
//
// # Discovery
//
//	b := registry.NewBuilder(nil)
//	grouped := b.Discover(registry.Snapshot())
//	// {"gpt-4o": [{asst_abc,1}, {asst_def,2}], "gpt-4-turbo": [{asst_ghi,1}]}
//
// Model tokens resolve through a canonicalization table with a generic
// lowercase-and-hyphenate fallback, so unrecognized model families still
// produce usable names. The table can be extended with a TOML override file
// via LoadModelMap.
//
// # Route Keys
//
// Flatten derives one route key per instance by stripping hyphens and
// periods from the model name and appending the index:
//
//	gpt-4o, 1      -> gpt4o_1
//	gpt-4.1-mini, 2 -> gpt41mini_2
//
// Route keys address one specific backend instance in the HTTP API.
//
// # Immutability
//
// The registry is built once at startup from a snapshot of the environment
// and never mutated afterwards; the gateway copies it into its own serving
// tables and reads those concurrently without locking.
package registry
