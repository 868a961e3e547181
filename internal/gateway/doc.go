// Package gateway serves the grounding HTTP API.
//
// # Overview
//
// The gateway is the thin façade in front of the pre-provisioned agent
// pool. At startup it snapshots the environment, builds the registry, and
// constructs one backend client per discovered instance. The resulting
// serving tables (route key to agent, model to pool) are immutable for the
// lifetime of the process and are read concurrently by request handlers
// without synchronization.
//
// # HTTP API
//
//   - GET /health - Service status plus the live route keys
//   - GET /health/ready - 200 once at least one agent is registered
//   - GET /agents - Route, model, index, and agent ID for every instance
//   - POST /bing-grounding/{route} - Dispatch to one specific instance
//   - POST /bing-grounding?query=...&model=... - Dispatch to a random
//     instance of the model, falling back to the default model's pool
//
// # Error Handling
//
// A backend failure at request time is caught at the handler boundary and
// returned as a structured JSON body. The historical contract returns such
// failures with status 200; setting dispatch.strict_errors maps them to
// 502 instead. Unknown route keys return 404 with the list of route keys
// that are actually live.
//
// # Selection
//
// Model-based dispatch picks uniformly at random among the pool via the
// Selector interface; alternative strategies plug in without touching the
// handlers.
package gateway
