// Package foundry implements the HTTP client for Azure AI Foundry agents.
//
// One Client wraps one pre-provisioned agent instance. Ground runs the
// standard agent flow against the project endpoint:
//
//  1. POST /threads - create a conversation thread
//  2. POST /threads/{id}/messages - add the user query
//  3. POST /threads/{id}/runs - start a run with the agent
//  4. GET /threads/{id}/runs/{id} - poll until the run is terminal
//  5. GET /threads/{id}/messages - read the newest assistant message
//
// The answer text and its url_citation annotations become a Result. Each
// call uses a fresh thread, so a Client is safe for concurrent use and
// holds no per-request state.
package foundry
