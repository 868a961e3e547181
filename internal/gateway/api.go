// ABOUTME: HTTP API handlers for the grounding façade
// ABOUTME: Health, agent listing, and per-route and per-model query dispatch

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/seacliff/grounding-gateway/internal/foundry"
)

// QueryRequest is the JSON request body for POST /bing-grounding/{route}.
type QueryRequest struct {
	Query string `json:"query"`
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status       string   `json:"status"`
	Service      string   `json:"service"`
	AgentsLoaded int      `json:"agents_loaded"`
	Agents       []string `json:"agents"`
}

// AgentInfoResponse is one entry in the GET /agents listing.
type AgentInfoResponse struct {
	Route   string `json:"route"`
	Model   string `json:"model"`
	Index   int    `json:"index"`
	AgentID string `json:"agent_id"`
}

// ListAgentsResponse is the JSON response for GET /agents.
type ListAgentsResponse struct {
	Total  int                 `json:"total"`
	Agents []AgentInfoResponse `json:"agents"`
}

// DispatchMetadata identifies which agent served a query. For model-based
// dispatch the Model field carries the model the caller asked for, even
// when the fallback pool actually served the request; this mirrors the
// historical contract.
type DispatchMetadata struct {
	AgentRoute string `json:"agent_route"`
	Model      string `json:"model"`
	AgentID    string `json:"agent_id"`
}

// DispatchResponse is the backend answer augmented with routing metadata.
type DispatchResponse struct {
	Query     string             `json:"query"`
	Content   string             `json:"content"`
	Citations []foundry.Citation `json:"citations"`
	Metadata  DispatchMetadata   `json:"metadata"`
}

// DispatchError is the structured payload for a failed backend call.
type DispatchError struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	AgentRoute string `json:"agent_route"`
}

// NotFoundError is the payload for an unknown route key, enumerating the
// routes that are actually live right now.
type NotFoundError struct {
	Error     string   `json:"error"`
	Message   string   `json:"message"`
	Available []string `json:"available"`
}

// handleHealth handles GET /health requests. It always reports ok once the
// server is up; a zero-agent pool is visible in the counts, not the status.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	g.writeJSON(w, http.StatusOK, HealthResponse{
		Status:       "ok",
		Service:      "grounding-gateway",
		AgentsLoaded: len(g.byRoute),
		Agents:       g.routes,
	})
}

// handleReady handles GET /health/ready. Ready means at least one agent
// was registered at startup.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if len(g.byRoute) == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no agents registered"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d agents)", len(g.byRoute))
}

// handleListAgents handles GET /agents requests. Entries come back sorted
// by model then index.
func (g *Gateway) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	agents := make([]AgentInfoResponse, 0, len(g.byRoute))
	for _, model := range g.modelNames() {
		for _, a := range g.byModel[model] {
			agents = append(agents, AgentInfoResponse{
				Route:   "/bing-grounding/" + a.Route,
				Model:   a.Model,
				Index:   a.Index,
				AgentID: a.AgentID,
			})
		}
	}

	g.writeJSON(w, http.StatusOK, ListAgentsResponse{
		Total:  len(agents),
		Agents: agents,
	})
}

// handleGroundRoute handles POST /bing-grounding/{route}: dispatch to one
// specific agent instance addressed by its route key.
func (g *Gateway) handleGroundRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	route := strings.TrimPrefix(r.URL.Path, "/bing-grounding/")
	if route == "" || strings.Contains(route, "/") {
		g.sendJSONError(w, http.StatusNotFound, "unknown path")
		return
	}

	req, err := parseQueryRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	agent, ok := g.byRoute[route]
	if !ok {
		g.writeJSON(w, http.StatusNotFound, NotFoundError{
			Error:     "not_found",
			Message:   fmt.Sprintf("agent '%s' not found", route),
			Available: g.routes,
		})
		return
	}

	// Direct dispatch reports the agent's own model in metadata.
	g.dispatch(r.Context(), w, agent, req.Query, agent.Model)
}

// handleGroundModel handles POST /bing-grounding?query=...&model=...: pick
// an instance for the requested model, falling back to the default model's
// pool when the requested pool is empty.
func (g *Gateway) handleGroundModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query().Get("query")
	if query == "" {
		g.sendJSONError(w, http.StatusBadRequest, "query parameter is required")
		return
	}

	model := r.URL.Query().Get("model")
	if model == "" {
		model = g.config.Agents.DefaultModel
	}

	pool := g.byModel[model]
	if len(pool) == 0 {
		fallback := g.config.Agents.DefaultModel
		pool = g.byModel[fallback]
		if len(pool) > 0 {
			g.logger.Warn("no agents for requested model, using fallback pool",
				"requested_model", model,
				"fallback_model", fallback,
			)
		}
	}

	if len(pool) == 0 {
		g.writeJSON(w, http.StatusNotFound, NotFoundError{
			Error:     "no_agents",
			Message:   fmt.Sprintf("no agents available for model '%s' or fallback '%s'", model, g.config.Agents.DefaultModel),
			Available: g.routes,
		})
		return
	}

	agent := g.selector.Pick(pool)

	// Metadata carries the model the caller asked for, not the model of
	// the pool that served it. Preserved from the original contract.
	g.dispatch(r.Context(), w, agent, query, model)
}

// dispatch relays one query to the chosen backend and writes the response.
// Backend failures become a structured JSON error at this boundary; they
// are never allowed to escape as an unhandled fault. The historical
// behavior returns them with status 200, switchable to real status codes
// via dispatch.strict_errors.
func (g *Gateway) dispatch(ctx context.Context, w http.ResponseWriter, agent *Agent, query, metaModel string) {
	requestID := uuid.NewString()
	logger := g.logger.With("request_id", requestID, "route", agent.Route)

	logger.Info("dispatching query", "model", agent.Model, "agent_id", agent.AgentID)

	result, err := agent.backend.Ground(ctx, query)
	if err != nil {
		logger.Error("backend call failed", "error", err)

		status := http.StatusOK
		if g.config.Dispatch.StrictErrors {
			status = http.StatusBadGateway
		}
		g.writeJSON(w, status, DispatchError{
			Error:      "processing_error",
			Message:    err.Error(),
			AgentRoute: agent.Route,
		})
		return
	}

	logger.Info("query completed", "citations", len(result.Citations))

	g.writeJSON(w, http.StatusOK, DispatchResponse{
		Query:     result.Query,
		Content:   result.Content,
		Citations: result.Citations,
		Metadata: DispatchMetadata{
			AgentRoute: agent.Route,
			Model:      metaModel,
			AgentID:    agent.AgentID,
		},
	})
}

// modelNames returns the pool's model names sorted ascending.
func (g *Gateway) modelNames() []string {
	names := make([]string, 0, len(g.byModel))
	for model := range g.byModel {
		names = append(names, model)
	}
	// Keep /agents output deterministic even though the registry itself
	// promises no model ordering.
	sort.Strings(names)
	return names
}

// parseQueryRequest parses and validates a QueryRequest from the given reader.
func parseQueryRequest(r io.Reader) (*QueryRequest, error) {
	var req QueryRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.New("query is required")
	}
	return &req, nil
}

// writeJSON writes a JSON response body with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a minimal JSON error body with the given status.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
