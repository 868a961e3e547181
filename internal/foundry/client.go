// ABOUTME: HTTP client for one Azure AI Foundry agent instance
// ABOUTME: Runs the thread/message/run flow and extracts grounded answers

package foundry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultAPIVersion = "2025-05-01"

// ErrRunFailed means the agent run reached a terminal state other than
// completed.
var ErrRunFailed = errors.New("agent run failed")

// Config describes one agent-instance client.
type Config struct {
	// Endpoint is the project endpoint, e.g.
	// "https://myfoundry.services.ai.azure.com/api/projects/myproject".
	Endpoint string

	// AgentID is the provisioned agent to run, e.g. "asst_abc123".
	AgentID string

	// Token is the bearer token sent on every request.
	Token string

	// APIVersion selects the agents REST API version.
	APIVersion string

	// RequestTimeout bounds one full Ground call end to end.
	RequestTimeout time.Duration

	// PollInterval is the delay between run status checks.
	PollInterval time.Duration

	// HTTPClient overrides the transport, used by tests.
	HTTPClient *http.Client
}

// Client talks to a single agent instance. It is safe for concurrent use;
// every Ground call runs on its own thread server-side.
type Client struct {
	endpoint       string
	agentID        string
	token          string
	apiVersion     string
	requestTimeout time.Duration
	pollInterval   time.Duration
	http           *http.Client
}

// Result is one grounded answer.
type Result struct {
	Query     string     `json:"query"`
	Content   string     `json:"content"`
	Citations []Citation `json:"citations"`
}

// Citation is one web source backing the answer.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// NewClient validates the configuration and returns a client for one agent
// instance. Construction fails on a missing or unparsable endpoint or an
// empty agent ID; a failure affects only this instance.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("project endpoint is required")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid project endpoint %q", cfg.Endpoint)
	}
	if cfg.AgentID == "" {
		return nil, errors.New("agent id is required")
	}

	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &Client{
		endpoint:       strings.TrimRight(cfg.Endpoint, "/"),
		agentID:        cfg.AgentID,
		token:          cfg.Token,
		apiVersion:     cfg.APIVersion,
		requestTimeout: cfg.RequestTimeout,
		pollInterval:   cfg.PollInterval,
		http:           httpClient,
	}, nil
}

// AgentID returns the backend identifier this client dispatches to.
func (c *Client) AgentID() string {
	return c.agentID
}

// Ground sends the query to the agent and waits for its grounded answer:
// create thread, post the user message, start a run, poll until the run is
// terminal, then read the newest assistant message.
func (c *Client) Ground(ctx context.Context, query string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	threadID, err := c.createThread(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating thread: %w", err)
	}

	if err := c.postMessage(ctx, threadID, query); err != nil {
		return nil, fmt.Errorf("posting message: %w", err)
	}

	runID, err := c.startRun(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("starting run: %w", err)
	}

	if err := c.waitForRun(ctx, threadID, runID); err != nil {
		return nil, err
	}

	content, citations, err := c.latestAnswer(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("reading answer: %w", err)
	}

	return &Result{Query: query, Content: content, Citations: citations}, nil
}

type threadResponse struct {
	ID string `json:"id"`
}

type runResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

type messageList struct {
	Data []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value       string `json:"value"`
				Annotations []struct {
					Type        string `json:"type"`
					URLCitation struct {
						URL   string `json:"url"`
						Title string `json:"title"`
					} `json:"url_citation"`
				} `json:"annotations"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

func (c *Client) createThread(ctx context.Context) (string, error) {
	var thread threadResponse
	if err := c.do(ctx, http.MethodPost, "/threads", map[string]any{}, &thread); err != nil {
		return "", err
	}
	if thread.ID == "" {
		return "", errors.New("thread response missing id")
	}
	return thread.ID, nil
}

func (c *Client) postMessage(ctx context.Context, threadID, query string) error {
	body := map[string]any{
		"role":    "user",
		"content": query,
	}
	return c.do(ctx, http.MethodPost, "/threads/"+threadID+"/messages", body, nil)
}

func (c *Client) startRun(ctx context.Context, threadID string) (string, error) {
	body := map[string]any{
		"assistant_id": c.agentID,
	}
	var run runResponse
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/runs", body, &run); err != nil {
		return "", err
	}
	if run.ID == "" {
		return "", errors.New("run response missing id")
	}
	return run.ID, nil
}

// waitForRun polls the run until it reaches a terminal status.
func (c *Client) waitForRun(ctx context.Context, threadID, runID string) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var run runResponse
		if err := c.do(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, &run); err != nil {
			return fmt.Errorf("polling run: %w", err)
		}

		switch run.Status {
		case "completed":
			return nil
		case "failed", "cancelled", "expired":
			if run.LastError != nil {
				return fmt.Errorf("%w: %s (%s)", ErrRunFailed, run.LastError.Message, run.Status)
			}
			return fmt.Errorf("%w: status %s", ErrRunFailed, run.Status)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for run: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// latestAnswer fetches the newest assistant message and extracts its text
// plus any url_citation annotations.
func (c *Client) latestAnswer(ctx context.Context, threadID string) (string, []Citation, error) {
	var list messageList
	if err := c.do(ctx, http.MethodGet, "/threads/"+threadID+"/messages?order=desc&limit=10", nil, &list); err != nil {
		return "", nil, err
	}

	for _, msg := range list.Data {
		if msg.Role != "assistant" {
			continue
		}

		var text strings.Builder
		var citations []Citation
		seen := make(map[string]bool)
		for _, part := range msg.Content {
			if part.Type != "text" {
				continue
			}
			text.WriteString(part.Text.Value)
			for _, ann := range part.Text.Annotations {
				if ann.Type != "url_citation" || ann.URLCitation.URL == "" {
					continue
				}
				if seen[ann.URLCitation.URL] {
					continue
				}
				seen[ann.URLCitation.URL] = true
				citations = append(citations, Citation{
					Title: ann.URLCitation.Title,
					URL:   ann.URLCitation.URL,
				})
			}
		}
		return text.String(), citations, nil
	}

	return "", nil, errors.New("no assistant message in thread")
}

// do issues one JSON request against the project endpoint, appending the
// api-version query parameter and decoding the response into out when
// out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	fullURL := c.endpoint + path + sep + "api-version=" + url.QueryEscape(c.apiVersion)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(detail)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
