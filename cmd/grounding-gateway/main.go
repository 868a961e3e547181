// ABOUTME: Entry point for the grounding-gateway server
// ABOUTME: Discovers agent bindings from the environment and serves the HTTP API

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/seacliff/grounding-gateway/internal/config"
	"github.com/seacliff/grounding-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                   _ _
   __ _ _ __ ___  _   _ _ __   __| (_)_ __   __ _        __ ___      __
  / _' | '__/ _ \| | | | '_ \ / _' | | '_ \ / _' |_____ / _' \ \ /\ / /
 | (_| | | | (_) | |_| | | | | (_| | | | | | (_| |_____| (_| |\ V  V /
  \__, |_|  \___/ \__,_|_| |_|\__,_|_|_| |_|\__, |      \__, | \_/\_/
  |___/                                     |___/       |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: GROUNDING_CONFIG env var > XDG_CONFIG_HOME/grounding-gateway/config.yaml > ~/.config/grounding-gateway/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("GROUNDING_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "grounding-gateway", "config.yaml")
}

// loadConfig loads the config file if one exists, falling back to defaults
// so the gateway can run from environment variables alone.
func loadConfig() (*config.Config, string, error) {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config.Default(), "(defaults)", nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, configPath, err
	}
	return cfg, configPath, nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: grounding-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                       Start the gateway server")
		fmt.Println("  init                        Write a starter config file")
		fmt.Println("  health                      Check gateway health")
		fmt.Println("  agents                      List registered agents")
		fmt.Println("  query [--route R|--model M] TEXT")
		fmt.Println("                              Send a grounding query via the gateway")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "agents":
		err = runAgents(ctx)
	case "query":
		err = runQuery(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	cfg, configPath, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	endpoint := cfg.Project.Endpoint
	if endpoint == "" {
		endpoint = color.YellowString("(not set)")
	}
	fmt.Printf("Project:  %s\n", endpoint)
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Print("Tailscale: ")
		cyan.Println(cfg.Tailscale.Hostname)
	}
	fmt.Println()

	logger.Info("starting grounding-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"default_model", cfg.Agents.DefaultModel,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

const starterConfig = `# grounding-gateway configuration
# Generated by grounding-gateway init

server:
  http_addr: "0.0.0.0:8080"

project:
  # Defaults to the AZURE_AI_PROJECT_ENDPOINT / AZURE_AI_PROJECT_TOKEN
  # environment variables when left empty.
  endpoint: "${AZURE_AI_PROJECT_ENDPOINT}"
  token: "${AZURE_AI_PROJECT_TOKEN}"
  api_version: "2025-05-01"

agents:
  default_model: "gpt-4o"
  request_timeout: "2m"
  poll_interval: "2s"
  # model_map_path: "/etc/grounding-gateway/models.toml"

dispatch:
  # Backend failures historically return 200 with an error body.
  # Set true to surface them as 502 instead.
  strict_errors: false

logging:
  level: "info"
  format: "text"
`

func runInit() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(starterConfig), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Wrote %s\n", configPath)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	body, err := httpGet(ctx, fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr))
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	var health struct {
		Status       string   `json:"status"`
		AgentsLoaded int      `json:"agents_loaded"`
		Agents       []string `json:"agents"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		return fmt.Errorf("parsing health response: %w", err)
	}

	fmt.Printf("%s (%d agents)\n", health.Status, health.AgentsLoaded)
	for _, route := range health.Agents {
		fmt.Printf("  %s\n", route)
	}
	return nil
}

func runAgents(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	body, err := httpGet(ctx, fmt.Sprintf("http://%s/agents", cfg.Server.HTTPAddr))
	if err != nil {
		return fmt.Errorf("listing agents failed: %w", err)
	}

	var list struct {
		Total  int `json:"total"`
		Agents []struct {
			Route   string `json:"route"`
			Model   string `json:"model"`
			Index   int    `json:"index"`
			AgentID string `json:"agent_id"`
		} `json:"agents"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return fmt.Errorf("parsing agents response: %w", err)
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	fmt.Printf("%d agents\n", list.Total)
	for _, a := range list.Agents {
		cyan.Printf("  %s", a.Route)
		gray.Printf("  model=%s agent_id=%s\n", a.Model, a.AgentID)
	}
	return nil
}

// runQuery sends one grounding query through the gateway, either to a
// specific route or via model-based dispatch.
func runQuery(ctx context.Context) error {
	var route, model string
	var words []string

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--route":
			if i+1 >= len(args) {
				return fmt.Errorf("--route requires a value")
			}
			route = args[i+1]
			i++
		case strings.HasPrefix(arg, "--route="):
			route = strings.TrimPrefix(arg, "--route=")
		case arg == "--model":
			if i+1 >= len(args) {
				return fmt.Errorf("--model requires a value")
			}
			model = args[i+1]
			i++
		case strings.HasPrefix(arg, "--model="):
			model = strings.TrimPrefix(arg, "--model=")
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			words = append(words, arg)
		}
	}

	queryText := strings.TrimSpace(strings.Join(words, " "))
	if queryText == "" {
		return fmt.Errorf("query text is required")
	}
	if route != "" && model != "" {
		return fmt.Errorf("--route and --model are mutually exclusive")
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var resp *http.Response
	if route != "" {
		payload, _ := json.Marshal(map[string]string{"query": queryText})
		target := fmt.Sprintf("http://%s/bing-grounding/%s", cfg.Server.HTTPAddr, route)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(string(payload)))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err = http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
	} else {
		params := url.Values{"query": {queryText}}
		if model != "" {
			params.Set("model", model)
		}
		target := fmt.Sprintf("http://%s/bing-grounding?%s", cfg.Server.HTTPAddr, params.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		resp, err = http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	return printAnswer(body)
}

// printAnswer renders a dispatch response, or its error body, for humans.
func printAnswer(body []byte) error {
	var answer struct {
		Content   string `json:"content"`
		Citations []struct {
			Title string `json:"title"`
			URL   string `json:"url"`
		} `json:"citations"`
		Metadata struct {
			AgentRoute string `json:"agent_route"`
			Model      string `json:"model"`
		} `json:"metadata"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &answer); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	if answer.Error != "" {
		return fmt.Errorf("%s: %s", answer.Error, answer.Message)
	}

	fmt.Println(answer.Content)
	if len(answer.Citations) > 0 {
		fmt.Println()
		gray := color.New(color.FgHiBlack)
		for i, c := range answer.Citations {
			gray.Printf("  [%d] %s  %s\n", i+1, c.Title, c.URL)
		}
	}

	gray := color.New(color.FgHiBlack)
	gray.Printf("\nserved by %s (%s)\n", answer.Metadata.AgentRoute, answer.Metadata.Model)
	return nil
}

// httpGet issues one GET request and returns the body on a 200 response.
func httpGet(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
