package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// CustomTool is an agent-authored external-data integration (spec.md §4.G
// `defineTool`). The original source let the agent submit arbitrary Python
// that ran in a restricted interpreter (original_source/raspi/voice/
// custom_tools.py); spec.md §9 directs this reimplementation away from
// embedding any general-purpose interpreter, so a custom tool here is a
// declarative HTTP fetch template instead of executable code — the agent
// supplies a URL template, method, and a result path, and the template is
// interpolated and fetched the same way a preset API is, not evaluated.
type CustomTool struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	URL         string            `json:"url"`
	Method      string            `json:"method,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	ResultPath  string            `json:"result_path,omitempty"`
}

// CustomToolRegistry stores and executes custom tools. It implements
// scheduler.ToolExecutor so data sources can poll a custom tool the same
// way they poll a preset API.
type CustomToolRegistry struct {
	mu      sync.RWMutex
	tools   map[string]CustomTool
	client  *http.Client
	timeout time.Duration
}

// NewCustomToolRegistry constructs an empty registry with the given
// default per-call timeout (spec.md §5 "custom tool ... share a default
// 30s timeout").
func NewCustomToolRegistry(client *http.Client, timeout time.Duration) *CustomToolRegistry {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CustomToolRegistry{tools: make(map[string]CustomTool), client: client, timeout: timeout}
}

// Define registers or replaces a custom tool.
func (r *CustomToolRegistry) Define(t CustomTool) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("custom tool name must not be empty")
	}
	if strings.TrimSpace(t.URL) == "" {
		return fmt.Errorf("custom tool %q: url is required", t.Name)
	}
	if t.Method == "" {
		t.Method = http.MethodGet
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
	return nil
}

// Get returns a custom tool by name.
func (r *CustomToolRegistry) Get(name string) (CustomTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every defined custom tool (listAPIs-adjacent introspection).
func (r *CustomToolRegistry) List() []CustomTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CustomTool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// CallTool fetches the named custom tool's URL (after interpolating args
// into the URL template) and extracts ResultPath from the JSON response,
// implementing scheduler.ToolExecutor.
func (r *CustomToolRegistry) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown custom tool %q", name)
	}

	resolvedURL := interpolateTemplate(t.URL, args)
	if err := validateURLForSSRF(resolvedURL); err != nil {
		return nil, fmt.Errorf("custom tool %q: %w", name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, t.Method, resolvedURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("custom tool %q: remote returned status %d", name, resp.StatusCode)
	}

	if t.ResultPath == "" {
		return json.RawMessage(body), nil
	}
	result := gjson.GetBytes(body, t.ResultPath)
	if !result.Exists() {
		return nil, fmt.Errorf("custom tool %q: result_path %q not found in response", name, t.ResultPath)
	}
	return json.RawMessage(result.Raw), nil
}

// isPrivateOrReservedIP reports whether ip is loopback, link-local,
// private, unspecified, multicast, or the cloud metadata address —
// ported from nexus's websearch.ContentExtractor, which guards the same
// "fetch a runtime-supplied URL" concern.
func isPrivateOrReservedIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() {
		return true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	if ip.IsPrivate() {
		return true
	}
	if ip.IsUnspecified() {
		return true
	}
	if ip.IsMulticast() {
		return true
	}
	metadataIP := net.ParseIP("169.254.169.254")
	if ip.Equal(metadataIP) {
		return true
	}
	return false
}

// validateURLForSSRF rejects custom-tool URLs that target non-HTTP(S)
// schemes, localhost, or an address that resolves to a private/reserved
// IP — an agent-defined tool (defineTool/callTool) must not be usable to
// reach internal services or the cloud metadata endpoint.
func validateURLForSSRF(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", parsed.Scheme)
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return fmt.Errorf("URL must have a hostname")
	}

	lowerHost := strings.ToLower(hostname)
	if lowerHost == "localhost" || strings.HasSuffix(lowerHost, ".localhost") {
		return fmt.Errorf("localhost URLs are not allowed")
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		// unresolvable host: allow, since DNS may be handled by an
		// upstream proxy the request is routed through.
		return nil
	}
	for _, ip := range ips {
		if isPrivateOrReservedIP(ip) {
			return fmt.Errorf("URL resolves to private/reserved IP address")
		}
	}
	return nil
}

// interpolateTemplate replaces {{key}} placeholders with args[key]'s
// string form, the same substring-scan approach pipeline.interpolate
// uses for `{{path}}` templates — duplicated here rather than exported
// across packages since each interpolates against a differently shaped
// source (a flat args map vs. the pipeline's nested scope).
func interpolateTemplate(tmpl string, args map[string]any) string {
	var sb strings.Builder
	i := 0
	for i < len(tmpl) {
		start := strings.Index(tmpl[i:], "{{")
		if start == -1 {
			sb.WriteString(tmpl[i:])
			break
		}
		start += i
		end := strings.Index(tmpl[start:], "}}")
		if end == -1 {
			sb.WriteString(tmpl[i:])
			break
		}
		end += start
		sb.WriteString(tmpl[i:start])
		key := strings.TrimSpace(tmpl[start+2 : end])
		if v, ok := args[key]; ok {
			sb.WriteString(fmt.Sprintf("%v", v))
		}
		i = end + 2
	}
	return sb.String()
}
