// Package websearch runs web searches through an MCP server exposing
// the webSearchPrime tool (Z.AI's hosted search endpoint is the
// reference deployment).
//
// A search follows the full session sequence: initialize once per
// [Searcher], then tools/list and tools/call for every query. Results
// arrive as a JSON array encoded in the text of the first content item.
package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nugget/toolcall/internal/mcp"
)

// ToolName is the MCP tool invoked for searches.
const ToolName = "webSearchPrime"

// maxQueryLen is the longest query the search backend handles well.
// Longer queries are sent anyway, with a warning.
const maxQueryLen = 70

// Recency filters accepted by the search tool.
const (
	RecencyOneDay   = "oneDay"
	RecencyOneWeek  = "oneWeek"
	RecencyOneMonth = "oneMonth"
	RecencyOneYear  = "oneYear"
	RecencyNoLimit  = "noLimit"
)

var (
	validRecency     = []string{RecencyOneDay, RecencyOneWeek, RecencyOneMonth, RecencyOneYear, RecencyNoLimit}
	validContentSize = []string{"medium", "high"}
	validLocation    = []string{"cn", "us"}
)

// ErrNoResponse means the server answered a step with no data frame.
var ErrNoResponse = errors.New("websearch: server returned no frame")

// ErrToolNotFound means tools/list did not include [ToolName].
var ErrToolNotFound = errors.New("websearch: server does not offer " + ToolName)

// Caller is the subset of *mcp.Client a Searcher needs.
type Caller interface {
	Initialize(ctx context.Context) (*mcp.Frame, error)
	ListTools(ctx context.Context) (*mcp.Frame, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.Frame, error)
}

// Options narrow a search. Zero values are omitted from the request.
type Options struct {
	DomainFilter  string // search_domain_filter
	RecencyFilter string // search_recency_filter, one of the Recency* constants
	ContentSize   string // content_size: "medium" or "high"
	Location      string // location: "cn" or "us"
}

// Validate checks enumerated option values.
func (o Options) Validate() error {
	check := func(field, v string, allowed []string) error {
		if v == "" {
			return nil
		}
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return fmt.Errorf("invalid %s %q (valid: %s)", field, v, strings.Join(allowed, ", "))
	}
	return errors.Join(
		check("recency filter", o.RecencyFilter, validRecency),
		check("content size", o.ContentSize, validContentSize),
		check("location", o.Location, validLocation),
	)
}

func (o Options) arguments(query string) map[string]any {
	args := map[string]any{"search_query": query}
	if o.DomainFilter != "" {
		args["search_domain_filter"] = o.DomainFilter
	}
	if o.RecencyFilter != "" {
		args["search_recency_filter"] = o.RecencyFilter
	}
	if o.ContentSize != "" {
		args["content_size"] = o.ContentSize
	}
	if o.Location != "" {
		args["location"] = o.Location
	}
	return args
}

// Result is a single search hit.
type Result struct {
	Refer       string `json:"refer"`
	Title       string `json:"title"`
	Link        string `json:"link"`
	Media       string `json:"media"`
	Content     string `json:"content"`
	Icon        string `json:"icon"`
	PublishDate string `json:"publish_date"`
}

// ToolError carries the text of a tools/call result flagged isError.
type ToolError struct {
	Text string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s returned error: %s", ToolName, e.Text)
}

// Searcher issues searches over one MCP session.
type Searcher struct {
	caller Caller
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	serverName  string
}

// New creates a Searcher using caller for all MCP traffic.
func New(caller Caller, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{caller: caller, logger: logger}
}

// ServerName returns the server name reported by initialize, if any.
func (s *Searcher) ServerName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverName
}

// Search runs query and returns the hits in server order. A successful
// call with no content yields an empty slice and no error.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("websearch: query is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("websearch: %w", err)
	}
	if len(query) > maxQueryLen {
		s.logger.Warn("search query longer than recommended",
			"length", len(query),
			"recommended_max", maxQueryLen,
		)
	}

	if err := s.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	if err := s.checkTool(ctx); err != nil {
		return nil, err
	}

	frame, err := s.caller.CallTool(ctx, ToolName, opts.arguments(query))
	if err != nil {
		return nil, fmt.Errorf("websearch: %w", err)
	}
	if !frame.Present() {
		return nil, fmt.Errorf("%w (tools/call)", ErrNoResponse)
	}

	res, err := frame.CallResult()
	if err != nil {
		return nil, fmt.Errorf("websearch: %w", err)
	}
	if res.IsError {
		return nil, &ToolError{Text: mcp.JoinText(res.Content)}
	}
	if len(res.Content) == 0 {
		s.logger.Debug("search returned no content", "query_length", len(query))
		return []Result{}, nil
	}

	text, ok := res.Content[0].Text()
	if !ok || text == "" {
		return []Result{}, nil
	}
	results, err := decodeResults(text)
	if err != nil {
		return nil, fmt.Errorf("websearch: %w", err)
	}
	s.logger.Info("web search complete", "results", len(results))
	return results, nil
}

// ensureInitialized runs initialize the first time only.
func (s *Searcher) ensureInitialized(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}

	frame, err := s.caller.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("websearch: %w", err)
	}
	if !frame.Present() {
		return fmt.Errorf("%w (initialize)", ErrNoResponse)
	}
	if rpcErr := frame.RPCError(); rpcErr != nil {
		return fmt.Errorf("websearch: initialize: %w", rpcErr)
	}
	if info, err := frame.Initialize(); err == nil {
		s.serverName = info.ServerInfo.Name
		s.logger.Info("connected to MCP server", "server_name", info.ServerInfo.Name)
	}
	s.initialized = true
	return nil
}

// checkTool confirms the server lists ToolName. A list that cannot be
// decoded is logged and tolerated; the call itself will tell.
func (s *Searcher) checkTool(ctx context.Context) error {
	frame, err := s.caller.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("websearch: %w", err)
	}
	tools, err := frame.Tools()
	if err != nil {
		s.logger.Debug("could not read tool list", "error", err)
		return nil
	}

	names := make([]string, 0, len(tools))
	for _, t := range tools {
		if t.Name == ToolName {
			return nil
		}
		names = append(names, t.Name)
	}
	s.logger.Debug("available tools", "tools", strings.Join(names, ", "))
	return ErrToolNotFound
}

// decodeResults parses the JSON array carried in a content item. Some
// deployments double-encode it as a JSON string; that form is unwrapped
// once.
func decodeResults(text string) ([]Result, error) {
	var results []Result
	err := json.Unmarshal([]byte(text), &results)
	if err == nil {
		return results, nil
	}

	trimmed := strings.TrimSpace(text)
	if len(trimmed) >= 2 && strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) {
		var inner string
		if uerr := json.Unmarshal([]byte(trimmed), &inner); uerr == nil {
			if rerr := json.Unmarshal([]byte(inner), &results); rerr == nil {
				return results, nil
			}
		}
	}
	return nil, fmt.Errorf("decode search results: %w", err)
}
