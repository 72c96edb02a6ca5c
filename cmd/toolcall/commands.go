package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nugget/toolcall/internal/mcp"
	"github.com/nugget/toolcall/internal/websearch"
)

// defaultHistory is how many journal entries history shows without n.
const defaultHistory = 20

// runTools handles "toolcall tools": initialize, then list the tools.
func runTools(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string) error {
	s, err := openSession(stderr, configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	frame, err := s.client.Initialize(ctx)
	if _, err := requireFrame(mcp.MethodInitialize, frame, err); err != nil {
		return err
	}
	frame, err = s.client.ListTools(ctx)
	if frame, err = requireFrame(mcp.MethodToolsList, frame, err); err != nil {
		return err
	}
	tools, err := frame.Tools()
	if err != nil {
		return fmt.Errorf("%s: %w", mcp.MethodToolsList, err)
	}

	if outputFmt == "json" {
		if tools == nil {
			tools = []mcp.ToolDescriptor{}
		}
		return writeJSON(stdout, tools)
	}
	if len(tools) == 0 {
		fmt.Fprintln(stdout, "No tools offered.")
		return nil
	}
	for _, t := range tools {
		fmt.Fprintln(stdout, t.Name)
		if desc := strings.TrimSpace(t.Description); desc != "" {
			fmt.Fprintf(stdout, "  %s\n", firstLine(desc))
		}
	}
	return nil
}

// runCall handles "toolcall call <name> [json-args]". In JSON mode the
// raw response frame is printed unchanged.
func runCall(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string, args []string) error {
	name := args[0]
	var toolArgs map[string]any
	if len(args) > 1 {
		var err error
		if toolArgs, err = parseToolArgs(args[1]); err != nil {
			return err
		}
	}

	s, err := openSession(stderr, configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	frame, err := s.client.Initialize(ctx)
	if _, err := requireFrame(mcp.MethodInitialize, frame, err); err != nil {
		return err
	}
	frame, err = s.client.CallTool(ctx, name, toolArgs)
	if err != nil {
		return err
	}
	if !frame.Present() {
		return fmt.Errorf("%s: server returned no frame", mcp.MethodToolsCall)
	}

	if outputFmt == "json" {
		var buf bytes.Buffer
		if err := json.Indent(&buf, frame.Raw(), "", "  "); err != nil {
			return err
		}
		buf.WriteByte('\n')
		_, err := buf.WriteTo(stdout)
		return err
	}

	res, err := frame.CallResult()
	if err != nil {
		return fmt.Errorf("%s %s: %w", mcp.MethodToolsCall, name, err)
	}
	text := mcp.JoinText(res.Content)
	if res.IsError {
		return fmt.Errorf("tool %s reported an error: %s", name, text)
	}
	fmt.Fprintln(stdout, text)
	return nil
}

// parseToolArgs decodes a JSON object of tool arguments, keeping numbers
// exactly as written.
func parseToolArgs(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("tool arguments must be a JSON object: %w", err)
	}
	if dec.More() {
		return nil, errors.New("tool arguments must be a single JSON object")
	}
	return args, nil
}

// runSearch handles "toolcall search [flags] <query>".
func runSearch(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string, args []string) error {
	query, opts, err := parseSearchArgs(args)
	if err != nil {
		return err
	}

	s, err := openSession(stderr, configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	results, err := websearch.New(s.client, s.logger).Search(ctx, query, opts)
	if err != nil {
		return err
	}

	if outputFmt == "json" {
		return writeJSON(stdout, results)
	}
	if len(results) == 0 {
		fmt.Fprintln(stdout, "No results.")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(stdout, "%d. %s\n", i+1, r.Title)
		fmt.Fprintf(stdout, "   %s\n", r.Link)
		if meta := strings.TrimSpace(strings.Join(nonEmpty(r.Media, r.PublishDate), " | ")); meta != "" {
			fmt.Fprintf(stdout, "   %s\n", meta)
		}
		if r.Content != "" {
			fmt.Fprintf(stdout, "   %s\n", truncate(firstLine(r.Content), 200))
		}
	}
	return nil
}

// parseSearchArgs splits search flags from the query words.
func parseSearchArgs(args []string) (string, websearch.Options, error) {
	var opts websearch.Options
	var words []string

	for i := 0; i < len(args); i++ {
		flag, value, hasValue := strings.Cut(args[i], "=")
		var dst *string
		switch flag {
		case "-recency":
			dst = &opts.RecencyFilter
		case "-domain":
			dst = &opts.DomainFilter
		case "-size":
			dst = &opts.ContentSize
		case "-location":
			dst = &opts.Location
		default:
			if strings.HasPrefix(args[i], "-") {
				return "", opts, fmt.Errorf("unknown search flag: %s", args[i])
			}
			words = append(words, args[i])
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return "", opts, fmt.Errorf("search flag %s needs a value", flag)
			}
			i++
			value = args[i]
		}
		*dst = value
	}

	query := strings.Join(words, " ")
	if strings.TrimSpace(query) == "" {
		return "", opts, errors.New("usage: toolcall search [flags] <query>")
	}
	return query, opts, nil
}

// runHistory handles "toolcall history [n]". It reads the journal only
// and never contacts the server.
func runHistory(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string, args []string) error {
	limit := defaultHistory
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("history: count must be a positive integer, got %q", args[0])
		}
		limit = n
	}

	cfg, logger, err := setup(stderr, configPath)
	if err != nil {
		return err
	}
	if cfg.Journal.Path == "" {
		return errors.New("history: journal.path is not configured")
	}
	store, err := openJournal(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	summary, err := store.SummaryByMethod(ctx)
	if err != nil {
		return err
	}

	if outputFmt == "json" {
		return writeJSON(stdout, map[string]any{
			"entries": entries,
			"summary": summary,
		})
	}
	if len(entries) == 0 {
		fmt.Fprintln(stdout, "No exchanges recorded.")
		return nil
	}
	for _, e := range entries {
		status := "-"
		if e.StatusCode != 0 {
			status = strconv.Itoa(e.StatusCode)
		}
		fmt.Fprintf(stdout, "%s  #%-4d %-11s %-16s %-4s %8s",
			e.Timestamp.Local().Format(time.DateTime), e.RequestID, e.Method, e.Outcome, status,
			e.Duration.Round(time.Millisecond))
		if e.Error != "" {
			fmt.Fprintf(stdout, "  %s", truncate(e.Error, 80))
		}
		fmt.Fprintln(stdout)
	}
	fmt.Fprintln(stdout)
	for _, method := range []string{mcp.MethodInitialize, mcp.MethodToolsList, mcp.MethodToolsCall} {
		if sum, ok := summary[method]; ok {
			fmt.Fprintf(stdout, "%-11s total %d, failures %d, empty %d\n", method, sum.Total, sum.Failures, sum.Empty)
		}
	}
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
