package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/nugget/toolcall/examples"
	"github.com/nugget/toolcall/internal/mcp"
	"github.com/nugget/toolcall/internal/mcptest"
)

const testToken = "secret-token-xyz"

// newFakeServer returns a server offering an echo tool and webSearchPrime.
func newFakeServer(t *testing.T) *mcptest.Server {
	t.Helper()
	srv := mcptest.NewServer(t, testToken)
	srv.HandleResult(mcp.MethodInitialize, map[string]any{
		"protocolVersion": "2024-11-05",
		"serverInfo":      map[string]any{"name": "fake", "version": "0.1"},
	})
	srv.HandleResult(mcp.MethodToolsList, map[string]any{
		"tools": []map[string]any{
			{"name": "echo", "description": "Echo the input\nSecond line"},
			{"name": "webSearchPrime", "description": "Search the web"},
		},
	})
	srv.Handle(mcp.MethodToolsCall, func(req mcp.Request) (any, *mcp.RPCError) {
		switch req.Params["name"] {
		case "echo":
			args, _ := req.Params["arguments"].(map[string]any)
			text, _ := args["text"].(string)
			return map[string]any{"content": []map[string]any{{"type": "text", "text": text}}}, nil
		case "fail":
			return map[string]any{
				"content": []map[string]any{{"type": "text", "text": "boom"}},
				"isError": true,
			}, nil
		case "webSearchPrime":
			hits := `[{"title":"Go","link":"https://go.dev","media":"Go","content":"The Go language"}]`
			return map[string]any{"content": []map[string]any{{"type": "text", "text": hits}}}, nil
		}
		return nil, &mcp.RPCError{Code: -32602, Message: "Unknown tool"}
	})
	return srv
}

// writeConfig writes a config pointing at srv, with a journal in the
// same temp directory, and returns its path.
func writeConfig(t *testing.T, srv *mcptest.Server) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TOOLCALL_TEST_TOKEN", testToken)
	cfg := "server:\n" +
		"  url: " + srv.URL + "\n" +
		"  token: ${TOOLCALL_TEST_TOKEN}\n" +
		"  timeout: 5s\n" +
		"  check_ids: true\n" +
		"journal:\n" +
		"  path: " + filepath.Join(dir, "journal", "journal.db") + "\n" +
		"log_level: debug\n"
	path := filepath.Join(dir, "toolcall.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCmd(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err = run(context.Background(), &out, &errOut, args)
	return out.String(), errOut.String(), err
}

func TestRun_Tools(t *testing.T) {
	srv := newFakeServer(t)
	cfg := writeConfig(t, srv)

	out, logs, err := runCmd(t, "-config", cfg, "tools")
	if err != nil {
		t.Fatalf("tools: %v", err)
	}
	if !strings.Contains(out, "echo\n  Echo the input\n") {
		t.Errorf("output missing echo tool:\n%s", out)
	}
	if strings.Contains(out, "Second line") {
		t.Error("description should be cut to its first line")
	}
	if strings.Contains(logs, testToken) {
		t.Error("credential leaked into logs")
	}

	var methods []string
	for _, r := range srv.Requests() {
		methods = append(methods, r.Request.Method)
	}
	if got := strings.Join(methods, ","); got != "initialize,tools/list" {
		t.Errorf("method sequence = %s", got)
	}
}

func TestRun_ToolsJSON(t *testing.T) {
	srv := newFakeServer(t)
	cfg := writeConfig(t, srv)

	out, _, err := runCmd(t, "-config="+cfg, "-o", "json", "tools")
	if err != nil {
		t.Fatalf("tools: %v", err)
	}
	var tools []mcp.ToolDescriptor
	if err := json.Unmarshal([]byte(out), &tools); err != nil {
		t.Fatalf("output is not a JSON tool list: %v\n%s", err, out)
	}
	if len(tools) != 2 || tools[1].Name != "webSearchPrime" {
		t.Errorf("tools = %+v", tools)
	}
}

func TestRun_Call(t *testing.T) {
	srv := newFakeServer(t)
	cfg := writeConfig(t, srv)

	out, _, err := runCmd(t, "-config", cfg, "call", "echo", `{"text":"hello","n":12345678901234567890}`)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if out != "hello\n" {
		t.Errorf("output = %q, want %q", out, "hello\n")
	}

	reqs := srv.Requests()
	last := reqs[len(reqs)-1]
	if !bytes.Contains(last.Body, []byte(`"n":12345678901234567890`)) {
		t.Errorf("large number not passed through verbatim: %s", last.Body)
	}
}

func TestRun_CallJSON(t *testing.T) {
	srv := newFakeServer(t)
	cfg := writeConfig(t, srv)

	out, _, err := runCmd(t, "-config", cfg, "-o", "json", "call", "echo", `{"text":"hi"}`)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal([]byte(out), &frame); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if frame["jsonrpc"] != "2.0" || frame["result"] == nil {
		t.Errorf("frame = %v", frame)
	}
}

func TestRun_CallErrors(t *testing.T) {
	srv := newFakeServer(t)
	cfg := writeConfig(t, srv)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "tool error", args: []string{"call", "fail"}, want: "reported an error: boom"},
		{name: "rpc error", args: []string{"call", "nope"}, want: "Unknown tool"},
		{name: "bad arguments", args: []string{"call", "echo", `[1,2]`}, want: "JSON object"},
		{name: "trailing arguments", args: []string{"call", "echo", `{} {}`}, want: "single JSON object"},
		{name: "no name", args: []string{"call"}, want: "usage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runCmd(t, append([]string{"-config", cfg}, tt.args...)...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestRun_Search(t *testing.T) {
	srv := newFakeServer(t)
	cfg := writeConfig(t, srv)

	out, _, err := runCmd(t, "-config", cfg, "search", "-recency", "oneWeek", "-location=us", "golang", "generics")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(out, "1. Go\n   https://go.dev\n") {
		t.Errorf("output = %q", out)
	}

	reqs := srv.Requests()
	args, _ := reqs[len(reqs)-1].Request.Params["arguments"].(map[string]any)
	if args["search_query"] != "golang generics" || args["search_recency_filter"] != "oneWeek" || args["location"] != "us" {
		t.Errorf("search arguments = %v", args)
	}
}

func TestParseSearchArgs(t *testing.T) {
	tests := []struct {
		args      []string
		wantQuery string
		wantErr   bool
	}{
		{args: []string{"a", "b"}, wantQuery: "a b"},
		{args: []string{"-size", "high", "q"}, wantQuery: "q"},
		{args: []string{"-domain=go.dev", "q"}, wantQuery: "q"},
		{args: []string{"-size"}, wantErr: true},
		{args: []string{"-bogus", "q"}, wantErr: true},
		{args: []string{"-size", "high"}, wantErr: true},
	}
	for _, tt := range tests {
		query, _, err := parseSearchArgs(tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseSearchArgs(%q) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			continue
		}
		if query != tt.wantQuery {
			t.Errorf("parseSearchArgs(%q) query = %q, want %q", tt.args, query, tt.wantQuery)
		}
	}
}

func TestRun_History(t *testing.T) {
	srv := newFakeServer(t)
	cfg := writeConfig(t, srv)

	if _, _, err := runCmd(t, "-config", cfg, "tools"); err != nil {
		t.Fatalf("tools: %v", err)
	}

	out, _, err := runCmd(t, "-config", cfg, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "tools/list") || !strings.Contains(out, "initialize") {
		t.Errorf("history output missing exchanges:\n%s", out)
	}

	out, _, err = runCmd(t, "-config", cfg, "-o", "json", "history", "1")
	if err != nil {
		t.Fatalf("history json: %v", err)
	}
	var doc struct {
		Entries []map[string]any `json:"entries"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(doc.Entries) != 1 || doc.Entries[0]["method"] != "tools/list" {
		t.Errorf("entries = %v", doc.Entries)
	}

	if _, _, err := runCmd(t, "-config", cfg, "history", "zero"); err == nil {
		t.Error("non-numeric count should error")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toolcall.yaml")
	if err := os.WriteFile(path, []byte("server:\n  url: ftp://example.test\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, _, err := runCmd(t, "-config", path, "tools")
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("error = %v, want invalid config", err)
	}
	if !strings.Contains(err.Error(), "token") {
		t.Errorf("error should report the missing token: %v", err)
	}
}

func TestRun_ArgumentErrors(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{args: []string{"frobnicate"}, want: "unknown command"},
		{args: []string{"-x"}, want: "unknown flag"},
		{args: []string{"-o", "yaml", "version"}, want: "unknown output format"},
		{args: []string{"-config", "/nonexistent/toolcall.yaml", "tools"}, want: "config file not found"},
	}
	for _, tt := range tests {
		_, _, err := runCmd(t, tt.args...)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("run(%q) error = %v, want containing %q", tt.args, err, tt.want)
		}
	}
}

func TestRun_UsageAndVersion(t *testing.T) {
	out, _, err := runCmd(t)
	if err != nil || !strings.Contains(out, "Usage: toolcall") {
		t.Errorf("bare run: out=%q err=%v", out, err)
	}

	out, _, err = runCmd(t, "-o", "json", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("version output is not JSON: %v", err)
	}
	if info["version"] == "" || info["go_version"] == "" {
		t.Errorf("version info = %v", info)
	}
}

func TestRunInit(t *testing.T) {
	old := syscall.Umask(0)
	t.Cleanup(func() { syscall.Umask(old) })

	dir := filepath.Join(t.TempDir(), "work")
	var buf bytes.Buffer
	if err := runInit(&buf, dir); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	path := filepath.Join(dir, "toolcall.yaml")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("toolcall.yaml not created: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("toolcall.yaml permissions = %o, want 0600", got)
	}
	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, examples.ConfigYAML) {
		t.Error("toolcall.yaml does not match the embedded example")
	}

	sentinel := []byte("# mine\n")
	if err := os.WriteFile(path, sentinel, 0o600); err != nil {
		t.Fatal(err)
	}
	buf.Reset()
	if err := runInit(&buf, dir); err != nil {
		t.Fatalf("second runInit: %v", err)
	}
	if got, _ := os.ReadFile(path); !bytes.Equal(got, sentinel) {
		t.Error("existing toolcall.yaml was overwritten")
	}
	if !strings.Contains(buf.String(), "already exists") {
		t.Errorf("output = %q", buf.String())
	}
}
