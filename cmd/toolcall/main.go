// Toolcall is a command-line client for MCP servers that speak JSON-RPC
// over HTTP and answer with event-stream frames.
//
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	toolcall init [dir]                Write an example config to dir
//	toolcall tools                     List the tools the server offers
//	toolcall call <name> [json-args]   Invoke a tool
//	toolcall search [flags] <query>    Run a webSearchPrime search
//	toolcall history [n]               Show the last n journaled exchanges
//	toolcall version                   Print version and build information
//	toolcall -o json tools             Output as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/nugget/toolcall/internal/buildinfo"
	"github.com/nugget/toolcall/internal/config"
	"github.com/nugget/toolcall/internal/journal"
	"github.com/nugget/toolcall/internal/mcp"
)

// main builds the OS-level environment and hands off to [run], keeping
// os.Exit, os.Stdout and os.Args out of the application logic.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		stop()
		os.Exit(1)
	}
}

// run is the real entry point for the toolcall command. Results go to
// stdout and structured logs to stderr, so output can be piped. args is
// os.Args[1:]; it is parsed by hand because the flag package's global
// state gets in the way of calling run from parallel tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case (args[i] == "-h" || args[i] == "-help" || args[i] == "--help") && command == "":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "tools":
		return runTools(ctx, stdout, stderr, configPath, outputFmt)
	case "call":
		if len(cmdArgs) == 0 || len(cmdArgs) > 2 {
			return errors.New("usage: toolcall call <name> [json-args]")
		}
		return runCall(ctx, stdout, stderr, configPath, outputFmt, cmdArgs)
	case "search":
		return runSearch(ctx, stdout, stderr, configPath, outputFmt, cmdArgs)
	case "history":
		return runHistory(ctx, stdout, stderr, configPath, outputFmt, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		return writeJSON(w, info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "toolcall - MCP tool client")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: toolcall [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  init [dir]                Write an example config (default: .)")
	fmt.Fprintln(w, "  tools                     List the tools the server offers")
	fmt.Fprintln(w, "  call <name> [json-args]   Invoke a tool with a JSON object of arguments")
	fmt.Fprintln(w, "  search [flags] <query>    Web search via webSearchPrime")
	fmt.Fprintln(w, "                            (-recency, -domain, -size, -location)")
	fmt.Fprintln(w, "  history [n]               Show the last n journaled exchanges (default 20)")
	fmt.Fprintln(w, "  version                   Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./toolcall.yaml, ~/.config/toolcall/config.yaml, /etc/toolcall/config.yaml")
	return nil
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; anything else
// falls back to text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogAttrs,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Returns the
// parsed config and the path that was loaded.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// session bundles what a server-facing subcommand needs.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *mcp.Client
	journal *journal.Store
}

// openSession loads and validates the config, then builds the logger,
// journal and client from it. Callers must Close the session.
func openSession(stderr io.Writer, configPath string) (*session, error) {
	cfg, logger, err := setup(stderr, configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	timeout, _ := cfg.Server.TimeoutDuration() // checked by Validate

	s := &session{cfg: cfg, logger: logger}

	opts := []mcp.Option{
		mcp.WithLogger(logger),
		mcp.WithTransport(mcp.NewHTTPTransport(mcp.HTTPConfig{
			Timeout: timeout,
			Logger:  logger,
		})),
	}
	if cfg.Server.CheckIDs {
		opts = append(opts, mcp.WithIDCheck())
	}
	if cfg.Journal.Path != "" {
		store, err := openJournal(cfg, logger)
		if err != nil {
			return nil, err
		}
		s.journal = store
		opts = append(opts, mcp.WithObserver(store))
	}

	client, err := mcp.NewClient(cfg.Server.URL, cfg.Server.Token, opts...)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.client = client
	logger.Debug("session ready", "endpoint", cfg.Server.URL, "mcp_session", client.SessionID())
	return s, nil
}

func (s *session) Close() {
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.Warn("failed to close journal", "error", err)
		}
	}
}

// setup loads the config and builds the logger it describes. The config
// is not validated; history works without server credentials.
func setup(stderr io.Writer, configPath string) (*config.Config, *slog.Logger, error) {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}
	logger := newLogger(stderr, level, cfg.LogFormat)
	logger.Debug("config loaded", "path", cfgPath)
	return cfg, logger, nil
}

func openJournal(cfg *config.Config, logger *slog.Logger) (*journal.Store, error) {
	path := cfg.Journal.ResolvedPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	store, err := journal.NewStore(path, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("journal opened", "path", path)
	return store, nil
}

// requireFrame turns an absent frame or an RPC error frame into an error.
func requireFrame(method string, frame *mcp.Frame, err error) (*mcp.Frame, error) {
	if err != nil {
		return nil, err
	}
	if !frame.Present() {
		return nil, fmt.Errorf("%s: server returned no frame", method)
	}
	if rpcErr := frame.RPCError(); rpcErr != nil {
		return nil, fmt.Errorf("%s: %w", method, rpcErr)
	}
	return frame, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
