package mcp

import (
	"errors"
	"fmt"
	"strings"
)

// protocolVersion is the MCP protocol version we advertise during
// initialization. It is never renegotiated from the server's answer.
const protocolVersion = "2024-11-05"

// ToolDescriptor is an MCP tool as returned by tools/list.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ContentItem is a single item of a tools/call result. Its shape is tool
// specific; most servers send {"type":"text","text":"..."}.
type ContentItem map[string]any

// Type returns the item's "type" member.
func (c ContentItem) Type() string {
	s, _ := c["type"].(string)
	return s
}

// Text returns the item's "text" member, if it is a string.
func (c ContentItem) Text() (string, bool) {
	s, ok := c["text"].(string)
	return s, ok
}

// CallResult is the result payload of a tools/call response.
type CallResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// ServerInfo identifies the server in an initialize response.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the result payload of an initialize response.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
}

type toolsListResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

// errNoResult is returned by the typed accessors when the frame carries
// no "result" member.
var errNoResult = errors.New("frame has no result")

// decodeResult decodes the frame's "result" member into v. An "error"
// member is returned as the *RPCError.
func (f *Frame) decodeResult(v any) error {
	if f == nil {
		return errNoResult
	}
	resp, err := f.Envelope()
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if len(resp.Result) == 0 {
		return errNoResult
	}
	if err := decodeNumbers(resp.Result, v); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// Tools decodes result.tools of a tools/list frame, keeping server order.
func (f *Frame) Tools() ([]ToolDescriptor, error) {
	var result toolsListResult
	if err := f.decodeResult(&result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallResult decodes the result of a tools/call frame.
func (f *Frame) CallResult() (*CallResult, error) {
	var result CallResult
	if err := f.decodeResult(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Initialize decodes the result of an initialize frame.
func (f *Frame) Initialize() (*InitializeResult, error) {
	var result InitializeResult
	if err := f.decodeResult(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// JoinText joins all content items into a single string. Text items are
// used verbatim; anything else is represented by an inline marker such
// as "[image]".
func JoinText(items []ContentItem) string {
	var parts []string
	for _, item := range items {
		if text, ok := item.Text(); ok && (item.Type() == "text" || item.Type() == "") {
			parts = append(parts, text)
			continue
		}
		typ := item.Type()
		if typ == "" {
			typ = "unknown"
		}
		parts = append(parts, fmt.Sprintf("[%s]", typ))
	}
	return strings.Join(parts, "\n")
}
