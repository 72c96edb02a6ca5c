package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// dataPrefix marks the payload line of an event-stream frame. Exactly
// these bytes are stripped; a following space is left to the JSON decoder.
const dataPrefix = "data:"

// maxPayloadExcerpt bounds how much of a bad payload is kept in a ParseError.
const maxPayloadExcerpt = 256

// Frame is the decoded JSON value carried by a response body. It holds
// the value exactly as the server sent it; numbers stay [json.Number].
//
// A nil *Frame means the body carried no data: line. All methods are
// safe to call on a nil Frame.
type Frame struct {
	raw   json.RawMessage
	value any
}

// ParseFrame extracts the first data: line of body and decodes it.
//
// It returns (nil, nil) when body has no line starting with "data:".
// Lines starting with anything else are skipped, and so is every data:
// line after the first. A payload that is not valid JSON yields a
// *ParseError.
func ParseFrame(body []byte) (*Frame, error) {
	for _, line := range bytes.Split(body, []byte("\n")) {
		payload, ok := bytes.CutPrefix(line, []byte(dataPrefix))
		if !ok {
			continue
		}
		return decodeFrame(payload)
	}
	return nil, nil
}

func decodeFrame(payload []byte) (*Frame, error) {
	var v any
	if err := decodeNumbers(payload, &v); err != nil {
		return nil, &ParseError{Payload: excerpt(string(payload), maxPayloadExcerpt), Err: err}
	}
	return &Frame{
		raw:   json.RawMessage(bytes.TrimSpace(bytes.Clone(payload))),
		value: v,
	}, nil
}

// decodeNumbers unmarshals data into v, keeping numbers as json.Number
// and rejecting anything after the first value.
func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty payload")
		}
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

// Present reports whether the response carried a frame at all.
func (f *Frame) Present() bool { return f != nil }

// Value returns the decoded JSON value (map[string]any, []any, string,
// json.Number, bool or nil).
func (f *Frame) Value() any {
	if f == nil {
		return nil
	}
	return f.value
}

// Raw returns the frame's JSON text.
func (f *Frame) Raw() json.RawMessage {
	if f == nil {
		return nil
	}
	return f.raw
}

// Object returns the frame as a JSON object, or nil if it is not one.
func (f *Frame) Object() map[string]any {
	m, _ := f.Value().(map[string]any)
	return m
}

// Decode unmarshals the frame's JSON text into v.
func (f *Frame) Decode(v any) error {
	if f == nil {
		return errors.New("no frame to decode")
	}
	return json.Unmarshal(f.raw, v)
}

// Envelope decodes the frame as a conventional JSON-RPC response.
func (f *Frame) Envelope() (*Response, error) {
	var resp Response
	if err := f.Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response envelope: %w", err)
	}
	return &resp, nil
}

// Result returns the raw "result" member, or nil if there is none.
func (f *Frame) Result() json.RawMessage {
	resp, err := f.Envelope()
	if err != nil {
		return nil
	}
	return resp.Result
}

// RPCError returns the frame's "error" member, or nil if there is none.
func (f *Frame) RPCError() *RPCError {
	resp, err := f.Envelope()
	if err != nil {
		return nil
	}
	return resp.Error
}

// matchesID reports whether the frame's "id" member equals want.
func (f *Frame) matchesID(want int64) bool {
	n, ok := f.Object()["id"].(json.Number)
	if !ok {
		return false
	}
	got, err := n.Int64()
	return err == nil && got == want
}

// idText is the frame's "id" member as JSON text, empty if absent.
func (f *Frame) idText() string {
	id, ok := f.Object()["id"]
	if !ok {
		return ""
	}
	b, err := json.Marshal(id)
	if err != nil {
		return ""
	}
	return string(b)
}

func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
