// Package mcp implements the client side of the Model Context Protocol
// spoken as JSON-RPC 2.0 over HTTP POST.
//
// A [Client] owns one logical session: the endpoint, the bearer
// credential and a monotonic request-id counter. Each operation
// ([Client.Initialize], [Client.ListTools], [Client.CallTool]) builds a
// request envelope, hands it to a [Transport], and decodes the reply.
//
// Servers answer with an event-stream shaped body. Only the first line
// beginning with "data:" is decoded (see [ParseFrame]); multi-event
// streams are not supported. Results come back as a raw [Frame]: the
// client never inspects "result", "error" or "id" on its own, so callers
// must branch on [Frame.RPCError] and friends themselves.
package mcp
