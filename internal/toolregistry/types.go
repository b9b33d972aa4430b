// Package toolregistry loads tool definitions, validates invocations
// against their schemas, dispatches them over an RPC transport with the
// tool_rpc resilience profile, and identifies candidate tools for a piece
// of free-form user text via the model client.
package toolregistry

import (
	"context"

	"github.com/getkin/kin-openapi/openapi3"
)

// ToolDefinition describes one registered tool: its RPC endpoint and the
// input/output JSON schemas used to validate calls against it.
type ToolDefinition struct {
	Name         string
	Description  string
	Endpoint     string
	Method       string
	InputSchema  *openapi3.Schema
	OutputSchema *openapi3.Schema
}

// RPCClient dispatches one tool call over the wire and decodes its
// response into a plain map.
type RPCClient interface {
	Call(ctx context.Context, def ToolDefinition, input map[string]any) (map[string]any, error)
}
