package toolregistry

import "context"

// FakeRPCClient is a test double for RPCClient recording every call it
// receives and returning a scripted response or error per tool name.
type FakeRPCClient struct {
	Responses map[string]map[string]any
	Errs      map[string]error
	Calls     []FakeCall
}

// FakeCall records one Call invocation for assertions.
type FakeCall struct {
	ToolName string
	Input    map[string]any
}

func (f *FakeRPCClient) Call(_ context.Context, def ToolDefinition, input map[string]any) (map[string]any, error) {
	f.Calls = append(f.Calls, FakeCall{ToolName: def.Name, Input: input})
	if err, ok := f.Errs[def.Name]; ok && err != nil {
		return nil, err
	}
	return f.Responses[def.Name], nil
}

var _ RPCClient = (*FakeRPCClient)(nil)
