package modelclient

import "context"

// Fake is an in-memory Generator used by other packages' tests
// (router, pipeline, toolregistry, workflow) so they can exercise
// generation-dependent logic without a network dependency.
type Fake struct {
	// Responses is consumed in order, one per Generate call. If
	// exhausted, the last entry repeats.
	Responses []string
	// Err, if set, is returned from every call instead of a response.
	Err error

	calls int
	// Requests records every request seen, for assertions.
	Requests []GenerateRequest
}

func (f *Fake) Generate(_ context.Context, req GenerateRequest) (*GenerateResponse, error) {
	f.Requests = append(f.Requests, req)
	if f.Err != nil {
		return nil, f.Err
	}
	if len(f.Responses) == 0 {
		return &GenerateResponse{Text: "", ModelID: "fake"}, nil
	}
	idx := f.calls
	if idx >= len(f.Responses) {
		idx = len(f.Responses) - 1
	}
	f.calls++
	return &GenerateResponse{Text: f.Responses[idx], ModelID: "fake"}, nil
}

var _ Generator = (*Fake)(nil)
