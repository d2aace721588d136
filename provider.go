package agentcore

import "context"

// Provider defines the interface that all backend adapters must implement.
// This abstraction allows supporting multiple backends (Anthropic,
// OpenAI-compatible gateways, mocks) behind one consistent surface.
type Provider interface {
	// Complete generates a full response in one blocking call.
	// Used by non-streaming callers and as a fallback.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Stream generates a streaming response. It returns a channel that
	// emits StreamEvent values as they arrive; the channel is closed when
	// the stream completes or fails. Errors are delivered on the channel
	// as StreamEvent.Err, never both returned and emitted.
	//
	// Usage:
	//   events, err := provider.Stream(ctx, req)
	//   if err != nil { return err }
	//   for ev := range events {
	//     switch {
	//     case ev.Err != nil: ...
	//     case ev.ContentDelta != nil: ...
	//     }
	//   }
	Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error)

	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() ProviderID

	// SupportsModel returns true if the provider handles the given model.
	SupportsModel(model string) bool
}
