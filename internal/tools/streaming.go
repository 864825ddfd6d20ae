package tools

import "context"

// streamingCallbackKey is the context key for streaming callbacks.
type streamingCallbackKey struct{}

// StreamingCallback receives incremental text output from a running tool.
type StreamingCallback func(text string)

// ContextWithStreamingCallback attaches a streaming callback so tool
// execution can surface output before the command finishes.
func ContextWithStreamingCallback(ctx context.Context, onText StreamingCallback) context.Context {
	return context.WithValue(ctx, streamingCallbackKey{}, onText)
}

// GetStreamingCallback retrieves the streaming callback from the
// context. Returns nil if none was attached.
func GetStreamingCallback(ctx context.Context) StreamingCallback {
	if cb, ok := ctx.Value(streamingCallbackKey{}).(StreamingCallback); ok {
		return cb
	}
	return nil
}
