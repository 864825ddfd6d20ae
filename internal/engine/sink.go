package engine

import (
	"sync"

	"krusty/internal/chat"
)

// RenderKind tags the variant of a RenderEvent.
type RenderKind string

const (
	// RenderText is a streamed chunk of assistant prose.
	RenderText RenderKind = "text"
	// RenderThinking is a streamed chunk of reasoning.
	RenderThinking RenderKind = "thinking"
	// RenderCallStatus reports a tool call status transition.
	RenderCallStatus RenderKind = "call_status"
	// RenderToolOutput is a chunk of output from a still-running tool.
	RenderToolOutput RenderKind = "tool_output"
	// RenderToolResult carries a finished tool result.
	RenderToolResult RenderKind = "tool_result"
	// RenderNotice carries an informational message, such as a retry.
	RenderNotice RenderKind = "notice"
	// RenderTurnDone marks a finalized turn. Always delivered.
	RenderTurnDone RenderKind = "turn_done"
)

// RenderEvent is one unit of display output.
type RenderEvent struct {
	Kind   RenderKind
	Text   string
	Call   *chat.ToolCall
	Result *chat.ToolResult
	Turn   *chat.Turn
}

// terminal events must survive backpressure so the consumer always
// learns that a turn ended.
func (e RenderEvent) terminal() bool {
	return e.Kind == RenderTurnDone
}

// Sink receives render events. Publish must never block turn progress.
type Sink interface {
	Publish(ev RenderEvent)
}

// BufferedSink is a bounded, non-blocking sink. When the buffer is
// full the oldest buffered event is dropped to make room, so slow
// consumers lose intermediate deltas but never stall the engine and
// never miss terminal events.
type BufferedSink struct {
	ch     chan RenderEvent
	mu     sync.Mutex
	closed bool
}

// NewBufferedSink creates a sink holding at most size events.
func NewBufferedSink(size int) *BufferedSink {
	if size < 1 {
		size = 1
	}
	return &BufferedSink{
		ch: make(chan RenderEvent, size),
	}
}

// Publish enqueues the event, evicting the oldest droppable buffered
// event when the buffer is full. Terminal events are kept queued so
// the consumer always learns that a turn ended.
func (s *BufferedSink) Publish(ev RenderEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		if !s.evictOldest(ev.terminal()) {
			// Only terminal events are buffered. Lose the incoming
			// delta rather than a turn boundary.
			return
		}
	}
}

// evictOldest removes the oldest non-terminal buffered event,
// requeueing the rest in order. When the buffer holds only terminal
// events the oldest one is evicted, but only to admit another
// terminal event. Reports whether room was made.
func (s *BufferedSink) evictOldest(incomingTerminal bool) bool {
	kept := make([]RenderEvent, 0, cap(s.ch))
	evicted := false
drain:
	for {
		select {
		case old := <-s.ch:
			if !evicted && !old.terminal() {
				evicted = true
				continue
			}
			kept = append(kept, old)
		default:
			break drain
		}
	}
	if !evicted && incomingTerminal && len(kept) > 0 {
		kept = kept[1:]
		evicted = true
	}
	for _, e := range kept {
		select {
		case s.ch <- e:
		default:
		}
	}
	return evicted
}

// Events returns the channel consumers read from.
func (s *BufferedSink) Events() <-chan RenderEvent {
	return s.ch
}

// Close stops the sink. Later publishes are dropped.
func (s *BufferedSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// NullSink discards everything. Used by sub-agents whose output only
// matters in aggregate.
type NullSink struct{}

func (NullSink) Publish(RenderEvent) {}
