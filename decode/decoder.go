// Package decode turns a backend's raw chunked wire format into typed
// stream events. Chunks may split lines at arbitrary byte boundaries and a
// single logical tool call is frequently spread across many frames,
// interleaved with unrelated text and reasoning deltas; the decoder
// reassembles all of it in arrival order.
package decode

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	agentcore "github.com/haowjy/meridian-agent-go"
)

// doneSentinel terminates an SSE stream.
const doneSentinel = "[DONE]"

// Extraction rules for frame payloads, tried in priority order. Backends
// nest content under different paths depending on whether tools are in
// play, so each rule is a gjson path checked for existence rather than an
// ad hoc conditional chain.
var (
	contentPaths = []string{
		"choices.0.delta.content",
		"choices.0.message.content",
	}

	reasoningPaths = []string{
		"choices.0.delta.reasoning_content",
		"choices.0.delta.reasoning",
		"choices.0.message.reasoning_content",
	}
)

// Stats counts decoder activity. Dropped lines are tolerated by design
// (backends emit keepalives and occasional malformed fragments); the
// counters exist so callers can observe drop rates without the decoder
// taking a logging dependency.
type Stats struct {
	Frames        int // valid frames decoded
	DroppedLines  int // unrecognized or malformed lines
	MalformedArgs int // tool calls finalized with unparseable arguments
}

// pendingToolCall accumulates one tool call across fragments. Created
// lazily on the first fragment for its index and destroyed on
// finalization; it never survives the stream that created it.
type pendingToolCall struct {
	id   string
	name string
	args strings.Builder
}

// Decoder is a push-based incremental decoder. Feed raw chunks with
// Decode as they arrive and call Flush once at stream end. A Decoder is
// owned by a single conversation turn and needs no locking.
type Decoder struct {
	buf        []byte
	pending    map[int]*pendingToolCall
	order      []int
	usage      *agentcore.UsageReport
	lastFinish string
	done       bool
	stats      Stats
}

// NewDecoder creates a decoder for one stream.
func NewDecoder() *Decoder {
	return &Decoder{
		pending: make(map[int]*pendingToolCall),
	}
}

// Stats returns decoder counters for the stream so far.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// Decode consumes one raw chunk and returns the events it completes.
// Partial trailing lines are buffered until the next chunk. Once the
// decoder reaches a terminal frame, further chunks are ignored.
func (d *Decoder) Decode(chunk []byte) []agentcore.StreamEvent {
	if d.done {
		return nil
	}

	d.buf = append(d.buf, chunk...)

	var events []agentcore.StreamEvent
	for {
		nl := bytes.IndexByte(d.buf, '\n')
		if nl < 0 {
			break
		}
		line := string(d.buf[:nl])
		d.buf = d.buf[nl+1:]

		events = append(events, d.decodeLine(line)...)
		if d.done {
			d.buf = nil
			break
		}
	}
	return events
}

// Flush surfaces any buffered partial line. Call once when the transport
// reports end of stream.
func (d *Decoder) Flush() []agentcore.StreamEvent {
	if d.done || len(d.buf) == 0 {
		return nil
	}
	line := string(d.buf)
	d.buf = nil
	return d.decodeLine(line)
}

// decodeLine handles one wire line. Non-matching and malformed lines are
// dropped, never fatal.
func (d *Decoder) decodeLine(line string) []agentcore.StreamEvent {
	line = strings.TrimSuffix(line, "\r")

	// Blank separators and SSE comments carry nothing.
	if line == "" || strings.HasPrefix(line, ":") {
		return nil
	}

	data, ok := strings.CutPrefix(line, "data:")
	if !ok {
		d.stats.DroppedLines++
		return nil
	}
	data = strings.TrimSpace(data)

	if data == doneSentinel {
		return d.finishNatural()
	}

	if !gjson.Valid(data) {
		d.stats.DroppedLines++
		return nil
	}
	frame := gjson.Parse(data)
	if !frame.Get("choices").Exists() && !frame.Get("usage").Exists() {
		d.stats.DroppedLines++
		return nil
	}
	d.stats.Frames++

	var events []agentcore.StreamEvent

	// Usage usually arrives only on the last frame; buffer the latest
	// observation until natural stop.
	if u := frame.Get("usage"); u.IsObject() {
		d.usage = &agentcore.UsageReport{
			PromptTokens:     int(u.Get("prompt_tokens").Int()),
			CompletionTokens: int(u.Get("completion_tokens").Int()),
			TotalTokens:      int(u.Get("total_tokens").Int()),
		}
	}

	// Reasoning precedes content for the same frame.
	if text, ok := firstString(frame, reasoningPaths); ok && text != "" {
		events = append(events, agentcore.StreamEvent{
			ReasoningDelta: &agentcore.ReasoningDelta{Text: text},
		})
	}
	if text, ok := firstString(frame, contentPaths); ok && text != "" {
		events = append(events, agentcore.StreamEvent{
			ContentDelta: &agentcore.ContentDelta{Text: text},
		})
	}

	for _, fragment := range frame.Get("choices.0.delta.tool_calls").Array() {
		d.accumulate(fragment)
	}

	switch finish := mapFinishReason(frame.Get("choices.0.finish_reason").String()); finish {
	case "":
		// mid-stream frame
	case agentcore.FinishToolCalls:
		events = append(events, d.finalizePending()...)
		d.done = true
	default:
		d.lastFinish = finish
		events = append(events, d.finishNatural()...)
	}

	return events
}

// accumulate folds one tool-call fragment into its pending call. Backends
// resend an empty name after the first fragment, so a non-empty name is
// never overwritten by a later empty one; arguments only ever grow.
func (d *Decoder) accumulate(fragment gjson.Result) {
	index := int(fragment.Get("index").Int())

	call, ok := d.pending[index]
	if !ok {
		call = &pendingToolCall{}
		d.pending[index] = call
		d.order = append(d.order, index)
	}

	if id := fragment.Get("id").String(); id != "" {
		call.id = id
	}
	if name := fragment.Get("function.name").String(); name != "" {
		call.name = name
	}
	call.args.WriteString(fragment.Get("function.arguments").String())
}

// finalizePending converts every pending call into a ToolCallRequest, in
// call-index order. An argument buffer that fails to parse becomes an
// empty object rather than a stream failure.
func (d *Decoder) finalizePending() []agentcore.StreamEvent {
	indexes := make([]int, len(d.order))
	copy(indexes, d.order)
	sort.Ints(indexes)

	events := make([]agentcore.StreamEvent, 0, len(indexes))
	for _, index := range indexes {
		call := d.pending[index]
		delete(d.pending, index)

		args := call.args.String()
		if args == "" {
			args = "{}"
		} else if !json.Valid([]byte(args)) {
			d.stats.MalformedArgs++
			args = "{}"
		}

		id := call.id
		if id == "" {
			id = "call_" + uuid.NewString()
		}

		events = append(events, agentcore.StreamEvent{
			ToolCall: &agentcore.ToolCallRequest{
				ID:        id,
				Name:      call.name,
				Arguments: args,
			},
		})
	}
	d.order = nil
	return events
}

// finishNatural emits buffered usage followed by Done and marks the
// decoder terminal.
func (d *Decoder) finishNatural() []agentcore.StreamEvent {
	if d.done {
		return nil
	}
	d.done = true

	var events []agentcore.StreamEvent
	if d.usage != nil {
		events = append(events, agentcore.StreamEvent{Usage: d.usage})
		d.usage = nil
	}
	finish := d.lastFinish
	if finish == "" {
		finish = agentcore.FinishStop
	}
	events = append(events, agentcore.StreamEvent{Done: &agentcore.Done{FinishReason: finish}})
	return events
}

func firstString(frame gjson.Result, paths []string) (string, bool) {
	for _, path := range paths {
		if r := frame.Get(path); r.Exists() && r.Type == gjson.String {
			return r.String(), true
		}
	}
	return "", false
}

func mapFinishReason(reason string) string {
	switch reason {
	case "":
		return ""
	case "stop", "end_turn":
		return agentcore.FinishStop
	case "tool_calls", "tool_use", "function_call":
		return agentcore.FinishToolCalls
	case "length", "max_tokens":
		return agentcore.FinishLength
	default:
		return reason
	}
}
