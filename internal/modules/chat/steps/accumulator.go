package steps

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/kierachat-backend/internal/platform/openrouter"
)

type pendingToolCall struct {
	ID   string
	Type string
	Name strings.Builder
	Args strings.Builder
}

// streamAccumulator folds stream deltas into the reply. Content and
// reasoning persist across tool iterations; tool calls and the per-turn
// text reset with every new request.
type streamAccumulator struct {
	content  strings.Builder
	thinking strings.Builder
	turn     strings.Builder
	calls    map[int]*pendingToolCall
	counter  int
	sawTools bool
}

func newStreamAccumulator() *streamAccumulator {
	return &streamAccumulator{calls: map[int]*pendingToolCall{}}
}

func (a *streamAccumulator) beginTurn() {
	a.turn.Reset()
	a.calls = map[int]*pendingToolCall{}
	a.counter = 0
	a.sawTools = false
}

// apply folds one frame and reports whether it carried anything that changes
// what the user sees, plus the raw content and reasoning increments.
func (a *streamAccumulator) apply(chunk openrouter.StreamChunk) (changed bool, content string, reasoning string) {
	a.counter++
	d, ok := chunk.FirstDelta()
	if !ok {
		return false, "", ""
	}
	if d.Reasoning != "" {
		a.thinking.WriteString(d.Reasoning)
		changed = true
	}
	if d.Content != "" {
		a.content.WriteString(d.Content)
		a.turn.WriteString(d.Content)
		changed = true
	}
	if len(d.ToolCalls) > 0 {
		a.sawTools = true
		for _, tc := range d.ToolCalls {
			p, ok := a.calls[tc.Index]
			if !ok {
				p = &pendingToolCall{ID: tc.ID, Type: tc.Type}
				a.calls[tc.Index] = p
			}
			if p.ID == "" && tc.ID != "" {
				p.ID = tc.ID
			}
			if p.Type == "" && tc.Type != "" {
				p.Type = tc.Type
			}
			p.Name.WriteString(tc.Function.Name)
			p.Args.WriteString(tc.Function.Arguments)
		}
		changed = true
	}
	return changed, d.Content, d.Reasoning
}

// shouldPatch is the write-throttling rule: every Nth frame (3 for reasoning
// models, 10 otherwise), or immediately on a word boundary or reasoning.
func (a *streamAccumulator) shouldPatch(changed bool, reasoningModel bool, content string, reasoning string) bool {
	if !changed {
		return false
	}
	every := contentEveryN
	if reasoningModel {
		every = reasoningEveryN
	}
	return a.counter%every == 0 || strings.Contains(content, " ") || reasoning != ""
}

func (a *streamAccumulator) indexes() []int {
	idx := make([]int, 0, len(a.calls))
	for i := range a.calls {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

func (a *streamAccumulator) toolNames() []string {
	var names []string
	for _, i := range a.indexes() {
		if n := a.calls[i].Name.String(); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// toolCalls returns the named calls of the current turn in index order.
func (a *streamAccumulator) toolCalls() []openrouter.ToolCall {
	var out []openrouter.ToolCall
	for _, i := range a.indexes() {
		p := a.calls[i]
		name := p.Name.String()
		if name == "" {
			continue
		}
		typ := p.Type
		if typ == "" {
			typ = "function"
		}
		out = append(out, openrouter.ToolCall{
			ID:       p.ID,
			Type:     typ,
			Function: openrouter.FunctionCall{Name: name, Arguments: p.Args.String()},
		})
	}
	return out
}

// display is what the placeholder shows while streaming.
func (a *streamAccumulator) display() string {
	out := a.content.String()
	if a.sawTools {
		if names := a.toolNames(); len(names) > 0 {
			out += fmt.Sprintf(toolStatusUsing, strings.Join(names, ", "))
		}
	}
	return out
}

func (a *streamAccumulator) thinkingPtr() *string {
	if a.thinking.Len() == 0 {
		return nil
	}
	s := a.thinking.String()
	return &s
}
