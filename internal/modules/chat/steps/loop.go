package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
	"github.com/yungbote/kierachat-backend/internal/platform/openrouter"
	"github.com/yungbote/kierachat-backend/internal/tools"
)

type respondState int

const (
	stateIdle respondState = iota
	stateRequesting
	stateStreaming
	stateToolExecuting
	stateCompleted
	stateFailed
)

func (s respondState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRequesting:
		return "requesting"
	case stateStreaming:
		return "streaming"
	case stateToolExecuting:
		return "tool_executing"
	case stateCompleted:
		return "completed"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// responder drives the tool loop. Each pass through Requesting counts as one
// iteration; after MaxToolIterations the loop completes with whatever content
// has accumulated so far.
type responder struct {
	ai    openrouter.Client
	tools *tools.Executor
	log   *logger.Logger
	patch *patcher
	acc   *streamAccumulator

	model     string
	reasoning bool
	messages  []openrouter.ChatMessage

	state     respondState
	iteration int
	toolCalls int
	request   openrouter.ChatRequest
	pending   []openrouter.ToolCall
}

func (r *responder) run(ctx context.Context) error {
	r.state = stateRequesting
	for {
		switch r.state {
		case stateRequesting:
			if r.iteration >= MaxToolIterations {
				r.log.Warn("Tool iteration cap reached", "iterations", r.iteration)
				r.state = stateCompleted
				continue
			}
			r.iteration++
			r.acc.beginTurn()
			r.request = r.buildRequest()
			r.state = stateStreaming

		case stateStreaming:
			if err := r.ai.StreamChat(ctx, r.request, r.onChunk(ctx)); err != nil {
				return err
			}
			r.pending = r.acc.toolCalls()
			if len(r.pending) == 0 {
				r.state = stateCompleted
				continue
			}
			r.state = stateToolExecuting

		case stateToolExecuting:
			if err := r.executeTools(ctx); err != nil {
				return err
			}
			r.state = stateRequesting

		case stateCompleted, stateFailed:
			return nil

		default:
			return fmt.Errorf("respond: unexpected state %s", r.state)
		}
	}
}

func (r *responder) buildRequest() openrouter.ChatRequest {
	req := openrouter.ChatRequest{
		Model:       r.model,
		Messages:    append([]openrouter.ChatMessage(nil), r.messages...),
		Temperature: ResponseTemp,
		MaxTokens:   ResponseMaxTokens,
		Stream:      true,
	}
	if r.tools != nil {
		for _, def := range r.tools.Definitions() {
			req.Tools = append(req.Tools, openrouter.FunctionTool(def))
		}
	}
	if r.reasoning {
		req.ReasoningEffort = ReasoningEffort
	}
	return req
}

func (r *responder) onChunk(ctx context.Context) func(openrouter.StreamChunk) error {
	return func(chunk openrouter.StreamChunk) error {
		changed, content, reasoning := r.acc.apply(chunk)
		if !r.acc.shouldPatch(changed, r.reasoning, content, reasoning) {
			return nil
		}
		return r.patch.progress(ctx, r.acc.display(), r.acc.thinkingPtr())
	}
}

func (r *responder) executeTools(ctx context.Context) error {
	calls := r.pending
	r.pending = nil

	var assistantContent any
	if text := r.acc.turn.String(); text != "" {
		assistantContent = text
	}
	r.messages = append(r.messages, openrouter.ChatMessage{
		Role:      openrouter.RoleAssistant,
		Content:   assistantContent,
		ToolCalls: calls,
	})

	batch := make([]tools.Call, 0, len(calls))
	for _, c := range calls {
		batch = append(batch, tools.Call{ID: c.ID, Name: c.Function.Name, Arguments: c.Function.Arguments})
	}
	var results []tools.Result
	if r.tools != nil {
		results = r.tools.Execute(ctx, batch)
	} else {
		for _, c := range batch {
			results = append(results, tools.Result{CallID: c.ID, Name: c.Name, Content: "Error executing tool: unknown tool " + c.Name})
		}
	}
	r.toolCalls += len(results)
	for _, res := range results {
		r.messages = append(r.messages, openrouter.ChatMessage{
			Role:       openrouter.RoleTool,
			ToolCallID: res.CallID,
			Name:       res.Name,
			Content:    res.Content,
		})
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	err := r.patch.progress(ctx, r.acc.content.String()+toolStatusExecuted, r.acc.thinkingPtr())
	if errors.Is(err, errPlaceholderGone) {
		return err
	}
	return nil
}
