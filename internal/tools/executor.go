package tools

import (
	"context"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
)

const (
	DefaultParallelism = 4
	errorPrefix        = "Error executing tool: "
)

// Call is one model-requested invocation.
type Call struct {
	ID        string
	Name      string
	Arguments string
}

// Result pairs a call with the text handed back to the model.
type Result struct {
	CallID  string
	Name    string
	Content string
	Err     error
}

type Executor struct {
	log   *logger.Logger
	byKey map[string]Tool
	list  []Tool
	limit int
}

func NewExecutor(log *logger.Logger, parallelism int, tools ...Tool) *Executor {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	e := &Executor{
		log:   log.With("component", "ToolExecutor"),
		byKey: map[string]Tool{},
		limit: parallelism,
	}
	for _, t := range tools {
		if t == nil {
			continue
		}
		e.byKey[t.Name()] = t
		e.list = append(e.list, t)
	}
	return e
}

func (e *Executor) Definitions() []openai.FunctionDefinition {
	out := make([]openai.FunctionDefinition, 0, len(e.list))
	for _, t := range e.list {
		out = append(out, t.Definition())
	}
	return out
}

// Execute runs calls with bounded parallelism. Results line up with calls
// by index and failures become error strings rather than errors.
func (e *Executor) Execute(ctx context.Context, calls []Call) []Result {
	results := make([]Result, len(calls))
	var g errgroup.Group
	g.SetLimit(e.limit)
	for i, c := range calls {
		i, c := i, c
		g.Go(func() error {
			results[i] = e.run(ctx, c)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Executor) run(ctx context.Context, c Call) Result {
	res := Result{CallID: c.ID, Name: c.Name}
	t, ok := e.byKey[c.Name]
	if !ok {
		res.Content = errorPrefix + "unknown tool " + c.Name
		e.log.Warn("unknown tool requested", "tool", c.Name)
		return res
	}
	start := time.Now()
	out, err := t.Call(ctx, c.Arguments)
	if err != nil {
		res.Err = err
		res.Content = errorPrefix + err.Error()
		e.log.Warn("tool failed", "tool", c.Name, "error", err, "elapsed", time.Since(start).String())
		return res
	}
	res.Content = out
	e.log.Debug("tool done", "tool", c.Name, "elapsed", time.Since(start).String())
	return res
}
