package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"shopassist/internal/retry"
)

const (
	nodeAgent = "agent"
	nodeTools = "tools"
)

// turnState is the graph local state of one Call. All writes happen inside
// eino state handlers or compose.ProcessState.
type turnState struct {
	history  []*schema.Message // loaded from the thread store
	produced []*schema.Message // new this turn, in order
	steps    int
	exceeded bool
	modelErr error
}

type turnKey struct{}

// step counts one node execution and fails once the limit is passed.
func (st *turnState) step(limit int) error {
	st.steps++
	if st.steps > limit {
		st.exceeded = true
		return fmt.Errorf("%w (%d steps)", ErrLoopLimit, limit)
	}
	return nil
}

func (st *turnState) conversation() []*schema.Message {
	msgs := make([]*schema.Message, 0, len(st.history)+len(st.produced))
	msgs = append(msgs, st.history...)
	return append(msgs, st.produced...)
}

func (a *Agent) buildGraph(ctx context.Context, toolsNode *compose.ToolsNode) (compose.Runnable[[]*schema.Message, *schema.Message], error) {
	g := compose.NewGraph[[]*schema.Message, *schema.Message](
		compose.WithGenLocalState(func(ctx context.Context) *turnState {
			// Call seeds the state through ctx so it can read the turn afterwards
			if st, ok := ctx.Value(turnKey{}).(*turnState); ok {
				return st
			}
			return &turnState{}
		}),
	)

	agentPre := func(_ context.Context, in []*schema.Message, st *turnState) ([]*schema.Message, error) {
		if err := st.step(a.maxSteps); err != nil {
			return nil, err
		}
		st.produced = append(st.produced, in...)
		return st.conversation(), nil
	}
	agentPost := func(_ context.Context, out *schema.Message, st *turnState) (*schema.Message, error) {
		st.produced = append(st.produced, out)
		return out, nil
	}
	toolsPre := func(_ context.Context, in *schema.Message, st *turnState) (*schema.Message, error) {
		if err := st.step(a.maxSteps); err != nil {
			return nil, err
		}
		return in, nil
	}

	if err := g.AddLambdaNode(nodeAgent, compose.InvokableLambda(a.callModel),
		compose.WithStatePreHandler(agentPre),
		compose.WithStatePostHandler(agentPost),
		compose.WithNodeName(nodeAgent),
	); err != nil {
		return nil, fmt.Errorf("add agent node: %w", err)
	}
	if err := g.AddToolsNode(nodeTools, toolsNode,
		compose.WithStatePreHandler(toolsPre),
		compose.WithNodeName(nodeTools),
	); err != nil {
		return nil, fmt.Errorf("add tools node: %w", err)
	}

	if err := g.AddEdge(compose.START, nodeAgent); err != nil {
		return nil, err
	}
	branch := compose.NewGraphBranch(func(_ context.Context, msg *schema.Message) (string, error) {
		if classifyReply(msg) == replyToolCalls {
			return nodeTools, nil
		}
		return compose.END, nil
	}, map[string]bool{nodeTools: true, compose.END: true})
	if err := g.AddBranch(nodeAgent, branch); err != nil {
		return nil, err
	}
	if err := g.AddEdge(nodeTools, nodeAgent); err != nil {
		return nil, err
	}

	// eino's own step guard stays above ours so ErrLoopLimit is what trips
	return g.Compile(ctx,
		compose.WithGraphName("shop_assistant"),
		compose.WithMaxRunSteps(a.maxSteps+10),
	)
}

// callModel is the agent node: system prompt plus conversation, rate limits retried.
func (a *Agent) callModel(ctx context.Context, msgs []*schema.Message) (*schema.Message, error) {
	input := make([]*schema.Message, 0, len(msgs)+1)
	input = append(input, systemMessage(a.now()))
	input = append(input, msgs...)

	out, err := retry.Do(ctx, a.retry, func(ctx context.Context) (*schema.Message, error) {
		return a.model.Generate(ctx, input)
	})
	if err != nil {
		_ = compose.ProcessState(ctx, func(_ context.Context, st *turnState) error {
			st.modelErr = err
			return nil
		})
		return nil, err
	}
	return out, nil
}
