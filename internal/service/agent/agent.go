package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"shopassist/internal/logging"
	"shopassist/internal/models"
	"shopassist/internal/retry"
	"shopassist/internal/service/conversation"
	toolspkg "shopassist/internal/service/tools"
)

const DefaultMaxSteps = 15

var (
	ErrLoopLimit   = errors.New("recursion limit reached without a final answer")
	ErrRateLimited = errors.New("Service temporarily unavailable due to rate limits. Please try again in a minute.")
	ErrAuthFailed  = errors.New("Authentication failed. Please check your API configuration.")
)

// ThreadStore is where conversation histories live.
type ThreadStore interface {
	Load(ctx context.Context, threadID string) ([]models.Message, error)
	Append(ctx context.Context, threadID string, messages []models.Message) error
}

type Options struct {
	// MaxSteps bounds agent and tools executions per call.
	MaxSteps int
	Retry    retry.Policy
	Logger   *zap.Logger
	// Now is used for the time in the system prompt.
	Now func() time.Time
}

// Agent runs the agent/tools loop for one thread at a time.
type Agent struct {
	model    model.ToolCallingChatModel
	store    ThreadStore
	runnable compose.Runnable[[]*schema.Message, *schema.Message]
	maxSteps int
	retry    retry.Policy
	logger   *zap.Logger
	now      func() time.Time
}

// New binds tools to chatModel and compiles the conversation graph.
func New(ctx context.Context, chatModel model.ToolCallingChatModel, tools []tool.BaseTool, store ThreadStore, opts Options) (*Agent, error) {
	if chatModel == nil || store == nil {
		return nil, errors.New("chat model and thread store are required")
	}
	a := &Agent{
		store:    store,
		maxSteps: opts.MaxSteps,
		retry:    opts.Retry,
		logger:   logging.OrNop(opts.Logger),
		now:      opts.Now,
	}
	if a.maxSteps <= 0 {
		a.maxSteps = DefaultMaxSteps
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.retry.Logger == nil {
		a.retry.Logger = a.logger
	}

	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		infos = append(infos, info)
	}
	bound, err := chatModel.WithTools(infos)
	if err != nil {
		return nil, fmt.Errorf("bind tools: %w", err)
	}
	a.model = bound

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               tools,
		UnknownToolsHandler: toolspkg.UnknownTool,
	})
	if err != nil {
		return nil, fmt.Errorf("new tools node: %w", err)
	}
	a.runnable, err = a.buildGraph(ctx, toolsNode)
	if err != nil {
		return nil, fmt.Errorf("compile graph: %w", err)
	}
	return a, nil
}

// Call adds text to the thread, runs the loop until the model answers without
// tool calls, stores the turn and returns the answer. Nothing is stored when
// the run fails.
func (a *Agent) Call(ctx context.Context, threadID, text string) (string, error) {
	answer, err := a.run(ctx, threadID, text)
	if err != nil {
		a.logger.Error("agent call failed", zap.String("thread_id", threadID), zap.Error(err))
		return "", classifyError(err)
	}
	return answer, nil
}

func (a *Agent) run(ctx context.Context, threadID, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("message must not be empty")
	}
	stored, err := a.store.Load(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("load thread: %w", err)
	}

	st := &turnState{history: conversation.ToSchema(stored)}
	final, err := a.runnable.Invoke(context.WithValue(ctx, turnKey{}, st), []*schema.Message{schema.UserMessage(text)})
	switch {
	case st.exceeded:
		return "", fmt.Errorf("%w (%d steps)", ErrLoopLimit, a.maxSteps)
	case st.modelErr != nil:
		return "", st.modelErr
	case err != nil:
		return "", err
	case final == nil:
		return "", errors.New("model returned no message")
	}

	if err := a.store.Append(ctx, threadID, conversation.FromSchema(threadID, st.produced)); err != nil {
		return "", fmt.Errorf("save thread: %w", err)
	}
	a.logger.Info("agent answered",
		zap.String("thread_id", threadID),
		zap.Int("steps", st.steps),
		zap.Int("messages", len(st.produced)),
	)
	return final.Content, nil
}

// callError reports kind to users and keeps cause for errors.Is / errors.As.
type callError struct {
	kind  error
	cause error
}

func (e *callError) Error() string   { return e.kind.Error() }
func (e *callError) Unwrap() []error { return []error{e.kind, e.cause} }

func classifyError(err error) error {
	switch {
	case retry.IsRateLimited(err):
		return &callError{kind: ErrRateLimited, cause: err}
	case retry.IsUnauthorized(err):
		return &callError{kind: ErrAuthFailed, cause: err}
	}
	return fmt.Errorf("agent failed: %w", err)
}
