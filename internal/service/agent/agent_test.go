package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopassist/internal/models"
	"shopassist/internal/retry"
	"shopassist/internal/service/tools"
)

// scriptedModel answers each Generate with the next reply from script.
type scriptedModel struct {
	mu     sync.Mutex
	script func(call int, input []*schema.Message) (*schema.Message, error)
	calls  int
	inputs [][]*schema.Message
	tools  []*schema.ToolInfo
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.inputs = append(m.inputs, input)
	return m.script(m.calls, input)
}

func (m *scriptedModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func (m *scriptedModel) WithTools(infos []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	m.tools = infos
	return m, nil
}

type memoryStore struct {
	threads map[string][]models.Message
	appends int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{threads: map[string][]models.Message{}}
}

func (s *memoryStore) Load(_ context.Context, threadID string) ([]models.Message, error) {
	return s.threads[threadID], nil
}

func (s *memoryStore) Append(_ context.Context, threadID string, msgs []models.Message) error {
	s.appends++
	s.threads[threadID] = append(s.threads[threadID], msgs...)
	return nil
}

type stubCatalog struct{ items []models.ScoredItem }

func (c *stubCatalog) Count(context.Context) (int, error) { return len(c.items), nil }
func (c *stubCatalog) SimilaritySearch(context.Context, string, int) ([]models.ScoredItem, error) {
	return c.items, nil
}
func (c *stubCatalog) TextSearch(context.Context, string, int) ([]models.ScoredItem, error) {
	return nil, nil
}

func lookupCall(id, query string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       id,
		Type:     "function",
		Function: schema.FunctionCall{Name: tools.ItemLookupName, Arguments: fmt.Sprintf(`{"query":%q}`, query)},
	}})
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestAgent(t *testing.T, m *scriptedModel, store ThreadStore) *Agent {
	t.Helper()
	catalog := &stubCatalog{items: []models.ScoredItem{{Item: models.Item{ItemID: "sofa-1", ItemName: "Oslo Sofa"}, Score: 0.92}}}
	lookup := tools.NewItemLookup(catalog, nil).Tool()
	a, err := New(context.Background(), m, []tool.BaseTool{lookup}, store, Options{
		Retry: retry.Policy{Sleep: noSleep},
		Now:   func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return a
}

func TestCallAnswersDirectly(t *testing.T) {
	m := &scriptedModel{script: func(int, []*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage("Hello! How can I help?", nil), nil
	}}
	store := newMemoryStore()
	a := newTestAgent(t, m, store)

	answer, err := a.Call(context.Background(), "t1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help?", answer)
	assert.Equal(t, 1, m.calls)
	require.Len(t, m.tools, 1)
	assert.Equal(t, tools.ItemLookupName, m.tools[0].Name)

	input := m.inputs[0]
	require.Len(t, input, 2)
	assert.Equal(t, schema.System, input[0].Role)
	assert.Contains(t, input[0].Content, "item_lookup")
	assert.Contains(t, input[0].Content, "Current time: 2024-05-01T12:00:00Z")
	assert.Equal(t, "hi", input[1].Content)

	require.Len(t, store.threads["t1"], 2)
	assert.Equal(t, models.RoleUser, store.threads["t1"][0].Role)
	assert.Equal(t, models.RoleAssistant, store.threads["t1"][1].Role)
}

func TestCallRunsToolThenAnswers(t *testing.T) {
	m := &scriptedModel{script: func(call int, input []*schema.Message) (*schema.Message, error) {
		if call == 1 {
			return lookupCall("call_1", "sofa"), nil
		}
		last := input[len(input)-1]
		if last.Role != schema.Tool || !strings.Contains(last.Content, "Oslo Sofa") {
			return nil, fmt.Errorf("expected tool result, got %q", last.Content)
		}
		return schema.AssistantMessage("We have the Oslo Sofa.", nil), nil
	}}
	store := newMemoryStore()
	a := newTestAgent(t, m, store)

	answer, err := a.Call(context.Background(), "t1", "any sofas?")
	require.NoError(t, err)
	assert.Equal(t, "We have the Oslo Sofa.", answer)
	assert.Equal(t, 2, m.calls)

	turn := store.threads["t1"]
	require.Len(t, turn, 4)
	assert.Equal(t, models.RoleUser, turn[0].Role)
	require.Len(t, turn[1].ToolCalls, 1)
	assert.Equal(t, tools.ItemLookupName, turn[1].ToolCalls[0].Name)
	assert.Equal(t, models.RoleTool, turn[2].Role)
	assert.Equal(t, "call_1", turn[2].ToolCallID)
	assert.Contains(t, turn[2].Content, `"searchType":"vector"`)
	assert.Equal(t, "We have the Oslo Sofa.", turn[3].Content)
}

func TestCallToolMistakesReachTheModel(t *testing.T) {
	cases := map[string]struct {
		call   schema.FunctionCall
		reason string
	}{
		"bad arguments": {
			call:   schema.FunctionCall{Name: tools.ItemLookupName, Arguments: `{"query": 123}`},
			reason: "Invalid tool arguments",
		},
		"unknown tool": {
			call:   schema.FunctionCall{Name: "web_search", Arguments: `{"query":"sofa"}`},
			reason: "Unknown tool",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			m := &scriptedModel{script: func(call int, input []*schema.Message) (*schema.Message, error) {
				if call == 1 {
					return schema.AssistantMessage("", []schema.ToolCall{{ID: "c1", Type: "function", Function: tc.call}}), nil
				}
				last := input[len(input)-1]
				if last.Role != schema.Tool || !strings.Contains(last.Content, tc.reason) {
					return nil, fmt.Errorf("expected error tool result, got %q", last.Content)
				}
				return schema.AssistantMessage("Sorry, I could not search the inventory.", nil), nil
			}}
			store := newMemoryStore()
			a := newTestAgent(t, m, store)

			answer, err := a.Call(context.Background(), "t1", "any sofas?")
			require.NoError(t, err)
			assert.Equal(t, "Sorry, I could not search the inventory.", answer)
			assert.Equal(t, 2, m.calls)

			turn := store.threads["t1"]
			require.Len(t, turn, 4)
			assert.Equal(t, models.RoleTool, turn[2].Role)
			assert.Equal(t, "c1", turn[2].ToolCallID)
			assert.Contains(t, turn[2].Content, `"count":0`)
		})
	}
}

func TestCallCarriesThreadHistory(t *testing.T) {
	m := &scriptedModel{script: func(call int, _ []*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage(fmt.Sprintf("answer %d", call), nil), nil
	}}
	store := newMemoryStore()
	a := newTestAgent(t, m, store)

	_, err := a.Call(context.Background(), "t1", "first")
	require.NoError(t, err)
	_, err = a.Call(context.Background(), "t1", "second")
	require.NoError(t, err)
	_, err = a.Call(context.Background(), "t2", "elsewhere")
	require.NoError(t, err)

	second := m.inputs[1]
	require.Len(t, second, 4)
	assert.Equal(t, "first", second[1].Content)
	assert.Equal(t, "answer 1", second[2].Content)
	assert.Equal(t, "second", second[3].Content)

	assert.Len(t, m.inputs[2], 2)
	assert.Len(t, store.threads["t1"], 4)
}

func TestCallStopsEndlessToolLoop(t *testing.T) {
	m := &scriptedModel{script: func(call int, _ []*schema.Message) (*schema.Message, error) {
		return lookupCall(fmt.Sprintf("call_%d", call), "sofa"), nil
	}}
	store := newMemoryStore()
	a := newTestAgent(t, m, store)

	_, err := a.Call(context.Background(), "t1", "loop forever")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoopLimit)
	assert.True(t, strings.HasPrefix(err.Error(), "agent failed: "))
	// 15 transitions alternate agent and tools, so the model runs 8 times
	assert.Equal(t, 8, m.calls)
	assert.Zero(t, store.appends)
}

func TestCallRateLimitedAfterRetries(t *testing.T) {
	m := &scriptedModel{script: func(int, []*schema.Message) (*schema.Message, error) {
		return nil, &retry.StatusError{Code: http.StatusTooManyRequests, Err: errors.New("quota")}
	}}
	store := newMemoryStore()
	a := newTestAgent(t, m, store)

	_, err := a.Call(context.Background(), "t1", "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, ErrRateLimited.Error(), err.Error())
	assert.Equal(t, 3, m.calls)
	assert.Zero(t, store.appends)
}

func TestCallRecoversFromTransientRateLimit(t *testing.T) {
	m := &scriptedModel{script: func(call int, _ []*schema.Message) (*schema.Message, error) {
		if call == 1 {
			return nil, &retry.StatusError{Code: http.StatusTooManyRequests}
		}
		return schema.AssistantMessage("ok", nil), nil
	}}
	a := newTestAgent(t, m, newMemoryStore())

	answer, err := a.Call(context.Background(), "t1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
	assert.Equal(t, 2, m.calls)
}

func TestCallAuthFailure(t *testing.T) {
	m := &scriptedModel{script: func(int, []*schema.Message) (*schema.Message, error) {
		return nil, &retry.StatusError{Code: http.StatusUnauthorized, Err: errors.New("bad key")}
	}}
	a := newTestAgent(t, m, newMemoryStore())

	_, err := a.Call(context.Background(), "t1", "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, 1, m.calls)
}

func TestCallOtherFailure(t *testing.T) {
	m := &scriptedModel{script: func(int, []*schema.Message) (*schema.Message, error) {
		return nil, errors.New("connection reset")
	}}
	a := newTestAgent(t, m, newMemoryStore())

	_, err := a.Call(context.Background(), "t1", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent failed: ")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestClassifyReply(t *testing.T) {
	assert.Equal(t, replyAnswer, classifyReply(schema.AssistantMessage("done", nil)))
	assert.Equal(t, replyAnswer, classifyReply(nil))
	assert.Equal(t, replyToolCalls, classifyReply(lookupCall("c", "q")))
}
