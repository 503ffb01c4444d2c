package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopassist/internal/models"
)

type fakeCatalog struct {
	count     int
	countErr  error
	vector    []models.ScoredItem
	vectorErr error
	text      []models.ScoredItem
	textErr   error

	vectorCalls int
	textCalls   int
	lastLimit   int
}

func (f *fakeCatalog) Count(context.Context) (int, error) {
	return f.count, f.countErr
}

func (f *fakeCatalog) SimilaritySearch(_ context.Context, _ string, limit int) ([]models.ScoredItem, error) {
	f.vectorCalls++
	f.lastLimit = limit
	return f.vector, f.vectorErr
}

func (f *fakeCatalog) TextSearch(_ context.Context, _ string, limit int) ([]models.ScoredItem, error) {
	f.textCalls++
	f.lastLimit = limit
	return f.text, f.textErr
}

func item(id string) models.ScoredItem {
	return models.ScoredItem{Item: models.Item{ItemID: id, ItemName: id}}
}

func TestLookupEmptyCatalogSkipsSearch(t *testing.T) {
	cat := &fakeCatalog{}
	res := NewItemLookup(cat, nil).Lookup(context.Background(), "sofa", 0)

	require.True(t, res.IsError())
	assert.Equal(t, "No items found in inventory", res.Error)
	assert.Equal(t, "The inventory database appears to be empty", res.Message)
	assert.Equal(t, "sofa", res.Query)
	assert.Zero(t, res.Count)
	assert.Zero(t, cat.vectorCalls)
	assert.Zero(t, cat.textCalls)
}

func TestLookupVectorMatches(t *testing.T) {
	cat := &fakeCatalog{count: 5, vector: []models.ScoredItem{item("a"), item("b")}}
	res := NewItemLookup(cat, nil).Lookup(context.Background(), "sofa", 0)

	require.False(t, res.IsError())
	assert.Equal(t, SearchTypeVec, res.SearchType)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, "sofa", res.Query)
	assert.Equal(t, DefaultLookupN, cat.lastLimit)
	assert.Zero(t, cat.textCalls)
}

func TestLookupTextFallback(t *testing.T) {
	cat := &fakeCatalog{count: 5, text: []models.ScoredItem{item("desk")}}
	res := NewItemLookup(cat, nil).Lookup(context.Background(), "desk", 3)

	require.False(t, res.IsError())
	assert.Equal(t, SearchTypeText, res.SearchType)
	assert.Equal(t, 1, res.Count)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "desk", res.Results[0].ItemID)
	assert.Equal(t, 1, cat.vectorCalls)
	assert.Equal(t, 1, cat.textCalls)
	assert.Equal(t, 3, cat.lastLimit)
}

func TestLookupNoMatchesAnywhere(t *testing.T) {
	cat := &fakeCatalog{count: 5}
	res := NewItemLookup(cat, nil).Lookup(context.Background(), "spaceship", 0)

	require.False(t, res.IsError())
	assert.Equal(t, SearchTypeText, res.SearchType)
	assert.Zero(t, res.Count)
	assert.NotNil(t, res.Results)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"results":[],"searchType":"text","query":"spaceship","count":0}`, string(data))
}

func TestLookupCatalogErrorsBecomeResults(t *testing.T) {
	boom := errors.New("connection refused")
	cases := map[string]*fakeCatalog{
		"count":  {countErr: boom},
		"vector": {count: 1, vectorErr: boom},
		"text":   {count: 1, textErr: boom},
	}
	for name, cat := range cases {
		t.Run(name, func(t *testing.T) {
			res := NewItemLookup(cat, nil).Lookup(context.Background(), "lamp", 0)
			require.True(t, res.IsError())
			assert.Equal(t, "Failed to search inventory", res.Error)
			assert.Equal(t, "connection refused", res.Details)
			assert.Equal(t, "lamp", res.Query)
		})
	}
}

func TestItemLookupToolInvocation(t *testing.T) {
	cat := &fakeCatalog{count: 2, vector: []models.ScoredItem{{Item: models.Item{ItemID: "a"}, Score: 0.9}}}
	lookup := NewItemLookup(cat, nil).Tool()

	info, err := lookup.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ItemLookupName, info.Name)

	out, err := lookup.InvokableRun(context.Background(), `{"query":"chair","n":4}`)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "vector", decoded["searchType"])
	assert.Equal(t, "chair", decoded["query"])
	assert.EqualValues(t, 1, decoded["count"])
	assert.Equal(t, 4, cat.lastLimit)
	assert.NotContains(t, decoded, "error")
}

func TestErrorResultShape(t *testing.T) {
	data, err := json.Marshal(Failure("No items found in inventory", "The inventory database appears to be empty", "", ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"No items found in inventory","message":"The inventory database appears to be empty","count":0}`, string(data))
}

func TestItemLookupToolRejectsMalformedArguments(t *testing.T) {
	cat := &fakeCatalog{count: 2}
	lookup := NewItemLookup(cat, nil).Tool()

	for _, args := range []string{`{"query": 123}`, `not json`} {
		out, err := lookup.InvokableRun(context.Background(), args)
		require.NoError(t, err, args)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &decoded))
		assert.Equal(t, "Invalid tool arguments", decoded["error"])
		assert.NotEmpty(t, decoded["details"])
		assert.Equal(t, args, decoded["query"])
		assert.EqualValues(t, 0, decoded["count"])
		assert.NotContains(t, decoded, "results")
	}
	assert.Zero(t, cat.vectorCalls)
}

func TestUnknownToolAnswersWithErrorResult(t *testing.T) {
	out, err := UnknownTool(context.Background(), "web_search", `{"q":"sofa"}`)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "Unknown tool", decoded["error"])
	assert.Contains(t, decoded["message"], "web_search")
	assert.EqualValues(t, 0, decoded["count"])
}
