package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"shopassist/internal/logging"
	"shopassist/internal/models"
)

const (
	ItemLookupName  = "item_lookup"
	DefaultLookupN  = 10
	SearchTypeVec   = "vector"
	SearchTypeText  = "text"
	errEmptyCatalog = "No items found in inventory"
	errSearchFailed = "Failed to search inventory"
	errBadArguments = "Invalid tool arguments"
	errUnknownTool  = "Unknown tool"
)

// Catalog is the read side of the inventory used by item_lookup.
type Catalog interface {
	Count(ctx context.Context) (int, error)
	SimilaritySearch(ctx context.Context, query string, limit int) ([]models.ScoredItem, error)
	TextSearch(ctx context.Context, query string, limit int) ([]models.ScoredItem, error)
}

// LookupResult is what the model sees from item_lookup. It is either a match
// (Results, SearchType) or an error (Error plus Message or Details).
type LookupResult struct {
	Results    []models.ScoredItem `json:"results"`
	SearchType string              `json:"searchType,omitempty"`
	Error      string              `json:"error,omitempty"`
	Message    string              `json:"message,omitempty"`
	Details    string              `json:"details,omitempty"`
	Query      string              `json:"query,omitempty"`
	Count      int                 `json:"count"`
}

// Matches builds a match result.
func Matches(query, searchType string, items []models.ScoredItem) *LookupResult {
	if items == nil {
		items = []models.ScoredItem{}
	}
	return &LookupResult{
		Results:    items,
		SearchType: searchType,
		Query:      query,
		Count:      len(items),
	}
}

// Failure builds an error result. Count is always 0.
func Failure(reason, message, details, query string) *LookupResult {
	return &LookupResult{
		Error:   reason,
		Message: message,
		Details: details,
		Query:   query,
	}
}

// MarshalJSON emits match results with a results array, even an empty one,
// and error results without it.
func (r LookupResult) MarshalJSON() ([]byte, error) {
	if r.Error != "" {
		return json.Marshal(struct {
			Error   string `json:"error"`
			Message string `json:"message,omitempty"`
			Details string `json:"details,omitempty"`
			Query   string `json:"query,omitempty"`
			Count   int    `json:"count"`
		}{r.Error, r.Message, r.Details, r.Query, 0})
	}
	type plain LookupResult
	p := plain(r)
	if p.Results == nil {
		p.Results = []models.ScoredItem{}
	}
	return json.Marshal(p)
}

func marshalLookupResult(_ context.Context, output interface{}) (string, error) {
	out, err := json.Marshal(output)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// IsError reports whether r is an error result.
func (r *LookupResult) IsError() bool {
	return r != nil && r.Error != ""
}

type itemLookupParams struct {
	Query string `json:"query"`
	N     int    `json:"n,omitempty"`

	// set when the model sent arguments that do not decode
	decodeErr error
	raw       string
}

func decodeLookupParams(_ context.Context, arguments string) (interface{}, error) {
	params := &itemLookupParams{}
	if err := json.Unmarshal([]byte(arguments), params); err != nil {
		return &itemLookupParams{decodeErr: err, raw: arguments}, nil
	}
	return params, nil
}

// ItemLookup searches the catalog for items matching a free-text query.
type ItemLookup struct {
	catalog Catalog
	logger  *zap.Logger
}

func NewItemLookup(catalog Catalog, logger *zap.Logger) *ItemLookup {
	return &ItemLookup{catalog: catalog, logger: logging.OrNop(logger)}
}

// Tool exposes the lookup as an eino tool named item_lookup.
func (l *ItemLookup) Tool() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: ItemLookupName,
		Desc: "Gathers furniture item details from the Inventory database",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "The search query",
				Type:     schema.String,
				Required: true,
			},
			"n": {
				Desc:     "Number of results to return (default 10)",
				Type:     schema.Integer,
				Required: false,
			},
		}),
	}
	return utils.NewTool(info, l.run,
		utils.WithUnmarshalArguments(decodeLookupParams),
		utils.WithMarshalOutput(marshalLookupResult),
	)
}

func (l *ItemLookup) run(ctx context.Context, params *itemLookupParams) (*LookupResult, error) {
	if params == nil {
		params = &itemLookupParams{}
	}
	if params.decodeErr != nil {
		l.logger.Warn("item lookup arguments rejected", zap.String("arguments", params.raw), zap.Error(params.decodeErr))
		return Failure(errBadArguments, "", params.decodeErr.Error(), params.raw), nil
	}
	return l.Lookup(ctx, params.Query, params.N), nil
}

// Lookup never fails: catalog errors become an error result so the model can
// tell the user the inventory is unavailable.
func (l *ItemLookup) Lookup(ctx context.Context, query string, n int) *LookupResult {
	query = strings.TrimSpace(query)
	if n <= 0 {
		n = DefaultLookupN
	}
	l.logger.Info("item lookup", zap.String("query", query), zap.Int("n", n))

	total, err := l.catalog.Count(ctx)
	if err != nil {
		return l.failed(query, err)
	}
	if total == 0 {
		l.logger.Warn("inventory is empty")
		return Failure(errEmptyCatalog, "The inventory database appears to be empty", "", query)
	}

	items, err := l.catalog.SimilaritySearch(ctx, query, n)
	if err != nil {
		return l.failed(query, err)
	}
	if len(items) > 0 {
		return Matches(query, SearchTypeVec, items)
	}

	items, err = l.catalog.TextSearch(ctx, query, n)
	if err != nil {
		return l.failed(query, err)
	}
	return Matches(query, SearchTypeText, items)
}

func (l *ItemLookup) failed(query string, err error) *LookupResult {
	l.logger.Error("item lookup failed", zap.String("query", query), zap.Error(err))
	return Failure(errSearchFailed, "", err.Error(), query)
}

// UnknownTool answers a call to a tool that is not registered with an error
// result, so the model can recover instead of the run failing.
func UnknownTool(ctx context.Context, name, input string) (string, error) {
	return marshalLookupResult(ctx, Failure(errUnknownTool, fmt.Sprintf("No tool named %q is available; use %s", name, ItemLookupName), "", input))
}
