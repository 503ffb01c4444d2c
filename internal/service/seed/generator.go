package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"shopassist/internal/models"
	"shopassist/internal/retry"
)

const generatorPrompt = "You are a helpful assistant that generates furniture store item data."

const formatInstructions = `Respond with a JSON array only, without markdown or commentary. Every element must match this shape:
{
  "item_id": "string",
  "item_name": "string",
  "item_description": "string",
  "brand": "string",
  "manufacturer_address": {"street": "string", "city": "string", "state": "string", "postal_code": "string", "country": "string"},
  "prices": {"full_price": number, "sale_price": number},
  "categories": ["string"],
  "user_reviews": [{"review_date": "YYYY-MM-DD", "rating": number, "comment": "string"}],
  "notes": "string"
}`

// Generator asks a chat model for synthetic catalog items.
type Generator struct {
	model model.BaseChatModel
	retry retry.Policy
}

func NewGenerator(m model.BaseChatModel, policy retry.Policy) *Generator {
	return &Generator{model: m, retry: policy}
}

// Generate returns count validated items.
func (g *Generator) Generate(ctx context.Context, count int) ([]models.Item, error) {
	if count <= 0 {
		return nil, errors.New("item count must be positive")
	}
	userPrompt := fmt.Sprintf("Generate %d furniture store items. Each record should include the following "+
		"fields: item_id, item_name, item_description, brand, manufacturer_address, prices, categories, user_reviews, notes. "+
		"Ensure variety in the data and realistic values.\n\n%s", count, formatInstructions)

	msgs := []*schema.Message{
		{Role: schema.System, Content: generatorPrompt},
		{Role: schema.User, Content: userPrompt},
	}
	resp, err := retry.Do(ctx, g.retry, func(ctx context.Context) (*schema.Message, error) {
		return g.model.Generate(ctx, msgs)
	})
	if err != nil {
		return nil, fmt.Errorf("generate items failed: %w", err)
	}
	return ParseItems(resp.Content)
}

// ParseItems decodes a JSON array of items, tolerating a surrounding code fence.
func ParseItems(raw string) ([]models.Item, error) {
	body := stripCodeFence(raw)
	var items []models.Item
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if err := validateItems(items); err != nil {
		return nil, err
	}
	return items, nil
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop the language tag line, e.g. ```json
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func validateItems(items []models.Item) error {
	if len(items) == 0 {
		return errors.New("no items")
	}
	seen := make(map[string]struct{}, len(items))
	for i, it := range items {
		if strings.TrimSpace(it.ItemID) == "" {
			return fmt.Errorf("item %d: item_id is required", i)
		}
		if strings.TrimSpace(it.ItemName) == "" {
			return fmt.Errorf("item %s: item_name is required", it.ItemID)
		}
		if _, dup := seen[it.ItemID]; dup {
			return fmt.Errorf("item %s: duplicate item_id", it.ItemID)
		}
		seen[it.ItemID] = struct{}{}
	}
	return nil
}
