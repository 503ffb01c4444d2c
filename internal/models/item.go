package models

// Address is the manufacturer location of a catalog item.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type Prices struct {
	FullPrice float64 `json:"full_price"`
	SalePrice float64 `json:"sale_price"`
}

type Review struct {
	ReviewDate string  `json:"review_date"`
	Rating     float64 `json:"rating"`
	Comment    string  `json:"comment"`
}

// Item is a catalog record. EmbeddingText is the summary the embedding was computed from.
type Item struct {
	ItemID              string    `json:"item_id"`
	ItemName            string    `json:"item_name"`
	ItemDescription     string    `json:"item_description"`
	Brand               string    `json:"brand"`
	ManufacturerAddress Address   `json:"manufacturer_address"`
	Prices              Prices    `json:"prices"`
	Categories          []string  `json:"categories"`
	UserReviews         []Review  `json:"user_reviews"`
	Notes               string    `json:"notes"`
	EmbeddingText       string    `json:"embedding_text,omitempty"`
	Embedding           []float32 `json:"-"`
}

// ScoredItem is an Item returned by a catalog search. Score is only set for similarity matches.
type ScoredItem struct {
	Item
	Score float32 `json:"score,omitempty"`
}
