package seed

import (
	"fmt"
	"strconv"
	"strings"

	"shopassist/internal/models"
)

// Summary is the text an item is embedded from and text-searched by.
func Summary(it models.Item) string {
	reviews := make([]string, 0, len(it.UserReviews))
	for _, r := range it.UserReviews {
		reviews = append(reviews, fmt.Sprintf("Rated %s on %s: %s", formatNumber(r.Rating), r.ReviewDate, r.Comment))
	}
	basicInfo := fmt.Sprintf("%s %s from the brand %s", it.ItemName, it.ItemDescription, it.Brand)
	price := fmt.Sprintf("At full price it costs: %s USD, On sale it costs: %s USD",
		formatNumber(it.Prices.FullPrice), formatNumber(it.Prices.SalePrice))

	return fmt.Sprintf("%s. Manufacturer: Made in %s. Categories: %s. Reviews: %s. Price: %s. Notes: %s",
		basicInfo,
		it.ManufacturerAddress.Country,
		strings.Join(it.Categories, ", "),
		strings.Join(reviews, " "),
		price,
		it.Notes,
	)
}

// formatNumber prints the shortest exact form: 1200, 4.5, 899.99.
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
