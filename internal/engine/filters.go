package engine

import (
	"github.com/mohamedkhairy/trade-alerter/internal/models"
)

// PassesFilters applies a rule's coarse eligibility gate to a snapshot before
// any condition runs. Bounds are inclusive; a nil bound imposes no
// constraint. A nil Filters passes everything.
func PassesFilters(snapshot *models.MarketSnapshot, filters *models.Filters) bool {
	if filters == nil {
		return true
	}
	if filters.MinPrice != nil && snapshot.Price < *filters.MinPrice {
		return false
	}
	if filters.MaxPrice != nil && snapshot.Price > *filters.MaxPrice {
		return false
	}
	if filters.MinVolume != nil && snapshot.Volume < *filters.MinVolume {
		return false
	}
	return true
}
