package engine

import (
	"testing"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
)

func floatPtr(v float64) *float64 { return &v }
func int64Ptr(v int64) *int64     { return &v }

func TestPassesFilters(t *testing.T) {
	tests := []struct {
		name     string
		price    float64
		volume   int64
		filters  *models.Filters
		expected bool
	}{
		{"nil filters pass", 600.0, 100, nil, true},
		{"empty filters pass", 600.0, 100, &models.Filters{}, true},
		{"within bounds", 150.0, 2_000_000, &models.Filters{
			MinPrice: floatPtr(10), MaxPrice: floatPtr(500), MinVolume: int64Ptr(1_000_000),
		}, true},
		{"price above max", 600.0, 2_000_000, &models.Filters{
			MinPrice: floatPtr(10), MaxPrice: floatPtr(500),
		}, false},
		{"price below min", 5.0, 2_000_000, &models.Filters{
			MinPrice: floatPtr(10),
		}, false},
		{"price at min is inclusive", 10.0, 2_000_000, &models.Filters{
			MinPrice: floatPtr(10),
		}, true},
		{"price at max is inclusive", 500.0, 2_000_000, &models.Filters{
			MaxPrice: floatPtr(500),
		}, true},
		{"volume below min", 150.0, 500_000, &models.Filters{
			MinVolume: int64Ptr(1_000_000),
		}, false},
		{"volume at min is inclusive", 150.0, 1_000_000, &models.Filters{
			MinVolume: int64Ptr(1_000_000),
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot := testSnapshot(tt.price, tt.volume, nil)
			got := PassesFilters(snapshot, tt.filters)
			if got != tt.expected {
				t.Errorf("PassesFilters() = %v, want %v", got, tt.expected)
			}
		})
	}
}
