// Package urbandata is the boundary to the public-data adapters (census,
// air quality, housing). The real adapters live outside the core; the static
// provider backs local runs and tests with plausible fixtures.
package urbandata

import (
	"context"
	"strings"
)

// Query selects the city (and optional region) to fetch a baseline for.
type Query struct {
	City   string
	Region string
}

// Snapshot is the measured baseline for a city at fetch time.
type Snapshot struct {
	City               string   `json:"city"`
	Population         float64  `json:"population"`
	MedianIncome       float64  `json:"medianIncome"`
	HousingUnits       float64  `json:"housingUnits"`
	AirQualityIndex    float64  `json:"airQualityIndex"`
	PublicTransitUsage float64  `json:"publicTransitUsage"`
	Sources            []string `json:"sources,omitempty"`
}

// Provider fetches the urban-data baseline for a query.
type Provider interface {
	Fetch(ctx context.Context, q Query) (*Snapshot, error)
}

// StaticProvider serves fixed baselines, keyed by lowercased city name, with
// a generic fallback for unknown cities.
type StaticProvider struct {
	byCity map[string]Snapshot
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		byCity: map[string]Snapshot{
			"san francisco": {
				Population:         873965,
				MedianIncome:       126187,
				HousingUnits:       407254,
				AirQualityIndex:    42,
				PublicTransitUsage: 0.34,
			},
			"portland": {
				Population:         652503,
				MedianIncome:       78476,
				HousingUnits:       293931,
				AirQualityIndex:    38,
				PublicTransitUsage: 0.12,
			},
		},
	}
}

func (p *StaticProvider) Fetch(_ context.Context, q Query) (*Snapshot, error) {
	snap, ok := p.byCity[strings.ToLower(strings.TrimSpace(q.City))]
	if !ok {
		snap = Snapshot{
			Population:         500000,
			MedianIncome:       65000,
			HousingUnits:       210000,
			AirQualityIndex:    50,
			PublicTransitUsage: 0.10,
		}
	}
	snap.City = strings.TrimSpace(q.City)
	snap.Sources = []string{"static fixture"}
	return &snap, nil
}
