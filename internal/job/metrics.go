package job

import "strings"

// Coefficients are the policy-adjustment multipliers applied when projecting a
// baseline. They are placeholder planning estimates, not validated models, so
// they are configuration rather than constants.
type Coefficients struct {
	ZoningHousing    float64 // housing units per zoning_change action
	TransitUsage     float64 // transit usage per transit infrastructure action
	TransitAir       float64 // air quality per transit infrastructure action
	EnvironmentalAir float64 // air quality per environmental action
}

// DefaultCoefficients mirrors the estimates the product shipped with:
// +15% housing, +25% transit, -5% and -10% on the air-quality index.
func DefaultCoefficients() Coefficients {
	return Coefficients{
		ZoningHousing:    1.15,
		TransitUsage:     1.25,
		TransitAir:       0.95,
		EnvironmentalAir: 0.90,
	}
}

// Baseline is the measured starting point for a city, taken from the urban
// data providers.
type Baseline struct {
	Population         float64 `json:"population"`
	MedianIncome       float64 `json:"medianIncome"`
	HousingUnits       float64 `json:"housingUnits"`
	AirQualityIndex    float64 `json:"airQualityIndex"`
	PublicTransitUsage float64 `json:"publicTransitUsage"`
}

// PolicyAction is one proposed change extracted from a policy document.
type PolicyAction struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Change is the projected delta for a single baseline field.
type Change struct {
	Absolute   float64 `json:"absolute"`
	Percentage float64 `json:"percentage"`
}

// Impacts is the full metric derivation result persisted with a simulation.
type Impacts struct {
	Baseline  Baseline          `json:"baseline"`
	Projected Baseline          `json:"projected"`
	Changes   map[string]Change `json:"changes"`
}

// ProjectImpacts applies every matching action, in input order, to a working
// copy of the baseline, then derives absolute and percentage changes per field.
func ProjectImpacts(baseline Baseline, actions []PolicyAction, c Coefficients) Impacts {
	projected := baseline

	for _, action := range actions {
		switch action.Type {
		case "zoning_change":
			projected.HousingUnits *= c.ZoningHousing
		case "infrastructure_addition":
			if strings.Contains(action.Description, "transit") {
				projected.PublicTransitUsage *= c.TransitUsage
				projected.AirQualityIndex *= c.TransitAir
			}
		case "environmental":
			projected.AirQualityIndex *= c.EnvironmentalAir
		}
	}

	return Impacts{
		Baseline:  baseline,
		Projected: projected,
		Changes: map[string]Change{
			"population":         change(baseline.Population, projected.Population),
			"medianIncome":       change(baseline.MedianIncome, projected.MedianIncome),
			"housingUnits":       change(baseline.HousingUnits, projected.HousingUnits),
			"airQualityIndex":    change(baseline.AirQualityIndex, projected.AirQualityIndex),
			"publicTransitUsage": change(baseline.PublicTransitUsage, projected.PublicTransitUsage),
		},
	}
}

func change(base, projected float64) Change {
	ch := Change{Absolute: projected - base}
	if base != 0 {
		ch.Percentage = (projected - base) / base * 100
	}
	return ch
}
