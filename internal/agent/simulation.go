// Package agent implements the kind-specific job bodies: prompt construction,
// generator streaming, and result assembly for simulations, debates, and
// reports.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"urbansim/internal/job"
	"urbansim/internal/llm"
	"urbansim/internal/stream"
	"urbansim/internal/urbandata"
)

// SimulationParams is the parameters blob a simulation job carries.
type SimulationParams struct {
	TimeHorizon   int                `json:"timeHorizon"`
	AnalysisDepth string             `json:"analysisDepth"`
	FocusAreas    []string           `json:"focusAreas"`
	Region        string             `json:"region"`
	PolicyActions []job.PolicyAction `json:"policyActions"`
}

// Simulation runs the policy-impact analysis for one simulation job: fetch
// the urban baseline, stream the narrative analysis, derive impact metrics.
type Simulation struct {
	gen   llm.TextGenerator
	data  urbandata.Provider
	coeff job.Coefficients
}

func NewSimulation(gen llm.TextGenerator, data urbandata.Provider, coeff job.Coefficients) *Simulation {
	return &Simulation{gen: gen, data: data, coeff: coeff}
}

func (a *Simulation) Run(ctx context.Context, j *job.Job, emit job.Emitter) (json.RawMessage, json.RawMessage, error) {
	emit.Progress("Starting simulation analysis...", 0)

	var params SimulationParams
	if len(j.Parameters) > 0 {
		if err := json.Unmarshal(j.Parameters, &params); err != nil {
			return nil, nil, fmt.Errorf("decode simulation parameters: %w", err)
		}
	}
	if params.TimeHorizon <= 0 {
		params.TimeHorizon = 10
	}
	if params.AnalysisDepth == "" {
		params.AnalysisDepth = "detailed"
	}

	snap, err := a.data.Fetch(ctx, urbandata.Query{City: j.City, Region: params.Region})
	if err != nil {
		return nil, nil, fmt.Errorf("fetch urban data for %s: %w", j.City, err)
	}

	emit.Progress("Analyzing policy impacts...", 10)

	prompt := simulationPrompt(j.City, snap, params)
	analysis, err := a.gen.GenerateStream(ctx, prompt, func(chunk string) {
		emit.Token(stream.TokenPayload{Token: chunk})
	})
	if err != nil {
		return nil, nil, fmt.Errorf("simulation analysis: %w", err)
	}

	emit.Progress("Calculating impact metrics...", 70)

	impacts := job.ProjectImpacts(job.Baseline{
		Population:         snap.Population,
		MedianIncome:       snap.MedianIncome,
		HousingUnits:       snap.HousingUnits,
		AirQualityIndex:    snap.AirQualityIndex,
		PublicTransitUsage: snap.PublicTransitUsage,
	}, params.PolicyActions, a.coeff)

	emit.Progress("Simulation complete", 100)

	result, err := json.Marshal(map[string]string{"analysis": analysis})
	if err != nil {
		return nil, nil, err
	}
	metrics, err := json.Marshal(impacts)
	if err != nil {
		return nil, nil, err
	}
	return result, metrics, nil
}

func simulationPrompt(city string, snap *urbandata.Snapshot, params SimulationParams) string {
	baseline, _ := json.MarshalIndent(snap, "", "  ")
	actions, _ := json.MarshalIndent(params.PolicyActions, "", "  ")

	focus := "All"
	if len(params.FocusAreas) > 0 {
		focus = strings.Join(params.FocusAreas, ", ")
	}

	var sb strings.Builder
	sb.WriteString("You are an expert urban planning analyst that provides detailed, data-driven policy impact assessments.\n\n")
	fmt.Fprintf(&sb, "You are analyzing policy changes for %s.\n\n", city)
	fmt.Fprintf(&sb, "URBAN DATA BASELINE:\n%s\n\n", baseline)
	fmt.Fprintf(&sb, "PROPOSED POLICY ACTIONS:\n%s\n\n", actions)
	sb.WriteString("SIMULATION PARAMETERS:\n")
	fmt.Fprintf(&sb, "- Time Horizon: %d years\n", params.TimeHorizon)
	fmt.Fprintf(&sb, "- Analysis Depth: %s\n", params.AnalysisDepth)
	fmt.Fprintf(&sb, "- Focus Areas: %s\n\n", focus)
	sb.WriteString(`Analyze the impact of these policy changes on:
1. Traffic and Transportation
2. Housing and Development
3. Environmental Impact
4. Economic Effects
5. Social Equity
6. Infrastructure Requirements

For each area, provide:
- Baseline metrics
- Projected changes
- Timeline of impacts
- Risk factors
- Mitigation strategies

Be specific with numbers and cite the data sources.`)
	return sb.String()
}
