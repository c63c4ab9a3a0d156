package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"urbansim/internal/artifact"
	"urbansim/internal/job"
	"urbansim/internal/llm"
	"urbansim/internal/project"
	"urbansim/internal/stream"
)

type reportParams struct {
	Title    string   `json:"title"`
	Sections []string `json:"sections"`
}

// ReportSection is one generated section of a report.
type ReportSection struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

var defaultSections = []string{
	"executive_summary",
	"proposed_changes",
	"impact_analysis",
	"debate_summary",
	"risk_assessment",
	"recommendations",
}

var sectionTitles = map[string]string{
	"executive_summary": "Executive Summary",
	"proposed_changes":  "Proposed Policy Changes",
	"impact_analysis":   "Impact Analysis",
	"debate_summary":    "Stakeholder Perspectives",
	"risk_assessment":   "Risk Assessment",
	"recommendations":   "Recommendations",
}

// Aggregator generates a stakeholder report section by section, pulling in
// whatever simulation and debate context exists. A missing simulation is not
// an error; the prompts degrade to "no simulation data available".
type Aggregator struct {
	gen       llm.TextGenerator
	jobs      job.Store
	projects  project.Store
	artifacts artifact.Store
}

func NewAggregator(gen llm.TextGenerator, jobs job.Store, projects project.Store, artifacts artifact.Store) *Aggregator {
	return &Aggregator{gen: gen, jobs: jobs, projects: projects, artifacts: artifacts}
}

func (a *Aggregator) Run(ctx context.Context, j *job.Job, emit job.Emitter) (json.RawMessage, json.RawMessage, error) {
	var params reportParams
	if len(j.Parameters) > 0 {
		if err := json.Unmarshal(j.Parameters, &params); err != nil {
			return nil, nil, fmt.Errorf("decode report parameters: %w", err)
		}
	}
	sectionIDs := params.Sections
	if len(sectionIDs) == 0 {
		sectionIDs = defaultSections
	}

	emit.Progress("Generating report...", 0)

	baseContext, err := a.buildContext(ctx, j)
	if err != nil {
		return nil, nil, err
	}

	sections := make([]ReportSection, 0, len(sectionIDs))
	for _, id := range sectionIDs {
		emit.Progress(fmt.Sprintf("Generating %s...", id), len(sections)*100/len(sectionIDs))

		content, err := a.gen.GenerateStream(ctx, sectionPrompt(baseContext, id), func(chunk string) {
			emit.Token(stream.TokenPayload{Token: chunk, Section: id})
		})
		if err != nil {
			return nil, nil, fmt.Errorf("generate section %s: %w", id, err)
		}
		sections = append(sections, ReportSection{
			ID:      id,
			Title:   sectionTitle(id),
			Content: content,
		})
	}

	emit.Progress("Report generation complete", 100)

	a.mirrorArtifacts(j.ID, sections)

	result, err := json.Marshal(map[string]any{
		"title":    params.Title,
		"sections": sections,
	})
	if err != nil {
		return nil, nil, err
	}
	return result, nil, nil
}

// buildContext assembles the shared prompt preamble from the project record
// and, when available, the completed simulation and its debates.
func (a *Aggregator) buildContext(ctx context.Context, j *job.Job) (string, error) {
	var sb strings.Builder

	proj, err := a.projects.Get(ctx, j.ProjectID)
	if err != nil {
		if !errors.Is(err, project.ErrNotFound) {
			return "", fmt.Errorf("load project %s: %w", j.ProjectID, err)
		}
		proj = &project.Project{ID: j.ProjectID, Name: j.ProjectID}
	}
	fmt.Fprintf(&sb, "Project: %s\n", proj.Name)
	city := proj.City
	if city == "" {
		city = "N/A"
	}
	fmt.Fprintf(&sb, "City: %s\n", city)
	if proj.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", proj.Description)
	}
	sb.WriteString("\n")

	sim := a.lookupSimulation(ctx, j.SimulationID)
	if sim != nil {
		fmt.Fprintf(&sb, "Simulation Results:\n%s\n\nMetrics:\n%s\n\n", string(sim.Result), string(sim.Metrics))
	} else {
		sb.WriteString("No simulation data available.\n\n")
	}

	if sim != nil {
		debates, err := a.jobs.ListBySimulation(ctx, job.KindDebate, sim.ID)
		if err == nil && len(debates) > 0 && debates[0].Status == job.StatusCompleted {
			fmt.Fprintf(&sb, "Debate Summary:\n%s\n", string(debates[0].Result))
			return sb.String(), nil
		}
	}
	sb.WriteString("No debate data available.\n")
	return sb.String(), nil
}

// lookupSimulation returns the referenced simulation only when it exists and
// completed; anything else degrades to no simulation context.
func (a *Aggregator) lookupSimulation(ctx context.Context, simulationID string) *job.Job {
	if strings.TrimSpace(simulationID) == "" {
		return nil
	}
	sim, err := a.jobs.Get(ctx, simulationID)
	if err != nil || sim.Kind != job.KindSimulation || sim.Status != job.StatusCompleted {
		return nil
	}
	return sim
}

// mirrorArtifacts writes each section to the artifact store. Best-effort: the
// report result is already persisted with the job, so a storage failure only
// costs the downloadable copy.
func (a *Aggregator) mirrorArtifacts(jobID string, sections []ReportSection) {
	if a.artifacts == nil {
		return
	}
	go func() {
		ctx := context.Background()
		for _, s := range sections {
			content := fmt.Sprintf("# %s\n\n%s\n", s.Title, s.Content)
			if err := a.artifacts.Put(ctx, jobID, s.ID+".md", []byte(content)); err != nil {
				log.Printf("report %s artifact %s sync failed: %v", jobID, s.ID, err)
			}
		}
	}()
}

func sectionTitle(id string) string {
	if title, ok := sectionTitles[id]; ok {
		return title
	}
	words := strings.Fields(strings.ReplaceAll(id, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func sectionPrompt(baseContext, id string) string {
	var sb strings.Builder
	sb.WriteString("You are a professional policy consultant generating high-quality reports for government stakeholders.\n\n")
	sb.WriteString(baseContext)
	sb.WriteString("\n\n")

	switch id {
	case "executive_summary":
		sb.WriteString("Write a concise executive summary (2-3 paragraphs) for government decision-makers. Include key findings, major impacts, and primary recommendation.")
	case "proposed_changes":
		sb.WriteString("Describe the proposed policy changes in detail. List each change with its objectives and expected outcomes.")
	case "impact_analysis":
		sb.WriteString("Provide a comprehensive impact analysis covering: economic effects, environmental impacts, social equity considerations, and infrastructure requirements. Use specific metrics from the simulation.")
	case "debate_summary":
		sb.WriteString("Summarize the key arguments for and against the policy. Present both perspectives fairly and identify areas of consensus and conflict.")
	case "risk_assessment":
		sb.WriteString("Analyze political, environmental, economic, and social risks. For each risk, provide likelihood, impact, and mitigation strategies.")
	case "recommendations":
		sb.WriteString("Provide actionable recommendations for implementation. Include timeline, priorities, stakeholder engagement strategies, and success metrics.")
	default:
		fmt.Fprintf(&sb, "Generate content for: %s", id)
	}
	return sb.String()
}
