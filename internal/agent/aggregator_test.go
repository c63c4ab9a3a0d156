package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"urbansim/internal/artifact"
	"urbansim/internal/job"
	"urbansim/internal/llm"
	"urbansim/internal/project"
)

func newTestAggregator(jobs job.Store) (*Aggregator, *artifact.MemoryStore) {
	projects := project.NewMemoryStore()
	_ = projects.Create(context.Background(), &project.Project{
		ID:        "p1",
		Name:      "Downtown Rezoning",
		City:      "portland",
		CreatedAt: time.Now().UTC(),
	})
	artifacts := artifact.NewMemoryStore()
	return NewAggregator(llm.NewFakeGenerator("section content"), jobs, projects, artifacts), artifacts
}

func reportJob(params string) *job.Job {
	return &job.Job{
		ID:         "rep-1",
		Kind:       job.KindReport,
		Status:     job.StatusRunning,
		ProjectID:  "p1",
		Parameters: json.RawMessage(params),
		CreatedAt:  time.Now().UTC(),
	}
}

func TestAggregatorRunGeneratesDefaultSections(t *testing.T) {
	a, _ := newTestAggregator(job.NewMemoryStore())

	result, metrics, err := a.Run(context.Background(), reportJob(`{"title":"Q3 Impact Report"}`), job.Emitter{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if metrics != nil {
		t.Fatalf("metrics = %s, want nil", metrics)
	}

	var res struct {
		Title    string          `json:"title"`
		Sections []ReportSection `json:"sections"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if res.Title != "Q3 Impact Report" {
		t.Fatalf("title = %q", res.Title)
	}
	if len(res.Sections) != len(defaultSections) {
		t.Fatalf("sections = %d, want %d", len(res.Sections), len(defaultSections))
	}
	if res.Sections[0].ID != "executive_summary" || res.Sections[0].Title != "Executive Summary" {
		t.Fatalf("first section = %+v", res.Sections[0])
	}
	for _, s := range res.Sections {
		if s.Content != "section content" {
			t.Fatalf("section %s content = %q", s.ID, s.Content)
		}
	}
}

func TestAggregatorRunHonorsRequestedSections(t *testing.T) {
	a, _ := newTestAggregator(job.NewMemoryStore())

	result, _, err := a.Run(context.Background(), reportJob(`{"title":"t","sections":["risk_assessment","budget_outlook"]}`), job.Emitter{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	var res struct {
		Sections []ReportSection `json:"sections"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(res.Sections) != 2 {
		t.Fatalf("sections = %d, want 2", len(res.Sections))
	}
	if res.Sections[0].Title != "Risk Assessment" {
		t.Fatalf("known section title = %q", res.Sections[0].Title)
	}
	// Unknown section ids get a derived title.
	if res.Sections[1].Title != "Budget Outlook" {
		t.Fatalf("derived section title = %q", res.Sections[1].Title)
	}
}

func TestAggregatorRunMirrorsArtifacts(t *testing.T) {
	a, artifacts := newTestAggregator(job.NewMemoryStore())

	if _, _, err := a.Run(context.Background(), reportJob(`{"title":"t","sections":["executive_summary"]}`), job.Emitter{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// The mirror is asynchronous; wait for it to land.
	deadline := time.After(2 * time.Second)
	for {
		paths, err := artifacts.List(context.Background(), "rep-1")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(paths) == 1 {
			if paths[0] != "executive_summary.md" {
				t.Fatalf("artifact path = %q", paths[0])
			}
			content, err := artifacts.Get(context.Background(), "rep-1", paths[0])
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if !strings.HasPrefix(string(content), "# Executive Summary\n") {
				t.Fatalf("artifact content = %q", content)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("artifact never mirrored, have %v", paths)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestAggregatorRunIncludesSimulationAndDebateContext(t *testing.T) {
	jobs := job.NewMemoryStore()
	sim := seedCompletedSimulation(t, jobs)

	ctx := context.Background()
	deb := &job.Job{
		ID:           "deb-1",
		Kind:         job.KindDebate,
		Status:       job.StatusPending,
		SimulationID: sim.ID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := jobs.Create(ctx, deb); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := jobs.MarkRunning(ctx, deb.ID, time.Now().UTC()); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if err := jobs.Complete(ctx, deb.ID, json.RawMessage(`{"arguments":{}}`), nil, time.Now().UTC()); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	a, _ := newTestAggregator(jobs)
	j := reportJob(`{"title":"t"}`)
	j.SimulationID = sim.ID

	base, err := a.buildContext(ctx, j)
	if err != nil {
		t.Fatalf("buildContext() error = %v", err)
	}
	if !strings.Contains(base, "housing up, aqi down") {
		t.Fatalf("context missing simulation result: %q", base)
	}
	if !strings.Contains(base, "Debate Summary:") {
		t.Fatalf("context missing debate summary: %q", base)
	}
	if strings.Contains(base, "No simulation data available.") {
		t.Fatalf("context degraded despite completed simulation: %q", base)
	}
}

func TestAggregatorRunDegradesWithoutSimulation(t *testing.T) {
	a, _ := newTestAggregator(job.NewMemoryStore())
	j := reportJob(`{"title":"t"}`)
	j.SimulationID = "ghost"

	base, err := a.buildContext(context.Background(), j)
	if err != nil {
		t.Fatalf("buildContext() error = %v", err)
	}
	if !strings.Contains(base, "No simulation data available.") {
		t.Fatalf("context = %q, want degraded simulation note", base)
	}
	if !strings.Contains(base, "No debate data available.") {
		t.Fatalf("context = %q, want degraded debate note", base)
	}
}
