package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"urbansim/internal/job"
	"urbansim/internal/llm"
	"urbansim/internal/stream"
)

type debateParams struct {
	Rounds int `json:"rounds"`
}

// DebateMessage is one argument in the debate transcript.
type DebateMessage struct {
	Side    string `json:"side"`
	Round   int    `json:"round"`
	Content string `json:"content"`
}

type debateSide struct {
	name        string
	role        string
	perspective string
}

// Debate stages a pro/con argument exchange over a completed simulation's
// results, streaming each argument as it is generated.
type Debate struct {
	gen   llm.TextGenerator
	store job.Store
}

func NewDebate(gen llm.TextGenerator, store job.Store) *Debate {
	return &Debate{gen: gen, store: store}
}

func (a *Debate) Run(ctx context.Context, j *job.Job, emit job.Emitter) (json.RawMessage, json.RawMessage, error) {
	var params debateParams
	if len(j.Parameters) > 0 {
		if err := json.Unmarshal(j.Parameters, &params); err != nil {
			return nil, nil, fmt.Errorf("decode debate parameters: %w", err)
		}
	}
	if params.Rounds <= 0 {
		params.Rounds = 3
	}

	sim, err := a.store.Get(ctx, j.SimulationID)
	if err != nil {
		return nil, nil, fmt.Errorf("load simulation %s: %w", j.SimulationID, err)
	}

	emit.Progress("Initializing debate simulation...", 0)

	pro := debateSide{
		name:        "pro",
		role:        "You are a policy advocate arguing FOR the proposed policy changes.",
		perspective: "Focus on: economic development, job creation, housing supply, modernization, and growth opportunities.",
	}
	con := debateSide{
		name:        "con",
		role:        "You are a community advocate arguing AGAINST the proposed policy changes.",
		perspective: "Focus on: environmental impact, displacement risks, community character, traffic congestion, and equity concerns.",
	}

	messages := make([]DebateMessage, 0, params.Rounds*2)
	for round := 1; round <= params.Rounds; round++ {
		emit.Progress(fmt.Sprintf("Running debate round %d/%d...", round, params.Rounds),
			(round-1)*100/params.Rounds)

		for _, side := range []debateSide{pro, con} {
			arg, err := a.streamArgument(ctx, side, sim.Result, messages, round, emit)
			if err != nil {
				return nil, nil, fmt.Errorf("round %d %s argument: %w", round, side.name, err)
			}
			messages = append(messages, DebateMessage{Side: side.name, Round: round, Content: arg})
		}
	}

	result, err := json.Marshal(map[string]any{
		"arguments": map[string]any{
			"rounds":   params.Rounds,
			"messages": messages,
		},
		"sentiment":  summarizeSentiment(messages),
		"riskScores": assessRisks(messages),
	})
	if err != nil {
		return nil, nil, err
	}
	return result, nil, nil
}

func (a *Debate) streamArgument(ctx context.Context, side debateSide, simResult json.RawMessage, previous []DebateMessage, round int, emit job.Emitter) (string, error) {
	var sb strings.Builder
	sb.WriteString(side.role)
	sb.WriteString("\n")
	sb.WriteString(side.perspective)
	sb.WriteString("\n\nProvide a concise, compelling argument (2-3 paragraphs). Use data from the simulation results.\n\n")
	fmt.Fprintf(&sb, "ROUND %d\n\n", round)
	fmt.Fprintf(&sb, "Simulation Results:\n%s\n\n", string(simResult))
	sb.WriteString(debateContext(previous))
	sb.WriteString("\n\nMake your argument:")

	return a.gen.GenerateStream(ctx, sb.String(), func(chunk string) {
		emit.Token(stream.TokenPayload{Token: chunk, Side: side.name, Round: round})
	})
}

func debateContext(messages []DebateMessage) string {
	if len(messages) == 0 {
		return "This is the opening round. Present your initial position."
	}
	lastBySide := map[string]string{"pro": "None", "con": "None"}
	for _, m := range messages {
		lastBySide[m.Side] = m.Content
	}
	return fmt.Sprintf("Previous Arguments:\n\nPRO: %s\n\nCON: %s\n\nRespond to these points and strengthen your position.",
		lastBySide["pro"], lastBySide["con"])
}

// summarizeSentiment and assessRisks are heuristic placeholders carried over
// from the product; a follow-up could derive them from the transcript via a
// structured-extraction call (llm.ExtractJSON).
func summarizeSentiment(messages []DebateMessage) map[string]any {
	return map[string]any{
		"pro": map[string]any{
			"tone":       "optimistic",
			"confidence": 0.75,
			"themes":     []string{"economic growth", "opportunity", "progress"},
		},
		"con": map[string]any{
			"tone":       "cautious",
			"confidence": 0.70,
			"themes":     []string{"environmental concern", "equity", "community impact"},
		},
		"balance": 0.5,
	}
}

func assessRisks(messages []DebateMessage) map[string]any {
	return map[string]any{
		"political":     0.65,
		"environmental": 0.55,
		"economic":      0.45,
		"social":        0.60,
		"overall":       0.56,
		"concerns": []string{
			"Potential displacement of existing residents",
			"Increased traffic congestion during construction",
			"Environmental impact requires mitigation",
			"Community opposition needs addressing",
		},
		"opportunities": []string{
			"Significant housing supply increase",
			"Improved public transit access",
			"Economic development and job creation",
			"Modernized infrastructure",
		},
	}
}
