package app

import (
	"context"
	"fmt"
	"io"
	"log"

	"urbansim/internal/agent"
	"urbansim/internal/artifact"
	"urbansim/internal/gateway/config"
	"urbansim/internal/gateway/handler"
	"urbansim/internal/gateway/server"
	"urbansim/internal/job"
	"urbansim/internal/llm"
	"urbansim/internal/project"
	"urbansim/internal/stream"
	"urbansim/internal/urbandata"
)

type App struct {
	server       *server.Server
	orchestrator *job.Orchestrator
	closers      []io.Closer
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	a := &App{}

	// Stores: postgres when a DSN is configured, in-memory otherwise.
	jobs, projects, eventLog, err := a.buildStores(cfg)
	if err != nil {
		return nil, err
	}

	artifacts, err := a.buildArtifacts(cfg)
	if err != nil {
		return nil, err
	}

	gen, err := buildGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Streaming layer
	registry := stream.NewRegistry()
	broadcaster := stream.NewBroadcaster(registry, eventLog)
	sessions := stream.NewSessionHandler(registry)

	// Agents
	runs := map[job.Kind]job.RunFunc{
		job.KindSimulation: agent.NewSimulation(gen, urbandata.NewStaticProvider(), cfg.Impact).Run,
		job.KindDebate:     agent.NewDebate(gen, jobs).Run,
		job.KindReport:     agent.NewAggregator(gen, jobs, projects, artifacts).Run,
	}
	a.orchestrator = job.NewOrchestrator(jobs, broadcaster, projects, runs)

	// Routing & Server
	svc := handler.NewService(a.orchestrator, jobs, projects, eventLog, artifacts)
	mux := server.NewMux(svc, sessions)
	a.server = server.New(cfg.Port, mux)

	return a, nil
}

func (a *App) buildStores(cfg *config.Config) (job.Store, project.Store, *stream.Log, error) {
	dsn := cfg.Postgres.DSN
	if dsn == "" {
		return job.NewMemoryStore(), project.NewMemoryStore(), stream.NewLog(), nil
	}

	jobs, err := job.NewPostgresStore(dsn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("job store: %w", err)
	}
	a.closers = append(a.closers, jobs)

	projects, err := project.NewPostgresStore(dsn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("project store: %w", err)
	}
	a.closers = append(a.closers, projects)

	eventLog, err := stream.NewPostgresLog(dsn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("event log: %w", err)
	}
	a.closers = append(a.closers, eventLog)

	return jobs, projects, eventLog, nil
}

func (a *App) buildArtifacts(cfg *config.Config) (artifact.Store, error) {
	if !cfg.Artifact.Enabled {
		return artifact.NewMemoryStore(), nil
	}
	store, err := artifact.NewS3Store(artifact.S3Config{
		Endpoint:  cfg.Artifact.Endpoint,
		Region:    cfg.Artifact.Region,
		AccessKey: cfg.Artifact.AccessKey,
		SecretKey: cfg.Artifact.SecretKey,
		Bucket:    cfg.Artifact.Bucket,
		UseSSL:    cfg.Artifact.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("artifact store: %w", err)
	}
	return store, nil
}

func buildGenerator(ctx context.Context, cfg *config.Config) (llm.TextGenerator, error) {
	if cfg.LLM.Fake {
		log.Println("GEMINI_API_KEY not set; using the scripted generator")
		return llm.NewFakeGenerator(), nil
	}
	return llm.NewGeminiGenerator(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
}

func (a *App) Start() error {
	return a.server.Start()
}

// Shutdown stops accepting requests, then waits for in-flight jobs so their
// terminal status lands in the store before the process exits.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)

	if drainErr := a.orchestrator.Drain(ctx); drainErr != nil {
		log.Printf("shutdown with %d job(s) still in flight: %v", a.orchestrator.InFlight(), drainErr)
	}

	for _, c := range a.closers {
		if closeErr := c.Close(); closeErr != nil {
			log.Printf("close failed: %v", closeErr)
		}
	}
	return err
}
