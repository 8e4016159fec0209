// Command chatserver hosts the support-chat agent orchestrator over HTTP,
// wiring every core component (C1-C9) behind the thin httpapi router.
// Grounded on the teacher's cmd-separated-from-pkg-logic convention: this
// file does nothing but read configuration, construct dependencies, and
// start net/http — all behavior lives in pkg/.
package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sipeed/picoclaw/pkg/config"
	"github.com/sipeed/picoclaw/pkg/httpapi"
	"github.com/sipeed/picoclaw/pkg/llmgw"
	"github.com/sipeed/picoclaw/pkg/logger"
	"github.com/sipeed/picoclaw/pkg/memory"
	"github.com/sipeed/picoclaw/pkg/pipeline"
	"github.com/sipeed/picoclaw/pkg/registry"
	"github.com/sipeed/picoclaw/pkg/retrieval"
	"github.com/sipeed/picoclaw/pkg/sgr"
	"github.com/sipeed/picoclaw/pkg/taskrunner"
	"github.com/sipeed/picoclaw/pkg/tools"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.ErrorCF("chatserver", "failed to load configuration", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	ctx := context.Background()

	store := openStore(ctx, cfg)

	toolRegistry := tools.New()
	tools.RegisterUserData(toolRegistry)

	retrievalClient := retrieval.New(cfg.RetrievalURL, nil)
	tools.RegisterSearchMemory(toolRegistry, retrievalClient)

	scenarios := registry.New()
	scenarios.LoadBootstrapFile(filepath.Join(cfg.ScenarioStoragePath, "test_scenario.json"))

	var durable llmgw.DurableCounter
	if rs, ok := store.(*memory.RedisStore); ok {
		durable = rs
	}
	rotator := llmgw.NewKeyRotator(cfg.OpenAIAPIKeys(), durable)
	gateway := llmgw.New(func(key string) llmgw.Provider {
		return llmgw.NewOpenAIProvider(key, cfg.OpenAIBaseURL)
	}, rotator)

	tasks := taskrunner.New()

	pipelineCfg := pipeline.Config{
		GenerateModel:  cfg.LLMModel,
		ConditionModel: cfg.ModelFor("condition"),
		JudgeModel:     cfg.ModelFor("judge"),
		ReviseModel:    cfg.ModelFor("revise"),
		SummaryModel:   cfg.ModelFor("summary"),
	}.Resolved()

	pl := &pipeline.Pipeline{
		Store:     store,
		Scenarios: scenarios,
		Tools:     toolRegistry,
		Retrieval: retrievalClient,
		Gateway:   gateway,
		Tasks:     tasks,
		Config:    pipelineCfg,
	}

	if cfg.SGRTimeoutSeconds <= 0 {
		cfg.SGRTimeoutSeconds = 35
	}
	sgrOptions := sgr.Options{
		Timeout:    time.Duration(cfg.SGRTimeoutSeconds) * time.Second,
		TraceDir:   cfg.SGRTraceDir,
		Model:      cfg.ModelFor("sgr"),
		LogPrompts: cfg.SGRLogPrompts,
	}

	server := &httpapi.Server{
		Pipeline:             pl,
		Store:                store,
		Scenarios:            scenarios,
		Tools:                toolRegistry,
		Gateway:              gateway,
		SGROptions:           sgrOptions,
		AgentPipelineVersion: cfg.AgentPipelineVersion,
	}

	// PeriodicSweep (C8 supplementary) is not started here: memory.Store has
	// no conversation-enumeration method to build its listStale callback
	// from — Redis keys aren't tracked in a separate index, and adding one
	// only to satisfy an off-by-default catch-up sweep isn't justified by
	// anything SPEC_FULL.md names. See DESIGN.md.

	logger.InfoCF("chatserver", "listening", map[string]interface{}{"addr": ":8080"})
	if err := http.ListenAndServe(":8080", server.Router()); err != nil {
		logger.ErrorCF("chatserver", "server exited", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg *config.Config) memory.Store {
	if cfg.RedisURL == "" {
		logger.WarnCF("chatserver", "no redis url configured, using in-process store", nil)
		return memory.NewInProcessStore()
	}
	store, err := memory.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		logger.WarnCF("chatserver", "failed to connect to redis, falling back to in-process store", map[string]interface{}{"error": err.Error()})
		return memory.NewInProcessStore()
	}
	return store
}
