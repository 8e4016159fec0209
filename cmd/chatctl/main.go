// Command chatctl is a REPL-style local CLI for exercising the turn
// pipeline against one conversation id without going through the HTTP
// host, in the teacher's own readline-driven interactive-shell idiom.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"

	"github.com/sipeed/picoclaw/pkg/config"
	"github.com/sipeed/picoclaw/pkg/llmgw"
	"github.com/sipeed/picoclaw/pkg/logger"
	"github.com/sipeed/picoclaw/pkg/memory"
	"github.com/sipeed/picoclaw/pkg/pipeline"
	"github.com/sipeed/picoclaw/pkg/registry"
	"github.com/sipeed/picoclaw/pkg/retrieval"
	"github.com/sipeed/picoclaw/pkg/taskrunner"
	"github.com/sipeed/picoclaw/pkg/tools"
)

func main() {
	conversationID := flag.String("conversation", "chatctl-session", "conversation id to exercise")
	v01 := flag.Bool("v01", false, "use the linear v0.1 pipeline instead of v1.0")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	var store memory.Store = memory.NewInProcessStore()
	if cfg.RedisURL != "" {
		if rs, err := memory.NewRedisStore(context.Background(), cfg.RedisURL); err == nil {
			store = rs
		} else {
			fmt.Fprintf(os.Stderr, "failed to connect to redis, using in-process store: %v\n", err)
		}
	}

	toolRegistry := tools.New()
	tools.RegisterUserData(toolRegistry)
	retrievalClient := retrieval.New(cfg.RetrievalURL, nil)
	tools.RegisterSearchMemory(toolRegistry, retrievalClient)

	scenarios := registry.New()
	scenarios.LoadBootstrapFile(cfg.ScenarioStoragePath + "/test_scenario.json")

	rotator := llmgw.NewKeyRotator(cfg.OpenAIAPIKeys(), nil)
	gateway := llmgw.New(func(key string) llmgw.Provider {
		return llmgw.NewOpenAIProvider(key, cfg.OpenAIBaseURL)
	}, rotator)

	pl := &pipeline.Pipeline{
		Store:     store,
		Scenarios: scenarios,
		Tools:     toolRegistry,
		Retrieval: retrievalClient,
		Gateway:   gateway,
		Tasks:     taskrunner.New(),
		Config: pipeline.Config{
			GenerateModel:  cfg.LLMModel,
			ConditionModel: cfg.ModelFor("condition"),
			JudgeModel:     cfg.ModelFor("judge"),
			ReviseModel:    cfg.ModelFor("revise"),
			SummaryModel:   cfg.ModelFor("summary"),
		}.Resolved(),
	}

	rl, err := readline.New(fmt.Sprintf("[%s] > ", *conversationID))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Printf("chatctl: conversation %q, pipeline %s. Ctrl-D to exit.\n", *conversationID, pipelineLabel(*v01))

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
				return
			}
			fmt.Fprintf(os.Stderr, "readline error: %v\n", err)
			return
		}
		if line == "" {
			continue
		}

		ctx := context.Background()
		var resp *pipeline.Response
		if *v01 {
			resp, err = pl.RunTurnV01(ctx, *conversationID, line)
		} else {
			resp, err = pl.RunTurn(ctx, *conversationID, line)
		}
		if err != nil {
			logger.ErrorCF("chatctl", "turn failed", map[string]interface{}{"error": err.Error()})
			continue
		}
		fmt.Println(resp.Answer)
	}
}

func pipelineLabel(v01 bool) string {
	if v01 {
		return "v0.1"
	}
	return "v1.0"
}
