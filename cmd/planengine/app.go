package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"

	"github.com/dagrunner/planengine/internal/config"
	"github.com/dagrunner/planengine/internal/createplan"
	"github.com/dagrunner/planengine/internal/doctor"
	"github.com/dagrunner/planengine/internal/engine"
	"github.com/dagrunner/planengine/internal/executor"
	"github.com/dagrunner/planengine/internal/export"
	"github.com/dagrunner/planengine/internal/llmclient"
	"github.com/dagrunner/planengine/internal/matcher"
	"github.com/dagrunner/planengine/internal/metrics"
	"github.com/dagrunner/planengine/internal/model"
	"github.com/dagrunner/planengine/internal/readiness"
	"github.com/dagrunner/planengine/internal/reviewer"
	"github.com/dagrunner/planengine/internal/scheduler"
	"github.com/dagrunner/planengine/internal/store"
	"github.com/dagrunner/planengine/internal/telemetry"
	"github.com/dagrunner/planengine/internal/workspace"
)

// app wires every component a subcommand might need. Not every command
// needs every field; building them all up front keeps each command's body
// short and avoids a dozen slightly-different partial-wiring helpers.
type app struct {
	cfg        *config.Config
	cfgPath    string
	cfgWatcher *config.Watcher
	store      *store.Store
	workspace  *workspace.Workspace
	logger     *zap.Logger

	llm       *llmclient.Client
	matcher   *matcher.Matcher
	readiness *readiness.Recomputer
	scheduler *scheduler.Scheduler
	executor  *executor.Executor
	reviewer  *reviewer.Reviewer
	engine    *engine.Engine
	doctor    *doctor.Doctor
	exporter  *export.Exporter
	creator   *createplan.CreatePlan
	metrics   *metrics.Collector
	telemetry *telemetry.Providers
}

// newApp opens the store and builds every component. Callers that only
// need the store/doctor (e.g. doctor, repair-db) still pay the cost of
// building the LM client, but constructing a Provider is cheap (it doesn't
// dial out until Complete is called), so there's no reason to special-case
// the lighter commands.
func newApp(ctx context.Context, f *globalFlags) (*app, error) {
	logger := f.logger()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	// --db/--workspace always win: their flag defaults match config.Default()'s,
	// so a config file value only survives when the operator didn't pass the
	// flag explicitly... which cobra can't tell us, so the flag simply wins.
	cfg.DBPath = f.dbPath
	cfg.WorkspaceRoot = f.workspace

	s, err := store.Init(cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	ws := workspace.New(cfg.WorkspaceRoot)
	met := metrics.NewCollector("planengine", logger)
	llmClient := llmclient.New(s, buildProviders(logger), cfg.Guardrails.MaxPromptChars, cfg.Guardrails.MaxResponseChars, logger, met)

	tel, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	m := matcher.New(s, logger)
	r := readiness.New(s)
	sch := scheduler.New(s)
	ex := executor.New(s, ws, llmClient, cfg, logger, met)
	rv := reviewer.New(s, ws, llmClient, cfg, logger, met)
	eng := engine.New(s, cfg, ws, m, r, sch, ex, rv, logger, met)
	if w, err := matcher.NewWatcher([]string{ws.InputsDir()}, logger); err != nil {
		logger.Warn("inputs watcher unavailable, falling back to pure polling", zap.Error(err))
	} else {
		eng.SetWatcher(w)
	}
	doc := doctor.New(s, cfg, cfg.DBPath, logger)
	exp := export.New(s, ws, logger)
	cp := createplan.New(s, ws, llmClient, cfg, logger)

	cfgWatcher := config.NewWatcher(f.configPath, logger)
	cfgWatcher.OnReload(func(reloaded *config.Config, err error) {
		if err != nil {
			return
		}
		reloaded.DBPath = f.dbPath
		reloaded.WorkspaceRoot = f.workspace
		*cfg = *reloaded
	})

	return &app{
		cfg: cfg, cfgPath: f.configPath, cfgWatcher: cfgWatcher, store: s, workspace: ws, logger: logger,
		llm: llmClient, matcher: m, readiness: r, scheduler: sch,
		executor: ex, reviewer: rv, engine: eng, doctor: doc,
		exporter: exp, creator: cp, metrics: met, telemetry: tel,
	}, nil
}

func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	_ = a.store.Close()
	_ = a.logger.Sync()
}

// buildProviders points both driven agents at one Anthropic provider, keyed
// by ANTHROPIC_API_KEY, with the model taken from ANTHROPIC_MODEL or a
// built-in default. The OpenAI/Gemini adapters in internal/llmclient are
// not wired here; nothing in this function selects them.
func buildProviders(logger *zap.Logger) map[model.Agent]llmclient.Provider {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	modelName := os.Getenv("ANTHROPIC_MODEL")
	if modelName == "" {
		modelName = "claude-sonnet-4-5"
	}
	p := llmclient.NewAnthropicProvider(apiKey, anthropic.Model(modelName))
	return map[model.Agent]llmclient.Provider{
		model.AgentExecutor: p,
		model.AgentReviewer: p,
	}
}

// currentPlanID resolves the plan id an operator didn't spell out: the
// most recently created plan's row, grounded on agent_cli.py's cmd_status/
// cmd_export fallback to "most recent plan in the DB".
func currentPlanID(ctx context.Context, s *store.Store, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	return s.LatestPlanID(ctx)
}

func asEngineError(err error) (*model.EngineError, bool) {
	return model.AsEngineError(err)
}

func exitCodeFor(ee *model.EngineError) int {
	switch ee.Code {
	case model.CodePlanNotApproved:
		return 3
	default:
		return 1
	}
}
