package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sagerun/sage/internal/agent"
	agentctx "github.com/sagerun/sage/internal/agent/context"
	"github.com/sagerun/sage/internal/cache"
	"github.com/sagerun/sage/internal/commands"
	"github.com/sagerun/sage/internal/config"
	"github.com/sagerun/sage/internal/eventbus"
	"github.com/sagerun/sage/internal/hooks"
	"github.com/sagerun/sage/internal/hooks/bundled"
	"github.com/sagerun/sage/internal/mcp"
	"github.com/sagerun/sage/internal/memory"
	modelcat "github.com/sagerun/sage/internal/models"
	"github.com/sagerun/sage/internal/multiagent"
	"github.com/sagerun/sage/internal/observability"
	"github.com/sagerun/sage/internal/sandbox"
	"github.com/sagerun/sage/internal/sessions"
	"github.com/sagerun/sage/internal/tools/browser"
	"github.com/sagerun/sage/internal/tools/exec"
	"github.com/sagerun/sage/internal/tools/facts"
	"github.com/sagerun/sage/internal/tools/files"
	"github.com/sagerun/sage/internal/tools/memsearch"
	modelstool "github.com/sagerun/sage/internal/tools/models"
	"github.com/sagerun/sage/internal/tools/policy"
	sessiontools "github.com/sagerun/sage/internal/tools/sessions"
	"github.com/sagerun/sage/internal/tools/subagent"
	"github.com/sagerun/sage/internal/tools/system"
	"github.com/sagerun/sage/internal/usage"
	"github.com/sagerun/sage/pkg/models"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// mcpProber adapts one MCP server in the manager to the health checker's
// prober interface.
type mcpProber struct {
	mgr *mcp.Manager
	id  string
}

func (p mcpProber) Ping(ctx context.Context) error {
	return p.mgr.CheckHealth(ctx, p.id)
}

func (p mcpProber) State() (string, int, *time.Time) {
	h, ok := p.mgr.HealthStatus()[p.id]
	if !ok {
		return string(mcp.ConnDisconnected), 0, nil
	}
	return string(h.Status), h.ConsecutiveFailures, h.LastPing
}

// runREPL is the default interactive entrypoint: it
// assembles one Loop against the configured provider and workspace, then
// feeds each stdin line through Loop.Run as a fresh task, exiting 0 on a
// clean EOF and 1 if the last run surfaced a Failed outcome.
func runREPL(cmd *cobra.Command, configPath string) error {
	return runREPLWithSession(cmd, configPath, "")
}

// runREPLResume reopens an existing recorded session instead of starting a
// fresh one; it fails fast if the session does not exist or ended failed.
func runREPLResume(cmd *cobra.Command, configPath, sessionID string) error {
	store, err := openSessionStore()
	if err != nil {
		return err
	}
	if err := resumableSession(cmd.Context(), store, sessionID); err != nil {
		return err
	}
	return runREPLWithSession(cmd, configPath, sessionID)
}

func runREPLWithSession(cmd *cobra.Command, configPath, resumeID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	// Process-scoped singletons; resumed REPLs in the same process reuse
	// the first initialization.
	if collector, err := observability.InitTelemetry(); err == nil {
		if port := cfg.Server.MetricsPort; port > 0 {
			mux := http.NewServeMux()
			mux.Handle("/metrics", collector.Handler())
			go func() {
				if err := http.ListenAndServe(fmt.Sprintf("127.0.0.1:%d", port), mux); err != nil {
					slog.Warn("metrics listener stopped", "error", err)
				}
			}()
		}
		tc := cfg.Observability.Tracing
		shutdown, terr := observability.SetupTracing(cmd.Context(), observability.TracingOptions{
			Enabled:        tc.Enabled,
			Endpoint:       tc.Endpoint,
			ServiceName:    tc.ServiceName,
			ServiceVersion: tc.ServiceVersion,
			Environment:    tc.Environment,
			SamplingRate:   tc.SamplingRate,
			Insecure:       tc.Insecure,
			Attributes:     tc.Attributes,
		})
		if terr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "tracing setup: %v\n", terr)
		} else {
			defer shutdown(context.Background())
		}
	}
	if os.Getenv("SAGE_NERD_FONTS") == "1" {
		_ = observability.InitIconMode(observability.IconModeNerdFonts)
	}

	workdir := cfg.Workspace.Path
	if workdir == "" {
		workdir, _ = os.Getwd()
	}

	store, err := sessions.NewFileStore(filepath.Join(stateDir(), "sessions"))
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	// An empty database.url keeps the recorder on the file store; a DSN
	// moves the live session log into SQL while listing/resume stay file-
	// backed for sessions recorded before the switch.
	var recorder *sessions.Recorder
	var compactor *sessions.Compactor
	if cfg.Database.URL != "" {
		dbCfg := sessions.DefaultCockroachConfig()
		if cfg.Database.MaxConnections > 0 {
			dbCfg.MaxOpenConns = cfg.Database.MaxConnections
		}
		if cfg.Database.ConnMaxLifetime > 0 {
			dbCfg.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
		}
		sqlStore, err := sessions.NewCockroachStoreFromDSN(cfg.Database.URL, dbCfg)
		if err != nil {
			return fmt.Errorf("open sql session store: %w", err)
		}
		defer sqlStore.Close()
		recorder = sessions.NewRecorder(sessions.StoreRecordAdapter{S: sqlStore})
		compactionCfg := sessions.DefaultCompactionConfig()
		compactionCfg.Enabled = true
		compactionCfg.Strategy = sessions.StrategyLastN
		compactor = sessions.NewCompactor(compactionCfg, sqlStore, nil)
	} else {
		recorder = sessions.NewRecorder(store)
	}

	registry := agent.NewToolRegistry()
	fcfg := files.Config{Workspace: workdir}
	registry.RegisterBatch([]agent.Tool{
		files.NewReadTool(fcfg),
		files.NewWriteTool(fcfg),
		files.NewEditTool(fcfg),
		files.NewApplyPatchTool(fcfg),
	})
	registry.RegisterBatch([]agent.Tool{
		sessiontools.NewListTool(store),
		sessiontools.NewHistoryTool(store),
		sessiontools.NewStatusTool(store),
	})

	mgr := exec.NewManager(workdir)
	execTool := exec.NewExecTool("exec", mgr)
	if sb := cfg.Tools.Sandbox; sb.Enabled == nil || *sb.Enabled {
		strict := sb.Strict == nil || *sb.Strict
		violations := sandbox.NewViolationStore(sb.MaxViolations)
		execTool = execTool.WithSandbox(sandbox.NewValidator(violations), workdir, strict)
	}
	registry.Register(execTool)

	if cfg.Tools.FactExtract.Enabled {
		registry.Register(facts.NewExtractTool(cfg.Tools.FactExtract.MaxFacts))
	}

	catalog := modelcat.NewCatalog()
	var bedrockDiscovery *modelcat.BedrockDiscovery
	if bd := cfg.LLM.Bedrock; bd.Enabled {
		refresh, _ := time.ParseDuration(bd.RefreshInterval)
		bedrockDiscovery = modelcat.NewBedrockDiscovery(modelcat.BedrockDiscoveryConfig{
			Enabled:              true,
			Region:               bd.Region,
			RefreshInterval:      refresh,
			ProviderFilter:       bd.ProviderFilter,
			DefaultContextWindow: bd.DefaultContextWindow,
			DefaultMaxTokens:     bd.DefaultMaxTokens,
		}, slog.Default())
	}
	registry.Register(modelstool.NewTool(catalog, bedrockDiscovery))

	if cfg.Tools.Browser.Enabled {
		pool, err := browser.NewPool(browser.PoolConfig{
			Headless:  cfg.Tools.Browser.Headless,
			RemoteURL: cfg.Tools.Browser.URL,
		})
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "browser pool: %v\n", err)
		} else {
			defer pool.Close()
			registry.Register(browser.NewBrowserTool(pool))
		}
	}

	hookRegistry := hooks.NewRegistry(slog.Default())
	hooks.SetGlobalRegistry(hookRegistry)

	// Discover hook definitions: bundled ones embedded in the binary, then
	// ~/.sage/hooks and the workspace's hooks/ directory (higher priority).
	hookSources := hooks.BuildDefaultSources(workdir, hooks.DefaultLocalPath(), "", nil)
	hookSources = append(hookSources, hooks.NewFSSource(bundled.BundledFS(), hooks.SourceBundled, hooks.PriorityBundled))
	if discovered, err := hooks.DiscoverAll(cmd.Context(), hookSources); err == nil {
		gating := hooks.NewGatingContext(nil)
		for _, entry := range hooks.FilterEligible(discovered, gating) {
			entry := entry
			for _, eventKey := range entry.Config.Events {
				hookRegistry.Register(eventKey, func(_ context.Context, event *hooks.Event) error {
					// The hook body is guidance; stash it on the event so
					// the turn that triggered it can fold it into the
					// prompt.
					event.WithContext("hook:"+entry.Config.Name, entry.Content)
					return nil
				}, hooks.WithName(entry.Config.Name), hooks.WithSource(string(entry.Source)), hooks.WithPriority(entry.Config.Priority))
			}
		}
	}

	memManager, err := memory.NewManager(&cfg.VectorMemory)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "vector memory: %v\n", err)
	}
	if memManager != nil {
		defer memManager.Close()
		if cfg.Tools.MemorySearch.Enabled {
			registry.Register(memsearch.New(memManager, cfg.Tools.MemorySearch.MaxResults, cfg.Tools.MemorySearch.MaxSnippetLen))
		}
		memory.NewMemoryHooks(memManager,
			memory.AutoCaptureConfig{Enabled: cfg.VectorMemory.Indexing.AutoIndexMessages},
			memory.AutoRecallConfig{},
			slog.Default(),
		).Register(hookRegistry)
	}

	bus := eventbus.New(64)

	model := cfg.LLM.Providers[cfg.LLM.DefaultProvider].DefaultModel

	subReg := multiagent.NewRegistry()
	var defaultPolicy *policy.Policy
	if ap := cfg.Tools.Execution.Approval; ap.Profile != "" || len(ap.Allowlist) > 0 || len(ap.Denylist) > 0 {
		defaultPolicy = &policy.Policy{Profile: policy.Profile(ap.Profile), Allow: ap.Allowlist, Deny: ap.Denylist}
	}
	subMgr := subagent.NewManager(subagent.ManagerConfig{
		Provider:         provider,
		ParentRegistry:   registry,
		Recorder:         recorder,
		Bus:              bus,
		Model:            model,
		WorkingDirectory: workdir,
		MaxActive:        cfg.Tools.Execution.Parallelism,
		SubAgentRegistry: subReg,
		DefaultPolicy:    defaultPolicy,
	})
	registry.RegisterBatch([]agent.Tool{
		subagent.NewSpawnTool(subMgr),
		subagent.NewStatusTool(subMgr),
		subagent.NewCancelTool(subMgr),
	})
	sweeper := subagent.NewSweeper(subMgr, 30*time.Minute)
	_ = sweeper.Start("", 5*time.Minute)
	defer sweeper.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Hook handlers observe the loop through the bus rather than the loop
	// calling them directly.
	busTap := bus.Subscribe()
	defer busTap.Unsubscribe()
	go hooks.ForwardBusEvents(ctx, busTap.Events, hookRegistry)

	mcpMgr := mcp.NewManager(&cfg.MCP, nil)
	if err := mcpMgr.Start(ctx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "mcp start: %v\n", err)
	}
	defer mcpMgr.Stop()
	mcp.RegisterToolsWithRegistrar(registry, mcpMgr, subMgr.PolicyResolver())

	tracker := usage.NewTracker(nil)
	providerName := cfg.LLM.DefaultProvider

	checker := commands.NewHealthChecker()
	for id := range mcpMgr.HealthStatus() {
		checker.AddServer(id, mcpProber{mgr: mcpMgr, id: id})
	}
	checker.SetSubagentSource(func() []*commands.SubagentHealth {
		snaps := subReg.ListRunning()
		out := make([]*commands.SubagentHealth, 0, len(snaps))
		for _, s := range snaps {
			out = append(out, &commands.SubagentHealth{AgentID: s.AgentID, Type: s.Type, Status: string(s.Status)})
		}
		return out
	})
	checker.SetSessionSource(func() *commands.SessionsHealth {
		summaries, err := store.List()
		if err != nil {
			return &commands.SessionsHealth{Path: store.Dir()}
		}
		sh := &commands.SessionsHealth{Path: store.Dir(), Count: len(summaries)}
		for i, s := range summaries {
			if i == 3 {
				break
			}
			age := time.Since(s.UpdatedAt).Milliseconds()
			sh.Recent = append(sh.Recent, &commands.RecentSession{ID: s.ID, AgeMs: &age})
		}
		return sh
	})

	registry.RegisterBatch([]agent.Tool{
		system.NewHealthTool(checker),
		system.NewUsageTool(tracker),
	})

	cmdRegistry := commands.NewRegistry(nil)
	if err := commands.RegisterBuiltins(cmdRegistry, commands.BuiltinDeps{
		Health: checker,
		Usage: func(ctx context.Context, name string) (string, error) {
			if name != "" {
				pu, err := tracker.Get(ctx, name)
				if err != nil {
					return "", err
				}
				return usage.FormatProviderUsage(pu), nil
			}
			all := tracker.GetAll(ctx)
			if len(all) == 0 {
				return "No provider usage recorded yet.", nil
			}
			var b strings.Builder
			for i, pu := range all {
				if i > 0 {
					b.WriteString("\n")
				}
				b.WriteString(usage.FormatProviderUsage(pu))
			}
			return b.String(), nil
		},
	}); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	parser := commands.NewParser(cmdRegistry, cfg.Commands.Prefix)
	commandsEnabled := cfg.Commands.Enabled == nil || *cfg.Commands.Enabled

	// Restrict the registry to the configured tool set, if one is given.
	if len(cfg.Tools.EnabledTools) > 0 {
		enabled := make(map[string]bool, len(cfg.Tools.EnabledTools))
		for _, name := range cfg.Tools.EnabledTools {
			enabled[name] = true
		}
		for _, name := range registry.Names() {
			if !enabled[name] {
				registry.Unregister(name)
			}
		}
	}

	var toolCache *cache.ToolCache
	if cc := cfg.Tools.Cache; cc.Enabled == nil || *cc.Enabled {
		opts := cache.DefaultToolCacheOptions()
		if cc.MaxEntries > 0 {
			opts.MaxEntries = cc.MaxEntries
		}
		if cc.DefaultTTL > 0 {
			opts.DefaultTTL = cc.DefaultTTL
		}
		if cc.MaxResultSize > 0 {
			opts.MaxResultSize = cc.MaxResultSize
		}
		toolCache = cache.NewToolCache(opts)
	}

	executor := agent.NewExecutor(registry, agent.ExecutorConfig{
		AllowParallel:  cfg.Tools.Execution.Parallelism > 1,
		DefaultTimeout: cfg.Tools.Execution.Timeout,
		Cache:          toolCache,
		ValidateArgs:   cfg.Tools.Execution.ValidateArgs,
	})
	loop := agent.NewLoop(provider, executor, recorder, bus, agent.LoopConfig{
		Model:     model,
		MaxTokens: 4096,
		OnUsage: func(u models.Usage) {
			tracker.Record(providerName, usage.Usage{
				InputTokens:      int64(u.InputTokens),
				OutputTokens:     int64(u.OutputTokens),
				CacheReadTokens:  int64(u.CacheReadTokens),
				CacheWriteTokens: int64(u.CacheWriteTokens),
			})
		},
	})

	sessionID := resumeID
	if sessionID == "" {
		sessionID, err = recorder.StartSession(ctx, sessions.SessionMeta{WorkingDirectory: workdir, Model: model})
		if err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "session %s started in %s\n", sessionID, workdir)
		hooks.TriggerAsync(ctx, hooks.NewEvent(hooks.EventSessionCreated, "").
			WithSession(sessionID).
			WithContext("workspace_id", workdir))
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "session %s resumed in %s\n", sessionID, workdir)
	}

	ctx = subagent.WithParent(ctx, subagent.ParentInfo{AgentID: "main", SessionID: sessionID})
	subMgr.SetAnnouncer(func(_ context.Context, _ string, msg string) error {
		fmt.Fprintln(cmd.OutOrStdout(), "[subagent] "+msg)
		return nil
	})

	var trajectories *sessions.TrajectoryStore
	if cfg.Trajectory.Enabled {
		dir := cfg.Trajectory.Directory
		if dir == "" {
			dir = filepath.Join(stateDir(), "trajectories")
		}
		trajectories, err = sessions.NewTrajectoryStore(dir, cfg.Trajectory.Compress)
		if err != nil {
			return fmt.Errorf("open trajectory store: %w", err)
		}
	}

	// Conversation context carried across REPL turns; a resumed session
	// starts from its recorded (repaired) transcript, pruned and packed to
	// the context budget before replay.
	var history []agent.CompletionMessage
	if resumeID != "" {
		sf, err := store.Load(resumeID)
		if err != nil {
			return fmt.Errorf("load session %s: %w", resumeID, err)
		}
		msgs := sf.Messages
		if settings := config.EffectiveContextPruningSettings(cfg.Session.ContextPruning); settings != nil {
			// Budget the prune against the model's context window at the
			// usual ~4 chars per token.
			charWindow := modelcat.CapabilitiesFor(model).ContextWindow * 4
			msgs = agentctx.PruneContextMessages(msgs, *settings, charWindow)
		}
		packer := agentctx.NewPacker(agentctx.DefaultPackOptions())
		if packed, err := packer.Pack(msgs, nil, agentctx.FindLatestSummary(msgs)); err == nil {
			msgs = packed
		}
		history = agent.HistoryMessages(msgs)
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	maxSteps := cfg.MaxSteps

	for {
		fmt.Fprint(cmd.OutOrStdout(), "> ")
		if !scanner.Scan() {
			return nil
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		if detection := parser.Parse(line); commandsEnabled && detection.HasCommand {
			if !detection.IsRegistered {
				fmt.Fprintf(cmd.ErrOrStderr(), "unknown command /%s (try /help)\n", detection.Primary.Name)
				continue
			}
			res, err := cmdRegistry.Execute(ctx, detection.Primary, sessionID, line)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "command failed: %v\n", err)
				continue
			}
			if res.Text != "" {
				fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			}
			if res.Quit {
				return nil
			}
			continue
		}

		// Auto-recall runs on the received-message hook; handlers leave any
		// recalled memories in the event context for the prompt.
		prompt := line
		received := hooks.NewEvent(hooks.EventMessageReceived, "").
			WithSession(sessionID).
			WithContext("workspace_id", workdir).
			WithMessage(&models.Message{Role: models.RoleUser, Content: line})
		if err := hookRegistry.Trigger(ctx, received); err != nil {
			slog.Debug("message hooks", "error", err)
		}
		var preamble []string
		if mc, ok := received.Context["memory_context"].(string); ok && mc != "" {
			preamble = append(preamble, mc)
		}
		for key, value := range received.Context {
			if guidance, ok := value.(string); ok && strings.HasPrefix(key, "hook:") && guidance != "" {
				preamble = append(preamble, guidance)
			}
		}
		if len(preamble) > 0 {
			prompt = strings.Join(preamble, "\n\n") + "\n\n" + line
		}

		started := time.Now()
		outcome := loop.Resume(ctx, sessionID, history, prompt, maxSteps, maxSteps > 0)
		history = outcome.Messages
		printOutcome(cmd, outcome)

		completedMsgs := make([]*models.Message, 0, len(outcome.Messages))
		for _, m := range outcome.Messages {
			completedMsgs = append(completedMsgs, &models.Message{Role: models.Role(m.Role), Content: m.Content})
		}
		hooks.TriggerAsync(ctx, hooks.NewEvent(hooks.EventAgentCompleted, "").
			WithSession(sessionID).
			WithContext("workspace_id", workdir).
			WithContext("messages", completedMsgs).
			WithContext("success", outcome.Kind == agent.OutcomeSuccess))
		if trajectories != nil {
			if _, err := trajectories.Archive(buildTrajectory(cfg, line, started, maxSteps, outcome)); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "archive trajectory: %v\n", err)
			}
		}
		if compactor != nil {
			if should, reason := compactor.ShouldCompact(ctx, sessionID); should {
				if res, err := compactor.Compact(ctx, sessionID); err == nil {
					slog.Info("session over compaction threshold",
						"reason", reason,
						"messages", res.MessagesBeforeCompaction,
						"compactable_to", res.MessagesAfterCompaction)
				}
			}
		}
		if outcome.Kind == agent.OutcomeFailed {
			return outcome.Err
		}
		if outcome.Kind == agent.OutcomeInterrupted || outcome.Kind == agent.OutcomeUserCancelled {
			return nil
		}
	}
}

// buildTrajectory snapshots one completed run as an immutable archive
// record.
func buildTrajectory(cfg *config.Config, task string, started time.Time, maxSteps int, outcome agent.ExecutionOutcome) models.Trajectory {
	t := models.Trajectory{
		ID:               uuid.NewString(),
		Task:             task,
		StartTime:        started.UTC(),
		EndTime:          time.Now().UTC(),
		Provider:         cfg.LLM.DefaultProvider,
		Model:            cfg.LLM.Providers[cfg.LLM.DefaultProvider].DefaultModel,
		MaxSteps:         maxSteps,
		Success:          outcome.Kind == agent.OutcomeSuccess,
		ExecutionTimeSec: time.Since(started).Seconds(),
	}
	step := 0
	for _, msg := range outcome.Messages {
		switch msg.Role {
		case "assistant":
			step++
			t.AgentSteps = append(t.AgentSteps, models.AgentStep{
				StepNumber: step,
				Content:    msg.Content,
				ToolCalls:  msg.ToolCalls,
			})
			t.LLMInteractions = append(t.LLMInteractions, models.LLMInteraction{
				Timestamp: time.Now().UTC(),
				Response:  msg.Content,
			})
		}
	}
	if len(outcome.Messages) > 0 {
		last := outcome.Messages[len(outcome.Messages)-1]
		if last.Role == "assistant" {
			t.FinalResult = last.Content
		}
	}
	if outcome.Err != nil && len(t.AgentSteps) > 0 {
		t.AgentSteps[len(t.AgentSteps)-1].Error = outcome.Err.Error()
	}
	return t
}

func printOutcome(cmd *cobra.Command, outcome agent.ExecutionOutcome) {
	out := cmd.OutOrStdout()
	switch outcome.Kind {
	case agent.OutcomeSuccess:
		if len(outcome.Messages) > 0 {
			fmt.Fprintln(out, outcome.Messages[len(outcome.Messages)-1].Content)
		}
	case agent.OutcomeMaxStepsReached:
		fmt.Fprintln(out, "(stopped: "+outcome.Reason+")")
	case agent.OutcomeInterrupted:
		fmt.Fprintln(out, "(interrupted)")
	case agent.OutcomeUserCancelled:
		fmt.Fprintln(out, "(cancelled)")
	case agent.OutcomeFailed:
		fmt.Fprintln(cmd.ErrOrStderr(), "error: "+outcome.Err.Error())
	}
}

func stateDir() string {
	dir := os.Getenv("SAGE_WORKING_DIR")
	if dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sage"
	}
	return filepath.Join(home, ".sage")
}
