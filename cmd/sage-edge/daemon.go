package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sagerun/sage/internal/agent"
	"github.com/sagerun/sage/internal/auth"
	"github.com/sagerun/sage/internal/config"
	"github.com/sagerun/sage/internal/eventbus"
	"github.com/sagerun/sage/internal/sandbox"
	"github.com/sagerun/sage/internal/sessions"
	"github.com/sagerun/sage/internal/tools/exec"
	"github.com/sagerun/sage/internal/tools/files"
)

const (
	heartbeatInterval = 30 * time.Second
	writeTimeout      = 10 * time.Second
)

// frame is the wire shape both directions of the edge connection use.
// Exactly one Type is meaningful per frame.
type frame struct {
	Type      string `json:"type"` // hello | task | cancel | result
	ID        string `json:"id,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
	MaxSteps  int    `json:"max_steps,omitempty"`
	EdgeID    string `json:"edge_id,omitempty"`
	Workspace string `json:"workspace,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Final     string `json:"final,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Daemon holds everything one edge connection needs: the loop and its
// tools, the session recorder, and the control-plane credentials.
type Daemon struct {
	serverURL string
	edgeID    string
	workdir   string
	tokens    auth.TokenProvider

	loop     *agent.Loop
	recorder *sessions.Recorder
	maxSteps int

	mu      sync.Mutex // guards conn writes
	conn    *websocket.Conn
	cancels map[string]context.CancelFunc
}

func newDaemon(cfg *config.Config, workdir, serverURL, edgeID string, tokens auth.TokenProvider) (*Daemon, error) {
	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	// Edge hosts are often containerized with a read-only workspace; fall
	// back to an in-memory session log rather than refusing to start.
	var recorder *sessions.Recorder
	if store, err := sessions.NewFileStore(filepath.Join(workdir, ".sage", "sessions")); err == nil {
		recorder = sessions.NewRecorder(store)
	} else {
		recorder = sessions.NewRecorder(sessions.StoreRecordAdapter{S: sessions.NewMemoryStore()})
	}

	registry := agent.NewToolRegistry()
	fcfg := files.Config{Workspace: workdir}
	registry.RegisterBatch([]agent.Tool{
		files.NewReadTool(fcfg),
		files.NewWriteTool(fcfg),
		files.NewEditTool(fcfg),
		files.NewApplyPatchTool(fcfg),
	})
	mgr := exec.NewManager(workdir)
	registry.Register(exec.NewExecTool("exec", mgr).WithSandbox(sandbox.NewValidator(nil), workdir, true))

	executor := agent.NewExecutor(registry, agent.ExecutorConfig{
		AllowParallel: cfg.Tools.Execution.Parallelism > 1,
		ValidateArgs:  cfg.Tools.Execution.ValidateArgs,
	})
	bus := eventbus.New(64)
	model := cfg.LLM.Providers[cfg.LLM.DefaultProvider].DefaultModel

	loop := agent.NewLoop(provider, executor, recorder, bus, agent.LoopConfig{
		Model:     model,
		MaxTokens: 4096,
	})

	return &Daemon{
		serverURL: serverURL,
		edgeID:    edgeID,
		workdir:   workdir,
		tokens:    tokens,
		loop:      loop,
		recorder:  recorder,
		maxSteps:  cfg.MaxSteps,
		cancels:   make(map[string]context.CancelFunc),
	}, nil
}

// ConnectAndServe dials the control plane, announces itself, and serves
// task frames until the connection drops or ctx is cancelled.
func (d *Daemon) ConnectAndServe(ctx context.Context) error {
	token, err := d.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("obtain token: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.serverURL, header)
	if err != nil {
		return fmt.Errorf("dial control plane: %w", err)
	}
	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()
	defer conn.Close()

	if err := d.write(frame{Type: "hello", EdgeID: d.edgeID, Workspace: d.workdir}); err != nil {
		return err
	}
	slog.Info("connected to control plane", "server", d.serverURL, "edge_id", d.edgeID)

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go d.heartbeat(hbCtx, conn)

	// Close the socket when ctx ends so the blocking ReadJSON unwinds.
	go func() {
		<-hbCtx.Done()
		conn.Close()
	}()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		switch f.Type {
		case "task":
			go d.runTask(ctx, f)
		case "cancel":
			d.cancelTask(f.ID)
		default:
			slog.Debug("ignoring frame", "type", f.Type)
		}
	}
}

func (d *Daemon) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			d.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (d *Daemon) runTask(ctx context.Context, f frame) {
	taskCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancels[f.ID] = cancel
	d.mu.Unlock()
	defer func() {
		cancel()
		d.mu.Lock()
		delete(d.cancels, f.ID)
		d.mu.Unlock()
	}()

	sessionID, err := d.recorder.StartSession(taskCtx, sessions.SessionMeta{WorkingDirectory: d.workdir})
	if err != nil {
		d.write(frame{Type: "result", ID: f.ID, Outcome: "failed", Error: err.Error()})
		return
	}

	maxSteps := f.MaxSteps
	if maxSteps <= 0 {
		maxSteps = d.maxSteps
	}

	outcome := d.loop.Run(taskCtx, sessionID, f.Prompt, maxSteps, maxSteps > 0)

	result := frame{Type: "result", ID: f.ID, Outcome: string(outcome.Kind)}
	if len(outcome.Messages) > 0 {
		result.Final = outcome.Messages[len(outcome.Messages)-1].Content
	}
	if outcome.Err != nil {
		result.Error = outcome.Err.Error()
	}
	if err := d.write(result); err != nil {
		slog.Error("report result", "task_id", f.ID, "error", err)
	}
}

func (d *Daemon) cancelTask(id string) {
	d.mu.Lock()
	cancel, ok := d.cancels[id]
	d.mu.Unlock()
	if ok {
		cancel()
	}
}

func (d *Daemon) write(f frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return fmt.Errorf("not connected")
	}
	d.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return d.conn.WriteJSON(f)
}

// Close cancels every in-flight task and drops the connection.
func (d *Daemon) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cancel := range d.cancels {
		cancel()
	}
	if d.conn != nil {
		d.conn.Close()
	}
}
