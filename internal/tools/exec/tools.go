package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sagerun/sage/internal/agent"
	"github.com/sagerun/sage/internal/sandbox"
	"github.com/sagerun/sage/pkg/models"
)

// ExecTool runs shell commands through the process manager, with the
// layered sandbox validator vetting every command first when attached.
type ExecTool struct {
	name    string
	manager *Manager
	sandbox *sandbox.Validator
	strict  bool
	workdir string
}

// NewExecTool creates an exec tool with the given name.
func NewExecTool(name string, manager *Manager) *ExecTool {
	if strings.TrimSpace(name) == "" {
		name = "exec"
	}
	return &ExecTool{name: name, manager: manager}
}

// WithSandbox attaches the command validator. Validation runs during
// ValidateBatch, before Execute ever spawns a process; strict makes
// chaining metacharacters blocking instead of warning-only.
func (t *ExecTool) WithSandbox(v *sandbox.Validator, workdir string, strict bool) *ExecTool {
	t.sandbox = v
	t.workdir = workdir
	t.strict = strict
	return t
}

// Validate implements agent.Validator over the attached sandbox validator.
func (t *ExecTool) Validate(call models.ToolCall) error {
	if t.sandbox == nil {
		return nil
	}
	var input struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(call.Input, &input); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	command := strings.TrimSpace(input.Command)
	if command == "" {
		return fmt.Errorf("command is required")
	}
	verdict := t.sandbox.Validate(command, sandbox.Context{Strict: t.strict, WorkingDirectory: t.workdir})
	if !verdict.Allowed {
		return fmt.Errorf("command blocked by %s check: %s", verdict.Check, verdict.Reason)
	}
	return nil
}

func (t *ExecTool) Name() string { return t.name }

func (t *ExecTool) Description() string {
	return "Run a shell command in the workspace (supports optional background execution)."
}

func (t *ExecTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "Shell command to execute."},
			"cwd": {"type": "string", "description": "Working directory (relative to workspace)."},
			"env": {"type": "object", "description": "Environment overrides (string values)."},
			"input": {"type": "string", "description": "Stdin content to pass to the command."},
			"timeout_seconds": {"type": "integer", "description": "Timeout in seconds (0 = no timeout).", "minimum": 0},
			"background": {"type": "boolean", "description": "Run in background and return a process id."}
		},
		"required": ["command"]
	}`)
}

func (t *ExecTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.manager == nil {
		return toolError("exec manager unavailable"), nil
	}
	var input struct {
		Command        string            `json:"command"`
		Cwd            string            `json:"cwd"`
		Env            map[string]string `json:"env"`
		Input          string            `json:"input"`
		TimeoutSeconds int               `json:"timeout_seconds"`
		Background     bool              `json:"background"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	command := strings.TrimSpace(input.Command)
	if command == "" {
		return toolError("command is required"), nil
	}
	timeout := time.Duration(input.TimeoutSeconds) * time.Second

	if input.Background {
		proc, err := t.manager.startBackground(ctx, command, input.Cwd, input.Env, input.Input, timeout)
		if err != nil {
			return toolError(err.Error()), nil
		}
		return jsonResult(map[string]any{"status": "running", "process_id": proc.id}), nil
	}

	result, err := t.manager.runSync(ctx, command, input.Cwd, input.Env, input.Input, timeout)
	if err != nil {
		return toolError(err.Error()), nil
	}
	return jsonResult(result), nil
}

// ProcessTool inspects and manages background exec processes. Actions
// dispatch through a table; everything but "list" targets one process.
type ProcessTool struct {
	manager *Manager
	actions map[string]func(proc *process, input string) (*agent.ToolResult, error)
}

// NewProcessTool creates a process tool over manager.
func NewProcessTool(manager *Manager) *ProcessTool {
	t := &ProcessTool{manager: manager}
	t.actions = map[string]func(*process, string) (*agent.ToolResult, error){
		"status": t.statusAction,
		"log":    t.logAction,
		"write":  t.writeAction,
		"kill":   t.killAction,
		"remove": t.removeAction,
	}
	return t
}

func (t *ProcessTool) Name() string { return "process" }

func (t *ProcessTool) Description() string {
	return "Manage background exec processes (list, status, log, write, kill, remove)."
}

func (t *ProcessTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "description": "Action: list, status, log, write, kill, remove."},
			"process_id": {"type": "string", "description": "Process id for actions that target a process."},
			"input": {"type": "string", "description": "Input for write action."}
		},
		"required": ["action"]
	}`)
}

func (t *ProcessTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.manager == nil {
		return toolError("process manager unavailable"), nil
	}
	var input struct {
		Action    string `json:"action"`
		ProcessID string `json:"process_id"`
		Input     string `json:"input"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}

	action := strings.ToLower(strings.TrimSpace(input.Action))
	if action == "list" {
		return jsonResult(map[string]any{"processes": t.manager.list()}), nil
	}

	run, ok := t.actions[action]
	if !ok {
		return toolError("unsupported action"), nil
	}
	id := strings.TrimSpace(input.ProcessID)
	if id == "" {
		return toolError("process_id is required"), nil
	}
	proc, ok := t.manager.get(id)
	if !ok {
		return toolError("process not found"), nil
	}
	return run(proc, input.Input)
}

func (t *ProcessTool) statusAction(proc *process, _ string) (*agent.ToolResult, error) {
	return jsonResult(proc.info()), nil
}

func (t *ProcessTool) logAction(proc *process, _ string) (*agent.ToolResult, error) {
	return jsonResult(map[string]any{
		"stdout": proc.stdout.String(),
		"stderr": proc.stderr.String(),
		"status": proc.status(),
	}), nil
}

func (t *ProcessTool) writeAction(proc *process, input string) (*agent.ToolResult, error) {
	if proc.stdin == nil {
		return toolError("process stdin unavailable"), nil
	}
	if input == "" {
		return toolError("input is required"), nil
	}
	if _, err := proc.stdin.Write([]byte(input)); err != nil {
		return toolError(fmt.Sprintf("write stdin: %v", err)), nil
	}
	return jsonResult(map[string]any{"status": "written"}), nil
}

func (t *ProcessTool) killAction(proc *process, _ string) (*agent.ToolResult, error) {
	if proc.cmd.Process == nil {
		return toolError("process not running"), nil
	}
	if err := proc.cmd.Process.Kill(); err != nil {
		return toolError(fmt.Sprintf("kill process: %v", err)), nil
	}
	return jsonResult(map[string]any{"status": "killed"}), nil
}

func (t *ProcessTool) removeAction(proc *process, _ string) (*agent.ToolResult, error) {
	if proc.status() == "running" {
		return toolError("process still running"), nil
	}
	if !t.manager.remove(proc.id) {
		return toolError("remove failed"), nil
	}
	return jsonResult(map[string]any{"status": "removed"}), nil
}

func jsonResult(payload any) *agent.ToolResult {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err))
	}
	return &agent.ToolResult{Content: string(encoded)}
}

func toolError(message string) *agent.ToolResult {
	payload, _ := json.Marshal(map[string]string{"error": message})
	return &agent.ToolResult{Content: string(payload), IsError: true}
}
