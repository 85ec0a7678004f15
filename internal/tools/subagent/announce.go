package subagent

import (
	"fmt"
	"strings"
	"time"
)

// SubagentRunOutcome summarizes how a sub-agent run ended.
type SubagentRunOutcome struct {
	Status string // "ok", "error", "timeout", "unknown"
	Error  string
}

// statusLabel renders the outcome for the trigger message.
func (o *SubagentRunOutcome) statusLabel() string {
	switch o.Status {
	case "ok":
		return "completed successfully"
	case "timeout":
		return "timed out"
	case "error":
		if o.Error != "" {
			return "failed: " + o.Error
		}
		return "failed: unknown error"
	default:
		return "finished with unknown status"
	}
}

// StatsLine carries the run metrics the completion announcement reports.
type StatsLine struct {
	Runtime        string
	InputTokens    int
	OutputTokens   int
	TotalTokens    int
	Cost           float64
	SessionID      string
	TranscriptPath string
}

// FormatDurationShort renders a duration as 2h3m / 4m5s / 6s.
func FormatDurationShort(d time.Duration) string {
	if d <= 0 {
		return "n/a"
	}
	total := int(d.Seconds())
	switch {
	case total >= 3600:
		return fmt.Sprintf("%dh%dm", total/3600, (total%3600)/60)
	case total >= 60:
		return fmt.Sprintf("%dm%ds", total/60, total%60)
	default:
		return fmt.Sprintf("%ds", total)
	}
}

// FormatTokenCount renders token counts with k/m suffixes.
func FormatTokenCount(count int) string {
	switch {
	case count <= 0:
		return "0"
	case count >= 1_000_000:
		return fmt.Sprintf("%.1fm", float64(count)/1_000_000)
	case count >= 1_000:
		return fmt.Sprintf("%.1fk", float64(count)/1_000)
	default:
		return fmt.Sprintf("%d", count)
	}
}

// FormatUSD renders an estimated cost, or "" when there is none to show.
func FormatUSD(amount float64) string {
	switch {
	case amount <= 0:
		return ""
	case amount >= 0.01:
		return fmt.Sprintf("$%.2f", amount)
	default:
		return fmt.Sprintf("$%.4f", amount)
	}
}

// BuildStatsLine assembles the bullet-separated stats summary.
func BuildStatsLine(stats *StatsLine) string {
	parts := []string{"runtime " + stats.Runtime}

	if stats.TotalTokens > 0 {
		parts = append(parts, fmt.Sprintf("tokens %s (in %s / out %s)",
			FormatTokenCount(stats.TotalTokens),
			FormatTokenCount(stats.InputTokens),
			FormatTokenCount(stats.OutputTokens)))
	} else {
		parts = append(parts, "tokens n/a")
	}
	if cost := FormatUSD(stats.Cost); cost != "" {
		parts = append(parts, "est "+cost)
	}
	parts = append(parts, "session "+stats.SessionID)
	if stats.TranscriptPath != "" {
		parts = append(parts, "transcript "+stats.TranscriptPath)
	}
	return "Stats: " + strings.Join(parts, " • ")
}

// SubagentSystemPromptParams parameterizes the child's system prompt.
type SubagentSystemPromptParams struct {
	RequesterSessionID string
	ChildSessionID     string
	Label              string
	Task               string
}

// BuildSubagentSystemPrompt frames the child loop: it exists for one task,
// reports back through its final message, and never acts like the main
// agent.
func BuildSubagentSystemPrompt(params SubagentSystemPromptParams) string {
	task := params.Task
	if task == "" {
		task = "{{TASK_DESCRIPTION}}"
	}

	var b strings.Builder
	b.WriteString("# Subagent Context\n\n")
	b.WriteString("You are a **subagent** spawned by the main agent for a specific task.\n\n")
	b.WriteString("## Your Role\n")
	b.WriteString("- You were created to handle: " + task + "\n")
	b.WriteString("- Complete this task. That's your entire purpose.\n")
	b.WriteString("- You are NOT the main agent. Don't try to be.\n\n")
	b.WriteString("## Rules\n")
	b.WriteString("1. **Stay focused** - Do your assigned task, nothing else\n")
	b.WriteString("2. **Complete the task** - Your final message will be automatically reported to the main agent\n")
	b.WriteString("3. **Don't initiate** - No proactive actions, no side quests\n")
	b.WriteString("4. **Be ephemeral** - You may be terminated after task completion. That's fine.\n\n")
	b.WriteString("## Output Format\n")
	b.WriteString("When complete, your final response should include:\n")
	b.WriteString("- What you accomplished or found\n")
	b.WriteString("- Any relevant details the main agent should know\n")
	b.WriteString("- Keep it concise but informative\n\n")
	b.WriteString("## What You DON'T Do\n")
	b.WriteString("- NO user conversations (that's main agent's job)\n")
	b.WriteString("- NO spawning further sub-agents unless explicitly tasked\n")
	b.WriteString("- NO persistent state or scheduled work\n")
	b.WriteString("- NO pretending to be the main agent\n\n")
	b.WriteString("## Session Context\n")
	if params.Label != "" {
		b.WriteString("- Label: " + params.Label + "\n")
	}
	if params.RequesterSessionID != "" {
		b.WriteString("- Requester session: " + params.RequesterSessionID + ".\n")
	}
	b.WriteString("- Your session: " + params.ChildSessionID + ".\n")
	return b.String()
}

// TriggerMessageParams parameterizes the completion announcement delivered
// back into the parent session.
type TriggerMessageParams struct {
	Label     string
	Task      string
	Outcome   *SubagentRunOutcome
	Reply     string
	StatsLine string
}

// BuildTriggerMessage formats the announcement the parent loop receives
// when a sub-agent finishes; the parent decides whether the user hears
// about it.
func BuildTriggerMessage(params TriggerMessageParams) string {
	label := params.Label
	if label == "" {
		label = params.Task
	}
	if label == "" {
		label = "background task"
	}

	reply := params.Reply
	if reply == "" {
		reply = "(no output)"
	}

	return strings.Join([]string{
		fmt.Sprintf("A background task %q just %s.", label, params.Outcome.statusLabel()),
		"",
		"Findings:",
		reply,
		"",
		params.StatsLine,
		"",
		"Summarize this naturally for the user. Keep it brief (1-2 sentences). Flow it into the conversation naturally.",
		"Do not mention technical details like tokens, stats, or that this was a background task.",
		"You can respond with NO_REPLY if no announcement is needed (e.g., internal task with no user-facing result).",
	}, "\n")
}
