package mcp

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/sagerun/sage/internal/agent"
)

const maxToolNameLen = 64

// ToolCaller defines the MCP tool execution contract used by the bridge.
type ToolCaller interface {
	CallTool(ctx context.Context, serverID, toolName string, arguments map[string]any) (*ToolCallResult, error)
}

// ResourceReader defines the MCP resource read contract used by the bridge.
type ResourceReader interface {
	ReadResource(ctx context.Context, serverID, uri string) ([]*ResourceContent, error)
}

// PromptGetter defines the MCP prompt get contract used by the bridge.
type PromptGetter interface {
	GetPrompt(ctx context.Context, serverID, name string, arguments map[string]string) (*GetPromptResult, error)
}

// ToolPolicyRegistrar lets the bridge expose each server's registered tool
// names as a policy group ("group:mcp:<serverID>"), so tool policies can
// grant or deny a whole server at once.
type ToolPolicyRegistrar interface {
	AddGroup(name string, tools []string)
}

// ToolBridge wraps an MCP tool and exposes it as a Sage agent tool.
type ToolBridge struct {
	caller   ToolCaller
	serverID string
	tool     *MCPTool
	name     string
}

// NewToolBridge creates a bridge tool with a precomputed safe name.
func NewToolBridge(caller ToolCaller, serverID string, tool *MCPTool, safeName string) *ToolBridge {
	return &ToolBridge{
		caller:   caller,
		serverID: serverID,
		tool:     tool,
		name:     safeName,
	}
}

// Name returns the safe tool name registered with the LLM provider.
func (b *ToolBridge) Name() string {
	return b.name
}

// Description returns the MCP tool description, prefixed with MCP metadata.
func (b *ToolBridge) Description() string {
	desc := strings.TrimSpace(b.tool.Description)
	if desc == "" {
		return fmt.Sprintf("MCP tool %s.%s", b.serverID, b.tool.Name)
	}
	return fmt.Sprintf("MCP tool %s.%s: %s", b.serverID, b.tool.Name, desc)
}

// Schema returns the MCP tool input schema, passed through SanitizeSchema.
func (b *ToolBridge) Schema() json.RawMessage {
	if len(b.tool.InputSchema) == 0 {
		return json.RawMessage(`{"type":"object"}`)
	}
	return SanitizeSchema(b.tool.InputSchema)
}

// Execute invokes the MCP tool via the manager.
func (b *ToolBridge) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var arguments map[string]any
	if len(params) > 0 {
		if err := json.Unmarshal(params, &arguments); err != nil {
			return nil, err
		}
	}

	result, err := b.caller.CallTool(ctx, b.serverID, b.tool.Name, arguments)
	if err != nil {
		return nil, err
	}

	content, isError := formatToolCallResult(result)
	return &agent.ToolResult{
		Content: content,
		IsError: isError,
	}, nil
}

// opBridge exposes one per-server MCP operation (resource listing and
// reading, prompt listing and fetching) as an agent tool. The four
// operations share their plumbing and differ only in schema and the run
// closure.
type opBridge struct {
	name        string
	description string
	schema      json.RawMessage
	run         func(ctx context.Context, params json.RawMessage) (string, bool, error)
}

func (b *opBridge) Name() string            { return b.name }
func (b *opBridge) Description() string     { return b.description }
func (b *opBridge) Schema() json.RawMessage { return b.schema }

func (b *opBridge) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	content, isError, err := b.run(ctx, params)
	if err != nil {
		return nil, err
	}
	return &agent.ToolResult{Content: content, IsError: isError}, nil
}

var emptyObjectSchema = json.RawMessage(`{"type":"object"}`)

// NewResourceListBridge exposes resources/list for one server.
func NewResourceListBridge(mgr *Manager, serverID, safeName string) agent.Tool {
	return &opBridge{
		name:        safeName,
		description: fmt.Sprintf("List MCP resources for %s", serverID),
		schema:      emptyObjectSchema,
		run: func(ctx context.Context, params json.RawMessage) (string, bool, error) {
			payload, err := json.Marshal(mgr.AllResources()[serverID])
			if err != nil {
				return "", false, err
			}
			return string(payload), false, nil
		},
	}
}

// NewResourceReadBridge exposes resources/read for one server.
func NewResourceReadBridge(reader ResourceReader, serverID, safeName string) agent.Tool {
	return &opBridge{
		name:        safeName,
		description: fmt.Sprintf("Read an MCP resource from %s (provide uri)", serverID),
		schema:      json.RawMessage(`{"type":"object","properties":{"uri":{"type":"string"}},"required":["uri"]}`),
		run: func(ctx context.Context, params json.RawMessage) (string, bool, error) {
			var input struct {
				URI string `json:"uri"`
			}
			if err := json.Unmarshal(params, &input); err != nil {
				return "", false, err
			}
			if strings.TrimSpace(input.URI) == "" {
				return "", false, fmt.Errorf("uri is required")
			}
			contents, err := reader.ReadResource(ctx, serverID, input.URI)
			if err != nil {
				return "", false, err
			}
			content, isError := formatResourceContents(contents)
			return content, isError, nil
		},
	}
}

// NewPromptListBridge exposes prompts/list for one server.
func NewPromptListBridge(mgr *Manager, serverID, safeName string) agent.Tool {
	return &opBridge{
		name:        safeName,
		description: fmt.Sprintf("List MCP prompts for %s", serverID),
		schema:      emptyObjectSchema,
		run: func(ctx context.Context, params json.RawMessage) (string, bool, error) {
			payload, err := json.Marshal(mgr.AllPrompts()[serverID])
			if err != nil {
				return "", false, err
			}
			return string(payload), false, nil
		},
	}
}

// NewPromptGetBridge exposes prompts/get for one server.
func NewPromptGetBridge(getter PromptGetter, serverID, safeName string) agent.Tool {
	return &opBridge{
		name:        safeName,
		description: fmt.Sprintf("Fetch an MCP prompt from %s (provide name, arguments)", serverID),
		schema:      json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"},"arguments":{"type":"object"}},"required":["name"]}`),
		run: func(ctx context.Context, params json.RawMessage) (string, bool, error) {
			var input struct {
				Name      string            `json:"name"`
				Arguments map[string]string `json:"arguments,omitempty"`
			}
			if err := json.Unmarshal(params, &input); err != nil {
				return "", false, err
			}
			if strings.TrimSpace(input.Name) == "" {
				return "", false, fmt.Errorf("name is required")
			}
			result, err := getter.GetPrompt(ctx, serverID, input.Name, input.Arguments)
			if err != nil {
				return "", false, err
			}
			content, isError := formatPromptResult(result)
			return content, isError, nil
		},
	}
}

// RegisterTools registers all available MCP tools with the registry.
func RegisterTools(registry *agent.ToolRegistry, mgr *Manager) []string {
	return RegisterToolsWithRegistrar(registry, mgr, nil)
}

// RegisterToolsWithRegistrar registers MCP tools and, when a registrar is
// given, publishes each server's tool names as a policy group.
func RegisterToolsWithRegistrar(registry *agent.ToolRegistry, mgr *Manager, registrar ToolPolicyRegistrar) []string {
	if registry == nil || mgr == nil {
		return nil
	}

	tools := listToolsSorted(mgr)
	used := make(map[string]struct{})
	registered := make([]string, 0, len(tools))
	serverTools := make(map[string][]string)
	for _, entry := range tools {
		name := safeToolName(entry.serverID, entry.tool.Name, used)
		registry.Register(NewToolBridge(mgr, entry.serverID, entry.tool, name))
		registered = append(registered, name)
		serverTools[entry.serverID] = append(serverTools[entry.serverID], name)
	}

	serverIDs := listServerIDs(mgr)
	for _, serverID := range serverIDs {
		resListName := safeToolName(serverID, "resources_list", used)
		resReadName := safeToolName(serverID, "resource_read", used)
		promptListName := safeToolName(serverID, "prompts_list", used)
		promptGetName := safeToolName(serverID, "prompt_get", used)

		registry.Register(NewResourceListBridge(mgr, serverID, resListName))
		registry.Register(NewResourceReadBridge(mgr, serverID, resReadName))
		registry.Register(NewPromptListBridge(mgr, serverID, promptListName))
		registry.Register(NewPromptGetBridge(mgr, serverID, promptGetName))

		registered = append(registered, resListName, resReadName, promptListName, promptGetName)
		serverTools[serverID] = append(serverTools[serverID], resListName, resReadName, promptListName, promptGetName)
	}

	if registrar != nil {
		for serverID, names := range serverTools {
			registrar.AddGroup("group:mcp:"+serverID, names)
		}
	}

	return registered
}

type toolEntry struct {
	serverID string
	tool     *MCPTool
}

func listToolsSorted(mgr *Manager) []toolEntry {
	all := mgr.AllTools()
	if len(all) == 0 {
		return nil
	}

	serverIDs := make([]string, 0, len(all))
	for id := range all {
		serverIDs = append(serverIDs, id)
	}
	sort.Strings(serverIDs)

	var entries []toolEntry
	for _, serverID := range serverIDs {
		tools := all[serverID]
		sort.Slice(tools, func(i, j int) bool {
			return tools[i].Name < tools[j].Name
		})
		for _, tool := range tools {
			entries = append(entries, toolEntry{serverID: serverID, tool: tool})
		}
	}
	return entries
}

func listServerIDs(mgr *Manager) []string {
	seen := make(map[string]struct{})
	for id := range mgr.AllTools() {
		seen[id] = struct{}{}
	}
	for id := range mgr.AllResources() {
		seen[id] = struct{}{}
	}
	for id := range mgr.AllPrompts() {
		seen[id] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func safeToolName(serverID, toolName string, used map[string]struct{}) string {
	base := "mcp_" + sanitizeToolPart(serverID) + "_" + sanitizeToolPart(toolName)
	name := base
	if len(name) > maxToolNameLen {
		name = truncateWithHash(base, serverID, toolName)
	}

	if _, exists := used[name]; exists {
		name = dedupeWithHash(name, serverID, toolName)
	}

	used[name] = struct{}{}
	return name
}

func sanitizeToolPart(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	underscore := false
	for _, r := range value {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			underscore = false
		default:
			if !underscore {
				b.WriteByte('_')
				underscore = true
			}
		}
	}
	clean := strings.Trim(b.String(), "_")
	if clean == "" {
		return "tool"
	}
	return clean
}

func toolNameHash(serverID, toolName string) string {
	sum := sha1.Sum([]byte(serverID + ":" + toolName))
	return hex.EncodeToString(sum[:])[:8]
}

func truncateWithHash(base, serverID, toolName string) string {
	suffix := "_" + toolNameHash(serverID, toolName)
	if maxToolNameLen <= len(suffix) {
		return suffix[len(suffix)-maxToolNameLen:]
	}
	trimLen := maxToolNameLen - len(suffix)
	if trimLen > len(base) {
		trimLen = len(base)
	}
	return base[:trimLen] + suffix
}

func dedupeWithHash(base, serverID, toolName string) string {
	suffix := "_" + toolNameHash(serverID, toolName)
	name := base + suffix
	if len(name) <= maxToolNameLen {
		return name
	}
	return truncateWithHash(base, serverID, toolName)
}

func formatToolCallResult(result *ToolCallResult) (string, bool) {
	if result == nil {
		return "", false
	}
	if len(result.Content) == 0 {
		return "", result.IsError
	}

	allText := true
	var combined strings.Builder
	for _, item := range result.Content {
		if item.Type != "text" {
			allText = false
			break
		}
		if item.Text == "" {
			continue
		}
		if combined.Len() > 0 {
			combined.WriteString("\n")
		}
		combined.WriteString(item.Text)
	}

	if allText && combined.Len() > 0 {
		return combined.String(), result.IsError
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return "", result.IsError
	}
	return string(payload), result.IsError
}

func formatResourceContents(contents []*ResourceContent) (string, bool) {
	if len(contents) == 0 {
		return "", false
	}
	if len(contents) == 1 && contents[0].Text != "" {
		return contents[0].Text, false
	}
	payload, err := json.Marshal(contents)
	if err != nil {
		return "", false
	}
	return string(payload), false
}

func formatPromptResult(result *GetPromptResult) (string, bool) {
	if result == nil || len(result.Messages) == 0 {
		return "", false
	}
	if len(result.Messages) == 1 && result.Messages[0].Content.Type == "text" {
		return result.Messages[0].Content.Text, false
	}
	payload, err := json.Marshal(result.Messages)
	if err != nil {
		return "", false
	}
	return string(payload), false
}


