package mcp

import "encoding/json"

// SanitizeSchema coerces every "description" field in a JSON-Schema subtree
// to a string - null becomes empty, any non-string value is stringified via
// its JSON encoding. It recurses through properties, items,
// additionalProperties, and anyOf/oneOf/allOf. Some downstream LLM wire
// formats reject a schema with a null or non-string description, so this
// runs on every MCP tool schema before it is handed to a native provider.
//
// SanitizeSchema is idempotent: running it again on its own output is a
// no-op.
func SanitizeSchema(schema json.RawMessage) json.RawMessage {
	if len(schema) == 0 {
		return schema
	}

	var v any
	if err := json.Unmarshal(schema, &v); err != nil {
		return schema
	}

	sanitized := sanitizeNode(v)

	out, err := json.Marshal(sanitized)
	if err != nil {
		return schema
	}
	return out
}

func sanitizeNode(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		if arr, ok := v.([]any); ok {
			out := make([]any, len(arr))
			for i, item := range arr {
				out[i] = sanitizeNode(item)
			}
			return out
		}
		return v
	}

	out := make(map[string]any, len(m))
	for k, val := range m {
		out[k] = val
	}

	if desc, ok := out["description"]; ok {
		out["description"] = coerceDescription(desc)
	}

	for _, key := range []string{"properties", "additionalProperties"} {
		if sub, ok := out[key]; ok {
			out[key] = sanitizeObjectOrMap(sub)
		}
	}

	if items, ok := out["items"]; ok {
		out["items"] = sanitizeNode(items)
	}

	for _, key := range []string{"anyOf", "oneOf", "allOf"} {
		if list, ok := out[key].([]any); ok {
			sanitizedList := make([]any, len(list))
			for i, item := range list {
				sanitizedList[i] = sanitizeNode(item)
			}
			out[key] = sanitizedList
		}
	}

	return out
}

// sanitizeObjectOrMap handles "properties" (a map of name -> subschema) and
// "additionalProperties" (either a bool or a subschema) uniformly.
func sanitizeObjectOrMap(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, sub := range t {
			out[k] = sanitizeNode(sub)
		}
		return out
	default:
		return v
	}
}

func coerceDescription(desc any) string {
	switch d := desc.(type) {
	case nil:
		return ""
	case string:
		return d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// NativeToolSchema mirrors the agent package's ToolSchema shape without
// importing it, so mcp stays free of a dependency on internal/agent;
// callers translate between the two at the wiring boundary.
type NativeToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToNative converts an MCP tool definition into the native tool schema
// shape, sanitizing the input schema along the way.
func ToNative(tool *MCPTool) NativeToolSchema {
	return NativeToolSchema{
		Name:        tool.Name,
		Description: tool.Description,
		Parameters:  SanitizeSchema(tool.InputSchema),
	}
}

// FromNative converts a native tool schema back into an MCP tool
// definition, for servers that expose client-provided tools (e.g. sampling
// callbacks describing available local tools).
func FromNative(schema NativeToolSchema) *MCPTool {
	return &MCPTool{
		Name:        schema.Name,
		Description: schema.Description,
		InputSchema: SanitizeSchema(schema.Parameters),
	}
}
