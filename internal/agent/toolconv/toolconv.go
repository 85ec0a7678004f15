// Package toolconv translates agent.Tool schemas into each provider
// wire's tool-declaration shape. The OpenAI and Bedrock converters give a
// tool whose schema fails to parse an empty object schema and the Gemini
// converter skips it, instead of sinking the whole request; the Anthropic
// converter returns an error for it.
package toolconv

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/sagerun/sage/internal/agent"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// emptyObjectSchema stands in for an unparseable tool schema.
func emptyObjectSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

// schemaMap decodes a tool's schema, falling back to an empty object.
func schemaMap(tool agent.Tool) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(tool.Schema(), &m); err != nil {
		return emptyObjectSchema()
	}
	return m
}

// ToAnthropicTools converts tools to Anthropic tool-union params.
// Anthropic's SDK validates the schema shape, so a bad schema errors here
// rather than being silently emptied.
func ToAnthropicTools(tools []agent.Tool) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		param, err := ToAnthropicTool(tool)
		if err != nil {
			return nil, err
		}
		out = append(out, param)
	}
	return out, nil
}

// ToAnthropicTool converts one tool.
func ToAnthropicTool(tool agent.Tool) (anthropic.ToolUnionParam, error) {
	var schema anthropic.ToolInputSchemaParam
	if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
		return anthropic.ToolUnionParam{}, fmt.Errorf("invalid tool schema for %s: %w", tool.Name(), err)
	}
	param := anthropic.ToolUnionParamOfTool(schema, tool.Name())
	if param.OfTool == nil {
		return anthropic.ToolUnionParam{}, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name())
	}
	param.OfTool.Description = anthropic.String(tool.Description())
	return param, nil
}

// ToOpenAITools converts tools to the OpenAI function-tool shape.
func ToOpenAITools(tools []agent.Tool) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  schemaMap(tool),
			},
		}
	}
	return out
}

// ToBedrockTools converts tools to a Converse tool configuration.
func ToBedrockTools(tools []agent.Tool) *types.ToolConfiguration {
	specs := make([]types.Tool, len(tools))
	for i, tool := range tools {
		var schema any
		if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
			schema = emptyObjectSchema()
		}
		specs[i] = &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(tool.Name()),
				Description: aws.String(tool.Description()),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		}
	}
	return &types.ToolConfiguration{Tools: specs}
}

// ToGeminiTools converts tools to one Gemini Tool carrying every function
// declaration. Tools with unparseable schemas are skipped - Gemini rejects
// empty parameter objects.
func ToGeminiTools(tools []agent.Tool) []*genai.Tool {
	var declarations []*genai.FunctionDeclaration
	for _, tool := range tools {
		var m map[string]any
		if err := json.Unmarshal(tool.Schema(), &m); err != nil {
			continue
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  ToGeminiSchema(m),
		})
	}
	if len(declarations) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// ToGeminiSchema recursively converts a JSON-Schema map into Gemini's
// typed Schema.
func ToGeminiSchema(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	schema := &genai.Schema{}

	if t, ok := m["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := m["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := m["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if required, ok := m["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if props, ok := m["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = ToGeminiSchema(propMap)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		schema.Items = ToGeminiSchema(items)
	}
	return schema
}
