package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sagerun/sage/internal/agent"
	"github.com/sagerun/sage/internal/agent/toolconv"
	"github.com/sagerun/sage/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

// CompatConfig configures an OpenAICompatProvider. Name selects a preset
// (base URL, key requirement, model catalog) for the known OpenAI-wire
// services; explicit fields override the preset.
type CompatConfig struct {
	Name         string
	APIKey       string
	BaseURL      string
	DefaultModel string
	// Azure switches the client to Azure OpenAI authentication; BaseURL
	// then carries the resource endpoint and APIVersion the API version.
	Azure      bool
	APIVersion string
	MaxRetries int
	RetryDelay time.Duration
}

// compatPreset carries what differs between the OpenAI-wire services.
type compatPreset struct {
	baseURL      string
	keyless      bool
	defaultModel string
	catalog      []agent.Model
}

var compatPresets = map[string]compatPreset{
	"openai": {
		defaultModel: "gpt-4o",
		catalog: []agent.Model{
			{ID: "gpt-4o", Name: "GPT-4o", ContextSize: 128000, SupportsVision: true},
			{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextSize: 128000, SupportsVision: true},
			{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", ContextSize: 16385},
		},
	},
	"azure": {
		defaultModel: "gpt-4o",
	},
	"openrouter": {
		baseURL:      "https://openrouter.ai/api/v1",
		defaultModel: "anthropic/claude-3.5-sonnet",
	},
	"venice": {
		baseURL:      "https://api.venice.ai/api/v1",
		defaultModel: "llama-3.3-70b",
	},
	"ollama": {
		// Ollama serves the OpenAI chat wire under /v1.
		baseURL:      "http://localhost:11434/v1",
		keyless:      true,
		defaultModel: "llama3.2",
	},
	"copilot": {
		baseURL:      "http://localhost:3000/v1",
		keyless:      true,
		defaultModel: "gpt-4o",
		catalog: []agent.Model{
			{ID: "gpt-4o", Name: "GPT-4o (Copilot)", ContextSize: 128000, SupportsVision: true},
			{ID: "claude-sonnet-4.5", Name: "Claude Sonnet 4.5 (Copilot)", ContextSize: 128000, SupportsVision: true},
			{ID: "claude-opus-4.5", Name: "Claude Opus 4.5 (Copilot)", ContextSize: 128000, SupportsVision: true},
		},
	},
}

// OpenAICompatProvider is one adapter for every backend speaking the
// OpenAI chat-completions wire: OpenAI itself, Azure OpenAI deployments,
// OpenRouter, Venice, Ollama's /v1 endpoint, and local Copilot proxies.
type OpenAICompatProvider struct {
	client       *openai.Client
	name         string
	defaultModel string
	catalog      []agent.Model
	maxRetries   int
	retryDelay   time.Duration
}

// NewOpenAICompat builds a provider for cfg.Name's preset.
func NewOpenAICompat(cfg CompatConfig) (*OpenAICompatProvider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	if name == "" {
		return nil, errors.New("compat: provider name is required")
	}
	preset := compatPresets[name]

	if cfg.APIKey == "" && !preset.keyless && !cfg.Azure {
		return nil, fmt.Errorf("%s: API key is required", name)
	}

	var clientCfg openai.ClientConfig
	if cfg.Azure {
		if cfg.BaseURL == "" {
			return nil, errors.New("azure: endpoint is required")
		}
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if url := orDefault(strings.TrimRight(cfg.BaseURL, "/"), preset.baseURL); url != "" {
			clientCfg.BaseURL = url
		}
	}

	return &OpenAICompatProvider{
		client:       openai.NewClientWithConfig(clientCfg),
		name:         name,
		defaultModel: orDefault(cfg.DefaultModel, preset.defaultModel),
		catalog:      preset.catalog,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

func (p *OpenAICompatProvider) Name() string { return p.name }

func (p *OpenAICompatProvider) Models() []agent.Model {
	if len(p.catalog) > 0 {
		return p.catalog
	}
	if p.defaultModel != "" {
		return []agent.Model{{ID: p.defaultModel, Name: p.defaultModel}}
	}
	return nil
}

func (p *OpenAICompatProvider) SupportsTools() bool { return true }

// Complete opens a streaming chat completion and decodes it.
func (p *OpenAICompatProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	model := orDefault(req.Model, p.defaultModel)

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: compatMessages(req),
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}
	if req.TopP > 0 {
		chatReq.TopP = float32(req.TopP)
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = toolconv.ToOpenAITools(req.Tools)
	}

	stream, err := openStream(ctx, p.maxRetries, p.retryDelay, func() (*openai.ChatCompletionStream, error) {
		s, err := p.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			return nil, Wrap(p.name, model, err)
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.decodeStream(ctx, stream, chunks, model)
	return chunks, nil
}

// decodeStream drains the SSE stream, reassembling tool calls whose
// arguments arrive as indexed fragments.
func (p *OpenAICompatProvider) decodeStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *agent.CompletionChunk, model string) {
	defer close(chunks)
	defer stream.Close()

	partial := map[int]*models.ToolCall{}
	partialArgs := map[int]*strings.Builder{}

	flush := func() {
		for i, call := range partial {
			if call.ID == "" || call.Name == "" {
				continue
			}
			call.Input = json.RawMessage(partialArgs[i].String())
			chunks <- &agent.CompletionChunk{ToolCall: call}
		}
		partial = map[int]*models.ToolCall{}
		partialArgs = map[int]*strings.Builder{}
	}

	for {
		if ctx.Err() != nil {
			chunks <- &agent.CompletionChunk{Error: ctx.Err(), Done: true}
			return
		}

		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			flush()
			chunks <- &agent.CompletionChunk{Done: true}
			return
		}
		if err != nil {
			chunks <- &agent.CompletionChunk{Error: Wrap(p.name, model, err), Done: true}
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}

		choice := resp.Choices[0]
		if choice.Delta.Content != "" {
			chunks <- &agent.CompletionChunk{Text: choice.Delta.Content}
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			if partial[idx] == nil {
				partial[idx] = &models.ToolCall{}
				partialArgs[idx] = &strings.Builder{}
			}
			if tc.ID != "" {
				partial[idx].ID = tc.ID
			}
			if tc.Function.Name != "" {
				partial[idx].Name = tc.Function.Name
			}
			partialArgs[idx].WriteString(tc.Function.Arguments)
		}
		if choice.FinishReason == openai.FinishReasonToolCalls {
			flush()
		}
	}
}

// compatMessages lays the conversation out on the chat wire: one system
// message up front, one message per tool result, vision content as
// multi-part messages.
func compatMessages(req *agent.CompletionRequest) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case "tool":
			for _, res := range msg.ToolResults {
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    res.Content,
					ToolCallID: res.ToolCallID,
				})
			}

		case "assistant":
			m := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content}
			for _, call := range msg.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: string(call.Input),
					},
				})
			}
			out = append(out, m)

		default:
			m := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content}
			if parts := compatImageParts(msg); parts != nil {
				m.Content = ""
				m.MultiContent = parts
			}
			out = append(out, m)
		}
	}
	return out
}

// compatImageParts builds the multi-part layout a vision message needs, or
// nil when the message carries no image attachments.
func compatImageParts(msg agent.CompletionMessage) []openai.ChatMessagePart {
	hasImage := false
	for _, att := range msg.Attachments {
		if att.Type == "image" {
			hasImage = true
			break
		}
	}
	if !hasImage {
		return nil
	}

	var parts []openai.ChatMessagePart
	if msg.Content != "" {
		parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: msg.Content})
	}
	for _, att := range msg.Attachments {
		if att.Type != "image" {
			continue
		}
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: att.URL, Detail: openai.ImageURLDetailAuto},
		})
	}
	return parts
}
