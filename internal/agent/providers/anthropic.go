package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/sagerun/sage/internal/agent"
	"github.com/sagerun/sage/internal/agent/toolconv"
	"github.com/sagerun/sage/pkg/models"
)

// AnthropicConfig configures an AnthropicProvider. Only APIKey is required.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
}

// AnthropicProvider speaks Anthropic's native messages API with SSE
// streaming. Safe for concurrent use; every Complete call runs its own
// stream.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

// NewAnthropicProvider builds a provider over the official SDK.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: orDefault(cfg.DefaultModel, "claude-sonnet-4-20250514"),
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-3-haiku-20240307", Name: "Claude 3 Haiku", ContextSize: 200000, SupportsVision: true},
	}
}

func (p *AnthropicProvider) SupportsTools() bool { return true }

// Complete opens a streaming request and feeds decoded chunks to the
// returned channel. The channel closes after a Done or Error chunk.
func (p *AnthropicProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	model := orDefault(req.Model, p.defaultModel)
	params, err := p.buildParams(req, model)
	if err != nil {
		return nil, err
	}

	chunks := make(chan *agent.CompletionChunk)
	go func() {
		defer close(chunks)

		stream, err := openStream(ctx, p.maxRetries, p.retryDelay, func() (*ssestream.Stream[anthropic.MessageStreamEventUnion], error) {
			s := p.client.Messages.NewStreaming(ctx, params)
			if err := s.Err(); err != nil {
				return nil, Wrap("anthropic", model, err)
			}
			return s, nil
		})
		if err != nil {
			chunks <- &agent.CompletionChunk{Error: Wrap("anthropic", model, err)}
			return
		}
		p.decodeStream(stream, chunks, model)
	}()

	return chunks, nil
}

func (p *AnthropicProvider) buildParams(req *agent.CompletionRequest, model string) (anthropic.MessageNewParams, error) {
	messages, err := anthropicMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(tokensOrDefault(req.MaxTokens)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := toolconv.ToAnthropicTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: %w", err)
		}
		params.Tools = tools
	}
	if req.EnableThinking {
		budget := int64(req.ThinkingBudgetTokens)
		if budget < 1024 {
			budget = 10000
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}
	return params, nil
}

// decodeStream translates the SSE event sequence into CompletionChunks.
// Tool calls arrive as a start block carrying id+name, then partial-JSON
// deltas, then a stop block that seals the accumulated input.
func (p *AnthropicProvider) decodeStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- *agent.CompletionChunk, model string) {
	var (
		pendingTool  *models.ToolCall
		pendingInput strings.Builder
		inThinking   bool
		inputTokens  int
		outputTokens int
	)

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			if start.Message.Usage.InputTokens > 0 {
				inputTokens = int(start.Message.Usage.InputTokens)
			}

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			switch block.Type {
			case "thinking":
				inThinking = true
				chunks <- &agent.CompletionChunk{ThinkingStart: true}
			case "tool_use":
				use := block.AsToolUse()
				pendingTool = &models.ToolCall{ID: use.ID, Name: use.Name}
				pendingInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					chunks <- &agent.CompletionChunk{Text: delta.Text}
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					chunks <- &agent.CompletionChunk{Thinking: delta.Thinking}
				}
			case "input_json_delta":
				pendingInput.WriteString(delta.PartialJSON)
			}

		case "content_block_stop":
			switch {
			case inThinking:
				inThinking = false
				chunks <- &agent.CompletionChunk{ThinkingEnd: true}
			case pendingTool != nil:
				pendingTool.Input = json.RawMessage(pendingInput.String())
				chunks <- &agent.CompletionChunk{ToolCall: pendingTool}
				pendingTool = nil
			}

		case "message_delta":
			delta := event.AsMessageDelta()
			if delta.Usage.OutputTokens > 0 {
				outputTokens = int(delta.Usage.OutputTokens)
			}

		case "message_stop":
			chunks <- &agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
			return

		case "error":
			chunks <- &agent.CompletionChunk{Error: Wrap("anthropic", model, errors.New("stream error"))}
			return
		}
	}

	if err := stream.Err(); err != nil {
		chunks <- &agent.CompletionChunk{Error: Wrap("anthropic", model, err)}
	}
}

// anthropicMessages flattens the provider-agnostic conversation into
// Anthropic content blocks. System turns are omitted (the system prompt
// rides on the request), and tool-role turns fold into user messages.
func anthropicMessages(messages []agent.CompletionMessage) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, att := range msg.Attachments {
			if block := anthropicImageBlock(att); block != nil {
				content = append(content, anthropic.ContentBlockParamUnion{OfImage: block})
			}
		}
		for _, res := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(res.ToolCallID, res.Content, res.IsError))
		}
		for _, call := range msg.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal(call.Input, &input); err != nil {
				return nil, fmt.Errorf("tool call %s: invalid input: %w", call.Name, err)
			}
			content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
		}

		if msg.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(content...))
		} else {
			out = append(out, anthropic.NewUserMessage(content...))
		}
	}
	return out, nil
}

// anthropicImageBlock converts an image attachment to a block param,
// base64 for data: URLs and by reference otherwise. Non-image attachments
// return nil.
func anthropicImageBlock(att models.Attachment) *anthropic.ImageBlockParam {
	if att.Type != "image" && !strings.HasPrefix(att.MimeType, "image/") {
		return nil
	}
	if mediaType, data, ok := splitDataURL(att.URL); ok {
		mt, ok := anthropicMediaType(mediaType)
		if !ok {
			return nil
		}
		return &anthropic.ImageBlockParam{
			Source: anthropic.ImageBlockParamSourceUnion{
				OfBase64: &anthropic.Base64ImageSourceParam{Data: data, MediaType: mt},
			},
		}
	}
	if att.URL != "" {
		return &anthropic.ImageBlockParam{
			Source: anthropic.ImageBlockParamSourceUnion{
				OfURL: &anthropic.URLImageSourceParam{URL: att.URL},
			},
		}
	}
	return nil
}

func anthropicMediaType(mediaType string) (anthropic.Base64ImageSourceMediaType, bool) {
	switch strings.ToLower(mediaType) {
	case "image/jpeg", "image/jpg":
		return anthropic.Base64ImageSourceMediaTypeImageJPEG, true
	case "image/png":
		return anthropic.Base64ImageSourceMediaTypeImagePNG, true
	case "image/gif":
		return anthropic.Base64ImageSourceMediaTypeImageGIF, true
	case "image/webp":
		return anthropic.Base64ImageSourceMediaTypeImageWebP, true
	default:
		return "", false
	}
}

// splitDataURL pulls the media type and payload out of a base64 data: URL.
func splitDataURL(raw string) (mediaType, data string, ok bool) {
	if !strings.HasPrefix(raw, "data:") {
		return "", "", false
	}
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	meta := strings.TrimPrefix(parts[0], "data:")
	if !strings.HasSuffix(meta, ";base64") {
		return "", "", false
	}
	mediaType = strings.TrimSuffix(meta, ";base64")
	if mediaType == "" {
		return "", "", false
	}
	return mediaType, parts[1], true
}
