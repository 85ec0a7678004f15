package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/sagerun/sage/internal/agent"
	"github.com/sagerun/sage/internal/agent/toolconv"
	"github.com/sagerun/sage/pkg/models"
	"google.golang.org/genai"
)

// GoogleConfig configures a GoogleProvider. Only APIKey is required.
type GoogleConfig struct {
	APIKey       string
	DefaultModel string
	MaxRetries   int
}

// GoogleProvider speaks the Gemini API through the genai SDK. Gemini
// streams responses as an iterator rather than an SSE connection, so a
// transport failure surfaces mid-iteration instead of at open time.
type GoogleProvider struct {
	client       *genai.Client
	defaultModel string
}

// NewGoogleProvider builds a provider over the genai SDK.
func NewGoogleProvider(cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("google: API key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}

	return &GoogleProvider{
		client:       client,
		defaultModel: orDefault(cfg.DefaultModel, "gemini-2.0-flash"),
	}, nil
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", ContextSize: 1048576, SupportsVision: true},
		{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro", ContextSize: 2097152, SupportsVision: true},
		{ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash", ContextSize: 1048576, SupportsVision: true},
	}
}

func (p *GoogleProvider) SupportsTools() bool { return true }

// Complete opens a streaming generate-content call and decodes it.
func (p *GoogleProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	model := orDefault(req.Model, p.defaultModel)

	contents, err := geminiContents(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("google: %w", err)
	}

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.MaxTokens > 0 {
		capped := min(req.MaxTokens, math.MaxInt32)
		config.MaxOutputTokens = int32(capped) // #nosec G115 -- bounded above
	}
	if len(req.Tools) > 0 {
		config.Tools = toolconv.ToGeminiTools(req.Tools)
	}

	chunks := make(chan *agent.CompletionChunk)
	go func() {
		defer close(chunks)

		for resp, err := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
			if ctx.Err() != nil {
				chunks <- &agent.CompletionChunk{Error: ctx.Err(), Done: true}
				return
			}
			if err != nil {
				chunks <- &agent.CompletionChunk{Error: Wrap("google", model, err), Done: true}
				return
			}
			for _, candidate := range resp.Candidates {
				if candidate == nil || candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					if part.Text != "" {
						chunks <- &agent.CompletionChunk{Text: part.Text}
					}
					if part.FunctionCall != nil {
						args, jsonErr := json.Marshal(part.FunctionCall.Args)
						if jsonErr != nil {
							args = []byte("{}")
						}
						chunks <- &agent.CompletionChunk{ToolCall: &models.ToolCall{
							ID:    "call-" + uuid.NewString()[:8],
							Name:  part.FunctionCall.Name,
							Input: args,
						}}
					}
				}
			}
		}

		chunks <- &agent.CompletionChunk{Done: true}
	}()

	return chunks, nil
}

// geminiContents converts the conversation to Gemini content turns.
// Assistant turns become the "model" role; tool results ride back as
// function responses on the user side.
func geminiContents(messages []agent.CompletionMessage) ([]*genai.Content, error) {
	toolNames := toolNamesByCallID(messages)

	var out []*genai.Content
	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}

		content := &genai.Content{Role: genai.RoleUser}
		if msg.Role == "assistant" {
			content.Role = genai.RoleModel
		}

		if msg.Content != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
		}
		for _, att := range msg.Attachments {
			if att.Type != "image" {
				continue
			}
			if part := geminiImagePart(att); part != nil {
				content.Parts = append(content.Parts, part)
			}
		}
		for _, call := range msg.ToolCalls {
			var args map[string]any
			if err := json.Unmarshal(call.Input, &args); err != nil {
				args = map[string]any{}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{Name: call.Name, Args: args},
			})
		}
		for _, res := range msg.ToolResults {
			var response map[string]any
			if err := json.Unmarshal([]byte(res.Content), &response); err != nil {
				response = map[string]any{"result": res.Content, "error": res.IsError}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     toolNames[res.ToolCallID],
					Response: response,
				},
			})
		}

		if len(content.Parts) > 0 {
			out = append(out, content)
		}
	}
	return out, nil
}

// toolNamesByCallID indexes assistant tool calls so function responses can
// be stamped with the name Gemini requires (our results carry only the
// call id).
func toolNamesByCallID(messages []agent.CompletionMessage) map[string]string {
	names := make(map[string]string)
	for _, msg := range messages {
		for _, call := range msg.ToolCalls {
			if call.ID != "" {
				names[call.ID] = call.Name
			}
		}
	}
	return names
}

// geminiImagePart inlines a data: URL as a blob and references any other
// URL as file data.
func geminiImagePart(att models.Attachment) *genai.Part {
	if mediaType, payload, ok := splitDataURL(att.URL); ok {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil
		}
		return &genai.Part{InlineData: &genai.Blob{Data: data, MIMEType: mediaType}}
	}
	if att.URL == "" {
		return nil
	}
	mimeType := att.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return &genai.Part{FileData: &genai.FileData{FileURI: att.URL, MIMEType: mimeType}}
}
