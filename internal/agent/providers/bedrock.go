package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/sagerun/sage/internal/agent"
	"github.com/sagerun/sage/internal/agent/toolconv"
	"github.com/sagerun/sage/pkg/models"
)

// BedrockConfig configures a BedrockProvider. Credentials default to the
// AWS credential chain; set the explicit fields only to pin a key pair.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
	MaxRetries      int
	RetryDelay      time.Duration
}

// BedrockProvider speaks AWS Bedrock's Converse API, which normalizes the
// hosted model families behind one streaming wire.
type BedrockProvider struct {
	client       *bedrockruntime.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

// NewBedrockProvider builds a provider over the AWS SDK.
func NewBedrockProvider(cfg BedrockConfig) (*BedrockProvider, error) {
	region := orDefault(cfg.Region, "us-east-1")

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: load AWS config: %w", err)
	}

	return &BedrockProvider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: orDefault(cfg.DefaultModel, "anthropic.claude-3-sonnet-20240229-v1:0"),
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

func (p *BedrockProvider) Name() string { return "bedrock" }

func (p *BedrockProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "anthropic.claude-3-opus-20240229-v1:0", Name: "Claude 3 Opus (Bedrock)", ContextSize: 200000, SupportsVision: true},
		{ID: "anthropic.claude-3-sonnet-20240229-v1:0", Name: "Claude 3 Sonnet (Bedrock)", ContextSize: 200000, SupportsVision: true},
		{ID: "anthropic.claude-3-haiku-20240307-v1:0", Name: "Claude 3 Haiku (Bedrock)", ContextSize: 200000, SupportsVision: true},
		{ID: "meta.llama3-70b-instruct-v1:0", Name: "Llama 3 70B (Bedrock)", ContextSize: 8192},
		{ID: "mistral.mixtral-8x7b-instruct-v0:1", Name: "Mixtral 8x7B (Bedrock)", ContextSize: 32768},
	}
}

func (p *BedrockProvider) SupportsTools() bool { return true }

// Complete opens a ConverseStream call and decodes its event stream.
func (p *BedrockProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	model := orDefault(req.Model, p.defaultModel)

	messages, err := converseMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("bedrock: %w", err)
	}

	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}
	if req.MaxTokens > 0 {
		capped := min(req.MaxTokens, math.MaxInt32)
		input.InferenceConfig = &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(capped)), // #nosec G115 -- bounded above
		}
	}
	if len(req.Tools) > 0 {
		input.ToolConfig = toolconv.ToBedrockTools(req.Tools)
	}

	stream, err := openStream(ctx, p.maxRetries, p.retryDelay, func() (*bedrockruntime.ConverseStreamOutput, error) {
		out, err := p.client.ConverseStream(ctx, input)
		if err != nil {
			return nil, p.wrap(err, model)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.decodeStream(ctx, stream, chunks, model)
	return chunks, nil
}

// decodeStream drains the Converse event stream. A tool call spans a
// start event (id + name), tool-use deltas carrying input fragments, and
// a stop event sealing it.
func (p *BedrockProvider) decodeStream(ctx context.Context, stream *bedrockruntime.ConverseStreamOutput, chunks chan<- *agent.CompletionChunk, model string) {
	defer close(chunks)

	events := stream.GetStream()
	defer events.Close()

	var pendingTool *models.ToolCall
	var pendingInput strings.Builder

	for {
		select {
		case <-ctx.Done():
			chunks <- &agent.CompletionChunk{Error: ctx.Err(), Done: true}
			return

		case event, ok := <-events.Events():
			if !ok {
				if err := events.Err(); err != nil {
					chunks <- &agent.CompletionChunk{Error: p.wrap(err, model), Done: true}
				} else {
					chunks <- &agent.CompletionChunk{Done: true}
				}
				return
			}

			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if toolUse, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					pendingTool = &models.ToolCall{
						ID:   aws.ToString(toolUse.Value.ToolUseId),
						Name: aws.ToString(toolUse.Value.Name),
					}
					pendingInput.Reset()
				}

			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := ev.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if delta.Value != "" {
						chunks <- &agent.CompletionChunk{Text: delta.Value}
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if delta.Value.Input != nil {
						pendingInput.WriteString(*delta.Value.Input)
					}
				}

			case *types.ConverseStreamOutputMemberContentBlockStop:
				if pendingTool != nil && pendingTool.ID != "" {
					pendingTool.Input = json.RawMessage(pendingInput.String())
					chunks <- &agent.CompletionChunk{ToolCall: pendingTool}
					pendingTool = nil
				}

			case *types.ConverseStreamOutputMemberMessageStop:
				chunks <- &agent.CompletionChunk{Done: true}
				return
			}
		}
	}
}

// converseMessages lays the conversation out as Converse content blocks.
// System turns ride on the request; tool results fold into user-role
// messages like the native Anthropic wire.
func converseMessages(messages []agent.CompletionMessage) ([]types.Message, error) {
	out := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}

		var content []types.ContentBlock
		if msg.Content != "" {
			content = append(content, &types.ContentBlockMemberText{Value: msg.Content})
		}
		for _, res := range msg.ToolResults {
			status := types.ToolResultStatusSuccess
			if res.IsError {
				status = types.ToolResultStatusError
			}
			content = append(content, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(res.ToolCallID),
					Status:    status,
					Content: []types.ToolResultContentBlock{
						&types.ToolResultContentBlockMemberText{Value: res.Content},
					},
				},
			})
		}
		for _, call := range msg.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal(call.Input, &input); err != nil {
				return nil, fmt.Errorf("tool call %s: invalid input: %w", call.Name, err)
			}
			content = append(content, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(call.ID),
					Name:      aws.String(call.Name),
					Input:     document.NewLazyDocument(input),
				},
			})
		}
		if len(content) == 0 {
			continue
		}

		role := types.ConversationRoleUser
		if msg.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{Role: role, Content: content})
	}
	return out, nil
}

// wrap classifies an AWS SDK error into a ProviderError, preferring the
// smithy error code over message sniffing.
func (p *BedrockProvider) wrap(err error, model string) *ProviderError {
	pe := Wrap("bedrock", model, err)
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		pe.Code = apiErr.ErrorCode()
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			pe.Reason = FailoverRateLimit
		case "ServiceUnavailableException", "InternalServerException", "ModelErrorException":
			pe.Reason = FailoverServerError
		case "ModelTimeoutException":
			pe.Reason = FailoverTimeout
		case "AccessDeniedException", "UnauthorizedException":
			pe.Reason = FailoverAuth
		case "ResourceNotFoundException", "ModelNotReadyException":
			pe.Reason = FailoverModelUnavailable
		case "ValidationException":
			pe.Reason = FailoverInvalidRequest
		}
	}
	return pe
}
