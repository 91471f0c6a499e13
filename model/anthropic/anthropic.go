// Package anthropic provides a model.Provider backed by the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/hupe1980/teamwork/core"
	"github.com/hupe1980/teamwork/model"
)

// Options configures the Anthropic provider (temperature, model id,
// max tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Provider wraps the Anthropic Messages API behind model.Provider.
type Provider struct {
	client *anthropic.Client
	opts   Options
}

// NewProvider creates a provider using the official client.
func NewProvider(optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Provider{client: &client, opts: opts}
}

// NewProviderFromClient creates a provider from an existing client.
func NewProviderFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Completions implements model.Provider.
func (p *Provider) Completions(ctx context.Context, req model.Request) (*model.Response, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	msg := core.Message{Role: core.RoleAssistant}
	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			tu := block.AsToolUse()
			msg.ToolCalls = append(msg.ToolCalls, core.ToolCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: tu.Input,
			})
		}
	}
	msg.Content = text.String()

	finishReason := "stop"
	if resp.StopReason != "" {
		finishReason = string(resp.StopReason)
	}

	in, out := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)

	return &model.Response{
		ID:           resp.ID,
		Message:      msg,
		FinishReason: finishReason,
		Usage:        &model.TokenUsage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
	}, nil
}

func (p *Provider) buildParams(req model.Request) (anthropic.MessageNewParams, error) {
	messages, err := buildMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	temperature := p.opts.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	params := anthropic.MessageNewParams{
		Model:       p.opts.Model,
		Messages:    messages,
		MaxTokens:   p.opts.MaxTokens,
		Temperature: anthropic.Float(temperature),
	}

	system, err := systemBlocks(req)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	if len(system) > 0 {
		params.System = system
	}

	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	return params, nil
}

// systemBlocks collects system messages. The Messages API has no native
// json_schema response format, so a requested schema becomes an instruction.
func systemBlocks(req model.Request) ([]anthropic.TextBlockParam, error) {
	var blocks []anthropic.TextBlockParam
	for _, m := range req.Messages {
		if m.Role == core.RoleSystem && m.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: m.Content})
		}
	}
	if rf := req.ResponseFormat; rf != nil {
		schema, err := json.Marshal(rf.Schema)
		if err != nil {
			return nil, fmt.Errorf("anthropic: encode response schema %s: %w", rf.Name, err)
		}
		blocks = append(blocks, anthropic.TextBlockParam{Text: fmt.Sprintf(
			"Unless you call a tool, respond only with a JSON object (no prose, no code fences) named %q matching this JSON schema:\n%s",
			rf.Name, schema,
		)})
	}
	return blocks, nil
}

// buildMessages converts messages into Anthropic turns. Consecutive tool
// results are grouped into one user turn as tool_result blocks.
func buildMessages(msgs []core.Message) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	var results []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(results) > 0 {
			out = append(out, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, m := range msgs {
		switch m.Role {
		case core.RoleSystem:
			continue
		case core.RoleTool:
			results = append(results, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
			continue
		}
		flush()

		switch m.Role {
		case core.RoleUser:
			blocks := userBlocks(m)
			if len(blocks) > 0 {
				out = append(out, anthropic.NewUserMessage(blocks...))
			}
		case core.RoleAssistant:
			blocks, err := assistantBlocks(m)
			if err != nil {
				return nil, err
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			return nil, fmt.Errorf("anthropic: unsupported role %q", m.Role)
		}
	}
	flush()

	return out, nil
}

func userBlocks(m core.Message) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	if m.Content != "" {
		blocks = append(blocks, anthropic.NewTextBlock(m.Content))
	}
	for _, p := range m.Parts {
		switch v := p.(type) {
		case core.TextPart:
			if v.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(v.Text))
			}
		case core.ImagePart:
			blocks = append(blocks, imageBlock(v.URL))
		}
	}
	return blocks
}

// imageBlock accepts data URLs (data:image/png;base64,...) and remote URLs.
func imageBlock(url string) anthropic.ContentBlockParamUnion {
	if rest, ok := strings.CutPrefix(url, "data:"); ok {
		if meta, data, ok := strings.Cut(rest, ","); ok {
			mediaType := strings.TrimSuffix(meta, ";base64")
			return anthropic.NewImageBlockBase64(mediaType, data)
		}
	}
	return anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: url})
}

func assistantBlocks(m core.Message) ([]anthropic.ContentBlockParamUnion, error) {
	var blocks []anthropic.ContentBlockParamUnion
	if m.Content != "" {
		blocks = append(blocks, anthropic.NewTextBlock(m.Content))
	}
	for _, tc := range m.ToolCalls {
		var input any = map[string]any{}
		if len(tc.Arguments) > 0 {
			if err := json.Unmarshal(tc.Arguments, &input); err != nil {
				return nil, fmt.Errorf("anthropic: decode arguments of %s: %w", tc.Name, err)
			}
		}
		blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
	}
	return blocks, nil
}

// buildTools converts tool definitions to the Anthropic tool format.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))

	for i, t := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if t.Parameters != nil {
			if properties, ok := t.Parameters["properties"]; ok {
				inputSchema.Properties = properties
			}
			switch req := t.Parameters["required"].(type) {
			case []string:
				inputSchema.Required = req
			case []any:
				for _, r := range req {
					if s, ok := r.(string); ok {
						inputSchema.Required = append(inputSchema.Required, s)
					}
				}
			}
		}

		out[i] = anthropic.ToolUnionParamOfTool(inputSchema, t.Name)
		if out[i].OfTool != nil && t.Description != "" {
			out[i].OfTool.Description = anthropic.String(t.Description)
		}
	}

	return out
}

// Info returns metadata describing this provider.
func (p *Provider) Info() model.Info {
	return model.Info{
		Name:          string(p.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
