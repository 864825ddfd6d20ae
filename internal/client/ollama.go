package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"google.golang.org/genai"

	"krusty/internal/chat"
	"krusty/internal/config"
	"krusty/internal/logging"
)

// OllamaClient implements Client against a local or remote Ollama server.
type OllamaClient struct {
	client          *api.Client
	model           string
	temperature     float32
	maxOutputTokens int32
}

// NewOllamaClient creates an Ollama provider client.
func NewOllamaClient(cfg *config.Config) (Client, error) {
	baseURL := cfg.API.OllamaBaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama base URL: %w", err)
	}
	if parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			logging.Warn("Ollama connection uses unencrypted HTTP to remote host", "host", host)
		}
	}

	httpClient := &http.Client{Timeout: 120 * time.Second}

	return &OllamaClient{
		client:          api.NewClient(parsed, httpClient),
		model:           cfg.Model.Name,
		temperature:     cfg.Model.Temperature,
		maxOutputTokens: cfg.Model.MaxOutputTokens,
	}, nil
}

// Model returns the model name.
func (c *OllamaClient) Model() string {
	return c.model
}

// Close releases provider resources.
func (c *OllamaClient) Close() error {
	return nil
}

// Stream sends the turn history and streams the response. Ollama has no
// thinking channel, so cfg.Effort is ignored.
func (c *OllamaClient) Stream(ctx context.Context, history []*chat.Turn, cfg StreamConfig) (*StreamingResponse, error) {
	messages := convertMessages(history, cfg.SystemInstruction)

	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   ptr(true),
		Options: map[string]interface{}{
			"num_predict": c.maxOutputTokens,
		},
	}
	if c.temperature > 0 {
		req.Options["temperature"] = c.temperature
	}
	if len(cfg.Tools) > 0 {
		req.Tools = convertDeclarations(cfg.Tools)
	}

	events := make(chan Event, 16)
	done := make(chan struct{})

	go func() {
		defer close(events)
		defer close(done)

		callIndex := 0
		err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			if resp.Message.Content != "" {
				emit(ctx, events, Event{Kind: EventTextDelta, Text: resp.Message.Content})
			}
			for _, tc := range resp.Message.ToolCalls {
				argsJSON, merr := json.Marshal(tc.Function.Arguments.ToMap())
				if merr != nil {
					argsJSON = []byte("{}")
				}
				id := tc.ID
				if id == "" {
					id = fmt.Sprintf("call_%d", callIndex)
				}
				emit(ctx, events, Event{
					Kind: EventToolCallDelta,
					Call: ToolCallDelta{
						Index:    callIndex,
						ID:       id,
						Name:     tc.Function.Name,
						ArgsJSON: string(argsJSON),
					},
				})
				callIndex++
			}
			if resp.Done {
				emit(ctx, events, Event{Kind: EventStop, StopReason: resp.DoneReason})
			}
			return nil
		})
		if err != nil {
			emit(ctx, events, Event{Kind: EventError, Err: wrapOllamaError(err)})
		}
	}()

	return &StreamingResponse{Events: events, Done: done}, nil
}

// Summarize performs one non-tool completion over the given prompt.
func (c *OllamaClient) Summarize(ctx context.Context, prompt string) (string, error) {
	seed := []*chat.Turn{chat.UserTurn(1, prompt)}
	sr, err := c.Stream(ctx, seed, StreamConfig{})
	if err != nil {
		return "", err
	}
	return CollectText(ctx, sr)
}

// wrapOllamaError makes connection failures actionable.
func wrapOllamaError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "connection refused") {
		return fmt.Errorf("cannot reach Ollama server (is it running?): %w", err)
	}
	return err
}

// convertMessages maps turn history onto Ollama chat messages.
func convertMessages(history []*chat.Turn, systemInstruction string) []api.Message {
	names := callNames(history)
	messages := make([]api.Message, 0, len(history)+1)

	if systemInstruction != "" {
		messages = append(messages, api.Message{Role: "system", Content: systemInstruction})
	}

	for _, turn := range history {
		switch turn.Role {
		case chat.RoleUser:
			if text := turn.Text(); text != "" {
				messages = append(messages, api.Message{Role: "user", Content: text})
			}

		case chat.RoleAssistant:
			msg := api.Message{Role: "assistant", Content: turn.Text()}
			for _, call := range turn.ToolCalls() {
				args := api.NewToolCallFunctionArguments()
				for k, v := range call.Args {
					args.Set(k, v)
				}
				msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
					ID: call.ID,
					Function: api.ToolCallFunction{
						Name:      call.Name,
						Arguments: args,
					},
				})
			}
			if msg.Content != "" || len(msg.ToolCalls) > 0 {
				messages = append(messages, msg)
			}

		case chat.RoleTool:
			for _, result := range turn.Results() {
				content := result.Content
				if content == "" && result.Error != "" {
					content = "Error: " + result.Error
				}
				if content == "" {
					content = "Operation completed"
				}
				messages = append(messages, api.Message{
					Role:       "tool",
					Content:    content,
					ToolName:   names[result.CallID],
					ToolCallID: result.CallID,
				})
			}
		}
	}
	return messages
}

// convertDeclarations maps function declarations onto Ollama tool schemas.
func convertDeclarations(decls []*genai.FunctionDeclaration) []api.Tool {
	tools := make([]api.Tool, 0, len(decls))

	for _, decl := range decls {
		params := api.ToolFunctionParameters{
			Type:       "object",
			Properties: api.NewToolPropertiesMap(),
		}
		if decl.Parameters != nil {
			if len(decl.Parameters.Required) > 0 {
				params.Required = decl.Parameters.Required
			}
			for name, schema := range decl.Parameters.Properties {
				prop := api.ToolProperty{Description: schema.Description}
				if schema.Type != "" {
					prop.Type = api.PropertyType{strings.ToLower(string(schema.Type))}
				}
				if len(schema.Enum) > 0 {
					enumVals := make([]any, len(schema.Enum))
					for i, v := range schema.Enum {
						enumVals[i] = v
					}
					prop.Enum = enumVals
				}
				params.Properties.Set(name, prop)
			}
		}

		tools = append(tools, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        decl.Name,
				Description: decl.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}

func ptr[T any](v T) *T {
	return &v
}
