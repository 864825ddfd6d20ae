package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/genai"

	"krusty/internal/chat"
	"krusty/internal/config"
	"krusty/internal/logging"
)

// streamIdleTimeout fails a stream that delivers no data for too long.
const streamIdleTimeout = 30 * time.Second

// GeminiClient implements Client on the Google Gemini API.
type GeminiClient struct {
	client          *genai.Client
	model           string
	temperature     float32
	maxOutputTokens int32
}

// NewGeminiClient creates a Gemini provider client.
func NewGeminiClient(ctx context.Context, cfg *config.Config) (Client, error) {
	if cfg.API.GeminiKey == "" {
		return nil, fmt.Errorf("Gemini API key required: set GEMINI_API_KEY or api.gemini_key")
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  cfg.API.GeminiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:          gc,
		model:           cfg.Model.Name,
		temperature:     cfg.Model.Temperature,
		maxOutputTokens: cfg.Model.MaxOutputTokens,
	}, nil
}

// Model returns the model name.
func (c *GeminiClient) Model() string {
	return c.model
}

// Close releases provider resources. The genai client has no explicit
// close, so this is a no-op.
func (c *GeminiClient) Close() error {
	return nil
}

// thinkingBudget maps an effort level to a token budget.
func thinkingBudget(effort string) int32 {
	switch effort {
	case "low":
		return 1024
	case "medium":
		return 4096
	case "high":
		return 16384
	default:
		return 0
	}
}

// Stream sends the turn history and streams the response.
func (c *GeminiClient) Stream(ctx context.Context, history []*chat.Turn, cfg StreamConfig) (*StreamingResponse, error) {
	contents := convertHistory(history)

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temperature),
		MaxOutputTokens: c.maxOutputTokens,
	}
	if cfg.SystemInstruction != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}
	if budget := thinkingBudget(cfg.Effort); budget > 0 {
		genCfg.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  genai.Ptr(budget),
		}
	}
	if len(cfg.Tools) > 0 {
		genCfg.Tools = []*genai.Tool{{FunctionDeclarations: cfg.Tools}}
	}

	iter := c.client.Models.GenerateContentStream(ctx, c.model, contents, genCfg)

	events := make(chan Event, 16)
	done := make(chan struct{})

	go func() {
		defer close(events)
		defer close(done)

		type iterResult struct {
			resp *genai.GenerateContentResponse
			err  error
		}
		iterCh := make(chan iterResult)

		go func() {
			defer close(iterCh)
			for resp, err := range iter {
				select {
				case iterCh <- iterResult{resp, err}:
				case <-ctx.Done():
					return
				}
			}
		}()

		idle := time.NewTimer(streamIdleTimeout)
		defer idle.Stop()

		callIndex := 0
		for {
			select {
			case <-ctx.Done():
				emit(ctx, events, Event{Kind: EventError, Err: ctx.Err()})
				return

			case <-idle.C:
				logging.Warn("stream idle timeout exceeded", "timeout", streamIdleTimeout)
				emit(ctx, events, Event{
					Kind: EventError,
					Err:  fmt.Errorf("stream idle timeout: no data received for %v", streamIdleTimeout),
				})
				return

			case result, ok := <-iterCh:
				if !ok {
					emit(ctx, events, Event{Kind: EventStop, StopReason: "end_of_stream"})
					return
				}
				if result.err != nil {
					emit(ctx, events, Event{Kind: EventError, Err: result.err})
					return
				}

				if !idle.Stop() {
					select {
					case <-idle.C:
					default:
					}
				}
				idle.Reset(streamIdleTimeout)

				stopped := c.emitResponse(ctx, events, result.resp, &callIndex)
				if stopped {
					return
				}
			}
		}
	}()

	return &StreamingResponse{Events: events, Done: done}, nil
}

// emitResponse converts one streamed response chunk into events. Returns
// true once a Stop event has been emitted.
func (c *GeminiClient) emitResponse(ctx context.Context, events chan<- Event, resp *genai.GenerateContentResponse, callIndex *int) bool {
	if len(resp.Candidates) == 0 {
		return false
	}
	candidate := resp.Candidates[0]

	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Thought {
				emit(ctx, events, Event{Kind: EventThinkingDelta, Text: part.Text})
				continue
			}
			if part.Text != "" {
				emit(ctx, events, Event{Kind: EventTextDelta, Text: part.Text})
			}
			if part.FunctionCall != nil {
				argsJSON, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					argsJSON = []byte("{}")
				}
				id := part.FunctionCall.ID
				if id == "" {
					id = fmt.Sprintf("call_%d", *callIndex)
				}
				emit(ctx, events, Event{
					Kind: EventToolCallDelta,
					Call: ToolCallDelta{
						Index:    *callIndex,
						ID:       id,
						Name:     part.FunctionCall.Name,
						ArgsJSON: string(argsJSON),
					},
				})
				*callIndex++
			}
		}
	}

	if candidate.FinishReason != "" {
		emit(ctx, events, Event{Kind: EventStop, StopReason: string(candidate.FinishReason)})
		return true
	}
	return false
}

// emit sends an event unless the context is cancelled.
func emit(ctx context.Context, events chan<- Event, ev Event) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

// Summarize performs one non-tool completion over the given prompt.
func (c *GeminiClient) Summarize(ctx context.Context, prompt string) (string, error) {
	seed := []*chat.Turn{chat.UserTurn(1, prompt)}
	sr, err := c.Stream(ctx, seed, StreamConfig{})
	if err != nil {
		return "", err
	}
	return CollectText(ctx, sr)
}

// convertHistory maps turn history onto genai contents. Thinking blocks
// are not replayed; tool results become function responses.
func convertHistory(history []*chat.Turn) []*genai.Content {
	names := callNames(history)
	contents := make([]*genai.Content, 0, len(history))

	for _, turn := range history {
		switch turn.Role {
		case chat.RoleUser:
			if text := turn.Text(); text != "" {
				contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
			}

		case chat.RoleAssistant:
			var parts []*genai.Part
			for i := range turn.Blocks {
				block := &turn.Blocks[i]
				switch block.Kind {
				case chat.BlockText:
					if block.Text != "" {
						parts = append(parts, genai.NewPartFromText(block.Text))
					}
				case chat.BlockToolCall:
					if block.ToolCall == nil {
						continue
					}
					parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
						ID:   block.ToolCall.ID,
						Name: block.ToolCall.Name,
						Args: block.ToolCall.Args,
					}})
				}
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
			}

		case chat.RoleTool:
			var parts []*genai.Part
			for _, result := range turn.Results() {
				part := genai.NewPartFromFunctionResponse(names[result.CallID], resultPayload(result))
				part.FunctionResponse.ID = result.CallID
				parts = append(parts, part)
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})
			}
		}
	}
	return contents
}
