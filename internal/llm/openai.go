package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient implements Client over any chat-completions compatible
// endpoint (OpenAI, DeepSeek, local gateways) via the official SDK.
type OpenAIClient struct {
	model string
	opts  []option.RequestOption
	log   *SessionLog // optional, records every interaction when set
}

// OpenAIConfig holds the transport settings for a backend endpoint.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // empty for the default OpenAI endpoint
}

// NewOpenAIClient validates the config and builds a client.
func NewOpenAIClient(cfg OpenAIConfig, log *SessionLog) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key missing", ErrInvalidCredentials)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("backend model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIClient{model: cfg.Model, opts: opts, log: log}, nil
}

// Generate performs one chat-completion call. Failures come back as the
// package's typed errors so callers can classify without inspecting
// transport details.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	client := openai.NewClient(c.opts...)

	req := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	}
	if params.Temperature > 0 {
		req.Temperature = openai.Float(params.Temperature)
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = openai.Int(int64(params.MaxTokens))
	}
	if params.JSONMode {
		req.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := client.Chat.Completions.New(ctx, req)
	if err != nil {
		err = classify(err)
		c.record(prompt, "", params, err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		err = fmt.Errorf("%w: empty choices", ErrMalformedResponse)
		c.record(prompt, "", params, err)
		return "", err
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.record(prompt, text, params, nil)
	return text, nil
}

func (c *OpenAIClient) record(prompt, response string, params Params, err error) {
	if c.log == nil {
		return
	}
	c.log.Record(Interaction{
		Prompt:   prompt,
		Response: response,
		JSONMode: params.JSONMode,
		Error:    errString(err),
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// classify maps SDK errors onto the package taxonomy.
func classify(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		default:
			return fmt.Errorf("%w: status %d: %v", ErrConnection, apierr.StatusCode, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}
