// Package llmclient is the single-shot HTTP JSON client shared by Tier C
// extraction and the answer synthesizer. Both callers need exactly one
// non-streaming chat completion per call, so this is a small, purpose-built
// wrapper over the `openai-go/v2` SDK with no tool-calling or streaming
// surface.
package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"

	"docgraph/internal/doerr"
)

// Client issues temperature-0 chat completions against an OpenAI-compatible
// endpoint (the remote LLM server collaborator).
type Client struct {
	sdk     sdk.Client
	model   string
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-call timeout (default 30s, the
// per-window LLM budget).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New constructs a Client against baseURL with apiKey, using httpClient for
// outbound transport (the caller wraps it in otelhttp, see
// internal/observability.NewHTTPClient).
func New(baseURL, apiKey, model string, httpClient *http.Client, opts ...Option) *Client {
	sdkOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(httpClient))
	}
	c := &Client{sdk: sdk.NewClient(sdkOpts...), model: model, timeout: 30 * time.Second}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Request is one chat-completion call.
type Request struct {
	System   string
	User     string
	JSONMode bool   // set true for structured extraction responses
	Stop     []string
}

// Response is a completion result plus coarse usage for cost/latency metrics.
type Response struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Complete issues one greedy (temperature=0) chat completion.
func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msgs := []sdk.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		msgs = append(msgs, sdk.SystemMessage(req.System))
	}
	msgs = append(msgs, sdk.UserMessage(req.User))

	params := sdk.ChatCompletionNewParams{
		Model:       sdk.ChatModel(c.model),
		Messages:    msgs,
		Temperature: param.NewOpt(0.0),
	}
	if len(req.Stop) > 0 {
		params.Stop = sdk.ChatCompletionNewParamsStopUnion{OfStringArray: req.Stop}
	}
	if req.JSONMode {
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &sdk.ResponseFormatJSONObjectParam{},
		}
	}

	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, doerr.New(doerr.ECodeTimeout, err)
		}
		return Response{}, doerr.New(doerr.ECodeInternal, err)
	}
	if len(comp.Choices) == 0 {
		return Response{}, doerr.New(doerr.ECodeLLMFormat, fmt.Errorf("llmclient: empty choices"))
	}
	return Response{
		Content:          comp.Choices[0].Message.Content,
		PromptTokens:     int(comp.Usage.PromptTokens),
		CompletionTokens: int(comp.Usage.CompletionTokens),
	}, nil
}

// Ping verifies the LLM endpoint is reachable, for the health surface
//. The SDK exposes no lightweight reachability
// call, so this issues the cheapest possible completion (a one-token max,
// single-word prompt) rather than guessing at an undocumented endpoint.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout(c.timeout))
	defer cancel()
	_, err := c.sdk.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Model:     sdk.ChatModel(c.model),
		Messages:  []sdk.ChatCompletionMessageParamUnion{sdk.UserMessage("ping")},
		MaxTokens: param.NewOpt(int64(1)),
	})
	return err
}

func pingTimeout(fallback time.Duration) time.Duration {
	if fallback > 0 && fallback < 5*time.Second {
		return fallback
	}
	return 5 * time.Second
}

// DecodeJSON unmarshals resp.Content into v, wrapping any failure as
// E_LLM_FORMAT so the caller's retry/DLQ policy can dispatch on it.
func DecodeJSON(resp Response, v any) error {
	if err := json.Unmarshal([]byte(resp.Content), v); err != nil {
		return doerr.New(doerr.ECodeLLMFormat, err)
	}
	return nil
}
