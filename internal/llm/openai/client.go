package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"docquality-backend/internal/llm"
)

// Client implements llm.Client and llm.Embedder using the OpenAI API.
type Client struct {
	api            *openai.Client
	model          string
	embeddingModel string
}

// NewClient constructs a new OpenAI client.
func NewClient(apiKey, model, embeddingModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for OpenAI")
	}
	if strings.TrimSpace(embeddingModel) == "" {
		embeddingModel = string(openai.SmallEmbedding3)
	}
	return &Client{
		api:            openai.NewClient(apiKey),
		model:          model,
		embeddingModel: embeddingModel,
	}, nil
}

// AnalyzeDocument runs the analysis prompt and returns the raw JSON payload.
func (c *Client) AnalyzeDocument(ctx context.Context, input llm.AnalyzeInput) (json.RawMessage, error) {
	if rawFix, ok := llm.FixJSONFromContext(ctx); ok {
		return c.complete(ctx, input.Model, llm.BuildFixJSONPrompt(rawFix))
	}

	messages := llm.BuildAnalysisPrompt(input.FileName, input.Content, input.Dimensions)
	raw, err := c.complete(ctx, input.Model, messages)
	if err != nil {
		return nil, err
	}
	if json.Valid(raw) {
		return raw, nil
	}

	// One in-band repair attempt before giving up, same shape as the analysis call.
	raw, err = c.complete(ctx, input.Model, llm.BuildFixJSONPrompt(string(raw)))
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("invalid JSON from OpenAI")
	}
	return raw, nil
}

// Embed returns the embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          openai.EmbeddingModel(c.embeddingModel),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		return nil, classifyAPIError("embeddings", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	vec := make([]float64, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float64(v)
	}
	return vec, nil
}

// ListModels returns chat-capable models available at the provider.
func (c *Client) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	resp, err := c.api.ListModels(ctx)
	if err != nil {
		return nil, classifyAPIError("list models", err)
	}
	out := make([]llm.ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		if !strings.HasPrefix(m.ID, "gpt-") && !strings.HasPrefix(m.ID, "o") {
			continue
		}
		out = append(out, llm.ModelInfo{ID: m.ID, Provider: m.OwnedBy})
	}
	return out, nil
}

func (c *Client) complete(ctx context.Context, model string, messages []llm.Message) (json.RawMessage, error) {
	if strings.TrimSpace(model) == "" {
		model = c.model
	}

	reqMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		reqMessages = append(reqMessages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    reqMessages,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, classifyAPIError("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai response missing choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, fmt.Errorf("openai response empty content")
	}
	logUsage(model, resp.Usage)
	return json.RawMessage(content), nil
}

func classifyAPIError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("openai %s: %s: %w", op, apiErr.Message, llm.ErrThrottled)
		}
		return fmt.Errorf("openai %s: status %d: %s", op, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("openai %s: %w", op, llm.ErrThrottled)
		}
		return fmt.Errorf("openai %s: status %d: %w", op, reqErr.HTTPStatusCode, reqErr.Err)
	}
	return fmt.Errorf("openai %s: %w", op, err)
}

func logUsage(model string, usage openai.Usage) {
	log.Printf("llm response model=%s prompt_tokens=%d completion_tokens=%d total_tokens=%d",
		model, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
}

var _ llm.Client = (*Client)(nil)
var _ llm.Embedder = (*Client)(nil)
var _ llm.ModelLister = (*Client)(nil)
